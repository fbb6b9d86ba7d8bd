package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"kasirponsel/backend/internal/cache"
	"kasirponsel/backend/internal/domain"
	"kasirponsel/backend/internal/imei"
	"kasirponsel/backend/internal/money"
	"kasirponsel/backend/internal/restock"
	"kasirponsel/backend/internal/store"
	"kasirponsel/backend/internal/xid"
)

const (
	defaultTransactionLimit = 50
	maxTransactionLimit     = 500
	maxUnitsPerIntake       = 100
	restockWindowDays       = 30
)

// Settings supplies the tax configuration the engine snapshots onto each
// transaction at creation time.
type Settings interface {
	GSTEnabled() bool
	GSTRatePercent() decimal.Decimal
}

// StaticSettings is the fixed, config-backed Settings implementation.
type StaticSettings struct {
	TaxEnabled bool
	TaxRate    decimal.Decimal
}

func (s StaticSettings) GSTEnabled() bool                { return s.TaxEnabled }
func (s StaticSettings) GSTRatePercent() decimal.Decimal { return s.TaxRate }

type actorContextKey struct{}

// WithActor attaches the authenticated actor to the context. The HTTP layer
// calls this after token verification; audit entries read it back.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Service is the transaction engine. All writes go through the repository's
// atomic units of work; the service layers validation, pricing, audit and
// change notification on top.
type Service struct {
	repo      store.Repository
	settings  Settings
	reports   cache.ReportCache
	reportTTL time.Duration
	hub       *Hub
	restock   *restock.Engine
}

func New(repo store.Repository, settings Settings, reports cache.ReportCache, publisher cache.Publisher, reportTTL time.Duration) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if reportTTL <= 0 {
		reportTTL = time.Minute
	}
	return &Service{
		repo:      repo,
		settings:  settings,
		reports:   reports,
		reportTTL: reportTTL,
		hub:       NewHub(publisher),
		restock:   restock.New(restockWindowDays),
	}
}

func (s *Service) requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}
	return nil
}

func (s *Service) logAudit(ctx context.Context, action, entityType, entityID, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}
	entry := domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

// ---- Products ----

func (s *Service) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, includeInactive)
}

func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return s.repo.GetProduct(ctx, strings.TrimSpace(id))
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (*domain.Product, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("product name is required")
	}
	if !req.Category.Valid() {
		return nil, fmt.Errorf("unknown category %q", req.Category)
	}
	costPrice, err := money.ParseNonNegative(req.CostPrice)
	if err != nil {
		return nil, fmt.Errorf("cost price: %w", err)
	}
	sellingPrice, err := money.ParseNonNegative(req.SellingPrice)
	if err != nil {
		return nil, fmt.Errorf("selling price: %w", err)
	}
	if req.MinStockLevel < 0 {
		return nil, fmt.Errorf("min stock level cannot be negative")
	}
	if req.InitialStock < 0 {
		return nil, fmt.Errorf("initial stock cannot be negative")
	}
	if req.Category.IMEITracked() && req.InitialStock != 0 {
		return nil, fmt.Errorf("serialized products start at zero stock; register units instead")
	}

	product := domain.Product{
		ID:            xid.New("prod"),
		Name:          name,
		Brand:         strings.TrimSpace(req.Brand),
		Model:         strings.TrimSpace(req.Model),
		Color:         strings.TrimSpace(req.Color),
		Variant:       strings.TrimSpace(req.Variant),
		Category:      req.Category,
		CostPrice:     costPrice,
		SellingPrice:  sellingPrice,
		CurrentStock:  req.InitialStock,
		MinStockLevel: req.MinStockLevel,
		IsActive:      true,
	}
	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "product.create", "product", created.ID, created.Name)
	s.hub.Notify(ctx, TopicStock, created.ID)
	return created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (*domain.Product, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("product name cannot be blank")
		}
		product.Name = name
	}
	if req.Brand != nil {
		product.Brand = strings.TrimSpace(*req.Brand)
	}
	if req.Model != nil {
		product.Model = strings.TrimSpace(*req.Model)
	}
	if req.Color != nil {
		product.Color = strings.TrimSpace(*req.Color)
	}
	if req.Variant != nil {
		product.Variant = strings.TrimSpace(*req.Variant)
	}
	if req.CostPrice != nil {
		costPrice, err := money.ParseNonNegative(*req.CostPrice)
		if err != nil {
			return nil, fmt.Errorf("cost price: %w", err)
		}
		product.CostPrice = costPrice
	}
	if req.SellingPrice != nil {
		sellingPrice, err := money.ParseNonNegative(*req.SellingPrice)
		if err != nil {
			return nil, fmt.Errorf("selling price: %w", err)
		}
		product.SellingPrice = sellingPrice
	}
	if req.MinStockLevel != nil {
		if *req.MinStockLevel < 0 {
			return nil, fmt.Errorf("min stock level cannot be negative")
		}
		product.MinStockLevel = *req.MinStockLevel
	}
	if req.IsActive != nil {
		product.IsActive = *req.IsActive
	}

	updated, err := s.repo.UpdateProduct(ctx, *product)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "product.update", "product", updated.ID, updated.Name)
	s.hub.Notify(ctx, TopicStock, updated.ID)
	return updated, nil
}

// ---- Serialized units ----

// ReceiveUnits registers a delivery of serialized units. The whole batch is
// inserted atomically: one bad IMEI rejects the delivery so the physical
// boxes and the system never diverge halfway.
func (s *Service) ReceiveUnits(ctx context.Context, req domain.UnitReceiveRequest) (*domain.UnitReceiveResponse, error) {
	productID := strings.TrimSpace(req.ProductID)
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.IsActive {
		return nil, fmt.Errorf("product %s is inactive", product.Name)
	}
	if !product.Category.IMEITracked() {
		return nil, fmt.Errorf("category %s does not track serialized units", product.Category)
	}
	if len(req.Units) == 0 {
		return nil, fmt.Errorf("at least one unit is required")
	}
	if len(req.Units) > maxUnitsPerIntake {
		return nil, fmt.Errorf("at most %d units per delivery", maxUnitsPerIntake)
	}

	var warnings []string
	units := make([]domain.ProductIMEI, 0, len(req.Units))
	for i, intake := range req.Units {
		primary := strings.TrimSpace(intake.IMEINumber)
		secondary := strings.TrimSpace(intake.IMEI2Number)

		if secondary != "" {
			pair := imei.ValidateDualPair(primary, secondary)
			if !pair.Valid {
				return nil, fmt.Errorf("unit %d: %s", i+1, pair.Message)
			}
			if pair.Warning != "" {
				warnings = append(warnings, fmt.Sprintf("unit %d (%s): %s", i+1, primary, pair.Warning))
			}
		} else {
			result := imei.Validate(primary)
			if !result.Valid {
				return nil, fmt.Errorf("unit %d: %s", i+1, result.Message)
			}
		}

		purchasePrice := product.CostPrice
		if strings.TrimSpace(intake.PurchasePrice) != "" {
			purchasePrice, err = money.ParseNonNegative(intake.PurchasePrice)
			if err != nil {
				return nil, fmt.Errorf("unit %d: purchase price: %w", i+1, err)
			}
		}
		if intake.WarrantyMonths < 0 {
			return nil, fmt.Errorf("unit %d: warranty months cannot be negative", i+1)
		}

		units = append(units, domain.ProductIMEI{
			ID:             xid.New("unit"),
			ProductID:      product.ID,
			IMEINumber:     primary,
			IMEI2Number:    secondary,
			SerialNumber:   strings.TrimSpace(intake.SerialNumber),
			Status:         domain.UnitAvailable,
			PurchasePrice:  purchasePrice,
			BoxNumber:      strings.TrimSpace(intake.BoxNumber),
			WarrantyMonths: intake.WarrantyMonths,
		})
	}

	ids, err := s.repo.InsertUnits(ctx, units)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "units.receive", "product", product.ID, fmt.Sprintf("%d units", len(ids)))
	s.hub.Notify(ctx, TopicUnits, product.ID)
	s.hub.Notify(ctx, TopicStock, product.ID)
	return &domain.UnitReceiveResponse{UnitIDs: ids, Warnings: warnings}, nil
}

func (s *Service) ListUnits(ctx context.Context, productID string) ([]domain.ProductIMEI, error) {
	return s.repo.ListUnitsByProduct(ctx, strings.TrimSpace(productID))
}

func (s *Service) FindUnitByIMEI(ctx context.Context, number string) (*domain.ProductIMEI, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, fmt.Errorf("imei is required")
	}
	return s.repo.FindUnitByIMEI(ctx, number)
}

// SetUnitStatus moves one unit through its lifecycle. The repository pairs
// the status change with the matching stock delta so the AVAILABLE count and
// the stock counter never drift.
func (s *Service) SetUnitStatus(ctx context.Context, unitID string, req domain.UnitStatusRequest) (*domain.ProductIMEI, error) {
	if !req.Status.Valid() {
		return nil, fmt.Errorf("unknown unit status %q", req.Status)
	}
	unit, err := s.repo.SetUnitStatus(ctx, strings.TrimSpace(unitID), req.Status)
	if err != nil {
		return nil, err
	}
	detail := string(req.Status)
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		detail += ": " + reason
	}
	s.logAudit(ctx, "unit.status", "unit", unit.ID, detail)
	s.hub.Notify(ctx, TopicUnits, unit.ProductID)
	s.hub.Notify(ctx, TopicStock, unit.ProductID)
	return unit, nil
}

func (s *Service) DeleteUnit(ctx context.Context, unitID string) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}
	unitID = strings.TrimSpace(unitID)
	if err := s.repo.DeleteUnit(ctx, unitID); err != nil {
		return err
	}
	s.logAudit(ctx, "unit.delete", "unit", unitID, "")
	s.hub.Notify(ctx, TopicUnits, "")
	s.hub.Notify(ctx, TopicStock, "")
	return nil
}

// ---- Stock ledger ----

// AdjustStock applies a manual counter correction. Serialized products are
// excluded: their stock is derived from unit statuses and is repaired with
// ReconcileStock instead.
func (s *Service) AdjustStock(ctx context.Context, productID string, req domain.StockAdjustRequest) (*domain.Product, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	productID = strings.TrimSpace(productID)
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.Category.IMEITracked() {
		return nil, fmt.Errorf("stock for %s is derived from its units; use reconcile", product.Name)
	}
	if req.Quantity == 0 {
		return nil, fmt.Errorf("quantity cannot be zero")
	}
	if req.Quantity > 0 {
		err = s.repo.IncreaseStock(ctx, productID, req.Quantity)
	} else {
		err = s.repo.ReduceStock(ctx, productID, -req.Quantity)
	}
	if err != nil {
		return nil, err
	}
	detail := fmt.Sprintf("%+d", req.Quantity)
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		detail += ": " + reason
	}
	s.logAudit(ctx, "stock.adjust", "product", productID, detail)
	s.hub.Notify(ctx, TopicStock, productID)
	return s.repo.GetProduct(ctx, productID)
}

// ReconcileStock resets a serialized product's counter to its AVAILABLE unit
// count. Accessories are left untouched.
func (s *Service) ReconcileStock(ctx context.Context, productID string) (*domain.StockReconcileResponse, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	result, err := s.repo.ReconcileStock(ctx, strings.TrimSpace(productID))
	if err != nil {
		return nil, err
	}
	if result.PreviousStock != result.CurrentStock {
		s.logAudit(ctx, "stock.reconcile", "product", result.ProductID, fmt.Sprintf("%d -> %d", result.PreviousStock, result.CurrentStock))
		s.hub.Notify(ctx, TopicStock, result.ProductID)
	}
	return result, nil
}

// ---- Transactions ----

// CreateTransaction prices the cart, runs the ordered totals computation and
// persists the result in one unit of work. Drafts store the priced lines but
// leave stock and units untouched; immediate sales decrement stock and flip
// the named units to SOLD atomically with the insert.
func (s *Service) CreateTransaction(ctx context.Context, req domain.TransactionCreateRequest) (*domain.TransactionResponse, error) {
	header, lines, err := s.prepareTransaction(ctx, transactionInput{
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CartItems:     req.CartItems,
		Discount:      req.Discount,
		DiscountType:  req.DiscountType,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
		ForSale:       !req.IsDraft,
	})
	if err != nil {
		return nil, err
	}

	header.ID = xid.New("txn")
	header.TransactionDate = time.Now().UTC()
	header.IsDraft = req.IsDraft
	if req.IsDraft {
		header.PaymentStatus = domain.PaymentPending
	} else {
		header.PaymentStatus = domain.PaymentPaid
	}

	created, err := s.repo.CreateTransaction(ctx, header, lines)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListTransactionItems(ctx, created.ID)
	if err != nil {
		return nil, err
	}

	if created.IsDraft {
		s.logAudit(ctx, "draft.create", "transaction", created.ID, created.TransactionNumber)
		s.hub.Notify(ctx, TopicDrafts, created.ID)
	} else {
		s.logAudit(ctx, "transaction.create", "transaction", created.ID, created.TransactionNumber)
		s.hub.Notify(ctx, TopicTransactions, created.ID)
		s.hub.Notify(ctx, TopicUnits, "")
		s.hub.Notify(ctx, TopicStock, "")
	}
	return &domain.TransactionResponse{Transaction: *created, Items: items}, nil
}

// CompleteDraftTransaction realizes a held sale: the repository re-validates
// stock and unit availability, applies the decrements, flips the units and
// marks the transaction PAID, all atomically. The monetary figures were
// frozen when the draft was created and are not recomputed.
func (s *Service) CompleteDraftTransaction(ctx context.Context, transactionID string) (*domain.TransactionResponse, error) {
	completed, err := s.repo.CompleteDraft(ctx, strings.TrimSpace(transactionID), time.Now().UTC())
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListTransactionItems(ctx, completed.ID)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "draft.complete", "transaction", completed.ID, completed.TransactionNumber)
	s.hub.Notify(ctx, TopicDrafts, completed.ID)
	s.hub.Notify(ctx, TopicTransactions, completed.ID)
	s.hub.Notify(ctx, TopicUnits, "")
	s.hub.Notify(ctx, TopicStock, "")
	return &domain.TransactionResponse{Transaction: *completed, Items: items}, nil
}

// UpdateDraftTransaction replaces a draft's cart and reprices it. The
// transaction number and creation date survive the rewrite.
func (s *Service) UpdateDraftTransaction(ctx context.Context, transactionID string, req domain.TransactionUpdateRequest) (*domain.TransactionResponse, error) {
	transactionID = strings.TrimSpace(transactionID)
	existing, err := s.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if !existing.IsDraft {
		return nil, store.ErrDraftRequired
	}

	header, lines, err := s.prepareTransaction(ctx, transactionInput{
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CartItems:     req.CartItems,
		Discount:      req.Discount,
		DiscountType:  req.DiscountType,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
		ForSale:       false,
	})
	if err != nil {
		return nil, err
	}
	header.ID = existing.ID

	updated, err := s.repo.UpdateDraft(ctx, header, lines)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListTransactionItems(ctx, updated.ID)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "draft.update", "transaction", updated.ID, updated.TransactionNumber)
	s.hub.Notify(ctx, TopicDrafts, updated.ID)
	return &domain.TransactionResponse{Transaction: *updated, Items: items}, nil
}

func (s *Service) DeleteDraftTransaction(ctx context.Context, transactionID string) error {
	transactionID = strings.TrimSpace(transactionID)
	if err := s.repo.DeleteDraft(ctx, transactionID); err != nil {
		return err
	}
	s.logAudit(ctx, "draft.delete", "transaction", transactionID, "")
	s.hub.Notify(ctx, TopicDrafts, transactionID)
	return nil
}

// CleanupOldDrafts removes drafts older than the retention window and
// reports how many were deleted. Completed transactions are never touched.
func (s *Service) CleanupOldDrafts(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("retention must be positive")
	}
	olderThan := time.Now().UTC().Add(-retention)
	removed, err := s.repo.CleanupOldDrafts(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logAudit(ctx, "draft.cleanup", "transaction", "", fmt.Sprintf("%d drafts removed", removed))
		s.hub.Notify(ctx, TopicDrafts, "")
	}
	return removed, nil
}

func (s *Service) MarkReceiptPrinted(ctx context.Context, transactionID string) error {
	transactionID = strings.TrimSpace(transactionID)
	if err := s.repo.MarkReceiptPrinted(ctx, transactionID); err != nil {
		return err
	}
	s.logAudit(ctx, "receipt.printed", "transaction", transactionID, "")
	return nil
}

type transactionInput struct {
	CustomerName  string
	CustomerPhone string
	CartItems     []domain.CartItem
	Discount      string
	DiscountType  domain.DiscountType
	PaymentMethod string
	Notes         string
	ForSale       bool
}

// prepareTransaction is the shared validation and pricing path for creating
// and rewriting transactions. It loads the catalog snapshot, builds the
// priced lines and runs the ordered totals computation. Stock is pre-checked
// for immediate sales only; the repository repeats the check atomically.
func (s *Service) prepareTransaction(ctx context.Context, input transactionInput) (domain.Transaction, []domain.TransactionItem, error) {
	if len(input.CartItems) == 0 {
		return domain.Transaction{}, nil, store.ErrEmptyCart
	}

	catalog := make(map[string]domain.Product, len(input.CartItems))
	for _, item := range input.CartItems {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			continue
		}
		if _, ok := catalog[productID]; ok {
			continue
		}
		product, err := s.repo.GetProduct(ctx, productID)
		if err != nil {
			return domain.Transaction{}, nil, fmt.Errorf("product %s: %w", productID, err)
		}
		if !product.IsActive {
			return domain.Transaction{}, nil, fmt.Errorf("product %s is inactive: %w", product.Name, store.ErrInvalidTransaction)
		}
		catalog[productID] = *product
	}

	lines, err := BuildLineItems(catalog, input.CartItems)
	if err != nil {
		return domain.Transaction{}, nil, err
	}

	requested := make(map[string]int, len(lines))
	for _, line := range lines {
		product := catalog[line.ProductID]
		if product.Category.IMEITracked() {
			if line.IMEISold == "" {
				return domain.Transaction{}, nil, fmt.Errorf("%s is serialized; each line must name the unit's IMEI: %w", product.Name, store.ErrInvalidTransaction)
			}
			if line.Quantity != 1 {
				return domain.Transaction{}, nil, fmt.Errorf("serialized lines carry exactly one unit: %w", store.ErrInvalidTransaction)
			}
		} else if line.IMEISold != "" {
			return domain.Transaction{}, nil, fmt.Errorf("%s is not serialized; IMEI does not apply: %w", product.Name, store.ErrInvalidTransaction)
		}
		requested[line.ProductID] += line.Quantity
	}

	if input.ForSale {
		for productID, quantity := range requested {
			product := catalog[productID]
			if product.CurrentStock < quantity {
				return domain.Transaction{}, nil, &store.InsufficientStockError{
					ProductID:   productID,
					ProductName: product.Name,
					Available:   product.CurrentStock,
					Requested:   quantity,
				}
			}
		}
	}

	discountType := input.DiscountType
	if discountType == "" {
		discountType = domain.DiscountAmount
	}
	if !discountType.Valid() {
		return domain.Transaction{}, nil, fmt.Errorf("unknown discount type %q: %w", input.DiscountType, store.ErrInvalidTransaction)
	}

	taxRate := money.Zero()
	if s.settings.GSTEnabled() {
		taxRate = s.settings.GSTRatePercent()
	}
	sums, err := computeTotals(lines, discountType, input.Discount, taxRate)
	if err != nil {
		return domain.Transaction{}, nil, err
	}

	paymentMethod := strings.ToLower(strings.TrimSpace(input.PaymentMethod))
	if paymentMethod == "" {
		paymentMethod = "cash"
	}

	header := domain.Transaction{
		CustomerName:   strings.TrimSpace(input.CustomerName),
		CustomerPhone:  strings.TrimSpace(input.CustomerPhone),
		Subtotal:       sums.Subtotal,
		DiscountAmount: sums.DiscountAmount,
		DiscountType:   discountType,
		TaxRatePercent: sums.TaxRatePercent,
		TaxAmount:      sums.TaxAmount,
		GrandTotal:     sums.GrandTotal,
		ProfitAmount:   sums.ProfitAmount,
		PaymentMethod:  paymentMethod,
		Notes:          strings.TrimSpace(input.Notes),
	}
	return header, lines, nil
}

// ---- Transaction reads ----

func (s *Service) GetTransaction(ctx context.Context, id string) (*domain.TransactionResponse, error) {
	tx, err := s.repo.GetTransaction(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListTransactionItems(ctx, tx.ID)
	if err != nil {
		return nil, err
	}
	return &domain.TransactionResponse{Transaction: *tx, Items: items}, nil
}

func (s *Service) GetTransactionByNumber(ctx context.Context, number string) (*domain.TransactionResponse, error) {
	tx, err := s.repo.GetTransactionByNumber(ctx, strings.TrimSpace(number))
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListTransactionItems(ctx, tx.ID)
	if err != nil {
		return nil, err
	}
	return &domain.TransactionResponse{Transaction: *tx, Items: items}, nil
}

func (s *Service) ListCompletedTransactions(ctx context.Context, limit int) ([]domain.Transaction, error) {
	return s.repo.ListCompletedTransactions(ctx, normalizeLimit(limit))
}

func (s *Service) ListDraftTransactions(ctx context.Context) ([]domain.Transaction, error) {
	return s.repo.ListDraftTransactions(ctx)
}

func (s *Service) ListTransactionsByDateRange(ctx context.Context, from, to time.Time) ([]domain.Transaction, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("date range end precedes start")
	}
	return s.repo.ListTransactionsByDateRange(ctx, from, to)
}

func (s *Service) ListTransactionItems(ctx context.Context, transactionID string) ([]domain.TransactionItem, error) {
	return s.repo.ListTransactionItems(ctx, strings.TrimSpace(transactionID))
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultTransactionLimit
	}
	if limit > maxTransactionLimit {
		return maxTransactionLimit
	}
	return limit
}

// ---- Reactive reads ----

// Watch exposes the raw change feed for the given topics, used by the SSE
// endpoint. The list watchers below re-query on every event instead.
func (s *Service) Watch(ctx context.Context, topics ...string) <-chan domain.ChangeEvent {
	if len(topics) == 0 {
		topics = []string{TopicTransactions, TopicDrafts, TopicUnits, TopicStock}
	}
	return s.hub.Subscribe(ctx, topics...)
}

func (s *Service) WatchCompletedTransactions(ctx context.Context, limit int) (<-chan []domain.Transaction, error) {
	return watchList(ctx, s.hub, []string{TopicTransactions}, func(ctx context.Context) ([]domain.Transaction, error) {
		return s.repo.ListCompletedTransactions(ctx, normalizeLimit(limit))
	})
}

func (s *Service) WatchDraftTransactions(ctx context.Context) (<-chan []domain.Transaction, error) {
	return watchList(ctx, s.hub, []string{TopicDrafts}, func(ctx context.Context) ([]domain.Transaction, error) {
		return s.repo.ListDraftTransactions(ctx)
	})
}

func (s *Service) WatchTransactionsByDateRange(ctx context.Context, from, to time.Time) (<-chan []domain.Transaction, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("date range end precedes start")
	}
	return watchList(ctx, s.hub, []string{TopicTransactions}, func(ctx context.Context) ([]domain.Transaction, error) {
		return s.repo.ListTransactionsByDateRange(ctx, from, to)
	})
}

func (s *Service) WatchTransactionItems(ctx context.Context, transactionID string) (<-chan []domain.TransactionItem, error) {
	transactionID = strings.TrimSpace(transactionID)
	return watchList(ctx, s.hub, []string{TopicTransactions, TopicDrafts}, func(ctx context.Context) ([]domain.TransactionItem, error) {
		return s.repo.ListTransactionItems(ctx, transactionID)
	})
}

// ---- Reporting ----

// DailyReport aggregates the completed sales of one day (YYYY-MM-DD),
// serving a cached copy when one is fresh.
func (s *Service) DailyReport(ctx context.Context, date string) (*domain.DailyReport, error) {
	date = strings.TrimSpace(date)
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, fmt.Errorf("date must be YYYY-MM-DD")
	}

	key := "report:daily:" + date
	cached, ok, err := s.reports.Get(ctx, key)
	if err != nil {
		// Cache trouble must not take reporting down; recompute from the store.
		log.Printf("[reports] WARN: cache read for %s failed: %v", key, err)
	} else if ok {
		return cached, nil
	}
	report, err := s.repo.GetDailyReport(ctx, day)
	if err != nil {
		return nil, err
	}
	report.Date = date
	if err := s.reports.Set(ctx, key, &report, s.reportTTL); err != nil {
		log.Printf("[reports] WARN: cache write for %s failed: %v", key, err)
	}
	return &report, nil
}

// RestockSuggestions ranks products that need reordering from current stock
// levels and the last 30 days of completed sales.
func (s *Service) RestockSuggestions(ctx context.Context) (*domain.RestockSuggestionResponse, error) {
	products, err := s.repo.ListProducts(ctx, false)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	transactions, err := s.repo.ListTransactionsByDateRange(ctx, now.AddDate(0, 0, -restockWindowDays), now)
	if err != nil {
		return nil, err
	}

	soldQty := make(map[string]int)
	for _, tx := range transactions {
		if tx.IsDraft {
			continue
		}
		items, err := s.repo.ListTransactionItems(ctx, tx.ID)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			soldQty[item.ProductID] += item.Quantity
		}
	}

	return &domain.RestockSuggestionResponse{
		GeneratedAt: now.Format(time.RFC3339),
		Suggestions: s.restock.Suggest(products, soldQty),
	}, nil
}

// ---- Audit trail ----

func (s *Service) ListAuditLogs(ctx context.Context, from, to time.Time, limit int) ([]domain.AuditLog, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListAuditLogs(ctx, from, to, normalizeLimit(limit))
}
