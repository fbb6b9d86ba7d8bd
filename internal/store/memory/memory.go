// Package memory implements the repository against mutex-guarded maps. It is
// used for tests and demo mode. All multi-step writes happen under a single
// lock acquisition, which gives the same all-or-nothing behavior the postgres
// implementation gets from serializable transactions.
package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"kasirponsel/backend/internal/domain"
	"kasirponsel/backend/internal/store"
	"kasirponsel/backend/internal/xid"
)

type Store struct {
	mu                 sync.RWMutex
	products           map[string]domain.Product
	units              map[string]domain.ProductIMEI
	transactionsByID   map[string]domain.Transaction
	itemsByTransaction map[string][]domain.TransactionItem
	seqByYear          map[int]int
	auditLogs          []domain.AuditLog
	usersByUsername    map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:           make(map[string]domain.Product),
		units:              make(map[string]domain.ProductIMEI),
		transactionsByID:   make(map[string]domain.Transaction),
		itemsByTransaction: make(map[string][]domain.TransactionItem),
		seqByYear:          make(map[int]int),
		usersByUsername:    seedUsers(),
	}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; unset
// variables fall back to hardcoded dev defaults with a warning. Production
// deployments run against PostgreSQL and never hit this path.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store preloaded with a small phone-shop catalog. The
// serialized products carry real Luhn-valid IMEIs so the validator accepts
// them during tests.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	products := []domain.Product{
		{
			ID: "prod-a15", Name: "Samsung Galaxy A15 8/256", Brand: "Samsung", Model: "SM-A155F",
			Color: "Blue Black", Category: domain.CategoryPhone,
			CostPrice: dec("20000"), SellingPrice: dec("25000"),
			MinStockLevel: 1, IsActive: true, CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: "prod-note13", Name: "Redmi Note 13 8/128", Brand: "Xiaomi", Model: "23124RA7EO",
			Color: "Midnight Black", Category: domain.CategoryPhone,
			CostPrice: dec("15000"), SellingPrice: dec("17500"),
			MinStockLevel: 2, IsActive: true, CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: "prod-case-01", Name: "Clear Case A15", Brand: "Generic", Model: "CASE-A15",
			Category:  domain.CategoryAccessory,
			CostPrice: dec("80"), SellingPrice: dec("150"),
			CurrentStock: 25, MinStockLevel: 5, IsActive: true, CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: "prod-charger-20w", Name: "20W USB-C Charger", Brand: "Generic", Model: "CHG-20W",
			Category:  domain.CategoryAccessory,
			CostPrice: dec("250"), SellingPrice: dec("450"),
			CurrentStock: 10, MinStockLevel: 3, IsActive: true, CreatedAt: now, UpdatedAt: now,
		},
	}
	for _, p := range products {
		s.products[p.ID] = p
	}

	units := []domain.ProductIMEI{
		{ID: "unit-a15-1", ProductID: "prod-a15", IMEINumber: "356915330000018", Status: domain.UnitAvailable, PurchasePrice: dec("20000"), CreatedAt: now, UpdatedAt: now},
		{ID: "unit-a15-2", ProductID: "prod-a15", IMEINumber: "356915330000109", Status: domain.UnitAvailable, PurchasePrice: dec("20000"), CreatedAt: now, UpdatedAt: now},
		{ID: "unit-note13-1", ProductID: "prod-note13", IMEINumber: "867535090000016", IMEI2Number: "867535090000024", Status: domain.UnitAvailable, PurchasePrice: dec("15000"), CreatedAt: now, UpdatedAt: now},
	}
	for _, u := range units {
		s.units[u.ID] = u
		p := s.products[u.ProductID]
		p.CurrentStock++
		s.products[u.ProductID] = p
	}

	return s
}

// dec panics on malformed literals; only used with seed constants.
func dec(raw string) decimal.Decimal {
	return decimal.RequireFromString(raw)
}

// --- products ---

func (s *Store) ListProducts(_ context.Context, includeInactive bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !includeInactive && !p.IsActive {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := p
	return &clone, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, fmt.Errorf("product %s already exists", product.ID)
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now
	s.products[product.ID] = product
	clone := product
	return &clone, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	product.CreatedAt = existing.CreatedAt
	product.CurrentStock = existing.CurrentStock
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product
	clone := product
	return &clone, nil
}

// --- serialized units ---

func (s *Store) FindUnitByIMEI(_ context.Context, imei string) (*domain.ProductIMEI, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	unit, ok := s.findUnitByIMEILocked(imei)
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := unit
	return &clone, nil
}

func (s *Store) findUnitByIMEILocked(imei string) (domain.ProductIMEI, bool) {
	needle := strings.TrimSpace(imei)
	for _, u := range s.units {
		if u.IMEINumber == needle || (u.IMEI2Number != "" && u.IMEI2Number == needle) {
			return u, true
		}
	}
	return domain.ProductIMEI{}, false
}

func (s *Store) ListUnitsByProduct(_ context.Context, productID string) ([]domain.ProductIMEI, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ProductIMEI, 0)
	for _, u := range s.units {
		if u.ProductID == productID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IMEINumber < out[j].IMEINumber })
	return out, nil
}

// InsertUnits registers a batch of received units. The whole batch is
// validated before anything is written: one duplicate IMEI anywhere fails the
// entire insert. Stock goes up by one per inserted unit in the same step.
func (s *Store) InsertUnits(_ context.Context, units []domain.ProductIMEI) ([]string, error) {
	if len(units) == 0 {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	for i := range units {
		u := &units[i]
		if _, ok := s.products[u.ProductID]; !ok {
			return nil, store.ErrNotFound
		}
		for _, number := range []string{u.IMEINumber, u.IMEI2Number} {
			if number == "" {
				continue
			}
			if seen[number] {
				return nil, &store.DuplicateIMEIError{IMEI: number}
			}
			seen[number] = true
			if existing, ok := s.findUnitByIMEILocked(number); ok {
				dup := &store.DuplicateIMEIError{IMEI: number, ProductID: existing.ProductID}
				if p, ok := s.products[existing.ProductID]; ok {
					dup.ProductName = p.Name
				}
				return nil, dup
			}
		}
	}

	now := time.Now().UTC()
	ids := make([]string, 0, len(units))
	for i := range units {
		u := units[i]
		if u.ID == "" {
			u.ID = xid.New("unit")
		}
		if u.Status == "" {
			u.Status = domain.UnitAvailable
		}
		u.CreatedAt = now
		u.UpdatedAt = now
		s.units[u.ID] = u
		ids = append(ids, u.ID)

		p := s.products[u.ProductID]
		if u.Status == domain.UnitAvailable {
			p.CurrentStock++
			p.UpdatedAt = now
			s.products[u.ProductID] = p
		}
	}
	return ids, nil
}

// SetUnitStatus applies a manual lifecycle correction. Stock follows the
// AVAILABLE count: a transition out of AVAILABLE decrements the owning
// product's stock, a transition into AVAILABLE increments it.
func (s *Store) SetUnitStatus(_ context.Context, unitID string, status domain.UnitStatus) (*domain.ProductIMEI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unit, ok := s.units[unitID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !store.LegalUnitTransition(unit.Status, status) {
		return nil, &store.InvalidStatusTransitionError{From: unit.Status, To: status}
	}

	now := time.Now().UTC()
	if p, ok := s.products[unit.ProductID]; ok {
		switch {
		case unit.Status == domain.UnitAvailable && status != domain.UnitAvailable:
			if p.CurrentStock < 1 {
				return nil, &store.InsufficientStockError{ProductID: p.ID, ProductName: p.Name, Available: p.CurrentStock, Requested: 1}
			}
			p.CurrentStock--
		case unit.Status != domain.UnitAvailable && status == domain.UnitAvailable:
			p.CurrentStock++
		}
		p.UpdatedAt = now
		s.products[unit.ProductID] = p
	}

	unit.Status = status
	unit.UpdatedAt = now
	s.units[unitID] = unit
	clone := unit
	return &clone, nil
}

func (s *Store) CountUnitsByStatus(_ context.Context, productID string, status domain.UnitStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countUnitsByStatusLocked(productID, status), nil
}

func (s *Store) countUnitsByStatusLocked(productID string, status domain.UnitStatus) int {
	count := 0
	for _, u := range s.units {
		if u.ProductID == productID && u.Status == status {
			count++
		}
	}
	return count
}

// DeleteUnit removes an AVAILABLE unit with no sale history. Units referenced
// by a completed transaction item stay forever.
func (s *Store) DeleteUnit(_ context.Context, unitID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unit, ok := s.units[unitID]
	if !ok {
		return store.ErrNotFound
	}
	if unit.Status != domain.UnitAvailable {
		return fmt.Errorf("unit %s is %s: %w", unitID, unit.Status, store.ErrInvalidTransaction)
	}
	for _, items := range s.itemsByTransaction {
		for _, item := range items {
			if item.IMEISold != "" && item.IMEISold == unit.IMEINumber {
				return fmt.Errorf("unit %s has sale history: %w", unitID, store.ErrInvalidTransaction)
			}
		}
	}

	delete(s.units, unitID)
	if p, ok := s.products[unit.ProductID]; ok && p.CurrentStock > 0 {
		p.CurrentStock--
		p.UpdatedAt = time.Now().UTC()
		s.products[unit.ProductID] = p
	}
	return nil
}

// --- stock ledger ---

func (s *Store) ReduceStock(_ context.Context, productID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reduceStockLocked(productID, quantity)
}

func (s *Store) reduceStockLocked(productID string, quantity int) error {
	p, ok := s.products[productID]
	if !ok {
		return store.ErrNotFound
	}
	if p.CurrentStock < quantity {
		return &store.InsufficientStockError{ProductID: p.ID, ProductName: p.Name, Available: p.CurrentStock, Requested: quantity}
	}
	p.CurrentStock -= quantity
	p.UpdatedAt = time.Now().UTC()
	s.products[productID] = p
	return nil
}

func (s *Store) IncreaseStock(_ context.Context, productID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return store.ErrNotFound
	}
	p.CurrentStock += quantity
	p.UpdatedAt = time.Now().UTC()
	s.products[productID] = p
	return nil
}

// ReconcileStock recomputes the aggregate counter from the AVAILABLE unit
// count for serialized products. Accessories keep their counter as the sole
// source of truth, so reconcile is a no-op for them.
func (s *Store) ReconcileStock(_ context.Context, productID string) (*domain.StockReconcileResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	resp := &domain.StockReconcileResponse{ProductID: productID, PreviousStock: p.CurrentStock, CurrentStock: p.CurrentStock}
	if !p.Category.IMEITracked() {
		return resp, nil
	}

	available := s.countUnitsByStatusLocked(productID, domain.UnitAvailable)
	if available != p.CurrentStock {
		p.CurrentStock = available
		p.UpdatedAt = time.Now().UTC()
		s.products[productID] = p
	}
	resp.CurrentStock = available
	return resp, nil
}

// --- transaction unit of work ---

// CreateTransaction persists a transaction and its items and, for completed
// sales, applies the stock and unit effects. Everything is validated before
// the first write so a failure leaves the maps untouched.
func (s *Store) CreateTransaction(_ context.Context, tx domain.Transaction, items []domain.TransactionItem) (*domain.Transaction, error) {
	if len(items) == 0 {
		return nil, store.ErrEmptyCart
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	soldUnits, err := s.validateSaleLocked(items, !tx.IsDraft)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if tx.TransactionDate.IsZero() {
		tx.TransactionDate = now
	}
	tx.TransactionNumber = s.nextTransactionNumberLocked(tx.TransactionDate.Year())
	tx.CreatedAt = now
	tx.UpdatedAt = now
	if tx.IsDraft {
		tx.PaymentStatus = domain.PaymentPending
	} else {
		tx.PaymentStatus = domain.PaymentPaid
	}

	stored := make([]domain.TransactionItem, 0, len(items))
	for _, item := range items {
		if item.ID == "" {
			item.ID = xid.New("item")
		}
		item.TransactionID = tx.ID
		stored = append(stored, item)
	}

	if !tx.IsDraft {
		s.applySaleLocked(stored, soldUnits, now)
	}

	s.transactionsByID[tx.ID] = tx
	s.itemsByTransaction[tx.ID] = stored
	clone := tx
	return &clone, nil
}

// validateSaleLocked checks products, stock and units for a set of line
// items. When forSale is false (a draft) only product existence and stock
// levels are verified; unit checks still run so a bogus IMEI is caught early.
// Returns the unit IDs to mark SOLD, keyed by line index.
func (s *Store) validateSaleLocked(items []domain.TransactionItem, forSale bool) (map[int]string, error) {
	needed := make(map[string]int)
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("quantity must be positive: %w", store.ErrInvalidTransaction)
		}
		needed[item.ProductID] += item.Quantity
	}
	for productID, qty := range needed {
		p, ok := s.products[productID]
		if !ok {
			return nil, store.ErrNotFound
		}
		if p.CurrentStock < qty {
			return nil, &store.InsufficientStockError{ProductID: p.ID, ProductName: p.Name, Available: p.CurrentStock, Requested: qty}
		}
	}

	soldUnits := make(map[int]string)
	claimed := make(map[string]bool)
	for i, item := range items {
		if item.IMEISold == "" {
			continue
		}
		unit, ok := s.findUnitByIMEILocked(item.IMEISold)
		if !ok {
			return nil, fmt.Errorf("unit %s: %w", item.IMEISold, store.ErrNotFound)
		}
		if unit.ProductID != item.ProductID {
			return nil, fmt.Errorf("unit %s belongs to another product: %w", item.IMEISold, store.ErrInvalidTransaction)
		}
		if claimed[unit.ID] {
			return nil, fmt.Errorf("unit %s listed twice: %w", item.IMEISold, store.ErrInvalidTransaction)
		}
		claimed[unit.ID] = true
		if forSale && !store.LegalUnitTransition(unit.Status, domain.UnitSold) {
			return nil, &store.InvalidStatusTransitionError{From: unit.Status, To: domain.UnitSold}
		}
		soldUnits[i] = unit.ID
	}
	return soldUnits, nil
}

// applySaleLocked performs the stock decrements and unit SOLD flips for a
// validated sale. Callers must have run validateSaleLocked under the same
// lock acquisition.
func (s *Store) applySaleLocked(items []domain.TransactionItem, soldUnits map[int]string, now time.Time) {
	for i, item := range items {
		p := s.products[item.ProductID]
		p.CurrentStock -= item.Quantity
		p.UpdatedAt = now
		s.products[item.ProductID] = p

		if unitID, ok := soldUnits[i]; ok {
			unit := s.units[unitID]
			unit.Status = domain.UnitSold
			unit.UpdatedAt = now
			s.units[unitID] = unit
		}
	}
}

func (s *Store) nextTransactionNumberLocked(year int) string {
	s.seqByYear[year]++
	return fmt.Sprintf("TXN-%d-%03d", year, s.seqByYear[year])
}

// CompleteDraft realizes the stock impact of a draft and flips it to a paid,
// completed transaction. Products that went inactive since the draft was
// written surface as a DraftIntegrityError so the caller can say "this draft
// needs review" instead of a generic failure.
func (s *Store) CompleteDraft(_ context.Context, transactionID string, at time.Time) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionsByID[transactionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !tx.IsDraft {
		return nil, store.ErrAlreadyCompleted
	}

	items := s.itemsByTransaction[transactionID]
	if len(items) == 0 {
		return nil, &store.DraftIntegrityError{TransactionID: transactionID, Reason: "draft has no line items"}
	}
	for _, item := range items {
		p, ok := s.products[item.ProductID]
		if !ok {
			return nil, &store.DraftIntegrityError{TransactionID: transactionID, Reason: fmt.Sprintf("product %s no longer exists", item.ProductID)}
		}
		if !p.IsActive {
			return nil, &store.DraftIntegrityError{TransactionID: transactionID, Reason: fmt.Sprintf("product %s has been deactivated", p.Name)}
		}
		if item.IMEISold != "" {
			unit, ok := s.findUnitByIMEILocked(item.IMEISold)
			if !ok {
				return nil, &store.DraftIntegrityError{TransactionID: transactionID, Reason: fmt.Sprintf("unit %s no longer exists", item.IMEISold)}
			}
			if !store.LegalUnitTransition(unit.Status, domain.UnitSold) {
				return nil, &store.DraftIntegrityError{TransactionID: transactionID, Reason: fmt.Sprintf("unit %s is %s", item.IMEISold, unit.Status)}
			}
		}
	}

	soldUnits, err := s.validateSaleLocked(items, true)
	if err != nil {
		return nil, err
	}

	now := at.UTC()
	s.applySaleLocked(items, soldUnits, now)
	tx.IsDraft = false
	tx.PaymentStatus = domain.PaymentPaid
	tx.UpdatedAt = now
	s.transactionsByID[transactionID] = tx
	clone := tx
	return &clone, nil
}

// UpdateDraft replaces a draft's header figures and its whole line-item set.
// Stock is untouched: drafts never have stock effects.
func (s *Store) UpdateDraft(_ context.Context, tx domain.Transaction, items []domain.TransactionItem) (*domain.Transaction, error) {
	if len(items) == 0 {
		return nil, store.ErrEmptyCart
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.transactionsByID[tx.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !existing.IsDraft {
		return nil, store.ErrDraftRequired
	}

	if _, err := s.validateSaleLocked(items, false); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	tx.TransactionNumber = existing.TransactionNumber
	tx.TransactionDate = existing.TransactionDate
	tx.CreatedAt = existing.CreatedAt
	tx.IsDraft = true
	tx.PaymentStatus = domain.PaymentPending
	tx.ReceiptPrinted = false
	tx.UpdatedAt = now

	stored := make([]domain.TransactionItem, 0, len(items))
	for _, item := range items {
		if item.ID == "" {
			item.ID = xid.New("item")
		}
		item.TransactionID = tx.ID
		stored = append(stored, item)
	}

	s.transactionsByID[tx.ID] = tx
	s.itemsByTransaction[tx.ID] = stored
	clone := tx
	return &clone, nil
}

func (s *Store) DeleteDraft(_ context.Context, transactionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionsByID[transactionID]
	if !ok {
		return store.ErrNotFound
	}
	if !tx.IsDraft {
		return store.ErrDraftRequired
	}
	delete(s.transactionsByID, transactionID)
	delete(s.itemsByTransaction, transactionID)
	return nil
}

func (s *Store) CleanupOldDrafts(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, tx := range s.transactionsByID {
		if tx.IsDraft && tx.CreatedAt.Before(olderThan) {
			delete(s.transactionsByID, id)
			delete(s.itemsByTransaction, id)
			removed++
		}
	}
	return removed, nil
}

// --- transaction reads ---

func (s *Store) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := tx
	return &clone, nil
}

func (s *Store) GetTransactionByNumber(_ context.Context, number string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, tx := range s.transactionsByID {
		if tx.TransactionNumber == number {
			clone := tx
			return &clone, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListCompletedTransactions(_ context.Context, limit int) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Transaction, 0)
	for _, tx := range s.transactionsByID {
		if !tx.IsDraft {
			out = append(out, tx)
		}
	}
	sortTransactionsDesc(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListDraftTransactions(_ context.Context) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Transaction, 0)
	for _, tx := range s.transactionsByID {
		if tx.IsDraft {
			out = append(out, tx)
		}
	}
	sortTransactionsDesc(out)
	return out, nil
}

func (s *Store) ListTransactionsByDateRange(_ context.Context, from time.Time, to time.Time) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Transaction, 0)
	for _, tx := range s.transactionsByID {
		if tx.IsDraft {
			continue
		}
		if tx.TransactionDate.Before(from) || !tx.TransactionDate.Before(to) {
			continue
		}
		out = append(out, tx)
	}
	sortTransactionsDesc(out)
	return out, nil
}

func (s *Store) ListTransactionItems(_ context.Context, transactionID string) ([]domain.TransactionItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.transactionsByID[transactionID]; !ok {
		return nil, store.ErrNotFound
	}
	items := s.itemsByTransaction[transactionID]
	out := make([]domain.TransactionItem, len(items))
	copy(out, items)
	return out, nil
}

func (s *Store) MarkReceiptPrinted(_ context.Context, transactionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionsByID[transactionID]
	if !ok {
		return store.ErrNotFound
	}
	if tx.IsDraft {
		return store.ErrDraftRequired
	}
	tx.ReceiptPrinted = true
	tx.UpdatedAt = time.Now().UTC()
	s.transactionsByID[transactionID] = tx
	return nil
}

func sortTransactionsDesc(txs []domain.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		if txs[i].CreatedAt.Equal(txs[j].CreatedAt) {
			return txs[i].TransactionNumber > txs[j].TransactionNumber
		}
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
}

// --- reporting ---

func (s *Store) GetDailyReport(_ context.Context, day time.Time) (domain.DailyReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	report := domain.DailyReport{Date: dayStart.Format("2006-01-02")}
	byPayment := make(map[string]*domain.DailyReportPayment)
	for _, tx := range s.transactionsByID {
		if tx.IsDraft || tx.TransactionDate.Before(dayStart) || !tx.TransactionDate.Before(dayEnd) {
			continue
		}
		report.Transactions++
		report.GrossSales = report.GrossSales.Add(tx.Subtotal)
		report.DiscountTotal = report.DiscountTotal.Add(tx.DiscountAmount)
		report.TaxTotal = report.TaxTotal.Add(tx.TaxAmount)
		report.NetSales = report.NetSales.Add(tx.GrandTotal)
		report.ProfitTotal = report.ProfitTotal.Add(tx.ProfitAmount)

		method := tx.PaymentMethod
		if method == "" {
			method = "cash"
		}
		entry, ok := byPayment[method]
		if !ok {
			entry = &domain.DailyReportPayment{PaymentMethod: method}
			byPayment[method] = entry
		}
		entry.Transactions++
		entry.Total = entry.Total.Add(tx.GrandTotal)
	}

	methods := make([]string, 0, len(byPayment))
	for m := range byPayment {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	for _, m := range methods {
		report.ByPayment = append(report.ByPayment, *byPayment[m])
	}
	return report, nil
}

// --- audit trail ---

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AuditLog, 0)
	for _, entry := range s.auditLogs {
		if !from.IsZero() && entry.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !entry.CreatedAt.Before(to) {
			continue
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- auth credentials ---

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(strings.TrimSpace(user.Username))
	if key == "" {
		return fmt.Errorf("username is required")
	}
	if _, exists := s.usersByUsername[key]; exists {
		return fmt.Errorf("username %s already exists", key)
	}
	user.Username = key
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[key] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(strings.TrimSpace(username))
	user, ok := s.usersByUsername[key]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[key] = user
	return nil
}
