package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"kasirponsel/backend/internal/domain"
	"kasirponsel/backend/internal/store"
	"kasirponsel/backend/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.NewSeeded(), StaticSettings{}, nil, nil, 0)
}

func newTestServiceWithGST(rate string) *Service {
	settings := StaticSettings{TaxEnabled: true, TaxRate: decimal.RequireFromString(rate)}
	return New(memory.NewSeeded(), settings, nil, nil, 0)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cashier", Role: "cashier"})
}

func phoneSale(imeiNumber string) domain.TransactionCreateRequest {
	return domain.TransactionCreateRequest{
		CartItems: []domain.CartItem{
			{ProductID: "prod-a15", IMEISold: imeiNumber, Quantity: 1},
		},
	}
}

func mustEqualMoney(t *testing.T, label string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("%s: expected %s, got %s", label, want, got.String())
	}
}

func TestSellPhoneComputesTotalsAndMarksUnitSold(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	resp, err := svc.CreateTransaction(ctx, phoneSale("356915330000018"))
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	tx := resp.Transaction
	mustEqualMoney(t, "subtotal", tx.Subtotal, "25000")
	mustEqualMoney(t, "tax", tx.TaxAmount, "0")
	mustEqualMoney(t, "grand total", tx.GrandTotal, "25000")
	mustEqualMoney(t, "profit", tx.ProfitAmount, "5000")
	if tx.PaymentStatus != domain.PaymentPaid {
		t.Fatalf("expected PAID, got %s", tx.PaymentStatus)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected 1 line item, got %d", len(resp.Items))
	}
	mustEqualMoney(t, "line profit", resp.Items[0].LineProfit, "5000")

	product, err := svc.GetProduct(ctx, "prod-a15")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.CurrentStock != 1 {
		t.Fatalf("expected stock 1 after sale, got %d", product.CurrentStock)
	}
	unit, err := svc.FindUnitByIMEI(ctx, "356915330000018")
	if err != nil {
		t.Fatalf("find unit: %v", err)
	}
	if unit.Status != domain.UnitSold {
		t.Fatalf("expected unit SOLD, got %s", unit.Status)
	}
}

func TestGSTSnapshotOnTransaction(t *testing.T) {
	svc := newTestServiceWithGST("18")

	resp, err := svc.CreateTransaction(cashierCtx(), phoneSale("356915330000018"))
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	tx := resp.Transaction
	mustEqualMoney(t, "tax rate", tx.TaxRatePercent, "18")
	mustEqualMoney(t, "tax", tx.TaxAmount, "4500")
	mustEqualMoney(t, "grand total", tx.GrandTotal, "29500")
}

func TestPercentDiscountAppliesBeforeTax(t *testing.T) {
	svc := newTestServiceWithGST("18")

	req := phoneSale("356915330000018")
	req.Discount = "10"
	req.DiscountType = domain.DiscountPercent
	resp, err := svc.CreateTransaction(cashierCtx(), req)
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	tx := resp.Transaction
	mustEqualMoney(t, "discount", tx.DiscountAmount, "2500")
	// Tax is computed on the discounted base: 18% of 22500.
	mustEqualMoney(t, "tax", tx.TaxAmount, "4050")
	mustEqualMoney(t, "grand total", tx.GrandTotal, "26550")
	mustEqualMoney(t, "profit", tx.ProfitAmount, "5000")
}

func TestAmountDiscountExceedingSubtotalRejected(t *testing.T) {
	svc := newTestService()

	req := phoneSale("356915330000018")
	req.Discount = "30000"
	_, err := svc.CreateTransaction(cashierCtx(), req)
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected invalid transaction error, got %v", err)
	}
}

func TestEmptyCartRejected(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateTransaction(cashierCtx(), domain.TransactionCreateRequest{})
	if !errors.Is(err, store.ErrEmptyCart) {
		t.Fatalf("expected empty cart error, got %v", err)
	}
}

func TestUnknownProductRejected(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateTransaction(cashierCtx(), domain.TransactionCreateRequest{
		CartItems: []domain.CartItem{{ProductID: "prod-nope", Quantity: 1}},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestInsufficientStockNamesProductAndCounts(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateTransaction(cashierCtx(), domain.TransactionCreateRequest{
		CartItems: []domain.CartItem{{ProductID: "prod-charger-20w", Quantity: 11}},
	})
	var stockErr *store.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}
	if stockErr.Available != 10 || stockErr.Requested != 11 {
		t.Fatalf("unexpected counts: available %d requested %d", stockErr.Available, stockErr.Requested)
	}
}

func TestSerializedLineRequiresIMEI(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateTransaction(cashierCtx(), domain.TransactionCreateRequest{
		CartItems: []domain.CartItem{{ProductID: "prod-a15", Quantity: 1}},
	})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected invalid transaction error, got %v", err)
	}
}

func TestAccessoryLineRejectsIMEI(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateTransaction(cashierCtx(), domain.TransactionCreateRequest{
		CartItems: []domain.CartItem{{ProductID: "prod-case-01", IMEISold: "356915330000018", Quantity: 1}},
	})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected invalid transaction error, got %v", err)
	}
}

func TestDraftLeavesStockAndUnitsUntouched(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	req := phoneSale("356915330000018")
	req.IsDraft = true
	resp, err := svc.CreateTransaction(ctx, req)
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	if resp.Transaction.PaymentStatus != domain.PaymentPending {
		t.Fatalf("expected PENDING, got %s", resp.Transaction.PaymentStatus)
	}

	product, _ := svc.GetProduct(ctx, "prod-a15")
	if product.CurrentStock != 2 {
		t.Fatalf("draft must not touch stock: got %d", product.CurrentStock)
	}
	unit, _ := svc.FindUnitByIMEI(ctx, "356915330000018")
	if unit.Status != domain.UnitAvailable {
		t.Fatalf("draft must not touch units: got %s", unit.Status)
	}

	completed, err := svc.CompleteDraftTransaction(ctx, resp.Transaction.ID)
	if err != nil {
		t.Fatalf("complete draft: %v", err)
	}
	if completed.Transaction.PaymentStatus != domain.PaymentPaid {
		t.Fatalf("expected PAID after completion, got %s", completed.Transaction.PaymentStatus)
	}
	if completed.Transaction.TransactionNumber != resp.Transaction.TransactionNumber {
		t.Fatalf("transaction number changed on completion")
	}
	product, _ = svc.GetProduct(ctx, "prod-a15")
	if product.CurrentStock != 1 {
		t.Fatalf("expected stock 1 after completion, got %d", product.CurrentStock)
	}
	unit, _ = svc.FindUnitByIMEI(ctx, "356915330000018")
	if unit.Status != domain.UnitSold {
		t.Fatalf("expected unit SOLD after completion, got %s", unit.Status)
	}
}

func TestDraftCompletionDetectsConsumedUnit(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	req := phoneSale("356915330000018")
	req.IsDraft = true
	draft, err := svc.CreateTransaction(ctx, req)
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	if _, err := svc.CreateTransaction(ctx, phoneSale("356915330000018")); err != nil {
		t.Fatalf("direct sale: %v", err)
	}

	_, err = svc.CompleteDraftTransaction(ctx, draft.Transaction.ID)
	var integrityErr *store.DraftIntegrityError
	if !errors.As(err, &integrityErr) {
		t.Fatalf("expected draft integrity error, got %v", err)
	}
}

func TestUpdateDraftRepricesAndKeepsNumber(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	req := phoneSale("356915330000018")
	req.IsDraft = true
	draft, err := svc.CreateTransaction(ctx, req)
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}

	updated, err := svc.UpdateDraftTransaction(ctx, draft.Transaction.ID, domain.TransactionUpdateRequest{
		CartItems: []domain.CartItem{{ProductID: "prod-case-01", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("update draft: %v", err)
	}
	if updated.Transaction.TransactionNumber != draft.Transaction.TransactionNumber {
		t.Fatalf("transaction number changed on update")
	}
	if !updated.Transaction.IsDraft {
		t.Fatalf("update must keep the transaction a draft")
	}
	mustEqualMoney(t, "subtotal", updated.Transaction.Subtotal, "300")
	mustEqualMoney(t, "profit", updated.Transaction.ProfitAmount, "140")
	if len(updated.Items) != 1 || updated.Items[0].ProductID != "prod-case-01" {
		t.Fatalf("expected replaced line items, got %+v", updated.Items)
	}
}

func TestUpdateCompletedTransactionRejected(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	sale, err := svc.CreateTransaction(ctx, phoneSale("356915330000018"))
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	_, err = svc.UpdateDraftTransaction(ctx, sale.Transaction.ID, domain.TransactionUpdateRequest{
		CartItems: []domain.CartItem{{ProductID: "prod-case-01", Quantity: 1}},
	})
	if !errors.Is(err, store.ErrDraftRequired) {
		t.Fatalf("expected draft required error, got %v", err)
	}
}

func TestTransactionNumbersFollowYearSequence(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	first, err := svc.CreateTransaction(ctx, phoneSale("356915330000018"))
	if err != nil {
		t.Fatalf("first sale: %v", err)
	}
	second, err := svc.CreateTransaction(ctx, domain.TransactionCreateRequest{
		CartItems: []domain.CartItem{{ProductID: "prod-case-01", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("second sale: %v", err)
	}

	prefix := fmt.Sprintf("TXN-%d-", time.Now().UTC().Year())
	if !strings.HasPrefix(first.Transaction.TransactionNumber, prefix) {
		t.Fatalf("unexpected number %s", first.Transaction.TransactionNumber)
	}
	if first.Transaction.TransactionNumber == second.Transaction.TransactionNumber {
		t.Fatalf("duplicate transaction numbers")
	}
	if len(first.Transaction.TransactionNumber) < len(prefix)+3 {
		t.Fatalf("sequence is not zero padded: %s", first.Transaction.TransactionNumber)
	}
}

func TestReceiveUnitsWarnsOnTACMismatch(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	resp, err := svc.ReceiveUnits(ctx, domain.UnitReceiveRequest{
		ProductID: "prod-a15",
		Units: []domain.UnitIntake{
			{IMEINumber: "862222040000017", IMEI2Number: "123456780000002"},
		},
	})
	if err != nil {
		t.Fatalf("receive units: %v", err)
	}
	if len(resp.UnitIDs) != 1 {
		t.Fatalf("expected 1 unit id, got %d", len(resp.UnitIDs))
	}
	if len(resp.Warnings) != 1 {
		t.Fatalf("expected a TAC warning, got %v", resp.Warnings)
	}

	product, _ := svc.GetProduct(ctx, "prod-a15")
	if product.CurrentStock != 3 {
		t.Fatalf("expected stock 3 after intake, got %d", product.CurrentStock)
	}
}

func TestReceiveUnitsRejectsBadChecksum(t *testing.T) {
	svc := newTestService()

	_, err := svc.ReceiveUnits(adminCtx(), domain.UnitReceiveRequest{
		ProductID: "prod-a15",
		Units:     []domain.UnitIntake{{IMEINumber: "111111111111111"}},
	})
	if err == nil {
		t.Fatalf("expected checksum rejection")
	}
}

func TestReceiveUnitsRejectsAccessory(t *testing.T) {
	svc := newTestService()

	_, err := svc.ReceiveUnits(adminCtx(), domain.UnitReceiveRequest{
		ProductID: "prod-case-01",
		Units:     []domain.UnitIntake{{IMEINumber: "862222040000017"}},
	})
	if err == nil {
		t.Fatalf("expected rejection for non-serialized category")
	}
}

func TestCreateProductRequiresAdmin(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateProduct(cashierCtx(), domain.ProductCreateRequest{
		Name: "Pixel 8a", Category: domain.CategoryPhone, CostPrice: "30000", SellingPrice: "36000",
	})
	if err == nil || !strings.Contains(err.Error(), "admin role required") {
		t.Fatalf("expected admin gate, got %v", err)
	}
}

func TestAdjustStockAccessoryOnly(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	product, err := svc.AdjustStock(ctx, "prod-case-01", domain.StockAdjustRequest{Quantity: 5, Reason: "delivery"})
	if err != nil {
		t.Fatalf("adjust stock: %v", err)
	}
	if product.CurrentStock != 30 {
		t.Fatalf("expected stock 30, got %d", product.CurrentStock)
	}

	if _, err := svc.AdjustStock(ctx, "prod-a15", domain.StockAdjustRequest{Quantity: 5}); err == nil {
		t.Fatalf("expected rejection for serialized product")
	}
}

func TestDailyReportAggregatesCompletedSales(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	if _, err := svc.CreateTransaction(ctx, phoneSale("356915330000018")); err != nil {
		t.Fatalf("sale: %v", err)
	}
	draft := phoneSale("356915330000109")
	draft.IsDraft = true
	if _, err := svc.CreateTransaction(ctx, draft); err != nil {
		t.Fatalf("draft: %v", err)
	}

	report, err := svc.DailyReport(ctx, time.Now().UTC().Format("2006-01-02"))
	if err != nil {
		t.Fatalf("daily report: %v", err)
	}
	if report.Transactions != 1 {
		t.Fatalf("drafts must not count: got %d", report.Transactions)
	}
	mustEqualMoney(t, "gross sales", report.GrossSales, "25000")
	mustEqualMoney(t, "profit", report.ProfitTotal, "5000")
}

type reportCacheStub struct {
	stored map[string]*domain.DailyReport
	getErr error
	setErr error
	gets   int
	sets   int
}

func (c *reportCacheStub) Get(_ context.Context, key string) (*domain.DailyReport, bool, error) {
	c.gets++
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.stored[key]
	return v, ok, nil
}

func (c *reportCacheStub) Set(_ context.Context, key string, value *domain.DailyReport, _ time.Duration) error {
	c.sets++
	if c.setErr != nil {
		return c.setErr
	}
	c.stored[key] = value
	return nil
}

func TestDailyReportSecondReadServedFromCache(t *testing.T) {
	reports := &reportCacheStub{stored: make(map[string]*domain.DailyReport)}
	svc := New(memory.NewSeeded(), StaticSettings{}, reports, nil, time.Minute)
	ctx := cashierCtx()

	if _, err := svc.CreateTransaction(ctx, phoneSale("356915330000018")); err != nil {
		t.Fatalf("sale: %v", err)
	}

	date := time.Now().UTC().Format("2006-01-02")
	first, err := svc.DailyReport(ctx, date)
	if err != nil {
		t.Fatalf("first report: %v", err)
	}
	second, err := svc.DailyReport(ctx, date)
	if err != nil {
		t.Fatalf("second report: %v", err)
	}

	if reports.gets != 2 || reports.sets != 1 {
		t.Fatalf("expected 2 cache reads and 1 write, got %d/%d", reports.gets, reports.sets)
	}
	mustEqualMoney(t, "cached gross sales", second.GrossSales, first.GrossSales.String())
}

func TestDailyReportSurvivesCacheFailure(t *testing.T) {
	reports := &reportCacheStub{
		stored: make(map[string]*domain.DailyReport),
		getErr: errors.New("redis gone"),
		setErr: errors.New("redis gone"),
	}
	svc := New(memory.NewSeeded(), StaticSettings{}, reports, nil, time.Minute)
	ctx := cashierCtx()

	if _, err := svc.CreateTransaction(ctx, phoneSale("356915330000018")); err != nil {
		t.Fatalf("sale: %v", err)
	}

	report, err := svc.DailyReport(ctx, time.Now().UTC().Format("2006-01-02"))
	if err != nil {
		t.Fatalf("report must fall back to the store on cache trouble: %v", err)
	}
	if report.Transactions != 1 {
		t.Fatalf("expected 1 transaction, got %d", report.Transactions)
	}
	mustEqualMoney(t, "gross sales", report.GrossSales, "25000")
}

func TestCleanupOldDraftsLeavesRecentOnes(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	req := phoneSale("356915330000018")
	req.IsDraft = true
	if _, err := svc.CreateTransaction(ctx, req); err != nil {
		t.Fatalf("create draft: %v", err)
	}

	removed, err := svc.CleanupOldDrafts(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 0 {
		t.Fatalf("fresh draft must survive cleanup, removed=%d", removed)
	}
	drafts, _ := svc.ListDraftTransactions(ctx)
	if len(drafts) != 1 {
		t.Fatalf("expected 1 draft, got %d", len(drafts))
	}
}

func TestBuildReceiptForCompletedSale(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	sale, err := svc.CreateTransaction(ctx, phoneSale("356915330000018"))
	if err != nil {
		t.Fatalf("sale: %v", err)
	}
	receipt, err := svc.BuildReceipt(ctx, sale.Transaction.ID)
	if err != nil {
		t.Fatalf("build receipt: %v", err)
	}
	if !strings.Contains(receipt.PreviewText, sale.Transaction.TransactionNumber) {
		t.Fatalf("receipt is missing the transaction number")
	}
	if !strings.Contains(receipt.PreviewText, "25000.00") {
		t.Fatalf("receipt is missing the total:\n%s", receipt.PreviewText)
	}
	if !strings.Contains(receipt.PreviewText, "356915330000018") {
		t.Fatalf("receipt is missing the IMEI")
	}
}

func TestBuildReceiptRejectsDraft(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	req := phoneSale("356915330000018")
	req.IsDraft = true
	draft, err := svc.CreateTransaction(ctx, req)
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	if _, err := svc.BuildReceipt(ctx, draft.Transaction.ID); !errors.Is(err, store.ErrDraftRequired) {
		t.Fatalf("expected draft rejection, got %v", err)
	}
}

func TestWatchDraftsEmitsOnChange(t *testing.T) {
	svc := newTestService()
	ctx, cancel := context.WithCancel(cashierCtx())
	defer cancel()

	updates, err := svc.WatchDraftTransactions(ctx)
	if err != nil {
		t.Fatalf("watch drafts: %v", err)
	}
	initial := <-updates
	if len(initial) != 0 {
		t.Fatalf("expected no drafts initially, got %d", len(initial))
	}

	req := phoneSale("356915330000018")
	req.IsDraft = true
	if _, err := svc.CreateTransaction(ctx, req); err != nil {
		t.Fatalf("create draft: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case drafts, ok := <-updates:
			if !ok {
				t.Fatalf("watch channel closed early")
			}
			if len(drafts) == 1 {
				return
			}
		case <-deadline:
			t.Fatalf("no draft update within deadline")
		}
	}
}
