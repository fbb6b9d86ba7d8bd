package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"kasirponsel/backend/internal/domain"
	"kasirponsel/backend/internal/store"
)

func TestCompletedSaleDecrementsStockAndFlipsUnit(t *testing.T) {
	databaseURL := os.Getenv("KASIRPONSEL_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set KASIRPONSEL_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prod-it-%d", stamp)
	// Deterministic Luhn-valid IMEI is fine here: uniqueness is what matters,
	// and the store layer does not re-validate checksums.
	imei := fmt.Sprintf("%014d", stamp%100000000000000)[:14] + "0"

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transaction_items WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id IN (SELECT DISTINCT transaction_id FROM transaction_items WHERE product_id = $1)`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM product_imeis WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	cost := decimal.RequireFromString("20000")
	price := decimal.RequireFromString("25000")
	if _, err := s.CreateProduct(ctx, domain.Product{
		ID: productID, Name: "Integration Phone", Brand: "Test", Model: "IT-1",
		Category: domain.CategoryPhone, CostPrice: cost, SellingPrice: price, MinStockLevel: 1,
	}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	if _, err := s.InsertUnits(ctx, []domain.ProductIMEI{
		{ProductID: productID, IMEINumber: imei, PurchasePrice: cost},
	}); err != nil {
		t.Fatalf("insert unit: %v", err)
	}

	tx, err := s.CreateTransaction(ctx, domain.Transaction{
		PaymentMethod:  "cash",
		DiscountType:   domain.DiscountAmount,
		Subtotal:       price,
		GrandTotal:     price,
		ProfitAmount:   price.Sub(cost),
		TaxRatePercent: decimal.Zero,
	}, []domain.TransactionItem{{
		ProductID:   productID,
		ProductName: "Integration Phone",
		IMEISold:    imei,
		Quantity:    1,
		UnitCost:    cost,
		UnitPrice:   price,
		LineTotal:   price,
		LineProfit:  price.Sub(cost),
	}})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	if tx.TransactionNumber == "" {
		t.Fatalf("expected a transaction number")
	}

	p, err := s.GetProduct(ctx, productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if p.CurrentStock != 0 {
		t.Fatalf("expected stock 0 after sale, got %d", p.CurrentStock)
	}

	unit, err := s.FindUnitByIMEI(ctx, imei)
	if err != nil {
		t.Fatalf("find unit: %v", err)
	}
	if unit.Status != domain.UnitSold {
		t.Fatalf("expected unit SOLD, got %s", unit.Status)
	}

	// The same unit cannot sell twice.
	_, err = s.CreateTransaction(ctx, domain.Transaction{PaymentMethod: "cash"}, []domain.TransactionItem{{
		ProductID: productID, ProductName: "Integration Phone", IMEISold: imei,
		Quantity: 1, UnitCost: cost, UnitPrice: price, LineTotal: price, LineProfit: price.Sub(cost),
	}})
	var stockErr *store.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError on second sale, got %v", err)
	}
}

func TestSchemaBootstrapIsIdempotent(t *testing.T) {
	databaseURL := os.Getenv("KASIRPONSEL_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set KASIRPONSEL_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	first, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Re-running the DDL against an already-provisioned database must be a no-op.
	second, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	t.Cleanup(func() {
		_ = second.Close()
	})

	if _, err := second.ListProducts(ctx, true); err != nil {
		t.Fatalf("query after bootstrap: %v", err)
	}
}

func TestFailedDraftCompletionRollsBack(t *testing.T) {
	databaseURL := os.Getenv("KASIRPONSEL_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set KASIRPONSEL_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prod-rb-%d", stamp)
	imei := fmt.Sprintf("%014d", stamp%100000000000000)[:14] + "3"

	var createdTxIDs []string
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transaction_items WHERE product_id = $1`, productID)
		for _, id := range createdTxIDs {
			_, _ = s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id)
		}
		_, _ = s.db.ExecContext(ctx, `DELETE FROM product_imeis WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	cost := decimal.RequireFromString("20000")
	price := decimal.RequireFromString("25000")
	if _, err := s.CreateProduct(ctx, domain.Product{
		ID: productID, Name: "Rollback Phone", Brand: "Test", Model: "RB-1",
		Category: domain.CategoryPhone, CostPrice: cost, SellingPrice: price, MinStockLevel: 1,
	}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	if _, err := s.InsertUnits(ctx, []domain.ProductIMEI{
		{ProductID: productID, IMEINumber: imei, PurchasePrice: cost},
	}); err != nil {
		t.Fatalf("insert unit: %v", err)
	}

	line := domain.TransactionItem{
		ProductID: productID, ProductName: "Rollback Phone", IMEISold: imei,
		Quantity: 1, UnitCost: cost, UnitPrice: price, LineTotal: price, LineProfit: price.Sub(cost),
	}
	draft, err := s.CreateTransaction(ctx, domain.Transaction{
		PaymentMethod: "cash", DiscountType: domain.DiscountAmount, IsDraft: true,
		Subtotal: price, GrandTotal: price, ProfitAmount: price.Sub(cost), TaxRatePercent: decimal.Zero,
	}, []domain.TransactionItem{line})
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	createdTxIDs = append(createdTxIDs, draft.ID)

	// The unit the draft counts on sells directly before completion.
	sale, err := s.CreateTransaction(ctx, domain.Transaction{
		PaymentMethod: "cash", DiscountType: domain.DiscountAmount,
		Subtotal: price, GrandTotal: price, ProfitAmount: price.Sub(cost), TaxRatePercent: decimal.Zero,
	}, []domain.TransactionItem{line})
	if err != nil {
		t.Fatalf("direct sale: %v", err)
	}
	createdTxIDs = append(createdTxIDs, sale.ID)

	_, err = s.CompleteDraft(ctx, draft.ID, time.Now().UTC())
	var integrityErr *store.DraftIntegrityError
	if !errors.As(err, &integrityErr) {
		t.Fatalf("expected draft integrity error, got %v", err)
	}

	got, err := s.GetTransaction(ctx, draft.ID)
	if err != nil {
		t.Fatalf("get draft: %v", err)
	}
	if !got.IsDraft {
		t.Fatalf("failed completion must leave the draft a draft")
	}
	p, err := s.GetProduct(ctx, productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if p.CurrentStock != 0 {
		t.Fatalf("only the direct sale may decrement stock, got %d", p.CurrentStock)
	}
}
