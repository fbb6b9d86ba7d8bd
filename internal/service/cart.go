package service

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"kasirponsel/backend/internal/domain"
	"kasirponsel/backend/internal/money"
	"kasirponsel/backend/internal/store"
)

// BuildLineItems turns cart entries into priced transaction lines. It is a
// pure computation over the supplied catalog snapshot: no stock is touched
// and no identifiers are allocated here. Cart entries may override the
// catalog cost and price per line; blank overrides fall back to the catalog.
func BuildLineItems(catalog map[string]domain.Product, items []domain.CartItem) ([]domain.TransactionItem, error) {
	if len(items) == 0 {
		return nil, store.ErrEmptyCart
	}

	lines := make([]domain.TransactionItem, 0, len(items))
	for i, item := range items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			return nil, fmt.Errorf("cart line %d: product id is required: %w", i+1, store.ErrInvalidTransaction)
		}
		product, ok := catalog[productID]
		if !ok {
			return nil, fmt.Errorf("product %s: %w", productID, store.ErrNotFound)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("cart line %d: quantity must be positive: %w", i+1, store.ErrInvalidTransaction)
		}

		unitCost, err := overrideOrDefault(item.UnitCost, product.CostPrice)
		if err != nil {
			return nil, fmt.Errorf("cart line %d: unit cost: %w", i+1, err)
		}
		unitPrice, err := overrideOrDefault(item.UnitPrice, product.SellingPrice)
		if err != nil {
			return nil, fmt.Errorf("cart line %d: unit price: %w", i+1, err)
		}

		lines = append(lines, domain.TransactionItem{
			ProductID:    product.ID,
			ProductName:  product.Name,
			Quantity:     item.Quantity,
			UnitCost:     unitCost,
			UnitPrice:    unitPrice,
			IMEISold:     strings.TrimSpace(item.IMEISold),
			SerialNumber: strings.TrimSpace(item.SerialNumber),
			LineTotal:    money.LineTotal(unitPrice, item.Quantity),
			LineProfit:   money.LineProfit(unitPrice, unitCost, item.Quantity),
		})
	}
	return lines, nil
}

func overrideOrDefault(raw string, fallback decimal.Decimal) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	return money.ParseNonNegative(raw)
}

// totals holds the ordered monetary computation for one transaction.
type totals struct {
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxableAmount  decimal.Decimal
	TaxRatePercent decimal.Decimal
	TaxAmount      decimal.Decimal
	GrandTotal     decimal.Decimal
	ProfitAmount   decimal.Decimal
}

// computeTotals runs the fixed order: subtotal, discount, taxable, tax,
// grand total, profit. The tax rate passed in is the rate snapshotted onto
// the transaction; pass zero when tax collection is off.
func computeTotals(lines []domain.TransactionItem, discountType domain.DiscountType, discountInput string, taxRate decimal.Decimal) (totals, error) {
	var t totals
	t.Subtotal = money.Zero()
	t.ProfitAmount = money.Zero()
	for _, line := range lines {
		t.Subtotal = t.Subtotal.Add(line.LineTotal)
		t.ProfitAmount = t.ProfitAmount.Add(line.LineProfit)
	}

	discountValue := money.Zero()
	if strings.TrimSpace(discountInput) != "" {
		parsed, err := money.ParseNonNegative(discountInput)
		if err != nil {
			return totals{}, fmt.Errorf("discount: %w", err)
		}
		discountValue = parsed
	}

	switch discountType {
	case domain.DiscountAmount, "":
		t.DiscountAmount = money.Round2(discountValue)
	case domain.DiscountPercent:
		if discountValue.GreaterThan(decimal.NewFromInt(100)) {
			return totals{}, fmt.Errorf("percent discount cannot exceed 100: %w", store.ErrInvalidTransaction)
		}
		t.DiscountAmount = money.Percent(t.Subtotal, discountValue)
	default:
		return totals{}, fmt.Errorf("unknown discount type %q: %w", discountType, store.ErrInvalidTransaction)
	}

	if t.DiscountAmount.GreaterThan(t.Subtotal) {
		return totals{}, fmt.Errorf("discount %s exceeds subtotal %s: %w", t.DiscountAmount.StringFixed(2), t.Subtotal.StringFixed(2), store.ErrInvalidTransaction)
	}

	t.TaxableAmount = t.Subtotal.Sub(t.DiscountAmount)
	t.TaxRatePercent = taxRate
	t.TaxAmount = money.Percent(t.TaxableAmount, taxRate)
	t.GrandTotal = t.TaxableAmount.Add(t.TaxAmount)
	return t, nil
}
