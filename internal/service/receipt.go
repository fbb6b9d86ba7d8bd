package service

import (
	"context"
	"fmt"
	"strings"

	"kasirponsel/backend/internal/domain"
	"kasirponsel/backend/internal/store"
)

// BuildReceipt renders a plain-text receipt for a completed transaction.
// Drafts have nothing to hand the customer yet and are rejected.
func (s *Service) BuildReceipt(ctx context.Context, transactionID string) (*domain.ReceiptResponse, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, store.ErrInvalidTransaction
	}
	tx, err := s.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if tx.IsDraft {
		return nil, store.ErrDraftRequired
	}
	items, err := s.repo.ListTransactionItems(ctx, tx.ID)
	if err != nil {
		return nil, err
	}

	lines := []string{
		"KasirPonsel",
		"========================",
		"No   : " + tx.TransactionNumber,
		"Date : " + tx.TransactionDate.Format("2006-01-02 15:04:05"),
	}
	if tx.CustomerName != "" {
		lines = append(lines, "Cust : "+tx.CustomerName)
	}
	lines = append(lines, "------------------------")
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("%s x%d", item.ProductName, item.Quantity))
		if item.IMEISold != "" {
			lines = append(lines, "  IMEI "+item.IMEISold)
		}
		lines = append(lines, "  "+item.LineTotal.StringFixed(2))
	}
	lines = append(lines,
		"------------------------",
		"Subtotal : "+tx.Subtotal.StringFixed(2),
	)
	if tx.DiscountAmount.IsPositive() {
		lines = append(lines, "Diskon   : "+tx.DiscountAmount.StringFixed(2))
	}
	if tx.TaxAmount.IsPositive() {
		lines = append(lines, fmt.Sprintf("GST %s%% : %s", tx.TaxRatePercent.String(), tx.TaxAmount.StringFixed(2)))
	}
	lines = append(lines,
		"Total    : "+tx.GrandTotal.StringFixed(2),
		"Bayar    : "+tx.PaymentMethod,
		"========================",
		"Terima kasih",
		"",
	)

	return &domain.ReceiptResponse{
		TransactionID: tx.ID,
		PreviewText:   strings.Join(lines, "\n"),
		FileName:      fmt.Sprintf("receipt-%s.txt", tx.TransactionNumber),
	}, nil
}
