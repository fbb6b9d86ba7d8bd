package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kasirponsel/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrDraftRequired      = errors.New("transaction is not a draft")
	ErrAlreadyCompleted   = errors.New("transaction already completed")
)

// InsufficientStockError names the product and the available-vs-requested
// counts so the UI can show an actionable message. It is also returned when
// the atomic decrement inside a unit of work loses a race, after the
// pre-check passed.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d", e.ProductName, e.Available, e.Requested)
}

// DuplicateIMEIError reports which existing unit already carries the IMEI.
type DuplicateIMEIError struct {
	IMEI        string
	ProductID   string
	ProductName string
}

func (e *DuplicateIMEIError) Error() string {
	if e.ProductName != "" {
		return fmt.Sprintf("IMEI %s already registered to %s", e.IMEI, e.ProductName)
	}
	return fmt.Sprintf("IMEI %s already registered", e.IMEI)
}

// InvalidStatusTransitionError rejects illegal unit lifecycle moves.
type InvalidStatusTransitionError struct {
	From domain.UnitStatus
	To   domain.UnitStatus
}

func (e *InvalidStatusTransitionError) Error() string {
	return fmt.Sprintf("illegal unit status transition %s -> %s", e.From, e.To)
}

// DraftIntegrityError marks a draft whose line items no longer hold up at
// completion time (product deactivated, unit already consumed). It is
// distinct from the validation errors so callers can tell the user the draft
// needs review rather than showing a generic failure.
type DraftIntegrityError struct {
	TransactionID string
	Reason        string
}

func (e *DraftIntegrityError) Error() string {
	return fmt.Sprintf("draft %s needs review: %s", e.TransactionID, e.Reason)
}

// LegalUnitTransition reports whether a unit may move from one status to
// another. AVAILABLE fans out; RESERVED can be released or sold; SOLD only
// comes back as RETURNED (a correction, not a resale); RETURNED and DAMAGED
// can be restored to AVAILABLE after inspection.
func LegalUnitTransition(from, to domain.UnitStatus) bool {
	if from == to {
		return false
	}
	switch from {
	case domain.UnitAvailable:
		return to == domain.UnitSold || to == domain.UnitReserved || to == domain.UnitDamaged || to == domain.UnitReturned
	case domain.UnitReserved:
		return to == domain.UnitAvailable || to == domain.UnitSold
	case domain.UnitSold:
		return to == domain.UnitReturned
	case domain.UnitDamaged, domain.UnitReturned:
		return to == domain.UnitAvailable
	default:
		return false
	}
}

// Repository is the persistence contract. Implementations must make every
// multi-step write atomic: CreateTransaction, CompleteDraft, UpdateDraft and
// InsertUnits either apply all of their effects or none of them, and the
// stock check is part of the same unit of work as the decrement.
type Repository interface {
	// Products.
	ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	// Serialized units.
	FindUnitByIMEI(ctx context.Context, imei string) (*domain.ProductIMEI, error)
	ListUnitsByProduct(ctx context.Context, productID string) ([]domain.ProductIMEI, error)
	InsertUnits(ctx context.Context, units []domain.ProductIMEI) ([]string, error)
	SetUnitStatus(ctx context.Context, unitID string, status domain.UnitStatus) (*domain.ProductIMEI, error)
	CountUnitsByStatus(ctx context.Context, productID string, status domain.UnitStatus) (int, error)
	DeleteUnit(ctx context.Context, unitID string) error

	// Stock ledger.
	ReduceStock(ctx context.Context, productID string, quantity int) error
	IncreaseStock(ctx context.Context, productID string, quantity int) error
	ReconcileStock(ctx context.Context, productID string) (*domain.StockReconcileResponse, error)

	// Transaction unit of work. CreateTransaction allocates the transaction
	// number, persists the header and items, and, when the transaction is not
	// a draft, decrements stock and flips the consumed units to SOLD in the
	// same atomic step.
	CreateTransaction(ctx context.Context, tx domain.Transaction, items []domain.TransactionItem) (*domain.Transaction, error)
	CompleteDraft(ctx context.Context, transactionID string, at time.Time) (*domain.Transaction, error)
	UpdateDraft(ctx context.Context, tx domain.Transaction, items []domain.TransactionItem) (*domain.Transaction, error)
	DeleteDraft(ctx context.Context, transactionID string) error
	CleanupOldDrafts(ctx context.Context, olderThan time.Time) (int, error)

	// Transaction reads.
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	GetTransactionByNumber(ctx context.Context, number string) (*domain.Transaction, error)
	ListCompletedTransactions(ctx context.Context, limit int) ([]domain.Transaction, error)
	ListDraftTransactions(ctx context.Context) ([]domain.Transaction, error)
	ListTransactionsByDateRange(ctx context.Context, from time.Time, to time.Time) ([]domain.Transaction, error)
	ListTransactionItems(ctx context.Context, transactionID string) ([]domain.TransactionItem, error)
	MarkReceiptPrinted(ctx context.Context, transactionID string) error

	// Reporting.
	GetDailyReport(ctx context.Context, day time.Time) (domain.DailyReport, error)

	// Audit trail.
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	// Auth credentials.
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
