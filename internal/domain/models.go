package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category classifies catalog entries. Serialized categories carry one
// ProductIMEI record per physical unit; accessories track stock as a bare
// counter.
type Category string

const (
	CategoryPhone     Category = "phone"
	CategoryTablet    Category = "tablet"
	CategoryLaptop    Category = "laptop"
	CategoryTV        Category = "tv"
	CategoryAccessory Category = "accessory"
)

// IMEITracked reports whether products of this category are serialized, i.e.
// their current stock must equal the count of AVAILABLE units.
func (c Category) IMEITracked() bool {
	switch c {
	case CategoryPhone, CategoryTablet, CategoryLaptop, CategoryTV:
		return true
	default:
		return false
	}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryPhone, CategoryTablet, CategoryLaptop, CategoryTV, CategoryAccessory:
		return true
	default:
		return false
	}
}

type Product struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Brand         string          `json:"brand"`
	Model         string          `json:"model"`
	Color         string          `json:"color,omitempty"`
	Variant       string          `json:"variant,omitempty"`
	Category      Category        `json:"category"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
	CurrentStock  int             `json:"current_stock"`
	MinStockLevel int             `json:"min_stock_level"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type ProductCreateRequest struct {
	Name          string   `json:"name"`
	Brand         string   `json:"brand"`
	Model         string   `json:"model"`
	Color         string   `json:"color"`
	Variant       string   `json:"variant"`
	Category      Category `json:"category"`
	CostPrice     string   `json:"cost_price"`
	SellingPrice  string   `json:"selling_price"`
	MinStockLevel int      `json:"min_stock_level"`
	InitialStock  int      `json:"initial_stock"`
}

type ProductUpdateRequest struct {
	Name          *string `json:"name,omitempty"`
	Brand         *string `json:"brand,omitempty"`
	Model         *string `json:"model,omitempty"`
	Color         *string `json:"color,omitempty"`
	Variant       *string `json:"variant,omitempty"`
	CostPrice     *string `json:"cost_price,omitempty"`
	SellingPrice  *string `json:"selling_price,omitempty"`
	MinStockLevel *int    `json:"min_stock_level,omitempty"`
	IsActive      *bool   `json:"is_active,omitempty"`
}

// UnitStatus is the lifecycle state of one serialized unit.
type UnitStatus string

const (
	UnitAvailable UnitStatus = "AVAILABLE"
	UnitSold      UnitStatus = "SOLD"
	UnitReserved  UnitStatus = "RESERVED"
	UnitDamaged   UnitStatus = "DAMAGED"
	UnitReturned  UnitStatus = "RETURNED"
)

// Valid reports whether s is a known unit status.
func (s UnitStatus) Valid() bool {
	switch s {
	case UnitAvailable, UnitSold, UnitReserved, UnitDamaged, UnitReturned:
		return true
	default:
		return false
	}
}

// ProductIMEI is one physical serialized unit. IMEINumber is unique among
// units regardless of which product owns them; IMEI2Number, when present, is
// unique too.
type ProductIMEI struct {
	ID             string          `json:"id"`
	ProductID      string          `json:"product_id"`
	IMEINumber     string          `json:"imei_number"`
	IMEI2Number    string          `json:"imei2_number,omitempty"`
	SerialNumber   string          `json:"serial_number,omitempty"`
	Status         UnitStatus      `json:"status"`
	PurchasePrice  decimal.Decimal `json:"purchase_price"`
	BoxNumber      string          `json:"box_number,omitempty"`
	WarrantyMonths int             `json:"warranty_months,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type UnitIntake struct {
	IMEINumber     string `json:"imei_number"`
	IMEI2Number    string `json:"imei2_number,omitempty"`
	SerialNumber   string `json:"serial_number,omitempty"`
	PurchasePrice  string `json:"purchase_price,omitempty"`
	BoxNumber      string `json:"box_number,omitempty"`
	WarrantyMonths int    `json:"warranty_months,omitempty"`
}

type UnitReceiveRequest struct {
	ProductID string       `json:"product_id"`
	Units     []UnitIntake `json:"units"`
}

type UnitReceiveResponse struct {
	UnitIDs  []string `json:"unit_ids"`
	Warnings []string `json:"warnings,omitempty"`
}

type UnitStatusRequest struct {
	Status UnitStatus `json:"status"`
	Reason string     `json:"reason,omitempty"`
}

// DiscountType selects how the discount input on a transaction is read:
// a flat amount or a percentage of the subtotal.
type DiscountType string

const (
	DiscountAmount  DiscountType = "AMOUNT"
	DiscountPercent DiscountType = "PERCENT"
)

func (d DiscountType) Valid() bool {
	return d == DiscountAmount || d == DiscountPercent
}

// PaymentStatus tracks whether a transaction has been settled. Drafts stay
// PENDING; completion flips to PAID.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
)

type Transaction struct {
	ID                string          `json:"id"`
	TransactionNumber string          `json:"transaction_number"`
	CustomerName      string          `json:"customer_name,omitempty"`
	CustomerPhone     string          `json:"customer_phone,omitempty"`
	TransactionDate   time.Time       `json:"transaction_date"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	DiscountAmount    decimal.Decimal `json:"discount_amount"`
	DiscountType      DiscountType    `json:"discount_type"`
	TaxRatePercent    decimal.Decimal `json:"tax_rate_percent"`
	TaxAmount         decimal.Decimal `json:"tax_amount"`
	GrandTotal        decimal.Decimal `json:"grand_total"`
	ProfitAmount      decimal.Decimal `json:"profit_amount"`
	PaymentMethod     string          `json:"payment_method"`
	PaymentStatus     PaymentStatus   `json:"payment_status"`
	IsDraft           bool            `json:"is_draft"`
	ReceiptPrinted    bool            `json:"receipt_printed"`
	Notes             string          `json:"notes,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// TransactionItem is one line of a transaction. ProductName, UnitCost and
// UnitPrice are snapshots taken at sale time so that later catalog edits do
// not rewrite history. IMEISold is empty for non-serialized goods.
type TransactionItem struct {
	ID            string          `json:"id"`
	TransactionID string          `json:"transaction_id"`
	ProductID     string          `json:"product_id"`
	ProductName   string          `json:"product_name"`
	IMEISold      string          `json:"imei_sold,omitempty"`
	SerialNumber  string          `json:"serial_number,omitempty"`
	Quantity      int             `json:"quantity"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	LineTotal     decimal.Decimal `json:"line_total"`
	LineProfit    decimal.Decimal `json:"line_profit"`
}

// CartItem is the request shape for one candidate line. Prices come in as
// strings and are parsed into decimals; when omitted they default to the
// catalog prices of the referenced product.
type CartItem struct {
	ProductID    string `json:"product_id"`
	IMEISold     string `json:"imei_sold,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Quantity     int    `json:"quantity"`
	UnitCost     string `json:"unit_cost,omitempty"`
	UnitPrice    string `json:"unit_price,omitempty"`
}

type TransactionCreateRequest struct {
	CustomerName  string       `json:"customer_name,omitempty"`
	CustomerPhone string       `json:"customer_phone,omitempty"`
	CartItems     []CartItem   `json:"cart_items"`
	Discount      string       `json:"discount,omitempty"`
	DiscountType  DiscountType `json:"discount_type,omitempty"`
	PaymentMethod string       `json:"payment_method,omitempty"`
	Notes         string       `json:"notes,omitempty"`
	IsDraft       bool         `json:"is_draft"`
}

type TransactionUpdateRequest struct {
	CustomerName  string       `json:"customer_name,omitempty"`
	CustomerPhone string       `json:"customer_phone,omitempty"`
	CartItems     []CartItem   `json:"cart_items"`
	Discount      string       `json:"discount,omitempty"`
	DiscountType  DiscountType `json:"discount_type,omitempty"`
	PaymentMethod string       `json:"payment_method,omitempty"`
	Notes         string       `json:"notes,omitempty"`
}

type TransactionResponse struct {
	Transaction Transaction       `json:"transaction"`
	Items       []TransactionItem `json:"items,omitempty"`
}

type TransactionListResponse struct {
	Items []Transaction `json:"items"`
}

type StockAdjustRequest struct {
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason,omitempty"`
}

type StockReconcileResponse struct {
	ProductID     string `json:"product_id"`
	PreviousStock int    `json:"previous_stock"`
	CurrentStock  int    `json:"current_stock"`
}

type DailyReportPayment struct {
	PaymentMethod string          `json:"payment_method"`
	Transactions  int64           `json:"transactions"`
	Total         decimal.Decimal `json:"total"`
}

type DailyReport struct {
	Date          string               `json:"date"`
	Transactions  int64                `json:"transactions"`
	GrossSales    decimal.Decimal      `json:"gross_sales"`
	DiscountTotal decimal.Decimal      `json:"discount_total"`
	TaxTotal      decimal.Decimal      `json:"tax_total"`
	NetSales      decimal.Decimal      `json:"net_sales"`
	ProfitTotal   decimal.Decimal      `json:"profit_total"`
	ByPayment     []DailyReportPayment `json:"by_payment"`
}

type RestockSuggestion struct {
	ProductID      string   `json:"product_id"`
	Name           string   `json:"name"`
	Category       Category `json:"category"`
	CurrentStock   int      `json:"current_stock"`
	MinStockLevel  int      `json:"min_stock_level"`
	SoldLast30Days int      `json:"sold_last_30_days"`
	SuggestedQty   int      `json:"suggested_qty"`
}

type RestockSuggestionResponse struct {
	GeneratedAt string              `json:"generated_at"`
	Suggestions []RestockSuggestion `json:"suggestions"`
}

type ReceiptResponse struct {
	TransactionID string `json:"transaction_id"`
	PreviewText   string `json:"preview_text"`
	FileName      string `json:"file_name"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

// ChangeEvent is broadcast to watchers whenever the engine commits a
// mutation. Topic names the affected collection.
type ChangeEvent struct {
	Topic    string    `json:"topic"`
	EntityID string    `json:"entity_id,omitempty"`
	At       time.Time `json:"at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
