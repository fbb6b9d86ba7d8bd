// Package postgres implements the repository over PostgreSQL. Every
// multi-step write runs inside a serializable transaction; stock decrements
// are conditional updates verified through RowsAffected so two concurrent
// sales of the last unit cannot both pass.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"kasirponsel/backend/internal/domain"
	"kasirponsel/backend/internal/store"
	"kasirponsel/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// schemaStatements is idempotent DDL run at startup. The partial unique
// indexes on product_imeis back the 23505 → DuplicateIMEIError mapping in
// InsertUnits; imei2_number stays nullable so single-SIM units do not
// collide on NULL.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id              TEXT PRIMARY KEY,
		name            TEXT NOT NULL,
		brand           TEXT NOT NULL DEFAULT '',
		model           TEXT NOT NULL DEFAULT '',
		color           TEXT,
		variant         TEXT,
		category        TEXT NOT NULL,
		cost_price      NUMERIC(14,2) NOT NULL DEFAULT 0,
		selling_price   NUMERIC(14,2) NOT NULL DEFAULT 0,
		current_stock   INTEGER NOT NULL DEFAULT 0,
		min_stock_level INTEGER NOT NULL DEFAULT 0,
		is_active       BOOLEAN NOT NULL DEFAULT true,
		created_at      TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS product_imeis (
		id              TEXT PRIMARY KEY,
		product_id      TEXT NOT NULL REFERENCES products(id),
		imei_number     TEXT NOT NULL,
		imei2_number    TEXT,
		serial_number   TEXT,
		status          TEXT NOT NULL,
		purchase_price  NUMERIC(14,2) NOT NULL DEFAULT 0,
		box_number      TEXT,
		warranty_months INTEGER NOT NULL DEFAULT 0,
		created_at      TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS product_imeis_imei_number_key
		ON product_imeis (imei_number)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS product_imeis_imei2_number_key
		ON product_imeis (imei2_number) WHERE imei2_number IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS product_imeis_product_status_idx
		ON product_imeis (product_id, status)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id                 TEXT PRIMARY KEY,
		transaction_number TEXT NOT NULL,
		customer_name      TEXT,
		customer_phone     TEXT,
		transaction_date   TIMESTAMPTZ NOT NULL,
		subtotal           NUMERIC(14,2) NOT NULL DEFAULT 0,
		discount_amount    NUMERIC(14,2) NOT NULL DEFAULT 0,
		discount_type      TEXT NOT NULL,
		tax_rate_percent   NUMERIC(5,2) NOT NULL DEFAULT 0,
		tax_amount         NUMERIC(14,2) NOT NULL DEFAULT 0,
		grand_total        NUMERIC(14,2) NOT NULL DEFAULT 0,
		profit_amount      NUMERIC(14,2) NOT NULL DEFAULT 0,
		payment_method     TEXT NOT NULL,
		payment_status     TEXT NOT NULL,
		is_draft           BOOLEAN NOT NULL DEFAULT false,
		receipt_printed    BOOLEAN NOT NULL DEFAULT false,
		notes              TEXT,
		created_at         TIMESTAMPTZ NOT NULL,
		updated_at         TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS transactions_number_key
		ON transactions (transaction_number)`,
	`CREATE INDEX IF NOT EXISTS transactions_draft_created_idx
		ON transactions (is_draft, created_at)`,
	`CREATE INDEX IF NOT EXISTS transactions_date_idx
		ON transactions (transaction_date)`,
	`CREATE TABLE IF NOT EXISTS transaction_items (
		id             TEXT PRIMARY KEY,
		transaction_id TEXT NOT NULL REFERENCES transactions(id),
		product_id     TEXT NOT NULL,
		product_name   TEXT NOT NULL,
		imei_sold      TEXT,
		serial_number  TEXT,
		quantity       INTEGER NOT NULL,
		unit_cost      NUMERIC(14,2) NOT NULL DEFAULT 0,
		unit_price     NUMERIC(14,2) NOT NULL DEFAULT 0,
		line_total     NUMERIC(14,2) NOT NULL DEFAULT 0,
		line_profit    NUMERIC(14,2) NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS transaction_items_transaction_idx
		ON transaction_items (transaction_id)`,
	`CREATE INDEX IF NOT EXISTS transaction_items_imei_idx
		ON transaction_items (imei_sold) WHERE imei_sold IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS transaction_counters (
		year     INTEGER PRIMARY KEY,
		last_seq INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id             TEXT PRIMARY KEY,
		actor_username TEXT NOT NULL,
		actor_role     TEXT NOT NULL,
		action         TEXT NOT NULL,
		entity_type    TEXT NOT NULL DEFAULT '',
		entity_id      TEXT NOT NULL DEFAULT '',
		detail         TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS audit_logs_created_idx
		ON audit_logs (created_at)`,
	`CREATE TABLE IF NOT EXISTS users (
		username   TEXT PRIMARY KEY,
		password   TEXT NOT NULL,
		role       TEXT NOT NULL,
		active     BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL
	)`,
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema init: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `id, name, brand, model, color, variant, category, cost_price, selling_price, current_stock, min_stock_level, is_active, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	var color, variant sql.NullString
	err := row.Scan(&p.ID, &p.Name, &p.Brand, &p.Model, &color, &variant, &p.Category,
		&p.CostPrice, &p.SellingPrice, &p.CurrentStock, &p.MinStockLevel, &p.IsActive,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	p.Color = color.String
	p.Variant = variant.String
	return p, nil
}

// --- products ---

func (s *Store) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products`
	if !includeInactive {
		query += ` WHERE is_active = true`
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || !product.Category.Valid() {
		return nil, store.ErrInvalidTransaction
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now
	product.IsActive = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, brand, model, color, variant, category, cost_price, selling_price, current_stock, min_stock_level, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, product.ID, product.Name, product.Brand, product.Model, nullIfEmpty(product.Color), nullIfEmpty(product.Variant),
		string(product.Category), product.CostPrice, product.SellingPrice, product.CurrentStock,
		product.MinStockLevel, product.IsActive, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	created := product
	return &created, nil
}

// UpdateProduct rewrites the catalog fields. current_stock is deliberately
// not touched here; only the ledger operations and the transaction unit of
// work may move it.
func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || !product.Category.Valid() {
		return nil, store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, brand = $3, model = $4, color = $5, variant = $6, category = $7,
		    cost_price = $8, selling_price = $9, min_stock_level = $10, is_active = $11, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.Brand, product.Model, nullIfEmpty(product.Color), nullIfEmpty(product.Variant),
		string(product.Category), product.CostPrice, product.SellingPrice, product.MinStockLevel, product.IsActive)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetProduct(ctx, product.ID)
}

// --- serialized units ---

const unitColumns = `id, product_id, imei_number, imei2_number, serial_number, status, purchase_price, box_number, warranty_months, created_at, updated_at`

func scanUnit(row interface{ Scan(...any) error }) (domain.ProductIMEI, error) {
	var u domain.ProductIMEI
	var imei2, serial, box sql.NullString
	var status string
	err := row.Scan(&u.ID, &u.ProductID, &u.IMEINumber, &imei2, &serial, &status,
		&u.PurchasePrice, &box, &u.WarrantyMonths, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.ProductIMEI{}, err
	}
	u.IMEI2Number = imei2.String
	u.SerialNumber = serial.String
	u.BoxNumber = box.String
	u.Status = domain.UnitStatus(status)
	return u, nil
}

func (s *Store) FindUnitByIMEI(ctx context.Context, imei string) (*domain.ProductIMEI, error) {
	needle := strings.TrimSpace(imei)
	row := s.db.QueryRowContext(ctx, `
		SELECT `+unitColumns+`
		FROM product_imeis
		WHERE imei_number = $1 OR imei2_number = $1
	`, needle)
	u, err := scanUnit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) ListUnitsByProduct(ctx context.Context, productID string) ([]domain.ProductIMEI, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+unitColumns+`
		FROM product_imeis
		WHERE product_id = $1
		ORDER BY imei_number
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	units := make([]domain.ProductIMEI, 0, 16)
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return units, nil
}

// InsertUnits registers a batch of received units atomically: one duplicate
// anywhere rolls back the whole insert. Stock rises by one per AVAILABLE unit
// inside the same transaction.
func (s *Store) InsertUnits(ctx context.Context, units []domain.ProductIMEI) ([]string, error) {
	if len(units) == 0 {
		return nil, store.ErrInvalidTransaction
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	countByProduct := make(map[string]int)
	seen := make(map[string]bool)
	now := time.Now().UTC()
	ids := make([]string, 0, len(units))

	for i := range units {
		u := units[i]
		var exists bool
		if err := pgTx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, u.ProductID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
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

			var ownerProductID, ownerName string
			err := pgTx.QueryRowContext(ctx, `
				SELECT u.product_id, p.name
				FROM product_imeis u
				JOIN products p ON p.id = u.product_id
				WHERE u.imei_number = $1 OR u.imei2_number = $1
			`, number).Scan(&ownerProductID, &ownerName)
			if err == nil {
				return nil, &store.DuplicateIMEIError{IMEI: number, ProductID: ownerProductID, ProductName: ownerName}
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return nil, err
			}
		}

		if u.ID == "" {
			u.ID = xid.New("unit")
		}
		if u.Status == "" {
			u.Status = domain.UnitAvailable
		}
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO product_imeis (id, product_id, imei_number, imei2_number, serial_number, status, purchase_price, box_number, warranty_months, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, u.ID, u.ProductID, u.IMEINumber, nullIfEmpty(u.IMEI2Number), nullIfEmpty(u.SerialNumber),
			string(u.Status), u.PurchasePrice, nullIfEmpty(u.BoxNumber), u.WarrantyMonths, now, now)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, &store.DuplicateIMEIError{IMEI: u.IMEINumber}
			}
			return nil, err
		}
		ids = append(ids, u.ID)
		if u.Status == domain.UnitAvailable {
			countByProduct[u.ProductID]++
		}
	}

	for productID, count := range countByProduct {
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE products SET current_stock = current_stock + $1, updated_at = now() WHERE id = $2
		`, count, productID); err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

// SetUnitStatus applies a manual lifecycle correction with the paired stock
// movement: leaving AVAILABLE decrements, entering AVAILABLE increments.
func (s *Store) SetUnitStatus(ctx context.Context, unitID string, status domain.UnitStatus) (*domain.ProductIMEI, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	row := pgTx.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM product_imeis WHERE id = $1 FOR UPDATE`, unitID)
	unit, err := scanUnit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if !store.LegalUnitTransition(unit.Status, status) {
		return nil, &store.InvalidStatusTransitionError{From: unit.Status, To: status}
	}

	switch {
	case unit.Status == domain.UnitAvailable && status != domain.UnitAvailable:
		if err := reduceStockTx(ctx, pgTx, unit.ProductID, 1); err != nil {
			return nil, err
		}
	case unit.Status != domain.UnitAvailable && status == domain.UnitAvailable:
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE products SET current_stock = current_stock + 1, updated_at = now() WHERE id = $1
		`, unit.ProductID); err != nil {
			return nil, err
		}
	}

	if _, err := pgTx.ExecContext(ctx, `
		UPDATE product_imeis SET status = $2, updated_at = now() WHERE id = $1
	`, unitID, string(status)); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	unit.Status = status
	unit.UpdatedAt = time.Now().UTC()
	return &unit, nil
}

func (s *Store) CountUnitsByStatus(ctx context.Context, productID string, status domain.UnitStatus) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM product_imeis WHERE product_id = $1 AND status = $2
	`, productID, string(status)).Scan(&count)
	return count, err
}

// DeleteUnit removes an AVAILABLE unit that no completed sale references.
func (s *Store) DeleteUnit(ctx context.Context, unitID string) error {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	row := pgTx.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM product_imeis WHERE id = $1 FOR UPDATE`, unitID)
	unit, err := scanUnit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	if unit.Status != domain.UnitAvailable {
		return fmt.Errorf("unit %s is %s: %w", unitID, unit.Status, store.ErrInvalidTransaction)
	}

	var hasHistory bool
	if err := pgTx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM transaction_items WHERE imei_sold = $1)
	`, unit.IMEINumber).Scan(&hasHistory); err != nil {
		return err
	}
	if hasHistory {
		return fmt.Errorf("unit %s has sale history: %w", unitID, store.ErrInvalidTransaction)
	}

	if _, err := pgTx.ExecContext(ctx, `DELETE FROM product_imeis WHERE id = $1`, unitID); err != nil {
		return err
	}
	if err := reduceStockTx(ctx, pgTx, unit.ProductID, 1); err != nil {
		return err
	}
	return pgTx.Commit()
}

// --- stock ledger ---

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// reduceStockTx is the conditional decrement. Zero affected rows means the
// product is gone or another writer took the stock first; the re-check query
// distinguishes the two and names the counts.
func reduceStockTx(ctx context.Context, tx execer, productID string, quantity int) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE products
		SET current_stock = current_stock - $1, updated_at = now()
		WHERE id = $2 AND current_stock >= $1
	`, quantity, productID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	var name string
	var available int
	err = tx.QueryRowContext(ctx, `SELECT name, current_stock FROM products WHERE id = $1`, productID).Scan(&name, &available)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	return &store.InsufficientStockError{ProductID: productID, ProductName: name, Available: available, Requested: quantity}
}

func (s *Store) ReduceStock(ctx context.Context, productID string, quantity int) error {
	if quantity < 1 {
		return store.ErrInvalidTransaction
	}
	return reduceStockTx(ctx, s.db, productID, quantity)
}

func (s *Store) IncreaseStock(ctx context.Context, productID string, quantity int) error {
	if quantity < 1 {
		return store.ErrInvalidTransaction
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET current_stock = current_stock + $1, updated_at = now() WHERE id = $2
	`, quantity, productID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ReconcileStock(ctx context.Context, productID string) (*domain.StockReconcileResponse, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var category string
	var current int
	err = pgTx.QueryRowContext(ctx, `
		SELECT category, current_stock FROM products WHERE id = $1 FOR UPDATE
	`, productID).Scan(&category, &current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	resp := &domain.StockReconcileResponse{ProductID: productID, PreviousStock: current, CurrentStock: current}
	if !domain.Category(category).IMEITracked() {
		return resp, pgTx.Commit()
	}

	var available int
	if err := pgTx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM product_imeis WHERE product_id = $1 AND status = $2
	`, productID, string(domain.UnitAvailable)).Scan(&available); err != nil {
		return nil, err
	}
	if available != current {
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE products SET current_stock = $1, updated_at = now() WHERE id = $2
		`, available, productID); err != nil {
			return nil, err
		}
	}
	resp.CurrentStock = available
	return resp, pgTx.Commit()
}

// --- transaction unit of work ---

// CreateTransaction allocates the transaction number, persists the header and
// items, and for non-drafts applies the stock decrement and unit SOLD flips,
// all in one serializable transaction. Any failure rolls everything back.
func (s *Store) CreateTransaction(ctx context.Context, tx domain.Transaction, items []domain.TransactionItem) (*domain.Transaction, error) {
	if len(items) == 0 {
		return nil, store.ErrEmptyCart
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	soldUnits, err := lockAndValidateSale(ctx, pgTx, items, !tx.IsDraft)
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
	tx.CreatedAt = now
	tx.UpdatedAt = now
	if tx.IsDraft {
		tx.PaymentStatus = domain.PaymentPending
	} else {
		tx.PaymentStatus = domain.PaymentPaid
	}

	tx.TransactionNumber, err = nextTransactionNumber(ctx, pgTx, tx.TransactionDate.Year())
	if err != nil {
		return nil, err
	}

	if _, err := pgTx.ExecContext(ctx, `
		INSERT INTO transactions (
			id, transaction_number, customer_name, customer_phone, transaction_date,
			subtotal, discount_amount, discount_type, tax_rate_percent, tax_amount,
			grand_total, profit_amount, payment_method, payment_status, is_draft,
			receipt_printed, notes, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`, tx.ID, tx.TransactionNumber, nullIfEmpty(tx.CustomerName), nullIfEmpty(tx.CustomerPhone), tx.TransactionDate,
		tx.Subtotal, tx.DiscountAmount, string(tx.DiscountType), tx.TaxRatePercent, tx.TaxAmount,
		tx.GrandTotal, tx.ProfitAmount, tx.PaymentMethod, string(tx.PaymentStatus), tx.IsDraft,
		tx.ReceiptPrinted, nullIfEmpty(tx.Notes), tx.CreatedAt, tx.UpdatedAt); err != nil {
		return nil, err
	}

	if err := insertItems(ctx, pgTx, tx.ID, items); err != nil {
		return nil, err
	}

	if !tx.IsDraft {
		if err := applySale(ctx, pgTx, items, soldUnits); err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	created := tx
	return &created, nil
}

// lockAndValidateSale locks the affected product rows and, for lines that
// name an IMEI, the unit rows. It verifies existence, stock levels and unit
// eligibility. Returns unit IDs to flip SOLD keyed by line index.
func lockAndValidateSale(ctx context.Context, pgTx *sql.Tx, items []domain.TransactionItem, forSale bool) (map[int]string, error) {
	needed := make(map[string]int)
	for _, item := range items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("quantity must be positive: %w", store.ErrInvalidTransaction)
		}
		needed[item.ProductID] += item.Quantity
	}

	productIDs := make([]string, 0, len(needed))
	for id := range needed {
		productIDs = append(productIDs, id)
	}
	rows, err := pgTx.QueryContext(ctx, `
		SELECT id, name, current_stock
		FROM products
		WHERE id = ANY($1)
		FOR UPDATE
	`, productIDs)
	if err != nil {
		return nil, err
	}
	type productState struct {
		name  string
		stock int
	}
	states := make(map[string]productState, len(productIDs))
	for rows.Next() {
		var id, name string
		var stock int
		if err := rows.Scan(&id, &name, &stock); err != nil {
			_ = rows.Close()
			return nil, err
		}
		states[id] = productState{name: name, stock: stock}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for productID, qty := range needed {
		state, ok := states[productID]
		if !ok {
			return nil, store.ErrNotFound
		}
		if state.stock < qty {
			return nil, &store.InsufficientStockError{ProductID: productID, ProductName: state.name, Available: state.stock, Requested: qty}
		}
	}

	soldUnits := make(map[int]string)
	claimed := make(map[string]bool)
	for i, item := range items {
		if item.IMEISold == "" {
			continue
		}
		var unitID, productID, status string
		err := pgTx.QueryRowContext(ctx, `
			SELECT id, product_id, status
			FROM product_imeis
			WHERE imei_number = $1 OR imei2_number = $1
			FOR UPDATE
		`, item.IMEISold).Scan(&unitID, &productID, &status)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("unit %s: %w", item.IMEISold, store.ErrNotFound)
		}
		if err != nil {
			return nil, err
		}
		if productID != item.ProductID {
			return nil, fmt.Errorf("unit %s belongs to another product: %w", item.IMEISold, store.ErrInvalidTransaction)
		}
		if claimed[unitID] {
			return nil, fmt.Errorf("unit %s listed twice: %w", item.IMEISold, store.ErrInvalidTransaction)
		}
		claimed[unitID] = true
		if forSale && !store.LegalUnitTransition(domain.UnitStatus(status), domain.UnitSold) {
			return nil, &store.InvalidStatusTransitionError{From: domain.UnitStatus(status), To: domain.UnitSold}
		}
		soldUnits[i] = unitID
	}
	return soldUnits, nil
}

// applySale decrements stock per line and flips the consumed units to SOLD.
// The unit update is conditional on the status still being sellable; a zero
// row count means a concurrent writer consumed it and the whole unit of work
// rolls back.
func applySale(ctx context.Context, pgTx *sql.Tx, items []domain.TransactionItem, soldUnits map[int]string) error {
	for i, item := range items {
		if err := reduceStockTx(ctx, pgTx, item.ProductID, item.Quantity); err != nil {
			return err
		}
		unitID, ok := soldUnits[i]
		if !ok {
			continue
		}
		res, err := pgTx.ExecContext(ctx, `
			UPDATE product_imeis
			SET status = $2, updated_at = now()
			WHERE id = $1 AND status IN ($3, $4)
		`, unitID, string(domain.UnitSold), string(domain.UnitAvailable), string(domain.UnitReserved))
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return &store.InvalidStatusTransitionError{From: domain.UnitSold, To: domain.UnitSold}
		}
	}
	return nil
}

func insertItems(ctx context.Context, pgTx *sql.Tx, transactionID string, items []domain.TransactionItem) error {
	for _, item := range items {
		if item.ID == "" {
			item.ID = xid.New("item")
		}
		if _, err := pgTx.ExecContext(ctx, `
			INSERT INTO transaction_items (id, transaction_id, product_id, product_name, imei_sold, serial_number, quantity, unit_cost, unit_price, line_total, line_profit)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, item.ID, transactionID, item.ProductID, item.ProductName, nullIfEmpty(item.IMEISold), nullIfEmpty(item.SerialNumber),
			item.Quantity, item.UnitCost, item.UnitPrice, item.LineTotal, item.LineProfit); err != nil {
			return err
		}
	}
	return nil
}

// nextTransactionNumber bumps the per-year counter row inside the caller's
// transaction, so concurrent sales serialize on it and never share a number.
func nextTransactionNumber(ctx context.Context, pgTx *sql.Tx, year int) (string, error) {
	var seq int
	err := pgTx.QueryRowContext(ctx, `
		INSERT INTO transaction_counters (year, last_seq)
		VALUES ($1, 1)
		ON CONFLICT (year)
		DO UPDATE SET last_seq = transaction_counters.last_seq + 1
		RETURNING last_seq
	`, year).Scan(&seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("TXN-%d-%03d", year, seq), nil
}

// CompleteDraft realizes a draft's stock impact. Products that went inactive
// and units consumed since the draft was written surface as
// DraftIntegrityError so the caller can route the draft to review.
func (s *Store) CompleteDraft(ctx context.Context, transactionID string, at time.Time) (*domain.Transaction, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var isDraft bool
	err = pgTx.QueryRowContext(ctx, `
		SELECT is_draft FROM transactions WHERE id = $1 FOR UPDATE
	`, transactionID).Scan(&isDraft)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !isDraft {
		return nil, store.ErrAlreadyCompleted
	}

	items, err := listItemsTx(ctx, pgTx, transactionID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, &store.DraftIntegrityError{TransactionID: transactionID, Reason: "draft has no line items"}
	}

	for _, item := range items {
		var name string
		var active bool
		err := pgTx.QueryRowContext(ctx, `SELECT name, is_active FROM products WHERE id = $1`, item.ProductID).Scan(&name, &active)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &store.DraftIntegrityError{TransactionID: transactionID, Reason: fmt.Sprintf("product %s no longer exists", item.ProductID)}
		}
		if err != nil {
			return nil, err
		}
		if !active {
			return nil, &store.DraftIntegrityError{TransactionID: transactionID, Reason: fmt.Sprintf("product %s has been deactivated", name)}
		}
		if item.IMEISold != "" {
			var status string
			err := pgTx.QueryRowContext(ctx, `
				SELECT status FROM product_imeis WHERE imei_number = $1 OR imei2_number = $1
			`, item.IMEISold).Scan(&status)
			if errors.Is(err, sql.ErrNoRows) {
				return nil, &store.DraftIntegrityError{TransactionID: transactionID, Reason: fmt.Sprintf("unit %s no longer exists", item.IMEISold)}
			}
			if err != nil {
				return nil, err
			}
			if !store.LegalUnitTransition(domain.UnitStatus(status), domain.UnitSold) {
				return nil, &store.DraftIntegrityError{TransactionID: transactionID, Reason: fmt.Sprintf("unit %s is %s", item.IMEISold, status)}
			}
		}
	}

	soldUnits, err := lockAndValidateSale(ctx, pgTx, items, true)
	if err != nil {
		return nil, err
	}
	if err := applySale(ctx, pgTx, items, soldUnits); err != nil {
		return nil, err
	}

	if _, err := pgTx.ExecContext(ctx, `
		UPDATE transactions
		SET is_draft = false, payment_status = $2, updated_at = $3
		WHERE id = $1
	`, transactionID, string(domain.PaymentPaid), at.UTC()); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return s.GetTransaction(ctx, transactionID)
}

// UpdateDraft replaces the header figures and the whole line-item set of a
// draft. No stock movement happens here.
func (s *Store) UpdateDraft(ctx context.Context, tx domain.Transaction, items []domain.TransactionItem) (*domain.Transaction, error) {
	if len(items) == 0 {
		return nil, store.ErrEmptyCart
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var isDraft bool
	err = pgTx.QueryRowContext(ctx, `SELECT is_draft FROM transactions WHERE id = $1 FOR UPDATE`, tx.ID).Scan(&isDraft)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !isDraft {
		return nil, store.ErrDraftRequired
	}

	if _, err := lockAndValidateSale(ctx, pgTx, items, false); err != nil {
		return nil, err
	}

	if _, err := pgTx.ExecContext(ctx, `DELETE FROM transaction_items WHERE transaction_id = $1`, tx.ID); err != nil {
		return nil, err
	}
	if err := insertItems(ctx, pgTx, tx.ID, items); err != nil {
		return nil, err
	}

	if _, err := pgTx.ExecContext(ctx, `
		UPDATE transactions
		SET customer_name = $2, customer_phone = $3, subtotal = $4, discount_amount = $5,
		    discount_type = $6, tax_rate_percent = $7, tax_amount = $8, grand_total = $9,
		    profit_amount = $10, payment_method = $11, notes = $12, updated_at = now()
		WHERE id = $1
	`, tx.ID, nullIfEmpty(tx.CustomerName), nullIfEmpty(tx.CustomerPhone), tx.Subtotal, tx.DiscountAmount,
		string(tx.DiscountType), tx.TaxRatePercent, tx.TaxAmount, tx.GrandTotal,
		tx.ProfitAmount, tx.PaymentMethod, nullIfEmpty(tx.Notes)); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return s.GetTransaction(ctx, tx.ID)
}

func (s *Store) DeleteDraft(ctx context.Context, transactionID string) error {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	var isDraft bool
	err = pgTx.QueryRowContext(ctx, `SELECT is_draft FROM transactions WHERE id = $1 FOR UPDATE`, transactionID).Scan(&isDraft)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	if !isDraft {
		return store.ErrDraftRequired
	}

	if _, err := pgTx.ExecContext(ctx, `DELETE FROM transaction_items WHERE transaction_id = $1`, transactionID); err != nil {
		return err
	}
	if _, err := pgTx.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, transactionID); err != nil {
		return err
	}
	return pgTx.Commit()
}

func (s *Store) CleanupOldDrafts(ctx context.Context, olderThan time.Time) (int, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, err
	}
	defer func() { _ = pgTx.Rollback() }()

	if _, err := pgTx.ExecContext(ctx, `
		DELETE FROM transaction_items
		WHERE transaction_id IN (SELECT id FROM transactions WHERE is_draft = true AND created_at < $1)
	`, olderThan.UTC()); err != nil {
		return 0, err
	}
	res, err := pgTx.ExecContext(ctx, `
		DELETE FROM transactions WHERE is_draft = true AND created_at < $1
	`, olderThan.UTC())
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := pgTx.Commit(); err != nil {
		return 0, err
	}
	return int(affected), nil
}

// --- transaction reads ---

const transactionColumns = `id, transaction_number, customer_name, customer_phone, transaction_date, subtotal, discount_amount, discount_type, tax_rate_percent, tax_amount, grand_total, profit_amount, payment_method, payment_status, is_draft, receipt_printed, notes, created_at, updated_at`

func scanTransaction(row interface{ Scan(...any) error }) (domain.Transaction, error) {
	var tx domain.Transaction
	var customerName, customerPhone, notes sql.NullString
	var discountType, paymentStatus string
	err := row.Scan(&tx.ID, &tx.TransactionNumber, &customerName, &customerPhone, &tx.TransactionDate,
		&tx.Subtotal, &tx.DiscountAmount, &discountType, &tx.TaxRatePercent, &tx.TaxAmount,
		&tx.GrandTotal, &tx.ProfitAmount, &tx.PaymentMethod, &paymentStatus, &tx.IsDraft,
		&tx.ReceiptPrinted, &notes, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		return domain.Transaction{}, err
	}
	tx.CustomerName = customerName.String
	tx.CustomerPhone = customerPhone.String
	tx.Notes = notes.String
	tx.DiscountType = domain.DiscountType(discountType)
	tx.PaymentStatus = domain.PaymentStatus(paymentStatus)
	return tx, nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &tx, nil
}

func (s *Store) GetTransactionByNumber(ctx context.Context, number string) (*domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE transaction_number = $1`, number)
	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &tx, nil
}

func (s *Store) listTransactions(ctx context.Context, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Transaction, 0, 32)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ListCompletedTransactions(ctx context.Context, limit int) ([]domain.Transaction, error) {
	if limit < 1 {
		limit = 100
	}
	return s.listTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE is_draft = false
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
}

func (s *Store) ListDraftTransactions(ctx context.Context) ([]domain.Transaction, error) {
	return s.listTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE is_draft = true
		ORDER BY created_at DESC
	`)
}

func (s *Store) ListTransactionsByDateRange(ctx context.Context, from time.Time, to time.Time) ([]domain.Transaction, error) {
	return s.listTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE is_draft = false AND transaction_date >= $1 AND transaction_date < $2
		ORDER BY created_at DESC
	`, from.UTC(), to.UTC())
}

func listItemsTx(ctx context.Context, pgTx *sql.Tx, transactionID string) ([]domain.TransactionItem, error) {
	rows, err := pgTx.QueryContext(ctx, `
		SELECT id, transaction_id, product_id, product_name, imei_sold, serial_number, quantity, unit_cost, unit_price, line_total, line_profit
		FROM transaction_items
		WHERE transaction_id = $1
		ORDER BY id
	`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

func scanItems(rows *sql.Rows) ([]domain.TransactionItem, error) {
	items := make([]domain.TransactionItem, 0, 8)
	for rows.Next() {
		var item domain.TransactionItem
		var imeiSold, serial sql.NullString
		if err := rows.Scan(&item.ID, &item.TransactionID, &item.ProductID, &item.ProductName, &imeiSold, &serial,
			&item.Quantity, &item.UnitCost, &item.UnitPrice, &item.LineTotal, &item.LineProfit); err != nil {
			return nil, err
		}
		item.IMEISold = imeiSold.String
		item.SerialNumber = serial.String
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListTransactionItems(ctx context.Context, transactionID string) ([]domain.TransactionItem, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE id = $1)`, transactionID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, product_id, product_name, imei_sold, serial_number, quantity, unit_cost, unit_price, line_total, line_profit
		FROM transaction_items
		WHERE transaction_id = $1
		ORDER BY id
	`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

func (s *Store) MarkReceiptPrinted(ctx context.Context, transactionID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET receipt_printed = true, updated_at = now()
		WHERE id = $1 AND is_draft = false
	`, transactionID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE id = $1)`, transactionID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrDraftRequired
}

// --- reporting ---

func (s *Store) GetDailyReport(ctx context.Context, day time.Time) (domain.DailyReport, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)
	report := domain.DailyReport{Date: dayStart.Format("2006-01-02")}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(subtotal), 0),
			COALESCE(SUM(discount_amount), 0),
			COALESCE(SUM(tax_amount), 0),
			COALESCE(SUM(grand_total), 0),
			COALESCE(SUM(profit_amount), 0)
		FROM transactions
		WHERE is_draft = false AND transaction_date >= $1 AND transaction_date < $2
	`, dayStart, dayEnd).Scan(&report.Transactions, &report.GrossSales, &report.DiscountTotal,
		&report.TaxTotal, &report.NetSales, &report.ProfitTotal)
	if err != nil {
		return domain.DailyReport{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT payment_method, COUNT(*), COALESCE(SUM(grand_total), 0)
		FROM transactions
		WHERE is_draft = false AND transaction_date >= $1 AND transaction_date < $2
		GROUP BY payment_method
		ORDER BY payment_method
	`, dayStart, dayEnd)
	if err != nil {
		return domain.DailyReport{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var entry domain.DailyReportPayment
		if err := rows.Scan(&entry.PaymentMethod, &entry.Transactions, &entry.Total); err != nil {
			return domain.DailyReport{}, err
		}
		report.ByPayment = append(report.ByPayment, entry)
	}
	if err := rows.Err(); err != nil {
		return domain.DailyReport{}, err
	}
	return report, nil
}

// --- audit trail ---

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 200
	}
	if to.IsZero() {
		to = time.Now().UTC().Add(24 * time.Hour)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.AuditLog, 0, 32)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// --- auth credentials ---

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("username %s already exists", username)
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username)), password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- helpers ---

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if strings.TrimSpace(val) == "" {
		return nil
	}
	return val
}
