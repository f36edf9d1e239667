/*
Package sqlite provides a SQLite-backed implementation of pos.TxStore.

PURPOSE:
  Durable, embedded, single-writer storage for the engine. The store maps
  typed rows to tables and back; it holds no business rules beyond the
  constraints that protect the data if a bug ever slips past the engine.

KEY TABLES:
  products:        Catalog rows with quantity and WAC
  customers:       Customer rows with the stored credit balance
  sales:           Sale headers (only status changes after insert)
  sale_lines:      Lines with the frozen cost_at_sale (append-only)
  stock_movements: Audit of every quantity change (append-only)
  ledger_entries:  Customer balance history (append-only)

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on sale_lines, stock_movements, ledger_entries
  - Triggers abort any UPDATE that slips through
  - Corrections are new rows written by the engine

MONEY & TIME ENCODING:
  Amounts are TEXT holding the exact decimal string (never REAL), so
  values round-trip without float drift. Timestamps are TEXT in a fixed
  width UTC layout with nanoseconds (timeLayout) so that lexicographic
  order equals chronological order and range filters can compare strings.

CONCURRENCY:
  The pool is limited to one connection and transactions begin with
  BEGIN IMMEDIATE (_txlock=immediate), so there is exactly one writer.
  WithTx also holds the store mutex for the whole unit. Every read inside
  a unit goes through the *sql.Tx and sees the unit's own writes; reads
  outside a unit wait for the connection and see only committed rows.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer on file-backed databases
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/pos.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := pos.NewEngine(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - pos/store.go: Interface definitions
  - pos/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/khata-engine/pos"
)

// timeLayout is fixed width so stored timestamps sort as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements pos.TxStore using SQLite.
//
// Outside WithTx every method runs as its own statement on the single
// pooled connection.
type Store struct {
	*rowStore
	db *sql.DB
	mu sync.Mutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: a single writer, and ":memory:" stays one database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &Store{rowStore: &rowStore{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sku TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		sell_price TEXT NOT NULL,
		quantity INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
		wac_cost TEXT NOT NULL DEFAULT '0',
		last_unit_cost TEXT NOT NULL DEFAULT '0',
		min_stock_level INTEGER NOT NULL DEFAULT 0 CHECK (min_stock_level >= 0),
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS customers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		credit_limit TEXT NOT NULL DEFAULT '0',
		credit_balance TEXT NOT NULL DEFAULT '0',
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sales (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		receipt_no TEXT NOT NULL UNIQUE,
		customer_id INTEGER REFERENCES customers(id),
		subtotal TEXT NOT NULL,
		discount TEXT NOT NULL,
		total TEXT NOT NULL,
		payment_method TEXT NOT NULL CHECK (payment_method IN ('cash', 'card', 'credit')),
		payment_received TEXT NOT NULL,
		change_given TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('completed', 'refunded', 'cancelled')),
		notes TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	-- Report range scans (hot path)
	CREATE INDEX IF NOT EXISTS idx_sales_created_at
		ON sales(created_at, status);
	CREATE INDEX IF NOT EXISTS idx_sales_customer
		ON sales(customer_id) WHERE customer_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS sale_lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sale_id INTEGER NOT NULL REFERENCES sales(id),
		product_id INTEGER NOT NULL REFERENCES products(id),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price TEXT NOT NULL,
		cost_at_sale TEXT NOT NULL,
		line_discount TEXT NOT NULL,
		line_total TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sale_lines_sale
		ON sale_lines(sale_id);

	CREATE TABLE IF NOT EXISTS stock_movements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		product_id INTEGER NOT NULL REFERENCES products(id),
		movement_type TEXT NOT NULL CHECK (movement_type IN ('stock_in', 'sale', 'adjustment', 'return', 'damage')),
		quantity INTEGER NOT NULL,
		previous_stock INTEGER NOT NULL,
		new_stock INTEGER NOT NULL CHECK (new_stock >= 0),
		previous_wac TEXT NOT NULL,
		new_wac TEXT NOT NULL,
		unit_cost TEXT NOT NULL,
		sale_id INTEGER REFERENCES sales(id),
		reason TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_stock_movements_product
		ON stock_movements(product_id, id);

	CREATE TABLE IF NOT EXISTS ledger_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id INTEGER NOT NULL REFERENCES customers(id),
		entry_type TEXT NOT NULL CHECK (entry_type IN ('debit', 'credit')),
		amount TEXT NOT NULL,
		running_balance TEXT NOT NULL,
		sale_id INTEGER REFERENCES sales(id),
		description TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	-- Statement ordering: newest first, ties by id
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_customer
		ON ledger_entries(customer_id, created_at DESC, id DESC);

	-- CRITICAL: audit rows are append-only
	CREATE TRIGGER IF NOT EXISTS trg_sale_lines_append_only
		BEFORE UPDATE ON sale_lines
		BEGIN SELECT RAISE(ABORT, 'sale_lines is append-only'); END;
	CREATE TRIGGER IF NOT EXISTS trg_stock_movements_append_only
		BEFORE UPDATE ON stock_movements
		BEGIN SELECT RAISE(ABORT, 'stock_movements is append-only'); END;
	CREATE TRIGGER IF NOT EXISTS trg_ledger_entries_append_only
		BEFORE UPDATE ON ledger_entries
		BEGIN SELECT RAISE(ABORT, 'ledger_entries is append-only'); END;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (pos.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
// fn must only use the Store it is given; the pooled connection is held
// by the transaction until it ends.
func (s *Store) WithTx(ctx context.Context, fn func(store pos.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&rowStore{q: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Reset clears all data and restarts the id sequences (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	// Children before parents for the foreign keys.
	tables := []string{"ledger_entries", "stock_movements", "sale_lines", "sales", "customers", "products", "sqlite_sequence"}
	for _, table := range tables {
		if _, err := sqlTx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

// =============================================================================
// ROW STORE (pos.Store interface)
// =============================================================================

// rowStore runs typed statements against a database or a transaction.
type rowStore struct {
	q querier
}

const productColumns = `id, sku, name, sell_price, quantity, wac_cost, last_unit_cost,
	min_stock_level, is_active, created_at, updated_at`

func (r *rowStore) InsertProduct(ctx context.Context, p pos.Product) (pos.ProductID, error) {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO products
		(sku, name, sell_price, quantity, wac_cost, last_unit_cost, min_stock_level, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.SKU, p.Name, money(p.SellPrice), p.Quantity, money(p.WACCost), money(p.LastUnitCost),
		p.MinStockLevel, p.IsActive, formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintUnique) {
			return 0, pos.ErrDuplicateSKU
		}
		return 0, fmt.Errorf("failed to insert product: %w", err)
	}
	id, err := res.LastInsertId()
	return pos.ProductID(id), err
}

func (r *rowStore) GetProduct(ctx context.Context, id pos.ProductID) (pos.Product, error) {
	row := r.q.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = ?", id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return pos.Product{}, pos.ErrProductNotFound
	}
	return p, err
}

func (r *rowStore) ListProducts(ctx context.Context) ([]pos.Product, error) {
	rows, err := r.q.QueryContext(ctx, "SELECT "+productColumns+" FROM products ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var out []pos.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *rowStore) UpdateProductStock(ctx context.Context, u pos.ProductStockUpdate) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE products SET quantity = ?, wac_cost = ?, last_unit_cost = ?, updated_at = ?
		WHERE id = ?`,
		u.Quantity, money(u.WACCost), money(u.LastUnitCost), formatTime(u.UpdatedAt), u.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update product stock: %w", err)
	}
	return expectRow(res, pos.ErrProductNotFound)
}

func (r *rowStore) SetProductActive(ctx context.Context, id pos.ProductID, active bool, at time.Time) error {
	res, err := r.q.ExecContext(ctx,
		"UPDATE products SET is_active = ?, updated_at = ? WHERE id = ?",
		active, formatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	return expectRow(res, pos.ErrProductNotFound)
}

const customerColumns = `id, name, phone, credit_limit, credit_balance, is_active, created_at, updated_at`

func (r *rowStore) InsertCustomer(ctx context.Context, c pos.Customer) (pos.CustomerID, error) {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO customers (name, phone, credit_limit, credit_balance, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.Name, c.Phone, money(c.CreditLimit), money(c.CreditBalance), c.IsActive,
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert customer: %w", err)
	}
	id, err := res.LastInsertId()
	return pos.CustomerID(id), err
}

func (r *rowStore) GetCustomer(ctx context.Context, id pos.CustomerID) (pos.Customer, error) {
	row := r.q.QueryRowContext(ctx, "SELECT "+customerColumns+" FROM customers WHERE id = ?", id)
	c, err := scanCustomer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return pos.Customer{}, pos.ErrCustomerNotFound
	}
	return c, err
}

func (r *rowStore) ListCustomers(ctx context.Context) ([]pos.Customer, error) {
	rows, err := r.q.QueryContext(ctx, "SELECT "+customerColumns+" FROM customers ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()

	var out []pos.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *rowStore) UpdateCustomerBalance(ctx context.Context, id pos.CustomerID, balance decimal.Decimal, at time.Time) error {
	res, err := r.q.ExecContext(ctx,
		"UPDATE customers SET credit_balance = ?, updated_at = ? WHERE id = ?",
		money(balance), formatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update customer balance: %w", err)
	}
	return expectRow(res, pos.ErrCustomerNotFound)
}

func (r *rowStore) SetCustomerActive(ctx context.Context, id pos.CustomerID, active bool, at time.Time) error {
	res, err := r.q.ExecContext(ctx,
		"UPDATE customers SET is_active = ?, updated_at = ? WHERE id = ?",
		active, formatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update customer: %w", err)
	}
	return expectRow(res, pos.ErrCustomerNotFound)
}

// =============================================================================
// SALES
// =============================================================================

const saleColumns = `s.id, s.receipt_no, s.customer_id, s.subtotal, s.discount, s.total,
	s.payment_method, s.payment_received, s.change_given, s.status, s.notes, s.created_by, s.created_at`

func (r *rowStore) InsertSale(ctx context.Context, s pos.Sale) (pos.SaleID, error) {
	var customerID sql.NullInt64
	if s.CustomerID != nil {
		customerID = sql.NullInt64{Int64: int64(*s.CustomerID), Valid: true}
	}
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO sales
		(receipt_no, customer_id, subtotal, discount, total, payment_method,
		 payment_received, change_given, status, notes, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ReceiptNo, customerID, money(s.Subtotal), money(s.Discount), money(s.Total), s.PaymentMethod,
		money(s.PaymentReceived), money(s.ChangeGiven), s.Status, s.Notes, s.CreatedBy, formatTime(s.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert sale: %w", err)
	}
	id, err := res.LastInsertId()
	return pos.SaleID(id), err
}

func (r *rowStore) GetSale(ctx context.Context, id pos.SaleID) (pos.Sale, error) {
	row := r.q.QueryRowContext(ctx, "SELECT "+saleColumns+" FROM sales s WHERE s.id = ?", id)
	s, err := scanSale(row)
	if errors.Is(err, sql.ErrNoRows) {
		return pos.Sale{}, pos.ErrSaleNotFound
	}
	return s, err
}

func (r *rowStore) UpdateSaleStatus(ctx context.Context, id pos.SaleID, status pos.SaleStatus) error {
	res, err := r.q.ExecContext(ctx, "UPDATE sales SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return fmt.Errorf("failed to update sale status: %w", err)
	}
	return expectRow(res, pos.ErrSaleNotFound)
}

// ListSales returns matching sales ordered by creation time, then id.
func (r *rowStore) ListSales(ctx context.Context, f pos.SaleFilter) ([]pos.Sale, error) {
	where, args := saleWhere(f)
	rows, err := r.q.QueryContext(ctx,
		"SELECT "+saleColumns+" FROM sales s"+where+" ORDER BY s.created_at, s.id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sales: %w", err)
	}
	defer rows.Close()

	var out []pos.Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const lineColumns = `l.id, l.sale_id, l.product_id, l.quantity, l.unit_price, l.cost_at_sale,
	l.line_discount, l.line_total`

// InsertSaleLine appends a line. Append-only.
func (r *rowStore) InsertSaleLine(ctx context.Context, l pos.SaleLine) (pos.SaleLineID, error) {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO sale_lines
		(sale_id, product_id, quantity, unit_price, cost_at_sale, line_discount, line_total)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.SaleID, l.ProductID, l.Quantity, money(l.UnitPrice), money(l.CostAtSale),
		money(l.LineDiscount), money(l.LineTotal),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert sale line: %w", err)
	}
	id, err := res.LastInsertId()
	return pos.SaleLineID(id), err
}

func (r *rowStore) SaleLines(ctx context.Context, id pos.SaleID) ([]pos.SaleLine, error) {
	return r.queryLines(ctx, "SELECT "+lineColumns+" FROM sale_lines l WHERE l.sale_id = ? ORDER BY l.id", id)
}

// ListSaleLines returns the lines of every sale matching the filter.
func (r *rowStore) ListSaleLines(ctx context.Context, f pos.SaleFilter) ([]pos.SaleLine, error) {
	where, args := saleWhere(f)
	return r.queryLines(ctx,
		"SELECT "+lineColumns+" FROM sale_lines l JOIN sales s ON s.id = l.sale_id"+where+" ORDER BY l.id", args...)
}

func (r *rowStore) queryLines(ctx context.Context, query string, args ...any) ([]pos.SaleLine, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sale lines: %w", err)
	}
	defer rows.Close()

	var out []pos.SaleLine
	for rows.Next() {
		var (
			l       pos.SaleLine
			d       decoder
			price   string
			cost    string
			lineDsc string
			total   string
		)
		if err := rows.Scan(&l.ID, &l.SaleID, &l.ProductID, &l.Quantity, &price, &cost, &lineDsc, &total); err != nil {
			return nil, fmt.Errorf("failed to scan sale line: %w", err)
		}
		l.UnitPrice = d.money("unit_price", price)
		l.CostAtSale = d.money("cost_at_sale", cost)
		l.LineDiscount = d.money("line_discount", lineDsc)
		l.LineTotal = d.money("line_total", total)
		if d.err != nil {
			return nil, d.err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func saleWhere(f pos.SaleFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if !f.From.IsZero() {
		conds = append(conds, "s.created_at >= ?")
		args = append(args, formatTime(f.From))
	}
	if !f.To.IsZero() {
		conds = append(conds, "s.created_at < ?")
		args = append(args, formatTime(f.To))
	}
	if f.Status != "" {
		conds = append(conds, "s.status = ?")
		args = append(args, f.Status)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// =============================================================================
// AUDIT ROWS (append-only)
// =============================================================================

// InsertStockMovement appends a movement. Append-only.
func (r *rowStore) InsertStockMovement(ctx context.Context, m pos.StockMovement) (pos.MovementID, error) {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO stock_movements
		(product_id, movement_type, quantity, previous_stock, new_stock, previous_wac, new_wac,
		 unit_cost, sale_id, reason, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ProductID, m.Type, m.Quantity, m.PreviousStock, m.NewStock, money(m.PreviousWAC), money(m.NewWAC),
		money(m.UnitCost), nullSaleID(m.SaleID), m.Reason, m.CreatedBy, formatTime(m.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert stock movement: %w", err)
	}
	id, err := res.LastInsertId()
	return pos.MovementID(id), err
}

// StockMovements returns a product's movements oldest first.
func (r *rowStore) StockMovements(ctx context.Context, id pos.ProductID) ([]pos.StockMovement, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, product_id, movement_type, quantity, previous_stock, new_stock,
		       previous_wac, new_wac, unit_cost, sale_id, reason, created_by, created_at
		FROM stock_movements
		WHERE product_id = ?
		ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock movements: %w", err)
	}
	defer rows.Close()

	var out []pos.StockMovement
	for rows.Next() {
		var (
			m                         pos.StockMovement
			d                         decoder
			prevWAC, newWAC, unitCost string
			saleID                    sql.NullInt64
			createdAt                 string
		)
		err := rows.Scan(&m.ID, &m.ProductID, &m.Type, &m.Quantity, &m.PreviousStock, &m.NewStock,
			&prevWAC, &newWAC, &unitCost, &saleID, &m.Reason, &m.CreatedBy, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stock movement: %w", err)
		}
		m.PreviousWAC = d.money("previous_wac", prevWAC)
		m.NewWAC = d.money("new_wac", newWAC)
		m.UnitCost = d.money("unit_cost", unitCost)
		m.SaleID = saleIDFrom(saleID)
		m.CreatedAt = d.timestamp("created_at", createdAt)
		if d.err != nil {
			return nil, d.err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// InsertLedgerEntry appends an entry. Append-only.
func (r *rowStore) InsertLedgerEntry(ctx context.Context, e pos.LedgerEntry) (pos.LedgerEntryID, error) {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO ledger_entries
		(customer_id, entry_type, amount, running_balance, sale_id, description, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.CustomerID, e.Type, money(e.Amount), money(e.RunningBalance), nullSaleID(e.SaleID),
		e.Description, e.CreatedBy, formatTime(e.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	id, err := res.LastInsertId()
	return pos.LedgerEntryID(id), err
}

// LedgerEntries returns a customer's entries newest first, ties by id.
func (r *rowStore) LedgerEntries(ctx context.Context, id pos.CustomerID) ([]pos.LedgerEntry, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, customer_id, entry_type, amount, running_balance, sale_id, description, created_by, created_at
		FROM ledger_entries
		WHERE customer_id = ?
		ORDER BY created_at DESC, id DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var out []pos.LedgerEntry
	for rows.Next() {
		var (
			e               pos.LedgerEntry
			d               decoder
			amount, balance string
			saleID          sql.NullInt64
			createdAt       string
		)
		err := rows.Scan(&e.ID, &e.CustomerID, &e.Type, &amount, &balance, &saleID,
			&e.Description, &e.CreatedBy, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Amount = d.money("amount", amount)
		e.RunningBalance = d.money("running_balance", balance)
		e.SaleID = saleIDFrom(saleID)
		e.CreatedAt = d.timestamp("created_at", createdAt)
		if d.err != nil {
			return nil, d.err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// SCANNING
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(sc scanner) (pos.Product, error) {
	var (
		p                    pos.Product
		d                    decoder
		price, wac, lastCost string
		createdAt, updatedAt string
	)
	err := sc.Scan(&p.ID, &p.SKU, &p.Name, &price, &p.Quantity, &wac, &lastCost,
		&p.MinStockLevel, &p.IsActive, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("failed to scan product: %w", err)
	}
	p.SellPrice = d.money("sell_price", price)
	p.WACCost = d.money("wac_cost", wac)
	p.LastUnitCost = d.money("last_unit_cost", lastCost)
	p.CreatedAt = d.timestamp("created_at", createdAt)
	p.UpdatedAt = d.timestamp("updated_at", updatedAt)
	return p, d.err
}

func scanCustomer(sc scanner) (pos.Customer, error) {
	var (
		c                    pos.Customer
		d                    decoder
		limit, balance       string
		createdAt, updatedAt string
	)
	err := sc.Scan(&c.ID, &c.Name, &c.Phone, &limit, &balance, &c.IsActive, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, err
		}
		return c, fmt.Errorf("failed to scan customer: %w", err)
	}
	c.CreditLimit = d.money("credit_limit", limit)
	c.CreditBalance = d.money("credit_balance", balance)
	c.CreatedAt = d.timestamp("created_at", createdAt)
	c.UpdatedAt = d.timestamp("updated_at", updatedAt)
	return c, d.err
}

func scanSale(sc scanner) (pos.Sale, error) {
	var (
		s                           pos.Sale
		d                           decoder
		customerID                  sql.NullInt64
		subtotal, discount, total   string
		received, change, createdAt string
	)
	err := sc.Scan(&s.ID, &s.ReceiptNo, &customerID, &subtotal, &discount, &total,
		&s.PaymentMethod, &received, &change, &s.Status, &s.Notes, &s.CreatedBy, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s, err
		}
		return s, fmt.Errorf("failed to scan sale: %w", err)
	}
	if customerID.Valid {
		id := pos.CustomerID(customerID.Int64)
		s.CustomerID = &id
	}
	s.Subtotal = d.money("subtotal", subtotal)
	s.Discount = d.money("discount", discount)
	s.Total = d.money("total", total)
	s.PaymentReceived = d.money("payment_received", received)
	s.ChangeGiven = d.money("change_given", change)
	s.CreatedAt = d.timestamp("created_at", createdAt)
	return s, d.err
}

// decoder parses TEXT columns and keeps the first failure.
type decoder struct {
	err error
}

func (d *decoder) money(column, v string) decimal.Decimal {
	if d.err != nil {
		return decimal.Zero
	}
	out, err := decimal.NewFromString(v)
	if err != nil {
		d.err = fmt.Errorf("malformed %s %q: %w", column, v, err)
		return decimal.Zero
	}
	return out
}

func (d *decoder) timestamp(column, v string) time.Time {
	if d.err != nil {
		return time.Time{}
	}
	out, err := time.Parse(timeLayout, v)
	if err != nil {
		d.err = fmt.Errorf("malformed %s %q: %w", column, v, err)
		return time.Time{}
	}
	return out
}

// =============================================================================
// HELPERS
// =============================================================================

func money(d decimal.Decimal) string {
	return d.StringFixed(pos.MoneyPlaces)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullSaleID(id *pos.SaleID) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*id), Valid: true}
}

func saleIDFrom(v sql.NullInt64) *pos.SaleID {
	if !v.Valid {
		return nil
	}
	id := pos.SaleID(v.Int64)
	return &id
}

func expectRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isConstraint(err error, code sqlite3.ErrNoExtended) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == code
}

var _ pos.TxStore = (*Store)(nil)
