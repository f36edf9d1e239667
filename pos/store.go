/*
store.go - Persistence contract for the engine

PURPOSE:
  Defines the interface between the engine and the embedded database.
  The Store only knows how to insert rows, update a row by id with values
  the engine already computed, and select rows by id or filter. All
  business rules live in the engine.

KEY INTERFACES:
  Store:   Typed row primitives (strongly typed mapping at the boundary)
  TxStore: Store plus WithTx, the atomic unit every mutation runs in

ATOMIC UNITS:
  WithTx() ensures all-or-nothing semantics. A credit sale writes a sale,
  its lines, product quantities, movements, a ledger entry and the
  customer balance. Either every one of those rows commits or none do.
  The Store passed to fn is the only handle that may be used inside the
  unit; it sees the unit's own uncommitted writes.

APPEND-ONLY ROWS:
  Sale lines, ledger entries and stock movements have Insert methods only.
  No Update, no Delete. Corrections are new rows.

NOT FOUND:
  Get* methods return ErrProductNotFound, ErrCustomerNotFound or
  ErrSaleNotFound when the id does not exist.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Durable SQLite store
  - pos/store/memory.go:    In-memory store for tests, demos and dev

SEE ALSO:
  - engine.go: atomic() wraps WithTx with logging and error mapping
*/
package pos

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE - Typed row primitives
// =============================================================================

// Store handles persistence of engine rows.
type Store interface {
	// Products
	InsertProduct(ctx context.Context, p Product) (ProductID, error)
	GetProduct(ctx context.Context, id ProductID) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	UpdateProductStock(ctx context.Context, u ProductStockUpdate) error
	SetProductActive(ctx context.Context, id ProductID, active bool, at time.Time) error

	// Customers
	InsertCustomer(ctx context.Context, c Customer) (CustomerID, error)
	GetCustomer(ctx context.Context, id CustomerID) (Customer, error)
	ListCustomers(ctx context.Context) ([]Customer, error)
	UpdateCustomerBalance(ctx context.Context, id CustomerID, balance decimal.Decimal, at time.Time) error
	SetCustomerActive(ctx context.Context, id CustomerID, active bool, at time.Time) error

	// Sales
	InsertSale(ctx context.Context, s Sale) (SaleID, error)
	GetSale(ctx context.Context, id SaleID) (Sale, error)
	UpdateSaleStatus(ctx context.Context, id SaleID, status SaleStatus) error
	ListSales(ctx context.Context, f SaleFilter) ([]Sale, error)
	InsertSaleLine(ctx context.Context, l SaleLine) (SaleLineID, error)
	SaleLines(ctx context.Context, id SaleID) ([]SaleLine, error)
	ListSaleLines(ctx context.Context, f SaleFilter) ([]SaleLine, error)

	// Audit rows (append-only)
	InsertStockMovement(ctx context.Context, m StockMovement) (MovementID, error)
	StockMovements(ctx context.Context, id ProductID) ([]StockMovement, error)
	InsertLedgerEntry(ctx context.Context, e LedgerEntry) (LedgerEntryID, error)
	LedgerEntries(ctx context.Context, id CustomerID) ([]LedgerEntry, error)
}

// TxStore wraps Store with atomic unit support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through the unit is rolled back.
	// If fn returns nil, the unit is committed.
	// Units are serialized: no other caller observes or interleaves with
	// a unit in progress.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// ProductStockUpdate sets the stock columns of a product.
type ProductStockUpdate struct {
	ID           ProductID
	Quantity     int64
	WACCost      decimal.Decimal
	LastUnitCost decimal.Decimal
	UpdatedAt    time.Time
}

// SaleFilter selects sales by creation time and status.
// From is inclusive, To is exclusive; zero values leave a side open.
type SaleFilter struct {
	From   time.Time
	To     time.Time
	Status SaleStatus // empty matches every status
}

// Match reports whether a sale satisfies the filter.
func (f SaleFilter) Match(s Sale) bool {
	if !f.From.IsZero() && s.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !s.CreatedAt.Before(f.To) {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	return true
}
