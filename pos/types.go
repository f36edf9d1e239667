/*
Package pos provides the inventory costing and credit-ledger engine.

PURPOSE:
  This package contains the domain types and algorithms behind the
  point-of-sale backend: weighted-average costing on stock receipts,
  atomic sale composition (cash, card and credit "khata" sales), the
  per-customer running-balance ledger, and read-side profit reports.

KEY CONCEPTS IN THIS FILE (types.go):
  - Product / Customer: long-lived rows, updated in place, never deleted
  - Sale / SaleLine: created once per sale, only the sale status changes
  - LedgerEntry: append-only customer balance history
  - StockMovement: append-only audit of every quantity change

DESIGN PRINCIPLES:
  1. Cost snapshots: a sale line freezes the product's WAC at sale time.
     Profit is always computed from the snapshot, never the current WAC.
  2. Precision: all money uses decimal.Decimal, normalized to 2 places.
  3. Type Safety: each entity has its own integer ID type.
  4. Auditability: every stock or balance change leaves a row behind.

SEE ALSO:
  - store.go: Persistence contract
  - costing.go: Weighted-average cost maintenance
  - sale.go: Sale transaction orchestration
  - ledger.go: Credit ledger
  - report.go: Profit and balance reports
*/
package pos

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ProductID int64
type CustomerID int64
type SaleID int64
type SaleLineID int64
type LedgerEntryID int64
type MovementID int64

// UserID identifies the operator performing an action. Authentication is
// handled outside the engine, so this is an opaque value.
type UserID string

// =============================================================================
// PRODUCT & CUSTOMER
// =============================================================================

// Product is a stocked item. Quantity and WACCost are only changed by
// stock receipts, adjustments, sales and sale reversals.
type Product struct {
	ID            ProductID
	SKU           string
	Name          string
	SellPrice     decimal.Decimal
	Quantity      int64
	WACCost       decimal.Decimal // zero whenever Quantity is zero
	LastUnitCost  decimal.Decimal
	MinStockLevel int64
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// StockValue is the inventory value of the product at its current WAC.
func (p Product) StockValue() decimal.Decimal {
	return Round(p.WACCost.Mul(decimal.NewFromInt(p.Quantity)))
}

// Customer is a buyer who may purchase on credit.
// CreditBalance is the amount currently owed; negative means the
// customer holds store credit.
type Customer struct {
	ID            CustomerID
	Name          string
	Phone         string
	CreditLimit   decimal.Decimal
	CreditBalance decimal.Decimal
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RemainingCredit is how much more the customer may owe before hitting
// the limit. It is negative when the limit is already exceeded.
func (c Customer) RemainingCredit() decimal.Decimal {
	return c.CreditLimit.Sub(c.CreditBalance)
}

// =============================================================================
// SALE
// =============================================================================

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentCard   PaymentMethod = "card"
	PaymentCredit PaymentMethod = "credit"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentCredit:
		return true
	}
	return false
}

type SaleStatus string

const (
	SaleCompleted SaleStatus = "completed"
	SaleRefunded  SaleStatus = "refunded"
	SaleCancelled SaleStatus = "cancelled"
)

func (s SaleStatus) Valid() bool {
	switch s {
	case SaleCompleted, SaleRefunded, SaleCancelled:
		return true
	}
	return false
}

// Sale is the header of a completed checkout.
type Sale struct {
	ID              SaleID
	ReceiptNo       string
	CustomerID      *CustomerID // nil for walk-in sales
	Subtotal        decimal.Decimal
	Discount        decimal.Decimal
	Total           decimal.Decimal
	PaymentMethod   PaymentMethod
	PaymentReceived decimal.Decimal
	ChangeGiven     decimal.Decimal
	Status          SaleStatus
	Notes           string
	CreatedBy       UserID
	CreatedAt       time.Time
}

// SaleLine is one product on a sale.
// CostAtSale is the product's WAC when the sale was recorded and is never
// recomputed afterwards.
type SaleLine struct {
	ID           SaleLineID
	SaleID       SaleID
	ProductID    ProductID
	Quantity     int64
	UnitPrice    decimal.Decimal
	CostAtSale   decimal.Decimal
	LineDiscount decimal.Decimal
	LineTotal    decimal.Decimal
}

// GrossAmount is Quantity*UnitPrice before the line discount.
func (l SaleLine) GrossAmount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(l.Quantity))
}

// CostAmount is Quantity*CostAtSale.
func (l SaleLine) CostAmount() decimal.Decimal {
	return l.CostAtSale.Mul(decimal.NewFromInt(l.Quantity))
}

// =============================================================================
// LEDGER ENTRY - Append-only customer balance history
// =============================================================================

type LedgerEntryType string

const (
	LedgerDebit  LedgerEntryType = "debit"  // customer owes more
	LedgerCredit LedgerEntryType = "credit" // customer paid or was credited
)

// LedgerEntry records one change to a customer's balance.
// RunningBalance is the balance immediately after this entry.
type LedgerEntry struct {
	ID             LedgerEntryID
	CustomerID     CustomerID
	Type           LedgerEntryType
	Amount         decimal.Decimal // always positive
	RunningBalance decimal.Decimal
	SaleID         *SaleID
	Description    string
	CreatedBy      UserID
	CreatedAt      time.Time
}

// =============================================================================
// STOCK MOVEMENT - Append-only quantity audit
// =============================================================================

type MovementType string

const (
	MovementStockIn    MovementType = "stock_in"
	MovementSale       MovementType = "sale"
	MovementAdjustment MovementType = "adjustment"
	MovementReturn     MovementType = "return"
	MovementDamage     MovementType = "damage"
)

func (t MovementType) Valid() bool {
	switch t {
	case MovementStockIn, MovementSale, MovementAdjustment, MovementReturn, MovementDamage:
		return true
	}
	return false
}

// StockMovement records a single quantity change on a product.
// Quantity is signed: positive adds stock, negative removes it.
type StockMovement struct {
	ID            MovementID
	ProductID     ProductID
	Type          MovementType
	Quantity      int64
	PreviousStock int64
	NewStock      int64
	PreviousWAC   decimal.Decimal
	NewWAC        decimal.Decimal
	UnitCost      decimal.Decimal
	SaleID        *SaleID
	Reason        string
	CreatedBy     UserID
	CreatedAt     time.Time
}
