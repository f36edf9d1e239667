/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's types from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Responses carry amounts as strings with exactly two decimals ("110.00").
  Requests accept either a JSON string or a JSON number; both are parsed
  exactly by decimal.Decimal, never through float64.

VALIDATION:
  Request structs carry validator/v10 tags for shape checks (required
  fields, positive counts, enums). Business rules stay in the engine.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/khata-engine/pos"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

type CreateProductRequest struct {
	SKU           string          `json:"sku" validate:"required,max=64"`
	Name          string          `json:"name" validate:"required,max=200"`
	SellPrice     decimal.Decimal `json:"sell_price"`
	MinStockLevel int64           `json:"min_stock_level" validate:"gte=0"`
}

type CreateCustomerRequest struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Phone       string          `json:"phone" validate:"omitempty,max=32"`
	CreditLimit decimal.Decimal `json:"credit_limit"`
}

type ReceiveStockRequest struct {
	Quantity int64           `json:"quantity" validate:"gt=0"`
	UnitCost decimal.Decimal `json:"unit_cost"`
	Reason   string          `json:"reason" validate:"max=500"`
}

type AdjustStockRequest struct {
	Delta  int64  `json:"delta" validate:"ne=0"`
	Type   string `json:"type" validate:"required,oneof=adjustment damage return"`
	Reason string `json:"reason" validate:"required,max=500"`
}

type SaleLineRequest struct {
	ProductID    int64            `json:"product_id" validate:"gt=0"`
	Quantity     int64            `json:"quantity" validate:"gt=0"`
	UnitPrice    *decimal.Decimal `json:"unit_price,omitempty"`
	LineDiscount decimal.Decimal  `json:"line_discount"`
}

type CashSaleRequest struct {
	CustomerID    *int64            `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	Lines         []SaleLineRequest `json:"lines" validate:"required,min=1,dive"`
	Discount      decimal.Decimal   `json:"discount"`
	AmountPaid    decimal.Decimal   `json:"amount_paid"`
	PaymentMethod string            `json:"payment_method" validate:"omitempty,oneof=cash card"`
	Notes         string            `json:"notes" validate:"max=500"`
}

type CreditSaleRequest struct {
	CustomerID int64             `json:"customer_id" validate:"gt=0"`
	Lines      []SaleLineRequest `json:"lines" validate:"required,min=1,dive"`
	Discount   decimal.Decimal   `json:"discount"`
	Notes      string            `json:"notes" validate:"max=500"`
}

type PaymentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=500"`
}

type ReversalRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type ProductDTO struct {
	ID            int64  `json:"id"`
	SKU           string `json:"sku"`
	Name          string `json:"name"`
	SellPrice     string `json:"sell_price"`
	Quantity      int64  `json:"quantity"`
	WACCost       string `json:"wac_cost"`
	LastUnitCost  string `json:"last_unit_cost"`
	MinStockLevel int64  `json:"min_stock_level"`
	IsActive      bool   `json:"is_active"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

type CustomerDTO struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Phone           string `json:"phone,omitempty"`
	CreditLimit     string `json:"credit_limit"`
	CreditBalance   string `json:"credit_balance"`
	RemainingCredit string `json:"remaining_credit"`
	IsActive        bool   `json:"is_active"`
	CreatedAt       string `json:"created_at"`
}

type SaleLineDTO struct {
	ID           int64  `json:"id"`
	ProductID    int64  `json:"product_id"`
	Quantity     int64  `json:"quantity"`
	UnitPrice    string `json:"unit_price"`
	CostAtSale   string `json:"cost_at_sale"`
	LineDiscount string `json:"line_discount"`
	LineTotal    string `json:"line_total"`
}

type SaleDTO struct {
	ID              int64         `json:"id"`
	ReceiptNo       string        `json:"receipt_no"`
	CustomerID      *int64        `json:"customer_id,omitempty"`
	Subtotal        string        `json:"subtotal"`
	Discount        string        `json:"discount"`
	Total           string        `json:"total"`
	PaymentMethod   string        `json:"payment_method"`
	PaymentReceived string        `json:"payment_received"`
	ChangeGiven     string        `json:"change_given"`
	Status          string        `json:"status"`
	Notes           string        `json:"notes,omitempty"`
	CreatedBy       string        `json:"created_by,omitempty"`
	CreatedAt       string        `json:"created_at"`
	Lines           []SaleLineDTO `json:"lines"`
}

type SaleResultDTO struct {
	Sale        SaleDTO         `json:"sale"`
	Change      string          `json:"change"`
	LedgerEntry *LedgerEntryDTO `json:"ledger_entry,omitempty"`
	Movements   []MovementDTO   `json:"movements"`
}

type ReversalDTO struct {
	Sale        SaleDTO         `json:"sale"`
	LedgerEntry *LedgerEntryDTO `json:"ledger_entry,omitempty"`
	Movements   []MovementDTO   `json:"movements"`
}

type MovementDTO struct {
	ID            int64  `json:"id"`
	ProductID     int64  `json:"product_id"`
	Type          string `json:"type"`
	Quantity      int64  `json:"quantity"`
	PreviousStock int64  `json:"previous_stock"`
	NewStock      int64  `json:"new_stock"`
	PreviousWAC   string `json:"previous_wac"`
	NewWAC        string `json:"new_wac"`
	UnitCost      string `json:"unit_cost"`
	SaleID        *int64 `json:"sale_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
	CreatedBy     string `json:"created_by,omitempty"`
	CreatedAt     string `json:"created_at"`
}

type StockReceiptDTO struct {
	Product  ProductDTO  `json:"product"`
	Movement MovementDTO `json:"movement"`
}

type LedgerEntryDTO struct {
	ID             int64  `json:"id"`
	CustomerID     int64  `json:"customer_id"`
	Type           string `json:"type"`
	Amount         string `json:"amount"`
	RunningBalance string `json:"running_balance"`
	SaleID         *int64 `json:"sale_id,omitempty"`
	Description    string `json:"description,omitempty"`
	CreatedBy      string `json:"created_by,omitempty"`
	CreatedAt      string `json:"created_at"`
}

type BalanceDTO struct {
	CustomerID    int64  `json:"customer_id"`
	CreditBalance string `json:"credit_balance"`
}

type StatementDTO struct {
	Customer CustomerDTO      `json:"customer"`
	Entries  []LedgerEntryDTO `json:"entries"`
}

type ProfitDTO struct {
	Date             string `json:"date,omitempty"`
	From             string `json:"from,omitempty"`
	To               string `json:"to,omitempty"`
	Revenue          string `json:"revenue"`
	Cost             string `json:"cost"`
	LineDiscounts    string `json:"line_discounts"`
	SaleDiscounts    string `json:"sale_discounts"`
	NetProfit        string `json:"net_profit"`
	Margin           string `json:"margin"`
	ItemCount        int64  `json:"item_count"`
	TransactionCount int    `json:"transaction_count"`
}

type LowStockDTO struct {
	ProductID     int64  `json:"product_id"`
	SKU           string `json:"sku"`
	Name          string `json:"name"`
	Quantity      int64  `json:"quantity"`
	MinStockLevel int64  `json:"min_stock_level"`
	Level         string `json:"level"`
}

type OutstandingDTO struct {
	CustomerID      int64  `json:"customer_id"`
	Name            string `json:"name"`
	Phone           string `json:"phone,omitempty"`
	CreditBalance   string `json:"credit_balance"`
	CreditLimit     string `json:"credit_limit"`
	RemainingCredit string `json:"remaining_credit"`
}

type InventoryDTO struct {
	Products []InventoryItemDTO `json:"products"`
	Units    int64              `json:"total_units"`
	Value    string             `json:"total_value"`
}

type InventoryItemDTO struct {
	ProductID  int64  `json:"product_id"`
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	Quantity   int64  `json:"quantity"`
	WACCost    string `json:"wac_cost"`
	StockValue string `json:"stock_value"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is returned for all errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func money(d decimal.Decimal) string {
	return d.StringFixed(pos.MoneyPlaces)
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func saleIDPtr(id *pos.SaleID) *int64 {
	if id == nil {
		return nil
	}
	v := int64(*id)
	return &v
}

func toProductDTO(p pos.Product) ProductDTO {
	return ProductDTO{
		ID:            int64(p.ID),
		SKU:           p.SKU,
		Name:          p.Name,
		SellPrice:     money(p.SellPrice),
		Quantity:      p.Quantity,
		WACCost:       money(p.WACCost),
		LastUnitCost:  money(p.LastUnitCost),
		MinStockLevel: p.MinStockLevel,
		IsActive:      p.IsActive,
		CreatedAt:     timestamp(p.CreatedAt),
		UpdatedAt:     timestamp(p.UpdatedAt),
	}
}

func toCustomerDTO(c pos.Customer) CustomerDTO {
	return CustomerDTO{
		ID:              int64(c.ID),
		Name:            c.Name,
		Phone:           c.Phone,
		CreditLimit:     money(c.CreditLimit),
		CreditBalance:   money(c.CreditBalance),
		RemainingCredit: money(c.RemainingCredit()),
		IsActive:        c.IsActive,
		CreatedAt:       timestamp(c.CreatedAt),
	}
}

func toSaleDTO(s pos.Sale, lines []pos.SaleLine) SaleDTO {
	dto := SaleDTO{
		ID:              int64(s.ID),
		ReceiptNo:       s.ReceiptNo,
		Subtotal:        money(s.Subtotal),
		Discount:        money(s.Discount),
		Total:           money(s.Total),
		PaymentMethod:   string(s.PaymentMethod),
		PaymentReceived: money(s.PaymentReceived),
		ChangeGiven:     money(s.ChangeGiven),
		Status:          string(s.Status),
		Notes:           s.Notes,
		CreatedBy:       string(s.CreatedBy),
		CreatedAt:       timestamp(s.CreatedAt),
		Lines:           make([]SaleLineDTO, len(lines)),
	}
	if s.CustomerID != nil {
		id := int64(*s.CustomerID)
		dto.CustomerID = &id
	}
	for i, l := range lines {
		dto.Lines[i] = SaleLineDTO{
			ID:           int64(l.ID),
			ProductID:    int64(l.ProductID),
			Quantity:     l.Quantity,
			UnitPrice:    money(l.UnitPrice),
			CostAtSale:   money(l.CostAtSale),
			LineDiscount: money(l.LineDiscount),
			LineTotal:    money(l.LineTotal),
		}
	}
	return dto
}

func toMovementDTO(m pos.StockMovement) MovementDTO {
	return MovementDTO{
		ID:            int64(m.ID),
		ProductID:     int64(m.ProductID),
		Type:          string(m.Type),
		Quantity:      m.Quantity,
		PreviousStock: m.PreviousStock,
		NewStock:      m.NewStock,
		PreviousWAC:   money(m.PreviousWAC),
		NewWAC:        money(m.NewWAC),
		UnitCost:      money(m.UnitCost),
		SaleID:        saleIDPtr(m.SaleID),
		Reason:        m.Reason,
		CreatedBy:     string(m.CreatedBy),
		CreatedAt:     timestamp(m.CreatedAt),
	}
}

func toMovementDTOs(ms []pos.StockMovement) []MovementDTO {
	out := make([]MovementDTO, len(ms))
	for i, m := range ms {
		out[i] = toMovementDTO(m)
	}
	return out
}

func toLedgerEntryDTO(e pos.LedgerEntry) LedgerEntryDTO {
	return LedgerEntryDTO{
		ID:             int64(e.ID),
		CustomerID:     int64(e.CustomerID),
		Type:           string(e.Type),
		Amount:         money(e.Amount),
		RunningBalance: money(e.RunningBalance),
		SaleID:         saleIDPtr(e.SaleID),
		Description:    e.Description,
		CreatedBy:      string(e.CreatedBy),
		CreatedAt:      timestamp(e.CreatedAt),
	}
}

func toLedgerEntryDTOPtr(e *pos.LedgerEntry) *LedgerEntryDTO {
	if e == nil {
		return nil
	}
	dto := toLedgerEntryDTO(*e)
	return &dto
}

func toProfitDTO(p pos.ProfitSummary) ProfitDTO {
	return ProfitDTO{
		From:             timestamp(p.From),
		To:               timestamp(p.To),
		Revenue:          money(p.Revenue),
		Cost:             money(p.Cost),
		LineDiscounts:    money(p.LineDiscounts),
		SaleDiscounts:    money(p.SaleDiscounts),
		NetProfit:        money(p.NetProfit),
		Margin:           money(p.Margin),
		ItemCount:        p.ItemCount,
		TransactionCount: p.TransactionCount,
	}
}
