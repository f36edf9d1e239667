/*
sale.go - Sale transaction orchestration

PURPOSE:
  Composes a checkout into its full set of effects and commits them as one
  atomic unit:
    1. Sale header
    2. One SaleLine per cart line, each with a frozen CostAtSale
    3. Product quantity decrements
    4. One "sale" StockMovement per line
    5. Credit sales only: a debit LedgerEntry and the new customer balance

TWO PHASES:
  draftSale() validates every line and computes every amount without
  writing anything. writeSale() then performs the inserts and updates.
  A failure on line 2 of 3 is therefore detected before line 1 is written,
  and the surrounding WithTx rolls back anything a storage failure leaves
  behind.

AMOUNTS:
  lineTotal = quantity*unitPrice - lineDiscount
  subtotal  = sum(lineTotal)
  total     = subtotal - discount
  change    = max(0, amountPaid - total)           (cash and card only)

STOCK CHECK:
  Quantities are checked cumulatively per product, so two lines for the
  same product cannot together sell more than is on hand.

SEE ALSO:
  - refund.go: Reversing a completed sale
  - ledger.go: RecordPayment and statements
*/
package pos

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// INPUTS & RESULT
// =============================================================================

// SaleLineInput is one cart line.
type SaleLineInput struct {
	ProductID    ProductID
	Quantity     int64
	UnitPrice    *decimal.Decimal // nil charges the product's SellPrice
	LineDiscount decimal.Decimal
}

// CashSaleInput is a sale paid immediately by cash or card.
type CashSaleInput struct {
	CustomerID    *CustomerID // optional
	Lines         []SaleLineInput
	Discount      decimal.Decimal
	AmountPaid    decimal.Decimal
	PaymentMethod PaymentMethod // PaymentCash when empty
	Notes         string
	UserID        UserID
}

// CreditSaleInput is a sale charged to the customer's khata.
type CreditSaleInput struct {
	CustomerID CustomerID
	Lines      []SaleLineInput
	Discount   decimal.Decimal
	Notes      string
	UserID     UserID
}

// SaleResult is everything a committed sale created.
type SaleResult struct {
	Sale        Sale
	Lines       []SaleLine
	Movements   []StockMovement
	Change      decimal.Decimal
	LedgerEntry *LedgerEntry // credit sales with a non-zero total only
}

// =============================================================================
// CASH / CARD SALE
// =============================================================================

// RecordCashSale records a sale paid at the counter. No ledger entry is written.
func (e *Engine) RecordCashSale(ctx context.Context, in CashSaleInput) (SaleResult, error) {
	method := in.PaymentMethod
	if method == "" {
		method = PaymentCash
	}
	if method != PaymentCash && method != PaymentCard {
		return SaleResult{}, ErrInvalidPaymentMethod
	}
	if in.AmountPaid.IsNegative() {
		return SaleResult{}, ErrInvalidAmount
	}

	var out SaleResult
	err := e.atomic(ctx, "record_cash_sale", func(s Store) error {
		if in.CustomerID != nil {
			if _, err := s.GetCustomer(ctx, *in.CustomerID); err != nil {
				return err
			}
		}

		draft, err := draftSale(ctx, s, in.Lines, in.Discount)
		if err != nil {
			return err
		}

		paid := Round(in.AmountPaid)
		if method == PaymentCard && paid.IsZero() {
			paid = draft.total
		}
		if e.policy.RequireFullPayment && paid.LessThan(draft.total) {
			return ErrUnderpayment
		}
		change := maxDecimal(decimal.Zero, paid.Sub(draft.total))

		sale := e.newSale(draft, method, in.Notes, in.UserID)
		sale.CustomerID = in.CustomerID
		sale.PaymentReceived = paid
		sale.ChangeGiven = change

		out, err = e.writeSale(ctx, s, draft, sale)
		if err != nil {
			return err
		}
		out.Change = change
		return nil
	})
	if err != nil {
		return SaleResult{}, err
	}

	e.logger.Info("sale recorded",
		zap.Int64("sale_id", int64(out.Sale.ID)),
		zap.String("receipt_no", out.Sale.ReceiptNo),
		zap.String("payment_method", string(method)),
		zap.String("total", out.Sale.Total.StringFixed(MoneyPlaces)),
		zap.Int("lines", len(out.Lines)),
	)
	return out, nil
}

// =============================================================================
// CREDIT (KHATA) SALE
// =============================================================================

// RecordCreditSale records a sale charged to a customer's balance.
func (e *Engine) RecordCreditSale(ctx context.Context, in CreditSaleInput) (SaleResult, error) {
	var out SaleResult
	err := e.atomic(ctx, "record_credit_sale", func(s Store) error {
		customer, err := s.GetCustomer(ctx, in.CustomerID)
		if err != nil {
			return err
		}
		if !customer.IsActive {
			return ErrCustomerInactive
		}

		draft, err := draftSale(ctx, s, in.Lines, in.Discount)
		if err != nil {
			return err
		}

		newBalance := customer.CreditBalance.Add(draft.total)
		if e.policy.EnforceCreditLimit && newBalance.GreaterThan(customer.CreditLimit) {
			return &CreditLimitError{
				CustomerID: customer.ID,
				Limit:      customer.CreditLimit,
				Balance:    customer.CreditBalance,
				Requested:  draft.total,
			}
		}

		sale := e.newSale(draft, PaymentCredit, in.Notes, in.UserID)
		sale.CustomerID = &customer.ID
		sale.PaymentReceived = decimal.Zero
		sale.ChangeGiven = decimal.Zero

		out, err = e.writeSale(ctx, s, draft, sale)
		if err != nil {
			return err
		}
		out.Change = decimal.Zero

		// Ledger amounts must be positive; a fully discounted sale owes nothing.
		if !draft.total.IsPositive() {
			return nil
		}
		saleID := out.Sale.ID
		entry, err := appendLedgerEntry(ctx, s, customer, LedgerDebit, draft.total, LedgerEntry{
			SaleID:      &saleID,
			Description: "Credit sale " + out.Sale.ReceiptNo,
			CreatedBy:   in.UserID,
			CreatedAt:   out.Sale.CreatedAt,
		})
		if err != nil {
			return err
		}
		out.LedgerEntry = &entry
		return nil
	})
	if err != nil {
		return SaleResult{}, err
	}

	fields := []zap.Field{
		zap.Int64("sale_id", int64(out.Sale.ID)),
		zap.Int64("customer_id", int64(in.CustomerID)),
		zap.String("total", out.Sale.Total.StringFixed(MoneyPlaces)),
	}
	if out.LedgerEntry != nil {
		fields = append(fields, zap.String("running_balance", out.LedgerEntry.RunningBalance.StringFixed(MoneyPlaces)))
	}
	e.logger.Info("credit sale recorded", fields...)
	return out, nil
}

// =============================================================================
// DRAFT & WRITE
// =============================================================================

// saleDraft is a fully validated sale that has not been written.
type saleDraft struct {
	lines    []SaleLine
	products map[ProductID]Product
	subtotal decimal.Decimal
	discount decimal.Decimal
	total    decimal.Decimal
}

func draftSale(ctx context.Context, s Store, inputs []SaleLineInput, discount decimal.Decimal) (*saleDraft, error) {
	if len(inputs) == 0 {
		return nil, ErrEmptySale
	}
	if discount.IsNegative() {
		return nil, ErrInvalidDiscount
	}

	d := &saleDraft{
		lines:    make([]SaleLine, 0, len(inputs)),
		products: make(map[ProductID]Product, len(inputs)),
		subtotal: decimal.Zero,
		discount: Round(discount),
	}
	remaining := make(map[ProductID]int64, len(inputs))

	for i, in := range inputs {
		if in.Quantity <= 0 {
			return nil, fmt.Errorf("line %d: %w", i+1, ErrInvalidQuantity)
		}

		p, seen := d.products[in.ProductID]
		if !seen {
			var err error
			if p, err = s.GetProduct(ctx, in.ProductID); err != nil {
				return nil, fmt.Errorf("line %d: %w", i+1, err)
			}
			if !p.IsActive {
				return nil, fmt.Errorf("line %d: %w", i+1, ErrProductInactive)
			}
			d.products[p.ID] = p
			remaining[p.ID] = p.Quantity
		}

		if in.Quantity > remaining[p.ID] {
			return nil, &InsufficientStockError{
				ProductID: p.ID,
				Line:      i,
				Available: remaining[p.ID],
				Requested: in.Quantity,
			}
		}
		remaining[p.ID] -= in.Quantity

		price := p.SellPrice
		if in.UnitPrice != nil {
			if in.UnitPrice.IsNegative() {
				return nil, fmt.Errorf("line %d: %w", i+1, ErrInvalidPrice)
			}
			price = Round(*in.UnitPrice)
		}

		line := SaleLine{
			ProductID:    p.ID,
			Quantity:     in.Quantity,
			UnitPrice:    price,
			CostAtSale:   p.WACCost,
			LineDiscount: Round(in.LineDiscount),
		}
		gross := line.GrossAmount()
		if line.LineDiscount.IsNegative() || line.LineDiscount.GreaterThan(gross) {
			return nil, fmt.Errorf("line %d: %w", i+1, ErrInvalidDiscount)
		}
		line.LineTotal = gross.Sub(line.LineDiscount)

		d.lines = append(d.lines, line)
		d.subtotal = d.subtotal.Add(line.LineTotal)
	}

	if d.discount.GreaterThan(d.subtotal) {
		return nil, ErrInvalidDiscount
	}
	d.total = d.subtotal.Sub(d.discount)
	return d, nil
}

func (e *Engine) newSale(d *saleDraft, method PaymentMethod, notes string, user UserID) Sale {
	return Sale{
		ReceiptNo:     newReceiptNo(),
		Subtotal:      d.subtotal,
		Discount:      d.discount,
		Total:         d.total,
		PaymentMethod: method,
		Status:        SaleCompleted,
		Notes:         strings.TrimSpace(notes),
		CreatedBy:     user,
		CreatedAt:     e.clock(),
	}
}

// writeSale inserts the sale, its lines, the stock decrements and the
// movements. It must run inside an atomic unit.
func (e *Engine) writeSale(ctx context.Context, s Store, d *saleDraft, sale Sale) (SaleResult, error) {
	var err error
	if sale.ID, err = s.InsertSale(ctx, sale); err != nil {
		return SaleResult{}, err
	}

	saleID := sale.ID
	out := SaleResult{
		Sale:      sale,
		Lines:     make([]SaleLine, 0, len(d.lines)),
		Movements: make([]StockMovement, 0, len(d.lines)),
	}
	for _, line := range d.lines {
		line.SaleID = sale.ID
		if line.ID, err = s.InsertSaleLine(ctx, line); err != nil {
			return SaleResult{}, err
		}

		p := d.products[line.ProductID]
		newQty := p.Quantity - line.Quantity
		newWAC := p.WACCost
		if newQty == 0 {
			newWAC = decimal.Zero
		}
		if err := s.UpdateProductStock(ctx, ProductStockUpdate{
			ID:           p.ID,
			Quantity:     newQty,
			WACCost:      newWAC,
			LastUnitCost: p.LastUnitCost,
			UpdatedAt:    sale.CreatedAt,
		}); err != nil {
			return SaleResult{}, err
		}

		m := StockMovement{
			ProductID:     p.ID,
			Type:          MovementSale,
			Quantity:      -line.Quantity,
			PreviousStock: p.Quantity,
			NewStock:      newQty,
			PreviousWAC:   p.WACCost,
			NewWAC:        newWAC,
			UnitCost:      line.CostAtSale,
			SaleID:        &saleID,
			Reason:        "Sale " + sale.ReceiptNo,
			CreatedBy:     sale.CreatedBy,
			CreatedAt:     sale.CreatedAt,
		}
		if m.ID, err = s.InsertStockMovement(ctx, m); err != nil {
			return SaleResult{}, err
		}

		p.Quantity = newQty
		p.WACCost = newWAC
		d.products[p.ID] = p

		out.Lines = append(out.Lines, line)
		out.Movements = append(out.Movements, m)
	}
	return out, nil
}

func newReceiptNo() string {
	return "INV-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}
