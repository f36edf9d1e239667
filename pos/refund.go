/*
refund.go - Reversing a completed sale

PURPOSE:
  A sale is never deleted. Refunding or cancelling it appends compensating
  rows and moves the sale to a terminal status:
    1. One "return" StockMovement per line, restoring the quantity
    2. Product WAC re-averaged with the line's CostAtSale
    3. Credit sales only: a credit LedgerEntry of the sale total
    4. Sale status completed -> refunded | cancelled

STATUS TRANSITIONS:
  completed -> refunded
  completed -> cancelled
  Anything else is rejected with ErrSaleNotReversible.

PROFIT:
  Reports only count completed sales, so a reversed sale drops out of
  every profit figure without touching its lines.
*/
package pos

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// ReversalInput identifies the sale to reverse.
type ReversalInput struct {
	SaleID SaleID
	Reason string
	UserID UserID
}

// ReversalResult is everything a committed reversal created.
type ReversalResult struct {
	Sale        Sale
	Movements   []StockMovement
	LedgerEntry *LedgerEntry // credit sales with a non-zero total only
}

// RefundSale reverses a sale after the goods came back.
func (e *Engine) RefundSale(ctx context.Context, in ReversalInput) (ReversalResult, error) {
	return e.reverseSale(ctx, "refund_sale", in, SaleRefunded)
}

// CancelSale reverses a sale recorded by mistake.
func (e *Engine) CancelSale(ctx context.Context, in ReversalInput) (ReversalResult, error) {
	return e.reverseSale(ctx, "cancel_sale", in, SaleCancelled)
}

func (e *Engine) reverseSale(ctx context.Context, op string, in ReversalInput, status SaleStatus) (ReversalResult, error) {
	var out ReversalResult
	err := e.atomic(ctx, op, func(s Store) error {
		sale, err := s.GetSale(ctx, in.SaleID)
		if err != nil {
			return err
		}
		if sale.Status != SaleCompleted {
			return ErrSaleNotReversible
		}
		lines, err := s.SaleLines(ctx, sale.ID)
		if err != nil {
			return err
		}

		now := e.clock()
		reason := strings.TrimSpace(in.Reason)
		if reason == "" {
			reason = strings.ToUpper(string(status[:1])) + string(status[1:]) + " " + sale.ReceiptNo
		}
		saleID := sale.ID

		out.Movements = make([]StockMovement, 0, len(lines))
		for _, line := range lines {
			// Re-read per line: two lines may share a product.
			p, err := s.GetProduct(ctx, line.ProductID)
			if err != nil {
				return err
			}
			newQty := p.Quantity + line.Quantity
			newWAC := WeightedAverage(p.Quantity, p.WACCost, line.Quantity, line.CostAtSale)

			if err := s.UpdateProductStock(ctx, ProductStockUpdate{
				ID:           p.ID,
				Quantity:     newQty,
				WACCost:      newWAC,
				LastUnitCost: p.LastUnitCost,
				UpdatedAt:    now,
			}); err != nil {
				return err
			}

			m := StockMovement{
				ProductID:     p.ID,
				Type:          MovementReturn,
				Quantity:      line.Quantity,
				PreviousStock: p.Quantity,
				NewStock:      newQty,
				PreviousWAC:   p.WACCost,
				NewWAC:        newWAC,
				UnitCost:      line.CostAtSale,
				SaleID:        &saleID,
				Reason:        reason,
				CreatedBy:     in.UserID,
				CreatedAt:     now,
			}
			if m.ID, err = s.InsertStockMovement(ctx, m); err != nil {
				return err
			}
			out.Movements = append(out.Movements, m)
		}

		if sale.PaymentMethod == PaymentCredit && sale.CustomerID != nil && sale.Total.IsPositive() {
			customer, err := s.GetCustomer(ctx, *sale.CustomerID)
			if err != nil {
				return err
			}
			entry, err := appendLedgerEntry(ctx, s, customer, LedgerCredit, sale.Total, LedgerEntry{
				SaleID:      &saleID,
				Description: reason,
				CreatedBy:   in.UserID,
				CreatedAt:   now,
			})
			if err != nil {
				return err
			}
			out.LedgerEntry = &entry
		}

		if err := s.UpdateSaleStatus(ctx, sale.ID, status); err != nil {
			return err
		}
		sale.Status = status
		out.Sale = sale
		return nil
	})
	if err != nil {
		return ReversalResult{}, err
	}

	e.logger.Info("sale reversed",
		zap.Int64("sale_id", int64(in.SaleID)),
		zap.String("status", string(status)),
		zap.Int("lines", len(out.Movements)),
		zap.Bool("ledger_credit", out.LedgerEntry != nil),
	)
	return out, nil
}
