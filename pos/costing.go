/*
costing.go - Weighted-average cost maintenance

PURPOSE:
  Keeps each product's quantity and weighted-average unit cost (WAC)
  current. WAC only moves when stock comes in at a cost: purchases
  (ReceiveStock) and sale reversals (see refund.go). Sales and manual
  adjustments change quantity at the current WAC.

FORMULA:
  newQty = qty + added
  newWac = unitCost                                   when qty == 0
  newWac = round2((qty*wac + added*unitCost) / newQty) otherwise

  Rounding is round half away from zero to 2 places (money.go Round),
  the same convention used for every amount in the engine.

INVARIANTS:
  - Quantity never goes negative
  - WAC is zero whenever quantity is zero
  - Every quantity change appends exactly one StockMovement holding the
    persisted previous and new WAC (never recomputed from the formula)

EXAMPLE:
  qty=0                 receive 10 @ 100.00 -> qty=10, wac=100.00
  qty=10, wac=100.00    receive 10 @ 120.00 -> qty=20, wac=110.00
*/
package pos

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// RECEIVE STOCK
// =============================================================================

// ReceiveStockInput is a purchase of stock at a unit cost.
type ReceiveStockInput struct {
	ProductID ProductID
	Quantity  int64
	UnitCost  decimal.Decimal
	Reason    string
	UserID    UserID
}

// StockReceipt is the result of a committed receipt.
type StockReceipt struct {
	Product  Product
	Movement StockMovement
}

// ReceiveStock adds stock and re-averages the product's cost.
func (e *Engine) ReceiveStock(ctx context.Context, in ReceiveStockInput) (StockReceipt, error) {
	if in.Quantity <= 0 {
		return StockReceipt{}, ErrInvalidQuantity
	}
	if in.UnitCost.IsNegative() {
		return StockReceipt{}, ErrInvalidCost
	}
	unitCost := Round(in.UnitCost)

	var out StockReceipt
	err := e.atomic(ctx, "receive_stock", func(s Store) error {
		p, err := s.GetProduct(ctx, in.ProductID)
		if err != nil {
			return err
		}
		if !p.IsActive {
			return ErrProductInactive
		}

		now := e.clock()
		newQty := p.Quantity + in.Quantity
		newWAC := WeightedAverage(p.Quantity, p.WACCost, in.Quantity, unitCost)

		if err := s.UpdateProductStock(ctx, ProductStockUpdate{
			ID:           p.ID,
			Quantity:     newQty,
			WACCost:      newWAC,
			LastUnitCost: unitCost,
			UpdatedAt:    now,
		}); err != nil {
			return err
		}

		m := StockMovement{
			ProductID:     p.ID,
			Type:          MovementStockIn,
			Quantity:      in.Quantity,
			PreviousStock: p.Quantity,
			NewStock:      newQty,
			PreviousWAC:   p.WACCost,
			NewWAC:        newWAC,
			UnitCost:      unitCost,
			Reason:        strings.TrimSpace(in.Reason),
			CreatedBy:     in.UserID,
			CreatedAt:     now,
		}
		if m.ID, err = s.InsertStockMovement(ctx, m); err != nil {
			return err
		}

		p.Quantity = newQty
		p.WACCost = newWAC
		p.LastUnitCost = unitCost
		p.UpdatedAt = now
		out = StockReceipt{Product: p, Movement: m}
		return nil
	})
	if err != nil {
		return StockReceipt{}, err
	}

	e.logger.Info("stock received",
		zap.Int64("product_id", int64(in.ProductID)),
		zap.Int64("quantity", in.Quantity),
		zap.String("unit_cost", unitCost.StringFixed(MoneyPlaces)),
		zap.String("previous_wac", out.Movement.PreviousWAC.StringFixed(MoneyPlaces)),
		zap.String("new_wac", out.Movement.NewWAC.StringFixed(MoneyPlaces)),
	)
	return out, nil
}

// =============================================================================
// ADJUST STOCK
// =============================================================================

// StockAdjustmentInput is a manual quantity correction.
//
// Allowed types:
//   - MovementAdjustment: any non-zero delta (stock count corrections)
//   - MovementDamage:     negative delta only (write-offs)
//   - MovementReturn:     positive delta only (goods returned outside a sale reversal)
type StockAdjustmentInput struct {
	ProductID ProductID
	Delta     int64
	Type      MovementType
	Reason    string
	UserID    UserID
}

// AdjustStock changes quantity without changing cost. Removing the last
// unit resets the WAC to zero.
func (e *Engine) AdjustStock(ctx context.Context, in StockAdjustmentInput) (StockMovement, error) {
	if in.Delta == 0 {
		return StockMovement{}, ErrInvalidQuantity
	}
	switch in.Type {
	case MovementAdjustment:
	case MovementDamage:
		if in.Delta > 0 {
			return StockMovement{}, ErrInvalidMovement
		}
	case MovementReturn:
		if in.Delta < 0 {
			return StockMovement{}, ErrInvalidMovement
		}
	default:
		return StockMovement{}, ErrInvalidMovement
	}

	var m StockMovement
	err := e.atomic(ctx, "adjust_stock", func(s Store) error {
		p, err := s.GetProduct(ctx, in.ProductID)
		if err != nil {
			return err
		}
		newQty := p.Quantity + in.Delta
		if newQty < 0 {
			return &InsufficientStockError{ProductID: p.ID, Line: -1, Available: p.Quantity, Requested: -in.Delta}
		}
		newWAC := p.WACCost
		if newQty == 0 {
			newWAC = decimal.Zero
		}

		now := e.clock()
		if err := s.UpdateProductStock(ctx, ProductStockUpdate{
			ID:           p.ID,
			Quantity:     newQty,
			WACCost:      newWAC,
			LastUnitCost: p.LastUnitCost,
			UpdatedAt:    now,
		}); err != nil {
			return err
		}

		m = StockMovement{
			ProductID:     p.ID,
			Type:          in.Type,
			Quantity:      in.Delta,
			PreviousStock: p.Quantity,
			NewStock:      newQty,
			PreviousWAC:   p.WACCost,
			NewWAC:        newWAC,
			UnitCost:      p.WACCost,
			Reason:        strings.TrimSpace(in.Reason),
			CreatedBy:     in.UserID,
			CreatedAt:     now,
		}
		m.ID, err = s.InsertStockMovement(ctx, m)
		return err
	})
	if err != nil {
		return StockMovement{}, err
	}

	e.logger.Info("stock adjusted",
		zap.Int64("product_id", int64(in.ProductID)),
		zap.String("type", string(in.Type)),
		zap.Int64("delta", in.Delta),
		zap.Int64("new_stock", m.NewStock),
	)
	return m, nil
}
