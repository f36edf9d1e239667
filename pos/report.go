/*
report.go - Read-side profit, stock and balance reports

PURPOSE:
  Aggregations over committed rows. Nothing here writes, so calling a
  report twice with no writes in between returns identical results.

PROFIT (completed sales only, CreatedAt in [from, to)):
  cost      = sum(qty * costAtSale)
  gross     = sum(qty * unitPrice)
  netProfit = gross - cost - sum(lineDiscount) - sum(saleDiscount)
  revenue   = sum(sale.total)

  Profit uses the CostAtSale frozen on each line. The product's current
  WAC is never consulted, so later receipts cannot change past profit.

DAILY GROUPING:
  Sales are grouped by calendar date in the engine location (UTC unless
  WithLocation is given). Days without sales are omitted.

STOCK ALERTS:
  Active products with quantity <= minStockLevel:
    out_of_stock  quantity == 0
    critical      quantity <= minStockLevel/2
    low_stock     otherwise
*/
package pos

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PROFIT
// =============================================================================

// ProfitSummary aggregates completed sales over a period.
type ProfitSummary struct {
	From             time.Time
	To               time.Time
	Revenue          decimal.Decimal
	Cost             decimal.Decimal
	LineDiscounts    decimal.Decimal
	SaleDiscounts    decimal.Decimal
	NetProfit        decimal.Decimal
	Margin           decimal.Decimal
	ItemCount        int64
	TransactionCount int
}

// DailyProfit is a ProfitSummary for one calendar date.
type DailyProfit struct {
	Date string // YYYY-MM-DD in the engine location
	ProfitSummary
}

type profitAccumulator struct {
	revenue, cost, gross, lineDiscounts, saleDiscounts decimal.Decimal
	items                                              int64
	transactions                                       int
}

func newProfitAccumulator() *profitAccumulator {
	return &profitAccumulator{
		revenue:       decimal.Zero,
		cost:          decimal.Zero,
		gross:         decimal.Zero,
		lineDiscounts: decimal.Zero,
		saleDiscounts: decimal.Zero,
	}
}

func (a *profitAccumulator) addSale(s Sale) {
	a.revenue = a.revenue.Add(s.Total)
	a.saleDiscounts = a.saleDiscounts.Add(s.Discount)
	a.transactions++
}

func (a *profitAccumulator) addLine(l SaleLine) {
	a.gross = a.gross.Add(l.GrossAmount())
	a.cost = a.cost.Add(l.CostAmount())
	a.lineDiscounts = a.lineDiscounts.Add(l.LineDiscount)
	a.items += l.Quantity
}

func (a *profitAccumulator) summary(from, to time.Time) ProfitSummary {
	net := Round(a.gross.Sub(a.cost).Sub(a.lineDiscounts).Sub(a.saleDiscounts))
	revenue := Round(a.revenue)
	return ProfitSummary{
		From:             from,
		To:               to,
		Revenue:          revenue,
		Cost:             Round(a.cost),
		LineDiscounts:    Round(a.lineDiscounts),
		SaleDiscounts:    Round(a.saleDiscounts),
		NetProfit:        net,
		Margin:           Margin(net, revenue),
		ItemCount:        a.items,
		TransactionCount: a.transactions,
	}
}

// completedSales loads completed sales in [from, to) with their lines,
// both from the same snapshot.
func (e *Engine) completedSales(ctx context.Context, from, to time.Time) ([]Sale, map[SaleID][]SaleLine, error) {
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return nil, nil, ErrInvalidRange
	}
	f := SaleFilter{From: from, To: to, Status: SaleCompleted}

	var (
		sales []Sale
		lines []SaleLine
	)
	err := e.snapshot(ctx, "list_sales", func(s Store) error {
		var err error
		if sales, err = s.ListSales(ctx, f); err != nil {
			return err
		}
		lines, err = s.ListSaleLines(ctx, f)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	bySale := make(map[SaleID][]SaleLine, len(sales))
	for _, l := range lines {
		bySale[l.SaleID] = append(bySale[l.SaleID], l)
	}
	return sales, bySale, nil
}

// ProfitForRange summarizes completed sales created in [from, to).
func (e *Engine) ProfitForRange(ctx context.Context, from, to time.Time) (ProfitSummary, error) {
	sales, lines, err := e.completedSales(ctx, from, to)
	if err != nil {
		return ProfitSummary{}, err
	}
	acc := newProfitAccumulator()
	for _, s := range sales {
		acc.addSale(s)
		for _, l := range lines[s.ID] {
			acc.addLine(l)
		}
	}
	return acc.summary(from, to), nil
}

// DailyProfitBreakdown is ProfitForRange grouped by calendar date,
// ascending.
func (e *Engine) DailyProfitBreakdown(ctx context.Context, from, to time.Time) ([]DailyProfit, error) {
	sales, lines, err := e.completedSales(ctx, from, to)
	if err != nil {
		return nil, err
	}

	days := make(map[string]*profitAccumulator)
	starts := make(map[string]time.Time)
	for _, s := range sales {
		day := s.CreatedAt.In(e.location).Format(time.DateOnly)
		acc, ok := days[day]
		if !ok {
			acc = newProfitAccumulator()
			days[day] = acc
			starts[day] = startOfDay(s.CreatedAt, e.location)
		}
		acc.addSale(s)
		for _, l := range lines[s.ID] {
			acc.addLine(l)
		}
	}

	out := make([]DailyProfit, 0, len(days))
	for day, acc := range days {
		start := starts[day]
		out = append(out, DailyProfit{
			Date:          day,
			ProfitSummary: acc.summary(start.UTC(), start.AddDate(0, 0, 1).UTC()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// startOfDay is local midnight of the calendar date t falls on in loc.
func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// =============================================================================
// STOCK
// =============================================================================

type AlertLevel string

const (
	AlertOutOfStock AlertLevel = "out_of_stock"
	AlertCritical   AlertLevel = "critical"
	AlertLowStock   AlertLevel = "low_stock"
)

// AlertLevels lists every level, most severe first.
var AlertLevels = []AlertLevel{AlertOutOfStock, AlertCritical, AlertLowStock}

type LowStockAlert struct {
	ProductID     ProductID
	SKU           string
	Name          string
	Quantity      int64
	MinStockLevel int64
	Level         AlertLevel
}

// StockAlertLevel classifies a product, reporting false when it is not low.
func StockAlertLevel(p Product) (AlertLevel, bool) {
	switch {
	case !p.IsActive || p.Quantity > p.MinStockLevel:
		return "", false
	case p.Quantity == 0:
		return AlertOutOfStock, true
	case p.Quantity*2 <= p.MinStockLevel:
		return AlertCritical, true
	default:
		return AlertLowStock, true
	}
}

// LowStockAlerts lists active products at or below their minimum level,
// ascending by quantity, ties by id.
func (e *Engine) LowStockAlerts(ctx context.Context) ([]LowStockAlert, error) {
	products, err := e.store.ListProducts(ctx)
	if err != nil {
		return nil, e.read("list_products", err)
	}
	alerts := make([]LowStockAlert, 0)
	for _, p := range products {
		level, low := StockAlertLevel(p)
		if !low {
			continue
		}
		alerts = append(alerts, LowStockAlert{
			ProductID:     p.ID,
			SKU:           p.SKU,
			Name:          p.Name,
			Quantity:      p.Quantity,
			MinStockLevel: p.MinStockLevel,
			Level:         level,
		})
	}
	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].Quantity != alerts[j].Quantity {
			return alerts[i].Quantity < alerts[j].Quantity
		}
		return alerts[i].ProductID < alerts[j].ProductID
	})
	return alerts, nil
}

type ProductValuation struct {
	ProductID  ProductID
	SKU        string
	Name       string
	Quantity   int64
	WACCost    decimal.Decimal
	StockValue decimal.Decimal
}

type InventoryValuation struct {
	Products   []ProductValuation
	TotalUnits int64
	TotalValue decimal.Decimal
}

// InventoryValuation values every active product at its current WAC.
func (e *Engine) InventoryValuation(ctx context.Context) (InventoryValuation, error) {
	products, err := e.store.ListProducts(ctx)
	if err != nil {
		return InventoryValuation{}, e.read("list_products", err)
	}
	out := InventoryValuation{Products: make([]ProductValuation, 0, len(products)), TotalValue: decimal.Zero}
	for _, p := range products {
		if !p.IsActive {
			continue
		}
		v := ProductValuation{
			ProductID:  p.ID,
			SKU:        p.SKU,
			Name:       p.Name,
			Quantity:   p.Quantity,
			WACCost:    p.WACCost,
			StockValue: p.StockValue(),
		}
		out.Products = append(out.Products, v)
		out.TotalUnits += p.Quantity
		out.TotalValue = out.TotalValue.Add(v.StockValue)
	}
	return out, nil
}

// =============================================================================
// BALANCES
// =============================================================================

type OutstandingBalance struct {
	CustomerID      CustomerID
	Name            string
	Phone           string
	CreditBalance   decimal.Decimal
	CreditLimit     decimal.Decimal
	RemainingCredit decimal.Decimal
}

// OutstandingBalances lists active customers who owe money, largest
// balance first, ties by id.
func (e *Engine) OutstandingBalances(ctx context.Context) ([]OutstandingBalance, error) {
	customers, err := e.store.ListCustomers(ctx)
	if err != nil {
		return nil, e.read("list_customers", err)
	}
	out := make([]OutstandingBalance, 0)
	for _, c := range customers {
		if !c.IsActive || !c.CreditBalance.IsPositive() {
			continue
		}
		out = append(out, OutstandingBalance{
			CustomerID:      c.ID,
			Name:            c.Name,
			Phone:           c.Phone,
			CreditBalance:   c.CreditBalance,
			CreditLimit:     c.CreditLimit,
			RemainingCredit: c.RemainingCredit(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreditBalance.Equal(out[j].CreditBalance) {
			return out[i].CreditBalance.GreaterThan(out[j].CreditBalance)
		}
		return out[i].CustomerID < out[j].CustomerID
	})
	return out, nil
}
