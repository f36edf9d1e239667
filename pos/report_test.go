package pos_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/khata-engine/pos"
)

// =============================================================================
// PROFIT
// =============================================================================

func TestProfitForRange_UsesCostAtSale(t *testing.T) {
	// GIVEN: One sale line: unitPrice 50, costAtSale 30, quantity 2, no discounts
	// THEN: netProfit 40

	f := newFixture(t)
	p := f.stocked("DAL", "50", 10, "30")
	c := f.customer("Ramesh", "0")
	f.creditSale(c.ID, item(p.ID, 2))

	// A later receipt at another cost must not change past profit.
	f.receive(p.ID, 10, "45")

	got, err := f.engine.ProfitForRange(f.ctx, f.clock.Now().Add(-time.Hour), f.clock.Now().Add(time.Hour))
	require.NoError(t, err)

	assertMoney(t, "100.00", got.Revenue)
	assertMoney(t, "60.00", got.Cost)
	assertMoney(t, "40.00", got.NetProfit)
	assertMoney(t, "40.00", got.Margin)
	assert.Equal(t, int64(2), got.ItemCount)
	assert.Equal(t, 1, got.TransactionCount)
}

func TestProfitForRange_SubtractsDiscounts(t *testing.T) {
	f := newFixture(t)
	p := f.stocked("SOAP", "40", 48, "25")

	_, err := f.engine.RecordCashSale(f.ctx, pos.CashSaleInput{
		Lines:    []pos.SaleLineInput{{ProductID: p.ID, Quantity: 4, LineDiscount: dec("6")}},
		Discount: dec("4"),
	})
	require.NoError(t, err)

	got, err := f.engine.ProfitForRange(f.ctx, time.Time{}, time.Time{})
	require.NoError(t, err)

	// gross 160, cost 100, line discounts 6, sale discount 4
	assertMoney(t, "150.00", got.Revenue)
	assertMoney(t, "6.00", got.LineDiscounts)
	assertMoney(t, "4.00", got.SaleDiscounts)
	assertMoney(t, "50.00", got.NetProfit)
	assertMoney(t, "33.33", got.Margin)
}

func TestProfitForRange_HalfOpenRange(t *testing.T) {
	// GIVEN: Sales at 09:00, 10:00 and 11:00
	// WHEN: Asking for [10:00, 11:00)
	// THEN: Only the 10:00 sale counts

	f := newFixture(t)
	p := f.stocked("TEA", "100", 10, "60")

	start := f.clock.Now()
	f.cashSale("100", item(p.ID, 1))
	f.clock.Advance(time.Hour)
	f.cashSale("200", item(p.ID, 2))
	f.clock.Advance(time.Hour)
	f.cashSale("300", item(p.ID, 3))

	got, err := f.engine.ProfitForRange(f.ctx, start.Add(time.Hour), start.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, got.TransactionCount)
	assertMoney(t, "80.00", got.NetProfit)

	empty, err := f.engine.ProfitForRange(f.ctx, start.Add(time.Minute), start.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, empty.TransactionCount)
	assertMoney(t, "0.00", empty.NetProfit)
	assertMoney(t, "0.00", empty.Margin)
}

func TestProfitForRange_Idempotent(t *testing.T) {
	f := newFixture(t)
	p := f.stocked("TEA", "100", 10, "60")
	c := f.customer("Asha", "0")
	f.cashSale("100", item(p.ID, 1))
	f.creditSale(c.ID, item(p.ID, 2))

	from, to := f.clock.Now().AddDate(0, 0, -1), f.clock.Now().AddDate(0, 0, 1)
	first, err := f.engine.ProfitForRange(f.ctx, from, to)
	require.NoError(t, err)
	second, err := f.engine.ProfitForRange(f.ctx, from, to)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestProfitForRange_InvalidRange(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()

	_, err := f.engine.ProfitForRange(f.ctx, now, now.Add(-time.Second))
	assert.ErrorIs(t, err, pos.ErrInvalidRange)
	assert.True(t, pos.IsClientError(err))

	_, err = f.engine.DailyProfitBreakdown(f.ctx, now, now.Add(-time.Second))
	assert.ErrorIs(t, err, pos.ErrInvalidRange)
}

// =============================================================================
// DAILY BREAKDOWN
// =============================================================================

func TestProfitForRange_ReadsOneSnapshot(t *testing.T) {
	// GIVEN: A cash sale of 2 @ 50 with cost 30
	// WHEN: The sale is refunded while the report is reading sales
	// THEN: The report shows the sale whole or not at all, never its
	//       header without its lines

	f := newFixture(t)
	p := f.stocked("DAL", "50", 10, "30")
	sale := f.cashSale("100", item(p.ID, 2))

	racing := newInterleavingStore(f.store, "list_sales", func() error {
		_, err := f.engine.RefundSale(f.ctx, pos.ReversalInput{SaleID: sale.Sale.ID, UserID: cashier})
		return err
	})
	reporter := pos.NewEngine(racing)

	got, err := reporter.ProfitForRange(f.ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	racing.wait(t)

	assert.Equal(t, 1, got.TransactionCount)
	assertMoney(t, "100.00", got.Revenue)
	assertMoney(t, "60.00", got.Cost)
	assertMoney(t, "40.00", got.NetProfit)
	assert.Equal(t, int64(2), got.ItemCount)

	after, err := reporter.ProfitForRange(f.ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 0, after.TransactionCount)
	assertMoney(t, "0.00", after.NetProfit)
}

func TestDailyProfitBreakdown_GroupsByDay(t *testing.T) {
	f := newFixture(t)
	p := f.stocked("TEA", "100", 20, "60")

	start := f.clock.Now() // 2025-03-10 09:00 UTC
	f.cashSale("100", item(p.ID, 1))
	f.clock.Advance(2 * time.Hour)
	f.cashSale("200", item(p.ID, 2))
	f.clock.Advance(48 * time.Hour) // 2025-03-12, nothing on the 11th
	f.cashSale("300", item(p.ID, 3))

	days, err := f.engine.DailyProfitBreakdown(f.ctx, start.AddDate(0, 0, -1), start.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Len(t, days, 2, "days without sales are omitted")

	assert.Equal(t, "2025-03-10", days[0].Date)
	assert.Equal(t, 2, days[0].TransactionCount)
	assertMoney(t, "120.00", days[0].NetProfit)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), days[0].From)
	assert.Equal(t, time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC), days[0].To)

	assert.Equal(t, "2025-03-12", days[1].Date)
	assertMoney(t, "120.00", days[1].NetProfit)

	total, err := f.engine.ProfitForRange(f.ctx, start.AddDate(0, 0, -1), start.AddDate(0, 0, 7))
	require.NoError(t, err)
	assertMoney(t, "240.00", total.NetProfit)
}

func TestDailyProfitBreakdown_UsesEngineLocation(t *testing.T) {
	// GIVEN: A sale at 20:00 UTC, which is 01:30 the next day in UTC+05:30
	// THEN: It is reported under the local date

	ist := time.FixedZone("IST", 5*3600+1800)
	f := newFixture(t, pos.WithLocation(ist))
	p := f.stocked("TEA", "100", 20, "60")

	f.clock.now = time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC)
	f.cashSale("100", item(p.ID, 1))

	days, err := f.engine.DailyProfitBreakdown(f.ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, "2025-03-11", days[0].Date)
	assert.Equal(t, time.Date(2025, 3, 10, 18, 30, 0, 0, time.UTC), days[0].From)
}

// =============================================================================
// LOW STOCK
// =============================================================================

func TestStockAlertLevel(t *testing.T) {
	tests := []struct {
		name      string
		qty, min  int64
		active    bool
		wantLevel pos.AlertLevel
		wantLow   bool
	}{
		{"above minimum", 11, 10, true, "", false},
		{"at minimum", 10, 10, true, pos.AlertLowStock, true},
		{"just above half", 6, 10, true, pos.AlertLowStock, true},
		{"half is critical", 5, 10, true, pos.AlertCritical, true},
		{"odd minimum rounds down", 2, 5, true, pos.AlertCritical, true},
		{"three of five is low", 3, 5, true, pos.AlertLowStock, true},
		{"empty", 0, 10, true, pos.AlertOutOfStock, true},
		{"empty without minimum", 0, 0, true, pos.AlertOutOfStock, true},
		{"inactive ignored", 0, 10, false, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, low := pos.StockAlertLevel(pos.Product{Quantity: tt.qty, MinStockLevel: tt.min, IsActive: tt.active})
			assert.Equal(t, tt.wantLow, low)
			assert.Equal(t, tt.wantLevel, level)
		})
	}
}

func TestLowStockAlerts_SortedByQuantity(t *testing.T) {
	f := newFixture(t)
	sugar := f.product("SUGAR", "48", 20)
	salt := f.product("SALT", "25", 10)
	milk := f.product("MILK", "260", 6)
	plenty := f.product("BISC", "10", 30)
	retired := f.product("OLD", "10", 30)

	f.receive(sugar.ID, 18, "40")
	f.receive(salt.ID, 4, "18")
	f.receive(plenty.ID, 100, "7.5")
	require.NoError(t, f.engine.DeactivateProduct(f.ctx, retired.ID))

	alerts, err := f.engine.LowStockAlerts(f.ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 3)

	assert.Equal(t, milk.ID, alerts[0].ProductID)
	assert.Equal(t, pos.AlertOutOfStock, alerts[0].Level)
	assert.Equal(t, salt.ID, alerts[1].ProductID)
	assert.Equal(t, pos.AlertCritical, alerts[1].Level)
	assert.Equal(t, sugar.ID, alerts[2].ProductID)
	assert.Equal(t, pos.AlertLowStock, alerts[2].Level)
	assert.Equal(t, "SUGAR", alerts[2].SKU)
	assert.Equal(t, int64(18), alerts[2].Quantity)
	assert.Equal(t, int64(20), alerts[2].MinStockLevel)
}

func TestLowStockAlerts_EmptyCatalog(t *testing.T) {
	f := newFixture(t)

	alerts, err := f.engine.LowStockAlerts(f.ctx)
	require.NoError(t, err)
	assert.NotNil(t, alerts)
	assert.Empty(t, alerts)
}

// =============================================================================
// INVENTORY & BALANCES
// =============================================================================

func TestInventoryValuation(t *testing.T) {
	f := newFixture(t)
	rice := f.stocked("RICE", "650", 10, "500")
	f.receive(rice.ID, 10, "540")
	f.stocked("TEA", "180", 3, "120.33")
	retired := f.stocked("OLD", "10", 5, "1")
	require.NoError(t, f.engine.DeactivateProduct(f.ctx, retired.ID))

	v, err := f.engine.InventoryValuation(f.ctx)
	require.NoError(t, err)

	require.Len(t, v.Products, 2)
	assertMoney(t, "520.00", v.Products[0].WACCost)
	assertMoney(t, "10400.00", v.Products[0].StockValue)
	assertMoney(t, "360.99", v.Products[1].StockValue)
	assert.Equal(t, int64(23), v.TotalUnits)
	assertMoney(t, "10760.99", v.TotalValue)
}

func TestOutstandingBalances(t *testing.T) {
	f := newFixture(t)
	p := f.stocked("DAL", "50", 100, "30")

	small := f.customer("Small", "500")
	big := f.customer("Big", "1000")
	tied := f.customer("Tied", "0")
	paid := f.customer("Paid Up", "500")
	credit := f.customer("In Credit", "500")
	gone := f.customer("Gone", "500")

	f.creditSale(small.ID, item(p.ID, 1))
	f.creditSale(big.ID, item(p.ID, 5))
	f.creditSale(tied.ID, item(p.ID, 1))
	f.creditSale(paid.ID, item(p.ID, 2))
	f.pay(paid.ID, "100")
	f.pay(credit.ID, "25")
	f.creditSale(gone.ID, item(p.ID, 3))
	require.NoError(t, f.engine.DeactivateCustomer(f.ctx, gone.ID))

	balances, err := f.engine.OutstandingBalances(f.ctx)
	require.NoError(t, err)
	require.Len(t, balances, 3)

	assert.Equal(t, big.ID, balances[0].CustomerID)
	assertMoney(t, "250.00", balances[0].CreditBalance)
	assertMoney(t, "750.00", balances[0].RemainingCredit)
	assert.Equal(t, small.ID, balances[1].CustomerID, "ties ordered by id")
	assert.Equal(t, tied.ID, balances[2].CustomerID)
	assertMoney(t, "-50.00", balances[2].RemainingCredit)
}
