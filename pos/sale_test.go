package pos_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/khata-engine/pos"
)

// =============================================================================
// CREDIT SALE
// =============================================================================

func TestRecordCreditSale_DebitsCustomer(t *testing.T) {
	// GIVEN: A customer with zero balance and a product costing 30.00
	// WHEN: Selling 2 units at 50.00 on credit
	// THEN: Sale total 100, debit entry of 100 with running balance 100

	f := newFixture(t)
	p := f.stocked("DAL", "50", 10, "30")
	c := f.customer("Ramesh", "1000")

	res := f.creditSale(c.ID, item(p.ID, 2))

	assertMoney(t, "100.00", res.Sale.Total)
	assertMoney(t, "100.00", res.Sale.Subtotal)
	assert.Equal(t, pos.PaymentCredit, res.Sale.PaymentMethod)
	assert.Equal(t, pos.SaleCompleted, res.Sale.Status)
	require.NotNil(t, res.Sale.CustomerID)
	assert.Equal(t, c.ID, *res.Sale.CustomerID)
	assertMoney(t, "0.00", res.Sale.PaymentReceived)
	assertMoney(t, "0.00", res.Change)

	require.NotNil(t, res.LedgerEntry)
	entry := *res.LedgerEntry
	assert.Equal(t, pos.LedgerDebit, entry.Type)
	assertMoney(t, "100.00", entry.Amount)
	assertMoney(t, "100.00", entry.RunningBalance)
	require.NotNil(t, entry.SaleID)
	assert.Equal(t, res.Sale.ID, *entry.SaleID)

	assertMoney(t, "100.00", f.mustCustomer(c.ID).CreditBalance)

	require.Len(t, res.Lines, 1)
	assertMoney(t, "30.00", res.Lines[0].CostAtSale)
	assertMoney(t, "50.00", res.Lines[0].UnitPrice)
	assertMoney(t, "100.00", res.Lines[0].LineTotal)

	require.Len(t, res.Movements, 1)
	assert.Equal(t, pos.MovementSale, res.Movements[0].Type)
	assert.Equal(t, int64(-2), res.Movements[0].Quantity)
	assert.Equal(t, int64(8), f.mustProduct(p.ID).Quantity)

	f.assertBalanceInvariant()
}

func TestRecordCreditSale_CostSnapshotSurvivesLaterReceipts(t *testing.T) {
	// GIVEN: A credit sale at WAC 30.00
	// WHEN: New stock arrives at a higher cost
	// THEN: The stored line keeps CostAtSale 30.00

	f := newFixture(t)
	p := f.stocked("DAL", "50", 10, "30")
	c := f.customer("Ramesh", "1000")
	res := f.creditSale(c.ID, item(p.ID, 2))

	f.receive(p.ID, 8, "60")
	assertMoney(t, "45.00", f.mustProduct(p.ID).WACCost)

	_, lines, err := f.engine.Sale(f.ctx, res.Sale.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assertMoney(t, "30.00", lines[0].CostAtSale)
}

func TestRecordCreditSale_ExceedingLimitAllowedByDefault(t *testing.T) {
	f := newFixture(t)
	p := f.stocked("OIL", "190", 10, "150")
	c := f.customer("Imran", "100")

	res := f.creditSale(c.ID, item(p.ID, 1))
	assertMoney(t, "190.00", res.LedgerEntry.RunningBalance)
	assertMoney(t, "-90.00", f.mustCustomer(c.ID).RemainingCredit())
}

func TestRecordCreditSale_EnforcedCreditLimit(t *testing.T) {
	// GIVEN: EnforceCreditLimit and a customer 50.00 below the limit
	// WHEN: A credit sale of 100.00
	// THEN: CreditLimitError; nothing is written

	f := newFixture(t, pos.WithPolicy(pos.Policy{EnforceCreditLimit: true}))
	p := f.stocked("DAL", "50", 10, "30")
	c := f.customer("Sunita", "150")
	f.creditSale(c.ID, item(p.ID, 2))

	_, err := f.engine.RecordCreditSale(f.ctx, pos.CreditSaleInput{CustomerID: c.ID, Lines: []pos.SaleLineInput{item(p.ID, 2)}})

	var limitErr *pos.CreditLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.ErrorIs(t, err, pos.ErrCreditLimitExceeded)
	assert.True(t, pos.IsClientError(err))
	assertMoney(t, "150.00", limitErr.Limit)
	assertMoney(t, "100.00", limitErr.Balance)
	assertMoney(t, "100.00", limitErr.Requested)

	assertMoney(t, "100.00", f.mustCustomer(c.ID).CreditBalance)
	assert.Equal(t, int64(8), f.mustProduct(p.ID).Quantity)

	// Exactly reaching the limit is allowed.
	res, err := f.engine.RecordCreditSale(f.ctx, pos.CreditSaleInput{CustomerID: c.ID, Lines: []pos.SaleLineInput{item(p.ID, 1)}})
	require.NoError(t, err)
	assertMoney(t, "150.00", res.LedgerEntry.RunningBalance)
}

func TestRecordCreditSale_Rejections(t *testing.T) {
	f := newFixture(t)
	p := f.stocked("DAL", "50", 10, "30")
	c := f.customer("Ramesh", "1000")
	gone := f.customer("Moved Away", "0")
	require.NoError(t, f.engine.DeactivateCustomer(f.ctx, gone.ID))

	tests := []struct {
		name    string
		in      pos.CreditSaleInput
		wantErr error
	}{
		{"unknown customer", pos.CreditSaleInput{CustomerID: 77, Lines: []pos.SaleLineInput{item(p.ID, 1)}}, pos.ErrCustomerNotFound},
		{"inactive customer", pos.CreditSaleInput{CustomerID: gone.ID, Lines: []pos.SaleLineInput{item(p.ID, 1)}}, pos.ErrCustomerInactive},
		{"no lines", pos.CreditSaleInput{CustomerID: c.ID}, pos.ErrEmptySale},
		{"zero quantity", pos.CreditSaleInput{CustomerID: c.ID, Lines: []pos.SaleLineInput{item(p.ID, 0)}}, pos.ErrInvalidQuantity},
		{"unknown product", pos.CreditSaleInput{CustomerID: c.ID, Lines: []pos.SaleLineInput{item(404, 1)}}, pos.ErrProductNotFound},
		{"negative discount", pos.CreditSaleInput{CustomerID: c.ID, Lines: []pos.SaleLineInput{item(p.ID, 1)}, Discount: dec("-1")}, pos.ErrInvalidDiscount},
		{"discount above subtotal", pos.CreditSaleInput{CustomerID: c.ID, Lines: []pos.SaleLineInput{item(p.ID, 1)}, Discount: dec("50.01")}, pos.ErrInvalidDiscount},
		{"negative unit price", pos.CreditSaleInput{CustomerID: c.ID, Lines: []pos.SaleLineInput{pricedItem(p.ID, 1, "-5")}}, pos.ErrInvalidPrice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.RecordCreditSale(f.ctx, tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	sales, err := f.store.ListSales(f.ctx, pos.SaleFilter{})
	require.NoError(t, err)
	assert.Empty(t, sales)
	assert.Equal(t, int64(10), f.mustProduct(p.ID).Quantity)
}

func TestRecordCreditSale_FullyDiscountedWritesNoLedgerEntry(t *testing.T) {
	f := newFixture(t)
	p := f.stocked("SAMPLE", "20", 5, "10")
	c := f.customer("Asha", "0")

	res, err := f.engine.RecordCreditSale(f.ctx, pos.CreditSaleInput{
		CustomerID: c.ID,
		Lines:      []pos.SaleLineInput{item(p.ID, 1)},
		Discount:   dec("20"),
	})
	require.NoError(t, err)
	assertMoney(t, "0.00", res.Sale.Total)
	assert.Nil(t, res.LedgerEntry)

	statement, err := f.engine.Statement(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, statement)
	f.assertBalanceInvariant()
}

// =============================================================================
// ATOMICITY
// =============================================================================

func TestRecordCreditSale_FailureOnLineTwoOfThree_LeavesNoTrace(t *testing.T) {
	// GIVEN: Three products, the second with only 1 unit in stock
	// WHEN: A credit sale asks for 2 of the second product
	// THEN: InsufficientStock on line 2; no sale, line, movement or ledger entry

	f := newFixture(t)
	a := f.stocked("A", "10", 5, "6")
	b := f.stocked("B", "20", 1, "12")
	c := f.stocked("C", "30", 5, "18")
	cust := f.customer("Ramesh", "1000")

	_, err := f.engine.RecordCreditSale(f.ctx, pos.CreditSaleInput{
		CustomerID: cust.ID,
		Lines:      []pos.SaleLineInput{item(a.ID, 1), item(b.ID, 2), item(c.ID, 1)},
	})

	var stockErr *pos.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, b.ID, stockErr.ProductID)
	assert.Equal(t, 1, stockErr.Line)
	assert.Equal(t, int64(1), stockErr.Available)
	assert.Equal(t, int64(2), stockErr.Requested)
	assert.Contains(t, stockErr.Error(), "line 2")

	assertNothingSold(t, f, cust.ID, map[pos.ProductID]int64{a.ID: 5, b.ID: 1, c.ID: 5})
}

func TestRecordCreditSale_StorageFailureRollsBackEverything(t *testing.T) {
	// GIVEN: A store that fails on the customer balance update, the last
	//        write of a credit sale
	// WHEN: Recording a two-line credit sale
	// THEN: StorageFailure; sale, lines, stock, movements and ledger are untouched

	for _, failOn := range []string{"ledger", "balance", "movement"} {
		t.Run(failOn, func(t *testing.T) {
			f := newFixture(t)
			a := f.stocked("A", "10", 5, "6")
			b := f.stocked("B", "20", 5, "12")
			cust := f.customer("Ramesh", "1000")

			faulty := newFixtureOn(t, &faultyStore{TxStore: f.store, failOn: failOn})
			_, err := faulty.engine.RecordCreditSale(f.ctx, pos.CreditSaleInput{
				CustomerID: cust.ID,
				Lines:      []pos.SaleLineInput{item(a.ID, 2), item(b.ID, 3)},
			})

			require.ErrorIs(t, err, pos.ErrStorageFailure)
			assert.True(t, pos.IsRetryable(err))
			assertNothingSold(t, f, cust.ID, map[pos.ProductID]int64{a.ID: 5, b.ID: 5})

			// The same call succeeds on a healthy store.
			res := f.creditSale(cust.ID, item(a.ID, 2), item(b.ID, 3))
			assertMoney(t, "80.00", res.LedgerEntry.RunningBalance)
		})
	}
}

func TestAtomicUnit_CancelledContext(t *testing.T) {
	f := newFixture(t)
	p := f.stocked("A", "10", 5, "6")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.RecordCashSale(ctx, pos.CashSaleInput{Lines: []pos.SaleLineInput{item(p.ID, 1)}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(5), f.mustProduct(p.ID).Quantity)
}

// assertNothingSold checks that no sale-side rows exist and stock matches.
func assertNothingSold(t *testing.T, f *fixture, customer pos.CustomerID, stock map[pos.ProductID]int64) {
	t.Helper()

	sales, err := f.engine.ProfitForRange(f.ctx, f.clock.Now().AddDate(0, 0, -1), f.clock.Now().AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 0, sales.TransactionCount)

	lines, err := f.store.ListSaleLines(f.ctx, pos.SaleFilter{})
	require.NoError(t, err)
	assert.Empty(t, lines, "no sale lines")

	for id, qty := range stock {
		assert.Equal(t, qty, f.mustProduct(id).Quantity, "product %d quantity", id)
		movements, err := f.engine.StockMovements(f.ctx, id)
		require.NoError(t, err)
		for _, m := range movements {
			assert.NotEqual(t, pos.MovementSale, m.Type, "product %d has a sale movement", id)
		}
	}

	statement, err := f.engine.Statement(f.ctx, customer)
	require.NoError(t, err)
	assert.Empty(t, statement, "no ledger entries")
	assertMoney(t, "0.00", f.mustCustomer(customer).CreditBalance)
}

// =============================================================================
// CASH SALE
// =============================================================================

func TestRecordCashSale_GivesChange(t *testing.T) {
	f := newFixture(t)
	rice := f.stocked("RICE", "650", 20, "520")
	tea := f.stocked("TEA", "180", 24, "120")

	res := f.cashSale("1500", item(rice.ID, 2), item(tea.ID, 1))

	assertMoney(t, "1480.00", res.Sale.Total)
	assertMoney(t, "1500.00", res.Sale.PaymentReceived)
	assertMoney(t, "20.00", res.Sale.ChangeGiven)
	assertMoney(t, "20.00", res.Change)
	assert.Equal(t, pos.PaymentCash, res.Sale.PaymentMethod)
	assert.Nil(t, res.LedgerEntry, "cash sales never touch the ledger")
	assert.Nil(t, res.Sale.CustomerID)
	assert.True(t, strings.HasPrefix(res.Sale.ReceiptNo, "INV-"))

	assert.Equal(t, int64(18), f.mustProduct(rice.ID).Quantity)
	assert.Equal(t, int64(23), f.mustProduct(tea.ID).Quantity)
}

func TestRecordCashSale_DiscountsAndPriceOverride(t *testing.T) {
	f := newFixture(t)
	p := f.stocked("SOAP", "40", 48, "25")

	res, err := f.engine.RecordCashSale(f.ctx, pos.CashSaleInput{
		Lines: []pos.SaleLineInput{
			{ProductID: p.ID, Quantity: 3, LineDiscount: dec("5")},
			pricedItem(p.ID, 2, "35.50"),
		},
		Discount:   dec("10"),
		AmountPaid: dec("200"),
		Notes:      "  festival offer ",
	})
	require.NoError(t, err)

	require.Len(t, res.Lines, 2)
	assertMoney(t, "115.00", res.Lines[0].LineTotal)
	assertMoney(t, "35.50", res.Lines[1].UnitPrice)
	assertMoney(t, "71.00", res.Lines[1].LineTotal)
	assertMoney(t, "186.00", res.Sale.Subtotal)
	assertMoney(t, "10.00", res.Sale.Discount)
	assertMoney(t, "176.00", res.Sale.Total)
	assertMoney(t, "24.00", res.Change)
	assert.Equal(t, "festival offer", res.Sale.Notes)

	// Two lines on one product decrement it twice.
	require.Len(t, res.Movements, 2)
	assert.Equal(t, int64(48), res.Movements[0].PreviousStock)
	assert.Equal(t, int64(45), res.Movements[1].PreviousStock)
	assert.Equal(t, int64(43), f.mustProduct(p.ID).Quantity)
}

func TestRecordCashSale_LineDiscountAboveGrossRejected(t *testing.T) {
	f := newFixture(t)
	p := f.stocked("SOAP", "40", 48, "25")

	_, err := f.engine.RecordCashSale(f.ctx, pos.CashSaleInput{
		Lines: []pos.SaleLineInput{{ProductID: p.ID, Quantity: 1, LineDiscount: dec("40.01")}},
	})
	assert.ErrorIs(t, err, pos.ErrInvalidDiscount)
}

func TestRecordCashSale_InsufficientStock_ProductUnchanged(t *testing.T) {
	// GIVEN: A product with quantity 5
	// WHEN: A cash sale requests 6
	// THEN: InsufficientStock; the product row is unchanged

	f := newFixture(t)
	p := f.stocked("TEA", "180", 5, "120")
	before := f.mustProduct(p.ID)

	_, err := f.engine.RecordCashSale(f.ctx, pos.CashSaleInput{Lines: []pos.SaleLineInput{item(p.ID, 6)}, AmountPaid: dec("2000")})

	require.Error(t, err)
	assert.ErrorIs(t, err, pos.ErrInsufficientStock)
	assert.True(t, errors.Is(err, pos.ErrInsufficientStock))
	assert.Equal(t, before, f.mustProduct(p.ID))
}

func TestRecordCashSale_SameProductAcrossLines_CountsTogether(t *testing.T) {
	f := newFixture(t)
	p := f.stocked("TEA", "180", 5, "120")

	_, err := f.engine.RecordCashSale(f.ctx, pos.CashSaleInput{Lines: []pos.SaleLineInput{item(p.ID, 3), item(p.ID, 3)}})

	var stockErr *pos.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 1, stockErr.Line)
	assert.Equal(t, int64(2), stockErr.Available)
	assert.Equal(t, int64(5), f.mustProduct(p.ID).Quantity)
}

func TestRecordCashSale_Payments(t *testing.T) {
	f := newFixture(t)
	p := f.stocked("TEA", "100", 50, "60")

	t.Run("card with no amount pays the total", func(t *testing.T) {
		res, err := f.engine.RecordCashSale(f.ctx, pos.CashSaleInput{
			Lines:         []pos.SaleLineInput{item(p.ID, 2)},
			PaymentMethod: pos.PaymentCard,
		})
		require.NoError(t, err)
		assertMoney(t, "200.00", res.Sale.PaymentReceived)
		assertMoney(t, "0.00", res.Change)
	})

	t.Run("underpayment allowed by default", func(t *testing.T) {
		res := f.cashSale("50", item(p.ID, 1))
		assertMoney(t, "50.00", res.Sale.PaymentReceived)
		assertMoney(t, "0.00", res.Change)
	})

	t.Run("credit is not a counter payment method", func(t *testing.T) {
		_, err := f.engine.RecordCashSale(f.ctx, pos.CashSaleInput{
			Lines:         []pos.SaleLineInput{item(p.ID, 1)},
			PaymentMethod: pos.PaymentCredit,
		})
		assert.ErrorIs(t, err, pos.ErrInvalidPaymentMethod)
	})

	t.Run("negative amount", func(t *testing.T) {
		_, err := f.engine.RecordCashSale(f.ctx, pos.CashSaleInput{
			Lines:      []pos.SaleLineInput{item(p.ID, 1)},
			AmountPaid: dec("-1"),
		})
		assert.ErrorIs(t, err, pos.ErrInvalidAmount)
	})

	t.Run("unknown walk-in customer", func(t *testing.T) {
		missing := pos.CustomerID(99)
		_, err := f.engine.RecordCashSale(f.ctx, pos.CashSaleInput{
			CustomerID: &missing,
			Lines:      []pos.SaleLineInput{item(p.ID, 1)},
		})
		assert.ErrorIs(t, err, pos.ErrCustomerNotFound)
	})
}

func TestRecordCashSale_RequireFullPayment(t *testing.T) {
	f := newFixture(t, pos.WithPolicy(pos.Policy{RequireFullPayment: true}))
	p := f.stocked("TEA", "100", 5, "60")

	_, err := f.engine.RecordCashSale(f.ctx, pos.CashSaleInput{Lines: []pos.SaleLineInput{item(p.ID, 1)}, AmountPaid: dec("99.99")})
	assert.ErrorIs(t, err, pos.ErrUnderpayment)
	assert.Equal(t, int64(5), f.mustProduct(p.ID).Quantity)

	res := f.cashSale("100", item(p.ID, 1))
	assertMoney(t, "0.00", res.Change)
}

func TestRecordCashSale_ReceiptNumbersUnique(t *testing.T) {
	f := newFixture(t)
	p := f.stocked("TEA", "1", 100, "0.5")

	seen := make(map[string]bool)
	for i := 0; i < 25; i++ {
		res := f.cashSale("1", item(p.ID, 1))
		assert.False(t, seen[res.Sale.ReceiptNo], "duplicate receipt %s", res.Sale.ReceiptNo)
		seen[res.Sale.ReceiptNo] = true
	}
}

func TestSale_ReturnsLinesAndNotFound(t *testing.T) {
	f := newFixture(t)
	p := f.stocked("TEA", "100", 5, "60")
	res := f.cashSale("200", item(p.ID, 2))

	sale, lines, err := f.engine.Sale(f.ctx, res.Sale.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Sale.ReceiptNo, sale.ReceiptNo)
	require.Len(t, lines, 1)
	assert.Equal(t, res.Lines[0].ID, lines[0].ID)

	_, _, err = f.engine.Sale(f.ctx, 12345)
	assert.ErrorIs(t, err, pos.ErrSaleNotFound)
}

func TestSales_NeverDriveStockNegative(t *testing.T) {
	// GIVEN: A mix of sales, some exceeding stock
	// THEN: Every committed state keeps quantity >= 0 and WAC 0 at empty stock

	f := newFixture(t)
	a := f.stocked("A", "10", 7, "6")
	b := f.stocked("B", "20", 3, "12")
	c := f.customer("Ramesh", "0")

	requests := [][]pos.SaleLineInput{
		{item(a.ID, 3)},
		{item(a.ID, 3), item(b.ID, 4)},
		{item(b.ID, 3)},
		{item(a.ID, 4)},
		{item(a.ID, 1)},
	}
	for i, lines := range requests {
		if i%2 == 0 {
			_, _ = f.engine.RecordCashSale(f.ctx, pos.CashSaleInput{Lines: lines})
		} else {
			_, _ = f.engine.RecordCreditSale(f.ctx, pos.CreditSaleInput{CustomerID: c.ID, Lines: lines})
		}
		f.assertNoNegativeStock()
		f.assertBalanceInvariant()
	}

	assert.Equal(t, int64(0), f.mustProduct(a.ID).Quantity)
	assert.Equal(t, int64(0), f.mustProduct(b.ID).Quantity)
}
