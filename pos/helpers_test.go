package pos_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/khata-engine/pos"
	"github.com/warp/khata-engine/pos/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const cashier pos.UserID = "cashier-1"

// testClock is a manual clock; every call returns the same instant until
// advanced.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	t      *testing.T
	ctx    context.Context
	engine *pos.Engine
	store  *store.TxMemory
	clock  *testClock
}

func newFixture(t *testing.T, opts ...pos.Option) *fixture {
	t.Helper()
	return newFixtureOn(t, store.NewTxMemory(), opts...)
}

func newFixtureOn(t *testing.T, s pos.TxStore, opts ...pos.Option) *fixture {
	t.Helper()
	clock := &testClock{now: time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)}
	opts = append([]pos.Option{pos.WithClock(clock.Now)}, opts...)

	f := &fixture{
		t:      t,
		ctx:    context.Background(),
		engine: pos.NewEngine(s, opts...),
		clock:  clock,
	}
	if mem, ok := s.(*store.TxMemory); ok {
		f.store = mem
	}
	return f
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// assertMoney compares amounts at two decimal places.
func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Equal(t, dec(want).StringFixed(pos.MoneyPlaces), got.StringFixed(pos.MoneyPlaces), msgAndArgs...)
}

func (f *fixture) product(sku, price string, minStock int64) pos.Product {
	f.t.Helper()
	p, err := f.engine.CreateProduct(f.ctx, pos.ProductInput{
		SKU:           sku,
		Name:          "Product " + sku,
		SellPrice:     dec(price),
		MinStockLevel: minStock,
	})
	require.NoError(f.t, err)
	return p
}

func (f *fixture) stocked(sku, price string, qty int64, cost string) pos.Product {
	f.t.Helper()
	p := f.product(sku, price, 0)
	return f.receive(p.ID, qty, cost).Product
}

func (f *fixture) receive(id pos.ProductID, qty int64, cost string) pos.StockReceipt {
	f.t.Helper()
	r, err := f.engine.ReceiveStock(f.ctx, pos.ReceiveStockInput{
		ProductID: id,
		Quantity:  qty,
		UnitCost:  dec(cost),
		UserID:    cashier,
	})
	require.NoError(f.t, err)
	return r
}

func (f *fixture) customer(name, limit string) pos.Customer {
	f.t.Helper()
	c, err := f.engine.CreateCustomer(f.ctx, pos.CustomerInput{Name: name, CreditLimit: dec(limit)})
	require.NoError(f.t, err)
	return c
}

func (f *fixture) creditSale(c pos.CustomerID, lines ...pos.SaleLineInput) pos.SaleResult {
	f.t.Helper()
	res, err := f.engine.RecordCreditSale(f.ctx, pos.CreditSaleInput{CustomerID: c, Lines: lines, UserID: cashier})
	require.NoError(f.t, err)
	return res
}

func (f *fixture) cashSale(paid string, lines ...pos.SaleLineInput) pos.SaleResult {
	f.t.Helper()
	res, err := f.engine.RecordCashSale(f.ctx, pos.CashSaleInput{Lines: lines, AmountPaid: dec(paid), UserID: cashier})
	require.NoError(f.t, err)
	return res
}

func (f *fixture) pay(c pos.CustomerID, amount string) pos.LedgerEntry {
	f.t.Helper()
	e, err := f.engine.RecordPayment(f.ctx, pos.PaymentInput{CustomerID: c, Amount: dec(amount), UserID: cashier})
	require.NoError(f.t, err)
	return e
}

func (f *fixture) mustProduct(id pos.ProductID) pos.Product {
	f.t.Helper()
	p, err := f.engine.Product(f.ctx, id)
	require.NoError(f.t, err)
	return p
}

func (f *fixture) mustCustomer(id pos.CustomerID) pos.Customer {
	f.t.Helper()
	c, err := f.engine.Customer(f.ctx, id)
	require.NoError(f.t, err)
	return c
}

func item(id pos.ProductID, qty int64) pos.SaleLineInput {
	return pos.SaleLineInput{ProductID: id, Quantity: qty}
}

func pricedItem(id pos.ProductID, qty int64, price string) pos.SaleLineInput {
	return pos.SaleLineInput{ProductID: id, Quantity: qty, UnitPrice: decPtr(price)}
}

// assertBalanceInvariant checks every customer's stored balance against
// the latest ledger entry.
func (f *fixture) assertBalanceInvariant() {
	f.t.Helper()
	customers, err := f.engine.Customers(f.ctx)
	require.NoError(f.t, err)
	for _, c := range customers {
		check, err := f.engine.CheckBalance(f.ctx, c.ID)
		require.NoError(f.t, err)
		assert.True(f.t, check.Consistent(), "customer %d: stored %s, ledger %s",
			c.ID, check.StoredBalance, check.LedgerBalance)
	}
}

// assertNoNegativeStock checks the quantity >= 0 invariant.
func (f *fixture) assertNoNegativeStock() {
	f.t.Helper()
	products, err := f.engine.Products(f.ctx)
	require.NoError(f.t, err)
	for _, p := range products {
		assert.GreaterOrEqual(f.t, p.Quantity, int64(0), "product %d", p.ID)
		if p.Quantity == 0 {
			assert.True(f.t, p.WACCost.IsZero(), "product %d: wac must be zero with no stock", p.ID)
		}
	}
}

// =============================================================================
// FAULT INJECTION
// =============================================================================

var errDiskFull = errors.New("disk I/O error: disk full")

// faultyStore fails the named write inside atomic units. Reads and
// writes outside units pass through.
type faultyStore struct {
	pos.TxStore
	failOn string
}

func (f *faultyStore) WithTx(ctx context.Context, fn func(pos.Store) error) error {
	return f.TxStore.WithTx(ctx, func(s pos.Store) error {
		return fn(&faultyUnit{Store: s, failOn: f.failOn})
	})
}

type faultyUnit struct {
	pos.Store
	failOn string
}

func (u *faultyUnit) InsertLedgerEntry(ctx context.Context, e pos.LedgerEntry) (pos.LedgerEntryID, error) {
	if u.failOn == "ledger" {
		return 0, errDiskFull
	}
	return u.Store.InsertLedgerEntry(ctx, e)
}

func (u *faultyUnit) UpdateCustomerBalance(ctx context.Context, id pos.CustomerID, balance decimal.Decimal, at time.Time) error {
	if u.failOn == "balance" {
		return errDiskFull
	}
	return u.Store.UpdateCustomerBalance(ctx, id, balance, at)
}

func (u *faultyUnit) InsertStockMovement(ctx context.Context, m pos.StockMovement) (pos.MovementID, error) {
	if u.failOn == "movement" {
		return 0, errDiskFull
	}
	return u.Store.InsertStockMovement(ctx, m)
}

// =============================================================================
// CONCURRENT WRITERS
// =============================================================================

// interleavingStore starts a concurrent write the first time the named read
// runs, and gives it a head start before letting the read continue. A read
// that spans several store calls without a snapshot sees the write land
// halfway through.
type interleavingStore struct {
	pos.TxStore
	on    string
	write func() error
	once  sync.Once
	done  chan error
}

func newInterleavingStore(inner pos.TxStore, on string, write func() error) *interleavingStore {
	return &interleavingStore{TxStore: inner, on: on, write: write, done: make(chan error, 1)}
}

func (s *interleavingStore) fire(read string) {
	if read != s.on {
		return
	}
	s.once.Do(func() {
		go func() { s.done <- s.write() }()
		select {
		case err := <-s.done:
			s.done <- err
		case <-time.After(50 * time.Millisecond):
		}
	})
}

// wait blocks until the concurrent write has committed.
func (s *interleavingStore) wait(t *testing.T) {
	t.Helper()
	select {
	case err := <-s.done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent write never finished")
	}
}

func (s *interleavingStore) WithTx(ctx context.Context, fn func(pos.Store) error) error {
	return s.TxStore.WithTx(ctx, func(u pos.Store) error {
		return fn(&interleavingUnit{Store: u, parent: s})
	})
}

func (s *interleavingStore) ListSales(ctx context.Context, f pos.SaleFilter) ([]pos.Sale, error) {
	s.fire("list_sales")
	return s.TxStore.ListSales(ctx, f)
}

func (s *interleavingStore) LedgerEntries(ctx context.Context, id pos.CustomerID) ([]pos.LedgerEntry, error) {
	s.fire("ledger_entries")
	return s.TxStore.LedgerEntries(ctx, id)
}

type interleavingUnit struct {
	pos.Store
	parent *interleavingStore
}

func (u *interleavingUnit) ListSales(ctx context.Context, f pos.SaleFilter) ([]pos.Sale, error) {
	u.parent.fire("list_sales")
	return u.Store.ListSales(ctx, f)
}

func (u *interleavingUnit) LedgerEntries(ctx context.Context, id pos.CustomerID) ([]pos.LedgerEntry, error) {
	u.parent.fire("ledger_entries")
	return u.Store.LedgerEntries(ctx, id)
}
