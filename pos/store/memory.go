// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/khata-engine/pos"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex
	st *memState
}

// memState holds every row. Its methods do no locking; callers hold Memory.mu.
type memState struct {
	products  map[pos.ProductID]pos.Product
	customers map[pos.CustomerID]pos.Customer
	sales     map[pos.SaleID]pos.Sale
	lines     []pos.SaleLine
	movements []pos.StockMovement
	ledger    []pos.LedgerEntry
	receipts  map[string]pos.SaleID
	seq       sequences
}

type sequences struct {
	product, customer, sale, line, movement, ledger int64
}

func newMemState() *memState {
	return &memState{
		products:  make(map[pos.ProductID]pos.Product),
		customers: make(map[pos.CustomerID]pos.Customer),
		sales:     make(map[pos.SaleID]pos.Sale),
		receipts:  make(map[string]pos.SaleID),
	}
}

func NewMemory() *Memory {
	return &Memory{st: newMemState()}
}

// Reset drops every row and restarts the id sequences.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = newMemState()
	return nil
}

func (m *Memory) InsertProduct(ctx context.Context, p pos.Product) (pos.ProductID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.InsertProduct(ctx, p)
}

func (m *Memory) GetProduct(ctx context.Context, id pos.ProductID) (pos.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetProduct(ctx, id)
}

func (m *Memory) ListProducts(ctx context.Context) ([]pos.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListProducts(ctx)
}

func (m *Memory) UpdateProductStock(ctx context.Context, u pos.ProductStockUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.UpdateProductStock(ctx, u)
}

func (m *Memory) SetProductActive(ctx context.Context, id pos.ProductID, active bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SetProductActive(ctx, id, active, at)
}

func (m *Memory) InsertCustomer(ctx context.Context, c pos.Customer) (pos.CustomerID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.InsertCustomer(ctx, c)
}

func (m *Memory) GetCustomer(ctx context.Context, id pos.CustomerID) (pos.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetCustomer(ctx, id)
}

func (m *Memory) ListCustomers(ctx context.Context) ([]pos.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListCustomers(ctx)
}

func (m *Memory) UpdateCustomerBalance(ctx context.Context, id pos.CustomerID, balance decimal.Decimal, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.UpdateCustomerBalance(ctx, id, balance, at)
}

func (m *Memory) SetCustomerActive(ctx context.Context, id pos.CustomerID, active bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SetCustomerActive(ctx, id, active, at)
}

func (m *Memory) InsertSale(ctx context.Context, s pos.Sale) (pos.SaleID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.InsertSale(ctx, s)
}

func (m *Memory) GetSale(ctx context.Context, id pos.SaleID) (pos.Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetSale(ctx, id)
}

func (m *Memory) UpdateSaleStatus(ctx context.Context, id pos.SaleID, status pos.SaleStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.UpdateSaleStatus(ctx, id, status)
}

func (m *Memory) ListSales(ctx context.Context, f pos.SaleFilter) ([]pos.Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListSales(ctx, f)
}

func (m *Memory) InsertSaleLine(ctx context.Context, l pos.SaleLine) (pos.SaleLineID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.InsertSaleLine(ctx, l)
}

func (m *Memory) SaleLines(ctx context.Context, id pos.SaleID) ([]pos.SaleLine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.SaleLines(ctx, id)
}

func (m *Memory) ListSaleLines(ctx context.Context, f pos.SaleFilter) ([]pos.SaleLine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListSaleLines(ctx, f)
}

func (m *Memory) InsertStockMovement(ctx context.Context, mv pos.StockMovement) (pos.MovementID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.InsertStockMovement(ctx, mv)
}

func (m *Memory) StockMovements(ctx context.Context, id pos.ProductID) ([]pos.StockMovement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.StockMovements(ctx, id)
}

func (m *Memory) InsertLedgerEntry(ctx context.Context, e pos.LedgerEntry) (pos.LedgerEntryID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.InsertLedgerEntry(ctx, e)
}

func (m *Memory) LedgerEntries(ctx context.Context, id pos.CustomerID) ([]pos.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.LedgerEntries(ctx, id)
}

// =============================================================================
// ROW OPERATIONS (caller holds the lock)
// =============================================================================

func (s *memState) InsertProduct(_ context.Context, p pos.Product) (pos.ProductID, error) {
	for _, existing := range s.products {
		if existing.SKU == p.SKU {
			return 0, pos.ErrDuplicateSKU
		}
	}
	s.seq.product++
	p.ID = pos.ProductID(s.seq.product)
	s.products[p.ID] = p
	return p.ID, nil
}

func (s *memState) GetProduct(_ context.Context, id pos.ProductID) (pos.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return pos.Product{}, pos.ErrProductNotFound
	}
	return p, nil
}

func (s *memState) ListProducts(_ context.Context) ([]pos.Product, error) {
	out := make([]pos.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memState) UpdateProductStock(_ context.Context, u pos.ProductStockUpdate) error {
	p, ok := s.products[u.ID]
	if !ok {
		return pos.ErrProductNotFound
	}
	if u.Quantity < 0 {
		return &ConstraintError{Table: "products", Rule: "quantity >= 0"}
	}
	p.Quantity = u.Quantity
	p.WACCost = u.WACCost
	p.LastUnitCost = u.LastUnitCost
	p.UpdatedAt = u.UpdatedAt
	s.products[u.ID] = p
	return nil
}

func (s *memState) SetProductActive(_ context.Context, id pos.ProductID, active bool, at time.Time) error {
	p, ok := s.products[id]
	if !ok {
		return pos.ErrProductNotFound
	}
	p.IsActive = active
	p.UpdatedAt = at
	s.products[id] = p
	return nil
}

func (s *memState) InsertCustomer(_ context.Context, c pos.Customer) (pos.CustomerID, error) {
	s.seq.customer++
	c.ID = pos.CustomerID(s.seq.customer)
	s.customers[c.ID] = c
	return c.ID, nil
}

func (s *memState) GetCustomer(_ context.Context, id pos.CustomerID) (pos.Customer, error) {
	c, ok := s.customers[id]
	if !ok {
		return pos.Customer{}, pos.ErrCustomerNotFound
	}
	return c, nil
}

func (s *memState) ListCustomers(_ context.Context) ([]pos.Customer, error) {
	out := make([]pos.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memState) UpdateCustomerBalance(_ context.Context, id pos.CustomerID, balance decimal.Decimal, at time.Time) error {
	c, ok := s.customers[id]
	if !ok {
		return pos.ErrCustomerNotFound
	}
	c.CreditBalance = balance
	c.UpdatedAt = at
	s.customers[id] = c
	return nil
}

func (s *memState) SetCustomerActive(_ context.Context, id pos.CustomerID, active bool, at time.Time) error {
	c, ok := s.customers[id]
	if !ok {
		return pos.ErrCustomerNotFound
	}
	c.IsActive = active
	c.UpdatedAt = at
	s.customers[id] = c
	return nil
}

func (s *memState) InsertSale(_ context.Context, sale pos.Sale) (pos.SaleID, error) {
	if _, dup := s.receipts[sale.ReceiptNo]; dup {
		return 0, &DuplicateError{Table: "sales", Key: sale.ReceiptNo}
	}
	if sale.CustomerID != nil {
		if _, ok := s.customers[*sale.CustomerID]; !ok {
			return 0, pos.ErrCustomerNotFound
		}
	}
	s.seq.sale++
	sale.ID = pos.SaleID(s.seq.sale)
	s.sales[sale.ID] = sale
	s.receipts[sale.ReceiptNo] = sale.ID
	return sale.ID, nil
}

func (s *memState) GetSale(_ context.Context, id pos.SaleID) (pos.Sale, error) {
	sale, ok := s.sales[id]
	if !ok {
		return pos.Sale{}, pos.ErrSaleNotFound
	}
	return sale, nil
}

func (s *memState) UpdateSaleStatus(_ context.Context, id pos.SaleID, status pos.SaleStatus) error {
	sale, ok := s.sales[id]
	if !ok {
		return pos.ErrSaleNotFound
	}
	sale.Status = status
	s.sales[id] = sale
	return nil
}

// ListSales returns matching sales ordered by creation time, then id.
func (s *memState) ListSales(_ context.Context, f pos.SaleFilter) ([]pos.Sale, error) {
	var out []pos.Sale
	for _, sale := range s.sales {
		if f.Match(sale) {
			out = append(out, sale)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memState) InsertSaleLine(_ context.Context, l pos.SaleLine) (pos.SaleLineID, error) {
	if _, ok := s.sales[l.SaleID]; !ok {
		return 0, pos.ErrSaleNotFound
	}
	if _, ok := s.products[l.ProductID]; !ok {
		return 0, pos.ErrProductNotFound
	}
	s.seq.line++
	l.ID = pos.SaleLineID(s.seq.line)
	s.lines = append(s.lines, l)
	return l.ID, nil
}

func (s *memState) SaleLines(_ context.Context, id pos.SaleID) ([]pos.SaleLine, error) {
	var out []pos.SaleLine
	for _, l := range s.lines {
		if l.SaleID == id {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *memState) ListSaleLines(_ context.Context, f pos.SaleFilter) ([]pos.SaleLine, error) {
	var out []pos.SaleLine
	for _, l := range s.lines {
		if f.Match(s.sales[l.SaleID]) {
			out = append(out, l)
		}
	}
	return out, nil
}

// InsertStockMovement appends an audit row. Append-only.
func (s *memState) InsertStockMovement(_ context.Context, m pos.StockMovement) (pos.MovementID, error) {
	if _, ok := s.products[m.ProductID]; !ok {
		return 0, pos.ErrProductNotFound
	}
	s.seq.movement++
	m.ID = pos.MovementID(s.seq.movement)
	s.movements = append(s.movements, m)
	return m.ID, nil
}

func (s *memState) StockMovements(_ context.Context, id pos.ProductID) ([]pos.StockMovement, error) {
	var out []pos.StockMovement
	for _, m := range s.movements {
		if m.ProductID == id {
			out = append(out, m)
		}
	}
	return out, nil
}

// InsertLedgerEntry appends a balance change. Append-only.
func (s *memState) InsertLedgerEntry(_ context.Context, e pos.LedgerEntry) (pos.LedgerEntryID, error) {
	if _, ok := s.customers[e.CustomerID]; !ok {
		return 0, pos.ErrCustomerNotFound
	}
	s.seq.ledger++
	e.ID = pos.LedgerEntryID(s.seq.ledger)
	s.ledger = append(s.ledger, e)
	return e.ID, nil
}

// LedgerEntries returns the customer's entries newest first, ties by id.
func (s *memState) LedgerEntries(_ context.Context, id pos.CustomerID) ([]pos.LedgerEntry, error) {
	var out []pos.LedgerEntry
	for _, e := range s.ledger {
		if e.CustomerID == id {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// The write lock is held for the whole unit, so units are serialized and
// readers never see a half-written unit.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(pos.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	// Snapshot current state
	snapshot := tm.st.clone()

	// Execute against the live state; the view takes no locks
	if err := fn(tm.st); err != nil {
		// Rollback
		tm.st = snapshot
		return err
	}

	// Commit (already done via direct writes)
	return nil
}

func (s *memState) clone() *memState {
	c := &memState{
		products:  make(map[pos.ProductID]pos.Product, len(s.products)),
		customers: make(map[pos.CustomerID]pos.Customer, len(s.customers)),
		sales:     make(map[pos.SaleID]pos.Sale, len(s.sales)),
		receipts:  make(map[string]pos.SaleID, len(s.receipts)),
		lines:     append([]pos.SaleLine(nil), s.lines...),
		movements: append([]pos.StockMovement(nil), s.movements...),
		ledger:    append([]pos.LedgerEntry(nil), s.ledger...),
		seq:       s.seq,
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.customers {
		c.customers[k] = v
	}
	for k, v := range s.sales {
		c.sales[k] = v
	}
	for k, v := range s.receipts {
		c.receipts[k] = v
	}
	return c
}

var (
	_ pos.TxStore = (*TxMemory)(nil)
	_ pos.Store   = (*memState)(nil)
)
