/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:
	Tests that each scenario correctly sets up the expected state:
	- Products are stocked at the expected average cost
	- Credit sales and payments leave the expected balances
	- Stock levels trigger the expected alerts

These tests run against SQLite so the loaders double as integration tests.
*/
package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/warp/khata-engine/pos"
	"github.com/warp/khata-engine/store/sqlite"
)

func setupTestHandler(t *testing.T) *Handler {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return NewHandler(pos.NewEngine(store), store, time.UTC)
}

func loadScenario(t *testing.T, h *Handler, id string) {
	t.Helper()
	require.NoError(t, h.LoadScenarioByID(context.Background(), id))
}

func TestAllScenariosLoad(t *testing.T) {
	h := setupTestHandler(t)

	for _, s := range scenarios {
		t.Run(s.ID, func(t *testing.T) {
			loadScenario(t, h, s.ID)
			assert.Equal(t, s.ID, h.currentScenario)

			// Every loaded scenario keeps the ledger invariant.
			customers, err := h.Engine.Customers(context.Background())
			require.NoError(t, err)
			for _, c := range customers {
				check, err := h.Engine.CheckBalance(context.Background(), c.ID)
				require.NoError(t, err)
				assert.True(t, check.Consistent(), "customer %s", c.Name)
			}
		})
	}
}

func TestScenario_CornerShop(t *testing.T) {
	h := setupTestHandler(t)
	loadScenario(t, h, "corner-shop")
	ctx := context.Background()

	products, err := h.Engine.Products(ctx)
	require.NoError(t, err)
	require.Len(t, products, 3)

	rice := products[0]
	assert.Equal(t, "RICE-5KG", rice.SKU)
	assert.Equal(t, int64(18), rice.Quantity)
	assert.Equal(t, "520.00", rice.WACCost.StringFixed(2))

	profit, err := h.Engine.ProfitForRange(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 3, profit.TransactionCount)
	// rice 2*(650-520) + tea 3*(180-120) + soap 7*(40-25)
	assert.Equal(t, "545.00", profit.NetProfit.StringFixed(2))
}

func TestScenario_KhataBook(t *testing.T) {
	h := setupTestHandler(t)
	loadScenario(t, h, "khata-book")

	balances, err := h.Engine.OutstandingBalances(context.Background())
	require.NoError(t, err)
	require.Len(t, balances, 2, "Sunita paid in full")

	assert.Equal(t, "Ramesh Kumar", balances[0].Name)
	assert.Equal(t, "1200.00", balances[0].CreditBalance.StringFixed(2))
	assert.Equal(t, "Imran Shaikh", balances[1].Name)
	assert.Equal(t, "420.00", balances[1].CreditBalance.StringFixed(2))
}

func TestScenario_KhataBookWithinEnforcedLimits(t *testing.T) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewHandler(pos.NewEngine(store, pos.WithPolicy(pos.Policy{EnforceCreditLimit: true})), store, nil)
	loadScenario(t, h, "khata-book")
}

func TestScenario_RestockNeeded(t *testing.T) {
	h := setupTestHandler(t)
	loadScenario(t, h, "restock-needed")

	alerts, err := h.Engine.LowStockAlerts(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 3)

	assert.Equal(t, "MILK-500", alerts[0].SKU)
	assert.Equal(t, pos.AlertOutOfStock, alerts[0].Level)
	assert.Equal(t, "SALT-1KG", alerts[1].SKU)
	assert.Equal(t, pos.AlertCritical, alerts[1].Level)
	assert.Equal(t, "SUGAR-1KG", alerts[2].SKU)
	assert.Equal(t, pos.AlertLowStock, alerts[2].Level)
}

func TestScenario_ReturnsDesk(t *testing.T) {
	h := setupTestHandler(t)
	loadScenario(t, h, "returns-desk")
	ctx := context.Background()

	customers, err := h.Engine.Customers(ctx)
	require.NoError(t, err)
	require.Len(t, customers, 1)
	assert.Equal(t, "360.00", customers[0].CreditBalance.StringFixed(2), "only the bulb sale is still owed")

	products, err := h.Engine.Products(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), products[0].Quantity, "kettle returned")
	assert.Equal(t, int64(36), products[1].Quantity)

	profit, err := h.Engine.ProfitForRange(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, profit.TransactionCount)
}

func TestLoadScenario_ReplacesPreviousData(t *testing.T) {
	h := setupTestHandler(t)
	loadScenario(t, h, "khata-book")
	loadScenario(t, h, "corner-shop")

	customers, err := h.Engine.Customers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, customers)
}

func TestScenarioRoutes(t *testing.T) {
	h := setupTestHandler(t)
	router := NewRouter(h, RouterOptions{})

	send := func(method, path, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
		return rec
	}

	assert.Equal(t, http.StatusOK, send("GET", "/api/scenarios", "").Code)
	assert.Equal(t, http.StatusBadRequest, send("POST", "/api/scenarios/load", `{"scenario_id":"nope"}`).Code)
	assert.Equal(t, http.StatusBadRequest, send("POST", "/api/scenarios/load", `{}`).Code)

	rec := send("POST", "/api/scenarios/load", `{"scenario_id":"restock-needed"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = send("GET", "/api/scenarios/current", "")
	assert.Contains(t, rec.Body.String(), `"restock-needed"`)

	require.Equal(t, http.StatusOK, send("POST", "/api/scenarios/reset", "").Code)
	products, err := h.Engine.Products(context.Background())
	require.NoError(t, err)
	assert.Empty(t, products)
}

// =============================================================================
// LOW STOCK WATCHER
// =============================================================================

type recordingSink struct {
	mu    sync.Mutex
	calls [][]pos.LowStockAlert
}

func (s *recordingSink) SetLowStock(alerts []pos.LowStockAlert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, alerts)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func TestLowStockWatcher_RunNow(t *testing.T) {
	h := setupTestHandler(t)
	loadScenario(t, h, "restock-needed")

	core, logs := observer.New(zapcore.WarnLevel)
	sink := &recordingSink{}
	watcher := NewLowStockWatcher(h.Engine, sink, zap.New(core), time.Hour)

	alerts := watcher.RunNow(context.Background())

	assert.Len(t, alerts, 3)
	require.Equal(t, 1, sink.count())
	assert.Len(t, sink.calls[0], 3)
	assert.Equal(t, 3, logs.FilterMessage("low stock").Len())
}

func TestLowStockWatcher_StartRunsImmediately(t *testing.T) {
	h := setupTestHandler(t)
	sink := &recordingSink{}
	watcher := NewLowStockWatcher(h.Engine, sink, nil, time.Hour)

	watcher.Start()
	assert.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 10*time.Millisecond)
	watcher.Stop()
	watcher.Stop() // idempotent
}

func TestLowStockWatcher_DisabledWithoutInterval(t *testing.T) {
	h := setupTestHandler(t)
	sink := &recordingSink{}
	watcher := NewLowStockWatcher(h.Engine, sink, nil, 0)

	watcher.Start()
	watcher.Stop()
	assert.False(t, watcher.Enabled)
	assert.Equal(t, 0, sink.count())
}
