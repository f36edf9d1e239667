/*
scheduler.go - Periodic low-stock watcher

PURPOSE:
  Periodically runs the low-stock report so shortages show up in the
  logs and on the pos_low_stock_products gauge without anyone opening
  the report.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start, then on every tick
  - Read-only: never writes to the store

CONFIGURATION:
  - CheckInterval: How often to check (POS_ALERT_INTERVAL, default 15m)
  - Enabled: Whether the watcher is active (false when the interval is 0)

USAGE:
  watcher := NewLowStockWatcher(engine, m, logger, interval)
  watcher.Start()
  // ... later
  watcher.Stop()

SEE ALSO:
  - handlers.go: LowStockReport endpoint (same data on demand)
  - metrics/metrics.go: SetLowStock
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/khata-engine/pos"
)

// AlertSink receives the alerts found by each check.
type AlertSink interface {
	SetLowStock(alerts []pos.LowStockAlert)
}

// LowStockWatcher checks stock levels on an interval.
type LowStockWatcher struct {
	Engine        *pos.Engine
	Sink          AlertSink
	Logger        *zap.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewLowStockWatcher creates a new watcher. A zero interval disables it.
func NewLowStockWatcher(engine *pos.Engine, sink AlertSink, logger *zap.Logger, interval time.Duration) *LowStockWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LowStockWatcher{
		Engine:        engine,
		Sink:          sink,
		Logger:        logger,
		CheckInterval: interval,
		Enabled:       interval > 0,
	}
}

// Start begins the watcher.
func (lw *LowStockWatcher) Start() {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if !lw.Enabled {
		lw.Logger.Info("low stock watcher disabled")
		return
	}
	if lw.ticker != nil {
		return
	}

	lw.ticker = time.NewTicker(lw.CheckInterval)
	lw.stop = make(chan struct{})
	lw.wg.Add(1)

	go lw.run(lw.ticker, lw.stop)

	lw.Logger.Info("low stock watcher started", zap.Duration("interval", lw.CheckInterval))
}

// Stop stops the watcher and waits for an in-flight check.
func (lw *LowStockWatcher) Stop() {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if lw.ticker != nil {
		lw.ticker.Stop()
		close(lw.stop)
		lw.wg.Wait()
		lw.ticker = nil
		lw.Logger.Info("low stock watcher stopped")
	}
}

func (lw *LowStockWatcher) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer lw.wg.Done()

	// Run immediately on start
	lw.RunNow(context.Background())

	for {
		select {
		case <-ticker.C:
			lw.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow performs one check and returns the alerts found.
func (lw *LowStockWatcher) RunNow(ctx context.Context) []pos.LowStockAlert {
	alerts, err := lw.Engine.LowStockAlerts(ctx)
	if err != nil {
		lw.Logger.Error("low stock check failed", zap.Error(err))
		return nil
	}

	if lw.Sink != nil {
		lw.Sink.SetLowStock(alerts)
	}
	for _, a := range alerts {
		lw.Logger.Warn("low stock",
			zap.Int64("product_id", int64(a.ProductID)),
			zap.String("sku", a.SKU),
			zap.Int64("quantity", a.Quantity),
			zap.Int64("min_stock_level", a.MinStockLevel),
			zap.String("level", string(a.Level)),
		)
	}
	lw.Logger.Debug("low stock check complete", zap.Int("alerts", len(alerts)))
	return alerts
}
