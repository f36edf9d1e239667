/*
engine.go - Engine construction and the atomic unit wrapper

PURPOSE:
  Engine is the single entry point callers use. It owns no global state:
  the TxStore is created by the caller and injected, together with the
  logger, clock, policy and metrics observer.

ATOMIC UNITS:
  Every mutating operation goes through atomic(), which
  1. runs the operation inside TxStore.WithTx
  2. converts any non-domain failure into a StorageError
  3. logs the outcome and reports it to the Observer

SEE ALSO:
  - store.go: TxStore contract
  - metrics/metrics.go: Prometheus Observer implementation
*/
package pos

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Observer receives the outcome of every engine operation.
type Observer interface {
	ObserveOperation(operation string, outcome string, duration time.Duration)
}

// Operation outcomes reported to the Observer.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

type noopObserver struct{}

func (noopObserver) ObserveOperation(string, string, time.Duration) {}

// Engine executes costing, sale, ledger and report operations.
type Engine struct {
	store    TxStore
	policy   Policy
	logger   *zap.Logger
	observer Observer
	now      func() time.Time
	location *time.Location
}

// Option configures an Engine.
type Option func(*Engine)

// WithPolicy sets the credit and payment policy.
func WithPolicy(p Policy) Option { return func(e *Engine) { e.policy = p } }

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithClock overrides the time source. Tests use it to pin timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLocation sets the time zone used to group reports by calendar day.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.location = loc
		}
	}
}

// NewEngine creates an engine on top of the given store.
func NewEngine(store TxStore, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		logger:   zap.NewNop(),
		observer: noopObserver{},
		now:      time.Now,
		location: time.UTC,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the active policy.
func (e *Engine) Policy() Policy { return e.policy }

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}

// atomic runs fn as one atomic unit against the store.
func (e *Engine) atomic(ctx context.Context, op string, fn func(Store) error) error {
	start := time.Now()
	err := e.store.WithTx(ctx, fn)
	if err != nil && !isDomainError(err) {
		err = &StorageError{Op: op, Err: err}
	}

	outcome := OutcomeSuccess
	switch {
	case err == nil:
	case IsNotFound(err) || IsClientError(err):
		outcome = OutcomeRejected
		e.logger.Info("operation rejected", zap.String("op", op), zap.Error(err))
	default:
		outcome = OutcomeFailed
		e.logger.Warn("operation rolled back", zap.String("op", op), zap.Error(err))
	}
	e.observer.ObserveOperation(op, outcome, time.Since(start))
	return err
}

// snapshot runs a read spanning several rows as one unit, so it observes
// a single committed state and never half of a concurrent write.
func (e *Engine) snapshot(ctx context.Context, op string, fn func(Store) error) error {
	return e.read(op, e.store.WithTx(ctx, fn))
}

// read wraps a plain read so failures carry the same categories as writes.
func (e *Engine) read(op string, err error) error {
	if err == nil || isDomainError(err) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
