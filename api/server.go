/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from X-Forwarded-For / X-Real-IP
  3. Logger:     zap request logging, request-scoped logger in context
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the till frontend

ROUTE GROUPS:
  /api/products/*       Catalog and stock costing
  /api/customers/*      Customers and the credit ledger
  /api/sales/*          Sales and reversals
  /api/reports/*        Read-only reports
  /api/scenarios/*      Demo scenarios (dev only)
  /healthz              Store liveness
  /metrics              Prometheus scrape endpoint

SECURITY NOTE:
  No authentication middleware. The operator id is taken from the
  X-User-ID header set by the gateway in front of this service.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/warp/khata-engine/logging"
)

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterOptions carries the optional parts of the router.
type RouterOptions struct {
	Logger         *zap.Logger
	Metrics        http.Handler // served at /metrics when set
	Health         Pinger       // checked by /healthz when set
	AllowedOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", UserHeader},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if opts.Health != nil {
			if err := opts.Health.Ping(r.Context()); err != nil {
				writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Product routes
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Post("/", h.CreateProduct)
			r.Get("/{id}", h.GetProduct)
			r.Post("/{id}/receipts", h.ReceiveStock)
			r.Post("/{id}/adjustments", h.AdjustStock)
			r.Get("/{id}/movements", h.ListMovements)
			r.Post("/{id}/deactivate", h.DeactivateProduct)
		})

		// Customer routes
		r.Route("/customers", func(r chi.Router) {
			r.Get("/", h.ListCustomers)
			r.Post("/", h.CreateCustomer)
			r.Get("/{id}", h.GetCustomer)
			r.Get("/{id}/statement", h.GetStatement)
			r.Get("/{id}/balance", h.GetBalance)
			r.Post("/{id}/payments", h.RecordPayment)
			r.Post("/{id}/deactivate", h.DeactivateCustomer)
		})

		// Sale routes
		r.Route("/sales", func(r chi.Router) {
			r.Post("/cash", h.RecordCashSale)
			r.Post("/credit", h.RecordCreditSale)
			r.Get("/{id}", h.GetSale)
			r.Post("/{id}/refund", h.RefundSale)
			r.Post("/{id}/cancel", h.CancelSale)
		})

		// Report routes
		r.Route("/reports", func(r chi.Router) {
			r.Get("/profit", h.ProfitReport)
			r.Get("/profit/daily", h.DailyProfitReport)
			r.Get("/low-stock", h.LowStockReport)
			r.Get("/outstanding", h.OutstandingReport)
			r.Get("/inventory", h.InventoryReport)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}

// requestLogger logs one line per request and stores a request-scoped
// logger (tagged with the request id) in the context.
func requestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			l := base.With(zap.String("request_id", middleware.GetReqID(r.Context())))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(logging.WithLogger(r.Context(), l)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			l.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.String("remote", r.RemoteAddr),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
