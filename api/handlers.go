/*
handlers.go - HTTP API handlers for the POS engine

PURPOSE:
  Exposes the costing, sale, ledger and report operations via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to
  the engine. No business rule lives here.

ENDPOINTS:
  Products:
    GET    /api/products                    List products
    POST   /api/products                    Create product
    GET    /api/products/{id}               Get product
    POST   /api/products/{id}/receipts      Receive stock (re-averages WAC)
    POST   /api/products/{id}/adjustments   Manual stock adjustment
    GET    /api/products/{id}/movements     Stock movement audit trail
    POST   /api/products/{id}/deactivate    Hide from sales

  Customers:
    GET    /api/customers                   List customers
    POST   /api/customers                   Create customer
    GET    /api/customers/{id}              Get customer
    GET    /api/customers/{id}/statement    Ledger, newest first
    GET    /api/customers/{id}/balance      Current balance
    POST   /api/customers/{id}/payments     Record a payment
    POST   /api/customers/{id}/deactivate   Block new credit sales

  Sales:
    POST   /api/sales/cash                  Cash or card sale
    POST   /api/sales/credit                Credit (khata) sale
    GET    /api/sales/{id}                  Sale with lines
    POST   /api/sales/{id}/refund           Refund a completed sale
    POST   /api/sales/{id}/cancel           Cancel a completed sale

  Reports:
    GET    /api/reports/profit?from=&to=    Profit for [from, to)
    GET    /api/reports/profit/daily        Profit per calendar day
    GET    /api/reports/low-stock           Low stock alerts
    GET    /api/reports/outstanding         Customers who owe money
    GET    /api/reports/inventory           Stock valuation at WAC

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate shape (validator/v10 tags on the request DTO)
  3. Call the engine
  4. Serialize response
  5. Map errors to status codes

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Product, customer or sale not found
  - 409: Insufficient stock, duplicate SKU, sale already reversed
  - 422: Credit limit exceeded (only with EnforceCreditLimit)
  - 500: Storage failures (the operation was rolled back)

OPERATOR:
  The X-User-ID header is recorded as CreatedBy on every row written.
  Authentication happens in front of this service.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/khata-engine/logging"
	"github.com/warp/khata-engine/pos"
)

// UserHeader carries the operator id.
const UserHeader = "X-User-ID"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter clears every row. Scenario loading uses it.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine   *pos.Engine
	Store    Resetter
	Location *time.Location

	validate *validator.Validate

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler. loc is used to interpret date-only
// report parameters.
func NewHandler(engine *pos.Engine, store Resetter, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		Engine:   engine,
		Store:    store,
		Location: loc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

// ListProducts returns all products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Engine.Products(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list products", err)
		return
	}
	dtos := make([]ProductDTO, len(products))
	for i, p := range products {
		dtos[i] = toProductDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateProduct registers a product with zero stock.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.Engine.CreateProduct(r.Context(), pos.ProductInput{
		SKU:           req.SKU,
		Name:          req.Name,
		SellPrice:     req.SellPrice,
		MinStockLevel: req.MinStockLevel,
	})
	if err != nil {
		h.fail(w, r, "Failed to create product", err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductDTO(p))
}

// GetProduct returns a single product.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := h.Engine.Product(r.Context(), pos.ProductID(id))
	if err != nil {
		h.fail(w, r, "Failed to get product", err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(p))
}

// ReceiveStock records a purchase and re-averages the product's cost.
func (h *Handler) ReceiveStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req ReceiveStockRequest
	if !h.decode(w, r, &req) {
		return
	}
	receipt, err := h.Engine.ReceiveStock(r.Context(), pos.ReceiveStockInput{
		ProductID: pos.ProductID(id),
		Quantity:  req.Quantity,
		UnitCost:  req.UnitCost,
		Reason:    req.Reason,
		UserID:    userID(r),
	})
	if err != nil {
		h.fail(w, r, "Failed to receive stock", err)
		return
	}
	writeJSON(w, http.StatusCreated, StockReceiptDTO{
		Product:  toProductDTO(receipt.Product),
		Movement: toMovementDTO(receipt.Movement),
	})
}

// AdjustStock applies a manual quantity correction.
func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req AdjustStockRequest
	if !h.decode(w, r, &req) {
		return
	}
	m, err := h.Engine.AdjustStock(r.Context(), pos.StockAdjustmentInput{
		ProductID: pos.ProductID(id),
		Delta:     req.Delta,
		Type:      pos.MovementType(req.Type),
		Reason:    req.Reason,
		UserID:    userID(r),
	})
	if err != nil {
		h.fail(w, r, "Failed to adjust stock", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMovementDTO(m))
}

// ListMovements returns a product's stock audit trail, oldest first.
func (h *Handler) ListMovements(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ms, err := h.Engine.StockMovements(r.Context(), pos.ProductID(id))
	if err != nil {
		h.fail(w, r, "Failed to list movements", err)
		return
	}
	writeJSON(w, http.StatusOK, toMovementDTOs(ms))
}

// DeactivateProduct hides a product from sales and receipts.
func (h *Handler) DeactivateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Engine.DeactivateProduct(r.Context(), pos.ProductID(id)); err != nil {
		h.fail(w, r, "Failed to deactivate product", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// =============================================================================
// CUSTOMER HANDLERS
// =============================================================================

// ListCustomers returns all customers.
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.Engine.Customers(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list customers", err)
		return
	}
	dtos := make([]CustomerDTO, len(customers))
	for i, c := range customers {
		dtos[i] = toCustomerDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCustomer registers a customer with a zero balance.
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CreateCustomerRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.Engine.CreateCustomer(r.Context(), pos.CustomerInput{
		Name:        req.Name,
		Phone:       req.Phone,
		CreditLimit: req.CreditLimit,
	})
	if err != nil {
		h.fail(w, r, "Failed to create customer", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCustomerDTO(c))
}

// GetCustomer returns a single customer.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, err := h.Engine.Customer(r.Context(), pos.CustomerID(id))
	if err != nil {
		h.fail(w, r, "Failed to get customer", err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerDTO(c))
}

// GetStatement returns the customer's ledger, newest first.
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, entries, err := h.Engine.CustomerStatement(r.Context(), pos.CustomerID(id))
	if err != nil {
		h.fail(w, r, "Failed to get statement", err)
		return
	}
	dto := StatementDTO{Customer: toCustomerDTO(c), Entries: make([]LedgerEntryDTO, len(entries))}
	for i, e := range entries {
		dto.Entries[i] = toLedgerEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dto)
}

// GetBalance returns the customer's stored balance.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	balance, err := h.Engine.CurrentBalance(r.Context(), pos.CustomerID(id))
	if err != nil {
		h.fail(w, r, "Failed to get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{CustomerID: id, CreditBalance: money(balance)})
}

// RecordPayment credits money received against the customer's balance.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req PaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	entry, err := h.Engine.RecordPayment(r.Context(), pos.PaymentInput{
		CustomerID:  pos.CustomerID(id),
		Amount:      req.Amount,
		Description: req.Description,
		UserID:      userID(r),
	})
	if err != nil {
		h.fail(w, r, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLedgerEntryDTO(entry))
}

// DeactivateCustomer blocks new credit sales for the customer.
func (h *Handler) DeactivateCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Engine.DeactivateCustomer(r.Context(), pos.CustomerID(id)); err != nil {
		h.fail(w, r, "Failed to deactivate customer", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// =============================================================================
// SALE HANDLERS
// =============================================================================

// RecordCashSale records a sale paid by cash or card.
func (h *Handler) RecordCashSale(w http.ResponseWriter, r *http.Request) {
	var req CashSaleRequest
	if !h.decode(w, r, &req) {
		return
	}
	in := pos.CashSaleInput{
		Lines:         toLineInputs(req.Lines),
		Discount:      req.Discount,
		AmountPaid:    req.AmountPaid,
		PaymentMethod: pos.PaymentMethod(req.PaymentMethod),
		Notes:         req.Notes,
		UserID:        userID(r),
	}
	if req.CustomerID != nil {
		id := pos.CustomerID(*req.CustomerID)
		in.CustomerID = &id
	}
	res, err := h.Engine.RecordCashSale(r.Context(), in)
	if err != nil {
		h.fail(w, r, "Failed to record sale", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSaleResultDTO(res))
}

// RecordCreditSale records a sale charged to the customer's khata.
func (h *Handler) RecordCreditSale(w http.ResponseWriter, r *http.Request) {
	var req CreditSaleRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.Engine.RecordCreditSale(r.Context(), pos.CreditSaleInput{
		CustomerID: pos.CustomerID(req.CustomerID),
		Lines:      toLineInputs(req.Lines),
		Discount:   req.Discount,
		Notes:      req.Notes,
		UserID:     userID(r),
	})
	if err != nil {
		h.fail(w, r, "Failed to record credit sale", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSaleResultDTO(res))
}

// GetSale returns a sale with its lines.
func (h *Handler) GetSale(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	sale, lines, err := h.Engine.Sale(r.Context(), pos.SaleID(id))
	if err != nil {
		h.fail(w, r, "Failed to get sale", err)
		return
	}
	writeJSON(w, http.StatusOK, toSaleDTO(sale, lines))
}

// RefundSale reverses a completed sale.
func (h *Handler) RefundSale(w http.ResponseWriter, r *http.Request) {
	h.reverse(w, r, "Failed to refund sale", h.Engine.RefundSale)
}

// CancelSale reverses a sale recorded by mistake.
func (h *Handler) CancelSale(w http.ResponseWriter, r *http.Request) {
	h.reverse(w, r, "Failed to cancel sale", h.Engine.CancelSale)
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request, message string,
	op func(context.Context, pos.ReversalInput) (pos.ReversalResult, error)) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req ReversalRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	res, err := op(ctx, pos.ReversalInput{SaleID: pos.SaleID(id), Reason: req.Reason, UserID: userID(r)})
	if err != nil {
		h.fail(w, r, message, err)
		return
	}
	_, lines, err := h.Engine.Sale(ctx, res.Sale.ID)
	if err != nil {
		h.fail(w, r, message, err)
		return
	}
	writeJSON(w, http.StatusOK, ReversalDTO{
		Sale:        toSaleDTO(res.Sale, lines),
		LedgerEntry: toLedgerEntryDTOPtr(res.LedgerEntry),
		Movements:   toMovementDTOs(res.Movements),
	})
}

func toLineInputs(reqs []SaleLineRequest) []pos.SaleLineInput {
	out := make([]pos.SaleLineInput, len(reqs))
	for i, l := range reqs {
		out[i] = pos.SaleLineInput{
			ProductID:    pos.ProductID(l.ProductID),
			Quantity:     l.Quantity,
			UnitPrice:    l.UnitPrice,
			LineDiscount: l.LineDiscount,
		}
	}
	return out
}

func toSaleResultDTO(res pos.SaleResult) SaleResultDTO {
	return SaleResultDTO{
		Sale:        toSaleDTO(res.Sale, res.Lines),
		Change:      money(res.Change),
		LedgerEntry: toLedgerEntryDTOPtr(res.LedgerEntry),
		Movements:   toMovementDTOs(res.Movements),
	}
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// ProfitReport summarizes completed sales in [from, to).
func (h *Handler) ProfitReport(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.rangeParams(w, r)
	if !ok {
		return
	}
	summary, err := h.Engine.ProfitForRange(r.Context(), from, to)
	if err != nil {
		h.fail(w, r, "Failed to compute profit", err)
		return
	}
	writeJSON(w, http.StatusOK, toProfitDTO(summary))
}

// DailyProfitReport returns profit per calendar day, ascending.
func (h *Handler) DailyProfitReport(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.rangeParams(w, r)
	if !ok {
		return
	}
	days, err := h.Engine.DailyProfitBreakdown(r.Context(), from, to)
	if err != nil {
		h.fail(w, r, "Failed to compute daily profit", err)
		return
	}
	dtos := make([]ProfitDTO, len(days))
	for i, d := range days {
		dtos[i] = toProfitDTO(d.ProfitSummary)
		dtos[i].Date = d.Date
	}
	writeJSON(w, http.StatusOK, dtos)
}

// LowStockReport lists products at or below their minimum level.
func (h *Handler) LowStockReport(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.Engine.LowStockAlerts(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list low stock", err)
		return
	}
	dtos := make([]LowStockDTO, len(alerts))
	for i, a := range alerts {
		dtos[i] = LowStockDTO{
			ProductID:     int64(a.ProductID),
			SKU:           a.SKU,
			Name:          a.Name,
			Quantity:      a.Quantity,
			MinStockLevel: a.MinStockLevel,
			Level:         string(a.Level),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// OutstandingReport lists customers who owe money, largest balance first.
func (h *Handler) OutstandingReport(w http.ResponseWriter, r *http.Request) {
	balances, err := h.Engine.OutstandingBalances(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list outstanding balances", err)
		return
	}
	dtos := make([]OutstandingDTO, len(balances))
	for i, b := range balances {
		dtos[i] = OutstandingDTO{
			CustomerID:      int64(b.CustomerID),
			Name:            b.Name,
			Phone:           b.Phone,
			CreditBalance:   money(b.CreditBalance),
			CreditLimit:     money(b.CreditLimit),
			RemainingCredit: money(b.RemainingCredit),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// InventoryReport values active stock at current WAC.
func (h *Handler) InventoryReport(w http.ResponseWriter, r *http.Request) {
	v, err := h.Engine.InventoryValuation(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to value inventory", err)
		return
	}
	dto := InventoryDTO{
		Products: make([]InventoryItemDTO, len(v.Products)),
		Units:    v.TotalUnits,
		Value:    money(v.TotalValue),
	}
	for i, p := range v.Products {
		dto.Products[i] = InventoryItemDTO{
			ProductID:  int64(p.ProductID),
			SKU:        p.SKU,
			Name:       p.Name,
			Quantity:   p.Quantity,
			WACCost:    money(p.WACCost),
			StockValue: money(p.StockValue),
		}
	}
	writeJSON(w, http.StatusOK, dto)
}

// rangeParams reads ?from=&to=. Each accepts RFC 3339 or YYYY-MM-DD
// (midnight in the report location). Missing values leave the side open.
func (h *Handler) rangeParams(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	q := r.URL.Query()
	from, err := parseTimeParam(q.Get("from"), h.Location)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from (use RFC 3339 or YYYY-MM-DD)", err)
		return time.Time{}, time.Time{}, false
	}
	to, err := parseTimeParam(q.Get("to"), h.Location)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to (use RFC 3339 or YYYY-MM-DD)", err)
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func parseTimeParam(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, v, loc); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, v)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// fail maps an engine error to its status code and writes it.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error(message, zap.Error(err))
	}
	writeError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case pos.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, pos.ErrInsufficientStock),
		errors.Is(err, pos.ErrDuplicateSKU),
		errors.Is(err, pos.ErrSaleNotReversible):
		return http.StatusConflict
	case errors.Is(err, pos.ErrCreditLimitExceeded):
		return http.StatusUnprocessableEntity
	case pos.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// decode reads and validates a JSON body, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeError(w, http.StatusBadRequest, "Validation failed", validationDetails(verrs))
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func validationDetails(verrs validator.ValidationErrors) error {
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		if fe.Param() != "" {
			msgs[i] = fmt.Sprintf("%s: failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param())
		} else {
			msgs[i] = fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag())
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid id", err)
		return 0, false
	}
	return id, true
}

func userID(r *http.Request) pos.UserID {
	return pos.UserID(strings.TrimSpace(r.Header.Get(UserHeader)))
}
