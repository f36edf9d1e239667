/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	shop data for demos and manual testing. Every row is written through
	the engine, so scenarios exercise the same costing and ledger rules
	as real traffic.

AVAILABLE SCENARIOS:

	corner-shop:     Products received at two costs, cash sales, profit
	khata-book:      Customers buying on credit and paying in part
	restock-needed:  Products at, below and out of minimum stock
	returns-desk:    A refunded credit sale and a cancelled cash sale

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Create products and customers
 3. Receive stock (WAC is averaged per receipt)
 4. Record sales, payments and reversals

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "khata-book"}

USAGE AT STARTUP:

	POS_SEED_SCENARIO=corner-shop ./server

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description and loader

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler and error helpers
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/khata-engine/logging"
	"github.com/warp/khata-engine/pos"
)

// seedUser is recorded as CreatedBy on scenario rows.
const seedUser pos.UserID = "scenario-loader"

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	load func(ctx context.Context, e *pos.Engine) error
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "corner-shop",
			Name:        "Corner Shop",
			Description: "Rice and tea received at two costs, a day of cash sales",
		},
		load: loadCornerShopScenario,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "khata-book",
			Name:        "Khata Book",
			Description: "Regular customers buying on credit and paying in part",
		},
		load: loadKhataBookScenario,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "restock-needed",
			Name:        "Restock Needed",
			Description: "Products at, below and out of their minimum stock level",
		},
		load: loadRestockScenario,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "returns-desk",
			Name:        "Returns Desk",
			Description: "A refunded credit sale and a cancelled cash sale",
		},
		load: loadReturnsScenario,
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns all available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	if s, ok := findScenario(current); ok {
		writeJSON(w, http.StatusOK, s.ScenarioDTO)
		return
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:          current,
		Name:        current,
		Description: "Currently loaded scenario",
	})
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	if _, ok := findScenario(req.ScenarioID); !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}
	if err := h.LoadScenarioByID(r.Context(), req.ScenarioID); err != nil {
		h.fail(w, r, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
	})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		h.fail(w, r, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// LoadScenarioByID resets the store and runs the named loader. It is also
// used to seed the store at startup.
func (h *Handler) LoadScenarioByID(ctx context.Context, id string) error {
	s, ok := findScenario(id)
	if !ok {
		return fmt.Errorf("%w: unknown scenario %q", pos.ErrInvalidInput, id)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	h.currentScenario = ""

	if err := s.load(ctx, h.Engine); err != nil {
		return err
	}
	h.currentScenario = id
	logging.FromContext(ctx).Info("scenario loaded", zap.String("scenario", id))
	return nil
}

// =============================================================================
// LOADERS
// =============================================================================

func loadCornerShopScenario(ctx context.Context, e *pos.Engine) error {
	sb := &seedBuilder{ctx: ctx, e: e}

	rice := sb.product("RICE-5KG", "Basmati Rice 5kg", "650.00", 5)
	tea := sb.product("TEA-250", "Assam Tea 250g", "180.00", 10)
	soap := sb.product("SOAP-BAR", "Neem Soap", "40.00", 12)

	// Two receipts at different costs so the average moves.
	sb.receive(rice, 10, "500.00")
	sb.receive(rice, 10, "540.00")
	sb.receive(tea, 24, "120.00")
	sb.receive(soap, 48, "25.00")

	sb.cashSale(nil, "1500.00", line(rice, 2), line(tea, 1))
	sb.cashSale(nil, "500.00", line(tea, 2), line(soap, 3))
	sb.cashSale(nil, "200.00", line(soap, 4))
	return sb.err
}

func loadKhataBookScenario(ctx context.Context, e *pos.Engine) error {
	sb := &seedBuilder{ctx: ctx, e: e}

	atta := sb.product("ATTA-10KG", "Wheat Flour 10kg", "420.00", 5)
	oil := sb.product("OIL-1L", "Mustard Oil 1L", "190.00", 6)
	dal := sb.product("DAL-1KG", "Toor Dal 1kg", "160.00", 8)

	sb.receive(atta, 20, "350.00")
	sb.receive(oil, 30, "150.00")
	sb.receive(dal, 25, "120.00")

	ramesh := sb.customer("Ramesh Kumar", "9800000001", "5000.00")
	sunita := sb.customer("Sunita Devi", "9800000002", "2000.00")
	imran := sb.customer("Imran Shaikh", "9800000003", "1000.00")

	sb.creditSale(ramesh, line(atta, 2), line(oil, 2))
	sb.creditSale(ramesh, line(dal, 3))
	sb.payment(ramesh, "500.00")

	sb.creditSale(sunita, line(oil, 1), line(dal, 1))
	sb.payment(sunita, "350.00")

	sb.creditSale(imran, line(atta, 1))
	return sb.err
}

func loadRestockScenario(ctx context.Context, e *pos.Engine) error {
	sb := &seedBuilder{ctx: ctx, e: e}

	sugar := sb.product("SUGAR-1KG", "Sugar 1kg", "48.00", 20)
	salt := sb.product("SALT-1KG", "Iodised Salt 1kg", "25.00", 10)
	milk := sb.product("MILK-500", "Milk Powder 500g", "260.00", 6)
	biscuits := sb.product("BISC-PKT", "Glucose Biscuits", "10.00", 30)

	sb.receive(sugar, 25, "40.00") // sells down to low_stock
	sb.receive(salt, 12, "18.00")  // sells down to critical
	sb.receive(milk, 4, "210.00")  // sells out
	sb.receive(biscuits, 100, "7.50")

	sb.cashSale(nil, "", line(sugar, 7))
	sb.cashSale(nil, "", line(salt, 8))
	sb.cashSale(nil, "", line(milk, 4))
	sb.cashSale(nil, "", line(biscuits, 12))
	return sb.err
}

func loadReturnsScenario(ctx context.Context, e *pos.Engine) error {
	sb := &seedBuilder{ctx: ctx, e: e}

	kettle := sb.product("KETTLE-1L", "Electric Kettle", "1200.00", 2)
	bulb := sb.product("BULB-9W", "LED Bulb 9W", "90.00", 10)

	sb.receive(kettle, 5, "900.00")
	sb.receive(bulb, 40, "55.00")

	meena := sb.customer("Meena Joshi", "9800000004", "3000.00")

	refunded := sb.creditSale(meena, line(kettle, 1), line(bulb, 2))
	sb.creditSale(meena, line(bulb, 4))
	cancelled := sb.cashSale(nil, "", line(bulb, 3))

	sb.reverse(refunded, "Kettle stopped working", e.RefundSale)
	sb.reverse(cancelled, "Rung up twice", e.CancelSale)
	return sb.err
}

// =============================================================================
// SEED HELPERS
// =============================================================================

// seedBuilder stops at the first error so loaders read top to bottom.
type seedBuilder struct {
	ctx context.Context
	e   *pos.Engine
	err error
}

func line(id pos.ProductID, qty int64) pos.SaleLineInput {
	return pos.SaleLineInput{ProductID: id, Quantity: qty}
}

func (sb *seedBuilder) product(sku, name, price string, minStock int64) pos.ProductID {
	if sb.err != nil {
		return 0
	}
	p, err := sb.e.CreateProduct(sb.ctx, pos.ProductInput{
		SKU:           sku,
		Name:          name,
		SellPrice:     decimal.RequireFromString(price),
		MinStockLevel: minStock,
	})
	if err != nil {
		sb.err = fmt.Errorf("create product %s: %w", sku, err)
		return 0
	}
	return p.ID
}

func (sb *seedBuilder) customer(name, phone, limit string) pos.CustomerID {
	if sb.err != nil {
		return 0
	}
	c, err := sb.e.CreateCustomer(sb.ctx, pos.CustomerInput{
		Name:        name,
		Phone:       phone,
		CreditLimit: decimal.RequireFromString(limit),
	})
	if err != nil {
		sb.err = fmt.Errorf("create customer %s: %w", name, err)
		return 0
	}
	return c.ID
}

func (sb *seedBuilder) receive(id pos.ProductID, qty int64, cost string) {
	if sb.err != nil {
		return
	}
	_, err := sb.e.ReceiveStock(sb.ctx, pos.ReceiveStockInput{
		ProductID: id,
		Quantity:  qty,
		UnitCost:  decimal.RequireFromString(cost),
		Reason:    "Opening stock",
		UserID:    seedUser,
	})
	if err != nil {
		sb.err = fmt.Errorf("receive product %d: %w", id, err)
	}
}

// cashSale records a cash sale. An empty paid amount records a card
// payment for the exact total.
func (sb *seedBuilder) cashSale(customer *pos.CustomerID, paid string, lines ...pos.SaleLineInput) pos.SaleID {
	if sb.err != nil {
		return 0
	}
	in := pos.CashSaleInput{CustomerID: customer, Lines: lines, UserID: seedUser}
	if paid == "" {
		in.PaymentMethod = pos.PaymentCard
	} else {
		in.AmountPaid = decimal.RequireFromString(paid)
	}
	res, err := sb.e.RecordCashSale(sb.ctx, in)
	if err != nil {
		sb.err = fmt.Errorf("cash sale: %w", err)
		return 0
	}
	return res.Sale.ID
}

func (sb *seedBuilder) creditSale(customer pos.CustomerID, lines ...pos.SaleLineInput) pos.SaleID {
	if sb.err != nil {
		return 0
	}
	res, err := sb.e.RecordCreditSale(sb.ctx, pos.CreditSaleInput{
		CustomerID: customer,
		Lines:      lines,
		UserID:     seedUser,
	})
	if err != nil {
		sb.err = fmt.Errorf("credit sale for customer %d: %w", customer, err)
		return 0
	}
	return res.Sale.ID
}

func (sb *seedBuilder) payment(customer pos.CustomerID, amount string) {
	if sb.err != nil {
		return
	}
	_, err := sb.e.RecordPayment(sb.ctx, pos.PaymentInput{
		CustomerID: customer,
		Amount:     decimal.RequireFromString(amount),
		UserID:     seedUser,
	})
	if err != nil {
		sb.err = fmt.Errorf("payment from customer %d: %w", customer, err)
	}
}

func (sb *seedBuilder) reverse(id pos.SaleID, reason string,
	op func(context.Context, pos.ReversalInput) (pos.ReversalResult, error)) {
	if sb.err != nil {
		return
	}
	if _, err := op(sb.ctx, pos.ReversalInput{SaleID: id, Reason: reason, UserID: seedUser}); err != nil {
		sb.err = fmt.Errorf("reverse sale %d: %w", id, err)
	}
}
