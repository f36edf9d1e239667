package pos

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductInput describes a new product. Products start with no stock;
// opening stock goes through ReceiveStock so it is costed.
type ProductInput struct {
	SKU           string
	Name          string
	SellPrice     decimal.Decimal
	MinStockLevel int64
}

// CustomerInput describes a new customer.
type CustomerInput struct {
	Name        string
	Phone       string
	CreditLimit decimal.Decimal
}

// CreateProduct registers a product.
func (e *Engine) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	in.SKU = strings.ToUpper(strings.TrimSpace(in.SKU))
	in.Name = strings.TrimSpace(in.Name)
	if in.SKU == "" || in.Name == "" {
		return Product{}, ErrMissingField
	}
	if in.SellPrice.IsNegative() {
		return Product{}, ErrInvalidPrice
	}
	if in.MinStockLevel < 0 {
		return Product{}, ErrInvalidQuantity
	}

	now := e.clock()
	p := Product{
		SKU:           in.SKU,
		Name:          in.Name,
		SellPrice:     Round(in.SellPrice),
		WACCost:       decimal.Zero,
		LastUnitCost:  decimal.Zero,
		MinStockLevel: in.MinStockLevel,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := e.atomic(ctx, "create_product", func(s Store) error {
		id, err := s.InsertProduct(ctx, p)
		if err != nil {
			return err
		}
		p.ID = id
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	e.logger.Info("product created", zap.Int64("product_id", int64(p.ID)), zap.String("sku", p.SKU))
	return p, nil
}

// CreateCustomer registers a customer with a zero balance.
func (e *Engine) CreateCustomer(ctx context.Context, in CustomerInput) (Customer, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return Customer{}, ErrMissingField
	}
	if in.CreditLimit.IsNegative() {
		return Customer{}, ErrInvalidAmount
	}

	now := e.clock()
	c := Customer{
		Name:          in.Name,
		Phone:         strings.TrimSpace(in.Phone),
		CreditLimit:   Round(in.CreditLimit),
		CreditBalance: decimal.Zero,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := e.atomic(ctx, "create_customer", func(s Store) error {
		id, err := s.InsertCustomer(ctx, c)
		if err != nil {
			return err
		}
		c.ID = id
		return nil
	})
	if err != nil {
		return Customer{}, err
	}
	e.logger.Info("customer created", zap.Int64("customer_id", int64(c.ID)))
	return c, nil
}

// DeactivateProduct hides a product from sales and receipts. Its history stays.
func (e *Engine) DeactivateProduct(ctx context.Context, id ProductID) error {
	return e.atomic(ctx, "deactivate_product", func(s Store) error {
		if _, err := s.GetProduct(ctx, id); err != nil {
			return err
		}
		return s.SetProductActive(ctx, id, false, e.clock())
	})
}

// DeactivateCustomer blocks new credit sales for a customer. The balance
// can still be paid down.
func (e *Engine) DeactivateCustomer(ctx context.Context, id CustomerID) error {
	return e.atomic(ctx, "deactivate_customer", func(s Store) error {
		if _, err := s.GetCustomer(ctx, id); err != nil {
			return err
		}
		return s.SetCustomerActive(ctx, id, false, e.clock())
	})
}

// =============================================================================
// READERS
// =============================================================================

func (e *Engine) Product(ctx context.Context, id ProductID) (Product, error) {
	p, err := e.store.GetProduct(ctx, id)
	return p, e.read("get_product", err)
}

func (e *Engine) Products(ctx context.Context) ([]Product, error) {
	ps, err := e.store.ListProducts(ctx)
	return ps, e.read("list_products", err)
}

func (e *Engine) Customer(ctx context.Context, id CustomerID) (Customer, error) {
	c, err := e.store.GetCustomer(ctx, id)
	return c, e.read("get_customer", err)
}

func (e *Engine) Customers(ctx context.Context) ([]Customer, error) {
	cs, err := e.store.ListCustomers(ctx)
	return cs, e.read("list_customers", err)
}

// Sale returns a sale together with its lines.
func (e *Engine) Sale(ctx context.Context, id SaleID) (Sale, []SaleLine, error) {
	sale, err := e.store.GetSale(ctx, id)
	if err != nil {
		return Sale{}, nil, e.read("get_sale", err)
	}
	lines, err := e.store.SaleLines(ctx, id)
	if err != nil {
		return Sale{}, nil, e.read("get_sale_lines", err)
	}
	return sale, lines, nil
}

// StockMovements returns the audit trail of a product, oldest first.
func (e *Engine) StockMovements(ctx context.Context, id ProductID) ([]StockMovement, error) {
	if _, err := e.store.GetProduct(ctx, id); err != nil {
		return nil, e.read("get_product", err)
	}
	ms, err := e.store.StockMovements(ctx, id)
	return ms, e.read("list_movements", err)
}
