/*
ledger.go - Append-only customer credit ledger

PURPOSE:
  Every change to a customer's owed balance is recorded as a LedgerEntry.
  The customer row also stores the balance for fast lookup; the two are
  written in the same atomic unit so they cannot disagree.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. RUNNING BALANCE: entry.RunningBalance is the balance right after the
     entry; debit adds Amount, credit subtracts it.
  3. STORED BALANCE: Customer.CreditBalance equals the RunningBalance of
     the customer's most recent entry, or 0 when there is none.

WRITERS:
  - RecordCreditSale (debit)
  - RecordPayment    (credit)
  - Refund/CancelSale of a credit sale (credit)

CORRECTIONS:
  A mistaken entry is never edited. A compensating entry of the opposite
  type is appended instead.

ORDERING:
  Statements are newest first: CreatedAt descending, ties broken by ID
  descending, giving a stable total order even when two entries share a
  timestamp.
*/
package pos

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// PAYMENTS
// =============================================================================

// PaymentInput is money received against a customer's balance.
type PaymentInput struct {
	CustomerID  CustomerID
	Amount      decimal.Decimal
	Description string
	UserID      UserID
}

// RecordPayment appends a credit entry and lowers the customer's balance.
// The balance may go negative (store credit) unless Policy.RejectOverpayment
// is set.
func (e *Engine) RecordPayment(ctx context.Context, in PaymentInput) (LedgerEntry, error) {
	if !in.Amount.IsPositive() {
		return LedgerEntry{}, ErrInvalidAmount
	}
	amount := Round(in.Amount)
	if !amount.IsPositive() {
		return LedgerEntry{}, ErrInvalidAmount
	}

	var entry LedgerEntry
	err := e.atomic(ctx, "record_payment", func(s Store) error {
		customer, err := s.GetCustomer(ctx, in.CustomerID)
		if err != nil {
			return err
		}
		if e.policy.RejectOverpayment && amount.GreaterThan(customer.CreditBalance) {
			return ErrOverpayment
		}

		desc := strings.TrimSpace(in.Description)
		if desc == "" {
			desc = "Payment received"
		}
		entry, err = appendLedgerEntry(ctx, s, customer, LedgerCredit, amount, LedgerEntry{
			Description: desc,
			CreatedBy:   in.UserID,
			CreatedAt:   e.clock(),
		})
		return err
	})
	if err != nil {
		return LedgerEntry{}, err
	}

	e.logger.Info("payment recorded",
		zap.Int64("customer_id", int64(in.CustomerID)),
		zap.Int64("entry_id", int64(entry.ID)),
		zap.String("amount", amount.StringFixed(MoneyPlaces)),
		zap.String("running_balance", entry.RunningBalance.StringFixed(MoneyPlaces)),
	)
	return entry, nil
}

// appendLedgerEntry writes one entry and the matching customer balance.
// template supplies SaleID, Description, CreatedBy and CreatedAt.
// It must run inside an atomic unit.
func appendLedgerEntry(ctx context.Context, s Store, c Customer, typ LedgerEntryType, amount decimal.Decimal, template LedgerEntry) (LedgerEntry, error) {
	balance := c.CreditBalance
	switch typ {
	case LedgerDebit:
		balance = balance.Add(amount)
	case LedgerCredit:
		balance = balance.Sub(amount)
	default:
		return LedgerEntry{}, ErrInvalidInput
	}

	entry := template
	entry.CustomerID = c.ID
	entry.Type = typ
	entry.Amount = amount
	entry.RunningBalance = balance

	var err error
	if entry.ID, err = s.InsertLedgerEntry(ctx, entry); err != nil {
		return LedgerEntry{}, err
	}
	if err := s.UpdateCustomerBalance(ctx, c.ID, balance, entry.CreatedAt); err != nil {
		return LedgerEntry{}, err
	}
	return entry, nil
}

// =============================================================================
// READ-ONLY ACCESSORS
// =============================================================================

// Statement returns every ledger entry for the customer, newest first.
func (e *Engine) Statement(ctx context.Context, id CustomerID) ([]LedgerEntry, error) {
	_, entries, err := e.CustomerStatement(ctx, id)
	return entries, err
}

// CustomerStatement returns the customer together with their statement,
// both read from the same snapshot, so the customer's balance always
// equals the newest entry's running balance.
func (e *Engine) CustomerStatement(ctx context.Context, id CustomerID) (Customer, []LedgerEntry, error) {
	var (
		c       Customer
		entries []LedgerEntry
	)
	err := e.snapshot(ctx, "customer_statement", func(s Store) error {
		var err error
		if c, err = s.GetCustomer(ctx, id); err != nil {
			return err
		}
		entries, err = s.LedgerEntries(ctx, id)
		return err
	})
	if err != nil {
		return Customer{}, nil, err
	}
	sortStatement(entries)
	return c, entries, nil
}

// CurrentBalance returns the customer's stored balance.
func (e *Engine) CurrentBalance(ctx context.Context, id CustomerID) (decimal.Decimal, error) {
	c, err := e.store.GetCustomer(ctx, id)
	if err != nil {
		return decimal.Zero, e.read("get_customer", err)
	}
	return c.CreditBalance, nil
}

// BalanceCheck compares a customer's stored balance with the ledger.
type BalanceCheck struct {
	CustomerID    CustomerID
	StoredBalance decimal.Decimal
	LedgerBalance decimal.Decimal
	Entries       int
}

// Consistent reports whether the stored balance matches the ledger.
func (b BalanceCheck) Consistent() bool {
	return b.StoredBalance.Equal(b.LedgerBalance)
}

// CheckBalance verifies the stored balance against the most recent
// ledger entry. A mismatch means a write bypassed the engine.
func (e *Engine) CheckBalance(ctx context.Context, id CustomerID) (BalanceCheck, error) {
	c, entries, err := e.CustomerStatement(ctx, id)
	if err != nil {
		return BalanceCheck{}, err
	}

	check := BalanceCheck{
		CustomerID:    id,
		StoredBalance: c.CreditBalance,
		LedgerBalance: decimal.Zero,
		Entries:       len(entries),
	}
	if len(entries) > 0 {
		check.LedgerBalance = entries[0].RunningBalance
	}
	if !check.Consistent() {
		e.logger.Error("customer balance out of sync with ledger",
			zap.Int64("customer_id", int64(id)),
			zap.String("stored", c.CreditBalance.StringFixed(MoneyPlaces)),
			zap.String("ledger", check.LedgerBalance.StringFixed(MoneyPlaces)),
		)
	}
	return check, nil
}

// sortStatement orders entries newest first, ties broken by ID.
func sortStatement(entries []LedgerEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}
