/*
errors.go - Centralized error types for the engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every operation returns either a result or one of these errors; nothing
  is swallowed.

ERROR CATEGORIES:
  1. NotFound          - product, customer or sale missing
  2. InvalidInput      - bad quantities, amounts, discounts, states
  3. InsufficientStock - a sale or adjustment would drive stock below zero
  4. StorageFailure    - the atomic unit could not be committed

  Specific errors wrap one of the four category sentinels, so callers can
  match either level:

    errors.Is(err, pos.ErrProductNotFound) // exact
    errors.Is(err, pos.ErrNotFound)        // category

ROLLBACK GUARANTEE:
  Any error returned by a mutating operation means the whole atomic unit
  was rolled back. StorageFailure errors are safe to retry.

SEE ALSO:
  - engine.go: Wraps store failures into StorageError
  - api/handlers.go: Maps categories to HTTP status codes
*/
package pos

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrStorageFailure    = errors.New("storage failure")

	// ErrCreditLimitExceeded is only returned when Policy.EnforceCreditLimit is set.
	ErrCreditLimitExceeded = errors.New("credit limit exceeded")
)

var (
	ErrProductNotFound  = fmt.Errorf("product %w", ErrNotFound)
	ErrCustomerNotFound = fmt.Errorf("customer %w", ErrNotFound)
	ErrSaleNotFound     = fmt.Errorf("sale %w", ErrNotFound)

	ErrInvalidQuantity      = fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	ErrInvalidCost          = fmt.Errorf("%w: unit cost must not be negative", ErrInvalidInput)
	ErrInvalidAmount        = fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	ErrInvalidPrice         = fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	ErrEmptySale            = fmt.Errorf("%w: sale has no lines", ErrInvalidInput)
	ErrInvalidDiscount      = fmt.Errorf("%w: discount is negative or exceeds the amount", ErrInvalidInput)
	ErrInvalidPaymentMethod = fmt.Errorf("%w: unsupported payment method", ErrInvalidInput)
	ErrInvalidMovement      = fmt.Errorf("%w: unsupported stock movement", ErrInvalidInput)
	ErrMissingField         = fmt.Errorf("%w: required field missing", ErrInvalidInput)
	ErrProductInactive      = fmt.Errorf("%w: product is inactive", ErrInvalidInput)
	ErrCustomerInactive     = fmt.Errorf("%w: customer is inactive", ErrInvalidInput)
	ErrSaleNotReversible    = fmt.Errorf("%w: only completed sales can be reversed", ErrInvalidInput)
	ErrInvalidRange         = fmt.Errorf("%w: range end is before its start", ErrInvalidInput)
	ErrDuplicateSKU         = fmt.Errorf("%w: sku already exists", ErrInvalidInput)

	// Policy rejections (see policy.go).
	ErrUnderpayment = fmt.Errorf("%w: amount paid is less than the total", ErrInvalidInput)
	ErrOverpayment  = fmt.Errorf("%w: payment exceeds the outstanding balance", ErrInvalidInput)
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientStockError provides details about a stock shortage.
// Line is the zero-based index of the offending sale line, or -1 for
// adjustments.
type InsufficientStockError struct {
	ProductID ProductID
	Line      int
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	if e.Line >= 0 {
		return fmt.Sprintf("insufficient stock for product %d on line %d: available %d, requested %d",
			e.ProductID, e.Line+1, e.Available, e.Requested)
	}
	return fmt.Sprintf("insufficient stock for product %d: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// CreditLimitError is returned when a credit sale would push the
// customer's balance above the credit limit.
type CreditLimitError struct {
	CustomerID CustomerID
	Limit      decimal.Decimal
	Balance    decimal.Decimal
	Requested  decimal.Decimal
}

func (e *CreditLimitError) Error() string {
	return fmt.Sprintf("credit limit exceeded for customer %d: limit %s, balance %s, requested %s",
		e.CustomerID, e.Limit, e.Balance, e.Requested)
}

func (e *CreditLimitError) Unwrap() error {
	return ErrCreditLimitExceeded
}

// StorageError wraps a failure raised by the Store. It matches
// ErrStorageFailure with errors.Is and unwraps to the driver error.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorageFailure }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsClientError returns true if the error is due to invalid caller input
// or a business rule rejection.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrCreditLimitExceeded)
}

// IsRetryable returns true if repeating the whole operation may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageFailure)
}

// isDomainError reports whether err already belongs to one of the
// engine's categories.
func isDomainError(err error) bool {
	return IsNotFound(err) || IsClientError(err) || errors.Is(err, ErrStorageFailure)
}
