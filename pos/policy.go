package pos

// Policy holds the business-rule switches whose intent is undecided.
// The zero value reproduces the historical behaviour: nothing is enforced.
type Policy struct {
	// EnforceCreditLimit rejects credit sales that would push a customer's
	// balance above CreditLimit.
	EnforceCreditLimit bool

	// RejectOverpayment rejects payments larger than the outstanding
	// balance, so balances never go negative through RecordPayment.
	RejectOverpayment bool

	// RequireFullPayment rejects cash and card sales where the amount paid
	// is less than the sale total.
	RequireFullPayment bool
}
