// Package errors defines the error taxonomy shared by the matching engine
// and the balance ledger.
package errors

import "errors"

// Standard error functions
var (
	Is     = errors.Is
	As     = errors.As
	Join   = errors.Join
	New    = errors.New
	Unwrap = errors.Unwrap
)

// Caller-visible errors. Not-found errors indicate stale or racing state:
// callers should re-fetch and retry, or surface them as "already processed".
var (
	// ErrNotEnoughFunds is returned when an account's available balance
	// cannot cover a debit. No mutation has been performed.
	ErrNotEnoughFunds = errors.New("not enough funds")

	// ErrOperationNotFound is returned when a pending operation does not
	// exist, or is locked by another settlement attempt.
	ErrOperationNotFound = errors.New("operation not found")

	// ErrOrderNotFound is returned when an order is not present in the book
	// or in storage, including orders already consumed by a match.
	ErrOrderNotFound = errors.New("order not found")

	// ErrPriceNotFound is returned when no price level exists at an order's
	// price.
	ErrPriceNotFound = errors.New("price not found")

	// ErrMarketNotFound is returned when no market exists for a currency
	// pair.
	ErrMarketNotFound = errors.New("market not found")

	// ErrInvalidPartialAmount is returned when a partial completion amount
	// is not strictly smaller than the pending operation's remaining amount,
	// or when no completion reference was supplied.
	ErrInvalidPartialAmount = errors.New("invalid partial amount")

	// ErrInvalidOrder is returned for validation failures: same-currency
	// pairs, unknown currencies, or amounts that truncate to zero. The order
	// is rejected before any persistence or lock attempt.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrCurrencyNotFound is returned when a currency is not present in the
	// registry.
	ErrCurrencyNotFound = errors.New("currency not found")
)

// ErrInvariantViolation indicates a bug in the matching algorithm, not a
// user error: mismatched maker/taker amounts, same-side settlement, or a
// missing balance lock. The enclosing transaction is aborted and the error
// propagates to top-level logging; it must never be retried or swallowed.
var ErrInvariantViolation = errors.New("invariant violation")
