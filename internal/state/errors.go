package state

import "errors"

// Error taxonomy for the deterministic core. Every failure aborts the whole
// triggering command and leaves all prior state unchanged; nothing is
// logged-and-suppressed.
var (
	// ErrStalePrice blocks all price-dependent reads and writes.
	ErrStalePrice = errors.New("state: price is stale")

	// ErrUnauthorized is returned when the caller lacks the required
	// capability (owner, oracle, fee reporter, issuer, distributor).
	ErrUnauthorized = errors.New("state: caller not authorized")

	// ErrInsufficientCollateral is returned when an issuance or transfer
	// would leave issued debt under-collateralized.
	ErrInsufficientCollateral = errors.New("state: insufficient collateral")

	// ErrExceedsCap is returned when an operation would push an aggregate
	// past a configured cap (market size, issuance ratio bound, ...).
	ErrExceedsCap = errors.New("state: exceeds configured cap")

	// ErrInvalidState is returned when an operation is invalid for the
	// current lifecycle state (no pending order, already-withdrawn fees,
	// claiming the active reward period, ...).
	ErrInvalidState = errors.New("state: invalid for current state")
)
