package domain

import "errors"

var (
	// ErrInvalidTransition is returned when the target status is not reachable
	// from the job's current status.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrJobNotFound is returned when a job cannot be found in the store.
	ErrJobNotFound = errors.New("job not found")

	// ErrBidNotFound is returned when a bid id does not exist on the job.
	ErrBidNotFound = errors.New("bid not found")

	// ErrBiddingClosed is returned when a bid is submitted or selected after
	// the job's bidding window closed.
	ErrBiddingClosed = errors.New("bidding closed")

	// ErrAlreadySelected is returned to the losers of a concurrent selection
	// race; exactly one caller ever wins.
	ErrAlreadySelected = errors.New("a bid has already been selected")

	// ErrCompletionAmountInvalid is returned when the reported amount is
	// zero, negative or non-finite.
	ErrCompletionAmountInvalid = errors.New("completion amount invalid")

	// ErrStaleWrite is returned when the status version advanced between the
	// caller's read and write. Callers retry once with a fresh read.
	ErrStaleWrite = errors.New("stale write: job version advanced")

	// ErrTokenInvalid is returned when a public token does not resolve to a
	// job, was revoked, or carries the wrong scope.
	ErrTokenInvalid = errors.New("token invalid or expired")
)
