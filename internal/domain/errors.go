package domain

import "errors"

var (
	// ErrInvalidInput is returned for malformed or out-of-range arguments to
	// pure calculations. Always the caller's fault; never retried internally.
	ErrInvalidInput = errors.New("invalid input")

	// Capacity / resource exhaustion. Callers should back off and resubmit.
	ErrQueueFull      = errors.New("queue full")
	ErrBudgetExceeded = errors.New("compute budget exceeded")
	ErrCongested      = errors.New("queue congested")
	ErrRateLimited    = errors.New("rate limited")

	// Concurrency-loss signals. Expected under contention: someone else is
	// already handling the same entry or position.
	ErrDuplicateEntry     = errors.New("duplicate entry")
	ErrAlreadyLiquidating = errors.New("position already being liquidated")
	ErrAlreadyProcessing  = errors.New("entry already processing")
	ErrLockHeld           = errors.New("lock already held")

	// Security rejection, surfaced distinctly so legitimate users can adjust
	// slippage or size rather than being told "try again".
	ErrSandwichDetected = errors.New("sandwich pattern detected")

	// Commit-reveal protocol violations.
	ErrRevealTooEarly    = errors.New("reveal too early")
	ErrHashMismatch      = errors.New("commitment hash mismatch")
	ErrCommitmentExpired = errors.New("commitment expired")
	ErrCommitmentPending = errors.New("unresolved commitment exists")
	ErrUnknownCommitment = errors.New("no matching commitment")

	// Terminal conditions.
	ErrExpired            = errors.New("deadline passed before dispatch")
	ErrPositionHealthy    = errors.New("position healthy")
	ErrLiquidationsHalted = errors.New("liquidations halted")

	ErrNotFound = errors.New("not found")
)
