package domain

import "errors"

// Sentinel errors. Per-source failures stay inside the orchestrator; only
// validation, not-found, and total failure ever reach a caller.
var (
	// ErrValidation indicates missing or malformed request fields.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates a requested source does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSourceUnavailable indicates a single source could not be queried.
	// Recorded in stats, never surfaced as a request failure on its own.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrSourceTimeout indicates a single source missed its deadline.
	ErrSourceTimeout = errors.New("source timed out")

	// ErrAggregateFailure indicates every resolved source, memory included,
	// failed to produce results.
	ErrAggregateFailure = errors.New("all sources failed")

	// ErrFusionInconsistency indicates a broken invariant inside the fusion
	// pipeline (e.g. a negative fused score). Programmer error.
	ErrFusionInconsistency = errors.New("fusion inconsistency")
)
