package apperrors

import "errors"

var (
	// ErrNotFound is returned when an operation references a record that does
	// not exist and existence was required.
	ErrNotFound = errors.New("not found")

	// ErrStaleUpdate marks a system sync whose timestamp is at or before the
	// stored last sync for the resource. It is absorbed as a no-op by callers
	// and never propagates as a failure.
	ErrStaleUpdate = errors.New("stale update")

	// ErrUnknownTenant is returned when an account id is not present in the
	// account directory.
	ErrUnknownTenant = errors.New("unknown tenant account")

	// ErrPartitionUnavailable is returned when the storage partition for an
	// account cannot be reached. Transient; callers may retry with backoff.
	ErrPartitionUnavailable = errors.New("tenant partition unavailable")

	// ErrInvalidAmount is returned when a monetary value falls outside the
	// 12,2 fixed-point domain. Such values are rejected, never truncated.
	ErrInvalidAmount = errors.New("invalid monetary amount")

	// ErrInvalidInput is returned when a request fails structural validation
	// before it reaches storage.
	ErrInvalidInput = errors.New("invalid input")
)
