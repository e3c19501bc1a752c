package root

import "errors"

var (
	// ErrNotFound reports a path, trigger, or subscription that is not
	// currently registered. Callers treat it as a normal negative
	// result.
	ErrNotFound = errors.New("not found")

	// ErrInvariantViolation reports a detach that exceeded its matching
	// attach count. It indicates a bookkeeping bug upstream; the counter
	// is clamped at zero rather than going negative.
	ErrInvariantViolation = errors.New("liveness invariant violation")

	// ErrBackendStart reports that the notification backend could not
	// start watching a path. No root entity is left registered.
	ErrBackendStart = errors.New("backend start failure")

	// ErrTeardownPartial reports that the notification backend failed to
	// stop cleanly. The root is removed from the registry anyway.
	ErrTeardownPartial = errors.New("teardown partial failure")

	// ErrTooManyRoots reports that the registry root budget is spent.
	ErrTooManyRoots = errors.New("too many watched roots")
)
