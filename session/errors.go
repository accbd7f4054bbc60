package session

import "errors"

// Sentinel errors returned by Store implementations and the Engine.
// Callers should compare with errors.Is, matching the domain/errors
// convention the rest of the pack's auth services use.
var (
	// ErrNotFound is not returned by any Store in this module: Get
	// reports a missing, stale (spec.md §3 invariant 5) or
	// integrity-failing (spec.md §4.B) session as (nil, nil). The
	// sentinel is kept for wrapping code where absence is itself the
	// failure (see Store).
	ErrNotFound = errors.New("session: not found")

	// ErrConflict is returned by Upsert when the caller's LockVersion-1
	// does not match the currently stored LockVersion (spec.md §4.B
	// step 2). The Engine retries this internally; it is never expected
	// to reach a caller outside the engine package.
	ErrConflict = errors.New("session: optimistic lock conflict")
)

// Error wraps a Store backend failure (network I/O, serialization) with
// enough context for callers to log or inspect without leaking the
// backend's own error type across the package boundary.
type Error struct {
	Op  string // the Store operation that failed, e.g. "get", "upsert"
	Err error
}

func (e *Error) Error() string {
	return "session: " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}
