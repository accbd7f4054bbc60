package session

import "context"

// Store is the persistence contract for sessions (spec.md §4.B). Every
// read returns (nil, nil) — not ErrNotFound — when no matching live
// session exists; ErrNotFound is reserved for operations where absence
// is itself the failure (none in this interface today, but kept as a
// sentinel other Store methods or wrapping code can reuse).
//
// Implementations MUST make Upsert's conflict check, write, and TTL
// raise a single atomic server-side operation (spec.md §4.B, §9).
type Store interface {
	// Get returns the live session for (id, userID, type), or nil if
	// none exists or it has logically expired (spec.md §3 invariant 5).
	Get(ctx context.Context, sessionID, userID, typ string) (*Session, error)

	// Upsert creates or updates a session under optimistic-lock
	// protection. It returns ErrConflict if s.LockVersion-1 does not
	// match the currently-stored LockVersion. If s.RefreshExpiresAt is
	// already in the past, Upsert is a no-op that returns nil (spec.md
	// §4.B step 3).
	Upsert(ctx context.Context, s *Session) error

	// Delete removes a session from all backing collections.
	Delete(ctx context.Context, sessionID, userID, typ string) error

	// GetAll returns every live session for (userID, typ).
	GetAll(ctx context.Context, userID, typ string) ([]*Session, error)

	// DeleteAll removes every session for (userID, typ).
	DeleteAll(ctx context.Context, userID, typ string) error
}
