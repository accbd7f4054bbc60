// Package session defines the persistent authentication record the rest
// of Charon operates on, and the Store contract that persists it.
package session

import "time"

// TypeFull is the default session namespace. Hosts may define additional
// types (e.g. "stepped_up") to run parallel session lifetimes for the
// same user.
const TypeFull = "full"

// Infinite marks a session (or token) that never expires. It is stored
// as the zero time so callers cannot accidentally compare against it
// with time.Time arithmetic.
var Infinite = time.Time{}

// IsInfinite reports whether t represents the Infinite sentinel.
func IsInfinite(t time.Time) bool {
	return t.IsZero()
}

// Session is the server-side record of a user's authenticated presence,
// keyed by (UserID, Type, ID).
type Session struct {
	ID     string
	UserID string
	Type   string

	CreatedAt   time.Time
	RefreshedAt time.Time

	// ExpiresAt is the absolute session end. Infinite if the session
	// never expires outright (it can still lapse via RefreshExpiresAt).
	ExpiresAt time.Time

	// RefreshExpiresAt is the end of the current refresh window. It is
	// always min(ExpiresAt, RefreshedAt+refreshTokenTTL).
	RefreshExpiresAt time.Time

	// RefreshTokenID is the jti of the current refresh-token generation.
	RefreshTokenID string

	// TokensFreshFrom is when the current generation was minted.
	TokensFreshFrom time.Time

	// PrevTokensFreshFrom is when the previous generation was minted.
	// The zero value means there is no prior generation.
	PrevTokensFreshFrom time.Time

	// LockVersion is the optimistic-concurrency counter. It strictly
	// increases on every successful upsert.
	LockVersion uint64

	// Transport records which Signature Transport (§4.E) this session
	// was created under, so refreshes keep using the same mode.
	Transport string

	// ExtraPayload is opaque, user-defined claims propagated into every
	// token minted for this session.
	ExtraPayload map[string]interface{}
}

// HasPrevGeneration reports whether a previous refresh-token generation
// is still live (i.e. the grace window is open).
func (s *Session) HasPrevGeneration() bool {
	return !s.PrevTokensFreshFrom.IsZero()
}

// IsRefreshExpired reports whether the session's refresh window has
// lapsed as of now. A logically-deleted session (invariant 5 in
// spec.md §3) must never be returned by a Store reader.
func (s *Session) IsRefreshExpired(now time.Time) bool {
	return s.RefreshExpiresAt.Before(now)
}

// ComputeRefreshExpiresAt applies spec.md §3's invariant:
// refresh_expires_at = min(expires_at, refreshed_at + refreshTokenTTL).
func ComputeRefreshExpiresAt(expiresAt time.Time, refreshedAt time.Time, refreshTokenTTL time.Duration) time.Time {
	candidate := refreshedAt.Add(refreshTokenTTL)
	if IsInfinite(expiresAt) {
		return candidate
	}
	if candidate.After(expiresAt) {
		return expiresAt
	}
	return candidate
}
