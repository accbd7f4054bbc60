// Package autherr names the stable, user-visible auth-error strings
// spec.md §6 enumerates. Both the Pipeline and the Engine halt a
// reqctx.Context with one of these, so the vocabulary lives in one leaf
// package rather than being duplicated or reconstructed by string
// concatenation at each call site.
package autherr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotYetValid: nbf is present but in the future.
	ErrNotYetValid = errors.New("bearer token not yet valid")

	// ErrExpired: exp is present but earlier than now.
	ErrExpired = errors.New("bearer token expired")

	// ErrTypeInvalid: the type claim is present but does not match the
	// pipeline's expected kind.
	ErrTypeInvalid = errors.New("bearer token claim type invalid")

	// ErrIdentityClaimsMissing: sub or sid is absent. An absent styp is
	// not an error; the Pipeline defaults it to session.TypeFull.
	ErrIdentityClaimsMissing = errors.New("bearer token claim sub, sid or styp not found")

	// ErrSessionNotFound: the Store has no live session matching the
	// token's sid/sub/styp.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTokenStale: a refresh token's iat predates the session's grace
	// window (spec.md §4.C rule 4).
	ErrTokenStale = errors.New("token stale")
)

// ClaimNotFoundError reports a single required claim missing from a
// token payload, rendering spec.md §6's "bearer token claim X not
// found" family without one sentinel per claim name.
type ClaimNotFoundError struct {
	Claim string
}

func (e *ClaimNotFoundError) Error() string {
	return fmt.Sprintf("bearer token claim %s not found", e.Claim)
}

// ClaimNotFound builds the error for a missing required claim.
func ClaimNotFound(claim string) error {
	return &ClaimNotFoundError{Claim: claim}
}

// IsClaimNotFound reports whether err is a ClaimNotFoundError for the
// given claim name, letting tests and callers check without string
// comparison.
func IsClaimNotFound(err error, claim string) bool {
	var cnf *ClaimNotFoundError
	if !errors.As(err, &cnf) {
		return false
	}
	return cnf.Claim == claim
}
