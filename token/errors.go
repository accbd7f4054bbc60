package token

import "errors"

// Sentinel errors returned by Verify. Distinct kinds let callers in the
// Pipeline (§4.D) decide how to report failure without string-matching,
// matching the teacher's domain/errors sentinel convention.
var (
	// ErrMalformed is returned when the token is not a well-formed
	// three-segment header.payload.signature string, or either segment
	// fails to base64url-decode / JSON-decode.
	ErrMalformed = errors.New("token: malformed")

	// ErrUnknownKey is returned when the KeyGetter cannot resolve the
	// key ID the token's header names (key rotation, revoked key, etc).
	ErrUnknownKey = errors.New("token: unknown signing key")

	// ErrBadSignature is returned when the signature does not verify
	// against the resolved key.
	ErrBadSignature = errors.New("token: bad signature")
)
