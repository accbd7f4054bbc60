// Package transport implements the Signature Transport (spec.md §4.E):
// how a signed token's pieces travel between client and server, either
// wholly in the Authorization header ("bearer" mode) or split across
// the header and an HTTP-only cookie ("cookie" mode).
package transport

import (
	"errors"
	"strings"
)

// Mode selects how a session's tokens are carried over the wire.
// Recorded on the Session at creation time (spec.md §4.E) so every
// later refresh keeps using the same mode.
type Mode string

const (
	// ModeBearer sends the full three-segment token in the
	// Authorization header. No cookie is used.
	ModeBearer Mode = "bearer"

	// ModeCookie sends header.payload in the Authorization header and
	// the signature segment in an HTTP-only cookie.
	ModeCookie Mode = "cookie"
)

// ErrMissingSignatureCookie is returned by Reassemble when ModeCookie
// is expected but the matching cookie was not supplied.
var ErrMissingSignatureCookie = errors.New("transport: missing signature cookie")

// ErrMissingAuthorization is returned by Reassemble when no bearer
// value was supplied at all.
var ErrMissingAuthorization = errors.New("transport: missing authorization value")

// CookieNames names the two signature cookies; both have sensible
// defaults per spec.md §6.
type CookieNames struct {
	Access  string
	Refresh string
}

// DefaultCookieNames matches spec.md §4.E's stated defaults.
var DefaultCookieNames = CookieNames{
	Access:  "_access_token_signature",
	Refresh: "_refresh_token_signature",
}

// Split divides a freshly-signed token into the piece that goes in the
// Authorization header and the piece that goes in a cookie, for
// ModeCookie sessions. Since the Token Factory signs with
// github.com/golang-jwt/jwt/v5, whose compact serialization is exactly
// header.payload.signature, Split only needs the last "." — no JOSE
// reframing required.
func Split(token string) (headerPayload, signature string, ok bool) {
	i := strings.LastIndexByte(token, '.')
	if i < 0 || i == len(token)-1 {
		return "", "", false
	}
	return token[:i], token[i+1:], true
}

// Reassemble rebuilds a full token from what the chosen Mode delivers.
//
// authValue is whatever the pipeline extracted from the Authorization
// header (the full token for ModeBearer, or header.payload for
// ModeCookie). cookieValue is the signature cookie's value, ignored
// for ModeBearer.
func Reassemble(mode Mode, authValue string, cookieValue string, cookiePresent bool) (string, error) {
	if authValue == "" {
		return "", ErrMissingAuthorization
	}
	switch mode {
	case ModeBearer:
		return authValue, nil
	case ModeCookie:
		if !cookiePresent {
			return "", ErrMissingSignatureCookie
		}
		return authValue + "." + cookieValue, nil
	default:
		return "", ErrMissingAuthorization
	}
}
