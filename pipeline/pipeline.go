// Package pipeline implements the Token Pipeline (spec.md §4.D): given
// an inbound request's raw Authorization/cookie values, reassemble the
// bearer token, verify it, validate its claims, load the session it
// names, and attach everything the Engine and host handlers need onto
// a reqctx.Context. Every stage may halt the context with an auth error
// instead of returning a Go error — the pipeline never throws across
// its public boundary (spec.md §4.D, §7).
package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/UpperCi/charon/autherr"
	"github.com/UpperCi/charon/reqctx"
	"github.com/UpperCi/charon/session"
	"github.com/UpperCi/charon/token"
	"github.com/UpperCi/charon/transport"
)

// Pipeline runs the ordered validation stages of spec.md §4.D against a
// Token Factory and a Session Store.
type Pipeline struct {
	tokens *token.Factory
	store  session.Store
	logger *zap.Logger
}

// New builds a Pipeline. logger may be nil (falls back to a no-op
// logger, as engine.New does).
func New(tokens *token.Factory, store session.Store, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{tokens: tokens, store: store, logger: logger}
}

// Input is what a host hands the pipeline for one request: the raw
// values its HTTP (or GraphQL, ...) layer extracted, plus which kind of
// token this endpoint expects.
type Input struct {
	Mode transport.Mode

	// AuthValue is the value read from the Authorization header: the
	// full token for ModeBearer, or header.payload for ModeCookie.
	AuthValue string

	// CookieValue/CookiePresent carry the signature cookie for
	// ModeCookie; ignored for ModeBearer.
	CookieValue   string
	CookiePresent bool

	// ExpectedKind is "refresh" or "access" — step 4 rejects anything
	// else (spec.md §4.D step 4).
	ExpectedKind token.Kind
}

// Run executes every stage in order against rc, halting rc on the
// first failure (spec.md §4.D). It never returns a Go error for an
// auth failure; rc.AuthError/rc.Halted is the only signal for that. A
// non-nil return value means the Store's Get failed, an infrastructure
// failure the host should treat as a 5xx, not a 401. Factory
// verification failures of any kind halt rc instead.
func (p *Pipeline) Run(ctx context.Context, rc *reqctx.Context, in Input) error {
	rc.TokenTransport = in.Mode

	// 1. Reassemble.
	tok, err := transport.Reassemble(in.Mode, in.AuthValue, in.CookieValue, in.CookiePresent)
	if err != nil {
		rc.Halt(err)
		return nil
	}
	rc.BearerToken = tok

	// 2. Verify signature + structural form.
	payload, err := p.tokens.Verify(ctx, tok)
	if err != nil {
		// Treat as if the token doesn't exist (spec.md §7 row 2): a
		// single generic auth error, not the Factory's internal kind.
		rc.Halt(autherr.ErrSessionNotFound)
		p.logger.Debug("bearer token failed verification", zap.Error(err))
		return nil
	}
	rc.BearerTokenPayload = payload

	// 3. Validate temporal claims.
	if err := validateTemporalClaims(payload); err != nil {
		rc.Halt(err)
		return nil
	}

	// 4. Validate kind.
	if err := validateKind(payload, in.ExpectedKind); err != nil {
		rc.Halt(err)
		return nil
	}

	// 5. Validate identity claims.
	if payload.Subject == "" || payload.SessionID == "" {
		rc.Halt(autherr.ErrIdentityClaimsMissing)
		return nil
	}
	sessionType := payload.SessionType
	if sessionType == "" {
		sessionType = session.TypeFull
	}

	// 6. Load session.
	s, err := p.store.Get(ctx, payload.SessionID, payload.Subject, sessionType)
	if err != nil {
		return err
	}
	if s == nil {
		rc.Halt(autherr.ErrSessionNotFound)
		return nil
	}

	// 7. Attach.
	rc.UserID = payload.Subject
	rc.SessionID = s.ID
	rc.Session = s

	return nil
}
