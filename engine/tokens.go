package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/UpperCi/charon/reqctx"
	"github.com/UpperCi/charon/session"
	"github.com/UpperCi/charon/token"
)

// mintFromCurrentGeneration signs a fresh access/refresh token pair off
// a session's current generation (s.RefreshTokenID, s.TokensFreshFrom)
// without touching lock_version or writing to the store. Every success
// path in refresh — the window slide, the grace-window reissue, and the
// conflict-retry — ends up here, which is what makes the spec's
// required observable equivalence between "normal refresh" and
// "refresh that lost a race" literal rather than just tested-for
// (spec.md §9's open question, SPEC_FULL.md Open Questions #2).
func (e *Engine) mintFromCurrentGeneration(ctx context.Context, s *session.Session) (*reqctx.Tokens, error) {
	now := e.now()

	accessExp := now.Add(e.cfg.AccessTokenTTL)
	if accessExp.After(s.RefreshExpiresAt) {
		accessExp = s.RefreshExpiresAt
	}

	refreshToken, err := e.tokens.Sign(ctx, token.SignInput{
		Issuer:      e.cfg.Issuer,
		Subject:     s.UserID,
		SessionID:   s.ID,
		SessionType: s.Type,
		TokenID:     s.RefreshTokenID,
		Type:        token.KindRefresh,
		IssuedAt:    s.TokensFreshFrom.Unix(),
		NotBefore:   s.TokensFreshFrom.Unix(),
		ExpiresAt:   s.RefreshExpiresAt.Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("engine: mint refresh token: %w", err)
	}

	accessToken, err := e.tokens.Sign(ctx, token.SignInput{
		Issuer:      e.cfg.Issuer,
		Subject:     s.UserID,
		SessionID:   s.ID,
		SessionType: s.Type,
		TokenID:     e.newID(),
		Type:        token.KindAccess,
		IssuedAt:    now.Unix(),
		NotBefore:   now.Unix(),
		ExpiresAt:   accessExp.Unix(),
		Extra:       s.ExtraPayload,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: mint access token: %w", err)
	}

	return &reqctx.Tokens{
		AccessToken:     accessToken,
		RefreshToken:    refreshToken,
		AccessTokenExp:  accessExp.Unix(),
		RefreshTokenExp: s.RefreshExpiresAt.Unix(),
	}, nil
}

// errIsConflict reports whether err (possibly wrapped by a Store's own
// Error type) is session.ErrConflict.
func errIsConflict(err error) bool {
	return errors.Is(err, session.ErrConflict)
}
