package engine

import (
	"time"

	"github.com/UpperCi/charon/reqctx"
	"github.com/UpperCi/charon/transport"
)

// attachCookies sets the signature cookies for cookie-mode sessions
// (spec.md §4.E). The Tokens record on rc always carries the full
// three-segment token regardless of transport mode — the host's HTTP
// adapter decides, via transport.Split, what actually goes in the
// Authorization header for cookie mode. This just handles the cookie
// half of that contract.
func (e *Engine) attachCookies(rc *reqctx.Context, toks *reqctx.Tokens, mode transport.Mode) {
	if mode != transport.ModeCookie {
		return
	}

	if _, sig, ok := transport.Split(toks.AccessToken); ok {
		rc.SetCookie(e.cookieName(e.cfg.CookieNames.Access, transport.DefaultCookieNames.Access), transport.SetCookie{
			Name:   e.cookieName(e.cfg.CookieNames.Access, transport.DefaultCookieNames.Access),
			Value:  sig,
			Opts:   e.cookieOpts(e.cfg.AccessCookieOpts),
			MaxAge: int(time.Until(time.Unix(toks.AccessTokenExp, 0)).Seconds()),
		})
	}
	if _, sig, ok := transport.Split(toks.RefreshToken); ok {
		rc.SetCookie(e.cookieName(e.cfg.CookieNames.Refresh, transport.DefaultCookieNames.Refresh), transport.SetCookie{
			Name:   e.cookieName(e.cfg.CookieNames.Refresh, transport.DefaultCookieNames.Refresh),
			Value:  sig,
			Opts:   e.cookieOpts(e.cfg.RefreshCookieOpts),
			MaxAge: int(time.Until(time.Unix(toks.RefreshTokenExp, 0)).Seconds()),
		})
	}
}

// clearCookies marks both signature cookies deleted, for logout.
func (e *Engine) clearCookies(rc *reqctx.Context) {
	accessName := e.cookieName(e.cfg.CookieNames.Access, transport.DefaultCookieNames.Access)
	refreshName := e.cookieName(e.cfg.CookieNames.Refresh, transport.DefaultCookieNames.Refresh)
	rc.SetCookie(accessName, transport.SetCookie{Name: accessName, Deleted: true, MaxAge: -1})
	rc.SetCookie(refreshName, transport.SetCookie{Name: refreshName, Deleted: true, MaxAge: -1})
}

func (e *Engine) cookieName(configured, fallback string) string {
	if configured == "" {
		return fallback
	}
	return configured
}

func (e *Engine) cookieOpts(configured transport.CookieOpts) transport.CookieOpts {
	var zero transport.CookieOpts
	if configured == zero {
		return transport.DefaultCookieOpts
	}
	return configured
}
