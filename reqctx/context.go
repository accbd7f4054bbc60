// Package reqctx defines the Request Context Adapter (spec.md §4.F): a
// small value bag the Engine and Pipeline read and write, carried
// in/out of the host framework by whatever glue that framework needs
// (gin.Context, net/http's context.Context, a GraphQL resolver context,
// ...). Charon never constructs a Context for a live request itself —
// the host owns that — but every stage in this module operates on one.
package reqctx

import (
	"github.com/UpperCi/charon/session"
	"github.com/UpperCi/charon/token"
	"github.com/UpperCi/charon/transport"
)

// Tokens is the record the Engine emits on a successful login or
// refresh (spec.md §4.C "Tokens emitted").
type Tokens struct {
	AccessToken     string
	RefreshToken    string
	AccessTokenExp  int64
	RefreshTokenExp int64
}

// Context is the value bag spec.md §4.F names. A zero Context is
// ready to use.
type Context struct {
	// UserID and SessionID are populated once the Pipeline attaches a
	// resolved session (spec.md §4.D step 7), or by the Engine after a
	// successful login/refresh.
	UserID    string
	SessionID string

	// TokenTransport records which Signature Transport mode this
	// request's token arrived (or should be minted) under.
	TokenTransport transport.Mode

	// Session is the resolved session record, if any.
	Session *session.Session

	// Tokens is the pair minted by a successful Engine operation.
	Tokens *Tokens

	// BearerTokenPayload is the structural payload Verify returned for
	// the inbound bearer token, before the Pipeline's semantic checks.
	BearerTokenPayload *token.Payload

	// BearerToken is the raw reassembled token string the Pipeline
	// verified.
	BearerToken string

	// AuthError is the single human-readable auth error any Pipeline
	// stage may set (spec.md §4.D, §6). Non-nil implies Halted.
	AuthError error

	// Halted marks that a Pipeline stage has short-circuited; later
	// stages must not run.
	Halted bool

	// RespCookies are the cookies (signature or otherwise) the Engine
	// wants the host's HTTP layer to set on the outgoing response,
	// keyed by cookie name.
	RespCookies map[string]transport.SetCookie
}

// New returns a ready-to-use, empty Context.
func New() *Context {
	return &Context{RespCookies: map[string]transport.SetCookie{}}
}

// Halt marks the context halted with the given auth error. Pipeline
// stages call this to short-circuit (spec.md §4.D).
func (c *Context) Halt(err error) {
	c.AuthError = err
	c.Halted = true
}

// SetCookie records a cookie for the host framework to emit.
func (c *Context) SetCookie(name string, sc transport.SetCookie) {
	if c.RespCookies == nil {
		c.RespCookies = map[string]transport.SetCookie{}
	}
	c.RespCookies[name] = sc
}
