package token

// Kind distinguishes refresh tokens from access tokens (spec.md §3,
// the "type" claim).
type Kind string

const (
	KindRefresh Kind = "refresh"
	KindAccess  Kind = "access"
)

// SignInput carries the claims spec.md §4.A requires on every minted
// token: iat, nbf, exp, iss, sub, sid, type, styp, jti, plus any extra
// payload to merge in (access tokens only).
type SignInput struct {
	Issuer      string
	Subject     string // user_id; spec.md §3 allows string or integer, always carried as a string claim
	SessionID   string
	SessionType string
	TokenID     string // jti — the refresh_token_id generation identifier
	Type        Kind
	IssuedAt    int64
	NotBefore   int64
	ExpiresAt   int64
	Extra       map[string]interface{}
}

// Payload is the structural, semantics-free view Verify returns. Each
// numeric claim (iat, nbf, exp) carries a Has* flag so the Pipeline
// (§4.D) can distinguish "claim absent" from "claim present but zero"
// the way spec.md's claim-rejection table (§8 scenario 3) requires.
// String claims are plain strings: an absent string claim and an empty
// one both read as "".
//
// Verify does not fail when claims are missing or of an unexpected
// shape — only the signature and the three-segment structural form are
// checked here (spec.md §4.A). Claim semantics are the Pipeline's job.
type Payload struct {
	Issuer      string
	Subject     string
	SessionID   string
	SessionType string
	TokenID     string
	Type        string

	HasIssuedAt  bool
	IssuedAt     int64
	HasNotBefore bool
	NotBefore    int64
	HasExpiresAt bool
	ExpiresAt    int64

	Extra map[string]interface{}
}
