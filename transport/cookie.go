package transport

// SameSite mirrors net/http.SameSite's values without importing net/http
// from this package — Charon's core stays framework-agnostic (spec.md
// §1: the HTTP framework adapter is an external collaborator). Hosts
// translate this to their framework's cookie type.
type SameSite int

const (
	SameSiteDefault SameSite = iota
	SameSiteLax
	SameSiteStrict
	SameSiteNone
)

// CookieOpts is the spec.md §6 "access_cookie_opts"/"refresh_cookie_opts"
// configuration surface: at minimum HTTPOnly, SameSite, and Secure.
type CookieOpts struct {
	HTTPOnly bool
	SameSite SameSite
	Secure   bool
	Domain   string
	Path     string
}

// DefaultCookieOpts matches spec.md §4.E: HTTP-only, SameSite=Strict,
// Secure.
var DefaultCookieOpts = CookieOpts{
	HTTPOnly: true,
	SameSite: SameSiteStrict,
	Secure:   true,
	Path:     "/",
}

// SetCookie is the value the Engine attaches to a Context's RespCookies
// map (spec.md §4.F) for the host framework adapter to actually emit.
type SetCookie struct {
	Name    string
	Value   string
	Opts    CookieOpts
	MaxAge  int // seconds; 0 means session cookie, negative means delete
	Deleted bool
}
