// Package engine implements the Session Engine (spec.md §4.C): the
// central state machine that creates, rotates and revokes sessions,
// enforcing the two-generation refresh-token window and minting token
// pairs through the Token Factory.
//
// Engine takes its collaborators by constructor injection — Store,
// Factory, logger, optional event publisher and metrics recorder —
// the same wiring style as the teacher's service constructors
// (NewSessionService(sessionRepo, userRepo, kafkaClient, logger)).
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/UpperCi/charon/autherr"
	"github.com/UpperCi/charon/reqctx"
	"github.com/UpperCi/charon/session"
	"github.com/UpperCi/charon/token"
	"github.com/UpperCi/charon/transport"
)

// EventPublisher is the optional session-lifecycle event sink
// (spec.md §6.3's events module). A nil EventPublisher on Engine
// disables publishing entirely.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, s *session.Session)
}

// MetricsRecorder is the optional counters/histograms sink (spec.md
// §6.3's metrics module). A nil MetricsRecorder disables recording.
type MetricsRecorder interface {
	ObserveCreate()
	ObserveRefresh(outcome string) // "slide", "grace", "conflict_retry"
	ObserveRevoke()
	ObserveStale()
}

// IDGenerator produces opaque, globally-unique identifiers for session
// and refresh-token IDs. Kept as an injected seam (rather than a bare
// uuid.New() call inline) so tests can supply deterministic IDs —
// mirrors the teacher's pattern of taking already-configured
// collaborators rather than constructing them internally.
type IDGenerator func() string

// Config carries the tunables spec.md §6 lists for the Engine: token
// TTLs and the issuer claim. Cookie names/opts live here too since the
// Engine is what actually attaches cookies to the reqctx.Context.
type Config struct {
	Issuer           string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	SessionTTL       time.Duration // 0 means Infinite (spec.md §3)
	CookieNames      transport.CookieNames
	AccessCookieOpts transport.CookieOpts
	RefreshCookieOpts transport.CookieOpts
}

// Engine is the Session Engine. Safe for concurrent use — it holds no
// mutable state of its own (spec.md §5: "no process-wide mutable state
// exists in the Engine").
type Engine struct {
	store   session.Store
	tokens  *token.Factory
	cfg     Config
	logger  *zap.Logger
	events  EventPublisher
	metrics MetricsRecorder
	newID   IDGenerator
	now     func() time.Time
}

// Option configures optional Engine collaborators.
type Option func(*Engine)

// WithEvents wires a session-lifecycle event publisher (spec.md §6.3).
func WithEvents(p EventPublisher) Option {
	return func(e *Engine) { e.events = p }
}

// WithMetrics wires a metrics recorder (spec.md §6.3).
func WithMetrics(m MetricsRecorder) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithIDGenerator overrides the default uuid-backed ID generator, for
// deterministic tests.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) { e.newID = g }
}

// withClock overrides time.Now, for tests exercising the rotation
// state machine against specific instants.
func withClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an Engine. logger may be nil, in which case a no-op
// logger is used (matching the teacher's NewLogger fallback).
func New(store session.Store, tokens *token.Factory, cfg Config, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:  store,
		tokens: tokens,
		cfg:    cfg,
		logger: logger,
		newID:  defaultIDGenerator,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateOptions carries what UpsertSession needs to mint a brand new
// session when no session is attached to the context.
type CreateOptions struct {
	UserID       string
	Type         string // defaults to session.TypeFull
	Transport    transport.Mode
	ExtraPayload map[string]interface{}
}

// UpsertSession is spec.md §4.C's upsert_session(ctx, opts) → ctx: it
// creates a session when rc carries none, or rotates the one already
// attached. Rotation requires rc.Session and rc.BearerTokenPayload to
// already be populated — the Pipeline (§4.D) is what loads those,
// having verified the presented refresh token and fetched its session.
func (e *Engine) UpsertSession(ctx context.Context, rc *reqctx.Context, opts CreateOptions) error {
	if rc.Session == nil {
		return e.create(ctx, rc, opts)
	}
	return e.refresh(ctx, rc)
}

func (e *Engine) create(ctx context.Context, rc *reqctx.Context, opts CreateOptions) error {
	typ := opts.Type
	if typ == "" {
		typ = session.TypeFull
	}

	now := e.now()
	expiresAt := session.Infinite
	if e.cfg.SessionTTL > 0 {
		expiresAt = now.Add(e.cfg.SessionTTL)
	}

	s := &session.Session{
		ID:                  e.newID(),
		UserID:              opts.UserID,
		Type:                typ,
		CreatedAt:           now,
		RefreshedAt:         now,
		ExpiresAt:           expiresAt,
		RefreshTokenID:      e.newID(),
		TokensFreshFrom:     now,
		PrevTokensFreshFrom: time.Time{},
		LockVersion:         1,
		Transport:           string(opts.Transport),
		ExtraPayload:        opts.ExtraPayload,
	}
	s.RefreshExpiresAt = session.ComputeRefreshExpiresAt(s.ExpiresAt, s.RefreshedAt, e.cfg.RefreshTokenTTL)

	if err := e.store.Upsert(ctx, s); err != nil {
		return fmt.Errorf("engine: create session: %w", err)
	}

	toks, err := e.mintFromCurrentGeneration(ctx, s)
	if err != nil {
		return err
	}

	rc.Session = s
	rc.Tokens = toks
	rc.UserID = s.UserID
	rc.SessionID = s.ID
	rc.TokenTransport = opts.Transport
	e.attachCookies(rc, toks, opts.Transport)

	if e.metrics != nil {
		e.metrics.ObserveCreate()
	}
	e.publish(ctx, "session.created", s)

	e.logger.Debug("session created",
		zap.String("session_id", s.ID), zap.String("user_id", s.UserID), zap.String("type", s.Type))

	return nil
}

// refresh implements the rotation state machine (spec.md §4.C rules
// 2-5) plus the conflict-retry equivalence (§4.C "Concurrency on
// rotation", §9's open question). rc.Session is the session the
// Pipeline already loaded via sid/sub/styp; rc.BearerTokenPayload is
// the presented refresh token's verified claims.
func (e *Engine) refresh(ctx context.Context, rc *reqctx.Context) error {
	s := rc.Session
	p := rc.BearerTokenPayload
	if p == nil || !p.HasIssuedAt {
		return fmt.Errorf("engine: refresh: no presented refresh-token payload attached to context")
	}
	if s.Transport != "" {
		rc.TokenTransport = transport.Mode(s.Transport)
	}
	presentedIat := time.Unix(p.IssuedAt, 0)

	switch {
	case !presentedIat.Before(s.TokensFreshFrom):
		return e.slide(ctx, rc, s)

	case s.HasPrevGeneration() && !presentedIat.Before(s.PrevTokensFreshFrom):
		// Grace window: mint from the current generation, no write.
		toks, err := e.mintFromCurrentGeneration(ctx, s)
		if err != nil {
			return err
		}
		rc.Tokens = toks
		e.attachCookies(rc, toks, rc.TokenTransport)
		if e.metrics != nil {
			e.metrics.ObserveRefresh("grace")
		}
		return nil

	default:
		if e.metrics != nil {
			e.metrics.ObserveStale()
		}
		rc.Halt(autherr.ErrTokenStale)
		return autherr.ErrTokenStale
	}
}

// slide performs rule 2: the presented token is current, so the
// window slides forward and a new generation is written.
func (e *Engine) slide(ctx context.Context, rc *reqctx.Context, s *session.Session) error {
	now := e.now()

	next := *s // shallow copy: ExtraPayload map is shared, never mutated in place
	next.PrevTokensFreshFrom = s.TokensFreshFrom
	next.TokensFreshFrom = now
	next.RefreshedAt = now
	next.RefreshTokenID = e.newID()
	next.LockVersion = s.LockVersion + 1
	next.RefreshExpiresAt = session.ComputeRefreshExpiresAt(s.ExpiresAt, now, e.cfg.RefreshTokenTTL)

	err := e.store.Upsert(ctx, &next)
	switch {
	case err == nil:
		toks, terr := e.mintFromCurrentGeneration(ctx, &next)
		if terr != nil {
			return terr
		}
		rc.Session = &next
		rc.Tokens = toks
		rc.UserID = next.UserID
		rc.SessionID = next.ID
		e.attachCookies(rc, toks, rc.TokenTransport)
		if e.metrics != nil {
			e.metrics.ObserveRefresh("slide")
		}
		e.publish(ctx, "session.rotated", &next)
		return nil

	case errIsConflict(err):
		// Lost the race: spec.md §4.C "Concurrency on rotation" says to
		// treat this exactly like a previous-generation refresh against
		// whichever generation won.
		fresh, gerr := e.store.Get(ctx, s.ID, s.UserID, s.Type)
		if gerr != nil {
			return fmt.Errorf("engine: refresh session: re-read after conflict: %w", gerr)
		}
		if fresh == nil {
			rc.Halt(autherr.ErrSessionNotFound)
			return autherr.ErrSessionNotFound
		}
		toks, terr := e.mintFromCurrentGeneration(ctx, fresh)
		if terr != nil {
			return terr
		}
		rc.Session = fresh
		rc.Tokens = toks
		e.attachCookies(rc, toks, rc.TokenTransport)
		if e.metrics != nil {
			e.metrics.ObserveRefresh("conflict_retry")
		}
		return nil

	default:
		return fmt.Errorf("engine: refresh session: %w", err)
	}
}

// Logout is spec.md §4.C's logout(ctx) → ctx: deletes the session and
// clears cookies. A no-op if no session is attached.
func (e *Engine) Logout(ctx context.Context, rc *reqctx.Context) error {
	s := rc.Session
	if s == nil {
		return nil
	}
	if err := e.store.Delete(ctx, s.ID, s.UserID, s.Type); err != nil {
		return fmt.Errorf("engine: logout: %w", err)
	}

	e.clearCookies(rc)
	rc.Session = nil
	rc.Tokens = nil

	if e.metrics != nil {
		e.metrics.ObserveRevoke()
	}
	e.publish(ctx, "session.revoked", s)

	e.logger.Debug("session revoked", zap.String("session_id", s.ID), zap.String("user_id", s.UserID))
	return nil
}

func (e *Engine) publish(ctx context.Context, eventType string, s *session.Session) {
	if e.events == nil {
		return
	}
	// Best-effort: a failed publish never fails the engine call that
	// triggered it (mirrors the teacher's kafkaClient.PublishSessionEvent
	// call sites, which log and continue).
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event publish panicked", zap.Any("recover", r), zap.String("event", eventType))
		}
	}()
	e.events.Publish(ctx, eventType, s)
}

func defaultIDGenerator() string {
	return newUUIDv4String()
}
