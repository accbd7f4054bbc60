package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UpperCi/charon/autherr"
	"github.com/UpperCi/charon/reqctx"
	"github.com/UpperCi/charon/session"
	"github.com/UpperCi/charon/token"
	"github.com/UpperCi/charon/transport"
)

// fakeStore is a minimal in-memory session.Store double that can be
// told to fake exactly one optimistic-lock conflict on the next Upsert,
// to exercise the conflict-retry path deterministically.
type fakeStore struct {
	sessions      map[string]*session.Session
	conflictOnce  bool
	upsertCalls   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: map[string]*session.Session{}}
}

func (f *fakeStore) key(id, userID, typ string) string { return id + "|" + userID + "|" + typ }

func (f *fakeStore) Get(ctx context.Context, sessionID, userID, typ string) (*session.Session, error) {
	return f.sessions[f.key(sessionID, userID, typ)], nil
}

func (f *fakeStore) Upsert(ctx context.Context, s *session.Session) error {
	f.upsertCalls++
	if f.conflictOnce {
		f.conflictOnce = false
		return session.ErrConflict
	}
	cp := *s
	f.sessions[f.key(s.ID, s.UserID, s.Type)] = &cp
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, sessionID, userID, typ string) error {
	delete(f.sessions, f.key(sessionID, userID, typ))
	return nil
}

func (f *fakeStore) GetAll(ctx context.Context, userID, typ string) ([]*session.Session, error) {
	var out []*session.Session
	for _, s := range f.sessions {
		if s.UserID == userID && s.Type == typ {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteAll(ctx context.Context, userID, typ string) error {
	for k, s := range f.sessions {
		if s.UserID == userID && s.Type == typ {
			delete(f.sessions, k)
		}
	}
	return nil
}

func sequentialIDs(prefix string) IDGenerator {
	n := 0
	return func() string {
		n++
		return prefix + "-" + time.Duration(n).String()
	}
}

func testConfig() Config {
	return Config{
		Issuer:          "charon-tests",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 60 * 24 * time.Hour,
	}
}

func newTestEngine(store session.Store, now time.Time, opts ...Option) *Engine {
	keys := token.NewStaticKeyGetter("k1", []byte("test-signing-key"))
	factory := token.NewFactory(keys)
	allOpts := append([]Option{
		withClock(func() time.Time { return now }),
		WithIDGenerator(sequentialIDs("id")),
	}, opts...)
	return New(store, factory, testConfig(), nil, allOpts...)
}

func TestEngine_Create(t *testing.T) {
	store := newFakeStore()
	now := time.Unix(1_700_000_000, 0)
	e := newTestEngine(store, now)

	rc := reqctx.New()
	err := e.UpsertSession(context.Background(), rc, CreateOptions{UserID: "426", Transport: transport.ModeBearer})
	require.NoError(t, err)

	require.NotNil(t, rc.Session)
	assert.Equal(t, "426", rc.UserID)
	assert.EqualValues(t, 1, rc.Session.LockVersion)
	require.NotNil(t, rc.Tokens)
	assert.NotEmpty(t, rc.Tokens.AccessToken)
	assert.NotEmpty(t, rc.Tokens.RefreshToken)
}

func TestEngine_Refresh_Slide(t *testing.T) {
	store := newFakeStore()
	now := time.Unix(1_700_000_000, 0)
	e := newTestEngine(store, now)

	rc := reqctx.New()
	require.NoError(t, e.UpsertSession(context.Background(), rc, CreateOptions{UserID: "426", Transport: transport.ModeBearer}))
	created := rc.Session
	createdRefreshJTI := created.RefreshTokenID

	// Simulate the pipeline loading this session and the presented
	// refresh token's payload, then advance the clock past TokensFreshFrom.
	later := now.Add(time.Minute)
	e2 := newTestEngine(store, later, WithIDGenerator(sequentialIDs("id2")))
	rc2 := reqctx.New()
	rc2.Session = created
	rc2.BearerTokenPayload = &token.Payload{HasIssuedAt: true, IssuedAt: created.TokensFreshFrom.Unix()}

	require.NoError(t, e2.UpsertSession(context.Background(), rc2, CreateOptions{}))
	assert.NotEqual(t, createdRefreshJTI, rc2.Session.RefreshTokenID)
	assert.EqualValues(t, 2, rc2.Session.LockVersion)
	assert.True(t, rc2.Session.HasPrevGeneration())
	assert.Equal(t, created.TokensFreshFrom, rc2.Session.PrevTokensFreshFrom)
}

func TestEngine_Refresh_GraceWindow(t *testing.T) {
	store := newFakeStore()
	now := time.Unix(1_700_000_000, 0)
	e := newTestEngine(store, now)

	rc := reqctx.New()
	require.NoError(t, e.UpsertSession(context.Background(), rc, CreateOptions{UserID: "426", Transport: transport.ModeBearer}))
	created := rc.Session

	// First rotation slides the window forward.
	later := now.Add(time.Minute)
	e2 := newTestEngine(store, later)
	rc2 := reqctx.New()
	rc2.Session = created
	rc2.BearerTokenPayload = &token.Payload{HasIssuedAt: true, IssuedAt: created.TokensFreshFrom.Unix()}
	require.NoError(t, e2.UpsertSession(context.Background(), rc2, CreateOptions{}))
	rotated := rc2.Session

	// A second request still presenting the OLD (pre-rotation) refresh
	// token should succeed via the grace window, without writing again.
	rc3 := reqctx.New()
	rc3.Session = rotated
	rc3.BearerTokenPayload = &token.Payload{HasIssuedAt: true, IssuedAt: created.TokensFreshFrom.Unix()}
	upsertsBefore := store.upsertCalls
	require.NoError(t, e2.UpsertSession(context.Background(), rc3, CreateOptions{}))
	assert.Equal(t, upsertsBefore, store.upsertCalls, "grace-window reissue must not write")
	require.NotNil(t, rc3.Tokens)
}

func TestEngine_Refresh_Stale(t *testing.T) {
	store := newFakeStore()
	now := time.Unix(1_700_000_000, 0)
	e := newTestEngine(store, now)

	rc := reqctx.New()
	require.NoError(t, e.UpsertSession(context.Background(), rc, CreateOptions{UserID: "426", Transport: transport.ModeBearer}))
	created := rc.Session

	// Two rotations forward, then present the ORIGINAL (now doubly-stale)
	// refresh token, which predates even the grace-window generation.
	e2 := newTestEngine(store, now.Add(time.Minute))
	rc2 := reqctx.New()
	rc2.Session = created
	rc2.BearerTokenPayload = &token.Payload{HasIssuedAt: true, IssuedAt: created.TokensFreshFrom.Unix()}
	require.NoError(t, e2.UpsertSession(context.Background(), rc2, CreateOptions{}))

	e3 := newTestEngine(store, now.Add(2*time.Minute))
	rc3 := reqctx.New()
	rc3.Session = rc2.Session
	rc3.BearerTokenPayload = &token.Payload{HasIssuedAt: true, IssuedAt: rc2.Session.TokensFreshFrom.Unix()}
	require.NoError(t, e3.UpsertSession(context.Background(), rc3, CreateOptions{}))

	// Now the original session's TokensFreshFrom generation is two
	// rotations stale — presenting it must halt with ErrTokenStale.
	e4 := newTestEngine(store, now.Add(3*time.Minute))
	rc4 := reqctx.New()
	rc4.Session = rc3.Session
	rc4.BearerTokenPayload = &token.Payload{HasIssuedAt: true, IssuedAt: created.TokensFreshFrom.Unix()}
	err := e4.UpsertSession(context.Background(), rc4, CreateOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, autherr.ErrTokenStale)
	assert.True(t, rc4.Halted)
}

func TestEngine_Refresh_ConflictRetry_EquivalentToNormalRefresh(t *testing.T) {
	store := newFakeStore()
	now := time.Unix(1_700_000_000, 0)
	e := newTestEngine(store, now)

	rc := reqctx.New()
	require.NoError(t, e.UpsertSession(context.Background(), rc, CreateOptions{UserID: "426", Transport: transport.ModeBearer}))
	created := rc.Session

	later := now.Add(time.Minute)
	e2 := newTestEngine(store, later)
	rc2 := reqctx.New()
	rc2.Session = created
	rc2.BearerTokenPayload = &token.Payload{HasIssuedAt: true, IssuedAt: created.TokensFreshFrom.Unix()}

	store.conflictOnce = true
	require.NoError(t, e2.UpsertSession(context.Background(), rc2, CreateOptions{}))

	require.NotNil(t, rc2.Tokens)
	require.NotEmpty(t, rc2.Tokens.AccessToken)
	require.NotEmpty(t, rc2.Tokens.RefreshToken)
	// The conflict path must resolve rc2.Session to whichever generation
	// won the race, exactly as if this had been an ordinary grace-window
	// refresh against that same winner.
	assert.NotNil(t, rc2.Session)
}
