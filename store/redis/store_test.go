package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"github.com/stretchr/testify/assert"

	"github.com/UpperCi/charon/session"
	"github.com/UpperCi/charon/token"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	keys := token.NewStaticKeyGetter("k1", []byte("integrity-key"))
	return New(client, keys, "charon-test", nil), mr
}

func baseSession(userID string) *session.Session {
	now := time.Now()
	s := &session.Session{
		ID:              "sid-1",
		UserID:          userID,
		Type:            session.TypeFull,
		CreatedAt:       now,
		RefreshedAt:     now,
		ExpiresAt:       session.Infinite,
		RefreshTokenID:  "jti-1",
		TokensFreshFrom: now,
		LockVersion:     1,
		Transport:       "bearer",
	}
	s.RefreshExpiresAt = session.ComputeRefreshExpiresAt(s.ExpiresAt, s.RefreshedAt, 24*time.Hour)
	return s
}

func TestStore_Get_Absent(t *testing.T) {
	store, _ := newTestStore(t)
	got, err := store.Get(context.Background(), "missing", "426", session.TypeFull)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_Upsert_Get_RoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	s := baseSession("426")

	require.NoError(t, store.Upsert(context.Background(), s))

	got, err := store.Get(context.Background(), s.ID, s.UserID, s.Type)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, s.UserID, got.UserID)
	assert.Equal(t, s.RefreshTokenID, got.RefreshTokenID)
	assert.EqualValues(t, s.LockVersion, got.LockVersion)
}

func TestStore_Upsert_ConflictOnStaleLockVersion(t *testing.T) {
	store, _ := newTestStore(t)
	s := baseSession("426")
	require.NoError(t, store.Upsert(context.Background(), s))

	stale := *s
	stale.LockVersion = 1 // should be 2 to supersede the stored version 1
	err := store.Upsert(context.Background(), &stale)
	assert.ErrorIs(t, err, session.ErrConflict)

	next := *s
	next.LockVersion = 2
	assert.NoError(t, store.Upsert(context.Background(), &next))
}

func TestStore_Upsert_NoopWhenAlreadyExpired(t *testing.T) {
	store, _ := newTestStore(t)
	s := baseSession("426")
	s.RefreshExpiresAt = time.Now().Add(-time.Hour)

	require.NoError(t, store.Upsert(context.Background(), s))

	got, err := store.Get(context.Background(), s.ID, s.UserID, s.Type)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_CrossUserIsolation(t *testing.T) {
	store, _ := newTestStore(t)
	s := baseSession("426")
	require.NoError(t, store.Upsert(context.Background(), s))

	got, err := store.Get(context.Background(), s.ID, "someone-else", s.Type)
	require.NoError(t, err)
	assert.Nil(t, got, "a session must never be readable under a different user_id")
}

func TestStore_Delete(t *testing.T) {
	store, _ := newTestStore(t)
	s := baseSession("426")
	require.NoError(t, store.Upsert(context.Background(), s))
	require.NoError(t, store.Delete(context.Background(), s.ID, s.UserID, s.Type))

	got, err := store.Get(context.Background(), s.ID, s.UserID, s.Type)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_Delete_RecomputesSharedTTL(t *testing.T) {
	store, mr := newTestStore(t)
	now := time.Now()

	short := baseSession("426")
	short.ID = "sid-short"
	short.RefreshTokenID = "jti-short"
	short.RefreshExpiresAt = now.Add(time.Hour)

	long := baseSession("426")
	long.ID = "sid-long"
	long.RefreshTokenID = "jti-long"
	long.RefreshExpiresAt = now.Add(2 * time.Hour)

	require.NoError(t, store.Upsert(context.Background(), short))
	require.NoError(t, store.Upsert(context.Background(), long))

	k := newKeys(store.keyPrefix, "426", session.TypeFull)
	ttl := mr.TTL(k.sessionMap)
	assert.InDelta(t, 2*time.Hour, ttl, float64(time.Minute), "TTL must reflect the later of the two refresh_expires_at values")

	require.NoError(t, store.Delete(context.Background(), long.ID, "426", session.TypeFull))

	ttl = mr.TTL(k.sessionMap)
	assert.InDelta(t, time.Hour, ttl, float64(time.Minute), "deleting the longer-lived session must collapse the shared TTL back to the remaining session's refresh_expires_at")
	assert.InDelta(t, time.Hour, mr.TTL(k.expSet), float64(time.Minute))
	assert.InDelta(t, time.Hour, mr.TTL(k.lockMap), float64(time.Minute))

	got, err := store.Get(context.Background(), short.ID, "426", session.TypeFull)
	require.NoError(t, err)
	assert.NotNil(t, got, "the surviving session must still be readable after the collapse")
}

func TestStore_Prune_RemovesAllCollectionsAfterExpiry(t *testing.T) {
	store, mr := newTestStore(t)
	s := baseSession("426")
	s.RefreshExpiresAt = time.Now().Add(time.Second)
	require.NoError(t, store.Upsert(context.Background(), s))

	k := newKeys(store.keyPrefix, "426", session.TypeFull)
	mr.FastForward(2 * time.Second)

	store.tryPrune(context.Background(), k)

	assert.False(t, mr.Exists(k.sessionMap), "session map must be absent after the prune cycle")
	assert.False(t, mr.Exists(k.expSet), "expiration set must be absent after the prune cycle")
	assert.False(t, mr.Exists(k.lockMap), "lock map must be absent after the prune cycle")
}

func TestStore_Prune_CooldownSkipsSecondRun(t *testing.T) {
	store, mr := newTestStore(t)
	s := baseSession("426")
	s.RefreshExpiresAt = time.Now().Add(time.Second)
	require.NoError(t, store.Upsert(context.Background(), s))

	k := newKeys(store.keyPrefix, "426", session.TypeFull)
	// Upsert already ran the opportunistic prune and took the cooldown
	// lock; clear it so the explicit run below opens a fresh window.
	mr.Del(k.pruneLock)

	ctx := context.Background()
	// The clock passed in is two seconds ahead, past the session's
	// refresh_expires_at, so its score counts as stale.
	res, err := pruneScript.Run(ctx, store.client,
		[]string{k.sessionMap, k.expSet, k.lockMap, k.pruneLock},
		time.Now().Add(2*time.Second).Unix(), int(pruneCooldown.Seconds()),
	).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, res, "first prune within the cooldown window removes the one stale session")

	second := baseSession("426")
	second.ID = "sid-2"
	second.RefreshTokenID = "jti-2"
	second.RefreshExpiresAt = time.Now().Add(-time.Hour) // already stale
	require.NoError(t, store.client.HSet(ctx, k.sessionMap, second.ID, "ignored").Err())
	require.NoError(t, store.client.ZAdd(ctx, k.expSet, &goredis.Z{Score: float64(second.RefreshExpiresAt.Unix()), Member: second.ID}).Err())

	res, err = pruneScript.Run(ctx, store.client,
		[]string{k.sessionMap, k.expSet, k.lockMap, k.pruneLock},
		time.Now().Unix(), int(pruneCooldown.Seconds()),
	).Result()
	require.NoError(t, err)
	assert.Equal(t, "SKIPPED", res, "a second prune inside the 1-hour cooldown must be a no-op, even with a stale entry present")
	assert.True(t, mr.Exists(k.sessionMap), "the entry added after the cooldown lock was set must survive the skipped prune")
}

func TestStore_GetAll_DeleteAll(t *testing.T) {
	store, _ := newTestStore(t)
	s1 := baseSession("426")
	s2 := baseSession("426")
	s2.ID = "sid-2"
	s2.RefreshTokenID = "jti-2"
	require.NoError(t, store.Upsert(context.Background(), s1))
	require.NoError(t, store.Upsert(context.Background(), s2))

	all, err := store.GetAll(context.Background(), "426", session.TypeFull)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, store.DeleteAll(context.Background(), "426", session.TypeFull))
	all, err = store.GetAll(context.Background(), "426", session.TypeFull)
	require.NoError(t, err)
	assert.Empty(t, all)
}
