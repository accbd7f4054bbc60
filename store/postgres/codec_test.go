package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UpperCi/charon/session"
)

func TestToRow_FromRow_RoundTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := &session.Session{
		ID:              "sid-1",
		UserID:          "426",
		Type:            session.TypeFull,
		CreatedAt:       now,
		RefreshedAt:     now,
		ExpiresAt:       session.Infinite,
		RefreshTokenID:  "jti-1",
		TokensFreshFrom: now,
		LockVersion:     3,
		Transport:       "cookie",
		ExtraPayload:    map[string]interface{}{"role": "admin"},
	}
	s.RefreshExpiresAt = session.ComputeRefreshExpiresAt(s.ExpiresAt, s.RefreshedAt, 24*time.Hour)

	r, err := toRow(s)
	require.NoError(t, err)
	assert.Equal(t, int64(0), r.ExpiresAt, "infinite sessions encode as 0")

	got, err := fromRow(r)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, s.UserID, got.UserID)
	assert.True(t, session.IsInfinite(got.ExpiresAt))
	assert.Equal(t, s.RefreshExpiresAt.Unix(), got.RefreshExpiresAt.Unix())
	assert.Equal(t, "admin", got.ExtraPayload["role"])
}

func TestToRow_FromRow_PrevGeneration(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := &session.Session{
		ID: "sid-1", UserID: "426", Type: session.TypeFull,
		CreatedAt: now, RefreshedAt: now, ExpiresAt: now.Add(time.Hour),
		RefreshExpiresAt:    now.Add(time.Hour),
		RefreshTokenID:      "jti-2",
		TokensFreshFrom:     now,
		PrevTokensFreshFrom: now.Add(-time.Minute),
		LockVersion:         2,
	}

	r, err := toRow(s)
	require.NoError(t, err)
	got, err := fromRow(r)
	require.NoError(t, err)
	assert.True(t, got.HasPrevGeneration())
	assert.Equal(t, s.PrevTokensFreshFrom.Unix(), got.PrevTokensFreshFrom.Unix())
}

func TestToRow_FromRow_NoExtraPayload(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := &session.Session{
		ID: "sid-1", UserID: "426", Type: session.TypeFull,
		CreatedAt: now, RefreshedAt: now, ExpiresAt: now.Add(time.Hour),
		RefreshExpiresAt: now.Add(time.Hour),
	}

	r, err := toRow(s)
	require.NoError(t, err)
	got, err := fromRow(r)
	require.NoError(t, err)
	assert.Empty(t, got.ExtraPayload)
}
