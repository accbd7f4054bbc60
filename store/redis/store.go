// Package redis implements session.Store on top of
// github.com/go-redis/redis/v8, following spec.md §4.B's data layout
// literally: a session hash, an expiration sorted set, a lock hash and
// a prune-lock marker per (user_id, type), all sharing one absolute
// TTL that only ever gets raised. It is the reference, spec-mandated
// Store implementation (SPEC_FULL.md §4.B); store/postgres is the
// alternate module for backends without server-side scripting.
//
// Grounded on the teacher's internal/domain/repository/redis package:
// the same injected client and logger (New here also takes an
// integrity KeyGetter and a key prefix, and no TTL), same key-per-fmt.Sprintf
// style, same "log and continue" treatment of non-fatal cache errors —
// generalized here to the atomic multi-collection protocol the spec
// requires, via go-redis's Script.Run (EVALSHA with automatic
// fallback to EVAL on NOSCRIPT).
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/UpperCi/charon/session"
)

// pruneCooldown is spec.md §4.B's fixed 1-hour prune cooldown.
const pruneCooldown = time.Hour

// Store is the Redis-backed session.Store.
type Store struct {
	client    goredis.Cmdable
	keys      KeyGetter
	logger    *zap.Logger
	keyPrefix string
}

// New builds a Store. client may be a *goredis.Client or any
// goredis.Cmdable (including miniredis-backed clients in tests).
// keyPrefix is the "<prefix>" segment of spec.md §6's key shapes.
func New(client goredis.Cmdable, keys KeyGetter, keyPrefix string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if keyPrefix == "" {
		keyPrefix = "charon"
	}
	return &Store{client: client, keys: keys, logger: logger, keyPrefix: keyPrefix}
}

var _ session.Store = (*Store)(nil)

// Get implements session.Store. It returns (nil, nil) on any absence
// or validation failure — missing key, integrity failure, cross-user
// key collision, or an already-expired refresh window (spec.md §4.B
// "Read validation").
func (s *Store) Get(ctx context.Context, sessionID, userID, typ string) (*session.Session, error) {
	k := newKeys(s.keyPrefix, userID, typ)

	blob, err := s.client.HGet(ctx, k.sessionMap, sessionID).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, &session.Error{Op: "get", Err: err}
	}

	dto, ok := openSession(ctx, s.keys, blob)
	if !ok {
		s.logger.Warn("session failed integrity check or decode", zap.String("session_id", sessionID))
		return nil, nil
	}

	sess := fromDTO(*dto)
	if sess.UserID != userID || sess.Type != typ || sess.ID != sessionID {
		s.logger.Warn("session key collision detected", zap.String("session_id", sessionID))
		return nil, nil
	}
	if sess.IsRefreshExpired(time.Now()) {
		return nil, nil
	}

	// Best-effort: try to sweep this user/type's stale sessions while
	// we already hold a connection open, without ever failing the read.
	s.tryPrune(ctx, k)

	return sess, nil
}

// Upsert implements session.Store's atomic optimistic-lock protocol
// (spec.md §4.B steps 1-4), via upsertScript.
func (s *Store) Upsert(ctx context.Context, sess *session.Session) error {
	k := newKeys(s.keyPrefix, sess.UserID, sess.Type)

	blob, err := sealSession(ctx, s.keys, toDTO(sess))
	if err != nil {
		return &session.Error{Op: "upsert", Err: err}
	}

	var expectedPrev int64 = -1
	if sess.LockVersion > 0 {
		expectedPrev = int64(sess.LockVersion) - 1
	}

	now := time.Now().Unix()
	res, err := upsertScript.Run(ctx, s.client,
		[]string{k.sessionMap, k.expSet, k.lockMap},
		sess.ID, sess.LockVersion, expectedPrev, blob, sess.RefreshExpiresAt.Unix(), now,
	).Text()
	if err != nil {
		return &session.Error{Op: "upsert", Err: err}
	}

	switch res {
	case "CONFLICT":
		return session.ErrConflict
	case "NOOP", "OK":
		s.tryPrune(ctx, k)
		return nil
	default:
		return &session.Error{Op: "upsert", Err: fmt.Errorf("unexpected script result %q", res)}
	}
}

// Delete implements session.Store: remove sid from all three
// collections atomically and recompute the shared TTL.
func (s *Store) Delete(ctx context.Context, sessionID, userID, typ string) error {
	k := newKeys(s.keyPrefix, userID, typ)
	if _, err := deleteScript.Run(ctx, s.client,
		[]string{k.sessionMap, k.expSet, k.lockMap}, sessionID, time.Now().Unix(),
	).Result(); err != nil {
		return &session.Error{Op: "delete", Err: err}
	}
	return nil
}

// GetAll implements session.Store: every live session for (userID,
// typ), skipping any that fail integrity or have already lapsed.
func (s *Store) GetAll(ctx context.Context, userID, typ string) ([]*session.Session, error) {
	k := newKeys(s.keyPrefix, userID, typ)

	now := time.Now().Unix()
	sids, err := s.client.ZRangeByScore(ctx, k.expSet, &goredis.ZRangeBy{
		Min: fmt.Sprintf("%d", now), Max: "+inf",
	}).Result()
	if err != nil {
		return nil, &session.Error{Op: "get_all", Err: err}
	}
	if len(sids) == 0 {
		return nil, nil
	}

	blobs, err := s.client.HMGet(ctx, k.sessionMap, sids...).Result()
	if err != nil {
		return nil, &session.Error{Op: "get_all", Err: err}
	}

	sessions := make([]*session.Session, 0, len(sids))
	for _, raw := range blobs {
		blob, ok := raw.(string)
		if !ok {
			continue
		}
		dto, ok := openSession(ctx, s.keys, blob)
		if !ok {
			continue
		}
		sess := fromDTO(*dto)
		if sess.UserID != userID || sess.Type != typ || sess.IsRefreshExpired(time.Now()) {
			continue
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// DeleteAll implements session.Store: wipe every backing collection
// for (userID, typ) outright.
func (s *Store) DeleteAll(ctx context.Context, userID, typ string) error {
	k := newKeys(s.keyPrefix, userID, typ)
	if err := s.client.Del(ctx, k.sessionMap, k.expSet, k.lockMap, k.pruneLock).Err(); err != nil {
		return &session.Error{Op: "delete_all", Err: err}
	}
	return nil
}

// tryPrune runs the best-effort sweep opportunistically (spec.md §4.B
// "Pruning"). Failures are logged, never propagated — pruning must
// never turn a read or write into an error.
func (s *Store) tryPrune(ctx context.Context, k keys) {
	res, err := pruneScript.Run(ctx, s.client,
		[]string{k.sessionMap, k.expSet, k.lockMap, k.pruneLock},
		time.Now().Unix(), int(pruneCooldown.Seconds()),
	).Result()
	if err != nil {
		s.logger.Warn("prune sweep failed", zap.Error(err))
		return
	}
	if n, ok := res.(int64); ok && n > 0 {
		s.logger.Debug("pruned stale sessions", zap.Int64("count", n))
	}
}
