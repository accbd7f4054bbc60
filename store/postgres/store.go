// Package postgres is the alternate session.Store module SPEC_FULL.md
// §4.B names: built on github.com/jackc/pgx/v5 and
// github.com/jmoiron/sqlx, using SELECT ... FOR UPDATE inside a
// transaction as the compare-and-swap primitive spec.md §9's design
// notes say backends without server-side scripting must emulate in
// place of the Redis module's Lua script. Schema migrations run
// through github.com/golang-migrate/migrate/v4, the same library the
// teacher's cmd/auth-service/main.go runs at boot.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/UpperCi/charon/session"
)

const pruneCooldown = time.Hour

// Store is the Postgres-backed session.Store.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// New wraps an existing pgxpool.Pool. Run Migrate(dsn) once at boot
// before constructing a Store.
func New(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	db := sqlx.NewDb(stdlib.OpenDBFromPool(pool), "pgx")
	return &Store{db: db, logger: logger}
}

var _ session.Store = (*Store)(nil)

// Get implements session.Store.
func (s *Store) Get(ctx context.Context, sessionID, userID, typ string) (*session.Session, error) {
	var r row
	err := s.db.GetContext(ctx, &r, `
		SELECT id, user_id, type, created_at, refreshed_at, expires_at,
		       refresh_expires_at, refresh_token_id, tokens_fresh_from,
		       prev_tokens_fresh_from, lock_version, transport, extra_payload
		FROM charon_sessions
		WHERE id = $1 AND user_id = $2 AND type = $3`,
		sessionID, userID, typ)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &session.Error{Op: "get", Err: err}
	}

	sess, err := fromRow(r)
	if err != nil {
		return nil, &session.Error{Op: "get", Err: err}
	}
	if sess.IsRefreshExpired(time.Now()) {
		return nil, nil
	}
	return sess, nil
}

// Upsert implements session.Store's optimistic-lock protocol using a
// transaction and SELECT ... FOR UPDATE as the CAS primitive (spec.md
// §4.B steps 1-4, §9).
func (s *Store) Upsert(ctx context.Context, sess *session.Session) error {
	r, err := toRow(sess)
	if err != nil {
		return &session.Error{Op: "upsert", Err: err}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return &session.Error{Op: "upsert", Err: err}
	}
	defer tx.Rollback() //nolint:errcheck

	var currentLockVersion sql.NullInt64
	err = tx.GetContext(ctx, &currentLockVersion, `
		SELECT lock_version FROM charon_sessions
		WHERE id = $1 AND user_id = $2 AND type = $3
		FOR UPDATE`,
		r.ID, r.UserID, r.Type)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// No existing row: any lock_version is accepted, matching the
		// Redis module's "absent lock bypasses the check" behavior.
	case err != nil:
		return &session.Error{Op: "upsert", Err: err}
	default:
		expectedPrev := int64(-1)
		if r.LockVersion > 0 {
			expectedPrev = int64(r.LockVersion) - 1
		}
		if currentLockVersion.Int64 != expectedPrev {
			return session.ErrConflict
		}
	}

	if r.RefreshExpiresAt < time.Now().Unix() {
		return tx.Commit()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO charon_sessions (
			id, user_id, type, created_at, refreshed_at, expires_at,
			refresh_expires_at, refresh_token_id, tokens_fresh_from,
			prev_tokens_fresh_from, lock_version, transport, extra_payload
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (user_id, type, id) DO UPDATE SET
			refreshed_at = EXCLUDED.refreshed_at,
			expires_at = EXCLUDED.expires_at,
			refresh_expires_at = EXCLUDED.refresh_expires_at,
			refresh_token_id = EXCLUDED.refresh_token_id,
			tokens_fresh_from = EXCLUDED.tokens_fresh_from,
			prev_tokens_fresh_from = EXCLUDED.prev_tokens_fresh_from,
			lock_version = EXCLUDED.lock_version,
			transport = EXCLUDED.transport,
			extra_payload = EXCLUDED.extra_payload`,
		r.ID, r.UserID, r.Type, r.CreatedAt, r.RefreshedAt, r.ExpiresAt,
		r.RefreshExpiresAt, r.RefreshTokenID, r.TokensFreshFrom,
		r.PrevTokensFreshFrom, r.LockVersion, r.Transport, r.ExtraPayload)
	if err != nil {
		return &session.Error{Op: "upsert", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &session.Error{Op: "upsert", Err: err}
	}

	s.tryPrune(ctx, sess.UserID, sess.Type)
	return nil
}

// Delete implements session.Store.
func (s *Store) Delete(ctx context.Context, sessionID, userID, typ string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM charon_sessions WHERE id = $1 AND user_id = $2 AND type = $3`,
		sessionID, userID, typ)
	if err != nil {
		return &session.Error{Op: "delete", Err: err}
	}
	return nil
}

// GetAll implements session.Store.
func (s *Store) GetAll(ctx context.Context, userID, typ string) ([]*session.Session, error) {
	var rows []row
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, type, created_at, refreshed_at, expires_at,
		       refresh_expires_at, refresh_token_id, tokens_fresh_from,
		       prev_tokens_fresh_from, lock_version, transport, extra_payload
		FROM charon_sessions
		WHERE user_id = $1 AND type = $2 AND refresh_expires_at >= $3`,
		userID, typ, time.Now().Unix())
	if err != nil {
		return nil, &session.Error{Op: "get_all", Err: err}
	}

	sessions := make([]*session.Session, 0, len(rows))
	for _, r := range rows {
		sess, err := fromRow(r)
		if err != nil {
			s.logger.Warn("failed to decode session row", zap.Error(err), zap.String("session_id", r.ID))
			continue
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// DeleteAll implements session.Store.
func (s *Store) DeleteAll(ctx context.Context, userID, typ string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM charon_sessions WHERE user_id = $1 AND type = $2`, userID, typ)
	if err != nil {
		return &session.Error{Op: "delete_all", Err: err}
	}
	_, _ = s.db.ExecContext(ctx, `
		DELETE FROM charon_prune_locks WHERE user_id = $1 AND type = $2`, userID, typ)
	return nil
}

// tryPrune mirrors the Redis module's opportunistic sweep, gated by
// the same 1-hour cooldown, stored in charon_prune_locks instead of a
// Redis key with a TTL.
func (s *Store) tryPrune(ctx context.Context, userID, typ string) {
	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO charon_prune_locks (user_id, type, locked_until)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, type) DO UPDATE SET locked_until = EXCLUDED.locked_until
		WHERE charon_prune_locks.locked_until < $4`,
		userID, typ, now+int64(pruneCooldown.Seconds()), now)
	if err != nil {
		s.logger.Warn("prune lock acquisition failed", zap.Error(err))
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return // cooldown active, skip
	}

	tag, err := s.db.ExecContext(ctx, `
		DELETE FROM charon_sessions WHERE user_id = $1 AND type = $2 AND refresh_expires_at < $3`,
		userID, typ, now)
	if err != nil {
		s.logger.Warn("prune sweep failed", zap.Error(err))
		return
	}
	if n, _ := tag.RowsAffected(); n > 0 {
		s.logger.Debug("pruned stale sessions", zap.Int64("count", n), zap.String("user_id", userID))
	}
}
