package postgres

import (
	"encoding/json"
	"time"

	"github.com/UpperCi/charon/session"
)

// row is the sqlx-scanned shape of charon_sessions, mirroring
// sessionDTO from store/redis but with jsonb extra_payload handled via
// []byte instead of a base64 envelope — Postgres already gives us
// column-level integrity, so there is no HMAC wrapper here (spec.md
// §4.B's at-rest integrity requirement is specific to the reference
// Redis module's untrusted-blob-in-a-KV-store threat model).
type row struct {
	ID                  string `db:"id"`
	UserID              string `db:"user_id"`
	Type                string `db:"type"`
	CreatedAt           int64  `db:"created_at"`
	RefreshedAt         int64  `db:"refreshed_at"`
	ExpiresAt           int64  `db:"expires_at"`
	RefreshExpiresAt    int64  `db:"refresh_expires_at"`
	RefreshTokenID      string `db:"refresh_token_id"`
	TokensFreshFrom     int64  `db:"tokens_fresh_from"`
	PrevTokensFreshFrom int64  `db:"prev_tokens_fresh_from"`
	LockVersion         uint64 `db:"lock_version"`
	Transport           string `db:"transport"`
	ExtraPayload        []byte `db:"extra_payload"`
}

func toRow(s *session.Session) (row, error) {
	expiresAt := int64(0)
	if !session.IsInfinite(s.ExpiresAt) {
		expiresAt = s.ExpiresAt.Unix()
	}
	prevFresh := int64(0)
	if s.HasPrevGeneration() {
		prevFresh = s.PrevTokensFreshFrom.Unix()
	}
	extra := s.ExtraPayload
	if extra == nil {
		extra = map[string]interface{}{}
	}
	payload, err := json.Marshal(extra)
	if err != nil {
		return row{}, err
	}
	return row{
		ID:                  s.ID,
		UserID:              s.UserID,
		Type:                s.Type,
		CreatedAt:           s.CreatedAt.Unix(),
		RefreshedAt:         s.RefreshedAt.Unix(),
		ExpiresAt:           expiresAt,
		RefreshExpiresAt:    s.RefreshExpiresAt.Unix(),
		RefreshTokenID:      s.RefreshTokenID,
		TokensFreshFrom:     s.TokensFreshFrom.Unix(),
		PrevTokensFreshFrom: prevFresh,
		LockVersion:         s.LockVersion,
		Transport:           s.Transport,
		ExtraPayload:        payload,
	}, nil
}

func fromRow(r row) (*session.Session, error) {
	expiresAt := session.Infinite
	if r.ExpiresAt != 0 {
		expiresAt = time.Unix(r.ExpiresAt, 0)
	}
	prevFresh := time.Time{}
	if r.PrevTokensFreshFrom != 0 {
		prevFresh = time.Unix(r.PrevTokensFreshFrom, 0)
	}
	var extra map[string]interface{}
	if len(r.ExtraPayload) > 0 {
		if err := json.Unmarshal(r.ExtraPayload, &extra); err != nil {
			return nil, err
		}
	}
	return &session.Session{
		ID:                  r.ID,
		UserID:              r.UserID,
		Type:                r.Type,
		CreatedAt:           time.Unix(r.CreatedAt, 0),
		RefreshedAt:         time.Unix(r.RefreshedAt, 0),
		ExpiresAt:           expiresAt,
		RefreshExpiresAt:    time.Unix(r.RefreshExpiresAt, 0),
		RefreshTokenID:      r.RefreshTokenID,
		TokensFreshFrom:     time.Unix(r.TokensFreshFrom, 0),
		PrevTokensFreshFrom: prevFresh,
		LockVersion:         r.LockVersion,
		Transport:           r.Transport,
		ExtraPayload:        extra,
	}, nil
}
