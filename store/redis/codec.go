package redis

import (
	"time"

	"github.com/UpperCi/charon/session"
)

// sessionDTO is the JSON-friendly, epoch-second view of session.Session
// (spec.md §3's field list is defined in epoch seconds throughout).
// ExpiresAt of 0 means Infinite.
type sessionDTO struct {
	ID                  string                 `json:"id"`
	UserID              string                 `json:"user_id"`
	Type                string                 `json:"type"`
	CreatedAt           int64                  `json:"created_at"`
	RefreshedAt         int64                  `json:"refreshed_at"`
	ExpiresAt           int64                  `json:"expires_at"`
	RefreshExpiresAt    int64                  `json:"refresh_expires_at"`
	RefreshTokenID      string                 `json:"refresh_token_id"`
	TokensFreshFrom     int64                  `json:"tokens_fresh_from"`
	PrevTokensFreshFrom int64                  `json:"prev_tokens_fresh_from"`
	LockVersion         uint64                 `json:"lock_version"`
	Transport           string                 `json:"transport"`
	ExtraPayload        map[string]interface{} `json:"extra_payload,omitempty"`
}

func toDTO(s *session.Session) sessionDTO {
	expiresAt := int64(0)
	if !session.IsInfinite(s.ExpiresAt) {
		expiresAt = s.ExpiresAt.Unix()
	}
	prevFresh := int64(0)
	if s.HasPrevGeneration() {
		prevFresh = s.PrevTokensFreshFrom.Unix()
	}
	return sessionDTO{
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
		ExtraPayload:        s.ExtraPayload,
	}
}

func fromDTO(dto sessionDTO) *session.Session {
	expiresAt := session.Infinite
	if dto.ExpiresAt != 0 {
		expiresAt = time.Unix(dto.ExpiresAt, 0)
	}
	prevFresh := time.Time{}
	if dto.PrevTokensFreshFrom != 0 {
		prevFresh = time.Unix(dto.PrevTokensFreshFrom, 0)
	}
	return &session.Session{
		ID:                  dto.ID,
		UserID:              dto.UserID,
		Type:                dto.Type,
		CreatedAt:           time.Unix(dto.CreatedAt, 0),
		RefreshedAt:         time.Unix(dto.RefreshedAt, 0),
		ExpiresAt:           expiresAt,
		RefreshExpiresAt:    time.Unix(dto.RefreshExpiresAt, 0),
		RefreshTokenID:      dto.RefreshTokenID,
		TokensFreshFrom:     time.Unix(dto.TokensFreshFrom, 0),
		PrevTokensFreshFrom: prevFresh,
		LockVersion:         dto.LockVersion,
		Transport:           dto.Transport,
		ExtraPayload:        dto.ExtraPayload,
	}
}
