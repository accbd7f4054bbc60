package redis

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// KeyGetter resolves the HMAC key used for at-rest integrity checking
// of stored session blobs (spec.md §4.B: "each serialized session is
// prefixed with an HMAC over its bytes, using a key obtained from a
// configurable getter"). It has the same method shape as
// token.KeyGetter so a host can share one StaticKeyGetter between the
// Token Factory and the Store without this package importing token.
type KeyGetter interface {
	CurrentKey(ctx context.Context) (keyID string, key []byte, err error)
	Key(ctx context.Context, keyID string) (key []byte, err error)
}

// wireRecord is the JSON envelope actually stored in the session hash.
// Body carries the marshaled sessionDTO; MAC authenticates it.
type wireRecord struct {
	KeyID string `json:"k"`
	MAC   string `json:"m"` // base64url HMAC-SHA256 over Body
	Body  string `json:"b"` // base64url JSON of sessionDTO
}

func sealSession(ctx context.Context, keys KeyGetter, dto sessionDTO) (string, error) {
	plain, err := json.Marshal(dto)
	if err != nil {
		return "", fmt.Errorf("redis store: marshal session: %w", err)
	}

	keyID, key, err := keys.CurrentKey(ctx)
	if err != nil {
		return "", fmt.Errorf("redis store: resolve integrity key: %w", err)
	}

	mac := computeMAC(key, plain)
	rec := wireRecord{
		KeyID: keyID,
		MAC:   base64.RawURLEncoding.EncodeToString(mac),
		Body:  base64.RawURLEncoding.EncodeToString(plain),
	}
	blob, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("redis store: marshal wire record: %w", err)
	}
	return string(blob), nil
}

// openSession verifies and decodes a stored blob. A verification
// failure (bad MAC, unknown key, malformed envelope) is treated as
// "does not exist" per spec.md §4.B — it returns (nil, false), not an
// error, and the caller is expected to log it.
func openSession(ctx context.Context, keys KeyGetter, blob string) (*sessionDTO, bool) {
	var rec wireRecord
	if err := json.Unmarshal([]byte(blob), &rec); err != nil {
		return nil, false
	}

	key, err := keys.Key(ctx, rec.KeyID)
	if err != nil {
		return nil, false
	}

	plain, err := base64.RawURLEncoding.DecodeString(rec.Body)
	if err != nil {
		return nil, false
	}
	wantMAC, err := base64.RawURLEncoding.DecodeString(rec.MAC)
	if err != nil {
		return nil, false
	}
	if subtle.ConstantTimeCompare(computeMAC(key, plain), wantMAC) != 1 {
		return nil, false
	}

	var dto sessionDTO
	if err := json.Unmarshal(plain, &dto); err != nil {
		return nil, false
	}
	return &dto, true
}

func computeMAC(key, body []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return mac.Sum(nil)
}
