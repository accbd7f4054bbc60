// Package token implements the Token Factory (spec.md §4.A): signs and
// structurally verifies the opaque bearer tokens the rest of Charon
// treats as three base64url segments, header.payload.signature.
//
// Signing is built on github.com/golang-jwt/jwt/v5, the same library
// the teacher's internal/utils/jwt and internal/domain/service/token_service.go
// use for access/refresh tokens. golang-jwt's compact serialization is
// exactly the header.payload.signature form spec.md §4.A and §6
// require, so the Signature Transport (§4.E) can split a signed token
// on its last "." instead of Charon reimplementing JOSE framing.
package token

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Factory signs and verifies Charon's bearer tokens.
type Factory struct {
	keys KeyGetter
}

// NewFactory builds a Factory backed by the given KeyGetter.
func NewFactory(keys KeyGetter) *Factory {
	return &Factory{keys: keys}
}

// reservedClaims are the claim names spec.md §4.A mandates; ExtraPayload
// merge must not be allowed to clobber them.
var reservedClaims = map[string]struct{}{
	"iat": {}, "nbf": {}, "exp": {}, "iss": {}, "sub": {},
	"sid": {}, "type": {}, "styp": {}, "jti": {},
}

// Sign builds and signs a token carrying in's claims, merging in.Extra
// into the payload for anything not a reserved claim name.
func (f *Factory) Sign(ctx context.Context, in SignInput) (string, error) {
	keyID, key, err := f.keys.CurrentKey(ctx)
	if err != nil {
		return "", fmt.Errorf("token: resolve signing key: %w", err)
	}

	claims := jwt.MapClaims{
		"iat":  in.IssuedAt,
		"nbf":  in.NotBefore,
		"exp":  in.ExpiresAt,
		"iss":  in.Issuer,
		"sub":  in.Subject,
		"sid":  in.SessionID,
		"type": string(in.Type),
		"styp": in.SessionType,
		"jti":  in.TokenID,
	}
	for k, v := range in.Extra {
		if _, reserved := reservedClaims[k]; reserved {
			continue
		}
		claims[k] = v
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tok.Header["kid"] = keyID

	signed, err := tok.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

// Verify checks the token's structural form and signature only — it
// never inspects claim semantics (that is the Pipeline's job, spec.md
// §4.D). A token that round-trips here may still be expired, not-yet-
// valid, or missing every claim the Pipeline requires.
func (f *Factory) Verify(ctx context.Context, tokenString string) (*Payload, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation(), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	var keyErr error
	tok, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		key, kerr := f.keys.Key(ctx, kid)
		if kerr != nil {
			keyErr = ErrUnknownKey
			return nil, keyErr
		}
		return key, nil
	})
	if keyErr != nil {
		return nil, keyErr
	}
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformed
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrBadSignature
		case errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, ErrMalformed
		default:
			return nil, ErrMalformed
		}
	}
	if tok == nil || !tok.Valid {
		return nil, ErrBadSignature
	}

	return payloadFromClaims(claims), nil
}

func payloadFromClaims(m jwt.MapClaims) *Payload {
	p := &Payload{Extra: map[string]interface{}{}}

	if v, ok := claimString(m, "iss"); ok {
		p.Issuer = v
	}
	if v, ok := claimString(m, "sub"); ok {
		p.Subject = v
	}
	if v, ok := claimString(m, "sid"); ok {
		p.SessionID = v
	}
	if v, ok := claimString(m, "styp"); ok {
		p.SessionType = v
	}
	if v, ok := claimString(m, "jti"); ok {
		p.TokenID = v
	}
	if v, ok := claimString(m, "type"); ok {
		p.Type = v
	}
	if v, ok := claimNumeric(m, "iat"); ok {
		p.HasIssuedAt, p.IssuedAt = true, v
	}
	if v, ok := claimNumeric(m, "nbf"); ok {
		p.HasNotBefore, p.NotBefore = true, v
	}
	if v, ok := claimNumeric(m, "exp"); ok {
		p.HasExpiresAt, p.ExpiresAt = true, v
	}

	for k, v := range m {
		if _, reserved := reservedClaims[k]; reserved {
			continue
		}
		p.Extra[k] = v
	}
	return p
}

// claimString coerces a claim to a string regardless of whether the
// original JSON held a string or a number — spec.md §3 allows user_id
// to be "string or integer", and scenario tables in spec.md §8 feed in
// sub as a bare integer.
func claimString(m jwt.MapClaims, key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return fmt.Sprintf("%d", int64(t)), true
	default:
		return fmt.Sprintf("%v", t), true
	}
}

func claimNumeric(m jwt.MapClaims, key string) (int64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case int64:
		return t, true
	case int:
		return int64(t), true
	default:
		return 0, false
	}
}
