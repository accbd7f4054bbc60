package pipeline

import (
	"time"

	"github.com/UpperCi/charon/autherr"
	"github.com/UpperCi/charon/token"
)

// validateTemporalClaims is stage 3 (spec.md §4.D): nbf must exist and
// be ≤ now; exp must exist and be ≥ now (a token whose exp equals the
// current second still passes). Missing claims and out-of-range
// claims are distinct failures (scenario 3's table exercises both).
func validateTemporalClaims(p *token.Payload) error {
	if !p.HasNotBefore {
		return autherr.ClaimNotFound("nbf")
	}
	now := time.Now().Unix()
	if p.NotBefore > now {
		return autherr.ErrNotYetValid
	}
	if !p.HasExpiresAt {
		return autherr.ClaimNotFound("exp")
	}
	if p.ExpiresAt < now {
		return autherr.ErrExpired
	}
	return nil
}

// validateKind is stage 4 (spec.md §4.D): type must exist and match
// the endpoint's expected kind.
func validateKind(p *token.Payload, expected token.Kind) error {
	if p.Type == "" {
		return autherr.ClaimNotFound("type")
	}
	if p.Type != string(expected) {
		return autherr.ErrTypeInvalid
	}
	return nil
}
