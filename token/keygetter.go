package token

import (
	"context"
	"sync"
)

// KeyGetter resolves signing keys by ID, and names the key that should
// be used for new signatures. Keeping this as an interface — rather
// than a bare []byte on the Factory — is what spec.md §4.A means by
// "obtained from a configurable getter to permit rotation without
// recompilation": a host can swap in a KMS-backed getter without
// touching the Factory.
type KeyGetter interface {
	// CurrentKey returns the key ID and key material to sign with now.
	CurrentKey(ctx context.Context) (keyID string, key []byte, err error)

	// Key resolves a specific key ID, e.g. one named in a token's
	// header during verification of an older, not-yet-rotated-out key.
	Key(ctx context.Context, keyID string) (key []byte, err error)
}

// StaticKeyGetter is a fixed, in-memory KeyGetter: one current key ID
// plus a lookup table of every key still accepted for verification
// (so a rotation can keep honoring tokens signed under the previous
// key until they age out naturally).
type StaticKeyGetter struct {
	mu        sync.RWMutex
	currentID string
	keys      map[string][]byte
}

// NewStaticKeyGetter builds a StaticKeyGetter with a single active key.
func NewStaticKeyGetter(keyID string, key []byte) *StaticKeyGetter {
	return &StaticKeyGetter{
		currentID: keyID,
		keys:      map[string][]byte{keyID: append([]byte(nil), key...)},
	}
}

// Rotate installs a new current signing key while keeping the previous
// one resolvable for verification.
func (g *StaticKeyGetter) Rotate(keyID string, key []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.currentID = keyID
	g.keys[keyID] = append([]byte(nil), key...)
}

func (g *StaticKeyGetter) CurrentKey(ctx context.Context) (string, []byte, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	key, ok := g.keys[g.currentID]
	if !ok {
		return "", nil, ErrUnknownKey
	}
	return g.currentID, key, nil
}

func (g *StaticKeyGetter) Key(ctx context.Context, keyID string) ([]byte, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	key, ok := g.keys[keyID]
	if !ok {
		return nil, ErrUnknownKey
	}
	return key, nil
}
