// Package crypto holds the relay's symmetric encryption layer: per-user key
// derivation and AES-CBC blob framing.
package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"golang.org/x/crypto/hkdf"

	"github.com/dtroode/secret-relay/internal/model"
)

const (
	// KeySize is the length of derived keys (AES-256).
	KeySize = 32
	// MinSecretSize is the shortest accepted server secret.
	MinSecretSize = 16
)

var kdfSalt = []byte("secret-relay/user-key/v1")

// ErrWeakSecret is returned for a missing or too short server secret.
var ErrWeakSecret = errors.New("server secret is too short")

var _ model.KeyDeriver = (*KeyDeriver)(nil)

// KeyDeriver derives per-user keys with HKDF-SHA256 over the server secret.
// The user identifier goes into the HKDF info, so keys are never computed
// from public input alone.
type KeyDeriver struct {
	mu         sync.RWMutex
	secret     []byte
	generation uint64
	cache      map[string]model.Key
}

// KeyDeriverOption configures a KeyDeriver.
type KeyDeriverOption func(*KeyDeriver)

// WithCache memoizes derived keys until the secret is rotated.
func WithCache() KeyDeriverOption {
	return func(d *KeyDeriver) {
		d.cache = make(map[string]model.Key)
	}
}

// NewKeyDeriver creates a KeyDeriver bound to secret.
func NewKeyDeriver(secret []byte, opts ...KeyDeriverOption) (*KeyDeriver, error) {
	if len(secret) < MinSecretSize {
		return nil, ErrWeakSecret
	}

	d := &KeyDeriver{secret: slices.Clone(secret)}
	for _, opt := range opts {
		opt(d)
	}

	return d, nil
}

// DeriveKey returns the key of userID. The result is the same for the same
// userID as long as the secret does not change.
func (d *KeyDeriver) DeriveKey(userID string) model.Key {
	d.mu.RLock()
	if key, ok := d.cache[userID]; ok {
		d.mu.RUnlock()
		return slices.Clone(key)
	}
	secret, generation := d.secret, d.generation
	d.mu.RUnlock()

	key := deriveKey(secret, userID)

	if d.cache != nil {
		d.mu.Lock()
		// a rotation in between makes this key stale
		if d.generation == generation {
			d.cache[userID] = slices.Clone(key)
		}
		d.mu.Unlock()
	}

	return key
}

// Rotate replaces the server secret and drops every cached key.
func (d *KeyDeriver) Rotate(secret []byte) error {
	if len(secret) < MinSecretSize {
		return ErrWeakSecret
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.secret = slices.Clone(secret)
	d.generation++
	if d.cache != nil {
		clear(d.cache)
	}

	return nil
}

// CachedKeys returns the number of memoized keys.
func (d *KeyDeriver) CachedKeys() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.cache)
}

func deriveKey(secret []byte, userID string) model.Key {
	r := hkdf.New(sha256.New, secret, kdfSalt, []byte(userID))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		// hkdf only fails past 255*32 bytes of output
		panic(fmt.Sprintf("failed to derive key: %v", err))
	}
	return key
}
