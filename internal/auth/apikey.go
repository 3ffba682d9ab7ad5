package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ladiesman540/crane-platform/internal/store"
)

type KeyStore interface {
	ActiveAPIKeys(ctx context.Context, prefix string) ([]store.APIKey, error)
	APIKeyByID(ctx context.Context, id uuid.UUID) (*store.APIKey, error)
}

// APIKeyVerifier authenticates gateway API keys. A cold lookup bcrypt-compares
// the candidate against every active key sharing its prefix; a successful
// match is cached by digest so later calls cost one indexed read. Cached ids
// are always re-read so revocation takes effect immediately.
type APIKeyVerifier struct {
	keys  KeyStore
	cache KeyCache
}

func NewAPIKeyVerifier(keys KeyStore, cache KeyCache) *APIKeyVerifier {
	return &APIKeyVerifier{keys: keys, cache: cache}
}

func (v *APIKeyVerifier) Verify(ctx context.Context, candidate string) (*store.APIKey, error) {
	if candidate == "" {
		return nil, ErrUnauthorized
	}
	d := digest(candidate)

	if v.cache != nil {
		if id, ok := v.cache.Get(ctx, d); ok {
			k, err := v.keys.APIKeyByID(ctx, id)
			switch {
			case err == nil && !k.Revoked():
				return k, nil
			case err != nil && !errors.Is(err, store.ErrNotFound):
				return nil, fmt.Errorf("load cached api key: %w", err)
			}
			v.cache.Delete(ctx, d)
		}
	}

	keys, err := v.keys.ActiveAPIKeys(ctx, KeyPrefix(candidate))
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	for i := range keys {
		k := &keys[i]
		if k.Revoked() {
			continue
		}
		if VerifySecret(candidate, k.KeyHash) {
			if v.cache != nil {
				v.cache.Set(ctx, d, k.ID)
			}
			slog.Debug("api key verified", "key_id", k.ID, "label", k.Label)
			return k, nil
		}
	}
	return nil, ErrUnauthorized
}
