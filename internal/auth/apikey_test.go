package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ladiesman540/crane-platform/internal/store"
)

type fakeKeys struct {
	keys      []store.APIKey
	listCalls int
	lastPfx   string
}

func (f *fakeKeys) ActiveAPIKeys(_ context.Context, prefix string) ([]store.APIKey, error) {
	f.listCalls++
	f.lastPfx = prefix
	var out []store.APIKey
	for _, k := range f.keys {
		if k.RevokedAt != nil {
			continue
		}
		if prefix != "" && k.Prefix != "" && k.Prefix != prefix {
			continue
		}
		out = append(out, k)
	}
	return out, nil
}

func (f *fakeKeys) APIKeyByID(_ context.Context, id uuid.UUID) (*store.APIKey, error) {
	for i := range f.keys {
		if f.keys[i].ID == id {
			k := f.keys[i]
			return &k, nil
		}
	}
	return nil, store.ErrNotFound
}

func newKey(t *testing.T, label string) (string, store.APIKey) {
	t.Helper()
	raw, prefix, hash, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return raw, store.APIKey{ID: uuid.New(), OrgID: uuid.New(), KeyHash: hash, Prefix: prefix, Label: label}
}

func TestGenerateAPIKeyShape(t *testing.T) {
	raw, prefix, hash, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.HasPrefix(raw, APIKeyMarker) {
		t.Fatalf("expected marker, got %q", raw)
	}
	if len(prefix) != PrefixLen || KeyPrefix(raw) != prefix {
		t.Fatalf("unexpected prefix %q for %q", prefix, raw)
	}
	if !VerifySecret(raw, hash) || VerifySecret(raw+"x", hash) {
		t.Fatalf("hash does not match raw key")
	}
	if KeyPrefix("legacy-key") != "" || KeyPrefix("crane_abc") != "" {
		t.Fatalf("expected empty prefix for unmarked or short keys")
	}
}

func TestVerifyAcceptsActiveKey(t *testing.T) {
	raw, k := newKey(t, "gateway-1")
	_, other := newKey(t, "gateway-2")
	keys := &fakeKeys{keys: []store.APIKey{other, k}}
	v := NewAPIKeyVerifier(keys, nil)

	got, err := v.Verify(context.Background(), raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.ID != k.ID {
		t.Fatalf("expected key %s, got %s", k.ID, got.ID)
	}
	if keys.lastPfx != k.Prefix {
		t.Fatalf("expected lookup narrowed by prefix %q, got %q", k.Prefix, keys.lastPfx)
	}
}

func TestVerifyRejectsUnknownAndEmpty(t *testing.T) {
	_, k := newKey(t, "gateway-1")
	v := NewAPIKeyVerifier(&fakeKeys{keys: []store.APIKey{k}}, nil)

	if _, err := v.Verify(context.Background(), ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected empty key rejected, got %v", err)
	}
	if _, err := v.Verify(context.Background(), "crane_notarealkeyatall"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unknown key rejected, got %v", err)
	}
}

func TestVerifyRejectsRevokedKey(t *testing.T) {
	raw, k := newKey(t, "gateway-1")
	at := time.Now()
	k.RevokedAt = &at
	v := NewAPIKeyVerifier(&fakeKeys{keys: []store.APIKey{k}}, NewMemoryCache(time.Minute))

	if _, err := v.Verify(context.Background(), raw); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected revoked key rejected, got %v", err)
	}
}

func TestVerifyCacheHitSkipsScanButHonoursRevocation(t *testing.T) {
	raw, k := newKey(t, "gateway-1")
	keys := &fakeKeys{keys: []store.APIKey{k}}
	v := NewAPIKeyVerifier(keys, NewMemoryCache(time.Minute))
	ctx := context.Background()

	if _, err := v.Verify(ctx, raw); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	if _, err := v.Verify(ctx, raw); err != nil {
		t.Fatalf("cached verify: %v", err)
	}
	if keys.listCalls != 1 {
		t.Fatalf("expected one scan, got %d", keys.listCalls)
	}

	at := time.Now()
	keys.keys[0].RevokedAt = &at
	if _, err := v.Verify(ctx, raw); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected revoked key rejected despite cache, got %v", err)
	}
}

func TestVerifyLegacyKeyWithoutPrefix(t *testing.T) {
	hash, err := HashSecret("legacy-plain-key")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	k := store.APIKey{ID: uuid.New(), KeyHash: hash, Label: "legacy"}
	v := NewAPIKeyVerifier(&fakeKeys{keys: []store.APIKey{k}}, nil)

	got, err := v.Verify(context.Background(), "legacy-plain-key")
	if err != nil {
		t.Fatalf("verify legacy: %v", err)
	}
	if got.ID != k.ID {
		t.Fatalf("expected legacy key, got %s", got.ID)
	}
}

func TestMemoryCacheExpires(t *testing.T) {
	c := NewMemoryCache(time.Millisecond)
	ctx := context.Background()
	id := uuid.New()
	c.Set(ctx, "d", id)
	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get(ctx, "d"); ok {
		t.Fatalf("expected entry to expire")
	}
}
