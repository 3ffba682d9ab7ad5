package auth

import (
	"crypto/rand"
	"encoding/base64"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// APIKeyMarker starts every generated API key.
const APIKeyMarker = "crane_"

// PrefixLen is how many characters after the marker are stored in clear to
// narrow verification.
const PrefixLen = 8

func HashSecret(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func VerifySecret(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// GenerateAPIKey returns a new raw key, its lookup prefix and bcrypt hash. The
// raw key is shown once and never stored.
func GenerateAPIKey() (raw, prefix, hash string, err error) {
	buf := make([]byte, 32)
	if _, err = rand.Read(buf); err != nil {
		return "", "", "", err
	}
	raw = APIKeyMarker + base64.RawURLEncoding.EncodeToString(buf)
	hash, err = HashSecret(raw)
	if err != nil {
		return "", "", "", err
	}
	return raw, KeyPrefix(raw), hash, nil
}

// KeyPrefix extracts the lookup prefix from a candidate key, or "" when the
// key does not carry the marker.
func KeyPrefix(candidate string) string {
	if !strings.HasPrefix(candidate, APIKeyMarker) {
		return ""
	}
	rest := strings.TrimPrefix(candidate, APIKeyMarker)
	if len(rest) < PrefixLen {
		return ""
	}
	return rest[:PrefixLen]
}
