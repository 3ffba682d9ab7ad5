package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrUnauthorized = errors.New("unauthorized")

type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// Claims is the payload of both token kinds. Type keeps an access token from
// being replayed as a refresh token and vice versa.
type Claims struct {
	OrgID string    `json:"org_id"`
	Type  TokenKind `json:"type"`
	jwt.RegisteredClaims
}

// Identity is what a verified token asserts.
type Identity struct {
	Subject string
	Tenant  string
}

type Tokens struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokens(secret string, accessTTL, refreshTTL time.Duration) *Tokens {
	return &Tokens{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

func (t *Tokens) Issue(subject, tenant string, kind TokenKind) (string, error) {
	var ttl time.Duration
	switch kind {
	case KindAccess:
		ttl = t.accessTTL
	case KindRefresh:
		ttl = t.refreshTTL
	default:
		return "", fmt.Errorf("unknown token kind %q", kind)
	}

	now := t.now()
	claims := Claims{
		OrgID: tenant,
		Type:  kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

func (t *Tokens) VerifyAccess(token string) (Identity, error) {
	return t.verify(token, KindAccess)
}

// VerifyRefresh only accepts refresh tokens; callers use the result to mint a
// new access token, never to authorize a resource directly.
func (t *Tokens) VerifyRefresh(token string) (Identity, error) {
	return t.verify(token, KindRefresh)
}

func (t *Tokens) verify(tokenStr string, want TokenKind) (Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(_ *jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !token.Valid {
		return Identity{}, ErrUnauthorized
	}
	if claims.Type != want {
		return Identity{}, fmt.Errorf("%w: token type %q", ErrUnauthorized, claims.Type)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrUnauthorized)
	}
	return Identity{Subject: claims.Subject, Tenant: claims.OrgID}, nil
}
