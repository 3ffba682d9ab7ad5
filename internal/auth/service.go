package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ladiesman540/crane-platform/internal/store"
)

type UserStore interface {
	UserByEmail(ctx context.Context, email string) (*store.User, error)
	UserByID(ctx context.Context, id uuid.UUID) (*store.User, error)
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

type Service struct {
	users  UserStore
	tokens *Tokens
}

func NewService(users UserStore, tokens *Tokens) *Service {
	return &Service{users: users, tokens: tokens}
}

func (s *Service) Tokens() *Tokens { return s.tokens }

// Login checks the password and issues an access/refresh pair. Unknown email
// and wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, error) {
	u, err := s.users.UserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return TokenPair{}, ErrUnauthorized
	}
	if err != nil {
		return TokenPair{}, fmt.Errorf("load user: %w", err)
	}
	if !VerifySecret(password, u.PasswordHash) {
		return TokenPair{}, ErrUnauthorized
	}

	access, err := s.tokens.Issue(u.ID.String(), u.OrgID.String(), KindAccess)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.tokens.Issue(u.ID.String(), u.OrgID.String(), KindRefresh)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"}, nil
}

// Refresh mints a new access token. The subject must still exist; its
// current tenant is used rather than the one in the refresh token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	id, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return "", err
	}
	u, err := s.subject(ctx, id)
	if err != nil {
		return "", err
	}
	return s.tokens.Issue(u.ID.String(), u.OrgID.String(), KindAccess)
}

// Authenticate resolves a bearer access token to the caller's identity. A
// token whose user has been deleted stops working before it expires, and the
// tenant is the user's current one.
func (s *Service) Authenticate(ctx context.Context, token string) (Identity, error) {
	id, err := s.tokens.VerifyAccess(token)
	if err != nil {
		return Identity{}, err
	}
	u, err := s.subject(ctx, id)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Subject: u.ID.String(), Tenant: u.OrgID.String()}, nil
}

func (s *Service) subject(ctx context.Context, id Identity) (*store.User, error) {
	userID, err := uuid.Parse(id.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed subject", ErrUnauthorized)
	}
	u, err := s.users.UserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: user not found", ErrUnauthorized)
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}
