package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ladiesman540/crane-platform/internal/apperr"
	"github.com/ladiesman540/crane-platform/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type accessTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteError(w, apperr.BadRequest("invalid request body"))
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		apperr.WriteError(w, apperr.BadRequest("email and password are required"))
		return
	}

	pair, err := s.opts.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if isUnauthorized(err) {
			apperr.WriteError(w, apperr.Unauthorized("Invalid email or password"))
			return
		}
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		apperr.WriteError(w, apperr.BadRequest("refresh_token is required"))
		return
	}

	access, err := s.opts.Auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if isUnauthorized(err) {
			apperr.WriteError(w, apperr.Unauthorized("Invalid refresh token"))
			return
		}
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accessTokenResponse{AccessToken: access, TokenType: "bearer"})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

type identityKey struct{}

// requireAccessToken admits only access-kind tokens and stores the caller's
// identity for the tenant checks in the handlers.
func (s *Server) requireAccessToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := bearerToken(r)
		if tok == "" {
			apperr.WriteError(w, apperr.Unauthorized("missing bearer token"))
			return
		}
		id, err := s.opts.Auth.Authenticate(r.Context(), tok)
		if err != nil {
			if !isUnauthorized(err) {
				apperr.WriteError(w, apperr.InternalServerError("authentication failed", err))
				return
			}
			apperr.WriteError(w, apperr.Unauthorized("invalid token"))
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
	})
}

func withIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func identityFrom(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(auth.Identity)
	return id, ok
}

func isUnauthorized(err error) bool {
	return errors.Is(err, auth.ErrUnauthorized)
}
