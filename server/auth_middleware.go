package server

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/jrsteele09/freight-session/authapi"
	apperrors "github.com/jrsteele09/freight-session/internal/errors"
	"github.com/jrsteele09/freight-session/token"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyClaims stores the validated access token claims
	ContextKeyClaims ContextKey = "claims"
	// ContextKeyAccessToken stores the raw bearer token
	ContextKeyAccessToken ContextKey = "access_token"
)

// ClaimsFromContext returns the claims RequireAuth stored on the request
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(ContextKeyClaims).(*token.Claims)
	return claims, ok
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	tok := strings.TrimSpace(parts[1])
	return tok, tok != ""
}

// RequireAuth validates the Bearer access token and stores its claims in the request context
func (s *Server) RequireAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="freight-admin"`)
				writeJSONError(w, authapi.ErrorUnauthorized, "Missing or malformed Authorization header", http.StatusUnauthorized)
				return
			}

			claims, err := s.auth.Authenticate(raw)
			if err != nil {
				description := "Invalid token"
				switch {
				case apperrors.Is(err, apperrors.ErrTokenExpired):
					description = "Token expired"
				case apperrors.Is(err, apperrors.ErrTokenRevoked):
					description = "Token revoked"
				}
				w.Header().Set("WWW-Authenticate", `Bearer realm="freight-admin", error="invalid_token"`)
				writeJSONError(w, authapi.ErrorUnauthorized, description, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyClaims, claims)
			ctx = context.WithValue(ctx, ContextKeyAccessToken, raw)
			next(w, r.WithContext(ctx))
		}
	}
}

// RequirePermission must be chained after RequireAuth
func (s *Server) RequirePermission(code string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeJSONError(w, authapi.ErrorUnauthorized, "No claims found", http.StatusUnauthorized)
				return
			}
			if !slices.Contains(claims.Permissions, code) {
				writeJSONError(w, authapi.ErrorInsufficientPermission, "Token missing required permission: "+code, http.StatusForbidden)
				return
			}
			next(w, r)
		}
	}
}
