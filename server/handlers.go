package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jrsteele09/freight-session/authapi"
	apperrors "github.com/jrsteele09/freight-session/internal/errors"
	"github.com/rs/zerolog/log"
)

const contentTypeJSON = "application/json; charset=utf-8"

// FeeRow is one line of the base tariff
type FeeRow struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Unit        string `json:"unit"`
}

// BaseFees is the tariff served by /api/fees/base
var BaseFees = []FeeRow{
	{Code: "PICKUP", Description: "Pickup within city limits", AmountCents: 2500, Currency: "EUR", Unit: "shipment"},
	{Code: "LINEHAUL", Description: "Linehaul per kilometre", AmountCents: 95, Currency: "EUR", Unit: "km"},
	{Code: "PALLET", Description: "Standard pallet handling", AmountCents: 1200, Currency: "EUR", Unit: "pallet"},
	{Code: "FUEL", Description: "Fuel surcharge", AmountCents: 1450, Currency: "EUR", Unit: "shipment"},
}

// LoginHandler exchanges username and password for a token pair with the user embedded
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req authapi.LoginRequest
		if err := authapi.DecodeStrict(r.Body, &req); err != nil {
			writeJSONError(w, authapi.ErrorInvalidRequest, "Malformed login request", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Username) == "" || req.Password == "" {
			writeJSONError(w, authapi.ErrorInvalidRequest, "username and password are required", http.StatusBadRequest)
			return
		}

		if s.limiter != nil {
			if ok, retryAfter := s.limiter.reserve(req.Username); !ok {
				s.logger.Warn().Str("user", req.Username).Msg("login throttled")
				writeRateLimited(w, retryAfter)
				return
			}
		}

		resp, err := s.auth.Login(req.Username, req.Password)
		switch {
		case err == nil:
		case apperrors.Is(err, apperrors.ErrInvalidCredentials):
			s.logger.Info().Str("user", req.Username).Msg("login rejected")
			writeJSONError(w, authapi.ErrorInvalidCredentials, "Invalid username or password", http.StatusUnauthorized)
			return
		case apperrors.Is(err, apperrors.ErrUserBlocked):
			writeJSONError(w, authapi.ErrorUserBlocked, "Account is blocked", http.StatusForbidden)
			return
		default:
			log.Error().Err(err).Str("user", req.Username).Msg("[Server LoginHandler] login failed")
			writeJSONError(w, authapi.ErrorServer, "Could not issue tokens", http.StatusInternalServerError)
			return
		}

		s.logger.Info().Str("user", resp.User.Username).Msg("login succeeded")
		writeJSON(w, http.StatusOK, resp)
	}
}

// RefreshHandler rotates the refresh token and issues a new access token
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req authapi.RefreshRequest
		if err := authapi.DecodeStrict(r.Body, &req); err != nil || req.RefreshToken == "" {
			writeJSONError(w, authapi.ErrorInvalidRequest, "refresh_token is required", http.StatusBadRequest)
			return
		}

		resp, err := s.auth.Refresh(req.RefreshToken)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, resp)
		case apperrors.Is(err, apperrors.ErrInvalidRefreshToken),
			apperrors.Is(err, apperrors.ErrRefreshTokenExpired),
			apperrors.Is(err, apperrors.ErrUserBlocked):
			writeJSONError(w, authapi.ErrorInvalidGrant, err.Error(), http.StatusUnauthorized)
		default:
			log.Error().Err(err).Msg("[Server RefreshHandler] refresh failed")
			writeJSONError(w, authapi.ErrorServer, "Could not refresh tokens", http.StatusInternalServerError)
		}
	}
}

// LogoutHandler revokes whatever it is given and always answers 204
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req authapi.LogoutRequest
		_ = authapi.Decode(r.Body, &req)

		accessToken, _ := bearerToken(r)
		s.auth.Logout(req.RefreshToken, accessToken)
		w.WriteHeader(http.StatusNoContent)
	}
}

// MeHandler returns the identity carried by the bearer token
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			writeJSONError(w, authapi.ErrorUnauthorized, "No claims found", http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, claims.Identity())
	}
}

func (s *Server) BaseFeesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"items": BaseFees})
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes an {"error","error_description"} response
func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	writeJSON(w, statusCode, authapi.ErrorResponse{
		Error:            errorCode,
		ErrorDescription: description,
	})
}
