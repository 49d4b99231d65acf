package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/GoCodeAlone/tms/access"
	"github.com/GoCodeAlone/tms/auth"
	"github.com/GoCodeAlone/tms/server/api"
)

// credentials is the body accepted by register and login.
type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// tokenResponse is the body returned by a successful register or login.
type tokenResponse struct {
	Token string `json:"token"`
}

// writeFailure maps err onto the error envelope. Internal errors are
// logged and their text is not exposed.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := api.StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", slog.String("path", r.URL.Path), slog.Any("err", err))
		msg = "an unexpected error occurred"
	}
	api.WriteError(w, status, msg)
}

// handleRegister creates a USER account and returns its first token.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	token, err := s.users.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		s.logger.Warn("registration failed", slog.Any("err", err))
		s.writeFailure(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, tokenResponse{Token: token})
}

// handleLogin validates credentials and issues a token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	token, err := s.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, tokenResponse{Token: token})
}

// handleMe returns the currently authenticated principal.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	api.WriteJSON(w, http.StatusOK, p)
}

// requestToken returns the bearer token. The event stream also accepts
// ?token= because EventSource cannot set headers.
func requestToken(r *http.Request) (string, bool) {
	if token, ok := auth.BearerToken(r.Header.Get("Authorization")); ok {
		return token, true
	}
	if r.URL.Path == "/api/events" {
		if token := r.URL.Query().Get("token"); token != "" {
			return token, true
		}
	}
	return "", false
}

// authMiddleware authenticates every wrapped request and stores the
// principal on its context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := requestToken(r)
		if !ok {
			api.WriteError(w, http.StatusUnauthorized, "missing or invalid Authorization header")
			return
		}
		p, err := s.authn.Authenticate(r.Context(), token)
		if err != nil {
			var msg string
			switch {
			case errors.Is(err, auth.ErrExpired):
				msg = "JWT token expired"
			case errors.Is(err, auth.ErrMalformed):
				msg = "Incorrect JWT token"
			case errors.Is(err, auth.ErrUnknownPrincipal):
				msg = "Email not registered"
			default:
				s.writeFailure(w, r, err)
				return
			}
			s.logger.Warn("authentication failed", slog.String("path", r.URL.Path), slog.Any("err", err))
			api.WriteError(w, http.StatusUnauthorized, msg)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	})
}

// requireAdmin rejects non-admin principals with 403.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := auth.PrincipalFrom(r.Context())
		if err := access.RequireAdmin(p); err != nil {
			s.logger.Warn("admin route denied", slog.Int64("principal", p.ID), slog.String("path", r.URL.Path))
			api.WriteError(w, http.StatusForbidden, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}
