package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/JaimeStill/loam/pkg/handlers"
	"github.com/JaimeStill/loam/pkg/routes"
)

type loginResponse struct {
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Handler provides the login, logout and authorize endpoints.
type Handler struct {
	gate   *Gate
	store  Store
	authn  Authenticator
	secure bool
	logger *slog.Logger
}

// NewHandler creates a Handler. secure marks the session cookie Secure.
func NewHandler(gate *Gate, store Store, authn Authenticator, secure bool, logger *slog.Logger) *Handler {
	return &Handler{
		gate:   gate,
		store:  store,
		authn:  authn,
		secure: secure,
		logger: logger.With("handler", "auth"),
	}
}

// Routes returns the route group definition for auth endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/auth",
		Routes: []routes.Route{
			{Method: "POST", Pattern: "/login", Handler: h.Login},
			{Method: "POST", Pattern: "/logout", Handler: h.Logout},
			{Method: "GET", Pattern: "/me", Handler: h.Me},
			{Method: "GET", Pattern: "/authorize", Handler: h.Authorize},
		},
	}
}

// Login verifies credentials, establishes a session and sets the cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var creds Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errors.New("invalid login request"))
		return
	}

	userID, err := h.authn.Authenticate(r.Context(), creds)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	s, err := h.store.Login(r.Context(), userID)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.gate.CookieName(),
		Value:    s.Token,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	h.logger.Info("session established", "user", userID)
	handlers.RespondJSON(w, http.StatusOK, loginResponse{
		UserID:    s.UserID,
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt,
	})
}

// Logout ends the current session and clears the cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := h.gate.Token(r); token != "" {
		if err := h.store.Logout(r.Context(), token); err != nil {
			handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.gate.CookieName(),
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the current session or 401.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	token := h.gate.Token(r)
	if token == "" {
		handlers.RespondError(w, h.logger, http.StatusUnauthorized, ErrUnauthenticated)
		return
	}

	s, err := h.store.Current(r.Context(), token)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			err = ErrUnauthenticated
		}
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	handlers.RespondJSON(w, http.StatusOK, s)
}

// Authorize evaluates the destination query parameter against the gate.
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	destination := r.URL.Query().Get("destination")
	if destination == "" {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errors.New("destination required"))
		return
	}

	d, err := h.gate.Authorize(r.Context(), h.gate.Token(r), destination)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	handlers.RespondJSON(w, http.StatusOK, d)
}
