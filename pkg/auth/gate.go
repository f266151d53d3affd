package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// Decision is the outcome of one authorization.
type Decision struct {
	Allowed  bool   `json:"allowed"`
	Redirect string `json:"redirect,omitempty"`
	UserID   string `json:"user_id,omitempty"`
}

// Gate restricts protected destinations to requests with a live session.
type Gate struct {
	store      Store
	loginPath  string
	protected  []string
	cookieName string
	logger     *slog.Logger
}

// NewGate creates a Gate over store using cfg's login path, protected
// destinations and cookie name.
func NewGate(store Store, cfg *Config, logger *slog.Logger) *Gate {
	return &Gate{
		store:      store,
		loginPath:  cfg.LoginPath,
		protected:  cfg.Protected,
		cookieName: cfg.CookieName,
		logger:     logger.With("system", "auth"),
	}
}

// LoginPath returns the login destination.
func (g *Gate) LoginPath() string {
	return g.loginPath
}

// CookieName returns the session cookie name.
func (g *Gate) CookieName() string {
	return g.cookieName
}

// Protects reports whether destination requires a session. A destination
// is protected when it equals a protected path or lies beneath one.
func (g *Gate) Protects(destination string) bool {
	for _, p := range g.protected {
		if destination == p || strings.HasPrefix(destination, strings.TrimSuffix(p, "/")+"/") {
			return true
		}
	}
	return false
}

// Authorize decides whether the session identified by token may navigate to
// destination. The store is consulted on every call.
func (g *Gate) Authorize(ctx context.Context, token, destination string) (Decision, error) {
	if !g.Protects(destination) {
		d := Decision{Allowed: true}
		if s, err := g.current(ctx, token); err == nil {
			d.UserID = s.UserID
		}
		return d, nil
	}

	s, err := g.current(ctx, token)
	if errors.Is(err, ErrSessionNotFound) {
		g.logger.Debug("navigation denied", "destination", destination)
		return Decision{Allowed: false, Redirect: g.loginPath}, nil
	}
	if err != nil {
		return Decision{Allowed: false, Redirect: g.loginPath}, err
	}

	return Decision{Allowed: true, UserID: s.UserID}, nil
}

// Require returns middleware that admits only requests carrying a live
// session. Other requests are redirected to the login destination with
// 303 See Other. The user id is stored on the request context.
func (g *Gate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := g.current(r.Context(), g.Token(r))
		if err != nil {
			if !errors.Is(err, ErrSessionNotFound) {
				g.logger.Error("session lookup failed", "error", err)
			}
			w.Header().Set("Cache-Control", "no-store")
			http.Redirect(w, r, g.loginPath, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), s.UserID)))
	})
}

// Token extracts the session token from the request cookie or a bearer
// Authorization header.
func (g *Gate) Token(r *http.Request) string {
	if c, err := r.Cookie(g.cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

func (g *Gate) current(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}
	return g.store.Current(ctx, token)
}
