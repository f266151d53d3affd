// Package auth gates protected capture and result destinations behind a
// live AuthSession.
//
// The identity store is an external collaborator behind the Store
// interface. The Gate reads it on every authorization; decisions are never
// cached because a session may begin or end between two navigations.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"time"
)

var (
	ErrUnauthenticated    = errors.New("not logged in")
	ErrSessionNotFound    = errors.New("session not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// MapHTTPStatus maps auth errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrUnauthenticated) || errors.Is(err, ErrSessionNotFound) {
		return http.StatusUnauthorized
	}
	if errors.Is(err, ErrInvalidCredentials) {
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// Session is an established AuthSession.
type Session struct {
	Token     string    `json:"-"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session has lapsed at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Store is the persistent identity store.
type Store interface {
	// Current returns the live session for token, or ErrSessionNotFound.
	Current(ctx context.Context, token string) (*Session, error)
	// Login establishes a new session for userID.
	Login(ctx context.Context, userID string) (*Session, error)
	// Logout ends the session for token. Ending an unknown session is not
	// an error.
	Logout(ctx context.Context, token string) error
}

// NewToken returns a random 192-bit session token.
func NewToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

type contextKey struct{}

// WithUser returns a copy of ctx carrying userID.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// UserFrom returns the authenticated user carried by ctx.
func UserFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}
