// Package identity persists AuthSessions in PostgreSQL. Tokens are stored
// as SHA-256 digests so a leaked table does not yield usable sessions.
package identity

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/JaimeStill/loam/pkg/auth"
	"github.com/JaimeStill/loam/pkg/lifecycle"
	"github.com/JaimeStill/loam/pkg/repository"
)

// Store is a PostgreSQL-backed auth.Store.
type Store struct {
	db     *sql.DB
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Store whose sessions last ttl.
func New(db *sql.DB, ttl time.Duration, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		ttl:    ttl,
		logger: logger.With("system", "identity"),
		now:    time.Now,
	}
}

// HashToken returns the stored digest of a session token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func scanSession(s repository.Scanner) (auth.Session, error) {
	var a auth.Session
	err := s.Scan(&a.UserID, &a.CreatedAt, &a.ExpiresAt)
	return a, err
}

func (s *Store) Current(ctx context.Context, token string) (*auth.Session, error) {
	if token == "" {
		return nil, auth.ErrSessionNotFound
	}

	q := `
		SELECT user_id, created_at, expires_at
		FROM auth_sessions
		WHERE token_hash = $1 AND expires_at > $2`

	a, err := repository.QueryOne(ctx, s.db, q, []any{HashToken(token), s.now().UTC()}, scanSession)
	if err != nil {
		return nil, repository.MapError(err, auth.ErrSessionNotFound, auth.ErrSessionNotFound)
	}
	a.Token = token
	return &a, nil
}

func (s *Store) Login(ctx context.Context, userID string) (*auth.Session, error) {
	if userID == "" {
		return nil, auth.ErrInvalidCredentials
	}

	token, err := auth.NewToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	now := s.now().UTC()
	q := `
		INSERT INTO auth_sessions(token_hash, user_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING user_id, created_at, expires_at`

	a, err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) (auth.Session, error) {
		return repository.QueryOne(ctx, tx, q, []any{HashToken(token), userID, now, now.Add(s.ttl)}, scanSession)
	})
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	a.Token = token
	s.logger.Info("session started", "user", userID)
	return &a, nil
}

func (s *Store) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	n, err := repository.Exec(ctx, s.db, "DELETE FROM auth_sessions WHERE token_hash = $1", HashToken(token))
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n > 0 {
		s.logger.Info("session ended")
	}
	return nil
}

// Purge deletes expired sessions and returns how many were removed.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	n, err := repository.Exec(ctx, s.db, "DELETE FROM auth_sessions WHERE expires_at <= $1", s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return n, nil
}

// Start registers a startup hook that purges sessions that expired while
// the service was down.
func (s *Store) Start(lc *lifecycle.Coordinator) error {
	lc.OnStartup("sessions", func(ctx context.Context) error {
		n, err := s.Purge(ctx)
		if err != nil {
			s.logger.Warn("expired session purge failed", "error", err)
			return nil
		}
		s.logger.Info("expired sessions purged", "count", n)
		return nil
	})
	return nil
}
