// Package infrastructure provides core service initialization for application startup.
// It assembles common dependencies (logging, database, storage, the prediction
// service client and session store) that domain systems require.
package infrastructure

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/JaimeStill/loam/internal/config"
	"github.com/JaimeStill/loam/internal/identity"
	"github.com/JaimeStill/loam/pkg/backend"
	"github.com/JaimeStill/loam/pkg/database"
	"github.com/JaimeStill/loam/pkg/lifecycle"
	"github.com/JaimeStill/loam/pkg/storage"
)

// Infrastructure holds the core systems required by all domain modules.
// It provides a single point of initialization for lifecycle coordination,
// logging, database access, file storage, and the prediction service.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Database  database.System
	Storage   storage.System
	Backend   backend.Client
	Sessions  *identity.Store
}

// New creates an Infrastructure from the application configuration.
// It initializes all systems but does not start them; call Start separately.
func New(cfg *config.Config) (*Infrastructure, error) {
	lc := lifecycle.New()
	logger := slog.New(cfg.LogHandler(os.Stderr))

	db, err := database.New(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}

	store, err := storage.New(&cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("storage init failed: %w", err)
	}

	client := backend.NewHTTPClient(backend.Options{
		BaseURL:   cfg.Backend.BaseURL,
		Endpoints: cfg.Backend.Endpoints(),
		Timeout:   cfg.Backend.TimeoutDuration(),
		Logger:    logger,
	})

	sessions := identity.New(
		db.Connection(),
		cfg.Auth.SessionTTLDuration(),
		logger,
	)

	return &Infrastructure{
		Lifecycle: lc,
		Logger:    logger,
		Database:  db,
		Storage:   store,
		Backend:   client,
		Sessions:  sessions,
	}, nil
}

// Start registers all infrastructure systems with the lifecycle coordinator.
// Database, storage and session hooks are registered for startup and
// shutdown coordination.
func (i *Infrastructure) Start() error {
	if err := i.Database.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("database start failed: %w", err)
	}
	if err := i.Storage.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("storage start failed: %w", err)
	}
	if err := i.Sessions.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("session store start failed: %w", err)
	}
	return nil
}
