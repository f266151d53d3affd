package api

import (
	"time"

	"github.com/JaimeStill/loam/internal/config"
	"github.com/JaimeStill/loam/internal/infrastructure"
	"github.com/JaimeStill/loam/pkg/auth"
	"github.com/JaimeStill/loam/pkg/pagination"
)

// Runtime extends Infrastructure with API-specific configuration.
type Runtime struct {
	*infrastructure.Infrastructure
	Pagination    pagination.Config
	Auth          auth.Config
	Camera        config.CameraConfig
	IdleTimeout   time.Duration
	MaxUploadSize int64
	Version       string
}

// NewRuntime creates an API runtime with a module-scoped logger.
func NewRuntime(cfg *config.Config, infra *infrastructure.Infrastructure) *Runtime {
	return &Runtime{
		Infrastructure: &infrastructure.Infrastructure{
			Lifecycle: infra.Lifecycle,
			Logger:    infra.Logger.With("module", "api"),
			Database:  infra.Database,
			Storage:   infra.Storage,
			Backend:   infra.Backend,
			Sessions:  infra.Sessions,
		},
		Pagination:    cfg.API.Pagination,
		Auth:          cfg.Auth,
		Camera:        cfg.Camera,
		IdleTimeout:   cfg.API.SessionIdleTimeoutDuration(),
		MaxUploadSize: cfg.API.MaxUploadSizeBytes(),
		Version:       cfg.Version,
	}
}
