// Package api assembles the API module with all domain systems and route registration.
package api

import (
	"fmt"
	"net/http"

	"github.com/JaimeStill/loam/internal/config"
	"github.com/JaimeStill/loam/internal/infrastructure"
	"github.com/JaimeStill/loam/pkg/middleware"
	"github.com/JaimeStill/loam/pkg/module"
	"github.com/JaimeStill/loam/pkg/openapi"
	"github.com/JaimeStill/loam/pkg/routes"
)

// NewModule creates the API module with all domain handlers and middleware.
// Capture sessions are registered with the lifecycle coordinator so idle
// sessions are reaped and every session is closed at shutdown.
func NewModule(cfg *config.Config, infra *infrastructure.Infrastructure) (*module.Module, error) {
	runtime := NewRuntime(cfg, infra)
	domain, err := NewDomain(runtime)
	if err != nil {
		return nil, err
	}

	if err := domain.Captures.Start(runtime.Lifecycle); err != nil {
		return nil, fmt.Errorf("captures start failed: %w", err)
	}

	spec, err := openapi.MarshalJSON(Spec(cfg))
	if err != nil {
		return nil, fmt.Errorf("marshal openapi spec: %w", err)
	}

	mux := http.NewServeMux()
	registerRoutes(mux, domain, runtime)
	routes.Register(mux, specRoutes(spec))

	m := module.New(cfg.API.BasePath, mux)
	m.Use(
		middleware.CORS(&cfg.API.CORS),
		middleware.Logger(runtime.Infrastructure.Logger),
		middleware.Recover(runtime.Infrastructure.Logger),
	)

	return m, nil
}
