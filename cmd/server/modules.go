package main

import (
	"fmt"
	"net/http"

	"github.com/JaimeStill/loam/internal/api"
	"github.com/JaimeStill/loam/internal/config"
	"github.com/JaimeStill/loam/internal/infrastructure"
	"github.com/JaimeStill/loam/pkg/handlers"
	"github.com/JaimeStill/loam/pkg/lifecycle"
	"github.com/JaimeStill/loam/pkg/module"
)

// newRouter mounts every module under its prefix and registers the
// liveness and readiness probes on the root mux.
func newRouter(infra *infrastructure.Infrastructure, cfg *config.Config) (*module.Router, error) {
	apiModule, err := api.NewModule(cfg, infra)
	if err != nil {
		return nil, fmt.Errorf("api module: %w", err)
	}

	router := module.NewRouter()
	router.Mount(apiModule)
	registerProbes(router, infra.Lifecycle)
	return router, nil
}

func registerProbes(router *module.Router, lc *lifecycle.Coordinator) {
	router.HandleNative("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		handlers.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	router.HandleNative("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		if lc.Ready() {
			handlers.RespondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
			return
		}
		handlers.RespondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	})
}
