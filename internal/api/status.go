package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/loam/pkg/backend"
	"github.com/JaimeStill/loam/pkg/database"
	"github.com/JaimeStill/loam/pkg/handlers"
	"github.com/JaimeStill/loam/pkg/routes"
	"github.com/JaimeStill/loam/pkg/storage"
)

const statusTimeout = 5 * time.Second

type check struct {
	name string
	run  func(context.Context) error
}

// Status reports reachability of each dependency. Messages are user-facing.
type Status struct {
	Version string            `json:"version"`
	Healthy bool              `json:"healthy"`
	Checks  map[string]string `json:"checks"`
}

type statusHandler struct {
	checks  []check
	version string
	logger  *slog.Logger
}

func newStatusHandler(runtime *Runtime) *statusHandler {
	return &statusHandler{
		checks: []check{
			{name: "backend", run: runtime.Backend.Health},
			{name: "database", run: runtime.Database.Ping},
			{name: "storage", run: runtime.Storage.Ping},
		},
		version: runtime.Version,
		logger:  runtime.Logger.With("handler", "status"),
	}
}

func (h *statusHandler) routes() routes.Group {
	return routes.Group{
		Prefix: "/status",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.status},
		},
	}
}

func (h *statusHandler) status(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), statusTimeout)
	defer cancel()

	results := make([]error, len(h.checks))

	var g errgroup.Group
	for i, c := range h.checks {
		g.Go(func() error {
			results[i] = c.run(ctx)
			return nil
		})
	}
	g.Wait()

	s := Status{
		Version: h.version,
		Healthy: true,
		Checks:  make(map[string]string, len(h.checks)),
	}
	for i, c := range h.checks {
		if err := results[i]; err != nil {
			h.logger.Warn("dependency check failed", "dependency", c.name, "error", err)
			s.Healthy = false
			s.Checks[c.name] = failureMessage(err)
			continue
		}
		s.Checks[c.name] = "ok"
	}

	code := http.StatusOK
	if !s.Healthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Cache-Control", "no-store")
	handlers.RespondJSON(w, code, s)
}

func failureMessage(err error) string {
	var be *backend.Error
	switch {
	case errors.As(err, &be):
		return backend.Message(err)
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	case errors.Is(err, database.ErrNotReady):
		return "not ready"
	case errors.Is(err, storage.ErrUnavailable):
		return "unavailable"
	}
	return "unreachable"
}
