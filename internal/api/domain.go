package api

import (
	"fmt"
	"log/slog"

	"github.com/JaimeStill/loam/internal/captures"
	"github.com/JaimeStill/loam/internal/config"
	"github.com/JaimeStill/loam/internal/submissions"
	"github.com/JaimeStill/loam/pkg/auth"
	"github.com/JaimeStill/loam/pkg/camera"
	"github.com/JaimeStill/loam/pkg/capture"
)

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Captures    captures.System
	Submissions submissions.System
	Gate        *auth.Gate
	Auth        *auth.Handler
	Status      *statusHandler
}

// NewDomain creates all domain systems from the API runtime. When an OIDC
// issuer is configured its discovery document is fetched here.
func NewDomain(runtime *Runtime) (*Domain, error) {
	submissionsSystem := submissions.New(
		runtime.Database.Connection(),
		runtime.Storage,
		runtime.Logger,
		runtime.Pagination,
	)

	capturesSystem := captures.New(captures.Options{
		Backend:     runtime.Backend,
		Camera:      cameraFactory(runtime.Camera, runtime.Logger),
		Recorder:    submissionsSystem,
		IdleTimeout: runtime.IdleTimeout,
		Logger:      runtime.Logger,
	})

	authn, err := authenticator(runtime)
	if err != nil {
		return nil, err
	}

	gate := auth.NewGate(runtime.Sessions, &runtime.Auth, runtime.Logger)

	return &Domain{
		Captures:    capturesSystem,
		Submissions: submissionsSystem,
		Gate:        gate,
		Auth: auth.NewHandler(
			gate,
			runtime.Sessions,
			authn,
			runtime.Auth.CookieSecure,
			runtime.Logger,
		),
		Status: newStatusHandler(runtime),
	}, nil
}

func authenticator(runtime *Runtime) (auth.Authenticator, error) {
	if runtime.Auth.Issuer == "" {
		return auth.DevAuthenticator{}, nil
	}

	a, err := auth.NewOIDCAuthenticator(
		runtime.Lifecycle.Context(),
		runtime.Auth.Issuer,
		runtime.Auth.ClientID,
	)
	if err != nil {
		return nil, fmt.Errorf("oidc authenticator: %w", err)
	}
	return a, nil
}

func cameraFactory(cfg config.CameraConfig, logger *slog.Logger) capture.CameraFactory {
	var device camera.Device
	switch cfg.Device {
	case config.CameraDeviceHTTP:
		device = camera.NewHTTPDevice(cfg.SnapshotURL, cfg.AcquireTimeoutDuration())
	default:
		device = camera.Unavailable{Reason: "no camera configured"}
	}

	opts := camera.Options{
		Width:          cfg.Width,
		Height:         cfg.Height,
		AcquireTimeout: cfg.AcquireTimeoutDuration(),
		Logger:         logger,
	}
	return func() *camera.Session {
		return camera.New(device, opts)
	}
}
