package api

import (
	"net/http"

	"github.com/JaimeStill/loam/pkg/routes"
)

func registerRoutes(
	mux *http.ServeMux,
	domain *Domain,
	runtime *Runtime,
) {
	routes.Register(
		mux,
		domain.Auth.Routes(),
		domain.Status.routes(),
		domain.Captures.Handler(runtime.MaxUploadSize).Routes().With(domain.Gate.Require),
		domain.Submissions.Handler().Routes().With(domain.Gate.Require),
	)
}
