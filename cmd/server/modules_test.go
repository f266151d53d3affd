package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/JaimeStill/loam/pkg/lifecycle"
	"github.com/JaimeStill/loam/pkg/module"
)

func TestProbes(t *testing.T) {
	lc := lifecycle.New()
	router := module.NewRouter()
	registerProbes(router, lc)

	probe := func(path string) (int, string) {
		t.Helper()
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		var body map[string]string
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("%s: decode: %v", path, err)
		}
		return rec.Code, body["status"]
	}

	if code, status := probe("/healthz"); code != http.StatusOK || status != "ok" {
		t.Errorf("healthz = %d %q, want 200 ok", code, status)
	}
	if code, status := probe("/readyz"); code != http.StatusServiceUnavailable || status != "not ready" {
		t.Errorf("readyz before startup = %d %q, want 503 not ready", code, status)
	}

	if err := lc.WaitForStartup(); err != nil {
		t.Fatalf("startup: %v", err)
	}
	if code, status := probe("/readyz"); code != http.StatusOK || status != "ready" {
		t.Errorf("readyz after startup = %d %q, want 200 ready", code, status)
	}
}
