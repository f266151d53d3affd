package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/JaimeStill/loam/pkg/auth"
	"github.com/JaimeStill/loam/pkg/routes"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *auth.Config {
	cfg := &auth.Config{DevLogin: true}
	if err := cfg.Finalize(nil); err != nil {
		panic(err)
	}
	return cfg
}

func TestAuthorizeUploadAfterLogin(t *testing.T) {
	ctx := context.Background()
	store := auth.NewMemoryStore(time.Hour)
	gate := auth.NewGate(store, testConfig(), testLogger())

	d, err := gate.Authorize(ctx, "", "/upload")
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed || d.Redirect != "/login" {
		t.Errorf("decision = %+v, want denied with redirect to /login", d)
	}

	s, err := store.Login(ctx, "farmer-1")
	if err != nil {
		t.Fatal(err)
	}

	d, err = gate.Authorize(ctx, s.Token, "/upload")
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed || d.UserID != "farmer-1" {
		t.Errorf("decision = %+v, want allowed for farmer-1", d)
	}

	store.Logout(ctx, s.Token)

	d, _ = gate.Authorize(ctx, s.Token, "/upload")
	if d.Allowed {
		t.Error("authorization must not be cached across logout")
	}
}

func TestProtects(t *testing.T) {
	gate := auth.NewGate(auth.NewMemoryStore(time.Hour), testConfig(), testLogger())

	tests := []struct {
		destination string
		want        bool
	}{
		{"/upload", true},
		{"/upload/live", true},
		{"/results", true},
		{"/uploads", false},
		{"/about", false},
		{"/", false},
	}

	for _, tt := range tests {
		t.Run(tt.destination, func(t *testing.T) {
			if got := gate.Protects(tt.destination); got != tt.want {
				t.Errorf("Protects(%s) = %v, want %v", tt.destination, got, tt.want)
			}
		})
	}
}

func TestUnprotectedAlwaysAllowed(t *testing.T) {
	gate := auth.NewGate(auth.NewMemoryStore(time.Hour), testConfig(), testLogger())

	d, err := gate.Authorize(context.Background(), "", "/about")
	if err != nil || !d.Allowed {
		t.Errorf("decision = %+v, err = %v", d, err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := auth.NewMemoryStore(-time.Second)

	s, err := store.Login(ctx, "farmer-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Current(ctx, s.Token); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Errorf("expired session err = %v", err)
	}
}

func TestNewTokenUnique(t *testing.T) {
	seen := map[string]bool{}
	for range 100 {
		tok, err := auth.NewToken()
		if err != nil {
			t.Fatal(err)
		}
		if len(tok) != 32 {
			t.Fatalf("token length = %d, want 32", len(tok))
		}
		if seen[tok] {
			t.Fatalf("duplicate token %s", tok)
		}
		seen[tok] = true
	}
}

func TestRequireMiddleware(t *testing.T) {
	store := auth.NewMemoryStore(time.Hour)
	gate := auth.NewGate(store, testConfig(), testLogger())

	var seenUser string
	protected := gate.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUser, _ = auth.UserFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("redirects without session", func(t *testing.T) {
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, httptest.NewRequest("GET", "/captures", nil))

		if rec.Code != http.StatusSeeOther {
			t.Errorf("status = %d, want 303", rec.Code)
		}
		if loc := rec.Header().Get("Location"); loc != "/login" {
			t.Errorf("location = %s", loc)
		}
	})

	t.Run("admits cookie session", func(t *testing.T) {
		s, _ := store.Login(context.Background(), "farmer-2")
		req := httptest.NewRequest("GET", "/captures", nil)
		req.AddCookie(&http.Cookie{Name: "loam_session", Value: s.Token})
		rec := httptest.NewRecorder()

		protected.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK || seenUser != "farmer-2" {
			t.Errorf("status = %d, user = %q", rec.Code, seenUser)
		}
	})

	t.Run("admits bearer session", func(t *testing.T) {
		s, _ := store.Login(context.Background(), "farmer-3")
		req := httptest.NewRequest("GET", "/captures", nil)
		req.Header.Set("Authorization", "Bearer "+s.Token)
		rec := httptest.NewRecorder()

		protected.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK || seenUser != "farmer-3" {
			t.Errorf("status = %d, user = %q", rec.Code, seenUser)
		}
	})
}

func setupMux(h *auth.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	routes.Register(mux, h.Routes())
	return mux
}

func TestHandlerLoginFlow(t *testing.T) {
	cfg := testConfig()
	store := auth.NewMemoryStore(time.Hour)
	gate := auth.NewGate(store, cfg, testLogger())
	mux := setupMux(auth.NewHandler(gate, store, auth.DevAuthenticator{}, false, testLogger()))

	authorize := func(cookie *http.Cookie) auth.Decision {
		req := httptest.NewRequest("GET", "/auth/authorize?destination=/upload/manual", nil)
		if cookie != nil {
			req.AddCookie(cookie)
		}
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Header().Get("Cache-Control") != "no-store" {
			t.Error("authorize responses must not be cached")
		}
		var d auth.Decision
		json.NewDecoder(rec.Body).Decode(&d)
		return d
	}

	if d := authorize(nil); d.Allowed {
		t.Fatalf("anonymous decision = %+v", d)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/auth/login", strings.NewReader(`{"user_id":"farmer-1"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body.String())
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || !cookies[0].HttpOnly {
		t.Fatalf("cookies = %+v", cookies)
	}
	session := cookies[0]

	if d := authorize(session); !d.Allowed || d.UserID != "farmer-1" {
		t.Errorf("decision after login = %+v", d)
	}

	req := httptest.NewRequest("GET", "/auth/me", nil)
	req.AddCookie(session)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("me status = %d", rec.Code)
	}

	req = httptest.NewRequest("POST", "/auth/logout", nil)
	req.AddCookie(session)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("logout status = %d", rec.Code)
	}

	if d := authorize(session); d.Allowed {
		t.Error("decision after logout should deny")
	}
}

func TestHandlerLoginRejected(t *testing.T) {
	store := auth.NewMemoryStore(time.Hour)
	gate := auth.NewGate(store, testConfig(), testLogger())
	mux := setupMux(auth.NewHandler(gate, store, auth.DevAuthenticator{}, false, testLogger()))

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed", `{`, http.StatusBadRequest},
		{"missing user", `{}`, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest("POST", "/auth/login", strings.NewReader(tt.body)))
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestOIDCAuthenticatorRejects(t *testing.T) {
	verifier := oidc.NewVerifier(
		"https://issuer.example",
		&oidc.StaticKeySet{},
		&oidc.Config{ClientID: "loam"},
	)
	a := auth.NewOIDCVerifier(verifier)

	for _, token := range []string{"", "not-a-jwt"} {
		if _, err := a.Authenticate(context.Background(), auth.Credentials{IDToken: token}); !errors.Is(err, auth.ErrInvalidCredentials) {
			t.Errorf("Authenticate(%q) err = %v, want ErrInvalidCredentials", token, err)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     auth.Config
		wantErr bool
	}{
		{"dev login", auth.Config{DevLogin: true}, false},
		{"oidc", auth.Config{Issuer: "https://issuer.example", ClientID: "loam"}, false},
		{"issuer without client", auth.Config{Issuer: "https://issuer.example"}, true},
		{"no login method", auth.Config{}, true},
		{"bad ttl", auth.Config{DevLogin: true, SessionTTL: "forever"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Finalize(nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("Finalize() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
