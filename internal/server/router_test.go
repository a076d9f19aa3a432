package server

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/practice-tracker/internal/auth"
	"github.com/yourusername/practice-tracker/internal/config"
	"github.com/yourusername/practice-tracker/internal/logger"
	"github.com/yourusername/practice-tracker/internal/users"
)

func testServerConfig() *config.Config {
	return &config.Config{
		SecretKey:            "test-secret",
		CredentialTTL:        time.Hour,
		StateTTL:             10 * time.Minute,
		GoogleClientID:       "client-id",
		GoogleClientSecret:   "client-secret",
		OAuthRedirectURL:     "http://localhost:8000/auth/callback",
		FrontendOrigin:       "http://localhost:5173",
		PreviewOriginPattern: `^https://.*\.vercel\.app$`,
		GinMode:              gin.TestMode,
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	provider := auth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.OAuthRedirectURL)
	manager := auth.NewManager(cfg, provider, users.NewMemoryStore(), logger.Discard())
	router, err := NewRouter(cfg, manager)
	if err != nil {
		t.Fatalf("NewRouter returned error: %v", err)
	}
	return router
}

func TestHealth(t *testing.T) {
	router := newTestServer(t, testServerConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if body := rec.Body.String(); body != `{"status":"ok"}` {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestLoginRedirectsToGoogle(t *testing.T) {
	router := newTestServer(t, testServerConfig())

	req := httptest.NewRequest(http.MethodGet, "http://api.example.com/login", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	location, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("invalid Location header: %v", err)
	}
	if location.Host != "accounts.google.com" {
		t.Fatalf("unexpected redirect host: %s", location.Host)
	}
	if location.Host == req.Host {
		t.Fatal("redirect must not point back at the application")
	}
}

func TestMeGuest(t *testing.T) {
	router := newTestServer(t, testServerConfig())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if body := rec.Body.String(); body != `{"authenticated":false,"name":"Guest"}` {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestCORS(t *testing.T) {
	router := newTestServer(t, testServerConfig())

	tests := []struct {
		origin  string
		allowed bool
	}{
		{origin: "http://localhost:5173", allowed: true},
		{origin: "https://my-app-git-feature.vercel.app", allowed: true},
		{origin: "http://my-app.vercel.app", allowed: false},
		{origin: "https://evil.example.com", allowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/me", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodGet)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			got := rec.Header().Get("Access-Control-Allow-Origin")
			if tt.allowed {
				if got != tt.origin {
					t.Fatalf("expected origin to be allowed, got %q (status %d)", got, rec.Code)
				}
				if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
					t.Fatal("expected credentials to be allowed")
				}
				return
			}
			if got != "" {
				t.Fatalf("expected origin to be rejected, got %q", got)
			}
		})
	}
}

// forgedCallback は state の合わないコールバックを送ります。
func forgedCallback(router http.Handler, remoteAddr, forwardedFor string) int {
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=x&state=forged", nil)
	req.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec.Code
}

func TestCallbackThrottleIgnoresForwardedForByDefault(t *testing.T) {
	router := newTestServer(t, testServerConfig())

	for i := 0; i < 5; i++ {
		spoofed := "203.0.113." + strconv.Itoa(i+1)
		if code := forgedCallback(router, "192.0.2.1:40000", spoofed); code != http.StatusBadRequest {
			t.Fatalf("attempt %d: unexpected status %d", i, code)
		}
	}

	if code := forgedCallback(router, "192.0.2.1:40001", "203.0.113.99"); code != http.StatusTooManyRequests {
		t.Fatalf("rotating X-Forwarded-For must not avoid the lock, got %d", code)
	}
	if code := forgedCallback(router, "192.0.2.2:40000", ""); code != http.StatusBadRequest {
		t.Fatalf("another client must not be locked, got %d", code)
	}
}

func TestCallbackThrottleUsesForwardedForFromTrustedProxy(t *testing.T) {
	cfg := testServerConfig()
	cfg.TrustedProxies = []string{"10.0.0.0/8"}
	router := newTestServer(t, cfg)

	for i := 0; i < 5; i++ {
		if code := forgedCallback(router, "10.0.0.5:40000", "203.0.113.1"); code != http.StatusBadRequest {
			t.Fatalf("attempt %d: unexpected status %d", i, code)
		}
	}

	if code := forgedCallback(router, "10.0.0.6:40000", "203.0.113.1"); code != http.StatusTooManyRequests {
		t.Fatalf("client behind proxy should be locked, got %d", code)
	}
	if code := forgedCallback(router, "10.0.0.5:40000", "203.0.113.2"); code != http.StatusBadRequest {
		t.Fatalf("other client behind the same proxy must not be locked, got %d", code)
	}
}

func TestNewRouterRejectsInvalidTrustedProxy(t *testing.T) {
	cfg := testServerConfig()
	cfg.TrustedProxies = []string{"not-an-ip"}
	manager := auth.NewManager(cfg, auth.NewGoogleProvider("id", "secret", cfg.OAuthRedirectURL), nil, logger.Discard())

	if _, err := NewRouter(cfg, manager); err == nil {
		t.Fatal("expected error for invalid trusted proxy")
	}
}
