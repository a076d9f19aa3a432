package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"golang.org/x/oauth2"
)

func TestGoogleAuthCodeURL(t *testing.T) {
	p := NewGoogleProvider("client-id", "client-secret", "http://localhost:8000/auth/callback")
	verifier := oauth2.GenerateVerifier()

	target, err := url.Parse(p.AuthCodeURL("state-123", verifier))
	if err != nil {
		t.Fatalf("invalid auth url: %v", err)
	}
	if target.Host != "accounts.google.com" {
		t.Fatalf("unexpected host: %s", target.Host)
	}
	q := target.Query()
	if q.Get("client_id") != "client-id" || q.Get("state") != "state-123" {
		t.Fatalf("unexpected query: %v", q)
	}
	if q.Get("redirect_uri") != "http://localhost:8000/auth/callback" {
		t.Fatalf("unexpected redirect_uri: %s", q.Get("redirect_uri"))
	}
	if q.Get("code_challenge_method") != "S256" || q.Get("code_challenge") == "" {
		t.Fatalf("expected PKCE parameters: %v", q)
	}
}

func newGoogleStub(t *testing.T, tokenStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse token form: %v", err)
		}
		if r.Form.Get("code_verifier") == "" {
			t.Errorf("token request missing code_verifier")
		}
		w.Header().Set("Content-Type", "application/json")
		if tokenStatus != http.StatusOK {
			w.WriteHeader(tokenStatus)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-123",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sub":            "google-123",
			"email":          "alice@example.com",
			"email_verified": true,
			"name":           "Alice",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func stubbedGoogle(srv *httptest.Server) *GoogleProvider {
	return NewGoogleProvider("client-id", "client-secret", "http://localhost:8000/auth/callback").
		WithEndpoints(oauth2.Endpoint{
			AuthURL:  srv.URL + "/auth",
			TokenURL: srv.URL + "/token",
		}, srv.URL+"/userinfo").
		WithHTTPClient(srv.Client())
}

func TestGoogleExchange(t *testing.T) {
	srv := newGoogleStub(t, http.StatusOK)
	p := stubbedGoogle(srv)

	identity, err := p.Exchange(context.Background(), "auth-code", oauth2.GenerateVerifier())
	if err != nil {
		t.Fatalf("Exchange returned error: %v", err)
	}
	if identity.Subject != "google-123" || identity.Email != "alice@example.com" || !identity.EmailVerified {
		t.Fatalf("unexpected identity: %#v", identity)
	}
}

func TestGoogleExchangeRejected(t *testing.T) {
	srv := newGoogleStub(t, http.StatusBadRequest)
	p := stubbedGoogle(srv)

	_, err := p.Exchange(context.Background(), "expired-code", oauth2.GenerateVerifier())
	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %T: %v", err, err)
	}
	if provErr.Code != ProviderCodeExchangeFailed {
		t.Fatalf("unexpected code: %s", provErr.Code)
	}
}

func TestGoogleExchangeMissingCode(t *testing.T) {
	p := NewGoogleProvider("client-id", "client-secret", "http://localhost:8000/auth/callback")

	_, err := p.Exchange(context.Background(), "", "verifier")
	var provErr *ProviderError
	if !errors.As(err, &provErr) || provErr.Code != ProviderCodeMissingCode {
		t.Fatalf("expected missing code error, got %v", err)
	}
}
