package authmw

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
})

func serve(h http.Handler, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/items", http.NoBody)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBearerToken_ValidToken(t *testing.T) {
	t.Parallel()

	h := BearerToken("secret-token-123")(okHandler)

	tests := []struct {
		name string
		auth string
	}{
		{"canonical", "Bearer secret-token-123"},
		{"lowercase scheme", "bearer secret-token-123"},
		{"trailing space", "Bearer secret-token-123 "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if rec := serve(h, tt.auth); rec.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
			}
		})
	}
}

func TestBearerToken_Rejected(t *testing.T) {
	t.Parallel()

	h := BearerToken("correct-token")(okHandler)

	tests := []struct {
		name string
		auth string
		body string
	}{
		{"missing header", "", "malformed"},
		{"basic auth", "Basic dXNlcjpwYXNz", "malformed"},
		{"no scheme", "correct-token", "malformed"},
		{"wrong token", "Bearer wrong-token", "invalid token"},
		{"partial match", "Bearer correct", "invalid token"},
		{"token with suffix", "Bearer correct-token-extra", "invalid token"},
		{"empty token", "Bearer ", "invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := serve(h, tt.auth)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
			}
			if got := rec.Header().Get("WWW-Authenticate"); got != realm {
				t.Errorf("WWW-Authenticate = %q, want %q", got, realm)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			if !strings.Contains(rec.Body.String(), tt.body) {
				t.Errorf("body = %q, want substring %q", rec.Body.String(), tt.body)
			}
		})
	}
}

func TestBearerToken_EmptyExpectedRejectsAll(t *testing.T) {
	t.Parallel()

	h := BearerToken("")(okHandler)
	for _, auth := range []string{"Bearer ", "Bearer x", ""} {
		if rec := serve(h, auth); rec.Code != http.StatusUnauthorized {
			t.Errorf("auth %q: status = %d, want %d", auth, rec.Code, http.StatusUnauthorized)
		}
	}
}

func TestBearerToken_PassesRequestThrough(t *testing.T) {
	t.Parallel()

	var called bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusAccepted)
	})

	h := BearerToken("tok")(inner)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/publish", http.NoBody)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if !called {
		t.Error("inner handler was not called")
	}
	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}
}
