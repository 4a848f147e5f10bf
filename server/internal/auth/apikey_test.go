package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// passHandler writes 200 "ok".
var passHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("ok")) //nolint:errcheck
})

func callWithKey(t *testing.T, mw func(http.Handler) http.Handler, header, key string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications", nil)
	if key != "" {
		req.Header.Set(header, key)
	}
	rec := httptest.NewRecorder()
	mw(passHandler).ServeHTTP(rec, req)
	return rec
}

func TestRequireAPIKey_ModeNone_PassesThrough(t *testing.T) {
	mw := RequireAPIKey("none", "x-api-key", "secret")
	// No key on the request, but mode != "apikey".
	if rec := callWithKey(t, mw, "x-api-key", ""); rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rec.Code)
	}
}

func TestRequireAPIKey_EmptyKey_PassesThrough(t *testing.T) {
	// key="" means auth is not configured → allow all.
	mw := RequireAPIKey("apikey", "x-api-key", "")
	if rec := callWithKey(t, mw, "x-api-key", ""); rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rec.Code)
	}
}

func TestRequireAPIKey_CorrectKey_Passes(t *testing.T) {
	mw := RequireAPIKey("apikey", "x-api-key", "supersecret")
	rec := callWithKey(t, mw, "x-api-key", "supersecret")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body: got %q, want ok", rec.Body.String())
	}
}

func TestRequireAPIKey_WrongKey_Unauthorized(t *testing.T) {
	mw := RequireAPIKey("apikey", "x-api-key", "supersecret")
	if rec := callWithKey(t, mw, "x-api-key", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", rec.Code)
	}
}

func TestRequireAPIKey_MissingHeader_Unauthorized(t *testing.T) {
	mw := RequireAPIKey("apikey", "x-api-key", "supersecret")
	rec := callWithKey(t, mw, "x-api-key", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type: got %q", ct)
	}
}

func TestRequireAPIKey_CustomHeader(t *testing.T) {
	mw := RequireAPIKey("apikey", "x-hub-token", "mytoken")
	if rec := callWithKey(t, mw, "x-hub-token", "mytoken"); rec.Code != http.StatusOK {
		t.Errorf("custom header: got %d, want 200", rec.Code)
	}
	if rec := callWithKey(t, mw, "x-api-key", "mytoken"); rec.Code != http.StatusUnauthorized {
		t.Errorf("default header with custom config: got %d, want 401", rec.Code)
	}
}
