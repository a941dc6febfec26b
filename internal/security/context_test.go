package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSecurityMiddleware(t *testing.T) {
	var seen string
	h := SecurityMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" || rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Errorf("missing security headers: %v", rec.Header())
	}
	generated := rec.Header().Get(RequestIDHeader)
	if len(generated) != 36 || generated != seen {
		t.Errorf("request id %q, handler saw %q", generated, seen)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "caller-id")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get(RequestIDHeader) != "caller-id" || seen != "caller-id" {
		t.Errorf("caller id not propagated: header %q, handler %q", rec.Header().Get(RequestIDHeader), seen)
	}
}

func TestConfigureTLS_Disabled(t *testing.T) {
	cfg, err := ConfigureTLS(TLSConfig{})
	if err != nil || cfg != nil {
		t.Fatalf("expected nil config, got %v, %v", cfg, err)
	}
	if _, err := ConfigureTLS(TLSConfig{Enabled: true, CertFile: "missing.pem", KeyFile: "missing.key"}); err == nil {
		t.Fatal("expected error for missing certificate")
	}
}
