package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func containsHeader(headerValue, target string) bool {
	for part := range strings.SplitSeq(headerValue, ",") {
		if strings.EqualFold(strings.TrimSpace(part), target) {
			return true
		}
	}
	return false
}

func TestCORSEchoesOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/customers/1/mzdao", nil)
	req.Header.Set("Origin", "https://shop.limerime.com")
	resp := httptest.NewRecorder()

	CORS()(okHandler()).ServeHTTP(resp, req)

	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "https://shop.limerime.com" {
		t.Fatalf("expected origin to be echoed, got %q", got)
	}
	if exposed := resp.Header().Get("Access-Control-Expose-Headers"); !containsHeader(exposed, "X-Request-Id") {
		t.Fatalf("expected X-Request-Id to be exposed, got %q", exposed)
	}
}

func TestCORSPreflight(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodOptions, "/v1/customers/1/sync", nil)
	req.Header.Set("Origin", "https://shop.limerime.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type, traceparent")
	resp := httptest.NewRecorder()

	CORS()(next).ServeHTTP(resp, req)

	if called {
		t.Fatal("expected preflight to be answered without calling the handler")
	}
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 for preflight, got %d", resp.Code)
	}
	allowHeaders := resp.Header().Get("Access-Control-Allow-Headers")
	for _, h := range []string{"Content-Type", "traceparent"} {
		if !containsHeader(allowHeaders, h) {
			t.Fatalf("expected Access-Control-Allow-Headers to contain %s, got %q", h, allowHeaders)
		}
	}
}

func TestRequestIDGeneratesUUID(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = chimiddleware.GetReqID(r.Context())
	})
	resp := httptest.NewRecorder()

	RequestID()(next).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))

	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("expected a UUID request id, got %q", seen)
	}
	if got := resp.Header().Get(chimiddleware.RequestIDHeader); got != seen {
		t.Fatalf("expected response header %q, got %q", seen, got)
	}
}

func TestRequestIDReusesSafeHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
		reuse  bool
	}{
		{"plain", "req-123", true},
		{"spaces allowed", "req 123", true},
		{"newline", "req\n123", false},
		{"non ascii", "réq", false},
		{"too long", strings.Repeat("a", maxRequestIDLength+1), false},
		{"max length", strings.Repeat("a", maxRequestIDLength), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			req.Header.Set(chimiddleware.RequestIDHeader, tt.header)
			resp := httptest.NewRecorder()

			RequestID()(okHandler()).ServeHTTP(resp, req)

			got := resp.Header().Get(chimiddleware.RequestIDHeader)
			if (got == tt.header) != tt.reuse {
				t.Fatalf("expected reuse=%v, got %q", tt.reuse, got)
			}
		})
	}
}

func TestVaryAddsAccept(t *testing.T) {
	resp := httptest.NewRecorder()
	Vary()(okHandler()).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if got := resp.Header().Get("Vary"); got != "Accept" {
		t.Fatalf("expected Vary: Accept, got %q", got)
	}
}

func TestSecurityHeaders(t *testing.T) {
	resp := httptest.NewRecorder()
	Security("/api-docs")(okHandler()).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))

	for _, kv := range securityHeaders {
		if got := resp.Header().Get(kv[0]); got != kv[1] {
			t.Fatalf("expected %s %q, got %q", kv[0], kv[1], got)
		}
	}
	if resp.Header().Get("Cross-Origin-Resource-Policy") != "" {
		t.Fatal("expected no Cross-Origin-Resource-Policy header")
	}
}

func TestSecuritySkipsDocs(t *testing.T) {
	resp := httptest.NewRecorder()
	Security("/api-docs")(okHandler()).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api-docs", nil))
	if resp.Header().Get("X-Frame-Options") != "" {
		t.Fatal("expected docs to be skipped")
	}
}
