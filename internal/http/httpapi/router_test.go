package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/AppleLamps/gptveo/internal/http/handlers"
	"github.com/AppleLamps/gptveo/internal/infra"
)

func newTestApp() *handlers.App {
	return &handlers.App{
		Logger: zerolog.Nop(),
		Config: &infra.Config{
			Bucket:              "my-videos",
			OutputPrefix:        "veo_outputs",
			LibraryDefaultLimit: 20,
			LibraryMaxLimit:     100,
			DefaultLocale:       "en",
		},
	}
}

func TestRouterCoreRoutes(t *testing.T) {
	router := NewRouter(newTestApp(), nil)

	testCases := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantType   string
	}{
		{"health", "GET", "/v1/healthz", http.StatusOK, "application/json"},
		{"openapi json", "GET", "/v1/openapi.json", http.StatusOK, "application/json; charset=utf-8"},
		{"docs", "GET", "/v1/docs", http.StatusOK, "text/html; charset=utf-8"},
		{"unknown route", "GET", "/nope", http.StatusNotFound, ""},
		{"wrong method", "POST", "/v1/healthz", http.StatusMethodNotAllowed, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tc.wantStatus)
			}
			if tc.wantType != "" && rr.Header().Get("Content-Type") != tc.wantType {
				t.Fatalf("content type = %q, want %q", rr.Header().Get("Content-Type"), tc.wantType)
			}
		})
	}
}

func TestRouterSetsRequestID(t *testing.T) {
	router := NewRouter(newTestApp(), nil)

	req := httptest.NewRequest("GET", "/v1/healthz", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID response header")
	}
}

func TestRouterServesMetrics(t *testing.T) {
	router := NewRouter(newTestApp(), nil)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Fatalf("expected Prometheus runtime metrics in the scrape output")
	}
}

func TestRouterLocalizesErrors(t *testing.T) {
	router := NewRouter(newTestApp(), nil)

	// History is not configured, so the handler answers 503; the message
	// should follow the Accept-Language header through the i18n middleware.
	req := httptest.NewRequest("GET", "/v1/generations", nil)
	req.Header.Set("Accept-Language", "id-ID")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503; body=%s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error.Code != "history_unavailable" {
		t.Fatalf("code = %q", resp.Error.Code)
	}
	if !strings.Contains(resp.Error.Message, "riwayat") {
		t.Fatalf("message = %q, want Indonesian text", resp.Error.Message)
	}
}
