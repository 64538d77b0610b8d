package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wolfman30/medspa-winback/internal/winback"
	"github.com/wolfman30/medspa-winback/pkg/logging"
)

type noopSettings struct{}

func (noopSettings) Get(_ context.Context, tenantID string) (*winback.Settings, error) {
	return winback.DefaultSettings(tenantID), nil
}

func (noopSettings) Save(_ context.Context, s *winback.Settings) (*winback.Settings, error) {
	return s.Validate()
}

func newTestRouter(t *testing.T, checks map[string]HealthChecker) http.Handler {
	t.Helper()
	logger := logging.Default()
	return New(&Config{
		Logger:          logger,
		Winback:         winback.NewHandler(noopSettings{}, nil, nil, logger),
		AdminAuthSecret: "admin-secret",
		SchedulerSecret: "scheduler-secret",
		MetricsHandler:  http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }),
		Checks:          checks,
	})
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterReadyReportsFailingDependency(t *testing.T) {
	router := newTestRouter(t, map[string]HealthChecker{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, rr.Code)
	}
	var resp struct {
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Checks["postgres"] != "ok" || resp.Checks["redis"] != "connection refused" {
		t.Fatalf("unexpected checks %#v", resp.Checks)
	}
}

func TestRouterAdminRoutesRequireJWT(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/orgs/org-1/winback/settings", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
}

func TestRouterSchedulerRoutesRequireSecret(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/winback/run", nil)
	req.Header.Set("X-Winback-Secret", "wrong")
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
}
