package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/medspa-winback/internal/observability/metrics"
	"github.com/wolfman30/medspa-winback/pkg/logging"
)

func TestSetupMetricsExposesWinbackMetrics(t *testing.T) {
	handler, registry := setupMetrics()
	if handler == nil || registry == nil {
		t.Fatalf("expected non-nil handler and registry")
	}

	m := metrics.NewWinbackMetrics(registry)
	m.ObserveCustomer("sent", "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "medspa_winback_customers_total") {
		t.Fatalf("expected win-back customer counter to be exported")
	}
}

func TestConnectPostgresPoolEmptyURLReturnsNil(t *testing.T) {
	logger := logging.New("error")
	if pool := connectPostgresPool(context.Background(), "", logger); pool != nil {
		t.Fatalf("expected nil pool for empty URL")
	}
}

func TestReadyChecksRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	checks := readyChecks(nil, client)
	if len(checks) != 1 {
		t.Fatalf("expected only the redis check, got %d", len(checks))
	}
	if err := checks["redis"](context.Background()); err != nil {
		t.Fatalf("expected redis check to pass: %v", err)
	}
}
