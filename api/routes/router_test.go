package routes

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/retailops-backend/api/controllers"
	"github.com/angelmondragon/retailops-backend/internal/catalog"
	"github.com/angelmondragon/retailops-backend/pkg/config"
	"github.com/angelmondragon/retailops-backend/pkg/db/dbtest"
	"github.com/angelmondragon/retailops-backend/pkg/metrics"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		API: config.APIConfig{CORSOrigins: []string{"http://localhost:3000"}},
	}
}

func newTestRouter(t *testing.T, deps Dependencies) http.Handler {
	t.Helper()
	if deps.Config == nil {
		deps.Config = testConfig()
	}
	return NewRouter(deps)
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	router := newTestRouter(t, Dependencies{
		ReadyCheck: map[string]controllers.Pinger{"db": stubPinger{}, "redis": stubPinger{}},
	})

	live := serve(router, http.MethodGet, "/health/live", "")
	if live.Code != http.StatusOK {
		t.Fatalf("expected live 200, got %d", live.Code)
	}
	if got := live.Header().Get("X-RetailOps-Env"); got != "test" {
		t.Fatalf("expected env header, got %q", got)
	}
	if live.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}

	ready := serve(router, http.MethodGet, "/health/ready", "")
	if ready.Code != http.StatusOK {
		t.Fatalf("expected ready 200, got %d: %s", ready.Code, ready.Body.String())
	}
}

func TestReadyReportsFailingDependency(t *testing.T) {
	router := newTestRouter(t, Dependencies{
		ReadyCheck: map[string]controllers.Pinger{"redis": stubPinger{err: errors.New("connection refused")}},
	})

	rec := serve(router, http.MethodGet, "/health/ready", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"dependency":"redis"`) {
		t.Fatalf("expected failing dependency in details: %s", rec.Body.String())
	}
}

func TestMetricsEndpointExposesRouteHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	router := newTestRouter(t, Dependencies{
		Gatherer: reg,
		HTTP:     metrics.NewHTTPMetrics(reg),
	})

	serve(router, http.MethodGet, "/health/live", "")
	rec := serve(router, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected metrics 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `route="/health/live"`) {
		t.Fatalf("expected route label in metrics output:\n%s", rec.Body.String())
	}
}

func TestUnwiredServicesAnswerInternalError(t *testing.T) {
	router := newTestRouter(t, Dependencies{})

	cases := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodGet, "/api/v1/inventory/stock?variant_id=9b2f8c1e-5d4a-4e3b-8c7d-6a5b4c3d2e1f&location_id=9b2f8c1e-5d4a-4e3b-8c7d-6a5b4c3d2e1f", ""},
		{http.MethodGet, "/api/v1/orders", ""},
		{http.MethodGet, "/api/v1/admin/dlq", ""},
		{http.MethodPost, "/api/v1/webhooks/trendyol", "{}"},
	}
	for _, tc := range cases {
		rec := serve(router, tc.method, tc.path, tc.body)
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("%s %s: expected 500, got %d", tc.method, tc.path, rec.Code)
		}
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	router := newTestRouter(t, Dependencies{})
	if rec := serve(router, http.MethodGet, "/api/v1/nope", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCORSPreflightAllowsConfiguredOrigin(t *testing.T) {
	router := newTestRouter(t, Dependencies{})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/inventory/adjustments", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Idempotency-Key")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("expected allowed origin, got %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/inventory/adjustments", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allowed origin %q", got)
	}
}

func TestCatalogRoutesReachService(t *testing.T) {
	client := dbtest.New(t)
	catalogSvc, err := catalog.NewService(catalog.NewRepository(client.DB()))
	if err != nil {
		t.Fatalf("catalog service: %v", err)
	}
	router := newTestRouter(t, Dependencies{Catalog: catalogSvc})

	rec := serve(router, http.MethodPost, "/api/v1/locations", `{"code":"IST-1","name":"Istanbul Depot"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = serve(router, http.MethodGet, "/api/v1/locations", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "IST-1") {
		t.Fatalf("expected listed location, got %d: %s", rec.Code, rec.Body.String())
	}
}
