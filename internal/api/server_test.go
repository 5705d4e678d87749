package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/wesm/mailquery/internal/config"
	"github.com/wesm/mailquery/internal/governor"
	"github.com/wesm/mailquery/internal/query/querytest"
	"github.com/wesm/mailquery/internal/scheduler"
)

// testLogger returns a logger for tests that only shows errors.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default(t.TempDir())
	cfg.Connection.MaxRetries = 1
	cfg.Connection.RetryDelaySeconds = 0
	return cfg
}

// mockScheduler implements JobScheduler for tests.
type mockScheduler struct {
	running  bool
	statuses []scheduler.JobStatus
}

func (m *mockScheduler) Status() []scheduler.JobStatus { return m.statuses }
func (m *mockScheduler) IsRunning() bool               { return m.running }

// staticHealth implements HealthReporter.
type staticHealth governor.ConnectionInfo

func (h staticHealth) Info() governor.ConnectionInfo { return governor.ConnectionInfo(h) }

func serve(srv *Server, method, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestHealthEndpointWithoutMonitor(t *testing.T) {
	srv := NewServer(testConfig(t), Deps{Engine: &querytest.MockEngine{}}, testLogger())

	w := serve(srv, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("GET /health status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("health status = %q, want 'ok'", resp["status"])
	}
}

func TestHealthEndpointReportsConnection(t *testing.T) {
	checked := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		status governor.ConnectionStatus
		want   int
	}{
		{governor.StatusConnected, http.StatusOK},
		{governor.StatusUnknown, http.StatusOK},
		{governor.StatusReconnecting, http.StatusOK},
		{governor.StatusDisconnected, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			health := staticHealth{
				Status:     tt.status,
				Healthy:    tt.status == governor.StatusConnected,
				LastCheck:  &checked,
				MaxRetries: 3,
				RetryDelay: "1s",
			}
			srv := NewServer(testConfig(t), Deps{Engine: &querytest.MockEngine{}, Health: health}, testLogger())

			w := serve(srv, "GET", "/health", nil)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			var info governor.ConnectionInfo
			if err := json.NewDecoder(w.Body).Decode(&info); err != nil {
				t.Fatal(err)
			}
			if info.Status != tt.status || info.MaxRetries != 3 || info.LastCheck == nil {
				t.Errorf("info = %+v", info)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := NewServer(testConfig(t), Deps{Engine: &querytest.MockEngine{}}, testLogger())
	serve(srv, "GET", "/api/v1/search?q=hello", nil)

	w := serve(srv, "GET", "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "mailquery_") {
		t.Errorf("metrics output lacks mailquery_ series:\n%.500s", w.Body.String())
	}
}

func TestAuthMiddleware(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.APIKey = "secret-key"
	srv := NewServer(cfg, Deps{Engine: &querytest.MockEngine{}}, testLogger())

	tests := []struct {
		name       string
		header     map[string]string
		wantStatus int
	}{
		{"no auth", nil, http.StatusUnauthorized},
		{"wrong key", map[string]string{"Authorization": "wrong-key"}, http.StatusUnauthorized},
		{"bearer prefix", map[string]string{"Authorization": "Bearer secret-key"}, http.StatusOK},
		{"x-api-key header", map[string]string{"X-API-Key": "secret-key"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(srv, "GET", "/api/v1/folders", tt.header)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}

	// Health stays open.
	if w := serve(srv, "GET", "/health", nil); w.Code != http.StatusOK {
		t.Errorf("GET /health with auth configured = %d", w.Code)
	}
}

func TestAuthMiddlewareNoKeyConfigured(t *testing.T) {
	srv := NewServer(testConfig(t), Deps{Engine: &querytest.MockEngine{}}, testLogger())
	if w := serve(srv, "GET", "/api/v1/folders", nil); w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d when no API key configured", w.Code, http.StatusOK)
	}
}

func TestSchedulerStatusEndpoint(t *testing.T) {
	sched := &mockScheduler{
		running: true,
		statuses: []scheduler.JobStatus{{
			Name:     "connection-health",
			Schedule: "@every 1m",
			NextRun:  time.Now().Add(time.Minute),
		}},
	}
	srv := NewServer(testConfig(t), Deps{Engine: &querytest.MockEngine{}, Scheduler: sched}, testLogger())

	w := serve(srv, "GET", "/api/v1/scheduler/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp SchedulerStatusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Running || len(resp.Jobs) != 1 || resp.Jobs[0].Name != "connection-health" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestSchedulerStatusWithoutScheduler(t *testing.T) {
	srv := NewServer(testConfig(t), Deps{Engine: &querytest.MockEngine{}}, testLogger())
	w := serve(srv, "GET", "/api/v1/scheduler/status", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"jobs":[]`) {
		t.Errorf("status = %d body = %s", w.Code, w.Body.String())
	}
}

func TestRateLimitApplied(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.RateLimitQPS = 0.001
	cfg.Server.RateLimitBurst = 2
	srv := NewServer(cfg, Deps{Engine: &querytest.MockEngine{}}, testLogger())

	for i := range 2 {
		if w := serve(srv, "GET", "/health", nil); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, w.Code)
		}
	}
	w := serve(srv, "GET", "/health", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
}

func TestStartRefusesInsecureBind(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.BindAddr = "0.0.0.0"
	srv := NewServer(cfg, Deps{Engine: &querytest.MockEngine{}}, testLogger())
	if err := srv.Start(); err == nil || !strings.Contains(err.Error(), "api_key") {
		t.Errorf("Start() = %v, want api_key error", err)
	}
}
