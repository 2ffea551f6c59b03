package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected metrics handler to return 200, got %d", rr.Code)
	}
	return rr.Body.String()
}

func TestCollectorRecordsHTTPMetrics(t *testing.T) {
	collector, err := NewCollector()
	if err != nil {
		t.Fatalf("NewCollector returned error: %v", err)
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	rr := httptest.NewRecorder()
	collector.InstrumentHandler(handler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("unexpected status code: %d", rr.Code)
	}

	body := scrape(t, collector)
	if !strings.Contains(body, `inclusioncast_http_requests_total{method="GET",path="/test",status="202"} 1`) {
		t.Fatalf("requests_total metric not recorded, body=%q", body)
	}
	if !strings.Contains(body, `inclusioncast_http_request_duration_seconds_count{method="GET",path="/test",status="202"} 1`) {
		t.Fatalf("request_duration_seconds_count metric not recorded, body=%q", body)
	}
}

func TestCollectorUsesRoutePattern(t *testing.T) {
	collector, err := NewCollector()
	if err != nil {
		t.Fatalf("NewCollector returned error: %v", err)
	}

	r := chi.NewRouter()
	r.Use(collector.InstrumentHandler)
	r.Get("/api/indicators/{code}", func(w http.ResponseWriter, r *http.Request) {})

	for _, code := range []string{"A", "B"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/indicators/"+code, nil))
	}

	body := scrape(t, collector)
	if !strings.Contains(body, `inclusioncast_http_requests_total{method="GET",path="/api/indicators/{code}",status="200"} 2`) {
		t.Fatalf("route pattern label not used, body=%q", body)
	}
}

func TestCollectorObserveRun(t *testing.T) {
	collector, err := NewCollector()
	if err != nil {
		t.Fatalf("NewCollector returned error: %v", err)
	}

	collector.ObserveRun(OutcomeOK, 15, 2*time.Millisecond)
	collector.ObserveRun(OutcomeOK, 15, time.Millisecond)
	collector.ObserveRun(OutcomeError, 0, time.Millisecond)

	body := scrape(t, collector)
	for _, want := range []string{
		`inclusioncast_forecast_runs_total{outcome="ok"} 2`,
		`inclusioncast_forecast_runs_total{outcome="error"} 1`,
		`inclusioncast_forecast_rows_total 30`,
		`inclusioncast_forecast_run_duration_seconds_count 3`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in body=%q", want, body)
		}
	}
}
