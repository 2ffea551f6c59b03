package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/inclusioncast/internal/config"
	"github.com/rewired-gh/inclusioncast/internal/impact"
	"github.com/rewired-gh/inclusioncast/internal/metrics"
	"github.com/rewired-gh/inclusioncast/internal/models"
)

func val(v float64) *float64 { return &v }

func testDataset() *models.Dataset {
	var records []models.Record
	for i, v := range []float64{10, 20, 30, 40} {
		records = append(records, models.Record{
			RecordID:      "REC_" + string(rune('A'+i)),
			RecordType:    models.RecordTypeObservation,
			IndicatorCode: "X",
			Year:          2018 + i,
			Value:         val(v),
		})
	}
	records = append(records,
		models.Record{RecordID: "REC_Y", RecordType: models.RecordTypeObservation, IndicatorCode: "Y", Year: 2021, Value: val(95)},
		models.Record{RecordID: "EVT_1", RecordType: models.RecordTypeEvent,
			ObservationDate: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)},
	)
	return &models.Dataset{
		Records:      records,
		Observations: models.ObservationsFromRecords(records),
		Impacts: []models.ImpactLink{
			models.NewImpactLink("EVT_1", "X", "high", "increase", 0),
		},
	}
}

func newTestServer(t *testing.T, opts Options) (*Server, *metrics.Collector) {
	t.Helper()
	collector, err := metrics.NewCollector()
	require.NoError(t, err)
	if opts.Impact.Ramp == 0 {
		opts.Impact = impact.DefaultConfig()
	}
	if opts.Years == nil {
		opts.Years = []int{2022, 2023}
	}
	s, err := New(config.ServerConfig{Addr: "127.0.0.1:0"}, testDataset(), opts, collector)
	require.NoError(t, err)
	return s, collector
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestNew_Validates(t *testing.T) {
	_, err := New(config.ServerConfig{}, nil, Options{Impact: impact.DefaultConfig()}, nil)
	assert.Error(t, err)

	_, err = New(config.ServerConfig{}, testDataset(), Options{Impact: impact.Config{Ramp: -1}}, nil)
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	rr := get(t, s.Handler(), "/healthz")
	require.Equal(t, http.StatusOK, rr.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 6, body.Records)
	assert.Equal(t, 5, body.Observations)
	assert.Equal(t, 1, body.ImpactLinks)
}

func TestIndicatorsAndCoverage(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	rr := get(t, s.Handler(), "/api/indicators")
	require.Equal(t, http.StatusOK, rr.Code)
	var summaries []struct {
		Indicator string  `json:"indicator"`
		Count     int     `json:"count"`
		Mean      float64 `json:"mean"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summaries))
	require.Len(t, summaries, 2)
	assert.Equal(t, "X", summaries[0].Indicator)
	assert.Equal(t, 25.0, summaries[0].Mean)

	rr = get(t, s.Handler(), "/api/coverage?indicator=Y")
	require.Equal(t, http.StatusOK, rr.Code)
	var cov struct {
		Indicators []string `json:"indicators"`
		Years      []int    `json:"years"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &cov))
	assert.Equal(t, []string{"Y"}, cov.Indicators)
	assert.Equal(t, []int{2021}, cov.Years)

	rr = get(t, s.Handler(), "/api/impacts")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"matched":true`)
}

type forecastBody struct {
	ID        string               `json:"id"`
	Years     []int                `json:"years"`
	Rows      []models.ForecastRow `json:"rows"`
	Crossings []crossing           `json:"crossings"`
	Warnings  []string             `json:"warnings"`
}

func TestForecasts_JSON(t *testing.T) {
	s, _ := newTestServer(t, Options{TargetLine: 60})

	rr := get(t, s.Handler(), "/api/forecasts?indicator=X&scenario=Baseline")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body forecastBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.NotEmpty(t, body.ID)
	assert.Equal(t, []int{2022, 2023}, body.Years)
	require.Len(t, body.Rows, 2)

	// trend 50, 60 plus a high increase event fully ramped by 2022
	assert.Equal(t, models.ForecastRow{Indicator: "X", Year: 2022, Scenario: "Baseline", Value: 51}, body.Rows[0])
	assert.Equal(t, []crossing{{Indicator: "X", Scenario: "Baseline", Year: 2023}}, body.Crossings)
}

func TestForecasts_ClampsAndDefaults(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	rr := get(t, s.Handler(), "/api/forecasts?indicator=Y&from=2030&to=2031")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body forecastBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, []int{2030, 2031}, body.Years)
	assert.Len(t, body.Rows, 6, "two years by three default scenarios")
	for _, r := range body.Rows {
		assert.Equal(t, 95.0, r.Value)
	}
}

func TestForecasts_CustomScale(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	rr := get(t, s.Handler(), "/api/forecasts?indicator=X&scale=2&to=2022")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body forecastBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Rows, 1)
	assert.Equal(t, "Custom", body.Rows[0].Scenario)
	assert.InDelta(t, 52, body.Rows[0].Value, 1e-9)
}

func TestForecasts_PartialFitWarnings(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	rr := get(t, s.Handler(), "/api/forecasts?indicator=X&indicator=MISSING&scenario=Baseline")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body forecastBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Len(t, body.Rows, 2)
	require.NotEmpty(t, body.Warnings)
	assert.Contains(t, body.Warnings[0], "MISSING")
}

func TestForecasts_Errors(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	strict, _ := newTestServer(t, Options{Strict: true})

	tests := []struct {
		name   string
		h      http.Handler
		target string
		status int
	}{
		{"unknown scenario", s.Handler(), "/api/forecasts?scenario=Nope", http.StatusBadRequest},
		{"bad scale", s.Handler(), "/api/forecasts?scale=abc", http.StatusBadRequest},
		{"non-positive scale", s.Handler(), "/api/forecasts?scale=0", http.StatusBadRequest},
		{"NaN scale", s.Handler(), "/api/forecasts?scale=NaN", http.StatusBadRequest},
		{"infinite scale", s.Handler(), "/api/forecasts.csv?scale=%2BInf", http.StatusBadRequest},
		{"bad year", s.Handler(), "/api/forecasts?from=soon", http.StatusBadRequest},
		{"reversed years", s.Handler(), "/api/forecasts?from=2030&to=2025", http.StatusBadRequest},
		{"horizon too long", s.Handler(), "/api/forecasts?from=2025&to=2200", http.StatusBadRequest},
		{"nothing fits", s.Handler(), "/api/forecasts?indicator=MISSING", http.StatusUnprocessableEntity},
		{"strict partial fit", strict.Handler(), "/api/forecasts?indicator=X&indicator=MISSING", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := get(t, tt.h, tt.target)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())

			var body errorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tt.status, body.Code)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestForecasts_CSV(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	rr := get(t, s.Handler(), "/api/forecasts.csv?indicator=X&scenario=Baseline")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "text/csv", rr.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="forecasts_baseline.csv"`, rr.Header().Get("Content-Disposition"))

	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "indicator,year,scenario,forecast_value", lines[0])
	assert.Equal(t, "X,2022,Baseline,51", lines[1])
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	get(t, s.Handler(), "/api/forecasts?indicator=X")
	get(t, s.Handler(), "/api/forecasts?indicator=MISSING")

	rr := get(t, s.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `inclusioncast_forecast_runs_total{outcome="ok"} 1`)
	assert.Contains(t, body, `inclusioncast_forecast_runs_total{outcome="error"} 1`)
	assert.Contains(t, body, `inclusioncast_http_requests_total{method="GET",path="/api/forecasts",status="200"} 1`)
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
