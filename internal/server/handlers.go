package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rewired-gh/inclusioncast/internal/export"
	"github.com/rewired-gh/inclusioncast/internal/forecast"
	"github.com/rewired-gh/inclusioncast/internal/logger"
	"github.com/rewired-gh/inclusioncast/internal/metrics"
	"github.com/rewired-gh/inclusioncast/internal/models"
)

// errorResponse is the body of every non-2xx JSON response.
type errorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{Error: http.StatusText(status), Code: status}
	if err != nil {
		resp.Message = err.Error()
	}
	writeJSON(w, status, resp)
}

type healthResponse struct {
	Status       string `json:"status"`
	Records      int    `json:"records"`
	Observations int    `json:"observations"`
	ImpactLinks  int    `json:"impact_links"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:       "ok",
		Records:      len(s.data.Records),
		Observations: len(s.data.Observations),
		ImpactLinks:  len(s.data.Impacts),
	})
}

func (s *Server) handleIndicators(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.explorer.DescribeAll())
}

func (s *Server) handleCoverage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.explorer.TemporalCoverage(r.URL.Query()["indicator"]))
}

func (s *Server) handleImpacts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.explorer.MergeImpacts())
}

// crossing is the first year a series reaches the target line.
type crossing struct {
	Indicator string `json:"indicator"`
	Scenario  string `json:"scenario"`
	Year      int    `json:"year"`
}

type forecastResponse struct {
	*forecast.Result
	TargetLine float64    `json:"target_line,omitempty"`
	Crossings  []crossing `json:"crossings,omitempty"`
	Warnings   []string   `json:"warnings,omitempty"`
}

func (s *Server) handleForecasts(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseForecastRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, warnings, err := s.runForecast(req)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	resp := forecastResponse{Result: res, TargetLine: s.opts.TargetLine, Warnings: warnings}
	if s.opts.TargetLine > 0 {
		for _, code := range req.Targets {
			for _, sc := range res.Scenarios {
				if year, ok := forecast.TargetCrossing(res.Rows, code, sc.Name, s.opts.TargetLine); ok {
					resp.Crossings = append(resp.Crossings, crossing{Indicator: code, Scenario: sc.Name, Year: year})
				}
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleForecastsCSV(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseForecastRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, _, err := s.runForecast(req)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	name := ""
	if len(req.Scenarios) == 1 {
		name = req.Scenarios[0].Name
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(name, "csv")))
	if err := export.WriteCSV(w, res.Rows); err != nil {
		logger.Warn("Failed to write CSV response: %v", err)
	}
}

// runForecast returns the result with per-indicator fit failures as
// warnings. The error is set only when nothing could be forecast.
func (s *Server) runForecast(req forecast.Request) (*forecast.Result, []string, error) {
	start := time.Now()
	f := forecast.New(s.data, forecast.WithImpactModel(s.impact), forecast.WithStrict(s.opts.Strict))
	res, err := f.Run(req)

	outcome := metrics.OutcomeOK
	rows := 0
	switch {
	case res == nil:
		outcome = metrics.OutcomeError
	case err != nil:
		outcome = metrics.OutcomePartial
		rows = len(res.Rows)
	default:
		rows = len(res.Rows)
	}
	if s.metrics != nil {
		s.metrics.ObserveRun(outcome, rows, time.Since(start))
	}

	if res == nil {
		return nil, nil, err
	}
	if err != nil {
		logger.Warn("Forecast %s completed with fit errors: %v", res.ID, err)
		return res, strings.Split(err.Error(), "\n"), nil
	}
	return res, nil, nil
}

// parseForecastRequest reads indicator (repeatable), from, to, scenario and
// scale query parameters. A scale without a scenario name runs a single
// "Custom" scenario.
func (s *Server) parseForecastRequest(r *http.Request) (forecast.Request, error) {
	q := r.URL.Query()
	req := forecast.Request{MinPoints: s.opts.MinPoints}

	req.Targets = q["indicator"]
	if len(req.Targets) == 0 {
		req.Targets = s.opts.Targets
	}
	if len(req.Targets) == 0 {
		req.Targets = s.data.IndicatorCodes()
	}
	if len(req.Targets) == 0 {
		return req, errors.New("no indicators to forecast")
	}

	req.Years = s.opts.Years
	from, to, err := yearRange(q.Get("from"), q.Get("to"), req.Years)
	if err != nil {
		return req, err
	}
	if from != 0 {
		req.Years = forecast.Years(from, to-from+1)
	}
	if len(req.Years) == 0 {
		return req, errors.New("no forecast years")
	}

	name := q.Get("scenario")
	rawScale := q.Get("scale")
	switch {
	case rawScale != "":
		scale, err := strconv.ParseFloat(rawScale, 64)
		if err != nil {
			return req, fmt.Errorf("invalid scale %q", rawScale)
		}
		if name == "" {
			name = "Custom"
		}
		sc := models.Scenario{Name: name, Scale: scale}
		if err := sc.Validate(); err != nil {
			return req, err
		}
		req.Scenarios = []models.Scenario{sc}
	case name != "":
		sc, ok := models.FindScenario(s.opts.Scenarios, name)
		if !ok {
			return req, fmt.Errorf("unknown scenario %q", name)
		}
		req.Scenarios = []models.Scenario{sc}
	default:
		req.Scenarios = s.opts.Scenarios
	}
	return req, nil
}

const maxHorizon = 50

// yearRange resolves from/to against the default years. Both zero means
// keep the defaults.
func yearRange(rawFrom, rawTo string, defaults []int) (int, int, error) {
	if rawFrom == "" && rawTo == "" {
		return 0, 0, nil
	}
	from, to := 0, 0
	if len(defaults) > 0 {
		from, to = defaults[0], defaults[len(defaults)-1]
	}
	var err error
	if rawFrom != "" {
		if from, err = strconv.Atoi(rawFrom); err != nil {
			return 0, 0, fmt.Errorf("invalid from year %q", rawFrom)
		}
	}
	if rawTo != "" {
		if to, err = strconv.Atoi(rawTo); err != nil {
			return 0, 0, fmt.Errorf("invalid to year %q", rawTo)
		}
	}
	if from == 0 || to == 0 {
		return 0, 0, errors.New("both from and to are needed without default years")
	}
	if to < from {
		return 0, 0, fmt.Errorf("to year %d is before from year %d", to, from)
	}
	if to-from+1 > maxHorizon {
		return 0, 0, fmt.Errorf("horizon of %d years exceeds %d", to-from+1, maxHorizon)
	}
	return from, to, nil
}
