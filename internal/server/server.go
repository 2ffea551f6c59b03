// Package server exposes the dataset summaries and scenario forecasts over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rewired-gh/inclusioncast/internal/config"
	"github.com/rewired-gh/inclusioncast/internal/dataset"
	"github.com/rewired-gh/inclusioncast/internal/impact"
	"github.com/rewired-gh/inclusioncast/internal/logger"
	"github.com/rewired-gh/inclusioncast/internal/metrics"
	"github.com/rewired-gh/inclusioncast/internal/models"
)

// Options are the forecast defaults applied when a request leaves them out.
type Options struct {
	Targets    []string
	Years      []int
	MinPoints  int
	Scenarios  []models.Scenario
	Impact     impact.Config
	Strict     bool
	TargetLine float64
}

// Server serves one immutable dataset. Every forecast request builds its
// own Forecaster, so handlers never share fitted state.
type Server struct {
	cfg      config.ServerConfig
	data     *models.Dataset
	explorer *dataset.Explorer
	opts     Options
	impact   *impact.Model
	metrics  *metrics.Collector
	router   *chi.Mux
	http     *http.Server
}

// New constructs a Server. collector may be nil to disable /metrics.
func New(cfg config.ServerConfig, data *models.Dataset, opts Options, collector *metrics.Collector) (*Server, error) {
	if data == nil {
		return nil, errors.New("server needs a dataset")
	}
	model, err := impact.New(opts.Impact)
	if err != nil {
		return nil, fmt.Errorf("invalid impact config: %w", err)
	}
	if len(opts.Scenarios) == 0 {
		opts.Scenarios = models.DefaultScenarios()
	}

	s := &Server{
		cfg:      cfg,
		data:     data,
		explorer: dataset.NewExplorer(data),
		opts:     opts,
		impact:   model,
		metrics:  collector,
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()

	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	if s.metrics != nil {
		s.router.Use(s.metrics.InstrumentHandler)
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/indicators", s.handleIndicators)
		r.Get("/coverage", s.handleCoverage)
		r.Get("/impacts", s.handleImpacts)
		r.Get("/forecasts", s.handleForecasts)
		r.Get("/forecasts.csv", s.handleForecastsCSV)
	})

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server on %s", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http listen: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logger.Info("Shutting down HTTP server")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return <-errCh
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Debug("%s %s %d %s (%s)", r.Method, r.URL.RequestURI(), ww.Status(),
			time.Since(start).Round(time.Microsecond), middleware.GetReqID(r.Context()))
	})
}
