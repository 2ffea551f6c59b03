package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/inclusioncast/internal/config"
	"github.com/rewired-gh/inclusioncast/internal/logger"
	"github.com/rewired-gh/inclusioncast/internal/metrics"
	"github.com/rewired-gh/inclusioncast/internal/models"
	"github.com/rewired-gh/inclusioncast/internal/server"
	"github.com/rewired-gh/inclusioncast/internal/telegram"
)

func newServeCmd(load configLoader) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve summaries and forecasts over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ds, err := loadDataset(cfg)
			if err != nil {
				return err
			}

			collector, err := metrics.NewCollector()
			if err != nil {
				return fmt.Errorf("failed to create metrics collector: %w", err)
			}
			srv, err := server.New(cfg.Server, ds, server.Options{
				Targets:    cfg.Forecast.Targets,
				Years:      cfg.Years(time.Now()),
				MinPoints:  cfg.Forecast.MinPoints,
				Scenarios:  cfg.Scenarios(),
				Impact:     cfg.ImpactConfig(),
				Strict:     cfg.Forecast.Strict,
				TargetLine: cfg.Forecast.TargetLine,
			}, collector)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if cfg.Telegram.Enabled {
				client, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
				if err != nil {
					logger.Warn("Failed to initialize Telegram client: %v", err)
				} else {
					client.ListenForCommands(ctx, botCommands(cfg, ds))
					logger.Info("Telegram bot listening for commands")
				}
			}

			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: config server.addr)")

	return cmd
}

// botCommands answers /forecast [INDICATOR...] with a plain-text table.
func botCommands(cfg *config.Config, ds *models.Dataset) map[string]telegram.CommandFunc {
	return map[string]telegram.CommandFunc{
		"forecast": func(_ context.Context, args string) (string, error) {
			res, err := runForecast(cfg, ds, strings.Fields(args), time.Now())
			if res == nil {
				return "", err
			}
			var b strings.Builder
			printForecast(&b, res, cfg.Forecast.TargetLine)
			return b.String(), nil
		},
		"indicators": func(context.Context, string) (string, error) {
			return strings.Join(ds.IndicatorCodes(), "\n"), nil
		},
	}
}
