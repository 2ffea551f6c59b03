package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/inclusioncast/internal/config"
	"github.com/rewired-gh/inclusioncast/internal/export"
	"github.com/rewired-gh/inclusioncast/internal/forecast"
	"github.com/rewired-gh/inclusioncast/internal/impact"
	"github.com/rewired-gh/inclusioncast/internal/logger"
	"github.com/rewired-gh/inclusioncast/internal/models"
	"github.com/rewired-gh/inclusioncast/internal/telegram"
)

type forecastFlags struct {
	indicators []string
	startYear  int
	horizon    int
	scenario   string
	outDir     string
	notify     bool
}

func newForecastCmd(load configLoader) *cobra.Command {
	var flags forecastFlags

	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Fit trends and print scenario forecasts",
		Long: `Fit a trend per target indicator, add the cumulative effect of linked events
under each scenario, and print the clamped forecasts.

Example: inclusioncast forecast --indicator ACC_OWNERSHIP --start-year 2025 --horizon 6`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			flags.apply(cfg)

			ds, err := loadDataset(cfg)
			if err != nil {
				return err
			}
			res, err := runForecast(cfg, ds, cfg.Forecast.Targets, time.Now())
			if err != nil && res == nil {
				return err
			}

			printForecast(cmd.OutOrStdout(), res, cfg.Forecast.TargetLine)
			if expErr := writeExports(cfg, res); expErr != nil {
				return expErr
			}
			if flags.notify || cfg.Telegram.Enabled {
				notify(cfg, res)
			}
			return err
		},
	}

	cmd.Flags().StringSliceVar(&flags.indicators, "indicator", nil, "Target indicator code (repeatable; default: config targets, else all)")
	cmd.Flags().IntVar(&flags.startYear, "start-year", 0, "First forecast year (default: config, else current year)")
	cmd.Flags().IntVar(&flags.horizon, "horizon", 0, "Number of forecast years (default: config)")
	cmd.Flags().StringVar(&flags.scenario, "scenario", "", "Only run the named scenario")
	cmd.Flags().StringVar(&flags.outDir, "out", "", "Export directory (default: config export.dir)")
	cmd.Flags().BoolVar(&flags.notify, "notify", false, "Send a Telegram summary even when telegram.enabled is false")

	return cmd
}

// apply lets flags override the loaded configuration.
func (f forecastFlags) apply(cfg *config.Config) {
	if len(f.indicators) > 0 {
		cfg.Forecast.Targets = f.indicators
	}
	if f.startYear > 0 {
		cfg.Forecast.StartYear = f.startYear
	}
	if f.horizon > 0 {
		cfg.Forecast.Horizon = f.horizon
	}
	if f.outDir != "" {
		cfg.Export.Dir = f.outDir
	}
	if f.scenario != "" {
		var kept []config.ScenarioConfig
		for _, s := range cfg.Forecast.Scenarios {
			if strings.EqualFold(s.Name, f.scenario) {
				kept = append(kept, s)
			}
		}
		cfg.Forecast.Scenarios = kept
	}
}

// runForecast runs one end-to-end forecast. A non-nil result may come with
// an error describing the targets that could not be fitted.
func runForecast(cfg *config.Config, ds *models.Dataset, targets []string, now time.Time) (*forecast.Result, error) {
	model, err := impact.New(cfg.ImpactConfig())
	if err != nil {
		return nil, err
	}
	scenarios := cfg.Scenarios()
	if len(scenarios) == 0 {
		return nil, fmt.Errorf("%w: no matching scenario", forecast.ErrInvalidScenario)
	}
	if len(targets) == 0 {
		targets = ds.IndicatorCodes()
	}

	f := forecast.New(ds, forecast.WithImpactModel(model), forecast.WithStrict(cfg.Forecast.Strict))
	res, err := f.Run(forecast.Request{
		Targets:   targets,
		Years:     cfg.Years(now),
		MinPoints: cfg.Forecast.MinPoints,
		Scenarios: scenarios,
	})
	if res != nil {
		logger.Info("Forecast %s: %d indicators, %d rows", res.ID, len(res.Trends), len(res.Rows))
	}
	if err != nil && res != nil {
		logger.Warn("Some indicators could not be fitted: %v", err)
	}
	return res, err
}

// printForecast writes one row per indicator and year with a column per scenario.
func printForecast(w io.Writer, res *forecast.Result, target float64) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	header := []string{"INDICATOR", "YEAR"}
	for _, s := range res.Scenarios {
		header = append(header, strings.ToUpper(s.Name))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	values := make(map[string]float64, len(res.Rows))
	for _, r := range res.Rows {
		values[fmt.Sprintf("%s|%d|%s", r.Indicator, r.Year, r.Scenario)] = r.Value
	}
	for _, t := range res.Trends {
		for _, year := range res.Years {
			cols := []string{t.Indicator, fmt.Sprint(year)}
			for _, s := range res.Scenarios {
				cols = append(cols, fmt.Sprintf("%.2f", values[fmt.Sprintf("%s|%d|%s", t.Indicator, year, s.Name)]))
			}
			fmt.Fprintln(tw, strings.Join(cols, "\t"))
		}
	}
	tw.Flush()

	if target <= 0 {
		return
	}
	fmt.Fprintf(w, "\nFirst year at or above %.0f%%:\n", target)
	for _, t := range res.Trends {
		for _, s := range res.Scenarios {
			if year, ok := forecast.TargetCrossing(res.Rows, t.Indicator, s.Name, target); ok {
				fmt.Fprintf(w, "  %s (%s): %d\n", t.Indicator, s.Name, year)
			} else {
				fmt.Fprintf(w, "  %s (%s): not within horizon\n", t.Indicator, s.Name)
			}
		}
	}
}

func writeExports(cfg *config.Config, res *forecast.Result) error {
	dir := cfg.Export.Dir
	var errs []error
	if cfg.Export.CSV {
		for _, s := range res.Scenarios {
			path := filepath.Join(dir, export.Filename(s.Name, "csv"))
			if err := export.WriteCSVFile(path, forecast.Filter(res.Rows, s.Name)); err != nil {
				errs = append(errs, err)
				continue
			}
			logger.Info("Wrote %s", path)
		}
	}
	if cfg.Export.XLSX {
		path := filepath.Join(dir, export.Filename("", "xlsx"))
		if err := export.WriteXLSX(path, res); err != nil {
			errs = append(errs, err)
		} else {
			logger.Info("Wrote %s", path)
		}
	}
	if cfg.Export.Chart {
		path := filepath.Join(dir, export.Filename("", "png"))
		opts := export.ChartOptions{TargetLine: cfg.Forecast.TargetLine}
		if err := export.WriteChart(path, res.Rows, opts); err != nil {
			errs = append(errs, err)
		} else {
			logger.Info("Wrote %s", path)
		}
	}
	return errors.Join(errs...)
}

func notify(cfg *config.Config, res *forecast.Result) {
	client, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
	if err != nil {
		logger.Warn("Failed to initialize Telegram client: %v", err)
		return
	}
	if err := client.SendForecastSummary(res, cfg.Forecast.TargetLine); err != nil {
		logger.Warn("Failed to send forecast summary to Telegram: %v", err)
	}
}
