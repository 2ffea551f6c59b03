package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/inclusioncast/internal/config"
	"github.com/rewired-gh/inclusioncast/internal/dataset"
	"github.com/rewired-gh/inclusioncast/internal/logger"
	"github.com/rewired-gh/inclusioncast/internal/models"
	"github.com/rewired-gh/inclusioncast/internal/storage"
)

func main() {
	err := newRootCmd().Execute()
	logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "inclusioncast",
		Short:         "Event-adjusted forecasts for financial inclusion indicators",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file (defaults and INCLUSIONCAST_* env when empty)")

	load := func() (*config.Config, error) {
		return setup(configPath)
	}

	root.AddCommand(
		newForecastCmd(load),
		newCoverageCmd(load),
		newImportCmd(load),
		newServeCmd(load),
	)
	return root
}

type configLoader func() (*config.Config, error)

func setup(configPath string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if configPath != "" {
		logger.Info("Configuration loaded from %s", configPath)
	}
	return cfg, nil
}

// loadDataset reads the tables from the configured source.
func loadDataset(cfg *config.Config) (*models.Dataset, error) {
	switch cfg.Data.Source {
	case config.SourceXLSX:
		return dataset.LoadXLSX(cfg.Data.XLSXPath)
	case config.SourceSQLite:
		store, err := storage.Open(cfg.Storage.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("Failed to close storage: %v", err)
			}
		}()
		return store.LoadDataset()
	default:
		return dataset.LoadCSV(cfg.Data.MainPath, cfg.Data.ImpactsPath)
	}
}
