package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/inclusioncast/internal/config"
	"github.com/rewired-gh/inclusioncast/internal/dataset"
	"github.com/rewired-gh/inclusioncast/internal/logger"
	"github.com/rewired-gh/inclusioncast/internal/models"
	"github.com/rewired-gh/inclusioncast/internal/storage"
)

func newImportCmd(load configLoader) *cobra.Command {
	var xlsxPath, mainPath, impactsPath string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load the CSV or XLSX tables into the SQLite dataset store",
		Long: `Replace the contents of the SQLite store at storage.db_path with the tables
read from a workbook or a pair of CSV files. Later runs can use data.source: sqlite.

Example: inclusioncast import --xlsx data/raw/ethiopia_fi.xlsx`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			var ds *models.Dataset
			var source string
			switch {
			case xlsxPath != "":
				source = xlsxPath
				ds, err = dataset.LoadXLSX(xlsxPath)
			case mainPath != "":
				source = mainPath
				ds, err = dataset.LoadCSV(mainPath, impactsPath)
			case cfg.Data.Source == config.SourceSQLite:
				return fmt.Errorf("data.source is sqlite: pass --xlsx or --main to choose what to import")
			default:
				source = cfg.Data.Source
				ds, err = loadDataset(cfg)
			}
			if err != nil {
				return err
			}

			store, err := storage.Open(cfg.Storage.DBPath)
			if err != nil {
				return fmt.Errorf("failed to open storage: %w", err)
			}
			defer func() {
				if err := store.Close(); err != nil {
					logger.Error("Failed to close storage: %v", err)
				}
			}()

			out := cmd.OutOrStdout()
			prev, err := store.LastImport()
			if err != nil {
				return err
			}
			if prev != nil {
				fmt.Fprintf(out, "Replacing import %s from %s (%s)\n",
					prev.ID, prev.Source, prev.ImportedAt.Format(time.RFC3339))
			}

			imp, err := store.ImportDataset(ds, source)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Imported %d records and %d impact links from %s (import %s)\n",
				imp.Records, imp.ImpactLinks, source, imp.ID)

			records, links, err := store.Counts()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Store holds %d records and %d impact links\n", records, links)
			return nil
		},
	}

	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "Workbook with main and impact_links sheets")
	cmd.Flags().StringVar(&mainPath, "main", "", "Main record table CSV")
	cmd.Flags().StringVar(&impactsPath, "impacts", "", "Impact link table CSV (used with --main)")

	return cmd
}
