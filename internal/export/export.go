// Package export writes forecast results as CSV, XLSX workbooks and PNG charts.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/rewired-gh/inclusioncast/internal/forecast"
	"github.com/rewired-gh/inclusioncast/internal/models"
)

// Sheet names written to workbooks.
const (
	ForecastSheet = "forecasts"
	TrendSheet    = "trends"
)

var forecastHeader = []string{"indicator", "year", "scenario", "forecast_value"}

// Filename returns the conventional export name for scenario and extension,
// e.g. forecasts_baseline.csv. An empty scenario yields forecasts.csv.
func Filename(scenario, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if scenario == "" {
		return "forecasts." + ext
	}
	slug := strings.ToLower(strings.Join(strings.Fields(scenario), "_"))
	return fmt.Sprintf("forecasts_%s.%s", slug, ext)
}

// WriteCSV writes rows with the header indicator,year,scenario,forecast_value.
func WriteCSV(w io.Writer, rows []models.ForecastRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(forecastHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range rows {
		rec := []string{
			r.Indicator,
			strconv.Itoa(r.Year),
			r.Scenario,
			strconv.FormatFloat(r.Value, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes rows to path, creating parent directories as needed.
func WriteCSVFile(path string, rows []models.ForecastRow) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteCSV(f, rows); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// WriteXLSX writes a workbook with the forecast rows and the fitted trends.
func WriteXLSX(path string, res *forecast.Result) error {
	if res == nil {
		return fmt.Errorf("nothing to export")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ForecastSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := setRow(f, ForecastSheet, 1, toAny(forecastHeader)); err != nil {
		return err
	}
	for i, r := range res.Rows {
		if err := setRow(f, ForecastSheet, i+2, []any{r.Indicator, r.Year, r.Scenario, r.Value}); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(TrendSheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", TrendSheet, err)
	}
	trendHeader := []any{"indicator", "method", "points", "intercept", "slope", "r_squared"}
	if err := setRow(f, TrendSheet, 1, trendHeader); err != nil {
		return err
	}
	for i, t := range res.Trends {
		row := []any{t.Indicator, string(t.Method), t.Points, "", "", ""}
		if t.Model != nil {
			row[3], row[4], row[5] = t.Model.Intercept, t.Model.Slope, t.Model.RSquared
		}
		if err := setRow(f, TrendSheet, i+2, row); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func toAny(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	return nil
}
