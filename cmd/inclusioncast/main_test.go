package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/inclusioncast/internal/config"
	"github.com/rewired-gh/inclusioncast/internal/dataset"
	"github.com/rewired-gh/inclusioncast/internal/forecast"
	"github.com/rewired-gh/inclusioncast/internal/models"
)

const mainCSV = `record_id,record_type,indicator_code,indicator,category,confidence,observation_date,year,value_numeric
REC_1,observation,ACC_OWNERSHIP,Account Ownership,,high,,2018,10
REC_2,observation,ACC_OWNERSHIP,Account Ownership,,high,,2019,20
REC_3,observation,ACC_OWNERSHIP,Account Ownership,,high,,2020,30
REC_4,observation,ACC_OWNERSHIP,Account Ownership,,medium,,2021,40
REC_5,observation,USG_P2P,P2P Transactions,,low,,2021,5
EVT_1,event,,Mobile money launch,product_launch,high,2021-01-01,,
`

const impactsCSV = `parent_id,related_indicator,impact_magnitude,impact_direction,lag_months
EVT_1,ACC_OWNERSHIP,high,increase,0
EVT_404,USG_P2P,low,increase,0
`

type fixture struct {
	dir    string
	config string
}

func newFixture(t *testing.T, extra string) fixture {
	t.Helper()
	dir := t.TempDir()
	mainPath := filepath.Join(dir, "main.csv")
	impactsPath := filepath.Join(dir, "impacts.csv")
	require.NoError(t, os.WriteFile(mainPath, []byte(mainCSV), 0o644))
	require.NoError(t, os.WriteFile(impactsPath, []byte(impactsCSV), 0o644))

	content := "data:\n" +
		"  main_path: " + mainPath + "\n" +
		"  impacts_path: " + impactsPath + "\n" +
		"storage:\n" +
		"  db_path: " + filepath.Join(dir, "data.db") + "\n" +
		"export:\n" +
		"  dir: " + filepath.Join(dir, "reports") + "\n" +
		"logging:\n" +
		"  level: error\n" +
		extra
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))
	return fixture{dir: dir, config: cfgPath}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestForecastCommand(t *testing.T) {
	fx := newFixture(t, "forecast:\n  start_year: 2022\n  horizon: 2\n")

	out, err := execute(t, "forecast", "--config", fx.config, "--indicator", "ACC_OWNERSHIP")
	require.NoError(t, err, out)

	assert.Contains(t, out, "PESSIMISTIC")
	assert.Contains(t, out, "BASELINE")
	// trend 50 plus a fully ramped high increase: +0.5, +1, +1.5 by scenario
	assert.Regexp(t, `ACC_OWNERSHIP\s+2022\s+50\.50\s+51\.00\s+51\.50`, out)
	assert.Contains(t, out, "ACC_OWNERSHIP (Baseline): 2023")

	for _, name := range []string{"forecasts_pessimistic.csv", "forecasts_baseline.csv", "forecasts_optimistic.csv"} {
		_, err := os.Stat(filepath.Join(fx.dir, "reports", name))
		assert.NoError(t, err, name)
	}
}

func TestForecastCommand_ScenarioFlag(t *testing.T) {
	fx := newFixture(t, "forecast:\n  start_year: 2022\n  horizon: 1\nexport:\n  csv: false\n")

	out, err := execute(t, "forecast", "--config", fx.config, "--scenario", "optimistic")
	require.NoError(t, err, out)
	assert.Contains(t, out, "OPTIMISTIC")
	assert.NotContains(t, out, "BASELINE")

	_, err = execute(t, "forecast", "--config", fx.config, "--scenario", "nope")
	assert.Error(t, err)
}

func TestImportThenCoverageFromSQLite(t *testing.T) {
	fx := newFixture(t, "")

	out, err := execute(t, "import", "--config", fx.config)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Imported 6 records and 2 impact links")
	assert.Contains(t, out, "Store holds 6 records and 2 impact links")
	assert.NotContains(t, out, "Replacing import")

	out, err = execute(t, "import", "--config", fx.config)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Replacing import")
	assert.Contains(t, out, "Store holds 6 records and 2 impact links")

	t.Setenv("INCLUSIONCAST_DATA_SOURCE", "sqlite")
	out, err = execute(t, "coverage", "--config", fx.config, "--min-count", "2")
	require.NoError(t, err, out)

	assert.Contains(t, out, "observation")
	assert.Regexp(t, `ACC_OWNERSHIP\s+1\s+1\s+1\s+1`, out)
	assert.Contains(t, out, "Sparse indicators")
	assert.Contains(t, out, "USG_P2P")
	assert.Contains(t, out, "EVT_404 -> USG_P2P")
}

func TestCoverageCommand_RecordTypeFilter(t *testing.T) {
	fx := newFixture(t, "")

	out, err := execute(t, "coverage", "--config", fx.config, "--record-type", "event")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Filtered to 1 of 6 records")
	assert.Regexp(t, `Records by type:\n\s+event\s+1\n\nConfidence:`, out)
	assert.NotContains(t, out, "ACC_OWNERSHIP")

	out, err = execute(t, "coverage", "--config", fx.config, "--record-type", "observation")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Filtered to 5 of 6 records")
	assert.NotContains(t, out, "Impact links without a parent event")
}

func TestRunForecast_PartialFit(t *testing.T) {
	fx := newFixture(t, "")
	cfg, err := config.Load(fx.config)
	require.NoError(t, err)
	ds, err := loadDataset(cfg)
	require.NoError(t, err)

	res, err := runForecast(cfg, ds, []string{"ACC_OWNERSHIP", "UNKNOWN"}, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, []int{2025, 2026, 2027, 2028, 2029}, res.Years)
	assert.Len(t, res.Rows, 15)
}

func TestForecastFlagsApply(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	forecastFlags{
		indicators: []string{"X"},
		startYear:  2030,
		horizon:    2,
		scenario:   "BASELINE",
		outDir:     "/tmp/out",
	}.apply(cfg)

	assert.Equal(t, []string{"X"}, cfg.Forecast.Targets)
	assert.Equal(t, []int{2030, 2031}, cfg.Years(time.Now()))
	assert.Equal(t, "/tmp/out", cfg.Export.Dir)
	require.Len(t, cfg.Scenarios(), 1)
	assert.Equal(t, "Baseline", cfg.Scenarios()[0].Name)
}

func TestBotCommands(t *testing.T) {
	fx := newFixture(t, "forecast:\n  start_year: 2022\n  horizon: 1\n")
	cfg, err := config.Load(fx.config)
	require.NoError(t, err)
	ds, err := dataset.LoadCSV(cfg.Data.MainPath, cfg.Data.ImpactsPath)
	require.NoError(t, err)

	cmds := botCommands(cfg, ds)

	reply, err := cmds["forecast"](t.Context(), "USG_P2P")
	require.NoError(t, err)
	assert.Contains(t, reply, "USG_P2P")
	assert.NotContains(t, reply, "ACC_OWNERSHIP")

	_, err = cmds["forecast"](t.Context(), "NOPE")
	assert.Error(t, err)

	reply, err = cmds["indicators"](t.Context(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"ACC_OWNERSHIP", "USG_P2P"}, strings.Split(reply, "\n"))
}

func TestPrintForecast(t *testing.T) {
	res := &forecast.Result{
		Years:     []int{2025},
		Scenarios: []models.Scenario{{Name: "Baseline", Scale: 1}},
		Trends:    []forecast.Trend{{Indicator: "X", Method: forecast.MethodFlat, Points: 1}},
		Rows:      []models.ForecastRow{{Indicator: "X", Year: 2025, Scenario: "Baseline", Value: 12.346}},
	}

	var b strings.Builder
	printForecast(&b, res, 0)
	assert.Regexp(t, `X\s+2025\s+12\.35`, b.String())
	assert.NotContains(t, b.String(), "First year")

	b.Reset()
	printForecast(&b, res, 60)
	assert.Contains(t, b.String(), "X (Baseline): not within horizon")
}
