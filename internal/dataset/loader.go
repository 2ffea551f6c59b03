// Package dataset loads the record and impact-link tables from CSV or XLSX
// files and offers exploratory summaries over them.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rewired-gh/inclusioncast/internal/logger"
	"github.com/rewired-gh/inclusioncast/internal/models"
)

// Sheet names read from workbooks.
const (
	MainSheet    = "main"
	ImpactsSheet = "impact_links"
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"01/02/2006",
	"2006-01",
	"2006",
}

// table is a header-indexed view over rows of strings.
type table struct {
	source string
	index  map[string]int
	rows   [][]string
}

func newTable(source string, rows [][]string) (*table, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: missing header row", source)
	}
	index := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return &table{source: source, index: index, rows: rows[1:]}, nil
}

func (t *table) has(column string) bool {
	_, ok := t.index[column]
	return ok
}

func (t *table) get(row []string, column string) string {
	i, ok := t.index[column]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (t *table) require(columns ...string) error {
	for _, c := range columns {
		if !t.has(c) {
			return fmt.Errorf("%s: missing required column %q", t.source, c)
		}
	}
	return nil
}

// LoadCSV reads the main record table and the impact-link table from CSV files.
// An empty impactsPath yields a dataset without impact links.
func LoadCSV(mainPath, impactsPath string) (*models.Dataset, error) {
	mainRows, err := readCSVFile(mainPath)
	if err != nil {
		return nil, err
	}
	records, err := parseRecords(mainPath, mainRows)
	if err != nil {
		return nil, err
	}

	var impacts []models.ImpactLink
	if impactsPath != "" {
		impactRows, err := readCSVFile(impactsPath)
		if err != nil {
			return nil, err
		}
		impacts, err = parseImpacts(impactsPath, impactRows)
		if err != nil {
			return nil, err
		}
	}

	return build(records, impacts), nil
}

// ReadRecords parses a main record table from r.
func ReadRecords(r io.Reader) ([]models.Record, error) {
	rows, err := readCSV(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	return parseRecords("records", rows)
}

// ReadImpacts parses an impact-link table from r.
func ReadImpacts(r io.Reader) ([]models.ImpactLink, error) {
	rows, err := readCSV(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read impact links: %w", err)
	}
	return parseImpacts("impact links", rows)
}

// LoadXLSX reads both tables from one workbook with sheets "main" and
// "impact_links". A workbook without the impact sheet yields no links.
func LoadXLSX(path string) (*models.Dataset, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	mainRows, err := f.GetRows(MainSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", MainSheet, err)
	}
	records, err := parseRecords(path+":"+MainSheet, mainRows)
	if err != nil {
		return nil, err
	}

	var impacts []models.ImpactLink
	if idx, _ := f.GetSheetIndex(ImpactsSheet); idx >= 0 {
		impactRows, err := f.GetRows(ImpactsSheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", ImpactsSheet, err)
		}
		impacts, err = parseImpacts(path+":"+ImpactsSheet, impactRows)
		if err != nil {
			return nil, err
		}
	} else {
		logger.Warn("Workbook %s has no %s sheet, continuing without impact links", path, ImpactsSheet)
	}

	return build(records, impacts), nil
}

func build(records []models.Record, impacts []models.ImpactLink) *models.Dataset {
	ds := &models.Dataset{
		Records:      records,
		Observations: models.ObservationsFromRecords(records),
		Impacts:      impacts,
	}
	logger.Info("Loaded %d records (%d observations) and %d impact links",
		len(ds.Records), len(ds.Observations), len(ds.Impacts))
	return ds
}

func readCSVFile(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	rows, err := readCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return rows, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return cr.ReadAll()
}

// parseRecords maps rows onto records. Unparseable dates and numbers become
// missing values. Without a record_type column every row is an observation.
func parseRecords(source string, rows [][]string) ([]models.Record, error) {
	t, err := newTable(source, rows)
	if err != nil {
		return nil, err
	}
	if !t.has("indicator_code") && !t.has("record_id") {
		return nil, fmt.Errorf("%s: need an indicator_code or record_id column", source)
	}
	typed := t.has("record_type")

	records := make([]models.Record, 0, len(t.rows))
	for i, row := range t.rows {
		if blank(row) {
			continue
		}
		r := models.Record{
			RecordID:        t.get(row, "record_id"),
			RecordType:      t.get(row, "record_type"),
			Pillar:          t.get(row, "pillar"),
			Indicator:       t.get(row, "indicator"),
			IndicatorCode:   t.get(row, "indicator_code"),
			Category:        t.get(row, "category"),
			Confidence:      t.get(row, "confidence"),
			ObservationDate: parseDate(t.get(row, "observation_date")),
			Year:            parseYear(t.get(row, "year")),
			Value:           parseFloat(t.get(row, "value_numeric")),
		}
		if !typed {
			r.RecordType = models.RecordTypeObservation
		}
		if r.RecordID == "" {
			r.RecordID = fmt.Sprintf("row-%d", i+2)
		}
		records = append(records, r)
	}
	return records, nil
}

func parseImpacts(source string, rows [][]string) ([]models.ImpactLink, error) {
	t, err := newTable(source, rows)
	if err != nil {
		return nil, err
	}
	if err := t.require("parent_id", "related_indicator"); err != nil {
		return nil, err
	}

	links := make([]models.ImpactLink, 0, len(t.rows))
	for _, row := range t.rows {
		if blank(row) {
			continue
		}
		lag := 0.0
		if v := parseFloat(t.get(row, "lag_months")); v != nil {
			lag = *v
		}
		links = append(links, models.NewImpactLink(
			t.get(row, "parent_id"),
			t.get(row, "related_indicator"),
			t.get(row, "impact_magnitude"),
			t.get(row, "impact_direction"),
			lag,
		))
	}
	return links, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func parseDate(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

func parseFloat(raw string) *float64 {
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func parseYear(raw string) int {
	v := parseFloat(raw)
	if v == nil || *v != math.Trunc(*v) {
		return 0
	}
	return int(*v)
}
