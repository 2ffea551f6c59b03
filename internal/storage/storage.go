// Package storage provides a SQLite-backed source for the record and
// impact-link tables.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rewired-gh/inclusioncast/internal/models"
)

// Storage wraps a SQLite database holding one imported dataset.
type Storage struct {
	db *sql.DB
}

// Import describes one completed dataset import.
type Import struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Records     int       `json:"records"`
	ImpactLinks int       `json:"impact_links"`
	ImportedAt  time.Time `json:"imported_at"`
}

// Open opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/inclusioncast/data.db.
func Open(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "inclusioncast", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	s := &Storage{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS records (
			seq              INTEGER PRIMARY KEY AUTOINCREMENT,
			record_id        TEXT NOT NULL,
			record_type      TEXT NOT NULL,
			pillar           TEXT,
			indicator        TEXT,
			indicator_code   TEXT,
			category         TEXT,
			confidence       TEXT,
			observation_date INTEGER,
			year             INTEGER,
			value_numeric    REAL
		)`,
		`CREATE TABLE IF NOT EXISTS impact_links (
			seq               INTEGER PRIMARY KEY AUTOINCREMENT,
			parent_id         TEXT NOT NULL,
			related_indicator TEXT NOT NULL,
			impact_magnitude  TEXT,
			impact_direction  TEXT,
			lag_months        REAL NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS imports (
			id           TEXT PRIMARY KEY,
			source       TEXT,
			records      INTEGER NOT NULL,
			impact_links INTEGER NOT NULL,
			imported_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_code ON records(indicator_code)`,
		`CREATE INDEX IF NOT EXISTS idx_impact_links_parent ON impact_links(parent_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// ImportDataset replaces the stored tables with ds in one transaction.
func (s *Storage) ImportDataset(ds *models.Dataset, source string) (*Import, error) {
	if ds == nil {
		return nil, fmt.Errorf("invalid dataset: nil")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range []string{`DELETE FROM records`, `DELETE FROM impact_links`} {
		if _, err := tx.Exec(stmt); err != nil {
			return nil, fmt.Errorf("failed to clear tables: %w", err)
		}
	}

	recStmt, err := tx.Prepare(`
		INSERT INTO records
			(record_id, record_type, pillar, indicator, indicator_code, category,
			 confidence, observation_date, year, value_numeric)
		VALUES (?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare record insert: %w", err)
	}
	defer recStmt.Close()
	for _, r := range ds.Records {
		_, err := recStmt.Exec(
			r.RecordID, r.RecordType, r.Pillar, r.Indicator, r.IndicatorCode, r.Category,
			r.Confidence, nullTime(r.ObservationDate), nullInt(r.Year), nullFloat(r.Value),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert record %s: %w", r.RecordID, err)
		}
	}

	linkStmt, err := tx.Prepare(`
		INSERT INTO impact_links
			(parent_id, related_indicator, impact_magnitude, impact_direction, lag_months)
		VALUES (?,?,?,?,?)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare impact link insert: %w", err)
	}
	defer linkStmt.Close()
	for _, l := range ds.Impacts {
		_, err := linkStmt.Exec(
			l.ParentID, l.RelatedIndicator, labelOf(l.MagnitudeLabel, l.Magnitude.String()),
			labelOf(l.DirectionLabel, l.Direction.String()), l.LagMonths,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert impact link %s: %w", l.ParentID, err)
		}
	}

	imp := &Import{
		ID:          uuid.New().String(),
		Source:      source,
		Records:     len(ds.Records),
		ImpactLinks: len(ds.Impacts),
		ImportedAt:  time.Now(),
	}
	if _, err := tx.Exec(`
		INSERT INTO imports (id, source, records, impact_links, imported_at)
		VALUES (?,?,?,?,?)`,
		imp.ID, imp.Source, imp.Records, imp.ImpactLinks, imp.ImportedAt.UnixNano(),
	); err != nil {
		return nil, fmt.Errorf("failed to record import: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit import: %w", err)
	}
	return imp, nil
}

// LoadDataset reads the stored tables back in insertion order and derives
// the observation view.
func (s *Storage) LoadDataset() (*models.Dataset, error) {
	records, err := s.loadRecords()
	if err != nil {
		return nil, err
	}
	links, err := s.loadImpactLinks()
	if err != nil {
		return nil, err
	}
	return &models.Dataset{
		Records:      records,
		Observations: models.ObservationsFromRecords(records),
		Impacts:      links,
	}, nil
}

func (s *Storage) loadRecords() ([]models.Record, error) {
	rows, err := s.db.Query(`
		SELECT record_id, record_type, pillar, indicator, indicator_code, category,
		       confidence, observation_date, year, value_numeric
		FROM records ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		var r models.Record
		var pillar, indicator, code, category, confidence sql.NullString
		var date, year sql.NullInt64
		var value sql.NullFloat64

		err := rows.Scan(
			&r.RecordID, &r.RecordType, &pillar, &indicator, &code, &category,
			&confidence, &date, &year, &value,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.Pillar, r.Indicator, r.IndicatorCode = pillar.String, indicator.String, code.String
		r.Category, r.Confidence = category.String, confidence.String
		if date.Valid {
			r.ObservationDate = time.Unix(0, date.Int64).UTC()
		}
		if year.Valid {
			r.Year = int(year.Int64)
		}
		if value.Valid {
			v := value.Float64
			r.Value = &v
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *Storage) loadImpactLinks() ([]models.ImpactLink, error) {
	rows, err := s.db.Query(`
		SELECT parent_id, related_indicator, impact_magnitude, impact_direction, lag_months
		FROM impact_links ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query impact links: %w", err)
	}
	defer rows.Close()

	var links []models.ImpactLink
	for rows.Next() {
		var parent, related string
		var magnitude, direction sql.NullString
		var lag float64
		if err := rows.Scan(&parent, &related, &magnitude, &direction, &lag); err != nil {
			return nil, fmt.Errorf("failed to scan impact link: %w", err)
		}
		links = append(links, models.NewImpactLink(parent, related, magnitude.String, direction.String, lag))
	}
	return links, rows.Err()
}

// LastImport returns the most recent import, or nil when nothing has been imported.
func (s *Storage) LastImport() (*Import, error) {
	row := s.db.QueryRow(`
		SELECT id, source, records, impact_links, imported_at
		FROM imports ORDER BY imported_at DESC LIMIT 1`)

	var imp Import
	var source sql.NullString
	var importedAtNano int64
	err := row.Scan(&imp.ID, &source, &imp.Records, &imp.ImpactLinks, &importedAtNano)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load last import: %w", err)
	}
	imp.Source = source.String
	imp.ImportedAt = time.Unix(0, importedAtNano)
	return &imp, nil
}

// Counts returns the number of stored records and impact links.
func (s *Storage) Counts() (records, links int, err error) {
	if err = s.db.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&records); err != nil {
		return 0, 0, fmt.Errorf("failed to count records: %w", err)
	}
	if err = s.db.QueryRow(`SELECT COUNT(*) FROM impact_links`).Scan(&links); err != nil {
		return 0, 0, fmt.Errorf("failed to count impact links: %w", err)
	}
	return records, links, nil
}

// labelOf keeps the raw label so unrecognised values survive a round trip.
func labelOf(raw, parsed string) string {
	if raw != "" {
		return raw
	}
	return parsed
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixNano()
}

func nullInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
