// Package archive persists retrieved indicator values in a local
// SQLite database so price files can be rebuilt without re-querying
// the API, and every retrieval run stays auditable.
package archive

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/cristobal-GC/pypsa-spain/pkg/pypsaspain/esios"
)

// Store is a single-writer SQLite archive of indicator values.
type Store struct {
	db       *sql.DB
	dbPath   string
	mutex    sync.RWMutex
	prepared map[string]*sql.Stmt
}

// Run describes one recorded retrieval.
type Run struct {
	ID          string
	IndicatorID int
	GeoID       int
	Start       time.Time
	End         time.Time
	Points      int
	RetrievedAt time.Time
}

// Open creates or opens the archive database at dbPath.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %v", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL&_cache=shared")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	store := &Store{
		db:       db,
		dbPath:   dbPath,
		prepared: make(map[string]*sql.Stmt),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %v", err)
	}

	if err := store.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %v", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS indicator_values (
		indicator_id INTEGER NOT NULL,
		geo_id INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		value REAL NOT NULL,
		run_id TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (indicator_id, geo_id, timestamp)
	);

	CREATE TABLE IF NOT EXISTS retrieval_runs (
		id TEXT PRIMARY KEY,
		indicator_id INTEGER NOT NULL,
		geo_id INTEGER NOT NULL,
		start_time DATETIME NOT NULL,
		end_time DATETIME NOT NULL,
		points INTEGER NOT NULL,
		retrieved_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_values_run ON indicator_values(run_id);
	CREATE INDEX IF NOT EXISTS idx_runs_indicator ON retrieval_runs(indicator_id, geo_id, retrieved_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) prepareStatements() error {
	statements := map[string]string{
		"insert_value": `
			INSERT OR REPLACE INTO indicator_values (
				indicator_id, geo_id, timestamp, value, run_id
			) VALUES (?, ?, ?, ?, ?)
		`,
		"insert_run": `
			INSERT INTO retrieval_runs (
				id, indicator_id, geo_id, start_time, end_time, points
			) VALUES (?, ?, ?, ?, ?, ?)
		`,
		"select_series": `
			SELECT indicator_id, geo_id, timestamp, value
			FROM indicator_values
			WHERE indicator_id = ? AND geo_id = ? AND timestamp BETWEEN ? AND ?
			ORDER BY timestamp ASC
		`,
		"select_last_run": `
			SELECT id, indicator_id, geo_id, start_time, end_time, points, retrieved_at
			FROM retrieval_runs
			WHERE indicator_id = ? AND geo_id = ?
			ORDER BY retrieved_at DESC
			LIMIT 1
		`,
		"cleanup": `
			DELETE FROM indicator_values
			WHERE created_at < ?
		`,
	}

	for name, query := range statements {
		stmt, err := s.db.Prepare(query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement %s: %v", name, err)
		}
		s.prepared[name] = stmt
	}

	return nil
}

// RecordRun stores a retrieval run and returns its generated id.
func (s *Store) RecordRun(indicatorID, geoID int, start, end time.Time, points int) (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	id := uuid.NewString()
	_, err := s.prepared["insert_run"].Exec(id, indicatorID, geoID, start.UTC(), end.UTC(), points)
	if err != nil {
		return "", fmt.Errorf("failed to record run: %v", err)
	}

	klog.V(3).InfoS("Recorded retrieval run",
		"run", id,
		"indicator", indicatorID,
		"geo", geoID,
		"points", points)

	return id, nil
}

// InsertPoints stores the points of one run, replacing any previous
// value at the same (indicator, geo, timestamp).
func (s *Store) InsertPoints(runID string, points []esios.IndicatorPoint) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}

	stmt := tx.Stmt(s.prepared["insert_value"])
	for _, p := range points {
		if _, err := stmt.Exec(p.IndicatorID, p.GeoID, p.Timestamp.UTC(), p.Value, runID); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert point at %s: %v", p.Timestamp.UTC().Format(time.RFC3339), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit points: %v", err)
	}

	klog.V(2).InfoS("Archived indicator points", "run", runID, "points", len(points))
	return nil
}

// Series returns the archived points of one indicator and geo in
// ascending timestamp order over [start, end].
func (s *Store) Series(indicatorID, geoID int, start, end time.Time) ([]esios.IndicatorPoint, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rows, err := s.prepared["select_series"].Query(indicatorID, geoID, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query series: %v", err)
	}
	defer rows.Close()

	var points []esios.IndicatorPoint
	for rows.Next() {
		var p esios.IndicatorPoint
		if err := rows.Scan(&p.IndicatorID, &p.GeoID, &p.Timestamp, &p.Value); err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		p.Timestamp = p.Timestamp.UTC()
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %v", err)
	}

	return points, nil
}

// LastRun returns the most recent retrieval run for an indicator and
// geo, or false when none is recorded.
func (s *Store) LastRun(indicatorID, geoID int) (*Run, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var run Run
	err := s.prepared["select_last_run"].QueryRow(indicatorID, geoID).Scan(
		&run.ID, &run.IndicatorID, &run.GeoID, &run.Start, &run.End, &run.Points, &run.RetrievedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query last run: %v", err)
	}
	run.Start = run.Start.UTC()
	run.End = run.End.UTC()
	run.RetrievedAt = run.RetrievedAt.UTC()
	return &run, true, nil
}

// ExportPriceCSV writes the archived series as a snapshot-indexed CSV
// with one value column, the format the price loader consumes.
func (s *Store) ExportPriceCSV(w io.Writer, indicatorID, geoID int, start, end time.Time, column string) error {
	points, err := s.Series(indicatorID, geoID, start, end)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		return fmt.Errorf("no archived values for indicator %d geo %d between %s and %s",
			indicatorID, geoID, start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"snapshot", column}); err != nil {
		return fmt.Errorf("failed to write header: %v", err)
	}
	for _, p := range points {
		record := []string{
			p.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%g", p.Value),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %v", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Cleanup removes values archived before the retention window.
func (s *Store) Cleanup(retentionDays int) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	result, err := s.prepared["cleanup"].Exec(cutoff)
	if err != nil {
		return fmt.Errorf("failed to cleanup old values: %v", err)
	}

	rowsAffected, _ := result.RowsAffected()
	klog.V(2).InfoS("Cleaned up archived indicator values",
		"cutoff", cutoff,
		"rowsDeleted", rowsAffected)

	return nil
}

// Close closes the prepared statements and the database.
func (s *Store) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, stmt := range s.prepared {
		stmt.Close()
	}

	return s.db.Close()
}
