// Package store persists run history: scans, resolutions, and syncs.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed run history.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens the database at dbPath and runs migrations.
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Debug("store initialized", "path", dbPath)
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// ScanRun records one inventory scan.
type ScanRun struct {
	ID        int64
	Dir       string
	Found     int
	Invalid   int
	ScannedAt time.Time
}

// SyncRun records one sync of a target directory.
type SyncRun struct {
	ID            int64
	Target        string
	SourcesTotal  int
	SourcesFailed int
	Skipped       int
	Status        string
	StartTime     time.Time
	EndTime       time.Time
}

// ResolvedSource records one addon assignment within a sync run.
type ResolvedSource struct {
	ID       int64
	RunID    int64
	Addon    string
	Provider string
	Source   string
}

// RecordScanRun inserts a scan record.
func (s *Store) RecordScanRun(run *ScanRun) error {
	res, err := s.db.Exec(
		`INSERT INTO scan_runs (dir, found, invalid, scanned_at) VALUES (?, ?, ?, ?)`,
		run.Dir, run.Found, run.Invalid, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("inserting scan run: %w", err)
	}
	run.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting scan run id: %w", err)
	}
	return nil
}

// CreateSyncRun inserts a sync run with status "running" and sets its ID.
func (s *Store) CreateSyncRun(run *SyncRun) error {
	run.Status = "running"
	run.StartTime = time.Now()
	res, err := s.db.Exec(
		`INSERT INTO sync_runs (target, sources_total, sources_failed, skipped, status, start_time)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.Target, run.SourcesTotal, run.SourcesFailed, run.Skipped, run.Status, run.StartTime,
	)
	if err != nil {
		return fmt.Errorf("inserting sync run: %w", err)
	}
	run.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting sync run id: %w", err)
	}
	return nil
}

// FinishSyncRun updates a sync run's final counters and status.
func (s *Store) FinishSyncRun(run *SyncRun) error {
	run.EndTime = time.Now()
	res, err := s.db.Exec(
		`UPDATE sync_runs SET sources_total = ?, sources_failed = ?, skipped = ?, status = ?, end_time = ?
		 WHERE id = ?`,
		run.SourcesTotal, run.SourcesFailed, run.Skipped, run.Status, run.EndTime, run.ID,
	)
	if err != nil {
		return fmt.Errorf("updating sync run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("sync run not found: %d", run.ID)
	}
	return nil
}

// RecordResolution inserts the addon assignments of a sync run.
func (s *Store) RecordResolution(runID int64, assignments []ResolvedSource) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	for _, a := range assignments {
		if _, err := tx.Exec(
			`INSERT INTO resolved_sources (run_id, addon, provider, source) VALUES (?, ?, ?, ?)`,
			runID, a.Addon, a.Provider, a.Source,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting resolved source: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing resolution: %w", err)
	}
	return nil
}

// ListSyncRuns returns the most recent sync runs, newest first.
func (s *Store) ListSyncRuns(limit int) ([]SyncRun, error) {
	rows, err := s.db.Query(
		`SELECT id, target, sources_total, sources_failed, skipped, status, start_time,
		        COALESCE(end_time, start_time)
		 FROM sync_runs ORDER BY start_time DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying sync runs: %w", err)
	}
	defer rows.Close()

	var runs []SyncRun
	for rows.Next() {
		var r SyncRun
		if err := rows.Scan(&r.ID, &r.Target, &r.SourcesTotal, &r.SourcesFailed,
			&r.Skipped, &r.Status, &r.StartTime, &r.EndTime); err != nil {
			return nil, fmt.Errorf("scanning sync run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListResolvedSources returns the assignments recorded for a sync run.
func (s *Store) ListResolvedSources(runID int64) ([]ResolvedSource, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, addon, provider, source FROM resolved_sources WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying resolved sources: %w", err)
	}
	defer rows.Close()

	var out []ResolvedSource
	for rows.Next() {
		var r ResolvedSource
		if err := rows.Scan(&r.ID, &r.RunID, &r.Addon, &r.Provider, &r.Source); err != nil {
			return nil, fmt.Errorf("scanning resolved source: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestScanRun returns the most recent scan record, or nil when none
// exists.
func (s *Store) LatestScanRun() (*ScanRun, error) {
	row := s.db.QueryRow(
		`SELECT id, dir, found, invalid, scanned_at FROM scan_runs ORDER BY scanned_at DESC LIMIT 1`,
	)
	var r ScanRun
	err := row.Scan(&r.ID, &r.Dir, &r.Found, &r.Invalid, &r.ScannedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning scan run: %w", err)
	}
	return &r, nil
}
