package store

import "fmt"

// migrate applies pending schema migrations in order.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY,
			version INTEGER NOT NULL UNIQUE,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current migration version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{
			version: 1,
			sql: `
				CREATE TABLE scan_runs (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					dir TEXT NOT NULL,
					found INTEGER DEFAULT 0,
					invalid INTEGER DEFAULT 0,
					scanned_at DATETIME NOT NULL
				);

				CREATE TABLE sync_runs (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					target TEXT NOT NULL,
					sources_total INTEGER DEFAULT 0,
					sources_failed INTEGER DEFAULT 0,
					skipped INTEGER DEFAULT 0,
					status TEXT DEFAULT 'running',
					start_time DATETIME NOT NULL,
					end_time DATETIME
				);

				CREATE TABLE resolved_sources (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					run_id INTEGER NOT NULL REFERENCES sync_runs(id),
					addon TEXT NOT NULL,
					provider TEXT NOT NULL,
					source TEXT NOT NULL
				);

				CREATE INDEX idx_resolved_sources_run ON resolved_sources(run_id);
			`,
		},
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", m.version, err)
		}
		s.logger.Debug("applied migration", "version", m.version)
	}
	return nil
}
