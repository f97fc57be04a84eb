package recorder

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists the run log to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so dashboards can read while a run writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS snapshot_runs (
			id               TEXT PRIMARY KEY,
			timestamp        INTEGER NOT NULL,
			as_of_utc        TEXT NOT NULL,
			run_window       TEXT,
			trigger_reason   TEXT,
			provider         TEXT,
			output_path      TEXT,
			count_tickers    INTEGER,
			fetched_now      INTEGER,
			filled_previous  INTEGER,
			missing          INTEGER,
			bulk_ok          INTEGER,
			retry_ok         INTEGER,
			retry_small_ok   INTEGER,
			single_ok        INTEGER,
			single_attempted INTEGER,
			chunk_failures   INTEGER,
			duration_ms      INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_ts ON snapshot_runs(timestamp)`,

		`CREATE TABLE IF NOT EXISTS run_missing (
			run_id TEXT NOT NULL,
			ticker TEXT NOT NULL,
			PRIMARY KEY (run_id, ticker)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_missing_ticker ON run_missing(ticker)`,

		`CREATE TABLE IF NOT EXISTS gate_skips (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			reason    TEXT,
			detail    TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_skips_ts ON gate_skips(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordRun(run *RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	st := run.Stats
	d := st.Detail
	if _, err := tx.Exec(`INSERT INTO snapshot_runs
		(id, timestamp, as_of_utc, run_window, trigger_reason, provider, output_path,
		 count_tickers, fetched_now, filled_previous, missing,
		 bulk_ok, retry_ok, retry_small_ok, single_ok, single_attempted,
		 chunk_failures, duration_ms)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		run.RunID, time.Now().Unix(), run.AsOfUTC.UTC().Format(time.RFC3339), string(run.Window),
		run.Trigger, run.Provider, run.OutputPath,
		st.CountTickers, st.CountFetchedNow, st.CountFilledFromPrevious, st.CountMissing,
		d.BulkOK, d.RetryOK, d.RetrySmallOK, d.SingleOK, d.SingleAttempted,
		d.ChunkFailures, d.DurationMS,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, t := range st.Missing {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO run_missing (run_id, ticker) VALUES (?,?)`, run.RunID, t); err != nil {
			return fmt.Errorf("insert missing: %w", err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) RecordSkip(skip *SkipRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO gate_skips (timestamp, reason, detail) VALUES (?,?,?)`,
		skip.At.Unix(), skip.Reason, skip.Detail,
	)
	return err
}

// RecentRuns returns the latest runs, newest first.
func (r *SQLiteRecorder) RecentRuns(limit int) ([]RunSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT id, as_of_utc, run_window, trigger_reason, count_tickers, fetched_now,
		filled_previous, missing, duration_ms
		FROM snapshot_runs ORDER BY as_of_utc DESC, timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		var asOf string
		if err := rows.Scan(&s.RunID, &asOf, &s.Window, &s.Trigger, &s.CountTickers, &s.CountFetchedNow,
			&s.CountFilledFromPrevious, &s.CountMissing, &s.DurationMS); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339, asOf); err == nil {
			s.AsOfUTC = t
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	log.Println("[INFO] closing sqlite recorder")
	return r.db.Close()
}
