package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // Register SQLite driver

	"github.com/yourusername/report-generator/pkg/model"
)

// DefaultListLimit caps ListRuns when no limit is given
const DefaultListLimit = 50

// Store keeps the run history of report requests
type Store struct {
	db         *sql.DB
	writeQueue *writeQueue
	log        logrus.FieldLogger
}

// NewStore opens (and creates if needed) the database at dbPath
func NewStore(dbPath string, log logrus.FieldLogger) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// WAL allows concurrent readers next to the single writer
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	log.Info("[STORE] SQLite configured: WAL mode enabled, busy_timeout=5000ms, single writer connection")

	store := &Store{db: db, log: log}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	store.writeQueue = newWriteQueue(store, log)
	return store, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			org_id TEXT NOT NULL,
			report_name TEXT NOT NULL,
			dashboard_id TEXT NOT NULL DEFAULT '',
			format TEXT NOT NULL,
			status TEXT NOT NULL,
			email_sent INTEGER NOT NULL DEFAULT 0,
			error_text TEXT,
			bytes INTEGER NOT NULL DEFAULT 0,
			checksum TEXT,
			started_at INTEGER NOT NULL,
			finished_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_org_report ON runs(org_id, report_name)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// CreateRun inserts run and sets its ID (queued for serialized execution)
func (s *Store) CreateRun(ctx context.Context, run *model.Run) error {
	return s.writeQueue.enqueue(ctx, opCreateRun, run)
}

func (s *Store) createRunDirect(run *model.Run) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO runs (org_id, report_name, dashboard_id, format, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.OrgID, run.ReportName, run.DashboardID, string(run.Format), run.Status, run.StartedAt.UnixMicro(),
	)
	if err != nil {
		return 0, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	run.ID = id
	return id, nil
}

// UpdateRun stores the outcome of run (queued for serialized execution)
func (s *Store) UpdateRun(ctx context.Context, run *model.Run) error {
	return s.writeQueue.enqueue(ctx, opUpdateRun, run)
}

func (s *Store) updateRunDirect(run *model.Run) (int64, error) {
	var finishedAt sql.NullInt64
	if run.FinishedAt != nil {
		finishedAt = sql.NullInt64{Int64: run.FinishedAt.UnixMicro(), Valid: true}
	}

	result, err := s.db.Exec(`
		UPDATE runs SET
			format = ?, status = ?, email_sent = ?, error_text = ?, bytes = ?, checksum = ?, finished_at = ?
		WHERE id = ?`,
		string(run.Format), run.Status, run.EmailSent, nullString(run.ErrorText), run.Bytes,
		nullString(run.Checksum), finishedAt, run.ID,
	)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("run %d not found", run.ID)
	}
	return n, nil
}

// PruneRuns deletes runs started before cutoff and returns how many were removed
func (s *Store) PruneRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.writeQueue.enqueueResult(ctx, opPruneRuns, cutoff)
}

func (s *Store) pruneRunsDirect(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM runs WHERE started_at < ?`, cutoff.UnixMicro())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ListRuns returns the most recent runs of a report, newest first
func (s *Store) ListRuns(ctx context.Context, orgID, reportName string, limit int) ([]*model.Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, report_name, dashboard_id, format, status, email_sent,
		       error_text, bytes, checksum, started_at, finished_at
		FROM runs WHERE org_id = ? AND report_name = ?
		ORDER BY started_at DESC, id DESC LIMIT ?`,
		orgID, reportName, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]*model.Run, 0)
	for rows.Next() {
		run := &model.Run{}
		var (
			format              string
			errorText, checksum sql.NullString
			startedAt           int64
			finishedAt          sql.NullInt64
		)

		if err := rows.Scan(
			&run.ID, &run.OrgID, &run.ReportName, &run.DashboardID, &format, &run.Status,
			&run.EmailSent, &errorText, &run.Bytes, &checksum, &startedAt, &finishedAt,
		); err != nil {
			return nil, err
		}

		run.Format = model.ArtifactFormat(format)
		run.ErrorText = errorText.String
		run.Checksum = checksum.String
		run.StartedAt = time.UnixMicro(startedAt).UTC()
		if finishedAt.Valid {
			t := time.UnixMicro(finishedAt.Int64).UTC()
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Close drains pending writes and closes the database
func (s *Store) Close() error {
	if s.writeQueue != nil {
		s.writeQueue.shutdown()
	}
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
