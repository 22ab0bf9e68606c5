package db

import (
	"database/sql"
	"fmt"
	"time"
)

// File outcome statuses.
const (
	StatusProcessed = "processed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// Run is one pipeline run.
type Run struct {
	RunID          string
	Started        time.Time
	Finished       time.Time // zero while the run is open
	InputDir       string
	Target         string
	Filter         string
	Segmentation   string
	FilesProcessed int
	FilesFailed    int
	Segments       int
	Classes        int
	Error          string
}

// FileOutcome records what a run did with one recording file.
type FileOutcome struct {
	RunID         string
	Source        string
	Status        string
	Encoding      string
	Samples       int
	Segments      int
	SourceDeleted bool
	Error         string
	Recorded      time.Time
}

// StartRun inserts an open run.
func (db *DB) StartRun(r Run) error {
	_, err := db.Exec(`INSERT INTO pipeline_runs (
			run_id, started_unix, input_dir, target, filter, segmentation
		) VALUES (?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Started.Unix(), r.InputDir, r.Target, r.Filter, r.Segmentation,
	)
	if err != nil {
		return fmt.Errorf("failed to start run %s: %w", r.RunID, err)
	}
	return nil
}

// RecordFile appends a file outcome to a run.
func (db *DB) RecordFile(o FileOutcome) error {
	_, err := db.Exec(`INSERT INTO file_outcomes (
			run_id, source, status, encoding, samples, segments, source_deleted, error, recorded_unix
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.RunID, o.Source, o.Status, nullString(o.Encoding), o.Samples, o.Segments,
		o.SourceDeleted, nullString(o.Error), o.Recorded.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", o.Source, err)
	}
	return nil
}

// FinishRun closes a run with its totals.
func (db *DB) FinishRun(r Run) error {
	res, err := db.Exec(`UPDATE pipeline_runs SET
			finished_unix = ?, files_processed = ?, files_failed = ?,
			segments = ?, classes = ?, run_error = ?
		WHERE run_id = ?`,
		r.Finished.Unix(), r.FilesProcessed, r.FilesFailed,
		r.Segments, r.Classes, nullString(r.Error), r.RunID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", r.RunID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to finish run %s: %w", r.RunID, sql.ErrNoRows)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (db *DB) RecentRuns(limit int) ([]Run, error) {
	rows, err := db.Query(`SELECT run_id, started_unix, finished_unix, input_dir, target,
			filter, segmentation, files_processed, files_failed, segments, classes, run_error
		FROM pipeline_runs ORDER BY started_unix DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			started  int64
			finished sql.NullInt64
			runErr   sql.NullString
		)
		if err := rows.Scan(&r.RunID, &started, &finished, &r.InputDir, &r.Target,
			&r.Filter, &r.Segmentation, &r.FilesProcessed, &r.FilesFailed,
			&r.Segments, &r.Classes, &runErr); err != nil {
			return nil, err
		}
		r.Started = time.Unix(started, 0).UTC()
		if finished.Valid {
			r.Finished = time.Unix(finished.Int64, 0).UTC()
		}
		r.Error = runErr.String
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// FileOutcomes returns the outcomes recorded for a run in insertion order.
func (db *DB) FileOutcomes(runID string) ([]FileOutcome, error) {
	rows, err := db.Query(`SELECT run_id, source, status, encoding, samples, segments,
			source_deleted, error, recorded_unix
		FROM file_outcomes WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FileOutcome
	for rows.Next() {
		var (
			o        FileOutcome
			enc, msg sql.NullString
			recorded int64
		)
		if err := rows.Scan(&o.RunID, &o.Source, &o.Status, &enc, &o.Samples, &o.Segments,
			&o.SourceDeleted, &msg, &recorded); err != nil {
			return nil, err
		}
		o.Encoding, o.Error = enc.String, msg.String
		o.Recorded = time.Unix(recorded, 0).UTC()
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ConsumedCount returns how many times source was deleted after being
// persisted, across all runs.
func (db *DB) ConsumedCount(source string) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM file_outcomes
		WHERE source = ? AND source_deleted = 1`, source).Scan(&n)
	return n, err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
