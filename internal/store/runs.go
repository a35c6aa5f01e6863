package store

import (
	"context"
	"database/sql"
	"fmt"
)

// RecordRun persists a finished run, its measurements, and its output in
// one transaction, and removes the queue entry for run.Hash on success.
// Missing metric rows are upserted before their measurements.
func (s *Store) RecordRun(ctx context.Context, run FinishedRun, workerName, workerInfo string) error {
	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}

	if err := s.recordRunTx(ctx, tx, run, workerName, workerInfo); err != nil {
		_ = tx.Rollback()

		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record run: %w", err)
	}

	return nil
}

func (s *Store) recordRunTx(ctx context.Context, tx *sql.Tx, run FinishedRun, workerName, workerInfo string) error {
	var endUnix sql.NullInt64
	if run.End != nil {
		endUnix = sql.NullInt64{Int64: run.End.Unix(), Valid: true}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, hash, bench_method, worker_name, worker_info, start, end, exit_code)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Hash, run.BenchMethod, workerName, workerInfo, run.Start.Unix(), endUnix, run.ExitCode)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	for name, m := range run.Measurements {
		if err := upsertMetric(ctx, tx, name, m.Unit); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO measurements (run_id, metric_name, value, unit) VALUES (?, ?, ?, ?)`,
			run.ID, name, m.Value, m.Unit)
		if err != nil {
			return fmt.Errorf("insert measurement %s for run %s: %w", name, run.ID, err)
		}
	}

	for i, line := range run.Output {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO run_output (run_id, line_index, source, text) VALUES (?, ?, ?, ?)`,
			run.ID, i, int(line.Source), line.Text)
		if err != nil {
			return fmt.Errorf("insert output line %d for run %s: %w", i, run.ID, err)
		}
	}

	if err := dequeueTx(ctx, tx, run.Hash); err != nil {
		return err
	}

	return nil
}

func upsertMetric(ctx context.Context, tx *sql.Tx, name, unit string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO metrics (name, unit) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET unit = excluded.unit`,
		name, unit)
	if err != nil {
		return fmt.Errorf("upsert metric %s: %w", name, err)
	}

	return nil
}

// RunsForHash returns every run recorded for a commit hash, newest first,
// for the web UI's per-commit history view.
func (s *Store) RunsForHash(ctx context.Context, hash string) ([]Run, error) {
	rows, err := s.reader.QueryContext(ctx, `
		SELECT id, hash, bench_method, worker_name, worker_info, start, end, exit_code
		FROM runs WHERE hash = ? ORDER BY start DESC`, hash)
	if err != nil {
		return nil, fmt.Errorf("query runs for %s: %w", hash, err)
	}
	defer rows.Close()

	var runs []Run

	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}

		runs = append(runs, *r)
	}

	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		r              Run
		start          int64
		end            sql.NullInt64
	)

	err := row.Scan(&r.ID, &r.Hash, &r.BenchMethod, &r.WorkerName, &r.WorkerInfo, &start, &end, &r.ExitCode)
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	r.Start = unixToTime(start)

	if end.Valid {
		t := unixToTime(end.Int64)
		r.End = &t
	}

	return &r, nil
}

// MeasurementsForRun returns every measurement recorded for a run.
func (s *Store) MeasurementsForRun(ctx context.Context, runID string) ([]Measurement, error) {
	rows, err := s.reader.QueryContext(ctx, `
		SELECT run_id, metric_name, value, unit FROM measurements WHERE run_id = ? ORDER BY metric_name`, runID)
	if err != nil {
		return nil, fmt.Errorf("query measurements for %s: %w", runID, err)
	}
	defer rows.Close()

	var out []Measurement

	for rows.Next() {
		var m Measurement
		if err := rows.Scan(&m.RunID, &m.MetricName, &m.Value, &m.Unit); err != nil {
			return nil, fmt.Errorf("scan measurement: %w", err)
		}

		out = append(out, m)
	}

	return out, rows.Err()
}

// OutputForRun returns every output line of a run in line_index order,
// a contiguous 0..N sequence.
func (s *Store) OutputForRun(ctx context.Context, runID string) ([]OutputLine, error) {
	rows, err := s.reader.QueryContext(ctx, `
		SELECT run_id, line_index, source, text FROM run_output
		WHERE run_id = ? ORDER BY line_index ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query output for %s: %w", runID, err)
	}
	defer rows.Close()

	var lines []OutputLine

	for rows.Next() {
		var (
			line   OutputLine
			source int
		)

		if err := rows.Scan(&line.RunID, &line.LineIndex, &source, &line.Text); err != nil {
			return nil, fmt.Errorf("scan output line: %w", err)
		}

		line.Source = OutputSource(source)
		lines = append(lines, line)
	}

	return lines, rows.Err()
}
