package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/flemzord/resticd/internal/jobs"
)

// statusRunning marks a run that has not finished yet.
const statusRunning = "running"

// timeLayout is fixed width so that stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// StartRun records a run that just started.
func (s *Store) StartRun(ctx context.Context, run *jobs.Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, job, source, status, queued_at, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Job, run.Source, statusRunning,
		formatTime(run.QueuedAt), formatTime(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("history: start run: %w", err)
	}
	return nil
}

// AddStep appends a step outcome to a run.
func (s *Store) AddStep(ctx context.Context, runID string, step jobs.StepResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO steps (run_id, seq, step, status, error, snapshot_id, started_at, duration_ns)
		VALUES (?, COALESCE((SELECT MAX(seq) FROM steps WHERE run_id = ?), 0) + 1,
		        ?, ?, ?, ?, ?, ?)`,
		runID, runID,
		string(step.Step), string(step.Status), step.Error, step.SnapshotID,
		formatTime(step.StartedAt), int64(step.Duration),
	)
	if err != nil {
		return fmt.Errorf("history: add step: %w", err)
	}
	return nil
}

// FinishRun records the final status of a run.
func (s *Store) FinishRun(ctx context.Context, run *jobs.Run) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE runs SET status = ?, finished_at = ? WHERE id = ?",
		string(run.Status), formatTime(run.FinishedAt), run.ID,
	)
	if err != nil {
		return fmt.Errorf("history: finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
	}
	return nil
}

// Run returns one run with its steps.
func (s *Store) Run(ctx context.Context, id string) (*jobs.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, job, source, status, queued_at, started_at, finished_at
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if run.Steps, err = s.steps(ctx, run.ID); err != nil {
		return nil, err
	}
	return run, nil
}

// Runs returns the n most recent runs of a job, newest first. An empty job
// name selects runs of every job.
func (s *Store) Runs(ctx context.Context, job string, n int) ([]*jobs.Run, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job, source, status, queued_at, started_at, finished_at
		FROM runs
		WHERE ? = '' OR job = ?
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`,
		job, job, n,
	)
	if err != nil {
		return nil, fmt.Errorf("history: list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*jobs.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: list runs rows: %w", err)
	}
	_ = rows.Close()

	for _, run := range runs {
		if run.Steps, err = s.steps(ctx, run.ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// Prune deletes all but the keep most recent runs of every job.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM runs WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY job ORDER BY started_at DESC, rowid DESC) AS rn
				FROM runs
			) WHERE rn > ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("history: prune: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) steps(ctx context.Context, runID string) ([]jobs.StepResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT step, status, error, snapshot_id, started_at, duration_ns
		FROM steps WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("history: list steps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var steps []jobs.StepResult
	for rows.Next() {
		var (
			step, status, started string
			res                   jobs.StepResult
			duration              int64
		)
		if err := rows.Scan(&step, &status, &res.Error, &res.SnapshotID, &started, &duration); err != nil {
			return nil, fmt.Errorf("history: scan step: %w", err)
		}
		res.Step = jobs.StepName(step)
		res.Status = jobs.StepStatus(status)
		res.StartedAt = parseTime(started)
		res.Duration = time.Duration(duration)
		steps = append(steps, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: list steps rows: %w", err)
	}
	return slices.Clip(steps), nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*jobs.Run, error) {
	var (
		run                          jobs.Run
		status, queued, started, fin string
	)
	if err := row.Scan(&run.ID, &run.Job, &run.Source, &status, &queued, &started, &fin); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("history: scan run: %w", err)
	}
	run.Status = jobs.StepStatus(status)
	run.QueuedAt = parseTime(queued)
	run.StartedAt = parseTime(started)
	run.FinishedAt = parseTime(fin)
	return &run, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
