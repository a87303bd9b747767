package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/hnsc-omics/omics-cli/internal/db"
	"github.com/hnsc-omics/omics-cli/internal/model"
)

// RunLog provides read/write access to the omics.pipeline_run table.
type RunLog struct {
	pool db.Pool
}

// NewRunLog creates a RunLog backed by the given connection pool.
func NewRunLog(pool db.Pool) *RunLog {
	return &RunLog{pool: pool}
}

// Start records the beginning of a pipeline run and returns it.
func (r *RunLog) Start(ctx context.Context, source string) (*model.PipelineRun, error) {
	run := &model.PipelineRun{
		RunID:    uuid.NewString(),
		Source:   source,
		Stage:    model.StagePending,
		Attempts: 1,
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO omics.pipeline_run (run_id, source, stage, attempts, started_at)
		 VALUES ($1, $2, $3, 1, now()) RETURNING started_at`,
		run.RunID, run.Source, string(run.Stage),
	).Scan(&run.StartedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "runlog: start run for %s", source)
	}
	return run, nil
}

// Resume bumps the attempt counter of an existing run and returns it.
// Used when a run is re-driven after an interruption.
func (r *RunLog) Resume(ctx context.Context, runID string) (*model.PipelineRun, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE omics.pipeline_run
		 SET attempts = attempts + 1, finished_at = NULL
		 WHERE run_id = $1
		 RETURNING run_id, source, stage, attempts, started_at, finished_at, error_summary`,
		runID,
	)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Errorf("runlog: unknown run %s", runID)
		}
		return nil, eris.Wrapf(err, "runlog: resume run %s", runID)
	}
	return run, nil
}

// SetStage records the run's current stage.
func (r *RunLog) SetStage(ctx context.Context, runID string, stage model.Stage) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE omics.pipeline_run SET stage = $1 WHERE run_id = $2`,
		string(stage), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: set stage %s for run %s", stage, runID)
	}
	return nil
}

// Finish marks a run finished at the given stage and stores its
// summary.
func (r *RunLog) Finish(ctx context.Context, runID string, stage model.Stage, summary *model.RunSummary) error {
	var summaryJSON []byte
	if summary != nil {
		var err error
		summaryJSON, err = json.Marshal(summary)
		if err != nil {
			return eris.Wrap(err, "runlog: marshal summary")
		}
	}

	_, err := r.pool.Exec(ctx,
		`UPDATE omics.pipeline_run
		 SET stage = $1, finished_at = now(), error_summary = $2
		 WHERE run_id = $3`,
		string(stage), summaryJSON, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: finish run %s", runID)
	}
	return nil
}

// Get returns one run by ID, or nil if none exists.
func (r *RunLog) Get(ctx context.Context, runID string) (*model.PipelineRun, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT run_id, source, stage, attempts, started_at, finished_at, error_summary
		 FROM omics.pipeline_run WHERE run_id = $1`,
		runID,
	)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "runlog: get run %s", runID)
	}
	return run, nil
}

// List returns runs ordered by most recent first, capped at limit
// (all runs when limit <= 0).
func (r *RunLog) List(ctx context.Context, source string, limit int) ([]model.PipelineRun, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.pool.Query(ctx,
		`SELECT run_id, source, stage, attempts, started_at, finished_at, error_summary
		 FROM omics.pipeline_run
		 WHERE ($1 = '' OR source = $1)
		 ORDER BY started_at DESC LIMIT $2`,
		source, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list runs")
	}
	defer rows.Close()

	var runs []model.PipelineRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "runlog: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// scanRun reads one pipeline_run row.
func scanRun(row pgx.Row) (*model.PipelineRun, error) {
	var run model.PipelineRun
	var stage string
	var finishedAt *time.Time
	var summaryJSON []byte

	err := row.Scan(&run.RunID, &run.Source, &stage, &run.Attempts,
		&run.StartedAt, &finishedAt, &summaryJSON)
	if err != nil {
		return nil, err
	}

	run.Stage = model.Stage(stage)
	run.FinishedAt = finishedAt
	if summaryJSON != nil {
		var s model.RunSummary
		if err := json.Unmarshal(summaryJSON, &s); err == nil {
			run.ErrorSummary = &s
		}
	}
	return &run, nil
}
