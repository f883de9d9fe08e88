package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/job-collector/internal/extraction"
	"github.com/cuongbtq/job-collector/internal/worker/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS collector_jobs (
	job_id       TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	mode         TEXT NOT NULL DEFAULT '',
	input_kind   TEXT NOT NULL DEFAULT '',
	source_url   TEXT NOT NULL DEFAULT '',
	result       JSONB,
	result_file  TEXT NOT NULL DEFAULT '',
	error        JSONB,
	worker_id    TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	started_at   TIMESTAMPTZ,
	completed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_collector_jobs_created ON collector_jobs (created_at DESC, job_id DESC);
CREATE INDEX IF NOT EXISTS idx_collector_jobs_status ON collector_jobs (status);
`

const jobColumns = `job_id, status, mode, input_kind, source_url, result, result_file,
	error, worker_id, created_at, updated_at, started_at, completed_at`

// jobRow is the database shape of a job
type jobRow struct {
	JobID       string       `db:"job_id"`
	Status      string       `db:"status"`
	Mode        string       `db:"mode"`
	InputKind   string       `db:"input_kind"`
	SourceURL   string       `db:"source_url"`
	Result      nullJSON     `db:"result"`
	ResultFile  string       `db:"result_file"`
	Error       nullJSON     `db:"error"`
	WorkerID    string       `db:"worker_id"`
	CreatedAt   time.Time    `db:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at"`
	StartedAt   sql.NullTime `db:"started_at"`
	CompletedAt sql.NullTime `db:"completed_at"`
}

// nullJSON maps an empty document to SQL NULL
type nullJSON []byte

func (j nullJSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

func (j *nullJSON) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = nullJSON(v)
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
	return nil
}

// PostgresRegistry stores jobs in PostgreSQL so status survives API restarts
type PostgresRegistry struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresRegistry creates a registry over db
func NewPostgresRegistry(db *sqlx.DB, logger *slog.Logger) *PostgresRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRegistry{db: db, logger: logger}
}

// Migrate creates the jobs table when missing
func (p *PostgresRegistry) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate collector_jobs: %w", err)
	}
	return nil
}

func (p *PostgresRegistry) Put(ctx context.Context, job *domain.Job) error {
	row, err := toRow(job)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO collector_jobs (` + jobColumns + `)
		VALUES (
			:job_id, :status, :mode, :input_kind, :source_url, :result, :result_file,
			:error, :worker_id, :created_at, :updated_at, :started_at, :completed_at
		)
	`
	if _, err := p.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (p *PostgresRegistry) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	var row jobRow
	query := `SELECT ` + jobColumns + ` FROM collector_jobs WHERE job_id = $1`

	if err := p.db.GetContext(ctx, &row, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return fromRow(&row)
}

// CompareAndSwapState locks the row, applies mutate and writes it back guarded
// by the expected status
func (p *PostgresRegistry) CompareAndSwapState(ctx context.Context, jobID, from, to string, mutate func(*domain.Job)) (*domain.Job, error) {
	if !domain.CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s → %s", domain.ErrInvalidTransition, from, to)
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			p.logger.Warn("Failed to roll back job transaction",
				slog.String("job_id", jobID),
				slog.Any("error", err),
			)
		}
	}()

	var current jobRow
	query := `SELECT ` + jobColumns + ` FROM collector_jobs WHERE job_id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &current, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to lock job: %w", err)
	}
	if current.Status != from {
		return nil, fmt.Errorf("%w: job %s is %s, expected %s", domain.ErrStateConflict, jobID, current.Status, from)
	}

	job, err := fromRow(&current)
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(job)
	}
	job.JobID = jobID
	job.Status = to
	job.UpdatedAt = time.Now().UTC()

	next, err := toRow(job)
	if err != nil {
		return nil, err
	}

	update := `
		UPDATE collector_jobs
		SET status = $1,
		    result = $2,
		    result_file = $3,
		    error = $4,
		    worker_id = $5,
		    updated_at = $6,
		    started_at = $7,
		    completed_at = $8
		WHERE job_id = $9
		  AND status = $10
	`
	res, err := tx.ExecContext(ctx, update,
		next.Status, next.Result, next.ResultFile, next.Error, next.WorkerID,
		next.UpdatedAt, next.StartedAt, next.CompletedAt, jobID, from,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update job status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("%w: job %s changed concurrently", domain.ErrStateConflict, jobID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit job status: %w", err)
	}

	p.logger.Debug("Job status updated",
		slog.String("job_id", jobID),
		slog.String("from", from),
		slog.String("to", to),
	)
	return job, nil
}

func (p *PostgresRegistry) List(ctx context.Context, filter JobFilter) ([]*domain.Job, error) {
	query, args := buildListQuery(filter)

	var rows []jobRow
	if err := p.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]*domain.Job, 0, len(rows))
	for i := range rows {
		job, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func buildListQuery(filter JobFilter) (string, []any) {
	query := `SELECT ` + jobColumns + ` FROM collector_jobs WHERE 1=1`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	// newest first with job_id as tie breaker for stable pages
	query += " ORDER BY created_at DESC, job_id DESC"

	if filter.PageSize > 0 {
		// one extra row tells the caller whether another page exists
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filter.PageSize+1)
	}
	return query, args
}

func toRow(job *domain.Job) (*jobRow, error) {
	row := &jobRow{
		JobID:      job.JobID,
		Status:     job.Status,
		Mode:       job.Mode,
		InputKind:  job.InputKind,
		SourceURL:  job.SourceURL,
		ResultFile: job.ResultFile,
		WorkerID:   job.WorkerID,
		CreatedAt:  job.CreatedAt,
		UpdatedAt:  job.UpdatedAt,
	}
	if job.Result != nil {
		b, err := json.Marshal(job.Result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}
		row.Result = b
	}
	if job.Error != nil {
		b, err := json.Marshal(job.Error)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal error: %w", err)
		}
		row.Error = b
	}
	if job.StartedAt != nil {
		row.StartedAt = sql.NullTime{Time: *job.StartedAt, Valid: true}
	}
	if job.CompletedAt != nil {
		row.CompletedAt = sql.NullTime{Time: *job.CompletedAt, Valid: true}
	}
	return row, nil
}

func fromRow(row *jobRow) (*domain.Job, error) {
	job := &domain.Job{
		JobID:      row.JobID,
		Status:     row.Status,
		Mode:       row.Mode,
		InputKind:  row.InputKind,
		SourceURL:  row.SourceURL,
		ResultFile: row.ResultFile,
		WorkerID:   row.WorkerID,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
	if len(row.Result) > 0 {
		var rec extraction.Record
		if err := json.Unmarshal(row.Result, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode result of job %s: %w", row.JobID, err)
		}
		job.Result = &rec
	}
	if len(row.Error) > 0 {
		var je domain.JobError
		if err := json.Unmarshal(row.Error, &je); err != nil {
			return nil, fmt.Errorf("failed to decode error of job %s: %w", row.JobID, err)
		}
		job.Error = &je
	}
	if row.StartedAt.Valid {
		t := row.StartedAt.Time
		job.StartedAt = &t
	}
	if row.CompletedAt.Valid {
		t := row.CompletedAt.Time
		job.CompletedAt = &t
	}
	return job, nil
}
