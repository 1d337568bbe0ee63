package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/malscan/malscan/pkg/log"
	"github.com/malscan/malscan/pkg/types"
)

// Postgres implements Store backed by a pgx connection pool
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database and bootstraps the schema if
// the tables are absent.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	p := &Postgres{pool: pool}
	if err := p.Bootstrap(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	lg := log.WithComponent("registry")
	lg.Info().Msg("connected to database")
	return p, nil
}

// LookupFileBySHA256 returns the file with the given digest, or
// ErrNotFound.
func (p *Postgres) LookupFileBySHA256(ctx context.Context, digest string) (*types.File, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, sha256, size, filename, content_type, created_at
		 FROM files WHERE sha256 = $1`, digest)
	return scanFile(row)
}

// GetFile returns the file with the given id, or ErrNotFound
func (p *Postgres) GetFile(ctx context.Context, id string) (*types.File, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, sha256, size, filename, content_type, created_at
		 FROM files WHERE id = $1`, id)
	return scanFile(row)
}

// InsertFile inserts a new file row. Concurrent uploads of the same
// digest race on the sha256 unique key; the loser re-reads the winner's
// row so both callers observe one file.
func (p *Postgres) InsertFile(ctx context.Context, file *types.File) error {
	if file.ID == "" {
		file.ID = uuid.New().String()
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now().UTC()
	}

	tag, err := p.pool.Exec(ctx,
		`INSERT INTO files (id, sha256, size, filename, content_type, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (sha256) DO NOTHING`,
		file.ID, file.SHA256, file.Size, file.Filename, file.ContentType, file.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert file: %w", err)
	}

	if tag.RowsAffected() == 0 {
		existing, err := p.LookupFileBySHA256(ctx, file.SHA256)
		if err != nil {
			return fmt.Errorf("failed to read file after dedup conflict: %w", err)
		}
		*file = *existing
	}
	return nil
}

// InsertJob creates a new queued job for the given file
func (p *Postgres) InsertJob(ctx context.Context, fileID string, stagesTotal int) (*types.Job, error) {
	now := time.Now().UTC()
	job := &types.Job{
		ID:          uuid.New().String(),
		FileID:      fileID,
		Status:      types.JobStatusQueued,
		StagesTotal: stagesTotal,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := p.pool.Exec(ctx,
		`INSERT INTO jobs (id, file_id, status, stages_done, stages_total, created_at, updated_at)
		 VALUES ($1, $2, $3, 0, $4, $5, $6)`,
		job.ID, job.FileID, job.Status, job.StagesTotal, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert job: %w", err)
	}
	return job, nil
}

// GetJob returns the job with the given id, or ErrNotFound
func (p *Postgres) GetJob(ctx context.Context, id string) (*types.Job, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, file_id, status, current_stage, stages_done, stages_total,
		        error_message, result, created_at, updated_at
		 FROM jobs WHERE id = $1`, id)
	return scanJob(row)
}

// UpdateStatus applies a targeted status mutation to a job row
func (p *Postgres) UpdateStatus(ctx context.Context, jobID string, upd StatusUpdate) error {
	set := "status = $2, updated_at = $3"
	args := []interface{}{jobID, upd.Status, time.Now().UTC()}

	if upd.ErrorMessage != nil {
		args = append(args, *upd.ErrorMessage)
		set += fmt.Sprintf(", error_message = $%d", len(args))
	}
	if upd.ClearStage {
		set += ", current_stage = NULL"
	} else if upd.CurrentStage != nil {
		args = append(args, *upd.CurrentStage)
		set += fmt.Sprintf(", current_stage = $%d", len(args))
	}
	if upd.StagesDone != nil {
		args = append(args, *upd.StagesDone)
		set += fmt.Sprintf(", stages_done = $%d", len(args))
	}

	tag, err := p.pool.Exec(ctx, "UPDATE jobs SET "+set+" WHERE id = $1", args...)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStage records stage entry: the stage about to run and the
// count of stages already completed.
func (p *Postgres) UpdateStage(ctx context.Context, jobID, stage string, stagesDone int) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE jobs SET current_stage = $2, stages_done = $3, updated_at = $4 WHERE id = $1`,
		jobID, stage, stagesDone, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update job stage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateResult persists the report and transitions the job to done in
// a single statement.
func (p *Postgres) UpdateResult(ctx context.Context, jobID string, report *types.Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	tag, err := p.pool.Exec(ctx,
		`UPDATE jobs
		 SET status = $2, result = $3, stages_done = stages_total,
		     current_stage = NULL, error_message = NULL, updated_at = $4
		 WHERE id = $1`,
		jobID, types.JobStatusDone, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to persist result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListStalledJobs returns queued jobs last touched before the cutoff
func (p *Postgres) ListStalledJobs(ctx context.Context, cutoff time.Time) ([]*types.Job, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, file_id, status, current_stage, stages_done, stages_total,
		        error_message, result, created_at, updated_at
		 FROM jobs WHERE status = $1 AND updated_at < $2
		 ORDER BY created_at`,
		types.JobStatusQueued, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stalled jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Ping verifies database connectivity
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases the connection pool
func (p *Postgres) Close() {
	p.pool.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFile(row rowScanner) (*types.File, error) {
	var f types.File
	err := row.Scan(&f.ID, &f.SHA256, &f.Size, &f.Filename, &f.ContentType, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan file: %w", err)
	}
	return &f, nil
}

func scanJob(row rowScanner) (*types.Job, error) {
	var (
		j            types.Job
		currentStage *string
		errorMessage *string
		result       []byte
	)
	err := row.Scan(&j.ID, &j.FileID, &j.Status, &currentStage, &j.StagesDone,
		&j.StagesTotal, &errorMessage, &result, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	if currentStage != nil {
		j.CurrentStage = *currentStage
	}
	if errorMessage != nil {
		j.ErrorMessage = *errorMessage
	}
	if len(result) > 0 {
		var report types.Report
		if err := json.Unmarshal(result, &report); err != nil {
			return nil, fmt.Errorf("failed to decode stored report: %w", err)
		}
		j.Result = &report
	}
	return &j, nil
}
