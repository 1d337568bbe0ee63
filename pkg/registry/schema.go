package registry

import (
	"context"
	"fmt"
)

// Schema bootstrap. Both statements are idempotent so every process may
// run them at startup; the first one to reach the database wins.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS files (
		id           UUID PRIMARY KEY,
		sha256       VARCHAR(64) NOT NULL UNIQUE,
		size         BIGINT NOT NULL,
		filename     VARCHAR(255) NOT NULL,
		content_type VARCHAR(100) NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_files_sha256 ON files (sha256)`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id            UUID PRIMARY KEY,
		file_id       UUID NOT NULL REFERENCES files (id),
		status        VARCHAR(20) NOT NULL,
		current_stage VARCHAR(50),
		stages_done   INTEGER NOT NULL DEFAULT 0,
		stages_total  INTEGER NOT NULL DEFAULT 5,
		error_message TEXT,
		result        JSONB,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_file_id ON jobs (file_id)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs (status)`,
}

// Bootstrap creates the files and jobs tables if they are absent
func (p *Postgres) Bootstrap(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema bootstrap failed: %w", err)
		}
	}
	return nil
}
