package registry

import (
	"context"
	"errors"
	"time"

	"github.com/malscan/malscan/pkg/types"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("registry: not found")

// StatusUpdate describes a targeted job mutation. Nil fields are left
// untouched; ClearStage forces current_stage to NULL regardless of
// CurrentStage.
type StatusUpdate struct {
	Status       types.JobStatus
	ErrorMessage *string
	CurrentStage *string
	ClearStage   bool
	StagesDone   *int
}

// Store defines the interface for file and job persistence
type Store interface {
	// Files
	LookupFileBySHA256(ctx context.Context, digest string) (*types.File, error)
	InsertFile(ctx context.Context, file *types.File) error
	GetFile(ctx context.Context, id string) (*types.File, error)

	// Jobs
	InsertJob(ctx context.Context, fileID string, stagesTotal int) (*types.Job, error)
	GetJob(ctx context.Context, id string) (*types.Job, error)
	UpdateStatus(ctx context.Context, jobID string, upd StatusUpdate) error
	UpdateStage(ctx context.Context, jobID, stage string, stagesDone int) error
	UpdateResult(ctx context.Context, jobID string, report *types.Report) error

	// ListStalledJobs returns queued jobs not updated since the cutoff,
	// used by the republish operator tool.
	ListStalledJobs(ctx context.Context, cutoff time.Time) ([]*types.Job, error)

	// Utility
	Ping(ctx context.Context) error
	Close()
}
