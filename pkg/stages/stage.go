package stages

import (
	"context"
	"time"

	"github.com/malscan/malscan/pkg/types"
)

// StageContext carries everything a stage needs: job identity, the
// local artifact path, and the results of prior stages so later stages
// may read earlier findings.
type StageContext struct {
	JobID            string
	FileID           string
	StorageKey       string
	SHA256           string
	OriginalFilename string
	FilePath         string
	PreviousResults  []types.StageResult
}

// Stage is one unit of the analysis pipeline. Execute never returns an
// error: faults are encoded as a failed StageResult so a broken stage
// cannot crash the worker.
type Stage interface {
	Name() string
	Execute(ctx context.Context, sc *StageContext) types.StageResult
}

func okResult(name string, started time.Time, findings map[string]interface{}) types.StageResult {
	return finishResult(name, started, types.StageStatusOK, findings, "")
}

func failedResult(name string, started time.Time, errMsg string) types.StageResult {
	return finishResult(name, started, types.StageStatusFailed, map[string]interface{}{}, errMsg)
}

func skippedResult(name string, started time.Time, findings map[string]interface{}) types.StageResult {
	return finishResult(name, started, types.StageStatusSkipped, findings, "")
}

func finishResult(name string, started time.Time, status types.StageStatus, findings map[string]interface{}, errMsg string) types.StageResult {
	ended := time.Now().UTC()
	return types.StageResult{
		StageName:  name,
		Status:     status,
		StartedAt:  started,
		EndedAt:    ended,
		DurationMS: ended.Sub(started).Milliseconds(),
		Findings:   findings,
		Artifacts:  []string{},
		Error:      errMsg,
	}
}
