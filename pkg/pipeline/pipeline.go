package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/malscan/malscan/pkg/config"
	"github.com/malscan/malscan/pkg/log"
	"github.com/malscan/malscan/pkg/metrics"
	"github.com/malscan/malscan/pkg/stages"
	"github.com/malscan/malscan/pkg/types"
)

// ProgressWriter records per-stage progress in the job registry.
// Progress writes are best-effort: a failed write is logged and the
// pipeline continues.
type ProgressWriter interface {
	UpdateStage(ctx context.Context, jobID, stage string, stagesDone int) error
}

// Pipeline runs the ordered analysis stages against a fetched artifact
// and assembles the final report.
type Pipeline struct {
	stages   []stages.Stage
	progress ProgressWriter
	timeout  time.Duration
}

// New builds the pipeline with the standard stage order: file-type,
// clamav, yara, ioc-extract, sandbox.
func New(cfg config.Config, progress ProgressWriter) *Pipeline {
	return &Pipeline{
		stages: []stages.Stage{
			stages.NewFileTypeStage(),
			stages.NewClamAVStage(cfg.ClamscanPath),
			stages.NewYaraStage(cfg.YaraRulesPath),
			stages.NewIOCExtractStage(),
			stages.NewSandboxStage(cfg.SandboxEnabled, cfg.SandboxMock),
		},
		progress: progress,
		timeout:  time.Duration(cfg.StageTimeoutSeconds) * time.Second,
	}
}

// StagesTotal returns the number of stages the pipeline will run
func (p *Pipeline) StagesTotal() int {
	return len(p.stages)
}

// Run executes all stages in order against the artifact at filePath.
// It stops at the first failed stage and returns an error; skipped
// stages do not stop the run. On success the assembled report is
// returned for the caller to persist.
func (p *Pipeline) Run(ctx context.Context, msg types.QueueMessage, filePath string) (*types.Report, error) {
	logger := log.WithJobID(msg.JobID)
	logger.Info().
		Str("file_id", msg.FileID).
		Int("stages_total", len(p.stages)).
		Msg("pipeline started")

	sc := &stages.StageContext{
		JobID:            msg.JobID,
		FileID:           msg.FileID,
		StorageKey:       msg.StorageKey,
		SHA256:           msg.SHA256,
		OriginalFilename: msg.OriginalFilename,
		FilePath:         filePath,
	}

	totalStart := time.Now().UTC()
	results := make([]types.StageResult, 0, len(p.stages))

	for i, stage := range p.stages {
		stageLogger := logger.With().Str("stage", stage.Name()).Logger()
		stageLogger.Info().
			Int("stage_number", i+1).
			Int("stages_total", len(p.stages)).
			Msg("stage started")

		if err := p.progress.UpdateStage(ctx, msg.JobID, stage.Name(), i); err != nil {
			stageLogger.Warn().Err(err).Msg("progress update failed, continuing")
		}

		result := p.runStage(ctx, stage, sc)
		results = append(results, result)
		sc.PreviousResults = results

		metrics.StageLatency.
			WithLabelValues(stage.Name(), string(result.Status)).
			Observe(float64(result.DurationMS) / 1000)

		stageLogger.Info().
			Str("status", string(result.Status)).
			Int64("duration_ms", result.DurationMS).
			Msg("stage completed")

		if result.Status == types.StageStatusFailed {
			stageLogger.Error().Str("error", result.Error).Msg("pipeline failed")
			return nil, fmt.Errorf("stage %s failed: %s", stage.Name(), result.Error)
		}
	}

	totalMS := time.Now().UTC().Sub(totalStart).Milliseconds()
	logger.Info().Int64("total_ms", totalMS).Msg("pipeline completed")

	return buildReport(msg, results, totalMS), nil
}

// runStage executes one stage under the configured hard timeout. The
// stage goroutine is left to finish on its own after a timeout; the
// buffered channel lets its late result be dropped without leaking.
func (p *Pipeline) runStage(ctx context.Context, stage stages.Stage, sc *stages.StageContext) types.StageResult {
	stageCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	started := time.Now().UTC()
	done := make(chan types.StageResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ended := time.Now().UTC()
				done <- types.StageResult{
					StageName:  stage.Name(),
					Status:     types.StageStatusFailed,
					StartedAt:  started,
					EndedAt:    ended,
					DurationMS: ended.Sub(started).Milliseconds(),
					Findings:   map[string]interface{}{},
					Artifacts:  []string{},
					Error:      fmt.Sprintf("stage panic: %v", r),
				}
			}
		}()
		done <- stage.Execute(stageCtx, sc)
	}()

	select {
	case result := <-done:
		return result
	case <-stageCtx.Done():
		ended := time.Now().UTC()
		result := types.StageResult{
			StageName: stage.Name(),
			Status:    types.StageStatusFailed,
			StartedAt: started,
			EndedAt:   ended,
			Findings:  map[string]interface{}{},
			Artifacts: []string{},
		}
		// Parent cancellation is not a stage timeout; only the
		// per-stage timer gets the timeout error and duration.
		if err := ctx.Err(); err != nil {
			result.DurationMS = ended.Sub(started).Milliseconds()
			result.Error = err.Error()
			return result
		}
		seconds := int(p.timeout.Seconds())
		result.DurationMS = int64(seconds) * 1000
		result.Error = fmt.Sprintf("Stage timeout after %ds", seconds)
		return result
	}
}
