package api

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/malscan/malscan/pkg/log"
	"github.com/malscan/malscan/pkg/registry"
	"github.com/malscan/malscan/pkg/types"
)

// UploadResponse is returned on successful submission
type UploadResponse struct {
	JobID     string    `json:"job_id"`
	FileID    string    `json:"file_id"`
	SHA256    string    `json:"sha256"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Progress is the stage-progress section of a job status response
type Progress struct {
	CurrentStage *string `json:"current_stage"`
	StagesDone   int     `json:"stages_done"`
	StagesTotal  int     `json:"stages_total"`
	Percent      int     `json:"percent"`
}

// multipartOverhead is the allowance for multipart boundaries and part
// headers on top of the file payload when bounding a request body.
const multipartOverhead = 10 << 10

// JobStatusResponse describes a job's lifecycle state and progress
type JobStatusResponse struct {
	JobID        string          `json:"job_id"`
	Status       types.JobStatus `json:"status"`
	Progress     Progress        `json:"progress"`
	UpdatedAt    time.Time       `json:"updated_at"`
	ErrorMessage *string         `json:"error_message"`
}

// handleUpload accepts a multipart upload, stores the blob under its
// digest, registers file and job rows, and enqueues the job. A publish
// failure is logged but does not fail the request: the job row is
// already committed and queryable, and an operator can republish.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.WithComponent("api")

	// Bound the body before parsing so an oversized upload is refused
	// without buffering the whole thing.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxFileSize+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusBadRequest, "FILE_TOO_LARGE",
				"File size exceeds limit", map[string]interface{}{
					"max_size_bytes":    s.cfg.MaxFileSize,
					"actual_size_bytes": r.ContentLength,
				})
			return
		}
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			"Multipart field 'file' is required", nil)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"Failed to read upload", nil)
		return
	}
	size := int64(len(content))

	logger.Info().
		Str("filename", header.Filename).
		Str("content_type", header.Header.Get("Content-Type")).
		Int64("size", size).
		Msg("file upload started")

	if size > s.cfg.MaxFileSize {
		writeError(w, http.StatusBadRequest, "FILE_TOO_LARGE",
			"File size exceeds limit", map[string]interface{}{
				"max_size_bytes":    s.cfg.MaxFileSize,
				"actual_size_bytes": size,
			})
		return
	}

	sum := sha256.Sum256(content)
	digest := hex.EncodeToString(sum[:])

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if err := s.blobs.Put(ctx, digest, content, contentType); err != nil {
		logger.Error().Err(err).Str("sha256", digest).Msg("blob store write failed")
		writeError(w, http.StatusInternalServerError, "STORAGE_ERROR",
			"Failed to store file", nil)
		return
	}

	fileRec, err := s.store.LookupFileBySHA256(ctx, digest)
	if errors.Is(err, registry.ErrNotFound) {
		fileRec = &types.File{
			ID:          uuid.New().String(),
			SHA256:      digest,
			Size:        size,
			Filename:    header.Filename,
			ContentType: contentType,
			CreatedAt:   time.Now().UTC(),
		}
		err = s.store.InsertFile(ctx, fileRec)
	}
	if err != nil {
		logger.Error().Err(err).Str("sha256", digest).Msg("file registration failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"Failed to register file", nil)
		return
	}

	job, err := s.store.InsertJob(ctx, fileRec.ID, s.cfg.StagesTotal)
	if err != nil {
		logger.Error().Err(err).Str("file_id", fileRec.ID).Msg("job creation failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"Failed to create job", nil)
		return
	}

	msg := types.QueueMessage{
		JobID:            job.ID,
		FileID:           fileRec.ID,
		StorageKey:       digest,
		SHA256:           digest,
		OriginalFilename: header.Filename,
	}
	if err := s.publisher.Publish(ctx, msg); err != nil {
		// The job row is committed; the client still gets a queryable
		// job_id and the republish tool can pick the job up later.
		logger.Error().Err(err).Str("job_id", job.ID).Msg("queue publish failed, job remains queued")
	}

	logger.Info().
		Str("job_id", job.ID).
		Str("file_id", fileRec.ID).
		Str("sha256", digest).
		Int64("size", size).
		Str("filename", header.Filename).
		Msg("file uploaded")

	writeJSON(w, http.StatusCreated, UploadResponse{
		JobID:     job.ID,
		FileID:    fileRec.ID,
		SHA256:    digest,
		Status:    string(types.JobStatusQueued),
		CreatedAt: job.CreatedAt,
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JOB_ID", "Invalid job id", nil)
		return
	}

	job, err := s.store.GetJob(r.Context(), id)
	if errors.Is(err, registry.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
		return
	}
	if err != nil {
		lg := log.WithComponent("api")
		lg.Error().Err(err).Str("job_id", id).Msg("job lookup failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load job", nil)
		return
	}

	percent := 0
	if job.StagesTotal > 0 {
		percent = 100 * job.StagesDone / job.StagesTotal
	}

	resp := JobStatusResponse{
		JobID:  job.ID,
		Status: job.Status,
		Progress: Progress{
			StagesDone:  job.StagesDone,
			StagesTotal: job.StagesTotal,
			Percent:     percent,
		},
		UpdatedAt: job.UpdatedAt,
	}
	if job.CurrentStage != "" {
		resp.Progress.CurrentStage = &job.CurrentStage
	}
	if job.ErrorMessage != "" {
		resp.ErrorMessage = &job.ErrorMessage
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JOB_ID", "Invalid job id", nil)
		return
	}

	job, err := s.store.GetJob(r.Context(), id)
	if errors.Is(err, registry.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
		return
	}
	if err != nil {
		lg := log.WithComponent("api")
		lg.Error().Err(err).Str("job_id", id).Msg("job lookup failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load job", nil)
		return
	}

	if job.Status != types.JobStatusDone {
		writeError(w, http.StatusBadRequest, "JOB_NOT_COMPLETED",
			fmt.Sprintf("Job is not completed, current status: %s", job.Status), nil)
		return
	}
	if job.Result == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Report not found", nil)
		return
	}

	writeJSON(w, http.StatusOK, job.Result)
}
