package types

import (
	"time"
)

// File represents an uploaded artifact, deduplicated by SHA256 hash.
// File rows are created on first upload of a given digest and never
// mutated or deleted afterwards.
type File struct {
	ID          string    `json:"id"`
	SHA256      string    `json:"sha256"`
	Size        int64     `json:"size"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
}

// JobStatus represents the lifecycle state of an analysis job
type JobStatus string

const (
	JobStatusQueued   JobStatus = "queued"
	JobStatusScanning JobStatus = "scanning"
	JobStatusDone     JobStatus = "done"
	JobStatusFailed   JobStatus = "failed"
)

// Terminal reports whether the status is a final state. Terminal jobs
// are immutable.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// Job represents a single analysis of a file. Many jobs may reference
// the same file; each upload creates its own job regardless of
// deduplication.
type Job struct {
	ID           string    `json:"id"`
	FileID       string    `json:"file_id"`
	Status       JobStatus `json:"status"`
	CurrentStage string    `json:"current_stage,omitempty"`
	StagesDone   int       `json:"stages_done"`
	StagesTotal  int       `json:"stages_total"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Result       *Report   `json:"result,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// QueueMessage is the payload published to the job queue. The storage
// key equals the file digest; the queue never carries blob content.
type QueueMessage struct {
	JobID            string `json:"job_id"`
	FileID           string `json:"file_id"`
	StorageKey       string `json:"storage_key"`
	SHA256           string `json:"sha256"`
	OriginalFilename string `json:"original_filename"`
}

// StageStatus is the outcome of a single stage execution
type StageStatus string

const (
	StageStatusOK      StageStatus = "ok"
	StageStatusFailed  StageStatus = "failed"
	StageStatusSkipped StageStatus = "skipped"
)

// StageResult captures the outcome of one stage run. Findings is a
// free-form map whose keys are fixed per stage contract.
type StageResult struct {
	StageName  string                 `json:"stage_name"`
	Status     StageStatus            `json:"status"`
	StartedAt  time.Time              `json:"started_at"`
	EndedAt    time.Time              `json:"ended_at"`
	DurationMS int64                  `json:"duration_ms"`
	Findings   map[string]interface{} `json:"findings"`
	Artifacts  []string               `json:"artifacts"`
	Error      string                 `json:"error,omitempty"`
}

// Verdict is the aggregate classification derived from stage findings
type Verdict string

const (
	VerdictClean      Verdict = "clean"
	VerdictSuspicious Verdict = "suspicious"
	VerdictMalicious  Verdict = "malicious"
)

// FileMetadata is the file section of a report
type FileMetadata struct {
	FileID           string `json:"file_id"`
	SHA256           string `json:"sha256"`
	MIME             string `json:"mime"`
	Size             int64  `json:"size"`
	OriginalFilename string `json:"original_filename"`
}

// AVResult is the antivirus section of a report
type AVResult struct {
	Engine     string `json:"engine"`
	Infected   bool   `json:"infected"`
	ThreatName string `json:"threat_name,omitempty"`
}

// YaraHit is a single YARA rule match
type YaraHit struct {
	Rule        string   `json:"rule"`
	Namespace   string   `json:"namespace"`
	Description string   `json:"description"`
	Severity    string   `json:"severity"`
	Author      string   `json:"author"`
	Tags        []string `json:"tags"`
	Strings     []string `json:"strings"`
}

// Hashes holds the digests computed over the artifact content
type Hashes struct {
	MD5    string `json:"md5"`
	SHA1   string `json:"sha1"`
	SHA256 string `json:"sha256"`
}

// IOCs holds the indicators of compromise extracted from the artifact
type IOCs struct {
	URLs    []string `json:"urls"`
	Domains []string `json:"domains"`
	IPs     []string `json:"ips"`
	Hashes  Hashes   `json:"hashes"`
}

// SandboxResult is the sandbox section of a report
type SandboxResult struct {
	Executed           bool                     `json:"executed"`
	Behaviors          []map[string]interface{} `json:"behaviors"`
	NetworkConnections []map[string]interface{} `json:"network_connections"`
	IsMock             bool                     `json:"is_mock"`
}

// AnalysisResults aggregates the per-tool sections of a report
type AnalysisResults struct {
	AVResult AVResult      `json:"av_result"`
	YaraHits []YaraHit     `json:"yara_hits"`
	IOCs     IOCs          `json:"iocs"`
	Sandbox  SandboxResult `json:"sandbox"`
}

// StageTiming is one entry of the report timing breakdown
type StageTiming struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
}

// Timings is the timing section of a report
type Timings struct {
	TotalMS int64         `json:"total_ms"`
	Stages  []StageTiming `json:"stages"`
}

// Report is the verdict document written into Job.Result on success
// and returned by the report endpoint. CreatedAt is carried as an
// ISO-8601 string so the stored JSONB document round-trips unchanged.
type Report struct {
	JobID     string          `json:"job_id"`
	File      FileMetadata    `json:"file"`
	Verdict   Verdict         `json:"verdict"`
	Score     int             `json:"score"`
	Results   AnalysisResults `json:"results"`
	Timings   Timings         `json:"timings"`
	CreatedAt string          `json:"created_at"`
}
