package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malscan/malscan/pkg/config"
	"github.com/malscan/malscan/pkg/types"
)

func configForTest() config.Config {
	cfg := config.Default()
	cfg.StageTimeoutSeconds = 1
	return cfg
}

func TestDeriveVerdict(t *testing.T) {
	yaraHits := func(n int) []types.YaraHit {
		hits := make([]types.YaraHit, n)
		for i := range hits {
			hits[i] = types.YaraHit{Rule: "r"}
		}
		return hits
	}

	tests := []struct {
		name    string
		results types.AnalysisResults
		verdict types.Verdict
		score   int
	}{
		{
			name:    "clean",
			results: types.AnalysisResults{},
			verdict: types.VerdictClean,
			score:   0,
		},
		{
			name: "infected only",
			results: types.AnalysisResults{
				AVResult: types.AVResult{Infected: true},
			},
			verdict: types.VerdictMalicious,
			score:   90,
		},
		{
			name: "two yara hits",
			results: types.AnalysisResults{
				YaraHits: yaraHits(2),
			},
			verdict: types.VerdictSuspicious,
			score:   70,
		},
		{
			name: "infected with few yara hits keeps av score",
			results: types.AnalysisResults{
				AVResult: types.AVResult{Infected: true},
				YaraHits: yaraHits(1),
			},
			verdict: types.VerdictMalicious,
			score:   90,
		},
		{
			name: "infected with many yara hits capped at 100",
			results: types.AnalysisResults{
				AVResult: types.AVResult{Infected: true},
				YaraHits: yaraHits(8),
			},
			verdict: types.VerdictMalicious,
			score:   100,
		},
		{
			name: "yara hits alone capped at 100",
			results: types.AnalysisResults{
				YaraHits: yaraHits(12),
			},
			verdict: types.VerdictSuspicious,
			score:   100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, score := deriveVerdict(tt.results)
			assert.Equal(t, tt.verdict, verdict)
			assert.Equal(t, tt.score, score)
		})
	}
}

func TestBuildReport(t *testing.T) {
	now := time.Now().UTC()
	results := []types.StageResult{
		{
			StageName: "file-type",
			Status:    types.StageStatusOK,
			StartedAt: now, EndedAt: now, DurationMS: 12,
			Findings: map[string]interface{}{
				"mime_type": "application/pdf",
				"file_size": int64(2048),
			},
		},
		{
			StageName: "clamav",
			Status:    types.StageStatusOK,
			DurationMS: 340,
			Findings: map[string]interface{}{
				"engine":      "ClamAV",
				"infected":    true,
				"threat_name": "Eicar-Test-Signature",
			},
		},
		{
			StageName: "yara",
			Status:    types.StageStatusOK,
			DurationMS: 55,
			Findings: map[string]interface{}{
				"matches": []types.YaraHit{{Rule: "suspicious_strings", Namespace: "custom"}},
			},
		},
		{
			StageName: "ioc-extract",
			Status:    types.StageStatusOK,
			DurationMS: 8,
			Findings: map[string]interface{}{
				"urls":    []string{"http://evil.example/x"},
				"domains": []string{"c2.badhost.org"},
				"ips":     []string{"203.0.113.7"},
				"hashes": map[string]interface{}{
					"md5":    "m",
					"sha1":   "s1",
					"sha256": "s256",
				},
			},
		},
		{
			StageName: "sandbox",
			Status:    types.StageStatusSkipped,
			DurationMS: 0,
			Findings: map[string]interface{}{
				"executed": false,
				"reason":   "Sandbox disabled",
			},
		},
	}

	msg := types.QueueMessage{
		JobID:            "job-9",
		FileID:           "file-9",
		SHA256:           "s256",
		StorageKey:       "s256",
		OriginalFilename: "invoice.pdf",
	}

	report := buildReport(msg, results, 415)

	assert.Equal(t, "job-9", report.JobID)
	assert.Equal(t, types.FileMetadata{
		FileID:           "file-9",
		SHA256:           "s256",
		MIME:             "application/pdf",
		Size:             2048,
		OriginalFilename: "invoice.pdf",
	}, report.File)

	assert.Equal(t, types.VerdictMalicious, report.Verdict)
	assert.Equal(t, 90, report.Score)
	assert.Equal(t, "Eicar-Test-Signature", report.Results.AVResult.ThreatName)
	require.Len(t, report.Results.YaraHits, 1)
	assert.Equal(t, []string{"203.0.113.7"}, report.Results.IOCs.IPs)
	assert.Equal(t, "s256", report.Results.IOCs.Hashes.SHA256)

	// Skipped sandbox contributes no executed result, and its arrays
	// still serialize as empty lists rather than null
	assert.False(t, report.Results.Sandbox.Executed)
	assert.NotNil(t, report.Results.Sandbox.Behaviors)
	assert.NotNil(t, report.Results.Sandbox.NetworkConnections)

	assert.Equal(t, int64(415), report.Timings.TotalMS)
	require.Len(t, report.Timings.Stages, 5)
	assert.Equal(t, types.StageTiming{Name: "clamav", Status: "ok", DurationMS: 340}, report.Timings.Stages[1])

	created, err := time.Parse(time.RFC3339, report.CreatedAt)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), created, time.Minute)
}

func TestBuildReportEmptyResults(t *testing.T) {
	report := buildReport(types.QueueMessage{JobID: "j"}, nil, 0)

	assert.Equal(t, types.VerdictClean, report.Verdict)
	assert.Equal(t, 0, report.Score)
	assert.NotNil(t, report.Results.YaraHits)
	assert.NotNil(t, report.Results.IOCs.URLs)
	assert.NotNil(t, report.Results.Sandbox.Behaviors)
	assert.NotNil(t, report.Results.Sandbox.NetworkConnections)
	assert.Empty(t, report.Timings.Stages)
}
