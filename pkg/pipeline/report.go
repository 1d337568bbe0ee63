package pipeline

import (
	"time"

	"github.com/malscan/malscan/pkg/types"
)

// Score contributions
const (
	scoreInfected   = 90
	scoreYaraBase   = 50
	scoreYaraPerHit = 10
	scoreMax        = 100
)

// buildReport assembles the verdict report from completed stage
// results. It tolerates skipped stages and missing findings keys so a
// partially degraded run still produces a well-formed document.
func buildReport(msg types.QueueMessage, results []types.StageResult, totalMS int64) *types.Report {
	report := &types.Report{
		JobID: msg.JobID,
		File: types.FileMetadata{
			FileID:           msg.FileID,
			SHA256:           msg.SHA256,
			OriginalFilename: msg.OriginalFilename,
		},
		Verdict: types.VerdictClean,
		Score:   0,
		Results: types.AnalysisResults{
			YaraHits: []types.YaraHit{},
			IOCs: types.IOCs{
				URLs:    []string{},
				Domains: []string{},
				IPs:     []string{},
			},
			Sandbox: types.SandboxResult{
				Behaviors:          []map[string]interface{}{},
				NetworkConnections: []map[string]interface{}{},
			},
		},
		Timings: types.Timings{
			TotalMS: totalMS,
			Stages:  make([]types.StageTiming, 0, len(results)),
		},
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}

	for _, r := range results {
		report.Timings.Stages = append(report.Timings.Stages, types.StageTiming{
			Name:       r.StageName,
			Status:     string(r.Status),
			DurationMS: r.DurationMS,
		})
	}

	if f := findingsFor(results, "file-type"); f != nil {
		report.File.MIME = asString(f["mime_type"])
		report.File.Size = asInt64(f["file_size"])
	}

	if f := findingsFor(results, "clamav"); f != nil {
		report.Results.AVResult = types.AVResult{
			Engine:     asString(f["engine"]),
			Infected:   asBool(f["infected"]),
			ThreatName: asString(f["threat_name"]),
		}
	}

	if f := findingsFor(results, "yara"); f != nil {
		if hits, ok := f["matches"].([]types.YaraHit); ok {
			report.Results.YaraHits = hits
		}
	}

	if f := findingsFor(results, "ioc-extract"); f != nil {
		report.Results.IOCs = types.IOCs{
			URLs:    asStrings(f["urls"]),
			Domains: asStrings(f["domains"]),
			IPs:     asStrings(f["ips"]),
		}
		if h, ok := f["hashes"].(map[string]interface{}); ok {
			report.Results.IOCs.Hashes = types.Hashes{
				MD5:    asString(h["md5"]),
				SHA1:   asString(h["sha1"]),
				SHA256: asString(h["sha256"]),
			}
		}
	}

	if f := findingsFor(results, "sandbox"); f != nil {
		report.Results.Sandbox = types.SandboxResult{
			Executed:           asBool(f["executed"]),
			Behaviors:          asMaps(f["behaviors"]),
			NetworkConnections: asMaps(f["network_connections"]),
			IsMock:             asBool(f["is_mock"]),
		}
	}

	report.Verdict, report.Score = deriveVerdict(report.Results)
	return report
}

// deriveVerdict applies the scoring rules in order: an infected AV
// result wins, YARA hits escalate a clean verdict to suspicious, and
// the score is capped.
func deriveVerdict(results types.AnalysisResults) (types.Verdict, int) {
	verdict := types.VerdictClean
	score := 0

	if results.AVResult.Infected {
		verdict = types.VerdictMalicious
		if score < scoreInfected {
			score = scoreInfected
		}
	}

	if len(results.YaraHits) > 0 {
		if verdict == types.VerdictClean {
			verdict = types.VerdictSuspicious
		}
		yaraScore := scoreYaraBase + scoreYaraPerHit*len(results.YaraHits)
		if score < yaraScore {
			score = yaraScore
		}
	}

	if score > scoreMax {
		score = scoreMax
	}
	return verdict, score
}

func findingsFor(results []types.StageResult, name string) map[string]interface{} {
	for _, r := range results {
		if r.StageName == name && r.Status == types.StageStatusOK {
			return r.Findings
		}
	}
	return nil
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asBool(v interface{}) bool {
	b, _ := v.(bool)
	return b
}

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func asStrings(v interface{}) []string {
	if s, ok := v.([]string); ok {
		return s
	}
	return []string{}
}

func asMaps(v interface{}) []map[string]interface{} {
	if m, ok := v.([]map[string]interface{}); ok {
		return m
	}
	return []map[string]interface{}{}
}
