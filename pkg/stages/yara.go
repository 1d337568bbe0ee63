package stages

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/malscan/malscan/pkg/types"
)

// YaraStage scans the artifact with the yara CLI against every rule
// file in the configured directory. A missing directory or an empty
// rule set yields ok with zero matches, not a failure.
type YaraStage struct {
	rulesPath string
}

// NewYaraStage creates the pattern-rule stage for the given rules
// directory.
func NewYaraStage(rulesPath string) *YaraStage {
	return &YaraStage{rulesPath: rulesPath}
}

func (s *YaraStage) Name() string {
	return "yara"
}

func (s *YaraStage) Execute(ctx context.Context, sc *StageContext) types.StageResult {
	started := time.Now().UTC()

	if _, err := os.Stat(sc.FilePath); err != nil {
		return failedResult(s.Name(), started, fmt.Sprintf("file not found: %s", sc.FilePath))
	}

	ruleFiles, err := findRuleFiles(s.rulesPath)
	if err != nil {
		return failedResult(s.Name(), started, fmt.Sprintf("failed to list rules: %v", err))
	}
	if len(ruleFiles) == 0 {
		return okResult(s.Name(), started, map[string]interface{}{
			"matches": []types.YaraHit{},
		})
	}

	matches := []types.YaraHit{}
	for _, ruleFile := range ruleFiles {
		cmd := exec.CommandContext(ctx, "yara", "-s", ruleFile, sc.FilePath)
		var stdout bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &bytes.Buffer{}

		if err := cmd.Run(); err != nil {
			if errors.Is(err, exec.ErrNotFound) {
				return failedResult(s.Name(), started, "yara not found, install YARA")
			}
			// Broken individual rule files are skipped, matching the
			// scanner's own tolerance for partial rule sets.
			continue
		}

		namespace := ruleFileStem(ruleFile)
		matches = append(matches, ParseYaraOutput(stdout.String(), namespace)...)
	}

	return okResult(s.Name(), started, map[string]interface{}{
		"matches": matches,
	})
}

// ParseYaraOutput parses `yara -s` stdout. Rule header lines have the
// form "rule_name [meta] /path"; indented offset lines have the form
// "0x<hex>:$name: data" and attribute string matches to the most recent
// rule header.
func ParseYaraOutput(output, namespace string) []types.YaraHit {
	var hits []types.YaraHit
	current := -1

	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "0x") {
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			hits = append(hits, types.YaraHit{
				Rule:      fields[0],
				Namespace: namespace,
				Severity:  "medium",
				Tags:      []string{},
				Strings:   []string{},
			})
			current = len(hits) - 1
			continue
		}

		if current < 0 {
			continue
		}
		// "0xoffset:$name: data"
		parts := strings.SplitN(line, ":", 3)
		if len(parts) < 2 {
			continue
		}
		name := strings.TrimSpace(parts[1])
		if !contains(hits[current].Strings, name) {
			hits[current].Strings = append(hits[current].Strings, name)
		}
	}

	return hits
}

func findRuleFiles(rulesPath string) ([]string, error) {
	if _, err := os.Stat(rulesPath); os.IsNotExist(err) {
		return nil, nil
	}

	var files []string
	for _, pattern := range []string{"*.yar", "*.yara"} {
		matched, err := filepath.Glob(filepath.Join(rulesPath, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matched...)
	}
	return files, nil
}

func ruleFileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
