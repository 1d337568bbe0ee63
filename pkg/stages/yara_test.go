package stages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malscan/malscan/pkg/types"
)

func TestParseYaraOutput(t *testing.T) {
	output := `suspicious_strings /tmp/work/sample.bin
0x10:$cmd: cmd.exe
0x48:$url: http://evil.example
0x90:$cmd: cmd.exe
ransom_note /tmp/work/sample.bin
0x200:$note: YOUR FILES ARE ENCRYPTED
`

	hits := ParseYaraOutput(output, "custom_rules")

	require.Len(t, hits, 2)

	assert.Equal(t, "suspicious_strings", hits[0].Rule)
	assert.Equal(t, "custom_rules", hits[0].Namespace)
	assert.Equal(t, "medium", hits[0].Severity)
	assert.Equal(t, []string{"$cmd", "$url"}, hits[0].Strings)

	assert.Equal(t, "ransom_note", hits[1].Rule)
	assert.Equal(t, []string{"$note"}, hits[1].Strings)
}

func TestParseYaraOutputEmpty(t *testing.T) {
	assert.Empty(t, ParseYaraOutput("", "ns"))
	assert.Empty(t, ParseYaraOutput("\n\n", "ns"))
}

func TestParseYaraOutputOrphanOffsetLines(t *testing.T) {
	// Offset lines before any rule header are ignored
	hits := ParseYaraOutput("0x10:$a: data\n0x20:$b: data", "ns")
	assert.Empty(t, hits)
}

func TestYaraStageNoRulesDir(t *testing.T) {
	stage := NewYaraStage("/nonexistent/rules/dir")

	dir := t.TempDir()
	path := writeTempFile(t, dir, "sample.bin", "content")
	result := stage.Execute(context.Background(), &StageContext{FilePath: path})

	require.Equal(t, types.StageStatusOK, result.Status)
	matches, ok := result.Findings["matches"].([]types.YaraHit)
	require.True(t, ok)
	assert.Empty(t, matches)
}

func TestYaraStageMissingFile(t *testing.T) {
	stage := NewYaraStage("/nonexistent/rules/dir")
	result := stage.Execute(context.Background(), &StageContext{FilePath: "/no/such/file"})

	assert.Equal(t, types.StageStatusFailed, result.Status)
	assert.Contains(t, result.Error, "file not found")
}

func TestRuleFileStem(t *testing.T) {
	assert.Equal(t, "malware_rules", ruleFileStem("/etc/yara/malware_rules.yar"))
	assert.Equal(t, "custom", ruleFileStem("custom.yara"))
}
