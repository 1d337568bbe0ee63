package stages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/malscan/malscan/pkg/types"
)

func TestParseThreatName(t *testing.T) {
	tests := []struct {
		name     string
		output   string
		expected string
	}{
		{
			name:     "standard detection",
			output:   "/tmp/work/sample.bin: Eicar-Test-Signature FOUND",
			expected: "Eicar-Test-Signature",
		},
		{
			name:     "path with colons",
			output:   `C:\samples\a.exe: Win.Trojan.Agent-12345 FOUND`,
			expected: "Win.Trojan.Agent-12345",
		},
		{
			name:     "clean output",
			output:   "/tmp/work/sample.bin: OK",
			expected: "",
		},
		{
			name:     "no colon",
			output:   "garbage output",
			expected: "",
		},
		{
			name:     "empty",
			output:   "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseThreatName(tt.output))
		})
	}
}

func TestClamAVStageMissingFile(t *testing.T) {
	stage := NewClamAVStage("clamscan")
	result := stage.Execute(context.Background(), &StageContext{FilePath: "/no/such/file"})

	assert.Equal(t, types.StageStatusFailed, result.Status)
	assert.Contains(t, result.Error, "file not found")
}
