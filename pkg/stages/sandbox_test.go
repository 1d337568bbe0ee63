package stages

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malscan/malscan/pkg/types"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestSandboxStageDisabled(t *testing.T) {
	stage := NewSandboxStage(false, false)
	result := stage.Execute(context.Background(), &StageContext{})

	assert.Equal(t, types.StageStatusSkipped, result.Status)
	assert.Equal(t, false, result.Findings["executed"])
	assert.Equal(t, "Sandbox disabled", result.Findings["reason"])
}

func TestSandboxStageMock(t *testing.T) {
	stage := NewSandboxStage(true, true)
	stage.delay = 10 * time.Millisecond

	result := stage.Execute(context.Background(), &StageContext{})

	require.Equal(t, types.StageStatusOK, result.Status)
	assert.Equal(t, true, result.Findings["executed"])
	assert.Equal(t, true, result.Findings["is_mock"])
	assert.NotEmpty(t, result.Findings["behaviors"])
	assert.NotEmpty(t, result.Findings["network_connections"])
}

func TestSandboxStageMockCancelled(t *testing.T) {
	stage := NewSandboxStage(true, true)
	stage.delay = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := stage.Execute(ctx, &StageContext{})
	assert.Equal(t, types.StageStatusFailed, result.Status)
}

func TestSandboxStageRealNotImplemented(t *testing.T) {
	stage := NewSandboxStage(true, false)
	result := stage.Execute(context.Background(), &StageContext{})

	assert.Equal(t, types.StageStatusFailed, result.Status)
	assert.Contains(t, result.Error, "not implemented")
}
