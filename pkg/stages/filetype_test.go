package stages

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malscan/malscan/pkg/types"
)

func TestFileTypeStage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4\n%fake minimal pdf\n"), 0o600))

	stage := NewFileTypeStage()
	result := stage.Execute(context.Background(), &StageContext{FilePath: path})

	require.Equal(t, types.StageStatusOK, result.Status)
	assert.Equal(t, "file-type", result.StageName)
	assert.Equal(t, "application/pdf", result.Findings["mime_type"])
	assert.Equal(t, "PDF document", result.Findings["magic_desc"])
	assert.Equal(t, int64(27), result.Findings["file_size"])
}

func TestFileTypeStagePlainText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("just some text"), 0o600))

	stage := NewFileTypeStage()
	result := stage.Execute(context.Background(), &StageContext{FilePath: path})

	require.Equal(t, types.StageStatusOK, result.Status)
	assert.Equal(t, "plain text", result.Findings["magic_desc"])
}

func TestFileTypeStageMissingFile(t *testing.T) {
	stage := NewFileTypeStage()
	result := stage.Execute(context.Background(), &StageContext{FilePath: "/no/such/file"})

	assert.Equal(t, types.StageStatusFailed, result.Status)
	assert.Contains(t, result.Error, "file not found")
}
