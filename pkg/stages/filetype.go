package stages

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/malscan/malscan/pkg/types"
)

// FileTypeStage detects the artifact type from magic bytes. It always
// succeeds unless the file is missing.
type FileTypeStage struct{}

// NewFileTypeStage creates the file-type detection stage
func NewFileTypeStage() *FileTypeStage {
	return &FileTypeStage{}
}

func (s *FileTypeStage) Name() string {
	return "file-type"
}

func (s *FileTypeStage) Execute(ctx context.Context, sc *StageContext) types.StageResult {
	started := time.Now().UTC()

	info, err := os.Stat(sc.FilePath)
	if err != nil {
		return failedResult(s.Name(), started, fmt.Sprintf("file not found: %s", sc.FilePath))
	}

	mtype, err := mimetype.DetectFile(sc.FilePath)
	if err != nil {
		return failedResult(s.Name(), started, fmt.Sprintf("type detection failed: %v", err))
	}

	return okResult(s.Name(), started, map[string]interface{}{
		"mime_type":  mtype.String(),
		"magic_desc": describeType(mtype),
		"file_size":  info.Size(),
	})
}

// describeType renders a human-readable description for common types,
// falling back to the MIME string.
func describeType(m *mimetype.MIME) string {
	descriptions := map[string]string{
		"application/vnd.microsoft.portable-executable": "PE executable",
		"application/x-elf":          "ELF executable",
		"application/x-mach-binary":  "Mach-O executable",
		"application/pdf":            "PDF document",
		"application/zip":            "Zip archive",
		"application/x-7z-compressed": "7-zip archive",
		"application/x-rar-compressed": "RAR archive",
		"application/gzip":           "gzip compressed data",
		"application/x-tar":          "tar archive",
		"application/x-msdownload":   "MS-DOS executable",
		"text/plain":                 "plain text",
		"text/html":                  "HTML document",
	}

	// Strip parameters like "; charset=utf-8"
	base, _, _ := strings.Cut(m.String(), ";")

	if desc, ok := descriptions[base]; ok {
		return desc
	}
	if ext := m.Extension(); ext != "" {
		return fmt.Sprintf("%s (%s)", base, ext)
	}
	return base
}
