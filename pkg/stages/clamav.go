package stages

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/malscan/malscan/pkg/types"
)

// ClamAVStage scans the artifact with the clamscan CLI.
//
// Exit codes: 0 = clean, 1 = infected, 2 = scanner error.
type ClamAVStage struct {
	clamscanPath string
}

// NewClamAVStage creates the antivirus stage using the given clamscan
// binary path.
func NewClamAVStage(clamscanPath string) *ClamAVStage {
	return &ClamAVStage{clamscanPath: clamscanPath}
}

func (s *ClamAVStage) Name() string {
	return "clamav"
}

func (s *ClamAVStage) Execute(ctx context.Context, sc *StageContext) types.StageResult {
	started := time.Now().UTC()

	if _, err := os.Stat(sc.FilePath); err != nil {
		return failedResult(s.Name(), started, fmt.Sprintf("file not found: %s", sc.FilePath))
	}

	cmd := exec.CommandContext(ctx, s.clamscanPath, "--no-summary", sc.FilePath)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			exitCode = exitErr.ExitCode()
		case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
			return failedResult(s.Name(), started, "clamscan not found, install ClamAV")
		default:
			return failedResult(s.Name(), started, fmt.Sprintf("clamscan failed: %v", err))
		}
	}

	if exitCode == 2 {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = "ClamAV error"
		}
		return failedResult(s.Name(), started, msg)
	}

	infected := exitCode == 1
	findings := map[string]interface{}{
		"engine":      "ClamAV",
		"infected":    infected,
		"threat_name": nil,
	}
	if infected {
		if threat := ParseThreatName(stdout.String()); threat != "" {
			findings["threat_name"] = threat
		}
	}

	return okResult(s.Name(), started, findings)
}

// ParseThreatName extracts the threat name from clamscan output of the
// form "/path/to/file: ThreatName FOUND".
func ParseThreatName(output string) string {
	output = strings.TrimSpace(output)
	if !strings.Contains(output, ":") {
		return ""
	}

	parts := strings.Split(output, ":")
	threat := strings.TrimSpace(parts[len(parts)-1])
	if !strings.HasSuffix(threat, "FOUND") {
		return ""
	}
	return strings.TrimSpace(strings.TrimSuffix(threat, "FOUND"))
}
