package stages

import (
	"context"
	"time"

	"github.com/malscan/malscan/pkg/types"
)

// SandboxStage runs behavioral analysis. The real sandbox adapter is
// not integrated yet: the stage either reports skipped (disabled),
// returns canned mock behaviors after a short simulated delay, or
// fails when real execution is requested.
type SandboxStage struct {
	enabled bool
	mock    bool
	delay   time.Duration
}

// NewSandboxStage creates the sandbox stage with the given gates
func NewSandboxStage(enabled, mock bool) *SandboxStage {
	return &SandboxStage{
		enabled: enabled,
		mock:    mock,
		delay:   2 * time.Second,
	}
}

func (s *SandboxStage) Name() string {
	return "sandbox"
}

func (s *SandboxStage) Execute(ctx context.Context, sc *StageContext) types.StageResult {
	started := time.Now().UTC()

	if !s.enabled {
		return skippedResult(s.Name(), started, map[string]interface{}{
			"executed": false,
			"reason":   "Sandbox disabled",
		})
	}

	if s.mock {
		// Simulated analysis time
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return failedResult(s.Name(), started, ctx.Err().Error())
		}

		return okResult(s.Name(), started, map[string]interface{}{
			"executed": true,
			"behaviors": []map[string]interface{}{
				{"type": "file_write", "path": `C:\Windows\Temp\sample.dll`},
				{"type": "registry_read", "key": `HKLM\Software\Microsoft\Windows\CurrentVersion`},
			},
			"network_connections": []map[string]interface{}{
				{"dst_ip": "93.184.216.34", "dst_port": 443, "protocol": "tcp"},
			},
			"is_mock": true,
		})
	}

	return failedResult(s.Name(), started, "real sandbox adapter not implemented")
}
