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

func TestExtractURLs(t *testing.T) {
	content := []byte(`GET http://evil.example.net/payload.bin then https://c2.badhost.org/beacon?id=1
duplicate http://evil.example.net/payload.bin`)

	urls := ExtractURLs(content)

	assert.Len(t, urls, 2)
	assert.Contains(t, urls, "http://evil.example.net/payload.bin")
	assert.Contains(t, urls, "https://c2.badhost.org/beacon?id=1")
}

func TestExtractDomains(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		urls     []string
		expected []string
	}{
		{
			name:     "plain domain",
			content:  "connect to malware-c2.example and exfil.badsite.net today",
			expected: []string{"exfil.badsite.net", "malware-c2.example"},
		},
		{
			name:     "url hosts excluded",
			content:  "see http://known.host.com/x and also known.host.com again",
			urls:     []string{"http://known.host.com/x"},
			expected: nil,
		},
		{
			name:     "benign deny-list filtered",
			content:  "ping google.com and microsoft.com plus shady.domain.io",
			expected: []string{"shady.domain.io"},
		},
		{
			name:     "short fragments rejected",
			content:  "x.y is too short but a.io is minimal",
			expected: []string{"a.io"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			domains := ExtractDomains([]byte(tt.content), tt.urls)
			if tt.expected == nil {
				assert.Empty(t, domains)
				return
			}
			assert.Equal(t, tt.expected, domains)
		})
	}
}

func TestExtractPublicIPs(t *testing.T) {
	content := []byte(`
		public: 8.8.8.8 and 203.0.113.7
		private: 10.1.2.3 192.168.1.1 172.16.0.1 172.31.255.255
		loopback: 127.0.0.1
		zero: 0.0.0.0
		multicast: 224.0.0.1 239.255.255.255
		edge-private-exempt: 172.15.0.1 172.32.0.1
	`)

	ips := ExtractPublicIPs(content)

	assert.Equal(t, []string{"172.15.0.1", "172.32.0.1", "203.0.113.7", "8.8.8.8"}, ips)
}

func TestIsPublicIPv4(t *testing.T) {
	tests := []struct {
		ip     string
		public bool
	}{
		{"8.8.8.8", true},
		{"203.0.113.1", true},
		{"10.0.0.1", false},
		{"127.0.0.1", false},
		{"172.16.0.1", false},
		{"172.31.1.1", false},
		{"172.15.0.1", true},
		{"192.168.0.1", false},
		{"192.167.0.1", true},
		{"0.1.2.3", false},
		{"224.0.0.1", false},
		{"255.255.255.255", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.public, isPublicIPv4(tt.ip))
		})
	}
}

func TestIOCExtractStageHashes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

	stage := NewIOCExtractStage()
	result := stage.Execute(context.Background(), &StageContext{FilePath: path})

	require.Equal(t, types.StageStatusOK, result.Status)

	hashes, ok := result.Findings["hashes"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", hashes["md5"])
	assert.Equal(t, "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d", hashes["sha1"])
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", hashes["sha256"])
}

func TestIOCExtractStageMissingFile(t *testing.T) {
	stage := NewIOCExtractStage()
	result := stage.Execute(context.Background(), &StageContext{FilePath: "/nonexistent/file"})

	assert.Equal(t, types.StageStatusFailed, result.Status)
	assert.NotEmpty(t, result.Error)
}

func TestIOCCaps(t *testing.T) {
	long := make([]string, 150)
	for i := range long {
		long[i] = "x"
	}
	assert.Len(t, capped(long, maxURLs), 100)
	assert.Len(t, capped(long, maxIPs), 50)
	assert.Equal(t, []string{}, capped(nil, maxURLs))
}
