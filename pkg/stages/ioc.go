package stages

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/malscan/malscan/pkg/types"
)

// IOC extraction caps
const (
	maxURLs    = 100
	maxDomains = 100
	maxIPs     = 50
)

var (
	urlPattern = regexp.MustCompile(
		`(?i)https?://[a-zA-Z0-9][-a-zA-Z0-9]*(?:\.[a-zA-Z0-9][-a-zA-Z0-9]*)+[^\s\x00-\x1f"'<>]*`)

	// RE2 has no lookarounds, so the boundary characters are matched
	// explicitly and the domain is taken from the capture group.
	domainPattern = regexp.MustCompile(
		`(?i)(?:^|[^a-zA-Z0-9.-])((?:[a-zA-Z0-9][-a-zA-Z0-9]*\.)+[a-zA-Z]{2,})(?:[^a-zA-Z0-9.-]|$)`)

	ipPattern = regexp.MustCompile(
		`\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`)
)

// Common benign domains excluded from domain findings
var benignDomains = map[string]bool{
	"microsoft.com": true,
	"windows.com":   true,
	"google.com":    true,
	"example.com":   true,
	"localhost":     true,
	"w3.org":        true,
}

// IOCExtractStage pulls URLs, domains, public IPv4 addresses and
// content hashes out of the artifact bytes.
type IOCExtractStage struct{}

// NewIOCExtractStage creates the indicator extraction stage
func NewIOCExtractStage() *IOCExtractStage {
	return &IOCExtractStage{}
}

func (s *IOCExtractStage) Name() string {
	return "ioc-extract"
}

func (s *IOCExtractStage) Execute(ctx context.Context, sc *StageContext) types.StageResult {
	started := time.Now().UTC()

	content, err := os.ReadFile(sc.FilePath)
	if err != nil {
		return failedResult(s.Name(), started, fmt.Sprintf("file not found: %s", sc.FilePath))
	}

	urls := ExtractURLs(content)
	domains := ExtractDomains(content, urls)
	ips := ExtractPublicIPs(content)

	md5Sum := md5.Sum(content)
	sha1Sum := sha1.Sum(content)
	sha256Sum := sha256.Sum256(content)

	return okResult(s.Name(), started, map[string]interface{}{
		"urls":    urls,
		"domains": domains,
		"ips":     ips,
		"hashes": map[string]interface{}{
			"md5":    hex.EncodeToString(md5Sum[:]),
			"sha1":   hex.EncodeToString(sha1Sum[:]),
			"sha256": hex.EncodeToString(sha256Sum[:]),
		},
	})
}

// ExtractURLs returns up to maxURLs unique URLs found in the content
func ExtractURLs(content []byte) []string {
	seen := make(map[string]bool)
	var urls []string
	for _, match := range urlPattern.FindAll(content, -1) {
		u := string(match)
		if !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}
	sort.Strings(urls)
	return capped(urls, maxURLs)
}

// ExtractDomains returns up to maxDomains unique domains, excluding
// hosts already covered by extracted URLs, the benign deny-list, and
// short fragments that are likely false positives from binary data.
func ExtractDomains(content []byte, urls []string) []string {
	urlHosts := make(map[string]bool)
	for _, u := range urls {
		parts := strings.Split(u, "/")
		if len(parts) >= 3 {
			urlHosts[strings.ToLower(parts[2])] = true
		}
	}

	seen := make(map[string]bool)
	var domains []string
	for _, match := range domainPattern.FindAllSubmatch(content, -1) {
		d := strings.ToLower(string(match[1]))
		if seen[d] || urlHosts[d] || benignDomains[d] {
			continue
		}
		// Minimum 4 chars with an inner dot, e.g. "a.io"
		if len(d) < 4 || !strings.Contains(d[1:len(d)-1], ".") {
			continue
		}
		seen[d] = true
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return capped(domains, maxDomains)
}

// ExtractPublicIPs returns up to maxIPs unique public IPv4 addresses
func ExtractPublicIPs(content []byte) []string {
	seen := make(map[string]bool)
	var ips []string
	for _, match := range ipPattern.FindAll(content, -1) {
		ip := string(match)
		if !seen[ip] && isPublicIPv4(ip) {
			seen[ip] = true
			ips = append(ips, ip)
		}
	}
	sort.Strings(ips)
	return capped(ips, maxIPs)
}

// isPublicIPv4 rejects 0.0.0.0/8, 10/8, 127/8, 172.16/12, 192.168/16
// and 224.0.0.0/4 upward (multicast and reserved).
func isPublicIPv4(s string) bool {
	ip := net.ParseIP(s)
	if ip == nil {
		return false
	}
	v4 := ip.To4()
	if v4 == nil {
		return false
	}

	first, second := v4[0], v4[1]
	switch {
	case first == 0 || first == 10 || first == 127:
		return false
	case first == 172 && second >= 16 && second <= 31:
		return false
	case first == 192 && second == 168:
		return false
	case first >= 224:
		return false
	}
	return true
}

func capped(list []string, max int) []string {
	if list == nil {
		return []string{}
	}
	if len(list) > max {
		return list[:max]
	}
	return list
}
