// Package detective collects objective evidence about an audit target.
// Detectives never judge: each produces model.Evidence records for its own
// key in the run state, and collection problems become found=false records
// rather than errors wherever the detective can still say what went wrong
package detective

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ppiankov/auditor/internal/model"
)

// Evidence keys in the run state
const (
	RepoInvestigatorName = "repo_investigator"
	DocAnalystName       = "doc_analyst"
	VisionInspectorName  = "vision_inspector"
)

// Target is what an audit points detectives at
type Target struct {
	RepoURL string // Remote URL or local directory; empty skips repository checks
	DocPath string // Report document, local path or URL; empty skips document checks
}

// Findings is a detective's contribution to the run
type Findings struct {
	Evidence []model.Evidence
	Manifest []string // Non-nil only when the repository was walked
	RepoPath string   // Working tree that was inspected
	Observed []string // Paths outside the repository the detective read itself
	Warnings []string
}

// Detective produces evidence for one aspect of the target
type Detective interface {
	Name() string
	Investigate(ctx context.Context, t Target) (Findings, error)
}

const defaultMaxFileBytes = 512 * 1024

// readText reads at most limit bytes of a file. Binary files (NUL in the
// first 8KB) report ok=false
func readText(path string, limit int64) (text string, truncated, ok bool, err error) {
	if limit <= 0 {
		limit = defaultMaxFileBytes
	}
	f, err := os.Open(path)
	if err != nil {
		return "", false, false, err
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return "", false, false, fmt.Errorf("read %s: %w", path, err)
	}
	if int64(len(data)) > limit {
		data = data[:limit]
		truncated = true
	}
	head := data
	if len(head) > 8192 {
		head = head[:8192]
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return "", truncated, false, nil
	}
	return string(data), truncated, true, nil
}

// clip shortens s to max bytes on a rune boundary
func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut] + "..."
}
