package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/auditor/internal/model"
)

// Auditor runs one audit. pipeline.Pipeline satisfies it through a small
// adapter in the CLI, which keeps this package free of the pipeline
type Auditor interface {
	Audit(ctx context.Context, repoURL, docPath string) (*model.AuditReport, error)
}

// AuditorFunc adapts a function to Auditor
type AuditorFunc func(ctx context.Context, repoURL, docPath string) (*model.AuditReport, error)

// Audit implements Auditor
func (f AuditorFunc) Audit(ctx context.Context, repoURL, docPath string) (*model.AuditReport, error) {
	return f(ctx, repoURL, docPath)
}

// Target is one line of a batch file: a repository and an optional report
type Target struct {
	RepoURL string
	DocPath string
}

func (t Target) String() string {
	if t.DocPath == "" {
		return t.RepoURL
	}
	return t.RepoURL + " " + t.DocPath
}

// AuditJob audits a single target
type AuditJob struct {
	Index   int
	Target  Target
	Auditor Auditor
	Timeout time.Duration // per audit; zero means the batch context only
}

// Execute runs the audit under the job's timeout
func (j *AuditJob) Execute(ctx context.Context) Result {
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	start := time.Now()
	report, err := j.Auditor.Audit(ctx, j.Target.RepoURL, j.Target.DocPath)
	res := &AuditResult{Index: j.Index, Target: j.Target, Duration: time.Since(start)}
	if err != nil {
		res.Error = err
		return res
	}
	res.Report = report
	return res
}

// AuditResult is the outcome of one job
type AuditResult struct {
	Index    int
	Target   Target
	Report   *model.AuditReport
	Error    error
	Duration time.Duration
}

// GetError implements Result
func (r *AuditResult) GetError() error {
	return r.Error
}

// BatchProcessor audits many targets concurrently
type BatchProcessor struct {
	auditor     Auditor
	concurrency int
	timeout     time.Duration
}

// NewBatchProcessor creates a processor with concurrency workers and a
// per-audit timeout
func NewBatchProcessor(auditor Auditor, concurrency int, timeout time.Duration) *BatchProcessor {
	return &BatchProcessor{
		auditor:     auditor,
		concurrency: concurrency,
		timeout:     timeout,
	}
}

// Process audits targets and returns results in input order. Targets that
// never started because ctx ended are reported with ctx's error
func (b *BatchProcessor) Process(ctx context.Context, targets []Target) []*AuditResult {
	if len(targets) == 0 {
		return []*AuditResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	for i, t := range targets {
		if !pool.Submit(&AuditJob{Index: i, Target: t, Auditor: b.auditor, Timeout: b.timeout}) {
			break
		}
	}
	results := pool.Wait()

	out := make([]*AuditResult, len(targets))
	for _, r := range results {
		ar := r.(*AuditResult)
		out[ar.Index] = ar
	}
	for i := range out {
		if out[i] == nil {
			err := ctx.Err()
			if err == nil {
				err = context.Canceled
			}
			out[i] = &AuditResult{Index: i, Target: targets[i], Error: fmt.Errorf("not started: %w", err)}
		}
	}
	return out
}

// ProcessFile reads targets from a file and audits them
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*AuditResult, error) {
	targets, err := ReadTargetsFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read targets: %w", err)
	}

	return b.Process(ctx, targets), nil
}

// ReadTargetsFromFile reads one target per line: a repository URL or path,
// optionally followed by the report document. Blank lines and # comments
// are skipped; repeated lines are audited once
func ReadTargetsFromFile(filePath string) ([]Target, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var targets []Target
	seen := make(map[Target]bool)

	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		fields := strings.Fields(text)
		if len(fields) > 2 {
			return nil, fmt.Errorf("line %d: expected \"<repo> [report]\", got %d fields", line, len(fields))
		}
		t := Target{RepoURL: fields[0]}
		if len(fields) == 2 {
			t.DocPath = fields[1]
		}

		if !seen[t] {
			seen[t] = true
			targets = append(targets, t)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return targets, nil
}
