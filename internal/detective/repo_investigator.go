package detective

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/auditor/internal/logging"
	"github.com/ppiankov/auditor/internal/model"
	"github.com/ppiankov/auditor/internal/repo"
)

// RepoInvestigator clones the target repository and records facts about
// its history, structure, tests, CI and security practices
type RepoInvestigator struct {
	Config model.RepoConfig
	Logger *slog.Logger
}

// NewRepoInvestigator creates a repository investigator
func NewRepoInvestigator(cfg model.RepoConfig) *RepoInvestigator {
	return &RepoInvestigator{Config: cfg, Logger: logging.New(RepoInvestigatorName)}
}

// Name returns the evidence key
func (r *RepoInvestigator) Name() string { return RepoInvestigatorName }

// Investigate opens the repository and runs every check. A failed clone is
// an error; failures of individual checks become found=false records
func (r *RepoInvestigator) Investigate(ctx context.Context, t Target) (Findings, error) {
	if strings.TrimSpace(t.RepoURL) == "" {
		return Findings{}, nil
	}
	log := r.Logger
	if log == nil {
		log = logging.Discard()
	}

	start := time.Now()
	sb, err := repo.Open(ctx, t.RepoURL, repo.CloneOptions{
		Depth:   r.Config.CloneDepth,
		Timeout: r.Config.CloneTimeout,
		Keep:    r.Config.KeepClone,
	})
	if err != nil {
		return Findings{}, fmt.Errorf("open repository: %w", err)
	}
	defer func() {
		if err := sb.Close(); err != nil {
			log.Warn("sandbox cleanup failed", "dir", sb.Dir, "error", err)
		}
	}()
	log.Info("repository opened", "source", t.RepoURL, "cloned", sb.Cloned, "duration", time.Since(start))

	manifest, err := repo.Manifest(sb.Dir)
	if err != nil {
		return Findings{}, fmt.Errorf("list repository files: %w", err)
	}

	f := Findings{Manifest: manifest, RepoPath: sb.Dir}
	f.Evidence = append(f.Evidence, r.sandboxEvidence(sb, len(manifest)))
	f.Evidence = append(f.Evidence, r.historyEvidence(ctx, sb))

	maxBytes := r.Config.MaxFileBytes
	goStats := ScanGo(sb.Dir, manifest, maxBytes)
	f.Evidence = append(f.Evidence, structureEvidence(goStats, manifest))
	f.Evidence = append(f.Evidence, concurrencyEvidence(goStats, Scan(sb.Dir, manifest, maxBytes, OrchestrationPatterns)))
	f.Evidence = append(f.Evidence, testEvidence(goStats, TestFiles(manifest)))
	f.Evidence = append(f.Evidence, patternEvidence("Structured output enforced on LLM calls",
		Scan(sb.Dir, manifest, maxBytes, StructuredOutputPatterns), "Schema-binding calls found in source"))
	f.Evidence = append(f.Evidence, safeToolingEvidence(goStats, Scan(sb.Dir, manifest, maxBytes, SandboxPatterns)))
	f.Evidence = append(f.Evidence, shellEvidence(Scan(sb.Dir, manifest, maxBytes, ShellPatterns)))
	f.Evidence = append(f.Evidence, secretEvidence(Scan(sb.Dir, manifest, maxBytes, SecretPatterns), EnvFiles(manifest)))
	f.Evidence = append(f.Evidence, ciEvidence(ParseWorkflows(sb.Dir, manifest, maxBytes))...)
	f.Evidence = append(f.Evidence, readmeEvidence(manifest))

	if goStats.ParseErrors > 0 {
		f.Warnings = append(f.Warnings, fmt.Sprintf("%s: %d Go file(s) could not be parsed", RepoInvestigatorName, goStats.ParseErrors))
	}
	log.Debug("repository investigated", "files", len(manifest), "evidence", len(f.Evidence), "duration", time.Since(start))
	return f, nil
}

func (r *RepoInvestigator) sandboxEvidence(sb *repo.Sandbox, files int) model.Evidence {
	content := fmt.Sprintf("local working tree, %d files", files)
	rationale := "Directory inspected in place"
	location := sb.Dir
	if sb.Cloned {
		location = sb.Source
		content = fmt.Sprintf("cloned %s into a temporary sandbox, %d files", sb.Source, files)
		if r.Config.CloneDepth > 0 {
			content += fmt.Sprintf(", depth %d", r.Config.CloneDepth)
		}
		rationale = "git clone exit status and directory walk"
	}
	return model.NewEvidence(RepoInvestigatorName, "Repository available for inspection", true, content, location, rationale, 1.0)
}

func (r *RepoInvestigator) historyEvidence(ctx context.Context, sb *repo.Sandbox) model.Evidence {
	const goal = "Git history shows iterative development"
	commits, err := repo.History(ctx, sb.Dir, r.Config.HistoryLimit)
	if err != nil {
		return model.MissingEvidence(RepoInvestigatorName, goal, ".git", fmt.Sprintf("git log failed: %v", err))
	}
	st := repo.Stats(commits)
	if st.Commits == 0 {
		return model.NewEvidence(RepoInvestigatorName, goal, false, "no commits", ".git", "git log returned no entries", 1.0)
	}

	var sb2 strings.Builder
	fmt.Fprintf(&sb2, "%d commits by %d author(s) between %s and %s",
		st.Commits, st.Authors, st.First.Format(time.RFC3339), st.Last.Format(time.RFC3339))
	if st.MonolithicDay {
		sb2.WriteString("; all commits within 24 hours")
	}
	sb2.WriteString("\nrecent:")
	for i, c := range commits {
		if i == 10 {
			break
		}
		fmt.Fprintf(&sb2, "\n%s %s", shortHash(c.Hash), c.Subject)
	}

	found := st.Commits > 3 && !st.MonolithicDay
	rationale := "git log output"
	if r.Config.CloneDepth > 0 && st.Commits >= r.Config.CloneDepth {
		rationale += fmt.Sprintf("; history truncated at clone depth %d", r.Config.CloneDepth)
	}
	return model.NewEvidence(RepoInvestigatorName, goal, found, sb2.String(), ".git", rationale, 0.95)
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}

func structureEvidence(st GoStats, manifest []string) model.Evidence {
	langs := map[string]int{}
	for _, rel := range manifest {
		if ext := strings.ToLower(path.Ext(rel)); codeExts[ext] {
			langs[ext]++
		}
	}
	content := fmt.Sprintf("%d files; source files by extension: %s", len(manifest), extCounts(langs))
	if st.Files > 0 {
		content += fmt.Sprintf("\nGo: %d files in %d packages: %s", st.Files, len(st.Packages), strings.Join(firstN(st.Packages, 30), ", "))
	}
	return model.NewEvidence(RepoInvestigatorName, "Source code structure", len(langs) > 0, content, ".",
		"Directory walk and Go syntax trees", 0.9)
}

func concurrencyEvidence(st GoStats, orchestration []Hit) model.Evidence {
	var lines []string
	if st.GoStatements > 0 {
		lines = append(lines, fmt.Sprintf("%d go statements", st.GoStatements))
	}
	if len(st.ErrgroupFiles) > 0 {
		lines = append(lines, "errgroup in "+strings.Join(firstN(st.ErrgroupFiles, 10), ", "))
	}
	if len(st.WaitGroupFiles) > 0 {
		lines = append(lines, "sync.WaitGroup in "+strings.Join(firstN(st.WaitGroupFiles, 10), ", "))
	}
	if len(orchestration) > 0 {
		lines = append(lines, describeHits(orchestration, 15))
	}
	found := st.Concurrent() || len(orchestration) > 0
	location := "."
	if len(orchestration) > 0 {
		location = orchestration[0].Location()
	} else if len(st.ErrgroupFiles) > 0 {
		location = st.ErrgroupFiles[0]
	}
	content := strings.Join(lines, "\n")
	if content == "" {
		content = "no goroutines, wait groups or graph wiring calls found"
	}
	return model.NewEvidence(RepoInvestigatorName, "Parallel graph orchestration in code", found, content, location,
		"Go syntax trees and source pattern scan", 0.85)
}

func testEvidence(st GoStats, files []string) model.Evidence {
	content := fmt.Sprintf("%d test file(s)", len(files))
	if st.TestFuncs > 0 {
		content += fmt.Sprintf(", %d Go test functions", st.TestFuncs)
	}
	if len(files) > 0 {
		content += ": " + strings.Join(firstN(files, 20), ", ")
	}
	location := "."
	if len(files) > 0 {
		location = files[0]
	}
	return model.NewEvidence(RepoInvestigatorName, "Automated tests present", len(files) > 0, content, location,
		"Test files identified by naming convention", 0.9)
}

func patternEvidence(goal string, hits []Hit, rationale string) model.Evidence {
	if len(hits) == 0 {
		return model.NewEvidence(RepoInvestigatorName, goal, false, "no matches", ".", "Source pattern scan found nothing", 0.7)
	}
	return model.NewEvidence(RepoInvestigatorName, goal, true, describeHits(hits, 15), hits[0].Location(), rationale, 0.8)
}

func safeToolingEvidence(st GoStats, hits []Hit) model.Evidence {
	const goal = "Repository tooling runs in a sandbox"
	var tmp, clone bool
	for _, h := range hits {
		switch h.Pattern {
		case "temp dir":
			tmp = true
		case "git clone":
			clone = true
		}
	}
	content := "no clone or temporary directory calls found"
	if len(hits) > 0 {
		content = describeHits(hits, 15)
	}
	if len(st.ExecFiles) > 0 {
		content += "\nos/exec used in " + strings.Join(firstN(st.ExecFiles, 10), ", ")
	}
	location := "."
	if len(hits) > 0 {
		location = hits[0].Location()
	}
	return model.NewEvidence(RepoInvestigatorName, goal, tmp && clone, content, location,
		"Temporary directory and clone calls located by pattern scan", 0.75)
}

func shellEvidence(hits []Hit) model.Evidence {
	if len(hits) == 0 {
		return model.NewEvidence(RepoInvestigatorName, "Raw shell execution", false, "no shell invocations found", ".",
			"Pattern scan for shell-interpreting calls", 0.8)
	}
	return model.NewEvidence(RepoInvestigatorName, "Raw shell execution", true, describeHits(hits, 15),
		strings.Join(firstN(hitLocations(hits), 5), ", "), "Calls that hand a string to a shell interpreter", 0.85)
}

func secretEvidence(hits []Hit, envFiles []string) model.Evidence {
	if len(hits) == 0 && len(envFiles) == 0 {
		return model.NewEvidence(RepoInvestigatorName, "Credentials committed to the repository", false,
			"no credential patterns or .env files found", ".", "Pattern scan for key formats and dotenv files", 0.8)
	}
	var parts []string
	if len(envFiles) > 0 {
		parts = append(parts, "committed dotenv files: "+strings.Join(envFiles, ", "))
	}
	if len(hits) > 0 {
		parts = append(parts, describeHits(hits, 10))
	}
	var location string
	if len(envFiles) > 0 {
		location = envFiles[0]
	} else {
		location = hits[0].Location()
	}
	return model.NewEvidence(RepoInvestigatorName, "Credentials committed to the repository", true, strings.Join(parts, "\n"),
		location, "Matched values are redacted", 0.85)
}

func ciEvidence(workflows []WorkflowSummary) []model.Evidence {
	const goal = "Continuous integration runs the tests"
	if len(workflows) == 0 {
		return []model.Evidence{model.NewEvidence(RepoInvestigatorName, goal, false, "no GitHub Actions workflows",
			".github/workflows", "Workflow directory is empty or absent", 0.9)}
	}
	out := make([]model.Evidence, 0, len(workflows))
	for _, wf := range workflows {
		if wf.Err != nil {
			out = append(out, model.MissingEvidence(RepoInvestigatorName, goal, wf.File, wf.Describe()))
			continue
		}
		out = append(out, model.NewEvidence(RepoInvestigatorName, goal, wf.RunsTest, wf.Describe(), wf.File,
			"Workflow YAML parsed; steps inspected for test and lint commands", 0.9))
	}
	return out
}

func readmeEvidence(manifest []string) model.Evidence {
	for _, rel := range manifest {
		if strings.Contains(rel, "/") {
			continue
		}
		if strings.HasPrefix(strings.ToLower(rel), "readme") {
			return model.NewEvidence(RepoInvestigatorName, "README documents the project", true, "README at "+rel, rel,
				"File present at repository root", 1.0)
		}
	}
	return model.NewEvidence(RepoInvestigatorName, "README documents the project", false, "no README at repository root", ".",
		"Root directory listing", 1.0)
}

func extCounts(m map[string]int) string {
	if len(m) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, m[k])
	}
	return strings.Join(parts, " ")
}

func firstN(list []string, n int) []string {
	if len(list) <= n {
		return list
	}
	return append(append([]string(nil), list[:n]...), fmt.Sprintf("(+%d more)", len(list)-n))
}
