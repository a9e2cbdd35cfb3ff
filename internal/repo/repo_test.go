package repo

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestManifest(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main")
	writeFile(t, root, "internal/graph/engine.go", "package graph")
	writeFile(t, root, "docs/README.md", "# docs")
	writeFile(t, root, ".git/HEAD", "ref: refs/heads/main")
	writeFile(t, root, ".github/workflows/ci.yml", "on: push")

	got, err := Manifest(root)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		".github/workflows/ci.yml",
		"docs/README.md",
		"internal/graph/engine.go",
		"main.go",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Manifest mismatch (-want +got):\n%s", diff)
	}
}

func TestManifest_Empty(t *testing.T) {
	got, err := Manifest(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Manifest of empty dir = %#v, want empty non-nil", got)
	}
}

func TestManifest_MissingRoot(t *testing.T) {
	if _, err := Manifest(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestValidateSource(t *testing.T) {
	tests := []struct {
		source string
		ok     bool
	}{
		{"https://github.com/org/repo.git", true},
		{"http://git.local/repo", true},
		{"ssh://git@github.com/org/repo.git", true},
		{"git@github.com:org/repo.git", true},
		{"file:///srv/repos/project", true},
		{"--upload-pack=touch /tmp/pwned", false},
		{"-c core.sshCommand=evil", false},
		{"https://github.com/org/repo name", false},
		{"ext::sh -c touch% /tmp/pwned", false},
		{"ftp://example.com/repo", false},
		{"https:///no-host", false},
		{"https://-oProxyCommand=evil/repo", false},
		{"relative/path/that/does/not/exist", false},
	}

	for _, tt := range tests {
		err := ValidateSource(tt.source)
		if tt.ok && err != nil {
			t.Errorf("ValidateSource(%q) = %v, want nil", tt.source, err)
		}
		if !tt.ok {
			if err == nil {
				t.Errorf("ValidateSource(%q) = nil, want error", tt.source)
			} else if !errors.Is(err, ErrUnsafeSource) {
				t.Errorf("ValidateSource(%q) error %v does not wrap ErrUnsafeSource", tt.source, err)
			}
		}
	}
}

func TestOpen_LocalDirectory(t *testing.T) {
	root := t.TempDir()
	sb, err := Open(context.Background(), root, CloneOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if sb.Cloned {
		t.Error("local directory must not be cloned")
	}
	if err := sb.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(root); err != nil {
		t.Errorf("Close removed a local directory: %v", err)
	}
}

func TestOpen_RejectsUnsafe(t *testing.T) {
	_, err := Open(context.Background(), "--upload-pack=evil", CloneOptions{})
	if !errors.Is(err, ErrUnsafeSource) {
		t.Errorf("Open error = %v, want ErrUnsafeSource", err)
	}
	_, err = Open(context.Background(), "   ", CloneOptions{})
	if !errors.Is(err, ErrUnsafeSource) {
		t.Errorf("Open(blank) error = %v, want ErrUnsafeSource", err)
	}
}

// initRepo creates a git repository with two commits
func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	git := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=Ada", "GIT_AUTHOR_EMAIL=ada@example.com",
			"GIT_COMMITTER_NAME=Ada", "GIT_COMMITTER_EMAIL=ada@example.com",
		)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	git("init", "--quiet")
	writeFile(t, dir, "main.go", "package main\n")
	git("add", ".")
	git("commit", "--quiet", "-m", "initial commit")
	writeFile(t, dir, "internal/graph/engine.go", "package graph\n")
	git("add", ".")
	git("commit", "--quiet", "-m", "add graph engine")
	return dir
}

func TestOpen_CloneAndClose(t *testing.T) {
	src := initRepo(t)

	sb, err := Open(context.Background(), "file://"+filepath.ToSlash(src), CloneOptions{Depth: 1, Timeout: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	if !sb.Cloned {
		t.Fatal("expected a clone")
	}

	files, err := Manifest(sb.Dir)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"internal/graph/engine.go", "main.go"}, files); diff != "" {
		t.Errorf("cloned manifest (-want +got):\n%s", diff)
	}

	commits, err := History(context.Background(), sb.Dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(commits) != 1 {
		t.Errorf("depth 1 clone has %d commits, want 1", len(commits))
	}

	if err := sb.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(sb.Dir); !os.IsNotExist(err) {
		t.Errorf("clone still present after Close: %v", err)
	}
}

func TestHistory(t *testing.T) {
	dir := initRepo(t)

	commits, err := History(context.Background(), dir, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(commits) != 2 {
		t.Fatalf("got %d commits, want 2", len(commits))
	}
	if commits[0].Subject != "add graph engine" || commits[1].Subject != "initial commit" {
		t.Errorf("subjects = %q, %q", commits[0].Subject, commits[1].Subject)
	}
	if commits[0].Author != "Ada" || len(commits[0].Hash) != 40 {
		t.Errorf("commit = %+v", commits[0])
	}

	limited, err := History(context.Background(), dir, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("limit 1 returned %d commits", len(limited))
	}
}

func TestHistory_NotARepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	t.Setenv("GIT_CEILING_DIRECTORIES", os.TempDir())
	if _, err := History(context.Background(), t.TempDir(), 5); err == nil {
		t.Error("expected error outside a repository")
	}
}

func TestParseLog(t *testing.T) {
	out := "abc\x1fAda\x1f2024-03-01T10:00:00Z\x1fsecond\n" +
		"def\x1fLin\x1f2024-02-28T09:00:00+01:00\x1ffirst: with\x1fseparator\n"
	got, err := parseLog(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d commits", len(got))
	}
	if got[1].Subject != "first: with\x1fseparator" {
		t.Errorf("subject = %q", got[1].Subject)
	}

	if _, err := parseLog("only\x1ftwo"); err == nil {
		t.Error("expected error for malformed line")
	}
	if _, err := parseLog("a\x1fb\x1fnot-a-date\x1fs"); err == nil {
		t.Error("expected error for bad date")
	}
}

func TestStats(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		commits  []Commit
		authors  int
		monolith bool
		wantSpan time.Duration
	}{
		{"empty", nil, 0, false, 0},
		{"single", []Commit{{Author: "a", Date: base}}, 1, false, 0},
		{
			"same day",
			[]Commit{{Author: "a", Date: base.Add(3 * time.Hour)}, {Author: "a", Date: base}},
			1, true, 3 * time.Hour,
		},
		{
			"iterative",
			[]Commit{{Author: "a", Date: base.Add(72 * time.Hour)}, {Author: "b", Date: base.Add(24 * time.Hour)}, {Author: "a", Date: base}},
			2, false, 72 * time.Hour,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			s := Stats(tt.commits)
			if s.Commits != len(tt.commits) || s.Authors != tt.authors || s.MonolithicDay != tt.monolith || s.Span != tt.wantSpan {
				t.Errorf("Stats = %+v", s)
			}
		})
	}
}
