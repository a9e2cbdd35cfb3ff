package integrity

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ppiankov/auditor/internal/model"
)

func TestExtractPaths(t *testing.T) {
	text := `The graph lives in src/graph.py and ./src/nodes/judges.py (see README.md).
Version 1.2.3 of github.com/org/tool is used, e.g. for input/output; confidence 0.9.
Deploy with Dockerfile and .env, https://example.com/docs/page.html is external.`

	got := ExtractPaths(text)
	want := []string{"src/graph.py", "src/nodes/judges.py", "README.md", "Dockerfile", ".env"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ExtractPaths (-want +got):\n%s", diff)
	}
}

func TestClassify(t *testing.T) {
	manifest := []string{"src/graph.py", "src/nodes/judges.py", "README.md", "docs/arch.png"}
	candidates := []string{
		"src/graph.py",    // exact
		"nodes/judges.py", // suffix on boundary
		"judges.py",       // bare name suffix
		"src/nodes",       // directory
		"des/judges.py",   // suffix but not on a segment boundary
		"src/ghost.py",    // absent
		".git/HEAD",       // stub
		"src/graph.py",    // duplicate
	}

	got := Classify(candidates, manifest, DefaultStubs)
	want := Classification{
		Verified:     []string{".git/HEAD", "judges.py", "nodes/judges.py", "src/graph.py", "src/nodes"},
		Hallucinated: []string{"des/judges.py", "src/ghost.py"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Classify (-want +got):\n%s", diff)
	}
}

func TestClassify_Idempotent(t *testing.T) {
	evidence := []model.Evidence{
		model.NewEvidence("doc_analyst", "claims", true, "We implemented src/graph.py and src/missing.go", "Architecture", "doc", 0.8),
		model.NewEvidence("repo_investigator", "structure", true, "package main", "cmd/main.go", "ast", 1),
	}
	manifest := []string{"cmd/main.go", "src/graph.py"}

	first := Classify(EvidencePaths(evidence), manifest, DefaultStubs)
	second := Classify(EvidencePaths(evidence), manifest, DefaultStubs)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("classification not idempotent (-first +second):\n%s", diff)
	}

	// Re-classifying the output itself must not move anything.
	again := Classify(append(first.Verified, first.Hallucinated...), manifest, DefaultStubs)
	if diff := cmp.Diff(first, again); diff != "" {
		t.Errorf("reclassification changed sets (-first +again):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"src/missing.go"}, first.Hallucinated); diff != "" {
		t.Errorf("hallucinated (-want +got):\n%s", diff)
	}
}

func TestMentions(t *testing.T) {
	hallucinated := []string{"src/ghost.py", "lib/phantom.go"}

	got := Mentions("The orchestration in src/ghost.py is exemplary.", hallucinated)
	if diff := cmp.Diff([]string{"src/ghost.py"}, got); diff != "" {
		t.Errorf("Mentions (-want +got):\n%s", diff)
	}

	if got := Mentions("The tool reuses ghost.py helpers.", hallucinated); len(got) != 0 {
		t.Errorf("expected no mentions for partial name, got %v", got)
	}
	if got := Mentions("anything", nil); got != nil {
		t.Errorf("expected nil for empty path list, got %v", got)
	}
}

func TestMentions_PrefixedSpellings(t *testing.T) {
	hallucinated := []string{"src/ghost.py", "src/ghost_module.py"}

	cases := []struct {
		text string
		want []string
	}{
		{"the file at repo/src/ghost_module.py is missing", []string{"src/ghost_module.py"}},
		{"see /tmp/auditor-repo-x/repo/src/ghost.py for details", []string{"src/ghost.py"}},
		{"src/ghost.py and again ./src/ghost.py", []string{"src/ghost.py"}},
		{"mysrc/ghost.py is a different file", nil},
	}
	for _, tc := range cases {
		got := Mentions(tc.text, hallucinated)
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("Mentions(%q) (-want +got):\n%s", tc.text, diff)
		}
	}
}

func TestClassifyUnder_StripsCheckoutRoot(t *testing.T) {
	manifest := []string{"main.go", "internal/graph/engine.go"}
	roots := ExtractPaths("/home/u/proj")
	candidates := []string{
		"home/u/proj",                          // the checkout itself
		"home/u/proj/internal/graph/engine.go", // present
		"home/u/proj/internal/ghost.go",        // absent
		"home/u/project/main.go",               // sibling directory, not under the root
		"main.go",
	}

	got := ClassifyUnder(candidates, manifest, DefaultStubs, roots)
	want := Classification{
		Verified:     []string{"internal/graph/engine.go", "main.go"},
		Hallucinated: []string{"home/u/project/main.go", "internal/ghost.go"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ClassifyUnder (-want +got):\n%s", diff)
	}

	// without roots the absolute spelling of a present file is not trusted
	plain := Classify(candidates[1:2], manifest, DefaultStubs)
	if diff := cmp.Diff([]string{"home/u/proj/internal/graph/engine.go"}, plain.Hallucinated); diff != "" {
		t.Errorf("Classify (-want +got):\n%s", diff)
	}
}

func TestDedup(t *testing.T) {
	got := Dedup([]string{"b.go", "a.go", "b.go"})
	if diff := cmp.Diff([]string{"a.go", "b.go"}, got); diff != "" {
		t.Errorf("Dedup (-want +got):\n%s", diff)
	}
}
