package detective

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/auditor/internal/model"
	"github.com/ppiankov/auditor/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func testFetcher() *util.Fetcher {
	return util.NewFetcher(model.HTTPConfig{Timeout: 5 * time.Second, UserAgent: "auditor-test"}, nil)
}

func TestMarkdownSections(t *testing.T) {
	text := `Intro line.

# Architecture
We fan-out to three detectives.

` + "```bash" + `
# not a heading
go test ./...
` + "```" + `

## Tools ##
See src/tools/repo_tools.py.
#hashtag is not a heading
`
	secs := markdownSections(text)
	require.Len(t, secs, 3)

	assert.Equal(t, "", secs[0].Heading)
	assert.Equal(t, "preamble", secs[0].Anchor())
	assert.Equal(t, "Intro line.", secs[0].Body)

	assert.Equal(t, "Architecture", secs[1].Heading)
	assert.Equal(t, 1, secs[1].Level)
	assert.Contains(t, secs[1].Body, "# not a heading")

	assert.Equal(t, "Tools", secs[2].Heading)
	assert.Equal(t, 2, secs[2].Level)
	assert.Contains(t, secs[2].Body, "#hashtag")
}

func TestHTMLSections(t *testing.T) {
	page := `<html><head><title>x</title><style>h1{}</style></head><body>
<p>Before any heading.</p>
<h1>Design <em>Overview</em></h1>
<p>The graph runs in parallel.</p><script>var a = "src/secret.js";</script>
<h2>Files</h2><ul><li>src/graph.py</li><li>src/state.py</li></ul>
</body></html>`

	secs, err := htmlSections(page)
	require.NoError(t, err)
	require.Len(t, secs, 3)

	assert.Equal(t, "Design Overview", secs[1].Heading)
	assert.Equal(t, "The graph runs in parallel.", secs[1].Body)
	assert.NotContains(t, secs[1].Body, "secret")

	assert.Equal(t, "Files", secs[2].Heading)
	assert.Equal(t, "src/graph.py\nsrc/state.py", secs[2].Body)
}

func TestLoadDocument_Local(t *testing.T) {
	dir := t.TempDir()
	md := writeFile(t, dir, "report.md", "# Report\nbody")

	doc, err := LoadDocument(context.Background(), nil, md, 0)
	require.NoError(t, err)
	assert.Equal(t, KindMarkdown, doc.Kind)
	assert.Equal(t, dir, doc.Dir)
	assert.Len(t, doc.Sections(), 1)

	pdf := writeFile(t, dir, "report.pdf", "%PDF-1.7")
	doc, err = LoadDocument(context.Background(), nil, pdf, 0)
	require.ErrorIs(t, err, ErrUnsupportedDocument)
	assert.Equal(t, KindPDF, doc.Kind)

	bin := writeFile(t, dir, "blob.md", "a\x00b")
	_, err = LoadDocument(context.Background(), nil, bin, 0)
	require.ErrorIs(t, err, ErrUnsupportedDocument)

	_, err = LoadDocument(context.Background(), nil, filepath.Join(dir, "missing.md"), 0)
	require.Error(t, err)
}

func TestLoadDocument_Truncated(t *testing.T) {
	md := writeFile(t, t.TempDir(), "long.md", "# Title\n0123456789abcdef")
	doc, err := LoadDocument(context.Background(), nil, md, 10)
	require.NoError(t, err)
	assert.True(t, doc.Truncated)
	assert.Len(t, doc.Text, 10)
}

func TestLoadDocument_URL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/report":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte("<h1>Report</h1><p>src/graph.py</p>"))
		case "/paper":
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	doc, err := LoadDocument(context.Background(), testFetcher(), server.URL+"/report", 0)
	require.NoError(t, err)
	assert.Equal(t, KindHTML, doc.Kind)
	assert.Empty(t, doc.Dir)
	secs := doc.Sections()
	require.Len(t, secs, 1)
	assert.Equal(t, "Report", secs[0].Heading)

	_, err = LoadDocument(context.Background(), testFetcher(), server.URL+"/paper", 0)
	assert.ErrorIs(t, err, ErrUnsupportedDocument)

	_, err = LoadDocument(context.Background(), nil, server.URL+"/report", 0)
	assert.Error(t, err, "URL without fetcher")
}

func TestKindFromPath(t *testing.T) {
	tests := map[string]DocKind{
		"report.md":                      KindMarkdown,
		"REPORT.PDF":                     KindPDF,
		"https://x.test/a.html?v=1":      KindHTML,
		"notes.txt":                      KindText,
		"https://x.test/paper.pdf#page2": KindPDF,
		"README":                         KindMarkdown,
	}
	for in, want := range tests {
		assert.Equal(t, want, kindFromPath(in), in)
	}
}

func TestDocAnalyst_Investigate(t *testing.T) {
	dir := t.TempDir()
	doc := writeFile(t, dir, "final_report.md", `# Automaton Auditor
Overview without claims.

## Detective Layer
The detectives fan-out in parallel; see src/nodes/detectives.py and src/graph.py.

## Acknowledgements
Thanks to everyone.
`)

	f, err := NewDocAnalyst(nil, 0).Investigate(context.Background(), Target{DocPath: doc})
	require.NoError(t, err)
	require.Len(t, f.Evidence, 3, "summary, the one section with claims and its path-citing sentence")
	assert.Equal(t, []string{doc}, f.Observed)
	assert.Nil(t, f.Manifest)

	summary := f.Evidence[0]
	assert.Equal(t, "Report document ingested", summary.Goal)
	assert.True(t, summary.Found)
	assert.Contains(t, summary.Content, "Detective Layer")

	claim := f.Evidence[1]
	assert.Equal(t, DocAnalystName, claim.SourceName)
	assert.Equal(t, "Report claims in section Detective Layer", claim.Goal)
	assert.Equal(t, doc+"#Detective Layer", claim.Location)
	assert.Contains(t, claim.Rationale, "src/nodes/detectives.py")
	assert.Contains(t, claim.Rationale, "fan-out")
	assert.Contains(t, claim.Rationale, "makes 1 implementation claim(s)")
	assert.NotEmpty(t, claim.ID)

	sentence := f.Evidence[2]
	assert.Equal(t, "Report claim names repository files", sentence.Goal)
	assert.True(t, sentence.Found)
	assert.Equal(t, doc+"#Detective Layer", sentence.Location)
	assert.True(t, strings.HasPrefix(sentence.Content, "The detectives fan-out in parallel"))
	assert.Contains(t, sentence.Rationale, "src/nodes/detectives.py, src/graph.py")
}

func TestDocAnalyst_Degrades(t *testing.T) {
	dir := t.TempDir()
	a := NewDocAnalyst(nil, 0)

	f, err := a.Investigate(context.Background(), Target{})
	require.NoError(t, err)
	assert.Empty(t, f.Evidence, "no document, nothing to report")

	f, err = a.Investigate(context.Background(), Target{DocPath: filepath.Join(dir, "missing.md")})
	require.NoError(t, err)
	require.Len(t, f.Evidence, 1)
	assert.False(t, f.Evidence[0].Found)
	assert.Zero(t, f.Evidence[0].Confidence)
	assert.Len(t, f.Warnings, 1)

	pdf := writeFile(t, dir, "report.pdf", "%PDF")
	f, err = a.Investigate(context.Background(), Target{DocPath: pdf})
	require.NoError(t, err)
	require.Len(t, f.Evidence, 1)
	assert.False(t, f.Evidence[0].Found)
	assert.Contains(t, f.Evidence[0].Rationale, "PDF")
}

func TestDocAnalyst_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# late"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewDocAnalyst(testFetcher(), 0).Investigate(ctx, Target{DocPath: server.URL + "/r.md"})
	assert.ErrorIs(t, err, context.Canceled)
}
