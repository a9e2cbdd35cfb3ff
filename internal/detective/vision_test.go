package detective

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEdges(t *testing.T) {
	tests := []struct {
		name string
		kind DiagramKind
		text string
		want []Edge
	}{
		{
			name: "mermaid shapes and labels",
			kind: DiagramMermaid,
			text: "flowchart TD\n  A[Start] -->|go| B{Route}\n  B -.-> C((End))\n  %% comment --> x\n",
			want: []Edge{{"A", "B"}, {"B", "C"}},
		},
		{
			name: "mermaid ampersand and chain",
			kind: DiagramMermaid,
			text: "graph LR\nstart --> rd & da\nrd & da --> agg --> judges",
			want: []Edge{{"start", "rd"}, {"start", "da"}, {"rd", "agg"}, {"da", "agg"}, {"agg", "judges"}},
		},
		{
			name: "mermaid inline text link",
			kind: DiagramMermaid,
			text: "A -- evidence --> B",
			want: []Edge{{"A", "B"}},
		},
		{
			name: "dot",
			kind: DiagramDOT,
			text: "digraph G {\n  start -> \"load rubric\" [color=red];\n  \"load rubric\" -> {a b};\n}",
			want: []Edge{{"start", "load_rubric"}, {"load_rubric", "a"}, {"load_rubric", "b"}},
		},
		{
			name: "plantuml",
			kind: DiagramPlantUML,
			text: "@startuml\n[Judges] --> [ChiefJustice] : opinions\nA -[#red]-> B\n' comment -> x\n@enduml",
			want: []Edge{{"Judges", "ChiefJustice"}, {"A", "B"}},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseEdges(tt.kind, tt.text))
		})
	}
}

func TestAnalyze(t *testing.T) {
	edges := ParseEdges(DiagramMermaid, `graph TD
start --> repo & doc & vision
repo & doc & vision --> aggregator
aggregator --> report
aggregator --> report`)

	topo := Analyze(edges)
	assert.Equal(t, 6, topo.Nodes)
	assert.Equal(t, 7, topo.Edges, "duplicate edge counted once")
	assert.Equal(t, map[string]int{"start": 3}, topo.FanOut)
	assert.Equal(t, map[string]int{"aggregator": 3}, topo.FanIn)
	assert.True(t, topo.Parallel())
	assert.Contains(t, topo.Describe(), "fan-out at: start(3)")

	linear := Analyze([]Edge{{"a", "b"}, {"b", "c"}})
	assert.False(t, linear.Parallel())
	assert.Contains(t, linear.Describe(), "fan-in at: none")
}

func TestDiagramKindOf(t *testing.T) {
	kind, ok := DiagramKindOf("docs/flow.MMD")
	assert.True(t, ok)
	assert.Equal(t, DiagramMermaid, kind)

	kind, ok = DiagramKindOf("graph.gv")
	assert.True(t, ok)
	assert.Equal(t, DiagramDOT, kind)

	_, ok = DiagramKindOf("arch.png")
	assert.False(t, ok)
}

func TestVisionInspector_Investigate(t *testing.T) {
	dir := t.TempDir()
	doc := writeFile(t, dir, "report.md", "# Architecture\n"+
		"![State graph](arch.png)\n"+
		"![Missing](gone.png)\n"+
		"```mermaid\ngraph TD\nA --> B & C\nB & C --> D\n```\n")
	writeFile(t, dir, "arch.png", "\x89PNG\r\n\x1a\n\x00")
	writeFile(t, dir, "pipeline.dot", "digraph { a -> b; b -> c; }")

	f, err := NewVisionInspector(nil, 0).Investigate(context.Background(), Target{DocPath: doc})
	require.NoError(t, err)

	byGoal := map[string]int{}
	for _, ev := range f.Evidence {
		assert.Equal(t, VisionInspectorName, ev.SourceName)
		byGoal[ev.Goal]++
	}
	assert.Equal(t, 2, byGoal["Architecture diagram referenced"], "two markdown image refs")
	assert.Equal(t, 2, byGoal["Diagram shows parallel fan-out and fan-in"], "fenced mermaid plus the dot file")

	var fenced, dotFile bool
	for _, ev := range f.Evidence {
		switch ev.Location {
		case doc + "#diagram-1":
			fenced = true
			assert.True(t, ev.Found)
		case filepath.ToSlash(filepath.Join(dir, "pipeline.dot")):
			dotFile = true
			assert.False(t, ev.Found, "linear pipeline has no fan-out")
		}
		if ev.Content == "image gone.png (Missing), file not found beside the report" {
			assert.True(t, ev.Found)
		}
	}
	assert.True(t, fenced)
	assert.True(t, dotFile)

	assert.Contains(t, f.Observed, "arch.png")
	assert.NotContains(t, f.Observed, "gone.png")
	assert.Contains(t, f.Observed, doc)
}

func TestVisionInspector_NoDocument(t *testing.T) {
	f, err := NewVisionInspector(nil, 0).Investigate(context.Background(), Target{})
	require.NoError(t, err)
	assert.Empty(t, f.Evidence)

	f, err = NewVisionInspector(nil, 0).Investigate(context.Background(), Target{DocPath: filepath.Join(t.TempDir(), "none.md")})
	require.NoError(t, err)
	require.Len(t, f.Evidence, 1)
	assert.False(t, f.Evidence[0].Found)
}

func TestVisionInspector_PDFDirectory(t *testing.T) {
	dir := t.TempDir()
	pdf := writeFile(t, dir, "report.pdf", "%PDF")
	writeFile(t, dir, "flow.mmd", "graph TD\nA --> B\nA --> C\nB --> D\nC --> D")

	f, err := NewVisionInspector(nil, 0).Investigate(context.Background(), Target{DocPath: pdf})
	require.NoError(t, err)
	require.Len(t, f.Evidence, 1)
	assert.True(t, f.Evidence[0].Found)
	assert.Contains(t, f.Evidence[0].Content, "fan-in at: D(2)")
}
