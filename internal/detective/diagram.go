package detective

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
)

// DiagramKind is a text diagram notation
type DiagramKind string

const (
	DiagramMermaid  DiagramKind = "mermaid"
	DiagramDOT      DiagramKind = "dot"
	DiagramPlantUML DiagramKind = "plantuml"
)

// Edge is a directed connection between two diagram nodes
type Edge struct {
	From, To string
}

// Topology summarises the shape of a diagram
type Topology struct {
	Nodes  int
	Edges  int
	FanOut map[string]int // Nodes with two or more outgoing edges
	FanIn  map[string]int // Nodes with two or more incoming edges
}

// Parallel reports whether the diagram both splits and joins
func (t Topology) Parallel() bool {
	return len(t.FanOut) > 0 && len(t.FanIn) > 0
}

// Describe renders the topology for evidence content
func (t Topology) Describe() string {
	return fmt.Sprintf("%d nodes, %d edges; fan-out at: %s; fan-in at: %s",
		t.Nodes, t.Edges, degreeList(t.FanOut), degreeList(t.FanIn))
}

func degreeList(m map[string]int) string {
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
		parts[i] = fmt.Sprintf("%s(%d)", k, m[k])
	}
	return strings.Join(parts, ", ")
}

// Analyze computes the topology of an edge list
func Analyze(edges []Edge) Topology {
	out := map[string]map[string]bool{}
	in := map[string]map[string]bool{}
	nodes := map[string]bool{}
	t := Topology{FanOut: map[string]int{}, FanIn: map[string]int{}}
	seen := map[Edge]bool{}
	for _, e := range edges {
		if seen[e] {
			continue
		}
		seen[e] = true
		t.Edges++
		nodes[e.From], nodes[e.To] = true, true
		if out[e.From] == nil {
			out[e.From] = map[string]bool{}
		}
		if in[e.To] == nil {
			in[e.To] = map[string]bool{}
		}
		out[e.From][e.To] = true
		in[e.To][e.From] = true
	}
	t.Nodes = len(nodes)
	for n, targets := range out {
		if len(targets) >= 2 {
			t.FanOut[n] = len(targets)
		}
	}
	for n, sources := range in {
		if len(sources) >= 2 {
			t.FanIn[n] = len(sources)
		}
	}
	return t
}

// DiagramKindOf classifies a file by extension; ok is false for other files
func DiagramKindOf(name string) (DiagramKind, bool) {
	switch strings.ToLower(path.Ext(name)) {
	case ".mmd", ".mermaid":
		return DiagramMermaid, true
	case ".dot", ".gv":
		return DiagramDOT, true
	case ".puml", ".plantuml", ".pu":
		return DiagramPlantUML, true
	}
	return "", false
}

var (
	mermaidShape  = regexp.MustCompile(`\(\([^)]*\)\)|\[\[[^\]]*\]\]|\[[^\]]*\]|\([^)]*\)|\{\{[^}]*\}\}|\{[^}]*\}`)
	mermaidLabel  = regexp.MustCompile(`\|[^|]*\|`)
	mermaidInline = regexp.MustCompile(`--\s+[^->]+?\s+-->`)
	mermaidArrow  = regexp.MustCompile(`\s*(?:<?-{2,}>|<?={2,}>|<?-\.+->|-{3,}|~{3,}|--[ox])\s*`)
	dotArrow      = regexp.MustCompile(`\s*(?:->|--)\s*`)
	dotAttrs      = regexp.MustCompile(`\[[^\]]*\]`)
	dotHeader     = regexp.MustCompile(`^(?:strict\s+)?(?:(?:di)?graph|subgraph)\b[^{]*\{`)
	umlArrow      = regexp.MustCompile(`\s*<?[-.]+(?:\[[^\]]*\])?[-.]*>\s*`)
)

var mermaidKeywords = map[string]bool{
	"graph": true, "flowchart": true, "subgraph": true, "end": true, "classdef": true,
	"class": true, "style": true, "click": true, "linkstyle": true, "direction": true,
}

// ParseEdges extracts directed edges from a text diagram
func ParseEdges(kind DiagramKind, text string) []Edge {
	var edges []Edge
	lines := strings.Split(text, "\n")
	if kind == DiagramDOT {
		lines = dotStatements(text)
	}
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		switch kind {
		case DiagramMermaid:
			edges = append(edges, mermaidLine(line)...)
		case DiagramDOT:
			edges = append(edges, dotLine(line)...)
		case DiagramPlantUML:
			edges = append(edges, umlLine(line)...)
		}
	}
	return edges
}

func mermaidLine(line string) []Edge {
	if strings.HasPrefix(line, "%%") || mermaidKeywords[strings.ToLower(strings.Fields(line)[0])] {
		return nil
	}
	line = strings.TrimSuffix(line, ";")
	line = mermaidLabel.ReplaceAllString(line, "")
	line = mermaidInline.ReplaceAllString(line, "-->")
	line = mermaidShape.ReplaceAllString(line, "")
	return chain(mermaidArrow.Split(line, -1), func(seg string) []string {
		return strings.Split(seg, "&")
	})
}

// dotStatements splits DOT source on newlines and semicolons and drops
// graph headers and unbalanced braces
func dotStatements(text string) []string {
	var out []string
	for _, stmt := range strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == ';' }) {
		stmt = strings.TrimSpace(stmt)
		if strings.HasPrefix(stmt, "//") || strings.HasPrefix(stmt, "#") {
			continue
		}
		stmt = strings.TrimSpace(dotHeader.ReplaceAllString(stmt, ""))
		for strings.Count(stmt, "}") > strings.Count(stmt, "{") && strings.HasSuffix(stmt, "}") {
			stmt = strings.TrimSpace(strings.TrimSuffix(stmt, "}"))
		}
		for strings.Count(stmt, "{") > strings.Count(stmt, "}") && strings.HasPrefix(stmt, "{") {
			stmt = strings.TrimSpace(strings.TrimPrefix(stmt, "{"))
		}
		out = append(out, stmt)
	}
	return out
}

func dotLine(line string) []Edge {
	line = strings.TrimSpace(dotAttrs.ReplaceAllString(line, ""))
	if !dotArrow.MatchString(line) {
		return nil
	}
	return chain(dotArrow.Split(line, -1), func(seg string) []string {
		seg = strings.TrimSpace(seg)
		if strings.HasPrefix(seg, "{") {
			return strings.FieldsFunc(strings.Trim(seg, "{}"), func(r rune) bool {
				return r == ',' || r == ';' || r == ' ' || r == '\t'
			})
		}
		return []string{seg}
	})
}

func umlLine(line string) []Edge {
	if strings.HasPrefix(line, "'") || strings.HasPrefix(line, "@") {
		return nil
	}
	if i := strings.Index(line, ":"); i >= 0 {
		line = line[:i]
	}
	if !umlArrow.MatchString(line) {
		return nil
	}
	return chain(umlArrow.Split(line, -1), nil)
}

// chain links consecutive segments; split, when set, expands a segment
// into several nodes
func chain(segments []string, split func(string) []string) []Edge {
	if len(segments) < 2 {
		return nil
	}
	groups := make([][]string, 0, len(segments))
	for _, seg := range segments {
		var ids []string
		parts := []string{seg}
		if split != nil {
			parts = split(seg)
		}
		for _, p := range parts {
			if id := nodeID(p); id != "" {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			return nil
		}
		groups = append(groups, ids)
	}
	var edges []Edge
	for i := 0; i+1 < len(groups); i++ {
		for _, from := range groups[i] {
			for _, to := range groups[i+1] {
				edges = append(edges, Edge{From: from, To: to})
			}
		}
	}
	return edges
}

// nodeID strips quoting and brackets; inner spaces become underscores
func nodeID(s string) string {
	s = strings.Trim(strings.TrimSpace(s), `"[]()`)
	return strings.Join(strings.Fields(s), "_")
}
