package graph

import (
	"fmt"
	"strings"
)

// Mermaid renders the graph as a Mermaid flowchart. Conditional edges are
// dotted and labelled with their route
func (g *Graph) Mermaid() string {
	var b strings.Builder
	b.WriteString("graph TD\n")
	fmt.Fprintf(&b, "    %s([start])\n", mermaidID(Start))
	for _, name := range g.order {
		shape := "[%s]"
		if g.branch != nil && g.branch.from == name {
			shape = "{%s}"
		}
		fmt.Fprintf(&b, "    %s"+shape+"\n", mermaidID(name), name)
	}
	fmt.Fprintf(&b, "    %s([end])\n", mermaidID(End))

	for _, e := range g.edges {
		from, to := mermaidID(e.From), mermaidID(e.To)
		if e.Conditional {
			fmt.Fprintf(&b, "    %s -.->|%s| %s\n", from, e.Route, to)
			continue
		}
		fmt.Fprintf(&b, "    %s --> %s\n", from, to)
	}
	return b.String()
}

// mermaidID maps names to flowchart identifiers. Lowercase "end" is a
// Mermaid keyword, so the reserved vertices are upper-cased
func mermaidID(s string) string {
	switch s {
	case Start:
		return "START"
	case End:
		return "END"
	}
	return strings.NewReplacer("-", "_", " ", "_", ".", "_").Replace(s)
}
