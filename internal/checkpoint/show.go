package checkpoint

import (
	"fmt"
	"io"
	"strings"

	"github.com/ppiankov/auditor/internal/graph"
)

// ShowOptions filter what Show prints
type ShowOptions struct {
	Criterion string // only opinions on this dimension; empty prints all
	Full      bool   // print evidence content instead of goals
}

// Show prints the evidence and opinions of a snapshot
func Show(w io.Writer, snap *graph.Snapshot, opts ShowOptions) {
	st := snap.State
	if st == nil {
		fmt.Fprintln(w, "snapshot has no state")
		return
	}

	fmt.Fprintf(w, "Run:   %s\n", st.RunID)
	if snap.Step > 0 {
		fmt.Fprintf(w, "Step:  %d (%s)\n", snap.Step, strings.Join(snap.Nodes, ", "))
	}
	fmt.Fprintf(w, "Repo:  %s\n", st.RepoURL)
	if st.DocPath != "" {
		fmt.Fprintf(w, "Doc:   %s\n", st.DocPath)
	}

	fmt.Fprintln(w, "\n--- EVIDENCES ---")
	for _, name := range st.DetectiveNames() {
		for _, ev := range st.Evidences[name] {
			mark := "+"
			if !ev.Found {
				mark = "-"
			}
			text := ev.Goal
			if opts.Full && ev.Content != "" {
				text = ev.Content
			}
			fmt.Fprintf(w, "[%s] %s %s %s (%s)\n", name, mark, ev.ID, oneLine(text), ev.Location)
		}
	}

	fmt.Fprintln(w, "\n--- OPINIONS ---")
	for _, op := range st.Opinions {
		if opts.Criterion != "" && op.CriterionID != opts.Criterion {
			continue
		}
		fallback := ""
		if op.IsAutomatedFallback {
			fallback = " (fallback)"
		}
		fmt.Fprintf(w, "%s on %s: %d%s - %s\n", op.Judge, op.CriterionID, op.Score, fallback, oneLine(op.Argument))
	}

	if len(st.HallucinatedPaths) > 0 {
		fmt.Fprintln(w, "\n--- HALLUCINATED PATHS ---")
		for _, p := range st.HallucinatedPaths {
			fmt.Fprintln(w, p)
		}
	}
	if len(st.Warnings) > 0 {
		fmt.Fprintln(w, "\n--- WARNINGS ---")
		for _, msg := range st.Warnings {
			fmt.Fprintln(w, msg)
		}
	}
	if st.Report != nil {
		fmt.Fprintf(w, "\nReport: overall %.2f, %d criteria, skipped=%t\n", st.Report.OverallScore, len(st.Report.Criteria), st.Report.Skipped)
	}
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 160 {
		s = s[:157] + "..."
	}
	return s
}
