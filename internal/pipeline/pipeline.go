// Package pipeline wires the auditor's stages into an orchestration graph:
// detectives fan out, an aggregator checks cited paths, three judges fan out
// over the rubric, and the Chief Justice synthesizes the report
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/auditor/internal/detective"
	"github.com/ppiankov/auditor/internal/graph"
	"github.com/ppiankov/auditor/internal/judge"
	"github.com/ppiankov/auditor/internal/justice"
	"github.com/ppiankov/auditor/internal/llm"
	"github.com/ppiankov/auditor/internal/logging"
	"github.com/ppiankov/auditor/internal/model"
)

// Stage names
const (
	NodeLoadRubric         = "load_rubric"
	NodeEvidenceAggregator = "evidence_aggregator"
	NodeJudgesEntry        = "judges_entry"
	NodeProsecutor         = "prosecutor"
	NodeDefense            = "defense"
	NodeTechLead           = "tech_lead"
	NodeChiefJustice       = "chief_justice"
	NodeReportWriter       = "report_writer"
)

// judgeNodes maps judge stages to their roles
var judgeNodes = []struct {
	node string
	role model.JudgeRole
}{
	{NodeProsecutor, model.JudgeProsecutor},
	{NodeDefense, model.JudgeDefense},
	{NodeTechLead, model.JudgeTechLead},
}

// ReportWriter persists the final report, e.g. as JSON and Markdown files
type ReportWriter interface {
	Write(ctx context.Context, report *model.AuditReport) error
}

// Options are the collaborators of a pipeline. Everything is injected; the
// pipeline looks nothing up from the environment
type Options struct {
	Config       *model.Config
	Rubric       *model.Rubric          // Preloaded rubric; nil loads Config.Rubric.Path
	Detectives   []detective.Detective  // Run in parallel, one evidence key each
	Evaluators   []judge.Evaluator      // Priority order, shared by all judges
	Summarizer   *llm.Summarizer        // Optional narrative polish
	Writer       ReportWriter           // Optional
	Checkpointer graph.Checkpointer     // Optional
	Observer     graph.Observer         // Optional; a LogObserver is always attached
	Logger       *slog.Logger

	now   func() time.Time
	runID func() string
}

// Pipeline runs audits over a fixed graph
type Pipeline struct {
	opts   Options
	graph  *graph.Graph
	judges map[string]*judge.Judge
	engine *justice.Engine
	log    *slog.Logger
}

// Result is the outcome of one audit
type Result struct {
	Report *model.AuditReport
	State  *graph.State
}

// New validates options and builds the graph
func New(opts Options) (*Pipeline, error) {
	if opts.Config == nil {
		opts.Config = model.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = logging.New("pipeline")
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	if opts.runID == nil {
		opts.runID = uuid.NewString
	}

	seen := map[string]bool{}
	for _, d := range opts.Detectives {
		if d == nil {
			return nil, fmt.Errorf("nil detective")
		}
		if seen[d.Name()] {
			return nil, fmt.Errorf("duplicate detective %q", d.Name())
		}
		seen[d.Name()] = true
	}

	p := &Pipeline{
		opts:   opts,
		judges: make(map[string]*judge.Judge, len(judgeNodes)),
		engine: justice.New(justice.ConfigFromModel(opts.Config.Synthesis)),
		log:    opts.Logger,
	}
	for _, jn := range judgeNodes {
		j := judge.New(jn.role, opts.Evaluators, opts.Config.Judges)
		j.NeutralScore = opts.Config.Synthesis.NeutralScore
		p.judges[jn.node] = j
	}

	g, err := p.build()
	if err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}
	p.graph = g
	return p, nil
}

// Graph returns the compiled graph, e.g. for diagram output
func (p *Pipeline) Graph() *graph.Graph {
	return p.graph
}

func (p *Pipeline) build() (*graph.Graph, error) {
	b := graph.NewBuilder()

	b.AddNode(graph.Node{Name: NodeLoadRubric, Run: p.loadRubric, Recover: p.recoverRubric})
	b.AddEdge(graph.Start, NodeLoadRubric)

	b.AddNode(graph.Node{Name: NodeEvidenceAggregator, Run: p.aggregate})
	if len(p.opts.Detectives) == 0 {
		b.AddEdge(NodeLoadRubric, NodeEvidenceAggregator)
	}
	for _, d := range p.opts.Detectives {
		b.AddNode(graph.Node{Name: d.Name(), Run: p.investigate(d), Recover: p.recoverDetective(d)})
		b.AddEdge(NodeLoadRubric, d.Name())
		b.AddEdge(d.Name(), NodeEvidenceAggregator)
	}

	b.AddNode(graph.Node{Name: NodeJudgesEntry, Run: p.judgesEntry})
	b.AddNode(graph.Node{Name: NodeReportWriter, Run: p.writeReport, Recover: p.recoverWriter})
	b.AddConditionalEdge(NodeEvidenceAggregator, routeOnEvidence, map[graph.Route]string{
		graph.RouteContinue:     NodeJudgesEntry,
		graph.RouteSkipToReport: NodeReportWriter,
	})

	b.AddNode(graph.Node{Name: NodeChiefJustice, Run: p.chiefJustice})
	for _, jn := range judgeNodes {
		j := p.judges[jn.node]
		b.AddNode(graph.Node{Name: jn.node, Run: p.deliberate(j), Recover: p.recoverJudge(j)})
		b.AddEdge(NodeJudgesEntry, jn.node)
		b.AddEdge(jn.node, NodeChiefJustice)
	}
	b.AddEdge(NodeChiefJustice, NodeReportWriter)
	b.AddEdge(NodeReportWriter, graph.End)

	return b.Build()
}

// routeOnEvidence skips the judicial stage when no detective found anything
func routeOnEvidence(s *graph.State) graph.Route {
	if s.HasEvidence() {
		return graph.RouteContinue
	}
	return graph.RouteSkipToReport
}

// Audit runs the graph for one target
func (p *Pipeline) Audit(ctx context.Context, repoURL, docPath string) (*Result, error) {
	runID := p.opts.runID()
	initial := graph.NewState(runID, strings.TrimSpace(repoURL), strings.TrimSpace(docPath))
	log := p.log.With("run_id", runID)

	observers := graph.MultiObserver{&graph.LogObserver{Logger: log}}
	if p.opts.Observer != nil {
		observers = append(observers, p.opts.Observer)
	}

	start := p.opts.now()
	log.Info("audit started", "repo", initial.RepoURL, "doc", initial.DocPath)
	final, err := p.graph.Run(ctx, initial, graph.RunConfig{
		MaxParallel:  p.opts.Config.Concurrency.MaxParallelStages,
		Observer:     observers,
		Checkpointer: p.opts.Checkpointer,
	})
	if err != nil {
		res := &Result{State: final}
		if final != nil {
			res.Report = final.Report
		}
		return res, fmt.Errorf("audit %s: %w", runID, err)
	}
	if final.Report == nil {
		return &Result{State: final}, fmt.Errorf("audit %s: no report produced", runID)
	}

	log.Info("audit finished",
		"score", final.Report.OverallScore,
		"criteria", len(final.Report.Criteria),
		"skipped", final.Report.Skipped,
		"warnings", len(final.Warnings),
		"duration", p.opts.now().Sub(start))
	return &Result{Report: final.Report, State: final}, nil
}
