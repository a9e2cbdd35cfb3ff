package pipeline

import (
	"context"
	"fmt"

	"github.com/ppiankov/auditor/internal/detective"
	"github.com/ppiankov/auditor/internal/graph"
	"github.com/ppiankov/auditor/internal/integrity"
	"github.com/ppiankov/auditor/internal/judge"
	"github.com/ppiankov/auditor/internal/justice"
	"github.com/ppiankov/auditor/internal/model"
	"github.com/ppiankov/auditor/internal/rubric"
)

func (p *Pipeline) loadRubric(_ context.Context, _ *graph.State) (graph.Delta, error) {
	if p.opts.Rubric != nil {
		r := *p.opts.Rubric
		return graph.Delta{Rubric: &r}, nil
	}
	r, err := rubric.Load(p.opts.Config.Rubric.Path)
	if err != nil {
		return graph.Delta{}, err
	}
	return graph.Delta{Rubric: r}, nil
}

// recoverRubric continues with an empty rubric: the run still collects
// evidence and produces a report, just without criteria
func (p *Pipeline) recoverRubric(_ *graph.State, err error) graph.Delta {
	p.log.Warn("rubric unavailable, continuing with an empty rubric", "error", err)
	return graph.Delta{
		Rubric:   &model.Rubric{},
		Warnings: []string{fmt.Sprintf("%s: %v; continuing with an empty rubric", NodeLoadRubric, err)},
	}
}

func (p *Pipeline) investigate(d detective.Detective) graph.NodeFunc {
	return func(ctx context.Context, s *graph.State) (graph.Delta, error) {
		f, err := d.Investigate(ctx, detective.Target{RepoURL: s.RepoURL, DocPath: s.DocPath})
		if err != nil {
			return graph.Delta{}, err
		}
		if f.Evidence == nil {
			f.Evidence = []model.Evidence{}
		}
		return graph.Delta{
			Evidences:     map[string][]model.Evidence{d.Name(): f.Evidence},
			RepoManifest:  f.Manifest,
			RepoPath:      f.RepoPath,
			VerifiedPaths: observedPaths(f.Observed),
			Warnings:      f.Warnings,
		}, nil
	}
}

// recoverDetective records the failure as a found=false, zero-confidence
// record under the detective's own key
func (p *Pipeline) recoverDetective(d detective.Detective) graph.RecoverFunc {
	return func(s *graph.State, err error) graph.Delta {
		location := s.RepoURL
		if d.Name() != detective.RepoInvestigatorName {
			location = s.DocPath
		}
		p.log.Warn("detective failed", "detective", d.Name(), "error", err)
		return graph.Delta{
			Evidences: map[string][]model.Evidence{
				d.Name(): {model.MissingEvidence(d.Name(), "Collect evidence", location, fmt.Sprintf("collection failed: %v", err))},
			},
			Warnings: []string{fmt.Sprintf("%s: %v", d.Name(), err)},
		}
	}
}

// observedPaths normalises paths a detective read outside the repository
// the same way cited paths are extracted, so they classify as verified
func observedPaths(observed []string) []string {
	var out []string
	for _, o := range observed {
		out = append(out, integrity.ExtractPaths(o)...)
	}
	return out
}

// aggregate classifies every path cited by the evidence against the
// repository manifest
func (p *Pipeline) aggregate(_ context.Context, s *graph.State) (graph.Delta, error) {
	evidence := s.AllEvidence()
	p.log.Info("evidence aggregated", "records", len(evidence), "detectives", len(s.Evidences))

	if !s.ManifestSet {
		return graph.Delta{
			Warnings: []string{fmt.Sprintf("%s: no repository manifest, path classification skipped", NodeEvidenceAggregator)},
		}, nil
	}

	stubs := append([]string(nil), integrity.DefaultStubs...)
	stubs = append(stubs, integrity.ExtractPaths(s.DocPath)...)
	stubs = append(stubs, s.VerifiedPaths...)

	// evidence may spell files by their absolute checkout location
	roots := integrity.ExtractPaths(s.RepoPath)
	cls := integrity.ClassifyUnder(integrity.EvidencePaths(evidence), s.RepoManifest, stubs, roots)
	if len(cls.Hallucinated) > 0 {
		p.log.Warn("evidence cites paths missing from the repository", "count", len(cls.Hallucinated), "paths", cls.Hallucinated)
	}
	return graph.Delta{VerifiedPaths: cls.Verified, HallucinatedPaths: cls.Hallucinated}, nil
}

func (p *Pipeline) judgesEntry(_ context.Context, s *graph.State) (graph.Delta, error) {
	p.log.Debug("judicial stage entered", "dimensions", len(s.Dimensions()), "evidence", s.EvidenceCount())
	return graph.Delta{}, nil
}

func (p *Pipeline) deliberate(j *judge.Judge) graph.NodeFunc {
	return func(ctx context.Context, s *graph.State) (graph.Delta, error) {
		res := j.EvaluateAll(ctx, s.Dimensions(), s.AllEvidence())
		if res.Fallbacks > 0 {
			p.log.Warn("judge used automated fallback", "role", j.Role.String(), "fallbacks", res.Fallbacks)
		}
		return graph.Delta{Opinions: res.Opinions, Warnings: res.Warnings}, nil
	}
}

// recoverJudge files neutral fallback opinions for every dimension so the
// Chief Justice still sees all three seats
func (p *Pipeline) recoverJudge(j *judge.Judge) graph.RecoverFunc {
	return func(s *graph.State, err error) graph.Delta {
		dims := s.Dimensions()
		ops := make([]model.JudicialOpinion, 0, len(dims))
		for _, d := range dims {
			ops = append(ops, j.Fallback(d, err))
		}
		return graph.Delta{
			Opinions: ops,
			Warnings: []string{fmt.Sprintf("%s: %v; all opinions are automated fallbacks", j.Role, err)},
		}
	}
}

func (p *Pipeline) meta(s *graph.State) justice.Meta {
	return justice.Meta{RunID: s.RunID, RepoURL: s.RepoURL, GeneratedAt: p.opts.now().UTC()}
}

func (p *Pipeline) chiefJustice(_ context.Context, s *graph.State) (graph.Delta, error) {
	in := justice.Input{
		Dimensions:        s.Dimensions(),
		Opinions:          s.Opinions,
		Evidence:          s.AllEvidence(),
		VerifiedPaths:     s.VerifiedPaths,
		HallucinatedPaths: s.HallucinatedPaths,
		ManifestSize:      len(s.RepoManifest),
	}
	out := p.engine.Synthesize(in)
	report := justice.Assemble(p.meta(s), in, out)
	report.Warnings = dedupWarnings(append(append([]string(nil), s.Warnings...), out.Warnings...))
	return graph.Delta{Report: report, Warnings: out.Warnings}, nil
}

// writeReport finalises the skip branch, attaches the optional narrative
// and hands the report to the writer. A failed write leaves the report in
// state with a warning
func (p *Pipeline) writeReport(ctx context.Context, s *graph.State) (graph.Delta, error) {
	var d graph.Delta
	report := s.Report
	if report == nil {
		report = justice.AssembleSkipped(p.meta(s), s.VerifiedPaths, s.HallucinatedPaths)
		report.Warnings = dedupWarnings(s.Warnings)
		d.Report = report
	}

	if !report.Skipped && report.Narrative == nil && p.opts.Summarizer.IsEnabled() {
		narrative, err := p.opts.Summarizer.Polish(ctx, report)
		if err != nil {
			p.log.Warn("narrative skipped", "error", err)
		}
		if narrative != nil {
			r := *report
			r.Narrative = narrative
			report = &r
			d.Narrative = narrative
		}
	}

	if p.opts.Writer == nil {
		return d, nil
	}
	if err := p.opts.Writer.Write(ctx, report); err != nil {
		p.log.Error("report write failed", "error", err)
		return p.writeFailed(d, fmt.Errorf("write report: %w", err)), nil
	}
	return d, nil
}

// writeFailed records err as a warning. A report assembled in the same
// delta carries the warning itself; an earlier one receives it on apply
func (p *Pipeline) writeFailed(d graph.Delta, err error) graph.Delta {
	w := fmt.Sprintf("%s: %v", NodeReportWriter, err)
	if d.Report != nil {
		r := *d.Report
		r.Warnings = append(append([]string(nil), d.Report.Warnings...), w)
		d.Report = &r
	}
	d.Warnings = append(d.Warnings, w)
	return d
}

func (p *Pipeline) recoverWriter(s *graph.State, err error) graph.Delta {
	var d graph.Delta
	if s.Report == nil {
		d.Report = justice.AssembleSkipped(p.meta(s), s.VerifiedPaths, s.HallucinatedPaths)
		d.Report.Warnings = dedupWarnings(s.Warnings)
	}
	return p.writeFailed(d, err)
}

func dedupWarnings(ws []string) []string {
	seen := make(map[string]bool, len(ws))
	var out []string
	for _, w := range ws {
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}
