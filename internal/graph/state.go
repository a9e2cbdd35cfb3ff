package graph

import (
	"fmt"
	"sort"

	"github.com/ppiankov/auditor/internal/model"
)

// State is the shared run state of one audit. Stages never mutate it
// directly: they receive a private clone and return a Delta, which the
// executor folds in through Apply
type State struct {
	RunID    string `json:"run_id"`
	RepoURL  string `json:"repo_url"`
	DocPath  string `json:"doc_path,omitempty"`
	RepoPath string `json:"repo_path,omitempty"`

	Rubric *model.Rubric `json:"rubric,omitempty"`

	Evidences         map[string][]model.Evidence `json:"evidences"`
	Opinions          []model.JudicialOpinion     `json:"opinions"`
	VerifiedPaths     []string                    `json:"verified_paths"`
	HallucinatedPaths []string                    `json:"hallucinated_paths"`

	RepoManifest []string `json:"repo_manifest,omitempty"`
	ManifestSet  bool     `json:"manifest_set,omitempty"`

	Report *model.AuditReport `json:"report,omitempty"`

	// Warnings collects merge conflicts and degraded stages
	Warnings []string `json:"warnings,omitempty"`
}

// Delta is what a stage contributes. Zero-valued fields contribute nothing
type Delta struct {
	Rubric            *model.Rubric
	RepoPath          string
	Evidences         map[string][]model.Evidence
	Opinions          []model.JudicialOpinion
	VerifiedPaths     []string
	HallucinatedPaths []string
	RepoManifest      []string // non-nil means "write", even when empty
	Report            *model.AuditReport
	Narrative         *model.NarrativeSummary // attached to the assembled report
	Warnings          []string
}

// NewState returns an empty run state for the given target
func NewState(runID, repoURL, docPath string) *State {
	return &State{
		RunID:     runID,
		RepoURL:   repoURL,
		DocPath:   docPath,
		Evidences: make(map[string][]model.Evidence),
	}
}

// Apply folds a delta into the state using the declared reducers:
//
//	evidences            dict union, same key is last write
//	opinions, paths      concatenation
//	rubric, manifest,
//	repo path, report,
//	narrative            write once, later writes are dropped with a warning
//
// Warnings raised after the report was assembled are carried into it too.
// The report is replaced rather than modified, so clones held by stages
// and checkpoints never change underneath them
func (s *State) Apply(d Delta) {
	hadReport := s.Report != nil
	if d.Rubric != nil {
		if s.Rubric == nil {
			r := cloneRubric(*d.Rubric)
			s.Rubric = &r
		} else {
			s.Warnings = append(s.Warnings, "rubric already loaded, ignoring second write")
		}
	}

	if d.RepoPath != "" {
		if s.RepoPath == "" {
			s.RepoPath = d.RepoPath
		} else if s.RepoPath != d.RepoPath {
			s.Warnings = append(s.Warnings, fmt.Sprintf("repo path already set to %s, ignoring %s", s.RepoPath, d.RepoPath))
		}
	}

	if len(d.Evidences) > 0 {
		if s.Evidences == nil {
			s.Evidences = make(map[string][]model.Evidence, len(d.Evidences))
		}
		for k, v := range d.Evidences {
			if _, exists := s.Evidences[k]; exists {
				s.Warnings = append(s.Warnings, fmt.Sprintf("evidence key %q written twice, keeping last write", k))
			}
			s.Evidences[k] = append([]model.Evidence(nil), v...)
		}
	}

	s.Opinions = append(s.Opinions, d.Opinions...)
	s.VerifiedPaths = append(s.VerifiedPaths, d.VerifiedPaths...)
	s.HallucinatedPaths = append(s.HallucinatedPaths, d.HallucinatedPaths...)

	if d.RepoManifest != nil {
		if !s.ManifestSet {
			s.RepoManifest = append([]string{}, d.RepoManifest...)
			s.ManifestSet = true
		} else {
			s.Warnings = append(s.Warnings, "repo manifest already written, ignoring second write")
		}
	}

	if d.Report != nil {
		if s.Report == nil {
			s.Report = d.Report
		} else {
			s.Warnings = append(s.Warnings, "report already assembled, ignoring second write")
		}
	}

	if d.Narrative != nil {
		switch {
		case s.Report == nil:
			s.Warnings = append(s.Warnings, "narrative without a report, dropped")
		case s.Report.Narrative != nil:
			s.Warnings = append(s.Warnings, "narrative already attached, ignoring second write")
		default:
			r := *s.Report
			r.Narrative = d.Narrative
			s.Report = &r
		}
	}

	s.Warnings = append(s.Warnings, d.Warnings...)
	if hadReport && len(d.Warnings) > 0 {
		r := *s.Report
		r.Warnings = append(append([]string(nil), s.Report.Warnings...), d.Warnings...)
		s.Report = &r
	}
}

// Clone returns a deep copy safe to hand to a concurrently running stage
func (s *State) Clone() *State {
	c := *s
	if s.Rubric != nil {
		r := cloneRubric(*s.Rubric)
		c.Rubric = &r
	}
	c.Evidences = make(map[string][]model.Evidence, len(s.Evidences))
	for k, v := range s.Evidences {
		c.Evidences[k] = append([]model.Evidence(nil), v...)
	}
	c.Opinions = make([]model.JudicialOpinion, len(s.Opinions))
	for i, op := range s.Opinions {
		op.CitedEvidence = append([]string(nil), op.CitedEvidence...)
		c.Opinions[i] = op
	}
	c.VerifiedPaths = append([]string(nil), s.VerifiedPaths...)
	c.HallucinatedPaths = append([]string(nil), s.HallucinatedPaths...)
	c.RepoManifest = append([]string(nil), s.RepoManifest...)
	c.Warnings = append([]string(nil), s.Warnings...)
	if s.Report != nil {
		r := *s.Report
		c.Report = &r
	}
	return &c
}

// DetectiveNames returns evidence keys in sorted order
func (s *State) DetectiveNames() []string {
	names := make([]string, 0, len(s.Evidences))
	for k := range s.Evidences {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// AllEvidence flattens the evidence map. Keys are visited in sorted order so
// the sequence (and therefore positional citations) does not depend on which
// detective finished first
func (s *State) AllEvidence() []model.Evidence {
	var out []model.Evidence
	for _, k := range s.DetectiveNames() {
		out = append(out, s.Evidences[k]...)
	}
	return out
}

// EvidenceCount is the size of the evidence union
func (s *State) EvidenceCount() int {
	n := 0
	for _, v := range s.Evidences {
		n += len(v)
	}
	return n
}

// HasEvidence reports whether any detective produced at least one record
func (s *State) HasEvidence() bool {
	return s.EvidenceCount() > 0
}

// Dimensions returns the loaded rubric dimensions, or nil before load_rubric ran
func (s *State) Dimensions() []model.Dimension {
	if s.Rubric == nil {
		return nil
	}
	return s.Rubric.Dimensions
}

func cloneRubric(r model.Rubric) model.Rubric {
	out := model.Rubric{Version: r.Version}
	out.Dimensions = append([]model.Dimension(nil), r.Dimensions...)
	if r.SynthesisRules != nil {
		out.SynthesisRules = make(map[string]string, len(r.SynthesisRules))
		for k, v := range r.SynthesisRules {
			out.SynthesisRules[k] = v
		}
	}
	return out
}
