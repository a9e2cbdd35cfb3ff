// Package justice resolves conflicting judicial opinions into final scores.
// Everything here is deterministic: no I/O, no clock, no randomness
package justice

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ppiankov/auditor/internal/integrity"
	"github.com/ppiankov/auditor/internal/model"
)

// Rule identifiers recorded in CriterionResult.AppliedRules
const (
	RuleDissent             = "dissent"
	RuleMissingJudge        = "missing_judge"
	RuleConflictingOpinions = "conflicting_opinions"
	RuleReEvaluation        = "variance_re_evaluation"
	RuleTechLeadWeight      = "techlead_weight"
	RuleTieBreak            = "variance_tie_break"
	RuleSecurityVeto        = "security_veto"
	RuleSecurityCap         = "security_cap"
	RuleHallucination       = "hallucination_cap"
	RuleGradeFloor          = "grade_inflation_floor"
)

// Input is everything synthesis consumes
type Input struct {
	Dimensions        []model.Dimension
	Opinions          []model.JudicialOpinion
	Evidence          []model.Evidence // Flattened in detective-name order; positional citations index into it
	VerifiedPaths     []string
	HallucinatedPaths []string
	ManifestSize      int
}

// Output is the synthesized verdict
type Output struct {
	Criteria         []model.CriterionResult
	OverallScore     float64
	GlobalVeto       bool
	ExecutiveSummary string
	RemediationPlan  string
	Warnings         []string
}

// Engine applies the rule set
type Engine struct {
	cfg Config
}

// New returns an engine. Unset thresholds take their defaults
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg.withDefaults()}
}

// Config returns the effective thresholds
func (e *Engine) Config() Config {
	return e.cfg
}

// Synthesize resolves every rubric dimension that received at least one
// opinion, then applies the run-level rules
func (e *Engine) Synthesize(in Input) Output {
	idx := newEvidenceIndex(in.Evidence)
	hallucinated := integrity.Dedup(in.HallucinatedPaths)

	var out Output
	known := make(map[string]bool, len(in.Dimensions))
	for _, dim := range in.Dimensions {
		known[dim.ID] = true
		var ops []model.JudicialOpinion
		for _, op := range in.Opinions {
			if op.CriterionID == dim.ID {
				ops = append(ops, op)
			}
		}
		if len(ops) == 0 {
			out.Warnings = append(out.Warnings, fmt.Sprintf("dimension %s received no opinions and was not scored", dim.ID))
			continue
		}
		out.Criteria = append(out.Criteria, e.resolve(dim, ops, idx, hallucinated))
	}
	for _, op := range in.Opinions {
		if !known[op.CriterionID] {
			out.Warnings = append(out.Warnings, fmt.Sprintf("%s opinion for unknown criterion %q ignored", op.Judge, op.CriterionID))
		}
	}

	out.OverallScore = e.overall(out.Criteria, in.Dimensions)

	var vetoed []string
	for _, c := range out.Criteria {
		if c.Security && c.FinalScore <= e.cfg.CriticalFloor {
			vetoed = append(vetoed, c.DimensionName)
		}
	}
	if len(vetoed) > 0 {
		out.GlobalVeto = true
		out.OverallScore = math.Min(out.OverallScore, e.cfg.GlobalVetoCap)
		out.Criteria = append(out.Criteria, model.CriterionResult{
			DimensionID:    model.GlobalVetoID,
			DimensionName:  "Global Security Veto",
			FinalScore:     model.MinScore,
			Passed:         false,
			Security:       true,
			DissentSummary: fmt.Sprintf("Overall score capped at %.1f due to critical security failure in: %s.", e.cfg.GlobalVetoCap, strings.Join(vetoed, ", ")),
			Remediation:    fmt.Sprintf("Resolve the critical security findings in %s before any other work.", strings.Join(vetoed, ", ")),
			AppliedRules:   []string{RuleSecurityVeto},
		})
	}

	out.ExecutiveSummary = e.summary(out, in, hallucinated)
	out.RemediationPlan = remediationPlan(out.Criteria)
	return out
}

// overall is the weighted mean of integer final scores. Synthetic results
// never contribute
func (e *Engine) overall(results []model.CriterionResult, dims []model.Dimension) float64 {
	weights := make(map[string]float64, len(dims))
	for _, d := range dims {
		weights[d.ID] = d.Weight
	}
	var sum, total float64
	for _, r := range results {
		if r.IsSynthetic() {
			continue
		}
		w := weights[r.DimensionID]
		sum += float64(r.FinalScore) * w
		total += w
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

type seat struct {
	role    model.JudgeRole
	score   int
	op      *model.JudicialOpinion // nil when missing
	present bool                   // false for missing or conflicting opinions
}

type notes struct {
	text  []string
	rules []string
}

func (n *notes) add(rule, text string) {
	n.text = append(n.text, text)
	for _, r := range n.rules {
		if r == rule {
			return
		}
	}
	n.rules = append(n.rules, rule)
}

// resolve scores one dimension. Order matters: the tie-break replaces the
// base before any cap runs, so caps and the floor always have the last word
func (e *Engine) resolve(dim model.Dimension, ops []model.JudicialOpinion, idx evidenceIndex, hallucinated []string) model.CriterionResult {
	cfg := e.cfg
	var n notes

	pros := e.seat(model.JudgeProsecutor, ops, &n)
	def := e.seat(model.JudgeDefense, ops, &n)
	tech := e.seat(model.JudgeTechLead, ops, &n)
	p, d, t := pros.score, def.score, tech.score

	variance := max(p, d, t) - min(p, d, t)

	// Re-evaluation against cited evidence.
	dAdj, tAdj := d, t
	if variance > cfg.ReEvaluationVariance {
		var detail []string
		if def.present && d >= 4 {
			cites := def.op.CitedEvidence
			if len(cites) == 0 || float64(idx.supported(cites)) < float64(len(cites))/2 {
				dAdj = min(d, 3)
				detail = append(detail, "Defense overruled: cited evidence not supported by detective findings.")
			}
		}
		if pros.present && p <= 2 && idx.anyResolves(pros.op.CitedEvidence) {
			detail = append(detail, "Prosecutor evidence re-verified against detective findings.")
		}
		if tech.present && t > 4 && len(tech.op.CitedEvidence) == 0 {
			tAdj = 4
			detail = append(detail, "Tech Lead score capped at 4: no cited evidence.")
		}
		text := fmt.Sprintf("Major variance (%d) triggered evidence re-evaluation.", variance)
		if len(detail) > 0 {
			text += " " + strings.Join(detail, " ")
		}
		n.add(RuleReEvaluation, text)
	} else if variance >= cfg.DissentVariance {
		n.add(RuleDissent, fmt.Sprintf("Major variance (%d) detected.", variance))
	}

	tw := cfg.TechLeadWeight
	if dim.TechLeadWeighsHeaviest() {
		tw = cfg.HeavyTechLeadWeight
		n.add(RuleTechLeadWeight, fmt.Sprintf("Tech Lead weighted %.1fx per synthesis rule.", tw))
	}
	score := (float64(p) + float64(dAdj) + tw*float64(tAdj)) / (2 + tw)

	// The tie-break only runs when no security override fired. Adopting the
	// Tech Lead score under a security cap would let a lower Prosecutor score
	// switch the result from the capped mean to a higher value.
	veto := dim.Security && p <= cfg.CriticalFloor
	secCap := dim.Security && !veto && (p <= cfg.SecurityLowScore || t <= cfg.SecurityLowScore)
	if variance >= cfg.TieBreakVariance && !veto && !secCap {
		score = float64(tAdj)
		n.add(RuleTieBreak, fmt.Sprintf("Extreme variance (%d): Tech Lead score (%d) prioritized as tie-breaker.", variance, tAdj))
	}

	// Caps. Each can only lower the score.
	switch {
	case veto:
		score = model.MinScore
		n.add(RuleSecurityVeto, fmt.Sprintf("PROSECUTOR VETO: critical security finding (Prosecutor %d); score forced to %d.", p, model.MinScore))
	case secCap:
		if score > cfg.SecurityCap {
			score = cfg.SecurityCap
		}
		n.add(RuleSecurityCap, fmt.Sprintf("Security concern raised (Prosecutor %d, Tech Lead %d); score capped at %.1f.", p, t, cfg.SecurityCap))
	}

	var cited []string
	for _, op := range ops {
		cited = append(cited, integrity.Mentions(op.Argument, hallucinated)...)
	}
	if len(cited) > 0 {
		if score > cfg.HallucinationCap {
			score = cfg.HallucinationCap
		}
		n.add(RuleHallucination, fmt.Sprintf("PENALTY: opinion referenced hallucinated path(s) %s; score capped at %.1f.", strings.Join(integrity.Dedup(cited), ", "), cfg.HallucinationCap))
	}

	if p <= cfg.GradeInflationLow && score > float64(p+1) {
		score = float64(p + 1)
		n.add(RuleGradeFloor, fmt.Sprintf("Grade-inflation floor: score limited to Prosecutor score + 1 (%d).", p+1))
	}

	final := clampScore(int(math.Round(score)))
	passed := final >= cfg.PassThreshold

	dissent := strings.Join(n.text, " ")
	if dissent == "" {
		dissent = "Consensus reached."
	}

	fallback := true
	for _, op := range ops {
		if !op.IsAutomatedFallback {
			fallback = false
			break
		}
	}

	return model.CriterionResult{
		DimensionID:       dim.ID,
		DimensionName:     dim.Name,
		FinalScore:        final,
		Passed:            passed,
		Security:          dim.Security,
		Variance:          variance,
		JudgeOpinions:     append([]model.JudicialOpinion(nil), ops...),
		DissentSummary:    dissent,
		Remediation:       remediation(dim, ops, passed),
		AutomatedFallback: fallback,
		AppliedRules:      n.rules,
	}
}

// seat picks the single score a judge contributes. Missing judges and
// judges with conflicting duplicate opinions count as neutral
func (e *Engine) seat(role model.JudgeRole, ops []model.JudicialOpinion, n *notes) seat {
	s := seat{role: role, score: e.cfg.NeutralScore}
	var mine []*model.JudicialOpinion
	for i := range ops {
		if ops[i].Judge == role {
			mine = append(mine, &ops[i])
		}
	}
	if len(mine) == 0 {
		n.add(RuleMissingJudge, fmt.Sprintf("No %s opinion; neutral score %d assumed.", role, e.cfg.NeutralScore))
		return s
	}

	s.op = mine[0]
	scores := make([]string, len(mine))
	agree := true
	for i, op := range mine {
		scores[i] = strconv.Itoa(op.Score)
		if op.Score != mine[0].Score {
			agree = false
		}
	}
	if !agree {
		n.add(RuleConflictingOpinions, fmt.Sprintf("Conflicting %s opinions (%s); neutral score %d used.", role, strings.Join(scores, ", "), e.cfg.NeutralScore))
		return s
	}

	s.score = clampScore(mine[0].Score)
	s.present = true
	return s
}

// remediation cites the lowest-scoring judge on a failing dimension
func remediation(dim model.Dimension, ops []model.JudicialOpinion, passed bool) string {
	if passed {
		return "No issues found."
	}

	var lowest *model.JudicialOpinion
	for _, role := range model.JudgeRoles() {
		for i := range ops {
			op := &ops[i]
			if op.Judge != role || strings.TrimSpace(op.Argument) == "" {
				continue
			}
			if lowest == nil || op.Score < lowest.Score {
				lowest = op
			}
		}
	}

	if lowest == nil {
		text := fmt.Sprintf("Improve %s by addressing judge concerns and evidence gaps.", dim.Name)
		if dim.FailurePattern != "" {
			text += " Avoid: " + dim.FailurePattern
		}
		return text
	}
	return fmt.Sprintf("Improve %s. %s (score %d): %s", dim.Name, lowest.Judge, lowest.Score, strings.TrimSpace(lowest.Argument))
}

func clampScore(s int) int {
	return max(model.MinScore, min(model.MaxScore, s))
}

// evidenceIndex resolves citations by stable ID first, then by position in
// the flattened list for opinions that still cite indices
type evidenceIndex struct {
	byID    map[string]model.Evidence
	ordered []model.Evidence
}

func newEvidenceIndex(evs []model.Evidence) evidenceIndex {
	idx := evidenceIndex{byID: make(map[string]model.Evidence, len(evs)), ordered: evs}
	for _, ev := range evs {
		idx.byID[ev.ID] = ev
	}
	return idx
}

func (x evidenceIndex) resolve(c string) (model.Evidence, bool) {
	c = strings.TrimSpace(c)
	if ev, ok := x.byID[c]; ok {
		return ev, true
	}
	if i, err := strconv.Atoi(strings.TrimPrefix(c, "#")); err == nil && i >= 0 && i < len(x.ordered) {
		return x.ordered[i], true
	}
	return model.Evidence{}, false
}

// supported counts citations that resolve to records with content
func (x evidenceIndex) supported(cites []string) int {
	n := 0
	for _, c := range cites {
		if ev, ok := x.resolve(c); ok && ev.HasContent() {
			n++
		}
	}
	return n
}

func (x evidenceIndex) anyResolves(cites []string) bool {
	for _, c := range cites {
		if _, ok := x.resolve(c); ok {
			return true
		}
	}
	return false
}
