package justice

import (
	"math"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ppiankov/auditor/internal/model"
)

var testEvidence = []model.Evidence{
	model.NewEvidence("repo_investigator", "git history", true, "42 commits with descriptive messages", "git log", "git", 1),
	model.NewEvidence("repo_investigator", "structure", true, "errgroup fan-out in graph.go", "internal/graph/engine.go", "ast", 0.9),
	model.MissingEvidence("doc_analyst", "read report", "report.pdf", "pdf ingestion unavailable"),
}

func dimension(id string, security bool) model.Dimension {
	return model.Dimension{ID: id, Name: strings.ToUpper(id[:1]) + id[1:], Weight: 1.0, Security: security}
}

// bench returns one opinion per judge, all citing resolvable evidence
func bench(criterion string, p, d, t int) []model.JudicialOpinion {
	cite := []string{testEvidence[0].ID, testEvidence[1].ID}
	return []model.JudicialOpinion{
		{Judge: model.JudgeProsecutor, CriterionID: criterion, Score: p, Argument: "prosecution argument", CitedEvidence: cite},
		{Judge: model.JudgeDefense, CriterionID: criterion, Score: d, Argument: "defense argument", CitedEvidence: cite},
		{Judge: model.JudgeTechLead, CriterionID: criterion, Score: t, Argument: "tech lead argument", CitedEvidence: cite},
	}
}

// uncited is bench with no citations, so the re-evaluation discounts apply
func uncited(criterion string, p, d, t int) []model.JudicialOpinion {
	ops := bench(criterion, p, d, t)
	for i := range ops {
		ops[i].CitedEvidence = nil
	}
	return ops
}

type benchFunc func(criterion string, p, d, t int) []model.JudicialOpinion

var benches = []struct {
	name  string
	build benchFunc
}{
	{"cited", bench},
	{"uncited", uncited},
}

type variant struct {
	name  string
	dim   model.Dimension
	build benchFunc
}

// variants pairs each bench with a plain and a Tech-Lead-heavy dimension
func variants(id string, security bool) []variant {
	heavy := dimension(id, security)
	heavy.SynthesisRuleHint = "TechLead carries the highest weight for this criterion"
	var out []variant
	for _, b := range benches {
		out = append(out,
			variant{name: b.name, dim: dimension(id, security), build: b.build},
			variant{name: b.name + "/heavy", dim: heavy, build: b.build})
	}
	return out
}

func synthesizeOne(t *testing.T, dim model.Dimension, ops []model.JudicialOpinion, hallucinated ...string) model.CriterionResult {
	t.Helper()
	out := New(DefaultConfig()).Synthesize(Input{
		Dimensions:        []model.Dimension{dim},
		Opinions:          ops,
		Evidence:          testEvidence,
		HallucinatedPaths: hallucinated,
	})
	for _, c := range out.Criteria {
		if c.DimensionID == dim.ID {
			return c
		}
	}
	t.Fatalf("no result for %s", dim.ID)
	return model.CriterionResult{}
}

func TestScenario_Consensus(t *testing.T) {
	r := synthesizeOne(t, dimension("docs", false), bench("docs", 5, 5, 5))

	if r.FinalScore != 5 || !r.Passed {
		t.Errorf("expected passing 5, got %d (passed=%v)", r.FinalScore, r.Passed)
	}
	if r.DissentSummary != "Consensus reached." {
		t.Errorf("unexpected dissent: %q", r.DissentSummary)
	}
	if r.Remediation != "No issues found." {
		t.Errorf("unexpected remediation: %q", r.Remediation)
	}
}

func TestScenario_SecurityVeto(t *testing.T) {
	r := synthesizeOne(t, dimension("safe_tools", true), bench("safe_tools", 1, 5, 4))

	if r.FinalScore != 1 {
		t.Errorf("expected veto to force 1, got %d", r.FinalScore)
	}
	if !strings.Contains(r.DissentSummary, "VETO") {
		t.Errorf("expected VETO in dissent, got %q", r.DissentSummary)
	}
	if r.Passed || r.Remediation == "" || r.Remediation == "No issues found." {
		t.Errorf("vetoed dimension needs remediation, got %q", r.Remediation)
	}
}

func TestScenario_TieBreak(t *testing.T) {
	r := synthesizeOne(t, dimension("arch", false), bench("arch", 5, 2, 2))

	if r.Variance != 3 {
		t.Errorf("expected variance 3, got %d", r.Variance)
	}
	if r.FinalScore != 2 {
		t.Errorf("expected Tech Lead score 2 adopted, got %d", r.FinalScore)
	}
	if !strings.Contains(r.DissentSummary, "variance") || !strings.Contains(r.DissentSummary, "tie-breaker") {
		t.Errorf("expected variance and tie-break in dissent, got %q", r.DissentSummary)
	}
	if !strings.Contains(r.Remediation, "defense argument") && !strings.Contains(r.Remediation, "tech lead argument") {
		t.Errorf("expected lowest judge cited in remediation, got %q", r.Remediation)
	}
}

func TestScenario_HallucinatedPathCapsScore(t *testing.T) {
	ops := bench("report", 5, 5, 5)
	ops[1].Argument = "The orchestration in src/ghost.py is flawless."

	r := synthesizeOne(t, dimension("report", false), ops, "src/ghost.py")

	if r.FinalScore >= 3 {
		t.Errorf("expected hallucination cap below 3, got %d", r.FinalScore)
	}
	if !strings.Contains(r.DissentSummary, "src/ghost.py") {
		t.Errorf("expected offending path in dissent, got %q", r.DissentSummary)
	}
	if diff := cmp.Diff([]string{RuleHallucination}, r.AppliedRules); diff != "" {
		t.Errorf("applied rules (-want +got):\n%s", diff)
	}
}

func TestScenario_HallucinationCapMatchesPrefixedSpelling(t *testing.T) {
	ops := bench("report", 5, 5, 5)
	ops[0].Argument = "the file at repo/src/ghost_module.py is missing"

	r := synthesizeOne(t, dimension("report", false), ops, "src/ghost_module.py")
	if r.FinalScore != 2 {
		t.Errorf("expected cap to 2, got %d", r.FinalScore)
	}
	if !strings.Contains(r.DissentSummary, "src/ghost_module.py") {
		t.Errorf("expected offending path in dissent, got %q", r.DissentSummary)
	}
}

func TestDissentAndRemediationRequirements(t *testing.T) {
	e := New(DefaultConfig())
	for _, security := range []bool{false, true} {
		for _, v := range variants("dim", security) {
			for p := 1; p <= 5; p++ {
				for d := 1; d <= 5; d++ {
					for tl := 1; tl <= 5; tl++ {
						out := e.Synthesize(Input{Dimensions: []model.Dimension{v.dim}, Opinions: v.build("dim", p, d, tl), Evidence: testEvidence})
						r := out.Criteria[0]

						spread := max(p, d, tl) - min(p, d, tl)
						if spread >= 2 && r.DissentSummary == "" {
							t.Errorf("%s p=%d d=%d t=%d: missing dissent at variance %d", v.name, p, d, tl, spread)
						}
						if r.FinalScore < 3 && (r.Remediation == "" || r.Remediation == "No issues found.") {
							t.Errorf("%s p=%d d=%d t=%d: failing score %d without remediation", v.name, p, d, tl, r.FinalScore)
						}
						if p <= 2 && r.FinalScore > p+1 {
							t.Errorf("%s p=%d d=%d t=%d: final %d exceeds prosecutor+1", v.name, p, d, tl, r.FinalScore)
						}
						if r.FinalScore < model.MinScore || r.FinalScore > model.MaxScore {
							t.Errorf("%s p=%d d=%d t=%d: final %d out of range", v.name, p, d, tl, r.FinalScore)
						}
						if v.dim.TechLeadWeighsHeaviest() && !slices.Contains(r.AppliedRules, RuleTechLeadWeight) {
							t.Errorf("%s p=%d d=%d t=%d: heavy Tech Lead weight not applied", v.name, p, d, tl)
						}
					}
				}
			}
		}
	}
}

func TestReEvaluationDiscountsUncitedScores(t *testing.T) {
	// defense 5 without citations against a prosecutor at 2
	r := synthesizeOne(t, dimension("docs", false), uncited("docs", 2, 5, 4))
	if !strings.Contains(r.DissentSummary, "Defense overruled") {
		t.Errorf("expected defense discount, got %q", r.DissentSummary)
	}

	r = synthesizeOne(t, dimension("docs", false), uncited("docs", 5, 5, 5))
	if r.FinalScore != 5 {
		t.Errorf("consensus needs no re-evaluation, got %d", r.FinalScore)
	}

	r = synthesizeOne(t, dimension("docs", false), uncited("docs", 2, 2, 5))
	if !strings.Contains(r.DissentSummary, "Tech Lead score capped at 4") {
		t.Errorf("expected tech lead discount, got %q", r.DissentSummary)
	}
}

func TestSecurityVetoMonotonicity(t *testing.T) {
	e := New(DefaultConfig())
	for _, v := range variants("secrets", true) {
		for d := 1; d <= 5; d++ {
			for tl := 1; tl <= 5; tl++ {
				prev := math.MaxInt
				for p := 5; p >= 1; p-- {
					out := e.Synthesize(Input{Dimensions: []model.Dimension{v.dim}, Opinions: v.build("secrets", p, d, tl), Evidence: testEvidence})
					got := out.Criteria[0].FinalScore
					if got > prev {
						t.Errorf("%s d=%d t=%d: lowering prosecutor to %d raised score %d -> %d", v.name, d, tl, p, prev, got)
					}
					prev = got
				}
			}
		}
	}
}

func TestGlobalSecurityVeto(t *testing.T) {
	for _, v := range variants("safe_tools", true) {
		v := v
		t.Run(v.name, func(t *testing.T) {
			dims := []model.Dimension{dimension("docs", false), dimension("tests", false), v.dim}
			var ops []model.JudicialOpinion
			ops = append(ops, v.build("docs", 5, 5, 5)...)
			ops = append(ops, v.build("tests", 5, 5, 5)...)
			ops = append(ops, v.build("safe_tools", 1, 5, 5)...)

			out := New(DefaultConfig()).Synthesize(Input{Dimensions: dims, Opinions: ops, Evidence: testEvidence})

			if !out.GlobalVeto {
				t.Fatal("expected global veto")
			}
			if out.OverallScore > 2.0 {
				t.Errorf("expected overall <= 2.0, got %.2f", out.OverallScore)
			}
			last := out.Criteria[len(out.Criteria)-1]
			if last.DimensionID != model.GlobalVetoID || !last.IsSynthetic() {
				t.Errorf("expected synthetic veto result last, got %s", last.DimensionID)
			}
			if !strings.Contains(out.ExecutiveSummary, "GLOBAL SECURITY VETO") {
				t.Errorf("summary should disclose the veto:\n%s", out.ExecutiveSummary)
			}
			if !strings.Contains(out.ExecutiveSummary, "Dimensions Evaluated: 3 | Passed: 2 | Failed: 1") {
				t.Errorf("synthetic result must not be counted:\n%s", out.ExecutiveSummary)
			}
		})
	}
}

func TestOverallScoreIsWeightedMean(t *testing.T) {
	heavy := dimension("heavy", false)
	heavy.Weight = 3
	light := dimension("light", false)
	light.Weight = 1

	var ops []model.JudicialOpinion
	ops = append(ops, bench("heavy", 4, 4, 4)...)
	ops = append(ops, bench("light", 2, 2, 2)...)

	out := New(DefaultConfig()).Synthesize(Input{Dimensions: []model.Dimension{heavy, light}, Opinions: ops, Evidence: testEvidence})
	if want := (4.0*3 + 2.0*1) / 4; math.Abs(out.OverallScore-want) > 1e-9 {
		t.Errorf("expected %.2f, got %.2f", want, out.OverallScore)
	}
	if !strings.HasPrefix(out.ExecutiveSummary, "Overall Score: 3.50/5.0") {
		t.Errorf("unexpected summary head:\n%s", out.ExecutiveSummary)
	}
}

func TestZeroWeightAndEmptyRubric(t *testing.T) {
	dim := dimension("free", false)
	dim.Weight = 0
	out := New(DefaultConfig()).Synthesize(Input{Dimensions: []model.Dimension{dim}, Opinions: bench("free", 5, 5, 5)})
	if out.OverallScore != 0 {
		t.Errorf("expected 0 with zero total weight, got %.2f", out.OverallScore)
	}

	empty := New(DefaultConfig()).Synthesize(Input{})
	if len(empty.Criteria) != 0 || empty.OverallScore != 0 {
		t.Errorf("expected empty verdict, got %+v", empty)
	}
	if empty.RemediationPlan != "No remediation needed." {
		t.Errorf("unexpected remediation plan %q", empty.RemediationPlan)
	}
}

func TestMissingAndDuplicateOpinions(t *testing.T) {
	dims := []model.Dimension{dimension("a", false), dimension("b", false), dimension("c", false)}
	ops := []model.JudicialOpinion{
		// a: only the Defense spoke
		{Judge: model.JudgeDefense, CriterionID: "a", Score: 5, Argument: "great", CitedEvidence: []string{"0"}},
		// b: TechLead twice with the same score, Prosecutor twice disagreeing
		{Judge: model.JudgeTechLead, CriterionID: "b", Score: 4, CitedEvidence: []string{"1"}},
		{Judge: model.JudgeTechLead, CriterionID: "b", Score: 4, CitedEvidence: []string{"1"}},
		{Judge: model.JudgeProsecutor, CriterionID: "b", Score: 1},
		{Judge: model.JudgeProsecutor, CriterionID: "b", Score: 5},
		{Judge: model.JudgeDefense, CriterionID: "b", Score: 4, CitedEvidence: []string{"1"}},
		// an opinion for a dimension the rubric does not declare
		{Judge: model.JudgeDefense, CriterionID: "zzz", Score: 5},
	}

	out := New(DefaultConfig()).Synthesize(Input{Dimensions: dims, Opinions: ops, Evidence: testEvidence})

	if len(out.Criteria) != 2 {
		t.Fatalf("expected 2 results (c has no opinions), got %d", len(out.Criteria))
	}

	a := out.Criteria[0]
	// p=3 (missing), d=5, t=3 (missing): variance 2, mean 3.67
	if a.FinalScore != 4 {
		t.Errorf("a: expected 4, got %d", a.FinalScore)
	}
	if !strings.Contains(a.DissentSummary, "No Prosecutor opinion") {
		t.Errorf("a: expected missing judge note, got %q", a.DissentSummary)
	}

	b := out.Criteria[1]
	// p neutral 3, d=4, t=4
	if b.FinalScore != 4 {
		t.Errorf("b: expected 4, got %d", b.FinalScore)
	}
	if !strings.Contains(b.DissentSummary, "Conflicting Prosecutor opinions (1, 5)") {
		t.Errorf("b: expected conflict note, got %q", b.DissentSummary)
	}
	if len(out.Warnings) != 2 {
		t.Errorf("expected warnings for c and zzz, got %v", out.Warnings)
	}
}

func TestReEvaluationDiscountsUnsupportedAdvocacy(t *testing.T) {
	ops := []model.JudicialOpinion{
		{Judge: model.JudgeProsecutor, CriterionID: "x", Score: 1, Argument: "no tests", CitedEvidence: []string{testEvidence[0].ID}},
		// cites only the empty doc record and an unknown ID
		{Judge: model.JudgeDefense, CriterionID: "x", Score: 5, Argument: "deep work", CitedEvidence: []string{testEvidence[2].ID, "ev-unknown"}},
		{Judge: model.JudgeTechLead, CriterionID: "x", Score: 5, Argument: "works"},
	}
	r := synthesizeOne(t, dimension("x", false), ops)

	for _, want := range []string{"Major variance (4) triggered evidence re-evaluation", "Defense overruled", "Prosecutor evidence re-verified", "Tech Lead score capped at 4"} {
		if !strings.Contains(r.DissentSummary, want) {
			t.Errorf("expected %q in dissent %q", want, r.DissentSummary)
		}
	}
	// tie-break adopts adjusted Tech Lead 4, floor limits to p+1 = 2
	if r.FinalScore != 2 {
		t.Errorf("expected 2, got %d", r.FinalScore)
	}
	if diff := cmp.Diff([]string{RuleReEvaluation, RuleTieBreak, RuleGradeFloor}, r.AppliedRules); diff != "" {
		t.Errorf("applied rules (-want +got):\n%s", diff)
	}
}

func TestPositionalCitationsStillResolve(t *testing.T) {
	ops := []model.JudicialOpinion{
		{Judge: model.JudgeProsecutor, CriterionID: "x", Score: 2, CitedEvidence: []string{"0"}},
		{Judge: model.JudgeDefense, CriterionID: "x", Score: 5, CitedEvidence: []string{"0", "1"}},
		{Judge: model.JudgeTechLead, CriterionID: "x", Score: 3, CitedEvidence: []string{"1"}},
	}
	r := synthesizeOne(t, dimension("x", false), ops)
	if strings.Contains(r.DissentSummary, "Defense overruled") {
		t.Errorf("positional citations should resolve, got %q", r.DissentSummary)
	}
}

func TestTechLeadWeighsHeaviest(t *testing.T) {
	dim := dimension("arch", false)
	dim.SynthesisRuleHint = "Tech Lead confirmation carries highest weight for architecture."

	// weighted (3 + 3 + 2*4) / 4 = 3.5 rounds to 4; unweighted 3.33 rounds to 3
	r := synthesizeOne(t, dim, bench("arch", 3, 3, 4))
	plain := synthesizeOne(t, dimension("arch", false), bench("arch", 3, 3, 4))
	if r.FinalScore != 4 || plain.FinalScore != 3 {
		t.Errorf("expected weighted=4 plain=3, got weighted=%d plain=%d", r.FinalScore, plain.FinalScore)
	}
	if !strings.Contains(r.DissentSummary, "Tech Lead weighted 2.0x") {
		t.Errorf("expected weighting note, got %q", r.DissentSummary)
	}
	if plain.DissentSummary != "Consensus reached." {
		t.Errorf("unexpected dissent on plain dimension: %q", plain.DissentSummary)
	}
}

func TestFallbackDisclosure(t *testing.T) {
	ops := bench("docs", 3, 3, 3)
	for i := range ops {
		ops[i].IsAutomatedFallback = true
	}
	mixed := bench("tests", 4, 4, 4)
	mixed[0].IsAutomatedFallback = true

	all := New(DefaultConfig()).Synthesize(Input{Dimensions: []model.Dimension{dimension("docs", false)}, Opinions: ops})
	if !all.Criteria[0].AutomatedFallback {
		t.Error("expected result flagged as automated fallback")
	}
	if !strings.Contains(all.ExecutiveSummary, "full judicial review did not occur") {
		t.Errorf("summary must disclose fallback:\n%s", all.ExecutiveSummary)
	}

	partial := New(DefaultConfig()).Synthesize(Input{
		Dimensions: []model.Dimension{dimension("docs", false), dimension("tests", false)},
		Opinions:   append(ops, mixed...),
	})
	if !strings.Contains(partial.ExecutiveSummary, "full judicial review did not occur for: Docs") {
		t.Errorf("summary must name fallback-only dimensions:\n%s", partial.ExecutiveSummary)
	}
	if partial.Criteria[1].AutomatedFallback {
		t.Error("mixed dimension should not be flagged as fallback-only")
	}
}

func TestSecurityCapOnLowScores(t *testing.T) {
	r := synthesizeOne(t, dimension("secrets", true), bench("secrets", 5, 5, 2))
	if r.FinalScore > 2 {
		t.Errorf("expected security cap at 2, got %d", r.FinalScore)
	}
	if !strings.Contains(r.DissentSummary, "Security concern") {
		t.Errorf("expected security note, got %q", r.DissentSummary)
	}
}

func TestSynthesizeIsDeterministic(t *testing.T) {
	dims := []model.Dimension{dimension("a", false), dimension("b", true)}
	ops := append(bench("a", 2, 5, 3), bench("b", 2, 4, 4)...)
	in := Input{Dimensions: dims, Opinions: ops, Evidence: testEvidence, HallucinatedPaths: []string{"x.go"}, ManifestSize: 10}

	first := New(DefaultConfig()).Synthesize(in)
	second := New(DefaultConfig()).Synthesize(in)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("synthesis not deterministic (-first +second):\n%s", diff)
	}
}

func TestAssembleSkipped(t *testing.T) {
	r := AssembleSkipped(Meta{RunID: "r1", RepoURL: "https://github.com/org/widget.git"}, nil, nil)
	if !r.Skipped || len(r.Criteria) != 0 || r.Criteria == nil {
		t.Errorf("expected empty non-nil criteria on skipped report, got %+v", r.Criteria)
	}
	if !strings.Contains(r.ExecutiveSummary, "skipped") {
		t.Errorf("summary should state the audit was skipped: %q", r.ExecutiveSummary)
	}
	if r.RepoName != "widget" {
		t.Errorf("expected repo name widget, got %q", r.RepoName)
	}
}
