package judge

import (
	"fmt"
	"strings"

	"github.com/ppiankov/auditor/internal/model"
)

// maxContentChars bounds each evidence excerpt in a prompt
const maxContentChars = 800

var missions = map[model.JudgeRole]string{
	model.JudgeProsecutor: `Your goal is to FIND FAILURES. Trust nothing that the evidence does not show.
- Deduct for missing error handling, vague evidence, weak typing and unsandboxed execution.
- A partially implemented feature is a failure.
- Call out security implications and anything that could fail catastrophically.
- Argue for score 1 when the evidence shows linear flow where parallelism was claimed, or no sandboxing.`,

	model.JudgeDefense: `Your goal is to ADVOCATE for the developer as a pragmatic defender.
- Credit intent and architectural foundation even when the implementation is incomplete.
- Weigh mitigations: a flaw that is hard to exploit is less severe.
- Reward visible progress in the commit history.
- Treat missing evidence as neutral rather than failing.
- Name at least one concrete strength in every argument.`,

	model.JudgeTechLead: `Your goal is to assess PRODUCTION READINESS as the pragmatic architect.
- Focus on maintainability, scalability and standard engineering patterns.
- Value explicit evidence of testing and of clear orchestration.
- Be wary of over-engineering.
- Score whether you would ship this code to millions of users.
- Always cite the evidence IDs that support your conclusion.`,
}

// Mission returns the persona instructions of a role
func Mission(role model.JudgeRole) string {
	if m, ok := missions[role]; ok {
		return m
	}
	return "Perform your role as a judge."
}

// BuildPrompt renders the system and user messages for one opinion.
// Evidence is listed by stable ID so citations survive reordering
func BuildPrompt(req Request) (system, user string) {
	system = fmt.Sprintf(`You are the %s, a member of a three-judge bench auditing a software repository.

ROLE MISSION:
%s

Answer with one JSON object:
{"score": <integer 1-5>, "argument": "<reasoning>", "cited_evidence": ["<evidence id>", ...]}
Score 1 means critical failure, 5 means excellence. Cite only IDs from the evidence list.`,
		req.Role, Mission(req.Role))

	var b strings.Builder
	dim := req.Dimension
	fmt.Fprintf(&b, "Criterion ID: %s\n", dim.ID)
	fmt.Fprintf(&b, "Evaluation Dimension: %s\n", dim.Name)
	if dim.Security {
		b.WriteString("This dimension is security-critical.\n")
	}
	fmt.Fprintf(&b, "Forensic Instruction: %s\n", orNA(dim.ForensicInstruction))
	fmt.Fprintf(&b, "Success Pattern: %s\n", orNA(dim.SuccessPattern))
	fmt.Fprintf(&b, "Failure Pattern: %s\n", orNA(dim.FailurePattern))

	b.WriteString("\nEvidence Collected by Detectives:\n")
	if len(req.Evidence) == 0 {
		b.WriteString("(none)\n")
	}
	for _, ev := range req.Evidence {
		fmt.Fprintf(&b, "- [%s] %s | goal: %s | found: %t | confidence: %.2f | location: %s\n",
			ev.ID, ev.SourceName, ev.Goal, ev.Found, ev.Confidence, ev.Location)
		if ev.HasContent() {
			fmt.Fprintf(&b, "  %s\n", excerpt(ev.Content))
		}
	}
	return system, b.String()
}

func excerpt(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= maxContentChars {
		return s
	}
	cut := maxContentChars
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
