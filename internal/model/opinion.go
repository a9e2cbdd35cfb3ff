package model

import (
	"fmt"
	"strings"
)

// JudgeRole identifies one of the three judicial personas
type JudgeRole string

const (
	JudgeProsecutor JudgeRole = "Prosecutor" // Looks for failures
	JudgeDefense    JudgeRole = "Defense"    // Advocates for the developer
	JudgeTechLead   JudgeRole = "TechLead"   // Assesses production readiness
)

// JudgeRoles lists the bench in a fixed order
func JudgeRoles() []JudgeRole {
	return []JudgeRole{JudgeProsecutor, JudgeDefense, JudgeTechLead}
}

// ParseJudgeRole accepts the canonical names plus common spellings ("tech_lead", "tech lead")
func ParseJudgeRole(s string) (JudgeRole, error) {
	norm := strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(s))
	switch norm {
	case "prosecutor":
		return JudgeProsecutor, nil
	case "defense", "defence":
		return JudgeDefense, nil
	case "techlead":
		return JudgeTechLead, nil
	default:
		return "", fmt.Errorf("unknown judge role: %q", s)
	}
}

// Valid reports whether r is one of the three roles
func (r JudgeRole) Valid() bool {
	switch r {
	case JudgeProsecutor, JudgeDefense, JudgeTechLead:
		return true
	}
	return false
}

func (r JudgeRole) String() string {
	return string(r)
}

const (
	MinScore = 1
	MaxScore = 5
)

// JudicialOpinion is one judge's scored argument on one rubric dimension
type JudicialOpinion struct {
	Judge               JudgeRole `json:"judge"`
	CriterionID         string    `json:"criterion_id"`
	Score               int       `json:"score"` // 1 = critical failure, 5 = excellence
	Argument            string    `json:"argument"`
	CitedEvidence       []string  `json:"cited_evidence"` // Evidence IDs (positional indices accepted for compatibility)
	IsAutomatedFallback bool      `json:"is_automated_fallback"`
}

// Validate checks the structural contract of an opinion
func (o JudicialOpinion) Validate() error {
	if !o.Judge.Valid() {
		return fmt.Errorf("invalid judge %q", o.Judge)
	}
	if strings.TrimSpace(o.CriterionID) == "" {
		return fmt.Errorf("opinion from %s has no criterion_id", o.Judge)
	}
	if o.Score < MinScore || o.Score > MaxScore {
		return fmt.Errorf("score %d out of range [%d,%d]", o.Score, MinScore, MaxScore)
	}
	return nil
}
