package model

import "strings"

// Dimension is one scoring line of the rubric
type Dimension struct {
	ID                  string  `json:"id" yaml:"id"`
	Name                string  `json:"name" yaml:"name"`
	ForensicInstruction string  `json:"forensic_instruction,omitempty" yaml:"forensic_instruction,omitempty"`
	SuccessPattern      string  `json:"success_pattern,omitempty" yaml:"success_pattern,omitempty"`
	FailurePattern      string  `json:"failure_pattern,omitempty" yaml:"failure_pattern,omitempty"`
	Weight              float64 `json:"weight" yaml:"weight"`
	Security            bool    `json:"security" yaml:"security"`
	SynthesisRuleHint   string  `json:"synthesis_rule_hint,omitempty" yaml:"synthesis_rule_hint,omitempty"`
}

// TechLeadWeighsHeaviest reports whether the dimension's hint asks for the
// production-readiness judge to dominate the weighted mean
func (d Dimension) TechLeadWeighsHeaviest() bool {
	hint := strings.ToLower(d.SynthesisRuleHint)
	if hint == "" {
		return false
	}
	hint = strings.ReplaceAll(hint, "tech lead", "techlead")
	if !strings.Contains(hint, "techlead") {
		return false
	}
	return strings.Contains(hint, "heaviest") || strings.Contains(hint, "highest weight")
}

// Rubric is the loaded, validated scoring configuration for a run
type Rubric struct {
	Version        string            `json:"version,omitempty" yaml:"version,omitempty"`
	Dimensions     []Dimension       `json:"dimensions" yaml:"dimensions"`
	SynthesisRules map[string]string `json:"synthesis_rules,omitempty" yaml:"synthesis_rules,omitempty"`
}

// Dimension looks up a dimension by ID
func (r Rubric) Dimension(id string) (Dimension, bool) {
	for _, d := range r.Dimensions {
		if d.ID == id {
			return d, true
		}
	}
	return Dimension{}, false
}

// IsEmpty reports whether there is nothing to score
func (r Rubric) IsEmpty() bool {
	return len(r.Dimensions) == 0
}
