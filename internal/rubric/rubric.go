package rubric

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/auditor/internal/model"
)

//go:embed default.yaml
var defaultRubric []byte

// ErrEmpty is returned when a document declares no dimensions
var ErrEmpty = errors.New("rubric: no dimensions")

// legacySecurityIDs were hard-wired as security critical before the
// rubric carried an explicit flag
var legacySecurityIDs = map[string]bool{
	"safe_tool_engineering":         true,
	"structured_output_enforcement": true,
}

// legacyHintKeys map well-known synthesis_rules entries onto the dimension
// whose weighting they describe
var legacyHintKeys = map[string]string{
	"functionality_weight": "graph_orchestration",
}

type rawDocument struct {
	Version        string            `yaml:"version"`
	Dimensions     yaml.Node         `yaml:"dimensions"`
	SynthesisRules map[string]string `yaml:"synthesis_rules"`
}

type wrappedDocument struct {
	Rubric *rawDocument `yaml:"rubric"`
}

type rawDimension struct {
	ID                  string   `yaml:"id"`
	Name                string   `yaml:"name"`
	ForensicInstruction string   `yaml:"forensic_instruction"`
	SuccessPattern      string   `yaml:"success_pattern"`
	FailurePattern      string   `yaml:"failure_pattern"`
	Weight              *float64 `yaml:"weight"`
	Security            *bool    `yaml:"security"`
	SynthesisRuleHint   string   `yaml:"synthesis_rule_hint"`
}

// Load reads a rubric from a YAML or JSON file. An empty path selects the
// embedded default
func Load(path string) (*model.Rubric, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rubric: %w", err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("rubric %s: %w", path, err)
	}
	return r, nil
}

// Default returns the embedded rubric
func Default() (*model.Rubric, error) {
	return Parse(defaultRubric)
}

// DefaultBytes returns the raw embedded document, for `rubric show --default`
func DefaultBytes() []byte {
	return append([]byte(nil), defaultRubric...)
}

// Parse decodes a rubric document and migrates it to the canonical schema.
// Accepted shapes:
//
//	{dimensions: [...], synthesis_rules: {...}}       canonical
//	{rubric: {dimensions: [...], ...}}                 wrapped
//	{dimensions: {<id>: {...}}, ...}                   dimension map keyed by id
//
// JSON is accepted since it is a YAML subset
func Parse(data []byte) (*model.Rubric, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, ErrEmpty
	}

	var doc rawDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rubric: %w", err)
	}
	if doc.Dimensions.Kind == 0 {
		var wrapped wrappedDocument
		if err := yaml.Unmarshal(data, &wrapped); err == nil && wrapped.Rubric != nil {
			doc = *wrapped.Rubric
		}
	}

	raws, err := decodeDimensions(&doc.Dimensions)
	if err != nil {
		return nil, err
	}
	if len(raws) == 0 {
		return nil, ErrEmpty
	}

	r := &model.Rubric{
		Version:        doc.Version,
		SynthesisRules: doc.SynthesisRules,
	}
	seen := make(map[string]bool, len(raws))
	for i, raw := range raws {
		d, err := migrate(raw, doc.SynthesisRules)
		if err != nil {
			return nil, fmt.Errorf("dimension %d: %w", i, err)
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("dimension %d: duplicate id %q", i, d.ID)
		}
		seen[d.ID] = true
		r.Dimensions = append(r.Dimensions, d)
	}
	return r, nil
}

func decodeDimensions(node *yaml.Node) ([]rawDimension, error) {
	switch node.Kind {
	case 0:
		return nil, nil
	case yaml.SequenceNode:
		var out []rawDimension
		if err := node.Decode(&out); err != nil {
			return nil, fmt.Errorf("failed to decode dimensions: %w", err)
		}
		return out, nil
	case yaml.MappingNode:
		var byID map[string]rawDimension
		if err := node.Decode(&byID); err != nil {
			return nil, fmt.Errorf("failed to decode dimensions: %w", err)
		}
		ids := make([]string, 0, len(byID))
		for id := range byID {
			ids = append(ids, id)
		}
		// Mapping order is lost by map decoding; keep the result stable.
		sort.Strings(ids)
		out := make([]rawDimension, 0, len(ids))
		for _, id := range ids {
			d := byID[id]
			if d.ID == "" {
				d.ID = id
			}
			out = append(out, d)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("dimensions must be a list or a mapping, got %s", kindName(node.Kind))
	}
}

// migrate validates one dimension and fills defaults for missing fields
func migrate(raw rawDimension, rules map[string]string) (model.Dimension, error) {
	id := strings.TrimSpace(raw.ID)
	if id == "" {
		return model.Dimension{}, errors.New("missing id")
	}

	weight := 1.0
	if raw.Weight != nil {
		weight = *raw.Weight
	}
	if weight < 0 || math.IsNaN(weight) || math.IsInf(weight, 0) {
		return model.Dimension{}, fmt.Errorf("%s: invalid weight %v", id, weight)
	}

	security := legacySecurityIDs[id]
	if raw.Security != nil {
		security = *raw.Security
	}

	name := strings.TrimSpace(raw.Name)
	if name == "" {
		name = id
	}

	hint := strings.TrimSpace(raw.SynthesisRuleHint)
	if hint == "" {
		hint = rules[id]
	}
	if hint == "" {
		for key, target := range legacyHintKeys {
			if target == id && rules[key] != "" {
				hint = rules[key]
			}
		}
	}

	return model.Dimension{
		ID:                  id,
		Name:                name,
		ForensicInstruction: strings.TrimSpace(raw.ForensicInstruction),
		SuccessPattern:      strings.TrimSpace(raw.SuccessPattern),
		FailurePattern:      strings.TrimSpace(raw.FailurePattern),
		Weight:              weight,
		Security:            security,
		SynthesisRuleHint:   hint,
	}, nil
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	case yaml.DocumentNode:
		return "document"
	default:
		return fmt.Sprintf("kind %d", k)
	}
}
