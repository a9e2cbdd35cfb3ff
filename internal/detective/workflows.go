package detective

import (
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
)

// Workflow is the part of a GitHub Actions workflow the investigator reads
type Workflow struct {
	Name string                 `yaml:"name"`
	On   any                    `yaml:"on"`
	Jobs map[string]WorkflowJob `yaml:"jobs"`
}

// WorkflowJob is one job of a workflow
type WorkflowJob struct {
	RunsOn any            `yaml:"runs-on"`
	Steps  []WorkflowStep `yaml:"steps"`
}

// WorkflowStep is one step of a job
type WorkflowStep struct {
	Name string `yaml:"name"`
	Uses string `yaml:"uses"`
	Run  string `yaml:"run"`
}

// WorkflowSummary is what the investigator reports per workflow file
type WorkflowSummary struct {
	File     string
	Name     string
	Triggers []string
	Jobs     []string
	RunsTest bool
	RunsLint bool
	Err      error
}

var (
	testCommand = regexp.MustCompile(`\b(?:go test|pytest|npm (?:run )?test|yarn test|cargo test|make test|tox|uv run pytest)\b`)
	lintCommand = regexp.MustCompile(`\b(?:golangci-lint|go vet|ruff|flake8|pylint|eslint|mypy)\b`)
)

// IsWorkflowFile reports paths under .github/workflows with a YAML extension
func IsWorkflowFile(rel string) bool {
	ext := strings.ToLower(path.Ext(rel))
	return path.Dir(rel) == ".github/workflows" && (ext == ".yml" || ext == ".yaml")
}

// ParseWorkflows reads the workflow files of manifest
func ParseWorkflows(root string, manifest []string, maxBytes int64) []WorkflowSummary {
	var out []WorkflowSummary
	for _, rel := range manifest {
		if !IsWorkflowFile(rel) {
			continue
		}
		text, _, ok, err := readText(filepath.Join(root, filepath.FromSlash(rel)), maxBytes)
		if err == nil && !ok {
			err = fmt.Errorf("binary content")
		}
		if err != nil {
			out = append(out, WorkflowSummary{File: rel, Err: err})
			continue
		}
		out = append(out, SummarizeWorkflow(rel, []byte(text)))
	}
	return out
}

// SummarizeWorkflow parses one workflow document
func SummarizeWorkflow(rel string, data []byte) WorkflowSummary {
	s := WorkflowSummary{File: rel}
	var wf Workflow
	if err := yaml.Unmarshal(data, &wf); err != nil {
		s.Err = fmt.Errorf("parse %s: %w", rel, err)
		return s
	}
	s.Name = wf.Name
	s.Triggers = triggers(wf.On)
	for name, job := range wf.Jobs {
		s.Jobs = append(s.Jobs, name)
		for _, step := range job.Steps {
			cmd := step.Run + " " + step.Uses
			if testCommand.MatchString(cmd) {
				s.RunsTest = true
			}
			if lintCommand.MatchString(cmd) || strings.Contains(step.Uses, "golangci-lint-action") {
				s.RunsLint = true
			}
		}
	}
	sort.Strings(s.Jobs)
	return s
}

// triggers normalises the three shapes of "on": string, list and map
func triggers(on any) []string {
	var out []string
	switch v := on.(type) {
	case string:
		out = append(out, v)
	case []any:
		for _, t := range v {
			out = append(out, fmt.Sprint(t))
		}
	case map[string]any:
		for k := range v {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Describe renders the summary for evidence content
func (s WorkflowSummary) Describe() string {
	if s.Err != nil {
		return fmt.Sprintf("%s: unreadable (%v)", s.File, s.Err)
	}
	name := s.Name
	if name == "" {
		name = path.Base(s.File)
	}
	return fmt.Sprintf("%s (%s): on %s; jobs %s; tests=%t lint=%t",
		s.File, name, orNone(s.Triggers), orNone(s.Jobs), s.RunsTest, s.RunsLint)
}

func orNone(list []string) string {
	if len(list) == 0 {
		return "none"
	}
	return strings.Join(list, ", ")
}
