package detective

import (
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Pattern is a source-text signal the investigator looks for
type Pattern struct {
	Name  string
	Regex *regexp.Regexp
	Exts  map[string]bool // Empty matches any text file
}

// Hit is a pattern match
type Hit struct {
	Pattern string
	File    string
	Line    int
	Text    string
}

// Location formats the hit as file:line
func (h Hit) Location() string {
	return fmt.Sprintf("%s:%d", h.File, h.Line)
}

var codeExts = map[string]bool{
	".go": true, ".py": true, ".js": true, ".ts": true, ".rb": true, ".java": true,
	".sh": true, ".rs": true, ".kt": true, ".cs": true, ".php": true,
}

var configExts = map[string]bool{
	".yml": true, ".yaml": true, ".json": true, ".toml": true, ".ini": true,
	".env": true, ".cfg": true, ".conf": true, ".properties": true,
}

// ShellPatterns flag raw shell execution
var ShellPatterns = []Pattern{
	{Name: "go shell exec", Regex: regexp.MustCompile(`exec\.Command(?:Context)?\([^)]*"(?:sh|bash|/bin/sh|/bin/bash|cmd|powershell)"`), Exts: codeExts},
	{Name: "os.system", Regex: regexp.MustCompile(`\bos\.system\(`), Exts: codeExts},
	{Name: "subprocess shell=True", Regex: regexp.MustCompile(`subprocess\.\w+\([^)]*shell\s*=\s*True`), Exts: codeExts},
	{Name: "child_process exec", Regex: regexp.MustCompile(`child_process['"]?\)?\.exec\(|\bexecSync\(`), Exts: codeExts},
	{Name: "eval", Regex: regexp.MustCompile(`(?:^|[^.\w])eval\(`), Exts: map[string]bool{".py": true, ".js": true, ".ts": true}},
}

// SecretPatterns flag credentials committed to the tree
var SecretPatterns = []Pattern{
	{Name: "OpenAI key", Regex: regexp.MustCompile(`\bsk-(?:proj-)?[A-Za-z0-9_-]{20,}`)},
	{Name: "AWS access key", Regex: regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
	{Name: "GitHub token", Regex: regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`)},
	{Name: "private key", Regex: regexp.MustCompile(`-----BEGIN (?:RSA |EC |OPENSSH |DSA )?PRIVATE KEY-----`)},
	{Name: "hardcoded credential", Regex: regexp.MustCompile(`(?i)\b(?:api[_-]?key|secret|token|passw(?:or)?d)\b\s*[:=]\s*["'][A-Za-z0-9_\-/+]{16,}["']`)},
}

// SandboxPatterns show clones going into temporary directories
var SandboxPatterns = []Pattern{
	{Name: "temp dir", Regex: regexp.MustCompile(`os\.MkdirTemp\(|ioutil\.TempDir\(|tempfile\.(?:TemporaryDirectory|mkdtemp)\(|fs\.mkdtemp`), Exts: codeExts},
	{Name: "git clone", Regex: regexp.MustCompile(`["']clone["']|git\.Repo\.clone_from|git clone`), Exts: codeExts},
}

// OrchestrationPatterns show graph-based multi-agent wiring
var OrchestrationPatterns = []Pattern{
	{Name: "state graph", Regex: regexp.MustCompile(`\bStateGraph\(|\bNewBuilder\(|\bAddConditionalEdge\(`), Exts: codeExts},
	{Name: "edge wiring", Regex: regexp.MustCompile(`\badd_edge\(|\bAddEdge\(`), Exts: codeExts},
	{Name: "conditional edge", Regex: regexp.MustCompile(`\badd_conditional_edges\(|\bAddConditionalEdge\(`), Exts: codeExts},
	{Name: "state reducer", Regex: regexp.MustCompile(`Annotated\[[^\]]*operator\.(?:add|ior)|\breducer\b`), Exts: codeExts},
}

// StructuredOutputPatterns show schema-bound LLM output
var StructuredOutputPatterns = []Pattern{
	{Name: "structured output binding", Regex: regexp.MustCompile(`\.with_structured_output\(|ResponseFormat|response_format|json_schema`), Exts: codeExts},
	{Name: "typed model", Regex: regexp.MustCompile(`\(BaseModel\)|\bTypedDict\b|\bjson\.Unmarshal\(`), Exts: codeExts},
}

const maxHitsPerPattern = 20

// Scan runs patterns over the text files of manifest
func Scan(root string, manifest []string, maxBytes int64, patterns []Pattern) []Hit {
	var hits []Hit
	counts := map[string]int{}
	for _, rel := range manifest {
		ext := strings.ToLower(path.Ext(rel))
		if strings.HasPrefix(path.Base(rel), ".env") {
			ext = ".env"
		}
		var applicable []Pattern
		for _, p := range patterns {
			if len(p.Exts) == 0 || p.Exts[ext] {
				applicable = append(applicable, p)
			}
		}
		if len(applicable) == 0 || skipGoDir(path.Dir(rel)) {
			continue
		}
		text, _, ok, err := readText(filepath.Join(root, filepath.FromSlash(rel)), maxBytes)
		if err != nil || !ok {
			continue
		}
		for i, line := range strings.Split(text, "\n") {
			for _, p := range applicable {
				if counts[p.Name] >= maxHitsPerPattern || !p.Regex.MatchString(line) {
					continue
				}
				counts[p.Name]++
				hits = append(hits, Hit{Pattern: p.Name, File: rel, Line: i + 1, Text: redact(strings.TrimSpace(line), p)})
			}
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].File != hits[j].File {
			return hits[i].File < hits[j].File
		}
		return hits[i].Line < hits[j].Line
	})
	return hits
}

// redact masks secret matches so evidence never repeats the credential
func redact(line string, p Pattern) string {
	for _, sp := range SecretPatterns {
		if sp.Name == p.Name {
			return clip(p.Regex.ReplaceAllStringFunc(line, func(m string) string {
				if len(m) <= 8 {
					return "****"
				}
				return m[:4] + strings.Repeat("*", 8)
			}), 200)
		}
	}
	return clip(line, 200)
}

// EnvFiles lists committed dotenv files, excluding templates
func EnvFiles(manifest []string) []string {
	var out []string
	for _, rel := range manifest {
		base := path.Base(rel)
		if base != ".env" && !strings.HasPrefix(base, ".env.") {
			continue
		}
		lower := strings.ToLower(base)
		if strings.HasSuffix(lower, ".example") || strings.HasSuffix(lower, ".sample") || strings.HasSuffix(lower, ".template") {
			continue
		}
		out = append(out, rel)
	}
	return out
}

// TestFiles lists test files of common ecosystems
func TestFiles(manifest []string) []string {
	var out []string
	for _, rel := range manifest {
		base := path.Base(rel)
		switch {
		case strings.HasSuffix(base, "_test.go"),
			strings.HasPrefix(base, "test_") && strings.HasSuffix(base, ".py"),
			strings.HasSuffix(base, "_test.py"),
			strings.Contains(base, ".test.") || strings.Contains(base, ".spec."):
			out = append(out, rel)
		}
	}
	return out
}

func hitLocations(hits []Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Location()
	}
	return out
}

func describeHits(hits []Hit, limit int) string {
	var sb strings.Builder
	for i, h := range hits {
		if i == limit {
			fmt.Fprintf(&sb, "... and %d more\n", len(hits)-limit)
			break
		}
		fmt.Fprintf(&sb, "%s [%s] %s\n", h.Location(), h.Pattern, h.Text)
	}
	return strings.TrimSpace(sb.String())
}
