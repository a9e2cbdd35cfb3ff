package integrity

import (
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/ppiankov/auditor/internal/model"
)

var (
	tokenPattern  = regexp.MustCompile(`[A-Za-z0-9_.\-/]+`)
	letterPattern = regexp.MustCompile(`[A-Za-z]`)
)

// knownExtensions are file suffixes that make a slash-free token a path
var knownExtensions = map[string]bool{
	"go": true, "mod": true, "sum": true, "py": true, "js": true, "ts": true, "tsx": true,
	"jsx": true, "rs": true, "java": true, "kt": true, "rb": true, "c": true, "h": true,
	"cpp": true, "cs": true, "sh": true, "md": true, "rst": true, "txt": true, "json": true,
	"yaml": true, "yml": true, "toml": true, "ini": true, "cfg": true, "lock": true,
	"html": true, "css": true, "sql": true, "proto": true, "png": true, "jpg": true,
	"jpeg": true, "gif": true, "svg": true, "mmd": true, "mermaid": true, "dot": true,
	"puml": true, "pdf": true, "env": true, "ipynb": true,
}

// knownBareFiles have no extension but are unmistakably files
var knownBareFiles = map[string]bool{
	"Dockerfile": true, "Makefile": true, "LICENSE": true, "Procfile": true,
	"Jenkinsfile": true, "Gemfile": true, "Vagrantfile": true,
}

// notPaths are slash-joined words that read like prose
var notPaths = map[string]bool{
	"and/or": true, "n/a": true, "i/o": true, "w/o": true, "tcp/ip": true,
	"input/output": true, "read/write": true, "client/server": true, "pass/fail": true,
	"yes/no": true, "true/false": true,
}

// DefaultStubs are always-allowed prefixes: version control metadata is
// excluded from the manifest yet legitimately referenced by evidence
var DefaultStubs = []string{".git"}

// ExtractPaths returns the path-like tokens of text, normalized and in
// order of first appearance
func ExtractPaths(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, raw := range tokenPattern.FindAllString(text, -1) {
		p, ok := normalize(raw)
		if !ok || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func normalize(tok string) (string, bool) {
	if strings.HasPrefix(tok, "//") {
		return "", false // scheme-less URL remainder
	}
	tok = strings.TrimRight(tok, ".-")
	for strings.HasPrefix(tok, "./") {
		tok = tok[2:]
	}
	tok = strings.TrimLeft(tok, "/")
	tok = strings.TrimSuffix(tok, "/")
	if len(tok) < 3 || !letterPattern.MatchString(tok) || strings.Contains(tok, "//") {
		return "", false
	}
	if strings.Contains(tok, "..") {
		return "", false
	}

	if strings.Contains(tok, "/") {
		if notPaths[strings.ToLower(tok)] {
			return "", false
		}
		// Version-like and host-like first segments are not repository paths.
		first := tok[:strings.Index(tok, "/")]
		if strings.Count(first, ".") >= 2 || strings.HasSuffix(first, ".com") || strings.HasSuffix(first, ".org") || strings.HasSuffix(first, ".io") {
			return "", false
		}
		return path.Clean(tok), true
	}

	if knownBareFiles[tok] {
		return tok, true
	}
	ext := strings.TrimPrefix(path.Ext(tok), ".")
	if ext == "" || !knownExtensions[strings.ToLower(ext)] {
		return "", false
	}
	return tok, true
}

// Index answers membership questions against a repository manifest
type Index struct {
	files map[string]bool
	dirs  map[string]bool
	stubs []string
}

// NewIndex indexes manifest entries and every directory that contains one
func NewIndex(manifest, stubs []string) *Index {
	idx := &Index{
		files: make(map[string]bool, len(manifest)),
		dirs:  make(map[string]bool),
		stubs: stubs,
	}
	for _, f := range manifest {
		f = strings.TrimPrefix(path.Clean(f), "./")
		idx.files[f] = true
		for d := path.Dir(f); d != "." && d != "/"; d = path.Dir(d) {
			idx.dirs[d] = true
		}
	}
	return idx
}

// Contains reports whether candidate names a manifest file or directory,
// either exactly or as a suffix that starts on a segment boundary, or falls
// under a stub prefix
func (idx *Index) Contains(candidate string) bool {
	for _, s := range idx.stubs {
		if candidate == s || strings.HasPrefix(candidate, s+"/") {
			return true
		}
	}
	if idx.files[candidate] || idx.dirs[candidate] {
		return true
	}
	suffix := "/" + candidate
	for f := range idx.files {
		if strings.HasSuffix(f, suffix) {
			return true
		}
	}
	for d := range idx.dirs {
		if strings.HasSuffix(d, suffix) {
			return true
		}
	}
	return false
}

// Classification is the outcome of checking candidates against a manifest
type Classification struct {
	Verified     []string
	Hallucinated []string
}

// Classify splits candidates into verified and hallucinated. Both lists are
// de-duplicated and sorted, so repeated calls yield identical results
func Classify(candidates, manifest, stubs []string) Classification {
	return ClassifyUnder(candidates, manifest, stubs, nil)
}

// ClassifyUnder is Classify for candidates that may carry the checkout's
// own location. A candidate under one of roots is checked and reported by
// its remainder; a root on its own is neither verified nor hallucinated
func ClassifyUnder(candidates, manifest, stubs, roots []string) Classification {
	idx := NewIndex(manifest, stubs)
	verified := make(map[string]bool)
	hallucinated := make(map[string]bool)
	for _, c := range candidates {
		c, ok := relativeTo(c, roots)
		if !ok {
			continue
		}
		if idx.Contains(c) {
			verified[c] = true
		} else {
			hallucinated[c] = true
		}
	}
	return Classification{Verified: sortedKeys(verified), Hallucinated: sortedKeys(hallucinated)}
}

func relativeTo(candidate string, roots []string) (string, bool) {
	for _, r := range roots {
		if r == "" {
			continue
		}
		if candidate == r {
			return "", false
		}
		if rest, ok := strings.CutPrefix(candidate, r+"/"); ok {
			return rest, true
		}
	}
	return candidate, true
}

// EvidencePaths extracts candidates from each record's location and content
func EvidencePaths(evidence []model.Evidence) []string {
	var out []string
	seen := make(map[string]bool)
	for _, ev := range evidence {
		for _, text := range []string{ev.Location, ev.Content} {
			for _, p := range ExtractPaths(text) {
				if !seen[p] {
					seen[p] = true
					out = append(out, p)
				}
			}
		}
	}
	return out
}

// Mentions returns the entries of paths that appear as path tokens in text.
// A token matches when it equals the path or ends with it on a segment
// boundary, so clone-prefixed spellings are caught too
func Mentions(text string, paths []string) []string {
	if len(paths) == 0 || text == "" {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, tok := range ExtractPaths(text) {
		for _, p := range paths {
			if seen[p] {
				continue
			}
			if tok == p || strings.HasSuffix(tok, "/"+p) {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}

// Dedup returns the sorted set of the given paths
func Dedup(paths []string) []string {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	return sortedKeys(set)
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
