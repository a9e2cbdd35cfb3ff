package detective

import (
	"regexp"
	"strings"

	"github.com/ppiankov/auditor/internal/integrity"
	"github.com/ppiankov/auditor/internal/model"
)

const (
	minSentence = 25
	maxSentence = 500
)

var (
	inlineCode = regexp.MustCompile("`([^`]*)`")
	mdLink     = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdNoise    = strings.NewReplacer("**", "", "__", "", "> ", " ", "\t", " ")
)

// ClaimExtractor picks sentences in which the report asserts what the code does
type ClaimExtractor struct {
	keywords []keyword
}

type keyword struct {
	word string
	re   *regexp.Regexp
}

// NewClaimExtractor creates an extractor with the implementation-claim vocabulary
func NewClaimExtractor() *ClaimExtractor {
	words := []string{
		"implemented", "implements", "we built", "we use", "uses", "leverages",
		"runs in parallel", "in parallel", "concurrently", "fan-out", "fan-in",
		"ensures", "guarantees", "enforces", "validated", "validates",
		"sandbox", "structured output", "with_structured_output", "pydantic",
		"is responsible for", "is handled by", "is located in", "lives in", "defined in",
	}
	e := &ClaimExtractor{}
	for _, w := range words {
		e.keywords = append(e.keywords, keyword{word: w, re: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(w) + `\b`)})
	}
	return e
}

// Extract returns the claim sentences of one section's text, in order
func (e *ClaimExtractor) Extract(section, text string) []model.Claim {
	sentences := splitSentences(plainText(text))

	var claims []model.Claim
	for i, sentence := range sentences {
		paths := integrity.ExtractPaths(sentence)
		heuristic := ""
		for _, k := range e.keywords {
			if k.re.MatchString(sentence) {
				heuristic = "keyword:" + k.word
				break
			}
		}
		if heuristic == "" && len(paths) > 0 {
			heuristic = "path"
		}
		if heuristic == "" {
			continue
		}
		claims = append(claims, model.Claim{
			Text:      sentence,
			Heuristic: heuristic,
			Sentence:  i,
			Section:   section,
			Paths:     paths,
		})
	}

	return dedupeClaims(claims)
}

// plainText drops Markdown markup that would split or hide sentences
func plainText(text string) string {
	var b strings.Builder
	inFence := false
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence || trimmed == "" {
			b.WriteString("\n\n")
			continue
		}
		trimmed = strings.TrimLeft(trimmed, "-*+ ")
		b.WriteString(trimmed)
		b.WriteString("\n")
	}
	s := inlineCode.ReplaceAllString(b.String(), "$1")
	s = mdLink.ReplaceAllString(s, "$1")
	return mdNoise.Replace(s)
}

// splitSentences splits text on terminators followed by whitespace and on
// blank lines. Fragments outside the length bounds are dropped
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	flush := func() {
		sentence := strings.Join(strings.Fields(current.String()), " ")
		if len(sentence) >= minSentence && len(sentence) <= maxSentence {
			sentences = append(sentences, sentence)
		}
		current.Reset()
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == '\n' && i+1 < len(text) && text[i+1] == '\n' {
			flush()
			continue
		}
		current.WriteByte(c)

		if c == '.' || c == '!' || c == '?' {
			// a dot inside a path or number is not a terminator
			if i+1 < len(text) && (text[i+1] == ' ' || text[i+1] == '\t' || text[i+1] == '\n') {
				flush()
			}
		}
	}
	flush()

	return sentences
}

// dedupeClaims removes repeated sentences
func dedupeClaims(claims []model.Claim) []model.Claim {
	seen := make(map[string]bool)
	var unique []model.Claim

	for _, claim := range claims {
		key := strings.ToLower(strings.TrimSpace(claim.Text))
		if !seen[key] {
			seen[key] = true
			unique = append(unique, claim)
		}
	}

	return unique
}
