package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Evidence is an objective finding produced by a detective. It carries no
// judgement; judges cite it by ID
type Evidence struct {
	ID         string  `json:"id"`                // Stable identifier derived from content
	SourceName string  `json:"source_name"`       // Producing detective (e.g., "repo_investigator")
	Goal       string  `json:"goal"`              // What was being investigated
	Found      bool    `json:"found"`             // Whether the investigated condition holds
	Content    string  `json:"content,omitempty"` // Raw finding, may be empty
	Location   string  `json:"location"`          // File path, log reference or document section
	Rationale  string  `json:"rationale"`         // Why the finding is considered reliable
	Confidence float64 `json:"confidence"`        // 0.0 - 1.0
}

// NewEvidence builds an evidence record with its stable ID assigned.
// Confidence is clamped to [0,1]
func NewEvidence(source, goal string, found bool, content, location, rationale string, confidence float64) Evidence {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return Evidence{
		ID:         EvidenceID(source, goal, location, content),
		SourceName: source,
		Goal:       goal,
		Found:      found,
		Content:    content,
		Location:   location,
		Rationale:  rationale,
		Confidence: confidence,
	}
}

// MissingEvidence records a collection failure: found=false, confidence 0
func MissingEvidence(source, goal, location, reason string) Evidence {
	return NewEvidence(source, goal, false, "", location, reason, 0)
}

// EvidenceID hashes the identifying fields of a record. Identical findings
// share an ID, which is harmless since they are interchangeable as citations
func EvidenceID(source, goal, location, content string) string {
	h := sha256.New()
	for _, part := range []string{source, goal, location, content} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return "ev-" + hex.EncodeToString(h.Sum(nil))[:12]
}

// HasContent reports whether the record carries a non-blank finding
func (e Evidence) HasContent() bool {
	return strings.TrimSpace(e.Content) != ""
}
