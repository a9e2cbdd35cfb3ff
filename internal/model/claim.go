package model

// Claim is an assertion the report makes about its own implementation
type Claim struct {
	Text      string   `json:"text"`                // The sentence as written
	Heuristic string   `json:"heuristic,omitempty"` // Which extraction rule matched (e.g., "keyword:implemented")
	Sentence  int      `json:"sentence"`            // Sentence index within the section (0-based)
	Section   string   `json:"section,omitempty"`   // Section anchor
	Paths     []string `json:"paths,omitempty"`     // Repository paths the sentence names
}

// CitesPaths reports whether the claim can be checked against the repository
func (c Claim) CitesPaths() bool {
	return len(c.Paths) > 0
}
