package detective

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ppiankov/auditor/internal/integrity"
	"github.com/ppiankov/auditor/internal/logging"
	"github.com/ppiankov/auditor/internal/model"
	"github.com/ppiankov/auditor/internal/util"
)

// architectureTerms mark sections worth handing to the judges even when
// they cite no file
var architectureTerms = []string{
	"fan-out", "fan-in", "parallel", "concurrent", "state graph", "stategraph",
	"reducer", "dialectic", "synthesis", "chief justice", "metacognition",
	"sandbox", "structured output", "orchestration", "checkpoint",
}

const (
	sectionExcerptBytes = 1500
	maxClaimRecords     = 40
)

// DocAnalyst reads the submitted report and records what it claims
type DocAnalyst struct {
	Fetcher  *util.Fetcher // Required for URL documents
	MaxBytes int64
	Claims   *ClaimExtractor
	Logger   *slog.Logger
}

// NewDocAnalyst creates a document analyst
func NewDocAnalyst(fetcher *util.Fetcher, maxBytes int64) *DocAnalyst {
	return &DocAnalyst{Fetcher: fetcher, MaxBytes: maxBytes, Claims: NewClaimExtractor(), Logger: logging.New(DocAnalystName)}
}

// Name returns the evidence key
func (d *DocAnalyst) Name() string { return DocAnalystName }

// Investigate loads the report and emits a summary record, one record per
// section that cites paths, discusses architecture or makes implementation
// claims, and one record per claim that names repository paths
func (d *DocAnalyst) Investigate(ctx context.Context, t Target) (Findings, error) {
	if strings.TrimSpace(t.DocPath) == "" {
		return Findings{}, nil
	}
	log := d.Logger
	if log == nil {
		log = logging.Discard()
	}

	doc, err := LoadDocument(ctx, d.Fetcher, t.DocPath, d.MaxBytes)
	if err != nil {
		if ctx.Err() != nil {
			return Findings{}, ctx.Err()
		}
		reason := fmt.Sprintf("document could not be read: %v", err)
		if doc != nil && doc.Kind == KindPDF {
			reason = "PDF ingestion is not available; the report was not analysed"
		}
		log.Warn("report document unavailable", "doc", t.DocPath, "error", err)
		return Findings{
			Evidence: []model.Evidence{model.MissingEvidence(DocAnalystName, "Report document ingested", t.DocPath, reason)},
			Warnings: []string{fmt.Sprintf("%s: %v", DocAnalystName, err)},
		}, nil
	}

	extractor := d.Claims
	if extractor == nil {
		extractor = NewClaimExtractor()
	}

	sections := doc.Sections()
	out := []model.Evidence{summaryEvidence(doc, sections)}
	var claimRecords []model.Evidence

	for _, sec := range sections {
		paths := integrity.ExtractPaths(sec.Body)
		terms := matchedTerms(sec.Heading + "\n" + sec.Body)
		claims := extractor.Extract(sec.Anchor(), sec.Body)
		if len(paths) == 0 && len(terms) == 0 && len(claims) == 0 {
			continue
		}
		var rationale []string
		if len(paths) > 0 {
			rationale = append(rationale, fmt.Sprintf("cites %d path(s): %s", len(paths), strings.Join(paths, ", ")))
		}
		if len(terms) > 0 {
			rationale = append(rationale, "discusses "+strings.Join(terms, ", "))
		}
		if len(claims) > 0 {
			rationale = append(rationale, fmt.Sprintf("makes %d implementation claim(s)", len(claims)))
		}
		for _, c := range claims {
			if c.CitesPaths() && len(claimRecords) < maxClaimRecords {
				claimRecords = append(claimRecords, claimEvidence(doc.Source, c))
			}
		}
		out = append(out, model.NewEvidence(
			DocAnalystName,
			"Report claims in section "+sec.Anchor(),
			true,
			clip(sec.Body, sectionExcerptBytes),
			doc.Source+"#"+sec.Anchor(),
			"Quoted from the report; "+strings.Join(rationale, "; "),
			0.8,
		))
	}

	out = append(out, claimRecords...)

	log.Debug("document analysed", "doc", doc.Source, "kind", doc.Kind, "sections", len(sections), "claims", len(claimRecords), "evidence", len(out))
	var warnings []string
	if doc.Truncated {
		warnings = append(warnings, fmt.Sprintf("%s: %s truncated at size limit", DocAnalystName, doc.Source))
	}
	f := Findings{Evidence: out, Warnings: warnings}
	if doc.Dir != "" {
		f.Observed = []string{doc.Source}
	}
	return f, nil
}

func summaryEvidence(doc *Document, sections []Section) model.Evidence {
	headings := make([]string, 0, len(sections))
	for _, s := range sections {
		if s.Heading != "" {
			headings = append(headings, s.Heading)
		}
	}
	content := fmt.Sprintf("%s document, %d sections", doc.Kind, len(sections))
	if len(headings) > 0 {
		content += ": " + strings.Join(headings, "; ")
	}
	found := len(strings.TrimSpace(doc.Text)) > 0
	return model.NewEvidence(DocAnalystName, "Report document ingested", found, clip(content, sectionExcerptBytes), doc.Source,
		"Structure read directly from the document", 1.0)
}

// claimEvidence records a sentence that ties the report to specific files.
// found=true only says the claim was made; the aggregator checks the paths
func claimEvidence(source string, c model.Claim) model.Evidence {
	return model.NewEvidence(
		DocAnalystName,
		"Report claim names repository files",
		true,
		c.Text,
		source+"#"+c.Section,
		fmt.Sprintf("Sentence %d of section %s (%s) names %s", c.Sentence+1, c.Section, c.Heuristic, strings.Join(c.Paths, ", ")),
		0.7,
	)
}

func matchedTerms(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, term := range architectureTerms {
		if strings.Contains(lower, term) {
			out = append(out, term)
		}
	}
	sort.Strings(out)
	return out
}

// isUnsupported reports whether err only says the format cannot be read
func isUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupportedDocument)
}
