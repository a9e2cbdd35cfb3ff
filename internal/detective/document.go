package detective

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ppiankov/auditor/internal/util"
	"golang.org/x/net/html"
)

// DocKind is the detected format of a report document
type DocKind string

const (
	KindMarkdown DocKind = "markdown"
	KindHTML     DocKind = "html"
	KindPDF      DocKind = "pdf"
	KindText     DocKind = "text"
)

// ErrUnsupportedDocument is returned for formats no detective can read
var ErrUnsupportedDocument = errors.New("unsupported document format")

// Document is a loaded report
type Document struct {
	Source    string
	Kind      DocKind
	Text      string
	Dir       string // Directory of a local document, empty for URLs
	Truncated bool
}

// Section is a heading and the text under it
type Section struct {
	Heading string
	Level   int
	Body    string
}

// Anchor is how evidence refers to the section
func (s Section) Anchor() string {
	if s.Heading == "" {
		return "preamble"
	}
	return s.Heading
}

// LoadDocument reads a local document or fetches a URL. A nil fetcher
// rejects URLs. PDFs are recognised but not read
func LoadDocument(ctx context.Context, fetcher *util.Fetcher, source string, maxBytes int64) (*Document, error) {
	if util.IsURL(source) {
		if fetcher == nil {
			return nil, fmt.Errorf("fetch %s: no HTTP fetcher configured", source)
		}
		kind := kindFromPath(source)
		if kind == KindPDF {
			return &Document{Source: source, Kind: KindPDF}, ErrUnsupportedDocument
		}
		res, err := fetcher.Fetch(ctx, source)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", source, err)
		}
		if k := kindFromContentType(res.ContentType); k != "" {
			kind = k
		}
		if kind == KindPDF {
			return &Document{Source: source, Kind: KindPDF}, ErrUnsupportedDocument
		}
		return &Document{Source: source, Kind: kind, Text: string(res.Body), Truncated: res.Truncated}, nil
	}

	kind := kindFromPath(source)
	if kind == KindPDF {
		return &Document{Source: source, Kind: KindPDF, Dir: filepath.Dir(source)}, ErrUnsupportedDocument
	}
	text, truncated, ok, err := readText(source, maxBytes)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Document{Source: source, Dir: filepath.Dir(source)}, fmt.Errorf("%s: %w: binary content", source, ErrUnsupportedDocument)
	}
	return &Document{Source: source, Kind: kind, Text: text, Dir: filepath.Dir(source), Truncated: truncated}, nil
}

func kindFromPath(p string) DocKind {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".pdf":
		return KindPDF
	case ".html", ".htm":
		return KindHTML
	case ".txt":
		return KindText
	default:
		return KindMarkdown
	}
}

func kindFromContentType(ct string) DocKind {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	switch mt {
	case "text/html", "application/xhtml+xml":
		return KindHTML
	case "application/pdf":
		return KindPDF
	case "text/markdown", "text/x-markdown":
		return KindMarkdown
	case "text/plain":
		return KindText
	}
	return ""
}

// Sections splits the document by headings
func (d *Document) Sections() []Section {
	switch d.Kind {
	case KindHTML:
		secs, err := htmlSections(d.Text)
		if err != nil {
			return []Section{{Body: strings.TrimSpace(d.Text)}}
		}
		return secs
	case KindPDF:
		return nil
	default:
		return markdownSections(d.Text)
	}
}

var atxHeading = regexp.MustCompile(`^(#{1,6})\s+(.*?)\s*#*\s*$`)

func markdownSections(text string) []Section {
	var out []Section
	cur := Section{}
	var body strings.Builder
	inFence := false

	flush := func() {
		cur.Body = strings.TrimSpace(body.String())
		if cur.Heading != "" || cur.Body != "" {
			out = append(out, cur)
		}
		body.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
		}
		if !inFence {
			if m := atxHeading.FindStringSubmatch(trimmed); m != nil && strings.HasPrefix(line, "#") {
				flush()
				cur = Section{Heading: m[2], Level: len(m[1])}
				continue
			}
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	flush()
	return out
}

var headingLevels = map[string]int{"h1": 1, "h2": 2, "h3": 3, "h4": 4, "h5": 5, "h6": 6}

// skipped elements contribute no text
var skippedElements = map[string]bool{"script": true, "style": true, "noscript": true, "template": true}

// block elements end a line of text
var blockElements = map[string]bool{
	"p": true, "div": true, "li": true, "pre": true, "br": true, "tr": true,
	"section": true, "article": true, "blockquote": true, "table": true,
}

func htmlSections(text string) ([]Section, error) {
	doc, err := html.Parse(strings.NewReader(text))
	if err != nil {
		return nil, err
	}

	var out []Section
	cur := Section{}
	var body strings.Builder

	flush := func() {
		cur.Body = collapseBlankLines(body.String())
		if cur.Heading != "" || cur.Body != "" {
			out = append(out, cur)
		}
		body.Reset()
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skippedElements[n.Data] {
				return
			}
			if lvl, ok := headingLevels[n.Data]; ok {
				flush()
				cur = Section{Heading: strings.Join(strings.Fields(nodeText(n)), " "), Level: lvl}
				return
			}
		}
		if n.Type == html.TextNode {
			body.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			body.WriteByte('\n')
		}
	}
	walk(doc)
	flush()
	return out, nil
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(nodeText(c))
	}
	return sb.String()
}

func collapseBlankLines(s string) string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n")
}
