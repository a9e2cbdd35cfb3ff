package detective

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/ppiankov/auditor/internal/logging"
	"github.com/ppiankov/auditor/internal/model"
	"github.com/ppiankov/auditor/internal/util"
	"golang.org/x/net/html"
)

var (
	markdownImage = regexp.MustCompile(`!\[([^\]]*)\]\(\s*<?([^)\s>]+)>?(?:\s+"[^"]*")?\s*\)`)
	fencedDiagram = regexp.MustCompile("(?ms)^\\s*(```|~~~)\\s*(mermaid|dot|graphviz|plantuml|puml)\\s*\\n(.*?)^\\s*(```|~~~)")
)

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true, ".webp": true}

// VisionInspector inventories diagrams referenced by or stored beside the
// report. Images are recorded by presence only; text diagrams are parsed
// for their flow structure
type VisionInspector struct {
	Fetcher  *util.Fetcher
	MaxBytes int64
	Logger   *slog.Logger
}

// NewVisionInspector creates a diagram inspector
func NewVisionInspector(fetcher *util.Fetcher, maxBytes int64) *VisionInspector {
	return &VisionInspector{Fetcher: fetcher, MaxBytes: maxBytes, Logger: logging.New(VisionInspectorName)}
}

// Name returns the evidence key
func (v *VisionInspector) Name() string { return VisionInspectorName }

// Investigate looks for diagrams in the document and its directory
func (v *VisionInspector) Investigate(ctx context.Context, t Target) (Findings, error) {
	if strings.TrimSpace(t.DocPath) == "" {
		return Findings{}, nil
	}
	log := v.Logger
	if log == nil {
		log = logging.Discard()
	}

	doc, err := LoadDocument(ctx, v.Fetcher, t.DocPath, v.MaxBytes)
	if err != nil {
		if ctx.Err() != nil {
			return Findings{}, ctx.Err()
		}
		if doc == nil || !isUnsupported(err) {
			return Findings{
				Evidence: []model.Evidence{model.MissingEvidence(VisionInspectorName, "Architecture diagram referenced", t.DocPath,
					fmt.Sprintf("document could not be read: %v", err))},
			}, nil
		}
		// Unreadable formats still have a directory worth inventorying
		log.Debug("document not readable, inspecting its directory only", "doc", t.DocPath, "error", err)
	}

	var out []model.Evidence
	var observed []string
	seen := map[string]bool{}

	for _, ref := range imageRefs(doc) {
		if seen[ref.src] {
			continue
		}
		seen[ref.src] = true
		if kind, ok := DiagramKindOf(ref.src); ok && doc.Dir != "" && !util.IsURL(ref.src) {
			full := filepath.Join(doc.Dir, filepath.FromSlash(ref.src))
			out = append(out, v.diagramFile(full, ref.src, kind))
			if _, err := os.Stat(full); err == nil {
				observed = append(observed, filepath.ToSlash(full), ref.src)
			}
			continue
		}
		content := "image " + ref.src
		if ref.alt != "" {
			content += " (" + ref.alt + ")"
		}
		if doc.Dir != "" && !util.IsURL(ref.src) {
			if _, err := os.Stat(filepath.Join(doc.Dir, filepath.FromSlash(ref.src))); err == nil {
				observed = append(observed, ref.src)
			} else {
				content += ", file not found beside the report"
			}
		}
		out = append(out, model.NewEvidence(VisionInspectorName, "Architecture diagram referenced", true, content,
			doc.Source, "Image reference found in the report; pixel content is not analysed", 0.5))
	}

	for i, block := range fencedBlocks(doc.Text) {
		loc := fmt.Sprintf("%s#diagram-%d", doc.Source, i+1)
		out = append(out, diagramEvidence(block.kind, block.body, loc))
	}

	if doc.Dir != "" {
		entries, err := os.ReadDir(doc.Dir)
		if err != nil {
			log.Warn("cannot list document directory", "dir", doc.Dir, "error", err)
		}
		for _, e := range entries {
			if e.IsDir() || seen[e.Name()] {
				continue
			}
			full := filepath.Join(doc.Dir, e.Name())
			if kind, ok := DiagramKindOf(e.Name()); ok {
				seen[e.Name()] = true
				out = append(out, v.diagramFile(full, e.Name(), kind))
				observed = append(observed, filepath.ToSlash(full))
			} else if imageExts[strings.ToLower(path.Ext(e.Name()))] {
				seen[e.Name()] = true
				out = append(out, model.NewEvidence(VisionInspectorName, "Architecture diagram referenced", true,
					"image "+e.Name(), filepath.ToSlash(full),
					"Image stored beside the report; pixel content is not analysed", 0.4))
				observed = append(observed, filepath.ToSlash(full))
			}
		}
	}

	if doc.Dir != "" {
		observed = append(observed, doc.Source)
	}
	log.Debug("diagrams inspected", "doc", doc.Source, "evidence", len(out))
	return Findings{Evidence: out, Observed: observed}, nil
}

func (v *VisionInspector) diagramFile(full, name string, kind DiagramKind) model.Evidence {
	text, _, ok, err := readText(full, v.MaxBytes)
	if err != nil || !ok {
		reason := "diagram file is binary"
		if err != nil {
			reason = fmt.Sprintf("diagram file could not be read: %v", err)
		}
		return model.MissingEvidence(VisionInspectorName, "Diagram shows parallel fan-out and fan-in", name, reason)
	}
	return diagramEvidence(kind, text, filepath.ToSlash(full))
}

func diagramEvidence(kind DiagramKind, text, location string) model.Evidence {
	topo := Analyze(ParseEdges(kind, text))
	if topo.Edges == 0 {
		return model.NewEvidence(VisionInspectorName, "Diagram shows parallel fan-out and fan-in", false,
			fmt.Sprintf("%s diagram with no parseable edges", kind), location,
			"Text diagram parsed for edges; none were recognised", 0.6)
	}
	return model.NewEvidence(VisionInspectorName, "Diagram shows parallel fan-out and fan-in", topo.Parallel(),
		fmt.Sprintf("%s diagram: %s", kind, topo.Describe()), location,
		"Edges parsed from the diagram source and counted per node", 0.9)
}

type imageRef struct {
	src, alt string
}

func imageRefs(doc *Document) []imageRef {
	if doc == nil || doc.Text == "" {
		return nil
	}
	var refs []imageRef
	for _, m := range markdownImage.FindAllStringSubmatch(doc.Text, -1) {
		refs = append(refs, imageRef{src: m[2], alt: m[1]})
	}
	if doc.Kind == KindHTML || strings.Contains(doc.Text, "<img") {
		refs = append(refs, htmlImages(doc.Text)...)
	}
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].src < refs[j].src })
	return refs
}

func htmlImages(text string) []imageRef {
	root, err := html.Parse(strings.NewReader(text))
	if err != nil {
		return nil
	}
	var refs []imageRef
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "img" {
			var ref imageRef
			for _, a := range n.Attr {
				switch a.Key {
				case "src":
					ref.src = strings.TrimSpace(a.Val)
				case "alt":
					ref.alt = strings.TrimSpace(a.Val)
				}
			}
			if ref.src != "" && !strings.HasPrefix(ref.src, "data:") {
				refs = append(refs, ref)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return refs
}

type diagramBlock struct {
	kind DiagramKind
	body string
}

func fencedBlocks(text string) []diagramBlock {
	var out []diagramBlock
	for _, m := range fencedDiagram.FindAllStringSubmatch(text, -1) {
		kind := DiagramMermaid
		switch strings.ToLower(m[2]) {
		case "dot", "graphviz":
			kind = DiagramDOT
		case "plantuml", "puml":
			kind = DiagramPlantUML
		}
		out = append(out, diagramBlock{kind: kind, body: m[3]})
	}
	return out
}
