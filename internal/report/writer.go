package report

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/ppiankov/auditor/internal/logging"
	"github.com/ppiankov/auditor/internal/model"
)

// Paths are the files written for one report
type Paths struct {
	JSON     string
	Markdown string
	LLM      string // empty when there is no narrative
}

// FileWriter stores each report under Dir as <name>.json, <name>.md and,
// when a narrative exists, <name>.llm.md. It satisfies pipeline.ReportWriter
type FileWriter struct {
	Dir      string
	Renderer *Renderer
	Summary  bool // print the terminal summary after writing
	Logger   *slog.Logger

	mu      sync.Mutex
	written []Paths
}

// NewFileWriter creates a writer for dir. Summaries go to out when summary is set
func NewFileWriter(dir string, out io.Writer, summary bool) *FileWriter {
	return &FileWriter{
		Dir:      dir,
		Renderer: NewRenderer(out),
		Summary:  summary,
		Logger:   logging.New("report"),
	}
}

// Write renders all formats of report
func (w *FileWriter) Write(ctx context.Context, report *model.AuditReport) error {
	if report == nil {
		return fmt.Errorf("nil report")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	base := filepath.Join(w.Dir, BaseName(report))
	paths := Paths{JSON: base + ".json", Markdown: base + ".md"}

	if err := w.Renderer.RenderJSON(report, paths.JSON); err != nil {
		return err
	}
	if err := w.Renderer.RenderMarkdown(report, paths.Markdown); err != nil {
		return err
	}
	if report.Narrative != nil && report.Narrative.Enabled {
		paths.LLM = base + ".llm.md"
		if err := w.Renderer.RenderLLMMarkdown(report, paths.LLM); err != nil {
			// the narrative is optional, the verdict is already on disk
			w.logger().Warn("narrative not written", "path", paths.LLM, "error", err)
			paths.LLM = ""
		}
	}

	w.mu.Lock()
	w.written = append(w.written, paths)
	w.mu.Unlock()
	w.logger().Info("report written", "json", paths.JSON, "markdown", paths.Markdown)
	if w.Summary {
		w.Renderer.RenderSummary(report)
	}
	return nil
}

// Written returns the paths of every report written so far
func (w *FileWriter) Written() []Paths {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Paths(nil), w.written...)
}

func (w *FileWriter) logger() *slog.Logger {
	if w.Logger == nil {
		return logging.Discard()
	}
	return w.Logger
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// BaseName derives a file name from the repository name and run ID,
// e.g. "agents-3f2a9c1d"
func BaseName(report *model.AuditReport) string {
	name := unsafeName.ReplaceAllString(report.RepoName, "_")
	name = strings.Trim(name, "._-")
	if name == "" {
		name = "audit"
	}
	if len(name) > 80 {
		name = name[:80]
	}
	if id := unsafeName.ReplaceAllString(report.RunID, ""); id != "" {
		if len(id) > 8 {
			id = id[:8]
		}
		name += "-" + id
	}
	return name
}
