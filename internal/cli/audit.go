package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/auditor/internal/checkpoint"
	"github.com/ppiankov/auditor/internal/logging"
	"github.com/ppiankov/auditor/internal/model"
	"github.com/ppiankov/auditor/internal/pipeline"
	"github.com/ppiankov/auditor/internal/report"
)

var (
	docPath       string
	auditTimeout  time.Duration
	statePath     string
	providerName  string
	providerModel string
	printJSON     bool
)

// auditCmd represents the audit command
var auditCmd = &cobra.Command{
	Use:   "audit <repo> [--doc report.md]",
	Short: "Audit one repository and its report",
	Long: `Audit clones the repository (or reads a local working tree), collects
evidence, has three judges score every rubric dimension and writes the
Chief Justice's verdict as JSON and Markdown.

Example:
  auditor audit https://github.com/acme/agents.git --doc reports/final.md
  auditor audit ./agents --doc https://example.com/report.html --out ./audits
  auditor audit git@github.com:acme/agents.git --provider ollama --model llama3.1:8b`,
	Args: cobra.ExactArgs(1),
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().StringVar(&docPath, "doc", "", "report document: local path or URL (Markdown, HTML or text)")
	auditCmd.Flags().DurationVar(&auditTimeout, "timeout", 15*time.Minute, "overall audit timeout")
	auditCmd.Flags().StringVar(&statePath, "state", "", "write the final graph state as JSON to this path")
	auditCmd.Flags().BoolVar(&printJSON, "json", false, "print the report JSON to stdout instead of the summary")
	addRunFlags(auditCmd)
}

// addRunFlags registers the flags shared by audit and batch
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("out", "", "output directory for reports")
	cmd.Flags().String("rubric", "", "rubric file (YAML or JSON); default is the embedded rubric")
	cmd.Flags().String("checkpoint-dir", "", "write a snapshot after every graph step to this directory")
	cmd.Flags().Bool("no-cache", false, "disable the LLM response cache")
	cmd.Flags().Bool("narrative", false, "add an LLM-written narrative beside the report")
	cmd.Flags().Bool("keep-clone", false, "keep the cloned repository on disk")
	cmd.Flags().Int("workers", 0, "max concurrent stages per graph step (0 = unbounded)")
	cmd.Flags().StringVar(&providerName, "provider", "", "use only this LLM provider (openai, anthropic, ollama)")
	cmd.Flags().StringVar(&providerModel, "model", "", "model for --provider")
}

// applyRunFlags overlays explicitly set flags onto cfg
func applyRunFlags(cmd *cobra.Command, cfg *model.Config) {
	flags := cmd.Flags()
	if flags.Changed("out") {
		cfg.Output.Dir, _ = flags.GetString("out")
	}
	if flags.Changed("rubric") {
		cfg.Rubric.Path, _ = flags.GetString("rubric")
	}
	if flags.Changed("checkpoint-dir") {
		cfg.Output.CheckpointDir, _ = flags.GetString("checkpoint-dir")
	}
	if noCache, _ := flags.GetBool("no-cache"); noCache {
		cfg.Cache.Enabled = false
	}
	if narrative, _ := flags.GetBool("narrative"); narrative {
		cfg.LLM.Narrative = true
	}
	if keep, _ := flags.GetBool("keep-clone"); keep {
		cfg.Repo.KeepClone = true
	}
	if flags.Changed("workers") {
		cfg.Concurrency.MaxParallelStages, _ = flags.GetInt("workers")
	}
	if providerName != "" {
		cfg.LLM.Providers = []model.ProviderConfig{{Name: providerName, Model: providerModel}}
	}
	cfg.Output.Verbose = cfg.Output.Verbose || verbose
}

// newPipeline builds a pipeline writing reports through w
func newPipeline(cfg *model.Config, w pipeline.ReportWriter) (*pipeline.Pipeline, error) {
	opts := pipeline.FromConfig(cfg, logging.New("pipeline"))
	opts.Writer = w
	if cfg.Output.CheckpointDir != "" {
		opts.Checkpointer = checkpoint.NewFileStore(cfg.Output.CheckpointDir)
	}
	return pipeline.New(opts)
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, auditTimeout)
	defer cancel()

	writer := report.NewFileWriter(cfg.Output.Dir, cmd.OutOrStdout(), !printJSON)
	p, err := newPipeline(cfg, writer)
	if err != nil {
		return err
	}

	if cfg.Output.Verbose {
		fmt.Fprintf(os.Stderr, "Auditing: %s\n", args[0])
		if docPath != "" {
			fmt.Fprintf(os.Stderr, "Report:   %s\n", docPath)
		}
		fmt.Fprintf(os.Stderr, "Output:   %s\n", cfg.Output.Dir)
		fmt.Fprintf(os.Stderr, "Timeout:  %v\n\n", auditTimeout)
	}

	res, err := p.Audit(ctx, args[0], docPath)
	if statePath != "" && res != nil && res.State != nil {
		if werr := writeState(statePath, res); werr != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", werr)
		}
	}
	if err != nil {
		return fmt.Errorf("audit failed: %w", err)
	}

	asJSON := printJSON
	if !asJSON && writeFailed(res.Report) {
		// nothing reached disk; keep the report on stdout
		asJSON = true
	}
	if asJSON {
		data, err := report.NewRenderer(nil).JSON(res.Report)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}

	for _, out := range writer.Written() {
		fmt.Fprintf(os.Stderr, "✓ Wrote JSON: %s\n", out.JSON)
		fmt.Fprintf(os.Stderr, "✓ Wrote Markdown: %s\n", out.Markdown)
		if out.LLM != "" {
			fmt.Fprintf(os.Stderr, "✓ Wrote LLM Summary: %s\n", out.LLM)
		}
	}
	return nil
}

// writeFailed prints report_writer warnings and reports whether there were any
func writeFailed(r *model.AuditReport) bool {
	failed := false
	for _, w := range r.Warnings {
		if strings.HasPrefix(w, pipeline.NodeReportWriter+":") {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
			failed = true
		}
	}
	return failed
}

func writeState(path string, res *pipeline.Result) error {
	data, err := json.MarshalIndent(res.State, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}
