package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/auditor/internal/model"
	"github.com/ppiankov/auditor/internal/report"
	"github.com/ppiankov/auditor/internal/worker"
)

var (
	concurrency  int
	batchTimeout time.Duration
	perTimeout   time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Audit many repositories from a file in parallel",
	Long: `Batch audits every target listed in a file, one per line:

  <repo> [report]

Blank lines and lines starting with # are ignored. Each audit runs the full
graph and writes its own JSON and Markdown report to the output directory.

Example:
  auditor batch targets.txt
  auditor batch targets.txt --concurrency 4 --out ./audits
  auditor batch targets.txt --timeout 2h --audit-timeout 20m`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of concurrent audits (default: concurrency.batch_workers)")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 2*time.Hour, "total timeout for the batch")
	batchCmd.Flags().DurationVar(&perTimeout, "audit-timeout", 15*time.Minute, "timeout for each audit")
	addRunFlags(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)
	if concurrency > 0 {
		cfg.Concurrency.BatchWorkers = concurrency
	}
	workers := cfg.Concurrency.BatchWorkers
	if workers <= 0 {
		workers = 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, batchTimeout)
	defer cancel()

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Auditor Batch\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", workers)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", cfg.Output.Dir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v (per audit %v)\n", batchTimeout, perTimeout)
	fmt.Fprintf(os.Stderr, "\n")

	writer := report.NewFileWriter(cfg.Output.Dir, os.Stderr, false)
	p, err := newPipeline(cfg, writer)
	if err != nil {
		return err
	}
	auditor := worker.AuditorFunc(func(ctx context.Context, repoURL, docPath string) (*model.AuditReport, error) {
		res, err := p.Audit(ctx, repoURL, docPath)
		if err != nil {
			return nil, err
		}
		return res.Report, nil
	})

	processor := worker.NewBatchProcessor(auditor, workers, perTimeout)
	results, err := processor.ProcessFile(ctx, file)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	successCount := 0
	failureCount := 0
	for _, result := range results {
		if result.Error != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.Target, result.Error)
			continue
		}
		successCount++

		r := result.Report
		if r.Skipped {
			fmt.Fprintf(os.Stderr, "✓ %s (skipped: no evidence, %s)\n", result.Target, result.Duration.Round(time.Second))
			continue
		}
		passed, failed, _ := r.Tally()
		fmt.Fprintf(os.Stderr, "✓ %s (score: %.2f/5, %d passed, %d failed, %s)\n",
			result.Target, r.OverallScore, passed, failed, result.Duration.Round(time.Second))
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d targets\n", len(results))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", successCount)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failureCount)
	fmt.Fprintf(os.Stderr, "  Output:    %s\n", cfg.Output.Dir)
	fmt.Fprintf(os.Stderr, "\n")

	if failureCount > 0 && successCount == 0 {
		return fmt.Errorf("all %d audits failed", failureCount)
	}
	return nil
}
