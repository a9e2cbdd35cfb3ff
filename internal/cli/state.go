package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/auditor/internal/checkpoint"
	"github.com/ppiankov/auditor/internal/graph"
)

var (
	stateCriterion string
	stateFull      bool
	stateDir       string
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect saved run state",
}

var stateShowCmd = &cobra.Command{
	Use:   "show <file|run-id>",
	Short: "Print the evidence and opinions of a snapshot or state file",
	Long: `Show prints a saved run. The argument is either a JSON file written by
--state or --checkpoint-dir, or a run ID whose latest snapshot is read from
--dir (default: output.checkpoint_dir).

Example:
  auditor state show audit/state.json
  auditor state show 3f2a9c1d-... --dir .auditor/checkpoints --criterion safe_tool_engineering`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := resolveSnapshot(args[0])
		if err != nil {
			return err
		}
		checkpoint.Show(cmd.OutOrStdout(), snap, checkpoint.ShowOptions{Criterion: stateCriterion, Full: stateFull})
		return nil
	},
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs with checkpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := checkpointDir()
		if err != nil {
			return err
		}
		fs := checkpoint.NewFileStore(dir)
		runs, err := fs.Runs()
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintf(os.Stderr, "No checkpoints in %s\n", dir)
			return nil
		}
		for _, run := range runs {
			steps, _ := fs.Steps(run)
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d steps\n", run, len(steps))
		}
		return nil
	},
}

func resolveSnapshot(arg string) (*graph.Snapshot, error) {
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		return checkpoint.Load(arg)
	}
	dir, err := checkpointDir()
	if err != nil {
		return nil, err
	}
	return checkpoint.NewFileStore(dir).Latest(arg)
}

func checkpointDir() (string, error) {
	if stateDir != "" {
		return stateDir, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	if cfg.Output.CheckpointDir == "" {
		return "", fmt.Errorf("no checkpoint directory: pass --dir or set output.checkpoint_dir")
	}
	return cfg.Output.CheckpointDir, nil
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateListCmd)
	stateCmd.PersistentFlags().StringVar(&stateDir, "dir", "", "checkpoint directory")
	stateShowCmd.Flags().StringVar(&stateCriterion, "criterion", "", "only show opinions on this dimension")
	stateShowCmd.Flags().BoolVar(&stateFull, "full", false, "print evidence content instead of goals")
}
