package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/auditor/internal/logging"
	"github.com/ppiankov/auditor/internal/model"
	"github.com/ppiankov/auditor/internal/pipeline"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the audit graph as a Mermaid diagram",
	Long: `Graph prints the stages of an audit and the edges between them as a
Mermaid flowchart. The conditional edge leaving the evidence aggregator is
labelled with its route.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := model.DefaultConfig()
		cfg.Cache.Enabled = false
		opts := pipeline.FromConfig(cfg, logging.Discard())
		p, err := pipeline.New(opts)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), p.Graph().Mermaid())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
