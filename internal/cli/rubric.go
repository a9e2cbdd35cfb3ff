package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/auditor/internal/model"
	"github.com/ppiankov/auditor/internal/rubric"
)

var rubricCmd = &cobra.Command{
	Use:   "rubric",
	Short: "Inspect and validate rubric documents",
}

var rubricValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check that a rubric parses and every dimension is complete",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := rubric.Load(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✓ %s: %d dimensions", args[0], len(r.Dimensions))
		if r.Version != "" {
			fmt.Fprintf(out, " (version %s)", r.Version)
		}
		fmt.Fprintln(out)
		printDimensions(cmd, r)
		return nil
	},
}

var rubricShowDefault bool

var rubricShowCmd = &cobra.Command{
	Use:   "show [file]",
	Short: "Print a rubric in canonical form (the embedded default without a file)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if rubricShowDefault {
			_, err := cmd.OutOrStdout().Write(rubric.DefaultBytes())
			return err
		}
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		r, err := rubric.Load(path)
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal rubric: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func printDimensions(cmd *cobra.Command, r *model.Rubric) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tWEIGHT\tSECURITY\tTECHLEAD HEAVY")
	for _, d := range r.Dimensions {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%t\t%t\n", d.ID, d.Name, d.Weight, d.Security, d.TechLeadWeighsHeaviest())
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

func init() {
	rootCmd.AddCommand(rubricCmd)
	rubricCmd.AddCommand(rubricValidateCmd)
	rubricCmd.AddCommand(rubricShowCmd)
	rubricShowCmd.Flags().BoolVar(&rubricShowDefault, "default", false, "print the embedded default document verbatim")
}
