package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rmitchellscott/inkprep/internal/display"
	"github.com/rmitchellscott/inkprep/internal/imageprocessing"
)

var displaysOutput string

var displaysCmd = &cobra.Command{
	Use:   "displays",
	Short: "List supported displays and their palettes",
	Args:  cobra.NoArgs,
	RunE:  runDisplays,
}

func init() {
	rootCmd.AddCommand(displaysCmd)
	displaysCmd.Flags().StringVarP(&displaysOutput, "output", "o", "table", "Output format: table, yaml or json")
}

func runDisplays(cmd *cobra.Command, args []string) error {
	all := display.DescribeAll()
	out := cmd.OutOrStdout()

	switch displaysOutput {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(all)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(all)
	case "table":
	default:
		return fmt.Errorf("unknown output format %q", displaysOutput)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSIZE\tPALETTES")
	for _, d := range all {
		names := make([]string, 0, len(d.Palettes))
		for _, p := range d.Palettes {
			names = append(names, string(p.Name))
		}
		fmt.Fprintf(w, "%s\t%s\t%dx%d\t%s\n", d.ID, d.Name, d.Width, d.Height, strings.Join(names, ", "))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	methods := imageprocessing.Methods()
	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = string(m)
	}
	fmt.Fprintf(out, "\nDither methods: %s\n", strings.Join(names, ", "))
	return nil
}
