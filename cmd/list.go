package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/conneroisu/rminify/internal/fsutil"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"l", "ls"},
	Short:   "List declared pairs",
	Long: `List every pair declared in the manifest with absolute paths.

Examples:
  rminify list              # Table
  rminify list -o json      # JSON, for editor integrations
  rminify list -o yaml`,
	Args: cobra.NoArgs,
	RunE: runList,
}

var listFormat = NewOutputFormat("table", "table", "json", "yaml")

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().VarP(listFormat, "output", "o", "output format (table|json|yaml)")
}

// pairListing is one row of the list output.
type pairListing struct {
	Edit       string `json:"edit" yaml:"edit"`
	Output     string `json:"output" yaml:"output"`
	EditPath   string `json:"edit_path,omitempty" yaml:"edit_path,omitempty"`
	OutputPath string `json:"output_path" yaml:"output_path"`
	EditExists bool   `json:"edit_exists" yaml:"edit_exists"`
}

func runList(cmd *cobra.Command, args []string) error {
	p, err := openProject(cmd)
	if err != nil {
		return err
	}
	defer p.store.Close()

	pairs := p.store.Pairs()
	rows := make([]pairListing, 0, len(pairs))
	for _, pair := range pairs {
		row := pairListing{Edit: pair.Edit, Output: pair.Output}
		if abs, err := pair.OutputAbs(p.root); err == nil {
			row.OutputPath = abs
		}
		if abs, err := pair.EditAbs(p.root); err == nil {
			row.EditPath = abs
			row.EditExists = fsutil.Exists(abs)
		}
		rows = append(rows, row)
	}

	out := cmd.OutOrStdout()
	switch listFormat.String() {
	case "json":
		return outputListJSON(out, rows)
	case "yaml":
		return outputListYAML(out, rows)
	default:
		return outputListTable(out, rows)
	}
}

func outputListJSON(w io.Writer, rows []pairListing) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rows)
}

func outputListYAML(w io.Writer, rows []pairListing) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(rows); err != nil {
		return err
	}
	return encoder.Close()
}

func outputListTable(w io.Writer, rows []pairListing) error {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No pairs declared.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "EDITABLE\tOUTPUT\tSTATUS")
	for _, row := range rows {
		edit, status := row.Edit, "ok"
		switch {
		case edit == "":
			edit, status = "-", "not derived"
		case !row.EditExists:
			status = "missing editable"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", edit, row.Output, status)
	}
	return tw.Flush()
}
