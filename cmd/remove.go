package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:     "remove PATH",
	Aliases: []string{"rm"},
	Short:   "Remove the pair that owns PATH",
	Long: `Remove the declared pair whose editable or output file is PATH from the
manifest. Neither file is deleted.

Examples:
  rminify remove Views/Home/Index.cshtml
  rminify remove Views/Home/Index.edit.cshtml`,
	Args: cobra.ExactArgs(1),
	RunE: runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	p, err := openProject(cmd)
	if err != nil {
		return err
	}

	eng := newEngine(p)
	defer eng.Close()

	target := filepath.FromSlash(args[0])
	if !filepath.IsAbs(target) {
		target = filepath.Join(p.root, target)
	}

	pair, ok := eng.PairFor(target)
	if !ok {
		return fmt.Errorf("no pair declared for %s", args[0])
	}

	if err := eng.RemovePair(cmd.Context(), pair); err != nil {
		return fmt.Errorf("failed to remove pair: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "🗑️  Removed %s\n", pair)
	return nil
}
