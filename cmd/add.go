package cmd

import (
	"fmt"

	"github.com/conneroisu/rminify/internal/manifest"
	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:     "add OUTPUT",
	Aliases: []string{"a"},
	Short:   "Declare a new editable/output pair",
	Long: `Declare OUTPUT as a minified file with a hand-edited source. When --edit is
not given the editable path is derived from OUTPUT (Index.cshtml becomes
Index.edit.cshtml). A missing editable file is seeded with the current
content of OUTPUT, which is then minified. The pair is recorded in the
manifest, so a running "rminify watch" picks it up.

A JavaScript source given without --edit is declared the other way round:
site.js is the editable file and site.min.js the output, minified with
every esbuild pass unless a --minify-* flag says otherwise. A missing
site.min.js is produced on the spot.

The --inline-styles and --minify-* flags record settings for this pair
only; pairs without them follow the configuration.

Examples:
  rminify add Views/Home/Index.cshtml
  rminify add Views/Shared/_Email.cshtml --inline-styles
  rminify add wwwroot/js/site.js
  rminify add wwwroot/js/site.min.js --edit wwwroot/js/site.js --minify-identifiers=false`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

var addEdit string

// addOptionFlags maps each per-pair flag to the option it records.
var addOptionFlags = []struct {
	name  string
	usage string
	field func(*manifest.PairOptions) **bool
}{
	{"inline-styles", "inline <style> rules into this pair's elements",
		func(o *manifest.PairOptions) **bool { return &o.InlineStyles }},
	{"minify-whitespace", "esbuild whitespace pass for this pair",
		func(o *manifest.PairOptions) **bool { return &o.RemoveWhitespace }},
	{"minify-identifiers", "esbuild identifier pass for this pair",
		func(o *manifest.PairOptions) **bool { return &o.ShortenIdentifiers }},
	{"minify-syntax", "esbuild syntax pass for this pair",
		func(o *manifest.PairOptions) **bool { return &o.ShortenSyntax }},
}

func init() {
	rootCmd.AddCommand(addCmd)

	addCmd.Flags().StringVarP(&addEdit, "edit", "e", "", "editable file (default derived from OUTPUT)")
	for _, f := range addOptionFlags {
		addCmd.Flags().Bool(f.name, false, f.usage)
	}
}

// pairOptions collects the option flags given on the command line.
func pairOptions(cmd *cobra.Command) (manifest.PairOptions, error) {
	var opts manifest.PairOptions
	for _, f := range addOptionFlags {
		if !cmd.Flags().Changed(f.name) {
			continue
		}
		on, err := cmd.Flags().GetBool(f.name)
		if err != nil {
			return opts, err
		}
		*f.field(&opts) = manifest.Bool(on)
	}
	return opts, nil
}

func runAdd(cmd *cobra.Command, args []string) error {
	p, err := openProject(cmd)
	if err != nil {
		return err
	}

	eng := newEngine(p)
	defer eng.Close()

	output, err := rootRelative(p.root, args[0])
	if err != nil {
		return fmt.Errorf("invalid output path: %w", err)
	}
	edit, err := rootRelative(p.root, addEdit)
	if err != nil {
		return fmt.Errorf("invalid editable path: %w", err)
	}
	opts, err := pairOptions(cmd)
	if err != nil {
		return err
	}

	if edit == "" && manifest.IsScript(output) && !manifest.IsScriptOutput(output) {
		pair, added, err := eng.AddScript(cmd.Context(), output, opts)
		if err != nil {
			return fmt.Errorf("failed to add script: %w", err)
		}
		if !added {
			fmt.Fprintf(cmd.OutOrStdout(), "Pair for %s is already declared\n", pair.Output)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Added %s\n", pair)
		return nil
	}

	added, err := eng.AddPairWithOptions(cmd.Context(), edit, output, opts)
	if err != nil {
		return fmt.Errorf("failed to add pair: %w", err)
	}
	if !added {
		fmt.Fprintf(cmd.OutOrStdout(), "Pair for %s is already declared\n", output)
		return nil
	}

	for _, pair := range p.store.Pairs() {
		if pair.Output == output {
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Added %s\n", pair)
		}
	}
	return nil
}
