package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/conneroisu/rminify/internal/version"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	versionFormat   = NewOutputFormat("text", "text", "json", "yaml")
	versionShort    bool
	versionDetailed bool
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display version information for rminify including the semantic version,
git commit, build timestamp, Go version and target platform.

Examples:
  rminify version               # Show version
  rminify version --short       # Version only
  rminify version --format json # Output as JSON`,
	Args: cobra.NoArgs,
	RunE: runVersionCommand,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().VarP(versionFormat, "format", "f", "output format (text|json|yaml)")
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "show short version only")
	versionCmd.Flags().BoolVar(&versionDetailed, "detailed", false, "show detailed version information")
}

func runVersionCommand(cmd *cobra.Command, args []string) error {
	info := version.GetBuildInfo()
	out := cmd.OutOrStdout()

	switch versionFormat.String() {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(info)
	case "yaml":
		return yaml.NewEncoder(out).Encode(info)
	}

	switch {
	case versionShort:
		fmt.Fprintln(out, info.Short())
	case versionDetailed:
		outputVersionDetailed(out, info)
	default:
		fmt.Fprintf(out, "%s %s\n", version.Name, info.Short())
	}
	return nil
}

func outputVersionDetailed(w io.Writer, info *version.BuildInfo) {
	fmt.Fprintln(w, info.Detailed())

	if info.IsRelease() {
		fmt.Fprintln(w, "Build type: release")
	} else {
		fmt.Fprintln(w, "Build type: development")
	}
}
