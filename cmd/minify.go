package cmd

import (
	"fmt"

	rerrors "github.com/conneroisu/rminify/internal/errors"
	"github.com/conneroisu/rminify/internal/fsutil"
	"github.com/conneroisu/rminify/internal/minify"
	"github.com/spf13/cobra"
)

var minifyCmd = &cobra.Command{
	Use:   "minify FILE",
	Short: "Minify one file without touching the manifest",
	Long: `Run the minifier over FILE once. The result goes to stdout, or to the
file named by --output. JavaScript files go through esbuild and need --output.

Examples:
  rminify minify Views/Home/Index.edit.cshtml
  rminify minify Views/Home/Index.edit.cshtml -o Views/Home/Index.cshtml
  rminify minify wwwroot/js/site.js -o wwwroot/js/site.min.js`,
	Args: cobra.ExactArgs(1),
	RunE: runMinify,
}

var minifyOutput string

func init() {
	rootCmd.AddCommand(minifyCmd)

	minifyCmd.Flags().StringVarP(&minifyOutput, "output", "o", "", "write the result to this file instead of stdout")
	AddFlagValidation(minifyCmd.Flags(), "output", func(s string) error {
		if s == "" {
			return fmt.Errorf("output file cannot be empty")
		}
		return nil
	})
}

func runMinify(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	if err := ValidateFileExists(args[0]); err != nil {
		return err
	}

	proc := minify.NewProcessor(cfg.ProcessorOptions())

	if minifyOutput != "" {
		res, err := proc.Process(cmd.Context(), args[0], minifyOutput)
		if err != nil {
			return err
		}
		if !res.Success {
			return fmt.Errorf("minify reported problems: %s", res.Message)
		}
		return nil
	}

	if minify.KindOf(args[0]) == minify.KindJS {
		return fmt.Errorf("%s is minified by esbuild; pass --output", args[0])
	}

	content, err := fsutil.ReadText(args[0])
	if err != nil {
		return rerrors.ErrMinifyIO(args[0], err)
	}

	out, res := proc.MinifyText(content)
	fmt.Fprint(cmd.OutOrStdout(), out)
	if !res.Success {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", res.Message)
	}
	return nil
}
