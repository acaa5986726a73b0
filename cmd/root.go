// Package cmd provides the command-line interface for rminify with
// configuration management supporting multiple configuration sources.
//
// Configuration System:
//
//	The CLI supports flexible configuration through multiple sources with clear precedence:
//	1. Command-line flags (--config, --log-level, etc.) - highest priority
//	2. RMINIFY_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (RMINIFY_EDIT_SUFFIX, etc.)
//	4. Configuration files (.rminify.yml) - lowest priority
//
// Environment Variables:
//
//	RMINIFY_CONFIG_FILE: Path to custom configuration file
//	RMINIFY_MANIFEST_NAME: Manifest file name inside the project root
//	RMINIFY_RAZOR_INLINE_STYLES: Enable the stylesheet inliner
//	RMINIFY_NOTIFY_LISTEN: Address of the websocket notification hub
//	And more following the RMINIFY_<SECTION>_<OPTION> pattern
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/conneroisu/rminify/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile      string
	rootDir      string
	manifestFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rminify",
	Short: "Keep hand-edited Razor views and their minified copies in sync",
	Long: `rminify keeps a hand-edited copy of every Razor view (and JavaScript file)
next to the minified file the web server actually publishes.

Pairs are declared in a manifest (rminify.json). While "rminify watch" runs,
every save of an editable file is minified into its paired output, and edits
to the manifest take effect without a restart.

Quick Start:
  rminify add Views/Home/Index.cshtml   Declare a pair (creates Index.edit.cshtml)
  rminify watch                         Keep every pair in sync
  rminify list                          Show declared pairs
  rminify minify Views/a.cshtml         Print the minified form of a file`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext is Execute with a context that long-running commands stop on.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .rminify.yml, can also use RMINIFY_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "root", "r", ".", "project root the manifest paths are relative to")
	rootCmd.PersistentFlags().StringVarP(&manifestFile, "manifest", "m", "", "manifest file (default is <root>/<manifest.name>)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")

	AddFlagValidation(rootCmd.PersistentFlags(), "root", ValidateDirExists)
}

// initConfig initializes the configuration system with support for multiple config sources.
//
// Configuration Loading Priority (highest to lowest):
//  1. --config flag: Explicitly specified config file path
//  2. RMINIFY_CONFIG_FILE environment variable: Custom config file path
//  3. Default: .rminify.yml in current directory
//
// The function also enables automatic environment variable binding for all
// configuration values with the RMINIFY_ prefix (e.g., RMINIFY_EDIT_SUFFIX=.src).
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("RMINIFY_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(config.FileName)
	}

	config.BindEnv(viper.GetViper())

	// The flag only wins when it was given on the command line.
	if flag := rootCmd.PersistentFlags().Lookup("log-level"); flag != nil && flag.Changed {
		viper.Set("log.level", flag.Value.String())
	}

	// A missing config file is fine; defaults and env still apply.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
