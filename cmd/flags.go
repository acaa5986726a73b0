package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/conneroisu/rminify/internal/config"
	"github.com/conneroisu/rminify/internal/logging"
	"github.com/conneroisu/rminify/internal/manifest"
	"github.com/conneroisu/rminify/internal/validation"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// OutputFormat is a pflag.Value that only accepts the formats it was built with.
type OutputFormat struct {
	value   string
	allowed []string
}

// NewOutputFormat returns an OutputFormat holding def.
func NewOutputFormat(def string, allowed ...string) *OutputFormat {
	return &OutputFormat{value: def, allowed: allowed}
}

func (f *OutputFormat) String() string { return f.value }

// Set validates and stores a format name; case does not matter.
func (f *OutputFormat) Set(s string) error {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, a := range f.allowed {
		if s == a {
			f.value = s
			return nil
		}
	}
	return fmt.Errorf("invalid output format %q, must be one of: %s", s, strings.Join(f.allowed, ", "))
}

// Type is shown in usage text.
func (f *OutputFormat) Type() string { return "format" }

// AddFlagValidation adds validation for a specific flag
func AddFlagValidation(flags *pflag.FlagSet, flagName string, validator func(string) error) {
	flag := flags.Lookup(flagName)
	if flag == nil {
		return
	}

	flag.Value = &validatingValue{
		Value:     flag.Value,
		validator: validator,
	}
}

type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}
	return v.Value.Set(val)
}

// ValidateDirExists checks that dir names an existing directory.
func ValidateDirExists(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("directory does not exist: %s", dir)
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", dir)
	}
	return nil
}

// ValidateFileExists checks that filename names an existing file.
func ValidateFileExists(filename string) error {
	if filename == "" {
		return nil // Empty is valid for optional files
	}

	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", filename)
	}

	return nil
}

// project bundles what every manifest command needs.
type project struct {
	cfg    *config.Config
	logger logging.Logger
	root   string
	store  *manifest.Store
}

func loadSettings(cmd *cobra.Command) (*config.Config, logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	lc, err := cfg.LoggerConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	lc.Output = cmd.ErrOrStderr()

	return cfg, logging.NewLogger(lc), nil
}

// openProject loads settings and opens the manifest store.
func openProject(cmd *cobra.Command) (*project, error) {
	cfg, logger, err := loadSettings(cmd)
	if err != nil {
		return nil, err
	}

	root, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, err
	}

	path := manifestFile
	if path == "" {
		path = filepath.Join(root, filepath.FromSlash(cfg.Manifest.Name))
	}

	store, err := manifest.Open(path, root,
		manifest.WithLogger(logger),
		manifest.WithReloadDelay(cfg.Manifest.ReloadDelay))
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}

	return &project{cfg: cfg, logger: logger, root: root, store: store}, nil
}

// rootRelative turns a command-line path into a manifest path. Relative
// arguments are taken relative to the project root.
func rootRelative(root, arg string) (string, error) {
	if arg == "" {
		return "", nil
	}
	native := filepath.FromSlash(arg)
	if !filepath.IsAbs(native) {
		rel := filepath.ToSlash(filepath.Clean(native))
		if err := validation.ValidateRelativePath(rel); err != nil {
			return "", err
		}
		return rel, nil
	}
	return validation.RelativeTo(root, native)
}
