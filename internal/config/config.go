// Package config provides configuration management for rminify using Viper
// for flexible configuration loading from files, environment variables, and
// command-line flags.
//
// The configuration system supports YAML files (.rminify.yml), environment
// variable overrides with the RMINIFY_ prefix and validation. It manages the
// manifest location and reload behavior, how editable paths are derived, the
// Razor and esbuild pipelines, the notification hub and logging.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/conneroisu/rminify/internal/logging"
	"github.com/conneroisu/rminify/internal/manifest"
	"github.com/conneroisu/rminify/internal/minify"
	"github.com/spf13/viper"
)

const (
	// FileName is the settings file looked up in the working directory.
	FileName = ".rminify"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "RMINIFY"
)

type Config struct {
	Manifest ManifestConfig `mapstructure:"manifest" yaml:"manifest"`
	Edit     EditConfig     `mapstructure:"edit" yaml:"edit"`
	Razor    RazorConfig    `mapstructure:"razor" yaml:"razor"`
	Esbuild  EsbuildConfig  `mapstructure:"esbuild" yaml:"esbuild"`
	Notify   NotifyConfig   `mapstructure:"notify" yaml:"notify"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

type ManifestConfig struct {
	Name        string        `mapstructure:"name" yaml:"name"`
	ReloadDelay time.Duration `mapstructure:"reload_delay" yaml:"reload_delay"`
}

type EditConfig struct {
	Suffix string `mapstructure:"suffix" yaml:"suffix"`
}

type RazorConfig struct {
	InlineStyles bool `mapstructure:"inline_styles" yaml:"inline_styles"`
}

type EsbuildConfig struct {
	Path              string        `mapstructure:"path" yaml:"path"`
	MinifyWhitespace  bool          `mapstructure:"minify_whitespace" yaml:"minify_whitespace"`
	MinifyIdentifiers bool          `mapstructure:"minify_identifiers" yaml:"minify_identifiers"`
	MinifySyntax      bool          `mapstructure:"minify_syntax" yaml:"minify_syntax"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type NotifyConfig struct {
	Listen         string   `mapstructure:"listen" yaml:"listen"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("manifest.name", manifest.DefaultName)
	v.SetDefault("manifest.reload_delay", manifest.DefaultReloadDelay)
	v.SetDefault("edit.suffix", manifest.DefaultEditSuffix)
	v.SetDefault("razor.inline_styles", false)
	v.SetDefault("esbuild.path", "esbuild")
	v.SetDefault("esbuild.minify_whitespace", true)
	v.SetDefault("esbuild.minify_identifiers", true)
	v.SetDefault("esbuild.minify_syntax", true)
	v.SetDefault("esbuild.timeout", 30*time.Second)
	v.SetDefault("notify.listen", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// BindEnv makes every key overridable through RMINIFY_<SECTION>_<KEY>.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v. Defaults are
// applied for every key v does not set.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Handle allowed origins given as a comma separated env value
	if len(config.Notify.AllowedOrigins) == 1 && strings.Contains(config.Notify.AllowedOrigins[0], ",") {
		config.Notify.AllowedOrigins = strings.Split(config.Notify.AllowedOrigins[0], ",")
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// JSOptions returns the esbuild passes enabled by the configuration.
func (c *Config) JSOptions() minify.JSOptions {
	var opts minify.JSOptions
	if c.Esbuild.MinifyWhitespace {
		opts |= minify.RemoveWhitespace
	}
	if c.Esbuild.MinifyIdentifiers {
		opts |= minify.ShortenIdentifiers
	}
	if c.Esbuild.MinifySyntax {
		opts |= minify.ShortenSyntax
	}
	return opts
}

// ProcessorOptions builds the minify options the configuration describes.
func (c *Config) ProcessorOptions() minify.Options {
	esbuild := minify.NewEsbuild(c.Esbuild.Path)
	esbuild.Options = c.JSOptions()
	esbuild.Timeout = c.Esbuild.Timeout

	return minify.Options{
		InlineStyles: c.Razor.InlineStyles,
		Esbuild:      esbuild,
	}
}

// LoggerConfig builds the logger settings the configuration describes.
func (c *Config) LoggerConfig() (*logging.LoggerConfig, error) {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}

	lc := logging.DefaultConfig()
	lc.Level = level
	lc.Format = c.Log.Format
	return lc, nil
}
