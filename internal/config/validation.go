package config

import (
	"fmt"
	"strings"

	rerrors "github.com/conneroisu/rminify/internal/errors"
	"github.com/conneroisu/rminify/internal/logging"
	"github.com/conneroisu/rminify/internal/validation"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	if len(vr.Errors) > 0 {
		builder.WriteString("❌ Validation Errors:\n")
		for _, err := range vr.Errors {
			builder.WriteString(fmt.Sprintf("  • %s: %s\n", err.Field, err.Message))
			for _, suggestion := range err.Suggestions {
				builder.WriteString(fmt.Sprintf("    💡 %s\n", suggestion))
			}
		}
		builder.WriteString("\n")
	}

	if len(vr.Warnings) > 0 {
		builder.WriteString("⚠️  Validation Warnings:\n")
		for _, warning := range vr.Warnings {
			builder.WriteString(fmt.Sprintf("  • %s: %s\n", warning.Field, warning.Message))
			for _, suggestion := range warning.Suggestions {
				builder.WriteString(fmt.Sprintf("    💡 %s\n", suggestion))
			}
		}
	}

	return builder.String()
}

func (vr *ValidationResult) addError(field string, value interface{}, msg string, suggestions ...string) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, ValidationError{
		Field:       field,
		Value:       value,
		Message:     msg,
		Suggestions: suggestions,
	})
}

func (vr *ValidationResult) addWarning(field string, value interface{}, msg string, suggestions ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{
		Field:       field,
		Value:       value,
		Message:     msg,
		Suggestions: suggestions,
	})
}

// ValidateConfigWithDetails performs comprehensive validation with detailed feedback
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{
		Valid:    true,
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	validateManifestConfig(&config.Manifest, result)
	validateEditConfig(&config.Edit, result)
	validateEsbuildConfig(&config.Esbuild, result)
	validateLogConfig(&config.Log, result)

	if config.Notify.Listen == "" && len(config.Notify.AllowedOrigins) > 0 {
		result.addWarning("notify.allowed_origins", config.Notify.AllowedOrigins,
			"allowed origins have no effect while notify.listen is empty",
			"Set notify.listen, e.g. localhost:7071")
	}

	return result
}

// validateConfig returns the first validation error as a config error
func validateConfig(config *Config) error {
	result := ValidateConfigWithDetails(config)
	if !result.HasErrors() {
		return nil
	}

	first := result.Errors[0]
	return rerrors.NewConfigError(first.Error()).WithContext("field", first.Field)
}

func validateManifestConfig(config *ManifestConfig, result *ValidationResult) {
	name := strings.TrimSpace(config.Name)
	if name == "" {
		result.addError("manifest.name", config.Name, "manifest name cannot be empty",
			"Use the default name rminify.json")
	} else if err := validation.ValidateRelativePath(name); err != nil {
		result.addError("manifest.name", config.Name, err.Error(),
			"Use a path relative to the project root")
	}

	if config.ReloadDelay < 0 {
		result.addError("manifest.reload_delay", config.ReloadDelay, "reload delay cannot be negative",
			"Use 0 to reload immediately")
	}
}

func validateEditConfig(config *EditConfig, result *ValidationResult) {
	suffix := config.Suffix
	switch {
	case !strings.HasPrefix(suffix, "."):
		result.addError("edit.suffix", suffix, "suffix must start with a dot",
			fmt.Sprintf("Did you mean .%s?", strings.TrimLeft(suffix, ".")))
	case len(suffix) == 1:
		result.addError("edit.suffix", suffix, "suffix needs at least one character after the dot")
	case strings.ContainsAny(suffix, `/\`):
		result.addError("edit.suffix", suffix, "suffix cannot contain path separators")
	}
}

func validateEsbuildConfig(config *EsbuildConfig, result *ValidationResult) {
	if err := validation.ValidateExecutable(config.Path); err != nil {
		result.addError("esbuild.path", config.Path, err.Error(),
			"Point esbuild.path at the esbuild binary")
	}

	if config.Timeout < 0 {
		result.addError("esbuild.timeout", config.Timeout, "timeout cannot be negative",
			"Use 0 to disable the timeout")
	}

	if !config.MinifyWhitespace && !config.MinifyIdentifiers && !config.MinifySyntax {
		result.addWarning("esbuild", nil, "every esbuild minify pass is disabled",
			"Enable at least esbuild.minify_whitespace")
	}
}

func validateLogConfig(config *LogConfig, result *ValidationResult) {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		result.addError("log.level", config.Level, err.Error(),
			"Use one of debug, info, warn, error")
	}

	switch config.Format {
	case "text", "json":
	default:
		result.addError("log.format", config.Format, "log format must be text or json")
	}
}
