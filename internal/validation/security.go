// Package validation provides the checks that keep manifest paths inside the
// project root and keep subprocess invocations free of shell metacharacters.
package validation

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	rerrors "github.com/conneroisu/rminify/internal/errors"
)

var dangerousChars = []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

// ValidateArgument validates a command line argument to prevent injection attacks
func ValidateArgument(arg string) error {
	for _, char := range dangerousChars {
		if strings.Contains(arg, char) {
			return fmt.Errorf("contains dangerous character: %s", char)
		}
	}

	if strings.Contains(arg, "..") {
		return fmt.Errorf("contains path traversal: %s", arg)
	}

	return nil
}

// ValidateExecutable validates the path of an external tool. Absolute paths
// are allowed; shell metacharacters are not.
func ValidateExecutable(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("executable cannot be empty")
	}

	for _, char := range dangerousChars {
		if strings.Contains(path, char) {
			return fmt.Errorf("executable %q contains dangerous character: %s", path, char)
		}
	}

	return nil
}

// ValidateRelativePath checks that rel is a non-empty path that stays inside
// whatever directory it is joined to.
func ValidateRelativePath(rel string) error {
	if strings.TrimSpace(rel) == "" {
		return rerrors.ErrPairInvalid("path cannot be empty")
	}

	native := filepath.FromSlash(rel)
	if filepath.IsAbs(native) || !filepath.IsLocal(native) {
		return rerrors.ErrPathTraversal(rel)
	}

	return nil
}

// ResolveUnderRoot joins rel onto root after validating it.
func ResolveUnderRoot(root, rel string) (string, error) {
	if err := ValidateRelativePath(rel); err != nil {
		return "", err
	}

	return filepath.Join(root, filepath.FromSlash(rel)), nil
}

// RelativeTo expresses abs relative to root in slash form. It fails when abs
// is not inside root.
func RelativeTo(root, abs string) (string, error) {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", err
	}

	rel = filepath.ToSlash(rel)
	if err := ValidateRelativePath(rel); err != nil {
		return "", err
	}

	return rel, nil
}

// ValidateOrigin validates WebSocket origin for CSRF protection
func ValidateOrigin(origin string, allowedOrigins []string) error {
	if origin == "" {
		return fmt.Errorf("origin header is required")
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin format: %w", err)
	}

	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return fmt.Errorf("invalid origin scheme '%s': only http and https are allowed", originURL.Scheme)
	}

	for _, allowed := range allowedOrigins {
		if origin == allowed || originURL.Host == allowed {
			return nil
		}
	}

	return fmt.Errorf("origin '%s' is not in allowed origins list", origin)
}

// SanitizeInput strips terminal escape sequences and control characters
// other than common whitespace, e.g. from subprocess stderr.
func SanitizeInput(input string) string {
	input = ansiRegex.ReplaceAllString(input, "")

	var sanitized strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' || r == '\r' {
			sanitized.WriteRune(r)
		}
	}

	return sanitized.String()
}
