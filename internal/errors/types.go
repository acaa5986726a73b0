// Package errors provides the structured error type shared by the manifest
// store, the sync engine and the minify pipeline.
//
// Errors carry a category (ErrorType) and a stable code so callers can branch
// on them with errors.Is / HasErrorCode without matching message text.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeSecurity   ErrorType = "security"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeManifest   ErrorType = "manifest"
	ErrorTypeSubprocess ErrorType = "subprocess"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeManifestMalformed = "ERR_MANIFEST_MALFORMED"
	ErrCodeManifestIO        = "ERR_MANIFEST_IO"
	ErrCodeOutputMissing     = "ERR_OUTPUT_MISSING"
	ErrCodePairExists        = "ERR_PAIR_EXISTS"
	ErrCodePairInvalid       = "ERR_PAIR_INVALID"
	ErrCodePairUnknown       = "ERR_PAIR_UNKNOWN"
	ErrCodeMinifyIO          = "ERR_MINIFY_IO"
	ErrCodeWatch             = "ERR_WATCH"
	ErrCodeSubprocess        = "ERR_SUBPROCESS"
	ErrCodePathTraversal     = "ERR_PATH_TRAVERSAL"
	ErrCodeConfigInvalid     = "ERR_CONFIG_INVALID"
	ErrCodeClosed            = "ERR_CLOSED"
)

// SyncError is a structured error type with context.
type SyncError struct {
	Type    ErrorType
	Code    string
	Message string
	Cause   error
	Path    string
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Path != "" {
		parts = append(parts, e.Path)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a SyncError with the same type and code.
func (e *SyncError) Is(target error) bool {
	var t *SyncError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *SyncError) WithContext(key string, value interface{}) *SyncError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithPath records the file the error is about.
func (e *SyncError) WithPath(path string) *SyncError {
	e.Path = path

	return e
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *SyncError {
	return &SyncError{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
	}
}

// NewSecurityError creates a security error.
func NewSecurityError(code, message string) *SyncError {
	return &SyncError{
		Type:    ErrorTypeSecurity,
		Code:    code,
		Message: message,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *SyncError {
	return &SyncError{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewManifestError creates a manifest error.
func NewManifestError(code, message string, cause error) *SyncError {
	return &SyncError{
		Type:    ErrorTypeManifest,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewSubprocessError creates an error for a failed external minifier run.
func NewSubprocessError(message string, cause error) *SyncError {
	return &SyncError{
		Type:    ErrorTypeSubprocess,
		Code:    ErrCodeSubprocess,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(message string) *SyncError {
	return &SyncError{
		Type:    ErrorTypeConfig,
		Code:    ErrCodeConfigInvalid,
		Message: message,
	}
}

// ErrManifestMalformed wraps a decode failure of the manifest at path.
func ErrManifestMalformed(path string, cause error) *SyncError {
	return NewManifestError(ErrCodeManifestMalformed, "manifest is malformed", cause).WithPath(path)
}

// ErrManifestIO wraps a read or write failure of the manifest at path.
func ErrManifestIO(path string, cause error) *SyncError {
	return NewManifestError(ErrCodeManifestIO, "manifest I/O failed", cause).WithPath(path)
}

// ErrOutputMissing reports a pair whose output file does not exist.
func ErrOutputMissing(path string) *SyncError {
	return NewValidationError(ErrCodeOutputMissing, "output file does not exist").WithPath(path)
}

// ErrPairExists reports an attempt to add a pair that is already active.
func ErrPairExists(editable, output string) *SyncError {
	return NewValidationError(ErrCodePairExists, "pair already exists").
		WithContext("editable", editable).
		WithContext("output", output)
}

// ErrPairInvalid reports a pair that cannot be resolved.
func ErrPairInvalid(message string) *SyncError {
	return NewValidationError(ErrCodePairInvalid, message)
}

// ErrPairUnknown reports a pair that is not declared in the manifest.
func ErrPairUnknown(pair string) *SyncError {
	return NewValidationError(ErrCodePairUnknown, "pair is not declared: "+pair)
}

// ErrPathTraversal reports a relative path that escapes the root directory.
func ErrPathTraversal(path string) *SyncError {
	return NewSecurityError(ErrCodePathTraversal, "path escapes root directory").WithPath(path)
}

// ErrMinifyIO wraps an I/O failure during a minify pass.
func ErrMinifyIO(path string, cause error) *SyncError {
	return NewIOError(ErrCodeMinifyIO, "minify I/O failed", cause).WithPath(path)
}

// ErrWatch wraps a failure to subscribe to changes of path.
func ErrWatch(path string, cause error) *SyncError {
	return NewIOError(ErrCodeWatch, "watch failed", cause).WithPath(path)
}

// ErrClosed reports use of a component after it was closed.
func ErrClosed(component string) *SyncError {
	return &SyncError{
		Type:    ErrorTypeInternal,
		Code:    ErrCodeClosed,
		Message: component + " is closed",
	}
}

// HasErrorCode reports whether any SyncError in err's tree has code. Joined
// errors are searched branch by branch.
func HasErrorCode(err error, code string) bool {
	switch e := err.(type) {
	case nil:
		return false
	case *SyncError:
		if e.Code == code {
			return true
		}
		return HasErrorCode(e.Cause, code)
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			if HasErrorCode(inner, code) {
				return true
			}
		}
		return false
	case interface{ Unwrap() error }:
		return HasErrorCode(e.Unwrap(), code)
	}

	return false
}

// IsManifestMalformed checks if an error is a manifest decode failure.
func IsManifestMalformed(err error) bool {
	return HasErrorCode(err, ErrCodeManifestMalformed)
}

// IsOutputMissing checks if an error reports a missing output file.
func IsOutputMissing(err error) bool {
	return HasErrorCode(err, ErrCodeOutputMissing)
}

// IsSecurityError checks if an error is security-related.
func IsSecurityError(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Type == ErrorTypeSecurity
	}

	return false
}
