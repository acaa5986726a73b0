package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncErrorError(t *testing.T) {
	tests := []struct {
		name     string
		err      *SyncError
		expected string
	}{
		{
			name:     "code and message",
			err:      ErrPairInvalid("output path is required"),
			expected: "[ERR_PAIR_INVALID] output path is required",
		},
		{
			name:     "with path",
			err:      ErrOutputMissing("/srv/site/a.cshtml"),
			expected: "[ERR_OUTPUT_MISSING] /srv/site/a.cshtml output file does not exist",
		},
		{
			name:     "with cause",
			err:      ErrManifestIO("rminify.json", fs.ErrPermission),
			expected: "[ERR_MANIFEST_IO] rminify.json manifest I/O failed: permission denied",
		},
		{
			name:     "message only",
			err:      &SyncError{Message: "boom"},
			expected: "boom",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestSyncErrorUnwrap(t *testing.T) {
	err := ErrMinifyIO("a.cshtml", fs.ErrNotExist)

	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Equal(t, fs.ErrNotExist, err.Unwrap())
}

func TestSyncErrorIs(t *testing.T) {
	err := fmt.Errorf("loading: %w", ErrManifestMalformed("rminify.json", errors.New("bad json")))

	assert.ErrorIs(t, err, &SyncError{Type: ErrorTypeManifest, Code: ErrCodeManifestMalformed})
	assert.NotErrorIs(t, err, &SyncError{Type: ErrorTypeManifest, Code: ErrCodeManifestIO})
	assert.NotErrorIs(t, err, &SyncError{Type: ErrorTypeIO, Code: ErrCodeManifestMalformed})
}

func TestSyncErrorWithContext(t *testing.T) {
	err := ErrPairExists("a.edit.cshtml", "a.cshtml")

	require.NotNil(t, err.Context)
	assert.Equal(t, "a.edit.cshtml", err.Context["editable"])
	assert.Equal(t, "a.cshtml", err.Context["output"])

	err = NewConfigError("bad").WithContext("field", "edit.suffix")
	assert.Equal(t, "edit.suffix", err.Context["field"])
	assert.Equal(t, ErrorTypeConfig, err.Type)
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *SyncError
		typ  ErrorType
		code string
	}{
		{"manifest malformed", ErrManifestMalformed("m", nil), ErrorTypeManifest, ErrCodeManifestMalformed},
		{"manifest io", ErrManifestIO("m", nil), ErrorTypeManifest, ErrCodeManifestIO},
		{"output missing", ErrOutputMissing("o"), ErrorTypeValidation, ErrCodeOutputMissing},
		{"pair exists", ErrPairExists("e", "o"), ErrorTypeValidation, ErrCodePairExists},
		{"pair invalid", ErrPairInvalid("x"), ErrorTypeValidation, ErrCodePairInvalid},
		{"pair unknown", ErrPairUnknown("a -> b"), ErrorTypeValidation, ErrCodePairUnknown},
		{"path traversal", ErrPathTraversal("../x"), ErrorTypeSecurity, ErrCodePathTraversal},
		{"minify io", ErrMinifyIO("e", nil), ErrorTypeIO, ErrCodeMinifyIO},
		{"watch", ErrWatch("e", nil), ErrorTypeIO, ErrCodeWatch},
		{"subprocess", NewSubprocessError("esbuild failed", nil), ErrorTypeSubprocess, ErrCodeSubprocess},
		{"config", NewConfigError("x"), ErrorTypeConfig, ErrCodeConfigInvalid},
		{"closed", ErrClosed("engine"), ErrorTypeInternal, ErrCodeClosed},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.typ, tt.err.Type)
			assert.Equal(t, tt.code, tt.err.Code)
		})
	}
}

func TestHasErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     string
		expected bool
	}{
		{"nil", nil, ErrCodeOutputMissing, false},
		{"plain error", errors.New("x"), ErrCodeOutputMissing, false},
		{"direct", ErrOutputMissing("a"), ErrCodeOutputMissing, true},
		{"wrapped", fmt.Errorf("add: %w", ErrOutputMissing("a")), ErrCodeOutputMissing, true},
		{"cause chain", ErrMinifyIO("a", ErrPathTraversal("../a")), ErrCodePathTraversal, true},
		{
			"joined second branch",
			errors.Join(ErrPairInvalid("x"), fmt.Errorf("b: %w", ErrOutputMissing("b"))),
			ErrCodeOutputMissing,
			true,
		},
		{"joined miss", errors.Join(ErrPairInvalid("x"), errors.New("y")), ErrCodeClosed, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, HasErrorCode(tt.err, tt.code))
		})
	}
}

func TestErrorPredicates(t *testing.T) {
	assert.True(t, IsManifestMalformed(ErrManifestMalformed("m", nil)))
	assert.False(t, IsManifestMalformed(ErrManifestIO("m", nil)))

	assert.True(t, IsOutputMissing(fmt.Errorf("x: %w", ErrOutputMissing("o"))))
	assert.False(t, IsOutputMissing(errors.New("output file does not exist")))

	assert.True(t, IsSecurityError(ErrPathTraversal("../x")))
	assert.False(t, IsSecurityError(ErrPairInvalid("x")))
	assert.False(t, IsSecurityError(nil))
}
