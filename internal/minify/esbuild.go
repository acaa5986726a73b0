package minify

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	rerrors "github.com/conneroisu/rminify/internal/errors"
	"github.com/conneroisu/rminify/internal/fsutil"
	"github.com/conneroisu/rminify/internal/validation"
)

// JSOptions selects which esbuild minification passes run.
type JSOptions uint8

const (
	RemoveWhitespace JSOptions = 1 << iota
	ShortenIdentifiers
	ShortenSyntax

	AllJSOptions = RemoveWhitespace | ShortenIdentifiers | ShortenSyntax
)

// jsOptionFlags maps each option to its esbuild command-line token, in the
// order the tokens are emitted.
var jsOptionFlags = []struct {
	option JSOptions
	token  string
}{
	{RemoveWhitespace, "--minify-whitespace"},
	{ShortenIdentifiers, "--minify-identifiers"},
	{ShortenSyntax, "--minify-syntax"},
}

// Flags returns the esbuild tokens for the options that are set.
func (o JSOptions) Flags() []string {
	flags := make([]string, 0, len(jsOptionFlags))
	for _, f := range jsOptionFlags {
		if o&f.option != 0 {
			flags = append(flags, f.token)
		}
	}
	return flags
}

// Set returns o with opt switched on or off.
func (o JSOptions) Set(opt JSOptions, on bool) JSOptions {
	if on {
		return o | opt
	}
	return o &^ opt
}

// String returns the flags joined by spaces, or "none".
func (o JSOptions) String() string {
	if o == 0 {
		return "none"
	}
	return strings.Join(o.Flags(), " ")
}

// ComposeArguments builds the esbuild argument list: the source path, one
// token per enabled option, then --outfile=<output>.
func ComposeArguments(source, output string, opts JSOptions) []string {
	args := make([]string, 0, 5)
	args = append(args, source)
	args = append(args, opts.Flags()...)
	args = append(args, "--outfile="+output)
	return args
}

// Esbuild runs the esbuild binary over JavaScript sources.
type Esbuild struct {
	// Path is the esbuild executable, looked up on PATH when it has no
	// directory component.
	Path    string
	Options JSOptions
	Timeout time.Duration
}

// NewEsbuild returns an Esbuild with every minify pass enabled.
func NewEsbuild(path string) *Esbuild {
	if path == "" {
		path = "esbuild"
	}
	return &Esbuild{
		Path:    path,
		Options: AllJSOptions,
		Timeout: 30 * time.Second,
	}
}

// MinifyFile minifies source into output. esbuild reports problems on
// stderr, so any non-blank stderr text is a failure and is returned as the
// Result message. A failure to start the process is reported the same way.
// The output file is replaced atomically and only on success.
func (e *Esbuild) MinifyFile(ctx context.Context, source, output string) Result {
	if err := validation.ValidateExecutable(e.Path); err != nil {
		return Failed(err.Error())
	}
	for _, token := range e.Options.Flags() {
		if err := validation.ValidateArgument(token); err != nil {
			return Failed(err.Error())
		}
	}

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	dir := filepath.Dir(output)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Failed(err.Error())
	}
	tmp, err := os.CreateTemp(dir, fsutil.TempPrefix+"*"+filepath.Ext(output))
	if err != nil {
		return Failed(err.Error())
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.Path, ComposeArguments(source, tmpPath, e.Options)...)
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if msg := strings.TrimSpace(validation.SanitizeInput(stderr.String())); msg != "" {
		return subprocessFailed(source, msg, runErr)
	}
	if runErr != nil {
		if ctx.Err() != nil {
			return subprocessFailed(source, fmt.Sprintf("esbuild timed out: %v", ctx.Err()), ctx.Err())
		}
		return subprocessFailed(source, fmt.Sprintf("esbuild failed: %v", runErr), runErr)
	}

	if err := os.Rename(tmpPath, output); err != nil {
		return Failed(err.Error())
	}

	return OK()
}

func subprocessFailed(source, msg string, cause error) Result {
	res := Failed(msg)
	res.Err = rerrors.NewSubprocessError(msg, cause).WithPath(source)
	return res
}
