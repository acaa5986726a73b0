package minify

import (
	"context"
	"path/filepath"
	"strings"

	rerrors "github.com/conneroisu/rminify/internal/errors"
	"github.com/conneroisu/rminify/internal/fsutil"
)

// Result reports the non-fatal outcome of a minify pass. A pass with
// Success == false still produced output unless an error was returned
// alongside it; Message explains what went wrong.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	// Err carries the structured cause of a failed esbuild run.
	Err error `json:"-"`
}

// OK returns a successful Result.
func OK() Result { return Result{Success: true} }

// Failed returns an unsuccessful Result carrying msg.
func Failed(msg string) Result { return Result{Success: false, Message: msg} }

// Kind identifies which pipeline a file goes through.
type Kind int

const (
	KindRazor Kind = iota
	KindJS
)

// String returns the string representation of the Kind
func (k Kind) String() string {
	switch k {
	case KindRazor:
		return "razor"
	case KindJS:
		return "js"
	default:
		return "unknown"
	}
}

// KindOf picks the pipeline for an editable file by its extension.
func KindOf(path string) Kind {
	if strings.EqualFold(filepath.Ext(path), ".js") {
		return KindJS
	}
	return KindRazor
}

// Options configures a Processor.
type Options struct {
	// InlineStyles runs the stylesheet inliner over Razor bodies.
	InlineStyles bool
	// Esbuild handles .js files. When nil, .js files go through the Razor
	// pipeline like everything else.
	Esbuild *Esbuild
}

// Processor reads an editable file, minifies it and writes the output file.
type Processor struct {
	opts Options
}

// NewProcessor creates a Processor.
func NewProcessor(opts Options) *Processor {
	return &Processor{opts: opts}
}

// Options returns a copy of the processor's options.
func (p *Processor) Options() Options {
	return p.opts
}

// Override returns a Processor for one pair: inline, when non-nil, replaces
// InlineStyles, and setJS rewrites the esbuild passes of a copy of the
// esbuild runner. p itself is left unchanged.
func (p *Processor) Override(inline *bool, setJS func(JSOptions) JSOptions) *Processor {
	opts := p.opts
	if inline != nil {
		opts.InlineStyles = *inline
	}
	if setJS != nil && opts.Esbuild != nil {
		eb := *opts.Esbuild
		eb.Options = setJS(eb.Options)
		opts.Esbuild = &eb
	}
	return NewProcessor(opts)
}

// MinifyText runs the Razor pipeline over content with the processor's
// options and reports inliner warnings in the Result.
func (p *Processor) MinifyText(content string) (string, Result) {
	out, warnings := minifyRazor(content, p.opts.InlineStyles)
	if len(warnings) > 0 {
		return out, Failed(strings.Join(warnings, ", "))
	}
	return out, OK()
}

// Process minifies editablePath into outputPath. I/O failures are returned as
// errors; problems that still leave a usable output are reported through the
// Result. The output file is created if it is missing and is always replaced
// atomically.
func (p *Processor) Process(ctx context.Context, editablePath, outputPath string) (Result, error) {
	if p.opts.Esbuild != nil && KindOf(editablePath) == KindJS {
		return p.opts.Esbuild.MinifyFile(ctx, editablePath, outputPath), nil
	}

	content, err := fsutil.ReadText(editablePath)
	if err != nil {
		return Result{}, rerrors.ErrMinifyIO(editablePath, err)
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	out, res := p.MinifyText(content)

	if err := fsutil.WriteFileAtomic(outputPath, []byte(out), 0644); err != nil {
		return Result{}, rerrors.ErrMinifyIO(outputPath, err)
	}

	return res, nil
}
