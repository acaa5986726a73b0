package manifest

import (
	"path"
	"strings"
)

// PairOptions overrides the daemon's minify settings for one pair. A nil
// field keeps the setting from the configuration. Options never take part in
// pair identity.
type PairOptions struct {
	InlineStyles       *bool `json:"UsePreMailer,omitempty" yaml:"UsePreMailer,omitempty"`
	RemoveWhitespace   *bool `json:"RemoveWhitespaces,omitempty" yaml:"RemoveWhitespaces,omitempty"`
	ShortenIdentifiers *bool `json:"ShortenIdentifiers,omitempty" yaml:"ShortenIdentifiers,omitempty"`
	ShortenSyntax      *bool `json:"ShortenSyntax,omitempty" yaml:"ShortenSyntax,omitempty"`
}

// IsZero reports whether no setting is overridden.
func (o PairOptions) IsZero() bool {
	return o.InlineStyles == nil &&
		o.RemoveWhitespace == nil &&
		o.ShortenIdentifiers == nil &&
		o.ShortenSyntax == nil
}

// Merge returns o with every setting that over overrides replaced.
func (o PairOptions) Merge(over PairOptions) PairOptions {
	for _, f := range []struct{ dst, src **bool }{
		{&o.InlineStyles, &over.InlineStyles},
		{&o.RemoveWhitespace, &over.RemoveWhitespace},
		{&o.ShortenIdentifiers, &over.ShortenIdentifiers},
		{&o.ShortenSyntax, &over.ShortenSyntax},
	} {
		if *f.src != nil {
			*f.dst = *f.src
		}
	}
	return o
}

// AllScriptPasses enables every esbuild pass, the way new script pairs are
// declared.
func AllScriptPasses() PairOptions {
	on := true
	return PairOptions{RemoveWhitespace: &on, ShortenIdentifiers: &on, ShortenSyntax: &on}
}

// Bool returns a pointer to v, for filling PairOptions.
func Bool(v bool) *bool { return &v }

// Entry is one declared pair with its option overrides.
type Entry struct {
	Pair    FilePair
	Options PairOptions
}

// ScriptOutputSuffix names the minified output of a script:
// wwwroot/js/site.js -> wwwroot/js/site.min.js.
const ScriptOutputSuffix = ".min"

// IsScript reports whether rel is a JavaScript file.
func IsScript(rel string) bool {
	return strings.EqualFold(path.Ext(rel), ".js")
}

// IsScriptOutput reports whether rel already names a minified script.
func IsScriptOutput(rel string) bool {
	return IsScript(rel) && strings.HasSuffix(strings.ToLower(rel), ScriptOutputSuffix+".js")
}

// DeriveScriptOutputPath names the minified output of a script source.
func DeriveScriptOutputPath(source string) string {
	source = cleanRel(source)
	ext := path.Ext(source)
	return strings.TrimSuffix(source, ext) + ScriptOutputSuffix + ext
}
