// Package manifest holds the declared set of editable/output file pairs and
// keeps it in sync with the manifest file on disk.
//
// The manifest file is the document the original RazorMinifier tool writes:
//
//	{
//	  "Files": [
//	    { "EditFilePath": "Views/a.edit.cshtml", "SourceFilePath": "Views/a.cshtml" }
//	  ]
//	}
//
// Entries may also carry per-pair overrides of the minify settings:
// UsePreMailer for the stylesheet inliner, and RemoveWhitespaces,
// ShortenIdentifiers and ShortenSyntax for esbuild. Files named *.yaml or
// *.yml use the same field names in YAML.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	rerrors "github.com/conneroisu/rminify/internal/errors"
	"github.com/conneroisu/rminify/internal/fsutil"
	"gopkg.in/yaml.v3"
)

// DefaultName is the manifest file name looked up in the project root.
const DefaultName = "rminify.json"

// Format is the serialization of a manifest file.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// String returns the string representation of the Format
func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	default:
		return "unknown"
	}
}

// FormatFor picks the format from the manifest file's extension.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

type document struct {
	Files []entry `json:"Files" yaml:"Files"`
}

type entry struct {
	EditFilePath   string `json:"EditFilePath" yaml:"EditFilePath"`
	SourceFilePath string `json:"SourceFilePath" yaml:"SourceFilePath"`
	PairOptions    `yaml:",inline"`
}

// Manifest is a snapshot of the declared pairs together with where they came
// from. Root and Path are absolute and never persisted.
type Manifest struct {
	Root  string
	Path  string
	Pairs []FilePair
	// Options holds the overrides of the pairs that have any.
	Options map[FilePair]PairOptions
}

// Contains reports whether p is declared.
func (m *Manifest) Contains(p FilePair) bool {
	for _, q := range m.Pairs {
		if q == p {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of m.
func (m *Manifest) Clone() *Manifest {
	c := *m
	c.Pairs = append([]FilePair(nil), m.Pairs...)
	return c.withOptions(m.Options)
}

// Load reads and decodes the manifest at path. When root is empty the
// manifest's own directory is used.
func Load(path, root string) (*Manifest, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, rerrors.ErrManifestIO(path, err)
	}
	if root == "" {
		root = filepath.Dir(abs)
	}
	if root, err = filepath.Abs(root); err != nil {
		return nil, rerrors.ErrManifestIO(path, err)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, rerrors.ErrManifestIO(abs, err)
	}

	entries, err := DecodeEntries(data, FormatFor(abs))
	if err != nil {
		return nil, rerrors.ErrManifestMalformed(abs, err)
	}

	m := &Manifest{Root: root, Path: abs}
	m.Pairs, m.Options = splitEntries(entries)
	return m, nil
}

func (m *Manifest) withOptions(opts map[FilePair]PairOptions) *Manifest {
	m.Options = make(map[FilePair]PairOptions, len(opts))
	for p, o := range opts {
		m.Options[p] = o
	}
	return m
}

func splitEntries(entries []Entry) ([]FilePair, map[FilePair]PairOptions) {
	pairs := make([]FilePair, 0, len(entries))
	opts := make(map[FilePair]PairOptions)
	for _, e := range entries {
		pairs = append(pairs, e.Pair)
		if !e.Options.IsZero() {
			opts[e.Pair] = e.Options
		}
	}
	return pairs, opts
}

// Decode parses a manifest document into its pairs. See DecodeEntries.
func Decode(data []byte, format Format) ([]FilePair, error) {
	entries, err := DecodeEntries(data, format)
	if err != nil {
		return nil, err
	}
	pairs, _ := splitEntries(entries)
	return pairs, nil
}

// DecodeEntries parses a manifest document. A missing or null Files
// collection decodes to no entries; a blank document is an error, since
// editors truncate a file before writing it back. When a pair is listed more
// than once the first entry wins.
func DecodeEntries(data []byte, format Format) ([]Entry, error) {
	text, err := fsutil.DecodeText(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("manifest is empty")
	}

	var doc document
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal([]byte(text), &doc)
	default:
		err = json.Unmarshal([]byte(text), &doc)
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[FilePair]struct{}, len(doc.Files))
	entries := make([]Entry, 0, len(doc.Files))
	for i, e := range doc.Files {
		p := NewFilePair(e.EditFilePath, e.SourceFilePath)
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		entries = append(entries, Entry{Pair: p, Options: e.PairOptions})
	}

	return entries, nil
}

// Encode serializes pairs without option overrides. See EncodeEntries.
func Encode(pairs []FilePair, format Format) ([]byte, error) {
	entries := make([]Entry, 0, len(pairs))
	for _, p := range pairs {
		entries = append(entries, Entry{Pair: p})
	}
	return EncodeEntries(entries, format)
}

// EncodeEntries serializes entries sorted by output path. JSON output is
// indented with two spaces and ends in a newline.
func EncodeEntries(entries []Entry, format Format) ([]byte, error) {
	sorted := append([]Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool {
		return pairLess(sorted[i].Pair, sorted[j].Pair)
	})

	doc := document{Files: make([]entry, 0, len(sorted))}
	for _, e := range sorted {
		doc.Files = append(doc.Files, entry{
			EditFilePath:   e.Pair.Edit,
			SourceFilePath: e.Pair.Output,
			PairOptions:    e.Options,
		})
	}

	if format == FormatYAML {
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
