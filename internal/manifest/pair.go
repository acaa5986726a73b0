package manifest

import (
	"path"
	"path/filepath"
	"sort"
	"strings"

	rerrors "github.com/conneroisu/rminify/internal/errors"
	"github.com/conneroisu/rminify/internal/validation"
)

// DefaultEditSuffix is inserted before the extension of an output file to
// name its editable copy: Views/a.cshtml -> Views/a.edit.cshtml.
const DefaultEditSuffix = ".edit"

// FilePair associates an editable file with the output file generated from
// it. Both paths are slash-separated and relative to the project root. An
// empty Edit means the editable copy has not been created yet.
//
// FilePair is a comparable value; two pairs are the same pair when both
// paths match.
type FilePair struct {
	Edit   string `json:"edit" yaml:"edit"`
	Output string `json:"output" yaml:"output"`
}

// NewFilePair returns a pair with both paths cleaned and slash-separated.
func NewFilePair(edit, output string) FilePair {
	return FilePair{Edit: cleanRel(edit), Output: cleanRel(output)}
}

func cleanRel(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	return path.Clean(filepath.ToSlash(p))
}

// HasEdit reports whether the editable path has been set.
func (p FilePair) HasEdit() bool { return p.Edit != "" }

// String returns "edit -> output".
func (p FilePair) String() string {
	edit := p.Edit
	if edit == "" {
		edit = "<unset>"
	}
	return edit + " -> " + p.Output
}

// Validate checks that the output path is set and that neither path leaves
// the root directory.
func (p FilePair) Validate() error {
	if p.Output == "" {
		return rerrors.ErrPairInvalid("output path cannot be empty")
	}
	if err := validation.ValidateRelativePath(p.Output); err != nil {
		return err
	}
	if p.Edit != "" {
		if err := validation.ValidateRelativePath(p.Edit); err != nil {
			return err
		}
		if p.Edit == p.Output {
			return rerrors.ErrPairInvalid("editable and output paths are the same file").WithPath(p.Output)
		}
	}
	return nil
}

// OutputAbs resolves the output path against root.
func (p FilePair) OutputAbs(root string) (string, error) {
	return validation.ResolveUnderRoot(root, p.Output)
}

// EditAbs resolves the editable path against root.
func (p FilePair) EditAbs(root string) (string, error) {
	if p.Edit == "" {
		return "", rerrors.ErrPairInvalid("editable path is not set").WithPath(p.Output)
	}
	return validation.ResolveUnderRoot(root, p.Edit)
}

// WithDerivedEdit returns p with Edit filled in from the output path when it
// is unset.
func (p FilePair) WithDerivedEdit(suffix string) FilePair {
	if p.Edit != "" {
		return p
	}
	p.Edit = DeriveEditPath(p.Output, suffix)
	return p
}

// DeriveEditPath names the editable copy of output by inserting suffix
// before the extension.
func DeriveEditPath(output, suffix string) string {
	if suffix == "" {
		suffix = DefaultEditSuffix
	}
	output = cleanRel(output)
	ext := path.Ext(output)
	return strings.TrimSuffix(output, ext) + suffix + ext
}

// SortPairs orders pairs by output path, then editable path.
func SortPairs(pairs []FilePair) {
	sort.Slice(pairs, func(i, j int) bool {
		return pairLess(pairs[i], pairs[j])
	})
}

func pairLess(a, b FilePair) bool {
	if a.Output != b.Output {
		return a.Output < b.Output
	}
	return a.Edit < b.Edit
}
