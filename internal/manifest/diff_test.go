package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiff(t *testing.T) {
	a := NewFilePair("a.e", "a")
	b := NewFilePair("b.e", "b")
	c := NewFilePair("c.e", "c")

	tests := []struct {
		name    string
		old     []FilePair
		new     []FilePair
		removed []FilePair
		added   []FilePair
	}{
		{name: "identical", old: []FilePair{a, b}, new: []FilePair{b, a}},
		{name: "both empty"},
		{name: "add one", old: []FilePair{a}, new: []FilePair{a, b}, added: []FilePair{b}},
		{name: "remove one", old: []FilePair{a, b}, new: []FilePair{b}, removed: []FilePair{a}},
		{name: "swap", old: []FilePair{a, b}, new: []FilePair{b, c}, removed: []FilePair{a}, added: []FilePair{c}},
		{name: "duplicates in input", old: []FilePair{a, a}, new: []FilePair{a, c, c}, added: []FilePair{c}},
		{
			name:    "editable path change is remove plus add",
			old:     []FilePair{NewFilePair("", "a")},
			new:     []FilePair{NewFilePair("a.e", "a")},
			removed: []FilePair{NewFilePair("", "a")},
			added:   []FilePair{NewFilePair("a.e", "a")},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			d := Diff(tt.old, tt.new)
			assert.Equal(t, tt.removed, d.Removed)
			assert.Equal(t, tt.added, d.Added)
			assert.Equal(t, len(tt.removed) == 0 && len(tt.added) == 0, d.Empty())
		})
	}
}
