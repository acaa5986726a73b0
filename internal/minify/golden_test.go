package minify

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

func TestMinifyGolden(t *testing.T) {
	inputs, err := filepath.Glob(filepath.Join("testdata", "razor", "*.cshtml"))
	require.NoError(t, err)
	require.NotEmpty(t, inputs)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	for _, path := range inputs {
		path := path
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		t.Run(name, func(t *testing.T) {
			content, err := os.ReadFile(path)
			require.NoError(t, err)

			g.Assert(t, name, []byte(Minify(string(content))))
		})
	}
}
