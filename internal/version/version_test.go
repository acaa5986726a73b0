package version

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func withBuild(t *testing.T, version, commit, built string, settings map[string]string) {
	t.Helper()
	oldVersion, oldCommit, oldTime, oldRead := Version, GitCommit, BuildTime, readSettings
	t.Cleanup(func() {
		Version, GitCommit, BuildTime, readSettings = oldVersion, oldCommit, oldTime, oldRead
	})

	Version, GitCommit, BuildTime = version, commit, built
	readSettings = func() map[string]string { return settings }
}

func TestGetBuildInfo(t *testing.T) {
	tests := []struct {
		name       string
		version    string
		commit     string
		settings   map[string]string
		expVersion string
		expCommit  string
		expShort   string
		release    bool
	}{
		{
			name:       "ldflags",
			version:    "v1.2.0",
			commit:     "abcdef0123456",
			expVersion: "v1.2.0",
			expCommit:  "abcdef0123456",
			expShort:   "v1.2.0 (abcdef0)",
			release:    true,
		},
		{
			name:       "module version",
			version:    "dev",
			commit:     "unknown",
			settings:   map[string]string{"main.version": "v0.3.1"},
			expVersion: "v0.3.1",
			expCommit:  "unknown",
			expShort:   "v0.3.1",
			release:    true,
		},
		{
			name:       "vcs revision",
			version:    "dev",
			commit:     "unknown",
			settings:   map[string]string{"vcs.revision": "1234567890"},
			expVersion: "dev-1234567",
			expCommit:  "1234567890",
			expShort:   "dev-1234567",
		},
		{
			name:       "nothing known",
			version:    "dev",
			commit:     "unknown",
			expVersion: "dev",
			expCommit:  "unknown",
			expShort:   "dev",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			withBuild(t, tt.version, tt.commit, "unknown", tt.settings)

			info := GetBuildInfo()
			assert.Equal(t, Name, info.Name)
			assert.Equal(t, tt.expVersion, info.Version)
			assert.Equal(t, tt.expCommit, info.GitCommit)
			assert.Equal(t, tt.expShort, info.Short())
			assert.Equal(t, tt.release, info.IsRelease())
			assert.True(t, info.BuildTime.IsZero())
		})
	}
}

func TestDetailed(t *testing.T) {
	withBuild(t, "v1.0.0", "abcdef0123", "2025-01-02T03:04:05Z",
		map[string]string{"vcs.modified": "true"})

	info := GetBuildInfo()
	assert.True(t, info.Dirty)

	detailed := info.Detailed()
	assert.Contains(t, detailed, "rminify v1.0.0")
	assert.Contains(t, detailed, "Commit: abcdef0123 (dirty)")
	assert.Contains(t, detailed, "Built: 2025-01-02T03:04:05Z")
	assert.Contains(t, detailed, "Platform: ")
}

func TestParseISOTime(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Time
	}{
		{"2025-01-02T03:04:05Z", time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"2025-01-02T03:04:05", time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"2025-01-02 03:04:05", time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"unknown", time.Time{}},
		{"", time.Time{}},
		{"yesterday", time.Time{}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.input, func(t *testing.T) {
			assert.True(t, tt.expected.Equal(parseISOTime(tt.input)))
		})
	}
}
