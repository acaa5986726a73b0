package testutils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/conneroisu/rminify/internal/manifest"
	"github.com/stretchr/testify/require"
)

// CreateTempProject creates a temporary ASP.NET-style project tree for testing
func CreateTempProject(t *testing.T) string {
	t.Helper()
	tempDir := t.TempDir()

	dirs := []string{
		"Views/Home",
		"Views/Shared",
		"wwwroot/js",
	}

	for _, dir := range dirs {
		err := os.MkdirAll(filepath.Join(tempDir, dir), 0755)
		require.NoError(t, err)
	}

	return tempDir
}

// WriteProjectFile writes content to rel under root and returns the absolute
// path.
func WriteProjectFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// ReadProjectFile returns the content of rel under root.
func ReadProjectFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

// WriteManifest writes rminify.json under root declaring pairs and returns
// its path.
func WriteManifest(t *testing.T, root string, pairs ...manifest.FilePair) string {
	t.Helper()
	data, err := manifest.Encode(pairs, manifest.FormatJSON)
	require.NoError(t, err)
	return WriteProjectFile(t, root, manifest.DefaultName, string(data))
}

// StandardRazorContent provides Razor views for testing
var StandardRazorContent = map[string]string{
	"Index": `@model IndexModel
@{
    ViewData["Title"] = "Home";
}
<!-- hero -->
<div class="hero">
    <h1>@ViewData["Title"]</h1>
</div>
`,
	"Layout": `@using MyApp
<!DOCTYPE html>
<html>
<body>
    @RenderBody()
</body>
</html>
@section Scripts {
    <script src="~/js/site.js"></script>
}
`,
	"Partial": `<ul>
    @foreach (var item in Model) {
        <li>@item</li>
    }
</ul>
`,
}

// SecurityTestCases provides common security test vectors
var SecurityTestCases = struct {
	PathTraversal    []string
	CommandInjection []string
}{
	PathTraversal: []string{
		"../../../etc/passwd",
		"Views/Home/../../../secret.cshtml",
		"/./../../etc/passwd",
		"Views/../../../../etc/passwd",
		"/etc/passwd",
	},
	CommandInjection: []string{
		"esbuild; rm -rf /",
		"esbuild && rm -rf /",
		"esbuild | rm -rf /",
		"esbuild`rm -rf /`",
		"esbuild$(rm -rf /)",
	},
}

// AssertFilePermissions checks that files have the expected permissions
func AssertFilePermissions(t *testing.T, path string, expectedMode os.FileMode) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)

	actualMode := info.Mode()
	require.Equal(t, expectedMode, actualMode&os.FileMode(0777),
		"File %s has incorrect permissions: got %o, want %o",
		path, actualMode&os.FileMode(0777), expectedMode)
}

// WaitForFileContent waits until the file at path holds want (useful for
// testing file watchers)
func WaitForFileContent(t *testing.T, path, want string, timeout time.Duration) {
	t.Helper()
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		return err == nil && string(data) == want
	}, timeout, 10*time.Millisecond, "file %s never held %q", path, want)
}

// WaitForFileChange waits for a file to be modified (useful for testing file watchers)
func WaitForFileChange(
	t *testing.T,
	filePath string,
	originalModTime time.Time,
	timeout time.Duration,
) {
	t.Helper()
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		info, err := os.Stat(filePath)
		if err == nil && info.ModTime().After(originalModTime) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("File %s was not modified within %v", filePath, timeout)
}
