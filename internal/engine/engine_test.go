package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	rerrors "github.com/conneroisu/rminify/internal/errors"
	"github.com/conneroisu/rminify/internal/manifest"
	"github.com/conneroisu/rminify/internal/minify"
	"github.com/conneroisu/rminify/internal/notify"
	"github.com/conneroisu/rminify/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 3 * time.Second

type recorder struct {
	mu    sync.Mutex
	items []notify.Notification
}

func (r *recorder) Notify(_ context.Context, n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

func (r *recorder) levels() []notify.Level {
	r.mu.Lock()
	defer r.mu.Unlock()
	levels := make([]notify.Level, 0, len(r.items))
	for _, n := range r.items {
		levels = append(levels, n.Level)
	}
	return levels
}

func newEngine(t *testing.T, root string, opts ...Option) *Engine {
	t.Helper()
	store, err := manifest.Open(filepath.Join(root, manifest.DefaultName), root,
		manifest.WithReloadDelay(20*time.Millisecond))
	require.NoError(t, err)

	proc := minify.NewProcessor(minify.Options{InlineStyles: true})
	e := New(store, proc, opts...)
	t.Cleanup(func() {
		_ = e.Close()
	})
	return e
}

func startEngine(t *testing.T, root string, opts ...Option) *Engine {
	t.Helper()
	e := newEngine(t, root, opts...)
	require.NoError(t, e.Start(context.Background()))
	return e
}

func loadPairs(t *testing.T, root string) []manifest.FilePair {
	t.Helper()
	m, err := manifest.Load(filepath.Join(root, manifest.DefaultName), root)
	require.NoError(t, err)
	return m.Pairs
}

func TestEngineSeedsAndMinifiesOnStart(t *testing.T) {
	root := testutils.CreateTempProject(t)
	testutils.WriteProjectFile(t, root, "page.out", "<!-- c -->\n\nHello")
	testutils.WriteManifest(t, root, manifest.NewFilePair("", "page.out"))

	e := startEngine(t, root)

	assert.Equal(t, "Hello", testutils.ReadProjectFile(t, root, "page.out"))
	assert.Equal(t, "<!-- c -->\n\nHello", testutils.ReadProjectFile(t, root, "page.edit.out"))

	want := manifest.NewFilePair("page.edit.out", "page.out")
	assert.Equal(t, []manifest.FilePair{want}, loadPairs(t, root))
	assert.Equal(t, []manifest.FilePair{want}, e.ActivePairs())
}

func TestEngineMinifiesOnEdit(t *testing.T) {
	root := testutils.CreateTempProject(t)
	testutils.WriteProjectFile(t, root, "page.out", "<!-- c -->\n\nHello")
	testutils.WriteManifest(t, root, manifest.NewFilePair("", "page.out"))

	startEngine(t, root)

	editPath := filepath.Join(root, "page.edit.out")
	require.NoError(t, os.WriteFile(editPath, []byte("@model Foo\nHello   World"), 0644))

	testutils.WaitForFileContent(t, filepath.Join(root, "page.out"), "@model Foo\nHello   World", waitFor)
}

func TestEngineExistingEditableIsNotOverwritten(t *testing.T) {
	root := testutils.CreateTempProject(t)
	testutils.WriteProjectFile(t, root, "Views/Home/Index.cshtml", "stale")
	testutils.WriteProjectFile(t, root, "Views/Home/Index.edit.cshtml", "<p>\n  hi\n</p>")
	testutils.WriteManifest(t, root,
		manifest.NewFilePair("Views/Home/Index.edit.cshtml", "Views/Home/Index.cshtml"))

	startEngine(t, root)

	assert.Equal(t, "<p>\n  hi\n</p>", testutils.ReadProjectFile(t, root, "Views/Home/Index.edit.cshtml"))
	assert.Equal(t, "stale", testutils.ReadProjectFile(t, root, "Views/Home/Index.cshtml"))
}

func TestEngineMissingOutputIsReported(t *testing.T) {
	root := testutils.CreateTempProject(t)
	testutils.WriteProjectFile(t, root, "ok.cshtml", "<b> x </b>")
	testutils.WriteManifest(t, root,
		manifest.NewFilePair("", "missing.cshtml"),
		manifest.NewFilePair("", "ok.cshtml"))

	rec := &recorder{}
	e := startEngine(t, root, WithNotifier(rec))

	assert.Equal(t, []manifest.FilePair{manifest.NewFilePair("ok.edit.cshtml", "ok.cshtml")}, e.ActivePairs())
	assert.Contains(t, rec.levels(), notify.LevelError)
	assert.NoFileExists(t, filepath.Join(root, "missing.edit.cshtml"))
}

func TestEngineFollowsManifestChanges(t *testing.T) {
	root := testutils.CreateTempProject(t)
	testutils.WriteProjectFile(t, root, "a.cshtml", "<a>\n  1\n</a>")
	testutils.WriteProjectFile(t, root, "b.cshtml", "<b>\n  2\n</b>")
	testutils.WriteManifest(t, root, manifest.NewFilePair("", "a.cshtml"))

	e := startEngine(t, root)
	require.Len(t, e.ActivePairs(), 1)

	testutils.WriteManifest(t, root, manifest.NewFilePair("", "b.cshtml"))

	wantB := manifest.NewFilePair("b.edit.cshtml", "b.cshtml")
	require.Eventually(t, func() bool {
		active := e.ActivePairs()
		return len(active) == 1 && active[0] == wantB
	}, waitFor, 10*time.Millisecond)

	assert.Equal(t, "<b>2</b>", testutils.ReadProjectFile(t, root, "b.cshtml"))
}

func TestEngineManifestStorm(t *testing.T) {
	root := testutils.CreateTempProject(t)
	testutils.WriteProjectFile(t, root, "a.cshtml", "a")
	testutils.WriteProjectFile(t, root, "b.cshtml", "b")
	testutils.WriteManifest(t, root)

	e := startEngine(t, root)

	pairs := []manifest.FilePair{
		manifest.NewFilePair("a.edit.cshtml", "a.cshtml"),
		manifest.NewFilePair("b.edit.cshtml", "b.cshtml"),
	}
	for i := 0; i < 5; i++ {
		testutils.WriteManifest(t, root, pairs...)
	}

	require.Eventually(t, func() bool {
		return len(e.ActivePairs()) == 2
	}, waitFor, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, pairs, e.ActivePairs())
}

func TestEngineReconcile(t *testing.T) {
	root := testutils.CreateTempProject(t)
	testutils.WriteProjectFile(t, root, "a.cshtml", "a")
	testutils.WriteProjectFile(t, root, "a.edit.cshtml", "a")
	testutils.WriteManifest(t, root)
	e := startEngine(t, root)

	p := manifest.NewFilePair("a.edit.cshtml", "a.cshtml")
	ctx := context.Background()

	require.NoError(t, e.Reconcile(ctx, manifest.Delta{Added: []manifest.FilePair{p}}))
	require.NoError(t, e.Reconcile(ctx, manifest.Delta{Added: []manifest.FilePair{p}}))
	assert.Equal(t, []manifest.FilePair{p}, e.ActivePairs())

	unknown := manifest.NewFilePair("x.edit.cshtml", "x.cshtml")
	require.NoError(t, e.Reconcile(ctx, manifest.Delta{Removed: []manifest.FilePair{unknown}}))
	assert.Len(t, e.ActivePairs(), 1)

	require.NoError(t, e.Reconcile(ctx, manifest.Delta{Removed: []manifest.FilePair{p}}))
	assert.Empty(t, e.ActivePairs())

	err := e.Reconcile(ctx, manifest.Delta{Added: []manifest.FilePair{unknown}})
	require.Error(t, err)
	assert.True(t, rerrors.IsOutputMissing(err))
}

func TestEngineDropsPairRemovedDuringActivation(t *testing.T) {
	root := testutils.CreateTempProject(t)
	testutils.WriteProjectFile(t, root, "b.cshtml", "<b>\n 1\n</b>")
	testutils.WriteManifest(t, root)
	e := startEngine(t, root)
	ctx := context.Background()

	// The store no longer declares the pair by the time its derived
	// editable path is recorded.
	unset := manifest.NewFilePair("", "b.cshtml")
	require.NoError(t, e.Reconcile(ctx, manifest.Delta{Added: []manifest.FilePair{unset}}))

	assert.FileExists(t, filepath.Join(root, "b.edit.cshtml"))
	assert.Empty(t, e.ActivePairs())
	assert.Empty(t, loadPairs(t, root))

	require.NoError(t, e.Reconcile(ctx, manifest.Delta{Removed: []manifest.FilePair{unset}}))
	assert.Empty(t, e.ActivePairs())
}

func TestEngineRemovingUnsetPairDisposesDerivedWatch(t *testing.T) {
	root := testutils.CreateTempProject(t)
	testutils.WriteProjectFile(t, root, "b.cshtml", "b")
	testutils.WriteManifest(t, root)
	e := startEngine(t, root)
	ctx := context.Background()

	derived := manifest.NewFilePair("b.edit.cshtml", "b.cshtml")
	require.NoError(t, e.Reconcile(ctx, manifest.Delta{Added: []manifest.FilePair{derived}}))
	require.Equal(t, []manifest.FilePair{derived}, e.ActivePairs())

	require.NoError(t, e.Reconcile(ctx, manifest.Delta{Removed: []manifest.FilePair{manifest.NewFilePair("", "b.cshtml")}}))
	assert.Empty(t, e.ActivePairs())
}

func TestEngineUnsetRemovalKeepsDeclaredDerivedPair(t *testing.T) {
	root := testutils.CreateTempProject(t)
	testutils.WriteProjectFile(t, root, "b.cshtml", "b")
	derived := manifest.NewFilePair("b.edit.cshtml", "b.cshtml")
	testutils.WriteManifest(t, root, derived)
	e := startEngine(t, root)

	require.NoError(t, e.Reconcile(context.Background(),
		manifest.Delta{Removed: []manifest.FilePair{manifest.NewFilePair("", "b.cshtml")}}))
	assert.Equal(t, []manifest.FilePair{derived}, e.ActivePairs())
}

func TestEngineManyPairs(t *testing.T) {
	root := testutils.CreateTempProject(t)
	const n = 200

	pairs := make([]manifest.FilePair, 0, n)
	for i := 0; i < n; i++ {
		out := fmt.Sprintf("Views/Shared/v%03d.cshtml", i)
		testutils.WriteProjectFile(t, root, out, "<p>\n  x\n</p>")
		pairs = append(pairs, manifest.NewFilePair("", out))
	}
	testutils.WriteManifest(t, root, pairs...)

	rec := &recorder{}
	e := startEngine(t, root, WithNotifier(rec))

	assert.Len(t, e.ActivePairs(), n)
	assert.Empty(t, rec.levels())
	require.NotNil(t, e.mux)
	assert.Equal(t, 1, e.mux.Dirs())

	require.NoError(t, os.WriteFile(filepath.Join(root, "Views/Shared/v199.edit.cshtml"), []byte("<i>\n z\n</i>"), 0644))
	testutils.WaitForFileContent(t, filepath.Join(root, "Views/Shared/v199.cshtml"), "<i>z</i>", waitFor)
}

func TestEngineAddPairBeforeStart(t *testing.T) {
	root := testutils.CreateTempProject(t)
	testutils.WriteProjectFile(t, root, "a.cshtml", "<!-- c -->\n<a>\n 1\n</a>")
	e := newEngine(t, root)
	ctx := context.Background()

	added, err := e.AddPair(ctx, "", "a.cshtml")
	require.NoError(t, err)
	assert.True(t, added)

	assert.Equal(t, "<!-- c -->\n<a>\n 1\n</a>", testutils.ReadProjectFile(t, root, "a.edit.cshtml"))
	assert.Equal(t, "<a>1</a>", testutils.ReadProjectFile(t, root, "a.cshtml"))
	assert.Empty(t, e.ActivePairs(), "an engine that was never started installs no watch")
	assert.Nil(t, e.mux)

	want := manifest.NewFilePair("a.edit.cshtml", "a.cshtml")
	assert.Equal(t, []manifest.FilePair{want}, loadPairs(t, root))

	require.NoError(t, e.Start(ctx))
	assert.Equal(t, []manifest.FilePair{want}, e.ActivePairs())
}

func TestEnginePairOptions(t *testing.T) {
	root := testutils.CreateTempProject(t)
	src := "<style>p{color:red}</style><p>x</p>"
	testutils.WriteProjectFile(t, root, "plain.cshtml", src)
	testutils.WriteProjectFile(t, root, "inlined.cshtml", src)
	testutils.WriteManifest(t, root)

	e := startEngine(t, root)
	ctx := context.Background()

	added, err := e.AddPairWithOptions(ctx, "", "plain.cshtml", manifest.PairOptions{InlineStyles: manifest.Bool(false)})
	require.NoError(t, err)
	require.True(t, added)
	added, err = e.AddPair(ctx, "", "inlined.cshtml")
	require.NoError(t, err)
	require.True(t, added)

	assert.Equal(t, src, testutils.ReadProjectFile(t, root, "plain.cshtml"))
	assert.Equal(t, `<p style="color:red">x</p>`, testutils.ReadProjectFile(t, root, "inlined.cshtml"))

	m, err := manifest.Load(filepath.Join(root, manifest.DefaultName), root)
	require.NoError(t, err)
	assert.Equal(t, manifest.Bool(false), m.Options[manifest.NewFilePair("plain.edit.cshtml", "plain.cshtml")].InlineStyles)
	assert.NotContains(t, m.Options, manifest.NewFilePair("inlined.edit.cshtml", "inlined.cshtml"))

	require.NoError(t, os.WriteFile(filepath.Join(root, "plain.edit.cshtml"), []byte("<style>i{a:b}</style>\n<i>y</i>"), 0644))
	testutils.WaitForFileContent(t, filepath.Join(root, "plain.cshtml"), "<style>i{a:b}</style><i>y</i>", waitFor)
}

// writeFakeEsbuild installs a shell script that records its arguments as the
// minified output.
func writeFakeEsbuild(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake esbuild is a shell script")
	}

	path := filepath.Join(t.TempDir(), "esbuild")
	script := "#!/bin/sh\n" +
		"for arg in \"$@\"; do\n" +
		"  case \"$arg\" in\n" +
		"    --outfile=*) out=\"${arg#--outfile=}\" ;;\n" +
		"  esac\n" +
		"done\n" +
		"echo \"$@\" > \"$out\"\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func TestEngineAddScript(t *testing.T) {
	root := testutils.CreateTempProject(t)
	testutils.WriteProjectFile(t, root, "wwwroot/js/site.js", "let  x = 1")
	testutils.WriteProjectFile(t, root, "wwwroot/js/app.js", "let  y = 2")
	testutils.WriteProjectFile(t, root, "wwwroot/js/app.min.js", "")
	testutils.WriteManifest(t, root)

	store, err := manifest.Open(filepath.Join(root, manifest.DefaultName), root,
		manifest.WithReloadDelay(20*time.Millisecond))
	require.NoError(t, err)
	esbuild := minify.NewEsbuild(writeFakeEsbuild(t))
	esbuild.Options = minify.RemoveWhitespace
	e := New(store, minify.NewProcessor(minify.Options{Esbuild: esbuild}))
	t.Cleanup(func() { _ = e.Close() })
	ctx := context.Background()
	require.NoError(t, e.Start(ctx))

	p, added, err := e.AddScript(ctx, "wwwroot/js/site.js", manifest.PairOptions{})
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, manifest.NewFilePair("wwwroot/js/site.js", "wwwroot/js/site.min.js"), p)
	assert.Contains(t, testutils.ReadProjectFile(t, root, "wwwroot/js/site.min.js"),
		"--minify-whitespace --minify-identifiers --minify-syntax")
	assert.Equal(t, manifest.AllScriptPasses(), store.Options(p))
	assert.Contains(t, e.ActivePairs(), p)

	_, added, err = e.AddScript(ctx, "wwwroot/js/site.js", manifest.PairOptions{})
	require.NoError(t, err)
	assert.False(t, added)

	_, _, err = e.AddScript(ctx, "Views/Home/Index.cshtml", manifest.PairOptions{})
	assert.True(t, rerrors.HasErrorCode(err, rerrors.ErrCodePairInvalid))
	_, _, err = e.AddScript(ctx, "wwwroot/js/missing.js", manifest.PairOptions{})
	assert.True(t, rerrors.HasErrorCode(err, rerrors.ErrCodePairInvalid))
	_, _, err = e.AddScript(ctx, "wwwroot/js/site.min.js", manifest.PairOptions{})
	assert.True(t, rerrors.HasErrorCode(err, rerrors.ErrCodePairInvalid))
	assert.NoFileExists(t, filepath.Join(root, "wwwroot/js/site.min.min.js"))

	t.Run("overrides", func(t *testing.T) {
		testutils.WriteProjectFile(t, root, "wwwroot/js/nav.js", "let  z = 3")
		p, added, err := e.AddScript(ctx, "wwwroot/js/nav.js", manifest.PairOptions{ShortenIdentifiers: manifest.Bool(false)})
		require.NoError(t, err)
		require.True(t, added)

		out := testutils.ReadProjectFile(t, root, "wwwroot/js/nav.min.js")
		assert.Contains(t, out, "--minify-whitespace --minify-syntax")
		assert.NotContains(t, out, "--minify-identifiers")
		assert.Equal(t, manifest.Bool(false), store.Options(p).ShortenIdentifiers)
	})

	t.Run("per pair passes", func(t *testing.T) {
		app := manifest.NewFilePair("wwwroot/js/app.js", "wwwroot/js/app.min.js")
		added, err := e.AddPairWithOptions(ctx, app.Edit, app.Output, manifest.PairOptions{
			ShortenSyntax: manifest.Bool(true),
		})
		require.NoError(t, err)
		require.True(t, added)

		res, err := e.Touch(ctx, filepath.Join(root, "wwwroot/js/app.js"))
		require.NoError(t, err)
		require.True(t, res.Success, res.Message)

		out := testutils.ReadProjectFile(t, root, "wwwroot/js/app.min.js")
		assert.Contains(t, out, "--minify-whitespace --minify-syntax")
		assert.NotContains(t, out, "--minify-identifiers")
	})
}

func TestEngineAddPair(t *testing.T) {
	root := testutils.CreateTempProject(t)
	testutils.WriteProjectFile(t, root, "Views/Home/Index.cshtml", testutils.StandardRazorContent["Index"])
	e := startEngine(t, root)
	ctx := context.Background()

	added, err := e.AddPair(ctx, "", "Views/Home/Index.cshtml")
	require.NoError(t, err)
	assert.True(t, added)

	want := manifest.NewFilePair("Views/Home/Index.edit.cshtml", "Views/Home/Index.cshtml")
	assert.Equal(t, []manifest.FilePair{want}, loadPairs(t, root))
	assert.Equal(t, testutils.StandardRazorContent["Index"],
		testutils.ReadProjectFile(t, root, "Views/Home/Index.edit.cshtml"))
	assert.NotContains(t, testutils.ReadProjectFile(t, root, "Views/Home/Index.cshtml"), "<!--")

	t.Run("duplicate", func(t *testing.T) {
		added, err := e.AddPair(ctx, "", "Views/Home/Index.cshtml")
		require.NoError(t, err)
		assert.False(t, added)

		added, err = e.AddPair(ctx, "Views/Home/Index.edit.cshtml", "Views/Home/Index.cshtml")
		require.NoError(t, err)
		assert.False(t, added)
	})

	t.Run("missing output", func(t *testing.T) {
		added, err := e.AddPair(ctx, "", "Views/Home/Nope.cshtml")
		require.Error(t, err)
		assert.False(t, added)
		assert.True(t, rerrors.IsOutputMissing(err))
		assert.Equal(t, []manifest.FilePair{want}, loadPairs(t, root))
	})

	t.Run("path traversal", func(t *testing.T) {
		for _, p := range testutils.SecurityTestCases.PathTraversal {
			added, err := e.AddPair(ctx, "", p)
			require.Error(t, err, p)
			assert.False(t, added)
		}
	})
}

func TestEngineRemovePair(t *testing.T) {
	root := testutils.CreateTempProject(t)
	testutils.WriteProjectFile(t, root, "a.cshtml", "a")
	p := manifest.NewFilePair("a.edit.cshtml", "a.cshtml")
	testutils.WriteManifest(t, root, p)

	e := startEngine(t, root)
	require.Len(t, e.ActivePairs(), 1)

	require.NoError(t, e.RemovePair(context.Background(), p))
	assert.Empty(t, e.ActivePairs())
	assert.Empty(t, loadPairs(t, root))

	require.NoError(t, e.RemovePair(context.Background(), p))
}

func TestEngineEditablePathsAndPairFor(t *testing.T) {
	root := testutils.CreateTempProject(t)
	testutils.WriteProjectFile(t, root, "b.cshtml", "b")
	testutils.WriteProjectFile(t, root, "a.cshtml", "<i>\n a\n</i>")
	testutils.WriteManifest(t, root,
		manifest.NewFilePair("", "b.cshtml"),
		manifest.NewFilePair("", "a.cshtml"))

	e := startEngine(t, root)

	assert.Equal(t, []string{
		filepath.Join(root, "a.edit.cshtml"),
		filepath.Join(root, "b.edit.cshtml"),
	}, e.EditablePaths())

	p, ok := e.PairFor(filepath.Join(root, "a.cshtml"))
	require.True(t, ok)
	assert.Equal(t, "a.edit.cshtml", p.Edit)

	p, ok = e.PairFor(filepath.Join(root, "a.edit.cshtml"))
	require.True(t, ok)
	assert.Equal(t, "a.cshtml", p.Output)

	_, ok = e.PairFor(filepath.Join(root, "c.cshtml"))
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.cshtml"), []byte("clobbered"), 0644))
	res, err := e.Touch(context.Background(), filepath.Join(root, "a.cshtml"))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "<i>a</i>", testutils.ReadProjectFile(t, root, "a.cshtml"))

	_, err = e.Touch(context.Background(), filepath.Join(root, "c.cshtml"))
	assert.True(t, rerrors.HasErrorCode(err, rerrors.ErrCodePairInvalid))
}

func TestEngineNotifiesWarnings(t *testing.T) {
	root := testutils.CreateTempProject(t)
	testutils.WriteProjectFile(t, root, "p.cshtml", "")
	testutils.WriteProjectFile(t, root, "p.edit.cshtml", "")
	testutils.WriteManifest(t, root, manifest.NewFilePair("p.edit.cshtml", "p.cshtml"))

	rec := &recorder{}
	startEngine(t, root, WithNotifier(rec))

	src := "<style>@media print{p{color:red}}</style><p>x</p>"
	require.NoError(t, os.WriteFile(filepath.Join(root, "p.edit.cshtml"), []byte(src), 0644))

	require.Eventually(t, func() bool {
		for _, l := range rec.levels() {
			if l == notify.LevelWarning {
				return true
			}
		}
		return false
	}, waitFor, 10*time.Millisecond)
	assert.Contains(t, testutils.ReadProjectFile(t, root, "p.cshtml"), "@media print")
}

func TestEngineOutputRecreated(t *testing.T) {
	root := testutils.CreateTempProject(t)
	testutils.WriteProjectFile(t, root, "p.cshtml", "<p>\n x\n</p>")
	testutils.WriteManifest(t, root, manifest.NewFilePair("", "p.cshtml"))

	startEngine(t, root)
	require.NoError(t, os.Remove(filepath.Join(root, "p.cshtml")))

	require.NoError(t, os.WriteFile(filepath.Join(root, "p.edit.cshtml"), []byte("<q>\n y\n</q>"), 0644))
	testutils.WaitForFileContent(t, filepath.Join(root, "p.cshtml"), "<q>y</q>", waitFor)
	testutils.AssertFilePermissions(t, filepath.Join(root, "p.cshtml"), 0644)
}

func TestEngineOutputKeepsPermissions(t *testing.T) {
	root := testutils.CreateTempProject(t)
	out := testutils.WriteProjectFile(t, root, "p.cshtml", "<p>\n x\n</p>")
	require.NoError(t, os.Chmod(out, 0600))
	testutils.WriteManifest(t, root, manifest.NewFilePair("", "p.cshtml"))

	startEngine(t, root)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(out, past, past))
	require.NoError(t, os.WriteFile(filepath.Join(root, "p.edit.cshtml"), []byte("<q>\n y\n</q>"), 0644))

	testutils.WaitForFileChange(t, out, past, waitFor)
	testutils.WaitForFileContent(t, out, "<q>y</q>", waitFor)
	testutils.AssertFilePermissions(t, out, 0600)
}

func TestEngineClose(t *testing.T) {
	root := testutils.CreateTempProject(t)
	testutils.WriteProjectFile(t, root, "a.cshtml", "a")
	testutils.WriteManifest(t, root, manifest.NewFilePair("", "a.cshtml"))

	e := startEngine(t, root)
	require.Len(t, e.ActivePairs(), 1)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	assert.Empty(t, e.ActivePairs())

	err := e.Start(context.Background())
	assert.True(t, rerrors.HasErrorCode(err, rerrors.ErrCodeClosed))

	_, err = e.AddPair(context.Background(), "", "a.cshtml")
	assert.True(t, rerrors.HasErrorCode(err, rerrors.ErrCodeClosed))

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.edit.cshtml"), []byte("<b>\n b\n</b>"), 0644))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, "a", testutils.ReadProjectFile(t, root, "a.cshtml"))
}

func TestEngineCloseWithoutStart(t *testing.T) {
	root := testutils.CreateTempProject(t)
	e := newEngine(t, root)
	require.NoError(t, e.Close())
}

func TestEngineStartContextCancel(t *testing.T) {
	root := testutils.CreateTempProject(t)
	testutils.WriteProjectFile(t, root, "a.cshtml", "a")
	testutils.WriteManifest(t, root, manifest.NewFilePair("", "a.cshtml"))

	e := newEngine(t, root)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, e.Start(ctx))
	cancel()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.edit.cshtml"), []byte("<b>\n b\n</b>"), 0644))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, "a", testutils.ReadProjectFile(t, root, "a.cshtml"))
}
