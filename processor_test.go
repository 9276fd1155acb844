package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helloArticle = "---\ntitle: Hello\nnobanner: true\n---\nBody text\n"

type stubRenderer struct {
	calls  []BannerOptions
	err    error
	failOn string
}

func (s *stubRenderer) Render(_ context.Context, opts BannerOptions) ([]byte, error) {
	s.calls = append(s.calls, opts)
	if s.err != nil {
		return nil, s.err
	}
	if s.failOn != "" && opts.Text == s.failOn {
		return nil, ErrTextOverflow
	}
	return []byte("PNG"), nil
}

func testSettings() *Settings {
	settings := DefaultSettings()
	settings.ArticlesDir = "posts"
	settings.OutputDir = filepath.Join("public", "titles")
	settings.Banner.Background = ""
	return settings
}

func newTestProcessor(t *testing.T, fs afero.Fs, renderer Renderer) (*BannerProcessor, *bytes.Buffer) {
	t.Helper()
	bp, err := NewBannerProcessor(testSettings(), fs, renderer, newLogger(io.Discard, false, false))
	require.NoError(t, err)

	var out bytes.Buffer
	bp.SetOutput(&out)
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	bp.now = func() time.Time { return fixed }
	return bp, &out
}

func writeArticle(t *testing.T, fs afero.Fs, name, content string) string {
	t.Helper()
	path := filepath.Join("posts", name)
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0644))
	return path
}

func readString(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	return string(data)
}

func TestRunGeneratesHelloBanner(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := writeArticle(t, fs, "hello.md", helloArticle)
	renderer := &stubRenderer{}
	bp, out := newTestProcessor(t, fs, renderer)

	report, err := bp.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Generated)
	assert.Equal(t, 0, report.Failed)
	assert.NotEmpty(t, report.RunID)

	assert.Equal(t, "PNG", readString(t, fs, filepath.Join("public", "titles", "hello.png")))
	assert.Equal(t,
		"---\ntitle: Hello\nimage: https://blog.roz.ninja/assets/images/titles/hello.png\n---\nBody text\n",
		readString(t, fs, path))

	assert.Equal(t,
		"[hello.md] Generating banner for \"Hello\"... Adding URL to frontmatter... Done\nGenerated 1 image(s). Took 0ms\n",
		out.String())

	require.Len(t, renderer.calls, 1)
	opts := renderer.calls[0]
	assert.Equal(t, "Hello", opts.Text)
	assert.Equal(t, DefaultCanvasWidth, opts.CanvasWidth)
	assert.Equal(t, DefaultCanvasHeight, opts.CanvasHeight)
	assert.Equal(t, DefaultPadding, opts.HPadding)
	assert.Equal(t, DefaultPadding, opts.WPadding)
	assert.Equal(t, DefaultFontSize, opts.InitialFontSize)
	assert.NotNil(t, opts.Font)
}

func TestRunIsIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeArticle(t, fs, "hello.md", helloArticle)
	renderer := &stubRenderer{}
	bp, _ := newTestProcessor(t, fs, renderer)

	first, err := bp.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Generated)

	second, err := bp.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Generated)
	assert.Equal(t, 1, second.Skipped)
	assert.Len(t, renderer.calls, 1)
}

func TestRunSkipsArticles(t *testing.T) {
	tests := []struct {
		name    string
		content string
		banner  bool
		reason  string
	}{
		{"banner exists", helloArticle, true, "banner exists"},
		{"no front matter", "# Just markdown\n\nnobanner: true\n", false, "no front matter"},
		{"marker absent", "---\ntitle: Hello\nimage: https://example.com/x.png\n---\n", false, "no pending marker"},
		{"marker false", "---\ntitle: Hello\nnobanner: false\n---\n", false, "no pending marker"},
		{"block after blank line", "\n---\ntitle: Hello\nnobanner: true\n---\n", false, "no front matter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			path := writeArticle(t, fs, "hello.md", tt.content)
			bannerPath := filepath.Join("public", "titles", "hello.png")
			if tt.banner {
				require.NoError(t, afero.WriteFile(fs, bannerPath, []byte("OLD"), 0644))
			}

			renderer := &stubRenderer{}
			bp, out := newTestProcessor(t, fs, renderer)

			result := bp.ProcessArticle(context.Background(), path)
			assert.Equal(t, StatusSkipped, result.Status)
			assert.Equal(t, tt.reason, result.Reason)
			assert.Empty(t, renderer.calls)
			assert.Empty(t, out.String())
			assert.Equal(t, tt.content, readString(t, fs, path))

			if tt.banner {
				assert.Equal(t, "OLD", readString(t, fs, bannerPath))
			} else {
				exists, err := afero.Exists(fs, bannerPath)
				require.NoError(t, err)
				assert.False(t, exists)
			}
		})
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	fs := afero.NewMemMapFs()
	malformed := "---\ntitle: [unclosed\nnobanner: true\n---\n"
	writeArticle(t, fs, "a.md", "---\ntitle: First\nnobanner: true\n---\n")
	bad := writeArticle(t, fs, "b.md", malformed)
	writeArticle(t, fs, "c.md", "---\ntitle: Third\nnobanner: true\n---\n")

	renderer := &stubRenderer{}
	bp, out := newTestProcessor(t, fs, renderer)

	report, err := bp.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Generated)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, malformed, readString(t, fs, bad))
	assert.Contains(t, out.String(), "[b.md] Failed: parsing front matter: invalid front matter")
	assert.NotContains(t, out.String(), filepath.Join("posts", "b.md"))
	assert.Contains(t, out.String(), "Generated 2 image(s).")

	for _, name := range []string{"a.png", "c.png"} {
		exists, err := afero.Exists(fs, filepath.Join("public", "titles", name))
		require.NoError(t, err)
		assert.True(t, exists, name)
	}
}

func TestProcessArticleRenderFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := writeArticle(t, fs, "hello.md", helloArticle)
	bp, out := newTestProcessor(t, fs, &stubRenderer{failOn: "Hello"})

	result := bp.ProcessArticle(context.Background(), path)

	require.Equal(t, StatusError, result.Status)
	assert.True(t, errors.Is(result.Error, ErrTextOverflow))

	var articleErr *ArticleError
	require.ErrorAs(t, result.Error, &articleErr)
	assert.Equal(t, stepRender, articleErr.Step)

	assert.Equal(t, helloArticle, readString(t, fs, path))
	exists, err := afero.Exists(fs, filepath.Join("public", "titles", "hello.png"))
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Contains(t, out.String(), "Generating banner for \"Hello\"... Failed: generating banner:")
}

func TestProcessArticleMarkerNotLiteral(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := "---\ntitle: Hello\nnobanner:   true\n---\n"
	path := writeArticle(t, fs, "hello.md", content)
	renderer := &stubRenderer{}
	bp, _ := newTestProcessor(t, fs, renderer)

	result := bp.ProcessArticle(context.Background(), path)

	require.Equal(t, StatusError, result.Status)
	assert.ErrorIs(t, result.Error, ErrMarkerNotFound)
	assert.Empty(t, renderer.calls)
	assert.Equal(t, content, readString(t, fs, path))

	exists, err := afero.Exists(fs, filepath.Join("public", "titles", "hello.png"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestProcessArticleOverrides(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := writeArticle(t, fs, "styled.md", `---
title: Bar
nobanner: true
banner:
  text: Foo
  canvasWidth: 800
  wPadding: 10
  nowrap: true
---
`)
	renderer := &stubRenderer{}
	bp, _ := newTestProcessor(t, fs, renderer)

	result := bp.ProcessArticle(context.Background(), path)
	require.Equal(t, StatusGenerated, result.Status, "%v", result.Error)

	require.Len(t, renderer.calls, 1)
	opts := renderer.calls[0]
	assert.Equal(t, "Foo", opts.Text)
	assert.Equal(t, 800, opts.CanvasWidth)
	assert.Equal(t, DefaultCanvasHeight, opts.CanvasHeight)
	assert.Equal(t, 10, opts.WPadding)
	assert.Equal(t, DefaultPadding, opts.HPadding)
	assert.True(t, opts.NoWrap)
	assert.False(t, opts.Debug)
}

func TestRunMissingArticlesDir(t *testing.T) {
	bp, out := newTestProcessor(t, afero.NewMemMapFs(), &stubRenderer{})

	_, err := bp.Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, out.String())
}

func TestRunNestedArticles(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeArticle(t, fs, filepath.Join("2024", "nested.md"), "---\ntitle: Nested\nnobanner: true\n---\n")
	writeArticle(t, fs, "notes.txt", "---\nnobanner: true\n---\n")

	bp, out := newTestProcessor(t, fs, &stubRenderer{})
	report, err := bp.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Generated)
	assert.Contains(t, out.String(), "[2024/nested.md] Generating banner for \"Nested\"")
	exists, err := afero.Exists(fs, filepath.Join("public", "titles", "nested.png"))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRunStopsWhenCancelled(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeArticle(t, fs, "hello.md", helloArticle)
	renderer := &stubRenderer{}
	bp, _ := newTestProcessor(t, fs, renderer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := bp.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, renderer.calls)
}

func TestBannerPathFor(t *testing.T) {
	tests := []struct {
		name     string
		article  string
		expected string
	}{
		{"markdown", filepath.Join("posts", "hello.md"), filepath.Join("public", "titles", "hello.png")},
		{"nested", filepath.Join("posts", "2024", "deep.md"), filepath.Join("public", "titles", "deep.png")},
		{"dotted name", filepath.Join("posts", "v1.2-notes.md"), filepath.Join("public", "titles", "v1.2-notes.png")},
	}

	bp, _ := newTestProcessor(t, afero.NewMemMapFs(), &stubRenderer{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, bp.bannerPathFor(tt.article))
		})
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected bool
	}{
		{"top level", filepath.Join("posts", "a.md"), true},
		{"nested", filepath.Join("posts", "x", "y", "a.md"), true},
		{"other extension", filepath.Join("posts", "a.txt"), false},
		{"outside root", filepath.Join("drafts", "a.md"), false},
		{"dotted name at root", filepath.Join("posts", "..draft.md"), true},
		{"parent directory", filepath.Join("posts", ".."), false},
	}

	bp, _ := newTestProcessor(t, afero.NewMemMapFs(), &stubRenderer{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, bp.Matches(tt.path))
		})
	}
}

func TestNewBannerProcessorMissingBackground(t *testing.T) {
	settings := testSettings()
	settings.Banner.Background = filepath.Join("assets", "missing.png")

	bp, err := NewBannerProcessor(settings, afero.NewMemMapFs(), &stubRenderer{}, newLogger(io.Discard, false, false))
	require.NoError(t, err)
	assert.Empty(t, bp.defaults.Background)
	assert.Equal(t, filepath.Join("assets", "missing.png"), settings.Banner.Background)
}

func TestNewBannerProcessorBadFont(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "font.ttf", []byte("not a font"), 0644))
	settings := testSettings()
	settings.FontPath = "font.ttf"

	_, err := NewBannerProcessor(settings, fs, &stubRenderer{}, newLogger(io.Discard, false, false))
	assert.Error(t, err)
}

// renameFailFs fails renames onto one path and passes everything else through
type renameFailFs struct {
	afero.Fs
	target string
}

func (f *renameFailFs) Rename(oldname, newname string) error {
	if newname == f.target {
		return errors.New("rename refused")
	}
	return f.Fs.Rename(oldname, newname)
}

func TestProcessArticleWriteFailureRemovesBanner(t *testing.T) {
	mem := afero.NewMemMapFs()
	path := writeArticle(t, mem, "hello.md", helloArticle)
	fs := &renameFailFs{Fs: mem, target: path}
	bp, out := newTestProcessor(t, fs, &stubRenderer{})

	result := bp.ProcessArticle(context.Background(), path)

	require.Equal(t, StatusError, result.Status)
	var articleErr *ArticleError
	require.ErrorAs(t, result.Error, &articleErr)
	assert.Equal(t, stepWriteArticle, articleErr.Step)
	assert.Contains(t, out.String(), "Adding URL to frontmatter... Failed: writing article: rename refused")

	assert.Equal(t, helloArticle, readString(t, mem, path))
	exists, err := afero.Exists(mem, filepath.Join("public", "titles", "hello.png"))
	require.NoError(t, err)
	assert.False(t, exists)

	// no temp files are left next to the article
	entries, err := afero.ReadDir(mem, "posts")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "hello.md", entries[0].Name())

	// the next run retries the article
	fs.target = ""
	retry := bp.ProcessArticle(context.Background(), path)
	assert.Equal(t, StatusGenerated, retry.Status)
}
