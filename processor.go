// processor.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"golang.org/x/image/font/opentype"
)

const bannerExt = ".png"

// BannerProcessor handles the main workflow
type BannerProcessor struct {
	fs       afero.Fs
	settings *Settings
	defaults BannerDefaults
	renderer Renderer
	font     *opentype.Font
	out      io.Writer
	logger   *log.Logger
	now      func() time.Time
}

// NewBannerProcessor loads the font and checks the default background once
// so every article in the run shares them.
func NewBannerProcessor(settings *Settings, fs afero.Fs, renderer Renderer, logger *log.Logger) (*BannerProcessor, error) {
	fnt, err := loadFont(fs, settings.FontPath)
	if err != nil {
		return nil, fmt.Errorf("loading font: %w", err)
	}

	defaults := settings.Banner
	if bg := defaults.Background; bg != "" && !isRemote(bg) {
		exists, err := afero.Exists(fs, bg)
		if err != nil {
			return nil, fmt.Errorf("checking default background: %w", err)
		}
		if !exists {
			logger.Warn("Default background not found, using a solid fill", "background", bg)
			defaults.Background = ""
		}
	}

	return &BannerProcessor{
		fs:       fs,
		settings: settings,
		defaults: defaults,
		renderer: renderer,
		font:     fnt,
		out:      os.Stdout,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// SetOutput sets where progress and the summary are printed
func (bp *BannerProcessor) SetOutput(w io.Writer) {
	bp.out = w
}

// Run processes every matching article under the articles directory and
// prints the summary line. Article failures are reported and counted; only
// a failure to enumerate the articles directory is returned.
func (bp *BannerProcessor) Run(ctx context.Context) (*RunReport, error) {
	started := bp.now()
	report := &RunReport{RunID: uuid.NewString()}
	logger := bp.logger.With("run", report.RunID)
	root := bp.settings.ArticlesDir

	logger.Debug("Scanning articles", "dir", root, "pattern", bp.settings.ArticlePattern)

	walkErr := afero.Walk(bp.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			logger.Warn("Skipping unreadable entry", "path", path, "err", err)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if info.IsDir() || !bp.Matches(path) {
			return nil
		}

		result := bp.ProcessArticle(ctx, path)
		report.record(result)
		if result.Status == StatusError {
			logger.Error("Article failed", "article", path, "err", result.Error)
		}
		return nil
	})

	report.Elapsed = bp.now().Sub(started)
	if walkErr != nil {
		return report, fmt.Errorf("scanning %s: %w", root, walkErr)
	}

	fmt.Fprintln(bp.out, report.Summary())
	logger.Debug("Run finished", "generated", report.Generated, "skipped", report.Skipped, "failed", report.Failed)
	return report, nil
}

// Matches reports whether path is an article under the articles directory
func (bp *BannerProcessor) Matches(path string) bool {
	rel, err := filepath.Rel(bp.settings.ArticlesDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	ok, err := doublestar.Match(bp.settings.ArticlePattern, filepath.ToSlash(rel))
	return err == nil && ok
}

// ProcessArticle runs the full pipeline for a single article
func (bp *BannerProcessor) ProcessArticle(ctx context.Context, path string) ProcessingResult {
	bannerPath := bp.bannerPathFor(path)
	logger := bp.logger.With("article", path)

	// Skip if a banner for this article already exists
	exists, err := afero.Exists(bp.fs, bannerPath)
	if err != nil {
		return bp.fail(path, stepGate, err)
	}
	if exists {
		logger.Debug("Skipping: banner exists", "banner", bannerPath)
		return skipped(path, "banner exists")
	}

	article, err := bp.readArticle(path)
	if err != nil {
		return bp.fail(path, stepRead, err)
	}

	fm, err := ExtractFrontMatter(article.Source)
	if errors.Is(err, ErrNoFrontMatter) {
		logger.Debug("Skipping: no front matter")
		return skipped(path, "no front matter")
	}
	if err != nil {
		return bp.fail(path, stepParse, err)
	}
	if !fm.Pending() {
		logger.Debug("Skipping: no pending marker")
		return skipped(path, "no pending marker")
	}

	opts := ResolveOptions(fm, bp.defaults, bp.font)
	imageName := filepath.Base(bannerPath)

	// Rewrite before rendering so a bad marker never leaves an orphan banner
	rewritten, err := RewriteMarker(article.Source, pendingMarker, imageReference(bp.settings.PublicBaseURL, imageName))
	if err != nil {
		return bp.fail(path, stepRewrite, err)
	}

	fmt.Fprintf(bp.out, "[%s] Generating banner for %q... ", bp.relPath(path), opts.Text)
	logger.Debug("  → Rendering banner", "size", fmt.Sprintf("%dx%d", opts.CanvasWidth, opts.CanvasHeight), "background", opts.Background)
	png, err := bp.renderer.Render(ctx, opts)
	if err != nil {
		return bp.failProgress(path, stepRender, err)
	}

	if err := bp.fs.MkdirAll(bp.settings.OutputDir, 0755); err != nil {
		return bp.failProgress(path, stepWriteBanner, err)
	}
	if err := bp.writeFile(bannerPath, png, 0644); err != nil {
		return bp.failProgress(path, stepWriteBanner, err)
	}

	fmt.Fprint(bp.out, "Adding URL to frontmatter... ")
	if err := bp.writeFile(path, rewritten, article.mode); err != nil {
		// Without the rewrite the banner would hide the article from the next run
		if rmErr := bp.fs.Remove(bannerPath); rmErr != nil {
			logger.Warn("Could not remove banner", "banner", bannerPath, "err", rmErr)
		}
		return bp.failProgress(path, stepWriteArticle, err)
	}
	fmt.Fprintln(bp.out, "Done")

	return ProcessingResult{
		Path:       path,
		Status:     StatusGenerated,
		BannerPath: bannerPath,
	}
}

// bannerPathFor maps an article to <output_dir>/<base name>.png
func (bp *BannerProcessor) bannerPathFor(articlePath string) string {
	base := filepath.Base(articlePath)
	name := strings.TrimSuffix(base, filepath.Ext(base)) + bannerExt
	return filepath.Join(bp.settings.OutputDir, name)
}

type loadedArticle struct {
	Article
	mode os.FileMode
}

func (bp *BannerProcessor) readArticle(path string) (*loadedArticle, error) {
	info, err := bp.fs.Stat(path)
	if err != nil {
		return nil, err
	}
	source, err := afero.ReadFile(bp.fs, path)
	if err != nil {
		return nil, err
	}
	return &loadedArticle{
		Article: Article{Path: path, Name: filepath.Base(path), Source: source},
		mode:    info.Mode().Perm(),
	}, nil
}

// writeFile replaces path atomically through a uniquely named temp file
func (bp *BannerProcessor) writeFile(path string, data []byte, perm os.FileMode) error {
	tmp := fmt.Sprintf("%s.%s.tmp", path, uuid.NewString())
	if err := afero.WriteFile(bp.fs, tmp, data, perm); err != nil {
		return err
	}
	if err := bp.fs.Rename(tmp, path); err != nil {
		_ = bp.fs.Remove(tmp)
		return err
	}
	return nil
}

func (bp *BannerProcessor) relPath(path string) string {
	rel, err := filepath.Rel(bp.settings.ArticlesDir, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func (bp *BannerProcessor) fail(path, step string, err error) ProcessingResult {
	articleErr := &ArticleError{Path: path, Step: step, Err: err}
	fmt.Fprintf(bp.out, "[%s] Failed: %s: %v\n", bp.relPath(path), step, err)
	return ProcessingResult{Path: path, Status: StatusError, Error: articleErr}
}

// failProgress finishes a progress line that has already been started
func (bp *BannerProcessor) failProgress(path, step string, err error) ProcessingResult {
	articleErr := &ArticleError{Path: path, Step: step, Err: err}
	fmt.Fprintf(bp.out, "Failed: %s: %v\n", step, err)
	return ProcessingResult{Path: path, Status: StatusError, Error: articleErr}
}

func skipped(path, reason string) ProcessingResult {
	return ProcessingResult{Path: path, Status: StatusSkipped, Reason: reason}
}
