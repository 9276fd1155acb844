package main

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

const (
	quietPeriod = 500 * time.Millisecond
	flushEvery  = 100 * time.Millisecond
)

// ArticleWatcher regenerates banners as articles are created or saved.
// Events are handled one at a time on the Start loop.
type ArticleWatcher struct {
	processor *BannerProcessor
	watcher   *fsnotify.Watcher
	logger    *log.Logger
	pending   map[string]time.Time
}

// NewArticleWatcher creates a watcher over the processor's articles directory
func NewArticleWatcher(processor *BannerProcessor, logger *log.Logger) (*ArticleWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &ArticleWatcher{
		processor: processor,
		watcher:   fsWatcher,
		logger:    logger,
		pending:   make(map[string]time.Time),
	}, nil
}

// Start watches the articles tree until ctx is cancelled
func (w *ArticleWatcher) Start(ctx context.Context) error {
	defer w.watcher.Close()

	root := w.processor.settings.ArticlesDir
	if err := w.addTree(root); err != nil {
		return err
	}
	w.logger.Info("Watching articles", "dir", root)

	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(event, time.Now())

		case now := <-ticker.C:
			w.flush(ctx, now)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error", "err", err)
		}
	}
}

func (w *ArticleWatcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("watching %s: %w", root, err)
			}
			w.logger.Warn("Skipping unreadable entry", "path", path, "err", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		w.logger.Debug("Watching folder", "dir", path)
		return nil
	})
}

// handle queues matching articles; editors often write a file in several
// steps, so processing waits for quietPeriod without further events.
func (w *ArticleWatcher) handle(event fsnotify.Event, now time.Time) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := w.processor.fs.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warn("Could not watch new folder", "dir", event.Name, "err", err)
			}
			return
		}
	}

	if strings.HasPrefix(filepath.Base(event.Name), ".") || !w.processor.Matches(event.Name) {
		return
	}
	w.pending[event.Name] = now
}

// flush processes queued articles that have been quiet long enough
func (w *ArticleWatcher) flush(ctx context.Context, now time.Time) {
	for path, last := range w.pending {
		if now.Sub(last) < quietPeriod {
			continue
		}
		delete(w.pending, path)

		result := w.processor.ProcessArticle(ctx, path)
		switch result.Status {
		case StatusError:
			w.logger.Error("Article failed", "article", path, "err", result.Error)
		case StatusSkipped:
			w.logger.Debug("Article skipped", "article", path, "reason", result.Reason)
		}
	}
}
