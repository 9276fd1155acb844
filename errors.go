package main

import (
	"errors"
	"fmt"
)

var (
	ErrNoFrontMatter        = errors.New("no front matter")
	ErrInvalidFrontMatter   = errors.New("invalid front matter")
	ErrMarkerNotFound       = errors.New("pending marker not found in front matter")
	ErrInvalidOptions       = errors.New("invalid banner options")
	ErrTextOverflow         = errors.New("text does not fit the canvas")
	ErrBackgroundUnreadable = errors.New("background unreadable")
	ErrUnsupportedImage     = errors.New("unsupported image format")
)

// Pipeline steps, used in diagnostics
const (
	stepGate         = "checking banner"
	stepRead         = "reading article"
	stepParse        = "parsing front matter"
	stepRewrite      = "rewriting front matter"
	stepRender       = "generating banner"
	stepWriteBanner  = "writing banner"
	stepWriteArticle = "writing article"
)

// ArticleError records which pipeline step failed for an article
type ArticleError struct {
	Path string
	Step string
	Err  error
}

func (e *ArticleError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Path, e.Step, e.Err)
}

func (e *ArticleError) Unwrap() error {
	return e.Err
}

// HTTPError represents a non-200 response when fetching a remote background
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
}
