package main

import (
	"fmt"
	"time"

	"github.com/xhit/go-str2duration/v2"
	"golang.org/x/image/font/opentype"
)

// Article is a markdown source file loaded for processing
type Article struct {
	Path   string
	Name   string // base file name
	Source []byte
}

// BannerOptions is the fully resolved configuration for rendering one banner
type BannerOptions struct {
	Text       string
	Background string // path or http(s) URL, empty for a solid fill

	CanvasWidth  int
	CanvasHeight int
	HPadding     int // vertical inset
	WPadding     int // horizontal inset

	InitialFontSize int // upper bound, shrunk until the text fits
	MinFontSize     int

	NoWrap bool
	Debug  bool

	// Font is parsed once per run and shared read-only by every article.
	Font *opentype.Font
}

// ProcessingStatus represents the outcome status of processing an article
type ProcessingStatus string

const (
	StatusGenerated ProcessingStatus = "generated"
	StatusSkipped   ProcessingStatus = "skipped"
	StatusError     ProcessingStatus = "error"
)

// ProcessingResult tracks the outcome of processing each article
type ProcessingResult struct {
	Path       string
	Status     ProcessingStatus
	Reason     string
	BannerPath string
	Error      error
}

// RunReport aggregates the results of one batch run
type RunReport struct {
	RunID     string
	Generated int
	Skipped   int
	Failed    int
	Elapsed   time.Duration
}

func (r *RunReport) record(result ProcessingResult) {
	switch result.Status {
	case StatusGenerated:
		r.Generated++
	case StatusSkipped:
		r.Skipped++
	case StatusError:
		r.Failed++
	}
}

// Summary returns the line printed once at the end of a run
func (r *RunReport) Summary() string {
	return fmt.Sprintf("Generated %d image(s). Took %s", r.Generated, formatDuration(r.Elapsed))
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Millisecond)
	if d <= 0 {
		return "0ms"
	}
	return str2duration.String(d)
}
