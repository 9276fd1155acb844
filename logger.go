package main

import (
	"io"

	"github.com/charmbracelet/log"
)

// newLogger creates the diagnostics logger. Progress output is separate and
// always goes to stdout.
func newLogger(w io.Writer, debug, json bool) *log.Logger {
	level := log.InfoLevel
	if debug {
		level = log.DebugLevel
	}

	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
		Level:           level,
		Prefix:          "banner-writer",
	})
	if json {
		logger.SetFormatter(log.JSONFormatter)
	} else {
		logger.SetFormatter(log.TextFormatter)
	}
	return logger
}
