package main

import (
	"strings"

	"golang.org/x/image/font/opentype"
)

// Published banner defaults
const (
	DefaultText         = "Untitled"
	DefaultCanvasWidth  = 1200
	DefaultCanvasHeight = 630
	DefaultPadding      = 50
	DefaultFontSize     = 120
	DefaultMinFontSize  = 12
	DefaultBackground   = "src/.vuepress/public/assets/images/bg_full.png"
)

// ResolveOptions merges an article's front matter over the configured
// defaults. Each field takes the banner override first, then (text only) the
// article title, then the default. A nil front matter resolves to the
// defaults.
func ResolveOptions(fm *FrontMatter, defaults BannerDefaults, font *opentype.Font) BannerOptions {
	var meta BannerMeta
	var title string
	if fm != nil {
		title = fm.Title
		if fm.Banner != nil {
			meta = *fm.Banner
		}
	}

	return BannerOptions{
		Text:            firstNonBlank(valueOr(meta.Text, ""), title, defaults.Text, DefaultText),
		Background:      valueOr(meta.Background, defaults.Background),
		CanvasWidth:     valueOr(meta.CanvasWidth, defaults.CanvasWidth),
		CanvasHeight:    valueOr(meta.CanvasHeight, defaults.CanvasHeight),
		HPadding:        valueOr(meta.HPadding, defaults.Padding),
		WPadding:        valueOr(meta.WPadding, defaults.Padding),
		InitialFontSize: valueOr(meta.InitialFontSize, defaults.FontSize),
		MinFontSize:     defaults.MinFontSize,
		NoWrap:          valueOr(meta.NoWrap, false),
		Debug:           valueOr(meta.Debug, false),
		Font:            font,
	}
}

func valueOr[T any](v *T, fallback T) T {
	if v != nil {
		return *v
	}
	return fallback
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
