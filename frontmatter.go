package main

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/adrg/frontmatter"
	"gopkg.in/yaml.v3"
)

const (
	// pendingMarker is replaced, verbatim, once a banner has been generated.
	pendingMarker = "nobanner: true"
	imageField    = "image"
	delimiter     = "---"
)

// Only YAML front matter counts as article metadata.
var yamlFrontMatter = frontmatter.NewFormat(delimiter, delimiter, yaml.Unmarshal)

// BannerMeta holds the per-article overrides under the `banner` key.
// Pointers distinguish an absent key from a zero value.
type BannerMeta struct {
	Text            *string `yaml:"text"`
	Background      *string `yaml:"background"`
	CanvasHeight    *int    `yaml:"canvasHeight"`
	CanvasWidth     *int    `yaml:"canvasWidth"`
	HPadding        *int    `yaml:"hPadding"`
	WPadding        *int    `yaml:"wPadding"`
	InitialFontSize *int    `yaml:"initialFontSize"`
	Debug           *bool   `yaml:"debug"`
	NoWrap          *bool   `yaml:"nowrap"`
}

// FrontMatter is the parsed metadata block of an article
type FrontMatter struct {
	Title    string         `yaml:"title"`
	NoBanner bool           `yaml:"nobanner"`
	Image    string         `yaml:"image"`
	Banner   *BannerMeta    `yaml:"banner"`
	Extra    map[string]any `yaml:",inline"`
}

// Pending reports whether the article still carries the pending marker
func (fm *FrontMatter) Pending() bool {
	return fm != nil && fm.NoBanner
}

// ExtractFrontMatter parses the YAML block at the start of an article.
// It returns ErrNoFrontMatter when the article has none; the block must open
// on the first line, the same place RewriteMarker looks for it.
func ExtractFrontMatter(source []byte) (*FrontMatter, error) {
	if _, _, ok := frontMatterBlock(source); !ok {
		return nil, ErrNoFrontMatter
	}

	var fm FrontMatter
	if _, err := frontmatter.MustParse(bytes.NewReader(source), &fm, yamlFrontMatter); err != nil {
		if errors.Is(err, frontmatter.ErrNotFound) {
			return nil, ErrNoFrontMatter
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrontMatter, err)
	}
	return &fm, nil
}

// frontMatterBlock returns the byte range between the opening and closing
// delimiter lines.
func frontMatterBlock(source []byte) (start, end int, ok bool) {
	line, next := readLine(source, 0)
	if line != delimiter {
		return 0, 0, false
	}

	start = next
	for pos := next; pos < len(source); {
		line, next = readLine(source, pos)
		if line == delimiter {
			return start, pos, true
		}
		pos = next
	}
	return 0, 0, false
}

// readLine returns the trimmed line starting at pos and the offset of the
// following line.
func readLine(source []byte, pos int) (string, int) {
	i := bytes.IndexByte(source[pos:], '\n')
	if i < 0 {
		return strings.TrimSpace(string(source[pos:])), len(source)
	}
	return strings.TrimSpace(string(source[pos : pos+i])), pos + i + 1
}
