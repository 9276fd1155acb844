package main

import (
	"bytes"
	"fmt"
	"strings"
)

// RewriteMarker replaces the first occurrence of marker inside the front
// matter block with replacement. The marker has to start a line and end it
// (trailing spaces or a comment are allowed); nothing else in the article
// changes.
func RewriteMarker(source []byte, marker, replacement string) ([]byte, error) {
	start, end, ok := frontMatterBlock(source)
	if !ok {
		return nil, ErrNoFrontMatter
	}

	idx := findMarker(source[start:end], []byte(marker))
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrMarkerNotFound, marker)
	}
	idx += start

	out := make([]byte, 0, len(source)-len(marker)+len(replacement))
	out = append(out, source[:idx]...)
	out = append(out, replacement...)
	out = append(out, source[idx+len(marker):]...)
	return out, nil
}

// imageReference builds the front matter line pointing at a published banner
func imageReference(baseURL, imageName string) string {
	return fmt.Sprintf("%s: %s/%s", imageField, strings.TrimRight(baseURL, "/"), imageName)
}

func findMarker(block, marker []byte) int {
	offset := 0
	for {
		i := bytes.Index(block[offset:], marker)
		if i < 0 {
			return -1
		}
		i += offset

		after := i + len(marker)
		atLineStart := i == 0 || block[i-1] == '\n'
		atLineEnd := after == len(block) || strings.IndexByte(" \t\r\n#", block[after]) >= 0
		if atLineStart && atLineEnd {
			return i
		}
		offset = i + 1
	}
}
