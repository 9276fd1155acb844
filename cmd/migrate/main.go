package main

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const pendingLine = "nobanner: true"

var (
	pendingRe = regexp.MustCompile(`(?m)^nobanner:\s*true\s*$`)
	imageRe   = regexp.MustCompile(`(?m)^image:\s*\S*/([^/\s]+\.png)[ \t]*$`)
	closingRe = regexp.MustCompile(`(?m)^---[ \t]*$`)
)

func main() {
	if len(os.Args) < 3 {
		log.Fatal("Usage: migrate <list-pending <articles-directory> | reset <articles-directory> <images-directory>>")
	}

	command := os.Args[1]
	articlesDir := os.Args[2]

	switch command {
	case "list-pending":
		if err := listPending(os.Stdout, articlesDir); err != nil {
			log.Fatal(err)
		}
	case "reset":
		if len(os.Args) < 4 {
			log.Fatal("Usage: migrate reset <articles-directory> <images-directory>")
		}
		if err := resetBanners(bufio.NewReader(os.Stdin), os.Stdout, articlesDir, os.Args[3]); err != nil {
			log.Fatal(err)
		}
	default:
		log.Fatalf("Unknown command %q", command)
	}
}

// listPending prints every article still waiting for a banner
func listPending(w io.Writer, articlesDir string) error {
	count := 0
	err := walkArticles(articlesDir, func(path string, content []byte) error {
		if pendingRe.Match(frontMatter(content)) {
			fmt.Fprintln(w, path)
			count++
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%d article(s) pending\n", count)
	return nil
}

// resetBanners deletes generated banners after confirmation and restores the
// pending marker, so the next run regenerates them.
func resetBanners(reader *bufio.Reader, w io.Writer, articlesDir, imagesDir string) error {
	totalReset := 0
	err := walkArticles(articlesDir, func(path string, content []byte) error {
		fm := frontMatter(content)
		loc := imageRe.FindSubmatchIndex(fm)
		if loc == nil {
			return nil
		}

		imageName := string(fm[loc[2]:loc[3]])
		imagePath := filepath.Join(imagesDir, imageName)
		if _, err := os.Stat(imagePath); err != nil {
			return nil
		}

		fmt.Fprintf(w, "\n%s uses %s\n", filepath.Base(path), imageName)
		if !confirmDelete(reader, w, imagePath) {
			fmt.Fprintf(w, "  SKIP: %s\n", imageName)
			return nil
		}

		// fm is a prefix of content, so the offsets carry over
		restored := make([]byte, 0, len(content))
		restored = append(restored, content[:loc[0]]...)
		restored = append(restored, pendingLine...)
		restored = append(restored, content[loc[1]:]...)

		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		// A pending article whose banner still exists would be skipped forever,
		// so the marker is only restored once the banner is gone.
		if err := os.Remove(imagePath); err != nil {
			log.Printf("Error removing %s: %v", imagePath, err)
			fmt.Fprintf(w, "  SKIP: %s\n", imageName)
			return nil
		}
		if err := os.WriteFile(path, restored, info.Mode().Perm()); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}

		totalReset++
		fmt.Fprintf(w, "  RESET: %s\n", imageName)
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\nReset %d banner(s)\n", totalReset)
	return nil
}

func walkArticles(articlesDir string, fn func(path string, content []byte) error) error {
	if err := filepath.WalkDir(articlesDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == articlesDir {
				return err
			}
			return nil // Continue on errors
		}
		if d.IsDir() || !strings.HasSuffix(path, ".md") {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Error reading %s: %v", path, err)
			return nil
		}
		return fn(path, content)
	}); err != nil {
		return fmt.Errorf("walking directory: %w", err)
	}
	return nil
}

// frontMatter returns the content up to the closing delimiter, or nil when
// the article has no front matter.
func frontMatter(content []byte) []byte {
	if !strings.HasPrefix(string(content), "---") {
		return nil
	}
	rest := content[3:]
	idx := closingRe.FindIndex(rest)
	if idx == nil {
		return nil
	}
	return content[:3+idx[0]]
}

func confirmDelete(reader *bufio.Reader, w io.Writer, path string) bool {
	for {
		fmt.Fprintf(w, "  DELETE %s? [y/N]: ", filepath.Base(path))
		input, err := reader.ReadString('\n')
		if err != nil && input == "" {
			log.Printf("Error reading input: %v", err)
			return false
		}
		response := strings.ToLower(strings.TrimSpace(input))
		switch response {
		case "y", "yes":
			return true
		case "", "n", "no":
			return false
		default:
			fmt.Fprintln(w, "  Please enter y or n.")
		}
	}
}
