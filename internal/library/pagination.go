package library

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	appErr "github.com/xxxsen/mlibrary/internal/pkg/errors"
)

// PageSeparator joins blocks inside a page.
const PageSeparator = "\n\n"

var blankLine = regexp.MustCompile(`\n[ \t]*\n`)

// Blocks splits text on blank lines into trimmed, non-empty paragraphs.
func Blocks(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil
	}
	parts := blankLine.Split(text, -1)
	blocks := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			blocks = append(blocks, part)
		}
	}
	return blocks
}

// Paginate greedily packs paragraphs into pages of at most maxChars runes,
// separator included. A paragraph longer than maxChars gets a page of its own.
func Paginate(text string, maxChars int) []string {
	blocks := Blocks(text)
	if len(blocks) == 0 {
		return []string{}
	}
	sepLen := utf8.RuneCountInString(PageSeparator)
	pages := make([]string, 0, 1)
	var current []string
	size := 0
	for _, block := range blocks {
		blockLen := utf8.RuneCountInString(block)
		if len(current) > 0 && size+sepLen+blockLen > maxChars {
			pages = append(pages, strings.Join(current, PageSeparator))
			current = current[:0]
			size = 0
		}
		if len(current) > 0 {
			size += sepLen
		}
		current = append(current, block)
		size += blockLen
	}
	pages = append(pages, strings.Join(current, PageSeparator))
	return pages
}

// GetPage returns the n-th (1-based) page and the total page count. An empty
// section yields ("", 0, nil) for any n.
func GetPage(text string, n, maxChars int) (string, int, error) {
	pages := Paginate(text, maxChars)
	total := len(pages)
	if total == 0 {
		return "", 0, nil
	}
	if n < 1 || n > total {
		return "", total, fmt.Errorf("%w: page %d out of range (1-%d)", appErr.ErrPageOutOfRange, n, total)
	}
	return pages[n-1], total, nil
}
