package semantic

import (
	"strings"
	"unicode"

	"github.com/xxxsen/mlibrary/internal/model"
)

// Chunker cuts text into overlapping rune windows that end on whitespace
// where possible.
type Chunker struct {
	size    int
	overlap int
}

func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return &Chunker{size: size, overlap: overlap}
}

func (c *Chunker) Split(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	n := len(runes)
	out := make([]string, 0, n/c.size+1)
	start := 0
	for start < n {
		end := min(start+c.size, n)
		if end < n {
			end = snapBack(runes, start, end, c.size/2)
		}
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			out = append(out, chunk)
		}
		if end >= n {
			break
		}
		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = snapForward(runes, next, end)
	}
	return out
}

// snapBack moves end left to the nearest whitespace, but not below start+minLen.
func snapBack(runes []rune, start, end, minLen int) int {
	for k := end; k > start+minLen; k-- {
		if unicode.IsSpace(runes[k]) {
			return k
		}
	}
	return end
}

// snapForward moves pos right to the start of the next word before limit.
// Text without a boundary keeps pos.
func snapForward(runes []rune, pos, limit int) int {
	for k := pos; k < limit; k++ {
		if k == 0 || unicode.IsSpace(runes[k-1]) {
			return k
		}
	}
	return pos
}

// ChunkPages splits every fulltext page. Chunk indices are zero-based and
// run across the whole entry.
func (c *Chunker) ChunkPages(entry *model.Entry, pages []string) []model.Chunk {
	chunks := make([]model.Chunk, 0, len(pages))
	for i, page := range pages {
		for _, text := range c.Split(page) {
			chunks = append(chunks, model.Chunk{
				EntryID:    entry.ID,
				Title:      entry.Title,
				Author:     entry.Author,
				PageNumber: i + 1,
				ChunkIndex: len(chunks),
				Text:       text,
			})
		}
	}
	return chunks
}

// Snippet returns at most limit leading runes of text.
func Snippet(text string, limit int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return strings.TrimSpace(string(runes[:limit]))
}
