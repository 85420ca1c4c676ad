package library

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/xxxsen/mlibrary/internal/model"
)

var headingPattern = regexp.MustCompile(`^(#{1,4})\s+(.+)$`)

const minHeadingLen = 2

// ExtractChapters scans markdown headings (levels 1-4) in page order.
func ExtractChapters(section model.Section, pages []string) []model.Chapter {
	chapters := make([]model.Chapter, 0)
	for i, page := range pages {
		for _, line := range strings.Split(page, "\n") {
			match := headingPattern.FindStringSubmatch(strings.TrimSpace(line))
			if match == nil {
				continue
			}
			heading := cleanHeading(match[2])
			if utf8.RuneCountInString(heading) < minHeadingLen {
				continue
			}
			chapters = append(chapters, model.Chapter{
				Section: section,
				Page:    i + 1,
				Heading: heading,
				Level:   len(match[1]),
			})
		}
	}
	return chapters
}

func cleanHeading(text string) string {
	text = strings.TrimSpace(text)
	text = strings.Trim(text, "*")
	return strings.TrimSpace(text)
}
