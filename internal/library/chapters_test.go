package library

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mlibrary/internal/model"
)

func TestExtractChapters(t *testing.T) {
	pages := []string{
		"# Intro\n\ntext\n\n##   **Bold Heading**  ",
		"no heading here\n##### too deep\n#\n# A\n   ### Indented",
		"#NoSpace\n#### Four",
	}
	chapters := ExtractChapters(model.SectionFullText, pages)
	require.Equal(t, []model.Chapter{
		{Section: model.SectionFullText, Page: 1, Heading: "Intro", Level: 1},
		{Section: model.SectionFullText, Page: 1, Heading: "Bold Heading", Level: 2},
		{Section: model.SectionFullText, Page: 2, Heading: "Indented", Level: 3},
		{Section: model.SectionFullText, Page: 3, Heading: "Four", Level: 4},
	}, chapters)
}

func TestExtractChaptersEmpty(t *testing.T) {
	require.Empty(t, ExtractChapters(model.SectionSummary, nil))
}
