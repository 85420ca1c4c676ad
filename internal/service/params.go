package service

import (
	"fmt"
	"strings"

	"github.com/xxxsen/mlibrary/internal/model"
	appErr "github.com/xxxsen/mlibrary/internal/pkg/errors"
)

const (
	defaultListLimit     = 20
	maxListLimit         = 100
	defaultSearchLimit   = 20
	maxSearchLimit       = 50
	defaultSemanticLimit = 10
	maxSemanticLimit     = 50
	defaultFromPage      = 1
	defaultToPage        = 5
	maxPagesPerRead      = 10
	semanticSnippetRunes = 300
	semanticOverfetch    = 2

	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

type ListEntriesParams struct {
	Skip    int    `form:"skip" json:"skip"`
	Limit   int    `form:"limit" json:"limit"`
	Title   string `form:"title" json:"title"`
	Author  string `form:"author" json:"author"`
	Genre   string `form:"genre" json:"genre"`
	Tag     string `form:"tag" json:"tag"`
	YearMin *int   `form:"year_min" json:"year_min"`
	YearMax *int   `form:"year_max" json:"year_max"`
}

type ListEntriesResult struct {
	Entries []model.Entry `json:"entries"`
	Total   int           `json:"total"`
	Skip    int           `json:"skip"`
	Limit   int           `json:"limit"`
}

type EntryDetail struct {
	model.Entry
	Chapters    []model.Chapter   `json:"chapters"`
	IndexStatus model.IndexStatus `json:"index_status"`
}

type PageParams struct {
	EntryID string `json:"entry_id"`
	Section string `form:"section" json:"section"`
	Page    int    `form:"page" json:"page"`
	Format  string `form:"format" json:"format"`
}

type PageResult struct {
	EntryID    string        `json:"entry_id"`
	Section    model.Section `json:"section"`
	PageNumber int           `json:"page_number"`
	TotalPages int           `json:"total_pages"`
	Content    string        `json:"content"`
	Format     string        `json:"format"`
}

type PagesParams struct {
	EntryID  string `json:"entry_id"`
	Section  string `form:"section" json:"section"`
	FromPage int    `form:"from_page" json:"from_page"`
	ToPage   int    `form:"to_page" json:"to_page"`
	Format   string `form:"format" json:"format"`
}

type PagesResult struct {
	EntryID    string        `json:"entry_id"`
	Section    model.Section `json:"section"`
	FromPage   int           `json:"from_page"`
	ToPage     int           `json:"to_page"`
	TotalPages int           `json:"total_pages"`
	Pages      []model.Page  `json:"pages"`
	Format     string        `json:"format"`
}

type SearchParams struct {
	Query   string `form:"query" json:"query"`
	EntryID string `form:"entry_id" json:"entry_id"`
	Section string `form:"section" json:"section"`
	Limit   int    `form:"limit" json:"limit"`
}

type SearchResult struct {
	Query        string            `json:"query"`
	Results      []model.SearchHit `json:"results"`
	TotalResults int               `json:"total_results"`
}

type SemanticSearchResult struct {
	Query        string              `json:"query"`
	Results      []model.SemanticHit `json:"results"`
	TotalResults int                 `json:"total_results"`
}

type UploadResult struct {
	Status      string            `json:"status"`
	EntryID     string            `json:"entry_id"`
	Title       string            `json:"title"`
	Message     string            `json:"message"`
	Entry       model.Entry       `json:"entry"`
	Chapters    int               `json:"chapters"`
	IndexStatus model.IndexStatus `json:"index_status"`
}

type DeleteResult struct {
	Status  string `json:"status"`
	EntryID string `json:"entry_id"`
	Message string `json:"message"`
}

type ReindexResult struct {
	Processed int `json:"processed"`
	Indexed   int `json:"indexed"`
	Degraded  int `json:"degraded"`
	Disabled  int `json:"disabled"`
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

func parseSection(raw string) (model.Section, error) {
	section := model.Section(strings.ToLower(strings.TrimSpace(raw)))
	if !section.Valid() {
		return "", fmt.Errorf("%w: section must be one of: shortsummary, summary, fulltext", appErr.ErrInvalidSection)
	}
	return section, nil
}

// parseOptionalSection accepts an empty value meaning every section.
func parseOptionalSection(raw string) (model.Section, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	return parseSection(raw)
}

func parseFormat(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", FormatMarkdown:
		return FormatMarkdown, nil
	case FormatHTML:
		return FormatHTML, nil
	}
	return "", fmt.Errorf("%w: format must be markdown or html", appErr.ErrInvalid)
}

func requireEntryID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: entry_id is required", appErr.ErrInvalid)
	}
	return id, nil
}
