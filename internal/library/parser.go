package library

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/xxxsen/mlibrary/internal/model"
	appErr "github.com/xxxsen/mlibrary/internal/pkg/errors"
)

const (
	delimiterLine  = "---"
	delimiterCount = 4
	entryIDLength  = 16
)

type frontMatter struct {
	Title           string   `yaml:"title"`
	Author          string   `yaml:"author"`
	PublicationYear *int     `yaml:"publication_year"`
	Genre           *string  `yaml:"genre"`
	CustomTags      []string `yaml:"custom_tags"`
}

// ParsedEntry is a submitted document split into metadata and its three
// sections. Sections are trimmed but not paginated.
type ParsedEntry struct {
	ID           string
	Metadata     model.Entry
	ShortSummary string
	Summary      string
	FullText     string
}

func (p *ParsedEntry) Section(section model.Section) string {
	switch section {
	case model.SectionShortSummary:
		return p.ShortSummary
	case model.SectionSummary:
		return p.Summary
	case model.SectionFullText:
		return p.FullText
	}
	return ""
}

// EntryID derives the catalog identifier from raw document bytes.
func EntryID(raw []byte) string {
	sum := sha256.Sum256(stripNulls(raw))
	return hex.EncodeToString(sum[:])[:entryIDLength]
}

// ParseEntry splits raw into front matter and sections:
//
//	[ignored] --- [yaml] --- [shortsummary] --- [summary] --- [fulltext]
func ParseEntry(raw []byte) (*ParsedEntry, error) {
	clean := stripNulls(raw)
	if !utf8.Valid(clean) {
		return nil, fmt.Errorf("%w: content is not valid utf-8", appErr.ErrMalformedDocument)
	}
	lines := strings.Split(string(clean), "\n")
	separators := make([]int, 0, delimiterCount)
	for i, line := range lines {
		if strings.TrimSpace(line) == delimiterLine {
			separators = append(separators, i)
		}
	}
	if len(separators) != delimiterCount {
		return nil, fmt.Errorf("%w: expected %d '%s' separators, found %d",
			appErr.ErrMalformedDocument, delimiterCount, delimiterLine, len(separators))
	}
	region := func(from, to int) string {
		return strings.TrimSpace(strings.Join(lines[from:to], "\n"))
	}
	meta, err := parseFrontMatter(strings.Join(lines[separators[0]+1:separators[1]], "\n"))
	if err != nil {
		return nil, err
	}
	entry := &ParsedEntry{
		ID:           EntryID(raw),
		Metadata:     *meta,
		ShortSummary: region(separators[1]+1, separators[2]),
		Summary:      region(separators[2]+1, separators[3]),
		FullText:     region(separators[3]+1, len(lines)),
	}
	entry.Metadata.ID = entry.ID
	return entry, nil
}

func parseFrontMatter(block string) (*model.Entry, error) {
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(block), &node); err != nil {
		return nil, fmt.Errorf("%w: invalid front matter: %v", appErr.ErrMalformedDocument, err)
	}
	if len(node.Content) == 0 || node.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: front matter must be a key-value block", appErr.ErrMalformedDocument)
	}
	var fm frontMatter
	if err := node.Decode(&fm); err != nil {
		return nil, fmt.Errorf("%w: invalid front matter: %v", appErr.ErrMalformedDocument, err)
	}
	fm.Title = strings.TrimSpace(fm.Title)
	fm.Author = strings.TrimSpace(fm.Author)
	if fm.Title == "" {
		return nil, fmt.Errorf("%w: title is required", appErr.ErrMalformedDocument)
	}
	if fm.Author == "" {
		return nil, fmt.Errorf("%w: author is required", appErr.ErrMalformedDocument)
	}
	tags := make([]string, 0, len(fm.CustomTags))
	for _, tag := range fm.CustomTags {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return &model.Entry{
		Title:           fm.Title,
		Author:          fm.Author,
		PublicationYear: fm.PublicationYear,
		Genre:           fm.Genre,
		CustomTags:      tags,
	}, nil
}

func stripNulls(raw []byte) []byte {
	if bytes.IndexByte(raw, 0) < 0 {
		return raw
	}
	return bytes.ReplaceAll(raw, []byte{0}, nil)
}
