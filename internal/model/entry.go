package model

// Section names one of the three detail tiers of an entry.
type Section string

const (
	SectionShortSummary Section = "shortsummary"
	SectionSummary      Section = "summary"
	SectionFullText     Section = "fulltext"
)

// Sections lists the tiers in canonical order: least to most detailed.
var Sections = []Section{SectionShortSummary, SectionSummary, SectionFullText}

func (s Section) Valid() bool {
	switch s {
	case SectionShortSummary, SectionSummary, SectionFullText:
		return true
	}
	return false
}

type Entry struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Author            string   `json:"author"`
	PublicationYear   *int     `json:"publication_year"`
	Genre             *string  `json:"genre"`
	CustomTags        []string `json:"custom_tags"`
	ShortSummaryPages int      `json:"shortsummary_pages"`
	SummaryPages      int      `json:"summary_pages"`
	FullTextPages     int      `json:"fulltext_pages"`
}

// PageCount returns the number of pages stored for a section.
func (e *Entry) PageCount(section Section) int {
	switch section {
	case SectionShortSummary:
		return e.ShortSummaryPages
	case SectionSummary:
		return e.SummaryPages
	case SectionFullText:
		return e.FullTextPages
	}
	return 0
}

func (e *Entry) SetPageCount(section Section, n int) {
	switch section {
	case SectionShortSummary:
		e.ShortSummaryPages = n
	case SectionSummary:
		e.SummaryPages = n
	case SectionFullText:
		e.FullTextPages = n
	}
}

type Page struct {
	Number  int    `json:"page_number"`
	Content string `json:"content"`
}

type Chapter struct {
	Section Section `json:"section"`
	Page    int     `json:"page"`
	Heading string  `json:"heading"`
	Level   int     `json:"level"`
}

// EntryRecord is everything written by one atomic replace.
type EntryRecord struct {
	Entry    Entry
	Pages    map[Section][]string
	Chapters []Chapter
}

type EntryFilter struct {
	Title   string
	Author  string
	Genre   string
	Tag     string
	YearMin *int
	YearMax *int
}
