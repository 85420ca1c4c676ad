package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/xxxsen/mlibrary/internal/filestore"
	"github.com/xxxsen/mlibrary/internal/model"
	appErr "github.com/xxxsen/mlibrary/internal/pkg/errors"
)

func (s *LibraryService) ListEntries(ctx context.Context, p ListEntriesParams) (*ListEntriesResult, error) {
	if p.Skip < 0 {
		p.Skip = 0
	}
	p.Limit = clampLimit(p.Limit, defaultListLimit, maxListLimit)
	filter := model.EntryFilter{
		Title:   p.Title,
		Author:  p.Author,
		Genre:   p.Genre,
		Tag:     p.Tag,
		YearMin: p.YearMin,
		YearMax: p.YearMax,
	}
	items, total, err := s.store.ListEntries(ctx, filter, p.Skip, p.Limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []model.Entry{}
	}
	return &ListEntriesResult{Entries: items, Total: total, Skip: p.Skip, Limit: p.Limit}, nil
}

func (s *LibraryService) GetEntry(ctx context.Context, entryID string) (*EntryDetail, error) {
	id, err := requireEntryID(entryID)
	if err != nil {
		return nil, err
	}
	entry, chapters, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if chapters == nil {
		chapters = []model.Chapter{}
	}
	detail := &EntryDetail{Entry: *entry, Chapters: chapters}
	state, err := s.store.GetIndexState(ctx, id)
	switch {
	case err == nil:
		detail.IndexStatus = state.Status
	case errors.Is(err, appErr.ErrNotFound):
		detail.IndexStatus = model.IndexPending
	default:
		return nil, err
	}
	return detail, nil
}

// GetPage reads one page. A section without pages answers page 0 of 0
// instead of an error.
func (s *LibraryService) GetPage(ctx context.Context, p PageParams) (*PageResult, error) {
	id, err := requireEntryID(p.EntryID)
	if err != nil {
		return nil, err
	}
	section, err := parseSection(p.Section)
	if err != nil {
		return nil, err
	}
	format, err := parseFormat(p.Format)
	if err != nil {
		return nil, err
	}
	if p.Page == 0 {
		p.Page = 1
	}
	page, total, err := s.store.GetPage(ctx, id, section, p.Page)
	if err != nil {
		return nil, err
	}
	res := &PageResult{EntryID: id, Section: section, Format: format}
	if total == 0 {
		return res, nil
	}
	content, err := s.render(format, page.Content)
	if err != nil {
		return nil, fmt.Errorf("render page: %w", err)
	}
	res.PageNumber = page.Number
	res.TotalPages = total
	res.Content = content
	return res, nil
}

func (s *LibraryService) GetPages(ctx context.Context, p PagesParams) (*PagesResult, error) {
	id, err := requireEntryID(p.EntryID)
	if err != nil {
		return nil, err
	}
	section, err := parseSection(p.Section)
	if err != nil {
		return nil, err
	}
	format, err := parseFormat(p.Format)
	if err != nil {
		return nil, err
	}
	from, to := p.FromPage, p.ToPage
	if from == 0 {
		from = defaultFromPage
	}
	if to == 0 {
		to = defaultToPage
	}
	if from < 1 {
		from = 1
	}
	if to < from {
		to = from
	}
	if to-from+1 > maxPagesPerRead {
		to = from + maxPagesPerRead - 1
	}
	pages, total, err := s.store.GetPages(ctx, id, section, from, to)
	if err != nil {
		return nil, err
	}
	res := &PagesResult{EntryID: id, Section: section, TotalPages: total, Pages: []model.Page{}, Format: format}
	if total == 0 {
		return res, nil
	}
	if from > total {
		return nil, fmt.Errorf("%w: from_page %d out of range (1-%d)", appErr.ErrPageOutOfRange, from, total)
	}
	if to > total {
		to = total
	}
	for _, page := range pages {
		content, err := s.render(format, page.Content)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", page.Number, err)
		}
		res.Pages = append(res.Pages, model.Page{Number: page.Number, Content: content})
	}
	res.FromPage = from
	res.ToPage = to
	return res, nil
}

// Source opens the archived raw document of an entry.
func (s *LibraryService) Source(ctx context.Context, entryID string) (io.ReadCloser, error) {
	id, err := requireEntryID(entryID)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.store.GetEntry(ctx, id); err != nil {
		return nil, err
	}
	if s.files == nil {
		return nil, fmt.Errorf("%w: raw archive is not configured", appErr.ErrNotFound)
	}
	rc, err := s.files.Open(ctx, filestore.EntryKey(id))
	if err != nil {
		if errors.Is(err, filestore.ErrNotExist) {
			return nil, fmt.Errorf("%w: source of entry %s is not archived", appErr.ErrNotFound, id)
		}
		return nil, err
	}
	return rc, nil
}
