package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mlibrary/internal/model"
	appErr "github.com/xxxsen/mlibrary/internal/pkg/errors"
	"github.com/xxxsen/mlibrary/internal/semantic"
)

func (s *LibraryService) Search(ctx context.Context, p SearchParams) (*SearchResult, error) {
	query := strings.TrimSpace(p.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", appErr.ErrInvalid)
	}
	section, err := parseOptionalSection(p.Section)
	if err != nil {
		return nil, err
	}
	hits, err := s.store.Search(ctx, model.KeywordQuery{
		Query:   query,
		EntryID: strings.TrimSpace(p.EntryID),
		Section: section,
		Limit:   clampLimit(p.Limit, defaultSearchLimit, maxSearchLimit),
	})
	if err != nil {
		s.metrics.ObserveSearch("keyword", "error")
		return nil, err
	}
	s.metrics.ObserveSearch("keyword", "ok")
	if hits == nil {
		hits = []model.SearchHit{}
	}
	return &SearchResult{Query: query, Results: hits, TotalResults: len(hits)}, nil
}

// SemanticSearch returns fulltext passages near the query. Hits are checked
// against the catalog, which is authoritative: unknown entries and pages past
// the current fulltext length are dropped.
func (s *LibraryService) SemanticSearch(ctx context.Context, p SearchParams) (*SemanticSearchResult, error) {
	query := strings.TrimSpace(p.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", appErr.ErrInvalid)
	}
	section, err := parseOptionalSection(p.Section)
	if err != nil {
		return nil, err
	}
	res := &SemanticSearchResult{Query: query, Results: []model.SemanticHit{}}
	// only fulltext is embedded
	if section != "" && section != model.SectionFullText {
		return res, nil
	}
	limit := clampLimit(p.Limit, defaultSemanticLimit, maxSemanticLimit)
	// stale hits are dropped below, so ask for more than we return
	matches, err := s.indexer.Search(ctx, query, strings.TrimSpace(p.EntryID), limit*semanticOverfetch)
	if err != nil {
		outcome := "error"
		if errors.Is(err, appErr.ErrIndexDegraded) {
			outcome = "degraded"
		}
		s.metrics.ObserveSearch("semantic", outcome)
		return nil, err
	}
	ids := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		if _, ok := seen[m.EntryID]; ok {
			continue
		}
		seen[m.EntryID] = struct{}{}
		ids = append(ids, m.EntryID)
	}
	entries, err := s.store.GetEntriesByIDs(ctx, ids)
	if err != nil {
		s.metrics.ObserveSearch("semantic", "error")
		return nil, err
	}
	dropped := 0
	for _, m := range matches {
		if len(res.Results) == limit {
			break
		}
		entry, ok := entries[m.EntryID]
		if !ok || m.PageNumber < 1 || m.PageNumber > entry.FullTextPages {
			dropped++
			continue
		}
		res.Results = append(res.Results, model.SemanticHit{
			EntryID:    entry.ID,
			Title:      entry.Title,
			Author:     entry.Author,
			Section:    model.SectionFullText,
			PageNumber: m.PageNumber,
			ChunkIndex: m.ChunkIndex,
			Score:      m.Score,
			Snippet:    semantic.Snippet(m.Text, semanticSnippetRunes),
		})
	}
	if dropped > 0 {
		logutil.GetLogger(ctx).Debug("dropped stale semantic hits", zap.Int("dropped", dropped))
	}
	s.metrics.ObserveSearch("semantic", "ok")
	res.TotalResults = len(res.Results)
	return res, nil
}
