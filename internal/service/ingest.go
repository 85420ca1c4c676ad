package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mlibrary/internal/filestore"
	"github.com/xxxsen/mlibrary/internal/library"
	"github.com/xxxsen/mlibrary/internal/model"
	appErr "github.com/xxxsen/mlibrary/internal/pkg/errors"
)

// Upload parses and stores a document, replacing any entry with the same
// content id. Archiving and semantic indexing are best effort: once the
// catalog commit succeeds the upload succeeds.
func (s *LibraryService) Upload(ctx context.Context, raw []byte) (*UploadResult, error) {
	parsed, err := library.ParseEntry(raw)
	if err != nil {
		s.metrics.ObserveUpload("malformed")
		return nil, err
	}
	rec := s.buildRecord(parsed)
	logger := logutil.GetLogger(ctx).With(zap.String("entry_id", rec.Entry.ID), zap.String("title", rec.Entry.Title))
	if err := s.store.PutEntry(ctx, rec); err != nil {
		s.metrics.ObserveUpload("error")
		logger.Error("store entry failed", zap.Error(err))
		return nil, err
	}
	s.archive(ctx, rec.Entry.ID, raw)

	status := s.index(ctx, &rec.Entry, rec.Pages[model.SectionFullText])
	s.metrics.ObserveUpload("ok")
	logger.Info("entry uploaded",
		zap.Int("shortsummary_pages", rec.Entry.ShortSummaryPages),
		zap.Int("summary_pages", rec.Entry.SummaryPages),
		zap.Int("fulltext_pages", rec.Entry.FullTextPages),
		zap.Int("chapters", len(rec.Chapters)),
		zap.String("index_status", string(status)))
	return &UploadResult{
		Status:      "ok",
		EntryID:     rec.Entry.ID,
		Title:       rec.Entry.Title,
		Message:     fmt.Sprintf("Uploaded '%s'", rec.Entry.Title),
		Entry:       rec.Entry,
		Chapters:    len(rec.Chapters),
		IndexStatus: status,
	}, nil
}

func (s *LibraryService) buildRecord(parsed *library.ParsedEntry) *model.EntryRecord {
	rec := &model.EntryRecord{
		Entry:    parsed.Metadata,
		Pages:    make(map[model.Section][]string, len(model.Sections)),
		Chapters: []model.Chapter{},
	}
	for _, section := range model.Sections {
		pages := library.Paginate(parsed.Section(section), s.opts.PageMaxChars)
		rec.Pages[section] = pages
		rec.Entry.SetPageCount(section, len(pages))
		rec.Chapters = append(rec.Chapters, library.ExtractChapters(section, pages)...)
	}
	return rec
}

func (s *LibraryService) archive(ctx context.Context, entryID string, raw []byte) {
	if s.files == nil {
		return
	}
	if err := s.files.Save(ctx, filestore.EntryKey(entryID), bytes.NewReader(raw), int64(len(raw))); err != nil {
		logutil.GetLogger(ctx).Warn("archive raw document failed",
			zap.String("entry_id", entryID), zap.String("store", s.files.Type()), zap.Error(err))
	}
}

// index runs on a detached context so a client disconnect does not abort the
// write once the catalog has committed.
func (s *LibraryService) index(ctx context.Context, entry *model.Entry, pages []string) model.IndexStatus {
	ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.IndexTimeout)
	defer cancel()
	status, _ := s.indexer.IndexEntry(ictx, entry, pages)
	return status
}

func (s *LibraryService) Delete(ctx context.Context, entryID string) (*DeleteResult, error) {
	id, err := requireEntryID(entryID)
	if err != nil {
		return nil, err
	}
	entry, _, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteEntry(ctx, id); err != nil {
		return nil, err
	}
	dctx := context.WithoutCancel(ctx)
	s.indexer.RemoveEntry(dctx, id)
	if s.files != nil {
		if err := s.files.Delete(dctx, filestore.EntryKey(id)); err != nil {
			logutil.GetLogger(ctx).Warn("remove archived document failed", zap.String("entry_id", id), zap.Error(err))
		}
	}
	logutil.GetLogger(ctx).Info("entry deleted", zap.String("entry_id", id), zap.String("title", entry.Title))
	return &DeleteResult{Status: "ok", EntryID: id, Message: fmt.Sprintf("Deleted '%s'", entry.Title)}, nil
}

// Reindex retries the semantic write for entries that are pending or
// degraded, reading the authoritative fulltext pages from the catalog.
func (s *LibraryService) Reindex(ctx context.Context, batch int) (*ReindexResult, error) {
	if batch <= 0 {
		batch = 20
	}
	statuses := []model.IndexStatus{model.IndexPending, model.IndexDegraded}
	if s.indexer.Enabled() {
		statuses = append(statuses, model.IndexDisabled)
	}
	states, err := s.store.ListIndexStates(ctx, statuses, batch)
	if err != nil {
		return nil, err
	}
	res := &ReindexResult{}
	for _, state := range states {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		entry, pages, err := s.store.GetSection(ctx, state.EntryID, model.SectionFullText)
		if err != nil {
			if errors.Is(err, appErr.ErrNotFound) {
				continue
			}
			return res, err
		}
		res.Processed++
		status := s.index(ctx, entry, pages)
		switch status {
		case model.IndexIndexed:
			res.Indexed++
		case model.IndexDisabled:
			res.Disabled++
		case model.IndexRemoved:
		default:
			res.Degraded++
		}
	}
	return res, nil
}
