package service

import (
	"context"
	"time"

	"github.com/xxxsen/mlibrary/internal/filestore"
	"github.com/xxxsen/mlibrary/internal/metrics"
	"github.com/xxxsen/mlibrary/internal/repo"
	"github.com/xxxsen/mlibrary/internal/semantic"
)

const Version = "1.0.0"

// Options carries the tunables of the gateway.
type Options struct {
	PageMaxChars int
	IndexTimeout time.Duration
	Driver       string
}

// LibraryService is the single gateway shared by the REST and tool front-ends.
// Both pass the same param structs so clamping and validation stay identical.
type LibraryService struct {
	store   repo.ContentStore
	indexer *semantic.Indexer
	files   filestore.Store
	metrics *metrics.Metrics
	opts    Options
}

func NewLibraryService(store repo.ContentStore, indexer *semantic.Indexer, files filestore.Store, m *metrics.Metrics, opts Options) *LibraryService {
	if opts.PageMaxChars <= 0 {
		opts.PageMaxChars = 4000
	}
	if opts.IndexTimeout <= 0 {
		opts.IndexTimeout = 2 * time.Minute
	}
	if indexer == nil {
		indexer = semantic.NewIndexer(nil, nil, store, nil)
	}
	return &LibraryService{store: store, indexer: indexer, files: files, metrics: m, opts: opts}
}

type StatusResult struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	TotalEntries    int    `json:"total_entries"`
	StorageDriver   string `json:"storage_driver"`
	SemanticBackend string `json:"semantic_backend"`
	SemanticEnabled bool   `json:"semantic_enabled"`
	FileStore       string `json:"file_store"`
}

func (s *LibraryService) Status(ctx context.Context) (*StatusResult, error) {
	total, err := s.store.CountEntries(ctx)
	if err != nil {
		return nil, err
	}
	res := &StatusResult{
		Status:          "ok",
		Version:         Version,
		TotalEntries:    total,
		StorageDriver:   s.opts.Driver,
		SemanticBackend: s.indexer.Backend(),
		SemanticEnabled: s.indexer.Enabled(),
	}
	if s.files != nil {
		res.FileStore = s.files.Type()
	}
	return res, nil
}
