package semantic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xxxsen/mlibrary/internal/ai"
	"github.com/xxxsen/mlibrary/internal/metrics"
	"github.com/xxxsen/mlibrary/internal/model"
	appErr "github.com/xxxsen/mlibrary/internal/pkg/errors"
)

// StateRecorder persists the per-entry index state next to the catalog.
type StateRecorder interface {
	SaveIndexState(ctx context.Context, state *model.IndexState) error
}

type Indexer struct {
	index       Index
	embedder    ai.IEmbedder
	states      StateRecorder
	chunker     *Chunker
	parallelism int
	metrics     *metrics.Metrics
}

type IndexerOption func(*Indexer)

func WithParallelism(n int) IndexerOption {
	return func(x *Indexer) {
		if n > 0 {
			x.parallelism = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) IndexerOption {
	return func(x *Indexer) { x.metrics = m }
}

func NewIndexer(index Index, embedder ai.IEmbedder, states StateRecorder, chunker *Chunker, opts ...IndexerOption) *Indexer {
	if index == nil {
		index = NewNopIndex()
	}
	if chunker == nil {
		chunker = NewChunker(1000, 200)
	}
	x := &Indexer{
		index:       index,
		embedder:    embedder,
		states:      states,
		chunker:     chunker,
		parallelism: 4,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

func (x *Indexer) Backend() string {
	return x.index.Name()
}

func (x *Indexer) Enabled() bool {
	return x.embedder != nil && x.index.Name() != "none"
}

// IndexEntry replaces the entry's chunks in the vector namespace and records
// the outcome. The returned error is informational; callers must not fail the
// submission because of it.
func (x *Indexer) IndexEntry(ctx context.Context, entry *model.Entry, pages []string) (model.IndexStatus, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("entry_id", entry.ID), zap.String("backend", x.index.Name()))
	if !x.Enabled() {
		x.record(ctx, &model.IndexState{EntryID: entry.ID, Status: model.IndexDisabled})
		return model.IndexDisabled, nil
	}
	start := time.Now()
	chunks := x.chunker.ChunkPages(entry, pages)
	count, err := x.write(ctx, entry.ID, chunks)
	if err != nil {
		logger.Warn("semantic index write failed, entry marked degraded", zap.Int("chunks", len(chunks)), zap.Error(err))
		x.record(ctx, &model.IndexState{EntryID: entry.ID, Status: model.IndexDegraded, LastError: err.Error()})
		return model.IndexDegraded, err
	}
	if err := x.save(ctx, &model.IndexState{EntryID: entry.ID, Status: model.IndexIndexed, ChunkCount: count}); err != nil {
		if !errors.Is(err, appErr.ErrNotFound) {
			logger.Error("save index state failed", zap.Error(err))
			return model.IndexIndexed, nil
		}
		// deleted while indexing: drop what was just written
		x.RemoveEntry(ctx, entry.ID)
		logger.Info("entry deleted during indexing, chunks dropped", zap.Int("chunks", count))
		return model.IndexRemoved, err
	}
	logger.Info("entry indexed", zap.Int("chunks", count), zap.Duration("duration", time.Since(start)))
	return model.IndexIndexed, nil
}

func (x *Indexer) write(ctx context.Context, entryID string, chunks []model.Chunk) (int, error) {
	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.parallelism)
	for i := range chunks {
		g.Go(func() error {
			vec, err := x.embedder.Embed(gctx, chunks[i].Text, ai.TaskTypeDocument)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", chunks[i].ChunkIndex, err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	if err := x.index.DeleteEntry(ctx, entryID); err != nil {
		return 0, fmt.Errorf("drop old chunks: %w", err)
	}
	if err := x.index.Upsert(ctx, chunks, vectors); err != nil {
		return 0, fmt.Errorf("upsert chunks: %w", err)
	}
	return len(chunks), nil
}

func (x *Indexer) save(ctx context.Context, state *model.IndexState) error {
	x.metrics.ObserveIndex(string(state.Status))
	if x.states == nil {
		return nil
	}
	return x.states.SaveIndexState(ctx, state)
}

// record saves an outcome that needs no follow-up when the entry is gone.
func (x *Indexer) record(ctx context.Context, state *model.IndexState) {
	if err := x.save(ctx, state); err != nil && !errors.Is(err, appErr.ErrNotFound) {
		logutil.GetLogger(ctx).Error("save index state failed",
			zap.String("entry_id", state.EntryID), zap.String("status", string(state.Status)), zap.Error(err))
	}
}

// RemoveEntry drops an entry's chunks. Failures are logged only.
func (x *Indexer) RemoveEntry(ctx context.Context, entryID string) {
	if err := x.index.DeleteEntry(ctx, entryID); err != nil {
		logutil.GetLogger(ctx).Warn("remove entry from semantic index failed",
			zap.String("entry_id", entryID), zap.String("backend", x.index.Name()), zap.Error(err))
	}
}

// Search embeds the query and returns the nearest chunks. Any backend
// failure is reported as ErrIndexDegraded.
func (x *Indexer) Search(ctx context.Context, query, entryID string, limit int) ([]model.ChunkMatch, error) {
	if !x.Enabled() {
		return nil, fmt.Errorf("%w: semantic backend %s", appErr.ErrIndexDegraded, x.index.Name())
	}
	vec, err := x.embedder.Embed(ctx, query, ai.TaskTypeQuery)
	if err != nil {
		logutil.GetLogger(ctx).Warn("embed query failed", zap.Error(err))
		return nil, fmt.Errorf("%w: embed query: %v", appErr.ErrIndexDegraded, err)
	}
	matches, err := x.index.Search(ctx, vec, entryID, limit)
	if err != nil {
		logutil.GetLogger(ctx).Warn("vector search failed", zap.String("backend", x.index.Name()), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", appErr.ErrIndexDegraded, err)
	}
	return matches, nil
}
