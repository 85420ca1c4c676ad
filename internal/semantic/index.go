package semantic

import (
	"context"
	"errors"

	"github.com/xxxsen/mlibrary/internal/model"
)

// ErrDisabled is returned by the index used when no vector backend is configured.
var ErrDisabled = errors.New("semantic index disabled")

// Index is an external vector namespace holding chunks keyed by
// (entry_id, chunk_index).
type Index interface {
	Name() string
	Upsert(ctx context.Context, chunks []model.Chunk, vectors [][]float32) error
	DeleteEntry(ctx context.Context, entryID string) error
	Search(ctx context.Context, vector []float32, entryID string, limit int) ([]model.ChunkMatch, error)
}

type nopIndex struct{}

func NewNopIndex() Index { return nopIndex{} }

func (nopIndex) Name() string { return "none" }

func (nopIndex) Upsert(ctx context.Context, chunks []model.Chunk, vectors [][]float32) error {
	return ErrDisabled
}

func (nopIndex) DeleteEntry(ctx context.Context, entryID string) error { return nil }

func (nopIndex) Search(ctx context.Context, vector []float32, entryID string, limit int) ([]model.ChunkMatch, error) {
	return nil, ErrDisabled
}
