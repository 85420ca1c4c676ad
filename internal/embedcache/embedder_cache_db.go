package embedcache

import (
	"context"
	"time"

	"github.com/xxxsen/mlibrary/internal/model"
)

// VectorStore is the persistent side of the cache, see repo.VectorCacheRepo.
type VectorStore interface {
	Lookup(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error)
	Save(ctx context.Context, item *model.CachedVector) error
}

type dbLayer struct {
	store VectorStore
	now   func() time.Time
}

func NewDBLayer(store VectorStore) Layer {
	if store == nil {
		return nil
	}
	return &dbLayer{store: store, now: time.Now}
}

func (d *dbLayer) Name() string { return "db" }

func (d *dbLayer) Get(ctx context.Context, key Key) ([]float32, bool, error) {
	return d.store.Lookup(ctx, key.Model, key.TaskType, key.Hash)
}

func (d *dbLayer) Put(ctx context.Context, key Key, vec []float32) error {
	return d.store.Save(ctx, &model.CachedVector{
		ModelName:   key.Model,
		TaskType:    key.TaskType,
		ContentHash: key.Hash,
		Vector:      vec,
		Ctime:       d.now().Unix(),
	})
}
