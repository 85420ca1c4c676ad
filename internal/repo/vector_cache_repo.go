package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/didi/gendry/builder"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/mlibrary/internal/model"
	"github.com/xxxsen/mlibrary/internal/pkg/dbutil"
)

const vectorCacheTable = "embedding_cache"

// VectorCacheRepo persists embeddings in postgres so restarts and reindex
// runs do not pay for the same text twice.
type VectorCacheRepo struct {
	db *sql.DB
}

func NewVectorCacheRepo(db *sql.DB) *VectorCacheRepo {
	return &VectorCacheRepo{db: db}
}

func (r *VectorCacheRepo) Lookup(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error) {
	where := map[string]interface{}{
		"model_name":   modelName,
		"task_type":    taskType,
		"content_hash": contentHash,
		"_limit":       []uint{0, 1},
	}
	query, args, err := builder.BuildSelect(vectorCacheTable, where, []string{"embedding"})
	if err != nil {
		return nil, false, err
	}
	query, args = dbutil.Finalize(query, args)
	var vec pgvector.Vector
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&vec); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return vec.Slice(), true, nil
}

func (r *VectorCacheRepo) Save(ctx context.Context, item *model.CachedVector) error {
	const query = `
		INSERT INTO embedding_cache (model_name, task_type, content_hash, embedding, ctime)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (model_name, task_type, content_hash) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			ctime = EXCLUDED.ctime
	`
	_, err := r.db.ExecContext(ctx, query,
		item.ModelName, item.TaskType, item.ContentHash,
		pgvector.NewVector(item.Vector), item.Ctime)
	return err
}

// DeleteBefore drops rows written before cutoff (unix seconds).
func (r *VectorCacheRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	query, args, err := builder.BuildDelete(vectorCacheTable, map[string]interface{}{"ctime <": cutoff})
	if err != nil {
		return 0, err
	}
	query, args = dbutil.Finalize(query, args)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
