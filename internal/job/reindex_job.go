package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mlibrary/internal/service"
)

type Reindexer interface {
	Reindex(ctx context.Context, batch int) (*service.ReindexResult, error)
}

// ReindexJob retries the semantic write of entries left pending or degraded.
type ReindexJob struct {
	library Reindexer
	batch   int
}

func NewReindexJob(library Reindexer, batch int) *ReindexJob {
	return &ReindexJob{library: library, batch: batch}
}

func (j *ReindexJob) Name() string {
	return "semantic_reindex"
}

func (j *ReindexJob) Run(ctx context.Context) error {
	if j.library == nil {
		return nil
	}
	res, err := j.library.Reindex(ctx, j.batch)
	if err != nil {
		return err
	}
	if res.Processed > 0 {
		logutil.GetLogger(ctx).Info("reindex batch done",
			zap.Int("processed", res.Processed),
			zap.Int("indexed", res.Indexed),
			zap.Int("degraded", res.Degraded),
			zap.Int("disabled", res.Disabled),
		)
	}
	return nil
}
