package embedcache

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mlibrary/internal/ai"
)

// Layer is one tier of the cache. Layers are consulted in order; a hit in a
// later layer is copied into the earlier ones.
type Layer interface {
	Name() string
	Get(ctx context.Context, key Key) ([]float32, bool, error)
	Put(ctx context.Context, key Key, vec []float32) error
}

type cachedEmbedder struct {
	next   ai.IEmbedder
	layers []Layer
}

// Wrap puts the given layers in front of e. Nil layers are skipped, and e is
// returned untouched when nothing is left.
func Wrap(e ai.IEmbedder, layers ...Layer) ai.IEmbedder {
	if e == nil {
		return nil
	}
	active := make([]Layer, 0, len(layers))
	for _, l := range layers {
		if l != nil {
			active = append(active, l)
		}
	}
	if len(active) == 0 {
		return e
	}
	return &cachedEmbedder{next: e, layers: active}
}

func (c *cachedEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	key := NewKey(c.next.ModelName(), taskType, text)
	logger := logutil.GetLogger(ctx).With(zap.String("task_type", taskType))
	for i, l := range c.layers {
		vec, ok, err := l.Get(ctx, key)
		if err != nil {
			logger.Warn("embedding cache read failed", zap.String("layer", l.Name()), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		logger.Debug("embedding cache hit", zap.String("layer", l.Name()))
		c.fill(ctx, c.layers[:i], key, vec)
		return cloneVector(vec), nil
	}
	vec, err := c.next.Embed(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, c.layers, key, vec)
	return vec, nil
}

func (c *cachedEmbedder) fill(ctx context.Context, layers []Layer, key Key, vec []float32) {
	for _, l := range layers {
		if err := l.Put(ctx, key, cloneVector(vec)); err != nil {
			logutil.GetLogger(ctx).Warn("embedding cache write failed", zap.String("layer", l.Name()), zap.Error(err))
		}
	}
}

func (c *cachedEmbedder) ModelName() string {
	return c.next.ModelName()
}

func cloneVector(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
