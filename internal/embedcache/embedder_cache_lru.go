package embedcache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type lruLayer struct {
	cache *expirable.LRU[string, []float32]
}

// NewLRULayer keeps up to size vectors in memory for ttl. It returns nil when
// either bound is not positive.
func NewLRULayer(size int, ttl time.Duration) Layer {
	if size <= 0 || ttl <= 0 {
		return nil
	}
	return &lruLayer{cache: expirable.NewLRU[string, []float32](size, nil, ttl)}
}

func (l *lruLayer) Name() string { return "lru" }

func (l *lruLayer) Get(ctx context.Context, key Key) ([]float32, bool, error) {
	vec, ok := l.cache.Get(key.String())
	return vec, ok, nil
}

func (l *lruLayer) Put(ctx context.Context, key Key, vec []float32) error {
	l.cache.Add(key.String(), vec)
	return nil
}
