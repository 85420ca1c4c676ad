package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mlibrary/internal/ai"
	"github.com/xxxsen/mlibrary/internal/config"
	"github.com/xxxsen/mlibrary/internal/db"
	"github.com/xxxsen/mlibrary/internal/embedcache"
	"github.com/xxxsen/mlibrary/internal/filestore"
	"github.com/xxxsen/mlibrary/internal/metrics"
	"github.com/xxxsen/mlibrary/internal/repo"
	"github.com/xxxsen/mlibrary/internal/semantic"
	"github.com/xxxsen/mlibrary/internal/service"
)

// app holds everything the subcommands share.
type app struct {
	cfg       *config.Config
	db        *sql.DB
	metrics   *metrics.Metrics
	library   *service.LibraryService
	cacheRepo *repo.VectorCacheRepo
	closers   []func() error
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func initLogger(cfg *config.Config) {
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
}

func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg, metrics: metrics.New()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	conn, err := db.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	a.db = conn
	a.closers = append(a.closers, conn.Close)
	if err := db.ApplyMigrations(conn, cfg.Database.Driver); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}
	store, err := repo.NewContentStore(cfg.Database.Driver, conn)
	if err != nil {
		return nil, err
	}

	index, err := a.buildIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("init semantic index: %w", err)
	}
	var embedder ai.IEmbedder
	if index != nil {
		embedder, err = a.buildEmbedder()
		if err != nil {
			return nil, fmt.Errorf("init embedder: %w", err)
		}
	}
	indexer := semantic.NewIndexer(index, embedder, store,
		semantic.NewChunker(cfg.Library.ChunkSize, cfg.Library.ChunkOverlap),
		semantic.WithParallelism(cfg.Semantic.Parallelism),
		semantic.WithMetrics(a.metrics),
	)

	files, err := filestore.New(cfg.FileStore)
	if err != nil {
		return nil, fmt.Errorf("init file store: %w", err)
	}

	a.library = service.NewLibraryService(store, indexer, files, a.metrics, service.Options{
		PageMaxChars: cfg.Library.PageMaxChars,
		IndexTimeout: time.Duration(cfg.Semantic.IndexTimeout) * time.Second,
		Driver:       cfg.Database.Driver,
	})
	logutil.GetLogger(ctx).Info("library initialized",
		zap.String("driver", cfg.Database.Driver),
		zap.String("semantic_backend", cfg.Semantic.Backend),
		zap.String("file_store", cfg.FileStore.Type),
	)
	return a, nil
}

func (a *app) buildIndex(ctx context.Context) (semantic.Index, error) {
	switch a.cfg.Semantic.Backend {
	case config.SemanticPGVector:
		return semantic.NewPGVectorIndex(a.db), nil
	case config.SemanticQdrant:
		q, err := semantic.NewQdrantIndex(ctx, a.cfg.Semantic.Qdrant)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, q.Close)
		return q, nil
	}
	return nil, nil
}

// buildEmbedder chains primary and fallback providers, then puts the
// configured cache layers in front.
func (a *app) buildEmbedder() (ai.IEmbedder, error) {
	ec := a.cfg.Embed
	policy := ai.RetryPolicy{
		Attempts: ec.Retry.Attempts,
		Delay:    time.Duration(ec.Retry.DelayMs) * time.Millisecond,
	}
	providers := append([]config.EmbedProviderConfig{{Provider: ec.Provider, Model: ec.Model, Data: ec.Data}}, ec.Fallbacks...)
	entries := make([]ai.EmbedderEntry, 0, len(providers))
	for _, p := range providers {
		provider, err := ai.NewEmbedProvider(p.Provider, p.Data)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", p.Provider, err)
		}
		entries = append(entries, ai.EmbedderEntry{
			Name:     p.Provider + ":" + p.Model,
			Embedder: ai.NewEmbedder(provider, p.Model, policy),
		})
	}
	layers := []embedcache.Layer{
		embedcache.NewLRULayer(ec.CacheSize, time.Duration(ec.CacheTTL)*time.Second),
	}
	if ec.DBCache {
		a.cacheRepo = repo.NewVectorCacheRepo(a.db)
		layers = append(layers, embedcache.NewDBLayer(a.cacheRepo))
	}
	return embedcache.Wrap(ai.NewGroupEmbedder(entries), layers...), nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logutil.GetLogger(context.Background()).Warn("close resource failed", zap.Error(err))
		}
	}
	a.closers = nil
}
