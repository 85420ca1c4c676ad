package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/mlibrary/internal/handler"
	"github.com/xxxsen/mlibrary/internal/job"
	"github.com/xxxsen/mlibrary/internal/mcptool"
	"github.com/xxxsen/mlibrary/internal/middleware"
	"github.com/xxxsen/mlibrary/internal/schedule"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "mlibrary",
		Short: "mlibrary content ingestion and retrieval engine",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the http server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(configPath, false, runServer)
		},
	}

	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "serve library tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(configPath, true, func(ctx context.Context, a *app) error {
				return server.ServeStdio(mcptool.NewServer(a.library))
			})
		},
	}

	ingestCmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "upload local entry files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(configPath, false, func(ctx context.Context, a *app) error {
				return ingestFiles(ctx, a, args)
			})
		},
	}

	reindexCmd := &cobra.Command{
		Use:   "reindex",
		Short: "retry semantic indexing of pending and degraded entries once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(configPath, false, func(ctx context.Context, a *app) error {
				return schedule.RunOnce(ctx, job.NewReindexJob(a.library, a.cfg.Reindex.Batch))
			})
		},
	}

	var outDir string
	prepareCmd := &cobra.Command{
		Use:   "prepare <dir or metadata file>...",
		Short: "assemble entry files from *_metadata.json and section markdown",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return prepareEntries(cmd.Context(), args, outDir)
		},
	}
	prepareCmd.Flags().StringVar(&outDir, "out", "", "write entry files here instead of next to their sources")

	rootCmd.AddCommand(runCmd, mcpCmd, ingestCmd, reindexCmd, prepareCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

// withApp loads the config, builds the app and runs fn until it returns or a
// termination signal arrives. stdio mode keeps stdout for the protocol.
func withApp(configPath string, stdio bool, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if stdio {
		cfg.LogConfig.Console = false
	}
	initLogger(cfg)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func runServer(ctx context.Context, a *app) error {
	cfg := a.cfg
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)

	mcpServer := mcptool.NewServer(a.library)
	deps := handler.RouterDeps{
		Library:         handler.NewLibraryHandler(a.library, cfg.Library.MaxUploadSize),
		Metrics:         a.metrics.Handler(),
		MCP:             mcptool.NewHTTPHandler(mcpServer),
		UploadRateLimit: time.Duration(cfg.RateLimitMs) * time.Millisecond,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORS),
			middleware.Metrics(a.metrics),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewReindexJob(a.library, cfg.Reindex.Batch), cfg.Reindex.Spec); err != nil {
		return fmt.Errorf("schedule reindex: %w", err)
	}
	if a.cacheRepo != nil {
		maxAge := time.Duration(cfg.Embed.DBCacheMaxAgeDays) * 24 * time.Hour
		if err := scheduler.AddJob(job.NewEmbeddingCacheCleanupJob(a.cacheRepo, maxAge), "@daily"); err != nil {
			return fmt.Errorf("schedule cache cleanup: %w", err)
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logutil.GetLogger(ctx).Info("http server listening",
		zap.String("addr", addr),
		zap.Strings("jobs", scheduler.Jobs()),
	)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{Handler: engine}
	if err := serveUntilDone(ctx, srv, ln, shutdownTimeout); err != nil {
		return err
	}
	logutil.GetLogger(context.Background()).Info("server stopped")
	return nil
}

// ingestFiles uploads each file through the gateway in order. A failed file
// is logged and skipped; the command fails if any file failed.
func ingestFiles(ctx context.Context, a *app, files []string) error {
	failed := 0
	for _, file := range files {
		logger := logutil.GetLogger(ctx).With(zap.String("file", filepath.Base(file)))
		raw, err := os.ReadFile(file)
		if err != nil {
			failed++
			logger.Error("read entry file failed", zap.Error(err))
			continue
		}
		res, err := a.library.Upload(ctx, raw)
		if err != nil {
			failed++
			logger.Error("upload entry failed", zap.Error(err))
			continue
		}
		logger.Info("entry uploaded",
			zap.String("entry_id", res.EntryID),
			zap.String("title", res.Title),
			zap.String("index_status", string(res.IndexStatus)),
		)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}
