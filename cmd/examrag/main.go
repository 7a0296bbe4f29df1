package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/examrag/internal/config"
	"github.com/xxxsen/examrag/internal/handler"
	"github.com/xxxsen/examrag/internal/job"
	"github.com/xxxsen/examrag/internal/middleware"
	"github.com/xxxsen/examrag/internal/schedule"
	"github.com/xxxsen/examrag/internal/service"
	"github.com/xxxsen/examrag/internal/source"
)

const cacheCleanupSpec = "30 3 * * *"

func main() {
	var (
		configPath    string
		ingestOnStart bool
		sourceType    string
		sourceDir     string
		extractedDir  string
	)

	rootCmd := &cobra.Command{
		Use:          "examrag",
		Short:        "question answering over examination board documents",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json (optional, env overrides apply)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the http api",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runServer(cfg, ingestOnStart)
		},
	}
	runCmd.Flags().BoolVar(&ingestOnStart, "ingest", false, "ingest the configured source before serving (always on for the memory store)")

	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "extract, chunk, embed and store documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if sourceType != "" {
				cfg.Ingest.Source.Type = sourceType
			}
			if sourceDir != "" {
				cfg.Ingest.Source.Dir = sourceDir
				if sourceType == "" {
					cfg.Ingest.Source.Type = source.TypeDir
				}
			}
			if extractedDir != "" {
				cfg.Ingest.Source.ExtractedDir = extractedDir
			}
			return runIngest(cmd.Context(), cfg)
		},
	}
	ingestCmd.Flags().StringVar(&sourceType, "source", "", "document source: builtin, dir or s3")
	ingestCmd.Flags().StringVar(&sourceDir, "dir", "", "directory to ingest (implies --source dir)")
	ingestCmd.Flags().StringVar(&extractedDir, "extracted-dir", "", "write extracted text files here")

	rootCmd.AddCommand(runCmd, ingestCmd)
	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", path), zap.Any("settings", cfg.Settings()))
	return cfg, nil
}

func runIngest(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	warmup := false
	cfg.LLM.Warmup = &warmup
	pipeline, err := service.NewPipeline(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}
	defer pipeline.Close(context.Background())

	src, err := source.New(ctx, cfg.Ingest.Source)
	if err != nil {
		return err
	}
	report, err := pipeline.Ingest(ctx, src)
	if report != nil {
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(out))
		fmt.Printf("indexed=%d unchanged=%d failed=%d chunks=%d\n",
			report.Indexed(), report.Unchanged(), report.Failed(), report.Chunks())
	}
	return err
}

func runServer(cfg *config.Config, ingestOnStart bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log := logutil.GetLogger(ctx)
	log.Info("starting server",
		zap.Int("port", cfg.Port),
		zap.String("store_type", cfg.Store.Type),
		zap.String("llm_model", cfg.LLM.Model),
	)

	pipeline, err := service.NewPipeline(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}
	defer pipeline.Close(context.Background())

	if ingestOnStart || cfg.Store.Type == config.StoreTypeMemory {
		src, err := source.New(ctx, cfg.Ingest.Source)
		if err != nil {
			return err
		}
		if _, err := pipeline.Ingest(ctx, src); err != nil {
			return fmt.Errorf("initial ingestion: %w", err)
		}
	}

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewIngestJob(pipeline, cfg.Ingest.Source), cfg.Ingest.Schedule); err != nil {
		return fmt.Errorf("schedule ingestion: %w", err)
	}
	if cacheRepo := pipeline.EmbeddingCacheRepo(); cacheRepo != nil {
		cleanup := job.NewEmbeddingCacheCleanupJob(cacheRepo, cfg.Embedding.CacheMaxAgeDays)
		if err := scheduler.AddJob(cleanup, cacheCleanupSpec); err != nil {
			return fmt.Errorf("schedule cache cleanup: %w", err)
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	deps := handler.RouterDeps{
		Ask:          handler.NewAskHandler(pipeline),
		Health:       handler.NewHealthHandler(pipeline),
		AskRateLimit: time.Duration(cfg.AskRateLimitMs) * time.Millisecond,
	}
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	log.Info("http server listening", zap.String("addr", addr))

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("server stopping...")
	return nil
}
