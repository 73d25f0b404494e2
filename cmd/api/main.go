package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/bryanwahyu/paperscore/internal/application"
	appai "github.com/bryanwahyu/paperscore/internal/application/ai"
	appanalysis "github.com/bryanwahyu/paperscore/internal/application/analysis"
	"github.com/bryanwahyu/paperscore/internal/application/pipeline"
	"github.com/bryanwahyu/paperscore/internal/config"
	domai "github.com/bryanwahyu/paperscore/internal/domain/ai"
	"github.com/bryanwahyu/paperscore/internal/infra/ai/anthropic"
	"github.com/bryanwahyu/paperscore/internal/infra/ai/openai"
	"github.com/bryanwahyu/paperscore/internal/infra/cache"
	"github.com/bryanwahyu/paperscore/internal/infra/db/postgres"
	"github.com/bryanwahyu/paperscore/internal/infra/extract"
	"github.com/bryanwahyu/paperscore/internal/infra/httpserver"
	"github.com/bryanwahyu/paperscore/internal/infra/queue"
	minioStore "github.com/bryanwahyu/paperscore/internal/infra/storage"
	"github.com/bryanwahyu/paperscore/internal/logging"
	"github.com/bryanwahyu/paperscore/internal/middleware"
	"github.com/bryanwahyu/paperscore/internal/telemetry"
)

func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// postgres + migrations
	db, err := postgres.Connect(ctx, cfg.DSN(), postgres.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("postgres connect: %w", err)
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	// redis: status store + queue
	rdb, err := cache.NewClient(cache.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		return fmt.Errorf("redis connect: %w", err)
	}
	defer rdb.Close()
	status := cache.NewStatusStore(rdb, cfg.Store.TTL, logger.Named("status"))
	q := queue.New(rdb, cfg.Store.TTL, logger.Named("queue"))
	signer, err := queue.NewSigner(cfg.Queue.SigningKey, cfg.Queue.NextSigningKey)
	if err != nil {
		return err
	}

	// minio
	store, err := minioStore.New(ctx,
		cfg.Minio.Endpoint,
		cfg.Minio.Region,
		cfg.Minio.BucketName,
		cfg.Minio.AccessKey,
		cfg.Minio.SecretKey,
		cfg.Minio.UseSSL,
	)
	if err != nil {
		return fmt.Errorf("minio init: %w", err)
	}

	extractors, err := extract.NewRegistry(cfg.Extract.Commands)
	if err != nil {
		return err
	}
	models := modelRouter(cfg.LLM)
	metrics := telemetry.New()

	docs := postgres.NewDocumentRepository(db)
	ledger := postgres.NewCreditLedger(db)
	chain := &pipeline.Chain{
		Queue:   q,
		Routes:  pipeline.Routes{BaseURL: cfg.Queue.PublicBaseURL},
		Budgets: cfg.Budgets(),
		Retries: cfg.Queue.Retries,
	}

	runner := &pipeline.Runner{
		Documents:       docs,
		Ledger:          ledger,
		Status:          status,
		Source:          store,
		Extractor:       extractors,
		PreAnalyzer:     appai.NewPreAnalyzer(models, logger.Named("preanalyze"), cfg.LLM.PreAnalysisTimeout),
		Evaluator:       appai.NewEvaluator(models, logger.Named("agents"), metrics, cfg.LLM.AgentTimeout),
		CrossValidator:  appai.NewCrossValidator(models, logger.Named("crossvalidate"), cfg.LLM.CrossCheckTimeout),
		Analysts:        postgres.NewAnalystRepository(db),
		Errors:          postgres.NewStageErrorRepository(db),
		Chain:           chain,
		Clock:           application.SystemClock{},
		Logger:          logger.Named("pipeline"),
		Metrics:         metrics,
		MinContentChars: cfg.Pipeline.MinContentChars,
	}
	svc := &appanalysis.Service{
		Documents:   docs,
		Ledger:      ledger,
		StatusStore: status,
		Source:      store,
		Chain:       chain,
		Clock:       application.SystemClock{},
		Pricing: appanalysis.Pricing{
			Basic:         cfg.Credits.Basic,
			Standard:      cfg.Credits.Standard,
			Comprehensive: cfg.Credits.Comprehensive,
		},
		Logger: logger.Named("analysis"),
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	go limiter.Run(ctx)

	handler := httpserver.NewRouter(svc, runner, httpserver.Options{
		Verifier:         signer,
		RequireSignature: cfg.Queue.RequireSignature,
		APIKeys:          cfg.Server.APIKeys,
		CORSOrigins:      cfg.Server.CORSOrigins,
		Limiter:          limiter,
		Checkers: map[string]middleware.HealthChecker{
			"postgres": &middleware.DatabaseHealthChecker{DB: db},
			"redis":    middleware.CheckFunc(status.Ping),
			"minio":    middleware.CheckFunc(store.Ping),
		},
		Metrics: metrics,
		Logger:  logger.Named("http"),
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", addr), zap.Strings("extractors", extractors.Supported()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	// in-flight stage deliveries get a short grace period; the queue redelivers the rest
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// modelRouter wires the fast class to the OpenAI compatible endpoint and the
// strong class to Anthropic, or to the fallback model when no key is set.
func modelRouter(c config.LLMConfig) domai.Router {
	fast := openai.NewClientWithBaseURL(c.Fast.APIKey, c.Fast.Model, c.Fast.BaseURL)
	if c.Strong.APIKey == "" {
		return domai.Router{
			Fast:   fast,
			Strong: openai.NewClientWithBaseURL(c.Fast.APIKey, c.StrongFallbackModel, c.Fast.BaseURL),
		}
	}
	var opts []option.RequestOption
	if c.Strong.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.Strong.BaseURL))
	}
	return domai.Router{Fast: fast, Strong: anthropic.NewClient(c.Strong.APIKey, c.Strong.Model, opts...)}
}
