package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bryanwahyu/paperscore/internal/config"
	"github.com/bryanwahyu/paperscore/internal/infra/cache"
	"github.com/bryanwahyu/paperscore/internal/infra/queue"
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
		logger.Fatal("dispatcher stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := cache.NewClient(cache.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		return err
	}
	defer rdb.Close()

	q := queue.New(rdb, cfg.Store.TTL, logger.Named("queue"))
	signer, err := queue.NewSigner(cfg.Queue.SigningKey, cfg.Queue.NextSigningKey)
	if err != nil {
		return err
	}
	metrics := telemetry.New()

	d := &queue.Dispatcher{
		Broker:  q,
		Signer:  signer,
		Client:  &http.Client{},
		Workers: cfg.Dispatcher.Workers,
		Poll:    cfg.Dispatcher.Poll,
		Backoff: queue.Backoff{
			Initial:    cfg.Dispatcher.BackoffInitial,
			Max:        cfg.Dispatcher.BackoffMax,
			Multiplier: cfg.Dispatcher.BackoffMultiplier,
		},
		Logger:  logger.Named("dispatcher"),
		Metrics: metrics,
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", middleware.HealthHandler(map[string]middleware.HealthChecker{
		"redis": middleware.CheckFunc(q.Ping),
	}))
	mux.HandleFunc("/live", middleware.LivenessHandler)
	srv := &http.Server{Addr: cfg.Dispatcher.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.Run(ctx) })
	g.Go(func() error {
		logger.Info("metrics listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
