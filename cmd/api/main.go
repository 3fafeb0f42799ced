package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/splax/logscribe/internal/analytics"
	"github.com/splax/logscribe/internal/app/migrate"
	httpx "github.com/splax/logscribe/internal/http"
	"github.com/splax/logscribe/internal/ingest"
	"github.com/splax/logscribe/internal/repository"
	"github.com/splax/logscribe/internal/repository/memory"
	"github.com/splax/logscribe/internal/repository/postgres"
	"github.com/splax/logscribe/internal/search"
	"github.com/splax/logscribe/internal/service/auth"
	"github.com/splax/logscribe/internal/service/upload"
	"github.com/splax/logscribe/internal/ws"
	"github.com/splax/logscribe/pkg/config"
	"github.com/splax/logscribe/pkg/logger"
)

type store interface {
	repository.UserRepository
	repository.UploadRepository
	repository.EntryRepository
}

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("api", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, health, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	hub := ws.NewHub()
	defer hub.Stop()

	runner := ingest.NewRunner(ingest.NewPipeline(nil), repo, log,
		ingest.NewMetrics(prometheus.DefaultRegisterer),
		ingest.NewBroadcastObserver(hub, log),
	)
	scheduler := ingest.NewScheduler(runner, cfg.IngestWorkers, log)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, httpx.Services{
		Auth:      auth.New(repo, log, cfg),
		Uploads:   upload.New(repo, scheduler, upload.Options{Dir: cfg.UploadDir, MaxBytes: cfg.MaxUploadBytes}, log),
		Search:    search.New(repo, log),
		Analytics: analytics.New(repo, log),
		Hub:       hub,
	}, httpx.Options{
		Limiter:        limiter,
		Health:         health,
		FrontendURL:    cfg.FrontendURL,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "store", cfg.StoreDriver, "env", cfg.Environment)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("waiting for in-flight ingestion")
		scheduler.Wait()
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			scheduler.Wait()
			os.Exit(1)
		}
	}
}

func openStore(ctx context.Context, cfg config.APIConfig, log *slog.Logger) (store, func(context.Context) error, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		log.Warn("using in-memory store; data is lost on restart")
		mem := memory.New()
		return mem, mem.Ping, func() {}, nil
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect database: %w", err)
		}
		runner, err := migrate.New(pool, cfg.DatabaseURL, log)
		if err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("configure migrations: %w", err)
		}
		if err := runner.Ping(ctx); err != nil {
			runner.Close()
			return nil, nil, nil, err
		}
		if cfg.AutoMigrate {
			if err := runner.Ensure(ctx); err != nil {
				runner.Close()
				return nil, nil, nil, err
			}
		}
		return postgres.New(pool), runner.Ping, runner.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
