package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"termrepo/internal/platform/config"
	"termrepo/internal/platform/httpserver"
	"termrepo/internal/platform/lock"
	"termrepo/internal/platform/logger"
	"termrepo/internal/platform/metrics"
	"termrepo/internal/platform/postgres"
	platformredis "termrepo/internal/platform/redis"
	"termrepo/internal/store"
	"termrepo/internal/store/memory"
	pgstore "termrepo/internal/store/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to a config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

// run wires the repository core and serves the operational endpoints until
// SIGINT or SIGTERM.
func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]httpserver.HealthCheck{}

	repo, err := openRepository(ctx, cfg.Store, log)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()
	checks["store"] = func(ctx context.Context) error {
		return repo.Read(ctx, func(context.Context, store.Store) error { return nil })
	}

	locker, closeLocker, err := openLocker(ctx, cfg.Lock, checks)
	if err != nil {
		return err
	}
	defer closeLocker()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app := newApp(cfg, repo, locker, log, metrics.New(reg))
	log.Info("repository core ready",
		zap.String("store", cfg.Store.Backend),
		zap.String("lock", cfg.Lock.Backend),
		zap.Bool("http_lister", app.httpLister),
	)

	srv := httpserver.New(cfg.Server.Addr, httpserver.NewOpsRouter(log, reg, checks))
	errCh := make(chan error, 1)
	go func() {
		log.Info("serving operational endpoints", zap.String("addr", cfg.Server.Addr))
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("shut down")
	return nil
}

func openRepository(ctx context.Context, cfg config.Store, log *zap.Logger) (store.Repository, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		repo := pgstore.New(db, pgstore.WithTxTimeout(cfg.TxTimeout))
		if cfg.Postgres.Migrate {
			if err := repo.Migrate(ctx); err != nil {
				_ = repo.Close()
				return nil, err
			}
			log.Info("schema applied")
		}
		return repo, nil
	default:
		return memory.NewRepository(memory.WithTxTimeout(cfg.TxTimeout)), nil
	}
}

func openLocker(ctx context.Context, cfg config.Lock, checks map[string]httpserver.HealthCheck) (lock.Locker, func(), error) {
	if cfg.Backend != config.BackendRedis {
		return lock.NewSharded(), func() {}, nil
	}
	client, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		return nil, nil, errors.New("lock backend redis requires lock.redis.url")
	}
	checks["redis"] = client.Health
	return lock.NewRedis(client.Client, lock.WithTTL(cfg.TTL)), func() { _ = client.Close() }, nil
}
