// Command identityd serves the identity HTTP API backed by a SQL credential
// store and Redis.
//
//	IDENTITY_JWT_ACCESS_SECRET=... IDENTITY_JWT_REFRESH_SECRET=... \
//	IDENTITYD_DB_DIALECT=postgres IDENTITYD_DATABASE_URL=postgres://... \
//	IDENTITYD_REDIS_ADDR=localhost:6379 identityd
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/internal/httpapi"
	"github.com/MrEthical07/goIdentity/internal/logger"
	promexport "github.com/MrEthical07/goIdentity/metrics/export/prometheus"
	"github.com/MrEthical07/goIdentity/store/sqlstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

func main() {
	cfg, err := loadServiceConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "identityd: %v\n", err)
		os.Exit(2)
	}
	log := logger.SetupDefault(os.Stdout, logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("identityd stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg serviceConfig, log *slog.Logger) error {
	engineCfg, err := goIdentity.LoadConfigFromEnv(goIdentity.DefaultConfig())
	if err != nil {
		return err
	}
	for _, w := range engineCfg.Lint() {
		log.Warn("config lint", slog.String("code", w.Code), slog.String("message", w.Message))
	}

	roles, err := loadRoles(cfg.RolesFile)
	if err != nil {
		return err
	}

	dialect := sqlstore.Dialect(cfg.DatabaseDialect)
	if !cfg.SkipMigrations {
		if err := sqlstore.Migrate(dialect, cfg.DatabaseURL); err != nil {
			return err
		}
		log.Info("migrations applied", slog.String("dialect", cfg.DatabaseDialect))
	}
	store, err := sqlstore.Open(ctx, dialect, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	rdb, closeRedis, err := openRedis(cfg, log)
	if err != nil {
		return err
	}
	defer closeRedis()

	b := goIdentity.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithRoles(roles).
		WithCredentialStore(store).
		WithSender(logSender{log: log}).
		WithLogger(log)
	if engineCfg.Audit.Enabled {
		b = b.WithAuditSink(goIdentity.NewJSONWriterSink(os.Stderr))
	}
	engine, err := b.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	var limiter *httpapi.IPRateLimiter
	if cfg.RateLimitPerMinute > 0 {
		lc := httpapi.DefaultRateLimitConfig()
		lc.Rate = rate.Limit(float64(cfg.RateLimitPerMinute) / 60.0)
		lc.Burst = cfg.RateLimitBurst
		limiter = httpapi.NewIPRateLimiter(lc)
		defer limiter.Stop()
	}

	deps := httpapi.RouterDeps{Service: engine, Logger: log, Limiter: limiter}
	if engineCfg.Metrics.Enabled {
		deps.Metrics = promexport.NewCollector(engine).Handler()
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewRouter(deps)}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", slog.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	log.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func openRedis(cfg serviceConfig, log *slog.Logger) (redis.UniversalClient, func(), error) {
	if cfg.RedisAddr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.RedisAddr},
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	log.Warn("IDENTITYD_REDIS_ADDR not set, using in-process miniredis", slog.String("addr", mr.Addr()))
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

// logSender stands in for an SMS gateway. It never logs the code.
type logSender struct {
	log *slog.Logger
}

func (s logSender) Send(ctx context.Context, phone string, _ string, purpose goIdentity.OTPPurpose) error {
	s.log.InfoContext(ctx, "otp dispatched", slog.String("phone", phone), slog.String("purpose", string(purpose)))
	return nil
}
