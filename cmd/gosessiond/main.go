// Command gosessiond runs the session engine as an HTTP service.
//
// It is meant to sit behind an identity service that has already checked
// credentials: POST /sessions trusts the user id it is given. Configuration
// comes from the environment (see daemonConfig).
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/db"
	promexport "github.com/MrEthical07/goSession/metrics/export/prometheus"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("gosessiond stopped", zap.Error(err))
	}
}

func newLogger(cfg *daemonConfig) (*zap.Logger, error) {
	if cfg.production() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func run(cfg *daemonConfig, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	builder := goSession.New().
		WithConfig(cfg.engineConfig()).
		WithLogger(logger).
		WithAuditSink(goSession.NewZapAuditSink(logger))

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		builder = builder.WithRedis(rdb)
	}

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		p, err := db.ConnectAndMigrate(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer p.Close()
		pool = p
		builder = builder.WithPostgres(pool)
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	logSecurityReport(logger, engine.SecurityReport())

	go runMaintenance(ctx, engine, cfg.MaintenanceInterval, logger.Named("maintenance"))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           withRequestID(routes(engine, promexport.NewPrometheusExporter(engine), healthCheck(rdb, pool))),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr))
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

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func logSecurityReport(logger *zap.Logger, r goSession.SecurityReport) {
	logger.Info("engine ready",
		zap.String("algorithm", r.SigningAlgorithm),
		zap.Duration("access_ttl", r.AccessTTL),
		zap.Duration("refresh_ttl", r.RefreshTTL),
		zap.Duration("history_retention", r.HistoryRetention),
		zap.Bool("blacklisting", r.BlacklistingEnabled),
		zap.Bool("anti_csrf", r.AntiCSRFDefault),
		zap.Bool("refresh_throttle", r.RefreshThrottleActive),
		zap.Bool("audit", r.AuditEnabled))
	if len(r.LintCodes) > 0 {
		logger.Warn("configuration warnings", zap.Strings("codes", r.LintCodes))
	}
}
