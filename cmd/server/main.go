// Command server runs the mail triage HTTP API.
//
//	@title			go-mail-triage API
//	@version		1.0
//	@description	Per-mailbox triage rules and evaluation of pending emails.
//	@BasePath		/api/v1
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-mail-triage/internal/cache"
	"github.com/tbourn/go-mail-triage/internal/config"
	httpapi "github.com/tbourn/go-mail-triage/internal/http"
	"github.com/tbourn/go-mail-triage/internal/observability"
	"github.com/tbourn/go-mail-triage/internal/repo"
	"github.com/tbourn/go-mail-triage/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version string

const (
	purgeEvery      = 15 * time.Minute
	shutdownTimeout = 10 * time.Second
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	closer := sysutil.SetupLogger(sysutil.LogOptions{
		Level:     cfg.LogLevel,
		Pretty:    cfg.LogPretty,
		File:      cfg.LogFile,
		Component: "server",
	})
	defer closer.Close()

	ver := sysutil.FirstNonEmpty(version, os.Getenv("APP_VERSION"), "dev")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := openDB(cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Str("dialect", repo.DetectDialect(cfg.DBDSN)).Msg("database setup failed")
	}

	rc := openCache(ctx, cfg)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, rc, cfg)

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go purgeIdempotency(ctx, db)

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", ver).Msg("mail triage server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := shutdownOTel(sctx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("server stopped")
}

func openDB(dsn string) (*gorm.DB, error) {
	db, err := repo.Open(dsn)
	if err != nil {
		return nil, err
	}
	if err := repo.Instrument(db); err != nil {
		return nil, err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// openCache dials redis when configured. The server still runs without the
// cache: rule sets are then read from the database on every evaluation.
func openCache(ctx context.Context, cfg config.Config) cache.RuleSetCache {
	if cfg.RedisAddr == "" {
		return cache.Noop{}
	}
	client, err := cache.Dial(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		log.Warn().Err(err).Msg("rule cache disabled")
		return cache.Noop{}
	}
	log.Info().Str("addr", cfg.RedisAddr).Dur("ttl", cfg.RulesCacheTTL).Msg("rule cache enabled")
	return cache.NewRedis(client, cfg.RulesCacheTTL)
}

func purgeIdempotency(ctx context.Context, db *gorm.DB) {
	t := time.NewTicker(purgeEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredReplays(ctx, db, now.UTC())
			if err != nil {
				log.Error().Err(err).Msg("purge idempotency keys")
				continue
			}
			if n > 0 {
				log.Debug().Int64("removed", n).Msg("expired idempotency keys purged")
			}
		}
	}
}
