// Command tg-monitor runs the Telegram account monitor: the connection
// supervisor, the retention cleaner, and the admin HTTP API in front of
// them. Shutdown is graceful: SIGINT/SIGTERM stops the HTTP server, the
// supervisor (which disconnects the session), and the cleaner in order.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkhv/tg-monitor/internal/config"
	httpapi "github.com/dkhv/tg-monitor/internal/http"
	"github.com/dkhv/tg-monitor/internal/monitor"
	"github.com/dkhv/tg-monitor/internal/observability"
	"github.com/dkhv/tg-monitor/internal/repo"
	"github.com/dkhv/tg-monitor/internal/sysutil"
	"github.com/dkhv/tg-monitor/internal/telegram"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	store := monitor.NewStore(db)

	sup := monitor.NewSupervisor(monitor.Config{
		APIID:             cfg.Telegram.APIID,
		APIHash:           cfg.Telegram.APIHash,
		SessionFile:       cfg.Telegram.SessionFile,
		TargetChannel:     cfg.Telegram.TargetChannel,
		PollInterval:      cfg.Monitor.PollInterval,
		ConnectBackoff:    cfg.Monitor.ConnectBackoff,
		DisconnectTimeout: cfg.Monitor.DisconnectTimeout,
		ForwardRetryAfter: cfg.Monitor.ForwardRetryAfter,
		BackfillLimit:     cfg.Monitor.BackfillLimit,
	}, store, telegram.New)
	sup.Start(ctx)

	cleaner := monitor.NewCleaner(store,
		cfg.Monitor.CleanupHourUTC,
		cfg.Monitor.ErrorRetentionDays,
		cfg.Monitor.LedgerRetentionDays,
	)
	cleaner.Start(ctx)

	r := gin.New()
	httpapi.RegisterRoutes(r, db, sup, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	if err := sup.Stop(sctx); err != nil {
		log.Warn().Err(err).Msg("supervisor stop")
	}
	if err := cleaner.Stop(sctx); err != nil {
		log.Warn().Err(err).Msg("cleaner stop")
	}
	log.Info().Msg("bye")
}
