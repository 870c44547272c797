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
	"github.com/rs/zerolog"

	"github.com/cognolabs/changedetection/internal/config"
	"github.com/cognolabs/changedetection/internal/db"
	httpapi "github.com/cognolabs/changedetection/internal/http"
	"github.com/cognolabs/changedetection/internal/pipeline"
	"github.com/cognolabs/changedetection/internal/repository"
	"github.com/cognolabs/changedetection/internal/service"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}

	log := newLogger(cfg)

	var journal *repository.ReviewJournal
	if cfg.Journal.DSN != "" {
		gormDB, err := db.Connect(cfg.Journal.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open review journal database")
		}
		journal = repository.NewReviewJournal(gormDB)
		log.Info().Msg("review journal enabled")
	}

	client := pipeline.NewClient(cfg.Pipeline.BaseURL, cfg.Pipeline.RequestTimeout, log)
	dashboard := service.NewDashboardService(client, journal, cfg.Review.SettleDelay, log)
	defer dashboard.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// First load happens before the server accepts traffic; a partially
	// reachable backend just leaves those slots empty.
	if err := dashboard.Reload(ctx); err != nil {
		log.Warn().Err(err).Msg("initial reload failed")
	}

	gin.SetMode(gin.ReleaseMode)
	handler := httpapi.NewHandler(dashboard, journal, cfg, log)
	router := httpapi.NewRouter(cfg, handler, log)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", cfg.Server.Addr).
			Str("backend", cfg.Pipeline.BaseURL).
			Msg("dashboard server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(os.Stderr)
	if cfg.Log.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger.Level(level).With().Timestamp().Logger()
}
