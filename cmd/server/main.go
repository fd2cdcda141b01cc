package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Clark-Hu/tour-booking/internal/config"
	httpserver "github.com/Clark-Hu/tour-booking/internal/http"
	"github.com/Clark-Hu/tour-booking/internal/logger"
	"github.com/Clark-Hu/tour-booking/internal/metrics"
	"github.com/Clark-Hu/tour-booking/internal/ratings"
	"github.com/Clark-Hu/tour-booking/internal/repository"
	"github.com/Clark-Hu/tour-booking/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("info", os.Getenv("LOG_FORMAT"))
		boot.Fatal().Err(err).Msg("config error")
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat).With().Str("service", "tour-booking").Logger()

	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	storeOpts := store.Options{
		MaxConns:               int32(cfg.DBMaxConns),
		MinConns:               int32(cfg.DBMinConns),
		MaxConnIdleTime:        time.Duration(cfg.DBMaxIdleSecs) * time.Second,
		MaxConnLifetime:        time.Duration(cfg.DBMaxLifeSecs) * time.Second,
		ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
		StatementCacheCapacity: cfg.DBStatementCache,
		Logger:                 log,
	}

	st, err := store.New(dbCtx, cfg.DBURL, storeOpts)
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	defer st.Close()

	m := metrics.New()
	m.RegisterPool(st.Stats)

	repo := repository.New(st)
	reviews := ratings.NewService(repo.Reviews, repo.Tours, log, ratings.WithRecomputeObserver(m.ObserveRecompute))
	server := httpserver.New(cfg, st, repo, reviews, m, log)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	select {
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("server error")
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("graceful shutdown error")
	}
	log.Info().Msg("server stopped")
}
