package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"syncplane/internal/auth"
	"syncplane/internal/config"
	"syncplane/internal/presence"
	"syncplane/internal/server"
	"syncplane/internal/store"
	"syncplane/internal/store/memory"
	"syncplane/internal/store/postgres"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, cleanup, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("store init failed")
	}
	defer cleanup()

	tokenCfg := auth.TokenConfig{
		Secret: cfg.MasterSecret,
		Expiry: cfg.TokenExpiry,
		Issuer: "syncplane",
	}

	wiring := server.NewRouter(server.Deps{Store: st, TokenConfig: tokenCfg, Logger: logger})

	sweeper := presence.NewSweeper(st, wiring.Router, logger, cfg.StaleThreshold, cfg.SweepInterval)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		presence.Forever(ctx, logger, "presence-sweep", sweeper.Run)
	}()

	logger.Info().Int("port", cfg.Port).Msg("listening")
	if err := server.Run(ctx, cfg, wiring.Engine); err != nil {
		logger.Error().Err(err).Msg("server stopped")
	}
	stop()
	wg.Wait()
}

func openStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (store.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn().Msg("DATABASE_URL not set, using in-memory store")
		return memory.New(), func() {}, nil
	}

	if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info().Msg("connected to postgres")
	return postgres.New(pool), pool.Close, nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}
