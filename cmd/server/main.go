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
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"timeronline/backend/internal/broadcast"
	"timeronline/backend/internal/config"
	"timeronline/backend/internal/db"
	"timeronline/backend/internal/handler"
	"timeronline/backend/internal/logging"
	"timeronline/backend/internal/repository"
	"timeronline/backend/internal/repository/bolt"
	"timeronline/backend/internal/router"
	"timeronline/backend/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := config.Load(configPath())
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Pretty)
	if !cfg.Log.Pretty {
		gin.SetMode(gin.ReleaseMode)
	}

	timers, users, closeStore, err := openStores(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("open storage")
	}
	defer closeStore()

	bus, err := openBus(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Sync.Driver).Msg("open sync bus")
	}
	defer bus.Close()

	clk := clockwork.NewRealClock()
	authService := service.NewAuthService(users, clk, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	timerService := service.NewTimerService(timers, bus, clk, cfg.HTTP.PublicBaseURL)
	defer timerService.Close()
	shareService := service.NewShareService(clk, cfg.HTTP.PublicBaseURL, cfg.Location())

	engine := router.New(
		authService,
		handler.NewAuthHandler(authService),
		handler.NewTimerHandler(timerService),
		handler.NewLiveHandler(timerService, cfg.HTTP.CORSOrigins),
		handler.NewShareHandler(shareService),
		cfg.HTTP.CORSOrigins,
	)

	server := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("storage", cfg.Storage.Driver).
			Str("sync", cfg.Sync.Driver).
			Msg("backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("run server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}

func configPath() string {
	if path := os.Getenv("TIMER_CONFIG"); path != "" {
		return path
	}
	return "./config.yaml"
}

func openStores(cfg *config.Config) (repository.TimerStore, repository.UserStore, func(), error) {
	if cfg.Storage.Driver == config.StorageBolt {
		store, err := bolt.New(cfg.Storage.BoltPath)
		if err != nil {
			return nil, nil, nil, err
		}
		return store, store, func() { _ = store.Close() }, nil
	}

	database, err := db.OpenSQLite(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, nil, nil, err
	}
	if _, err := db.RunMigrations(database, cfg.Storage.MigrationsDir); err != nil {
		_ = database.Close()
		return nil, nil, nil, err
	}
	return repository.NewTimerRepository(database), repository.NewUserRepository(database), func() { _ = database.Close() }, nil
}

func openBus(cfg *config.Config) (broadcast.Bus, error) {
	if cfg.Sync.Driver != config.SyncNATS {
		return broadcast.NewMemoryBus(), nil
	}
	natsCfg := broadcast.DefaultNATSConfig()
	natsCfg.URL = cfg.Sync.NATSURL
	natsCfg.SubjectPrefix = cfg.Sync.SubjectPrefix
	return broadcast.NewNATSBus(natsCfg)
}
