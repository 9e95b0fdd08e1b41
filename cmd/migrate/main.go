package main

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"timeronline/backend/internal/config"
	"timeronline/backend/internal/db"
	"timeronline/backend/internal/logging"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	path := os.Getenv("TIMER_CONFIG")
	if path == "" {
		path = "./config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Pretty)

	if cfg.Storage.Driver != config.StorageSQLite {
		log.Info().Str("driver", cfg.Storage.Driver).Msg("storage driver has no migrations")
		return
	}

	database, err := db.OpenSQLite(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer database.Close()

	applied, err := db.RunMigrations(database, cfg.Storage.MigrationsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

	log.Info().Int("applied", len(applied)).Msg("migrations applied successfully")
}
