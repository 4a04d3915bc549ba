// Command seed creates demo accounts for every tier in a development
// database. Every account uses seed.DemoPassword.
package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"cooksa_backend/internal/store"
	"cooksa_backend/pkg/config"
	"cooksa_backend/pkg/database"
	"cooksa_backend/pkg/logging"
	"cooksa_backend/pkg/seed"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Could not load configuration")
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Pretty)

	db, err := database.Connect(cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not connect to database")
	}
	if err := database.Migrate(db, store.Models()...); err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}

	created, err := seed.Accounts(context.Background(), store.New(db), time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("Seeding failed")
	}
	log.Info().Int("created", created).Msg("Seeding complete")
}
