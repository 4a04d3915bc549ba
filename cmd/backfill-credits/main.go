// Command backfill-credits copies legacy credit balances from subscription
// metadata into the credit columns. It is safe to run more than once.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"cooksa_backend/internal/store"
	"cooksa_backend/pkg/config"
	"cooksa_backend/pkg/credits"
	"cooksa_backend/pkg/database"
	"cooksa_backend/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Could not load configuration")
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Pretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not connect to database")
	}
	if err := database.Migrate(db, store.Models()...); err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}

	migrated, err := credits.Backfill(ctx, store.New(db))
	if err != nil {
		log.Fatal().Err(err).Int("migrated", migrated).Msg("Credit backfill failed")
	}
	log.Info().Int("migrated", migrated).Msg("Credit backfill complete")
}
