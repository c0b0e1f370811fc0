package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"

	"github.com/dkvirkvelia/bankledger/internal/config"
	"github.com/dkvirkvelia/bankledger/internal/logger"
	"github.com/dkvirkvelia/bankledger/internal/store"
	"github.com/dkvirkvelia/bankledger/internal/taxonomy"
)

func main() {
	log := logger.New(os.Getenv("ENV"))

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Migration error")
	}
}

func run() error {
	if len(os.Args) < 2 {
		return fmt.Errorf("usage: migrate <up|down|version|seed> [N]")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(cfg.Env)
	command := os.Args[1]

	// Seeding goes through the store, not raw SQL, so it works against both
	// postgres and the sqlite fallback.
	if command == "seed" {
		return seed(cfg, log)
	}

	if !cfg.UsePostgres() {
		return fmt.Errorf("DATABASE_URL is not set; the sqlite fallback migrates itself on startup")
	}

	m, err := migrate.New("file://"+cfg.MigrationsDir, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			log.Warn().Err(srcErr).Msg("Migrate source close error")
		}
		if dbErr != nil {
			log.Warn().Err(dbErr).Msg("Migrate database close error")
		}
	}()

	switch command {
	case "up":
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("migration up failed: %w", err)
		}
		log.Info().Msg("Migrations applied successfully")

	case "down":
		steps := 1
		if len(os.Args) > 2 {
			steps, err = strconv.Atoi(os.Args[2])
			if err != nil {
				return fmt.Errorf("invalid step count: %w", err)
			}
		}
		if err := m.Steps(-steps); err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("migration down failed: %w", err)
		}
		log.Info().Int("steps", steps).Msg("Rolled back migrations")

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return fmt.Errorf("failed to get version: %w", err)
		}
		log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Migration version")

	default:
		return fmt.Errorf("unknown command: %s (use up, down, version, or seed)", command)
	}

	return nil
}

// seed replaces the stored taxonomy with the built-in category set.
func seed(cfg *config.Config, log zerolog.Logger) error {
	st, err := store.Open(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	if !cfg.UsePostgres() {
		if err := st.AutoMigrate(); err != nil {
			return fmt.Errorf("failed to migrate sqlite schema: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	categories := taxonomy.Static().Categories()
	if err := st.ReplaceCategories(ctx, categories); err != nil {
		return fmt.Errorf("failed to seed categories: %w", err)
	}

	log.Info().Int("categories", len(categories)).Msg("Taxonomy seeded")
	return nil
}
