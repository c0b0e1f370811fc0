package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dkvirkvelia/bankledger/internal/archive"
	"github.com/dkvirkvelia/bankledger/internal/config"
	"github.com/dkvirkvelia/bankledger/internal/ingest"
	"github.com/dkvirkvelia/bankledger/internal/logger"
	"github.com/dkvirkvelia/bankledger/internal/store"
)

func main() {
	// Parse CLI flags
	file := flag.String("file", "", "Path to the statement CSV to ingest")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		l := logger.New("dev")
		l.Fatal().Err(err).Msg("Invalid configuration")
	}

	log := logger.New(cfg.Env)

	if *file == "" {
		log.Fatal().Msg("Error: --file is required")
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read statement file")
	}

	st, err := store.Open(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer st.Close()

	if cfg.UsePostgres() {
		if err := store.RunMigrations(cfg.MigrationsDir, cfg.DatabaseURL, log); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}
	} else {
		if err := st.AutoMigrate(); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate sqlite schema")
		}
	}

	// Create context with timeout so the CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	ctx = logger.WithContext(ctx, log)

	filename := filepath.Base(*file)
	log.Info().Str("file", filename).Msg("Starting ingestion")

	service := ingest.NewService(st, archive.Noop{}, log)
	result, err := service.Upload(ctx, filename, data)
	if err != nil {
		log.Fatal().Err(err).Msg("Ingestion failed")
	}

	fmt.Printf("Account %s: %d accepted, %d duplicates skipped, %d rows in file.\n",
		result.Account, result.Accepted, result.DuplicatesSkipped, result.TotalInFile)
}
