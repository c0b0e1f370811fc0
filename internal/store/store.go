// Package store is the GORM-backed ledger store: postgres in production,
// SQLite for local runs and tests. It owns the process-level connection pool
// shared by request handlers and the background task runner.
package store

import (
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dkvirkvelia/bankledger/internal/config"
)

// Store implements ledger.Store over a GORM connection pool.
type Store struct {
	db  *gorm.DB
	log zerolog.Logger
}

// Open connects per the configuration: DATABASE_URL when set, else the local
// SQLite file. Schema management differs by driver — postgres runs the SQL
// migrations, SQLite auto-migrates — so Open leaves both to the caller.
func Open(cfg *config.Config, log zerolog.Logger) (*Store, error) {
	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}

	var (
		db  *gorm.DB
		err error
	)
	if cfg.UsePostgres() {
		db, err = gorm.Open(postgres.Open(cfg.DatabaseURL), gormCfg)
	} else {
		db, err = gorm.Open(sqlite.Open(cfg.SQLiteDSN()), gormCfg)
	}
	if err != nil {
		return nil, fmt.Errorf("store: connecting: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("store: getting underlying DB: %w", err)
	}
	if cfg.UsePostgres() {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	} else {
		// SQLite allows one writer; a single connection avoids lock errors.
		sqlDB.SetMaxOpenConns(1)
	}

	return New(db, log), nil
}

// New wraps an existing GORM handle. Tests use it with an in-memory SQLite
// database.
func New(db *gorm.DB, log zerolog.Logger) *Store {
	return &Store{db: db, log: log}
}

// RunMigrations applies pending SQL migrations (postgres only).
func RunMigrations(migrationsDir, databaseURL string, log zerolog.Logger) error {
	m, err := migrate.New("file://"+migrationsDir, databaseURL)
	if err != nil {
		return fmt.Errorf("store: creating migrate instance: %w", err)
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

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("store: applying migrations: %w", err)
	}

	log.Info().Msg("Database migrations applied")
	return nil
}

// AutoMigrate creates the schema from the models. Used on the SQLite path,
// where golang-migrate's postgres DDL does not apply.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&transactionRow{}, &categoryRow{}); err != nil {
		return fmt.Errorf("store: auto-migrating: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("store: getting underlying DB: %w", err)
	}
	return sqlDB.Close()
}
