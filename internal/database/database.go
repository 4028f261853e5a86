// Package database opens the relational connection behind the GORM-backed
// document store and applies its schema.
package database

import (
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"khata/internal/config"
	"khata/internal/docstore/gormstore"
	"khata/internal/logger"
)

// Manager handles database connection lifecycle and schema migration.
type Manager struct {
	db      *gorm.DB
	backend string
	dsn     string
}

// NewManager opens a connection for the configured backend.
func NewManager(cfg *config.Config) (*Manager, error) {
	m := &Manager{backend: cfg.StoreBackend}

	switch cfg.StoreBackend {
	case config.StoreSQLite:
		db, err := gorm.Open(sqlite.Open(cfg.SQLitePath), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		m.db = db

	case config.StorePostgres:
		m.dsn = cfg.PostgresDSN()
		db, err := gorm.Open(postgres.New(postgres.Config{
			DSN:                  m.dsn,
			PreferSimpleProtocol: true,
		}), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying DB: %w", err)
		}
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
		m.db = db

	default:
		return nil, fmt.Errorf("database manager does not support backend %q", cfg.StoreBackend)
	}

	return m, nil
}

// Migrate applies the documents schema. Postgres goes through golang-migrate
// and the migrations/ directory; sqlite uses GORM's auto-migration since a
// local file database has no other writers to coordinate with.
func (m *Manager) Migrate() error {
	if m.backend == config.StoreSQLite {
		return gormstore.New(m.db).AutoMigrate()
	}

	logger.Get().Info("Running database migrations...")

	mig, err := migrate.New("file://migrations", m.dsn)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		srcErr, dbErr := mig.Close()
		if srcErr != nil {
			logger.Get().Warnf("migrate source close error: %v", srcErr)
		}
		if dbErr != nil {
			logger.Get().Warnf("migrate database close error: %v", dbErr)
		}
	}()

	if err := mig.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration failed: %w", err)
	}

	logger.Get().Info("Database migrations completed successfully")
	return nil
}

// DB returns the underlying GORM database instance
func (m *Manager) DB() *gorm.DB {
	return m.db
}

// Close closes the underlying connection.
func (m *Manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
