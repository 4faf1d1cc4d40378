package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/config"
	"github.com/ysorallc-cloud/embermate-v5.1-sub007/pkg/logger"
)

// DB represents the embedded database connection
type DB struct {
	*sql.DB
	config *config.StorageConfig
	logger *logger.Logger
}

// NewConnection opens the device-local sqlite database
func NewConnection(cfg *config.StorageConfig, log *logger.Logger) (*DB, error) {
	// Build connection string with pragmas for a single-writer local store
	connStr := buildConnectionString(cfg)

	// Open database connection
	sqlDB, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// sqlite allows one writer; keep the pool at a single connection so
	// writes from the engine are serialized at the driver level too.
	sqlDB.SetMaxOpenConns(1)

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{
		DB:     sqlDB,
		config: cfg,
		logger: log,
	}

	log.Info("Database connection established successfully")
	return db, nil
}

// buildConnectionString constructs the sqlite DSN with pragmas
func buildConnectionString(cfg *config.StorageConfig) string {
	return fmt.Sprintf(
		"file:%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on",
		cfg.Path,
		cfg.BusyTimeoutMs,
	)
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.DB != nil {
		return db.DB.Close()
	}
	return nil
}

// Health checks the database connection health
func (db *DB) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return db.PingContext(ctx)
}

// BeginTx starts a new transaction
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return db.DB.BeginTx(ctx, opts)
}
