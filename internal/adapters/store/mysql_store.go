package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

var mysqlDialect = dialect{
	name:         "mysql",
	insertIgnore: "INSERT IGNORE INTO",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS patterns (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			account_id VARCHAR(191) NOT NULL,
			scope_kind VARCHAR(32) NOT NULL,
			scope_value VARCHAR(400) NOT NULL,
			category VARCHAR(64) NOT NULL,
			total_occurrences INT NOT NULL DEFAULT 0,
			deletion_count INT NOT NULL DEFAULT 0,
			confidence_score DOUBLE NOT NULL DEFAULT 0,
			first_seen BIGINT NOT NULL,
			last_seen BIGINT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			marked_as_repeat_offender BIGINT NULL,
			UNIQUE KEY uniq_pattern (account_id, scope_kind, scope_value, category),
			INDEX idx_patterns_last_seen (account_id, last_seen)
		)`,
		`CREATE TABLE IF NOT EXISTS processed_messages (
			account_id VARCHAR(191) NOT NULL,
			message_id VARCHAR(191) NOT NULL,
			processed_at BIGINT NOT NULL,
			PRIMARY KEY (account_id, message_id),
			INDEX idx_processed_at (processed_at)
		)`,
		`CREATE TABLE IF NOT EXISTS processing_runs (
			run_id VARCHAR(64) PRIMARY KEY,
			account_id VARCHAR(191) NOT NULL,
			started_at BIGINT NOT NULL,
			finished_at BIGINT NOT NULL,
			processed INT NOT NULL DEFAULT 0,
			skipped INT NOT NULL DEFAULT 0,
			duplicates INT NOT NULL DEFAULT 0,
			pre_categorized INT NOT NULL DEFAULT 0,
			classifier_errors INT NOT NULL DEFAULT 0,
			marked_processed INT NOT NULL DEFAULT 0,
			mark_errors INT NOT NULL DEFAULT 0,
			error TEXT NOT NULL,
			categories JSON NOT NULL,
			INDEX idx_runs_account (account_id, finished_at)
		)`,
	},
}

// NewMySQLStore connects to MySQL and creates the schema if needed
func NewMySQLStore(dsn string, logger *zap.Logger, cleanupFreq, retention time.Duration) (*SQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	s, err := NewMySQLStoreFromDB(db, logger, cleanupFreq, retention)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewMySQLStoreFromDB wraps an already opened MySQL handle
func NewMySQLStoreFromDB(db *sql.DB, logger *zap.Logger, cleanupFreq, retention time.Duration) (*SQLStore, error) {
	return newSQLStore(db, mysqlDialect, logger, cleanupFreq, retention)
}
