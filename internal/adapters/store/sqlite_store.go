package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var sqliteDialect = dialect{
	name:         "sqlite",
	insertIgnore: "INSERT OR IGNORE INTO",
	schema: []string{
		`PRAGMA journal_mode=WAL`,
		`CREATE TABLE IF NOT EXISTS patterns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id TEXT NOT NULL,
			scope_kind TEXT NOT NULL,
			scope_value TEXT NOT NULL,
			category TEXT NOT NULL,
			total_occurrences INTEGER NOT NULL DEFAULT 0,
			deletion_count INTEGER NOT NULL DEFAULT 0,
			confidence_score REAL NOT NULL DEFAULT 0,
			first_seen INTEGER NOT NULL,
			last_seen INTEGER NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			marked_as_repeat_offender INTEGER,
			UNIQUE (account_id, scope_kind, scope_value, category)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_patterns_last_seen ON patterns(account_id, last_seen)`,
		`CREATE TABLE IF NOT EXISTS processed_messages (
			account_id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			processed_at INTEGER NOT NULL,
			PRIMARY KEY (account_id, message_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_processed_at ON processed_messages(processed_at)`,
		`CREATE TABLE IF NOT EXISTS processing_runs (
			run_id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			processed INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0,
			duplicates INTEGER NOT NULL DEFAULT 0,
			pre_categorized INTEGER NOT NULL DEFAULT 0,
			classifier_errors INTEGER NOT NULL DEFAULT 0,
			marked_processed INTEGER NOT NULL DEFAULT 0,
			mark_errors INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			categories TEXT NOT NULL
		)`,
	},
}

// NewSQLiteStore opens (or creates) the SQLite database at dbPath
func NewSQLiteStore(dbPath string, logger *zap.Logger, cleanupFreq, retention time.Duration) (*SQLStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// a single writer avoids SQLITE_BUSY between concurrent accounts
	db.SetMaxOpenConns(1)

	s, err := newSQLStore(db, sqliteDialect, logger, cleanupFreq, retention)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Opened SQLite store", zap.String("path", dbPath))
	return s, nil
}
