package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mikey/llm-inbox-triage/internal/core"
	"go.uber.org/zap"
)

// dialect captures the statements that differ between SQL backends
type dialect struct {
	name         string
	insertIgnore string
	schema       []string
}

const patternColumns = `id, account_id, scope_kind, scope_value, category, total_occurrences,
	deletion_count, confidence_score, first_seen, last_seen, is_active, marked_as_repeat_offender`

// SQLStore implements the pattern, dedup and statistics ports on database/sql
type SQLStore struct {
	db          *sql.DB
	dialect     dialect
	logger      *zap.Logger
	cleanupFreq time.Duration
	retention   time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
	now         func() time.Time
}

func newSQLStore(db *sql.DB, d dialect, logger *zap.Logger, cleanupFreq, retention time.Duration) (*SQLStore, error) {
	for _, stmt := range d.schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("failed to create %s schema: %w", d.name, err)
		}
	}

	s := &SQLStore{
		db:          db,
		dialect:     d,
		logger:      logger,
		cleanupFreq: cleanupFreq,
		retention:   retention,
		stopCh:      make(chan struct{}),
		now:         time.Now,
	}

	if cleanupFreq > 0 {
		go s.startCleanupTask()
	}

	return s, nil
}

// SetClock replaces the time source
func (s *SQLStore) SetClock(now func() time.Time) {
	s.now = now
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPattern(row rowScanner) (*core.Pattern, error) {
	var (
		p                   core.Pattern
		kind, category      string
		firstSeen, lastSeen int64
		marked              sql.NullInt64
	)
	err := row.Scan(&p.ID, &p.AccountID, &kind, &p.Value, &category, &p.TotalOccurrences,
		&p.DeletionCount, &p.ConfidenceScore, &firstSeen, &lastSeen, &p.IsActive, &marked)
	if err != nil {
		return nil, err
	}

	p.Kind = core.ScopeKind(kind)
	p.Category = core.Category(category)
	p.FirstSeen = time.Unix(firstSeen, 0)
	p.LastSeen = time.Unix(lastSeen, 0)
	if marked.Valid {
		t := time.Unix(marked.Int64, 0)
		p.MarkedAsRepeatOffender = &t
	}
	return &p, nil
}

// FindPatterns returns the account's patterns seen at or after since
func (s *SQLStore) FindPatterns(ctx context.Context, accountID string, activeOnly bool, since time.Time) ([]*core.Pattern, error) {
	query := `SELECT ` + patternColumns + ` FROM patterns WHERE account_id = ? AND last_seen >= ?`
	if activeOnly {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY confidence_score DESC`

	rows, err := s.db.QueryContext(ctx, query, accountID, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer rows.Close()

	var patterns []*core.Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate patterns: %w", err)
	}
	return patterns, nil
}

func (s *SQLStore) getPattern(ctx context.Context, accountID string, kind core.ScopeKind, value string, category core.Category) (*core.Pattern, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+patternColumns+` FROM patterns
		WHERE account_id = ? AND scope_kind = ? AND scope_value = ? AND category = ?`,
		accountID, string(kind), value, string(category))
	p, err := scanPattern(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query pattern: %w", err)
	}
	return p, nil
}

// FindOrCreatePattern returns the pattern for the key, inserting an empty one if needed
func (s *SQLStore) FindOrCreatePattern(ctx context.Context, accountID string, kind core.ScopeKind, value string, category core.Category) (*core.Pattern, error) {
	p, err := s.getPattern(ctx, accountID, kind, value, category)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := s.now().Unix()
	_, err = s.db.ExecContext(ctx, s.dialect.insertIgnore+` patterns
		(account_id, scope_kind, scope_value, category, total_occurrences, deletion_count,
		 confidence_score, first_seen, last_seen, is_active)
		VALUES (?, ?, ?, ?, 0, 0, 0, ?, ?, 1)`,
		accountID, string(kind), value, string(category), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert pattern: %w", err)
	}

	return s.getPattern(ctx, accountID, kind, value, category)
}

// SavePattern persists counters and timestamps. A stored promotion mark is kept.
func (s *SQLStore) SavePattern(ctx context.Context, pattern *core.Pattern) error {
	var marked sql.NullInt64
	if pattern.MarkedAsRepeatOffender != nil {
		marked = sql.NullInt64{Int64: pattern.MarkedAsRepeatOffender.Unix(), Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `UPDATE patterns SET
			total_occurrences = ?,
			deletion_count = ?,
			confidence_score = ?,
			first_seen = ?,
			last_seen = ?,
			is_active = ?,
			marked_as_repeat_offender = COALESCE(marked_as_repeat_offender, ?)
		WHERE id = ?`,
		pattern.TotalOccurrences, pattern.DeletionCount, pattern.ConfidenceScore,
		pattern.FirstSeen.Unix(), pattern.LastSeen.Unix(), pattern.IsActive, marked, pattern.ID)
	if err != nil {
		return fmt.Errorf("failed to update pattern: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		s.logger.Warn("Failed to get rows affected for pattern update", zap.Error(err))
		return nil
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IsProcessed reports whether the message was marked for the account
func (s *SQLStore) IsProcessed(ctx context.Context, accountID, messageID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM processed_messages
		WHERE account_id = ? AND message_id = ?`, accountID, messageID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to query processed message: %w", err)
	}
	return true, nil
}

// BulkMarkProcessed marks messages in one transaction, counting per-row failures
func (s *SQLStore) BulkMarkProcessed(ctx context.Context, accountID string, messageIDs []string) (int, int, error) {
	if len(messageIDs) == 0 {
		return 0, 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, len(messageIDs), fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, s.dialect.insertIgnore+` processed_messages
		(account_id, message_id, processed_at) VALUES (?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return 0, len(messageIDs), fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := s.now().Unix()
	success, failed := 0, 0
	for _, id := range messageIDs {
		if _, err := stmt.ExecContext(ctx, accountID, id, now); err != nil {
			s.logger.Warn("Failed to mark message processed",
				zap.String("account", accountID),
				zap.String("message_id", id),
				zap.Error(err))
			failed++
			continue
		}
		success++
	}

	if err := tx.Commit(); err != nil {
		return 0, len(messageIDs), fmt.Errorf("failed to commit processed messages: %w", err)
	}
	return success, failed, nil
}

// RecordRun stores a run summary with its per-category counters as JSON
func (s *SQLStore) RecordRun(ctx context.Context, summary *core.RunSummary) error {
	categories, err := json.Marshal(summary.Categories)
	if err != nil {
		return fmt.Errorf("failed to encode run statistics: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO processing_runs
		(run_id, account_id, started_at, finished_at, processed, skipped, duplicates,
		 pre_categorized, classifier_errors, marked_processed, mark_errors, error, categories)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.RunID, summary.AccountID, summary.StartedAt.Unix(), summary.FinishedAt.Unix(),
		summary.Processed, summary.Skipped, summary.Duplicates, summary.PreCategorized,
		summary.ClassifierErrors, summary.MarkedProcessed, summary.MarkErrors, summary.Err, string(categories))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// LatestRun returns the most recent run summary for an account
func (s *SQLStore) LatestRun(ctx context.Context, accountID string) (*core.RunSummary, error) {
	var (
		summary             core.RunSummary
		startedAt, finished int64
		categories          string
	)
	err := s.db.QueryRowContext(ctx, `SELECT run_id, account_id, started_at, finished_at, processed,
			skipped, duplicates, pre_categorized, classifier_errors, marked_processed, mark_errors,
			error, categories
		FROM processing_runs WHERE account_id = ? ORDER BY finished_at DESC LIMIT 1`, accountID).
		Scan(&summary.RunID, &summary.AccountID, &startedAt, &finished, &summary.Processed,
			&summary.Skipped, &summary.Duplicates, &summary.PreCategorized, &summary.ClassifierErrors,
			&summary.MarkedProcessed,
			&summary.MarkErrors, &summary.Err, &categories)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	summary.StartedAt = time.Unix(startedAt, 0)
	summary.FinishedAt = time.Unix(finished, 0)
	if err := json.Unmarshal([]byte(categories), &summary.Categories); err != nil {
		return nil, fmt.Errorf("failed to decode run statistics: %w", err)
	}
	return &summary, nil
}

// Cleanup removes processed-message markers older than the retention.
// Patterns are never removed.
func (s *SQLStore) Cleanup(ctx context.Context) error {
	if s.retention <= 0 {
		return nil
	}

	cutoff := s.now().Add(-s.retention).Unix()
	result, err := s.db.ExecContext(ctx, `DELETE FROM processed_messages WHERE processed_at < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to clean up processed messages: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		s.logger.Warn("Failed to get rows affected during cleanup", zap.Error(err))
	} else {
		s.logger.Debug("Cleaned up processed message markers", zap.Int64("expired_count", rowsAffected))
	}

	return nil
}

// startCleanupTask starts a background task to clean up expired markers
func (s *SQLStore) startCleanupTask() {
	ticker := time.NewTicker(s.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Cleanup(context.Background()); err != nil {
				s.logger.Error("Failed to clean up store", zap.Error(err))
			}
		case <-s.stopCh:
			return
		}
	}
}

// Stop stops the background cleanup task and closes the database connection
func (s *SQLStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database", zap.String("dialect", s.dialect.name), zap.Error(err))
		}
	})
}
