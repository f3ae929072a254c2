package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mikey/llm-inbox-triage/internal/core"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when a pattern or run does not exist
	ErrNotFound = errors.New("not found")
)

type patternKey struct {
	accountID string
	kind      core.ScopeKind
	value     string
	category  core.Category
}

// MemoryStore is an in-memory implementation of the pattern, dedup and
// statistics ports
type MemoryStore struct {
	mu          sync.RWMutex
	patterns    map[patternKey]*core.Pattern
	nextID      int64
	processed   map[string]map[string]time.Time
	runs        []*core.RunSummary
	logger      *zap.Logger
	cleanupFreq time.Duration
	retention   time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
	now         func() time.Time
}

// NewMemoryStore creates a new in-memory store. A zero cleanupFreq disables
// the background cleanup of processed-message markers.
func NewMemoryStore(logger *zap.Logger, cleanupFreq, retention time.Duration) *MemoryStore {
	s := &MemoryStore{
		patterns:    make(map[patternKey]*core.Pattern),
		processed:   make(map[string]map[string]time.Time),
		logger:      logger,
		cleanupFreq: cleanupFreq,
		retention:   retention,
		stopCh:      make(chan struct{}),
		now:         time.Now,
	}

	if cleanupFreq > 0 {
		go s.startCleanupTask()
	}

	return s
}

// SetClock replaces the time source
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func copyPattern(p *core.Pattern) *core.Pattern {
	out := *p
	if p.MarkedAsRepeatOffender != nil {
		marked := *p.MarkedAsRepeatOffender
		out.MarkedAsRepeatOffender = &marked
	}
	return &out
}

// FindPatterns returns copies of the account's patterns seen at or after since
func (s *MemoryStore) FindPatterns(ctx context.Context, accountID string, activeOnly bool, since time.Time) ([]*core.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.Pattern
	for key, p := range s.patterns {
		if key.accountID != accountID {
			continue
		}
		if activeOnly && !p.IsActive {
			continue
		}
		if p.LastSeen.Before(since) {
			continue
		}
		out = append(out, copyPattern(p))
	}
	return out, nil
}

// FindOrCreatePattern returns a copy of the pattern for the key, creating it if needed
func (s *MemoryStore) FindOrCreatePattern(ctx context.Context, accountID string, kind core.ScopeKind, value string, category core.Category) (*core.Pattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := patternKey{accountID: accountID, kind: kind, value: value, category: category}
	if p, ok := s.patterns[key]; ok {
		return copyPattern(p), nil
	}

	s.nextID++
	now := s.now()
	p := &core.Pattern{
		ID:        s.nextID,
		AccountID: accountID,
		Kind:      kind,
		Value:     value,
		Category:  category,
		FirstSeen: now,
		LastSeen:  now,
		IsActive:  true,
	}
	s.patterns[key] = p
	return copyPattern(p), nil
}

// SavePattern persists a pattern. A stored promotion mark is never cleared.
func (s *MemoryStore) SavePattern(ctx context.Context, pattern *core.Pattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := patternKey{accountID: pattern.AccountID, kind: pattern.Kind, value: pattern.Value, category: pattern.Category}
	existing, ok := s.patterns[key]
	if !ok || existing.ID != pattern.ID {
		return ErrNotFound
	}

	updated := copyPattern(pattern)
	if existing.MarkedAsRepeatOffender != nil {
		updated.MarkedAsRepeatOffender = existing.MarkedAsRepeatOffender
	}
	s.patterns[key] = updated
	return nil
}

// IsProcessed reports whether the message was marked for the account
func (s *MemoryStore) IsProcessed(ctx context.Context, accountID, messageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.processed[accountID][messageID]
	return ok, nil
}

// BulkMarkProcessed marks every message id as processed
func (s *MemoryStore) BulkMarkProcessed(ctx context.Context, accountID string, messageIDs []string) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, ok := s.processed[accountID]
	if !ok {
		ids = make(map[string]time.Time)
		s.processed[accountID] = ids
	}
	now := s.now()
	for _, id := range messageIDs {
		ids[id] = now
	}
	return len(messageIDs), 0, nil
}

// RecordRun keeps the run summary in memory
func (s *MemoryStore) RecordRun(ctx context.Context, summary *core.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *summary
	s.runs = append(s.runs, &copied)
	return nil
}

// Runs returns the recorded run summaries, oldest first
func (s *MemoryStore) Runs() []*core.RunSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]*core.RunSummary(nil), s.runs...)
}

// LatestRun returns the most recently finished run for an account
func (s *MemoryStore) LatestRun(ctx context.Context, accountID string) (*core.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *core.RunSummary
	for _, run := range s.runs {
		if run.AccountID != accountID {
			continue
		}
		if latest == nil || !run.FinishedAt.Before(latest.FinishedAt) {
			latest = run
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

// Cleanup removes processed-message markers older than the retention.
// Patterns are never removed.
func (s *MemoryStore) Cleanup(ctx context.Context) error {
	if s.retention <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.retention)
	expiredCount := 0
	for _, ids := range s.processed {
		for id, markedAt := range ids {
			if markedAt.Before(cutoff) {
				delete(ids, id)
				expiredCount++
			}
		}
	}

	s.logger.Debug("Cleaned up processed message markers", zap.Int("expired_count", expiredCount))
	return nil
}

// startCleanupTask starts a background task to clean up expired markers
func (s *MemoryStore) startCleanupTask() {
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

// Stop stops the background cleanup task
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}
