package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

type fakeClassifier struct {
	responses []string
	err       error
	calls     []string
}

func (f *fakeClassifier) Categorize(_ context.Context, text string) (string, error) {
	f.calls = append(f.calls, text)
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "Other", nil
	}
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return resp, nil
}

type fakePolicy struct {
	blocked           map[string]bool
	allowed           map[string]bool
	blockedCategories map[Category]bool
}

func newFakePolicy() *fakePolicy {
	return &fakePolicy{
		blocked: map[string]bool{},
		allowed: map[string]bool{},
		blockedCategories: map[Category]bool{
			CategoryAdvertising: true,
			CategoryMarketing:   true,
			CategoryWantsMoney:  true,
		},
	}
}

func (p *fakePolicy) CheckDomain(domain string) (Category, bool) {
	if p.blocked[domain] {
		return CategoryBlockedDomain, true
	}
	if p.allowed[domain] {
		return CategoryAllowedDomain, true
	}
	return "", false
}

func (p *fakePolicy) IsCategoryBlocked(c Category) bool {
	return p.blockedCategories[c]
}

type fakeTransport struct {
	bodies      map[string]string
	bodyErr     error
	labelErrFor map[string]bool
	deleteErr   error

	labels  map[string][]string
	deleted []string
	fetched []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		bodies:      map[string]string{},
		labelErrFor: map[string]bool{},
		labels:      map[string][]string{},
	}
}

func (t *fakeTransport) FetchRecent(_ context.Context, _ int) ([]*Email, error) {
	return nil, nil
}

func (t *fakeTransport) GetBody(_ context.Context, email *Email) (string, error) {
	t.fetched = append(t.fetched, email.ID)
	if t.bodyErr != nil {
		return "", t.bodyErr
	}
	return t.bodies[email.ID], nil
}

func (t *fakeTransport) AddLabel(_ context.Context, id, label string) error {
	if t.labelErrFor[id] {
		return errors.New("label failed")
	}
	t.labels[id] = append(t.labels[id], label)
	return nil
}

func (t *fakeTransport) Delete(_ context.Context, id string) error {
	if t.deleteErr != nil {
		return t.deleteErr
	}
	t.deleted = append(t.deleted, id)
	return nil
}

type fakeDedup struct {
	processed map[string]bool
	lookupErr error
	marked    []string
}

func newFakeDedup() *fakeDedup {
	return &fakeDedup{processed: map[string]bool{}}
}

func (d *fakeDedup) IsProcessed(_ context.Context, accountID, id string) (bool, error) {
	if d.lookupErr != nil {
		return false, d.lookupErr
	}
	return d.processed[accountID+":"+id], nil
}

func (d *fakeDedup) BulkMarkProcessed(_ context.Context, accountID string, ids []string) (int, int, error) {
	for _, id := range ids {
		d.processed[accountID+":"+id] = true
		d.marked = append(d.marked, id)
	}
	return len(ids), 0, nil
}

type fakeSink struct {
	runs []*RunSummary
}

func (s *fakeSink) RecordRun(_ context.Context, summary *RunSummary) error {
	s.runs = append(s.runs, summary)
	return nil
}

// patternMap is a minimal PatternStore keyed by account, kind and value
type patternMap struct {
	mu       sync.Mutex
	patterns map[string]*Pattern
	nextID   int64
	findErr  error
}

func newPatternMap() *patternMap {
	return &patternMap{patterns: map[string]*Pattern{}}
}

func patternKey(accountID string, kind ScopeKind, value string) string {
	return fmt.Sprintf("%s|%s|%s", accountID, kind, value)
}

func (m *patternMap) FindPatterns(_ context.Context, accountID string, activeOnly bool, since time.Time) ([]*Pattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	var out []*Pattern
	for _, p := range m.patterns {
		if p.AccountID != accountID || p.LastSeen.Before(since) {
			continue
		}
		if activeOnly && !p.IsActive {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (m *patternMap) FindOrCreatePattern(_ context.Context, accountID string, kind ScopeKind, value string, category Category) (*Pattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := patternKey(accountID, kind, value)
	p, ok := m.patterns[key]
	if !ok {
		m.nextID++
		p = &Pattern{ID: m.nextID, AccountID: accountID, Kind: kind, Value: value, Category: category, IsActive: true}
		m.patterns[key] = p
	}
	cp := *p
	return &cp, nil
}

func (m *patternMap) SavePattern(_ context.Context, p *Pattern) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.patterns[patternKey(p.AccountID, p.Kind, p.Value)] = &cp
	return nil
}

func (m *patternMap) get(accountID string, kind ScopeKind, value string) *Pattern {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.patterns[patternKey(accountID, kind, value)]
}

func (m *patternMap) put(p *Pattern) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns[patternKey(p.AccountID, p.Kind, p.Value)] = p
}
