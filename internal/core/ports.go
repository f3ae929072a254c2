package core

import (
	"context"
	"time"
)

// Classifier wraps the AI classification backend
type Classifier interface {
	// Categorize returns the raw category string for cleaned message text
	Categorize(ctx context.Context, text string) (string, error)
}

// BodyFetcher loads a message body on demand
type BodyFetcher interface {
	GetBody(ctx context.Context, email *Email) (string, error)
}

// MailTransport is the remote mailbox the pipeline acts on
type MailTransport interface {
	BodyFetcher

	// FetchRecent returns up to limit recent messages with headers populated
	FetchRecent(ctx context.Context, limit int) ([]*Email, error)

	// AddLabel applies a label to a message, creating the label if needed
	AddLabel(ctx context.Context, messageID, label string) error

	// Delete disposes of a message
	Delete(ctx context.Context, messageID string) error
}

// DomainPolicy supplies externally configured allow/block lists
type DomainPolicy interface {
	// CheckDomain returns Blocked_Domain or Allowed_Domain when the domain is listed
	CheckDomain(domain string) (Category, bool)

	// IsCategoryBlocked reports whether a classifier category should be deleted
	IsCategoryBlocked(category Category) bool
}

// PatternStore persists learned repeat-offender patterns per account
type PatternStore interface {
	// FindPatterns returns patterns whose last_seen is at or after since
	FindPatterns(ctx context.Context, accountID string, activeOnly bool, since time.Time) ([]*Pattern, error)

	// FindOrCreatePattern returns the pattern for the key, creating an empty one if absent
	FindOrCreatePattern(ctx context.Context, accountID string, kind ScopeKind, value string, category Category) (*Pattern, error)

	// SavePattern persists counters, timestamps and promotion state
	SavePattern(ctx context.Context, pattern *Pattern) error
}

// DedupStore tracks which messages an account has already processed
type DedupStore interface {
	IsProcessed(ctx context.Context, accountID, messageID string) (bool, error)
	BulkMarkProcessed(ctx context.Context, accountID string, messageIDs []string) (int, int, error)
}

// StatsSink receives the per-batch summary
type StatsSink interface {
	RecordRun(ctx context.Context, summary *RunSummary) error
}
