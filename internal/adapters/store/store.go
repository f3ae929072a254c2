package store

import (
	"context"

	"github.com/mikey/llm-inbox-triage/internal/core"
)

// Store is a backend holding patterns, processed-message markers and run statistics
type Store interface {
	core.PatternStore
	core.DedupStore
	core.StatsSink

	// LatestRun returns the most recent run summary for an account
	LatestRun(ctx context.Context, accountID string) (*core.RunSummary, error)

	// Cleanup removes expired processed-message markers
	Cleanup(ctx context.Context) error

	// Stop releases background tasks and connections
	Stop()
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLStore)(nil)
)
