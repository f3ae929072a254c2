package ports

import (
	"context"
)

// Runner drives triage batches for the configured accounts
type Runner interface {
	// RunOnce triages every account a single time
	RunOnce(ctx context.Context) error

	// Start starts the runner
	Start() error

	// Stop stops the runner and waits for an in-flight pass
	Stop() error
}
