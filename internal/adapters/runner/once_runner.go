package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/mikey/llm-inbox-triage/internal/adapters/store"
	"github.com/mikey/llm-inbox-triage/internal/config"
	"github.com/mikey/llm-inbox-triage/internal/core"
	"go.uber.org/zap"
)

// RunHistory looks up the previous run of an account
type RunHistory interface {
	LatestRun(ctx context.Context, accountID string) (*core.RunSummary, error)
}

// OnceRunner triages every account a single time and prints a summary
type OnceRunner struct {
	pass    accountPass
	out     io.Writer
	history RunHistory
}

// NewOnceRunner creates a new one-shot runner. A nil out writes to stdout.
func NewOnceRunner(
	service *core.TriageService,
	open TransportOpener,
	accounts []config.AccountConfig,
	maxMessages int,
	concurrency int,
	out io.Writer,
	logger *zap.Logger,
) *OnceRunner {
	if out == nil {
		out = os.Stdout
	}
	return &OnceRunner{
		pass: accountPass{
			service:     service,
			open:        open,
			accounts:    accounts,
			maxMessages: maxMessages,
			concurrency: concurrency,
			logger:      logger,
		},
		out: out,
	}
}

// WithHistory makes the runner print each account's previous run next to
// the current one
func (r *OnceRunner) WithHistory(history RunHistory) *OnceRunner {
	r.history = history
	return r
}

// RunOnce triages every account and prints one table per account
func (r *OnceRunner) RunOnce(ctx context.Context) error {
	startTime := time.Now()
	previous := r.previousRuns(ctx)
	results, err := r.pass.run(ctx)

	for _, res := range results {
		r.printResult(res, previous[res.AccountID])
	}
	fmt.Fprintf(r.out, "Processing time: %v\n", time.Since(startTime).Round(time.Millisecond))
	return err
}

// previousRuns must be read before the pass records new runs
func (r *OnceRunner) previousRuns(ctx context.Context) map[string]*core.RunSummary {
	if r.history == nil {
		return nil
	}

	previous := make(map[string]*core.RunSummary, len(r.pass.accounts))
	for _, account := range r.pass.accounts {
		run, err := r.history.LatestRun(ctx, account.ID)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				r.pass.logger.Warn("Failed to load previous run",
					zap.String("account", account.ID), zap.Error(err))
			}
			continue
		}
		previous[account.ID] = run
	}
	return previous
}

func (r *OnceRunner) printResult(res AccountResult, previous *core.RunSummary) {
	fmt.Fprintf(r.out, "\n=== %s ===\n", res.AccountID)
	if previous != nil {
		fmt.Fprintf(r.out, "Previous run: %s  Processed: %d  Classifier errors: %d\n",
			previous.FinishedAt.Format(time.DateTime), previous.Processed, previous.ClassifierErrors)
	}
	if res.Summary == nil {
		fmt.Fprintf(r.out, "Error: %v\n", res.Err)
		return
	}

	s := res.Summary
	tw := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tTOTAL\tDELETED\tKEPT")
	for _, category := range slices.Sorted(maps.Keys(s.Categories)) {
		cs := s.Categories[category]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", category, cs.Total, cs.Deleted, cs.Kept)
	}
	tw.Flush()

	fmt.Fprintf(r.out, "Processed: %d  Skipped: %d  Duplicates: %d  Pre-categorized: %d\n",
		s.Processed, s.Skipped, s.Duplicates, s.PreCategorized)
	if s.ClassifierErrors > 0 {
		fmt.Fprintf(r.out, "Classifier errors: %d\n", s.ClassifierErrors)
	}
	if s.MarkErrors > 0 {
		fmt.Fprintf(r.out, "Marked processed: %d (%d failed)\n", s.MarkedProcessed, s.MarkErrors)
	}
	if res.Err != nil {
		fmt.Fprintf(r.out, "Stopped early: %v\n", res.Err)
	}
}

// Start runs a single pass
func (r *OnceRunner) Start() error {
	return r.RunOnce(context.Background())
}

// Stop is a no-op for the one-shot runner
func (r *OnceRunner) Stop() error {
	return nil
}
