package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/mikey/llm-inbox-triage/internal/config"
	"github.com/mikey/llm-inbox-triage/internal/core"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TransportOpener returns the mailbox transport for one account
type TransportOpener func(ctx context.Context, account config.AccountConfig) (core.MailTransport, error)

// AccountResult is the outcome of one account's batch
type AccountResult struct {
	AccountID string
	Summary   *core.RunSummary
	Err       error
}

// accountPass fetches and triages every account, bounded by concurrency.
// Accounts fail independently.
type accountPass struct {
	service     *core.TriageService
	open        TransportOpener
	accounts    []config.AccountConfig
	maxMessages int
	concurrency int
	logger      *zap.Logger
}

func (p *accountPass) run(ctx context.Context) ([]AccountResult, error) {
	results := make([]AccountResult, len(p.accounts))

	concurrency := p.concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, account := range p.accounts {
		g.Go(func() error {
			summary, err := p.runAccount(ctx, account)
			results[i] = AccountResult{AccountID: account.ID, Summary: summary, Err: err}
			return nil
		})
	}
	g.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("account %s: %w", r.AccountID, r.Err))
		}
	}
	return results, errors.Join(errs...)
}

func (p *accountPass) runAccount(ctx context.Context, account config.AccountConfig) (*core.RunSummary, error) {
	logger := p.logger.With(zap.String("account", account.ID))

	transport, err := p.open(ctx, account)
	if err != nil {
		logger.Error("Failed to open mailbox", zap.Error(err))
		return nil, fmt.Errorf("open mailbox: %w", err)
	}

	emails, err := transport.FetchRecent(ctx, p.maxMessages)
	if err != nil {
		logger.Error("Failed to fetch messages", zap.Error(err))
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	return p.service.ProcessBatch(ctx, account.ID, transport, emails)
}
