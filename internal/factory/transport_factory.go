package factory

import (
	"context"

	"github.com/mikey/llm-inbox-triage/internal/adapters/gmail"
	"github.com/mikey/llm-inbox-triage/internal/config"
	"github.com/mikey/llm-inbox-triage/internal/core"
	"go.uber.org/zap"
)

// TransportFactory opens Gmail transports per account
type TransportFactory struct {
	gmailCfg config.GmailConfig
	logger   *zap.Logger
}

// NewTransportFactory creates a new transport factory
func NewTransportFactory(cfg *config.Config, logger *zap.Logger) *TransportFactory {
	return &TransportFactory{
		gmailCfg: cfg.GetGmail(),
		logger:   logger,
	}
}

// Open builds an authenticated transport for the account
func (f *TransportFactory) Open(ctx context.Context, account config.AccountConfig) (core.MailTransport, error) {
	logger := f.logger.With(zap.String("account", account.ID))
	svc, err := gmail.NewService(ctx, f.gmailCfg.CredentialsFile, account.TokenFile, f.gmailCfg.PermanentDelete, logger)
	if err != nil {
		return nil, err
	}
	return gmail.NewTransport(svc, gmail.TransportOptions{
		Query:            f.gmailCfg.Query,
		PermanentDelete:  f.gmailCfg.PermanentDelete,
		FetchConcurrency: f.gmailCfg.FetchConcurrency,
	}, logger), nil
}
