package factory

import (
	"fmt"

	"github.com/mikey/llm-inbox-triage/internal/adapters/runner"
	"github.com/mikey/llm-inbox-triage/internal/adapters/store"
	"github.com/mikey/llm-inbox-triage/internal/config"
	"github.com/mikey/llm-inbox-triage/internal/core"
	"github.com/mikey/llm-inbox-triage/internal/ports"
	"go.uber.org/zap"
)

// RunnerFactory creates runners based on configuration
type RunnerFactory struct {
	cfg        *config.Config
	logger     *zap.Logger
	service    *core.TriageService
	transports *TransportFactory
	history    store.Store
}

// NewRunnerFactory creates a new runner factory
func NewRunnerFactory(cfg *config.Config, logger *zap.Logger, service *core.TriageService, transports *TransportFactory, history store.Store) *RunnerFactory {
	return &RunnerFactory{
		cfg:        cfg,
		logger:     logger,
		service:    service,
		transports: transports,
		history:    history,
	}
}

// CreateRunner creates the runner selected by server.mode
func (f *RunnerFactory) CreateRunner() (ports.Runner, error) {
	accounts, err := f.cfg.GetAccounts()
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("no accounts configured")
	}

	maxMessages := f.cfg.GetInt("gmail.max_messages")
	concurrency := f.cfg.GetInt("server.account_concurrency")

	mode := f.cfg.GetString("server.mode")
	switch mode {
	case "scheduler":
		interval, err := f.cfg.GetDuration("server.interval")
		if err != nil {
			return nil, err
		}
		if interval <= 0 {
			return nil, fmt.Errorf("server.interval must be positive")
		}
		return runner.NewScheduler(f.service, f.transports.Open, accounts, runner.SchedulerOptions{
			Interval:    interval,
			MaxMessages: maxMessages,
			Concurrency: concurrency,
			RunOnStart:  f.cfg.GetBool("server.run_on_start"),
		}, f.logger), nil
	case "once":
		once := runner.NewOnceRunner(f.service, f.transports.Open, accounts, maxMessages, concurrency, nil, f.logger)
		if f.history != nil {
			once.WithHistory(f.history)
		}
		return once, nil
	default:
		return nil, fmt.Errorf("unsupported server mode: %s", mode)
	}
}
