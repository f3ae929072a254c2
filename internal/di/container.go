package di

import (
	"context"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/llm-inbox-triage/internal/adapters/store"
	"github.com/mikey/llm-inbox-triage/internal/config"
	"github.com/mikey/llm-inbox-triage/internal/core"
	"github.com/mikey/llm-inbox-triage/internal/factory"
	"github.com/mikey/llm-inbox-triage/internal/logging"
	"github.com/mikey/llm-inbox-triage/internal/policy"
	"github.com/mikey/llm-inbox-triage/internal/ports"
	"github.com/mikey/llm-inbox-triage/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer(configFile string) (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(func() (*config.Config, error) {
		return config.NewFromFile(configFile)
	}); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewLLMFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewTransportFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewRunnerFactory); err != nil {
		return nil, err
	}

	// Register classifier
	if err := container.Provide(func(f *factory.LLMFactory) (core.Classifier, error) {
		return f.CreateClassifier(context.Background())
	}); err != nil {
		return nil, err
	}

	// Register store and the ports it serves
	if err := container.Provide(func(f *factory.StoreFactory) (store.Store, error) {
		return f.CreateStore()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.StoreFactory, s store.Store) (core.DedupStore, error) {
		return f.CreateDedup(context.Background(), s)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(s store.Store) core.PatternStore { return s }); err != nil {
		return nil, err
	}
	if err := container.Provide(func(s store.Store) core.StatsSink { return s }); err != nil {
		return nil, err
	}

	if err := provideTriage(container); err != nil {
		return nil, err
	}

	// Register runner
	if err := container.Provide(func(f *factory.RunnerFactory) (ports.Runner, error) {
		return f.CreateRunner()
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// provideTriage registers the policy, learner and pipeline shared by both binaries
func provideTriage(container *dig.Container) error {
	// Register text processor
	if err := container.Provide(utils.NewTextProcessor); err != nil {
		return err
	}

	// Register domain policy
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) core.DomainPolicy {
		blocked := cfg.GetStringSlice("policy.blocked_domains")
		allowed := cfg.GetStringSlice("policy.allowed_domains")
		if len(blocked) > 0 || len(allowed) > 0 {
			logger.Info("Loaded domain policy",
				zap.Strings("blocked", blocked),
				zap.Strings("allowed", allowed))
		}
		return policy.NewFilter(blocked, allowed,
			cfg.GetStringSlice("policy.blocked_categories"),
			cfg.GetBool("policy.match_subdomains"),
			logger)
	}); err != nil {
		return err
	}

	// Register repeat-offender engine
	if err := container.Provide(func(cfg *config.Config, patterns core.PatternStore, logger *zap.Logger) (*core.RepeatOffenderEngine, error) {
		settings, err := cfg.GetPatterns()
		if err != nil {
			return nil, err
		}
		return core.NewRepeatOffenderEngine(patterns, logger, settings), nil
	}); err != nil {
		return err
	}

	// Register pipeline settings and service
	if err := container.Provide(func(cfg *config.Config) core.TriageSettings {
		return cfg.GetTriage()
	}); err != nil {
		return err
	}
	return container.Provide(core.NewTriageService)
}
