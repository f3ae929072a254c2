package factory

import (
	"context"
	"fmt"

	"github.com/mikey/llm-inbox-triage/internal/adapters/bedrock"
	"github.com/mikey/llm-inbox-triage/internal/adapters/gemini"
	"github.com/mikey/llm-inbox-triage/internal/adapters/openai"
	"github.com/mikey/llm-inbox-triage/internal/adapters/resilience"
	"github.com/mikey/llm-inbox-triage/internal/config"
	"github.com/mikey/llm-inbox-triage/internal/core"
	"go.uber.org/zap"
)

// LLMFactory creates the classifier backend
type LLMFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewLLMFactory creates a new LLM factory
func NewLLMFactory(cfg *config.Config, logger *zap.Logger) *LLMFactory {
	return &LLMFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateClassifier creates the configured provider, wrapped in a circuit
// breaker unless llm.breaker.enabled is false
func (f *LLMFactory) CreateClassifier(ctx context.Context) (core.Classifier, error) {
	llmConfig, err := f.cfg.GetLLM()
	if err != nil {
		return nil, err
	}

	var classifier core.Classifier
	switch llmConfig.Provider {
	case "bedrock":
		classifier, err = bedrock.NewFactory(f.cfg.GetBedrock(), f.logger).CreateClient(ctx)
	case "gemini":
		classifier, err = gemini.NewFactory(f.cfg.GetGemini(), f.logger).CreateClient(ctx)
	case "openai":
		classifier, err = openai.NewFactory(f.cfg.GetOpenAI(), f.logger).CreateClient()
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", llmConfig.Provider)
	}
	if err != nil {
		return nil, err
	}

	f.logger.Info("Classifier created", zap.String("provider", llmConfig.Provider))

	if !llmConfig.Breaker.Enabled {
		return classifier, nil
	}
	return resilience.NewBreakerClassifier(classifier, resilience.BreakerSettings{
		Name:        llmConfig.Provider,
		MaxFailures: llmConfig.Breaker.MaxFailures,
		OpenTimeout: llmConfig.Breaker.OpenTimeout,
		Interval:    llmConfig.Breaker.Interval,
	}, f.logger), nil
}
