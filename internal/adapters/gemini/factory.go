package gemini

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/mikey/llm-inbox-triage/internal/config"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Factory creates new instances of GeminiClient
type Factory struct {
	cfg    config.ProviderConfig
	logger *zap.Logger
}

// NewFactory creates a new factory for GeminiClient instances
func NewFactory(cfg config.ProviderConfig, logger *zap.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateClient creates a GeminiClient with the configured generation settings
func (f *Factory) CreateClient(ctx context.Context) (*GeminiClient, error) {
	if f.cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini.api_key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(f.cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(f.cfg.ModelName)
	model.SetTemperature(f.cfg.Temperature)
	model.SetTopP(f.cfg.TopP)
	model.SetMaxOutputTokens(int32(f.cfg.MaxTokens))

	return NewGeminiClient(client, model, f.cfg.ModelName, f.logger), nil
}
