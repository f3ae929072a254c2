package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/mikey/llm-inbox-triage/internal/core"
	"github.com/mikey/llm-inbox-triage/internal/utils"
	"go.uber.org/zap"
)

// ContentGenerator is satisfied by *genai.GenerativeModel
type ContentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// GeminiClient classifies messages with Google Gemini
type GeminiClient struct {
	client    *genai.Client
	model     ContentGenerator
	modelName string
	logger    *zap.Logger
}

// NewGeminiClient wraps a configured model. client may be nil when the
// model is not backed by a genai.Client.
func NewGeminiClient(client *genai.Client, model ContentGenerator, modelName string, logger *zap.Logger) *GeminiClient {
	return &GeminiClient{
		client:    client,
		model:     model,
		modelName: modelName,
		logger:    logger,
	}
}

// Close closes the Gemini client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Categorize asks the model for a single category
func (c *GeminiClient) Categorize(ctx context.Context, text string) (string, error) {
	var names []string
	for _, cat := range core.ClassifierCategories() {
		names = append(names, string(cat))
	}
	prompt := utils.BuildCategoryPrompt(names, text)

	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content with Gemini: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("empty response from Gemini")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}

	category := utils.ExtractCategory(sb.String())
	c.logger.Debug("Gemini classification",
		zap.String("model", c.modelName),
		zap.String("category", category))
	return category, nil
}
