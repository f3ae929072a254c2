package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeGenerator struct {
	resp   *genai.GenerateContentResponse
	err    error
	prompt string
}

func (f *fakeGenerator) GenerateContent(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	if len(parts) > 0 {
		if text, ok := parts[0].(genai.Text); ok {
			f.prompt = string(text)
		}
	}
	return f.resp, f.err
}

func response(parts ...genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: parts}}},
	}
}

func TestCategorize_JoinsTextParts(t *testing.T) {
	gen := &fakeGenerator{resp: response(genai.Text("Adver"), genai.Text("tising"))}
	client := NewGeminiClient(nil, gen, "gemini-pro", zap.NewNop())

	got, err := client.Categorize(context.Background(), "Subject: new shoes")
	require.NoError(t, err)
	assert.Equal(t, "Advertising", got)
	assert.Contains(t, gen.prompt, "Subject: new shoes")
	assert.Contains(t, gen.prompt, "- Marketing")
	assert.NoError(t, client.Close())
}

func TestCategorize_EmptyResponse(t *testing.T) {
	client := NewGeminiClient(nil, &fakeGenerator{resp: &genai.GenerateContentResponse{}}, "gemini-pro", zap.NewNop())
	_, err := client.Categorize(context.Background(), "x")
	assert.Error(t, err)
}

func TestCategorize_BackendError(t *testing.T) {
	client := NewGeminiClient(nil, &fakeGenerator{err: errors.New("quota")}, "gemini-pro", zap.NewNop())
	_, err := client.Categorize(context.Background(), "x")
	assert.ErrorContains(t, err, "quota")
}
