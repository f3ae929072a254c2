package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeInvoker struct {
	response string
	err      error
	input    *bedrockruntime.InvokeModelInput
}

func (f *fakeInvoker) InvokeModel(_ context.Context, params *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: []byte(f.response)}, nil
}

func requestPayload(t *testing.T, f *fakeInvoker) map[string]interface{} {
	t.Helper()
	require.NotNil(t, f.input)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(f.input.Body, &payload))
	return payload
}

func TestCategorize_ClaudeMessages(t *testing.T) {
	invoker := &fakeInvoker{response: `{"content":[{"type":"text","text":"Marketing"}]}`}
	client := NewBedrockClient(invoker, "anthropic.claude-3-haiku-20240307-v1:0", 20, 0, 0.9, zap.NewNop())

	got, err := client.Categorize(context.Background(), "Subject: weekly news")
	require.NoError(t, err)
	assert.Equal(t, "Marketing", got)

	payload := requestPayload(t, invoker)
	assert.Equal(t, "bedrock-2023-05-31", payload["anthropic_version"])
	messages := payload["messages"].([]interface{})
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0].(map[string]interface{})["content"], "Subject: weekly news")
	assert.Equal(t, "anthropic.claude-3-haiku-20240307-v1:0", *invoker.input.ModelId)
}

func TestCategorize_ClaudeCompletion(t *testing.T) {
	invoker := &fakeInvoker{response: `{"completion":" {\"category\": \"Wants-Money\"}"}`}
	client := NewBedrockClient(invoker, "anthropic.claude-v2", 20, 0, 0.9, zap.NewNop())

	got, err := client.Categorize(context.Background(), "Subject: invoice")
	require.NoError(t, err)
	assert.Equal(t, "Wants-Money", got)

	payload := requestPayload(t, invoker)
	assert.Contains(t, payload["prompt"], "\n\nHuman: ")
	assert.Contains(t, payload["prompt"], "- Wants-Money")
}

func TestCategorize_Titan(t *testing.T) {
	invoker := &fakeInvoker{response: `{"results":[{"outputText":"Advertising\nIt sells shoes."}]}`}
	client := NewBedrockClient(invoker, "amazon.titan-text-express-v1", 20, 0, 0.9, zap.NewNop())

	got, err := client.Categorize(context.Background(), "Subject: shoes")
	require.NoError(t, err)
	assert.Equal(t, "Advertising", got)
	assert.Contains(t, requestPayload(t, invoker), "textGenerationConfig")
}

func TestCategorize_GenericFallsBackToRawBody(t *testing.T) {
	invoker := &fakeInvoker{response: `Other`}
	client := NewBedrockClient(invoker, "meta.llama3-8b-instruct-v1:0", 20, 0, 0.9, zap.NewNop())

	got, err := client.Categorize(context.Background(), "Subject: hi")
	require.NoError(t, err)
	assert.Equal(t, "Other", got)
}

func TestCategorize_Errors(t *testing.T) {
	invoker := &fakeInvoker{err: errors.New("throttling")}
	client := NewBedrockClient(invoker, "anthropic.claude-3-sonnet", 20, 0, 0.9, zap.NewNop())
	_, err := client.Categorize(context.Background(), "x")
	assert.ErrorContains(t, err, "throttling")

	invoker = &fakeInvoker{response: `{"content":[]}`}
	client = NewBedrockClient(invoker, "anthropic.claude-3-sonnet", 20, 0, 0.9, zap.NewNop())
	_, err = client.Categorize(context.Background(), "x")
	assert.Error(t, err)
}
