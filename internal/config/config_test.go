package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := NewFromViper(NewEmptyViper())

	llm, err := cfg.GetLLM()
	require.NoError(t, err)
	assert.Equal(t, "bedrock", llm.Provider)
	assert.True(t, llm.Breaker.Enabled)
	assert.Equal(t, 5, llm.Breaker.MaxFailures)
	assert.Equal(t, time.Minute, llm.Breaker.OpenTimeout)

	bedrock := cfg.GetBedrock()
	assert.Equal(t, "us-east-1", bedrock.Region)
	assert.Equal(t, "anthropic.claude-v2", bedrock.ModelName)

	patterns, err := cfg.GetPatterns()
	require.NoError(t, err)
	assert.Equal(t, 30*24*time.Hour, patterns.Lookback)
	assert.Equal(t, 3, patterns.MinOccurrences)
	assert.Equal(t, 0.8, patterns.PromotionConfidence)
	assert.Contains(t, patterns.IgnoredDomains, "gmail.com")

	triage := cfg.GetTriage()
	assert.True(t, triage.AbortOnClassifierError)
	assert.False(t, triage.DryRun)
	assert.Equal(t, 4096, triage.MaxBodySize)

	assert.Equal(t, "store", cfg.GetString("dedup.type"))
	assert.Equal(t, "in:inbox newer_than:1d", cfg.GetGmail().Query)
}

func TestNewFromFile(t *testing.T) {
	path := writeConfig(t, `
llm:
  provider: openai
  breaker:
    enabled: false
openai:
  api_key: sk-test
  model_name: gpt-4o
  base_url: http://localhost:8080/v1
  max_body_size: 1024
triage:
  label_prefix: "AI/"
  dry_run: true
policy:
  blocked_domains: [spam.example]
accounts:
  - id: personal
    token_file: /tokens/personal.json
  - id: work
    token_file: /tokens/work.json
`)

	cfg, err := NewFromFile(path)
	require.NoError(t, err)

	llm, err := cfg.GetLLM()
	require.NoError(t, err)
	assert.Equal(t, "openai", llm.Provider)
	assert.False(t, llm.Breaker.Enabled)

	openai := cfg.GetOpenAI()
	assert.Equal(t, "sk-test", openai.APIKey)
	assert.Equal(t, "gpt-4o", openai.ModelName)
	assert.Equal(t, "http://localhost:8080/v1", openai.BaseURL)

	triage := cfg.GetTriage()
	assert.Equal(t, "AI/", triage.LabelPrefix)
	assert.True(t, triage.DryRun)
	assert.Equal(t, 1024, triage.MaxBodySize)

	assert.Equal(t, []string{"spam.example"}, cfg.GetStringSlice("policy.blocked_domains"))

	accounts, err := cfg.GetAccounts()
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, AccountConfig{ID: "work", TokenFile: "/tokens/work.json"}, accounts[1])
}

func TestNewFromFile_Missing(t *testing.T) {
	_, err := NewFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("INBOX_TRIAGE_LLM_PROVIDER", "gemini")

	cfg, err := NewFromFile(writeConfig(t, "llm:\n  provider: openai\n"))
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.GetString("llm.provider"))
}

func TestGetAccounts_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"missing id", "accounts:\n  - token_file: a.json\n", "has no id"},
		{"missing token", "accounts:\n  - id: a\n", "has no token_file"},
		{"duplicate", "accounts:\n  - id: a\n    token_file: a.json\n  - id: a\n    token_file: b.json\n", "configured twice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewFromFile(writeConfig(t, tt.yaml))
			require.NoError(t, err)
			_, err = cfg.GetAccounts()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetDuration_Invalid(t *testing.T) {
	v := NewEmptyViper()
	v.Set("patterns.lookback", "forever")
	_, err := NewFromViper(v).GetPatterns()
	assert.Error(t, err)
}
