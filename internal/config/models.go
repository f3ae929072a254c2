package config

import (
	"fmt"
	"time"

	"github.com/mikey/llm-inbox-triage/internal/core"
)

// LLMConfig represents the configuration for the LLM provider
type LLMConfig struct {
	Provider string
	Breaker  BreakerConfig
}

// BreakerConfig configures the classifier circuit breaker
type BreakerConfig struct {
	Enabled     bool
	MaxFailures int
	OpenTimeout time.Duration
	Interval    time.Duration
}

// ProviderConfig is shared by every classifier backend
type ProviderConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
	BaseURL     string
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region string
	ProviderConfig
}

// AccountConfig identifies one Gmail account and its OAuth token
type AccountConfig struct {
	ID        string `mapstructure:"id"`
	TokenFile string `mapstructure:"token_file"`
}

// GmailConfig represents the Gmail transport configuration
type GmailConfig struct {
	CredentialsFile  string
	Query            string
	MaxMessages      int
	PermanentDelete  bool
	FetchConcurrency int
}

// GetLLM returns the LLM configuration
func (c *Config) GetLLM() (LLMConfig, error) {
	openTimeout, err := c.GetDuration("llm.breaker.open_timeout")
	if err != nil {
		return LLMConfig{}, err
	}
	interval, err := c.GetDuration("llm.breaker.interval")
	if err != nil {
		return LLMConfig{}, err
	}
	return LLMConfig{
		Provider: c.GetString("llm.provider"),
		Breaker: BreakerConfig{
			Enabled:     c.GetBool("llm.breaker.enabled"),
			MaxFailures: c.GetInt("llm.breaker.max_failures"),
			OpenTimeout: openTimeout,
			Interval:    interval,
		},
	}, nil
}

func (c *Config) providerConfig(prefix string) ProviderConfig {
	model := c.GetString(prefix + ".model_name")
	if model == "" {
		model = c.GetString(prefix + ".model_id")
	}
	return ProviderConfig{
		APIKey:      c.GetString(prefix + ".api_key"),
		ModelName:   model,
		MaxTokens:   c.GetInt(prefix + ".max_tokens"),
		Temperature: float32(c.GetFloat64(prefix + ".temperature")),
		TopP:        float32(c.GetFloat64(prefix + ".top_p")),
		MaxBodySize: c.GetInt(prefix + ".max_body_size"),
		BaseURL:     c.GetString(prefix + ".base_url"),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:         c.GetString("bedrock.region"),
		ProviderConfig: c.providerConfig("bedrock"),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() ProviderConfig {
	return c.providerConfig("gemini")
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() ProviderConfig {
	return c.providerConfig("openai")
}

// MaxBodySize returns the body size limit of the active provider
func (c *Config) MaxBodySize() int {
	return c.GetInt(c.GetString("llm.provider") + ".max_body_size")
}

// GetTriage returns the pipeline settings
func (c *Config) GetTriage() core.TriageSettings {
	return core.TriageSettings{
		LabelPrefix:            c.GetString("triage.label_prefix"),
		MaxBodySize:            c.MaxBodySize(),
		AbortOnClassifierError: c.GetBool("triage.abort_on_classifier_error"),
		DryRun:                 c.GetBool("triage.dry_run"),
	}
}

// GetPatterns returns the repeat-offender learning settings
func (c *Config) GetPatterns() (core.PatternSettings, error) {
	lookback, err := c.GetDuration("patterns.lookback")
	if err != nil {
		return core.PatternSettings{}, err
	}
	return core.PatternSettings{
		Lookback:            lookback,
		MinOccurrences:      c.GetInt("patterns.min_occurrences"),
		PromotionConfidence: c.GetFloat64("patterns.promotion_confidence"),
		IgnoredDomains:      c.GetStringSlice("patterns.ignored_domains"),
	}, nil
}

// GetGmail returns the Gmail transport configuration
func (c *Config) GetGmail() GmailConfig {
	return GmailConfig{
		CredentialsFile:  c.GetString("gmail.credentials_file"),
		Query:            c.GetString("gmail.query"),
		MaxMessages:      c.GetInt("gmail.max_messages"),
		PermanentDelete:  c.GetBool("gmail.permanent_delete"),
		FetchConcurrency: c.GetInt("gmail.fetch_concurrency"),
	}
}

// GetAccounts returns the configured accounts
func (c *Config) GetAccounts() ([]AccountConfig, error) {
	var accounts []AccountConfig
	if err := c.v.UnmarshalKey("accounts", &accounts); err != nil {
		return nil, fmt.Errorf("failed to parse accounts: %w", err)
	}
	seen := make(map[string]struct{}, len(accounts))
	for i, a := range accounts {
		if a.ID == "" {
			return nil, fmt.Errorf("account %d has no id", i)
		}
		if a.TokenFile == "" {
			return nil, fmt.Errorf("account %s has no token_file", a.ID)
		}
		if _, dup := seen[a.ID]; dup {
			return nil, fmt.Errorf("account %s is configured twice", a.ID)
		}
		seen[a.ID] = struct{}{}
	}
	return accounts, nil
}
