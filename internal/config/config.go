package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	return NewFromFile("")
}

// NewFromFile loads configuration from an explicit file, or searches the
// default locations when path is empty
func NewFromFile(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/llm-inbox-triage/")
		v.AddConfigPath("$HOME/.llm-inbox-triage")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("INBOX_TRIAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// LLM provider defaults
	v.SetDefault("llm.provider", "bedrock")
	v.SetDefault("llm.breaker.enabled", true)
	v.SetDefault("llm.breaker.max_failures", 5)
	v.SetDefault("llm.breaker.open_timeout", "60s")
	v.SetDefault("llm.breaker.interval", "0s")

	// Server defaults
	v.SetDefault("server.mode", "scheduler")
	v.SetDefault("server.interval", "15m")
	v.SetDefault("server.account_concurrency", 1)
	v.SetDefault("server.run_on_start", true)

	// Bedrock defaults
	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-v2")
	v.SetDefault("bedrock.max_tokens", 20)
	v.SetDefault("bedrock.temperature", 0.0)
	v.SetDefault("bedrock.top_p", 0.9)
	v.SetDefault("bedrock.max_body_size", 4096)

	// Gemini defaults
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-pro")
	v.SetDefault("gemini.max_tokens", 20)
	v.SetDefault("gemini.temperature", 0.0)
	v.SetDefault("gemini.top_p", 0.9)
	v.SetDefault("gemini.max_body_size", 4096)

	// OpenAI defaults
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model_name", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 20)
	v.SetDefault("openai.temperature", 0.0)
	v.SetDefault("openai.top_p", 0.9)
	v.SetDefault("openai.max_body_size", 4096)
	v.SetDefault("openai.base_url", "")

	// Triage defaults
	v.SetDefault("triage.label_prefix", "")
	v.SetDefault("triage.abort_on_classifier_error", true)
	v.SetDefault("triage.dry_run", false)

	// Policy defaults
	v.SetDefault("policy.blocked_domains", []string{})
	v.SetDefault("policy.allowed_domains", []string{})
	v.SetDefault("policy.blocked_categories", []string{"Advertising", "Wants-Money"})
	v.SetDefault("policy.match_subdomains", false)

	// Pattern learning defaults
	v.SetDefault("patterns.lookback", "720h")
	v.SetDefault("patterns.min_occurrences", 3)
	v.SetDefault("patterns.promotion_confidence", 0.8)
	v.SetDefault("patterns.ignored_domains", []string{
		"gmail.com", "googlemail.com", "yahoo.com", "outlook.com",
		"hotmail.com", "live.com", "icloud.com", "me.com", "aol.com",
		"proton.me", "protonmail.com",
	})

	// Store defaults
	v.SetDefault("store.type", "sqlite")
	v.SetDefault("store.sqlite_path", "/data/inbox_triage.db")
	v.SetDefault("store.mysql_dsn", "user:password@tcp(localhost:3306)/inbox_triage")
	v.SetDefault("store.cleanup_frequency", "1h")

	// Dedup defaults
	v.SetDefault("dedup.type", "store")
	v.SetDefault("dedup.retention", "720h")
	v.SetDefault("dedup.redis_addr", "localhost:6379")
	v.SetDefault("dedup.redis_password", "")
	v.SetDefault("dedup.redis_db", 0)
	v.SetDefault("dedup.key_prefix", "inbox-triage:processed")

	// Gmail defaults
	v.SetDefault("gmail.credentials_file", "/etc/llm-inbox-triage/client_secret.json")
	v.SetDefault("gmail.query", "in:inbox newer_than:1d")
	v.SetDefault("gmail.max_messages", 100)
	v.SetDefault("gmail.permanent_delete", false)
	v.SetDefault("gmail.fetch_concurrency", 8)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_paths", []string{"stderr"})
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	d, err := time.ParseDuration(c.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return d, nil
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
