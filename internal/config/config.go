// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.caspar/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - AI: Model selection, temperature, embedder
//   - Agent: escalation thresholds, turn limits, retry and timeout budgets
//   - Handoff: priority tier order, wait estimation
//   - Storage: PostgreSQL connection (see storage.go)
//   - Observability: Datadog APM tracing (see observability.go)
//
// Security: Sensitive data (passwords) are never logged; config directory uses 0750 permissions.
// Validation: Comprehensive range checks in validation.go with clear error messages.
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultGeminiEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 outputs 3072 dimensions by default, but supports
	// truncation to 768 via OutputDimensionality (Matryoshka Representation Learning).
	// Our pgvector schema uses 768 dimensions; see knowledge.VectorDimension.
	DefaultGeminiEmbedderModel = "gemini-embedding-001"

	// DefaultFrustrationThreshold is the frustration score above which
	// consecutive customer turns force an escalation.
	DefaultFrustrationThreshold = 0.8

	// DefaultFrustrationTurns is how many consecutive turns must exceed
	// the frustration threshold before the override fires.
	DefaultFrustrationTurns = 2

	// DefaultMaxClarifyTurns is the number of consecutive clarification
	// requests tolerated before the conversation escalates.
	DefaultMaxClarifyTurns = 3

	// DefaultMaxConversationTurns caps conversation length before escalation.
	DefaultMaxConversationTurns = 50

	// DefaultRetrievalK is the number of knowledge passages retrieved per answer.
	DefaultRetrievalK = 4
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderOllama   = "ollama"
	ProviderOpenAI   = "openai"
	ProviderGoogleAI = "googleai"
)

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys, tokens), update MarshalJSON.
type Config struct {
	// AI provider and model configuration
	Provider    string  `mapstructure:"provider" json:"provider"`     // "gemini" (default), "ollama", "openai"
	ModelName   string  `mapstructure:"model_name" json:"model_name"` // Model identifier (e.g., "gemini-2.5-flash")
	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// Escalation thresholds
	FrustrationThreshold float64 `mapstructure:"frustration_threshold" json:"frustration_threshold"`
	FrustrationTurns     int     `mapstructure:"frustration_turns" json:"frustration_turns"`
	SentimentThreshold   float64 `mapstructure:"sentiment_threshold" json:"sentiment_threshold"`

	// Conversation limits
	MaxClarifyTurns      int           `mapstructure:"max_clarify_turns" json:"max_clarify_turns"`
	MaxConversationTurns int           `mapstructure:"max_conversation_turns" json:"max_conversation_turns"`
	InactivityTimeout    time.Duration `mapstructure:"inactivity_timeout" json:"inactivity_timeout"`

	// Tool execution budgets
	ToolMaxRetries    int           `mapstructure:"tool_max_retries" json:"tool_max_retries"`
	RetryInitialDelay time.Duration `mapstructure:"retry_initial_delay" json:"retry_initial_delay"`
	RetryMaxDelay     time.Duration `mapstructure:"retry_max_delay" json:"retry_max_delay"`
	ToolTimeout       time.Duration `mapstructure:"tool_timeout" json:"tool_timeout"`

	// Classifier budgets
	ClassifyTimeout time.Duration `mapstructure:"classify_timeout" json:"classify_timeout"`
	ModelRateLimit  float64       `mapstructure:"model_rate_limit" json:"model_rate_limit"` // requests per second
	ModelRateBurst  int           `mapstructure:"model_rate_burst" json:"model_rate_burst"`

	// Knowledge retrieval
	EmbedderModel   string        `mapstructure:"embedder_model" json:"embedder_model"`
	RetrievalK      int           `mapstructure:"retrieval_k" json:"retrieval_k"`
	RetrieveTimeout time.Duration `mapstructure:"retrieve_timeout" json:"retrieve_timeout"`

	// Handoff queue configuration
	PriorityTiers []string          `mapstructure:"priority_tiers" json:"priority_tiers"`
	TriggerTiers  map[string]string `mapstructure:"trigger_tiers" json:"trigger_tiers"`
	WaitPerCase   time.Duration     `mapstructure:"wait_per_case" json:"wait_per_case"`
	VIPTierBoost  bool              `mapstructure:"vip_tier_boost" json:"vip_tier_boost"`

	// Storage configuration (see storage.go for documentation)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Serve mode
	ListenAddr  string   `mapstructure:"listen_addr" json:"listen_addr"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"`
	RateBurst   int      `mapstructure:"rate_burst" json:"rate_burst"`

	// Observability configuration (see observability.go for type definition)
	Datadog DatadogConfig `mapstructure:"datadog" json:"datadog"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	// Configuration directory: ~/.caspar/
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".caspar")

	// Ensure directory exists (use 0750 permission for better security)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	// Configure Viper
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	// Set default values
	setDefaults()

	// Bind environment variables
	bindEnvVariables()

	// Read configuration file (if exists)
	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	// Use Unmarshal to automatically map to struct (type-safe)
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Parse DATABASE_URL if set (highest priority for PostgreSQL config)
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// CRITICAL: Validate immediately (fail-fast)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("temperature", 0.2)
	viper.SetDefault("max_tokens", 2048)

	// Ollama defaults
	viper.SetDefault("ollama_host", "http://localhost:11434")

	// Escalation defaults
	viper.SetDefault("frustration_threshold", DefaultFrustrationThreshold)
	viper.SetDefault("frustration_turns", DefaultFrustrationTurns)
	viper.SetDefault("sentiment_threshold", -0.5)

	// Conversation defaults
	viper.SetDefault("max_clarify_turns", DefaultMaxClarifyTurns)
	viper.SetDefault("max_conversation_turns", DefaultMaxConversationTurns)
	viper.SetDefault("inactivity_timeout", 30*time.Minute)

	// Tool defaults
	viper.SetDefault("tool_max_retries", 2)
	viper.SetDefault("retry_initial_delay", 200*time.Millisecond)
	viper.SetDefault("retry_max_delay", 5*time.Second)
	viper.SetDefault("tool_timeout", 10*time.Second)

	// Classifier defaults
	viper.SetDefault("classify_timeout", 15*time.Second)
	viper.SetDefault("model_rate_limit", 5.0)
	viper.SetDefault("model_rate_burst", 10)

	// Knowledge defaults
	viper.SetDefault("embedder_model", DefaultGeminiEmbedderModel)
	viper.SetDefault("retrieval_k", DefaultRetrievalK)
	viper.SetDefault("retrieve_timeout", 10*time.Second)

	// Handoff defaults
	viper.SetDefault("priority_tiers", []string{"urgent", "high", "medium", "low"})
	viper.SetDefault("trigger_tiers", map[string]string{})
	viper.SetDefault("wait_per_case", 5*time.Minute)
	viper.SetDefault("vip_tier_boost", true)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "caspar")
	viper.SetDefault("postgres_password", "caspar_dev_password")
	viper.SetDefault("postgres_db_name", "caspar")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Serve defaults
	viper.SetDefault("listen_addr", "127.0.0.1:3500")
	viper.SetDefault("cors_origins", []string{})
	viper.SetDefault("trust_proxy", false)
	viper.SetDefault("rate_burst", 60)

	// Datadog defaults
	viper.SetDefault("datadog.agent_host", "localhost:4318")
	viper.SetDefault("datadog.environment", "dev")
	viper.SetDefault("datadog.service_name", "caspar")
}

// bindEnvVariables binds environment variables explicitly.
// GEMINI_API_KEY is read directly by Genkit (not via Viper); its presence is
// checked in cfg.Validate() based on the selected provider.
func bindEnvVariables() {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail)
	// If this panics, it's a BUG in our code, not a runtime error
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	// Datadog API key (optional, for observability)
	mustBind("datadog.api_key", "DD_API_KEY")

	// AI provider and model overrides
	mustBind("provider", "CASPAR_PROVIDER")
	mustBind("model_name", "CASPAR_MODEL_NAME")
	mustBind("ollama_host", "CASPAR_OLLAMA_HOST")

	// Serve address
	mustBind("listen_addr", "CASPAR_LISTEN_ADDR")
}

// maskedValue is the placeholder for masked sensitive data.
// Using ████████ (full-width blocks U+2588) to avoid substring matching
// with characters that could appear in real passwords.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Shows first 2 and last 2 characters, masks the rest.
// SECURITY: For secrets <=8 chars, fully masks to prevent substring attacks.
//
// THREAT MODEL: This defends against accidental logging of real secrets.
// It is NOT cryptographically secure - if logs are compromised, rotate secrets.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	// Fully mask short secrets to prevent substring matching attacks
	if len(s) <= 8 {
		return maskedValue
	}
	// For longer secrets, show first/last 2 chars for debug utility
	prefix := make([]byte, 2)
	suffix := make([]byte, 2)
	copy(prefix, s[:2])
	copy(suffix, s[len(s)-2:])
	return string(prefix) + "<" + maskedValue + ">" + string(suffix)
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - PostgresPassword
//   - Datadog.APIKey (via DatadogConfig.MarshalJSON)
//
// When adding new sensitive fields, update this method or the nested struct's MarshalJSON.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// FullModelName returns the provider-qualified model name for Genkit.
// Examples: "googleai/gemini-2.5-flash", "ollama/llama3.3", "openai/gpt-4o".
// If ModelName already contains a "/", it is returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + c.ModelName
	case ProviderOpenAI:
		return ProviderOpenAI + "/" + c.ModelName
	default:
		return ProviderGoogleAI + "/" + c.ModelName
	}
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
