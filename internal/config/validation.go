package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidThreshold indicates an escalation threshold is out of range.
	ErrInvalidThreshold = errors.New("invalid threshold")

	// ErrInvalidTurnLimit indicates a turn limit is out of range.
	ErrInvalidTurnLimit = errors.New("invalid turn limit")

	// ErrInvalidRetryPolicy indicates the retry configuration is inconsistent.
	ErrInvalidRetryPolicy = errors.New("invalid retry policy")

	// ErrInvalidPriorityTiers indicates the priority tier list is malformed.
	ErrInvalidPriorityTiers = errors.New("invalid priority tiers")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")
)

// validSSLModes are the sslmode values accepted by libpq/pgx.
var validSSLModes = []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}

// Validate checks the configuration for consistency.
// Called from Load() so a bad config fails fast at startup.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderGemini, ProviderGoogleAI:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required for provider %q", ErrMissingAPIKey, c.Provider)
		}
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY environment variable is required for provider %q", ErrMissingAPIKey, c.Provider)
		}
	case ProviderOllama:
		if !strings.HasPrefix(c.OllamaHost, "http://") && !strings.HasPrefix(c.OllamaHost, "https://") {
			return fmt.Errorf("%w: %q must start with http:// or https://", ErrInvalidOllamaHost, c.OllamaHost)
		}
	default:
		return fmt.Errorf("%w: %q (supported: gemini, googleai, openai, ollama)", ErrInvalidProvider, c.Provider)
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name is empty", ErrInvalidModelName)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: %.2f (must be in [0, 2])", ErrInvalidTemperature, c.Temperature)
	}

	if c.FrustrationThreshold < 0 || c.FrustrationThreshold > 1 {
		return fmt.Errorf("%w: frustration_threshold %.2f (must be in [0, 1])", ErrInvalidThreshold, c.FrustrationThreshold)
	}
	if c.SentimentThreshold < -1 || c.SentimentThreshold > 1 {
		return fmt.Errorf("%w: sentiment_threshold %.2f (must be in [-1, 1])", ErrInvalidThreshold, c.SentimentThreshold)
	}
	if c.FrustrationTurns < 1 {
		return fmt.Errorf("%w: frustration_turns %d (must be >= 1)", ErrInvalidTurnLimit, c.FrustrationTurns)
	}
	if c.MaxClarifyTurns < 1 {
		return fmt.Errorf("%w: max_clarify_turns %d (must be >= 1)", ErrInvalidTurnLimit, c.MaxClarifyTurns)
	}
	if c.MaxConversationTurns < 2 {
		return fmt.Errorf("%w: max_conversation_turns %d (must be >= 2)", ErrInvalidTurnLimit, c.MaxConversationTurns)
	}

	if c.ToolMaxRetries < 0 {
		return fmt.Errorf("%w: tool_max_retries %d (must be >= 0)", ErrInvalidRetryPolicy, c.ToolMaxRetries)
	}
	if c.RetryInitialDelay <= 0 || c.RetryMaxDelay < c.RetryInitialDelay {
		return fmt.Errorf("%w: retry_initial_delay %v, retry_max_delay %v", ErrInvalidRetryPolicy, c.RetryInitialDelay, c.RetryMaxDelay)
	}

	if c.RetrievalK < 1 {
		return fmt.Errorf("%w: retrieval_k %d (must be >= 1)", ErrInvalidTurnLimit, c.RetrievalK)
	}

	if err := c.validatePriorityTiers(); err != nil {
		return err
	}

	return c.validatePostgres()
}

// validatePriorityTiers checks the tier list is non-empty with unique names.
// The first tier is the most urgent; cases are served tier by tier.
func (c *Config) validatePriorityTiers() error {
	if len(c.PriorityTiers) == 0 {
		return fmt.Errorf("%w: at least one tier is required", ErrInvalidPriorityTiers)
	}
	seen := make(map[string]bool, len(c.PriorityTiers))
	for _, tier := range c.PriorityTiers {
		name := strings.TrimSpace(tier)
		if name == "" {
			return fmt.Errorf("%w: empty tier name", ErrInvalidPriorityTiers)
		}
		if seen[name] {
			return fmt.Errorf("%w: duplicate tier %q", ErrInvalidPriorityTiers, name)
		}
		seen[name] = true
	}
	return nil
}

// validatePostgres checks the PostgreSQL connection settings.
func (c *Config) validatePostgres() error {
	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d (must be in [1, 65535])", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name is empty", ErrInvalidPostgresDBName)
	}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q (supported: %s)", ErrInvalidPostgresSSLMode, c.PostgresSSLMode, strings.Join(validSSLModes, ", "))
	}
	return nil
}
