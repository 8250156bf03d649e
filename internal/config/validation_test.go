package config

import (
	"errors"
	"testing"
	"time"
)

// validConfig returns a config that passes Validate().
func validConfig(t *testing.T) *Config {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "test-key")
	return &Config{
		Provider:             ProviderGemini,
		ModelName:            "gemini-2.5-flash",
		Temperature:          0.2,
		FrustrationThreshold: 0.8,
		FrustrationTurns:     2,
		SentimentThreshold:   -0.5,
		MaxClarifyTurns:      3,
		MaxConversationTurns: 50,
		ToolMaxRetries:       2,
		RetryInitialDelay:    200 * time.Millisecond,
		RetryMaxDelay:        5 * time.Second,
		RetrievalK:           4,
		PriorityTiers:        []string{"urgent", "high", "medium", "low"},
		PostgresHost:         "localhost",
		PostgresPort:         5432,
		PostgresUser:         "caspar",
		PostgresDBName:       "caspar",
		PostgresSSLMode:      "disable",
	}
}

func TestValidate_OK(t *testing.T) {
	cfg := validConfig(t)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidate_NilConfig(t *testing.T) {
	var cfg *Config
	if err := cfg.Validate(); !errors.Is(err, ErrConfigNil) {
		t.Errorf("Validate() = %v, want ErrConfigNil", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Provider = "anthropic" },
			wantErr: ErrInvalidProvider,
		},
		{
			name:    "empty model name",
			mutate:  func(c *Config) { c.ModelName = "  " },
			wantErr: ErrInvalidModelName,
		},
		{
			name:    "temperature out of range",
			mutate:  func(c *Config) { c.Temperature = 2.5 },
			wantErr: ErrInvalidTemperature,
		},
		{
			name:    "frustration threshold above one",
			mutate:  func(c *Config) { c.FrustrationThreshold = 1.2 },
			wantErr: ErrInvalidThreshold,
		},
		{
			name:    "sentiment threshold below minus one",
			mutate:  func(c *Config) { c.SentimentThreshold = -1.5 },
			wantErr: ErrInvalidThreshold,
		},
		{
			name:    "zero frustration turns",
			mutate:  func(c *Config) { c.FrustrationTurns = 0 },
			wantErr: ErrInvalidTurnLimit,
		},
		{
			name:    "conversation cap too small",
			mutate:  func(c *Config) { c.MaxConversationTurns = 1 },
			wantErr: ErrInvalidTurnLimit,
		},
		{
			name:    "negative retries",
			mutate:  func(c *Config) { c.ToolMaxRetries = -1 },
			wantErr: ErrInvalidRetryPolicy,
		},
		{
			name:    "max delay below initial delay",
			mutate:  func(c *Config) { c.RetryMaxDelay = 10 * time.Millisecond },
			wantErr: ErrInvalidRetryPolicy,
		},
		{
			name:    "empty priority tiers",
			mutate:  func(c *Config) { c.PriorityTiers = nil },
			wantErr: ErrInvalidPriorityTiers,
		},
		{
			name:    "duplicate priority tier",
			mutate:  func(c *Config) { c.PriorityTiers = []string{"high", "high"} },
			wantErr: ErrInvalidPriorityTiers,
		},
		{
			name:    "blank tier name",
			mutate:  func(c *Config) { c.PriorityTiers = []string{"high", " "} },
			wantErr: ErrInvalidPriorityTiers,
		},
		{
			name:    "empty postgres host",
			mutate:  func(c *Config) { c.PostgresHost = "" },
			wantErr: ErrInvalidPostgresHost,
		},
		{
			name:    "postgres port out of range",
			mutate:  func(c *Config) { c.PostgresPort = 70000 },
			wantErr: ErrInvalidPostgresPort,
		},
		{
			name:    "empty database name",
			mutate:  func(c *Config) { c.PostgresDBName = "" },
			wantErr: ErrInvalidPostgresDBName,
		},
		{
			name:    "bad sslmode",
			mutate:  func(c *Config) { c.PostgresSSLMode = "maybe" },
			wantErr: ErrInvalidPostgresSSLMode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_OllamaHost(t *testing.T) {
	cfg := validConfig(t)
	cfg.Provider = ProviderOllama
	cfg.OllamaHost = "localhost:11434"
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidOllamaHost) {
		t.Errorf("Validate() = %v, want ErrInvalidOllamaHost", err)
	}

	cfg.OllamaHost = "http://localhost:11434"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestValidate_MissingAPIKey(t *testing.T) {
	cfg := validConfig(t)
	t.Setenv("GEMINI_API_KEY", "")
	if err := cfg.Validate(); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Validate() = %v, want ErrMissingAPIKey", err)
	}
}
