package config

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"short fully masked", "secret", maskedValue},
		{"exactly eight fully masked", "12345678", maskedValue},
		{"long shows edges", "my_long_secret_key_123", "my<" + maskedValue + ">23"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := maskSecret(tt.input); got != tt.want {
				t.Errorf("maskSecret(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestConfig_MarshalJSON_MasksPassword(t *testing.T) {
	cfg := Config{
		PostgresPassword: "super_secret_password",
		Datadog:          DatadogConfig{APIKey: "dd_api_key_value"},
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	out := string(data)
	if strings.Contains(out, "super_secret_password") {
		t.Error("marshaled config leaks postgres password")
	}
	if strings.Contains(out, "dd_api_key_value") {
		t.Error("marshaled config leaks datadog API key")
	}
	if !strings.Contains(out, maskedValue) {
		t.Error("expected masked placeholder in output")
	}
}

func TestConfig_String_MasksSecrets(t *testing.T) {
	cfg := Config{PostgresPassword: "another_secret_value"}
	if strings.Contains(cfg.String(), "another_secret_value") {
		t.Error("String() leaks postgres password")
	}
}

func TestConfig_FullModelName(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		model    string
		want     string
	}{
		{"gemini default", ProviderGemini, "gemini-2.5-flash", "googleai/gemini-2.5-flash"},
		{"ollama", ProviderOllama, "llama3.3", "ollama/llama3.3"},
		{"openai", ProviderOpenAI, "gpt-4o", "openai/gpt-4o"},
		{"already qualified", ProviderGemini, "mock/test-model", "mock/test-model"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Provider: tt.provider, ModelName: tt.model}
			if got := cfg.FullModelName(); got != tt.want {
				t.Errorf("FullModelName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfig_PostgresConnectionString(t *testing.T) {
	cfg := &Config{
		PostgresHost:     "db.example.com",
		PostgresPort:     5433,
		PostgresUser:     "caspar",
		PostgresPassword: "p4ss word",
		PostgresDBName:   "caspar",
		PostgresSSLMode:  "require",
	}

	dsn := cfg.PostgresConnectionString()
	if !strings.Contains(dsn, "host=db.example.com") {
		t.Errorf("DSN missing host: %s", dsn)
	}
	if !strings.Contains(dsn, "password='p4ss word'") {
		t.Errorf("DSN password not quoted: %s", dsn)
	}
	if !strings.Contains(dsn, "sslmode=require") {
		t.Errorf("DSN missing sslmode: %s", dsn)
	}
}

func TestConfig_PostgresURL(t *testing.T) {
	cfg := &Config{
		PostgresHost:     "localhost",
		PostgresPort:     5432,
		PostgresUser:     "caspar",
		PostgresPassword: "p@ss/word",
		PostgresDBName:   "caspar",
		PostgresSSLMode:  "disable",
	}

	u := cfg.PostgresURL()
	if !strings.HasPrefix(u, "postgres://") {
		t.Errorf("URL scheme wrong: %s", u)
	}
	// Special characters must be percent-encoded, not raw.
	if strings.Contains(u, "p@ss/word") {
		t.Errorf("URL password not encoded: %s", u)
	}
	if !strings.HasSuffix(u, "sslmode=disable") {
		t.Errorf("URL missing sslmode query: %s", u)
	}
}

func TestConfig_ParseDatabaseURL(t *testing.T) {
	cfg := &Config{
		PostgresHost: "default-host",
		PostgresPort: 5432,
	}

	t.Setenv("DATABASE_URL", "postgres://svc:pw@db.internal:6432/support?sslmode=require")
	if err := cfg.parseDatabaseURL(); err != nil {
		t.Fatalf("parseDatabaseURL() error: %v", err)
	}

	if cfg.PostgresHost != "db.internal" {
		t.Errorf("host = %q, want db.internal", cfg.PostgresHost)
	}
	if cfg.PostgresPort != 6432 {
		t.Errorf("port = %d, want 6432", cfg.PostgresPort)
	}
	if cfg.PostgresUser != "svc" || cfg.PostgresPassword != "pw" {
		t.Errorf("credentials = %q/%q, want svc/pw", cfg.PostgresUser, cfg.PostgresPassword)
	}
	if cfg.PostgresDBName != "support" {
		t.Errorf("dbname = %q, want support", cfg.PostgresDBName)
	}
	if cfg.PostgresSSLMode != "require" {
		t.Errorf("sslmode = %q, want require", cfg.PostgresSSLMode)
	}
}

func TestConfig_ParseDatabaseURL_BadScheme(t *testing.T) {
	cfg := &Config{}
	t.Setenv("DATABASE_URL", "mysql://u:p@h:3306/db")
	if err := cfg.parseDatabaseURL(); err == nil {
		t.Error("expected error for non-postgres scheme")
	}
}
