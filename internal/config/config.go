package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Matching MatchingConfig
	AI       AIConfig
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Addr               string
	RateLimitPerSecond int
	RateLimitBurst     int
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path           string
	MigrationsPath string
}

// MatchingConfig holds the reconciliation defaults an operator can override
// per request, plus the scoring policy knobs.
type MatchingConfig struct {
	AmountDelta    float64
	DateDelta      int
	DBDaysBefore   int
	DBDaysAfter    int
	FileWindowDays int
	PrimaryBank    string
	BankPenalty    float64
	MaxSuggestions int
}

// AIConfig holds OpenRouter settings. The API key itself is read from the
// environment variable named by APIKeyEnv, never stored in the config file.
type AIConfig struct {
	BaseURL       string
	APIKeyEnv     string
	Model         string
	MaxCandidates int
}

// Load reads configuration from file and env. Env var overrides use prefix PAYSYNC_.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("server.addr", ":8087")
	v.SetDefault("server.rate_limit_per_second", 20)
	v.SetDefault("server.rate_limit_burst", 40)
	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "paysync", "paysync.db"))
	v.SetDefault("database.migrations_path", "internal/database/migrations")
	v.SetDefault("matching.amount_delta", 100.0)
	v.SetDefault("matching.date_delta", 4)
	v.SetDefault("matching.db_days_before", 30)
	v.SetDefault("matching.db_days_after", 30)
	v.SetDefault("matching.file_window_days", 45)
	v.SetDefault("matching.primary_bank", "BA")
	v.SetDefault("matching.bank_penalty", 30.0)
	v.SetDefault("matching.max_suggestions", 50)
	v.SetDefault("ai.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("ai.api_key_env", "OPENROUTER_API_KEY")
	v.SetDefault("ai.model", "openai/gpt-4o-mini")
	v.SetDefault("ai.max_candidates", 100)

	v.SetConfigType("toml")

	cfgPath := os.Getenv("PAYSYNC_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "paysync"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("PAYSYNC")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

// APIKey resolves the OpenRouter key from the configured environment variable.
func (c AIConfig) APIKey() string {
	env := strings.TrimSpace(c.APIKeyEnv)
	if env == "" {
		env = "OPENROUTER_API_KEY"
	}
	return strings.TrimSpace(os.Getenv(env))
}
