package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type OllamaConfig struct {
	Host           string  `mapstructure:"host"`
	Model          string  `mapstructure:"model"`
	ContextLength  int     `mapstructure:"context_length"`
	Temperature    float64 `mapstructure:"temperature"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

type HomeAssistantConfig struct {
	URL            string   `mapstructure:"url"`
	Token          string   `mapstructure:"token"`
	ExposedDomains []string `mapstructure:"exposed_domains"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
}

type HistoryConfig struct {
	Backend        string `mapstructure:"backend"` // "memory" or "postgres"
	Limit          int    `mapstructure:"limit"`
	PostgresDSN    string `mapstructure:"postgres_dsn"`
	RetentionHours int    `mapstructure:"retention_hours"`
}

type Config struct {
	ListenAddr       string              `mapstructure:"listen_addr"`
	LogLevel         string              `mapstructure:"log_level"`
	JWTPublicKeyPath string              `mapstructure:"jwt_public_key_path"`
	Ollama           OllamaConfig        `mapstructure:"ollama"`
	HomeAssistant    HomeAssistantConfig `mapstructure:"home_assistant"`
	History          HistoryConfig       `mapstructure:"history"`
}

// Load reads the YAML config at configPath (optional) with environment
// variable overrides (e.g. OLLAMA_HOST, HOME_ASSISTANT_TOKEN).
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8096")
	v.SetDefault("log_level", "info")
	v.SetDefault("jwt_public_key_path", "")
	v.SetDefault("ollama.host", "http://localhost:11434")
	v.SetDefault("ollama.model", "llama3.1:8b")
	v.SetDefault("ollama.context_length", 4096)
	v.SetDefault("ollama.temperature", 0.7)
	v.SetDefault("ollama.timeout_seconds", 120)
	v.SetDefault("home_assistant.url", "http://localhost:8123")
	v.SetDefault("home_assistant.token", "")
	v.SetDefault("home_assistant.exposed_domains", []string{
		"light", "climate", "switch", "fan", "cover", "sensor", "binary_sensor", "media_player", "lock",
	})
	v.SetDefault("home_assistant.timeout_seconds", 30)
	v.SetDefault("history.backend", "memory")
	v.SetDefault("history.limit", 10)
	v.SetDefault("history.postgres_dsn", "")
	v.SetDefault("history.retention_hours", 0)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Secrets are commonly injected as plain env vars.
	if token := os.Getenv("HOME_ASSISTANT_TOKEN"); token != "" {
		cfg.HomeAssistant.Token = token
	}
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		cfg.History.PostgresDSN = dsn
	}

	return &cfg, nil
}

// OllamaTimeout returns the chat completion timeout as a duration.
func (c *Config) OllamaTimeout() time.Duration {
	return time.Duration(c.Ollama.TimeoutSeconds) * time.Second
}

// HomeAssistantTimeout returns the Home Assistant request timeout.
func (c *Config) HomeAssistantTimeout() time.Duration {
	return time.Duration(c.HomeAssistant.TimeoutSeconds) * time.Second
}

// HistoryRetention returns the durable-history TTL; zero disables pruning.
func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.History.RetentionHours) * time.Hour
}
