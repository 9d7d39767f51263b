// Package config loads MoveMate configuration from a JSON file or from
// MOVEMATE_* environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the top-level MoveMate configuration.
type Config struct {
	Server       ServerConfig              `json:"server"`
	Providers    map[string]ProviderConfig `json:"providers"`
	Speech       SpeechConfig              `json:"speech"`
	Conversation ConversationConfig        `json:"conversation"`
	Reconcile    ReconcileConfig           `json:"reconcile"`
	Store        StoreConfig               `json:"store"`
	Connectors   ConnectorConfig           `json:"connectors"`
	Notify       NotifyConfig              `json:"notify"`
}

// ServerConfig holds REST API server settings.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Key  string `json:"api_key"` // empty disables auth
}

// ProviderConfig holds LLM provider settings. The provider named
// "default" drives classification.
type ProviderConfig struct {
	Type    string `json:"type,omitempty"` // "openai" (default) or "anthropic"
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model"`
}

// SpeechConfig holds transcription and synthesis settings. An empty
// APIKey disables the voice path; text turns still work.
type SpeechConfig struct {
	APIKey          string `json:"api_key"`
	BaseURL         string `json:"base_url,omitempty"`
	TranscribeModel string `json:"transcribe_model,omitempty"` // default whisper-1
	SpeechModel     string `json:"speech_model,omitempty"`     // default tts-1
}

// ConversationConfig holds conversation-state settings.
type ConversationConfig struct {
	// IdleTimeoutMinutes before an untouched conversation is discarded.
	IdleTimeoutMinutes int `json:"idle_timeout_minutes"`
}

// ReconcileConfig holds queue reconciler settings.
type ReconcileConfig struct {
	// Interval is a cron expression or @every duration.
	Interval string `json:"interval"`
}

// StoreConfig holds ticket storage settings.
type StoreConfig struct {
	Path string `json:"path"` // SQLite database file
}

// ConnectorConfig holds settings for external ingest channels.
type ConnectorConfig struct {
	Telegram    *TelegramConfig `json:"telegram,omitempty"`
	CallWebhook *WebhookConfig  `json:"call_webhook,omitempty"`
}

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Token     string  `json:"token"`
	AllowFrom []int64 `json:"allow_from,omitempty"`
}

// WebhookConfig holds call-platform webhook auth settings.
type WebhookConfig struct {
	Secret      string `json:"secret,omitempty"`
	BearerToken string `json:"bearer_token,omitempty"`
}

// NotifyConfig holds staff notification settings.
type NotifyConfig struct {
	Slack *SlackConfig `json:"slack,omitempty"`
}

// SlackConfig holds Slack notifier settings.
type SlackConfig struct {
	BotToken string `json:"bot_token"`
	// Channels maps team names ("maintenance", "ra") to channel IDs.
	Channels       map[string]string `json:"channels"`
	DefaultChannel string            `json:"default_channel,omitempty"`
}

// Load reads configuration from a JSON file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv builds a config from environment variables with the
// MOVEMATE_ prefix.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getenv("MOVEMATE_API_HOST", "0.0.0.0"),
			Port: getenvInt("MOVEMATE_API_PORT", 8080),
			Key:  os.Getenv("MOVEMATE_API_KEY"),
		},
		Providers: make(map[string]ProviderConfig),
		Store: StoreConfig{
			Path: getenv("MOVEMATE_DB_PATH", "movemate.db"),
		},
	}

	if apiKey := os.Getenv("MOVEMATE_ANTHROPIC_API_KEY"); apiKey != "" {
		cfg.Providers["default"] = ProviderConfig{
			Type:   "anthropic",
			APIKey: apiKey,
			Model:  getenv("MOVEMATE_MODEL", "claude-sonnet-4-20250514"),
		}
	} else if apiKey := os.Getenv("MOVEMATE_OPENAI_API_KEY"); apiKey != "" {
		cfg.Providers["default"] = ProviderConfig{
			Type:    "openai",
			APIKey:  apiKey,
			BaseURL: os.Getenv("MOVEMATE_OPENAI_BASE_URL"),
			Model:   getenv("MOVEMATE_MODEL", "gpt-4-turbo"),
		}
	}

	// Speech defaults to the OpenAI key when no dedicated one is set.
	cfg.Speech.APIKey = getenv("MOVEMATE_SPEECH_API_KEY", os.Getenv("MOVEMATE_OPENAI_API_KEY"))
	cfg.Speech.BaseURL = os.Getenv("MOVEMATE_SPEECH_BASE_URL")

	if token := os.Getenv("MOVEMATE_TELEGRAM_TOKEN"); token != "" {
		cfg.Connectors.Telegram = &TelegramConfig{Token: token}
		if ids := os.Getenv("MOVEMATE_TELEGRAM_ALLOW_FROM"); ids != "" {
			parsed, err := parseInt64List(ids)
			if err != nil {
				return nil, fmt.Errorf("config: MOVEMATE_TELEGRAM_ALLOW_FROM: %w", err)
			}
			cfg.Connectors.Telegram.AllowFrom = parsed
		}
	}

	if secret, token := os.Getenv("MOVEMATE_WEBHOOK_SECRET"), os.Getenv("MOVEMATE_WEBHOOK_TOKEN"); secret != "" || token != "" {
		cfg.Connectors.CallWebhook = &WebhookConfig{Secret: secret, BearerToken: token}
	}

	if token := os.Getenv("MOVEMATE_SLACK_BOT_TOKEN"); token != "" {
		cfg.Notify.Slack = &SlackConfig{
			BotToken: token,
			Channels: map[string]string{},
		}
		if ch := os.Getenv("MOVEMATE_SLACK_CHANNEL_MAINTENANCE"); ch != "" {
			cfg.Notify.Slack.Channels["maintenance"] = ch
		}
		if ch := os.Getenv("MOVEMATE_SLACK_CHANNEL_RA"); ch != "" {
			cfg.Notify.Slack.Channels["ra"] = ch
		}
		cfg.Notify.Slack.DefaultChannel = os.Getenv("MOVEMATE_SLACK_CHANNEL_DEFAULT")
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Conversation.IdleTimeoutMinutes == 0 {
		c.Conversation.IdleTimeoutMinutes = 30
	}
	if c.Reconcile.Interval == "" {
		c.Reconcile.Interval = "@every 5s"
	}
	if c.Store.Path == "" {
		c.Store.Path = "movemate.db"
	}
}

// Validate checks for required fields.
func (c *Config) Validate() error {
	var errs []string

	if len(c.Providers) == 0 {
		errs = append(errs, "at least one provider is required")
	}
	if _, ok := c.Providers["default"]; len(c.Providers) > 0 && !ok {
		errs = append(errs, `a provider named "default" is required`)
	}
	for name, p := range c.Providers {
		if p.APIKey == "" {
			errs = append(errs, fmt.Sprintf("providers.%s.api_key is required", name))
		}
		if p.Model == "" {
			errs = append(errs, fmt.Sprintf("providers.%s.model is required", name))
		}
		switch p.Type {
		case "", "openai", "anthropic":
		default:
			errs = append(errs, fmt.Sprintf("providers.%s.type %q is not supported", name, p.Type))
		}
	}

	if c.Conversation.IdleTimeoutMinutes < 0 {
		errs = append(errs, "conversation.idle_timeout_minutes must be positive")
	}
	if c.Store.Path == "" {
		errs = append(errs, "store.path is required")
	}

	if c.Connectors.Telegram != nil && c.Connectors.Telegram.Token == "" {
		errs = append(errs, "connectors.telegram.token is required")
	}
	if c.Notify.Slack != nil {
		if c.Notify.Slack.BotToken == "" {
			errs = append(errs, "notify.slack.bot_token is required")
		}
		if len(c.Notify.Slack.Channels) == 0 && c.Notify.Slack.DefaultChannel == "" {
			errs = append(errs, "notify.slack needs channels or default_channel")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func parseInt64List(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	result := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", p)
		}
		result = append(result, n)
	}
	return result, nil
}
