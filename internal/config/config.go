// Package config handles chatbridge configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/chatbridge/config.yaml, /etc/chatbridge/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "chatbridge", "config.yaml"))
	}

	paths = append(paths, "/etc/chatbridge/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all chatbridge configuration.
type Config struct {
	OpenAI     OpenAIConfig   `yaml:"openai"`
	WeChat     WeChatConfig   `yaml:"wechat"`
	History    HistoryConfig  `yaml:"history"`
	Features   FeaturesConfig `yaml:"features"`
	Search     SearchConfig   `yaml:"search"`
	News       NewsConfig     `yaml:"news"`
	State      StateConfig    `yaml:"state"`
	DataDir    string         `yaml:"data_dir"`
	PromptsDir string         `yaml:"prompts_dir"`
	LogLevel   string         `yaml:"log_level"`
}

// OpenAIConfig defines the OpenAI-compatible chat completions endpoint.
type OpenAIConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// WeChatConfig defines the connection to the WeChat sidecar bridge.
type WeChatConfig struct {
	// URL is the websocket endpoint of the sidecar (e.g. ws://localhost:8188/ws).
	URL string `yaml:"url"`
	// BotName is the bot's WeChat display name, used to recognize and
	// strip @-mentions in group chats.
	BotName string `yaml:"bot_name"`
	// RetryCount is how many times to retry connection establishment.
	RetryCount int `yaml:"retry_count"`
	// RetryDelayMS is the delay between connection attempts, in milliseconds.
	RetryDelayMS int `yaml:"retry_delay_ms"`
}

// RetryDelay returns the connection retry delay, defaulting to 5 seconds.
func (c WeChatConfig) RetryDelay() time.Duration {
	if c.RetryDelayMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.RetryDelayMS) * time.Millisecond
}

// Retries returns the connection retry count, defaulting to 3.
func (c WeChatConfig) Retries() int {
	if c.RetryCount <= 0 {
		return 3
	}
	return c.RetryCount
}

// HistoryConfig defines conversation history bounds and expiry. Timeouts
// are expressed in milliseconds to match the persisted state format; use
// the accessor methods for durations.
type HistoryConfig struct {
	MaxLength           int   `yaml:"max_length"`
	TimeoutMS           int64 `yaml:"timeout_ms"`
	ArchiveExpirationMS int64 `yaml:"archive_expiration_ms"`
}

// Timeout returns the inactivity window after which a conversation's
// active history moves to its archive. Default: 30 minutes.
func (c HistoryConfig) Timeout() time.Duration {
	if c.TimeoutMS <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// ArchiveExpiration returns how long archived messages are retained.
// Default: 7 days.
func (c HistoryConfig) ArchiveExpiration() time.Duration {
	if c.ArchiveExpirationMS <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(c.ArchiveExpirationMS) * time.Millisecond
}

// MaxMessages returns the active history bound, defaulting to 10.
func (c HistoryConfig) MaxMessages() int {
	if c.MaxLength <= 0 {
		return 10
	}
	return c.MaxLength
}

// FeaturesConfig gates individual tools on and off.
type FeaturesConfig struct {
	SearchEnabled      bool `yaml:"search_enabled"`
	URLReaderEnabled   bool `yaml:"url_reader_enabled"`
	ChatHistoryEnabled bool `yaml:"chat_history_enabled"`
	NewsEnabled        bool `yaml:"news_enabled"`
}

// SearchConfig defines the SearXNG instance used by search_internet.
type SearchConfig struct {
	URL string `yaml:"url"`
}

// NewsConfig defines the endpoint backing get_today_news.
type NewsConfig struct {
	URL string `yaml:"url"`
}

// DefaultNewsURL is used when news.url is not configured.
const DefaultNewsURL = "https://api.lbbb.cc/api/60miao"

// Endpoint returns the configured news URL, or the default.
func (c NewsConfig) Endpoint() string {
	if c.URL == "" {
		return DefaultNewsURL
	}
	return c.URL
}

// StateConfig selects the persistence backend.
type StateConfig struct {
	// Backend is "file" (JSON blobs under data_dir) or "sqlite".
	Backend string `yaml:"backend"`
	// Path overrides the SQLite database location. Defaults to
	// <data_dir>/state.db.
	Path string `yaml:"path"`
}

// Load reads configuration from a YAML file. Environment variables in
// the file (e.g. ${OPENAI_API_KEY}) are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		DataDir:    "data",
		PromptsDir: "system_prompts",
		History: HistoryConfig{
			MaxLength: 10,
		},
		State: StateConfig{
			Backend: "file",
		},
	}
}

// Validate checks for configuration the engine cannot run without.
// This is the only place a missing setting is fatal.
func (c *Config) Validate() error {
	if c.OpenAI.BaseURL == "" {
		return fmt.Errorf("openai.base_url is required")
	}
	if c.OpenAI.Model == "" {
		return fmt.Errorf("openai.model is required")
	}
	return nil
}
