// Package config loads service configuration in three layers: struct
// defaults, an optional YAML file, then TEAMCHAT_-prefixed environment
// variables (highest priority).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "TEAMCHAT_CONFIG"

var defaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/teamchat/config.yaml",
}

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Auth     AuthConfig     `koanf:"auth"`
	Chat     ChatConfig     `koanf:"chat"`
	Preview  PreviewConfig  `koanf:"preview"`
	Push     PushConfig     `koanf:"push"`
	Blob     BlobConfig     `koanf:"blob"`
	Logging  LoggingConfig  `koanf:"logging"`
}

type ServerConfig struct {
	Addr string `koanf:"addr"`
	// RequestsPerMinute limits each client IP on the API group.
	RequestsPerMinute int `koanf:"requests_per_minute"`
}

type DatabaseConfig struct {
	DSN string `koanf:"dsn"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type AuthConfig struct {
	JWTSecret string        `koanf:"jwt_secret"`
	TokenTTL  time.Duration `koanf:"token_ttl"`
}

type ChatConfig struct {
	MaxBodyLen       int           `koanf:"max_body_len"`
	MaxImages        int           `koanf:"max_images"`
	MaxURLsPerBody   int           `koanf:"max_urls_per_body"`
	SendInterval     time.Duration `koanf:"send_interval"`
	SelfDeleteWindow time.Duration `koanf:"self_delete_window"`
	PageSize         int           `koanf:"page_size"`
	TeamChatName     string        `koanf:"team_chat_name"`
}

type PreviewConfig struct {
	FetchTimeout  time.Duration `koanf:"fetch_timeout"`
	MaxBodyBytes  int64         `koanf:"max_body_bytes"`
	TTL           time.Duration `koanf:"ttl"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
	UserAgent     string        `koanf:"user_agent"`
}

type PushConfig struct {
	VAPIDPublicKey    string        `koanf:"vapid_public_key"`
	VAPIDPrivateKey   string        `koanf:"vapid_private_key"`
	Subscriber        string        `koanf:"subscriber"`
	DebounceDelay     time.Duration `koanf:"debounce_delay"`
	PresenceThreshold time.Duration `koanf:"presence_threshold"`
	SendTimeout       time.Duration `koanf:"send_timeout"`
	MaxSubsPerUser    int           `koanf:"max_subs_per_user"`
}

type BlobConfig struct {
	// BaseURL of the blob storage HTTP API.
	BaseURL string `koanf:"base_url"`
	Key     string `koanf:"key"`
	Secret  string `koanf:"secret"`
	// SignTTL bounds signed upload and retrieval URLs.
	SignTTL time.Duration `koanf:"sign_ttl"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			RequestsPerMinute: 300,
		},
		Database: DatabaseConfig{
			DSN: "",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Chat: ChatConfig{
			MaxBodyLen:       2000,
			MaxImages:        4,
			MaxURLsPerBody:   3,
			SendInterval:     time.Second,
			SelfDeleteWindow: 15 * time.Minute,
			PageSize:         50,
			TeamChatName:     "Team Chat",
		},
		Preview: PreviewConfig{
			FetchTimeout:  5 * time.Second,
			MaxBodyBytes:  512 << 10,
			TTL:           7 * 24 * time.Hour,
			SweepInterval: time.Hour,
			UserAgent:     "Mozilla/5.0 (compatible; TeamChatBot/1.0; +https://teamchat.app)",
		},
		Push: PushConfig{
			DebounceDelay:     10 * time.Second,
			PresenceThreshold: 30 * time.Second,
			SendTimeout:       10 * time.Second,
			MaxSubsPerUser:    5,
		},
		Blob: BlobConfig{
			SignTTL: 10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the effective configuration.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// TEAMCHAT_CHAT_SEND_INTERVAL -> chat.send_interval
	envProvider := env.Provider("TEAMCHAT_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "TEAMCHAT_")
		s = strings.ToLower(s)
		return strings.Replace(s, "_", ".", 1)
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		return path
	}
	for _, path := range defaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Validate checks settings that have no workable zero value.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required (TEAMCHAT_DATABASE_DSN)")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required (TEAMCHAT_AUTH_JWT_SECRET)")
	}
	if c.Chat.MaxBodyLen <= 0 {
		return fmt.Errorf("chat.max_body_len must be positive")
	}
	if c.Preview.FetchTimeout <= 0 {
		return fmt.Errorf("preview.fetch_timeout must be positive")
	}
	return nil
}
