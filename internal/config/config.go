package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone  = "UTC"
	configPathEnv    = "NEWSLETTER_CONFIG"
	databaseDriver   = "DATABASE_DRIVER"
	databaseDSNEnv   = "DATABASE_DSN"
	newsAPIKeyEnv    = "NEWSAPI_API_KEY"
	openAIAPIKeyEnv  = "OPENAI_API_KEY"
	openAIModelEnv   = "OPENAI_MODEL"
	openAIBaseURLEnv = "OPENAI_BASE_URL"
	mailAPIKeyEnv    = "MAIL_API_KEY"
	mailFromEnv      = "MAIL_FROM"
	telegramTokenEnv = "TELEGRAM_BOT_TOKEN"
	telegramChatEnv  = "TELEGRAM_CHAT_ID"
	serverAddrEnv    = "SERVER_ADDR"
	logLevelEnv      = "LOG_LEVEL"
	maxAttemptsEnv   = "RETRY_MAX_ATTEMPTS"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Database      DatabaseConfig     `yaml:"database"`
	Retry         RetryConfig        `yaml:"retry"`
	Source        SourceConfig       `yaml:"source"`
	Sites         []SiteConfig       `yaml:"sites"`
	OpenAI        OpenAIConfig       `yaml:"openai"`
	Mail          MailConfig         `yaml:"mail"`
	Notifications NotificationConfig `yaml:"notifications"`
	Server        ServerConfig       `yaml:"server"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
}

// LoggingConfig selects slog level and handler format (text|json).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig describes where checkpoints and runs are stored.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// RetryConfig bounds retries of transient step failures.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"maxAttempts"`
	InitialBackoff time.Duration `yaml:"initialBackoff"`
	MaxBackoff     time.Duration `yaml:"maxBackoff"`
	Multiplier     float64       `yaml:"multiplier"`
	Jitter         float64       `yaml:"jitter"`
	StepTimeout    time.Duration `yaml:"stepTimeout"`
}

// SourceConfig picks the article provider.
type SourceConfig struct {
	Provider string        `yaml:"provider"`
	Lookback time.Duration `yaml:"lookback"`
	NewsAPI  NewsAPIConfig `yaml:"newsapi"`
}

// NewsAPIConfig describes the NewsAPI-compatible search endpoint.
type NewsAPIConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"apiKey"`
	PageSize int    `yaml:"pageSize"`
	Language string `yaml:"language"`
}

// SiteConfig describes a single site with its scanner strategy.
type SiteConfig struct {
	Name       string            `yaml:"name"`
	Scanner    string            `yaml:"scanner"`
	Categories []CategoryConfig  `yaml:"categories"`
	Options    map[string]string `yaml:"options"`
}

// CategoryConfig maps a newsletter category to a concrete listing URL.
type CategoryConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// OpenAIConfig defines how to contact the inference provider.
type OpenAIConfig struct {
	BaseURL      string `yaml:"baseUrl"`
	Model        string `yaml:"model"`
	APIKey       string `yaml:"apiKey"`
	SystemPrompt string `yaml:"systemPrompt"`
}

// MailConfig wires the JSON mail API used for delivery.
type MailConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"apiKey"`
	From     string `yaml:"from"`
}

// NotificationConfig encapsulates operator alert channels.
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// ServerConfig configures the trigger HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// SchedulerConfig defines recurring newsletter triggers.
type SchedulerConfig struct {
	Interval      time.Duration        `yaml:"interval"`
	Timezone      string               `yaml:"timezone"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
	location      *time.Location       `yaml:"-"`
}

// SubscriptionConfig is one recipient with their categories.
type SubscriptionConfig struct {
	Name       string   `yaml:"name"`
	Email      string   `yaml:"email"`
	Categories []string `yaml:"categories"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// Load reads .env, YAML configuration (if present) and applies environment overrides.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: cannot load .env: %v", err)
	}

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		loaded, err := LoadFile(path, cfg)
		if err != nil {
			log.Printf("config: %v (falling back to defaults)", err)
		} else {
			cfg = loaded
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()
	return cfg
}

// LoadFile merges the YAML file at path over base.
func LoadFile(path string, base Config) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, err
	}
	return Parse(raw, base)
}

// Parse merges raw YAML over base.
func Parse(raw []byte, base Config) (Config, error) {
	var fileCfg Config
	if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
		return base, err
	}
	cfg := mergeConfig(base, fileCfg)
	cfg.bindTimezone()
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() Config {
	return defaultConfig()
}

func (c *Config) applyEnvOverrides() {
	setString(&c.Database.Driver, databaseDriver)
	setString(&c.Database.DSN, databaseDSNEnv)
	setString(&c.Source.NewsAPI.APIKey, newsAPIKeyEnv)
	setString(&c.OpenAI.APIKey, openAIAPIKeyEnv)
	setString(&c.OpenAI.Model, openAIModelEnv)
	setString(&c.OpenAI.BaseURL, openAIBaseURLEnv)
	setString(&c.Mail.APIKey, mailAPIKeyEnv)
	setString(&c.Mail.From, mailFromEnv)
	setString(&c.Notifications.Telegram.BotToken, telegramTokenEnv)
	setString(&c.Notifications.Telegram.ChatID, telegramChatEnv)
	setString(&c.Server.Addr, serverAddrEnv)
	setString(&c.Logging.Level, logLevelEnv)

	if v := os.Getenv(maxAttemptsEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Retry.MaxAttempts = n
		} else {
			log.Printf("config: ignoring %s=%q", maxAttemptsEnv, v)
		}
	}
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.Database.Driver != "" {
		base.Database.Driver = override.Database.Driver
	}
	if override.Database.DSN != "" {
		base.Database.DSN = override.Database.DSN
	}

	if override.Retry.MaxAttempts > 0 {
		base.Retry.MaxAttempts = override.Retry.MaxAttempts
	}
	if override.Retry.InitialBackoff > 0 {
		base.Retry.InitialBackoff = override.Retry.InitialBackoff
	}
	if override.Retry.MaxBackoff > 0 {
		base.Retry.MaxBackoff = override.Retry.MaxBackoff
	}
	if override.Retry.Multiplier > 0 {
		base.Retry.Multiplier = override.Retry.Multiplier
	}
	if override.Retry.Jitter > 0 {
		base.Retry.Jitter = override.Retry.Jitter
	}
	if override.Retry.StepTimeout > 0 {
		base.Retry.StepTimeout = override.Retry.StepTimeout
	}

	if override.Source.Provider != "" {
		base.Source.Provider = override.Source.Provider
	}
	if override.Source.Lookback > 0 {
		base.Source.Lookback = override.Source.Lookback
	}
	if override.Source.NewsAPI.Endpoint != "" {
		base.Source.NewsAPI.Endpoint = override.Source.NewsAPI.Endpoint
	}
	if override.Source.NewsAPI.APIKey != "" {
		base.Source.NewsAPI.APIKey = override.Source.NewsAPI.APIKey
	}
	if override.Source.NewsAPI.PageSize > 0 {
		base.Source.NewsAPI.PageSize = override.Source.NewsAPI.PageSize
	}
	if override.Source.NewsAPI.Language != "" {
		base.Source.NewsAPI.Language = override.Source.NewsAPI.Language
	}

	if len(override.Sites) > 0 {
		base.Sites = override.Sites
	}

	if override.OpenAI.BaseURL != "" {
		base.OpenAI.BaseURL = override.OpenAI.BaseURL
	}
	if override.OpenAI.Model != "" {
		base.OpenAI.Model = override.OpenAI.Model
	}
	if override.OpenAI.APIKey != "" {
		base.OpenAI.APIKey = override.OpenAI.APIKey
	}
	if override.OpenAI.SystemPrompt != "" {
		base.OpenAI.SystemPrompt = override.OpenAI.SystemPrompt
	}

	if override.Mail.Endpoint != "" {
		base.Mail.Endpoint = override.Mail.Endpoint
	}
	if override.Mail.APIKey != "" {
		base.Mail.APIKey = override.Mail.APIKey
	}
	if override.Mail.From != "" {
		base.Mail.From = override.Mail.From
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	if override.Server.Addr != "" {
		base.Server.Addr = override.Server.Addr
	}

	if override.Scheduler.Interval > 0 {
		base.Scheduler.Interval = override.Scheduler.Interval
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}
	if len(override.Scheduler.Subscriptions) > 0 {
		base.Scheduler.Subscriptions = override.Scheduler.Subscriptions
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Database: DatabaseConfig{Driver: "sqlite", DSN: "newsletter.db"},
		Retry: RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
			Multiplier:     2,
			Jitter:         0.2,
			StepTimeout:    2 * time.Minute,
		},
		Source: SourceConfig{
			Provider: "newsapi",
			Lookback: 7 * 24 * time.Hour,
			NewsAPI: NewsAPIConfig{
				Endpoint: "https://newsapi.org/v2",
				PageSize: 5,
				Language: "en",
			},
		},
		Sites: []SiteConfig{
			{
				Name:    "arxiv-default",
				Scanner: "arxiv",
				Categories: []CategoryConfig{
					{Name: "ai", URL: "https://export.arxiv.org/list/cs.AI/pastweek"},
				},
			},
		},
		OpenAI: OpenAIConfig{
			Model: "gpt-4o",
		},
		Mail: MailConfig{
			Endpoint: "https://api.resend.com/emails",
			From:     "Newsletter <newsletter@example.com>",
		},
		Server:    ServerConfig{Addr: ":8080"},
		Scheduler: SchedulerConfig{Interval: 7 * 24 * time.Hour, Timezone: defaultTimezone, location: tz},
	}
}
