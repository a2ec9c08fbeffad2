package core

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/quka-ai/supportchat/app/core/srv"
	"github.com/quka-ai/supportchat/pkg/ai"
	"github.com/quka-ai/supportchat/pkg/config"
	"github.com/quka-ai/supportchat/pkg/errors"
	"github.com/quka-ai/supportchat/pkg/i18n"
)

func MustLoadBaseConfig(path string) CoreConfig {
	if path == "" {
		return LoadBaseConfigFromENV()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	conf := DefaultConfig()
	if err = toml.Unmarshal(raw, &conf); err != nil {
		panic(err)
	}
	return conf
}

// LoadBaseConfigFromENV reads .env from the working directory first, a
// missing file is not an error.
func LoadBaseConfigFromENV() CoreConfig {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", slog.String("error", err.Error()))
	}
	c := DefaultConfig()
	c.FromENV()
	return c
}

type CoreConfig struct {
	Addr      string          `toml:"addr"`
	Log       Log             `toml:"log"`
	Postgres  PGConfig        `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	AI        srv.AIConfig    `toml:"ai"`
	Chat      ChatConfig      `toml:"chat"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Knowledge KnowledgeConfig `toml:"knowledge"`
	Tools     ToolsConfig     `toml:"tools"`
	Channels  ChannelsConfig  `toml:"channels"`
	Security  Security        `toml:"security"`
}

type ChatConfig struct {
	MaxMessageLength       int `toml:"max_message_length"`
	MaxConversationHistory int `toml:"max_conversation_history"`
}

type Limit struct {
	Max    int           `toml:"max"`
	Window time.Duration `toml:"window"`
}

type RateLimitConfig struct {
	Chat         Limit         `toml:"chat"`
	Conversation Limit         `toml:"conversation"`
	Global       Limit         `toml:"global"`
	Cleanup      time.Duration `toml:"cleanup"`
}

type KnowledgeConfig struct {
	LocalTTL  time.Duration `toml:"local_ttl"`
	SharedTTL time.Duration `toml:"shared_ttl"`
}

type ToolsConfig struct {
	Enabled bool `toml:"enabled"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
	WhatsApp WhatsAppConfig `toml:"whatsapp"`
}

type TelegramConfig struct {
	BotToken      string `toml:"bot_token"`
	WebhookSecret string `toml:"webhook_secret"`
}

type WhatsAppConfig struct {
	AccessToken   string `toml:"access_token"`
	PhoneNumberID string `toml:"phone_number_id"`
	WebhookSecret string `toml:"webhook_secret"`
}

type Security struct {
	// AdminToken guards the knowledge admin api, empty disables it.
	AdminToken string `toml:"admin_token"`
}

func DefaultConfig() CoreConfig {
	return CoreConfig{
		Addr: ":3000",
		Log:  Log{Level: "info"},
		Redis: RedisConfig{
			KeyPrefix: "supportchat:",
		},
		AI: srv.AIConfig{
			Provider:    ai.PROVIDER_OPENAI.String(),
			Model:       "gpt-4",
			MaxTokens:   srv.DEFAULT_MAX_TOKENS,
			Temperature: srv.DEFAULT_TEMPERATURE,
			Timeout:     srv.DEFAULT_TIMEOUT,
			OpenRouter: srv.OpenRouterConfig{
				Referer: ai.DEFAULT_OPENROUTER_REFERER,
				Title:   ai.DEFAULT_OPENROUTER_TITLE,
			},
		},
		Chat: ChatConfig{
			MaxMessageLength:       2000,
			MaxConversationHistory: 10,
		},
		RateLimit: RateLimitConfig{
			Chat:         Limit{Max: 20, Window: time.Hour},
			Conversation: Limit{Max: 5, Window: time.Hour},
			Global:       Limit{Max: 100, Window: 15 * time.Minute},
			Cleanup:      5 * time.Minute,
		},
		Knowledge: KnowledgeConfig{
			LocalTTL:  time.Minute,
			SharedTTL: 5 * time.Minute,
		},
	}
}

func (c *CoreConfig) FromENV() {
	c.Addr = ":" + config.GetEnv("PORT", strings.TrimPrefix(c.Addr, ":"))
	c.Log.FromENV()
	c.Postgres.FromENV()
	c.Redis.FromENV()

	c.AI.Provider = config.GetEnv("LLM_PROVIDER", c.AI.Provider)
	c.AI.Token = config.FirstEnv("LLM_API_KEY", "OPENAI_API_KEY", "CLAUDE_API_KEY", "GEMINI_API_KEY")
	c.AI.Model = config.GetEnv("LLM_MODEL", c.AI.Model)
	c.AI.BaseURL = config.GetEnv("LLM_BASE_URL", c.AI.BaseURL)
	c.AI.MaxTokens = config.GetEnvInt("LLM_MAX_TOKENS", c.AI.MaxTokens)
	c.AI.Temperature = float32(config.GetEnvFloat("LLM_TEMPERATURE", float64(c.AI.Temperature)))
	c.AI.Timeout = config.GetEnvDuration("LLM_TIMEOUT", c.AI.Timeout)
	c.AI.RPS = config.GetEnvFloat("LLM_RPS", c.AI.RPS)
	c.AI.OpenRouter.Referer = config.GetEnv("OPENROUTER_REFERER", c.AI.OpenRouter.Referer)
	c.AI.OpenRouter.Title = config.GetEnv("OPENROUTER_TITLE", c.AI.OpenRouter.Title)

	c.Chat.MaxMessageLength = config.GetEnvInt("MAX_MESSAGE_LENGTH", c.Chat.MaxMessageLength)
	c.Chat.MaxConversationHistory = config.GetEnvInt("MAX_CONVERSATION_HISTORY", c.Chat.MaxConversationHistory)

	c.RateLimit.Chat.FromENV("RATE_LIMIT_CHAT")
	c.RateLimit.Conversation.FromENV("RATE_LIMIT_CONVERSATION")
	c.RateLimit.Global.FromENV("RATE_LIMIT_GLOBAL")
	c.RateLimit.Cleanup = config.GetEnvDuration("RATE_LIMIT_CLEANUP", c.RateLimit.Cleanup)

	c.Knowledge.LocalTTL = config.GetEnvDuration("KNOWLEDGE_LOCAL_TTL", c.Knowledge.LocalTTL)
	c.Knowledge.SharedTTL = config.GetEnvDuration("KNOWLEDGE_SHARED_TTL", c.Knowledge.SharedTTL)

	c.Tools.Enabled = config.GetEnvBool("TOOLS_ENABLED", c.Tools.Enabled)

	c.Channels.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	c.Channels.Telegram.WebhookSecret = os.Getenv("TELEGRAM_WEBHOOK_SECRET")
	c.Channels.WhatsApp.AccessToken = os.Getenv("WHATSAPP_ACCESS_TOKEN")
	c.Channels.WhatsApp.PhoneNumberID = os.Getenv("WHATSAPP_PHONE_NUMBER_ID")
	c.Channels.WhatsApp.WebhookSecret = os.Getenv("WHATSAPP_WEBHOOK_SECRET")

	c.Security.AdminToken = os.Getenv("ADMIN_TOKEN")
}

func (l *Limit) FromENV(prefix string) {
	l.Max = config.GetEnvInt(prefix+"_MAX", l.Max)
	l.Window = config.GetEnvDuration(prefix+"_WINDOW", l.Window)
}

// Validate reports every configuration problem at once.
func (c CoreConfig) Validate() error {
	var problems []string
	if c.Postgres.DSN == "" {
		problems = append(problems, "DATABASE_URL is required")
	}
	if _, err := ai.ParseProvider(c.AI.Provider); err != nil {
		problems = append(problems, fmt.Sprintf("LLM_PROVIDER %q is not one of openai, openrouter, anthropic, gemini", c.AI.Provider))
	}
	if c.AI.Token == "" {
		problems = append(problems, "LLM_API_KEY is required")
	}
	if c.Redis.Enabled && c.Redis.URL == "" {
		problems = append(problems, "REDIS_URL is required when REDIS_ENABLED is true")
	}
	if c.Chat.MaxMessageLength <= 0 {
		problems = append(problems, "MAX_MESSAGE_LENGTH must be positive")
	}
	if c.Chat.MaxConversationHistory <= 0 {
		problems = append(problems, "MAX_CONVERSATION_HISTORY must be positive")
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.Configuration("CoreConfig.Validate", i18n.ERROR_CONFIGURATION,
		fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))).
		WithDetails(problems)
}

type PGConfig struct {
	DSN string `toml:"dsn"`
}

func (m *PGConfig) FromENV() {
	m.DSN = os.Getenv("DATABASE_URL")
}

func (c PGConfig) FormatDSN() string {
	return c.DSN
}

type RedisConfig struct {
	Enabled bool `toml:"enabled"`
	// URL is a redis:// connection string.
	URL       string `toml:"url"`
	KeyPrefix string `toml:"key_prefix"`

	PoolSize     int `toml:"pool_size"`
	MinIdleConns int `toml:"min_idle_conns"`
}

func (r *RedisConfig) FromENV() {
	r.Enabled = config.GetEnvBool("REDIS_ENABLED", r.Enabled)
	r.URL = os.Getenv("REDIS_URL")
	r.KeyPrefix = config.GetEnv("REDIS_KEY_PREFIX", r.KeyPrefix)
}

type Log struct {
	Level string `toml:"level"`
	Path  string `toml:"path"`
}

func (l *Log) FromENV() {
	l.Level = config.GetEnv("LOG_LEVEL", l.Level)
	l.Path = os.Getenv("LOG_PATH")
}

func (l *Log) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "info":
		return slog.LevelInfo
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
