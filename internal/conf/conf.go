package conf

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/devricklin/mention-dispatch/internal/biz/domain"
	"github.com/devricklin/mention-dispatch/internal/biz/usecase"
)

// Supported chat platforms
const (
	PlatformSlack  = "slack"
	PlatformFeishu = "feishu"
	PlatformGitHub = "github"
)

// Config represents application configuration
type Config struct {
	// Platform selects the room adapter (slack, feishu, github)
	Platform string

	// Room is the channel id, #channel-name, chat id or owner/repo#number
	Room string

	Slack  SlackConfig
	Feishu FeishuConfig
	GitHub GitHubConfig

	// OpenAI-compatible generation (optional)
	OpenAI OpenAIConfig

	Bot      BotConfig
	Dispatch DispatchConfig
	Journal  JournalConfig
	API      APIConfig
	Webhook  WebhookConfig
	Log      LogConfig

	// Debug mode
	Debug bool
}

// SlackConfig contains Slack configuration
type SlackConfig struct {
	BotToken string
	APIURL   string // Override for testing or proxies
}

// FeishuConfig contains Feishu configuration
type FeishuConfig struct {
	AppID     string
	AppSecret string
}

// GitHubConfig contains GitHub configuration
type GitHubConfig struct {
	Token  string
	APIURL string // GitHub Enterprise base URL, empty for github.com
}

// OpenAIConfig contains generative reply configuration
type OpenAIConfig struct {
	APIKey        string
	BaseURL       string
	Model         string
	MaxReplyChars int
	Timeout       time.Duration // Per completion call, defaults to half of TICK_TIMEOUT
}

// BotConfig contains persona configuration
type BotConfig struct {
	Persona      string
	Handles      []string // Empty means "@" + lower-case persona name
	PersonasPath string
	Seed         int64 // Persona decoration seed, 0 means time based
}

// DispatchConfig contains dispatch loop configuration
type DispatchConfig struct {
	PollInterval    time.Duration
	FreshnessWindow time.Duration
	TickTimeout     time.Duration
	SendTimeout     time.Duration
	FetchLimit      int
	FetchMax        int
	SeenCapacity    int
	SendRatePerSec  float64
}

// JournalConfig contains dispatch journal configuration
type JournalConfig struct {
	DBPath      string // Empty disables the journal
	PersistSeen bool
	Retention   time.Duration
}

// APIConfig contains the local HTTP API configuration
type APIConfig struct {
	Port int // 0 disables the API
}

// WebhookConfig contains the n8n relay configuration
type WebhookConfig struct {
	URL string
}

// LogConfig contains logger configuration
type LogConfig struct {
	Level  string
	Format string
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	journalPath, ok := os.LookupEnv("JOURNAL_DB_PATH")
	if !ok {
		homeDir, _ := os.UserHomeDir()
		journalPath = filepath.Join(homeDir, ".mention-dispatch", "journal.db")
	}

	persona := os.Getenv("BOT_PERSONA")
	if persona == "" {
		persona = "Echo"
	}

	platform := strings.ToLower(os.Getenv("CHAT_PLATFORM"))
	if platform == "" {
		platform = PlatformSlack
	}

	debug := os.Getenv("DEBUG") == "true"
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
		if debug {
			logLevel = "debug"
		}
	}

	tickTimeout := envDuration("TICK_TIMEOUT", 15*time.Second)

	return &Config{
		Platform: platform,
		Room:     os.Getenv("CHAT_ROOM"),
		Slack: SlackConfig{
			BotToken: os.Getenv("SLACK_BOT_TOKEN"),
			APIURL:   os.Getenv("SLACK_API_URL"),
		},
		Feishu: FeishuConfig{
			AppID:     os.Getenv("FEISHU_APP_ID"),
			AppSecret: os.Getenv("FEISHU_APP_SECRET"),
		},
		GitHub: GitHubConfig{
			Token:  os.Getenv("GITHUB_TOKEN"),
			APIURL: os.Getenv("GITHUB_API_URL"),
		},
		OpenAI: OpenAIConfig{
			APIKey:        os.Getenv("OPENAI_API_KEY"),
			BaseURL:       os.Getenv("OPENAI_BASE_URL"),
			Model:         os.Getenv("OPENAI_MODEL"),
			MaxReplyChars: envInt("MAX_REPLY_CHARS", usecase.DefaultMaxReplyChars),
			Timeout:       envDuration("COMPLETION_TIMEOUT", tickTimeout/2),
		},
		Bot: BotConfig{
			Persona:      persona,
			Handles:      splitList(os.Getenv("BOT_HANDLES")),
			PersonasPath: os.Getenv("PERSONAS_CONFIG_PATH"),
			Seed:         int64(envInt("PERSONA_SEED", 0)),
		},
		Dispatch: DispatchConfig{
			PollInterval:    envDuration("POLL_INTERVAL", 10*time.Second),
			FreshnessWindow: envDuration("FRESHNESS_WINDOW", usecase.DefaultFreshnessWindow),
			TickTimeout:     tickTimeout,
			SendTimeout:     envDuration("SEND_TIMEOUT", usecase.DefaultSendTimeout),
			FetchLimit:      envInt("FETCH_LIMIT", usecase.DefaultFetchLimit),
			FetchMax:        envInt("FETCH_MAX", usecase.DefaultFetchMax),
			SeenCapacity:    envInt("SEEN_CAPACITY", domain.DefaultSeenCapacity),
			SendRatePerSec:  envFloat("SEND_RATE_PER_SEC", 1),
		},
		Journal: JournalConfig{
			DBPath:      journalPath,
			PersistSeen: os.Getenv("PERSIST_SEEN") == "true",
			Retention:   envDuration("JOURNAL_RETENTION", 7*24*time.Hour),
		},
		API: APIConfig{
			Port: envInt("API_PORT", 9876),
		},
		Webhook: WebhookConfig{
			URL: os.Getenv("N8N_WEBHOOK_URL"),
		},
		Log: LogConfig{
			Level:  logLevel,
			Format: os.Getenv("LOG_FORMAT"),
		},
		Debug: debug,
	}
}

// TriggerHandles returns trigger handles, defaulting to the persona handle
func (c *BotConfig) TriggerHandles() []string {
	if len(c.Handles) > 0 {
		return c.Handles
	}
	return []string{domain.Persona{Name: c.Persona}.Handle()}
}

// ToDispatchConfig converts to the usecase dispatch configuration
func (c *Config) ToDispatchConfig() usecase.DispatchConfig {
	return usecase.DispatchConfig{
		FetchLimit:  c.Dispatch.FetchLimit,
		FetchMax:    c.Dispatch.FetchMax,
		Handles:     c.Bot.TriggerHandles(),
		PersistSeen: c.Journal.PersistSeen,
		SendTimeout: c.Dispatch.SendTimeout,
	}
}

// GenerativeEnabled reports whether replies come from the completion service
func (c *Config) GenerativeEnabled() bool {
	return c.OpenAI.APIKey != ""
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Platform {
	case PlatformSlack:
		if c.Slack.BotToken == "" {
			return &ConfigError{Field: "SLACK_BOT_TOKEN", Message: "required"}
		}
	case PlatformFeishu:
		if c.Feishu.AppID == "" || c.Feishu.AppSecret == "" {
			return &ConfigError{Field: "FEISHU_APP_ID/FEISHU_APP_SECRET", Message: "required"}
		}
	case PlatformGitHub:
		if c.GitHub.Token == "" {
			return &ConfigError{Field: "GITHUB_TOKEN", Message: "required"}
		}
	default:
		return &ConfigError{Field: "CHAT_PLATFORM", Message: "unsupported platform " + strconv.Quote(c.Platform)}
	}

	if c.Room == "" {
		return &ConfigError{Field: "CHAT_ROOM", Message: "required"}
	}
	if c.Dispatch.PollInterval <= 0 {
		return &ConfigError{Field: "POLL_INTERVAL", Message: "must be positive"}
	}
	if c.Dispatch.TickTimeout <= 0 {
		return &ConfigError{Field: "TICK_TIMEOUT", Message: "must be positive"}
	}
	if c.GenerativeEnabled() && c.OpenAI.Timeout >= c.Dispatch.TickTimeout {
		return &ConfigError{Field: "COMPLETION_TIMEOUT", Message: "must be shorter than TICK_TIMEOUT"}
	}
	if c.Dispatch.FreshnessWindow <= 0 {
		return &ConfigError{Field: "FRESHNESS_WINDOW", Message: "must be positive"}
	}
	if c.Dispatch.FetchLimit <= 0 {
		return &ConfigError{Field: "FETCH_LIMIT", Message: "must be positive"}
	}
	if c.Dispatch.SeenCapacity <= 0 {
		return &ConfigError{Field: "SEEN_CAPACITY", Message: "must be positive"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}

func envInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}

// envDuration accepts Go durations ("30s") or plain seconds ("30")
func envDuration(key string, def time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
