// Package config defines the configuration contract and handles loading and validating environment configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Canonical environment variable keys.
	KeyTelegramToken        = "TELEGRAM_BOT_TOKEN"
	KeyAdminID              = "ADMIN_ID"
	KeyMongoURI             = "MONGODB_URI"
	KeyMongoDB              = "DATABASE_NAME"
	KeyRequiredChannels     = "REQUIRED_CHANNELS"
	KeyChannelLinks         = "CHANNEL_LINKS"
	KeyHTTPPort             = "PORT"
	KeyWebhookURL           = "WEBHOOK_URL"
	KeyWebhookSecret        = "WEBHOOK_SECRET"
	KeyAppEnv               = "APP_ENV"
	KeyLogLevel             = "LOG_LEVEL"
	KeyAirtimeMin           = "AIRTIME_MIN"
	KeyAirtimeMax           = "AIRTIME_MAX"
	KeyAirtimeStep          = "AIRTIME_STEP"
	KeyProgressFrameDelay   = "PROGRESS_FRAME_DELAY"
	KeyBroadcastConcurrency = "BROADCAST_CONCURRENCY"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Defaults for optional settings.
	DefaultAppEnv               = EnvProduction
	DefaultLogLevel             = "info"
	DefaultHTTPPort             = 10000
	DefaultMongoDB              = "airtime_bot"
	DefaultRequiredChannels     = "megahubbots"
	DefaultChannelLinks         = "https://t.me/megahubbots"
	DefaultAirtimeMin           = 100
	DefaultAirtimeMax           = 500
	DefaultAirtimeStep          = 10
	DefaultProgressFrameDelay   = time.Second
	DefaultBroadcastConcurrency = 8

	// WebhookPath is appended to WEBHOOK_URL when registering the webhook.
	WebhookPath = "/webhook"
)

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the bot must refuse to start without this value
	Default     string // default when unset (empty when required)
	Description string // what the variable controls
	Notes       string // extra guidance or policies
}

// Contract enumerates the authoritative configuration keys for the bot.
// .env loading is only permitted when APP_ENV=development; production must rely
// on environment variables supplied by the runtime.
var Contract = []VarSpec{
	{
		Key:         KeyTelegramToken,
		Example:     "123:ABC",
		Required:    true,
		Description: "Telegram Bot Token issued by BotFather.",
	},
	{
		Key:         KeyAdminID,
		Example:     "123456789",
		Required:    true,
		Description: "Telegram user_id allowed to run /stats and /broadcast.",
	},
	{
		Key:         KeyMongoURI,
		Example:     "mongodb://localhost:27017",
		Required:    true,
		Description: "MongoDB connection string.",
		Notes:       "Must use the mongodb:// or mongodb+srv:// scheme.",
	},
	{
		Key:         KeyMongoDB,
		Example:     DefaultMongoDB,
		Default:     DefaultMongoDB,
		Description: "MongoDB database name.",
	},
	{
		Key:         KeyRequiredChannels,
		Example:     "channel_one,channel_two",
		Default:     DefaultRequiredChannels,
		Description: "Comma separated channel usernames a user must join.",
		Notes:       "A leading @ is optional.",
	},
	{
		Key:         KeyChannelLinks,
		Example:     "https://t.me/channel_one,https://t.me/channel_two",
		Default:     DefaultChannelLinks,
		Description: "Join links matching " + KeyRequiredChannels + " one to one.",
	},
	{
		Key:         KeyHTTPPort,
		Example:     strconv.Itoa(DefaultHTTPPort),
		Default:     strconv.Itoa(DefaultHTTPPort),
		Description: "HTTP port for health, metrics and webhook endpoints.",
	},
	{
		Key:         KeyWebhookURL,
		Example:     "https://bot.example.com",
		Description: "Public base URL; enables webhook mode when set.",
		Notes:       "The bot registers <base>" + WebhookPath + ". Long polling is used when empty.",
	},
	{
		Key:         KeyWebhookSecret,
		Example:     "s3cr3t",
		Description: "Shared secret expected in X-Telegram-Bot-Api-Secret-Token.",
	},
	{
		Key:         KeyAppEnv,
		Example:     EnvDevelopment + " / " + EnvProduction,
		Default:     DefaultAppEnv,
		Description: "Runtime environment; controls log format and dotenv usage.",
		Notes:       "Load .env files only when APP_ENV=" + EnvDevelopment + ".",
	},
	{
		Key:         KeyLogLevel,
		Example:     DefaultLogLevel,
		Default:     DefaultLogLevel,
		Description: "Overrides default log level.",
	},
	{
		Key:         KeyAirtimeMin,
		Example:     strconv.Itoa(DefaultAirtimeMin),
		Default:     strconv.Itoa(DefaultAirtimeMin),
		Description: "Lower bound of the demo airtime amount draw.",
	},
	{
		Key:         KeyAirtimeMax,
		Example:     strconv.Itoa(DefaultAirtimeMax),
		Default:     strconv.Itoa(DefaultAirtimeMax),
		Description: "Upper bound of the demo airtime amount draw.",
	},
	{
		Key:         KeyAirtimeStep,
		Example:     strconv.Itoa(DefaultAirtimeStep),
		Default:     strconv.Itoa(DefaultAirtimeStep),
		Description: "Granularity of the demo airtime amount draw.",
	},
	{
		Key:         KeyProgressFrameDelay,
		Example:     DefaultProgressFrameDelay.String(),
		Default:     DefaultProgressFrameDelay.String(),
		Description: "Delay between progress animation frames.",
	},
	{
		Key:         KeyBroadcastConcurrency,
		Example:     strconv.Itoa(DefaultBroadcastConcurrency),
		Default:     strconv.Itoa(DefaultBroadcastConcurrency),
		Description: "Maximum parallel sends during /broadcast.",
	},
}

// Channel is a required channel and the link users follow to join it.
type Channel struct {
	Username string
	JoinLink string
}

// ChatRef returns the @username form accepted by the Bot API.
func (c Channel) ChatRef() string {
	return "@" + c.Username
}

// Config mirrors resolved configuration values after loading.
type Config struct {
	TelegramToken        string
	AdminID              int64
	MongoURI             string
	MongoDB              string
	Channels             []Channel
	HTTPPort             int
	WebhookURL           string
	WebhookSecret        string
	AppEnv               string
	LogLevel             string
	AirtimeMin           int64
	AirtimeMax           int64
	AirtimeStep          int64
	ProgressFrameDelay   time.Duration
	BroadcastConcurrency int
}

// Load resolves configuration from the environment (with optional dotenv in development).
func Load() (Config, error) {
	appEnv, err := resolveAppEnv()
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:               firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), appEnv),
		TelegramToken:        strings.TrimSpace(os.Getenv(KeyTelegramToken)),
		MongoURI:             strings.TrimSpace(os.Getenv(KeyMongoURI)),
		MongoDB:              firstNonEmpty(os.Getenv(KeyMongoDB), DefaultMongoDB),
		WebhookURL:           strings.TrimRight(strings.TrimSpace(os.Getenv(KeyWebhookURL)), "/"),
		WebhookSecret:        strings.TrimSpace(os.Getenv(KeyWebhookSecret)),
		LogLevel:             firstNonEmpty(os.Getenv(KeyLogLevel), DefaultLogLevel),
		HTTPPort:             DefaultHTTPPort,
		AirtimeMin:           DefaultAirtimeMin,
		AirtimeMax:           DefaultAirtimeMax,
		AirtimeStep:          DefaultAirtimeStep,
		ProgressFrameDelay:   DefaultProgressFrameDelay,
		BroadcastConcurrency: DefaultBroadcastConcurrency,
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}

	missing := make([]string, 0)

	if cfg.TelegramToken == "" {
		missing = append(missing, KeyTelegramToken)
	}

	adminRaw := strings.TrimSpace(os.Getenv(KeyAdminID))
	if adminRaw == "" {
		missing = append(missing, KeyAdminID)
	} else {
		adminID, parseErr := strconv.ParseInt(adminRaw, 10, 64)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyAdminID, parseErr)
		}
		cfg.AdminID = adminID
	}

	if cfg.MongoURI == "" {
		missing = append(missing, KeyMongoURI)
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	if err := validateMongoURI(cfg.MongoURI); err != nil {
		return Config{}, err
	}

	channels, err := parseChannels(
		firstNonEmpty(os.Getenv(KeyRequiredChannels), DefaultRequiredChannels),
		firstNonEmpty(os.Getenv(KeyChannelLinks), DefaultChannelLinks),
	)
	if err != nil {
		return Config{}, err
	}
	cfg.Channels = channels

	if cfg.HTTPPort, err = positiveInt(KeyHTTPPort, DefaultHTTPPort); err != nil {
		return Config{}, err
	}
	if cfg.BroadcastConcurrency, err = positiveInt(KeyBroadcastConcurrency, DefaultBroadcastConcurrency); err != nil {
		return Config{}, err
	}

	if cfg.AirtimeMin, err = positiveInt64(KeyAirtimeMin, DefaultAirtimeMin); err != nil {
		return Config{}, err
	}
	if cfg.AirtimeMax, err = positiveInt64(KeyAirtimeMax, DefaultAirtimeMax); err != nil {
		return Config{}, err
	}
	if cfg.AirtimeStep, err = positiveInt64(KeyAirtimeStep, DefaultAirtimeStep); err != nil {
		return Config{}, err
	}
	if cfg.AirtimeMax < cfg.AirtimeMin {
		return Config{}, fmt.Errorf("%s must not be less than %s", KeyAirtimeMax, KeyAirtimeMin)
	}
	if cfg.AirtimeMin%cfg.AirtimeStep != 0 {
		return Config{}, fmt.Errorf("%s must be a multiple of %s", KeyAirtimeMin, KeyAirtimeStep)
	}

	if raw := strings.TrimSpace(os.Getenv(KeyProgressFrameDelay)); raw != "" {
		delay, parseErr := time.ParseDuration(raw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyProgressFrameDelay, parseErr)
		}
		if delay < 0 {
			return Config{}, fmt.Errorf("%s must not be negative", KeyProgressFrameDelay)
		}
		cfg.ProgressFrameDelay = delay
	}

	if cfg.WebhookURL != "" {
		if _, parseErr := url.ParseRequestURI(cfg.WebhookURL); parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyWebhookURL, parseErr)
		}
	}

	return cfg, nil
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// UsesWebhook reports whether updates arrive by webhook instead of long polling.
func (c Config) UsesWebhook() bool {
	return c.WebhookURL != ""
}

// WebhookEndpoint returns the full URL registered with Telegram.
func (c Config) WebhookEndpoint() string {
	if !c.UsesWebhook() {
		return ""
	}
	return c.WebhookURL + WebhookPath
}

// FormatRedacted renders the configuration with secrets masked.
func FormatRedacted(cfg Config) string {
	channels := make([]string, 0, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		channels = append(channels, ch.Username)
	}

	lines := []string{
		"telegram_token: " + redactSecret(cfg.TelegramToken),
		"admin_id: " + strconv.FormatInt(cfg.AdminID, 10),
		"mongo_uri: " + redactMongoURI(cfg.MongoURI),
		"mongo_db: " + cfg.MongoDB,
		"required_channels: " + strings.Join(channels, ","),
		"http_port: " + strconv.Itoa(cfg.HTTPPort),
		"webhook_url: " + cfg.WebhookURL,
		"webhook_secret: " + redactSecret(cfg.WebhookSecret),
		"app_env: " + cfg.AppEnv,
		"log_level: " + cfg.LogLevel,
		fmt.Sprintf("airtime_range: %d-%d step %d", cfg.AirtimeMin, cfg.AirtimeMax, cfg.AirtimeStep),
		"progress_frame_delay: " + cfg.ProgressFrameDelay.String(),
		"broadcast_concurrency: " + strconv.Itoa(cfg.BroadcastConcurrency),
	}

	return strings.Join(lines, "\n")
}

func parseChannels(namesRaw, linksRaw string) ([]Channel, error) {
	names := splitList(namesRaw)
	links := splitList(linksRaw)

	if len(names) == 0 {
		return nil, fmt.Errorf("%s must list at least one channel", KeyRequiredChannels)
	}
	if len(names) != len(links) {
		return nil, fmt.Errorf("%s has %d entries but %s has %d", KeyRequiredChannels, len(names), KeyChannelLinks, len(links))
	}

	channels := make([]Channel, 0, len(names))
	for i, name := range names {
		channels = append(channels, Channel{
			Username: strings.TrimPrefix(name, "@"),
			JoinLink: links[i],
		})
	}

	return channels, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func positiveInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}

	return value, nil
}

func positiveInt64(key string, fallback int64) (int64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}

	return value, nil
}

func validateMongoURI(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", KeyMongoURI, err)
	}
	if parsed.Scheme != "mongodb" && parsed.Scheme != "mongodb+srv" {
		return fmt.Errorf("invalid %s: scheme must be mongodb or mongodb+srv", KeyMongoURI)
	}
	return nil
}

func redactSecret(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return "...redacted"
	}
	return value[:4] + "...redacted"
}

func redactMongoURI(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.User == nil {
		return raw
	}
	parsed.User = nil
	return parsed.String()
}

func resolveAppEnv() (string, error) {
	if explicit := normalizeEnv(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalizeEnv(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func validateAppEnv(appEnv string) error {
	if appEnv == EnvDevelopment || appEnv == EnvProduction {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
}

func normalizeEnv(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
