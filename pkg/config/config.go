package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const (
	envConfigPath        = "RELAYBOT_CONFIG"
	envDiscordBotToken   = "DISCORD_BOT_TOKEN"
	envTelegramBotToken  = "TELEGRAM_BOT_TOKEN"
	envTelegramAllowFrom = "TELEGRAM_ALLOW_FROM"
	envTwitchOAuth       = "TWITCH_OAUTH"
	envBugReportURL      = "RELAYBOT_BUG_REPORT_URL"
)

const (
	DefaultPlayStateExpirySeconds = 3600
	DefaultSweepIntervalSeconds   = 60
	DefaultFetchTimeoutSeconds    = 20
	DefaultFetchAttempts          = 3
	DefaultLocale                 = "en_us"
	DefaultCommandPrefix          = "~"
	DefaultCoinLimit              = 10000
	DefaultCoinFaceRate           = 4997
	DefaultGatewayHost            = "0.0.0.0"
	DefaultGatewayPort            = 18790
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Bot       BotConfig       `json:"bot"`
	Channels  ChannelsConfig  `json:"channels"`
	Messages  MessagesConfig  `json:"messages"`
	Resources ResourcesConfig `json:"resources"`
	PlayState PlayStateConfig `json:"play_state"`
	Locale    LocaleConfig    `json:"locale"`
	Targets   TargetsConfig   `json:"targets"`
	History   HistoryConfig   `json:"history"`
	Modules   ModulesConfig   `json:"modules"`
	Analytics AnalyticsConfig `json:"analytics"`
	Gateway   GatewayConfig   `json:"gateway"`
	Logging   LoggingConfig   `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// BotConfig holds bot-wide identity settings.
type BotConfig struct {
	Name          string `json:"name"`
	CommandPrefix string `json:"command_prefix"`
}

// ChannelsConfig stores transport adapter settings.
type ChannelsConfig struct {
	Discord  DiscordConfig  `json:"discord"`
	Telegram TelegramConfig `json:"telegram"`
	Twitch   TwitchConfig   `json:"twitch"`
	Console  ConsoleConfig  `json:"console"`
}

// DiscordConfig configures Discord gateway integration.
type DiscordConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
}

// TelegramConfig configures Telegram channel integration.
type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	Proxy     string   `json:"proxy"`
	AllowFrom []string `json:"allow_from"`
}

// TwitchConfig configures the Twitch IRC integration.
type TwitchConfig struct {
	Enabled  bool     `json:"enabled"`
	Username string   `json:"username"`
	OAuth    string   `json:"oauth"`
	Channels []string `json:"channels"`
}

// ConsoleConfig configures the local terminal platform.
type ConsoleConfig struct {
	Interactive bool `json:"interactive"`
}

// MessagesConfig controls how outbound message elements are built.
type MessagesConfig struct {
	ObfuscateLinks        bool     `json:"obfuscate_links"`
	DisableObfuscation    bool     `json:"disable_obfuscation"`
	RedirectTemplate      string   `json:"redirect_template"`
	MarkdownLinks         bool     `json:"markdown_links"`
	BugReportURL          string   `json:"bug_report_url"`
	Secrets               []string `json:"secrets"`
	IncludeChannelSecrets bool     `json:"include_channel_secrets"`
}

// ResourcesConfig controls remote resource fetching and local caching.
type ResourcesConfig struct {
	CacheDir            string `json:"cache_dir"`
	FetchTimeoutSeconds int    `json:"fetch_timeout_seconds"`
	FetchAttempts       int    `json:"fetch_attempts"`
}

// PlayStateConfig controls interactive game state expiry.
type PlayStateConfig struct {
	ExpirySeconds        int `json:"expiry_seconds"`
	SweepIntervalSeconds int `json:"sweep_interval_seconds"`
}

// LocaleConfig points at the YAML locale catalogs.
type LocaleConfig struct {
	Dir     string `json:"dir"`
	Default string `json:"default"`
}

// TargetsConfig configures the target info store.
type TargetsConfig struct {
	Path string `json:"path"`
}

// HistoryConfig controls the sent-chain archive.
type HistoryConfig struct {
	Enabled         bool     `json:"enabled"`
	Dir             string   `json:"dir"`
	RotateMinutes   int      `json:"rotate_minutes"`
	RotateMegabytes int      `json:"rotate_megabytes"`
	S3              S3Config `json:"s3"`
}

// S3Config configures archive uploads.
type S3Config struct {
	Enabled           bool   `json:"enabled"`
	Bucket            string `json:"bucket"`
	Region            string `json:"region"`
	Prefix            string `json:"prefix"`
	Endpoint          string `json:"endpoint"`
	AccessKeyID       string `json:"access_key_id"`
	SecretAccessKey   string `json:"secret_access_key"`
	DeleteAfterUpload bool   `json:"delete_after_upload"`
	MaxRetries        int    `json:"max_retries"`
}

// ModulesConfig configures the bundled interactive modules.
type ModulesConfig struct {
	UseSecretsRandom bool       `json:"use_secrets_random"`
	Coin             CoinConfig `json:"coin"`
}

// CoinConfig configures coin flip probabilities (rates are out of Limit).
type CoinConfig struct {
	Limit        int `json:"limit"`
	FaceUpRate   int `json:"face_up_rate"`
	FaceDownRate int `json:"face_down_rate"`
}

// AnalyticsConfig toggles delivery analytics events.
type AnalyticsConfig struct {
	Enabled bool `json:"enabled"`
}

// GatewayConfig configures HTTP status server bind settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// LoadConfig resolves config.json, unmarshals it, and applies environment overrides.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	return LoadFile(configPath)
}

// LoadFile reads one config file, applies env overrides and defaults.
func LoadFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)
	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyDefaults fills zero values with runtime defaults.
func (c *Config) ApplyDefaults() {
	if c == nil {
		return
	}

	if strings.TrimSpace(c.Bot.Name) == "" {
		c.Bot.Name = "relaybot"
	}
	if c.Bot.CommandPrefix == "" {
		c.Bot.CommandPrefix = DefaultCommandPrefix
	}
	if c.Resources.CacheDir == "" {
		c.Resources.CacheDir = filepath.Join(os.TempDir(), "relaybot", "cache")
	}
	if c.Resources.FetchTimeoutSeconds <= 0 {
		c.Resources.FetchTimeoutSeconds = DefaultFetchTimeoutSeconds
	}
	if c.Resources.FetchAttempts <= 0 {
		c.Resources.FetchAttempts = DefaultFetchAttempts
	}
	if c.PlayState.ExpirySeconds <= 0 {
		c.PlayState.ExpirySeconds = DefaultPlayStateExpirySeconds
	}
	if c.PlayState.SweepIntervalSeconds <= 0 {
		c.PlayState.SweepIntervalSeconds = DefaultSweepIntervalSeconds
	}
	if c.Locale.Default == "" {
		c.Locale.Default = DefaultLocale
	}
	if c.History.Dir == "" {
		c.History.Dir = "./data/history"
	}
	if c.History.RotateMinutes <= 0 {
		c.History.RotateMinutes = 60
	}
	if c.History.RotateMegabytes <= 0 {
		c.History.RotateMegabytes = 100
	}
	if c.History.S3.MaxRetries <= 0 {
		c.History.S3.MaxRetries = 3
	}
	// Rates may legitimately be zero, so only the limit decides whether coin is unconfigured.
	if c.Modules.Coin.Limit == 0 {
		c.Modules.Coin.Limit = DefaultCoinLimit
		c.Modules.Coin.FaceUpRate = DefaultCoinFaceRate
		c.Modules.Coin.FaceDownRate = DefaultCoinFaceRate
	}
	if strings.TrimSpace(c.Gateway.Host) == "" {
		c.Gateway.Host = DefaultGatewayHost
	}
	if c.Gateway.Port <= 0 {
		c.Gateway.Port = DefaultGatewayPort
	}
}

// ChannelSecrets returns configured credentials that must never be echoed to chats.
func (c *Config) ChannelSecrets() []string {
	if c == nil {
		return nil
	}

	secrets := slices.Clone(c.Messages.Secrets)
	if !c.Messages.IncludeChannelSecrets {
		return compact(secrets)
	}

	secrets = append(secrets,
		c.Channels.Discord.Token,
		c.Channels.Telegram.Token,
		c.Channels.Twitch.OAuth,
		c.History.S3.SecretAccessKey,
	)

	return compact(secrets)
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if token := strings.TrimSpace(os.Getenv(envDiscordBotToken)); token != "" {
		cfg.Channels.Discord.Token = token
	}

	if token := strings.TrimSpace(os.Getenv(envTelegramBotToken)); token != "" {
		cfg.Channels.Telegram.Token = token
	}

	if rawAllowFrom := strings.TrimSpace(os.Getenv(envTelegramAllowFrom)); rawAllowFrom != "" {
		cfg.Channels.Telegram.AllowFrom = parseCSV(rawAllowFrom)
	}

	if oauth := strings.TrimSpace(os.Getenv(envTwitchOAuth)); oauth != "" {
		cfg.Channels.Twitch.OAuth = oauth
	}

	if reportURL := strings.TrimSpace(os.Getenv(envBugReportURL)); reportURL != "" {
		cfg.Messages.BugReportURL = reportURL
	}
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	return compact(strings.Split(input, ","))
}

func compact(values []string) []string {
	clean := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is RELAYBOT_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.json not found (checked %s and %s)", candidates[0], candidates[1])
}
