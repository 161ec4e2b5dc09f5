package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigFromEnvPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
	  "bot": {"name": "relay", "command_prefix": "!"},
	  "channels": {"discord": {"enabled": true, "token": "file-token"}},
	  "messages": {"obfuscate_links": true, "secrets": [" hunter2 ", ""]},
	  "play_state": {"expiry_seconds": 120},
	  "gateway": {"host": "127.0.0.1", "port": 18800},
	  "logging": {"format": "json", "level": "debug", "add_source": true}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("RELAYBOT_CONFIG", path)
	t.Setenv("DISCORD_BOT_TOKEN", "env-token")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Logging.Format != "json" {
		t.Fatalf("logging.format = %q, want %q", cfg.Logging.Format, "json")
	}
	if !cfg.Logging.AddSource {
		t.Fatal("logging.add_source = false, want true")
	}
	if cfg.Channels.Discord.Token != "env-token" {
		t.Fatalf("discord token = %q, want env override", cfg.Channels.Discord.Token)
	}
	if cfg.Bot.CommandPrefix != "!" {
		t.Fatalf("command_prefix = %q, want %q", cfg.Bot.CommandPrefix, "!")
	}
	if cfg.PlayState.ExpirySeconds != 120 {
		t.Fatalf("play_state.expiry_seconds = %d, want 120", cfg.PlayState.ExpirySeconds)
	}
	if cfg.PlayState.SweepIntervalSeconds != DefaultSweepIntervalSeconds {
		t.Fatalf("sweep interval = %d, want default", cfg.PlayState.SweepIntervalSeconds)
	}
	if cfg.Resources.FetchAttempts != 3 || cfg.Resources.FetchTimeoutSeconds != 20 {
		t.Fatalf("resources = %+v, want 3 attempts / 20s", cfg.Resources)
	}
}

func TestLoadConfigInvalidEnvPath(t *testing.T) {
	t.Setenv("RELAYBOT_CONFIG", filepath.Join(t.TempDir(), "missing.json"))

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing config path")
	}
}

func TestApplyDefaultsKeepsExplicitCoinRates(t *testing.T) {
	cfg := &Config{Modules: ModulesConfig{Coin: CoinConfig{Limit: 10, FaceUpRate: 0, FaceDownRate: 10}}}
	cfg.ApplyDefaults()

	if cfg.Modules.Coin.FaceUpRate != 0 || cfg.Modules.Coin.FaceDownRate != 10 {
		t.Fatalf("coin = %+v, want explicit rates kept", cfg.Modules.Coin)
	}
	if cfg.Locale.Default != DefaultLocale {
		t.Fatalf("locale.default = %q, want %q", cfg.Locale.Default, DefaultLocale)
	}
}

func TestChannelSecrets(t *testing.T) {
	cfg := &Config{}
	cfg.Messages.Secrets = []string{" a ", ""}
	cfg.Channels.Telegram.Token = "tg"

	if got := cfg.ChannelSecrets(); len(got) != 1 || got[0] != "a" {
		t.Fatalf("ChannelSecrets = %v, want [a]", got)
	}

	cfg.Messages.IncludeChannelSecrets = true
	got := cfg.ChannelSecrets()
	if len(got) != 2 || got[1] != "tg" {
		t.Fatalf("ChannelSecrets with channels = %v, want [a tg]", got)
	}
}

func TestParseCSV(t *testing.T) {
	got := parseCSV(" 1, ,2 ,")
	if len(got) != 2 || got[0] != "1" || got[1] != "2" {
		t.Fatalf("parseCSV = %v, want [1 2]", got)
	}
}
