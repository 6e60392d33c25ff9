package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalConfig = `
bot:
  token: "123:abc"
database:
  url: "postgres://localhost/archive"
redis:
  url: "localhost:6379"
`

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig), false)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Bot.Mode != "polling" {
		t.Errorf("mode = %q, want polling", cfg.Bot.Mode)
	}
	if cfg.Bot.FloodLimitPerMinute != 20 {
		t.Errorf("flood limit = %d, want 20", cfg.Bot.FloodLimitPerMinute)
	}
	if cfg.Engine.CommitRetries != 3 {
		t.Errorf("commit retries = %d, want 3", cfg.Engine.CommitRetries)
	}
	if cfg.Sender.RatePerSecond != 30 {
		t.Errorf("rate = %d, want 30", cfg.Sender.RatePerSecond)
	}
}

func TestLoadConfig_FloodLimitOverride(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
bot:
  token: "123:abc"
  flood_limit_per_minute: 5
database:
  url: "postgres://localhost/archive"
redis:
  url: "localhost:6379"
`), false)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Bot.FloodLimitPerMinute != 5 {
		t.Errorf("flood limit = %d, want 5", cfg.Bot.FloodLimitPerMinute)
	}
}

func TestLoadConfig_RejectsMissingToken(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `
database:
  url: "postgres://localhost/archive"
redis:
  url: "localhost:6379"
`), false)
	if err == nil {
		t.Fatal("config without bot.token accepted")
	}
}
