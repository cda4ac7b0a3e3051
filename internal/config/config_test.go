package config

import (
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"CHATFUSE_HTTP_ADDR", "CHATFUSE_CORS_ORIGINS", "CHATFUSE_RATE_RPS", "CHATFUSE_RATE_BURST",
		"CHATFUSE_TWITCH_CHANNEL", "CHATFUSE_TWITCH_NICK", "CHATFUSE_TWITCH_TOKEN",
		"CHATFUSE_TWITCH_TOKEN_FILE", "CHATFUSE_TWITCH_TLS", "CHATFUSE_TWITCH_ENABLED",
		"CHATFUSE_YT_URL", "CHATFUSE_YT_ENABLED",
		"CHATFUSE_KICK_CHATROOM_ID", "CHATFUSE_KICK_ENABLED",
		"CHATFUSE_HISTORY_CAP", "CHATFUSE_HISTORY_EXPIRY_SECS",
		"CHATFUSE_FAKE", "CHATFUSE_FAKE_INTERVAL_MS",
		"CHATFUSE_BADGE_FILE", "CHATFUSE_EMOTE_FILE", "CHATFUSE_DEBUG",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	if cfg.HTTP.Addr != ":8787" {
		t.Fatalf("addr = %q", cfg.HTTP.Addr)
	}
	if cfg.History.Capacity != 200 {
		t.Fatalf("history cap = %d", cfg.History.Capacity)
	}
	if cfg.Twitch.Enabled || cfg.YouTube.Enabled || cfg.Kick.Enabled || cfg.Fake.Enabled {
		t.Fatalf("no adapter should be enabled by default: %+v", cfg)
	}
	if !cfg.Twitch.TLS {
		t.Fatalf("twitch tls should default to true")
	}
	if cfg.AnyAdapterEnabled() {
		t.Fatalf("AnyAdapterEnabled must be false with no sources configured")
	}
}

func TestTwitchEnabledWhenComplete(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHATFUSE_TWITCH_CHANNEL", "somechannel")
	t.Setenv("CHATFUSE_TWITCH_NICK", "overlaybot")
	t.Setenv("CHATFUSE_TWITCH_TOKEN", "oauth:secret")

	cfg := Load()
	if !cfg.Twitch.Enabled {
		t.Fatalf("twitch should be enabled with channel, nick and token")
	}

	// a missing credential disables the adapter instead of failing startup
	t.Setenv("CHATFUSE_TWITCH_TOKEN", "")
	if cfg := Load(); cfg.Twitch.Enabled {
		t.Fatalf("twitch should be disabled without credentials")
	}

	// explicit override wins
	t.Setenv("CHATFUSE_TWITCH_TOKEN", "oauth:secret")
	t.Setenv("CHATFUSE_TWITCH_ENABLED", "false")
	if cfg := Load(); cfg.Twitch.Enabled {
		t.Fatalf("explicit disable must win")
	}
}

func TestPlatformSectionsAreIndependent(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHATFUSE_YT_URL", "https://www.youtube.com/watch?v=abc")

	cfg := Load()
	if !cfg.YouTube.Enabled {
		t.Fatalf("youtube should be enabled with a live url")
	}
	if cfg.Twitch.Enabled || cfg.Kick.Enabled {
		t.Fatalf("other platforms must stay disabled")
	}
	if !cfg.AnyAdapterEnabled() {
		t.Fatalf("one enabled adapter is enough")
	}
}

func TestKickAndHistoryOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHATFUSE_KICK_CHATROOM_ID", "12345")
	t.Setenv("CHATFUSE_HISTORY_CAP", "50")
	t.Setenv("CHATFUSE_HISTORY_EXPIRY_SECS", "30")
	t.Setenv("CHATFUSE_FAKE", "true")
	t.Setenv("CHATFUSE_FAKE_INTERVAL_MS", "250")

	cfg := Load()
	if !cfg.Kick.Enabled || cfg.Kick.ChatroomID != 12345 {
		t.Fatalf("kick = %+v", cfg.Kick)
	}
	if cfg.History.Capacity != 50 {
		t.Fatalf("history cap = %d", cfg.History.Capacity)
	}
	if cfg.Expiry() != 30*time.Second {
		t.Fatalf("expiry = %v", cfg.Expiry())
	}
	if !cfg.Fake.Enabled || cfg.FakeInterval() != 250*time.Millisecond {
		t.Fatalf("fake = %+v interval=%v", cfg.Fake, cfg.FakeInterval())
	}
}

func TestBadNumbersFallBackToDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHATFUSE_HISTORY_CAP", "not-a-number")
	t.Setenv("CHATFUSE_RATE_RPS", "-5")

	cfg := Load()
	if cfg.History.Capacity != 200 {
		t.Fatalf("history cap = %d", cfg.History.Capacity)
	}
	if cfg.HTTP.RateLimitRPS != 10 {
		t.Fatalf("rate rps = %d", cfg.HTTP.RateLimitRPS)
	}
}

func TestSplitListDedupes(t *testing.T) {
	got := splitList("https://a.test, https://b.test;https://a.test https://A.test")
	if len(got) != 2 {
		t.Fatalf("got %v", got)
	}
}

func TestSummaryRedactsToken(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHATFUSE_TWITCH_CHANNEL", "somechannel")
	t.Setenv("CHATFUSE_TWITCH_NICK", "overlaybot")
	t.Setenv("CHATFUSE_TWITCH_TOKEN", "oauth:supersecret")

	out := string(Load().SummaryJSON())
	if strings.Contains(out, "supersecret") {
		t.Fatalf("token leaked into summary: %s", out)
	}
	if !strings.Contains(out, "REDACTED") {
		t.Fatalf("expected redaction marker: %s", out)
	}
}
