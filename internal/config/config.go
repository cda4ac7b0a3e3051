// Package config loads runtime configuration from CHATFUSE_* environment
// variables. A platform section missing its required keys leaves that
// adapter disabled rather than failing startup.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTP    HTTPConfig
	Twitch  TwitchConfig
	YouTube YouTubeConfig
	Kick    KickConfig
	History HistoryConfig
	Fake    FakeConfig

	BadgeFile string
	EmoteFile string
	Debug     bool
}

type HTTPConfig struct {
	Addr           string
	CORSOrigins    []string
	RateLimitRPS   int
	RateLimitBurst int
}

type TwitchConfig struct {
	Enabled   bool
	Channel   string
	Nick      string
	Token     string
	TokenFile string
	TLS       bool
}

type YouTubeConfig struct {
	Enabled bool
	LiveURL string
}

type KickConfig struct {
	Enabled    bool
	ChatroomID int
}

type HistoryConfig struct {
	Capacity   int
	ExpirySecs int
}

type FakeConfig struct {
	Enabled    bool
	IntervalMS int
}

const (
	defaultAddr       = ":8787"
	defaultHistoryCap = 200
	defaultRateRPS    = 10
	defaultRateBurst  = 30
)

func Load() Config {
	cfg := Config{}

	cfg.HTTP.Addr = strings.TrimSpace(os.Getenv("CHATFUSE_HTTP_ADDR"))
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = defaultAddr
	}
	cfg.HTTP.CORSOrigins = splitList(os.Getenv("CHATFUSE_CORS_ORIGINS"))
	cfg.HTTP.RateLimitRPS = readInt("CHATFUSE_RATE_RPS", defaultRateRPS)
	cfg.HTTP.RateLimitBurst = readInt("CHATFUSE_RATE_BURST", defaultRateBurst)

	cfg.Twitch.Channel = strings.TrimSpace(os.Getenv("CHATFUSE_TWITCH_CHANNEL"))
	cfg.Twitch.Nick = strings.TrimSpace(os.Getenv("CHATFUSE_TWITCH_NICK"))
	cfg.Twitch.Token = strings.TrimSpace(os.Getenv("CHATFUSE_TWITCH_TOKEN"))
	cfg.Twitch.TokenFile = strings.TrimSpace(os.Getenv("CHATFUSE_TWITCH_TOKEN_FILE"))
	cfg.Twitch.TLS = readBool("CHATFUSE_TWITCH_TLS", true)
	hasCreds := cfg.Twitch.Token != "" || cfg.Twitch.TokenFile != ""
	cfg.Twitch.Enabled = readBool("CHATFUSE_TWITCH_ENABLED",
		cfg.Twitch.Channel != "" && cfg.Twitch.Nick != "" && hasCreds)

	cfg.YouTube.LiveURL = strings.TrimSpace(os.Getenv("CHATFUSE_YT_URL"))
	cfg.YouTube.Enabled = readBool("CHATFUSE_YT_ENABLED", cfg.YouTube.LiveURL != "")

	cfg.Kick.ChatroomID = readInt("CHATFUSE_KICK_CHATROOM_ID", 0)
	cfg.Kick.Enabled = readBool("CHATFUSE_KICK_ENABLED", cfg.Kick.ChatroomID > 0)

	cfg.History.Capacity = readInt("CHATFUSE_HISTORY_CAP", defaultHistoryCap)
	cfg.History.ExpirySecs = readInt("CHATFUSE_HISTORY_EXPIRY_SECS", 0)

	cfg.Fake.Enabled = readBool("CHATFUSE_FAKE", false)
	cfg.Fake.IntervalMS = readInt("CHATFUSE_FAKE_INTERVAL_MS", 0)

	cfg.BadgeFile = strings.TrimSpace(os.Getenv("CHATFUSE_BADGE_FILE"))
	cfg.EmoteFile = strings.TrimSpace(os.Getenv("CHATFUSE_EMOTE_FILE"))
	cfg.Debug = readBool("CHATFUSE_DEBUG", false)

	return cfg
}

// Expiry returns the overlay history auto-expiry window; zero disables it.
func (c Config) Expiry() time.Duration {
	if c.History.ExpirySecs <= 0 {
		return 0
	}
	return time.Duration(c.History.ExpirySecs) * time.Second
}

func (c Config) FakeInterval() time.Duration {
	if c.Fake.IntervalMS <= 0 {
		return 0
	}
	return time.Duration(c.Fake.IntervalMS) * time.Millisecond
}

// AnyAdapterEnabled reports whether at least one chat source will run.
func (c Config) AnyAdapterEnabled() bool {
	return c.Twitch.Enabled || c.YouTube.Enabled || c.Kick.Enabled || c.Fake.Enabled
}

func splitList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		switch r {
		case ',', ';', ' ', '\t', '\n':
			return true
		}
		return false
	})
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		key := strings.ToLower(p)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}

func readInt(name string, def int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if n <= 0 {
		return def
	}
	return n
}

func readBool(name string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

type Summary struct {
	HTTP    HTTPSummary     `json:"http"`
	Twitch  TwitchSummary   `json:"twitch"`
	YouTube YouTubeSummary  `json:"yt"`
	Kick    KickSummary     `json:"kick"`
	History HistoryConfig   `json:"history"`
	Fake    FakeConfig      `json:"fake"`
	Files   CatalogsSummary `json:"catalogs"`
	Debug   bool            `json:"debug"`
}

type HTTPSummary struct {
	Addr        string   `json:"addr"`
	CORSOrigins []string `json:"cors_origins,omitempty"`
	RateRPS     int      `json:"rate_rps"`
	RateBurst   int      `json:"rate_burst"`
}

type TwitchSummary struct {
	Enabled   bool   `json:"enabled"`
	Channel   string `json:"channel,omitempty"`
	Nick      string `json:"nick,omitempty"`
	Token     string `json:"token,omitempty"`
	TokenFile string `json:"token_file,omitempty"`
	TLS       bool   `json:"tls"`
}

type YouTubeSummary struct {
	Enabled bool   `json:"enabled"`
	LiveURL string `json:"live_url,omitempty"`
}

type KickSummary struct {
	Enabled    bool `json:"enabled"`
	ChatroomID int  `json:"chatroom_id,omitempty"`
}

type CatalogsSummary struct {
	BadgeFile string `json:"badge_file,omitempty"`
	EmoteFile string `json:"emote_file,omitempty"`
}

func (c Config) Summary() Summary {
	return Summary{
		HTTP: HTTPSummary{
			Addr:        c.HTTP.Addr,
			CORSOrigins: append([]string(nil), c.HTTP.CORSOrigins...),
			RateRPS:     c.HTTP.RateLimitRPS,
			RateBurst:   c.HTTP.RateLimitBurst,
		},
		Twitch: TwitchSummary{
			Enabled:   c.Twitch.Enabled,
			Channel:   c.Twitch.Channel,
			Nick:      c.Twitch.Nick,
			Token:     redactString(c.Twitch.Token),
			TokenFile: c.Twitch.TokenFile,
			TLS:       c.Twitch.TLS,
		},
		YouTube: YouTubeSummary{
			Enabled: c.YouTube.Enabled,
			LiveURL: c.YouTube.LiveURL,
		},
		Kick: KickSummary{
			Enabled:    c.Kick.Enabled,
			ChatroomID: c.Kick.ChatroomID,
		},
		History: c.History,
		Fake:    c.Fake,
		Files: CatalogsSummary{
			BadgeFile: c.BadgeFile,
			EmoteFile: c.EmoteFile,
		},
		Debug: c.Debug,
	}
}

func (c Config) SummaryJSON() []byte {
	summary := struct {
		Config Summary `json:"config_summary"`
	}{Config: c.Summary()}
	data, _ := json.Marshal(summary)
	return data
}

func redactString(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return "***REDACTED*** (len=" + strconv.Itoa(len(value)) + ")"
}
