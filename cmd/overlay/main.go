package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/you/chatfuse/internal/badges"
	"github.com/you/chatfuse/internal/config"
	"github.com/you/chatfuse/internal/core"
	"github.com/you/chatfuse/internal/emotes"
	"github.com/you/chatfuse/internal/httpapi"
	"github.com/you/chatfuse/internal/hub"
	"github.com/you/chatfuse/internal/kickchat"
	"github.com/you/chatfuse/internal/normalize"
	"github.com/you/chatfuse/internal/source"
	"github.com/you/chatfuse/internal/store"
	"github.com/you/chatfuse/internal/twitchchat"
	"github.com/you/chatfuse/internal/version"
	"github.com/you/chatfuse/internal/ytchat"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err == nil {
		log.Printf("overlay: loaded .env")
	}

	var (
		versionFlag  bool
		httpAddr     string
		corsOrigins  string
		rateRPS      int
		rateBurst    int
		twChannel    string
		twNick       string
		twToken      string
		twTokenFile  string
		twTLS        bool
		ytURL        string
		kickChatroom int
		historyCap   int
		expirySecs   int
		fakeSource   bool
		badgeFile    string
		emoteFile    string
		debug        bool
	)

	flag.BoolVar(&versionFlag, "version", false, "Print build version and exit")
	flag.StringVar(&httpAddr, "http-addr", ":8787", "HTTP listen address")
	flag.StringVar(&corsOrigins, "cors-origins", "", "Comma-separated list of allowed CORS origins")
	flag.IntVar(&rateRPS, "rate-rps", 10, "Maximum HTTP requests per second per client")
	flag.IntVar(&rateBurst, "rate-burst", 30, "Burst size for the HTTP rate limiter")
	flag.StringVar(&twChannel, "twitch-channel", "", "Twitch channel to join (without #)")
	flag.StringVar(&twNick, "twitch-nick", "", "Twitch nickname to login as")
	flag.StringVar(&twToken, "twitch-token", "", "Twitch OAuth token (format: oauth:xxxxx)")
	flag.StringVar(&twTokenFile, "twitch-token-file", "", "Path to a file containing the Twitch OAuth token")
	flag.BoolVar(&twTLS, "twitch-tls", true, "Use TLS for the Twitch IRC connection")
	flag.StringVar(&ytURL, "youtube-url", "", "YouTube live/watch URL")
	flag.IntVar(&kickChatroom, "kick-chatroom", 0, "Kick chatroom ID to subscribe to")
	flag.IntVar(&historyCap, "history-cap", 0, "Session history capacity (messages)")
	flag.IntVar(&expirySecs, "expiry-secs", 0, "Overlay history auto-expiry in seconds (0 disables)")
	flag.BoolVar(&fakeSource, "fake", false, "Run the fake message generator instead of real platforms")
	flag.StringVar(&badgeFile, "badge-file", "", "Path to the badge catalog JSON")
	flag.StringVar(&emoteFile, "emote-file", "", "Path to the emote catalog JSON")
	flag.BoolVar(&debug, "debug", false, "Verbose per-event logging")
	flag.Parse()

	if versionFlag {
		fmt.Printf("overlay version: %s\n", version.String())
		os.Exit(0)
	}

	overrides := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		overrides[f.Name] = true
	})

	cfg := config.Load()
	if overrides["http-addr"] {
		cfg.HTTP.Addr = httpAddr
	}
	if overrides["cors-origins"] {
		cfg.HTTP.CORSOrigins = nil
		for _, o := range strings.Split(corsOrigins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.HTTP.CORSOrigins = append(cfg.HTTP.CORSOrigins, o)
			}
		}
	}
	if overrides["rate-rps"] {
		cfg.HTTP.RateLimitRPS = rateRPS
	}
	if overrides["rate-burst"] {
		cfg.HTTP.RateLimitBurst = rateBurst
	}
	if overrides["twitch-channel"] {
		cfg.Twitch.Channel = strings.TrimSpace(twChannel)
	}
	if overrides["twitch-nick"] {
		cfg.Twitch.Nick = strings.TrimSpace(twNick)
	}
	if overrides["twitch-token"] {
		cfg.Twitch.Token = strings.TrimSpace(twToken)
	}
	if overrides["twitch-token-file"] {
		cfg.Twitch.TokenFile = strings.TrimSpace(twTokenFile)
	}
	if overrides["twitch-tls"] {
		cfg.Twitch.TLS = twTLS
	}
	if overrides["twitch-channel"] || overrides["twitch-nick"] || overrides["twitch-token"] || overrides["twitch-token-file"] {
		cfg.Twitch.Enabled = cfg.Twitch.Channel != "" && cfg.Twitch.Nick != "" &&
			(cfg.Twitch.Token != "" || cfg.Twitch.TokenFile != "")
	}
	if overrides["youtube-url"] {
		cfg.YouTube.LiveURL = strings.TrimSpace(ytURL)
		cfg.YouTube.Enabled = cfg.YouTube.LiveURL != ""
	}
	if overrides["kick-chatroom"] {
		cfg.Kick.ChatroomID = kickChatroom
		cfg.Kick.Enabled = kickChatroom > 0
	}
	if overrides["history-cap"] && historyCap > 0 {
		cfg.History.Capacity = historyCap
	}
	if overrides["expiry-secs"] {
		cfg.History.ExpirySecs = expirySecs
	}
	if overrides["fake"] {
		cfg.Fake.Enabled = fakeSource
	}
	if overrides["badge-file"] {
		cfg.BadgeFile = strings.TrimSpace(badgeFile)
	}
	if overrides["emote-file"] {
		cfg.EmoteFile = strings.TrimSpace(emoteFile)
	}
	if overrides["debug"] {
		cfg.Debug = debug
	}

	log.Printf("%s", cfg.SummaryJSON())

	badgeCatalog := badges.Empty()
	if cfg.BadgeFile != "" {
		if c, err := badges.LoadFile(cfg.BadgeFile); err != nil {
			log.Printf("overlay: badge catalog: %v; continuing without badges", err)
		} else {
			badgeCatalog = c
			log.Printf("overlay: loaded %d badge entries", c.Len())
		}
	}
	emoteCatalog := emotes.Empty()
	if cfg.EmoteFile != "" {
		if c, err := emotes.LoadFile(cfg.EmoteFile); err != nil {
			log.Printf("overlay: emote catalog: %v; continuing without emotes", err)
		} else {
			emoteCatalog = c
			log.Printf("overlay: loaded %d emote tokens", c.Len())
		}
	}

	metrics := httpapi.NewMetrics()
	hb := hub.New(cfg.History.Capacity, hub.Hooks{
		OnSend: func(p core.Platform) { metrics.IncMessagesSent(p.Key()) },
		OnDrop: metrics.IncBroadcastDrops,
	})

	display := store.New(store.Options{
		Capacity: cfg.History.Capacity,
		Expiry:   cfg.Expiry(),
	})

	summary := cfg.Summary()
	api := httpapi.New(hb, metrics, httpapi.Options{
		Addr:           cfg.HTTP.Addr,
		CORSOrigins:    cfg.HTTP.CORSOrigins,
		RateLimitRPS:   cfg.HTTP.RateLimitRPS,
		RateLimitBurst: cfg.HTTP.RateLimitBurst,
		Info: func() map[string]any {
			return map[string]any{"config": summary}
		},
		Display: display,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("overlay: received %s, shutting down", sig)
		cancel()
	}()

	go func() {
		if err := api.Start(); err != nil {
			log.Fatalf("overlay: http api: %v", err)
		}
	}()

	makeHandler := func(p core.Platform) source.Handler {
		return func(ev source.RawEvent) {
			msg := normalize.Message(p, ev)
			decorate(&msg, ev, badgeCatalog, emoteCatalog)
			metrics.IncMessagesReceived(p.Key())
			if cfg.Debug {
				log.Printf("overlay: %s <%s> %s", p.Key(), msg.Username, msg.Text)
			}
			display.Add(msg)
			hb.PublishChat(msg)
		}
	}
	makeStatus := func(p core.Platform) source.StatusFunc {
		return func(s core.AdapterStatus) {
			if s == core.StatusReconnecting {
				metrics.IncAdapterReconnects(p.Key())
			}
			hb.PublishStatus(p, s)
		}
	}

	var handles []*source.Handle

	if cfg.Twitch.Enabled {
		onStatus := makeStatus(core.PlatformTwitch)
		client := twitchchat.New(twitchchat.Config{
			Channel:   cfg.Twitch.Channel,
			Nick:      cfg.Twitch.Nick,
			Token:     cfg.Twitch.Token,
			TokenFile: cfg.Twitch.TokenFile,
			UseTLS:    cfg.Twitch.TLS,
			Debug:     cfg.Debug,
		}, makeHandler(core.PlatformTwitch), onStatus)
		handles = append(handles, source.Start(ctx, "twitch", client, onStatus))
		log.Printf("overlay: twitch adapter started for #%s", cfg.Twitch.Channel)
	}

	if cfg.YouTube.Enabled {
		onStatus := makeStatus(core.PlatformYouTube)
		client := ytchat.New(ytchat.Config{LiveURL: cfg.YouTube.LiveURL},
			makeHandler(core.PlatformYouTube), onStatus)
		handles = append(handles, source.Start(ctx, "youtube", client, onStatus))
		log.Printf("overlay: youtube adapter started for %s", cfg.YouTube.LiveURL)
	}

	if cfg.Kick.Enabled {
		onStatus := makeStatus(core.PlatformKick)
		client := kickchat.New(kickchat.Config{
			ChatroomID: cfg.Kick.ChatroomID,
			Debug:      cfg.Debug,
		}, makeHandler(core.PlatformKick), onStatus)
		handles = append(handles, source.Start(ctx, "kick", client, onStatus))
		log.Printf("overlay: kick adapter started for chatroom %d", cfg.Kick.ChatroomID)
	}

	if cfg.Fake.Enabled {
		onStatus := func(s core.AdapterStatus) {
			for _, p := range core.Platforms() {
				hb.PublishStatus(p, s)
			}
		}
		fake := source.NewFake(source.FakeConfig{Interval: cfg.FakeInterval()},
			func(p core.Platform, ev source.RawEvent) { makeHandler(p)(ev) }, onStatus)
		handles = append(handles, source.Start(ctx, "fake", fake, onStatus))
		log.Printf("overlay: fake generator started")
	}

	if len(handles) == 0 {
		log.Printf("overlay: WARNING: no chat sources configured; serving empty stream (set CHATFUSE_TWITCH_*, CHATFUSE_YT_URL, CHATFUSE_KICK_CHATROOM_ID or CHATFUSE_FAKE=true)")
	}

	<-ctx.Done()

	// adapters first, so no publish races the hub teardown
	stopped := make(chan struct{})
	go func() {
		for _, h := range handles {
			h.Stop()
		}
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		log.Printf("overlay: adapters did not settle in time")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	if err := api.Shutdown(shutdownCtx); err != nil {
		log.Printf("overlay: http shutdown: %v", err)
	}
	cancelShutdown()

	hb.Close()
	log.Printf("overlay: shutdown complete")
}

// decorate attaches resolved badge art and emote segments to the message's
// raw payload when the catalogs know them. Unresolved identifiers stay as
// they are; the overlay renders them as plain text.
func decorate(msg *core.ChatMessage, ev source.RawEvent, badgeCatalog *badges.Catalog, emoteCatalog *emotes.Catalog) {
	if badgeCatalog.Len() > 0 && len(msg.Badges) > 0 {
		bctx := badges.Context{}
		if months, ok := ev.Context["months"].(int); ok {
			bctx.Months, bctx.HasMonths = months, true
		}
		if bits, ok := ev.Context["bits"].(int); ok {
			bctx.Bits, bctx.HasBits = bits, true
		}
		resolved := make([]map[string]string, 0, len(msg.Badges))
		for _, id := range msg.Badges {
			if r, ok := badgeCatalog.Resolve(msg.Platform, id, bctx); ok {
				resolved = append(resolved, map[string]string{"id": id, "ref": r.Ref, "title": r.Title})
			}
		}
		if len(resolved) > 0 {
			if msg.Raw == nil {
				msg.Raw = map[string]any{}
			}
			msg.Raw["badges"] = resolved
		}
	}

	if emoteCatalog.Len() > 0 {
		segs := emoteCatalog.Segments(msg.Text)
		hasEmote := false
		for _, s := range segs {
			if s.IsEmote() {
				hasEmote = true
				break
			}
		}
		if hasEmote {
			if msg.Raw == nil {
				msg.Raw = map[string]any{}
			}
			msg.Raw["segments"] = segs
		}
	}
}
