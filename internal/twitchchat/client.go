// Package twitchchat is the Twitch platform adapter: a minimal IRC-over-TCP
// client with the tags capability, translating PRIVMSG lines into raw
// adapter events.
package twitchchat

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/you/chatfuse/internal/core"
	"github.com/you/chatfuse/internal/source"
)

type Config struct {
	Channel   string
	Nick      string
	Token     string
	TokenFile string
	UseTLS    bool
	// Addr overrides the IRC endpoint, for tests.
	Addr  string
	Debug bool
}

type Client struct {
	cfg    Config
	handle source.Handler
	status source.StatusFunc

	mu     sync.RWMutex
	token  string
	reload chan struct{}
}

const (
	minRetryDelay = time.Second
	maxRetryDelay = 60 * time.Second
)

func New(cfg Config, h source.Handler, onStatus source.StatusFunc) *Client {
	return &Client{
		cfg:    cfg,
		handle: h,
		status: onStatus,
		token:  normalizeToken(cfg.Token),
		reload: make(chan struct{}, 1),
	}
}

// Run connects and reads until ctx is cancelled, reconnecting with capped
// exponential backoff on transport failure. The backoff floor doubles as
// the minimum inter-attempt delay, so a flapping server never busy-loops us.
func (c *Client) Run(ctx context.Context) error {
	if strings.TrimSpace(c.cfg.Channel) == "" || strings.TrimSpace(c.cfg.Nick) == "" {
		return errors.New("twitchchat: channel and nick are required")
	}

	if c.cfg.TokenFile != "" {
		if err := c.watchTokenFile(ctx); err != nil {
			log.Printf("twitchchat: token file watch: %v", err)
		}
	}

	c.report(core.StatusConnecting)
	backoff := minRetryDelay
	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt > 0 {
			c.report(core.StatusReconnecting)
		}
		attempt++

		err := c.runOnce(ctx)
		if err == nil || errors.Is(err, errReload) {
			backoff = minRetryDelay
			continue
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return ctx.Err()
		}

		log.Printf("twitchchat: disconnected: %v; reconnecting in %s", err, backoff)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if backoff < maxRetryDelay {
			backoff *= 2
			if backoff > maxRetryDelay {
				backoff = maxRetryDelay
			}
		}
	}
}

var errReload = errors.New("twitchchat: token reloaded")

func (c *Client) runOnce(ctx context.Context) error {
	token := c.currentToken()
	if token == "" {
		return errors.New("twitchchat: token is required")
	}

	host := "irc.chat.twitch.tv"
	addr := host + ":6667"
	if c.cfg.UseTLS {
		addr = host + ":6697"
	}
	if strings.TrimSpace(c.cfg.Addr) != "" {
		addr = strings.TrimSpace(c.cfg.Addr)
	}

	log.Printf("twitchchat: connecting to %s (tls=%v)", addr, c.cfg.UseTLS)

	d := &net.Dialer{Timeout: 10 * time.Second}
	var conn net.Conn
	var err error
	if c.cfg.UseTLS {
		conn, err = tls.DialWithDialer(d, "tcp", addr, &tls.Config{ServerName: host})
	} else {
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))

	send := func(s string) error {
		_, err := rw.WriteString(s + "\r\n")
		if err != nil {
			return err
		}
		return rw.Flush()
	}

	// closer goroutine unblocks the reader on cancel or token reload
	done := make(chan struct{})
	defer close(done)
	reloaded := false
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-c.reload:
			reloaded = true
			_ = conn.Close()
		case <-done:
		}
	}()

	if err := send("PASS " + token); err != nil {
		return fmt.Errorf("send PASS: %w", err)
	}
	if err := send("NICK " + c.cfg.Nick); err != nil {
		return fmt.Errorf("send NICK: %w", err)
	}
	if err := send("CAP REQ :twitch.tv/tags twitch.tv/commands"); err != nil {
		return fmt.Errorf("send CAP REQ: %w", err)
	}
	if err := send("JOIN #" + c.cfg.Channel); err != nil {
		return fmt.Errorf("send JOIN: %w", err)
	}
	log.Printf("twitchchat: joined #%s as %s", c.cfg.Channel, c.cfg.Nick)
	c.report(core.StatusConnected)

	reader := rw.Reader
	drops := source.NewDropLogger("twitch", time.Now(), c.cfg.Debug)
	var (
		readDeadline = 2 * time.Minute
		nextPing     = time.Now().Add(4 * time.Minute)
	)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
			return fmt.Errorf("set deadline: %w", err)
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if reloaded {
				return errReload
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				now := time.Now()
				if !now.Before(nextPing) {
					if err := send("PING :keepalive"); err != nil {
						return fmt.Errorf("send PING: %w", err)
					}
					nextPing = now.Add(4 * time.Minute)
				}
				continue
			}
			return fmt.Errorf("read: %w", err)
		}
		nextPing = time.Now().Add(4 * time.Minute)

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "PING ") {
			if err := send("PONG " + strings.TrimPrefix(line, "PING ")); err != nil {
				return fmt.Errorf("send PONG: %w", err)
			}
			continue
		}

		if strings.Contains(line, " RECONNECT") {
			return errors.New("server requested reconnect")
		}

		c.processLine(line, drops)
	}
}

// processLine shields the read loop: one bad line is dropped and logged,
// never fatal to the connection.
func (c *Client) processLine(line string, drops *source.DropLogger) {
	defer func() {
		if r := recover(); r != nil {
			drops.Note(time.Now(), "panic", line)
		}
	}()

	ev, ok, malformed := ParseLine(line, c.cfg.Channel, c.cfg.Nick)
	if malformed {
		drops.Note(time.Now(), "bad-privmsg", line)
		return
	}
	if !ok {
		return
	}
	if c.handle != nil {
		c.handle(ev)
	}
}

func (c *Client) report(s core.AdapterStatus) {
	if c.status != nil {
		c.status(s)
	}
}

func (c *Client) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// ParseLine translates one IRC line into a raw adapter event. ok is false
// for lines that are not channel chat (and for the client's own echoes);
// malformed marks PRIVMSG lines that could not be decoded.
func ParseLine(line, channel, nick string) (ev source.RawEvent, ok bool, malformed bool) {
	rest := line
	tags := map[string]string{}

	if strings.HasPrefix(rest, "@") {
		idx := strings.Index(rest, " ")
		if idx == -1 {
			return source.RawEvent{}, false, true
		}
		tagPart := rest[1:idx]
		rest = strings.TrimSpace(rest[idx+1:])
		for _, kv := range strings.Split(tagPart, ";") {
			if kv == "" {
				continue
			}
			parts := strings.SplitN(kv, "=", 2)
			val := ""
			if len(parts) == 2 {
				val = unescapeIRC(parts[1])
			}
			tags[parts[0]] = val
		}
	}

	if !strings.HasPrefix(rest, ":") {
		return source.RawEvent{}, false, false
	}
	rest = rest[1:]

	idx := strings.Index(rest, " ")
	if idx == -1 {
		return source.RawEvent{}, false, false
	}
	prefix := rest[:idx]
	rest = strings.TrimSpace(rest[idx+1:])

	if !strings.HasPrefix(strings.ToUpper(rest), "PRIVMSG #") {
		return source.RawEvent{}, false, false
	}
	rest = rest[len("PRIVMSG #"):]

	idx = strings.Index(rest, " ")
	if idx == -1 {
		return source.RawEvent{}, false, true
	}
	chanName := rest[:idx]
	rest = strings.TrimSpace(rest[idx+1:])
	if !strings.EqualFold(chanName, channel) {
		return source.RawEvent{}, false, false
	}

	if !strings.HasPrefix(rest, ":") {
		return source.RawEvent{}, false, true
	}
	text := rest[1:]

	user := extractUser(prefix)
	if user == "" {
		return source.RawEvent{}, false, true
	}
	// the server echoes our own sends back; those never reach the handler
	if strings.EqualFold(user, nick) {
		return source.RawEvent{}, false, false
	}

	ctx := map[string]any{"tags": tags}
	if months, ok := badgeInfoMonths(tags["badge-info"]); ok {
		ctx["months"] = months
	}
	if bitsStr := tags["bits"]; bitsStr != "" {
		if bits, err := strconv.Atoi(bitsStr); err == nil {
			ctx["bits"] = bits
		}
	}

	return source.RawEvent{
		Username:    user,
		DisplayName: tags["display-name"],
		Text:        text,
		Badges:      splitBadges(tags["badges"]),
		Colour:      tags["color"],
		Context:     ctx,
	}, true, false
}

// badgeInfoMonths extracts the cumulative subscription months from the
// badge-info tag ("subscriber/23").
func badgeInfoMonths(info string) (int, bool) {
	for _, part := range strings.Split(info, ",") {
		if !strings.HasPrefix(part, "subscriber/") && !strings.HasPrefix(part, "founder/") {
			continue
		}
		raw := part[strings.IndexByte(part, '/')+1:]
		if months, err := strconv.Atoi(raw); err == nil {
			return months, true
		}
	}
	return 0, false
}

func extractUser(prefix string) string {
	if strings.HasPrefix(prefix, ":") {
		prefix = prefix[1:]
	}
	if idx := strings.Index(prefix, "!"); idx != -1 {
		return prefix[:idx]
	}
	return prefix
}

func unescapeIRC(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 's':
			b.WriteByte(' ')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case ':':
			b.WriteByte(';')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func splitBadges(s string) []string {
	out := []string{}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func normalizeToken(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(token), "oauth:") {
		token = "oauth:" + token
	}
	return token
}
