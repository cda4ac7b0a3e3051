// Package ytchat is the YouTube platform adapter. There is no push
// transport for live chat without credentials, so the client scrapes the
// innertube bootstrap page for an API key and continuation token, then
// polls get_live_chat at the server-suggested interval. Losing the
// continuation chain forces a full re-bootstrap.
package ytchat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/you/chatfuse/internal/core"
	"github.com/you/chatfuse/internal/source"
)

type Config struct {
	LiveURL string
}

type Client struct {
	cfg    Config
	handle source.Handler
	status source.StatusFunc
	http   *http.Client
}

func New(cfg Config, h source.Handler, onStatus source.StatusFunc) *Client {
	return &Client{
		cfg:    cfg,
		handle: h,
		status: onStatus,
		http:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) Run(ctx context.Context) error {
	liveURL := strings.TrimSpace(c.cfg.LiveURL)
	if liveURL == "" {
		return errors.New("ytchat: LiveURL is required")
	}
	if _, err := url.ParseRequestURI(liveURL); err != nil {
		return fmt.Errorf("ytchat: invalid LiveURL: %w", err)
	}

	backoff := time.Second
	const maxBackoff = 60 * time.Second

	var (
		apiKey        string
		clientVersion string
		continuation  string
		totalEvents   int
		lastLog       = time.Now()
	)

	c.report(core.StatusConnecting)
	connectedOnce := false

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if apiKey == "" || clientVersion == "" || continuation == "" {
			if connectedOnce {
				c.report(core.StatusReconnecting)
			}
			var err error
			apiKey, clientVersion, continuation, err = c.bootstrap(ctx, liveURL)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("ytchat: bootstrap failed: %v", err)
				if !sleepContext(ctx, backoff) {
					return ctx.Err()
				}
				backoff = nextBackoff(backoff, maxBackoff)
				continue
			}
			log.Printf("ytchat: bootstrap succeeded (version=%s)", clientVersion)
			backoff = time.Second
			connectedOnce = true
			c.report(core.StatusConnected)
		}

		events, nextContinuation, timeout, err := c.poll(ctx, apiKey, clientVersion, continuation)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("ytchat: poll error: %v", err)
			if !sleepContext(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff, maxBackoff)
			apiKey, clientVersion, continuation = "", "", ""
			continue
		}

		if c.handle != nil {
			for _, ev := range events {
				c.handle(ev)
			}
		}

		totalEvents += len(events)
		if time.Since(lastLog) >= 10*time.Second {
			log.Printf("ytchat: received %d messages (total %d)", len(events), totalEvents)
			lastLog = time.Now()
		}

		continuation = nextContinuation
		if continuation == "" {
			log.Printf("ytchat: missing continuation, re-bootstrap")
			apiKey, clientVersion, continuation = "", "", ""
		}

		if timeout <= 0 {
			timeout = 1500
		}
		if !sleepContext(ctx, time.Duration(timeout)*time.Millisecond) {
			return ctx.Err()
		}
	}
}

func (c *Client) report(s core.AdapterStatus) {
	if c.status != nil {
		c.status(s)
	}
}

func (c *Client) bootstrap(ctx context.Context, liveURL string) (apiKey, clientVersion, continuation string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, liveURL, nil)
	if err != nil {
		return "", "", "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return "", "", "", err
	}
	text := string(body)

	apiKey = extractString(text, `"INNERTUBE_API_KEY":"`)
	clientVersion = extractString(text, `"INNERTUBE_CLIENT_VERSION":"`)
	if apiKey == "" || clientVersion == "" {
		return "", "", "", errors.New("ytchat: could not locate api key or client version")
	}

	var initJSON string
	markers := []string{
		`ytInitialData"] = `,
		`ytInitialData" = `,
		`ytInitialData":`,
		`ytInitialData = `,
		`window["ytInitialData"] = `,
	}
	for _, marker := range markers {
		initJSON = extractJSONObject(text, marker)
		if initJSON != "" {
			break
		}
	}
	if initJSON == "" {
		return "", "", "", errors.New("ytchat: could not locate initial data")
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(initJSON), &data); err != nil {
		return "", "", "", fmt.Errorf("ytchat: parse initial data: %w", err)
	}

	continuation = findInitialContinuation(data)
	if continuation == "" {
		return "", "", "", errors.New("ytchat: continuation not found in initial data")
	}
	return apiKey, clientVersion, continuation, nil
}

const userAgent = "Mozilla/5.0 (compatible; chatfuse-overlay/1.0)"

func (c *Client) poll(ctx context.Context, apiKey, clientVersion, continuation string) ([]source.RawEvent, string, int, error) {
	endpoint := fmt.Sprintf("https://www.youtube.com/youtubei/v1/live_chat/get_live_chat?key=%s", url.QueryEscape(apiKey))

	payload := map[string]any{
		"context": map[string]any{
			"client": map[string]any{
				"clientName":    "WEB",
				"clientVersion": clientVersion,
				"hl":            "en",
			},
		},
		"continuation": continuation,
	}

	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, continuation, 1500, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return nil, continuation, 1500, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, continuation, 1500, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return nil, continuation, 1500, fmt.Errorf("ytchat: poll status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, continuation, 1500, err
	}

	var payloadResp map[string]any
	if err := json.Unmarshal(body, &payloadResp); err != nil {
		return nil, continuation, 1500, fmt.Errorf("ytchat: decode poll response: %w", err)
	}

	nextContinuation, timeout := extractContinuation(payloadResp)
	events := extractEvents(payloadResp)
	return events, nextContinuation, timeout, nil
}

func nextBackoff(cur, max time.Duration) time.Duration {
	if cur >= max {
		return max
	}
	cur *= 2
	if cur > max {
		return max
	}
	return cur
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Millisecond
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
