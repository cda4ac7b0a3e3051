// Package kickchat is the Kick platform adapter. Kick exposes chat over a
// Pusher-protocol WebSocket; the client subscribes to the chatroom channel
// and decodes ChatMessageEvent frames. Pusher wraps event payloads in a
// JSON-encoded string, so chat data is decoded in two steps.
package kickchat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"nhooyr.io/websocket"

	"github.com/you/chatfuse/internal/core"
	"github.com/you/chatfuse/internal/source"
)

const (
	// Kick's public Pusher application key.
	defaultURL = "wss://ws-us2.pusher.com/app/32cbd69e4b950bf97679?protocol=7&client=js&version=8.4.0-rc2&flash=false"

	chatMessageEvent = "App\\Events\\ChatMessageEvent"

	minRetryDelay = time.Second
	maxRetryDelay = 60 * time.Second
)

type Config struct {
	ChatroomID int
	// URL overrides the Pusher endpoint, for tests.
	URL   string
	Debug bool
}

type Client struct {
	cfg    Config
	handle source.Handler
	status source.StatusFunc
}

func New(cfg Config, h source.Handler, onStatus source.StatusFunc) *Client {
	return &Client{cfg: cfg, handle: h, status: onStatus}
}

// Run subscribes and reads until ctx is cancelled, reconnecting with
// capped exponential backoff on any transport failure.
func (c *Client) Run(ctx context.Context) error {
	if c.cfg.ChatroomID <= 0 {
		return errors.New("kickchat: chatroom id is required")
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
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return ctx.Err()
		}

		log.Printf("kickchat: disconnected: %v; reconnecting in %s", err, backoff)
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

func (c *Client) runOnce(ctx context.Context) error {
	endpoint := c.cfg.URL
	if endpoint == "" {
		endpoint = defaultURL
	}

	log.Printf("kickchat: connecting to chatroom %d", c.cfg.ChatroomID)
	conn, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	conn.SetReadLimit(1 << 20)

	subscribe := pusherFrame{
		Event: "pusher:subscribe",
		Data:  mustRaw(map[string]string{"auth": "", "channel": fmt.Sprintf("chatrooms.%d.v2", c.cfg.ChatroomID)}),
	}
	if err := writeJSON(ctx, conn, subscribe); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	drops := source.NewDropLogger("kick", time.Now(), c.cfg.Debug)
	subscribed := false

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var frame pusherFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			drops.Note(time.Now(), "bad-frame", string(data))
			continue
		}

		switch frame.Event {
		case "pusher:connection_established":
			// subscription confirmation is what marks us live
		case "pusher_internal:subscription_succeeded":
			if !subscribed {
				subscribed = true
				log.Printf("kickchat: subscribed to chatroom %d", c.cfg.ChatroomID)
				c.report(core.StatusConnected)
			}
		case "pusher:ping":
			pong := pusherFrame{Event: "pusher:pong", Data: mustRaw(map[string]any{})}
			if err := writeJSON(ctx, conn, pong); err != nil {
				return fmt.Errorf("pong: %w", err)
			}
		case "pusher:error":
			return fmt.Errorf("pusher error: %s", string(frame.Data))
		case chatMessageEvent:
			ev, err := parseChatEvent(frame.Data)
			if err != nil {
				drops.Note(time.Now(), "bad-chat-event", string(frame.Data))
				continue
			}
			if c.handle != nil {
				c.handle(ev)
			}
		}
	}
}

func (c *Client) report(s core.AdapterStatus) {
	if c.status != nil {
		c.status(s)
	}
}

type pusherFrame struct {
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
	Channel string          `json:"channel,omitempty"`
}

type chatPayload struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	ChatroomID int    `json:"chatroom_id"`
	Type       string `json:"type"`
	CreatedAt  string `json:"created_at"`
	Sender     struct {
		ID       int    `json:"id"`
		Username string `json:"username"`
		Slug     string `json:"slug"`
		Identity struct {
			Color  string `json:"color"`
			Badges []struct {
				Type  string `json:"type"`
				Text  string `json:"text"`
				Count int    `json:"count"`
			} `json:"badges"`
		} `json:"identity"`
	} `json:"sender"`
}

// parseChatEvent decodes a ChatMessageEvent payload. Pusher delivers the
// payload as a JSON string, but a bare object is accepted too.
func parseChatEvent(data json.RawMessage) (source.RawEvent, error) {
	raw := []byte(data)
	var inner string
	if err := json.Unmarshal(raw, &inner); err == nil {
		raw = []byte(inner)
	}

	var payload chatPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return source.RawEvent{}, fmt.Errorf("decode chat payload: %w", err)
	}
	if payload.Content == "" || payload.Sender.Username == "" {
		return source.RawEvent{}, errors.New("chat payload missing content or sender")
	}

	badges := []string{}
	ctx := map[string]any{}
	for _, b := range payload.Sender.Identity.Badges {
		if b.Type == "" {
			continue
		}
		id := b.Type
		if b.Count > 0 {
			id += "/" + strconv.Itoa(b.Count)
			if b.Type == "subscriber" {
				ctx["months"] = b.Count
			}
		}
		badges = append(badges, id)
	}
	if payload.ID != "" {
		ctx["id"] = payload.ID
	}
	if payload.CreatedAt != "" {
		ctx["created_at"] = payload.CreatedAt
	}

	return source.RawEvent{
		Username:    payload.Sender.Slug,
		DisplayName: payload.Sender.Username,
		Text:        payload.Content,
		Badges:      badges,
		Colour:      payload.Sender.Identity.Color,
		Context:     ctx,
	}, nil
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func mustRaw(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
