package kickchat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/you/chatfuse/internal/core"
	"github.com/you/chatfuse/internal/source"
)

const samplePayload = `{
	"id": "msg-1",
	"chatroom_id": 12345,
	"content": "hello kick",
	"type": "message",
	"created_at": "2026-08-31T12:00:00+00:00",
	"sender": {
		"id": 99,
		"username": "SomeViewer",
		"slug": "someviewer",
		"identity": {
			"color": "#75FD46",
			"badges": [
				{"type": "moderator", "text": "Moderator"},
				{"type": "subscriber", "text": "Subscriber", "count": 7}
			]
		}
	}
}`

func TestParseChatEventStringWrapped(t *testing.T) {
	// Pusher double-encodes: the data field is a JSON string holding JSON.
	wrapped, err := json.Marshal(samplePayload)
	if err != nil {
		t.Fatal(err)
	}

	ev, err := parseChatEvent(wrapped)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Username != "someviewer" || ev.DisplayName != "SomeViewer" {
		t.Fatalf("sender = %q / %q", ev.Username, ev.DisplayName)
	}
	if ev.Text != "hello kick" {
		t.Fatalf("text = %q", ev.Text)
	}
	if ev.Colour != "#75FD46" {
		t.Fatalf("colour = %q", ev.Colour)
	}
	if want := []string{"moderator", "subscriber/7"}; !reflect.DeepEqual(ev.Badges, want) {
		t.Fatalf("badges = %v, want %v", ev.Badges, want)
	}
	if months, _ := ev.Context["months"].(int); months != 7 {
		t.Fatalf("months = %v", ev.Context["months"])
	}
	if ev.Context["id"] != "msg-1" {
		t.Fatalf("id = %v", ev.Context["id"])
	}
}

func TestParseChatEventBareObject(t *testing.T) {
	ev, err := parseChatEvent(json.RawMessage(samplePayload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Text != "hello kick" {
		t.Fatalf("text = %q", ev.Text)
	}
}

func TestParseChatEventRejectsIncomplete(t *testing.T) {
	cases := []string{
		`{"content": "", "sender": {"username": "x"}}`,
		`{"content": "hi", "sender": {"username": ""}}`,
		`not json at all`,
	}
	for _, raw := range cases {
		if _, err := parseChatEvent(json.RawMessage(raw)); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

// fake Pusher endpoint covering subscribe and delivery through the read
// loop, including a bad chat event ahead of the valid one.
func TestRunSubscribesAndDelivers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		ctx := r.Context()

		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var frame pusherFrame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Event != "pusher:subscribe" {
			return
		}
		var sub struct {
			Channel string `json:"channel"`
		}
		if err := json.Unmarshal(frame.Data, &sub); err != nil || sub.Channel != "chatrooms.12345.v2" {
			return
		}

		ok := pusherFrame{Event: "pusher_internal:subscription_succeeded", Data: json.RawMessage(`"{}"`), Channel: sub.Channel}
		okData, _ := json.Marshal(ok)
		if err := conn.Write(ctx, websocket.MessageText, okData); err != nil {
			return
		}

		// an undecodable chat event first; the client must drop it and keep reading
		bad := pusherFrame{Event: chatMessageEvent, Data: json.RawMessage(`{"content":"","sender":{"username":""}}`), Channel: sub.Channel}
		badData, _ := json.Marshal(bad)
		if err := conn.Write(ctx, websocket.MessageText, badData); err != nil {
			return
		}

		wrapped, _ := json.Marshal(samplePayload)
		chat := pusherFrame{Event: chatMessageEvent, Data: wrapped, Channel: sub.Channel}
		chatData, _ := json.Marshal(chat)
		if err := conn.Write(ctx, websocket.MessageText, chatData); err != nil {
			return
		}

		// hold the connection open until the client hangs up
		_, _, _ = conn.Read(ctx)
	}))
	defer srv.Close()

	events := make(chan source.RawEvent, 1)
	statuses := make(chan core.AdapterStatus, 8)
	c := New(Config{
		ChatroomID: 12345,
		URL:        "ws" + strings.TrimPrefix(srv.URL, "http"),
	}, func(ev source.RawEvent) {
		select {
		case events <- ev:
		default:
		}
	}, func(s core.AdapterStatus) {
		select {
		case statuses <- s:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- c.Run(ctx) }()

	select {
	case ev := <-events:
		if ev.Text != "hello kick" || ev.Username != "someviewer" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event delivered")
	}

	cancel()
	select {
	case err := <-runDone:
		if err != context.Canceled {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not settle after cancel")
	}

	seen := map[core.AdapterStatus]bool{}
	for {
		select {
		case s := <-statuses:
			seen[s] = true
			continue
		default:
		}
		break
	}
	if !seen[core.StatusConnecting] || !seen[core.StatusConnected] {
		t.Fatalf("status transitions missing: %v", seen)
	}
}

func TestRunRequiresChatroom(t *testing.T) {
	c := New(Config{}, nil, nil)
	if err := c.Run(context.Background()); err == nil {
		t.Fatal("expected error without chatroom id")
	}
}
