package ytchat

import (
	"reflect"
	"testing"
)

func chatRenderer(id, author, text string) map[string]any {
	return map[string]any{
		"id":            id,
		"timestampUsec": "1700000000000000",
		"authorName":    map[string]any{"simpleText": author},
		"message":       map[string]any{"simpleText": text},
	}
}

func TestExtractContinuationAndTimeout(t *testing.T) {
	payload := map[string]any{
		"continuationContents": map[string]any{
			"liveChatContinuation": map[string]any{
				"continuations": []any{
					map[string]any{
						"timedContinuationData": map[string]any{
							"continuation": "abc123",
							"timeoutMs":    float64(2500),
						},
					},
				},
			},
		},
	}

	cont, timeout := extractContinuation(payload)
	if cont != "abc123" {
		t.Fatalf("expected continuation abc123, got %q", cont)
	}
	if timeout != 2500 {
		t.Fatalf("expected timeout 2500, got %d", timeout)
	}
}

func TestExtractContinuationWithoutTimeout(t *testing.T) {
	payload := map[string]any{
		"continuationContents": map[string]any{
			"liveChatContinuation": map[string]any{
				"continuations": []any{
					map[string]any{
						"timedContinuationData": map[string]any{"continuation": "def456"},
					},
				},
			},
		},
	}

	cont, timeout := extractContinuation(payload)
	if cont != "def456" {
		t.Fatalf("expected continuation def456, got %q", cont)
	}
	if timeout != 0 {
		t.Fatalf("expected no timeout, got %d", timeout)
	}
}

func TestExtractEventsSkipsNonChatActions(t *testing.T) {
	payload := map[string]any{
		"actions": []any{
			map[string]any{
				"addChatItemAction": map[string]any{
					"item": map[string]any{
						"liveChatTextMessageRenderer": chatRenderer("chat-1", "User1", "Hello world"),
					},
				},
			},
			map[string]any{
				"addChatItemAction": map[string]any{
					"item": map[string]any{
						"liveChatPaidMessageRenderer": map[string]any{"id": "nonchat-1"},
					},
				},
			},
			map[string]any{
				"appendContinuationItemsAction": map[string]any{
					"continuationItems": []any{
						map[string]any{
							"liveChatTextMessageRenderer": chatRenderer("chat-2", "User2", "Second line"),
						},
					},
				},
			},
		},
	}

	events := extractEvents(payload)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Username != "User1" || events[0].Text != "Hello world" {
		t.Fatalf("unexpected first event %+v", events[0])
	}
	if events[0].Context["id"] != "chat-1" {
		t.Fatalf("expected platform id in context, got %#v", events[0].Context)
	}
	if events[1].Username != "User2" {
		t.Fatalf("unexpected second event %+v", events[1])
	}
}

func TestBuildEventRequiresText(t *testing.T) {
	renderer := map[string]any{
		"id":         "empty",
		"authorName": map[string]any{"simpleText": "Someone"},
	}
	if _, ok := buildEvent(renderer); ok {
		t.Fatalf("expected build to fail without message text")
	}
}

func TestBuildEventJoinsMessageRuns(t *testing.T) {
	renderer := map[string]any{
		"id":         "runs-1",
		"authorName": map[string]any{"simpleText": "Runner"},
		"message": map[string]any{
			"runs": []any{
				map[string]any{"text": "part one "},
				map[string]any{"emoji": map[string]any{"emojiId": "ignored"}},
				map[string]any{"text": "part two"},
			},
		},
	}
	ev, ok := buildEvent(renderer)
	if !ok {
		t.Fatalf("expected build to succeed")
	}
	if ev.Text != "part one part two" {
		t.Fatalf("text = %q", ev.Text)
	}
}

func TestAuthorBadges(t *testing.T) {
	renderer := map[string]any{
		"authorBadges": []any{
			map[string]any{
				"liveChatAuthorBadgeRenderer": map[string]any{
					"icon": map[string]any{"iconType": "MODERATOR"},
				},
			},
			map[string]any{
				"liveChatAuthorBadgeRenderer": map[string]any{
					"customThumbnail": map[string]any{"thumbnails": []any{}},
					"tooltip":         "Member (12 months)",
				},
			},
		},
	}

	got := authorBadges(renderer)
	want := []string{"moderator", "member"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("badges = %v, want %v", got, want)
	}

	if got := authorBadges(map[string]any{}); len(got) != 0 {
		t.Fatalf("expected no badges, got %v", got)
	}
}

func TestFindInitialContinuationPrefersLiveChat(t *testing.T) {
	data := map[string]any{
		"comments": map[string]any{
			"continuations": []any{
				map[string]any{
					"reloadContinuationData": map[string]any{"continuation": "comment-cont"},
				},
			},
		},
		"contents": map[string]any{
			"liveChatRenderer": map[string]any{
				"continuations": []any{
					map[string]any{
						"invalidationContinuationData": map[string]any{"continuation": "chat-cont"},
					},
				},
			},
		},
	}

	if got := findInitialContinuation(data); got != "chat-cont" {
		t.Fatalf("continuation = %q", got)
	}
}

func TestExtractHelpers(t *testing.T) {
	page := `junk "INNERTUBE_API_KEY":"key-1","INNERTUBE_CLIENT_VERSION":"2.2026" more
	window["ytInitialData"] = {"a":{"b":1}}; done`

	if got := extractString(page, `"INNERTUBE_API_KEY":"`); got != "key-1" {
		t.Fatalf("api key = %q", got)
	}
	if got := extractString(page, `"INNERTUBE_CLIENT_VERSION":"`); got != "2.2026" {
		t.Fatalf("client version = %q", got)
	}
	if got := extractJSONObject(page, `ytInitialData"] = `); got != `{"a":{"b":1}}` {
		t.Fatalf("initial data = %q", got)
	}
	if got := extractJSONObject(page, `missing marker`); got != "" {
		t.Fatalf("expected empty extraction, got %q", got)
	}
}
