package ytchat

import (
	"strings"

	"github.com/you/chatfuse/internal/source"
)

// extractContinuation walks the poll response for the next continuation
// token and the server-suggested poll timeout in milliseconds.
func extractContinuation(payload map[string]any) (string, int) {
	cont := ""
	timeout := 0

	var walk func(any)
	walk = func(v any) {
		switch val := v.(type) {
		case map[string]any:
			if cont == "" {
				if s, ok := val["continuation"].(string); ok && s != "" {
					cont = s
				}
				if cmd := digMap(val, "continuationEndpoint", "continuationCommand"); cmd != nil {
					if s, ok := cmd["token"].(string); ok && s != "" {
						cont = s
					}
				}
				if cmd := digMap(val, "liveChatContinuationEndpoint", "continuationCommand"); cmd != nil {
					if s, ok := cmd["token"].(string); ok && s != "" {
						cont = s
					}
				}
			}
			if timeout == 0 {
				if tm, ok := val["timeoutMs"].(float64); ok && tm > 0 {
					timeout = int(tm)
				}
			}
			for _, child := range val {
				walk(child)
			}
		case []any:
			for _, child := range val {
				walk(child)
			}
		}
	}

	walk(payload)
	return cont, timeout
}

// extractEvents pulls every text chat renderer out of the poll response.
// Unknown action shapes are skipped, never fatal.
func extractEvents(payload map[string]any) []source.RawEvent {
	var events []source.RawEvent
	emit := func(renderer map[string]any) {
		if ev, ok := buildEvent(renderer); ok {
			events = append(events, ev)
		}
	}
	for _, action := range gatherActions(payload) {
		if renderer := digMap(action, "addChatItemAction", "item", "liveChatTextMessageRenderer"); renderer != nil {
			emit(renderer)
		}
		if appendAction := digMap(action, "appendContinuationItemsAction"); appendAction != nil {
			items, ok := appendAction["continuationItems"].([]any)
			if !ok {
				continue
			}
			for _, item := range items {
				itemMap, ok := item.(map[string]any)
				if !ok {
					continue
				}
				if renderer, ok := itemMap["liveChatTextMessageRenderer"].(map[string]any); ok {
					emit(renderer)
				}
				if renderer := digMap(itemMap, "addChatItemAction", "item", "liveChatTextMessageRenderer"); renderer != nil {
					emit(renderer)
				}
			}
		}
	}
	return events
}

func gatherActions(payload map[string]any) []map[string]any {
	var out []map[string]any
	collect := func(arr []any) {
		for _, item := range arr {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
	}
	if arr, ok := payload["actions"].([]any); ok {
		collect(arr)
	}
	if arr, ok := payload["onResponseReceivedActions"].([]any); ok {
		collect(arr)
	}
	if lc := digMap(payload, "continuationContents", "liveChatContinuation"); lc != nil {
		if arr, ok := lc["actions"].([]any); ok {
			collect(arr)
		}
	}
	return out
}

func buildEvent(renderer map[string]any) (source.RawEvent, bool) {
	text := textField(renderer, "message")
	if text == "" {
		return source.RawEvent{}, false
	}
	ev := source.RawEvent{
		Username: textField(renderer, "authorName"),
		Text:     text,
		Badges:   authorBadges(renderer),
		Context:  map[string]any{},
	}
	if id, ok := renderer["id"].(string); ok && id != "" {
		ev.Context["id"] = id
	}
	if usec, ok := renderer["timestampUsec"].(string); ok && usec != "" {
		ev.Context["timestampUsec"] = usec
	}
	return ev, true
}

// authorBadges lowers the badge icon types into platform badge
// identifiers ("moderator", "member", "owner", "verified").
func authorBadges(renderer map[string]any) []string {
	out := []string{}
	arr, ok := renderer["authorBadges"].([]any)
	if !ok {
		return out
	}
	for _, item := range arr {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		badge := digMap(m, "liveChatAuthorBadgeRenderer")
		if badge == nil {
			continue
		}
		if icon := digMap(badge, "icon"); icon != nil {
			if kind, ok := icon["iconType"].(string); ok && kind != "" {
				out = append(out, strings.ToLower(kind))
				continue
			}
		}
		// sponsor badges carry a custom thumbnail instead of an icon type
		if digMap(badge, "customThumbnail") != nil {
			out = append(out, "member")
		}
	}
	return out
}

func textField(m map[string]any, key string) string {
	if nested, ok := m[key].(map[string]any); ok {
		if s, ok := nested["simpleText"].(string); ok {
			return s
		}
	}
	return runsField(m, key)
}

func runsField(m map[string]any, key string) string {
	nested, ok := m[key].(map[string]any)
	if !ok {
		return ""
	}
	runs, ok := nested["runs"].([]any)
	if !ok {
		return ""
	}
	var builder strings.Builder
	for _, run := range runs {
		if part, ok := run.(map[string]any); ok {
			if text, ok := part["text"].(string); ok {
				builder.WriteString(text)
			}
		}
	}
	return builder.String()
}

func extractJSONObject(text, marker string) string {
	idx := strings.Index(text, marker)
	if idx == -1 {
		return ""
	}
	start := idx + len(marker)
	for start < len(text) && (text[start] == ' ' || text[start] == '\n' || text[start] == '\r' || text[start] == '\t') {
		start++
	}
	if start >= len(text) || text[start] != '{' {
		return ""
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

func extractString(text, marker string) string {
	idx := strings.Index(text, marker)
	if idx == -1 {
		return ""
	}
	start := idx + len(marker)
	end := strings.Index(text[start:], "\"")
	if end == -1 {
		return ""
	}
	return text[start : start+end]
}

func digMap(m map[string]any, keys ...string) map[string]any {
	current := m
	for _, key := range keys {
		next, ok := current[key].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return current
}

// findInitialContinuation scans the bootstrap page's initial data for the
// live chat continuation token, preferring nodes under livechat-flavoured
// keys so an unrelated comment-section continuation is never picked up.
func findInitialContinuation(data map[string]any) string {
	type queueItem struct {
		value      any
		inLiveChat bool
	}

	queue := []queueItem{{value: data}}
	for len(queue) > 0 {
		var item queueItem
		item, queue = queue[0], queue[1:]
		switch v := item.value.(type) {
		case map[string]any:
			currentLiveChat := item.inLiveChat || mapHasLiveChatKey(v)
			if currentLiveChat {
				if cont := continuationFromNode(v); cont != "" {
					return cont
				}
			}
			for key, child := range v {
				queue = append(queue, queueItem{value: child, inLiveChat: currentLiveChat || isLiveChatKey(key)})
			}
		case []any:
			for _, child := range v {
				queue = append(queue, queueItem{value: child, inLiveChat: item.inLiveChat})
			}
		}
	}
	return ""
}

func isLiveChatKey(key string) bool {
	return strings.Contains(strings.ToLower(key), "livechat")
}

func mapHasLiveChatKey(m map[string]any) bool {
	for key := range m {
		if isLiveChatKey(key) {
			return true
		}
	}
	return false
}

func continuationFromNode(node map[string]any) string {
	if arr, ok := node["continuations"].([]any); ok {
		for _, elem := range arr {
			m, ok := elem.(map[string]any)
			if !ok {
				continue
			}
			for _, key := range []string{"invalidationContinuationData", "timedContinuationData", "reloadContinuationData"} {
				if next := digMap(m, key); next != nil {
					if s, ok := next["continuation"].(string); ok && s != "" {
						return s
					}
				}
			}
		}
	}
	if endpoint := digMap(node, "continuationEndpoint", "continuationCommand"); endpoint != nil {
		if s, ok := endpoint["token"].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
