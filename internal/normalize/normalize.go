// Package normalize turns platform-native raw events into the canonical
// ChatMessage. Total ordering is established by receipt order at the hub,
// never by source-reported time, so the stamp here is always local.
package normalize

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/you/chatfuse/internal/core"
	"github.com/you/chatfuse/internal/source"
)

// Message builds a canonical ChatMessage from one raw event. It never
// mutates ev: slices and maps are copied, not aliased. Every call stamps
// a fresh id and the server-side receipt time.
func Message(platform core.Platform, ev source.RawEvent) core.ChatMessage {
	username := ev.DisplayName
	if username == "" {
		username = ev.Username
	}
	if username == "" {
		username = fmt.Sprintf("%s-viewer", platform.Key())
	}

	badges := make([]string, len(ev.Badges))
	copy(badges, ev.Badges)

	var colour *string
	if ev.Colour != "" {
		c := ev.Colour
		colour = &c
	}

	var raw map[string]any
	if len(ev.Context) > 0 {
		raw = make(map[string]any, len(ev.Context))
		for k, v := range ev.Context {
			raw[k] = v
		}
	}

	return core.ChatMessage{
		ID:       uuid.NewString(),
		Ts:       time.Now().UTC(),
		Platform: platform,
		Username: username,
		Text:     ev.Text,
		Badges:   badges,
		Colour:   colour,
		Raw:      raw,
	}
}
