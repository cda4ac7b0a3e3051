package httpapi

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/you/chatfuse/internal/core"
	"github.com/you/chatfuse/internal/hub"
)

// maxReplay caps the history a single viewer can request.
const maxReplay = 500

// parseStreamOptions reads the viewer's platform filter and replay request
// from the query string. Unknown platform keys are an error; replay is
// opt-in and clamped.
func parseStreamOptions(q url.Values) (hub.SubscribeOptions, error) {
	var opts hub.SubscribeOptions

	raw := strings.TrimSpace(q.Get("platforms"))
	if raw == "" {
		raw = strings.TrimSpace(q.Get("platform"))
	}
	if raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			p, ok := platformFromKey(part)
			if !ok {
				return hub.SubscribeOptions{}, fmt.Errorf("unknown platform %q", part)
			}
			opts.Platforms = append(opts.Platforms, p)
		}
	}

	if raw := strings.TrimSpace(q.Get("replay")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return hub.SubscribeOptions{}, fmt.Errorf("invalid replay %q", raw)
		}
		if n > maxReplay {
			n = maxReplay
		}
		opts.Replay = n
	}

	return opts, nil
}

func platformFromKey(key string) (core.Platform, bool) {
	key = strings.ToLower(key)
	for _, p := range core.Platforms() {
		if p.Key() == key {
			return p, true
		}
	}
	return "", false
}
