package httpapi

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/you/chatfuse/internal/core"
)

func newRequest(t *testing.T, headers map[string]string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return r
}

func TestParseStreamOptions(t *testing.T) {
	cases := []struct {
		name      string
		query     string
		platforms []core.Platform
		replay    int
		wantErr   bool
	}{
		{name: "empty", query: ""},
		{name: "single platform", query: "platforms=twitch", platforms: []core.Platform{core.PlatformTwitch}},
		{name: "mixed case list", query: "platforms=Kick,YOUTUBE", platforms: []core.Platform{core.PlatformKick, core.PlatformYouTube}},
		{name: "singular alias", query: "platform=twitch", platforms: []core.Platform{core.PlatformTwitch}},
		{name: "replay", query: "replay=25", replay: 25},
		{name: "replay clamped", query: "replay=100000", replay: maxReplay},
		{name: "unknown platform", query: "platforms=myspace", wantErr: true},
		{name: "negative replay", query: "replay=-1", wantErr: true},
		{name: "garbage replay", query: "replay=soon", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q, err := url.ParseQuery(tc.query)
			if err != nil {
				t.Fatal(err)
			}
			opts, err := parseStreamOptions(q)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(opts.Platforms) != len(tc.platforms) {
				t.Fatalf("platforms = %v, want %v", opts.Platforms, tc.platforms)
			}
			for i, p := range tc.platforms {
				if opts.Platforms[i] != p {
					t.Fatalf("platforms[%d] = %v, want %v", i, opts.Platforms[i], p)
				}
			}
			if opts.Replay != tc.replay {
				t.Fatalf("replay = %d, want %d", opts.Replay, tc.replay)
			}
		})
	}
}

func TestRemoteIPPrefersForwardedFor(t *testing.T) {
	r := newRequest(t, map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"})
	if got := remoteIP(r); got != "203.0.113.9" {
		t.Fatalf("ip = %q", got)
	}

	r = newRequest(t, nil)
	if got := remoteIP(r); got != "192.0.2.1" {
		t.Fatalf("ip = %q", got)
	}
}
