package badges

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/you/chatfuse/internal/core"
)

func subTierCatalog(tiers ...int) *Catalog {
	var entries []Entry
	for _, tier := range tiers {
		entries = append(entries, Entry{
			Platform: "Twitch",
			Set:      "subscriber",
			Tier:     tier,
			Ref:      refFor("sub", tier),
			Title:    "Subscriber",
		})
	}
	return NewCatalog(entries)
}

func refFor(set string, tier int) string {
	return fmt.Sprintf("https://cdn.test/%s/%d.png", set, tier)
}

func TestSubscriptionTierFallback(t *testing.T) {
	c := NewCatalog([]Entry{
		{Platform: "Twitch", Set: "subscriber", Tier: 1, Ref: "t1", Title: "Sub 1"},
		{Platform: "Twitch", Set: "subscriber", Tier: 3, Ref: "t3", Title: "Sub 3"},
		{Platform: "Twitch", Set: "subscriber", Tier: 6, Ref: "t6", Title: "Sub 6"},
		{Platform: "Twitch", Set: "subscriber", Tier: 12, Ref: "t12", Title: "Sub 12"},
		{Platform: "Twitch", Set: "subscriber", Tier: 24, Ref: "t24", Title: "Sub 24"},
	})

	cases := []struct {
		name   string
		ctx    Context
		want   string
		wantOK bool
	}{
		{"exact match", Context{Months: 12, HasMonths: true}, "t12", true},
		{"rounds down, never up", Context{Months: 37, HasMonths: true}, "t24", true},
		{"between tiers", Context{Months: 7, HasMonths: true}, "t6", true},
		{"below lowest uses lowest", Context{Months: 0, HasMonths: true}, "t1", true},
		{"unknown months assumes tier 1", Context{}, "t1", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := c.Resolve(core.PlatformTwitch, "subscriber", tc.ctx)
			if ok != tc.wantOK || got.Ref != tc.want {
				t.Fatalf("Resolve = (%q, %v), want (%q, %v)", got.Ref, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestSubscriptionLowestTierWhenNoneQualify(t *testing.T) {
	c := subTierCatalog(6, 12)
	got, ok := c.Resolve(core.PlatformTwitch, "subscriber", Context{Months: 2, HasMonths: true})
	if !ok || got.Ref != refFor("sub", 6) {
		t.Fatalf("expected lowest available tier, got (%q, %v)", got.Ref, ok)
	}
}

func TestCheerThresholds(t *testing.T) {
	c := NewCatalog([]Entry{
		{Platform: "Twitch", Set: "bits", Tier: 1, Ref: "b1", Title: "Cheer 1"},
		{Platform: "Twitch", Set: "bits", Tier: 100, Ref: "b100", Title: "Cheer 100"},
		{Platform: "Twitch", Set: "bits", Tier: 1000, Ref: "b1000", Title: "Cheer 1000"},
	})

	got, ok := c.Resolve(core.PlatformTwitch, "bits", Context{Bits: 850, HasBits: true})
	if !ok || got.Ref != "b100" {
		t.Fatalf("bits=850 resolved (%q, %v), want b100", got.Ref, ok)
	}

	got, ok = c.Resolve(core.PlatformTwitch, "bits", Context{})
	if !ok || got.Ref != "b1" {
		t.Fatalf("unknown bits resolved (%q, %v), want lowest threshold", got.Ref, ok)
	}
}

func TestGlobalAndCustomLookup(t *testing.T) {
	c := NewCatalog([]Entry{
		{Platform: "Twitch", Set: "moderator", Version: "1", Ref: "mod", Title: "Moderator"},
		{Platform: "Kick", Set: "vip", Ref: "vip", Title: "VIP"},
	})

	if got, ok := c.Resolve(core.PlatformTwitch, "Moderator/1", Context{}); !ok || got.Ref != "mod" {
		t.Fatalf("case-insensitive versioned lookup failed: (%q, %v)", got.Ref, ok)
	}
	if got, ok := c.Resolve(core.PlatformKick, "vip", Context{}); !ok || got.Ref != "vip" {
		t.Fatalf("kick lookup failed: (%q, %v)", got.Ref, ok)
	}

	// unknown combinations are a defined empty result
	if _, ok := c.Resolve(core.PlatformYouTube, "moderator", Context{}); ok {
		t.Fatalf("wrong-platform lookup must be unresolved")
	}
	if _, ok := c.Resolve(core.PlatformTwitch, "made-up-badge", Context{}); ok {
		t.Fatalf("unknown identifier must be unresolved")
	}
	if _, ok := Empty().Resolve(core.PlatformTwitch, "subscriber", Context{}); ok {
		t.Fatalf("empty catalog must resolve nothing")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "badges.json")
	doc := `{"badges":[
		{"platform":"Twitch","set":"subscriber","tier":3,"ref":"s3","title":"Sub 3"},
		{"platform":"Twitch","set":"partner","ref":"p","title":"Partner"},
		{"platform":"Nowhere","set":"ghost","ref":"g","title":"Ignored"}
	]}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 sets (unknown platform skipped), got %d", c.Len())
	}

	if _, err := LoadFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatalf("expected error for missing catalog file")
	}
}
