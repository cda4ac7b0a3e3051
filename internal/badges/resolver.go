package badges

import (
	"strings"

	"github.com/you/chatfuse/internal/core"
)

// Context carries the auxiliary numeric inputs for tiered resolution.
// The Has flags distinguish "zero" from "unknown".
type Context struct {
	Months    int
	HasMonths bool
	Bits      int
	HasBits   bool
}

// Resolve maps a badge identifier to a renderable descriptor. Identifiers
// compare case-insensitively and may carry a version suffix in the
// platform's native "set/version" form. A miss returns ok=false: the
// defined unresolved result, never an error.
//
// Tiered fallback never rounds up past an unearned tier: subscription sets
// pick the highest tier not exceeding the month count (lowest available
// tier when none qualify, tier 1 when the count is unknown); cheer sets
// pick the highest threshold not exceeding the bit amount (lowest
// threshold when the amount is unknown).
func (c *Catalog) Resolve(platform core.Platform, identifier string, ctx Context) (Resolved, bool) {
	set, version := splitIdentifier(identifier)
	if set == "" {
		return Resolved{}, false
	}

	key := setKey{platform: platform, set: set}
	kind, known := c.kinds[key]
	if !known {
		return Resolved{}, false
	}

	switch kind {
	case KindSubscription:
		months := 1
		if ctx.HasMonths {
			months = ctx.Months
		}
		return c.resolveTiered(key, months)
	case KindCheer:
		if !ctx.HasBits {
			return c.lowestTier(key)
		}
		return c.resolveTiered(key, ctx.Bits)
	default:
		if badge, ok := c.flat[flatKey{platform: platform, set: set, version: version}]; ok {
			return badge, true
		}
		// fall back to the versionless entry of the set
		badge, ok := c.flat[flatKey{platform: platform, set: set}]
		return badge, ok
	}
}

// resolveTiered picks the highest tier not exceeding value, with the
// lowest available tier as the last resort.
func (c *Catalog) resolveTiered(key setKey, value int) (Resolved, bool) {
	list := c.tiers[key]
	if len(list) == 0 {
		return Resolved{}, false
	}

	best := -1
	for i, e := range list {
		if e.tier > value {
			break
		}
		best = i
	}
	if best >= 0 {
		return list[best].badge, true
	}
	return list[0].badge, true
}

func (c *Catalog) lowestTier(key setKey) (Resolved, bool) {
	list := c.tiers[key]
	if len(list) == 0 {
		return Resolved{}, false
	}
	return list[0].badge, true
}

// splitIdentifier lower-cases and splits the native "set/version" form.
func splitIdentifier(identifier string) (string, string) {
	id := strings.ToLower(strings.TrimSpace(identifier))
	if id == "" {
		return "", ""
	}
	if idx := strings.IndexByte(id, '/'); idx >= 0 {
		return id[:idx], id[idx+1:]
	}
	return id, ""
}
