// Package badges resolves opaque platform badge identifiers into
// renderable descriptors. The catalog is loaded once at process start and
// read-only afterwards; the resolver is injected where needed so tests can
// substitute their own catalogs.
package badges

import (
	"encoding/json"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/you/chatfuse/internal/core"
)

// Kind classifies how a badge set resolves.
type Kind string

const (
	// KindSubscription resolves by subscription months with monotonic
	// tier fallback.
	KindSubscription Kind = "subscription"
	// KindCheer resolves by cheer bits against tier thresholds.
	KindCheer Kind = "cheer"
	// KindGlobal resolves by direct keyed lookup.
	KindGlobal Kind = "global"
)

// Entry is one catalog row. Tier is the subscription month count or cheer
// bit threshold for tiered sets and ignored for global ones. Version
// distinguishes variants of a global set (e.g. moderator/1).
type Entry struct {
	Platform string `json:"platform"`
	Set      string `json:"set"`
	Kind     Kind   `json:"kind,omitempty"`
	Tier     int    `json:"tier,omitempty"`
	Version  string `json:"version,omitempty"`
	Ref      string `json:"ref"`
	Title    string `json:"title"`
}

type catalogFile struct {
	Badges []Entry `json:"badges"`
}

type setKey struct {
	platform core.Platform
	set      string
}

type flatKey struct {
	platform core.Platform
	set      string
	version  string
}

type tierEntry struct {
	tier  int
	badge Resolved
}

// Resolved is a renderable badge descriptor.
type Resolved struct {
	Ref   string `json:"ref"`
	Title string `json:"title"`
}

// Catalog holds the loaded badge sets. Immutable after construction.
type Catalog struct {
	kinds map[setKey]Kind
	tiers map[setKey][]tierEntry
	flat  map[flatKey]Resolved
}

// Empty returns a catalog that resolves nothing. Every lookup against it
// yields the defined unresolved result, never an error.
func Empty() *Catalog {
	return NewCatalog(nil)
}

// NewCatalog builds a catalog from entries. Set identifiers compare
// case-insensitively. Entries without an explicit kind are classified by
// their set name: "subscriber" is a subscription set, "bits" and "cheer"
// are cheer sets, everything else is global.
func NewCatalog(entries []Entry) *Catalog {
	c := &Catalog{
		kinds: make(map[setKey]Kind),
		tiers: make(map[setKey][]tierEntry),
		flat:  make(map[flatKey]Resolved),
	}

	for _, e := range entries {
		platform := core.Platform(e.Platform)
		if !platform.Valid() {
			continue
		}
		set := strings.ToLower(strings.TrimSpace(e.Set))
		if set == "" || e.Ref == "" {
			continue
		}
		kind := e.Kind
		if kind == "" {
			kind = classifySet(set)
		}
		key := setKey{platform: platform, set: set}
		c.kinds[key] = kind

		badge := Resolved{Ref: e.Ref, Title: e.Title}
		switch kind {
		case KindSubscription, KindCheer:
			c.tiers[key] = append(c.tiers[key], tierEntry{tier: e.Tier, badge: badge})
		default:
			c.flat[flatKey{platform: platform, set: set, version: e.Version}] = badge
		}
	}

	for key := range c.tiers {
		list := c.tiers[key]
		sort.Slice(list, func(i, j int) bool { return list[i].tier < list[j].tier })
		c.tiers[key] = list
	}

	return c
}

// LoadFile reads a catalog from a JSON document. Callers treat a load
// failure as a degraded empty catalog, not a fatal condition.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read badge catalog")
	}
	var parsed catalogFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, errors.Wrap(err, "parse badge catalog")
	}
	return NewCatalog(parsed.Badges), nil
}

// Len reports the number of distinct badge sets.
func (c *Catalog) Len() int {
	return len(c.kinds)
}

func classifySet(set string) Kind {
	switch set {
	case "subscriber", "founder":
		return KindSubscription
	case "bits", "cheer":
		return KindCheer
	}
	return KindGlobal
}
