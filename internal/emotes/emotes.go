// Package emotes replaces whole tokens of a message with renderable emote
// references. Matching is exact and case-sensitive; no substring or
// partial-token matching. The catalog is loaded once at startup and a load
// failure degrades to "no emotes resolved" rather than blocking display.
package emotes

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Catalog maps case-sensitive token strings to renderable references.
// Immutable after construction; lookups are O(1) average.
type Catalog struct {
	refs map[string]string
}

type catalogFile struct {
	Emotes map[string]string `json:"emotes"`
}

// Segment is one piece of a scanned message: either plain text or a
// matched emote token.
type Segment struct {
	Text  string `json:"text,omitempty"`
	Emote string `json:"emote,omitempty"`
	Ref   string `json:"ref,omitempty"`
}

// IsEmote reports whether the segment is a matched emote.
func (s Segment) IsEmote() bool { return s.Emote != "" }

// Original returns the source text the segment covers, so that
// concatenating Original over all segments reproduces the input.
func (s Segment) Original() string {
	if s.IsEmote() {
		return s.Emote
	}
	return s.Text
}

// Empty returns a catalog that matches nothing.
func Empty() *Catalog {
	return NewCatalog(nil)
}

// NewCatalog builds a catalog from a token-to-reference map.
func NewCatalog(refs map[string]string) *Catalog {
	c := &Catalog{refs: make(map[string]string, len(refs))}
	for token, ref := range refs {
		if token == "" || ref == "" {
			continue
		}
		c.refs[token] = ref
	}
	return c
}

// LoadFile reads a catalog from a JSON document of the form
// {"emotes": {"PogChamp": "https://..."}}.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read emote catalog")
	}
	var parsed catalogFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, errors.Wrap(err, "parse emote catalog")
	}
	return NewCatalog(parsed.Emotes), nil
}

// Len reports the number of known emote tokens.
func (c *Catalog) Len() int { return len(c.refs) }

// Scan walks text left to right, calling fn for each segment in order.
// Whitespace-delimited tokens that match the catalog become emote
// segments; everything else, original spacing included, accumulates into
// text segments. fn returning false stops the scan early.
func (c *Catalog) Scan(text string, fn func(Segment) bool) {
	var plain strings.Builder

	flush := func() bool {
		if plain.Len() == 0 {
			return true
		}
		seg := Segment{Text: plain.String()}
		plain.Reset()
		return fn(seg)
	}

	i := 0
	for i < len(text) {
		start := i
		for i < len(text) && !isSpace(text[i]) {
			i++
		}
		token := text[start:i]
		if ref, ok := c.refs[token]; ok && token != "" {
			if !flush() {
				return
			}
			if !fn(Segment{Emote: token, Ref: ref}) {
				return
			}
		} else {
			plain.WriteString(token)
		}
		start = i
		for i < len(text) && isSpace(text[i]) {
			i++
		}
		plain.WriteString(text[start:i])
	}
	flush()
}

// Segments returns the full segmentation of text in order.
func (c *Catalog) Segments(text string) []Segment {
	var out []Segment
	c.Scan(text, func(s Segment) bool {
		out = append(out, s)
		return true
	})
	return out
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return false
}
