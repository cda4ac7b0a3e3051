package source

import (
	"log/slog"
	"sort"
	"strings"
	"time"
)

const (
	dropSummaryInterval = 5 * time.Second
	dropSampleMaxLen    = 96
)

// DropLogger aggregates malformed-event drops so a burst of unparsable
// upstream payloads produces one summary line per interval instead of a
// log flood. Not safe for concurrent use; each client owns its own.
type DropLogger struct {
	platform string
	verbose  bool
	interval time.Duration
	nextEmit time.Time
	total    int
	byReason map[string]int
	sample   map[string]string
}

// NewDropLogger returns a logger for one adapter. verbose additionally
// emits a debug line per dropped event.
func NewDropLogger(platform string, now time.Time, verbose bool) *DropLogger {
	return &DropLogger{
		platform: platform,
		verbose:  verbose,
		interval: dropSummaryInterval,
		nextEmit: now.Add(dropSummaryInterval),
		byReason: make(map[string]int),
		sample:   make(map[string]string),
	}
}

// Note records one dropped event and emits the pending summary when due.
func (d *DropLogger) Note(now time.Time, reason, raw string) {
	if d == nil {
		return
	}
	sample := truncateSample(raw)
	if d.verbose {
		slog.Debug("source: dropped event",
			"platform", d.platform,
			"reason", reason,
			"sample", sample,
		)
	}

	d.total++
	d.byReason[reason]++
	if _, ok := d.sample[reason]; !ok {
		d.sample[reason] = sample
	}

	if !now.Before(d.nextEmit) {
		d.Flush(now)
	}
}

// Flush emits the pending summary, if any, and resets the window.
func (d *DropLogger) Flush(now time.Time) {
	if d == nil {
		return
	}
	if d.total == 0 {
		d.nextEmit = now.Add(d.interval)
		return
	}

	reasons := make([]string, 0, len(d.byReason))
	for reason := range d.byReason {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)

	for _, reason := range reasons {
		slog.Warn("source: dropped events",
			"platform", d.platform,
			"reason", reason,
			"count", d.byReason[reason],
			"sample", d.sample[reason],
		)
	}

	d.total = 0
	d.byReason = make(map[string]int)
	d.sample = make(map[string]string)
	d.nextEmit = now.Add(d.interval)
}

func truncateSample(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return ' '
		}
		return r
	}, raw)
	if len(raw) > dropSampleMaxLen {
		return raw[:dropSampleMaxLen] + "…"
	}
	return raw
}
