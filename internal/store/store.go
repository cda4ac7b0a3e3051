// Package store holds the viewer-side bounded message buffer. Capacity
// eviction (FIFO) and auto-expiry are independent mechanisms; both apply
// when expiry is enabled. A message enters a "fading" state one tick
// before removal so the overlay can play a fade-out.
package store

import (
	"sync"
	"time"

	"github.com/you/chatfuse/internal/core"
)

const (
	// DefaultCapacity bounds the buffer when the caller passes zero.
	DefaultCapacity = 200
	// DefaultFadeTick is the lead time for the fading flag.
	DefaultFadeTick = time.Second
)

// Options configures a Store. Expiry <= 0 disables auto-expiry (the
// full-interface mode, where operators keep history up to capacity).
type Options struct {
	Capacity int
	Expiry   time.Duration
	FadeTick time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

type entry struct {
	msg     core.ChatMessage
	arrived time.Time
}

// Store is a bounded ordered message buffer. Safe for concurrent use;
// each viewer session owns exactly one.
type Store struct {
	mu       sync.Mutex
	entries  []entry
	capacity int
	expiry   time.Duration
	fadeTick time.Duration
	now      func() time.Time
}

// New builds a store from opts, applying defaults for zero values.
func New(opts Options) *Store {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.FadeTick <= 0 {
		opts.FadeTick = DefaultFadeTick
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		capacity: opts.Capacity,
		expiry:   opts.Expiry,
		fadeTick: opts.FadeTick,
		now:      opts.Now,
	}
}

// Add appends msg, evicting the oldest entries beyond capacity.
func (s *Store) Add(msg core.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(s.now())
	s.entries = append(s.entries, entry{msg: msg, arrived: s.now()})
	if overflow := len(s.entries) - s.capacity; overflow > 0 {
		s.entries = append(s.entries[:0], s.entries[overflow:]...)
	}
}

// Messages returns the current members in arrival order, fading ones
// included. The returned slice is the caller's to keep.
func (s *Store) Messages() []core.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.pruneLocked(now)
	out := make([]core.ChatMessage, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.msg)
	}
	return out
}

// Fading returns the ids of messages inside their final tick before
// removal. Always empty when auto-expiry is disabled.
func (s *Store) Fading() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.expiry <= 0 {
		return nil
	}
	now := s.now()
	s.pruneLocked(now)

	var ids []string
	for _, e := range s.entries {
		if !now.Before(e.arrived.Add(s.expiry - s.fadeTick)) {
			ids = append(ids, e.msg.ID)
		}
	}
	return ids
}

// Len reports the number of live members.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(s.now())
	return len(s.entries)
}

func (s *Store) pruneLocked(now time.Time) {
	if s.expiry <= 0 || len(s.entries) == 0 {
		return
	}
	keep := s.entries[:0]
	for _, e := range s.entries {
		if now.Before(e.arrived.Add(s.expiry)) {
			keep = append(keep, e)
		}
	}
	s.entries = keep
}
