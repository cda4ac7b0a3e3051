package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/you/chatfuse/internal/core"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func msg(id string) core.ChatMessage {
	return core.ChatMessage{ID: id, Platform: core.PlatformTwitch, Username: "u", Text: "t"}
}

func TestCapacityEvictsOldestFirst(t *testing.T) {
	s := New(Options{Capacity: 200})
	for i := 0; i < 250; i++ {
		s.Add(msg(fmt.Sprintf("m%03d", i)))
	}

	got := s.Messages()
	if len(got) != 200 {
		t.Fatalf("len = %d, want 200", len(got))
	}
	if got[0].ID != "m050" {
		t.Fatalf("oldest survivor = %s, want m050", got[0].ID)
	}
	if got[199].ID != "m249" {
		t.Fatalf("newest = %s, want m249", got[199].ID)
	}
}

func TestDefaultCapacityApplied(t *testing.T) {
	s := New(Options{})
	for i := 0; i < DefaultCapacity+10; i++ {
		s.Add(msg(fmt.Sprintf("m%d", i)))
	}
	if s.Len() != DefaultCapacity {
		t.Fatalf("len = %d, want %d", s.Len(), DefaultCapacity)
	}
}

func TestExpiryFlagsFadingOneTickEarly(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	s := New(Options{Capacity: 10, Expiry: 10 * time.Second, FadeTick: time.Second, Now: clock.Now})

	s.Add(msg("a"))

	// Inside the window: present, not fading.
	clock.Advance(8 * time.Second)
	if got := s.Fading(); len(got) != 0 {
		t.Fatalf("unexpected fading at T+8s: %v", got)
	}
	if s.Len() != 1 {
		t.Fatalf("message missing at T+8s")
	}

	// T+W-tick: fading but still a member.
	clock.Advance(time.Second)
	if got := s.Fading(); len(got) != 1 || got[0] != "a" {
		t.Fatalf("expected [a] fading at T+W-tick, got %v", got)
	}
	if len(s.Messages()) != 1 {
		t.Fatalf("fading message must still be a member")
	}

	// T+W+epsilon: gone.
	clock.Advance(time.Second + time.Millisecond)
	if s.Len() != 0 {
		t.Fatalf("expected removal at T+W+eps, got %d members", s.Len())
	}
}

func TestExpiryDisabledKeepsHistory(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	s := New(Options{Capacity: 5, Now: clock.Now})

	s.Add(msg("a"))
	clock.Advance(time.Hour)
	if s.Len() != 1 {
		t.Fatalf("message expired with expiry disabled")
	}
	if got := s.Fading(); got != nil {
		t.Fatalf("fading must be empty with expiry disabled, got %v", got)
	}
}

func TestExpiryAndCapacityAreIndependent(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	s := New(Options{Capacity: 3, Expiry: 10 * time.Second, Now: clock.Now})

	for i := 0; i < 5; i++ {
		s.Add(msg(fmt.Sprintf("m%d", i)))
	}
	if s.Len() != 3 {
		t.Fatalf("capacity not enforced: %d", s.Len())
	}

	clock.Advance(11 * time.Second)
	if s.Len() != 0 {
		t.Fatalf("expiry not enforced after window: %d", s.Len())
	}
}
