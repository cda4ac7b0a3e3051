// Package source defines the capability surface shared by the platform
// adapters: the raw event callback contract, status reporting, and the
// start/stop supervision handle. The platform clients themselves live in
// their own packages since their transports and reconnection semantics
// have nothing in common.
package source

import (
	"context"
	"log"
	"sync"

	"github.com/you/chatfuse/internal/core"
)

// RawEvent carries one inbound chat event with platform-native fields
// preserved. Context is an untyped per-platform bag (subscription months,
// cheer bits, raw tags) consulted only by downstream badge resolution.
type RawEvent struct {
	Username    string
	DisplayName string
	Text        string
	Badges      []string
	Colour      string
	Context     map[string]any
}

// Handler receives every inbound chat event exactly once.
type Handler func(RawEvent)

// StatusFunc receives adapter connection-state transitions.
type StatusFunc func(core.AdapterStatus)

// Runner is the shared capability every platform client implements.
// Run blocks until ctx is cancelled or the client fails terminally;
// it owns its platform-native reconnection policy internally.
type Runner interface {
	Run(ctx context.Context) error
}

// Handle supervises one running adapter. Stop is idempotent, safe to call
// before the connection ever succeeds, and settles only after the run
// goroutine has exited, which guarantees no Handler call afterwards.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	stop   sync.Once
}

// Start launches r on its own goroutine and returns the supervision handle.
// onStatus may be nil; it receives the terminal transition (stopped on
// cancellation, failed when the run loop gives up). A failed adapter is not
// restarted here; restarting is the owner's decision.
func Start(ctx context.Context, name string, r Runner, onStatus StatusFunc) *Handle {
	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(h.done)
		err := r.Run(runCtx)
		if err != nil && runCtx.Err() == nil {
			log.Printf("source: %s exited: %v", name, err)
			if onStatus != nil {
				onStatus(core.StatusFailed)
			}
			return
		}
		if onStatus != nil {
			onStatus(core.StatusStopped)
		}
	}()

	return h
}

// Stop cancels the adapter and waits for its run goroutine to settle.
func (h *Handle) Stop() {
	h.stop.Do(h.cancel)
	<-h.done
}

// Done is closed once the run goroutine has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }
