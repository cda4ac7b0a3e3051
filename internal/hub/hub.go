// Package hub fans every published event out to the connected viewers.
// All publishes pass through one lock, so the frame order observed by any
// two viewers is identical and equals hub-receipt order. A slow or dead
// viewer loses frames; it never blocks the publisher or its neighbours.
package hub

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/you/chatfuse/internal/core"
	"github.com/you/chatfuse/internal/store"
)

const viewerBuffer = 256

// Hooks are optional instrumentation callbacks. Any field may be nil.
type Hooks struct {
	OnSend func(platform core.Platform)
	OnDrop func()
}

// Hub owns the viewer registry, the per-platform adapter status board and
// the bounded session history used for opt-in replay.
type Hub struct {
	hooks Hooks

	mu       sync.Mutex
	viewers  map[*Viewer]struct{}
	statuses map[core.Platform]core.AdapterStatus
	history  *store.Store
	closed   bool
}

// Viewer is one subscribed connection. Frames are pre-serialized JSON,
// delivered in publish order.
type Viewer struct {
	frames    chan []byte
	platforms map[core.Platform]struct{}
}

// SubscribeOptions filters and seeds a new viewer.
type SubscribeOptions struct {
	// Platforms restricts chat frames to the listed platforms.
	// Empty means all. Status frames are always delivered.
	Platforms []core.Platform
	// Replay queues up to this many history messages before live frames.
	Replay int
}

// New builds a hub whose session history is bounded by historyCap
// messages (DefaultCapacity when <= 0). History never auto-expires; it is
// the authoritative session sequence, not an overlay display buffer.
func New(historyCap int, hooks Hooks) *Hub {
	return &Hub{
		hooks:    hooks,
		viewers:  make(map[*Viewer]struct{}),
		statuses: make(map[core.Platform]core.AdapterStatus),
		history:  store.New(store.Options{Capacity: historyCap}),
	}
}

// Subscribe registers a viewer and immediately queues the connection
// acknowledgment, followed by any requested history replay.
func (h *Hub) Subscribe(opts SubscribeOptions) *Viewer {
	v := &Viewer{frames: make(chan []byte, viewerBuffer)}
	if len(opts.Platforms) > 0 {
		v.platforms = make(map[core.Platform]struct{}, len(opts.Platforms))
		for _, p := range opts.Platforms {
			v.platforms[p] = struct{}{}
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(v.frames)
		return v
	}

	v.queue(marshal(core.ConnectionAck()), h.hooks)
	if opts.Replay > 0 {
		msgs := h.history.Messages()
		if len(msgs) > opts.Replay {
			msgs = msgs[len(msgs)-opts.Replay:]
		}
		for _, msg := range msgs {
			if v.wants(msg.Platform) {
				v.queue(marshal(msg), h.hooks)
			}
		}
	}

	h.viewers[v] = struct{}{}
	return v
}

// Unsubscribe removes the viewer and closes its frame channel.
func (h *Hub) Unsubscribe(v *Viewer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.viewers[v]; !ok {
		return
	}
	delete(h.viewers, v)
	close(v.frames)
}

// PublishChat appends msg to the session history and fans it out.
// The frame is serialized exactly once.
func (h *Hub) PublishChat(msg core.ChatMessage) {
	data := marshal(msg)
	if data == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.history.Add(msg)
	for v := range h.viewers {
		if !v.wants(msg.Platform) {
			continue
		}
		if v.queue(data, h.hooks) && h.hooks.OnSend != nil {
			h.hooks.OnSend(msg.Platform)
		}
	}
}

// PublishStatus records the adapter transition and fans the status frame
// out to every viewer regardless of platform filters.
func (h *Hub) PublishStatus(p core.Platform, s core.AdapterStatus) {
	data := marshal(core.PlatformStatus(p, s))

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.statuses[p] = s
	for v := range h.viewers {
		v.queue(data, h.hooks)
	}
}

// Statuses returns the last reported state per platform.
func (h *Hub) Statuses() map[core.Platform]core.AdapterStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[core.Platform]core.AdapterStatus, len(h.statuses))
	for p, s := range h.statuses {
		out[p] = s
	}
	return out
}

// History returns up to limit recent session messages in arrival order.
func (h *Hub) History(limit int) []core.ChatMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	msgs := h.history.Messages()
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs
}

// ViewerCount reports the number of subscribed viewers.
func (h *Hub) ViewerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.viewers)
}

// Close unsubscribes every viewer and rejects further publishes.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for v := range h.viewers {
		close(v.frames)
	}
	h.viewers = make(map[*Viewer]struct{})
}

// Frames is the viewer's ordered frame feed. It is closed on unsubscribe
// or hub shutdown.
func (v *Viewer) Frames() <-chan []byte { return v.frames }

func (v *Viewer) wants(p core.Platform) bool {
	if v.platforms == nil {
		return true
	}
	_, ok := v.platforms[p]
	return ok
}

// queue delivers without blocking; a full buffer drops the frame.
// Reports whether the frame was actually enqueued.
func (v *Viewer) queue(data []byte, hooks Hooks) bool {
	if data == nil {
		return false
	}
	select {
	case v.frames <- data:
		return true
	default:
		if hooks.OnDrop != nil {
			hooks.OnDrop()
		}
		return false
	}
}

func marshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("hub: marshal frame: %v", err)
		return nil
	}
	return data
}
