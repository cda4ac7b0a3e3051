package source

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/you/chatfuse/internal/core"
)

// FakeConfig controls the synthetic chat generator.
type FakeConfig struct {
	Interval time.Duration
}

// PlatformHandler receives events labelled with the platform that the
// generator chose for them. Real adapters have a fixed platform and use
// the plain Handler instead.
type PlatformHandler func(core.Platform, RawEvent)

// Fake emits a randomized chat event on a fixed interval across a randomly
// chosen platform. It satisfies Runner so it plugs into the same supervision
// and publish path as the real adapters; useful for overlay work without
// credentials.
type Fake struct {
	cfg     FakeConfig
	handle  PlatformHandler
	status  StatusFunc
	rng     *rand.Rand
	counter int
}

var fakeUsers = []string{"wanderer", "nightowl", "pixel_pete", "moss", "clipchamp", "dormouse"}

var fakeLines = []string{
	"GG everyone",
	"that was wild",
	"PogChamp",
	"first time here, loving it",
	"lol",
	"did anyone clip that?",
	"W stream",
	"KEKW",
}

var fakeColours = []string{"#FF4500", "#1E90FF", "#8A2BE2", "#2E8B57", ""}

// NewFake builds the generator. handle must not be nil; onStatus may be.
func NewFake(cfg FakeConfig, handle PlatformHandler, onStatus StatusFunc) *Fake {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	return &Fake{
		cfg:    cfg,
		handle: handle,
		status: onStatus,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (f *Fake) Run(ctx context.Context) error {
	if f.status != nil {
		f.status(core.StatusConnecting)
		f.status(core.StatusConnected)
	}

	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			platform, ev := f.next()
			f.handle(platform, ev)
		}
	}
}

func (f *Fake) next() (core.Platform, RawEvent) {
	platforms := core.Platforms()
	platform := platforms[f.rng.Intn(len(platforms))]
	f.counter++

	ev := RawEvent{
		Username: fakeUsers[f.rng.Intn(len(fakeUsers))],
		Text:     fakeLines[f.rng.Intn(len(fakeLines))],
		Badges:   []string{},
		Colour:   fakeColours[f.rng.Intn(len(fakeColours))],
		Context:  map[string]any{"fake": true, "seq": f.counter},
	}
	if f.rng.Intn(4) == 0 {
		ev.Badges = append(ev.Badges, fmt.Sprintf("subscriber/%d", []int{1, 3, 6, 12}[f.rng.Intn(4)]))
	}
	return platform, ev
}
