// Package clock provides the injectable "now" used to seed default ranges
// and listing instants.
package clock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "tztimeline/internal/log"
)

// DefaultSpec refreshes the cached instant once a minute.
const DefaultSpec = "@every 1m"

// Clock returns the current instant.
type Clock interface {
	Now() time.Time
}

// Func adapts a plain function to Clock.
type Func func() time.Time

func (f Func) Now() time.Time { return f() }

// System reads the wall clock on every call.
var System Clock = Func(time.Now)

// Fixed always returns t.
func Fixed(t time.Time) Clock {
	return Func(func() time.Time { return t })
}

// Ticker caches "now" and refreshes it on a cron schedule. Readers never
// touch the underlying source directly, so everything seeded within the same
// minute sees the same instant.
type Ticker struct {
	source Clock
	cron   *cron.Cron

	mu      sync.RWMutex
	now     time.Time
	started bool
}

// NewTicker builds a Ticker over source. spec is any robfig/cron spec,
// including descriptors like "@every 1m"; empty means DefaultSpec.
func NewTicker(source Clock, spec string) (*Ticker, error) {
	if source == nil {
		source = System
	}
	if spec == "" {
		spec = DefaultSpec
	}

	t := &Ticker{
		source: source,
		cron:   cron.New(),
		now:    source.Now(),
	}
	if _, err := t.cron.AddFunc(spec, t.Tick); err != nil {
		return nil, fmt.Errorf("clock: invalid schedule %q: %w", spec, err)
	}
	return t, nil
}

// Now returns the instant captured at the last tick.
func (t *Ticker) Now() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.now
}

// Tick refreshes the cached instant immediately.
func (t *Ticker) Tick() {
	now := t.source.Now()

	t.mu.Lock()
	t.now = now
	t.mu.Unlock()

	appLog.Debug("clock tick", "now", now.Format(time.RFC3339))
}

// Start begins the schedule; it stops when ctx is done.
func (t *Ticker) Start(ctx context.Context) {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.mu.Unlock()

	t.cron.Start()
	go func() {
		<-ctx.Done()
		<-t.cron.Stop().Done()
	}()
}
