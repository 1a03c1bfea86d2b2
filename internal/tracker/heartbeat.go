package tracker

import (
	"context"
	"sync"
	"time"
)

const DefaultHeartbeatInterval = 30 * time.Second

// Heartbeat runs a beat function on a fixed interval until stopped. At most
// one beat goroutine is alive per Heartbeat, also under concurrent Start and
// Stop calls. The beat function must not call back into Start or Stop.
type Heartbeat struct {
	interval time.Duration

	// run serialises Start and Stop, including the wait for the old goroutine.
	run sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHeartbeat(interval time.Duration) *Heartbeat {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &Heartbeat{interval: interval}
}

// Start arms the heartbeat, replacing any running one.
func (h *Heartbeat) Start(ctx context.Context, beat func(context.Context)) {
	h.run.Lock()
	defer h.run.Unlock()

	h.stopLocked()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	h.mu.Lock()
	h.cancel = cancel
	h.done = done
	h.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				beat(ctx)
			}
		}
	}()
}

// Stop halts the heartbeat and waits for its goroutine to exit.
func (h *Heartbeat) Stop() {
	h.run.Lock()
	defer h.run.Unlock()
	h.stopLocked()
}

func (h *Heartbeat) stopLocked() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether a beat goroutine is armed.
func (h *Heartbeat) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancel != nil
}
