package tracker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"nighthub/internal/tracking"
)

var (
	ErrQueueFull        = errors.New("tracking queue full")
	ErrDispatcherClosed = errors.New("tracking dispatcher closed")
)

const (
	defaultQueueSize    = 256
	defaultWriteTimeout = 5 * time.Second
)

type queuedWrite struct {
	op  string
	run func(ctx context.Context) error
}

// Dispatcher is a fire-and-forget Sink. Writes are queued without blocking
// and delivered to the next sink in order by a single worker.
type Dispatcher struct {
	next         Sink
	logger       *slog.Logger
	writeTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan queuedWrite

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

type DispatcherOption func(*Dispatcher)

func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan queuedWrite, n)
		}
	}
}

func WithWriteTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.writeTimeout = timeout
		}
	}
}

func NewDispatcher(next Sink, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		next:         next,
		logger:       logger,
		writeTimeout: defaultWriteTimeout,
		queue:        make(chan queuedWrite, defaultQueueSize),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for w := range d.queue {
		ctx, cancel := context.WithTimeout(d.ctx, d.writeTimeout)
		if err := w.run(ctx); err != nil {
			d.logger.Debug("Queued tracking write failed", slog.String("op", w.op), slog.Any("error", err))
		}
		cancel()
	}
}

func (d *Dispatcher) enqueue(op string, run func(ctx context.Context) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- queuedWrite{op: op, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting writes and drains the queue until ctx is done.
// Writes still queued at that point are abandoned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-d.done
		return ctx.Err()
	}
}

// Pending returns the number of queued writes.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

func (d *Dispatcher) UpsertDevice(_ context.Context, in tracking.DeviceUpsert) error {
	return d.enqueue(OpDevice, func(ctx context.Context) error { return d.next.UpsertDevice(ctx, in) })
}

func (d *Dispatcher) StartSession(_ context.Context, in tracking.SessionStart) error {
	return d.enqueue(OpSessionStart, func(ctx context.Context) error { return d.next.StartSession(ctx, in) })
}

func (d *Dispatcher) TouchSession(_ context.Context, in tracking.SessionTouch) error {
	return d.enqueue(OpSessionTouch, func(ctx context.Context) error { return d.next.TouchSession(ctx, in) })
}

func (d *Dispatcher) StartView(_ context.Context, in tracking.ViewStart) error {
	return d.enqueue(OpViewStart, func(ctx context.Context) error { return d.next.StartView(ctx, in) })
}

func (d *Dispatcher) EndView(_ context.Context, in tracking.ViewEnd) error {
	return d.enqueue(OpViewEnd, func(ctx context.Context) error { return d.next.EndView(ctx, in) })
}
