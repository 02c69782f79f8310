package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull makes Emit non-blocking; events that do not fit are counted
	// and discarded.
	DropIfFull bool
}

// Dispatcher relays events to a Sink from one goroutine, so sinks never see
// concurrent calls. A nil *Dispatcher is valid and does nothing.
type Dispatcher struct {
	sink       Sink
	logger     *slog.Logger
	dropIfFull bool

	ch chan Event
	// stop wakes blocked emitters; drain tells the relay no more sends can
	// happen.
	stop      chan struct{}
	drain     chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	mu     sync.RWMutex
	closed bool

	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewDispatcher starts the relay goroutine, or returns nil when cfg is
// disabled.
func NewDispatcher(cfg Config, sink Sink, logger *slog.Logger) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		sink:       sink,
		logger:     logger,
		dropIfFull: cfg.DropIfFull,
		ch:         make(chan Event, max(cfg.BufferSize, 1)),
		stop:       make(chan struct{}),
		drain:      make(chan struct{}),
	}
	d.wg.Go(d.relay)
	return d
}

func (d *Dispatcher) relay() {
	for {
		select {
		case ev := <-d.ch:
			d.deliver(ev)
		case <-d.drain:
			for {
				select {
				case ev := <-d.ch:
					d.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

// deliver shields the relay from a panicking sink.
func (d *Dispatcher) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			if d.failed.Add(1) == 1 {
				d.logger.Error("audit sink panicked", slog.String("event", ev.EventType), slog.String("panic", fmt.Sprint(r)))
			}
		}
	}()
	d.sink.Emit(context.Background(), ev)
}

// Emit queues ev. It never blocks past ctx or Close; with DropIfFull it never
// blocks at all.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.dropIfFull {
		select {
		case d.ch <- ev:
		default:
			if d.dropped.Add(1) == 1 {
				d.logger.Warn("audit buffer full, dropping events", slog.Int("buffer", cap(d.ch)))
			}
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.ch <- ev:
	case <-ctx.Done():
	case <-d.stop:
	}
}

// Close stops intake and waits until every queued event reached the sink.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		close(d.stop)
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		close(d.drain)
		d.wg.Wait()
	})
}

// Dropped returns how many events were discarded because the buffer was full.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Failed returns how many events a sink panicked on.
func (d *Dispatcher) Failed() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}
