package webhook

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultQueueSize bounds the events waiting for delivery
const DefaultQueueSize = 256

// Sender delivers one event to its subscribers
type Sender interface {
	Dispatch(ctx context.Context, event EventPayload) (int, error)
}

// Dispatcher moves event delivery off the frame loop. Publish never blocks;
// events are dropped when the queue is full.
type Dispatcher struct {
	sender Sender
	logger *slog.Logger
	events chan EventPayload

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

func NewDispatcher(sender Sender, logger *slog.Logger, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Dispatcher{
		sender: sender,
		logger: logger,
		events: make(chan EventPayload, queueSize),
	}
}

// Publish queues event and reports whether it was accepted
func (d *Dispatcher) Publish(event EventPayload) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}

	select {
	case d.events <- event:
		return true
	default:
		d.dropped.Add(1)
		d.logger.Warn("webhook queue full, event dropped",
			"event", event.Type,
			"session_id", event.SessionID,
		)
		return false
	}
}

// Dropped returns how many events were discarded
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Pending returns how many events wait in the queue
func (d *Dispatcher) Pending() int {
	return len(d.events)
}

// Run delivers queued events until ctx is done or Close drains the queue
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-d.events:
			if !ok {
				return
			}
			n, err := d.sender.Dispatch(ctx, event)
			if err != nil {
				d.logger.Error("failed to dispatch webhook event",
					"event", event.Type,
					"session_id", event.SessionID,
					"error", err,
				)
				continue
			}
			d.logger.Debug("webhook event dispatched", "event", event.Type, "webhooks", n)
		}
	}
}

// Close stops accepting events. Run returns after the queued ones are sent.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		close(d.events)
	}
}
