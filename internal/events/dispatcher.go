package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mmynk/splitledger/internal/metrics"
)

// Sink receives envelopes from the dispatcher worker.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, env Envelope) error
}

// DefaultBuffer is the queue size used when none is configured.
const DefaultBuffer = 256

const deliverTimeout = 5 * time.Second

// Dispatcher queues events in a bounded buffer and fans them out to sinks from
// a single worker goroutine. When the buffer is full the event is dropped.
type Dispatcher struct {
	sinks  []Sink
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Envelope
	done   chan struct{}
}

var _ Emitter = (*Dispatcher)(nil)

// NewDispatcher starts the worker. Call Close to drain and stop it.
func NewDispatcher(buffer int, logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		sinks:  sinks,
		logger: logger,
		queue:  make(chan Envelope, buffer),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// Emit enqueues ev for target without blocking.
func (d *Dispatcher) Emit(ctx context.Context, target Target, ev Event) {
	env := Envelope{Type: ev.Type(), Target: target, Payload: ev, Time: time.Now().Unix()}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(env, "dispatcher closed")
		return
	}
	select {
	case d.queue <- env:
	default:
		d.drop(env, "queue full")
	}
}

func (d *Dispatcher) drop(env Envelope, reason string) {
	metrics.EventsDropped.Inc()
	d.logger.Warn("Event dropped",
		"type", env.Type,
		"target", env.Target.String(),
		"reason", reason,
	)
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for env := range d.queue {
		for _, sink := range d.sinks {
			d.deliver(sink, env)
		}
	}
}

func (d *Dispatcher) deliver(sink Sink, env Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	if err := sink.Deliver(ctx, env); err != nil {
		metrics.EventsDelivered.WithLabelValues(sink.Name(), "error").Inc()
		d.logger.Warn("Event delivery failed",
			"sink", sink.Name(),
			"type", env.Type,
			"target", env.Target.String(),
			"error", err,
		)
		return
	}
	metrics.EventsDelivered.WithLabelValues(sink.Name(), "ok").Inc()
}

// Close stops accepting events and waits for queued ones to be delivered, or
// for ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
