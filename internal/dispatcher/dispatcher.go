package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cavestory-tools/cse/internal/queue"
	"github.com/cavestory-tools/cse/pkg/core"
)

const instrumentationName = "github.com/cavestory-tools/cse/internal/dispatcher"

// Listener receives one published batch of change events.
type Listener func(batch []core.ChangeEvent)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures listener registration.
type Option func(*config)

type config struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered delivers to the listener on its own goroutine through a channel of
// the given size.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered listener block the flush when its channel is full
// instead of dropping the batch.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging around the listener.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

type subscription struct {
	name    string
	deliver Listener
}

// Dispatcher queues change events and fans them out to listeners when
// flushed. Publishing and flushing happen on the control thread; a listener
// may publish more events (directly or by mutating the profile) and those are
// delivered by the flush already in progress.
type Dispatcher struct {
	listeners []subscription
	pending   *queue.Queue[core.ChangeEvent]
	flushing  bool
	logger    Logger

	// OTEL metrics
	queueSize metric.Int64ObservableGauge
	delivered metric.Int64Counter
	dropped   metric.Int64Counter

	// Track buffers for gauge callback
	mu      sync.RWMutex
	buffers map[string]chan []core.ChangeEvent
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		pending: queue.New[core.ChangeEvent](),
		buffers: make(map[string]chan []core.ChangeEvent),
		logger:  logger,
	}

	m := otel.Meter(instrumentationName)

	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Current number of batches waiting for a buffered listener"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			d.mu.RLock()
			defer d.mu.RUnlock()
			for name, buf := range d.buffers {
				o.ObserveInt64(d.queueSize, int64(len(buf)),
					metric.WithAttributes(attribute.String("listener", name)))
			}
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	d.delivered, err = m.Int64Counter(
		"dispatcher.events.delivered",
		metric.WithDescription("Total change events delivered to listeners"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating delivered counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"dispatcher.events.dropped",
		metric.WithDescription("Total change events dropped due to a full listener buffer"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	return d, nil
}

// Subscribe adds a listener under name, replacing any listener already
// registered with that name. Listeners are called in subscription order.
func (d *Dispatcher) Subscribe(name string, l Listener, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	d.closeBuffer(name)
	deliver := l

	if cfg.logged {
		deliver = d.withLogging(name, deliver)
	}

	if cfg.bufferSize > 0 {
		deliver = d.withBuffer(name, cfg.bufferSize, cfg.blocking, deliver)
	} else {
		deliver = d.counted(name, deliver)
	}

	for i, s := range d.listeners {
		if s.name == name {
			d.listeners[i].deliver = deliver
			return
		}
	}
	d.listeners = append(d.listeners, subscription{name: name, deliver: deliver})
}

// Unsubscribe removes the named listener.
func (d *Dispatcher) Unsubscribe(name string) {
	for i, s := range d.listeners {
		if s.name == name {
			d.listeners = append(d.listeners[:i], d.listeners[i+1:]...)
			d.closeBuffer(name)
			return
		}
	}
}

// HasListener returns true if a listener is registered under name.
func (d *Dispatcher) HasListener(name string) bool {
	for _, s := range d.listeners {
		if s.name == name {
			return true
		}
	}
	return false
}

// Publish queues events for the next flush.
func (d *Dispatcher) Publish(events ...core.ChangeEvent) {
	d.pending.Push(events...)
}

// Pending returns the number of queued events.
func (d *Dispatcher) Pending() int {
	return d.pending.Len()
}

// Flush delivers queued events to every listener, batch by batch, until the
// queue is empty. A Flush called from inside a listener returns immediately;
// the outer Flush picks up whatever was queued.
func (d *Dispatcher) Flush() int {
	if d.flushing {
		return 0
	}
	d.flushing = true
	defer func() { d.flushing = false }()

	return d.pending.Drain(func(batch []core.ChangeEvent) {
		for _, s := range d.listeners {
			s.deliver(batch)
		}
	})
}

// Close stops the goroutines of buffered listeners.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for name, buf := range d.buffers {
		close(buf)
		delete(d.buffers, name)
	}
}

func (d *Dispatcher) closeBuffer(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if buf, ok := d.buffers[name]; ok {
		close(buf)
		delete(d.buffers, name)
	}
}

func (d *Dispatcher) counted(name string, l Listener) Listener {
	attr := metric.WithAttributes(attribute.String("listener", name))
	return func(batch []core.ChangeEvent) {
		l(batch)
		d.delivered.Add(context.Background(), int64(len(batch)), attr)
	}
}

func (d *Dispatcher) withBuffer(name string, size int, blocking bool, l Listener) Listener {
	buffer := make(chan []core.ChangeEvent, size)

	d.mu.Lock()
	d.buffers[name] = buffer
	d.mu.Unlock()

	attr := metric.WithAttributes(attribute.String("listener", name))

	go func() {
		for batch := range buffer {
			l(batch)
			d.delivered.Add(context.Background(), int64(len(batch)), attr)
		}
	}()

	if blocking {
		return func(batch []core.ChangeEvent) {
			buffer <- batch
		}
	}

	return func(batch []core.ChangeEvent) {
		select {
		case buffer <- batch:
		default:
			d.dropped.Add(context.Background(), int64(len(batch)), attr)
			d.logger.Error("listener buffer full, dropping batch", "listener", name, "events", len(batch))
		}
	}
}

func (d *Dispatcher) withLogging(name string, l Listener) Listener {
	return func(batch []core.ChangeEvent) {
		start := time.Now()
		d.logger.Debug("delivering batch", "listener", name, "events", len(batch))
		l(batch)
		d.logger.Debug("batch delivered", "listener", name, "duration", time.Since(start))
	}
}
