package events

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// DefaultQueueSize bounds the number of batches waiting for delivery.
const DefaultQueueSize = 64

// ErrBusStopped is returned when publishing to a stopped bus.
var ErrBusStopped = errors.New("event bus stopped")

// BatchHandler handles one batch of events.
type BatchHandler func(ctx context.Context, batch Batch) error

// EventBus delivers event batches to subscribers. Publishers enqueue onto a
// bounded queue; a single dispatcher hands each batch to every handler and
// waits for all of them before moving to the next batch, so every handler
// sees batches in publish order.
type EventBus struct {
	mu       sync.RWMutex
	handlers []handlerEntry
	queue    chan Batch
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
	stopped  bool

	// sendMu is held shared by publishers for the whole enqueue. Stop takes
	// it exclusively before telling the dispatcher to drain.
	sendMu  sync.RWMutex
	drainCh chan struct{}
}

type handlerEntry struct {
	name    string
	handler BatchHandler
}

// NewEventBus creates a new EventBus with the given queue capacity.
func NewEventBus(queueSize int) *EventBus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &EventBus{
		queue:   make(chan Batch, queueSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		drainCh: make(chan struct{}),
	}
}

// Subscribe registers a named handler. A second handler with the same name
// replaces the first.
func (eb *EventBus) Subscribe(name string, handler BatchHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for i, h := range eb.handlers {
		if h.name == name {
			eb.handlers[i].handler = handler
			return
		}
	}
	eb.handlers = append(eb.handlers, handlerEntry{name: name, handler: handler})

	log.Debug().Str("handler", name).Msg("subscribed to event batches")
}

// Unsubscribe removes a named handler.
func (eb *EventBus) Unsubscribe(name string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	filtered := make([]handlerEntry, 0, len(eb.handlers))
	for _, h := range eb.handlers {
		if h.name != name {
			filtered = append(filtered, h)
		}
	}
	eb.handlers = filtered

	log.Debug().Str("handler", name).Msg("unsubscribed from event batches")
}

// HandlerCount returns the number of registered handlers.
func (eb *EventBus) HandlerCount() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.handlers)
}

// Start launches the dispatcher. Calling it more than once has no effect.
func (eb *EventBus) Start() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.started || eb.stopped {
		return
	}
	eb.started = true
	go eb.dispatch()
}

// Publish enqueues a batch. It blocks while the queue is full, until ctx is
// done or the bus stops.
func (eb *EventBus) Publish(ctx context.Context, batch Batch) error {
	eb.sendMu.RLock()
	defer eb.sendMu.RUnlock()

	eb.mu.RLock()
	stopped := eb.stopped
	eb.mu.RUnlock()
	if stopped {
		return ErrBusStopped
	}

	select {
	case eb.queue <- batch:
		log.Trace().Str("label", batch.Label).Int("events", len(batch.Events)).Msg("batch queued")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-eb.stopCh:
		return ErrBusStopped
	}
}

func (eb *EventBus) dispatch() {
	defer close(eb.doneCh)

	for {
		select {
		case batch := <-eb.queue:
			eb.deliver(batch)
		case <-eb.drainCh:
			// Drain what was accepted before Stop.
			for {
				select {
				case batch := <-eb.queue:
					eb.deliver(batch)
				default:
					return
				}
			}
		}
	}
}

// deliver runs every handler on the batch and waits for them.
func (eb *EventBus) deliver(batch Batch) {
	eb.mu.RLock()
	handlers := make([]handlerEntry, len(eb.handlers))
	copy(handlers, eb.handlers)
	eb.mu.RUnlock()

	ctx := context.Background()
	var wg sync.WaitGroup
	for _, h := range handlers {
		h := h
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Str("label", batch.Label).
						Str("handler", h.name).
						Interface("panic", r).
						Msg("handler panicked")
				}
			}()

			if err := h.handler(ctx, batch); err != nil {
				log.Error().
					Err(err).
					Str("label", batch.Label).
					Str("handler", h.name).
					Msg("handler returned error")
			}
		}()
	}
	wg.Wait()
}

// Stop stops accepting batches, delivers those already queued and waits for
// the dispatcher to exit.
func (eb *EventBus) Stop() {
	eb.mu.Lock()
	if eb.stopped {
		eb.mu.Unlock()
		return
	}
	eb.stopped = true
	started := eb.started
	close(eb.stopCh)
	eb.mu.Unlock()

	// Wait out publishers already past the stopped check.
	eb.sendMu.Lock()
	close(eb.drainCh)
	eb.sendMu.Unlock()

	if started {
		<-eb.doneCh
	}
	log.Info().Msg("event bus stopped")
}

// Subscription is a channel-backed subscriber for callers that prefer to
// receive batches rather than register a callback.
type Subscription struct {
	bus  *EventBus
	name string
	ch   chan Batch
	once sync.Once
}

// Listen registers a Subscription buffering up to size batches. Batches that
// arrive while the buffer is full are dropped.
func (eb *EventBus) Listen(name string, size int) *Subscription {
	if size <= 0 {
		size = DefaultQueueSize
	}
	sub := &Subscription{bus: eb, name: name, ch: make(chan Batch, size)}
	eb.Subscribe(name, func(ctx context.Context, batch Batch) error {
		select {
		case sub.ch <- batch:
		default:
			log.Warn().Str("handler", name).Str("label", batch.Label).Msg("subscriber buffer full, dropping batch")
		}
		return nil
	})
	return sub
}

// C returns the receive channel.
func (s *Subscription) C() <-chan Batch {
	return s.ch
}

// Receive blocks until a batch arrives or ctx is done.
func (s *Subscription) Receive(ctx context.Context) (Batch, error) {
	select {
	case batch := <-s.ch:
		return batch, nil
	case <-ctx.Done():
		return Batch{}, ctx.Err()
	}
}

// Close detaches the subscription from the bus.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.Unsubscribe(s.name)
	})
}
