package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/bookstore/internal/core/domain"
	"github.com/rl1809/bookstore/internal/port"
)

const publishTimeout = 5 * time.Second

// EventSink accepts domain events for asynchronous delivery.
type EventSink interface {
	Dispatch(event domain.Event)
}

// EventDispatcher buffers events in a queue drained by a fixed set of workers.
// A failed publish is logged and dropped; it never fails the request that
// produced the event.
type EventDispatcher struct {
	publisher port.EventPublisher
	queue     chan domain.Event
	logger    *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewEventDispatcher(publisher port.EventPublisher, queueSize int, logger *zap.Logger) *EventDispatcher {
	return &EventDispatcher{
		publisher: publisher,
		queue:     make(chan domain.Event, queueSize),
		logger:    logger,
	}
}

func (d *EventDispatcher) Start(workers int) {
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			d.workerLoop(id)
		}(i)
	}
}

func (d *EventDispatcher) Dispatch(event domain.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("dispatcher closed, dropping event",
			zap.String("topic", event.Topic()), zap.String("key", event.Key()))
		return
	}

	select {
	case d.queue <- event:
	default:
		d.logger.Warn("event queue full, dropping event",
			zap.String("topic", event.Topic()), zap.String("key", event.Key()))
	}
}

// Close stops accepting events and waits for queued ones to be published.
func (d *EventDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *EventDispatcher) workerLoop(id int) {
	for event := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)

		if err := d.publisher.Publish(ctx, event); err != nil {
			d.logger.Error("failed to publish event",
				zap.Int("worker", id),
				zap.String("topic", event.Topic()),
				zap.String("key", event.Key()),
				zap.Error(err),
			)
		} else {
			d.logger.Debug("published event",
				zap.Int("worker", id),
				zap.String("topic", event.Topic()),
				zap.String("key", event.Key()),
			)
		}

		cancel()
	}
}
