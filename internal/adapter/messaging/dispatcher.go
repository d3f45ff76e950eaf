package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grupoimpulso/seat-sales/internal/core/domain"
	"github.com/grupoimpulso/seat-sales/internal/port"
)

const publishTimeout = 5 * time.Second

// Dispatcher queues sale events on a bounded channel and publishes them
// from a fixed pool of workers. Emit never blocks the caller.
type Dispatcher struct {
	publisher port.EventPublisher
	queue     chan domain.SaleEvent
	wg        sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(publisher port.EventPublisher, workers, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	d := &Dispatcher{
		publisher: publisher,
		queue:     make(chan domain.SaleEvent, queueSize),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			d.workerLoop(id)
		}(i)
	}
	logrus.WithFields(logrus.Fields{"workers": workers, "queue_size": queueSize}).Info("event dispatcher started")
	return d
}

// Emit enqueues the event, dropping it with a warning when the queue is full
// or the dispatcher is closed.
func (d *Dispatcher) Emit(event domain.SaleEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		logrus.WithField("type", event.Type).Warn("event dispatcher closed, event dropped")
		return
	}

	select {
	case d.queue <- event:
	default:
		logrus.WithFields(logrus.Fields{
			"type":    event.Type,
			"sale_id": event.SaleID,
		}).Warn("event queue full, event dropped")
	}
}

// Close stops accepting events, waits for the workers to drain the queue
// and closes the publisher.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	logrus.Info("event dispatcher drained")
	return d.publisher.Close()
}

func (d *Dispatcher) workerLoop(id int) {
	for event := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)

		if err := d.publisher.Publish(ctx, event); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"worker":  id,
				"type":    event.Type,
				"sale_id": event.SaleID,
			}).Error("failed to publish sale event")
		}

		cancel()
	}
}
