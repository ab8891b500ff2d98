package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Dispatcher hands events to a Recorder on a background worker so callers
// never wait on the audit backend.
type Dispatcher struct {
	logger   *zap.Logger
	recorder Recorder
	timeout  time.Duration

	mu     sync.Mutex
	closed bool
	queue  chan Event
	done   chan struct{}
}

func NewDispatcher(
	logger *zap.Logger,
	recorder Recorder,
	bufferSize int,
	timeout time.Duration,
) *Dispatcher {
	d := &Dispatcher{
		logger:   logger,
		recorder: recorder,
		timeout:  timeout,
		queue:    make(chan Event, bufferSize),
		done:     make(chan struct{}),
	}

	go d.run()

	return d
}

// Dispatch enqueues event without blocking. Events are dropped when the
// queue is full or the dispatcher is stopped.
func (d *Dispatcher) Dispatch(event Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		d.logger.Warn("audit dispatcher stopped, dropping event",
			zap.String("eventId", event.Id),
			zap.String("documentId", event.DocumentId))

		return
	}

	select {
	case d.queue <- event:
	default:
		d.logger.Warn("audit queue is full, dropping event",
			zap.String("eventId", event.Id),
			zap.String("documentId", event.DocumentId))
	}
}

// Stop drains the queued events and waits for the worker to exit.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done

		return
	}

	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for event := range d.queue {
		d.record(event)
	}
}

func (d *Dispatcher) record(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	err := d.recorder.Record(ctx, event)
	if err != nil {
		d.logger.Error("failed to record audit event",
			zap.String("eventId", event.Id),
			zap.String("kind", event.Kind),
			zap.String("documentId", event.DocumentId),
			zap.Error(err))
	}
}
