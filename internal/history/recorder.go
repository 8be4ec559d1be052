package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultQueueSize   = 256
	defaultSendTimeout = 5 * time.Second
)

// Recorder forwards events to sinks from a single background goroutine so
// that slow sinks never stall the goroutine reporting the event. Events are
// delivered to each sink in the order they were recorded; when the queue is
// full new events are dropped and logged.
type Recorder struct {
	sinks   []Sink
	log     *slog.Logger
	timeout time.Duration

	queue chan Event
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewRecorder starts a recorder. With no sinks every Record is a no-op.
func NewRecorder(log *slog.Logger, sinks ...Sink) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	r := &Recorder{
		sinks:   append([]Sink(nil), sinks...),
		log:     log,
		timeout: defaultSendTimeout,
		queue:   make(chan Event, defaultQueueSize),
	}
	if len(r.sinks) > 0 {
		r.wg.Add(1)
		go r.loop()
	}
	return r
}

// Record enqueues e without blocking.
func (r *Recorder) Record(e Event) {
	if r == nil || len(r.sinks) == 0 {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- e:
	default:
		r.log.Warn("history queue full, event dropped", "type", e.Type, "name", e.Record.Name)
	}
}

func (r *Recorder) loop() {
	defer r.wg.Done()
	for e := range r.queue {
		for _, s := range r.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			if err := s.Send(ctx, e); err != nil {
				r.log.Warn("history sink send failed", "type", e.Type, "name", e.Record.Name, "error", err)
			}
			cancel()
		}
	}
}

// Close drains queued events and closes every sink implementing io.Closer.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
	var errs []error
	for _, s := range r.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
