package event

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Kind is the lifecycle transition an event reports.
type Kind string

const (
	KindStart Kind = "start"
	KindStop  Kind = "stop"
)

// Event is a fire-and-forget lifecycle notification for one named process.
type Event struct {
	Kind Kind   `json:"kind"`
	Name string `json:"name"`
}

// Subscriber receives events synchronously on the posting goroutine.
// It must not block for long: the poster is a process lifecycle goroutine.
// Reading status from the registry is safe; starting or stopping processes
// from inside a subscriber waits for any registry operation in flight.
type Subscriber func(Event) error

// ErrDropped is returned by channel subscribers when the buffer is full.
var ErrDropped = errors.New("event dropped: subscriber buffer full")

// Bus delivers events to at most one subscriber.
// Events posted while nobody is subscribed are discarded; there is no replay.
type Bus struct {
	mu  sync.RWMutex
	id  string
	sub Subscriber
	log *slog.Logger
}

func NewBus(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{log: log}
}

// Subscribe installs fn as the subscriber under id, replacing any previous one.
func (b *Bus) Subscribe(id string, fn Subscriber) {
	b.mu.Lock()
	prev := b.id
	b.id = id
	b.sub = fn
	b.mu.Unlock()
	if prev != "" && prev != id {
		b.log.Debug("event subscriber replaced", "previous", prev, "current", id)
	}
}

// Unsubscribe detaches the subscriber only if id is still the current one,
// so a stale detach can't remove a newer subscriber.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub == nil || b.id != id {
		return false
	}
	b.id = ""
	b.sub = nil
	return true
}

// Subscribed reports the current subscriber id, if any.
func (b *Bus) Subscribed() (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.id, b.sub != nil
}

// Post delivers e to the current subscriber. It never panics and never
// returns an error; failures are logged.
func (b *Bus) Post(e Event) {
	b.mu.RLock()
	id, fn := b.id, b.sub
	b.mu.RUnlock()
	if fn == nil {
		return
	}
	if err := deliver(fn, e); err != nil {
		b.log.Warn("event delivery failed", "subscriber", id, "kind", e.Kind, "name", e.Name, "error", err)
	}
}

func deliver(fn Subscriber, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
		}
	}()
	return fn(e)
}

// ChannelSubscriber adapts ch into a Subscriber that never blocks: when ch is
// full the event is dropped and ErrDropped is reported.
func ChannelSubscriber(ch chan<- Event) Subscriber {
	return func(e Event) error {
		select {
		case ch <- e:
			return nil
		default:
			return ErrDropped
		}
	}
}
