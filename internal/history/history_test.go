package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSink struct {
	mu     sync.Mutex
	events []Event
	err    error
	closed bool
}

func (m *memSink) Send(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return m.err
}

func (m *memSink) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *memSink) snapshot() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRecorder_DeliversInOrderAndClosesSinks(t *testing.T) {
	a, b := &memSink{}, &memSink{err: errors.New("down")}
	r := NewRecorder(quiet(), a, b)

	now := time.Now().UTC()
	r.Record(Event{Type: EventStart, OccurredAt: now, Record: Record{Name: "svc", PID: 10}})
	r.Record(Event{Type: EventStop, OccurredAt: now, Record: Record{Name: "svc", PID: 10}})
	require.NoError(t, r.Close())

	for _, s := range []*memSink{a, b} {
		got := s.snapshot()
		require.Len(t, got, 2)
		assert.Equal(t, EventStart, got[0].Type)
		assert.Equal(t, EventStop, got[1].Type)
		assert.True(t, s.closed)
	}

	// after close, Record is a no-op and Close is idempotent
	r.Record(Event{Type: EventStart})
	assert.NoError(t, r.Close())
	assert.Len(t, a.snapshot(), 2)
}

func TestRecorder_NilAndEmptyAreNoops(t *testing.T) {
	var r *Recorder
	r.Record(Event{Type: EventStart})
	assert.NoError(t, r.Close())

	empty := NewRecorder(nil)
	empty.Record(Event{Type: EventStart})
	assert.NoError(t, empty.Close())
}
