package event

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestPost_NoSubscriberDrops(t *testing.T) {
	b := NewBus(quietLogger())
	// must not panic or block
	b.Post(Event{Kind: KindStart, Name: "svc"})
	_, ok := b.Subscribed()
	assert.False(t, ok)
}

func TestPost_DeliversToCurrentSubscriber(t *testing.T) {
	b := NewBus(quietLogger())
	var got []Event
	b.Subscribe("ui", func(e Event) error {
		got = append(got, e)
		return nil
	})
	b.Post(Event{Kind: KindStart, Name: "svc"})
	b.Post(Event{Kind: KindStop, Name: "svc"})
	assert.Equal(t, []Event{{KindStart, "svc"}, {KindStop, "svc"}}, got)
}

func TestSubscribe_ReplacesPrevious(t *testing.T) {
	b := NewBus(quietLogger())
	var first, second int
	b.Subscribe("a", func(Event) error { first++; return nil })
	b.Subscribe("b", func(Event) error { second++; return nil })
	b.Post(Event{Kind: KindStart, Name: "x"})
	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)

	// stale detach must not remove the newer subscriber
	assert.False(t, b.Unsubscribe("a"))
	id, ok := b.Subscribed()
	require.True(t, ok)
	assert.Equal(t, "b", id)

	assert.True(t, b.Unsubscribe("b"))
	b.Post(Event{Kind: KindStop, Name: "x"})
	assert.Equal(t, 1, second)
}

func TestPost_SwallowsErrorsAndPanics(t *testing.T) {
	b := NewBus(quietLogger())
	b.Subscribe("err", func(Event) error { return errors.New("ui gone") })
	assert.NotPanics(t, func() { b.Post(Event{Kind: KindStart, Name: "x"}) })

	b.Subscribe("panic", func(Event) error { panic("boom") })
	assert.NotPanics(t, func() { b.Post(Event{Kind: KindStart, Name: "x"}) })
}

func TestChannelSubscriber_DropsWhenFull(t *testing.T) {
	ch := make(chan Event, 1)
	sub := ChannelSubscriber(ch)
	require.NoError(t, sub(Event{Kind: KindStart, Name: "a"}))
	assert.ErrorIs(t, sub(Event{Kind: KindStop, Name: "a"}), ErrDropped)
	assert.Equal(t, Event{Kind: KindStart, Name: "a"}, <-ch)
}

func TestBus_ConcurrentPostAndSubscribe(t *testing.T) {
	b := NewBus(quietLogger())
	ch := make(chan Event, 1024)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				b.Post(Event{Kind: KindStart, Name: "n"})
			}
		}()
		go func() {
			defer wg.Done()
			b.Subscribe("s", ChannelSubscriber(ch))
			b.Unsubscribe("s")
		}()
	}
	wg.Wait()
}
