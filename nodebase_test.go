//go:build !windows

package nodebase

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfg "github.com/loykin/nodebase/internal/config"
	"github.com/loykin/nodebase/internal/history/sqlite"
	"github.com/loykin/nodebase/pkg/client"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) fn(e Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestManagerFacade_Lifecycle(t *testing.T) {
	var transitions sync.Map
	m := New(Options{
		Logger: quiet(),
		OnTransition: func(name string, _, to State) {
			transitions.Store(name+"/"+to.String(), true)
		},
	})
	t.Cleanup(func() { _ = m.Shutdown() })

	var col collector
	m.Subscribe("test", col.fn)

	m.Start(Spec{Name: "sleeper", Command: []string{"/bin/sleep", "30"}})
	require.Eventually(t, func() bool {
		st, ok := m.Stat("sleeper")
		return ok && st.Running()
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return col.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	m.Stop("sleeper")
	st, ok := m.Stat("sleeper")
	require.True(t, ok)
	assert.Equal(t, "dead", st.Stat)
	require.Eventually(t, func() bool { return col.count() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []Event{{Kind: EventStart, Name: "sleeper"}, {Kind: EventStop, Name: "sleeper"}}, col.events)

	_, running := transitions.Load("sleeper/running")
	assert.True(t, running)
	_, dead := transitions.Load("sleeper/dead")
	assert.True(t, dead)

	assert.True(t, m.Unsubscribe("test"))
	assert.False(t, m.Unsubscribe("test"))
}

func TestManagerFacade_Call(t *testing.T) {
	m := New(Options{Logger: quiet()})
	t.Cleanup(func() { _ = m.Shutdown() })
	ctx := context.Background()

	_, err := m.Call(ctx, "app.start", map[string]any{"name": "s", "cmd": []any{"/bin/sleep", "30"}})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		res, err := m.Call(ctx, "app.stat", map[string]any{"name": "s"})
		return err == nil && res.(map[string]any)["stat"] == "running"
	}, 5*time.Second, 10*time.Millisecond)

	res, err := m.Call(ctx, "app.restart", map[string]any{"name": "s"})
	require.NoError(t, err)
	assert.Equal(t, true, res)

	res, err = m.Call(ctx, "app.stat", map[string]any{"name": "missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, res)

	_, err = m.Call(ctx, "app.frobnicate", nil)
	assert.Error(t, err)
}

func TestManagerFacade_StartAllAndShutdown(t *testing.T) {
	m := New(Options{Logger: quiet()})
	m.StartAll([]Spec{
		{Name: "a", Command: []string{"/bin/sleep", "30"}},
		{Name: "b", Command: []string{"/bin/sleep", "30"}},
	})
	require.Eventually(t, func() bool {
		for _, st := range m.List() {
			if !st.Running() {
				return false
			}
		}
		return len(m.List()) == 2
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, m.Shutdown())
	for _, st := range m.List() {
		assert.Equal(t, "dead", st.Stat, st.Name)
	}
}

func TestManagerFacade_History(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	sinks, err := NewHistorySinks([]string{"sqlite://" + path})
	require.NoError(t, err)

	m := New(Options{Logger: quiet(), HistorySinks: sinks})
	m.Start(Spec{Name: "once", Command: []string{"/bin/sh", "-c", "exit 0"}})
	require.Eventually(t, func() bool {
		st, ok := m.Stat("once")
		return ok && st.Stat == "dead"
	}, 5*time.Second, 10*time.Millisecond)
	// Shutdown joins the monitor, so the stop event is queued before history closes.
	require.NoError(t, m.Shutdown())

	s, err := sqlite.New("sqlite://" + path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	n, err := s.Count(context.Background(), "once")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNewHTTPServer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New(Options{Logger: quiet()})
	t.Cleanup(func() { _ = m.Shutdown() })

	srv, err := NewHTTPServer("127.0.0.1:0", m, ServerOptions{BasePath: "/api", Token: "t0k"})
	require.NoError(t, err)
	assert.Nil(t, srv.TLSConfig)

	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()
	c, err := client.New(client.Config{BaseURL: ts.URL + "/api", Token: "t0k", Logger: quiet()})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Start(ctx, client.StartRequest{Name: "web", Command: []string{"/bin/sleep", "30"}}))
	require.Eventually(t, func() bool {
		stat, err := c.Stat(ctx, "web")
		return err == nil && stat == "running"
	}, 5*time.Second, 20*time.Millisecond)
	apps, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Positive(t, apps[0].PID)
	require.NoError(t, c.Stop(ctx, "web"))

	_, err = NewHTTPServer("127.0.0.1:0", m, ServerOptions{TLS: &cfg.TLSConfig{Enabled: true}})
	assert.Error(t, err)

	tlsSrv, err := NewHTTPServer("127.0.0.1:0", m, ServerOptions{
		TLS: &cfg.TLSConfig{Enabled: true, Dir: t.TempDir(), AutoGenerate: true},
	})
	require.NoError(t, err)
	assert.NotNil(t, tlsSrv.TLSConfig)
}
