// Package nodebase embeds a child-process supervisor: named processes are
// started, stopped and restarted on request, their lifecycle is reported as
// start/stop events, and a small method bridge exposes the registry and a
// few host utilities to a UI.
package nodebase

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/nodebase/internal/bridge"
	cfg "github.com/loykin/nodebase/internal/config"
	"github.com/loykin/nodebase/internal/event"
	"github.com/loykin/nodebase/internal/history"
	"github.com/loykin/nodebase/internal/history/factory"
	"github.com/loykin/nodebase/internal/manager"
	"github.com/loykin/nodebase/internal/metrics"
	"github.com/loykin/nodebase/internal/process"
	"github.com/loykin/nodebase/internal/server"
	itls "github.com/loykin/nodebase/internal/tls"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Spec = process.Spec

type Status = process.Status

type State = process.State

type Terminator = process.Terminator

type Event = event.Event

type EventKind = event.Kind

type Subscriber = event.Subscriber

type HistorySink = history.Sink

type Config = cfg.Config

const (
	EventStart = event.KindStart
	EventStop  = event.KindStop
)

// Options configures New. Zero values select defaults.
type Options struct {
	Logger *slog.Logger
	// Terminator overrides the platform default (process tree on Unix,
	// root process only on Windows).
	Terminator Terminator
	// HistorySinks receive a copy of every lifecycle event.
	HistorySinks []HistorySink
	// OnTransition observes every state change of every process.
	OnTransition func(name string, from, to State)
}

// Manager is the embeddable supervisor: the process registry plus its
// event bus, history recorder and method bridge.
type Manager struct {
	inner    *manager.Manager
	bus      *event.Bus
	recorder *history.Recorder
	bridge   *bridge.Bridge
	log      *slog.Logger
}

func New(opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	bus := event.NewBus(log)
	rec := history.NewRecorder(log, opts.HistorySinks...)
	inner := manager.NewManager(manager.Options{
		Logger:       log,
		Bus:          bus,
		Terminator:   opts.Terminator,
		History:      rec,
		OnTransition: opts.OnTransition,
	})
	return &Manager{
		inner:    inner,
		bus:      bus,
		recorder: rec,
		bridge:   bridge.New(inner, bridge.DefaultUtils(), log),
		log:      log,
	}
}

func (m *Manager) SetGlobalEnv(kvs []string)          { m.inner.SetGlobalEnv(kvs) }
func (m *Manager) Start(s Spec)                       { m.inner.Start(s) }
func (m *Manager) Stop(name string)                   { m.inner.Stop(name) }
func (m *Manager) Restart(name string) bool           { return m.inner.Restart(name) }
func (m *Manager) Stat(name string) (Status, bool)    { return m.inner.Stat(name) }
func (m *Manager) List() []Status                     { return m.inner.List() }
func (m *Manager) Subscribe(id string, fn Subscriber) { m.bus.Subscribe(id, fn) }
func (m *Manager) Unsubscribe(id string) bool         { return m.bus.Unsubscribe(id) }
func (m *Manager) Subscribed() (string, bool)         { return m.bus.Subscribed() }

// Call dispatches one bridge method (app.* or util.*).
func (m *Manager) Call(ctx context.Context, method string, args map[string]any) (any, error) {
	return m.bridge.Call(ctx, method, args)
}

// Shutdown stops every process, waits for their monitors and flushes history.
func (m *Manager) Shutdown() error {
	m.inner.Shutdown()
	return m.recorder.Close()
}

// StartAll starts every spec in order.
func (m *Manager) StartAll(specs []Spec) {
	for _, s := range specs {
		m.inner.Start(s)
	}
}

// ServerOptions configures the HTTP bridge.
type ServerOptions struct {
	BasePath string
	// Token, when set, is required as a bearer token.
	Token string
	TLS   *cfg.TLSConfig
	// Metrics serves the default Prometheus registry at /metrics.
	Metrics bool
}

// Handler returns the HTTP bridge for m without binding a listener.
func (m *Manager) Handler(opts ServerOptions) http.Handler {
	r := server.NewRouter(m.bridge, m.bus, opts.BasePath, m.log).WithAuth(opts.Token)
	if opts.Metrics {
		r.WithMetrics(metrics.Handler())
	}
	return r.Handler()
}

// NewHTTPServer builds the HTTP bridge server for m. When TLS is enabled
// the returned server has TLSConfig set and must be served with
// ListenAndServeTLS("", "").
func NewHTTPServer(addr string, m *Manager, opts ServerOptions) (*http.Server, error) {
	tlsCfg, err := itls.SetupTLS(opts.TLS)
	if err != nil {
		return nil, err
	}
	return server.NewServer(addr, m.Handler(opts), tlsCfg), nil
}

func LoadConfig(path string) (*Config, error) { return cfg.LoadConfig(path) }

// NewHistorySinks builds sinks from DSNs such as sqlite:///var/lib/h.db,
// postgres://..., clickhouse://host:9000?table=t or opensearch://host:9200/index.
func NewHistorySinks(dsns []string) ([]HistorySink, error) { return factory.NewSinks(dsns) }

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
