package manager

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/loykin/nodebase/internal/env"
	"github.com/loykin/nodebase/internal/event"
	"github.com/loykin/nodebase/internal/history"
	"github.com/loykin/nodebase/internal/metrics"
	"github.com/loykin/nodebase/internal/process"
)

// ErrUnknownName is returned by callers that need to distinguish an absent
// name; the registry itself treats unknown names as a no-op.
var ErrUnknownName = errors.New("unknown process name")

// Options configures a Manager. Zero values select defaults.
type Options struct {
	Logger *slog.Logger
	// Bus receives start/stop notifications. A private bus is created when nil.
	Bus *event.Bus
	// Terminator defaults to process.DefaultTerminator().
	Terminator process.Terminator
	// Env holds global variables merged under every non-empty process env.
	Env *env.Env
	// History, when set, receives a copy of every lifecycle event.
	History *history.Recorder
	// OnTransition observes every state change in addition to metrics.
	OnTransition func(name string, from, to process.State)
}

// Manager is the registry of monitored processes, keyed by name.
// At most one entry exists per name. opMu is held across the whole of Start,
// Stop, Restart and Shutdown so those operations never interleave; mu guards
// only the map and is never held while waiting on a process, so Stat and List
// stay available to event subscribers during a stop.
type Manager struct {
	opMu    sync.Mutex
	mu      sync.RWMutex
	entries map[string]*ManagedProcess

	d       *deps
	bus     *event.Bus
	history *history.Recorder
}

func NewManager(opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	bus := opts.Bus
	if bus == nil {
		bus = event.NewBus(log)
	}
	term := opts.Terminator
	if term == nil {
		term = process.DefaultTerminator()
	}

	m := &Manager{
		entries: make(map[string]*ManagedProcess),
		bus:     bus,
		history: opts.History,
	}
	hook := opts.OnTransition
	m.d = &deps{
		terminator: term,
		log:        log,
		emit:       m.emit,
		onTransition: func(name string, from, to process.State) {
			metrics.RecordStateTransition(name, from.String(), to.String())
			metrics.SetCurrentState(name, from.String(), false)
			metrics.SetCurrentState(name, to.String(), true)
			if hook != nil {
				hook(name, from, to)
			}
		},
	}
	if opts.Env != nil {
		m.d.env.Store(snapshotEnv(opts.Env.Var))
	}
	return m
}

// Bus returns the event bus lifecycle notifications are posted to.
func (m *Manager) Bus() *event.Bus { return m.bus }

// SetGlobalEnv replaces the global variables used for subsequent spawns.
// kvs must be in the form "KEY=VALUE"; malformed entries are skipped.
func (m *Manager) SetGlobalEnv(kvs []string) {
	e := env.New()
	e.SetPairs(kvs)
	m.d.env.Store(snapshotEnv(e.Var))
}

// snapshotEnv returns an immutable Env safe to share across lifecycle goroutines.
func snapshotEnv(vars env.Var) *env.Env {
	e := env.New()
	for k, v := range vars {
		e.Set(k, v)
	}
	e.FromOS()
	return e
}

// Start launches spec under spec.Name. An existing entry with the same name
// is stopped and joined first. Start never fails synchronously: a command that
// cannot be spawned ends up Dead.
func (m *Manager) Start(spec process.Spec) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if old, ok := m.lookup(spec.Name); ok {
		m.d.log.Debug("replacing process", "name", spec.Name)
		old.Close()
	}
	m.store(spec.Name, newManagedProcess(spec, m.d))
}

// Stop terminates the named process and keeps its entry (now Dead).
// Unknown names are ignored.
func (m *Manager) Stop(name string) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if mp, ok := m.lookup(name); ok {
		mp.Stop()
	}
}

// Restart replaces the named process with a fresh instance of the same spec.
// It reports false when the name is unknown.
func (m *Manager) Restart(name string) bool {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	old, ok := m.lookup(name)
	if !ok {
		return false
	}
	old.Stop()
	next := old.Restart()
	if next == nil {
		return false
	}
	m.store(name, next)
	old.Close()
	metrics.IncRestart(name)
	m.d.log.Info("process restarted", "name", name)
	return true
}

// Stat returns a snapshot of the named process.
func (m *Manager) Stat(name string) (process.Status, bool) {
	mp, ok := m.lookup(name)
	if !ok {
		return process.Status{}, false
	}
	return mp.Status(), true
}

// List returns a snapshot of every entry ordered by name.
func (m *Manager) List() []process.Status {
	mps := m.snapshot()

	out := make([]process.Status, 0, len(mps))
	for _, mp := range mps {
		out = append(out, mp.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Shutdown closes every entry concurrently and waits for all of them.
// Entries stay in the registry as Dead.
func (m *Manager) Shutdown() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	var wg sync.WaitGroup
	for _, mp := range m.snapshot() {
		wg.Add(1)
		go func(mp *ManagedProcess) {
			defer wg.Done()
			mp.Close()
		}(mp)
	}
	wg.Wait()
}

func (m *Manager) lookup(name string) (*ManagedProcess, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mp, ok := m.entries[name]
	return mp, ok
}

func (m *Manager) store(name string, mp *ManagedProcess) {
	m.mu.Lock()
	m.entries[name] = mp
	m.mu.Unlock()
}

func (m *Manager) snapshot() []*ManagedProcess {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mps := make([]*ManagedProcess, 0, len(m.entries))
	for _, mp := range m.entries {
		mps = append(mps, mp)
	}
	return mps
}

func (m *Manager) emit(kind event.Kind, st process.Status) {
	m.bus.Post(event.Event{Kind: kind, Name: st.Name})
	if m.history == nil {
		return
	}
	typ := history.EventStart
	if kind == event.KindStop {
		typ = history.EventStop
	}
	m.history.Record(history.Event{
		Type:       typ,
		OccurredAt: time.Now().UTC(),
		Record: history.Record{
			Name:      st.Name,
			PID:       st.LastPID,
			State:     st.Stat,
			StartedAt: st.StartedAt,
			StoppedAt: st.StoppedAt,
			ExitErr:   st.ExitErr,
		},
	})
}
