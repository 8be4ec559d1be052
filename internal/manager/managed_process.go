package manager

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/nodebase/internal/env"
	"github.com/loykin/nodebase/internal/event"
	"github.com/loykin/nodebase/internal/metrics"
	"github.com/loykin/nodebase/internal/process"
)

// deps are the collaborators shared by every ManagedProcess of one Manager.
type deps struct {
	terminator   process.Terminator
	env          atomic.Pointer[env.Env]
	emit         func(kind event.Kind, st process.Status)
	onTransition func(name string, from, to process.State)
	log          *slog.Logger
}

// ManagedProcess supervises exactly one OS process from spawn to exit.
//
// A single lifecycle goroutine owns the handle's Wait; every other method only
// reads state under mu or sends a termination request. The state moves
// Born -> Ready -> Running -> Dead and never back.
type ManagedProcess struct {
	spec process.Spec
	d    *deps

	mu        sync.Mutex
	state     process.State
	handle    *process.Handle
	pid       int
	startedAt time.Time
	stoppedAt time.Time
	exitErr   error

	spawned   chan struct{} // closed once the spawn attempt has settled
	done      chan struct{} // closed after the stop event (or the spawn failure)
	closeOnce sync.Once
}

// newManagedProcess records spec and launches the lifecycle goroutine.
// It returns immediately; the spawn happens asynchronously.
func newManagedProcess(spec process.Spec, d *deps) *ManagedProcess {
	mp := &ManagedProcess{
		spec:    spec.Clone(),
		d:       d,
		state:   process.StateBorn,
		spawned: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go mp.run()
	return mp
}

func (mp *ManagedProcess) run() {
	defer close(mp.done)
	name := mp.spec.Name

	mp.advance(process.StateReady)

	h, err := process.Spawn(mp.spec, mp.d.env.Load().Block(mp.spec.Env))
	if err != nil {
		mp.mu.Lock()
		mp.exitErr = err
		mp.stoppedAt = time.Now()
		from, ok := mp.advanceLocked(process.StateDead)
		mp.mu.Unlock()
		close(mp.spawned)
		mp.notify(from, process.StateDead, ok)

		mp.d.log.Error("process spawn failed", "name", name, "command", mp.spec.Command, "error", err)
		metrics.IncSpawnFailure(name)
		return
	}

	mp.mu.Lock()
	mp.handle = h
	mp.pid = h.Pid()
	mp.startedAt = time.Now()
	from, ok := mp.advanceLocked(process.StateRunning)
	started := mp.statusLocked()
	mp.mu.Unlock()
	close(mp.spawned)
	mp.notify(from, process.StateRunning, ok)

	metrics.IncSpawn(name)
	mp.d.log.Info("process started", "name", name, "pid", started.PID)
	mp.d.emit(event.KindStart, started)

	waitErr := h.Wait()

	mp.mu.Lock()
	mp.handle = nil
	if waitErr != nil {
		mp.exitErr = waitErr
	}
	if mp.stoppedAt.IsZero() {
		mp.stoppedAt = time.Now()
	}
	from, ok = mp.advanceLocked(process.StateDead)
	stopped := mp.statusLocked()
	mp.mu.Unlock()
	mp.notify(from, process.StateDead, ok)

	h.Release()
	metrics.IncStop(name)
	mp.d.log.Info("process exited", "name", name, "pid", stopped.LastPID, "error", waitErr)
	mp.d.emit(event.KindStop, stopped)
}

// Stop asks the running process to terminate and waits for the lifecycle
// goroutine to observe the exit. It is a no-op unless the process is Running.
//
// With a bounded terminator the wait gives up after WaitBound: the instance is
// marked Dead even though the OS process may still be alive.
func (mp *ManagedProcess) Stop() {
	mp.mu.Lock()
	h := mp.handle
	running := mp.state == process.StateRunning && h != nil
	mp.mu.Unlock()
	if !running {
		return
	}

	name := mp.spec.Name
	if err := mp.d.terminator.Terminate(h); err != nil {
		mp.d.log.Warn("terminate request failed", "name", name, "pid", h.Pid(), "error", err)
	}

	bound := mp.d.terminator.WaitBound()
	if bound <= 0 {
		<-mp.done
		return
	}
	timer := time.NewTimer(bound)
	defer timer.Stop()
	select {
	case <-mp.done:
	case <-timer.C:
		mp.d.log.Error("process termination timed out", "name", name, "pid", h.Pid(), "waited", bound)
		metrics.IncTerminationTimeout(name)
		mp.mu.Lock()
		mp.handle = nil
		mp.stoppedAt = time.Now()
		from, ok := mp.advanceLocked(process.StateDead)
		mp.mu.Unlock()
		mp.notify(from, process.StateDead, ok)
	}
}

// Restart stops this instance and returns a fresh one for the same spec.
// The receiver is closed before the replacement is constructed, so at most
// one of them is ever Running.
func (mp *ManagedProcess) Restart() *ManagedProcess {
	mp.Close()
	return newManagedProcess(mp.spec, mp.d)
}

// Close stops the process and joins the lifecycle goroutine. Close waits for
// an in-flight spawn to settle first so a process that is just coming up is
// still terminated. Calls after the first return immediately.
func (mp *ManagedProcess) Close() {
	mp.closeOnce.Do(func() {
		<-mp.spawned
		mp.Stop()

		bound := mp.d.terminator.WaitBound()
		if bound <= 0 {
			<-mp.done
			return
		}
		select {
		case <-mp.done:
		case <-time.After(bound):
			mp.d.log.Warn("abandoning process monitor", "name", mp.spec.Name, "pid", mp.Status().LastPID)
		}
	})
}

// Status returns a point-in-time snapshot.
func (mp *ManagedProcess) Status() process.Status {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.statusLocked()
}

func (mp *ManagedProcess) State() process.State {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.state
}

func (mp *ManagedProcess) Spec() process.Spec { return mp.spec.Clone() }

// Done is closed once the lifecycle goroutine has finished.
func (mp *ManagedProcess) Done() <-chan struct{} { return mp.done }

func (mp *ManagedProcess) statusLocked() process.Status {
	st := process.Status{
		Name:      mp.spec.Name,
		State:     mp.state,
		Stat:      mp.state.Label(),
		StartedAt: mp.startedAt,
		StoppedAt: mp.stoppedAt,
		LastPID:   mp.pid,
	}
	if mp.state == process.StateRunning {
		st.PID = mp.pid
	}
	if mp.exitErr != nil {
		st.ExitErr = mp.exitErr.Error()
	}
	return st
}

func (mp *ManagedProcess) advance(to process.State) {
	mp.mu.Lock()
	from, ok := mp.advanceLocked(to)
	mp.mu.Unlock()
	mp.notify(from, to, ok)
}

// advanceLocked moves the state forward; backward or repeated moves are ignored.
func (mp *ManagedProcess) advanceLocked(to process.State) (process.State, bool) {
	from := mp.state
	if to <= from {
		return from, false
	}
	mp.state = to
	return from, true
}

func (mp *ManagedProcess) notify(from, to process.State, ok bool) {
	if ok && mp.d.onTransition != nil {
		mp.d.onTransition(mp.spec.Name, from, to)
	}
}
