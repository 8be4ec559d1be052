package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
)

// Handle owns a single spawned OS process.
// Wait must only be called by the goroutine driving the lifecycle; the
// termination side works from the PID or Kill and never waits itself.
type Handle struct {
	cmd *exec.Cmd
	pid int

	waitOnce sync.Once
	waitErr  error
}

// Spawn starts spec.Command directly (no shell) with the given environment
// block. A nil env inherits the supervisor's environment.
func Spawn(spec Spec, env []string) (*Handle, error) {
	if len(spec.Command) == 0 || spec.Command[0] == "" {
		return nil, ErrEmptyCommand
	}
	// ok: argv is supplied by the embedding application, not a shell string
	// #nosec G204
	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Env = env
	configureSysProcAttr(cmd)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn %q: %w", spec.Command[0], err)
	}
	return &Handle{cmd: cmd, pid: cmd.Process.Pid}, nil
}

// Pid returns the OS process id.
func (h *Handle) Pid() int {
	if h == nil {
		return 0
	}
	return h.pid
}

// Wait blocks until the OS reports the process has exited.
func (h *Handle) Wait() error {
	h.waitOnce.Do(func() {
		h.waitErr = h.cmd.Wait()
	})
	return h.waitErr
}

// Kill terminates the process directly, without touching descendants.
func (h *Handle) Kill() error {
	if h == nil || h.cmd == nil || h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Kill()
}

// Terminate asks the process to exit through its OS handle rather than its
// pid, so a process already reaped by Wait is never confused with a recycled
// pid. It returns nil when the process has already finished.
func (h *Handle) Terminate() error {
	if h == nil || h.cmd == nil || h.cmd.Process == nil {
		return nil
	}
	err := h.cmd.Process.Signal(terminateSignal)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// Release frees OS resources tied to the handle. Safe after Wait.
func (h *Handle) Release() {
	if h == nil || h.cmd == nil || h.cmd.Process == nil {
		return
	}
	_ = h.cmd.Process.Release()
}
