package process

import (
	"context"
	"errors"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// DirectWaitBound is how long a Stop waits for exit confirmation after a
// direct kill before giving up and proceeding anyway.
const DirectWaitBound = 500 * time.Millisecond

// Terminator sends a termination request to a running process.
//
// WaitBound reports how long the caller should wait for the exit to be
// confirmed afterwards; zero means wait without bound.
type Terminator interface {
	Terminate(h *Handle) error
	WaitBound() time.Duration
}

// ChildTable maps a parent pid to the pids of its direct children.
type ChildTable map[int32][]int32

// TreeTerminator signals every descendant of the root, depth first, and
// then the root itself. It does not wait for descendants to die.
// Descendants are addressed by pid; the root goes through its Handle.
type TreeTerminator struct {
	// Snapshot reads the live process table. Defaults to SnapshotChildren.
	Snapshot func(ctx context.Context) (ChildTable, error)
	// Signal delivers the termination request to one descendant pid.
	// Defaults to SIGTERM.
	Signal func(pid int) error
	// SignalRoot terminates the root. Defaults to (*Handle).Terminate.
	SignalRoot func(h *Handle) error
	// ScanTimeout bounds the process table scan.
	ScanTimeout time.Duration
}

func NewTreeTerminator() *TreeTerminator {
	return &TreeTerminator{
		Snapshot:    SnapshotChildren,
		Signal:      signalPID,
		SignalRoot:  (*Handle).Terminate,
		ScanTimeout: 2 * time.Second,
	}
}

func (t *TreeTerminator) WaitBound() time.Duration { return 0 }

func (t *TreeTerminator) Terminate(h *Handle) error {
	pid := h.Pid()
	if pid <= 0 {
		return nil
	}
	snapshot := t.Snapshot
	if snapshot == nil {
		snapshot = SnapshotChildren
	}
	signal := t.Signal
	if signal == nil {
		signal = signalPID
	}
	signalRoot := t.SignalRoot
	if signalRoot == nil {
		signalRoot = (*Handle).Terminate
	}
	timeout := t.ScanTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	table, scanErr := snapshot(ctx)
	cancel()

	// Descendants are best-effort; a failed scan still terminates the root.
	for _, child := range Descendants(table, int32(pid)) {
		_ = signal(int(child))
	}
	if err := signalRoot(h); err != nil {
		return errors.Join(scanErr, err)
	}
	return scanErr
}

// DirectTerminator kills only the root process through its handle.
type DirectTerminator struct {
	// Bound overrides DirectWaitBound when positive.
	Bound time.Duration
}

func (d DirectTerminator) Terminate(h *Handle) error { return h.Kill() }

func (d DirectTerminator) WaitBound() time.Duration {
	if d.Bound > 0 {
		return d.Bound
	}
	return DirectWaitBound
}

// SnapshotChildren scans the live process table and indexes it by parent pid.
// Processes that exit mid-scan are skipped.
func SnapshotChildren(ctx context.Context) (ChildTable, error) {
	procs, err := gopsproc.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	table := make(ChildTable, len(procs))
	for _, p := range procs {
		ppid, err := p.PpidWithContext(ctx)
		if err != nil {
			continue
		}
		table[ppid] = append(table[ppid], p.Pid)
	}
	return table, nil
}

// Descendants returns every transitive child of root in depth-first
// post-order: a child's own subtree comes before the child. root itself is
// not included.
func Descendants(table ChildTable, root int32) []int32 {
	if len(table) == 0 {
		return nil
	}
	var out []int32
	seen := map[int32]bool{root: true}
	var walk func(pid int32)
	walk = func(pid int32) {
		for _, c := range table[pid] {
			if seen[c] {
				continue
			}
			seen[c] = true
			walk(c)
			out = append(out, c)
		}
	}
	walk(root)
	return out
}
