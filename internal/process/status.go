package process

import "time"

// State is the lifecycle position of one monitored process.
// Transitions only move forward: Born -> Ready -> Running -> Dead.
type State int32

const (
	StateBorn State = iota
	StateReady
	StateRunning
	StateDead
)

func (s State) String() string {
	switch s {
	case StateBorn:
		return "born"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Label is the status string reported to the UI bridge.
// Ready is reported as "new" and Born as "none".
func (s State) Label() string {
	switch s {
	case StateReady:
		return "new"
	case StateRunning:
		return "running"
	case StateDead:
		return "dead"
	default:
		return "none"
	}
}

// Status is a point-in-time snapshot of a monitored process.
type Status struct {
	Name      string    `json:"name"`
	State     State     `json:"-"`
	Stat      string    `json:"stat"`
	PID       int       `json:"pid,omitempty"`
	LastPID   int       `json:"last_pid,omitempty"` // pid of the most recent spawn, kept after exit
	StartedAt time.Time `json:"started_at,omitempty"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
	ExitErr   string    `json:"exit_error,omitempty"`
}

// Running reports whether the snapshot was taken while the OS process was live.
func (s Status) Running() bool { return s.State == StateRunning }
