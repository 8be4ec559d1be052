package process

import (
	"errors"
	"maps"
	"slices"
)

var (
	ErrEmptyName    = errors.New("process name is required")
	ErrEmptyCommand = errors.New("process command must not be empty")
)

// Spec describes how to launch one named process.
// Command[0] is the executable path; the rest are passed as argv verbatim,
// no shell is involved. An empty Env inherits the supervisor's environment.
type Spec struct {
	Name    string            `json:"name" mapstructure:"name"`
	Command []string          `json:"command" mapstructure:"command"`
	Env     map[string]string `json:"env,omitempty" mapstructure:"env"`
}

// Validate reports the first structural problem with the spec.
func (s Spec) Validate() error {
	if s.Name == "" {
		return ErrEmptyName
	}
	if len(s.Command) == 0 || s.Command[0] == "" {
		return ErrEmptyCommand
	}
	return nil
}

// Clone returns a deep copy so callers can't mutate a spec held by a running monitor.
func (s Spec) Clone() Spec {
	return Spec{
		Name:    s.Name,
		Command: slices.Clone(s.Command),
		Env:     maps.Clone(s.Env),
	}
}

// Path returns the executable path, or "" when the command is empty.
func (s Spec) Path() string {
	if len(s.Command) == 0 {
		return ""
	}
	return s.Command[0]
}
