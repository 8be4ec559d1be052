package client

import "fmt"

// App is one row of an app.list result.
type App struct {
	Name string `json:"name"`
	Stat string `json:"stat"`
	PID  int    `json:"pid,omitempty"`
}

// StartRequest launches Command under Name, replacing any process already
// registered under that name. A non-empty Env replaces the inherited
// environment.
type StartRequest struct {
	Name    string            `json:"name"`
	Command []string          `json:"cmd"`
	Env     map[string]string `json:"env,omitempty"`
}

// Event is a lifecycle notification received from the event stream.
type Event struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// APIError is a non-200 response from the bridge.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return fmt.Sprintf("API error %s (HTTP %d): %s", e.Code, e.Status, e.Message)
}

type errorResponse struct {
	Error APIError `json:"error"`
}
