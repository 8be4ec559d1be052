package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/loykin/nodebase/internal/history"
)

// Sink indexes lifecycle events as flat documents, one per event, using the
// same field names as the lifecycle_history SQL table.
type Sink struct {
	client *http.Client
	url    string
}

// document is the indexed shape of a lifecycle event.
type document struct {
	OccurredAt time.Time  `json:"occurred_at"`
	Event      string     `json:"event"`
	Name       string     `json:"name"`
	PID        int        `json:"pid"`
	State      string     `json:"state"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	StoppedAt  *time.Time `json:"stopped_at,omitempty"`
	ExitError  string     `json:"exit_error,omitempty"`
}

func New(baseURL, index string) *Sink {
	return &Sink{
		client: &http.Client{Timeout: 5 * time.Second},
		url:    fmt.Sprintf("%s/%s/_doc", strings.TrimRight(baseURL, "/"), index),
	}
}

func newDocument(e history.Event) document {
	occurred := e.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	return document{
		OccurredAt: occurred,
		Event:      string(e.Type),
		Name:       e.Record.Name,
		PID:        e.Record.PID,
		State:      e.Record.State,
		StartedAt:  timeOrNil(e.Record.StartedAt),
		StoppedAt:  timeOrNil(e.Record.StoppedAt),
		ExitError:  e.Record.ExitErr,
	}
}

func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	body, err := json.Marshal(newDocument(e))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("index %s event for %q: %w", e.Type, e.Record.Name, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("opensearch sink status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
