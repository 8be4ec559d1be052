package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/nodebase/internal/history"
)

func startStop(name string) (history.Event, history.Event) {
	started := time.Now().Add(-time.Minute).UTC()
	rec := history.Record{Name: name, PID: 12345, State: "running", StartedAt: started}
	start := history.Event{Type: history.EventStart, OccurredAt: started, Record: rec}

	rec.State = "dead"
	rec.StoppedAt = time.Now().UTC()
	rec.ExitErr = "signal: terminated"
	stop := history.Event{Type: history.EventStop, OccurredAt: rec.StoppedAt, Record: rec}
	return start, stop
}

func TestSQLiteSink_File(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	sink, err := New("sqlite://" + dbPath)
	require.NoError(t, err)
	defer func() { assert.NoError(t, sink.Close()) }()

	ctx := context.Background()
	start, stop := startStop("web")
	require.NoError(t, sink.Send(ctx, start))
	require.NoError(t, sink.Send(ctx, stop))

	n, err := sink.Count(ctx, "web")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSQLiteSink_InMemory(t *testing.T) {
	sink, err := New(":memory:")
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	start, _ := startStop("worker")
	require.NoError(t, sink.Send(ctx, start))

	var event, state string
	var stopped sql.NullTime
	row := sink.db.QueryRowContext(ctx, `SELECT event, state, stopped_at FROM lifecycle_history WHERE name = ?`, "worker")
	require.NoError(t, row.Scan(&event, &state, &stopped))
	assert.Equal(t, "start", event)
	assert.Equal(t, "running", state)
	assert.False(t, stopped.Valid)
}

func TestSQLiteSink_EmptyDSN(t *testing.T) {
	_, err := New("  ")
	assert.Error(t, err)
}
