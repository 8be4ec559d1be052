package factory

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/nodebase/internal/history/opensearch"
	"github.com/loykin/nodebase/internal/history/sqlite"
)

func TestNewSinkFromDSN(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		dsn     string
		wantErr bool
		check   func(t *testing.T, v any)
	}{
		{name: "empty", dsn: "", wantErr: true},
		{name: "unknown scheme", dsn: "invalid://test", wantErr: true},
		{name: "opensearch missing host", dsn: "opensearch:///idx", wantErr: true},
		{name: "sqlite memory", dsn: "sqlite://:memory:", check: isSQLite},
		{name: "sqlite file", dsn: "sqlite://" + filepath.Join(dir, "a.db"), check: isSQLite},
		{name: "bare path", dsn: filepath.Join(dir, "b.db"), check: isSQLite},
		{name: "opensearch", dsn: "opensearch://localhost:9200/lifecycle", check: isOpenSearch},
		{name: "elasticsearch alias", dsn: "elasticsearch://localhost:9200", check: isOpenSearch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink, err := NewSinkFromDSN(tt.dsn)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, sink)
			if c, ok := sink.(interface{ Close() error }); ok {
				_ = c.Close()
			}
		})
	}
}

func isSQLite(t *testing.T, v any) {
	_, ok := v.(*sqlite.Sink)
	assert.True(t, ok, "want *sqlite.Sink, got %T", v)
}

func isOpenSearch(t *testing.T, v any) {
	_, ok := v.(*opensearch.Sink)
	assert.True(t, ok, "want *opensearch.Sink, got %T", v)
}

func TestParseClickHouseDSN(t *testing.T) {
	addr, table, err := parseClickHouseDSN("clickhouse://db.local:9440?table=events")
	require.NoError(t, err)
	assert.Equal(t, "db.local:9440", addr)
	assert.Equal(t, "events", table)

	addr, table, err = parseClickHouseDSN("clickhouse://")
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", addr)
	assert.Equal(t, "lifecycle_history", table)
}

func TestParseOpenSearchDSN(t *testing.T) {
	base, index, err := parseOpenSearchDSN("opensearchs://search.local:9200/apps")
	require.NoError(t, err)
	assert.Equal(t, "https://search.local:9200", base)
	assert.Equal(t, "apps", index)

	base, index, err = parseOpenSearchDSN("opensearch://localhost:9200")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9200", base)
	assert.Equal(t, "lifecycle-history", index)
}

func TestNewSinks_ClosesOnFailure(t *testing.T) {
	_, err := NewSinks([]string{"sqlite://:memory:", "ftp://nope"})
	assert.ErrorContains(t, err, "unsupported DSN format")

	sinks, err := NewSinks([]string{"sqlite://:memory:"})
	require.NoError(t, err)
	assert.Len(t, sinks, 1)
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "postgres://u:xxxxx@h/db", redact("postgres://u:secret@h/db"))
	assert.Equal(t, "/tmp/a.db", redact("/tmp/a.db"))
}
