package config

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/nodebase/internal/process"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "nodebase.toml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadConfig_Full(t *testing.T) {
	p := writeConfig(t, `
env = ["GLOBAL=1"]

[server]
listen = "0.0.0.0:9090"
base_path = "/v1"

[log]
level = "debug"
format = "json"

[log.file]
path = "/tmp/nodebase.log"
max_size_mb = 50

[metrics]
enabled = true

[history]
dsn = ["sqlite://:memory:"]

[[apps]]
name = "web"
command = ["/bin/sleep", "60"]
env = ["PORT=3000", "MODE=prod"]
autostart = true

[[apps]]
name = "worker"
command = ["/usr/bin/worker"]
`)
	cfg, err := LoadConfig(p)
	require.NoError(t, err)

	assert.Equal(t, []string{"GLOBAL=1"}, cfg.Env)
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Listen)
	assert.Equal(t, "/v1", cfg.Server.BasePath)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "/tmp/nodebase.log", cfg.Log.File.Path)
	assert.Equal(t, 50, cfg.Log.File.MaxSizeMB)
	assert.Equal(t, 3, cfg.Log.File.MaxBackups, "default kept")
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, []string{"sqlite://:memory:"}, cfg.History.DSN)
	require.Len(t, cfg.Apps, 2)

	specs, err := cfg.AutoStartSpecs()
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, process.Spec{
		Name:    "web",
		Command: []string{"/bin/sleep", "60"},
		Env:     map[string]string{"PORT": "3000", "MODE": "prod"},
	}, specs[0])

	lc := cfg.Log.LoggerConfig()
	assert.Equal(t, "debug", lc.Level)
	assert.Equal(t, 50, lc.File.MaxSizeMB)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, ``))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Listen)
	assert.Equal(t, "/api", cfg.Server.BasePath)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 10, cfg.Log.File.MaxSizeMB)
	assert.Equal(t, 7, cfg.Log.File.MaxAgeDays)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Empty(t, cfg.Apps)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("NODEBASE_SERVER_LISTEN", "127.0.0.1:7000")
	t.Setenv("NODEBASE_LOG_LEVEL", "warn")
	t.Setenv("NODEBASE_METRICS_ENABLED", "true")

	cfg, err := LoadConfig(writeConfig(t, "[server]\nlisten = \"127.0.0.1:1\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.Server.Listen)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.True(t, cfg.Metrics.Enabled)

	def, err := Default()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", def.Server.Listen)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"missing name":      "[[apps]]\ncommand = [\"/bin/true\"]\n",
		"empty command":     "[[apps]]\nname = \"x\"\ncommand = []\n",
		"duplicate":         "[[apps]]\nname = \"x\"\ncommand = [\"/bin/true\"]\n[[apps]]\nname = \"x\"\ncommand = [\"/bin/true\"]\n",
		"bad env":           "[[apps]]\nname = \"x\"\ncommand = [\"/bin/true\"]\nenv = [\"NOEQUALS\"]\n",
		"empty history dsn": "[history]\ndsn = [\" \"]\n",
		"tls without certs": "[server.tls]\nenabled = true\n",
		"tls half pair":     "[server.tls]\nenabled = true\ncert_file = \"a.crt\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_ServerSecurity(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
[server]
token = "s3cret"

[server.tls]
enabled = true
dir = "/var/lib/nodebase/tls"
auto_generate = true
min_version = "1.2"

[server.tls.auto_gen]
common_name = "node.local"
valid_days = 30
`))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Server.Token)
	require.NotNil(t, cfg.Server.TLS)
	assert.True(t, cfg.Server.TLS.Enabled)
	assert.True(t, cfg.Server.TLS.AutoGenerate)
	assert.Equal(t, "/var/lib/nodebase/tls", cfg.Server.TLS.Dir)
	assert.Equal(t, "1.2", cfg.Server.TLS.MinVersion)
	require.NotNil(t, cfg.Server.TLS.AutoGen)
	assert.Equal(t, "node.local", cfg.Server.TLS.AutoGen.CommonName)
	assert.Equal(t, 30, cfg.Server.TLS.AutoGen.ValidDays)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := &Config{Apps: []AppConfig{{Command: []string{"/bin/true"}}, {Name: "y"}}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, process.ErrEmptyName)
	assert.ErrorIs(t, err, process.ErrEmptyCommand)
}

func TestGlobalEnv(t *testing.T) {
	dir := t.TempDir()
	dotenv := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(dotenv, []byte("A=1\n#comment\nB=two\nTOP=file\n"), 0o644))

	cfg := &Config{EnvFiles: []string{dotenv}, Env: []string{"TOP=list", "bad"}}
	pairs, err := cfg.GlobalEnv()
	require.NoError(t, err)
	sort.Strings(pairs)
	assert.Equal(t, []string{"A=1", "B=two", "TOP=list"}, pairs)

	cfg.EnvFiles = []string{filepath.Join(dir, "missing.env")}
	_, err = cfg.GlobalEnv()
	assert.Error(t, err)
}
