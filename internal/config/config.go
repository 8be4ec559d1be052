package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/loykin/nodebase/internal/logger"
	"github.com/loykin/nodebase/internal/process"
)

// EnvPrefix is the prefix of environment variables overriding file settings,
// e.g. NODEBASE_SERVER_LISTEN overrides server.listen.
const EnvPrefix = "NODEBASE"

// Config represents the top-level TOML structure.
type Config struct {
	Env      []string      `mapstructure:"env"`
	EnvFiles []string      `mapstructure:"env_files"`
	Server   ServerConfig  `mapstructure:"server"`
	Log      LogConfig     `mapstructure:"log"`
	Metrics  MetricsConfig `mapstructure:"metrics"`
	History  HistoryConfig `mapstructure:"history"`
	Apps     []AppConfig   `mapstructure:"apps"`
}

type ServerConfig struct {
	Listen   string `mapstructure:"listen"`
	BasePath string `mapstructure:"base_path"`
	PidFile  string `mapstructure:"pidfile"`
	LogFile  string `mapstructure:"logfile"`
	// Token, when set, is required as a bearer token on every bridge request.
	Token string     `mapstructure:"token"`
	TLS   *TLSConfig `mapstructure:"tls"`
}

// TLSConfig enables HTTPS for the bridge server. CertFile/KeyFile take
// precedence over Dir; AutoGenerate writes a self-signed pair into Dir.
type TLSConfig struct {
	Enabled      bool        `mapstructure:"enabled"`
	CertFile     string      `mapstructure:"cert_file"`
	KeyFile      string      `mapstructure:"key_file"`
	Dir          string      `mapstructure:"dir"`
	AutoGenerate bool        `mapstructure:"auto_generate"`
	MinVersion   string      `mapstructure:"min_version"`
	MaxVersion   string      `mapstructure:"max_version"`
	AutoGen      *AutoGenTLS `mapstructure:"auto_gen"`
}

type AutoGenTLS struct {
	CommonName   string   `mapstructure:"common_name"`
	Organization string   `mapstructure:"organization"`
	DNSNames     []string `mapstructure:"dns_names"`
	IPAddresses  []string `mapstructure:"ip_addresses"`
	ValidDays    int      `mapstructure:"valid_days"`
}

type LogConfig struct {
	Level  string        `mapstructure:"level"`
	Format string        `mapstructure:"format"`
	Color  bool          `mapstructure:"color"`
	File   FileLogConfig `mapstructure:"file"`
}

type FileLogConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type HistoryConfig struct {
	DSN []string `mapstructure:"dsn"`
}

// AppConfig is one [[apps]] entry. Env entries are "KEY=VALUE" strings.
type AppConfig struct {
	Name      string   `mapstructure:"name"`
	Command   []string `mapstructure:"command"`
	Env       []string `mapstructure:"env"`
	AutoStart bool     `mapstructure:"autostart"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", "127.0.0.1:8080")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("server.pidfile", "")
	v.SetDefault("server.logfile", "")
	v.SetDefault("server.token", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.color", false)
	v.SetDefault("log.file.path", "")
	v.SetDefault("log.file.max_size_mb", 10)
	v.SetDefault("log.file.max_backups", 3)
	v.SetDefault("log.file.max_age_days", 7)
	v.SetDefault("log.file.compress", false)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("history.dsn", []string{})
	v.SetDefault("env", []string{})
	v.SetDefault("env_files", []string{})
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Default returns the configuration used when no file is given, with
// environment overrides applied.
func Default() (*Config, error) {
	return decode(newViper())
}

// LoadConfig reads the TOML file at path, applies defaults and NODEBASE_*
// environment overrides, and validates the result.
func LoadConfig(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate checks app entries: names are required and unique, commands are
// non-empty and env entries are KEY=VALUE.
func (c *Config) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(c.Apps))
	for i, app := range c.Apps {
		spec, err := app.Spec()
		if err != nil {
			errs = append(errs, fmt.Errorf("apps[%d]: %w", i, err))
			continue
		}
		if err := spec.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("apps[%d]: %w", i, err))
			continue
		}
		if seen[spec.Name] {
			errs = append(errs, fmt.Errorf("apps[%d]: duplicate app name %q", i, spec.Name))
		}
		seen[spec.Name] = true
	}
	if t := c.Server.TLS; t != nil && t.Enabled {
		if (t.CertFile == "") != (t.KeyFile == "") {
			errs = append(errs, errors.New("server.tls: cert_file and key_file must be set together"))
		} else if t.CertFile == "" && t.Dir == "" {
			errs = append(errs, errors.New("server.tls: enabled without cert_file/key_file or dir"))
		}
	}
	for i, dsn := range c.History.DSN {
		if strings.TrimSpace(dsn) == "" {
			errs = append(errs, fmt.Errorf("history.dsn[%d]: empty DSN", i))
		}
	}
	return errors.Join(errs...)
}

// Spec converts the entry into a process spec.
func (a AppConfig) Spec() (process.Spec, error) {
	var env map[string]string
	for _, kv := range a.Env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return process.Spec{}, fmt.Errorf("app %q: env entry %q must be KEY=VALUE", a.Name, kv)
		}
		if env == nil {
			env = make(map[string]string, len(a.Env))
		}
		env[k] = v
	}
	return process.Spec{
		Name:    a.Name,
		Command: append([]string(nil), a.Command...),
		Env:     env,
	}, nil
}

// AutoStartSpecs returns the specs of every app marked autostart, in file order.
func (c *Config) AutoStartSpecs() ([]process.Spec, error) {
	var out []process.Spec
	for _, app := range c.Apps {
		if !app.AutoStart {
			continue
		}
		spec, err := app.Spec()
		if err != nil {
			return nil, err
		}
		out = append(out, spec)
	}
	return out, nil
}

// LoggerConfig maps the [log] section onto the logger package.
func (l LogConfig) LoggerConfig() logger.Config {
	return logger.Config{
		Level:  l.Level,
		Format: l.Format,
		Color:  l.Color,
		File: logger.FileConfig{
			Path:       l.File.Path,
			MaxSizeMB:  l.File.MaxSizeMB,
			MaxBackups: l.File.MaxBackups,
			MaxAgeDays: l.File.MaxAgeDays,
			Compress:   l.File.Compress,
		},
	}
}

// GlobalEnv merges env_files (in order) with the top-level env list; the
// list wins. Entries are returned as KEY=VALUE.
func (c *Config) GlobalEnv() ([]string, error) {
	m := make(map[string]string)
	for _, p := range c.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, err
		}
		for k, v := range pairs {
			m[k] = v
		}
	}
	for _, kv := range c.Env {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			m[k] = v
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out, nil
}

// loadEnvFile parses a simple .env file with KEY=VALUE lines (no export, no quotes). Lines starting with # are ignored.
func loadEnvFile(path string) (map[string]string, error) {
	// Mitigate G304: sanitize user-provided path by cleaning it before use.
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, "="); ok {
			m[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return m, nil
}
