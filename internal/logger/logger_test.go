package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]string{"": "INFO", "debug": "DEBUG", "WARN": "WARN", "warning": "WARN", "error": "ERROR"}
	for in, want := range cases {
		l, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", in, err)
		}
		if l.String() != want {
			t.Fatalf("ParseLevel(%q) = %s, want %s", in, l, want)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNew_TextConsoleRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log, closer, err := NewWithWriter(Config{Level: "warn"}, &buf)
	if err != nil {
		t.Fatalf("NewWithWriter: %v", err)
	}
	defer func() { _ = closer.Close() }()
	log.Info("hidden")
	log.Warn("shown", "name", "svc")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record should be filtered: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "name=svc") {
		t.Fatalf("missing warn record: %q", out)
	}
}

func TestNew_JSONConsole(t *testing.T) {
	var buf bytes.Buffer
	log, _, err := NewWithWriter(Config{Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("NewWithWriter: %v", err)
	}
	log.Info("hello", "name", "svc")
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("invalid json %q: %v", buf.String(), err)
	}
	if m["msg"] != "hello" || m["name"] != "svc" {
		t.Fatalf("unexpected record: %v", m)
	}
}

func TestNew_ColorConsole(t *testing.T) {
	var buf bytes.Buffer
	log, _, err := NewWithWriter(Config{Color: true}, &buf)
	if err != nil {
		t.Fatalf("NewWithWriter: %v", err)
	}
	log.With("component", "test").Error("bad")
	out := buf.String()
	if !strings.Contains(out, "\033[31mERROR\033[0m") {
		t.Fatalf("expected red level prefix: %q", out)
	}
	if !strings.Contains(out, "component=test") {
		t.Fatalf("WithAttrs lost: %q", out)
	}
}

func TestNew_FileRotationTarget(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nodebase.log")
	var console bytes.Buffer
	log, closer, err := NewWithWriter(Config{File: FileConfig{Path: path}}, &console)
	if err != nil {
		t.Fatalf("NewWithWriter: %v", err)
	}
	log.Info("to both")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not created: %v", err)
	}
	if !strings.Contains(string(b), "to both") || !strings.Contains(console.String(), "to both") {
		t.Fatalf("record not duplicated: file=%q console=%q", b, console.String())
	}
	if strings.Contains(string(b), "\033[") {
		t.Fatalf("file must not contain ANSI codes")
	}
}

func TestFileConfig_WriterNilWithoutPath(t *testing.T) {
	if w := (FileConfig{}).Writer(); w != nil {
		t.Fatalf("expected nil writer")
	}
}
