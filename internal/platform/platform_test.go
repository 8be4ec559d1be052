package platform

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchLabel(t *testing.T) {
	cases := []struct{ goos, machine, want string }{
		{"linux", "x86_64", "linux-x64"},
		{"linux", "ia64", "linux-x64"},
		{"linux", "i686", "linux-x86"},
		{"linux", "aarch64", "linux-arm64"},
		{"linux", "armv8l", "linux-arm64"},
		{"linux", "armv7l", "linux-arm"},
		{"linux", "riscv64", "linux-unknown"},
		{"linux", "", "linux-unknown"},
		{"darwin", "arm64", "darwin-arm64"},
		{"windows", "x86_64", "windows-x64|x86"},
		{"windows", "arm64", "windows-arm64|arm"},
		{"windows", "i386", "windows-x86"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ArchLabel(c.goos, c.machine), "%s/%s", c.goos, c.machine)
	}
}

func TestArch_HostPrefix(t *testing.T) {
	assert.True(t, strings.HasPrefix(Arch(), runtime.GOOS+"-"))
}

func TestWorkspaceDir(t *testing.T) {
	dir := WorkspaceDir()
	require.NotEmpty(t, dir)
	fi, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}

func TestMarkExecutable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("no execute bit on windows")
	}
	p := filepath.Join(t.TempDir(), "run.sh")
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"), 0o644))

	assert.True(t, MarkExecutable(p))
	fi, err := os.Stat(p)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o744), fi.Mode().Perm())

	assert.False(t, MarkExecutable(filepath.Join(t.TempDir(), "missing")))
}

func TestIPAddresses(t *testing.T) {
	ips, err := IPAddresses(context.Background())
	require.NoError(t, err)
	for name, addrs := range ips {
		assert.NotEmpty(t, name)
		for _, a := range addrs {
			assert.NotContains(t, a, "/", "prefix should be stripped")
		}
	}
}

func TestParseAddr(t *testing.T) {
	assert.Equal(t, "10.0.0.5", parseAddr("10.0.0.5/24"))
	assert.Equal(t, "fe80::1", parseAddr("fe80::1/64"))
	assert.Equal(t, "127.0.0.1", parseAddr("127.0.0.1"))
	assert.Equal(t, "", parseAddr("link#1"))
}

func TestOpenBrowser_RejectsSchemes(t *testing.T) {
	for _, u := range []string{"file:///etc/passwd", "javascript:alert(1)", "", "ftp://x"} {
		assert.ErrorIs(t, OpenBrowser(u), ErrUnsupportedURL, u)
	}
}

func TestOpenCommand(t *testing.T) {
	name, args := openCommand("linux", "https://example.com")
	assert.Equal(t, "xdg-open", name)
	assert.Equal(t, []string{"https://example.com"}, args)

	name, _ = openCommand("darwin", "https://example.com")
	assert.Equal(t, "open", name)

	name, args = openCommand("windows", "https://example.com")
	assert.Equal(t, "rundll32", name)
	assert.Equal(t, "url.dll,FileProtocolHandler", args[0])
}
