// Package platform holds the small host utilities exposed through the bridge.
package platform

import (
	"context"
	"errors"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v4/host"
	gopsnet "github.com/shirou/gopsutil/v4/net"
)

// ErrUnsupportedURL is returned by OpenBrowser for anything but http(s) URLs.
var ErrUnsupportedURL = errors.New("only http: and https: URLs can be opened")

// Arch reports "<os>-<arch>" for the host kernel, e.g. "linux-x64".
// Windows reports the architectures it can run, e.g. "windows-x64|x86".
func Arch() string {
	machine, err := host.KernelArch()
	if err != nil {
		machine = ""
	}
	return ArchLabel(runtime.GOOS, machine)
}

// ArchLabel maps a kernel machine string (uname -m style) to the label
// the UI uses to pick a runtime bundle.
func ArchLabel(goos, machine string) string {
	var arch string
	switch strings.ToLower(machine) {
	case "x86_64", "amd64", "ia64":
		arch = "x64"
	case "x86", "i386", "i686", "386":
		arch = "x86"
	case "aarch64", "arm64", "armv8l":
		arch = "arm64"
	case "arm", "armv7l", "armv6l":
		arch = "arm"
	default:
		arch = "unknown"
	}
	if goos == "windows" {
		switch arch {
		case "x64":
			arch = "x64|x86"
		case "arm64":
			arch = "arm64|arm"
		}
	}
	return goos + "-" + arch
}

// WorkspaceDir returns the directory holding the running executable, or ""
// when it can't be determined.
func WorkspaceDir() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}

// MarkExecutable adds the owner execute bit to path and reports success.
func MarkExecutable(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	return os.Chmod(path, fi.Mode().Perm()|0o100) == nil
}

// IPAddresses lists the addresses of every interface, keyed by interface
// name. Prefix lengths are stripped; non-IP entries are skipped.
func IPAddresses(ctx context.Context) (map[string][]string, error) {
	ifaces, err := gopsnet.InterfacesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(ifaces))
	for _, iface := range ifaces {
		for _, a := range iface.Addrs {
			if ip := parseAddr(a.Addr); ip != "" {
				out[iface.Name] = append(out[iface.Name], ip)
			}
		}
	}
	for name := range out {
		sort.Strings(out[name])
	}
	return out, nil
}

func parseAddr(s string) string {
	if ip, _, err := net.ParseCIDR(s); err == nil {
		return ip.String()
	}
	if ip := net.ParseIP(s); ip != nil {
		return ip.String()
	}
	return ""
}

// OpenBrowser hands url to the desktop's default handler without waiting.
func OpenBrowser(url string) error {
	if !strings.HasPrefix(url, "http:") && !strings.HasPrefix(url, "https:") {
		return ErrUnsupportedURL
	}
	name, args := openCommand(runtime.GOOS, url)
	cmd := exec.Command(name, args...) // #nosec G204 -- url is scheme-checked above
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

func openCommand(goos, url string) (string, []string) {
	switch goos {
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	case "darwin":
		return "open", []string{url}
	default:
		return "xdg-open", []string{url}
	}
}
