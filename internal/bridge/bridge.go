// Package bridge dispatches UI method calls onto the process registry and
// the host utilities.
package bridge

import (
	"context"
	"errors"
	"log/slog"

	"github.com/loykin/nodebase/internal/platform"
	"github.com/loykin/nodebase/internal/process"
)

// Method names accepted by Call.
const (
	MethodAppStart       = "app.start"
	MethodAppStop        = "app.stop"
	MethodAppRestart     = "app.restart"
	MethodAppStat        = "app.stat"
	MethodAppList        = "app.list"
	MethodUtilIP         = "util.ip"
	MethodUtilExecutable = "util.file.executable"
	MethodUtilBrowser    = "util.browser.open"
	MethodUtilArch       = "util.arch"
	MethodUtilWorkspace  = "util.workspace"
)

// Registry is the subset of the process manager the bridge drives.
type Registry interface {
	Start(spec process.Spec)
	Stop(name string)
	Restart(name string) bool
	Stat(name string) (process.Status, bool)
	List() []process.Status
}

// Utils are the host helpers behind the util.* methods.
type Utils struct {
	IPAddresses    func(ctx context.Context) (map[string][]string, error)
	MarkExecutable func(path string) bool
	OpenBrowser    func(url string) error
	Arch           func() string
	WorkspaceDir   func() string
}

// DefaultUtils wires the real platform helpers.
func DefaultUtils() Utils {
	return Utils{
		IPAddresses:    platform.IPAddresses,
		MarkExecutable: platform.MarkExecutable,
		OpenBrowser:    platform.OpenBrowser,
		Arch:           platform.Arch,
		WorkspaceDir:   platform.WorkspaceDir,
	}
}

// AppEntry is one row of an app.list result.
type AppEntry struct {
	Name string `json:"name"`
	Stat string `json:"stat"`
	PID  int    `json:"pid,omitempty"`
}

type Bridge struct {
	reg   Registry
	utils Utils
	log   *slog.Logger
}

func New(reg Registry, utils Utils, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{reg: reg, utils: utils, log: log}
}

// Methods lists every method name Call understands.
func Methods() []string {
	return []string{
		MethodAppStart, MethodAppStop, MethodAppRestart, MethodAppStat, MethodAppList,
		MethodUtilIP, MethodUtilExecutable, MethodUtilBrowser, MethodUtilArch, MethodUtilWorkspace,
	}
}

// Call runs one method. Argument problems return *ArgError and never reach
// the registry; unknown methods return ErrNotImplemented.
func (b *Bridge) Call(ctx context.Context, method string, args map[string]any) (any, error) {
	switch method {
	case MethodAppStart:
		spec, err := decodeStart(args)
		if err != nil {
			return nil, err
		}
		b.reg.Start(spec)
		return nil, nil

	case MethodAppStop:
		name, err := stringArg(args, "name")
		if err != nil {
			return nil, err
		}
		b.reg.Stop(name)
		return nil, nil

	case MethodAppRestart:
		name, err := stringArg(args, "name")
		if err != nil {
			return nil, err
		}
		return b.reg.Restart(name), nil

	case MethodAppStat:
		name, err := stringArg(args, "name")
		if err != nil {
			return nil, err
		}
		st, ok := b.reg.Stat(name)
		if !ok {
			return map[string]any{}, nil
		}
		return map[string]any{"stat": st.Stat}, nil

	case MethodAppList:
		statuses := b.reg.List()
		out := make([]AppEntry, 0, len(statuses))
		for _, st := range statuses {
			out = append(out, AppEntry{Name: st.Name, Stat: st.Stat, PID: st.PID})
		}
		return out, nil

	case MethodUtilIP:
		ips, err := b.utils.IPAddresses(ctx)
		if err != nil {
			b.log.Warn("listing interface addresses failed", "error", err)
			return map[string][]string{}, nil
		}
		return ips, nil

	case MethodUtilExecutable:
		path, err := stringArg(args, "filename")
		if err != nil {
			return nil, err
		}
		return b.utils.MarkExecutable(path), nil

	case MethodUtilBrowser:
		url, err := stringArg(args, "url")
		if err != nil {
			return nil, err
		}
		if err := b.utils.OpenBrowser(url); err != nil && !errors.Is(err, platform.ErrUnsupportedURL) {
			b.log.Warn("cannot open url", "url", url, "error", err)
		}
		return nil, nil

	case MethodUtilArch:
		return b.utils.Arch(), nil

	case MethodUtilWorkspace:
		return b.utils.WorkspaceDir(), nil
	}
	return nil, ErrNotImplemented
}
