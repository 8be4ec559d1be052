package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loykin/nodebase/internal/config"
	"github.com/loykin/nodebase/pkg/client"
)

// command binds the client-side subcommands to the global flags.
type command struct {
	global *GlobalFlags
}

// apiClient builds a client from the flags, filling gaps from the config
// file (or defaults plus NODEBASE_* overrides when no file is given).
func (c command) apiClient() (*client.Client, error) {
	g := c.global
	var (
		cfg *config.Config
		err error
	)
	if g.ConfigPath != "" {
		cfg, err = config.LoadConfig(g.ConfigPath)
	} else {
		cfg, err = config.Default()
	}
	if err != nil {
		return nil, err
	}

	cc := client.Config{
		BaseURL: g.APIUrl,
		Timeout: g.APITimeout,
		Token:   g.Token,
	}
	if cc.BaseURL == "" {
		cc.BaseURL = baseURLFor(cfg.Server)
	}
	if cc.Token == "" {
		cc.Token = cfg.Server.Token
	}
	if g.CACert != "" || g.Insecure {
		cc.TLS = &client.TLSClientConfig{CACert: g.CACert, SkipVerify: g.Insecure}
	}
	return client.New(cc)
}

// baseURLFor maps the server's listen address onto a dialable URL.
func baseURLFor(s config.ServerConfig) string {
	scheme := "http"
	if s.TLS != nil && s.TLS.Enabled {
		scheme = "https"
	}
	host, port, err := net.SplitHostPort(s.Listen)
	if err != nil {
		host, port = "127.0.0.1", "8080"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return scheme + "://" + net.JoinHostPort(host, port) + strings.TrimRight(s.BasePath, "/")
}

func (c command) Start(ctx context.Context, out io.Writer, f StartFlags) error {
	if f.Name == "" {
		return errors.New("process name is required")
	}
	if len(f.Args) == 0 {
		return errors.New("command is required after --")
	}
	env, err := parseEnvPairs(f.EnvKVs)
	if err != nil {
		return err
	}
	api, err := c.apiClient()
	if err != nil {
		return err
	}
	if err := api.Start(ctx, client.StartRequest{Name: f.Name, Command: f.Args, Env: env}); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "started %s\n", f.Name)
	return nil
}

func (c command) Stop(ctx context.Context, out io.Writer, f NameFlags) error {
	api, err := c.apiClient()
	if err != nil {
		return err
	}
	if err := api.Stop(ctx, f.Name); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "stopped %s\n", f.Name)
	return nil
}

func (c command) Restart(ctx context.Context, out io.Writer, f NameFlags) error {
	api, err := c.apiClient()
	if err != nil {
		return err
	}
	ok, err := api.Restart(ctx, f.Name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no process named %q", f.Name)
	}
	_, _ = fmt.Fprintf(out, "restarted %s\n", f.Name)
	return nil
}

func (c command) Stat(ctx context.Context, out io.Writer, f NameFlags) error {
	api, err := c.apiClient()
	if err != nil {
		return err
	}
	stat, err := api.Stat(ctx, f.Name)
	if err != nil {
		return err
	}
	if stat == "" {
		stat = "unknown"
	}
	_, _ = fmt.Fprintln(out, stat)
	return nil
}

func (c command) List(ctx context.Context, out io.Writer) error {
	api, err := c.apiClient()
	if err != nil {
		return err
	}
	apps, err := api.List(ctx)
	if err != nil {
		return err
	}
	return printJSON(out, apps)
}

func (c command) Events(ctx context.Context, out io.Writer, f EventsFlags) error {
	api, err := c.apiClient()
	if err != nil {
		return err
	}
	seen := 0
	errDone := errors.New("done")
	err = api.Events(ctx, func(e client.Event) error {
		_, _ = fmt.Fprintf(out, "%s\t%s\n", e.Kind, e.Name)
		seen++
		if f.Count > 0 && seen >= f.Count {
			return errDone
		}
		return nil
	})
	if errors.Is(err, errDone) {
		return nil
	}
	return err
}

// Util invokes one util.* bridge method and prints its result.
func (c command) Util(ctx context.Context, out io.Writer, method string, args map[string]any) error {
	api, err := c.apiClient()
	if err != nil {
		return err
	}
	var res any
	if err := api.Call(ctx, method, args, &res); err != nil {
		return err
	}
	if s, ok := res.(string); ok {
		_, _ = fmt.Fprintln(out, s)
		return nil
	}
	return printJSON(out, res)
}

func createStartCommand(c command) *cobra.Command {
	f := &StartFlags{}
	cmd := &cobra.Command{
		Use:   "start --name NAME [--env K=V]... -- COMMAND [ARGS...]",
		Short: "Start a process, replacing any process with the same name",
		Long: `Start launches COMMAND directly, without a shell. Arguments after -- are
passed verbatim. Any --env replaces the inherited environment entirely.

Examples:
  nodebase start --name web -- /usr/bin/node server.js
  nodebase start --name job --env MODE=batch -- ./job --once`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Args = args
			return c.Start(cmd.Context(), cmd.OutOrStdout(), *f)
		},
	}
	cmd.Flags().StringVar(&f.Name, "name", "", "process name (required)")
	cmd.Flags().StringArrayVar(&f.EnvKVs, "env", nil, "environment entry KEY=VALUE (repeatable)")
	if err := cmd.MarkFlagRequired("name"); err != nil {
		panic(err)
	}
	return cmd
}

// nameCommand builds the stop/restart/stat commands, which all take --name.
func nameCommand(use, short string, run func(ctx context.Context, out io.Writer, f NameFlags) error) *cobra.Command {
	f := &NameFlags{}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), *f)
		},
	}
	cmd.Flags().StringVar(&f.Name, "name", "", "process name (required)")
	if err := cmd.MarkFlagRequired("name"); err != nil {
		panic(err)
	}
	return cmd
}

func createStopCommand(c command) *cobra.Command {
	return nameCommand("stop", "Stop a process and its descendants", c.Stop)
}

func createRestartCommand(c command) *cobra.Command {
	return nameCommand("restart", "Restart a process with its last command", c.Restart)
}

func createStatCommand(c command) *cobra.Command {
	return nameCommand("stat", "Print the status of a process (new, running, dead)", c.Stat)
}

func createListCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every registered process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.List(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func createEventsCommand(c command) *cobra.Command {
	f := &EventsFlags{}
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Stream start/stop events (replaces any other subscriber)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return c.Events(ctx, cmd.OutOrStdout(), *f)
		},
	}
	cmd.Flags().IntVar(&f.Count, "count", 0, "exit after this many events")
	return cmd
}

func createUtilCommand(c command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "util",
		Short: "Host utilities of the daemon",
	}
	simple := func(use, short, method string) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.Util(cmd.Context(), cmd.OutOrStdout(), method, nil)
			},
		}
	}
	withArg := func(use, short, method, field string) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.Util(cmd.Context(), cmd.OutOrStdout(), method, map[string]any{field: args[0]})
			},
		}
	}
	cmd.AddCommand(
		simple("arch", "Print the architecture label", "util.arch"),
		simple("ip", "Print interface addresses", "util.ip"),
		simple("workspace", "Print the daemon's executable directory", "util.workspace"),
		withArg("chmodx PATH", "Add owner-execute permission to a file", "util.file.executable", "filename"),
		withArg("open URL", "Open an http(s) URL in the daemon host's browser", "util.browser.open", "url"),
	)
	return cmd
}
