package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/nodebase"
	"github.com/loykin/nodebase/internal/config"
	"github.com/loykin/nodebase/internal/logger"
)

const shutdownTimeout = 5 * time.Second

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Run the supervisor and its HTTP bridge",
		Long: `Run the supervisor. Apps marked autostart in the config are started, the
bridge is served on [server].listen and every process is stopped on
SIGINT/SIGTERM.

Examples:
  nodebase serve                          # defaults plus NODEBASE_* overrides
  nodebase serve nodebase.toml
  nodebase serve --config nodebase.toml --daemonize --pidfile /run/nodebase.pid`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			if len(args) > 0 {
				serveFlags.ConfigPath = args[0]
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return runServe(ctx, cmd.OutOrStdout(), *serveFlags, nil)
		},
	}
	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.PidFile, "pidfile", "", "write the server PID here (default [server].pidfile)")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect daemon output to file (default [server].logfile)")
	return cmd
}

func loadServeConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg, err := config.Default()
		if err != nil {
			return nil, err
		}
		return cfg, cfg.Validate()
	}
	return config.LoadConfig(path)
}

// runServe is the composition root. It blocks until ctx is done or the
// listener fails; ready, when set, receives the bound address.
func runServe(ctx context.Context, out io.Writer, flags ServeFlags, ready func(net.Addr)) error {
	cfg, err := loadServeConfig(flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	pidFile := flags.PidFile
	if pidFile == "" {
		pidFile = cfg.Server.PidFile
	}
	logFile := flags.LogFile
	if logFile == "" {
		logFile = cfg.Server.LogFile
	}

	if flags.Daemonize && !isDaemonChild() {
		if !isDaemonSupported() {
			return errors.New("daemonize is not supported on this platform")
		}
		pid, err := daemonize(os.Args[1:], pidFile, logFile)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "Daemon started with PID %d\n", pid)
		return nil
	}

	log, logCloser, err := logger.New(cfg.Log.LoggerConfig())
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logCloser.Close() }()

	if cfg.Metrics.Enabled {
		if err := nodebase.RegisterMetricsDefault(); err != nil {
			log.Warn("failed to register metrics", "error", err)
		}
	}

	sinks, err := nodebase.NewHistorySinks(cfg.History.DSN)
	if err != nil {
		return err
	}
	mgr := nodebase.New(nodebase.Options{Logger: log, HistorySinks: sinks})
	defer func() {
		if err := mgr.Shutdown(); err != nil {
			log.Warn("history shutdown", "error", err)
		}
	}()

	globalEnv, err := cfg.GlobalEnv()
	if err != nil {
		return fmt.Errorf("global env: %w", err)
	}
	mgr.SetGlobalEnv(globalEnv)

	srv, err := nodebase.NewHTTPServer(cfg.Server.Listen, mgr, nodebase.ServerOptions{
		BasePath: cfg.Server.BasePath,
		Token:    cfg.Server.Token,
		TLS:      cfg.Server.TLS,
		Metrics:  cfg.Metrics.Enabled,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.Listen, err)
	}

	if pidFile != "" {
		if err := writePidFile(pidFile, os.Getpid()); err != nil {
			_ = ln.Close()
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = removePidFile(pidFile) }()
	}

	specs, err := cfg.AutoStartSpecs()
	if err != nil {
		_ = ln.Close()
		return err
	}
	mgr.StartAll(specs)

	errCh := make(chan error, 1)
	go func() {
		if srv.TLSConfig != nil {
			errCh <- srv.ServeTLS(ln, "", "")
		} else {
			errCh <- srv.Serve(ln)
		}
	}()
	log.Info("nodebase server listening",
		"addr", ln.Addr().String(),
		"base_path", cfg.Server.BasePath,
		"tls", srv.TLSConfig != nil,
		"auth", cfg.Server.Token != "",
		"autostart", len(specs))
	if ready != nil {
		ready(ln.Addr())
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	return nil
}
