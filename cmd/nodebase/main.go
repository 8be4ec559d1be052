package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and wires every subcommand.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	c := command{global: globalFlags}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags),
		createStartCommand(c),
		createStopCommand(c),
		createRestartCommand(c),
		createStatCommand(c),
		createListCommand(c),
		createEventsCommand(c),
		createUtilCommand(c),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "nodebase",
		Short: "Embedded child-process supervisor",
		Long: `Nodebase starts, stops and restarts named child processes and reports
their lifecycle to a single event subscriber.

Examples:
  nodebase serve --config nodebase.toml          # run the supervisor
  nodebase start --name web -- /usr/bin/node server.js
  nodebase stat --name web
  nodebase events                                # stream start/stop events
  nodebase list --api-url https://host:8443/api --ca-cert tls_ca.crt`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	pf.StringVar(&flags.APIUrl, "api-url", "", "daemon URL (default derived from [server] in the config)")
	pf.DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	pf.StringVar(&flags.Token, "token", "", "bearer token (default [server].token or NODEBASE_SERVER_TOKEN)")
	pf.StringVar(&flags.CACert, "ca-cert", "", "CA certificate used to verify an HTTPS daemon")
	pf.BoolVar(&flags.Insecure, "insecure", false, "skip TLS certificate verification")
	return root
}
