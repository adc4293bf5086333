// BugScribe - local telemetry daemon for bug reports.
// Receives console, network, interaction, DOM and screenshot events from the
// browser extension, keeps bounded windows of them and drafts issue reports
// through an LLM.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/EmreDinc10/bugscribe/internal/config"
	"github.com/EmreDinc10/bugscribe/internal/logging"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

type rootOptions struct {
	cfgFile string
	verbose bool

	v      *viper.Viper
	cfg    *config.Config
	logger *zap.Logger
	level  zap.AtomicLevel
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "bugscribe",
		Short: "BugScribe - browser telemetry daemon that drafts bug reports",
		Long: `BugScribe runs next to the browser extension on a loopback port.

It keeps the last minute of console and network activity, recent interactions,
DOM snapshots and screenshots, and turns them into an issue draft on request.

Example:
  bugscribe serve --port 7345`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.init(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}
	root.Version = version
	root.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	root.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (default is .bugscribe.yaml, then the state directory)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newServeCmd(opts), newConfigCmd(opts), newVersionCmd())
	return root
}

// init loads configuration and builds the logger. Flags already bound to viper by
// subcommands take effect here.
func (o *rootOptions) init(cmd *cobra.Command) error {
	v, err := config.NewViper(o.cfgFile)
	if err != nil {
		return err
	}
	if err := bindFlags(v, cmd); err != nil {
		return err
	}
	if o.verbose {
		v.Set("logging.level", "debug")
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	logger, level, err := logging.New(cfg.Logging.Level, cfg.Logging.JSON)
	if err != nil {
		return err
	}
	o.v, o.cfg, o.logger, o.level = v, cfg, logger, level
	return nil
}

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"host":         "server.host",
	"port":         "server.port",
	"extension-id": "server.extension_id",
	"model":        "llm.model",
	"base-url":     "llm.base_url",
	"ephemeral":    "persistence.ephemeral",
	"db":           "persistence.path",
	"debugger-url": "capture.debugger_url",
	"capture":      "capture.enabled",
	"log-json":     "logging.json",
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind --%s: %w", name, err)
		}
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// No config or logger needed.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "bugscribe %s\n", version)
		},
	}
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := opts.cfg.YAML()
			if err != nil {
				return err
			}
			if used := opts.v.ConfigFileUsed(); used != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# config file: %s\n", used)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
