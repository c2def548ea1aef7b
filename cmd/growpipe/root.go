package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jacoelho/growpipe/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type app struct {
	configFile string
	cfg        *config.Config
	logger     *logrus.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "growpipe",
		Short:        "Blocking byte pipes with growable buffers.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd.Flags(), cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "YAML configuration file")
	flags.String("log-format", "text", "log format: text, json or mozlog")
	flags.String("log-level", "info", "minimum log level")
	flags.Int("initial-capacity", 1024, "initial buffer size of every pipe")
	flags.Int("max-capacity", 0, "largest buffer a pipe may grow to (0 is unbounded)")

	root.AddCommand(newServeCommand(a), newPumpCommand(a), newVersionCommand())
	return root
}

// load reads the config file, applies flags the user set explicitly and
// builds the logger.
func (a *app) load(flags *pflag.FlagSet, cmd *cobra.Command) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}

	if flags.Changed("log-format") {
		cfg.Log.Format, _ = flags.GetString("log-format")
	}
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("initial-capacity") {
		cfg.Pipe.InitialCapacity, _ = flags.GetInt("initial-capacity")
	}
	if flags.Changed("max-capacity") {
		cfg.Pipe.MaxCapacity, _ = flags.GetInt("max-capacity")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.cfg, a.logger = cfg, logger
	return nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version.",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "growpipe "+version)
		},
	}
}
