// Command gorad acquires radiation detector pulses and reports count rates.
package main

import (
	"fmt"
	"os"

	"github.com/itohio/gorad/pkg/config"
	"github.com/itohio/gorad/pkg/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "gorad",
		Short: "Radiation detector pulse acquisition",
		Long: `Counts detector pulses from audio, serial and GPIO inputs, reports
CPS and CPM once per second and corrects them for detector dead time.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "config.yaml", "Configuration file path")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level override: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Log format override: console or json")

	cmd.AddCommand(
		runCmd(opts),
		portsCmd(),
		discoverCmd(opts),
		simulateCmd(opts),
		correctCmd(opts),
	)
	return cmd
}

// load reads the configuration and builds the logger, applying flag overrides.
func (o *rootOptions) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	o.override(&cfg.Log)

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// logger builds a logger for commands that need no configuration file.
func (o *rootOptions) logger() (*zap.Logger, error) {
	lc := config.LogConfig{Level: "warn", Format: "console"}
	o.override(&lc)
	return logging.New(lc)
}

func (o *rootOptions) override(lc *config.LogConfig) {
	if o.logLevel != "" {
		lc.Level = o.logLevel
	}
	if o.logFormat != "" {
		lc.Format = o.logFormat
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
