package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/itohio/gorad/pkg/acquire"
	"github.com/itohio/gorad/pkg/config"
	"github.com/itohio/gorad/pkg/stream"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func runCmd(root *rootOptions) *cobra.Command {
	var (
		port     string
		simulate bool
		meanRate float64
		smooth   int
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Acquire pulses on every configured channel",
		Long: `Starts every configured channel and logs a snapshot of each one per
report interval until interrupted. Channels whose device is unavailable are
reported and skipped.`,
		Example: `gorad run --config config.yaml
gorad run -p /dev/ttyUSB0
gorad run --simulate --rate 500`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			applyRunOverrides(cfg, port, simulate, meanRate)
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, logger, smooth)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Serial port override (e.g., COM3 or /dev/ttyUSB0)")
	cmd.Flags().BoolVar(&simulate, "simulate", false, "Use the simulated detector instead of the configured channels")
	cmd.Flags().Float64Var(&meanRate, "rate", 0, "True event rate of the simulated detector (events per second)")
	cmd.Flags().IntVar(&smooth, "smooth", 0, "Also log every CPS value averaged over this many seconds (0 = off)")
	return cmd
}

// applyRunOverrides applies command line overrides to the configuration.
func applyRunOverrides(cfg *config.Config, port string, simulate bool, meanRate float64) {
	if simulate {
		sim := config.DefaultChannel("sim", config.KindSimulation)
		for _, ch := range cfg.Channels {
			if ch.Kind == config.KindSimulation {
				sim = ch
				break
			}
		}
		cfg.Channels = []config.ChannelConfig{sim}
	}
	if meanRate > 0 {
		for i := range cfg.Channels {
			if cfg.Channels[i].Kind == config.KindSimulation {
				cfg.Channels[i].Simulation.MeanRate = meanRate
			}
		}
	}
	if port != "" && !simulate {
		for i := range cfg.Channels {
			if cfg.Channels[i].Kind == config.KindSerial {
				cfg.Channels[i].Serial.Port = port
				return
			}
		}
		ch := config.DefaultChannel("serial", config.KindSerial)
		ch.Serial.Port = port
		cfg.Channels = append(cfg.Channels, ch)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, smooth int) error {
	station, err := acquire.NewStation(cfg, acquire.StationOptions{Logger: logger})
	if err != nil {
		return err
	}

	if err := station.Start(ctx); err != nil {
		logger.Warn("some channels did not start", zap.Error(err))
	}
	if station.Running() == 0 {
		return errors.New("no channel could be started")
	}

	var wg sync.WaitGroup
	if smooth > 0 {
		for _, ch := range station.Channels() {
			if !ch.IsRunning() {
				continue
			}
			pipeline := stream.Chain(
				stream.NewAveraging(smooth, 0),
				stream.NewLogging(logger, "smoothed", zap.String("channel", ch.Name()), zap.Int("seconds", smooth)),
			)
			out := pipeline(ch.Values())
			wg.Add(1)
			go func() {
				defer wg.Done()
				stream.Drain(out)
			}()
		}
	}

	ticker := time.NewTicker(cfg.Acquisition.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			if err := station.Stop(); err != nil {
				return fmt.Errorf("failed to stop: %w", err)
			}
			// Values channels are closed by now, so the pipelines finish.
			wg.Wait()
			return nil
		case <-ticker.C:
			for _, s := range station.Snapshots() {
				if !s.Connected {
					continue
				}
				logger.Info("rate", zap.Object("snapshot", s))
			}
		}
	}
}
