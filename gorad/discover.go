package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/itohio/gorad/pkg/config"
	"github.com/itohio/gorad/pkg/source"
	"github.com/spf13/cobra"
)

func discoverCmd(root *rootOptions) *cobra.Command {
	var (
		baudRate int
		wait     time.Duration
		exclude  []string
	)
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find the serial port receiving detector pulses",
		Long: `Listens to every serial port in turn and prints the first one that
receives bytes without being asked. Ports named by serial channels of the
configuration are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			for _, ch := range cfg.Channels {
				if ch.Kind == config.KindSerial && ch.Serial.Port != config.Auto {
					exclude = append(exclude, ch.Serial.Port)
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			name, err := source.DiscoverSerial(ctx, source.DiscoverOptions{
				BaudRate: baudRate,
				Wait:     wait,
				Exclude:  exclude,
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), name)
			return nil
		},
	}
	cmd.Flags().IntVar(&baudRate, "baud", source.DefaultBaudRate, "Baud rate")
	cmd.Flags().DurationVar(&wait, "wait", source.DefaultDiscoverWait, "Listening window per port")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "Ports to skip")
	return cmd
}
