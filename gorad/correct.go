package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/itohio/gorad/pkg/deadtime"
	"github.com/itohio/gorad/pkg/rate"
	"github.com/spf13/cobra"
)

func correctCmd(root *rootOptions) *cobra.Command {
	var (
		deadTimeUS float64
		modelName  string
		perMinute  bool
	)
	cmd := &cobra.Command{
		Use:   "correct RATE...",
		Short: "Correct observed count rates for dead time",
		Long: `Prints the true rate for every observed rate. A single rate outside the
model's range is an error; in a list it is reported as missing.`,
		Example: `gorad correct --dead-time-us 125 --model paralyzing 1000 2000 2900`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := deadtime.ParseModel(modelName)
			if err != nil {
				return err
			}
			observed := make([]float64, len(args))
			for i, a := range args {
				observed[i], err = strconv.ParseFloat(a, 64)
				if err != nil {
					return fmt.Errorf("invalid rate %q: %w", a, err)
				}
				if perMinute {
					observed[i] /= 60
				}
			}
			logger, err := root.logger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			tau := time.Duration(deadTimeUS * float64(time.Microsecond))
			corrector := deadtime.NewCorrector(model, tau, logger)

			scale := 1.0
			if perMinute {
				scale = 60
			}

			out := cmd.OutOrStdout()
			if len(observed) == 1 {
				n, err := corrector.Correct("rate", observed[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s\t%.2f\n", args[0], n*scale)
				return nil
			}

			corrected, _ := corrector.CorrectAll("rate", observed)
			for i, n := range corrected {
				if rate.IsMissing(n) {
					fmt.Fprintf(out, "%s\tmissing\n", args[i])
					continue
				}
				fmt.Fprintf(out, "%s\t%.2f\n", args[i], n*scale)
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&deadTimeUS, "dead-time-us", 125, "Detector dead time in microseconds")
	cmd.Flags().StringVar(&modelName, "model", "paralyzing", "Detector model: paralyzing, non-paralyzing, none")
	cmd.Flags().BoolVar(&perMinute, "cpm", false, "Rates are counts per minute")
	return cmd
}
