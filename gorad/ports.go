package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/itohio/gorad/pkg/source"
	"github.com/spf13/cobra"
)

func portsCmd() *cobra.Command {
	var audio bool
	cmd := &cobra.Command{
		Use:   "ports",
		Short: "List serial ports and audio inputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer w.Flush()

			ports, err := source.Ports()
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "PORT\tDESCRIPTION\tUSB")
			for _, p := range ports {
				usb := "-"
				if p.IsUSB {
					usb = p.VID + ":" + p.PID
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name, p.Description, usb)
			}

			if !audio {
				return nil
			}
			inputs, err := source.AudioInputs()
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "\nAUDIO INPUT\t\t")
			for _, name := range inputs {
				fmt.Fprintf(w, "%s\t\t\n", name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&audio, "audio", false, "Also list audio input devices")
	return cmd
}
