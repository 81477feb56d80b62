package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Charugundlavipul/soapai-cli/internal/capture"
)

func init() {
	rootCmd.AddCommand(devicesCmd)
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List available cameras and microphones",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		source := capture.NewFFmpegSource(cfg.Capture.Format, cfg.DataDir)
		devices, err := source.Devices(cmd.Context())
		if err != nil {
			// Enumeration failure is non-fatal: report and show nothing.
			fmt.Fprintf(os.Stderr, "Could not enumerate devices: %v\n", err)
			devices = nil
		}
		if len(devices) == 0 {
			fmt.Println("No capture devices found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tKIND\tNAME")
		for _, d := range devices {
			fmt.Fprintf(w, "%s\t%s\t%s\n", d.ID, d.Kind, d.Name)
		}
		return w.Flush()
	},
}
