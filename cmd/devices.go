package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/smazurov/camkeep/internal/config"
	"github.com/smazurov/camkeep/internal/devices"
	"github.com/smazurov/camkeep/internal/logging"
)

// CreateDevicesCmd lists video nodes without opening them.
func CreateDevicesCmd() *cobra.Command {
	var wait time.Duration
	var asJSON bool

	c := &cobra.Command{
		Use:   "devices",
		Short: "List video capture devices",
		Long:  `Probe the video4linux namespace and list device nodes with their stable ids. Exits 1 when no device is present.`,
		Run: humacli.WithOptions(func(cmd *cobra.Command, _ []string, opts *Options) {
			if err := config.LoadConfig(opts, cmd); err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				os.Exit(2)
			}
			logging.Initialize(opts.LoggingConfig())

			probe := devices.NewProbe(logging.GetLogger("devices"))
			if wait > 0 {
				probe.AwaitPresent(cmd.Context(), wait, time.Second)
			}

			found := probe.Devices()
			if err := printDevices(cmd.OutOrStdout(), found, asJSON); err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				os.Exit(2)
			}
			if len(found) == 0 {
				os.Exit(1)
			}
		}),
	}

	c.Flags().DurationVar(&wait, "wait", 0, "Wait up to this long for a device to appear")
	c.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return c
}

func printDevices(w io.Writer, found []devices.DeviceInfo, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(found)
	}

	if len(found) == 0 {
		_, err := fmt.Fprintln(w, "No video devices found")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tNAME\tSTABLE ID")
	for _, d := range found {
		id := d.DeviceID
		if id == "" {
			id = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.DevicePath, d.DeviceName, id)
	}
	return tw.Flush()
}
