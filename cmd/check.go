package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/smazurov/camkeep/internal/camera"
	"github.com/smazurov/camkeep/internal/capture"
	"github.com/smazurov/camkeep/internal/config"
	"github.com/smazurov/camkeep/internal/devices"
	"github.com/smazurov/camkeep/internal/events"
	"github.com/smazurov/camkeep/internal/logging"
	"github.com/smazurov/camkeep/internal/sink"
)

// CreateCheckCmd captures a fixed number of frames with the configured
// camera and retry settings and reports how it went.
func CreateCheckCmd() *cobra.Command {
	var frames uint64
	var output string

	c := &cobra.Command{
		Use:   "check",
		Short: "Capture a few frames and report",
		Long:  `Run the capture loop until the requested number of frames has been read, then print a summary. The exit status is 1 if the camera could not be opened or recovered.`,
		Run: humacli.WithOptions(func(cmd *cobra.Command, _ []string, opts *Options) {
			if err := config.LoadConfig(opts, cmd); err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				os.Exit(2)
			}
			logging.Initialize(opts.LoggingConfig())

			settings, err := opts.Parse()
			if err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				os.Exit(2)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			code := runCheck(ctx, cmd.OutOrStdout(), settings, camera.NewDriver(), frames, output)
			stop()
			os.Exit(code)
		}),
	}

	c.Flags().Uint64Var(&frames, "frames", 10, "Frames to capture")
	c.Flags().StringVarP(&output, "output", "o", "", "Write the last frame to this file")
	return c
}

func runCheck(ctx context.Context, w io.Writer, settings Settings, driver camera.Driver, frames uint64, output string) int {
	if frames == 0 {
		frames = 1
	}

	latest := sink.NewLatest()
	probe := devices.NewProbe(logging.GetLogger("devices"))
	loop := newLoop(settings, driver, probe, latest, events.New(), frames)

	start := time.Now()
	outcome := loop.Run(ctx)
	elapsed := time.Since(start)
	st := loop.Status()

	fmt.Fprintf(w, "Outcome:    %s\n", outcome.Kind)
	fmt.Fprintf(w, "Device:     %s\n", settings.Camera.DevicePath())
	fmt.Fprintf(w, "Frames:     %d/%d\n", st.Frames, frames)
	fmt.Fprintf(w, "Reconnects: %d\n", st.Reconnects)
	fmt.Fprintf(w, "Elapsed:    %s\n", elapsed.Round(time.Millisecond))
	if outcome.Err != nil && outcome.Kind == capture.Fatal {
		fmt.Fprintf(w, "Error:      %v (%s)\n", outcome.Err, camera.CodeOf(outcome.Err))
	}

	if output != "" {
		if frame, _, seq, ok := latest.Snapshot(); ok {
			if err := os.WriteFile(output, frame, 0o644); err != nil {
				fmt.Fprintf(w, "Failed to write %s: %v\n", output, err)
			} else {
				fmt.Fprintf(w, "Saved frame %d to %s (%d bytes)\n", seq, output, len(frame))
			}
		}
	}

	return outcome.ExitCode()
}
