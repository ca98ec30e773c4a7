package main

import (
	"context"
	"fmt"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/camkeep/cmd"
	"github.com/smazurov/camkeep/internal/camera"
	"github.com/smazurov/camkeep/internal/capture"
	"github.com/smazurov/camkeep/internal/config"
	"github.com/smazurov/camkeep/internal/logging"
	"github.com/smazurov/camkeep/internal/version"
)

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *cmd.Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			fmt.Fprintln(os.Stderr, "Error:", loadErr)
			os.Exit(2)
		}

		logging.Initialize(opts.LoggingConfig())
		logger := logging.GetLogger("main")

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan capture.Outcome, 1)

		hooks.OnStart(func() {
			logger.Info("Starting camkeep", "version", version.String(), "config", opts.Config)
			service, err := cmd.NewService(opts, camera.NewDriver())
			if err != nil {
				logger.Error("Failed to set up service", "error", err)
				os.Exit(2)
			}

			outcome := service.Run(ctx)
			done <- outcome
			if outcome.Kind == capture.Fatal {
				logger.Error("Capture stopped", "error", outcome.Err)
				os.Exit(outcome.ExitCode())
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			cancel()
			<-done
		})
	})

	root := cli.Root()
	root.Use = "camkeep"
	root.Short = "Keep a USB camera streaming across enumeration delays and read failures"
	root.Version = version.String()
	root.AddCommand(cmd.CreateDevicesCmd())
	root.AddCommand(cmd.CreateCheckCmd())

	cli.Run()
}
