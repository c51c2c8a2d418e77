package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/silent-alarm/internal/config"
	"github.com/oshokin/silent-alarm/internal/service/scheduler"
	"github.com/oshokin/silent-alarm/internal/version"
)

var (
	// configPath stores the path to the configuration YAML file.
	configPath string
	// transport selects how the store is reached.
	transport string
	// logLevel overrides the configured log level.
	logLevel string

	// rootCmd represents the base command for the per-minute scheduler.
	rootCmd = &cobra.Command{
		Use:   "alarm-scheduler [server-address]",
		Short: "Fire alarms by raising device triggers once per minute.",
		Long: `Background service that matches the stored alarms against the wall clock.

Shortly after every minute boundary it raises the trigger of each device with an
alarm for the current minute, lowers the triggers of devices without one and
removes the alarms that fired. Matching uses the timezone from the configuration.
Server address can be provided as argument or loaded from configuration file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use server address argument if provided, otherwise rely on config.
			var serverAddress string
			if len(args) > 0 {
				serverAddress = args[0]
			}

			return scheduler.Run(ctx, &scheduler.Options{
				ConfigPath:    configPath,
				ServerAddress: serverAddress,
				Transport:     transport,
				LogLevel:      logLevel,
			})
		},
	}
)

// Execute runs the alarm-scheduler CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&transport, "transport", "t", config.TransportGRPC, "store transport (grpc, http)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
}
