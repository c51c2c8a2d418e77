package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/silent-alarm/internal/config"
	"github.com/oshokin/silent-alarm/internal/service/agent"
	"github.com/oshokin/silent-alarm/internal/version"
)

var (
	// configPath stores the path to the configuration YAML file.
	configPath string
	// transport overrides the configured store transport.
	transport string
	// logLevel overrides the configured log level.
	logLevel string
	// keyboard reads button presses from standard input.
	keyboard bool

	// rootCmd represents the base command for the device agent.
	rootCmd = &cobra.Command{
		Use:   "alarm-clock [server-address]",
		Short: "Run the alarm clock of this device.",
		Long: `Runs the silent alarm clock on this device.

Watches the trigger of the device in the store and lights the alert LED (and the
vibration motor when enabled) while it is raised. The display shows the date and
time, the alarm state, or a network error once the store is unreachable.
Buttons: disable silences the current alarm, identifier shows the device id and
vibration toggles the motor. With --keyboard, type d, i or v and Enter instead.

The device identifier is generated on first start and kept in identity_file.
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

			return agent.Run(ctx, &agent.Options{
				ConfigPath:    configPath,
				ServerAddress: serverAddress,
				Transport:     transport,
				LogLevel:      logLevel,
				Keyboard:      keyboard,
			})
		},
	}
)

// Execute runs the alarm-clock CLI and exits with non-zero status on error.
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
	rootCmd.Flags().StringVarP(&transport, "transport", "t", "", "store transport override (grpc, http)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.Flags().BoolVarP(&keyboard, "keyboard", "k", false, "read d/i/v button presses from standard input")
}
