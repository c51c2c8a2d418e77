package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/silent-alarm/internal/config"
	"github.com/oshokin/silent-alarm/internal/service/server"
	"github.com/oshokin/silent-alarm/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// httpListenAddress overrides the REST listen address.
	httpListenAddress string
	// backend overrides the configured store backend.
	backend string
	// stateFile path where the file backend keeps its snapshot.
	stateFile string
	// logLevel overrides the configured log level.
	logLevel string

	// rootCmd represents the base command for running the store service.
	rootCmd = &cobra.Command{
		Use:   "alarm-store [listen-address]",
		Short: "Run the shared alarm and trigger store.",
		Long: `Starts the store that keeps the alarms of every device and their triggers.

The store is served over gRPC (used by the scheduler, the clocks and alarm-ctl) and
over REST with WebSocket trigger subscriptions when http_addr is configured.
Only the port of server_addr and http_addr is used for listening (e.g., :50051).
The gRPC listen address can be provided as argument to override config.
Data is kept in memory and persisted through the configured backend
(memory, file, sqlite or postgres).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use listen address argument if provided, otherwise rely on config.
			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			options := &server.Options{
				ConfigPath:        configPath,
				ListenAddress:     listenAddress,
				HTTPListenAddress: httpListenAddress,
				Backend:           backend,
				StateFile:         stateFile,
				LogLevel:          logLevel,
			}

			return server.Run(ctx, options)
		},
	}
)

// Execute runs the alarm-store CLI and exits with non-zero status on error.
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
	rootCmd.Flags().StringVar(&httpListenAddress, "http-listen", "", "REST listen address override")
	rootCmd.Flags().StringVarP(&backend, "backend", "b", "", "store backend override (memory, file, sqlite, postgres)")
	rootCmd.Flags().StringVarP(&stateFile, "state-file", "s", "", "snapshot path override for the file backend")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
}
