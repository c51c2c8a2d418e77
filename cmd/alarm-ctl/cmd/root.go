package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/silent-alarm/internal/config"
	"github.com/oshokin/silent-alarm/internal/service/client"
	"github.com/oshokin/silent-alarm/internal/version"
)

var (
	// configPath stores the path to the configuration YAML file.
	configPath string
	// serverAddress overrides the configured store address.
	serverAddress string
	// transport selects how the store is reached.
	transport string
	// logLevel overrides the configured log level.
	logLevel string

	// errInvalidTriggerValue is returned for trigger values other than on and off.
	errInvalidTriggerValue = errors.New("trigger value must be on or off")

	// rootCmd represents the base command of the operator CLI.
	rootCmd = &cobra.Command{
		Use:   "alarm-ctl",
		Short: "Manage the alarms and triggers of silent alarm clocks.",
		Long: `Operator CLI for the silent alarm store.

Alarms are set per device identifier (shown by the identifier button of the clock)
as a date and a minute in the configured timezone. The scheduler removes every
alarm once it fires.`,
		SilenceUsage: true,
	}

	addCmd = &cobra.Command{
		Use:     "add <device> <YYYY-MM-DD> <HH:MM>",
		Short:   "Add an alarm to a device.",
		Example: "  alarm-ctl add pi12345 2025-01-01 07:00",
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.Add(cmd.Context(), options(cmd), args[0], args[1], args[2])
		},
	}

	listCmd = &cobra.Command{
		Use:   "list <device>",
		Short: "List the alarms of a device, numbered in chronological order.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.List(cmd.Context(), options(cmd), args[0])
		},
	}

	deleteCmd = &cobra.Command{
		Use:   "delete <device> <number>",
		Short: "Delete an alarm by its number in the listing.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			position, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("parse alarm number: %w", err)
			}

			return client.Delete(cmd.Context(), options(cmd), args[0], position)
		},
	}

	triggerCmd = &cobra.Command{
		Use:   "trigger <device> [on|off]",
		Short: "Show or force the trigger of a device.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value *bool

			if len(args) == 2 {
				switch args[1] {
				case "on", "true":
					value = new(bool)
					*value = true
				case "off", "false":
					value = new(bool)
				default:
					return fmt.Errorf("%w: %q", errInvalidTriggerValue, args[1])
				}
			}

			return client.Trigger(cmd.Context(), options(cmd), args[0], value)
		},
	}
)

func options(cmd *cobra.Command) *client.Options {
	return &client.Options{
		ConfigPath:    configPath,
		ServerAddress: serverAddress,
		Transport:     transport,
		LogLevel:      logLevel,
		Output:        cmd.OutOrStdout(),
	}
}

// Execute runs the alarm-ctl CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	// Setup graceful shutdown handling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1) //nolint:gocritic // stop is called explicitly above.
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	flags.StringVarP(&serverAddress, "server", "s", "", "store address override")
	flags.StringVarP(&transport, "transport", "t", config.TransportGRPC, "store transport (grpc, http)")
	flags.StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(addCmd, listCmd, deleteCmd, triggerCmd)
}
