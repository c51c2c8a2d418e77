package client

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/oshokin/silent-alarm/internal/config"
	"github.com/oshokin/silent-alarm/internal/domain/alarm"
	"github.com/oshokin/silent-alarm/internal/logger"
	"github.com/oshokin/silent-alarm/internal/service/common"
)

// Options configures one alarm-ctl invocation.
type Options struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string
	// ServerAddress overrides server address from config when specified.
	ServerAddress string
	// Transport overrides the store transport (grpc or http).
	Transport string
	// LogLevel overrides the configured log level.
	LogLevel string
	// Output receives the command output, standard output when nil.
	Output io.Writer
}

// Add registers a new alarm for the device.
func Add(ctx context.Context, opts *Options, deviceID, date, clock string) error {
	return withController(ctx, opts, func(ctx context.Context, c *Controller, out io.Writer) error {
		entry, err := c.AddAlarm(ctx, deviceID, date, clock)
		if err != nil {
			return err
		}

		logger.InfoKV(ctx, "Alarm added", "device_id", deviceID, "alarm", entry.String())
		_, err = fmt.Fprintf(out, "Alarm set for %s\n", entry)

		return err
	})
}

// List prints the device alarms sorted and numbered from 1.
func List(ctx context.Context, opts *Options, deviceID string) error {
	return withController(ctx, opts, func(ctx context.Context, c *Controller, out io.Writer) error {
		alarms, err := c.ListAlarms(ctx, deviceID)
		if err != nil {
			return err
		}

		return printAlarms(out, alarms)
	})
}

// Delete removes the alarm at the given position of the listing.
func Delete(ctx context.Context, opts *Options, deviceID string, position int) error {
	return withController(ctx, opts, func(ctx context.Context, c *Controller, out io.Writer) error {
		removed, err := c.DeleteAlarm(ctx, deviceID, position)
		if err != nil {
			return err
		}

		logger.InfoKV(ctx, "Alarm deleted", "device_id", deviceID, "alarm", removed.String())
		_, err = fmt.Fprintf(out, "Alarm %s deleted\n", removed)

		return err
	})
}

// Trigger prints the device trigger, forcing it first when value is set.
func Trigger(ctx context.Context, opts *Options, deviceID string, value *bool) error {
	return withController(ctx, opts, func(ctx context.Context, c *Controller, out io.Writer) error {
		if value != nil {
			if err := c.SetTrigger(ctx, deviceID, *value); err != nil {
				return err
			}

			logger.InfoKV(ctx, "Trigger forced", "device_id", deviceID, "value", *value)
		}

		state, err := c.Trigger(ctx, deviceID)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintf(out, "%s: %s\n", deviceID, formatState(state))

		return err
	})
}

// withController loads the configuration, connects to the store and runs fn.
func withController(
	ctx context.Context,
	opts *Options,
	fn func(ctx context.Context, c *Controller, out io.Writer) error,
) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "alarm-ctl")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if err = logger.Configure(cfg.LogLevel); err != nil {
		return err
	}

	if err = logger.Configure(opts.LogLevel); err != nil {
		return err
	}

	// Use server address from options if provided, otherwise use config.
	serverAddress := cfg.ServerAddress
	if opts.ServerAddress != "" {
		serverAddress = opts.ServerAddress
	}

	transport := config.TransportGRPC
	if opts.Transport != "" {
		transport = opts.Transport
	}

	// Identify current user and hostname for the trigger audit trail.
	actor, err := common.DetectActor()
	if err != nil {
		return fmt.Errorf("detect actor: %w", err)
	}

	client, err := common.Connect(ctx, transport, serverAddress, cfg.HTTPAddress, cfg.Timeout)
	if err != nil {
		return fmt.Errorf("connect to store: %w", err)
	}

	// Close connection on function exit.
	defer func() {
		_ = client.Close()
	}()

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	return fn(ctx, NewController(client, actor, WithLocation(cfg.Location())), out)
}

// printAlarms writes a numbered table of alarms.
func printAlarms(out io.Writer, alarms alarm.List) error {
	if len(alarms) == 0 {
		_, err := fmt.Fprintln(out, "No alarms set")

		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "#\tDATE\tTIME")
	fmt.Fprintln(w, "-\t----\t----")

	for i, entry := range alarms {
		fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, entry.Date, entry.Time)
	}

	return w.Flush()
}

// formatState converts a trigger state to a readable line.
func formatState(state *alarm.TriggerState) string {
	if state == nil {
		return "<nil state>"
	}

	// Convert boolean state to readable string.
	status := "off"
	if state.Value {
		status = "on"
	}

	if state.UpdatedAt.IsZero() {
		return status + " (never written)"
	}

	return fmt.Sprintf("%s by %s (%s)", status, state.LastActor, state.UpdatedAt.Format(time.RFC3339))
}
