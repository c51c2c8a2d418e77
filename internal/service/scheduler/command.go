package scheduler

import (
	"context"
	"fmt"

	"github.com/oshokin/silent-alarm/internal/config"
	"github.com/oshokin/silent-alarm/internal/logger"
	"github.com/oshokin/silent-alarm/internal/service/common"
)

// Options controls the scheduler process and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ServerAddress provides an optional gRPC server address override.
	ServerAddress string
	// Transport overrides the store transport (grpc or http).
	Transport string
	// LogLevel overrides the configured log level.
	LogLevel string
}

// Run connects to the store and reconciles triggers once per minute until ctx is canceled.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "alarm-scheduler")

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

	serverAddress := cfg.ServerAddress
	if opts.ServerAddress != "" {
		serverAddress = opts.ServerAddress
	}

	transport := config.TransportGRPC
	if opts.Transport != "" {
		transport = opts.Transport
	}

	// Detect current system actor for the trigger audit trail.
	actor, err := common.DetectActor()
	if err != nil {
		return fmt.Errorf("detect actor: %w", err)
	}

	client, err := common.Connect(ctx, transport, serverAddress, cfg.HTTPAddress, cfg.Timeout)
	if err != nil {
		return fmt.Errorf("connect to store: %w", err)
	}

	// Ensure connection cleanup on function exit.
	defer func() {
		_ = client.Close()
	}()

	s := New(client, client, actor,
		WithLocation(cfg.Location()),
		WithEpsilon(cfg.Scheduler.TickEpsilon))

	logger.InfoKV(ctx, "Scheduler started",
		"transport", transport,
		"server_address", serverAddress,
		"timezone", cfg.Timezone,
		"actor", actor)

	if err = s.Run(ctx); err != nil {
		return err
	}

	logger.Info(ctx, "Scheduler stopped")

	return nil
}
