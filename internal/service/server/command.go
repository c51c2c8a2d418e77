package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"

	grpcapi "github.com/oshokin/silent-alarm/internal/api/grpc/store"
	"github.com/oshokin/silent-alarm/internal/api/rest"
	"github.com/oshokin/silent-alarm/internal/config"
	"github.com/oshokin/silent-alarm/internal/logger"
	"github.com/oshokin/silent-alarm/internal/rpc/storev1"
	"github.com/oshokin/silent-alarm/internal/store"
)

// Options controls the alarm-store process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ListenAddress provides an optional listen address override for the gRPC server.
	ListenAddress string
	// HTTPListenAddress provides an optional listen address override for the REST server.
	HTTPListenAddress string
	// Backend overrides the configured store backend.
	Backend string
	// StateFile overrides the snapshot path of the file backend.
	StateFile string
	// LogLevel overrides the configured log level.
	LogLevel string
}

// ErrNoServerAddress indicates missing server configuration.
var ErrNoServerAddress = errors.New("no server address configured")

// shutdownTimeout bounds the HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// readHeaderTimeout bounds how long a client may take to send request headers.
const readHeaderTimeout = 10 * time.Second

// Run serves the store over gRPC and REST and blocks until ctx is canceled or a server fails.
//
//nolint:funlen // Startup and shutdown order is easier to follow in one place.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "alarm-store")

	// Load configuration first to get server settings.
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if err = logger.Configure(cfg.LogLevel); err != nil {
		return err
	}

	if err = logger.Configure(opts.LogLevel); err != nil {
		return err
	}

	if opts.Backend != "" {
		cfg.Store.Backend = opts.Backend
	}

	if opts.StateFile != "" {
		cfg.Store.StateFile = opts.StateFile
	}

	// Determine listen addresses: CLI arguments override config port extraction.
	listenAddress, err := resolveListenAddress(cfg.ServerAddress, opts.ListenAddress)
	if err != nil {
		return fmt.Errorf("resolve listen address: %w", err)
	}

	httpListenAddress, err := resolveListenAddress(cfg.HTTPAddress, opts.HTTPListenAddress)
	if err != nil && !errors.Is(err, ErrNoServerAddress) {
		return fmt.Errorf("resolve http listen address: %w", err)
	}

	repo, closeRepo, err := openRepository(&cfg.Store)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}

	defer func() {
		if closeErr := closeRepo(); closeErr != nil {
			logger.WarnKV(ctx, "Unable to close repository", "error", closeErr)
		}
	}()

	memory, err := store.NewMemory(ctx, repo)
	if err != nil {
		return fmt.Errorf("initialise store: %w", err)
	}

	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", listenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddress, err)
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcapi.UnaryLoggingInterceptor),
		grpc.ChainStreamInterceptor(grpcapi.StreamLoggingInterceptor),
	)
	storev1.RegisterStoreServiceServer(grpcServer, grpcapi.NewServer(memory))

	var httpServer *http.Server

	if httpListenAddress != "" {
		httpLis, listenErr := lc.Listen(ctx, "tcp", httpListenAddress)
		if listenErr != nil {
			_ = lis.Close()

			return fmt.Errorf("listen on %s: %w", httpListenAddress, listenErr)
		}

		httpServer = &http.Server{
			Handler: rest.NewRouter(ctx, memory, rest.Options{
				RateLimitPerSec: cfg.Store.RateLimitPerSec,
				RateLimitBurst:  cfg.Store.RateLimitBurst,
			}),
			ReadHeaderTimeout: readHeaderTimeout,
		}

		go func() {
			if serveErr := httpServer.Serve(httpLis); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				logger.ErrorKV(ctx, "HTTP server failed", "error", serveErr)
			}
		}()
	}

	logger.InfoKV(ctx, "Alarm store listening",
		"listen_address", listenAddress,
		"http_listen_address", httpListenAddress,
		"backend", cfg.Store.Backend)

	// Done channel is closed after every server stopped to ensure we block
	// until the shutdown completes before returning.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down servers")

		// Open watch streams would keep GracefulStop waiting forever.
		_ = memory.Close()

		grpcServer.GracefulStop()

		if httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
				logger.WarnKV(ctx, "HTTP shutdown incomplete", "error", shutdownErr)
			}

			cancel()
		}

		close(done)
	}()

	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	<-done
	logger.Info(ctx, "Alarm store stopped")

	return nil
}

// resolveListenAddress determines the listen address for a server.
// If override is provided, uses it directly. Otherwise extracts port from configAddr.
// Returns appropriate listen address (e.g., ":8080" for port-only binding).
func resolveListenAddress(configAddr, override string) (string, error) {
	// Use override address if provided (e.g., ":9090", "0.0.0.0:8080").
	if override != "" {
		return override, nil
	}

	// Extract port from config address (e.g., "server.example.com:8080" -> ":8080").
	if configAddr == "" {
		return "", ErrNoServerAddress
	}

	// Parse the address to extract port.
	_, port, err := net.SplitHostPort(configAddr)
	if err != nil {
		return "", fmt.Errorf("invalid server address format %q: %w", configAddr, err)
	}

	// Return port-only listen address to bind on all interfaces.
	return ":" + port, nil
}
