package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/oshokin/silent-alarm/internal/config"
	"github.com/oshokin/silent-alarm/internal/hardware"
	"github.com/oshokin/silent-alarm/internal/logger"
	"github.com/oshokin/silent-alarm/internal/repository/identity"
	"github.com/oshokin/silent-alarm/internal/service/common"
)

// Options controls the device agent process and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ServerAddress provides an optional gRPC server address override.
	ServerAddress string
	// Transport overrides the configured store transport (grpc or http).
	Transport string
	// LogLevel overrides the configured log level.
	LogLevel string
	// Keyboard reads button presses from standard input in addition to the configured buttons.
	Keyboard bool
}

// Run provisions the device identity, connects to the store and runs the agent until ctx is canceled.
//
//nolint:funlen // Startup order is easier to follow in one place.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "alarm-clock")

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

	device := &cfg.Device

	if !device.AllowMultipleInstances {
		if err = common.EnsureSingleInstance(); err != nil {
			return err
		}
	}

	// Without a stable identity the device cannot be addressed, so this is fatal.
	deviceID, err := identity.NewFileRepository(device.IdentityFile, device.IdentityPrefix).Provision(ctx)
	if err != nil {
		return fmt.Errorf("provision device identity: %w", err)
	}

	ctx = logger.WithKV(ctx, "device_id", deviceID)

	actor, err := common.DetectActor()
	if err != nil {
		return fmt.Errorf("detect actor: %w", err)
	}

	serverAddress := cfg.ServerAddress
	if opts.ServerAddress != "" {
		serverAddress = opts.ServerAddress
	}

	transport := device.Transport
	if opts.Transport != "" {
		transport = opts.Transport
	}

	// The poll timeout bounds every store call made by the device.
	client, err := common.Connect(ctx, transport, serverAddress, cfg.HTTPAddress, device.PollTimeout)
	if err != nil {
		return fmt.Errorf("connect to store: %w", err)
	}

	defer func() {
		_ = client.Close()
	}()

	pins, display, buttons, err := openHardware(ctx, device, opts.Keyboard, os.Stdin, os.Stdout)
	if err != nil {
		return err
	}

	defer closeHardware(ctx, pins, display, buttons)

	poller := NewPollingObserver(client, deviceID, device.PollTimeout)

	var (
		observer   Observer = poller
		subscriber *SubscribingObserver
	)

	if device.Observer == config.ObserverSubscribe {
		subscriber = NewSubscribingObserver(client, poller, deviceID, DefaultResubscribeDelay)
		observer = subscriber
	}

	a := New(deviceID, observer, client, actor, pins, display, SettingsFromConfig(device),
		WithLocation(cfg.Location()))

	logger.InfoKV(ctx, "Alarm clock started",
		"transport", transport,
		"server_address", serverAddress,
		"observer", device.Observer,
		"disable_reset", device.DisableReset,
		"timezone", cfg.Timezone)

	var wg sync.WaitGroup

	if subscriber != nil {
		wg.Go(func() {
			subscriber.Run(ctx)
		})
	}

	for _, source := range buttons {
		wg.Go(func() {
			if watchErr := source.Watch(ctx, func(button hardware.Button) {
				a.Press(ctx, button)
			}); watchErr != nil {
				logger.ErrorKV(ctx, "Button source stopped", "error", watchErr)
			}
		})
	}

	err = a.Run(ctx)

	wg.Wait()

	if err != nil {
		return err
	}

	logger.Info(ctx, "Alarm clock stopped")

	return nil
}

// openHardware builds the output pins, the display and the button sources.
func openHardware(
	ctx context.Context,
	device *config.DeviceConfig,
	keyboard bool,
	in io.Reader,
	out io.Writer,
) (hardware.Pins, hardware.Display, []hardware.Buttons, error) {
	var (
		display hardware.Display = hardware.NopDisplay{}
		buttons []hardware.Buttons
	)

	if device.Display.Kind == config.DisplayKindConsole {
		display = hardware.NewConsoleDisplay(out, device.Display.Width, device.Display.Height)
	}

	if keyboard || device.Keyboard {
		buttons = append(buttons, hardware.NewKeyboardButtons(in))
	}

	if device.GPIO.Kind != config.GPIOKindSysfs {
		return hardware.NewLogPins(ctx), display, buttons, nil
	}

	pins, err := hardware.NewSysfsPins(device.GPIO.Root, device.GPIO.LEDPin, device.GPIO.VibrationPin)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open output pins: %w", err)
	}

	sysfsButtons, err := hardware.NewSysfsButtons(device.GPIO.Root, device.GPIO.ButtonPollInterval,
		map[hardware.Button]int{
			hardware.ButtonDisable:    device.GPIO.DisableButtonPin,
			hardware.ButtonIdentifier: device.GPIO.IdentifierButtonPin,
			hardware.ButtonVibration:  device.GPIO.VibrationButtonPin,
		})
	if err != nil {
		return nil, nil, nil, errors.Join(fmt.Errorf("open button pins: %w", err), pins.Close())
	}

	return pins, display, append(buttons, sysfsButtons), nil
}

func closeHardware(ctx context.Context, pins hardware.Pins, display hardware.Display, buttons []hardware.Buttons) {
	closers := []io.Closer{pins, display}

	for _, source := range buttons {
		if closer, ok := source.(io.Closer); ok {
			closers = append(closers, closer)
		}
	}

	for _, closer := range closers {
		if err := closer.Close(); err != nil {
			logger.WarnKV(ctx, "Unable to release hardware", "error", err)
		}
	}
}
