package hardware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/oshokin/silent-alarm/internal/logger"
)

// Sysfs GPIO directions.
const (
	directionIn  = "in"
	directionOut = "out"
)

// exportSettle is how long the kernel may take to create a freshly exported pin directory.
const exportSettle = 100 * time.Millisecond

// SysfsPins drives outputs through the Linux sysfs GPIO interface.
type SysfsPins struct {
	root     string
	mu       sync.Mutex
	exported map[int]struct{}
}

// NewSysfsPins exports channels as outputs under root (usually /sys/class/gpio)
// and drives them low.
func NewSysfsPins(root string, channels ...int) (*SysfsPins, error) {
	pins := &SysfsPins{
		root:     root,
		exported: make(map[int]struct{}, len(channels)),
	}

	for _, channel := range channels {
		if err := export(root, channel, directionOut); err != nil {
			_ = pins.Close()

			return nil, err
		}

		pins.exported[channel] = struct{}{}

		if err := pins.SetDigitalOutput(channel, Low); err != nil {
			_ = pins.Close()

			return nil, err
		}
	}

	return pins, nil
}

// SetDigitalOutput writes level to the value file of channel.
func (p *SysfsPins) SetDigitalOutput(channel int, level Level) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.exported[channel]; !ok {
		return fmt.Errorf("gpio %d: %w", channel, errUnknownChannel)
	}

	value := []byte("0")
	if level {
		value = []byte("1")
	}

	if err := os.WriteFile(pinFile(p.root, channel, "value"), value, 0); err != nil {
		return fmt.Errorf("write gpio %d: %w", channel, err)
	}

	return nil
}

// Close unexports every channel.
func (p *SysfsPins) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error

	for channel := range p.exported {
		errs = append(errs, unexport(p.root, channel))
		delete(p.exported, channel)
	}

	return errors.Join(errs...)
}

// SysfsButtons polls input pins wired with pull-ups; a press is a falling edge.
type SysfsButtons struct {
	root     string
	interval time.Duration
	channels map[Button]int
}

// NewSysfsButtons exports the button channels as inputs.
func NewSysfsButtons(root string, interval time.Duration, channels map[Button]int) (*SysfsButtons, error) {
	for _, channel := range channels {
		if err := export(root, channel, directionIn); err != nil {
			return nil, err
		}
	}

	return &SysfsButtons{
		root:     root,
		interval: interval,
		channels: channels,
	}, nil
}

// Watch implements Buttons. A failed read skips that button for one poll;
// the failure is logged once until the pin reads again.
func (b *SysfsButtons) Watch(ctx context.Context, press func(Button)) error {
	ctx = logger.WithName(ctx, "buttons")

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	released := make(map[Button]bool, len(b.channels))
	for button := range b.channels {
		released[button] = true
	}

	failing := make(map[Button]bool, len(b.channels))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		for button, channel := range b.channels {
			high, err := readPin(b.root, channel)
			if err != nil {
				if !failing[button] {
					logger.WarnKV(ctx, "Unable to read button", "button", button.String(), "error", err)
				}

				failing[button] = true

				continue
			}

			if failing[button] {
				logger.InfoKV(ctx, "Button readable again", "button", button.String())

				failing[button] = false
			}

			if released[button] && !high {
				press(button)
			}

			released[button] = high
		}
	}
}

// Close unexports every button channel.
func (b *SysfsButtons) Close() error {
	var errs []error
	for _, channel := range b.channels {
		errs = append(errs, unexport(b.root, channel))
	}

	return errors.Join(errs...)
}

func export(root string, channel int, direction string) error {
	if _, err := os.Stat(pinFile(root, channel, "")); errors.Is(err, os.ErrNotExist) {
		err = os.WriteFile(filepath.Join(root, "export"), []byte(strconv.Itoa(channel)), 0)
		if err != nil {
			return fmt.Errorf("export gpio %d: %w", channel, err)
		}

		time.Sleep(exportSettle)
	}

	if err := os.WriteFile(pinFile(root, channel, "direction"), []byte(direction), 0); err != nil {
		return fmt.Errorf("set gpio %d direction: %w", channel, err)
	}

	return nil
}

func unexport(root string, channel int) error {
	if err := os.WriteFile(filepath.Join(root, "unexport"), []byte(strconv.Itoa(channel)), 0); err != nil {
		return fmt.Errorf("unexport gpio %d: %w", channel, err)
	}

	return nil
}

func readPin(root string, channel int) (bool, error) {
	data, err := os.ReadFile(pinFile(root, channel, "value"))
	if err != nil {
		return false, fmt.Errorf("read gpio %d: %w", channel, err)
	}

	return bytes.Equal(bytes.TrimSpace(data), []byte("1")), nil
}

func pinFile(root string, channel int, name string) string {
	return filepath.Join(root, "gpio"+strconv.Itoa(channel), name)
}
