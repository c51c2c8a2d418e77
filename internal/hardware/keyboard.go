package hardware

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// KeyboardButtons reads button presses from text lines: "d" disables, "i" shows
// the identifier and "v" toggles vibration. Unknown lines are ignored.
type KeyboardButtons struct {
	in io.Reader
}

// NewKeyboardButtons creates a button source reading from in.
func NewKeyboardButtons(in io.Reader) *KeyboardButtons {
	return &KeyboardButtons{in: in}
}

// Watch implements Buttons. It returns nil at end of input.
func (k *KeyboardButtons) Watch(ctx context.Context, press func(Button)) error {
	lines := make(chan string)
	errs := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(k.in)

		defer func() {
			errs <- scanner.Err()
			close(lines)
		}()

		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				if err := <-errs; err != nil {
					return fmt.Errorf("read keyboard: %w", err)
				}

				return nil
			}

			if button, known := parseKey(line); known {
				press(button)
			}
		}
	}
}

func parseKey(line string) (Button, bool) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "d", "disable":
		return ButtonDisable, true
	case "i", "id", "identifier":
		return ButtonIdentifier, true
	case "v", "vibration":
		return ButtonVibration, true
	default:
		return 0, false
	}
}
