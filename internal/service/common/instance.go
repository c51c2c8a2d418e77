//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"errors"
	"fmt"
	"os"

	"github.com/mitchellh/go-ps"
)

var (
	// ErrAlreadyRunning is returned when another process runs the same executable.
	ErrAlreadyRunning = errors.New("another instance is already running")
	// errSelfNotFound is returned when the current process is missing from the process table.
	errSelfNotFound = errors.New("current process not found in process table")
)

// EnsureSingleInstance fails if another process runs the same executable as this one.
func EnsureSingleInstance() error {
	self, err := ps.FindProcess(os.Getpid())
	if err != nil {
		return fmt.Errorf("find current process: %w", err)
	}

	if self == nil {
		return errSelfNotFound
	}

	return ensureSingleInstance(self.Executable(), os.Getpid(), ps.Processes)
}

func ensureSingleInstance(executable string, selfPID int, list func() ([]ps.Process, error)) error {
	processList, err := list()
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}

	for _, process := range processList {
		if process.Pid() == selfPID {
			continue
		}

		if process.Executable() != executable {
			continue
		}

		return fmt.Errorf("%w: %s (pid %d)", ErrAlreadyRunning, executable, process.Pid())
	}

	return nil
}
