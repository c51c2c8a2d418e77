//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"errors"
	"testing"

	"github.com/mitchellh/go-ps"
	"github.com/stretchr/testify/require"
)

var errTestProcessList = errors.New("test process list error")

// fakeProcess implements ps.Process.
type fakeProcess struct {
	pid        int
	executable string
}

func (p fakeProcess) Pid() int           { return p.pid }
func (p fakeProcess) PPid() int          { return 1 }
func (p fakeProcess) Executable() string { return p.executable }

func listOf(processes ...ps.Process) func() ([]ps.Process, error) {
	return func() ([]ps.Process, error) {
		return processes, nil
	}
}

// TestEnsureSingleInstance covers the alone, duplicate and failing process table cases.
func TestEnsureSingleInstance(t *testing.T) {
	t.Parallel()

	self := fakeProcess{pid: 100, executable: "alarm-clock"}
	other := fakeProcess{pid: 200, executable: "alarm-store"}
	twin := fakeProcess{pid: 300, executable: "alarm-clock"}

	require.NoError(t, ensureSingleInstance("alarm-clock", 100, listOf(self, other)))

	err := ensureSingleInstance("alarm-clock", 100, listOf(self, other, twin))
	require.ErrorIs(t, err, ErrAlreadyRunning)
	require.Contains(t, err.Error(), "300")

	err = ensureSingleInstance("alarm-clock", 100, func() ([]ps.Process, error) {
		return nil, errTestProcessList
	})
	require.ErrorIs(t, err, errTestProcessList)
}

// TestEnsureSingleInstance_Live runs against the real process table; the test binary is alone.
func TestEnsureSingleInstance_Live(t *testing.T) {
	t.Parallel()

	require.NoError(t, EnsureSingleInstance())
}
