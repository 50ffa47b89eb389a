//go:build linux || darwin

package proc

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Signaller terminates processes with SIGTERM (cooperative) or SIGKILL.
type Signaller struct {
	// state reports the scheduler state letter of a pid, "" when gone;
	// zombies count as exited
	state func(pid int) string
}

func (s *Signaller) Terminate(pid int, force bool) error {
	sig := unix.SIGTERM
	if force {
		sig = unix.SIGKILL
	}
	return signalError(pid, unix.Kill(pid, sig))
}

func (s *Signaller) Alive(pid int) bool {
	err := unix.Kill(pid, 0)
	if err != nil && !errors.Is(err, unix.EPERM) {
		return false
	}
	if s.state != nil {
		switch s.state(pid) {
		case "", "Z", "X":
			return false
		}
	}
	return true
}

func signalError(pid int, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.ESRCH):
		return fmt.Errorf("pid %d: %w", pid, ErrProcessGone)
	case errors.Is(err, unix.EPERM):
		return fmt.Errorf("pid %d: %w", pid, ErrAccessDenied)
	}
	return fmt.Errorf("pid %d: %w", pid, err)
}
