//go:build windows

package proc

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/sys/windows"
)

// winTerminator closes processes through taskkill, which posts WM_CLOSE to
// their windows, and kills them with TerminateProcess.
type winTerminator struct{}

func (winTerminator) Terminate(pid int, force bool) error {
	if force {
		h, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, uint32(pid))
		if err != nil {
			return terminateError(pid, err)
		}
		defer windows.CloseHandle(h)
		return terminateError(pid, windows.TerminateProcess(h, 1))
	}

	out, err := exec.Command("taskkill", "/PID", strconv.Itoa(pid)).CombinedOutput()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		msg := strings.ToLower(string(out))
		switch {
		case exitErr.ExitCode() == 128, strings.Contains(msg, "not found"):
			return fmt.Errorf("pid %d: %w", pid, ErrProcessGone)
		case strings.Contains(msg, "access is denied"):
			return fmt.Errorf("pid %d: %w", pid, ErrAccessDenied)
		}
	}
	return fmt.Errorf("pid %d: taskkill: %w: %s", pid, err, strings.TrimSpace(string(out)))
}

func (winTerminator) Alive(pid int) bool {
	h, err := windows.OpenProcess(windows.SYNCHRONIZE|windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		// access denied still means something is there
		return errors.Is(err, windows.ERROR_ACCESS_DENIED)
	}
	defer windows.CloseHandle(h)
	ev, err := windows.WaitForSingleObject(h, 0)
	return err == nil && ev == uint32(windows.WAIT_TIMEOUT)
}

func terminateError(pid int, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, windows.ERROR_INVALID_PARAMETER):
		return fmt.Errorf("pid %d: %w", pid, ErrProcessGone)
	case errors.Is(err, windows.ERROR_ACCESS_DENIED):
		return fmt.Errorf("pid %d: %w", pid, ErrAccessDenied)
	}
	return fmt.Errorf("pid %d: %w", pid, err)
}
