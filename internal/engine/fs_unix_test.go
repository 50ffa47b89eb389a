//go:build !windows

package engine

import "golang.org/x/sys/unix"

var errBusy error = unix.EBUSY
