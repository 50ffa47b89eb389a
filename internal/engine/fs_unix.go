//go:build !windows

package engine

import (
	"errors"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/pranshuparmar/witl/pkg/model"
)

func fileID(fi os.FileInfo) model.FileID {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return model.FileID{}
	}
	return model.FileID{Dev: uint64(st.Dev), Ino: uint64(st.Ino)}
}

func canWrite(dir string) bool {
	return unix.Access(dir, unix.W_OK) == nil
}

// sharingViolation reports errors that mean another process is using the
// object right now and a later attempt may succeed.
func sharingViolation(err error) bool {
	return errors.Is(err, unix.EBUSY) || errors.Is(err, unix.ETXTBSY)
}
