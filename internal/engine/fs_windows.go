//go:build windows

package engine

import (
	"errors"
	"os"

	"golang.org/x/sys/windows"

	"github.com/pranshuparmar/witl/pkg/model"
)

// Windows has no cheap inode; matching falls back to paths.
func fileID(os.FileInfo) model.FileID {
	return model.FileID{}
}

func canWrite(dir string) bool {
	p, err := windows.UTF16PtrFromString(dir)
	if err != nil {
		return false
	}
	attrs, err := windows.GetFileAttributes(p)
	return err == nil && attrs&windows.FILE_ATTRIBUTE_READONLY == 0
}

func sharingViolation(err error) bool {
	return errors.Is(err, windows.ERROR_SHARING_VIOLATION) || errors.Is(err, windows.ERROR_LOCK_VIOLATION)
}
