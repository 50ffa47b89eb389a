package proc

import (
	"errors"
	"io/fs"
)

func isPermission(err error) bool {
	return errors.Is(err, fs.ErrPermission)
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
