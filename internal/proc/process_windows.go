//go:build windows

package proc

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/pranshuparmar/witl/pkg/model"
)

type winInspector struct{}

func (winInspector) ReadProcess(_ context.Context, pid int) (model.Process, error) {
	p := model.Process{PID: pid, Health: "healthy"}

	entry, err := snapshotEntry(pid)
	if err != nil {
		return model.Process{}, err
	}
	p.PPID = int(entry.ParentProcessID)
	p.Command = windows.UTF16ToString(entry.ExeFile[:])

	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		if errors.Is(err, windows.ERROR_INVALID_PARAMETER) {
			return model.Process{}, fmt.Errorf("pid %d: %w", pid, ErrProcessGone)
		}
		// protected and other users' processes still get a name from the snapshot
		return p, nil
	}
	defer windows.CloseHandle(h)

	buf := make([]uint16, windows.MAX_LONG_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(h, 0, &buf[0], &size); err == nil {
		p.Exe = windows.UTF16ToString(buf[:size])
		p.Cmdline = p.Exe
		if p.Command == "" {
			p.Command = filepath.Base(p.Exe)
		}
	}

	var creation, exit, kernel, user windows.Filetime
	if err := windows.GetProcessTimes(h, &creation, &exit, &kernel, &user); err == nil {
		p.StartedAt = time.Unix(0, creation.Nanoseconds())
	}

	var token windows.Token
	if err := windows.OpenProcessToken(h, windows.TOKEN_QUERY, &token); err == nil {
		defer token.Close()
		elevated := token.IsElevated()
		p.Elevated = &elevated
		if tu, err := token.GetTokenUser(); err == nil {
			if account, domain, _, err := tu.User.Sid.LookupAccount(""); err == nil {
				p.User = domain + `\` + account
			}
		}
	}

	return p, nil
}

func snapshotEntry(pid int) (windows.ProcessEntry32, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return windows.ProcessEntry32{}, fmt.Errorf("process snapshot: %w", err)
	}
	defer windows.CloseHandle(snap)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	for err = windows.Process32First(snap, &entry); err == nil; err = windows.Process32Next(snap, &entry) {
		if int(entry.ProcessID) == pid {
			return entry, nil
		}
	}
	return windows.ProcessEntry32{}, fmt.Errorf("pid %d: %w", pid, ErrProcessGone)
}
