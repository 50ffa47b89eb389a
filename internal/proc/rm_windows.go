//go:build windows

package proc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/pranshuparmar/witl/internal/pathres"
	"github.com/pranshuparmar/witl/pkg/model"
)

var (
	modrstrtmgr             = windows.NewLazySystemDLL("rstrtmgr.dll")
	procRmStartSession      = modrstrtmgr.NewProc("RmStartSession")
	procRmRegisterResources = modrstrtmgr.NewProc("RmRegisterResources")
	procRmGetList           = modrstrtmgr.NewProc("RmGetList")
	procRmEndSession        = modrstrtmgr.NewProc("RmEndSession")
)

const (
	cchRmSessionKey = 32
	cchRmMaxAppName = 255
	cchRmMaxSvcName = 63
)

type rmUniqueProcess struct {
	ProcessID uint32
	StartTime windows.Filetime
}

type rmProcessInfo struct {
	Process          rmUniqueProcess
	AppName          [cchRmMaxAppName + 1]uint16
	ServiceShortName [cchRmMaxSvcName + 1]uint16
	ApplicationType  uint32
	AppStatus        uint32
	TSSessionID      uint32
	Restartable      int32
}

var rmAppTypes = map[uint32]string{
	0:    "unknown",
	1:    "app",
	2:    "app",
	3:    "service",
	4:    "explorer",
	5:    "console",
	1000: "critical",
}

// RestartManager asks the Windows Restart Manager which processes use each
// file of the target. It cannot see handles that are not file handles, and
// directories are covered by querying every file beneath them.
type RestartManager struct{}

func NewBackend() Backend {
	return Backend{Enumerator: RestartManager{}, Inspector: winInspector{}, Terminator: winTerminator{}}
}

func (RestartManager) Enumerate(ctx context.Context, scope Scope) iter.Seq2[model.HandleRecord, error] {
	return func(yield func(model.HandleRecord, error) bool) {
		if err := modrstrtmgr.Load(); err != nil {
			yield(model.HandleRecord{}, fmt.Errorf("%w: %v", ErrEnumerationFailed, err))
			return
		}
		r := scope.Resolver
		if r == nil {
			r = pathres.NewNativeResolver(pathres.NewMatcher(false))
		}
		if !scope.Target.Exists {
			return
		}

		files := []string{scope.Target.Canonical}
		if scope.Target.IsDir {
			files = files[:0]
			_ = filepath.WalkDir(scope.Target.Canonical, func(path string, d fs.DirEntry, err error) error {
				if ctx.Err() != nil {
					return filepath.SkipAll
				}
				if err != nil {
					// unreadable subtrees are simply not covered
					return nil
				}
				if !d.IsDir() {
					files = append(files, path)
				}
				return nil
			})
		}

		for _, file := range files {
			if ctx.Err() != nil {
				return
			}
			infos, err := rmList(file)
			if err != nil {
				if !yield(model.HandleRecord{}, &ProcessError{Err: fmt.Errorf("%s: %w", file, err)}) {
					return
				}
				continue
			}
			raw, err := r.ToDevice(file)
			if err != nil {
				raw = file
			}
			for _, info := range infos {
				rec := model.HandleRecord{
					PID:        int(info.Process.ProcessID),
					FD:         -1,
					Kind:       model.KindSession,
					RawName:    raw,
					ObjectType: model.ObjectFile,
					AppType:    rmAppTypes[info.ApplicationType],
				}
				rec.Resolved, rec.Deleted = resolved(r, raw)
				if !yield(rec, nil) {
					return
				}
			}
		}
	}
}

func rmList(file string) ([]rmProcessInfo, error) {
	var session uint32
	key := make([]uint16, cchRmSessionKey+1)
	if rc, _, _ := procRmStartSession.Call(uintptr(unsafe.Pointer(&session)), 0, uintptr(unsafe.Pointer(&key[0]))); rc != 0 {
		return nil, rmError("RmStartSession", rc)
	}
	defer procRmEndSession.Call(uintptr(session))

	name, err := windows.UTF16PtrFromString(file)
	if err != nil {
		return nil, err
	}
	names := []*uint16{name}
	if rc, _, _ := procRmRegisterResources.Call(uintptr(session), 1, uintptr(unsafe.Pointer(&names[0])), 0, 0, 0, 0); rc != 0 {
		return nil, rmError("RmRegisterResources", rc)
	}

	var needed, count, reasons uint32
	rc, _, _ := procRmGetList.Call(uintptr(session), uintptr(unsafe.Pointer(&needed)), uintptr(unsafe.Pointer(&count)), 0, uintptr(unsafe.Pointer(&reasons)))
	if rc == 0 || needed == 0 {
		return nil, nil
	}
	if windows.Errno(rc) != windows.ERROR_MORE_DATA {
		return nil, rmError("RmGetList", rc)
	}

	// the list can grow between calls
	for range 3 {
		infos := make([]rmProcessInfo, needed)
		count = needed
		rc, _, _ = procRmGetList.Call(uintptr(session), uintptr(unsafe.Pointer(&needed)), uintptr(unsafe.Pointer(&count)), uintptr(unsafe.Pointer(&infos[0])), uintptr(unsafe.Pointer(&reasons)))
		if rc == 0 {
			return infos[:count], nil
		}
		if windows.Errno(rc) != windows.ERROR_MORE_DATA {
			return nil, rmError("RmGetList", rc)
		}
	}
	return nil, rmError("RmGetList", uintptr(windows.ERROR_MORE_DATA))
}

func rmError(call string, rc uintptr) error {
	errno := windows.Errno(rc)
	if errors.Is(errno, windows.ERROR_ACCESS_DENIED) {
		return fmt.Errorf("%s: %w", call, ErrPermissionDenied)
	}
	return fmt.Errorf("%s: %w", call, errno)
}
