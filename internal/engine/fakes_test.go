package engine

import (
	"context"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/pranshuparmar/witl/internal/pathres"
	"github.com/pranshuparmar/witl/internal/proc"
	"github.com/pranshuparmar/witl/pkg/model"
)

// fakeSystem is an in-memory process table implementing the enumerator,
// inspector and terminator at once.
type fakeSystem struct {
	mu      sync.Mutex
	handles []model.HandleRecord
	procs   map[int]model.Process
	alive   map[int]bool
	errs    []error

	// stubborn processes ignore a cooperative close
	stubborn map[int]bool
	termErr  map[int]error
	// gate, when set, blocks Terminate until closed
	gate chan struct{}
	// block makes Enumerate wait for its context after the last record
	block bool
	// holdBack delays the first record, as a slow process table would
	holdBack time.Duration
	// readDelay slows ReadProcess down, up to its context
	readDelay time.Duration

	termCalls atomic.Int32
	scans     atomic.Int32
}

func newFakeSystem() *fakeSystem {
	return &fakeSystem{
		procs:    make(map[int]model.Process),
		alive:    make(map[int]bool),
		stubborn: make(map[int]bool),
		termErr:  make(map[int]error),
	}
}

var started = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func (s *fakeSystem) spawn(pid int, command string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.procs[pid] = model.Process{PID: pid, PPID: 1, Command: command, StartedAt: started, AppType: "process"}
	s.alive[pid] = true
}

func (s *fakeSystem) open(pid, fd int, raw string, access model.Access) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles = append(s.handles, model.HandleRecord{
		PID: pid, FD: fd, Kind: model.KindFD, RawName: raw, ObjectType: model.ObjectFile, Access: access,
	})
}

func (s *fakeSystem) exit(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exitLocked(pid)
}

func (s *fakeSystem) exitLocked(pid int) {
	s.alive[pid] = false
	s.handles = slices.DeleteFunc(s.handles, func(h model.HandleRecord) bool { return h.PID == pid })
}

func (s *fakeSystem) Enumerate(ctx context.Context, scope proc.Scope) iter.Seq2[model.HandleRecord, error] {
	return func(yield func(model.HandleRecord, error) bool) {
		s.scans.Add(1)
		s.mu.Lock()
		recs := slices.Clone(s.handles)
		errs := slices.Clone(s.errs)
		block, holdBack := s.block, s.holdBack
		s.mu.Unlock()

		if holdBack > 0 {
			select {
			case <-time.After(holdBack):
			case <-ctx.Done():
				return
			}
		}

		for _, err := range errs {
			if !yield(model.HandleRecord{}, err) {
				return
			}
		}
		for _, rec := range recs {
			if ctx.Err() != nil {
				return
			}
			if p, err := scope.Resolver.Resolve(rec.RawName); err == nil {
				rec.Resolved = &p
			}
			if !yield(rec, nil) {
				return
			}
		}
		if block {
			<-ctx.Done()
		}
	}
}

func (s *fakeSystem) ReadProcess(ctx context.Context, pid int) (model.Process, error) {
	if s.readDelay > 0 {
		select {
		case <-time.After(s.readDelay):
		case <-ctx.Done():
			return model.Process{}, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive[pid] {
		return model.Process{}, fmt.Errorf("pid %d: %w", pid, proc.ErrProcessGone)
	}
	return s.procs[pid], nil
}

func (s *fakeSystem) Terminate(pid int, force bool) error {
	s.termCalls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.termErr[pid]; err != nil {
		return err
	}
	if !s.alive[pid] {
		return fmt.Errorf("pid %d: %w", pid, proc.ErrProcessGone)
	}
	if !force && s.stubborn[pid] {
		return nil
	}
	s.exitLocked(pid)
	return nil
}

func (s *fakeSystem) Alive(pid int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive[pid]
}

func posixResolver(m pathres.Matcher) *pathres.Resolver {
	return pathres.NewResolver(m)
}

func newTestEngine(t *testing.T, s *fakeSystem, fsys afero.Fs, opts ...Option) *Engine {
	t.Helper()
	base := []Option{
		WithBackend(proc.Backend{Enumerator: s, Inspector: s, Terminator: s}),
		WithFs(fsys),
		WithMatcher(pathres.Matcher{Style: pathres.StylePOSIX, CaseSensitive: true}),
		WithResolver(posixResolver),
		WithGrace(30 * time.Millisecond),
		WithPollInterval(time.Millisecond),
		WithDeadline(time.Second),
		WithWatch(false),
		WithSelf(0),
	}
	return New(append(base, opts...)...)
}

func memFs(t *testing.T, files ...string) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	for _, f := range files {
		if err := afero.WriteFile(fsys, f, []byte("data"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return fsys
}

// faultyFs fails removals and renames with configured errors. Files without
// owner write permission refuse Remove the way a read-only file does.
type faultyFs struct {
	afero.Fs
	removeErr error
	renameErr error
}

func (f *faultyFs) Remove(name string) error {
	if f.removeErr != nil {
		return &os.PathError{Op: "remove", Path: name, Err: f.removeErr}
	}
	if fi, err := f.Fs.Stat(name); err == nil && fi.Mode().Perm()&0o200 == 0 {
		return &os.PathError{Op: "remove", Path: name, Err: fs.ErrPermission}
	}
	return f.Fs.Remove(name)
}

func (f *faultyFs) RemoveAll(name string) error {
	if f.removeErr != nil {
		return &os.PathError{Op: "removeall", Path: name, Err: f.removeErr}
	}
	return f.Fs.RemoveAll(name)
}

func (f *faultyFs) Rename(oldname, newname string) error {
	if f.renameErr != nil {
		return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: f.renameErr}
	}
	return f.Fs.Rename(oldname, newname)
}
