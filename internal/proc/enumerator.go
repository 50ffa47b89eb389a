package proc

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/pranshuparmar/witl/internal/pathres"
	"github.com/pranshuparmar/witl/pkg/model"
)

var (
	ErrPermissionDenied  = errors.New("permission denied")
	ErrProcessGone       = errors.New("process not found")
	ErrEnumerationFailed = errors.New("handle enumeration failed")
	ErrAccessDenied      = errors.New("access denied")
)

// ProcessError reports a handle table that could not be read. It never
// stops an enumeration.
type ProcessError struct {
	PID int
	Err error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("pid %d: %v", e.PID, e.Err)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// Scope tells a backend what the caller is looking for. Backends that walk
// every process ignore it; backends that must be told which files to watch
// (Restart Manager) use Target.
type Scope struct {
	Target   model.TargetPath
	Resolver *pathres.Resolver

	// IncludeMmap adds memory-mapped files to the records
	IncludeMmap bool
}

// Enumerator walks the open handles of the system.
//
// Each call to Enumerate starts from scratch. Processes come in the order the
// OS lists them and handles within a process in the order the OS table
// exposes them; neither order is meaningful. Per-process failures are yielded
// as *ProcessError values and enumeration continues. ctx is checked between
// processes, never in the middle of a system call.
type Enumerator interface {
	Enumerate(ctx context.Context, scope Scope) iter.Seq2[model.HandleRecord, error]
}

// EnumeratorFunc adapts a function to Enumerator.
type EnumeratorFunc func(ctx context.Context, scope Scope) iter.Seq2[model.HandleRecord, error]

func (f EnumeratorFunc) Enumerate(ctx context.Context, scope Scope) iter.Seq2[model.HandleRecord, error] {
	return f(ctx, scope)
}

// Inspector reads process metadata.
type Inspector interface {
	// ReadProcess returns ErrProcessGone when pid does not exist. Helpers it
	// runs are bound to ctx.
	ReadProcess(ctx context.Context, pid int) (model.Process, error)
}

// Terminator stops processes.
type Terminator interface {
	// Terminate asks pid to exit, or kills it outright when force is set.
	// It returns ErrProcessGone or ErrAccessDenied for those conditions.
	Terminate(pid int, force bool) error
	Alive(pid int) bool
}

// Backend bundles the platform implementations.
type Backend struct {
	Enumerator Enumerator
	Inspector  Inspector
	Terminator Terminator
}

func classify(pid int, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrProcessGone):
		return &ProcessError{PID: pid, Err: err}
	case isPermission(err):
		return &ProcessError{PID: pid, Err: fmt.Errorf("%w: %v", ErrPermissionDenied, err)}
	case isNotExist(err):
		return &ProcessError{PID: pid, Err: fmt.Errorf("%w: %v", ErrProcessGone, err)}
	}
	return &ProcessError{PID: pid, Err: err}
}

func resolved(r *pathres.Resolver, raw string) (*string, bool) {
	name, deleted := pathres.StripDeleted(raw)
	p, err := r.Resolve(name)
	if err != nil {
		return nil, deleted
	}
	return &p, deleted
}
