//go:build darwin

package proc

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os/exec"

	"github.com/pranshuparmar/witl/internal/pathres"
	"github.com/pranshuparmar/witl/pkg/model"
)

// Lsof enumerates handles by running lsof, which on macOS is the only
// unprivileged way to read other processes' descriptor tables.
type Lsof struct {
	Path string
}

func NewBackend() Backend {
	return Backend{Enumerator: &Lsof{Path: "lsof"}, Inspector: psInspector{}, Terminator: &Signaller{state: psState}}
}

func (l *Lsof) Enumerate(ctx context.Context, scope Scope) iter.Seq2[model.HandleRecord, error] {
	return func(yield func(model.HandleRecord, error) bool) {
		r := scope.Resolver
		if r == nil {
			r = pathres.NewNativeResolver(pathres.NewMatcher(false))
		}

		out, err := exec.CommandContext(ctx, l.Path, lsofArgs...).Output()
		if err != nil && len(out) == 0 {
			yield(model.HandleRecord{}, fmt.Errorf("%w: lsof: %v", ErrEnumerationFailed, err))
			return
		}

		for rec, err := range parseLsof(ctx, string(out), r) {
			if !yield(rec, err) {
				return
			}
		}

		// lsof exits 1 when it could not look at some processes
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			yield(model.HandleRecord{}, &ProcessError{Err: fmt.Errorf("%w: some processes could not be inspected", ErrPermissionDenied)})
		}
	}
}
