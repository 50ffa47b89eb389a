// Package source guesses what started a lock holder, so callers can warn
// when closing it is likely to be undone by a restart.
package source

import (
	"context"
	"fmt"

	"github.com/pranshuparmar/witl/pkg/model"
)

// Detect inspects the ancestry of a holder (oldest first, holder last).
// Platform service managers win over supervisors seen in the ancestry, which
// win over an interactive shell. Service manager lookups are bound to ctx.
func Detect(ctx context.Context, ancestry []model.Process) *model.Source {
	if len(ancestry) == 0 {
		return nil
	}
	holder := ancestry[len(ancestry)-1]
	if src := detectPlatform(ctx, holder.PID); src != nil {
		return src
	}
	if src := detectSupervisor(ancestry); src != nil {
		return src
	}
	return detectShell(ancestry)
}

// Warnings returns the notes worth showing before a holder is closed.
func Warnings(src *model.Source, p model.Process) []string {
	var out []string
	if src != nil && src.Respawns {
		out = append(out, fmt.Sprintf("started by %s %q, which may restart it after it exits", src.Type, src.Name))
	}
	switch p.AppType {
	case "critical":
		out = append(out, "critical system process, terminating it may crash the session")
	case "service":
		out = append(out, "Windows service, stop it through the service manager or it may be restarted")
	}
	return out
}
