package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/pranshuparmar/witl/pkg/model"
)

// handleLimit caps the handles listed per holder; the rest are counted.
const handleLimit = 10

// PrintHandles lists the matching handles of one holder beneath it.
func PrintHandles(w io.Writer, h model.ProcessLockInfo, colorEnabled bool) {
	p := NewPrinter(w, colorEnabled)

	count := len(h.Handles)
	for i, rec := range h.Handles {
		if i >= handleLimit {
			p.Printf("  %s└─ %s... and %d more\n", p.c(colorMagenta), p.c(colorReset), count-handleLimit)
			break
		}

		connector := "├─ "
		if i == count-1 {
			connector = "└─ "
		}

		name := rec.Path()
		if name == "" {
			name = rec.RawName
		}
		access := string(rec.Access)
		if access == "" {
			access = "-"
		}
		deleted := ansiString("")
		if rec.Deleted {
			deleted = p.c(colorYellow) + " (deleted)" + p.c(colorReset)
		}
		p.Printf("  %s%s%s%-8s %-10s %s%s\n", p.c(colorMagenta), connector, p.c(colorReset), handleLabel(rec), access, name, deleted)
	}
}

func handleLabel(rec model.HandleRecord) string {
	if rec.Kind == model.KindFD && rec.FD >= 0 {
		return fmt.Sprintf("fd %d", rec.FD)
	}
	if rec.Kind == "" {
		return "handle"
	}
	return strings.TrimPrefix(string(rec.Kind), "rm-")
}
