package output

import (
	"io"

	"github.com/pranshuparmar/witl/pkg/model"
)

// RenderPIDs prints only the PIDs of the holders, one per line, for
// scripts (kill $(witl scan --pids file)).
func RenderPIDs(w io.Writer, reports ...*model.ScanReport) {
	p := NewPrinter(w, false)
	seen := make(map[int]bool)
	for _, r := range reports {
		for _, h := range r.Holders {
			if seen[h.PID()] {
				continue
			}
			seen[h.PID()] = true
			p.Println(h.PID())
		}
	}
}
