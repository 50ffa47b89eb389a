package output

import (
	"io"

	"github.com/pranshuparmar/witl/pkg/model"
)

// RenderShort prints one line per holder: its ancestry chain when known,
// then how many handles it has on the target.
func RenderShort(w io.Writer, r *model.ScanReport, colorEnabled bool) {
	p := NewPrinter(w, colorEnabled)

	for _, h := range r.Holders {
		chain := append(append([]model.Process{}, h.Ancestry...), h.Process)
		for i, proc := range chain {
			if i > 0 {
				p.Printf("%s → %s", p.c(colorMagenta), p.c(colorReset))
			}
			nameColor := ansiString("")
			if i == len(chain)-1 {
				nameColor = p.c(colorGreen)
			}
			p.Printf("%s%s%s (%spid %d%s)", nameColor, displayName(proc), p.c(colorReset), p.c(colorDim), proc.PID, p.c(colorReset))
		}
		p.Printf(": %d %s\n", len(h.Handles), plural(len(h.Handles), "handle", "handles"))
	}
}
