package output

import (
	"io"
	"strings"

	"github.com/pranshuparmar/witl/pkg/model"
)

// PrintTree draws the ancestry of a holder, oldest first, with the holder
// itself as the last and highlighted node.
func PrintTree(w io.Writer, h model.ProcessLockInfo, colorEnabled bool) {
	p := NewPrinter(w, colorEnabled)
	chain := append(append([]model.Process{}, h.Ancestry...), h.Process)

	for i, proc := range chain {
		indent := strings.Repeat("  ", i+1)
		if i > 0 {
			p.Printf("%s%s└─ %s", indent[2:], p.c(colorMagenta), p.c(colorReset))
		} else {
			p.Print("  ")
		}

		cmdColor := ansiString("")
		if i == len(chain)-1 {
			cmdColor = p.c(colorGreen)
		}
		p.Printf("%s%s%s (%spid %d%s)\n", cmdColor, displayName(proc), p.c(colorReset), p.c(colorDim), proc.PID, p.c(colorReset))
	}

	if h.Source != nil && h.Source.Type != model.SourceUnknown {
		p.Printf("  %sstarted by%s %s %s\n", p.c(colorDim), p.c(colorReset), string(h.Source.Type), h.Source.Name)
	}
}

func displayName(proc model.Process) string {
	switch {
	case proc.Command != "":
		return proc.Command
	case proc.Cmdline != "":
		return proc.Cmdline
	}
	return "unknown"
}
