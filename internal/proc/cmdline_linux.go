//go:build linux

package proc

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/kballard/go-shellquote"
)

// cmdline returns the command line of pid quoted for a shell, or "" when it
// cannot be read (kernel threads have none).
func (p *Procfs) cmdline(pid int) string {
	raw, err := os.ReadFile(filepath.Join(p.pidDir(pid), "cmdline"))
	if err != nil || len(raw) == 0 {
		return ""
	}
	args := strings.Split(strings.TrimRight(string(raw), "\x00"), "\x00")
	return shellquote.Join(args...)
}
