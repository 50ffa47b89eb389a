//go:build linux

package source

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pranshuparmar/witl/pkg/model"
)

var procRoot = "/proc"

// systemdRestart returns the Restart= setting of a unit.
var systemdRestart = func(ctx context.Context, unit string) string {
	out, err := exec.CommandContext(ctx, "systemctl", "show", "-p", "Restart", "--value", unit).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func detectPlatform(ctx context.Context, pid int) *model.Source {
	raw, err := os.ReadFile(filepath.Join(procRoot, strconv.Itoa(pid), "cgroup"))
	if err != nil {
		return nil
	}
	src := parseCgroup(string(raw))
	if src != nil && src.Type == model.SourceSystemd {
		switch systemdRestart(ctx, src.Name) {
		case "", "no":
		default:
			src.Respawns = true
		}
	}
	return src
}

// parseCgroup looks at /proc/<pid>/cgroup for container runtimes and the
// systemd unit owning the process.
func parseCgroup(raw string) *model.Source {
	for line := range strings.Lines(raw) {
		// 0::/system.slice/nginx.service
		parts := strings.SplitN(strings.TrimSpace(line), ":", 3)
		if len(parts) != 3 {
			continue
		}
		path := parts[2]

		switch {
		case strings.Contains(path, "kubepods"):
			return &model.Source{Type: model.SourceContainer, Name: "kubernetes", Confidence: 0.9, Respawns: true}
		case strings.Contains(path, "/docker/"), strings.Contains(path, "docker-"):
			return &model.Source{Type: model.SourceContainer, Name: "docker", Confidence: 0.9}
		case strings.Contains(path, "libpod"):
			return &model.Source{Type: model.SourceContainer, Name: "podman", Confidence: 0.9}
		case strings.Contains(path, "containerd"):
			return &model.Source{Type: model.SourceContainer, Name: "containerd", Confidence: 0.8}
		}

		if unit := serviceUnit(path); unit != "" {
			return &model.Source{Type: model.SourceSystemd, Name: unit, Confidence: 0.8}
		}
	}
	return nil
}

// serviceUnit returns the innermost .service in a cgroup path, ignoring the
// per-user manager.
func serviceUnit(path string) string {
	segs := strings.Split(path, "/")
	for i := len(segs) - 1; i >= 0; i-- {
		s := segs[i]
		if strings.HasSuffix(s, ".service") && !strings.HasPrefix(s, "user@") {
			return s
		}
	}
	return ""
}
