//go:build darwin

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

// plist search paths in order of precedence
var plistSearchPaths = []string{
	"~/Library/LaunchAgents",
	"/Library/LaunchAgents",
	"/Library/LaunchDaemons",
	"/System/Library/LaunchAgents",
	"/System/Library/LaunchDaemons",
}

func detectPlatform(ctx context.Context, pid int) *model.Source {
	out, err := exec.CommandContext(ctx, "launchctl", "blame", strconv.Itoa(pid)).Output()
	if err != nil {
		return nil
	}
	_, label, ok := parseBlame(string(out))
	if !ok {
		return nil
	}
	src := &model.Source{Type: model.SourceLaunchd, Name: label, Confidence: 0.8}
	if path := findPlist(label); path != "" {
		// plutil handles binary plists
		if xmlOut, err := exec.CommandContext(ctx, "plutil", "-convert", "xml1", "-o", "-", path).Output(); err == nil {
			src.Respawns, _ = keepAlive(xmlOut)
		}
	}
	return src
}

func findPlist(label string) string {
	home, _ := os.UserHomeDir()
	for _, dir := range plistSearchPaths {
		if strings.HasPrefix(dir, "~") {
			dir = filepath.Join(home, dir[1:])
		}
		p := filepath.Join(dir, label+".plist")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
