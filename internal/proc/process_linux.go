//go:build linux

package proc

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pranshuparmar/witl/pkg/model"
)

func (p *Procfs) ReadProcess(_ context.Context, pid int) (model.Process, error) {
	base := p.pidDir(pid)

	stat, err := os.ReadFile(filepath.Join(base, "stat"))
	if err != nil {
		if isNotExist(err) {
			return model.Process{}, fmt.Errorf("pid %d: %w", pid, ErrProcessGone)
		}
		return model.Process{}, err
	}

	comm, fields, err := parseStat(string(stat))
	if err != nil {
		return model.Process{}, fmt.Errorf("pid %d: %w", pid, err)
	}

	state := fields[0]
	ppid, _ := strconv.Atoi(fields[1])
	var startedAt time.Time
	if len(fields) > 19 {
		startTicks, _ := strconv.ParseInt(fields[19], 10, 64)
		startedAt = p.bootTime().Add(time.Duration(startTicks) * time.Second / ticksPerSecond())
	}

	// Health: zombie/stopped
	health := "healthy"
	switch state {
	case "Z":
		health = "zombie"
	case "T":
		health = "stopped"
	}

	exe, _ := os.Readlink(filepath.Join(base, "exe"))

	proc := model.Process{
		PID:       pid,
		PPID:      ppid,
		Command:   comm,
		Cmdline:   p.cmdline(pid),
		Exe:       exe,
		StartedAt: startedAt,
		AppType:   "process",
		Health:    health,
	}

	if ruid, euid, ok := p.uids(pid); ok {
		proc.User = lookupUser(ruid)
		elevated := euid == 0
		proc.Elevated = &elevated
	}

	return proc, nil
}

// state returns the one-letter scheduler state of pid, "" if it is gone.
func (p *Procfs) state(pid int) string {
	stat, err := os.ReadFile(filepath.Join(p.pidDir(pid), "stat"))
	if err != nil {
		return ""
	}
	_, fields, err := parseStat(string(stat))
	if err != nil {
		return ""
	}
	return fields[0]
}

// parseStat splits /proc/<pid>/stat into the command and the fields after
// it; fields[0] is the state, fields[1] the ppid, fields[19] the start time.
func parseStat(raw string) (string, []string, error) {
	// stat format is evil, command is inside ()
	open := strings.Index(raw, "(")
	close := strings.LastIndex(raw, ")")
	if open == -1 || close == -1 || close+2 > len(raw) {
		return "", nil, fmt.Errorf("invalid stat format")
	}
	comm := raw[open+1 : close]
	fields := strings.Fields(raw[close+2:])
	if len(fields) < 2 {
		return "", nil, fmt.Errorf("invalid stat format")
	}
	return comm, fields, nil
}

// uids reads the real and effective uid from /proc/<pid>/status.
func (p *Procfs) uids(pid int) (int, int, bool) {
	f, err := os.Open(filepath.Join(p.pidDir(pid), "status"))
	if err != nil {
		return 0, 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "Uid:") {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(line, "Uid:"))
		if len(fields) < 2 {
			return 0, 0, false
		}
		ruid, err1 := strconv.Atoi(fields[0])
		euid, err2 := strconv.Atoi(fields[1])
		if err1 != nil || err2 != nil {
			return 0, 0, false
		}
		return ruid, euid, true
	}
	return 0, 0, false
}
