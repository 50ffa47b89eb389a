//go:build darwin

package proc

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/pranshuparmar/witl/pkg/model"
)

type psInspector struct{}

func (psInspector) ReadProcess(ctx context.Context, pid int) (model.Process, error) {
	// ps -p <pid> -o pid=,ppid=,uid=,lstart=,state=,ucomm=
	out, err := exec.CommandContext(ctx, "ps", "-p", strconv.Itoa(pid), "-o", "pid=,ppid=,uid=,lstart=,state=,ucomm=").Output()
	if err != nil {
		return model.Process{}, fmt.Errorf("pid %d: %w", pid, ErrProcessGone)
	}

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return model.Process{}, fmt.Errorf("pid %d: %w", pid, ErrProcessGone)
	}

	fields := strings.Fields(lines[0])
	if len(fields) < 9 {
		// lstart is 5 fields: Mon Dec 25 12:00:00 2024
		return model.Process{}, fmt.Errorf("unexpected ps output format for pid %d", pid)
	}

	ppid, _ := strconv.Atoi(fields[1])
	uid, _ := strconv.Atoi(fields[2])

	lstartStr := strings.Join(fields[3:8], " ")
	startedAt, _ := time.ParseInLocation("Mon Jan 2 15:04:05 2006", lstartStr, time.Local)

	state := fields[8]
	comm := ""
	if len(fields) > 9 {
		comm = strings.Join(fields[9:], " ")
	}

	health := "healthy"
	switch {
	case strings.HasPrefix(state, "Z"):
		health = "zombie"
	case strings.HasPrefix(state, "T"):
		health = "stopped"
	}

	elevated := uid == 0
	return model.Process{
		PID:       pid,
		PPID:      ppid,
		Command:   comm,
		Cmdline:   getCommandLine(ctx, pid),
		StartedAt: startedAt,
		User:      resolveUID(uid),
		Elevated:  &elevated,
		AppType:   "process",
		Health:    health,
	}, nil
}

func getCommandLine(ctx context.Context, pid int) string {
	out, err := exec.CommandContext(ctx, "ps", "-p", strconv.Itoa(pid), "-o", "args=").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func psState(pid int) string {
	out, err := exec.Command("ps", "-p", strconv.Itoa(pid), "-o", "state=").Output()
	if err != nil {
		return ""
	}
	s := strings.TrimSpace(string(out))
	if s == "" {
		return ""
	}
	return s[:1]
}
