package source

import (
	"path/filepath"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/pranshuparmar/witl/pkg/model"
)

var knownSupervisors = map[string]string{
	"pm2":          "pm2",
	"pm2 god":      "pm2",
	"supervisord":  "supervisord",
	"supervisor":   "supervisord",
	"gunicorn":     "gunicorn",
	"uwsgi":        "uwsgi",
	"s6-supervise": "s6",
	"s6-svscan":    "s6",
	"runsv":        "runit",
	"runsvdir":     "runit",
	"openrc":       "openrc",
	"monit":        "monit",
	"circusd":      "circus",
	"daemontools":  "daemontools",
	"supervise":    "daemontools",
	"initctl":      "upstart",
	"tini":         "tini",
	"docker-init":  "docker-init",
	"podman-init":  "podman-init",
	"god":          "god",
	"forever":      "forever",
	"nssm":         "nssm",
	"nssm.exe":     "nssm",
}

// respawning supervisors restart their children when they exit; the rest
// only reap or fork workers.
var respawning = map[string]bool{
	"pm2":         true,
	"supervisord": true,
	"s6":          true,
	"runit":       true,
	"openrc":      true,
	"monit":       true,
	"circus":      true,
	"daemontools": true,
	"upstart":     true,
	"god":         true,
	"forever":     true,
	"nssm":        true,
	"gunicorn":    true,
	"uwsgi":       true,
}

func detectSupervisor(ancestry []model.Process) *model.Source {
	for _, p := range ancestry {
		// pid 1 is the platform's business
		if p.PID == 1 {
			continue
		}
		pname := strings.ReplaceAll(strings.ToLower(p.Command), " ", "")
		pcmd := strings.ReplaceAll(strings.ToLower(p.Cmdline), " ", "")
		if strings.Contains(pname, "pm2") || strings.Contains(pcmd, "pm2") {
			return supervisor("pm2", 0.9)
		}
		if label, ok := knownSupervisors[strings.ToLower(p.Command)]; ok {
			return supervisor(label, 0.7)
		}
		// interpreters: supervisord runs as "python3 /usr/bin/supervisord"
		for _, arg := range argv(p.Cmdline) {
			if label, ok := knownSupervisors[strings.ToLower(filepath.Base(arg))]; ok {
				return supervisor(label, 0.6)
			}
		}
	}
	return nil
}

func supervisor(label string, confidence float64) *model.Source {
	return &model.Source{
		Type:       model.SourceSupervisor,
		Name:       label,
		Confidence: confidence,
		Respawns:   respawning[label],
	}
}

// argv returns the first two words of a command line.
func argv(cmdline string) []string {
	words, err := shellquote.Split(cmdline)
	if err != nil {
		words = strings.Fields(cmdline)
	}
	if len(words) > 2 {
		words = words[:2]
	}
	return words
}
