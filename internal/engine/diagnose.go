package engine

import (
	"context"
	"fmt"

	"github.com/pranshuparmar/witl/pkg/model"
)

// Diagnosis explains why a path cannot be removed.
type Diagnosis struct {
	Target  model.TargetPath  `json:"target" yaml:"target"`
	Report  *model.ScanReport `json:"report,omitempty" yaml:"report,omitempty"`
	Reasons []string          `json:"reasons" yaml:"reasons"`
}

// Diagnose collects every reason it can find that would make deleting path
// fail. An empty Reasons list means nothing stands in the way.
func (e *Engine) Diagnose(ctx context.Context, path string) (*Diagnosis, error) {
	target, err := e.Target(path)
	if err != nil {
		return nil, err
	}
	d := &Diagnosis{Target: target, Reasons: []string{}}
	if !target.Exists {
		d.Reasons = append(d.Reasons, "path does not exist")
		return d, nil
	}

	d.Report = e.scan(ctx, target, e.deadline)
	for _, h := range d.Report.Holders {
		name := h.Process.Command
		if name == "" {
			name = "unknown"
		}
		d.Reasons = append(d.Reasons, fmt.Sprintf("held open by %s (pid %d), %d handle(s)", name, h.PID(), len(h.Handles)))
	}
	switch {
	case d.Report.Error != "":
		d.Reasons = append(d.Reasons, "handles could not be listed: "+d.Report.Error)
	case len(d.Report.Skipped) > 0:
		d.Reasons = append(d.Reasons, fmt.Sprintf("%d process(es) could not be inspected, run elevated for a complete answer", len(d.Report.Skipped)))
	case d.Report.TimedOut:
		d.Reasons = append(d.Reasons, "scan timed out before every process was inspected")
	}

	if parent := parentDir(target); !e.canWrite(parent) {
		d.Reasons = append(d.Reasons, fmt.Sprintf("no write permission on parent directory %s", parent))
	}
	if fi, err := e.fs.Stat(target.Canonical); err == nil && fi.Mode().Perm()&0o200 == 0 {
		d.Reasons = append(d.Reasons, "target is read-only")
	}
	return d, nil
}
