package model

import "time"

// TargetPath is the file or directory being inspected.
type TargetPath struct {
	// Original is what the caller asked for
	Original string `json:"original" yaml:"original"`
	// Canonical is the absolute, normalized form used for matching
	Canonical string `json:"canonical" yaml:"canonical"`
	Exists    bool   `json:"exists" yaml:"exists"`
	IsDir     bool   `json:"is_dir" yaml:"is_dir"`
	ID        FileID `json:"-" yaml:"-"`
}

// ProcessLockInfo groups every matching handle a single process holds.
type ProcessLockInfo struct {
	Process Process        `json:"process" yaml:"process"`
	Handles []HandleRecord `json:"handles" yaml:"handles"`

	// Ancestry is filled only when requested, oldest first
	Ancestry []Process `json:"ancestry,omitempty" yaml:"ancestry,omitempty"`
	Source   *Source   `json:"source,omitempty" yaml:"source,omitempty"`
	Warnings []string  `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

func (p ProcessLockInfo) PID() int {
	return p.Process.PID
}

// SkippedProcess is a process whose handle table could not be read.
type SkippedProcess struct {
	PID    int    `json:"pid" yaml:"pid"`
	Reason string `json:"reason" yaml:"reason"`
}

// ScanReport is a point-in-time observation. Nothing in it is guaranteed
// to still hold by the time the caller acts on it.
type ScanReport struct {
	ID         string            `json:"id" yaml:"id"`
	Target     TargetPath        `json:"target" yaml:"target"`
	Holders    []ProcessLockInfo `json:"holders" yaml:"holders"`
	StartedAt  time.Time         `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time         `json:"finished_at" yaml:"finished_at"`

	// Complete is false when some processes were skipped or the scan was cut short
	Complete  bool `json:"complete" yaml:"complete"`
	TimedOut  bool `json:"timed_out,omitempty" yaml:"timed_out,omitempty"`
	Cancelled bool `json:"cancelled,omitempty" yaml:"cancelled,omitempty"`

	Skipped      []SkippedProcess `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Unresolvable int              `json:"unresolvable,omitempty" yaml:"unresolvable,omitempty"`

	// Error is set when the handle table could not be listed at all
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Locked reports whether any process holds the target.
func (r *ScanReport) Locked() bool {
	return r != nil && len(r.Holders) > 0
}

// Holder returns the lock info for pid, if present.
func (r *ScanReport) Holder(pid int) (ProcessLockInfo, bool) {
	if r == nil {
		return ProcessLockInfo{}, false
	}
	for _, h := range r.Holders {
		if h.Process.PID == pid {
			return h, true
		}
	}
	return ProcessLockInfo{}, false
}
