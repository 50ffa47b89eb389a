package model

import (
	"fmt"
	"time"
)

type Action string

const (
	ActionClose     Action = "close"
	ActionForceKill Action = "force_kill"
	ActionDelete    Action = "delete"
)

type Outcome string

const (
	OutcomeSucceeded       Outcome = "succeeded"
	OutcomeProcessNotFound Outcome = "process_not_found"
	OutcomeAccessDenied    Outcome = "access_denied"
	OutcomePartialFailure  Outcome = "partial_failure"
	OutcomeTimedOut        Outcome = "timed_out"
)

// OK reports whether the lock the action targeted is gone from the user's
// point of view. A process that already exited counts.
func (o Outcome) OK() bool {
	return o == OutcomeSucceeded || o == OutcomeProcessNotFound
}

// RemediationResult is the outcome of one close, kill or delete request.
type RemediationResult struct {
	Action   Action        `json:"action" yaml:"action"`
	PID      int           `json:"pid,omitempty" yaml:"pid,omitempty"`
	Path     string        `json:"path,omitempty" yaml:"path,omitempty"`
	Outcome  Outcome       `json:"outcome" yaml:"outcome"`
	Attempts int           `json:"attempts,omitempty" yaml:"attempts,omitempty"`
	Strategy string        `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
	Duration time.Duration `json:"duration" yaml:"duration"`

	// Terminated lists holders stopped while deleting with kill-holders enabled
	Terminated []RemediationResult `json:"terminated,omitempty" yaml:"terminated,omitempty"`
}

func (r RemediationResult) String() string {
	subject := r.Path
	if r.PID > 0 {
		subject = fmt.Sprintf("pid %d", r.PID)
	}
	s := fmt.Sprintf("%s %s: %s", r.Action, subject, r.Outcome)
	if r.Outcome == OutcomePartialFailure {
		s += fmt.Sprintf(" after %d attempts", r.Attempts)
	}
	if r.Error != "" {
		s += " (" + r.Error + ")"
	}
	return s
}
