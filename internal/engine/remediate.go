package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pranshuparmar/witl/internal/proc"
	"github.com/pranshuparmar/witl/pkg/model"
)

// Expect narrows which process a remediation may act on.
type Expect func(*expectations)

type expectations struct {
	startedAt time.Time
	holding   string
}

// ExpectStartedAt guards against PID reuse: the process must have started
// at t (within a second, the coarsest clock any platform reports).
func ExpectStartedAt(t time.Time) Expect {
	return func(x *expectations) { x.startedAt = t }
}

// ExpectHolding requires the process to still hold path when validated.
func ExpectHolding(path string) Expect {
	return func(x *expectations) { x.holding = path }
}

// RequestClose asks pid to exit and waits up to the grace period for it to
// do so. It never escalates to a kill.
func (e *Engine) RequestClose(ctx context.Context, pid int, expect ...Expect) model.RemediationResult {
	return e.remediate(ctx, model.ActionClose, pid, expect)
}

// RequestForceKill terminates pid without giving it a chance to clean up.
func (e *Engine) RequestForceKill(ctx context.Context, pid int, expect ...Expect) model.RemediationResult {
	return e.remediate(ctx, model.ActionForceKill, pid, expect)
}

func (e *Engine) remediate(ctx context.Context, action model.Action, pid int, expect []Expect) model.RemediationResult {
	e.acknowledge()

	var x expectations
	for _, fn := range expect {
		fn(&x)
	}

	res, shared := e.inflight.do(pid, action, func() model.RemediationResult {
		start := e.now()
		r := e.act(ctx, action, pid, x)
		r.Duration = e.now().Sub(start)
		return r
	})

	log := e.log.With("action", string(action), "pid", pid)
	if shared {
		log.Debug("joined in-flight remediation", "outcome", res.Outcome)
		return res
	}
	e.m.ObserveRemediation(string(action), string(res.Outcome))
	if res.Outcome == model.OutcomeSucceeded {
		log.Info("remediation finished", "outcome", res.Outcome, "duration", res.Duration)
	} else {
		log.Warn("remediation finished", "outcome", res.Outcome, "error", res.Error)
	}
	return res
}

func (e *Engine) act(ctx context.Context, action model.Action, pid int, x expectations) model.RemediationResult {
	res := model.RemediationResult{Action: action, PID: pid, Attempts: 1}

	if err := ctx.Err(); err != nil {
		res.Outcome = model.OutcomeTimedOut
		res.Error = err.Error()
		return res
	}
	if outcome, err := e.validate(ctx, pid, x); err != nil {
		res.Outcome = outcome
		res.Error = err.Error()
		return res
	}

	// past this point the action runs to completion regardless of ctx
	force := action == model.ActionForceKill
	if err := e.term.Terminate(pid, force); err != nil {
		res.Outcome = terminateOutcome(err)
		res.Error = err.Error()
		return res
	}

	if e.waitExit(pid) {
		res.Outcome = model.OutcomeSucceeded
		return res
	}
	if force {
		// delivered; the kernel finishes the job
		res.Outcome = model.OutcomeSucceeded
		return res
	}
	res.Outcome = model.OutcomeTimedOut
	res.Error = fmt.Sprintf("still running after %s", e.grace)
	return res
}

func (e *Engine) validate(ctx context.Context, pid int, x expectations) (model.Outcome, error) {
	if pid <= 0 {
		return model.OutcomeProcessNotFound, fmt.Errorf("invalid pid %d", pid)
	}
	if pid == e.self && e.self != 0 {
		return model.OutcomeAccessDenied, errors.New("refusing to terminate this process")
	}

	p, err := e.insp.ReadProcess(ctx, pid)
	switch {
	case errors.Is(err, proc.ErrProcessGone):
		return model.OutcomeProcessNotFound, err
	case err != nil:
		if !e.term.Alive(pid) {
			return model.OutcomeProcessNotFound, fmt.Errorf("pid %d: %w", pid, proc.ErrProcessGone)
		}
		if !x.startedAt.IsZero() {
			return model.OutcomeAccessDenied, fmt.Errorf("cannot confirm identity of pid %d: %w", pid, err)
		}
	}

	if !x.startedAt.IsZero() && !p.StartedAt.IsZero() {
		if diff := p.StartedAt.Sub(x.startedAt); diff > time.Second || diff < -time.Second {
			return model.OutcomeProcessNotFound, fmt.Errorf("pid %d was reused (started %s, expected %s)",
				pid, p.StartedAt.Format(time.RFC3339), x.startedAt.Format(time.RFC3339))
		}
	}

	if x.holding != "" {
		held, err := e.holds(ctx, pid, x.holding)
		if err != nil {
			return model.OutcomeProcessNotFound, err
		}
		if !held {
			return model.OutcomeProcessNotFound, fmt.Errorf("pid %d no longer holds %s", pid, x.holding)
		}
	}
	return "", nil
}

// holds reports whether pid has a handle on path right now.
func (e *Engine) holds(ctx context.Context, pid int, path string) (bool, error) {
	target, err := e.Target(path)
	if err != nil {
		return false, err
	}
	if !target.Exists {
		return false, nil
	}
	scanCtx, cancel := context.WithTimeout(ctx, e.deadline)
	defer cancel()

	resolver := e.newResolver(e.matcher)
	scope := proc.Scope{Target: target, Resolver: resolver, IncludeMmap: e.includeMmap}
	for rec, err := range e.enum.Enumerate(scanCtx, scope) {
		if err != nil || rec.PID != pid {
			continue
		}
		if resolver.Matcher().Matches(target, rec) {
			return true, nil
		}
	}
	return false, nil
}

// waitExit polls until pid is gone or the grace period ends, measured on the
// engine clock.
func (e *Engine) waitExit(pid int) bool {
	deadline := e.now().Add(e.grace)
	for {
		if !e.term.Alive(pid) {
			return true
		}
		left := deadline.Sub(e.now())
		if left <= 0 {
			return false
		}
		time.Sleep(min(e.poll, left))
	}
}

func terminateOutcome(err error) model.Outcome {
	switch {
	case errors.Is(err, proc.ErrProcessGone):
		return model.OutcomeProcessNotFound
	case errors.Is(err, proc.ErrAccessDenied), errors.Is(err, proc.ErrPermissionDenied):
		return model.OutcomeAccessDenied
	}
	return model.OutcomePartialFailure
}
