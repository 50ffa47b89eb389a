package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/pranshuparmar/witl/pkg/model"
)

// ErrHeld is the sharing violation found by the verify scan: some process
// still has the target open.
var ErrHeld = errors.New("target is held by a process")

// ErrUnverified means the verify scan did not look at every process, so the
// target cannot be assumed free. It is retried like ErrHeld.
var ErrUnverified = errors.New("holder scan did not finish")

type DeleteOption func(*deleteConfig)

type deleteConfig struct {
	killHolders bool
	force       bool
}

// WithKillHolders terminates the holders found before each attempt, closing
// them or, with force, killing them.
func WithKillHolders(force bool) DeleteOption {
	return func(c *deleteConfig) { c.killHolders, c.force = true, force }
}

// Delete removes path, retrying while something holds it. maxAttempts <= 0
// and a zero policy fall back to the engine defaults. The error is only for
// an unusable path; everything else is reported in the result.
func (e *Engine) Delete(ctx context.Context, path string, maxAttempts int, policy BackoffPolicy, opts ...DeleteOption) (model.RemediationResult, error) {
	target, err := e.Target(path)
	if err != nil {
		return model.RemediationResult{}, err
	}
	if maxAttempts <= 0 {
		maxAttempts = e.attempts
	}
	if policy.IsZero() {
		policy = e.backoff
	}
	var cfg deleteConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	e.acknowledge()
	start := e.now()
	res := e.deleteWithRetry(ctx, target, maxAttempts, policy, cfg)
	res.Duration = e.now().Sub(start)
	// verify scans are internal, not a report anyone has to act on
	e.acknowledge()

	e.m.ObserveRemediation(string(model.ActionDelete), string(res.Outcome))
	e.m.ObserveDeleteAttempts(res.Attempts)
	log := e.log.With("action", string(model.ActionDelete), "path", target.Canonical)
	if res.Outcome == model.OutcomeSucceeded {
		log.Info("delete finished", "attempts", res.Attempts, "strategy", res.Strategy)
	} else {
		log.Warn("delete finished", "outcome", res.Outcome, "attempts", res.Attempts, "error", res.Error)
	}
	return res, nil
}

func (e *Engine) deleteWithRetry(ctx context.Context, target model.TargetPath, maxAttempts int, policy BackoffPolicy, cfg deleteConfig) model.RemediationResult {
	res := model.RemediationResult{Action: model.ActionDelete, Path: target.Canonical}
	log := e.log.With("action", string(model.ActionDelete), "path", target.Canonical)

	if !target.Exists {
		res.Outcome = model.OutcomeSucceeded
		return res
	}

	wake, stop := e.watchRemoval(target, log)
	defer stop()

	b := policy.backOff()
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			wait(ctx, b.NextBackOff(), wake)
		}
		// a cancelled scan sees no holders, so never attempt after one
		if err := ctx.Err(); err != nil {
			res.Outcome = model.OutcomePartialFailure
			res.Error = err.Error()
			return res
		}

		target = e.restat(target)
		if !target.Exists {
			// gone between attempts, someone else finished the job
			res.Outcome = model.OutcomeSucceeded
			return res
		}
		res.Attempts = attempt

		err := e.verifyFree(ctx, target, cfg, &res)
		if err == nil {
			var strategy string
			strategy, err = e.remove(target)
			if err == nil {
				if e.restat(target).Exists {
					err = fmt.Errorf("%s still exists after %s", target.Canonical, strategy)
				} else {
					res.Outcome = model.OutcomeSucceeded
					res.Strategy = strategy
					return res
				}
			}
		}

		lastErr = err
		log.Debug("delete attempt failed", "attempt", attempt, "error", err)
		if !retryable(err) && isPermission(err) {
			res.Outcome = model.OutcomeAccessDenied
			res.Error = err.Error()
			return res
		}
	}

	res.Outcome = model.OutcomePartialFailure
	res.Attempts = maxAttempts
	if lastErr != nil {
		res.Error = lastErr.Error()
	}
	return res
}

// verifyFree scans for holders of target, terminating them first when
// asked to. It returns ErrHeld while anything still holds it and
// ErrUnverified when the scan could not finish.
func (e *Engine) verifyFree(ctx context.Context, target model.TargetPath, cfg deleteConfig, res *model.RemediationResult) error {
	report := e.scan(ctx, target, e.deadline)
	if cfg.killHolders && report.Locked() {
		for _, h := range report.Holders {
			var r model.RemediationResult
			expect := []Expect{ExpectStartedAt(h.Process.StartedAt)}
			if cfg.force {
				r = e.RequestForceKill(ctx, h.PID(), expect...)
			} else {
				r = e.RequestClose(ctx, h.PID(), expect...)
			}
			res.Terminated = append(res.Terminated, r)
		}
		report = e.scan(ctx, target, e.deadline)
	}
	return heldError(report)
}

// heldError judges a verify scan. Processes skipped for lack of permission
// do not block; a scan cut short or unable to read the process table does.
func heldError(r *model.ScanReport) error {
	switch {
	case r.Locked():
		h := r.Holders[0]
		return fmt.Errorf("%w: pid %d (%s) and %d other(s)", ErrHeld, h.PID(), h.Process.Command, len(r.Holders)-1)
	case r.TimedOut, r.Cancelled:
		return fmt.Errorf("%w: %s", ErrUnverified, scanResult(r))
	case r.Error != "":
		return fmt.Errorf("%w: %s", ErrUnverified, r.Error)
	}
	return nil
}

func retryable(err error) bool {
	return errors.Is(err, ErrHeld) || errors.Is(err, ErrUnverified) || sharingViolation(err)
}

type strategy struct {
	name string
	run  func(afero.Fs, model.TargetPath) error
	// dirs is false for strategies that only suit a single file
	dirs bool
}

var strategies = []strategy{
	{"direct", removeDirect, true},
	{"clear_readonly", removeReadOnly, true},
	{"rename", removeRenamed, false},
}

// remove tries each strategy in turn. A sharing violation from any of them
// wins over other errors so the caller retries.
func (e *Engine) remove(target model.TargetPath) (string, error) {
	var first, sharing error
	for _, s := range strategies {
		if target.IsDir && !s.dirs {
			continue
		}
		err := s.run(e.fs, target)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			return s.name, nil
		}
		e.log.Debug("delete strategy failed", "strategy", s.name, "path", target.Canonical, "error", err)
		if first == nil {
			first = err
		}
		if sharing == nil && sharingViolation(err) {
			sharing = err
		}
	}
	if sharing != nil {
		return "", sharing
	}
	return "", first
}

func removeDirect(fsys afero.Fs, t model.TargetPath) error {
	if t.IsDir {
		return fsys.RemoveAll(t.Canonical)
	}
	return fsys.Remove(t.Canonical)
}

// removeReadOnly adds owner write permission (to every directory of a tree)
// and removes again.
func removeReadOnly(fsys afero.Fs, t model.TargetPath) error {
	if t.IsDir {
		err := afero.Walk(fsys, t.Canonical, func(path string, info fs.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			return fsys.Chmod(path, info.Mode().Perm()|0o200)
		})
		if err != nil {
			return err
		}
	} else {
		fi, err := fsys.Stat(t.Canonical)
		if err != nil {
			return err
		}
		if err := fsys.Chmod(t.Canonical, fi.Mode().Perm()|0o200); err != nil {
			return err
		}
	}
	return removeDirect(fsys, t)
}

// removeRenamed moves a file out of the way first, which frees its name even
// when the file itself cannot be removed yet. Directories never take this
// path: a half-removed tree would be left behind under another name.
func removeRenamed(fsys afero.Fs, t model.TargetPath) error {
	tmp := filepath.Join(filepath.Dir(t.Canonical),
		fmt.Sprintf("%s.%s.witl-tmp", filepath.Base(t.Canonical), uuid.NewString()[:8]))
	if err := fsys.Rename(t.Canonical, tmp); err != nil {
		return err
	}
	moved := t
	moved.Canonical = tmp
	// the name is free even if the moved object cannot go yet
	_ = removeDirect(fsys, moved)
	return nil
}

// watchRemoval wakes backoff waits early when the target disappears. It is
// best effort: without a watch the waits simply run their full length.
func (e *Engine) watchRemoval(target model.TargetPath, log *slog.Logger) (<-chan struct{}, func()) {
	wake := make(chan struct{}, 1)
	if !e.watch {
		return wake, func() {}
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Debug("no removal watch", "error", err)
		return wake, func() {}
	}
	if err := w.Add(parentDir(target)); err != nil {
		log.Debug("no removal watch", "error", err)
		w.Close()
		return wake, func() {}
	}

	key := e.matcher.Key(target.Canonical)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if c, ok := e.matcher.Canonical(ev.Name); ok && e.matcher.Key(c) == key {
					select {
					case wake <- struct{}{}:
					default:
					}
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			case <-done:
				return
			}
		}
	}()
	return wake, func() {
		close(done)
		w.Close()
	}
}

func wait(ctx context.Context, d time.Duration, wake <-chan struct{}) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-wake:
	case <-ctx.Done():
	}
}

func isPermission(err error) bool {
	return errors.Is(err, fs.ErrPermission)
}
