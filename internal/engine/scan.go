package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pranshuparmar/witl/internal/proc"
	"github.com/pranshuparmar/witl/internal/process"
	"github.com/pranshuparmar/witl/internal/source"
	"github.com/pranshuparmar/witl/pkg/model"
)

// ScanOutcome is what ScanAsync delivers.
type ScanOutcome struct {
	Report *model.ScanReport
	Err    error
}

// Scan reports every process holding path or, for a directory, anything
// beneath it. A deadline <= 0 means no deadline. The only error is an
// unusable path; an unreadable process table, a timeout or a cancellation
// still produce a report, marked incomplete.
func (e *Engine) Scan(ctx context.Context, path string, deadline time.Duration) (*model.ScanReport, error) {
	target, err := e.Target(path)
	if err != nil {
		return nil, err
	}
	return e.scan(ctx, target, deadline), nil
}

// ScanAsync runs Scan on its own goroutine. The channel yields exactly one
// outcome and is then closed.
func (e *Engine) ScanAsync(ctx context.Context, path string, deadline time.Duration) <-chan ScanOutcome {
	ch := make(chan ScanOutcome, 1)
	go func() {
		defer close(ch)
		report, err := e.Scan(ctx, path, deadline)
		ch <- ScanOutcome{Report: report, Err: err}
	}()
	return ch
}

// ScanMany scans several targets concurrently. Reports come back in the
// order of paths; any unusable path fails the whole call before scanning.
func (e *Engine) ScanMany(ctx context.Context, paths []string, deadline time.Duration) ([]*model.ScanReport, error) {
	targets := make([]model.TargetPath, len(paths))
	for i, p := range paths {
		t, err := e.Target(p)
		if err != nil {
			return nil, err
		}
		targets[i] = t
	}

	reports := make([]*model.ScanReport, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(e.concurrency, 1))
	for i, t := range targets {
		g.Go(func() error {
			reports[i] = e.scan(gctx, t, deadline)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func (e *Engine) scan(ctx context.Context, target model.TargetPath, deadline time.Duration) *model.ScanReport {
	e.beginScan()
	defer e.endScan()

	report := &model.ScanReport{
		ID:        uuid.NewString(),
		Target:    target,
		Holders:   []model.ProcessLockInfo{},
		StartedAt: e.now(),
		Complete:  true,
	}
	log := e.log.With("scan_id", report.ID, "target", target.Canonical)
	log.Debug("scan started", "deadline", deadline)

	defer func() {
		report.FinishedAt = e.now()
		d := report.FinishedAt.Sub(report.StartedAt)
		e.m.ObserveScan(scanResult(report), d, len(report.Holders), len(report.Skipped))
		log.Info("scan finished",
			"holders", len(report.Holders),
			"skipped", len(report.Skipped),
			"complete", report.Complete,
			"duration", d,
		)
	}()

	if !target.Exists {
		return report
	}

	scanCtx := ctx
	if deadline > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	resolver := e.newResolver(e.matcher)
	matcher := resolver.Matcher()
	scope := proc.Scope{Target: target, Resolver: resolver, IncludeMmap: e.includeMmap}

	index := make(map[int]int)
	skipped := make(map[int]bool)

	for rec, err := range e.enum.Enumerate(scanCtx, scope) {
		if err != nil {
			e.noteError(report, skipped, err, log)
			continue
		}
		if rec.PID == e.self && e.self != 0 {
			continue
		}
		if !matcher.Matches(target, rec) {
			if rec.Resolved == nil && fileLike(rec.ObjectType) {
				report.Unresolvable++
			}
			continue
		}
		i, ok := index[rec.PID]
		if !ok {
			i = len(report.Holders)
			index[rec.PID] = i
			report.Holders = append(report.Holders, model.ProcessLockInfo{Process: model.Process{PID: rec.PID}})
		}
		report.Holders[i].Handles = append(report.Holders[i].Handles, rec)
	}

	report.Holders = e.describe(scanCtx, report.Holders, log)

	if scanCtx.Err() != nil {
		report.Complete = false
		if ctx.Err() != nil {
			report.Cancelled = true
		} else {
			report.TimedOut = true
		}
	}
	return report
}

// describe fills in process metadata for every holder. Holders that exited
// since they were seen are dropped: their handles are gone with them. Once
// ctx is done the remaining holders keep only their pid.
func (e *Engine) describe(ctx context.Context, holders []model.ProcessLockInfo, log *slog.Logger) []model.ProcessLockInfo {
	out := holders[:0]
	for _, h := range holders {
		pid := h.Process.PID
		if ctx.Err() != nil {
			h.Process.AppType = appType(h.Handles)
			out = append(out, h)
			continue
		}
		p, err := e.insp.ReadProcess(ctx, pid)
		switch {
		case err != nil && ctx.Err() != nil:
			// interrupted, not gone
			p = model.Process{PID: pid}
		case errors.Is(err, proc.ErrProcessGone):
			log.Debug("holder exited during scan", "pid", pid)
			continue
		case err != nil:
			log.Debug("process metadata unavailable", "pid", pid, "error", err)
			p = model.Process{PID: pid}
		}
		if t := appType(h.Handles); t != "" {
			p.AppType = t
		}
		h.Process = p

		var src *model.Source
		if e.ancestry && ctx.Err() == nil {
			if chain, err := process.BuildAncestry(ctx, e.insp, pid); err == nil {
				h.Ancestry = chain[:len(chain)-1]
				src = source.Detect(ctx, chain)
				h.Source = src
			}
		}
		h.Warnings = source.Warnings(src, p)
		out = append(out, h)
	}
	return out
}

func appType(handles []model.HandleRecord) string {
	for _, rec := range handles {
		if rec.AppType != "" {
			return rec.AppType
		}
	}
	return ""
}

func (e *Engine) noteError(report *model.ScanReport, skipped map[int]bool, err error, log *slog.Logger) {
	var pe *proc.ProcessError
	switch {
	case errors.As(err, &pe) && errors.Is(err, proc.ErrProcessGone):
		// exited mid-scan, nothing to report
		log.Debug("process exited during scan", "pid", pe.PID)
	case errors.As(err, &pe):
		report.Complete = false
		if pe.PID != 0 && skipped[pe.PID] {
			return
		}
		skipped[pe.PID] = true
		reason := "permission denied"
		if !errors.Is(err, proc.ErrPermissionDenied) {
			reason = pe.Err.Error()
		}
		report.Skipped = append(report.Skipped, model.SkippedProcess{PID: pe.PID, Reason: reason})
		log.Debug("process skipped", "pid", pe.PID, "reason", reason)
	default:
		report.Complete = false
		report.Error = err.Error()
		log.Warn("handle enumeration failed", "error", err)
	}
}

func fileLike(t model.ObjectType) bool {
	switch t {
	case model.ObjectSocket, model.ObjectPipe, model.ObjectDevice:
		return false
	}
	return true
}

func scanResult(r *model.ScanReport) string {
	switch {
	case r.TimedOut:
		return "timed_out"
	case r.Cancelled:
		return "cancelled"
	case !r.Complete:
		return "partial"
	}
	return "complete"
}
