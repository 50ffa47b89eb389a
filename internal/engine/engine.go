// Package engine finds the processes that hold a path and gets them to let
// go: by asking, by killing, or by deleting the path once it is free.
//
// Everything the engine reports is a snapshot. Between a scan and the action
// taken on it a process may exit, its PID may be reused, or a new holder may
// appear, so every remediation validates its target again before acting.
package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/pranshuparmar/witl/internal/logging"
	"github.com/pranshuparmar/witl/internal/metrics"
	"github.com/pranshuparmar/witl/internal/pathres"
	"github.com/pranshuparmar/witl/internal/proc"
	"github.com/pranshuparmar/witl/pkg/model"
)

var ErrInvalidTarget = errors.New("invalid target path")

// State is the phase of the engine as seen by a user interface.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateReported
)

func (s State) String() string {
	switch s {
	case StateScanning:
		return "scanning"
	case StateReported:
		return "reported"
	}
	return "idle"
}

type Engine struct {
	enum proc.Enumerator
	insp proc.Inspector
	term proc.Terminator
	fs   afero.Fs
	log  *slog.Logger
	m    *metrics.Metrics

	matcher     pathres.Matcher
	newResolver func(pathres.Matcher) *pathres.Resolver

	ancestry    bool
	includeMmap bool
	deadline    time.Duration // verify scans and Diagnose
	grace       time.Duration
	poll        time.Duration
	attempts    int
	backoff     BackoffPolicy
	watch       bool
	concurrency int
	self        int
	now         func() time.Time
	canWrite    func(dir string) bool

	inflight *registry

	mu       sync.Mutex
	scanning int
	reported bool
}

type Option func(*Engine)

// WithBackend replaces enumerator, inspector and terminator at once.
func WithBackend(b proc.Backend) Option {
	return func(e *Engine) {
		e.enum, e.insp, e.term = b.Enumerator, b.Inspector, b.Terminator
	}
}

func WithEnumerator(en proc.Enumerator) Option { return func(e *Engine) { e.enum = en } }
func WithInspector(i proc.Inspector) Option    { return func(e *Engine) { e.insp = i } }
func WithTerminator(t proc.Terminator) Option  { return func(e *Engine) { e.term = t } }

// WithFs sets the filesystem used for stat and delete.
func WithFs(fs afero.Fs) Option { return func(e *Engine) { e.fs = fs } }

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.m = m } }

// WithMatcher sets path comparison rules. The default folds case.
func WithMatcher(m pathres.Matcher) Option { return func(e *Engine) { e.matcher = m } }

// WithResolver overrides how the per-scan resolver is built.
func WithResolver(fn func(pathres.Matcher) *pathres.Resolver) Option {
	return func(e *Engine) { e.newResolver = fn }
}

// WithAncestry adds process ancestry and source detection to scan reports.
func WithAncestry(on bool) Option { return func(e *Engine) { e.ancestry = on } }

func WithMmap(on bool) Option { return func(e *Engine) { e.includeMmap = on } }

// WithDeadline bounds the scans the engine runs on its own behalf.
func WithDeadline(d time.Duration) Option { return func(e *Engine) { e.deadline = d } }

// WithGrace sets how long a terminated process is given to exit.
func WithGrace(d time.Duration) Option { return func(e *Engine) { e.grace = d } }

func WithPollInterval(d time.Duration) Option { return func(e *Engine) { e.poll = d } }

// WithDeleteDefaults sets what Delete uses when called with zero values.
func WithDeleteDefaults(attempts int, b BackoffPolicy) Option {
	return func(e *Engine) { e.attempts, e.backoff = attempts, b }
}

// WithWatch toggles the fsnotify watch that cuts delete backoff short.
func WithWatch(on bool) Option { return func(e *Engine) { e.watch = on } }

func WithConcurrency(n int) Option { return func(e *Engine) { e.concurrency = n } }

// WithSelf sets the PID never reported nor terminated; 0 disables.
func WithSelf(pid int) Option { return func(e *Engine) { e.self = pid } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func New(opts ...Option) *Engine {
	e := &Engine{
		fs:          afero.NewOsFs(),
		log:         logging.Discard(),
		matcher:     pathres.NewMatcher(false),
		newResolver: pathres.NewNativeResolver,
		deadline:    5 * time.Second,
		grace:       2 * time.Second,
		poll:        50 * time.Millisecond,
		attempts:    3,
		backoff:     DefaultBackoff(),
		watch:       true,
		concurrency: 4,
		self:        os.Getpid(),
		now:         time.Now,
		canWrite:    canWrite,
		inflight:    newRegistry(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.poll <= 0 {
		e.poll = time.Millisecond
	}
	if e.enum == nil || e.insp == nil || e.term == nil {
		b := proc.NewBackend()
		if e.enum == nil {
			e.enum = b.Enumerator
		}
		if e.insp == nil {
			e.insp = b.Inspector
		}
		if e.term == nil {
			e.term = b.Terminator
		}
	}
	return e
}

// State is Scanning while any scan runs, Reported once a scan has finished
// and nothing has acted on it yet, Idle otherwise.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.scanning > 0:
		return StateScanning
	case e.reported:
		return StateReported
	}
	return StateIdle
}

func (e *Engine) beginScan() {
	e.mu.Lock()
	e.scanning++
	e.reported = false
	e.mu.Unlock()
}

func (e *Engine) endScan() {
	e.mu.Lock()
	e.scanning--
	e.reported = true
	e.mu.Unlock()
}

// acknowledge moves a finished report back to idle once it is acted on.
func (e *Engine) acknowledge() {
	e.mu.Lock()
	e.reported = false
	e.mu.Unlock()
}

// Target builds the canonical form of path and records whether it exists.
func (e *Engine) Target(path string) (model.TargetPath, error) {
	if path == "" {
		return model.TargetPath{}, fmt.Errorf("%w: empty path", ErrInvalidTarget)
	}
	canonical, ok := e.matcher.Canonical(path)
	if !ok {
		return model.TargetPath{}, fmt.Errorf("%w: %q", ErrInvalidTarget, path)
	}
	t := model.TargetPath{Original: path, Canonical: canonical}
	return e.restat(t), nil
}

func (e *Engine) restat(t model.TargetPath) model.TargetPath {
	t.Exists, t.IsDir, t.ID = false, false, model.FileID{}
	fi, err := e.fs.Stat(t.Canonical)
	if err != nil {
		// unreadable is not the same as missing
		t.Exists = !errors.Is(err, fs.ErrNotExist)
		return t
	}
	t.Exists = true
	t.IsDir = fi.IsDir()
	t.ID = fileID(fi)
	return t
}

func parentDir(t model.TargetPath) string {
	return filepath.Dir(t.Canonical)
}
