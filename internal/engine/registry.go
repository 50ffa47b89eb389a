package engine

import (
	"sync"

	"github.com/pranshuparmar/witl/pkg/model"
)

// registry keeps at most one remediation in flight per PID. The mutex is
// only held to look up or register a call, never while acting.
type registry struct {
	mu    sync.Mutex
	calls map[int]*call
}

type call struct {
	action model.Action
	done   chan struct{}
	result model.RemediationResult
}

func newRegistry() *registry {
	return &registry{calls: make(map[int]*call)}
}

// do runs fn unless a call for pid is already in flight. A caller asking for
// the same action waits and shares that call's result; a caller asking for a
// different action waits and then runs fn itself, so it validates the
// process again after the first action has finished.
func (r *registry) do(pid int, action model.Action, fn func() model.RemediationResult) (res model.RemediationResult, shared bool) {
	for {
		r.mu.Lock()
		c, ok := r.calls[pid]
		if !ok {
			c = &call{action: action, done: make(chan struct{})}
			r.calls[pid] = c
			r.mu.Unlock()
			r.run(pid, c, fn)
			return c.result, false
		}
		r.mu.Unlock()

		<-c.done
		if c.action == action {
			return c.result, true
		}
	}
}

func (r *registry) run(pid int, c *call, fn func() model.RemediationResult) {
	defer func() {
		r.mu.Lock()
		delete(r.calls, pid)
		r.mu.Unlock()
		close(c.done)
	}()
	c.result = fn()
}

// inFlight reports whether a remediation for pid is running.
func (r *registry) inFlight(pid int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.calls[pid]
	return ok
}
