package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pranshuparmar/witl/internal/metrics"
	"github.com/pranshuparmar/witl/internal/proc"
	"github.com/pranshuparmar/witl/pkg/model"
)

func TestRequestClose(t *testing.T) {
	s := newFakeSystem()
	s.spawn(4821, "excel")
	e := newTestEngine(t, s, memFs(t))

	res := e.RequestClose(context.Background(), 4821)
	assert.Equal(t, model.OutcomeSucceeded, res.Outcome)
	assert.Equal(t, model.ActionClose, res.Action)
	assert.Equal(t, 4821, res.PID)
	assert.Equal(t, 1, res.Attempts)
	assert.False(t, s.Alive(4821))

	// the process is gone now; asking again is harmless
	again := e.RequestClose(context.Background(), 4821)
	assert.Equal(t, model.OutcomeProcessNotFound, again.Outcome)
	assert.True(t, again.Outcome.OK())
}

func TestRequestCloseStubborn(t *testing.T) {
	s := newFakeSystem()
	s.spawn(77, "daemon")
	s.stubborn[77] = true
	e := newTestEngine(t, s, memFs(t))

	res := e.RequestClose(context.Background(), 77)
	assert.Equal(t, model.OutcomeTimedOut, res.Outcome)
	assert.Contains(t, res.Error, "still running")
	assert.True(t, s.Alive(77), "close never escalates")

	res = e.RequestForceKill(context.Background(), 77)
	assert.Equal(t, model.OutcomeSucceeded, res.Outcome)
	assert.False(t, s.Alive(77))
}

func TestRequestCloseGraceUsesClock(t *testing.T) {
	s := newFakeSystem()
	s.spawn(77, "daemon")
	s.stubborn[77] = true

	// each reading moves the clock a minute on
	var mu sync.Mutex
	now := started
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Minute)
		return now
	}
	e := newTestEngine(t, s, memFs(t), WithGrace(time.Hour), WithClock(clock))

	start := time.Now()
	res := e.RequestClose(context.Background(), 77)
	assert.Equal(t, model.OutcomeTimedOut, res.Outcome)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRemediationValidation(t *testing.T) {
	tests := []struct {
		name   string
		pid    int
		expect []Expect
		want   model.Outcome
	}{
		{"invalid pid", 0, nil, model.OutcomeProcessNotFound},
		{"negative pid", -4, nil, model.OutcomeProcessNotFound},
		{"unknown pid", 31337, nil, model.OutcomeProcessNotFound},
		{"own process", 99, nil, model.OutcomeAccessDenied},
		{"start time matches", 10, []Expect{ExpectStartedAt(started.Add(400 * time.Millisecond))}, model.OutcomeSucceeded},
		{"pid reused", 10, []Expect{ExpectStartedAt(started.Add(-time.Hour))}, model.OutcomeProcessNotFound},
		{"still holding", 10, []Expect{ExpectHolding("/data/a.txt")}, model.OutcomeSucceeded},
		{"not holding", 11, []Expect{ExpectHolding("/data/a.txt")}, model.OutcomeProcessNotFound},
		{"holding missing path", 10, []Expect{ExpectHolding("/data/gone.txt")}, model.OutcomeProcessNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newFakeSystem()
			s.spawn(10, "vim")
			s.spawn(11, "less")
			s.spawn(99, "witl")
			s.open(10, 3, "/data/a.txt", model.AccessRead)
			s.open(11, 3, "/data/b.txt", model.AccessRead)
			e := newTestEngine(t, s, memFs(t, "/data/a.txt", "/data/b.txt"), WithSelf(99))

			res := e.RequestForceKill(context.Background(), tt.pid, tt.expect...)
			assert.Equal(t, tt.want, res.Outcome, res.Error)
			if tt.want != model.OutcomeSucceeded {
				assert.Zero(t, s.termCalls.Load())
			}
		})
	}
}

func TestRemediationTerminateErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want model.Outcome
	}{
		{"denied", fmt.Errorf("pid 5: %w", proc.ErrAccessDenied), model.OutcomeAccessDenied},
		{"gone", fmt.Errorf("pid 5: %w", proc.ErrProcessGone), model.OutcomeProcessNotFound},
		{"other", errors.New("signal delivery failed"), model.OutcomePartialFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newFakeSystem()
			s.spawn(5, "svc")
			s.termErr[5] = tt.err
			e := newTestEngine(t, s, memFs(t))

			res := e.RequestClose(context.Background(), 5)
			assert.Equal(t, tt.want, res.Outcome)
			assert.Equal(t, tt.err.Error(), res.Error)
		})
	}
}

func TestRemediationCancelledBeforeActing(t *testing.T) {
	s := newFakeSystem()
	s.spawn(5, "svc")
	e := newTestEngine(t, s, memFs(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := e.RequestForceKill(ctx, 5)
	assert.Equal(t, model.OutcomeTimedOut, res.Outcome)
	assert.True(t, s.Alive(5))
	assert.Zero(t, s.termCalls.Load())
}

func TestConcurrentForceKillSharesOneCall(t *testing.T) {
	s := newFakeSystem()
	s.spawn(4821, "excel")
	s.gate = make(chan struct{})
	e := newTestEngine(t, s, memFs(t))

	results := make([]model.RemediationResult, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = e.RequestForceKill(context.Background(), 4821)
	}()
	require.Eventually(t, func() bool { return s.termCalls.Load() == 1 }, time.Second, time.Millisecond)
	require.True(t, e.inflight.inFlight(4821))

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1] = e.RequestForceKill(context.Background(), 4821)
	}()
	time.Sleep(50 * time.Millisecond)
	close(s.gate)
	wg.Wait()

	assert.Equal(t, int32(1), s.termCalls.Load())
	assert.Equal(t, model.OutcomeSucceeded, results[0].Outcome)
	assert.Equal(t, results[0], results[1])
	assert.False(t, e.inflight.inFlight(4821))
}

func TestConcurrentDifferentActionsRevalidate(t *testing.T) {
	s := newFakeSystem()
	s.spawn(4821, "excel")
	s.gate = make(chan struct{})
	e := newTestEngine(t, s, memFs(t))

	var closeRes, killRes model.RemediationResult
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		closeRes = e.RequestClose(context.Background(), 4821)
	}()
	require.Eventually(t, func() bool { return s.termCalls.Load() == 1 }, time.Second, time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		killRes = e.RequestForceKill(context.Background(), 4821)
	}()
	time.Sleep(50 * time.Millisecond)
	close(s.gate)
	wg.Wait()

	assert.Equal(t, model.OutcomeSucceeded, closeRes.Outcome)
	assert.Equal(t, model.ActionForceKill, killRes.Action)
	assert.Equal(t, model.OutcomeProcessNotFound, killRes.Outcome)
	assert.Equal(t, int32(1), s.termCalls.Load())
}

func TestRegistryShare(t *testing.T) {
	r := newRegistry()
	release := make(chan struct{})
	var calls sync.WaitGroup

	var first, second model.RemediationResult
	var firstShared, secondShared bool
	calls.Add(1)
	go func() {
		defer calls.Done()
		first, firstShared = r.do(1, model.ActionForceKill, func() model.RemediationResult {
			<-release
			return model.RemediationResult{PID: 1, Outcome: model.OutcomeSucceeded}
		})
	}()
	require.Eventually(t, func() bool { return r.inFlight(1) }, time.Second, time.Millisecond)

	calls.Add(1)
	go func() {
		defer calls.Done()
		second, secondShared = r.do(1, model.ActionForceKill, func() model.RemediationResult {
			t.Error("second caller must not act")
			return model.RemediationResult{}
		})
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	calls.Wait()

	assert.False(t, firstShared)
	assert.True(t, secondShared)
	assert.Equal(t, first, second)
	assert.False(t, r.inFlight(1))
}

func TestRegistryIndependentPIDs(t *testing.T) {
	r := newRegistry()
	release := make(chan struct{})
	go r.do(1, model.ActionClose, func() model.RemediationResult {
		<-release
		return model.RemediationResult{}
	})
	require.Eventually(t, func() bool { return r.inFlight(1) }, time.Second, time.Millisecond)

	res, shared := r.do(2, model.ActionClose, func() model.RemediationResult {
		return model.RemediationResult{PID: 2, Outcome: model.OutcomeSucceeded}
	})
	assert.False(t, shared)
	assert.Equal(t, 2, res.PID)
	close(release)
}

func TestRemediationMetrics(t *testing.T) {
	s := newFakeSystem()
	s.spawn(5, "svc")
	m := metrics.New()
	e := newTestEngine(t, s, memFs(t), WithMetrics(m))

	e.RequestClose(context.Background(), 5)
	e.RequestClose(context.Background(), 5)

	assert.Equal(t, 2, testutil.CollectAndCount(m.Registry(), "witl_remediations_total"))
}
