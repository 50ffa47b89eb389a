package engine

import (
	"context"
	"io/fs"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pranshuparmar/witl/internal/pathres"
	"github.com/pranshuparmar/witl/pkg/model"
)

func exists(t *testing.T, fsys afero.Fs, path string) bool {
	t.Helper()
	ok, err := afero.Exists(fsys, path)
	require.NoError(t, err)
	return ok
}

func TestDeleteMissingTarget(t *testing.T) {
	s := newFakeSystem()
	e := newTestEngine(t, s, memFs(t))

	res, err := e.Delete(context.Background(), "/data/missing.txt", 3, Constant(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSucceeded, res.Outcome)
	assert.Zero(t, res.Attempts)
	assert.Zero(t, s.scans.Load())
}

func TestDeleteInvalidPath(t *testing.T) {
	e := newTestEngine(t, newFakeSystem(), memFs(t))
	_, err := e.Delete(context.Background(), "", 3, Constant(time.Millisecond))
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestDeleteDirect(t *testing.T) {
	fsys := memFs(t, "/data/a.txt")
	e := newTestEngine(t, newFakeSystem(), fsys)

	res, err := e.Delete(context.Background(), "/data/a.txt", 3, Constant(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSucceeded, res.Outcome)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, "direct", res.Strategy)
	assert.Equal(t, "/data/a.txt", res.Path)
	assert.False(t, exists(t, fsys, "/data/a.txt"))
}

func TestDeleteIsIdempotent(t *testing.T) {
	fsys := memFs(t, "/data/a.txt")
	e := newTestEngine(t, newFakeSystem(), fsys)

	first, err := e.Delete(context.Background(), "/data/a.txt", 3, Constant(time.Millisecond))
	require.NoError(t, err)
	second, err := e.Delete(context.Background(), "/data/a.txt", 3, Constant(time.Millisecond))
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeSucceeded, first.Outcome)
	assert.Equal(t, model.OutcomeSucceeded, second.Outcome)
	assert.Zero(t, second.Attempts)
}

func TestDeleteDirectory(t *testing.T) {
	fsys := memFs(t, "/data/dir/a.txt", "/data/dir/sub/b.txt", "/data/keep.txt")
	e := newTestEngine(t, newFakeSystem(), fsys)

	res, err := e.Delete(context.Background(), "/data/dir", 3, Constant(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSucceeded, res.Outcome)
	assert.False(t, exists(t, fsys, "/data/dir"))
	assert.True(t, exists(t, fsys, "/data/keep.txt"))
}

func TestDeleteHeldExhaustsAttempts(t *testing.T) {
	s := newFakeSystem()
	s.spawn(4821, "excel")
	s.open(4821, 3, "/data/a.txt", model.AccessReadWrite)
	fsys := memFs(t, "/data/a.txt")
	e := newTestEngine(t, s, fsys)

	res, err := e.Delete(context.Background(), "/data/a.txt", 3, Constant(time.Millisecond))
	require.NoError(t, err)

	assert.Equal(t, model.OutcomePartialFailure, res.Outcome)
	assert.Equal(t, 3, res.Attempts)
	assert.Contains(t, res.Error, "held")
	assert.Contains(t, res.Error, "excel")
	assert.Equal(t, int32(3), s.scans.Load(), "one verify scan per attempt")
	assert.True(t, exists(t, fsys, "/data/a.txt"))
	assert.Equal(t, StateIdle, e.State())
}

func TestDeleteLeavesUnverifiedDirectory(t *testing.T) {
	files := []string{"/data/dir/a.txt", "/data/dir/sub/b.txt"}
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name      string
		ctx       context.Context
		holdBack  time.Duration
		opts      []Option
		attempts  int
		wantError string
	}{
		{
			name:      "held descendant",
			ctx:       context.Background(),
			attempts:  3,
			wantError: "excel",
		},
		{
			name:      "cancelled before first attempt",
			ctx:       cancelled,
			attempts:  0,
			wantError: context.Canceled.Error(),
		},
		{
			name:      "verify scan times out",
			ctx:       context.Background(),
			holdBack:  time.Second,
			opts:      []Option{WithDeadline(20 * time.Millisecond)},
			attempts:  3,
			wantError: ErrUnverified.Error(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newFakeSystem()
			s.spawn(4821, "excel")
			s.open(4821, 3, "/data/dir/a.txt", model.AccessReadWrite)
			s.holdBack = tt.holdBack
			fsys := memFs(t, files...)
			e := newTestEngine(t, s, fsys, tt.opts...)

			res, err := e.Delete(tt.ctx, "/data/dir", 3, Constant(time.Millisecond))
			require.NoError(t, err)

			assert.Equal(t, model.OutcomePartialFailure, res.Outcome)
			assert.Equal(t, tt.attempts, res.Attempts)
			assert.Contains(t, res.Error, tt.wantError)
			assert.Empty(t, res.Strategy)
			for _, f := range files {
				assert.True(t, exists(t, fsys, f), f)
			}
		})
	}
}

func TestDeleteDirectorySkipsRename(t *testing.T) {
	fsys := &faultyFs{Fs: memFs(t, "/data/dir/a.txt"), removeErr: errBusy}
	e := newTestEngine(t, newFakeSystem(), fsys)

	res, err := e.Delete(context.Background(), "/data/dir", 2, Constant(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomePartialFailure, res.Outcome)
	assert.True(t, exists(t, fsys, "/data/dir/a.txt"))

	moved, err := afero.Glob(fsys, "/data/dir.*.witl-tmp")
	require.NoError(t, err)
	assert.Empty(t, moved)
}

func TestDeleteSharingViolation(t *testing.T) {
	fsys := &faultyFs{Fs: memFs(t, "/data/a.txt"), removeErr: errBusy, renameErr: errBusy}
	e := newTestEngine(t, newFakeSystem(), fsys)

	res, err := e.Delete(context.Background(), "/data/a.txt", 3, Constant(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomePartialFailure, res.Outcome)
	assert.Equal(t, 3, res.Attempts)
	assert.True(t, exists(t, fsys, "/data/a.txt"))
}

func TestDeleteClearsReadOnly(t *testing.T) {
	base := memFs(t, "/data/a.txt")
	require.NoError(t, base.Chmod("/data/a.txt", 0o444))
	fsys := &faultyFs{Fs: base}
	e := newTestEngine(t, newFakeSystem(), fsys)

	res, err := e.Delete(context.Background(), "/data/a.txt", 3, Constant(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSucceeded, res.Outcome)
	assert.Equal(t, "clear_readonly", res.Strategy)
	assert.False(t, exists(t, fsys, "/data/a.txt"))
}

func TestDeleteFallsBackToRename(t *testing.T) {
	fsys := &faultyFs{Fs: memFs(t, "/data/a.txt"), removeErr: errBusy}
	e := newTestEngine(t, newFakeSystem(), fsys)

	res, err := e.Delete(context.Background(), "/data/a.txt", 3, Constant(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSucceeded, res.Outcome)
	assert.Equal(t, "rename", res.Strategy)
	assert.False(t, exists(t, fsys, "/data/a.txt"))

	moved, err := afero.Glob(fsys, "/data/a.txt.*.witl-tmp")
	require.NoError(t, err)
	assert.Len(t, moved, 1)
}

func TestDeleteAccessDenied(t *testing.T) {
	fsys := &faultyFs{Fs: memFs(t, "/data/a.txt"), removeErr: fs.ErrPermission, renameErr: fs.ErrPermission}
	e := newTestEngine(t, newFakeSystem(), fsys)

	res, err := e.Delete(context.Background(), "/data/a.txt", 3, Constant(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeAccessDenied, res.Outcome)
	assert.Equal(t, 1, res.Attempts, "permission errors are not retried")
}

func TestDeleteKillHolders(t *testing.T) {
	tests := []struct {
		name     string
		force    bool
		stubborn bool
		want     model.Outcome
	}{
		{"close", false, false, model.OutcomeSucceeded},
		{"close ignored", false, true, model.OutcomePartialFailure},
		{"force", true, true, model.OutcomeSucceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newFakeSystem()
			s.spawn(4821, "excel")
			s.open(4821, 3, "/data/a.txt", model.AccessRead)
			s.stubborn[4821] = tt.stubborn
			fsys := memFs(t, "/data/a.txt")
			e := newTestEngine(t, s, fsys)

			res, err := e.Delete(context.Background(), "/data/a.txt", 2, Constant(time.Millisecond), WithKillHolders(tt.force))
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Outcome)
			require.NotEmpty(t, res.Terminated)
			assert.Equal(t, 4821, res.Terminated[0].PID)
			assert.Equal(t, tt.want == model.OutcomeSucceeded, !exists(t, fsys, "/data/a.txt"))
		})
	}
}

func TestDeleteCancelledBetweenAttempts(t *testing.T) {
	s := newFakeSystem()
	s.spawn(4821, "excel")
	s.open(4821, 3, "/data/a.txt", model.AccessRead)
	fsys := memFs(t, "/data/a.txt")
	e := newTestEngine(t, s, fsys)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	res, err := e.Delete(ctx, "/data/a.txt", 100, Constant(10*time.Millisecond))
	require.NoError(t, err)

	assert.Equal(t, model.OutcomePartialFailure, res.Outcome)
	assert.Less(t, res.Attempts, 100)
	assert.Contains(t, res.Error, "deadline exceeded")
	assert.True(t, exists(t, fsys, "/data/a.txt"))
}

func TestDeleteDefaults(t *testing.T) {
	s := newFakeSystem()
	s.spawn(1, "init")
	s.open(1, 3, "/data/a.txt", model.AccessRead)
	e := newTestEngine(t, s, memFs(t, "/data/a.txt"), WithDeleteDefaults(2, Constant(time.Millisecond)))

	res, err := e.Delete(context.Background(), "/data/a.txt", 0, BackoffPolicy{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
}

func TestBackoffDelays(t *testing.T) {
	ms := time.Millisecond
	assert.Equal(t,
		[]time.Duration{100 * ms, 200 * ms, 400 * ms, 800 * ms, 1600 * ms, 2000 * ms},
		DefaultBackoff().Delays(7))
	assert.Equal(t, []time.Duration{5 * ms, 5 * ms}, Constant(5*ms).Delays(3))
	assert.Empty(t, DefaultBackoff().Delays(1))
	assert.True(t, BackoffPolicy{}.IsZero())
}

func TestDiagnose(t *testing.T) {
	s := newFakeSystem()
	s.spawn(4821, "excel")
	s.open(4821, 3, "/data/a.txt", model.AccessRead)
	s.open(4821, 4, "/data/a.txt", model.AccessRead)
	fsys := memFs(t, "/data/a.txt", "/data/b.txt")
	require.NoError(t, fsys.Chmod("/data/a.txt", 0o444))
	e := newTestEngine(t, s, fsys)
	e.canWrite = func(string) bool { return false }

	d, err := e.Diagnose(context.Background(), "/data/a.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"held open by excel (pid 4821), 2 handle(s)",
		"no write permission on parent directory /data",
		"target is read-only",
	}, d.Reasons)
	assert.True(t, d.Report.Locked())

	e.canWrite = func(string) bool { return true }
	d, err = e.Diagnose(context.Background(), "/data/b.txt")
	require.NoError(t, err)
	assert.Empty(t, d.Reasons)

	d, err = e.Diagnose(context.Background(), "/data/none.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"path does not exist"}, d.Reasons)
	assert.Nil(t, d.Report)
}

// A spreadsheet held open on a Windows volume: the handle names the NT
// device, the user names the drive letter.
func TestWindowsSpreadsheetScenario(t *testing.T) {
	const target = `C:\data\report.xlsx`
	s := newFakeSystem()
	s.spawn(4821, "EXCEL.EXE")
	s.open(4821, -1, `\Device\HarddiskVolume3\Data\Report.xlsx`, model.AccessRead)

	devices := map[string]string{`\Device\HarddiskVolume3`: "C:"}
	e := newTestEngine(t, s, memFs(t, target),
		WithMatcher(pathres.Matcher{Style: pathres.StyleWindows}),
		WithResolver(func(m pathres.Matcher) *pathres.Resolver {
			return pathres.NewResolver(m, pathres.WithDevices(devices))
		}),
	)

	report, err := e.Scan(context.Background(), target, time.Second)
	require.NoError(t, err)
	require.Len(t, report.Holders, 1)
	h := report.Holders[0]
	assert.Equal(t, 4821, h.PID())
	assert.Equal(t, model.AccessRead, h.Handles[0].Access)
	assert.Equal(t, `C:\Data\Report.xlsx`, h.Handles[0].Path())

	res := e.RequestClose(context.Background(), 4821, ExpectStartedAt(h.Process.StartedAt), ExpectHolding(target))
	assert.Equal(t, model.OutcomeSucceeded, res.Outcome, res.Error)

	report, err = e.Scan(context.Background(), target, time.Second)
	require.NoError(t, err)
	assert.True(t, report.Complete)
	assert.Empty(t, report.Holders)
}
