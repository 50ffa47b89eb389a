package tui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pranshuparmar/witl/internal/engine"
	"github.com/pranshuparmar/witl/pkg/model"
)

type fakeEngine struct {
	mu      sync.Mutex
	report  *model.ScanReport
	scanErr error
	scans   int
	closed  []int
	killed  []int
	deleted []string
}

func (f *fakeEngine) ScanAsync(_ context.Context, _ string, _ time.Duration) <-chan engine.ScanOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans++
	ch := make(chan engine.ScanOutcome, 1)
	ch <- engine.ScanOutcome{Report: f.report, Err: f.scanErr}
	close(ch)
	return ch
}

func (f *fakeEngine) RequestClose(_ context.Context, pid int, _ ...engine.Expect) model.RemediationResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, pid)
	return model.RemediationResult{Action: model.ActionClose, PID: pid, Outcome: model.OutcomeSucceeded}
}

func (f *fakeEngine) RequestForceKill(_ context.Context, pid int, _ ...engine.Expect) model.RemediationResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = append(f.killed, pid)
	return model.RemediationResult{Action: model.ActionForceKill, PID: pid, Outcome: model.OutcomeSucceeded}
}

func (f *fakeEngine) Delete(_ context.Context, path string, _ int, _ engine.BackoffPolicy, _ ...engine.DeleteOption) (model.RemediationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, path)
	return model.RemediationResult{Action: model.ActionDelete, Path: path, Outcome: model.OutcomeSucceeded, Attempts: 1}, nil
}

func lockedReport() *model.ScanReport {
	file := "/data/report.xlsx"
	return &model.ScanReport{
		Target: model.TargetPath{Canonical: file, Exists: true},
		Holders: []model.ProcessLockInfo{
			{
				Process: model.Process{PID: 4821, Command: "excel", User: "alice", StartedAt: time.Unix(1700000000, 0)},
				Handles: []model.HandleRecord{
					{PID: 4821, FD: 3, Kind: model.KindFD, RawName: file, Access: model.AccessRead, Resolved: &file},
					{PID: 4821, FD: 4, Kind: model.KindFD, RawName: file, Access: model.AccessWrite, Resolved: &file},
				},
			},
			{
				Process:  model.Process{PID: 950, Command: "bash"},
				Ancestry: []model.Process{{PID: 1, Command: "init"}},
				Handles:  []model.HandleRecord{{PID: 950, FD: -1, Kind: model.KindCwd, RawName: "/data"}},
			},
		},
		Complete: true,
	}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func send(t *testing.T, m tuiModel, msg tea.Msg) (tuiModel, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(msg)
	return updated.(tuiModel), cmd
}

// scanned returns a model that has received one scan of f.report.
func scanned(t *testing.T, f *fakeEngine) tuiModel {
	t.Helper()
	m := initialModel(context.Background(), f, "/data/report.xlsx", Options{})
	cmd := m.scan()
	require.NotNil(t, cmd)
	require.True(t, m.scanning)
	m, _ = send(t, m, cmd())
	require.False(t, m.scanning)
	return m
}

func TestScanFillsTable(t *testing.T) {
	f := &fakeEngine{report: lockedReport()}
	m := scanned(t, f)

	rows := m.table.Rows()
	require.Len(t, rows, 2)
	// sorted by PID
	assert.Equal(t, "950", rows[0][colPID])
	assert.Equal(t, "unknown", rows[0][colUser])
	assert.Equal(t, "-", rows[0][colAccess])
	assert.Equal(t, "/data", rows[0][colPath])

	assert.Equal(t, "4821", rows[1][colPID])
	assert.Equal(t, "read-write", rows[1][colAccess])
	assert.Equal(t, "2", rows[1][colHandles])
	assert.Equal(t, "/data/report.xlsx", rows[1][colPath])

	assert.Equal(t, "2 holder(s)", m.status())
	assert.Contains(t, m.View(), "excel")
}

func TestScanSkippedWhileRunning(t *testing.T) {
	f := &fakeEngine{report: lockedReport()}
	m := initialModel(context.Background(), f, "/x", Options{})
	require.NotNil(t, m.scan())
	assert.Nil(t, m.scan())
	assert.Equal(t, 1, f.scans)
}

func TestScanError(t *testing.T) {
	f := &fakeEngine{scanErr: errors.New("invalid target path")}
	m := scanned(t, f)
	assert.Contains(t, m.View(), "Error: invalid target path")
}

func TestCloseSelected(t *testing.T) {
	f := &fakeEngine{report: lockedReport()}
	m := scanned(t, f)

	m, cmd := send(t, m, key("c"))
	require.NotNil(t, cmd)
	assert.True(t, m.acting)
	assert.Equal(t, "working...", m.status())

	m, cmd = send(t, m, cmd())
	assert.Equal(t, []int{950}, f.closed)
	assert.False(t, m.acting)
	assert.Equal(t, "close pid 950: succeeded", m.message)
	assert.NotNil(t, cmd, "an action triggers a rescan")
}

func TestKillNeedsConfirmation(t *testing.T) {
	f := &fakeEngine{report: lockedReport()}
	m := scanned(t, f)

	m, _ = send(t, m, key("down"))
	m, cmd := send(t, m, key("x"))
	assert.Nil(t, cmd)
	assert.Equal(t, confirmKill, m.confirming)
	assert.Contains(t, m.View(), "kill PID 4821?")

	m, cmd = send(t, m, key("n"))
	assert.Nil(t, cmd)
	assert.Equal(t, confirmNone, m.confirming)
	assert.Empty(t, f.killed)

	m, _ = send(t, m, key("x"))
	m, cmd = send(t, m, key("y"))
	require.NotNil(t, cmd)
	m, _ = send(t, m, cmd())
	assert.Equal(t, []int{4821}, f.killed)
	assert.Equal(t, "force_kill pid 4821: succeeded", m.message)
}

func TestDeleteNeedsConfirmation(t *testing.T) {
	f := &fakeEngine{report: lockedReport()}
	m := scanned(t, f)

	m, _ = send(t, m, key("d"))
	assert.Equal(t, confirmDelete, m.confirming)
	assert.Contains(t, m.View(), "delete /data/report.xlsx?")

	m, cmd := send(t, m, key("y"))
	require.NotNil(t, cmd)
	m, _ = send(t, m, cmd())
	assert.Equal(t, []string{"/data/report.xlsx"}, f.deleted)
	assert.Equal(t, "delete /data/report.xlsx: succeeded", m.message)
}

func TestDeleteMissingTarget(t *testing.T) {
	f := &fakeEngine{report: &model.ScanReport{Target: model.TargetPath{Canonical: "/gone"}, Complete: true}}
	m := scanned(t, f)

	m, _ = send(t, m, key("d"))
	assert.Equal(t, confirmNone, m.confirming)
	assert.Equal(t, "does not exist", m.status())
}

func TestFilter(t *testing.T) {
	f := &fakeEngine{report: lockedReport()}
	m := scanned(t, f)

	m, _ = send(t, m, key("/"))
	require.True(t, m.filtering)
	m, _ = send(t, m, key("cmd:exc"))
	require.Len(t, m.table.Rows(), 1)
	assert.Equal(t, "4821", m.table.Rows()[0][colPID])

	m, _ = send(t, m, key("enter"))
	assert.False(t, m.filtering)
	assert.Contains(t, m.View(), "Filter: cmd:exc")

	// a rescan keeps the filter applied
	m, _ = send(t, m, scanMsg{Report: lockedReport()})
	assert.Len(t, m.table.Rows(), 1)
}

func TestSortReverse(t *testing.T) {
	f := &fakeEngine{report: lockedReport()}
	m := scanned(t, f)

	m, _ = send(t, m, key("R"))
	assert.Equal(t, "4821", m.table.Rows()[0][colPID])
	assert.Contains(t, m.table.Columns()[colPID].Title, "↓")
}

func TestDetails(t *testing.T) {
	f := &fakeEngine{report: lockedReport()}
	m := scanned(t, f)

	m, _ = send(t, m, key("enter"))
	assert.Equal(t, 950, m.detailsPID)
	assert.Contains(t, m.detailsTree, "init (pid 1)")
	assert.Contains(t, m.detailsTree, "bash (pid 950)")
	assert.Contains(t, m.View(), "esc: close details")

	// the holder is gone after a rescan
	m, _ = send(t, m, scanMsg{Report: &model.ScanReport{Target: model.TargetPath{Canonical: "/data/report.xlsx", Exists: true}, Complete: true}})
	assert.Contains(t, m.detailsTree, "pid 950 no longer holds")

	m, _ = send(t, m, key("esc"))
	assert.Empty(t, m.detailsTree)
}

func TestPathPrompt(t *testing.T) {
	f := &fakeEngine{report: lockedReport()}
	m := initialModel(context.Background(), f, "", Options{})
	require.True(t, m.choosing)
	assert.Contains(t, m.View(), "Which file or directory is locked?")

	m, cmd := send(t, m, key("enter"))
	assert.Nil(t, cmd, "an empty path is not scanned")
	assert.True(t, m.choosing)

	m, _ = send(t, m, key("/data/report.xlsx"))
	m, cmd = send(t, m, key("enter"))
	require.NotNil(t, cmd)
	assert.False(t, m.choosing)
	assert.Equal(t, "/data/report.xlsx", m.path)
	assert.True(t, m.scanning)
}

func TestTickPausedSkipsScan(t *testing.T) {
	f := &fakeEngine{report: lockedReport()}
	m := scanned(t, f)
	m.opts.Refresh = time.Second

	m, _ = send(t, m, key("p"))
	require.True(t, m.paused)
	m, cmd := send(t, m, tickMsg(time.Now()))
	assert.NotNil(t, cmd)
	assert.False(t, m.scanning)
	assert.Equal(t, 1, f.scans)

	m, _ = send(t, m, key("p"))
	m, _ = send(t, m, tickMsg(time.Now()))
	assert.True(t, m.scanning)
	assert.Equal(t, 2, f.scans)
}
