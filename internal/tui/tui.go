package tui

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pranshuparmar/witl/internal/engine"
	"github.com/pranshuparmar/witl/internal/output"
	"github.com/pranshuparmar/witl/pkg/model"
)

var baseStyle = lipgloss.NewStyle().
	BorderStyle(lipgloss.NormalBorder()).
	BorderForeground(lipgloss.Color("240"))

// Engine is the part of the engine the interactive mode drives.
type Engine interface {
	ScanAsync(ctx context.Context, path string, deadline time.Duration) <-chan engine.ScanOutcome
	RequestClose(ctx context.Context, pid int, expect ...engine.Expect) model.RemediationResult
	RequestForceKill(ctx context.Context, pid int, expect ...engine.Expect) model.RemediationResult
	Delete(ctx context.Context, path string, maxAttempts int, policy engine.BackoffPolicy, opts ...engine.DeleteOption) (model.RemediationResult, error)
}

// Options tune scans and deletes started from the interactive mode.
type Options struct {
	Deadline    time.Duration
	MaxAttempts int
	Backoff     engine.BackoffPolicy
	// Refresh rescans on this interval; 0 disables it
	Refresh time.Duration
}

type tickMsg time.Time

type scanMsg engine.ScanOutcome

type actionMsg struct {
	result model.RemediationResult
	err    error
}

type confirmKind int

const (
	confirmNone confirmKind = iota
	confirmKill
	confirmDelete
)

const (
	colPID = iota
	colProcess
	colUser
	colAccess
	colHandles
	colPath
)

type tuiModel struct {
	ctx  context.Context
	eng  Engine
	opts Options

	path        string
	pathInput   textinput.Model
	choosing    bool
	table       table.Model
	filterInput textinput.Model
	filtering   bool
	report      *model.ScanReport
	scanning    bool
	acting      bool
	paused      bool
	confirming  confirmKind
	targetPID   int
	detailsPID  int
	detailsTree string
	sortColumn  int
	sortAsc     bool
	message     string
	messageTime time.Time
	err         error
	width       int
	height      int
}

func initialModel(ctx context.Context, eng Engine, path string, opts Options) tuiModel {
	fi := textinput.New()
	fi.Placeholder = "Filter..."
	fi.CharLimit = 50
	fi.Width = 30

	pi := textinput.New()
	pi.Placeholder = "/path/to/file or directory"
	pi.CharLimit = 4096
	pi.Width = 60

	m := tuiModel{
		ctx:         ctx,
		eng:         eng,
		opts:        opts,
		path:        path,
		pathInput:   pi,
		filterInput: fi,
		sortAsc:     true,
		height:      30,
	}
	if path == "" {
		m.choosing = true
		m.pathInput.Focus()
	}
	m.initTable()
	return m
}

func (m *tuiModel) initTable() {
	columns := []table.Column{
		{Title: "PID", Width: 8},
		{Title: "Process", Width: 20},
		{Title: "User", Width: 12},
		{Title: "Access", Width: 10},
		{Title: "Handles", Width: 8},
		{Title: "Path", Width: 50},
	}

	// Add sort indicator
	if m.sortColumn < len(columns) {
		indicator := " ↑"
		if !m.sortAsc {
			indicator = " ↓"
		}
		columns[m.sortColumn].Title += indicator
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(max(m.height-15, 3)),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(true)
	t.SetStyles(s)

	m.table = t
	m.updateRows()
}

func (m tuiModel) Init() tea.Cmd {
	if m.choosing {
		return textinput.Blink
	}
	return tea.Batch(m.tick(), rescan)
}

// rescanMsg asks Update to start a scan; Init cannot record one itself.
type rescanMsg struct{}

func rescan() tea.Msg { return rescanMsg{} }

func (m tuiModel) tick() tea.Cmd {
	if m.opts.Refresh <= 0 {
		return nil
	}
	return tea.Tick(m.opts.Refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// scan starts an asynchronous scan and delivers its outcome as a scanMsg.
func (m *tuiModel) scan() tea.Cmd {
	if m.scanning || m.path == "" {
		return nil
	}
	m.scanning = true
	ch := m.eng.ScanAsync(m.ctx, m.path, m.opts.Deadline)
	return func() tea.Msg {
		return scanMsg(<-ch)
	}
}

func (m *tuiModel) act(action model.Action, pid int) tea.Cmd {
	m.acting = true
	ctx, eng, opts, path := m.ctx, m.eng, m.opts, m.path

	expect := []engine.Expect{engine.ExpectHolding(path)}
	if h, ok := m.report.Holder(pid); ok {
		expect = append(expect, engine.ExpectStartedAt(h.Process.StartedAt))
	}
	return func() tea.Msg {
		switch action {
		case model.ActionClose:
			return actionMsg{result: eng.RequestClose(ctx, pid, expect...)}
		case model.ActionForceKill:
			return actionMsg{result: eng.RequestForceKill(ctx, pid, expect...)}
		}
		res, err := eng.Delete(ctx, path, opts.MaxAttempts, opts.Backoff)
		return actionMsg{result: res, err: err}
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	if m.choosing {
		if key, ok := msg.(tea.KeyMsg); ok {
			switch key.String() {
			case "ctrl+c", "esc":
				return m, tea.Quit
			case "enter":
				if p := strings.TrimSpace(m.pathInput.Value()); p != "" {
					m.path = p
					m.choosing = false
					m.pathInput.Blur()
					scan := m.scan()
					return m, tea.Batch(m.tick(), scan)
				}
				return m, nil
			}
		}
		m.pathInput, cmd = m.pathInput.Update(msg)
		return m, cmd
	}

	if m.confirming != confirmNone {
		if key, ok := msg.(tea.KeyMsg); ok {
			switch key.String() {
			case "y", "Y":
				kind, pid := m.confirming, m.targetPID
				m.confirming, m.targetPID = confirmNone, 0
				action := model.ActionForceKill
				if kind == confirmDelete {
					action = model.ActionDelete
				}
				cmd = m.act(action, pid)
				return m, cmd
			case "n", "N", "esc":
				m.confirming, m.targetPID = confirmNone, 0
				return m, nil
			}
			return m, nil
		}
	}

	if m.filtering {
		switch msg := msg.(type) {
		case tea.KeyMsg:
			switch msg.String() {
			case "enter", "esc":
				m.filtering = false
				m.filterInput.Blur()
				m.updateRows()
				return m, nil
			}
		}
		m.filterInput, cmd = m.filterInput.Update(msg)
		m.updateRows()
		return m, cmd
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "down", "j", "k", "pgup", "pgdown", "home", "end":
			m.detailsPID = 0
			m.detailsTree = ""
		case "esc":
			m.detailsPID = 0
			m.detailsTree = ""
			return m, nil
		case "p":
			m.paused = !m.paused
			return m, nil
		case "/":
			m.filtering = true
			m.filterInput.Focus()
			return m, nil
		case "s":
			m.sortColumn = (m.sortColumn + 1) % len(m.table.Columns())
			m.sortAsc = true
			m.initTable()
			return m, nil
		case "R":
			m.sortAsc = !m.sortAsc
			m.initTable()
			return m, nil
		case "S":
			m.saveSnapshot()
			return m, nil
		case "r":
			cmd = m.scan()
			return m, cmd
		case "c":
			if pid := m.selectedPID(); pid > 0 && !m.acting {
				cmd = m.act(model.ActionClose, pid)
				return m, cmd
			}
			return m, nil
		case "x":
			if pid := m.selectedPID(); pid > 0 && !m.acting {
				m.confirming = confirmKill
				m.targetPID = pid
			}
			return m, nil
		case "d":
			if m.report != nil && m.report.Target.Exists && !m.acting {
				m.confirming = confirmDelete
			}
			return m, nil
		case "enter":
			if pid := m.selectedPID(); pid > 0 {
				m.detailsPID = pid
				m.updateDetails()
			}
			return m, nil
		}
	case tickMsg:
		if m.paused || m.acting {
			return m, m.tick()
		}
		cmd = m.scan()
		return m, tea.Batch(m.tick(), cmd)
	case rescanMsg:
		cmd = m.scan()
		return m, cmd
	case scanMsg:
		m.scanning = false
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.report = msg.Report
		m.updateRows()
		m.updateDetails()
	case actionMsg:
		m.acting = false
		if msg.err != nil {
			m.setMessage("Error: " + msg.err.Error())
		} else {
			m.setMessage(msg.result.String())
		}
		cmd = m.scan()
		return m, cmd
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetHeight(max(m.height-15, 3))
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *tuiModel) setMessage(s string) {
	m.message = s
	m.messageTime = time.Now()
}

func (m tuiModel) selectedPID() int {
	selected := m.table.SelectedRow()
	if len(selected) == 0 {
		return 0
	}
	pid, _ := strconv.Atoi(selected[colPID])
	return pid
}

func (m *tuiModel) updateRows() {
	var rows []table.Row
	filterRaw := strings.ToLower(m.filterInput.Value())
	filterPrefix := ""
	filterValue := filterRaw

	if strings.Contains(filterRaw, ":") {
		parts := strings.SplitN(filterRaw, ":", 2)
		filterPrefix = parts[0]
		filterValue = parts[1]
	}

	var holders []model.ProcessLockInfo
	if m.report != nil {
		holders = m.report.Holders
	}
	for _, h := range holders {
		row := holderRow(h)

		if filterValue != "" {
			match := false
			switch filterPrefix {
			case "pid":
				match = strings.Contains(row[colPID], filterValue)
			case "cmd":
				match = strings.Contains(strings.ToLower(row[colProcess]), filterValue)
			case "user":
				match = strings.Contains(strings.ToLower(row[colUser]), filterValue)
			case "path":
				match = strings.Contains(strings.ToLower(row[colPath]), filterValue)
			case "":
				for _, f := range row {
					if strings.Contains(strings.ToLower(f), filterValue) {
						match = true
						break
					}
				}
			}
			if !match {
				continue
			}
		}

		rows = append(rows, row)
	}

	// Sorting
	if len(rows) > 0 && m.sortColumn < len(m.table.Columns()) {
		sort.SliceStable(rows, func(i, j int) bool {
			valI := rows[i][m.sortColumn]
			valJ := rows[j][m.sortColumn]

			// Numeric sort for PID and handle count
			if m.sortColumn == colPID || m.sortColumn == colHandles {
				numI, _ := strconv.Atoi(valI)
				numJ, _ := strconv.Atoi(valJ)
				if m.sortAsc {
					return numI < numJ
				}
				return numI > numJ
			}

			if m.sortAsc {
				return valI < valJ
			}
			return valI > valJ
		})
	}

	m.table.SetRows(rows)
}

// holderRow summarizes a holder in one table row. Access is the widest mode
// among its handles; Path is the first handle's path.
func holderRow(h model.ProcessLockInfo) table.Row {
	user := h.Process.User
	if user == "" {
		user = "unknown"
	}

	var read, write bool
	path := ""
	for _, rec := range h.Handles {
		switch rec.Access {
		case model.AccessRead:
			read = true
		case model.AccessWrite:
			write = true
		case model.AccessReadWrite:
			read, write = true, true
		}
		if path == "" {
			path = rec.Path()
			if path == "" {
				path = rec.RawName
			}
		}
	}
	access := "-"
	switch {
	case read && write:
		access = string(model.AccessReadWrite)
	case write:
		access = string(model.AccessWrite)
	case read:
		access = string(model.AccessRead)
	}

	name := h.Process.Command
	if name == "" {
		name = "unknown"
	}
	return table.Row{
		strconv.Itoa(h.PID()),
		output.SanitizeLine(name),
		output.SanitizeLine(user),
		access,
		strconv.Itoa(len(h.Handles)),
		output.SanitizeLine(path),
	}
}

func (m *tuiModel) updateDetails() {
	if m.detailsPID == 0 {
		return
	}

	h, ok := m.report.Holder(m.detailsPID)
	if !ok {
		m.detailsTree = fmt.Sprintf("pid %d no longer holds %s", m.detailsPID, output.SanitizeLine(m.path))
		return
	}

	var b bytes.Buffer
	output.PrintTree(&b, h, false)
	output.PrintHandles(&b, h, false)
	for _, w := range h.Warnings {
		fmt.Fprintf(&b, "  ! %s\n", output.SanitizeLine(w))
	}
	m.detailsTree = strings.TrimRight(b.String(), "\n")
}

func (m *tuiModel) saveSnapshot() {
	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("witl_snapshot_%s.md", timestamp)

	var content strings.Builder
	content.WriteString("# witl Snapshot - " + time.Now().Format(time.RFC1123) + "\n\n")
	content.WriteString("Target: `" + m.path + "`\n\n")

	if m.detailsTree != "" {
		content.WriteString("## Holder Details (PID " + strconv.Itoa(m.detailsPID) + ")\n")
		content.WriteString("```\n" + m.detailsTree + "\n```\n\n")
	}

	cols := m.table.Columns()
	for i, col := range cols {
		content.WriteString("| " + col.Title + " ")
		if i == len(cols)-1 {
			content.WriteString("|\n")
		}
	}
	for i := range cols {
		content.WriteString("| --- ")
		if i == len(cols)-1 {
			content.WriteString("|\n")
		}
	}
	for _, row := range m.table.Rows() {
		for _, cell := range row {
			content.WriteString("| " + strings.ReplaceAll(cell, "|", `\|`) + " ")
		}
		content.WriteString("|\n")
	}

	if err := os.WriteFile(filename, []byte(content.String()), 0o644); err != nil {
		m.setMessage("Error saving snapshot: " + err.Error())
	} else {
		m.setMessage("Snapshot saved to " + filename)
	}
}

func (m tuiModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("\nError: %s\n\nPress q to quit", output.SanitizeTerminal(m.err.Error()))
	}

	var b strings.Builder

	// Title
	title := "witl Interactive Mode"
	if m.paused {
		title += " (PAUSED)"
	}
	b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("57")).Bold(true).Render(title) + "\n\n")

	if m.choosing {
		b.WriteString(" Which file or directory is locked?\n\n " + m.pathInput.View() + "\n\n")
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Render("  enter: scan • esc: quit") + "\n")
		return b.String()
	}

	// Target and status
	b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Render(" "+output.SanitizeLine(m.path)) + "  ")
	b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Render(m.status()))

	// Sort info
	if m.sortColumn < len(m.table.Columns()) {
		colName := m.table.Columns()[m.sortColumn].Title
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Render(fmt.Sprintf("  Sort: [s] %s", colName)))
	}
	b.WriteString("\n\n")

	// Filter
	if m.filtering {
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("57")).Render(" / ") + m.filterInput.View() + "\n")
	} else if m.filterInput.Value() != "" {
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Render(" Filter: "+m.filterInput.Value()) + "\n")
	} else {
		b.WriteString("\n")
	}

	// Table
	b.WriteString(baseStyle.Render(m.table.View()) + "\n")

	// Message (action feedback)
	if m.message != "" && time.Since(m.messageTime) < 5*time.Second {
		b.WriteString("\n" + lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57")).
			Padding(0, 1).
			Render(" "+output.SanitizeLine(m.message)+" ") + "\n")
	}

	// Confirmation
	if m.confirming != confirmNone {
		prompt := fmt.Sprintf(" Are you sure you want to kill PID %d? [y/n] ", m.targetPID)
		if m.confirming == confirmDelete {
			prompt = fmt.Sprintf(" Are you sure you want to delete %s? [y/n] ", output.SanitizeLine(m.path))
		}
		b.WriteString("\n" + lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("160")).
			Bold(true).
			Padding(0, 1).
			Render(prompt) + "\n")
	}

	// Details
	if m.detailsTree != "" && m.confirming == confirmNone {
		b.WriteString("\n" + lipgloss.NewStyle().Foreground(lipgloss.Color("57")).Bold(true).Render(" Details: ") + "\n" + m.detailsTree + "\n")
	}

	// Help
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	help := "\n  q: quit • r: rescan • c: close • x: kill • d: delete • /: filter • s: sort • R: reverse • S: snapshot • p: pause • enter: details"
	if m.detailsPID != 0 {
		help += " • esc: close details"
	}
	b.WriteString(helpStyle.Render(help) + "\n")

	return b.String()
}

func (m tuiModel) status() string {
	switch {
	case m.acting:
		return "working..."
	case m.scanning && m.report == nil:
		return "scanning..."
	case m.report == nil:
		return ""
	case !m.report.Target.Exists:
		return "does not exist"
	}
	s := fmt.Sprintf("%d holder(s)", len(m.report.Holders))
	if !m.report.Complete {
		s += fmt.Sprintf(", incomplete (%d skipped)", len(m.report.Skipped))
	}
	if m.scanning {
		s += ", rescanning..."
	}
	return s
}

// Run starts the interactive mode on path, asking for one when it is empty.
func Run(ctx context.Context, eng Engine, path string, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(initialModel(ctx, eng, path, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
