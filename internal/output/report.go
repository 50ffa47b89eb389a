package output

import (
	"fmt"
	"io"
	"time"

	"github.com/pranshuparmar/witl/pkg/model"
)

// RenderReport writes a scan report for people.
func RenderReport(w io.Writer, r *model.ScanReport, colorEnabled bool) {
	p := NewPrinter(w, colorEnabled)
	target := r.Target.Canonical

	switch {
	case !r.Target.Exists:
		p.Printf("%s: %sdoes not exist%s\n", target, p.c(colorDim), p.c(colorReset))
		return
	case !r.Locked():
		p.Printf("%s: %snot held by any process%s\n", target, p.c(colorGreen), p.c(colorReset))
	default:
		n := len(r.Holders)
		p.Printf("%s: %sheld by %d %s%s\n", target, p.c(colorRed), n, plural(n, "process", "processes"), p.c(colorReset))
	}

	for _, h := range r.Holders {
		p.Println()
		if len(h.Ancestry) > 0 || h.Source != nil {
			PrintTree(w, h, colorEnabled)
		} else {
			p.Printf("%s%s%s (%spid %d%s)\n", p.c(colorGreen), displayName(h.Process), p.c(colorReset), p.c(colorDim), h.PID(), p.c(colorReset))
		}
		if details := processDetails(h.Process); details != "" {
			p.Printf("  %s%s%s\n", p.c(colorDim), details, p.c(colorReset))
		}
		PrintHandles(w, h, colorEnabled)
		for _, warn := range h.Warnings {
			p.Printf("  %s! %s%s\n", p.c(colorYellow), warn, p.c(colorReset))
		}
	}

	renderCompleteness(p, r)
}

func processDetails(proc model.Process) string {
	var s string
	add := func(part string) {
		if s != "" {
			s += "  "
		}
		s += part
	}
	if proc.User != "" {
		add("user " + proc.User)
	}
	if !proc.StartedAt.IsZero() {
		add("started " + proc.StartedAt.Local().Format(time.DateTime))
	}
	if proc.AppType != "" && proc.AppType != "process" {
		add(proc.AppType)
	}
	if proc.Elevated != nil && *proc.Elevated {
		add("elevated")
	}
	return s
}

func renderCompleteness(p Printer, r *model.ScanReport) {
	if r.Complete {
		return
	}
	p.Println()
	switch {
	case r.Error != "":
		p.Printf("%sincomplete:%s handles could not be listed: %s\n", p.c(colorYellow), p.c(colorReset), r.Error)
	case r.Cancelled:
		p.Printf("%sincomplete:%s scan was cancelled\n", p.c(colorYellow), p.c(colorReset))
	case r.TimedOut:
		p.Printf("%sincomplete:%s scan hit its deadline\n", p.c(colorYellow), p.c(colorReset))
	}
	if n := len(r.Skipped); n > 0 {
		p.Printf("%sincomplete:%s %d %s could not be inspected, run elevated for a complete answer\n",
			p.c(colorYellow), p.c(colorReset), n, plural(n, "process", "processes"))
		for i, s := range r.Skipped {
			if i >= handleLimit {
				p.Printf("  ... and %d more\n", n-handleLimit)
				break
			}
			p.Printf("  %spid %d%s: %s\n", p.c(colorDim), s.PID, p.c(colorReset), s.Reason)
		}
	}
}

// RenderResult writes the outcome of a close, kill or delete.
func RenderResult(w io.Writer, res model.RemediationResult, colorEnabled bool) {
	p := NewPrinter(w, colorEnabled)

	for _, t := range res.Terminated {
		renderResultLine(p, t, "  ")
	}
	renderResultLine(p, res, "")
}

func renderResultLine(p Printer, res model.RemediationResult, indent string) {
	mark, color := "✓", colorGreen
	if !res.Outcome.OK() {
		mark, color = "✗", colorRed
	}

	subject := res.Path
	if res.PID > 0 {
		subject = fmt.Sprintf("pid %d", res.PID)
	}
	p.Printf("%s%s%s%s %s %s: %s", indent, p.c(color), mark, p.c(colorReset), string(res.Action), subject, string(res.Outcome))
	if res.Strategy != "" {
		p.Printf(" %s(%s)%s", p.c(colorDim), res.Strategy, p.c(colorReset))
	}
	if res.Action == model.ActionDelete && res.Attempts > 1 {
		p.Printf(" after %d attempts", res.Attempts)
	}
	p.Println()
	if res.Error != "" {
		p.Printf("%s  %s%s%s\n", indent, p.c(colorDim), res.Error, p.c(colorReset))
	}
}

// RenderDiagnosis lists why target cannot be deleted.
func RenderDiagnosis(w io.Writer, target model.TargetPath, reasons []string, colorEnabled bool) {
	p := NewPrinter(w, colorEnabled)
	if len(reasons) == 0 {
		p.Printf("%s: %snothing prevents deletion%s\n", target.Canonical, p.c(colorGreen), p.c(colorReset))
		return
	}
	p.Printf("%s:\n", target.Canonical)
	for _, r := range reasons {
		p.Printf("  %s-%s %s\n", p.c(colorRed), p.c(colorReset), r)
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
