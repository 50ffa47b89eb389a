package cli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pranshuparmar/witl/internal/config"
	"github.com/pranshuparmar/witl/internal/engine"
	"github.com/pranshuparmar/witl/internal/output"
	"github.com/pranshuparmar/witl/pkg/model"
)

func newCloseCmd(a *app) *cobra.Command {
	var expectPath string

	cmd := &cobra.Command{
		Use:   "close <pid>",
		Short: "Ask a process to exit",
		Long: `Close asks the process to exit the way its platform allows (SIGTERM, or
WM_CLOSE to its windows) and waits for the grace period. It never kills.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := parsePID(args[0])
			if err != nil {
				return err
			}
			res := a.eng.RequestClose(cmd.Context(), pid, expectations(expectPath)...)
			return a.report(res)
		},
	}

	cmd.Flags().StringVar(&expectPath, "expect-path", "", "act only if the process still holds this path")
	cmd.Flags().Duration("grace", config.Default().Remediation.Grace, "how long to wait for the process to exit")
	return cmd
}

func newKillCmd(a *app) *cobra.Command {
	var (
		expectPath string
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "kill <pid>",
		Short: "Forcibly terminate a process",
		Long: `Kill terminates the process immediately. Unsaved work in it is lost, so
witl asks first unless --yes is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := parsePID(args[0])
			if err != nil {
				return err
			}
			if !yes && !confirm(a.stdin, a.stderr, fmt.Sprintf("Kill PID %d? Unsaved work will be lost.", pid)) {
				fmt.Fprintln(a.stderr, "Aborted.")
				return &ExitError{Code: ExitFailure}
			}
			res := a.eng.RequestForceKill(cmd.Context(), pid, expectations(expectPath)...)
			return a.report(res)
		},
	}

	cmd.Flags().StringVar(&expectPath, "expect-path", "", "act only if the process still holds this path")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

// report writes a remediation result and turns an unsuccessful outcome into
// a failing exit status.
func (a *app) report(res model.RemediationResult) error {
	if a.format != output.FormatText {
		if err := output.WriteStructured(a.stdout, a.format, res); err != nil {
			return err
		}
	} else {
		output.RenderResult(a.stdout, res, a.color)
	}
	if !res.Outcome.OK() {
		return &ExitError{Code: ExitFailure}
	}
	return nil
}

func expectations(path string) []engine.Expect {
	if path == "" {
		return nil
	}
	return []engine.Expect{engine.ExpectHolding(path)}
}

func parsePID(s string) (int, error) {
	pid, err := strconv.Atoi(s)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid %q", s)
	}
	return pid, nil
}

// confirm asks a yes/no question; anything but y or yes is a no.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(out)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
