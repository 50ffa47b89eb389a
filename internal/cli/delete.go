package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pranshuparmar/witl/internal/config"
	"github.com/pranshuparmar/witl/internal/engine"
	"github.com/pranshuparmar/witl/internal/output"
)

func newDeleteCmd(a *app) *cobra.Command {
	var force, yes bool
	d := config.Default()

	cmd := &cobra.Command{
		Use:   "delete <path>",
		Short: "Delete a file or directory, retrying while it is held",
		Long: `Delete removes the path, retrying with backoff while processes hold it.
With --kill-holders each holder is asked to close first; --force kills
them instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			c := a.cfg.Delete
			killHolders := c.KillHolders || force

			var opts []engine.DeleteOption
			if killHolders {
				verb := "Close"
				if force {
					verb = "Kill"
				}
				if !yes && !confirm(a.stdin, a.stderr, fmt.Sprintf("%s every process holding %s?", verb, output.SanitizeLine(path))) {
					fmt.Fprintln(a.stderr, "Aborted.")
					return &ExitError{Code: ExitFailure}
				}
				opts = append(opts, engine.WithKillHolders(force))
			}

			res, err := a.eng.Delete(cmd.Context(), path, c.MaxAttempts, c.Backoff, opts...)
			if err != nil {
				return err
			}
			return a.report(res)
		},
	}

	f := cmd.Flags()
	f.Int("attempts", d.Delete.MaxAttempts, "give up after this many attempts")
	f.Duration("backoff", d.Delete.Backoff.Initial, "wait before the second attempt, doubling after")
	f.Duration("backoff-max", d.Delete.Backoff.Max, "longest wait between attempts")
	f.Bool("kill-holders", d.Delete.KillHolders, "ask holders to close before each attempt")
	f.BoolVar(&force, "force", false, "kill holders instead of asking (implies --kill-holders)")
	f.BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newDiagnoseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose <path>",
		Short: "Explain why a path cannot be deleted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.eng.Diagnose(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.format != output.FormatText {
				return output.WriteStructured(a.stdout, a.format, d)
			}
			output.RenderDiagnosis(a.stdout, d.Target, d.Reasons, a.color)
			return nil
		},
	}
}
