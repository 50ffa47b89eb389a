package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pranshuparmar/witl/internal/config"
	"github.com/pranshuparmar/witl/internal/output"
	"github.com/pranshuparmar/witl/pkg/model"
)

func newScanCmd(a *app) *cobra.Command {
	var short, pids, failOnLocks bool
	d := config.Default()

	cmd := &cobra.Command{
		Use:   "scan <path>...",
		Short: "List the processes holding a file or directory",
		Long: `Scan lists every process with an open handle on each path. For a
directory, handles on anything beneath it count too.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reports, err := a.eng.ScanMany(cmd.Context(), args, a.cfg.Scan.Deadline)
			if err != nil {
				return err
			}

			switch {
			case a.format != output.FormatText:
				var v any = reports
				if len(reports) == 1 {
					v = reports[0]
				}
				if err := output.WriteStructured(a.stdout, a.format, v); err != nil {
					return err
				}
			case pids:
				output.RenderPIDs(a.stdout, reports...)
			default:
				for i, r := range reports {
					if i > 0 {
						fmt.Fprintln(a.stdout)
					}
					if short {
						if len(reports) > 1 {
							fmt.Fprintf(a.stdout, "%s:\n", output.SanitizeLine(r.Target.Canonical))
						}
						output.RenderShort(a.stdout, r, a.color)
					} else {
						output.RenderReport(a.stdout, r, a.color)
					}
				}
			}

			if failOnLocks && anyLocked(reports) {
				return &ExitError{Code: ExitLocked}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.Duration("deadline", d.Scan.Deadline, "give up scanning after this long (0 for no limit)")
	f.Bool("ancestry", d.Scan.Ancestry, "show the parent chain and source of each holder")
	f.Bool("mmap", d.Scan.IncludeMmap, "include memory-mapped files")
	f.Int("concurrency", d.Scan.Concurrency, "scan at most this many paths at once")
	f.BoolVar(&short, "short", false, "one line per holder")
	f.BoolVar(&pids, "pids", false, "print only the holder PIDs")
	f.BoolVar(&failOnLocks, "fail-on-locks", false, "exit with status 2 when any path is held")
	cmd.MarkFlagsMutuallyExclusive("short", "pids")
	return cmd
}

func anyLocked(reports []*model.ScanReport) bool {
	for _, r := range reports {
		if r.Locked() {
			return true
		}
	}
	return false
}
