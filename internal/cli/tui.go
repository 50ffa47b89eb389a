package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/pranshuparmar/witl/internal/tui"
)

// refreshInterval is how often the interactive mode rescans on its own.
const refreshInterval = 2 * time.Second

func newTUICmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tui [path]",
		Short: "Browse and release the holders of a path interactively",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) > 0 {
				path = args[0]
			}
			return a.runTUI(cmd.Context(), path)
		},
	}
}

func (a *app) runTUI(ctx context.Context, path string) error {
	return tui.Run(ctx, a.eng, path, tui.Options{
		Deadline:    a.cfg.Scan.Deadline,
		MaxAttempts: a.cfg.Delete.MaxAttempts,
		Backoff:     a.cfg.Delete.Backoff,
		Refresh:     refreshInterval,
	})
}
