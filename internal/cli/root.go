// Package cli wires the witl commands: configuration, logging and metrics
// around an engine, and output for whatever the engine reports.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/thediveo/enumflag/v2"

	"github.com/pranshuparmar/witl/internal/config"
	"github.com/pranshuparmar/witl/internal/engine"
	"github.com/pranshuparmar/witl/internal/logging"
	"github.com/pranshuparmar/witl/internal/metrics"
	"github.com/pranshuparmar/witl/internal/output"
	"github.com/pranshuparmar/witl/internal/pathres"
)

// BuildInfo is injected into main at link time.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// Exit codes
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitLocked  = 2
)

// ExitError carries a non-zero exit code for an outcome that has already
// been reported to the user.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// flagKeys binds command-line flags to configuration keys. A flag only
// overrides the file and environment when it is set explicitly.
var flagKeys = map[string]string{
	"log-level":      "log.level",
	"log-file":       "log.file",
	"metrics-file":   "metrics.file",
	"format":         "output.format",
	"case-sensitive": "match.case_sensitive",
	"deadline":       "scan.deadline",
	"ancestry":       "scan.ancestry",
	"mmap":           "scan.include_mmap",
	"concurrency":    "scan.concurrency",
	"grace":          "remediation.grace",
	"attempts":       "delete.max_attempts",
	"backoff":        "delete.backoff.initial",
	"backoff-max":    "delete.backoff.max",
	"kill-holders":   "delete.kill_holders",
}

type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configFile string
	noColor    bool
	format     output.Format

	v       *viper.Viper
	cfg     *config.Config
	log     *slog.Logger
	closer  io.Closer
	metrics *metrics.Metrics
	eng     *engine.Engine
	color   bool

	// engineOpts are applied after the configured ones
	engineOpts []engine.Option
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{
		stdin:  stdin,
		stdout: stdout,
		stderr: output.NewSafeTerminalWriter(stderr),
	}
}

func newRootCmd(a *app, info BuildInfo) *cobra.Command {
	var interactive bool

	rootCmd := &cobra.Command{
		Use:   "witl [path]",
		Short: "Find and release the processes locking a file",
		Long: `witl lists the processes holding a file or directory open, asks them
to close it or kills them, and deletes the path once it is free.`,
		Args:              cobra.MaximumNArgs(1),
		Version:           info.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !interactive {
				return cmd.Help()
			}
			path := ""
			if len(args) > 0 {
				path = args[0]
			}
			return a.runTUI(cmd.Context(), path)
		},
	}
	rootCmd.SetVersionTemplate(fmt.Sprintf("witl %s (commit %s, built %s)\n", info.Version, info.Commit, info.Date))
	rootCmd.SetIn(a.stdin)
	rootCmd.SetOut(a.stdout)
	rootCmd.SetErr(a.stderr)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&a.configFile, "config", "c", "", "config file (default is "+config.ConfigFile()+")")
	pf.String("log-level", logging.LevelWarn, "log level: DEBUG, INFO, WARN or ERROR")
	pf.String("log-file", "", "write the JSON log to this file instead of stderr")
	pf.String("metrics-file", "", "write Prometheus metrics to this file after the command")
	pf.BoolVar(&a.noColor, "no-color", false, "disable colorized output")
	pf.Bool("case-sensitive", false, "match paths case-sensitively")
	pf.VarP(enumflag.New(&a.format, "format", output.FormatIDs, enumflag.EnumCaseInsensitive),
		"format", "o", "output format: text, json or yaml")

	rootCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "interactive TUI mode")

	rootCmd.AddCommand(
		newScanCmd(a),
		newCloseCmd(a),
		newKillCmd(a),
		newDeleteCmd(a),
		newDiagnoseCmd(a),
		newTUICmd(a),
	)
	return rootCmd
}

// setup loads the configuration with the flags of the running command on
// top, then builds the logger, metrics and engine from it.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	v, err := config.New(a.configFile)
	if err != nil {
		return err
	}
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok && bindErr == nil {
			bindErr = v.BindPFlag(key, f)
		}
	})
	if bindErr != nil {
		return bindErr
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	if a.noColor {
		cfg.Output.Color = "never"
	}
	if a.format, err = output.ParseFormat(cfg.Output.Format); err != nil {
		return err
	}

	var log *slog.Logger
	if cfg.Log.File == "" {
		log = logging.NewWriter(a.stderr, cfg.Log.Level)
	} else if log, a.closer, err = logging.New(cfg.Log.File, cfg.Log.Level); err != nil {
		return err
	}

	a.v, a.cfg, a.log = v, cfg, log
	a.metrics = metrics.New()
	a.color = output.ColorEnabled(cfg.Output.Color, fileOf(a.stdout))

	opts := []engine.Option{
		engine.WithLogger(log),
		engine.WithMetrics(a.metrics),
		engine.WithMatcher(pathres.NewMatcher(cfg.Match.CaseSensitive)),
		engine.WithAncestry(cfg.Scan.Ancestry),
		engine.WithMmap(cfg.Scan.IncludeMmap),
		engine.WithDeadline(cfg.Scan.Deadline),
		engine.WithConcurrency(cfg.Scan.Concurrency),
		engine.WithGrace(cfg.Remediation.Grace),
		engine.WithDeleteDefaults(cfg.Delete.MaxAttempts, cfg.Delete.Backoff),
	}
	a.eng = engine.New(append(opts, a.engineOpts...)...)

	log.Debug("configuration loaded", "config_file", v.ConfigFileUsed(), "command", cmd.Name())
	return nil
}

// teardown flushes metrics and closes the log file. It runs after every
// command, failed ones included.
func (a *app) teardown() error {
	if a.cfg == nil {
		return nil
	}
	err := a.metrics.WriteFile(a.cfg.Metrics.File)
	if err != nil {
		err = fmt.Errorf("failed to write metrics: %w", err)
	}
	if a.closer != nil {
		err = errors.Join(err, a.closer.Close())
	}
	return err
}

func fileOf(w io.Writer) *os.File {
	f, _ := w.(*os.File)
	return f
}

// Execute runs witl with the process arguments and returns its exit code.
func Execute(ctx context.Context, info BuildInfo) int {
	return execute(ctx, newApp(os.Stdin, os.Stdout, os.Stderr), info, os.Args[1:])
}

func execute(ctx context.Context, a *app, info BuildInfo, args []string) int {
	cmd := newRootCmd(a, info)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if terr := a.teardown(); terr != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", terr)
		if err == nil {
			return ExitFailure
		}
	}
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	fmt.Fprintf(a.stderr, "Error: %v\n", err)
	fmt.Fprintln(a.stderr, "For usage and options, run: witl --help")
	return ExitFailure
}
