package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/repro/internal/config"
	"github.com/roach88/repro/internal/harness"
	"github.com/roach88/repro/internal/ledger"
	"github.com/roach88/repro/internal/runenv"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs runenv.RunIDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>...",
		Short: "Run reproduction scenarios",
		Long: `Run one or more reproduction scenarios and report their verdicts.

Run parameters come from the environment:
  REPRO_DB_ADAPTER     sqlite3 | sqlite | postgres (default sqlite3)
  REPRO_DB_NAME        database name (default repro_bug_report)
  REPRO_DATABASE_URL   postgres admin URL
  REPRO_PARALLEL_QTY   default parallel fan-out (default 3)
  REPRO_LOCK_MODE      off | write | verify | auto (default auto)
  REPRO_LEDGER         record every run in this ledger file

Exit codes:
  0 - Expectations satisfied or defect reproduced
  1 - Expectation mismatch
  2 - Setup failure or command error
  3 - Defect signature no longer reproduces

Example:
  repro run scenarios/request_log.yaml
  REPRO_PARALLEL_QTY=8 repro run scenarios/*.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args, cmd)
		},
	}

	return cmd
}

func runScenarios(opts *RunOptions, files []string, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := opts.newLogger(cmd.ErrOrStderr(), cfg)
	formatter := opts.formatter(cmd)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var led *ledger.Ledger
	if cfg.Ledger != "" {
		led, err = ledger.Open(cfg.Ledger)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open ledger", err)
		}
		defer func() {
			if closeErr := led.Close(); closeErr != nil {
				logger.Error("error closing ledger", "error", closeErr)
			}
		}()
	}

	reports := make([]*harness.Report, 0, len(files))
	codes := make([]int, 0, len(files))
	for _, file := range files {
		formatter.VerboseLog("Running %s", file)
		report := runOne(ctx, opts, cfg, logger, file)

		if led != nil {
			if _, err := led.Record(ctx, report); err != nil {
				return WrapExitError(ExitCommandError, "failed to record run", err)
			}
		}
		reports = append(reports, report)
		codes = append(codes, report.ExitCode())
	}

	worst := worstExit(codes)
	failed := 0
	for _, r := range reports {
		if !r.Passed() {
			failed++
		}
	}

	if opts.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: reports}
		if worst != ExitSuccess {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    worstErrCode(reports),
				Message: fmt.Sprintf("%d of %d scenario(s) did not pass", failed, len(reports)),
			}
		}
		if err := formatter.Respond(resp); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		for _, r := range reports {
			mark := "✓"
			if !r.Passed() {
				mark = "✗"
			}
			fmt.Fprintf(w, "%s %s", mark, r.Summary())
		}
	}

	if worst != ExitSuccess {
		return NewExitError(worst, fmt.Sprintf("%d of %d scenario(s) did not pass", failed, len(reports)))
	}
	return nil
}

func runOne(ctx context.Context, opts *RunOptions, cfg config.Config, logger *slog.Logger, file string) *harness.Report {
	sc, err := harness.LoadScenario(file)
	if err != nil {
		name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		logger.Error("scenario did not load", "file", file, "error", err)
		return harness.FailedReport(name, harness.StageLoad, err)
	}

	runOpts := []harness.Option{
		harness.WithConfig(cfg),
		harness.WithLogger(logger),
	}
	if opts.RunIDs != nil {
		runOpts = append(runOpts, harness.WithRunIDs(opts.RunIDs))
	}

	// A setup failure is carried by the report's verdict.
	report, _ := harness.Run(ctx, sc, runOpts...)
	return report
}

// worstErrCode returns the JSON error code of the most severe report.
func worstErrCode(reports []*harness.Report) string {
	var worst *harness.Report
	for _, r := range reports {
		if worst == nil || severity(r.ExitCode()) > severity(worst.ExitCode()) {
			worst = r
		}
	}
	if worst == nil {
		return ErrCodeGeneric
	}
	return verdictErrCode(worst.Verdict)
}
