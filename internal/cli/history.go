package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/repro/internal/ledger"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Ledger string
}

// HistoryResult is the history command's payload.
type HistoryResult struct {
	Scenario  string           `json:"scenario"`
	Runs      []ledger.Entry   `json:"runs"`
	Flakiness ledger.Flakiness `json:"flakiness"`
}

func (r HistoryResult) String() string {
	var b strings.Builder
	if len(r.Runs) == 0 {
		fmt.Fprintf(&b, "No runs recorded for %s.", r.Scenario)
		return b.String()
	}
	fmt.Fprintf(&b, "%s: %d run(s)\n", r.Scenario, len(r.Runs))
	for _, e := range r.Runs {
		fmt.Fprintf(&b, "  #%d %s %-14s %s\n", e.Seq, e.RunID, e.Verdict, shortDigest(e.SnapshotDigest))
	}
	if r.Flakiness.Flaky {
		fmt.Fprintf(&b, "FLAKY: %d verdict(s) and %d distinct snapshot(s) across %d runs",
			r.Flakiness.Verdicts, r.Flakiness.Digests, r.Flakiness.Runs)
	} else {
		b.WriteString("stable: every run agreed")
	}
	return b.String()
}

func shortDigest(d string) string {
	const n = len("sha256:") + 12
	if len(d) > n {
		return d[:n]
	}
	return d
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history <scenario-name>",
		Short: "Show recorded runs of a scenario",
		Long: `List every recorded run of a scenario from the ledger and report whether
the runs disagree. A scenario whose verdict or snapshot changed between
runs is flaky; the command exits 1 for it.

Example:
  repro history request_log_locked --ledger ./repro-ledger.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Ledger, "ledger", "", "path to the ledger database (default: $REPRO_LEDGER)")

	return cmd
}

func runHistory(opts *HistoryOptions, scenario string, cmd *cobra.Command) error {
	path := opts.Ledger
	if path == "" {
		cfg, err := opts.loadConfig()
		if err != nil {
			return err
		}
		path = cfg.Ledger
	}
	if path == "" {
		return NewExitError(ExitCommandError, "no ledger configured (use --ledger or REPRO_LEDGER)")
	}

	led, err := ledger.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open ledger", err)
	}
	defer led.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	runs, err := led.History(ctx, scenario)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read history", err)
	}
	flaky, err := led.Flaky(ctx, scenario)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read history", err)
	}

	result := HistoryResult{Scenario: scenario, Runs: runs, Flakiness: flaky}
	formatter := opts.formatter(cmd)
	if flaky.Flaky {
		msg := fmt.Sprintf("%s is flaky", scenario)
		if opts.Format == "json" {
			if err := formatter.Respond(CLIResponse{
				Status: "error",
				Data:   result,
				Error:  &CLIError{Code: ErrCodeFlaky, Message: msg},
			}); err != nil {
				return err
			}
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), result)
		}
		return NewExitError(ExitFailure, msg)
	}
	return formatter.Success(result)
}
