package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/repro/internal/harness"
	"github.com/roach88/repro/internal/pin"
)

// LockOptions holds flags for the lock command.
type LockOptions struct {
	*RootOptions
	Lockfile string
}

// LockResult is the lock command's payload.
type LockResult struct {
	Scenario string            `json:"scenario"`
	Lockfile string            `json:"lockfile"`
	Source   string            `json:"source"`
	Digest   string            `json:"digest"`
	Pins     []pin.ResolvedPin `json:"pins"`
}

func (r LockResult) String() string {
	s := fmt.Sprintf("Wrote %s (%d pins, %s)", r.Lockfile, len(r.Pins), r.Digest)
	for _, p := range r.Pins {
		s += fmt.Sprintf("\n  %s %s", p.Name, p.Version)
	}
	return s
}

// NewLockCommand creates the lock command.
func NewLockCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LockOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "lock <scenario.yaml>",
		Short: "Resolve pins and rewrite the lockfile",
		Long: `Resolve a scenario's dependency pins against its package index and
(re)write the lockfile. Later runs in verify or auto mode reject any drift
from it.

Example:
  repro lock scenarios/json_float_parse.yaml
  repro lock scenarios/json_float_parse.yaml --lockfile /tmp/oj.lock`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLock(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Lockfile, "lockfile", "", "lockfile path (default: the scenario's lockfile)")

	return cmd
}

func runLock(opts *LockOptions, file string, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	formatter := opts.formatter(cmd)

	sc, err := harness.LoadScenario(file)
	if err != nil {
		_ = formatter.Error(ErrCodeInvalid, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := harness.Lock(ctx, sc, opts.Lockfile,
		harness.WithConfig(cfg),
		harness.WithLogger(opts.newLogger(cmd.ErrOrStderr(), cfg)),
	)
	if err != nil {
		_ = formatter.Error(ErrCodeSetup, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to lock dependencies", err)
	}

	path := opts.Lockfile
	if path == "" {
		path = sc.LockfilePath()
	}
	return formatter.Success(LockResult{
		Scenario: sc.Name,
		Lockfile: path,
		Source:   res.Source,
		Digest:   res.Digest,
		Pins:     res.Pins,
	})
}
