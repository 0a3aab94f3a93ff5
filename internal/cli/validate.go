package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/repro/internal/harness"
)

// FileValidation is the validation outcome of one scenario file.
type FileValidation struct {
	File     string `json:"file"`
	Scenario string `json:"scenario,omitempty"`
	Valid    bool   `json:"valid"`
	Error    string `json:"error,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

func (r ValidationResult) String() string {
	var b strings.Builder
	for _, f := range r.Files {
		if f.Valid {
			fmt.Fprintf(&b, "✓ %s (%s)\n", f.File, f.Scenario)
		} else {
			fmt.Fprintf(&b, "✗ %s\n  %s\n", f.File, f.Error)
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario.yaml>...",
		Short: "Validate scenarios without running them",
		Long: `Check scenario files against the scenario schema and structural rules
without resolving dependencies or building fixtures.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, files []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	result := ValidationResult{Valid: true, Files: make([]FileValidation, 0, len(files))}
	for _, file := range files {
		formatter.VerboseLog("Validating %s", file)
		fv := FileValidation{File: file, Valid: true}
		sc, err := harness.LoadScenario(file)
		if err != nil {
			fv.Valid = false
			fv.Error = err.Error()
			result.Valid = false
		} else {
			fv.Scenario = sc.Name
		}
		result.Files = append(result.Files, fv)
	}

	if !result.Valid {
		invalid := 0
		for _, f := range result.Files {
			if !f.Valid {
				invalid++
			}
		}
		msg := fmt.Sprintf("%d of %d scenario(s) invalid", invalid, len(files))
		if opts.Format == "json" {
			if err := formatter.Error(ErrCodeInvalid, msg, result); err != nil {
				return err
			}
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), result)
		}
		return NewExitError(ExitFailure, msg)
	}

	return formatter.Success(result)
}
