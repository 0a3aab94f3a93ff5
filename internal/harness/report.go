package harness

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/repro/internal/canon"
	"github.com/roach88/repro/internal/expect"
	"github.com/roach88/repro/internal/fixture"
	"github.com/roach88/repro/internal/pin"
	"github.com/roach88/repro/internal/workload"
)

// Verdict is the judged outcome of a run.
type Verdict string

const (
	// VerdictSatisfied: expected_behavior and every expectation held.
	VerdictSatisfied Verdict = "satisfied"

	// VerdictMismatch: expected_behavior and an expectation failed.
	VerdictMismatch Verdict = "mismatch"

	// VerdictReproduced: defect_signature and every expectation held.
	VerdictReproduced Verdict = "reproduced"

	// VerdictNotReproduced: defect_signature and an expectation failed.
	VerdictNotReproduced Verdict = "not_reproduced"

	// VerdictSetupFailed: the run never reached the assertion stage.
	VerdictSetupFailed Verdict = "setup_failed"
)

// Exit codes for verdicts.
const (
	ExitOK            = 0
	ExitMismatch      = 1
	ExitSetupFailed   = 2
	ExitNotReproduced = 3
)

// ExitCode maps a verdict to a process exit code.
func (v Verdict) ExitCode() int {
	switch v {
	case VerdictSatisfied, VerdictReproduced:
		return ExitOK
	case VerdictMismatch:
		return ExitMismatch
	case VerdictNotReproduced:
		return ExitNotReproduced
	default:
		return ExitSetupFailed
	}
}

// TraceEvent is a unit start or end on the run's logical clock.
type TraceEvent struct {
	Type string `json:"type"`
	Unit string `json:"unit"`
	Seq  int64  `json:"seq"`
}

// Report is the outcome of one run.
type Report struct {
	Scenario   string             `json:"scenario"`
	Intent     Intent             `json:"intent"`
	RunID      string             `json:"run_id,omitempty"`
	Verdict    Verdict            `json:"verdict"`
	Resolution *pin.Resolution    `json:"resolution,omitempty"`
	Results    *workload.Results  `json:"results,omitempty"`
	State      fixture.State      `json:"state"`
	RowsBefore int64              `json:"rows_before"`
	RowsAfter  int64              `json:"rows_after"`
	Mismatches []*expect.Mismatch `json:"mismatches,omitempty"`

	// Setup is set when the verdict is setup_failed.
	Setup *SetupError `json:"setup,omitempty"`
}

func newReport(sc *Scenario) *Report {
	return &Report{
		Scenario: sc.Name,
		Intent:   sc.EffectiveIntent(),
		State:    fixture.State{Kind: sc.Fixture.Kind, Name: sc.Fixture.Name, Key: sc.Fixture.Key, Records: []fixture.Record{}},
	}
}

func (r *Report) setupFailed(se *SetupError) {
	r.Verdict = VerdictSetupFailed
	r.Setup = se
}

func (r *Report) judge(intent Intent) {
	held := len(r.Mismatches) == 0
	switch {
	case intent == IntentDefectSignature && held:
		r.Verdict = VerdictReproduced
	case intent == IntentDefectSignature:
		r.Verdict = VerdictNotReproduced
	case held:
		r.Verdict = VerdictSatisfied
	default:
		r.Verdict = VerdictMismatch
	}
}

// ExitCode returns the process exit code for the report's verdict.
func (r *Report) ExitCode() int {
	return r.Verdict.ExitCode()
}

// Passed reports whether the run met its declared intent.
func (r *Report) Passed() bool {
	return r.ExitCode() == ExitOK
}

// Trace returns unit start and end events ordered by logical time.
func (r *Report) Trace() []TraceEvent {
	if r.Results == nil {
		return nil
	}
	var events []TraceEvent
	for _, o := range r.Results.Outcomes {
		if o.Status == workload.StatusSkipped {
			continue
		}
		events = append(events,
			TraceEvent{Type: "start", Unit: o.UnitID, Seq: o.StartSeq},
			TraceEvent{Type: "end", Unit: o.UnitID, Seq: o.EndSeq},
		)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	return events
}

// Summary renders the report for humans.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", r.Scenario, r.Verdict)
	if r.Setup != nil {
		fmt.Fprintf(&b, "  %v\n", r.Setup)
		return b.String()
	}
	if r.Resolution != nil {
		for _, p := range r.Resolution.Pins {
			fmt.Fprintf(&b, "  pin %s %s\n", p.Name, p.Version)
		}
	}
	if r.Results != nil {
		fmt.Fprintf(&b, "  workload: %s, %d/%d units completed\n", r.Results.Mode, r.Results.Completed, r.Results.Launched)
	}
	fmt.Fprintf(&b, "  rows: %d -> %d\n", r.RowsBefore, r.RowsAfter)
	for _, m := range r.Mismatches {
		b.WriteString(m.Error())
	}
	return b.String()
}

// Snapshot returns the deterministic part of the report as canonical JSON.
// Run ids, sequence numbers, digests and diffs are left out, as are unit
// values in parallel mode, whose interleaving is not reproducible.
func (r *Report) Snapshot() ([]byte, error) {
	snap := map[string]any{
		"scenario": r.Scenario,
		"intent":   string(r.Intent),
		"verdict":  string(r.Verdict),
	}

	if r.Setup != nil {
		snap["setup"] = map[string]any{
			"stage": string(r.Setup.Stage),
			"error": r.Setup.Err.Error(),
		}
		return canon.Marshal(snap)
	}

	pins := []any{}
	if r.Resolution != nil {
		for _, p := range r.Resolution.Pins {
			pins = append(pins, map[string]any{"name": p.Name, "version": p.Version})
		}
	}
	snap["pins"] = pins

	if r.Results != nil {
		outcomes := make([]any, 0, len(r.Results.Outcomes))
		for _, o := range r.Results.Outcomes {
			entry := map[string]any{
				"unit":   o.UnitID,
				"status": string(o.Status),
			}
			if o.Status == workload.StatusCompleted && r.Results.Mode == workload.Sequential {
				entry["value"] = expect.Render(expect.Normalize(o.Value))
			}
			if o.Fault != nil {
				entry["fault"] = map[string]any{"kind": o.Fault.Kind, "message": o.Fault.Message}
			}
			outcomes = append(outcomes, entry)
		}
		snap["workload"] = map[string]any{
			"mode":      string(r.Results.Mode),
			"launched":  r.Results.Launched,
			"completed": r.Results.Completed,
			"outcomes":  outcomes,
		}
	}

	snap["state"] = r.State
	snap["rows"] = map[string]any{"before": r.RowsBefore, "after": r.RowsAfter}

	mismatches := make([]any, 0, len(r.Mismatches))
	for _, m := range r.Mismatches {
		mismatches = append(mismatches, map[string]any{
			"type":     string(m.Type),
			"subject":  m.Subject,
			"expected": m.Expected,
			"actual":   m.Actual,
		})
	}
	snap["mismatches"] = mismatches

	return canon.Marshal(snap)
}

// FailedReport returns a setup_failed report for a scenario that never
// ran, typically because its file could not be loaded.
func FailedReport(name string, stage Stage, err error) *Report {
	return &Report{
		Scenario: name,
		Intent:   IntentExpectedBehavior,
		Verdict:  VerdictSetupFailed,
		Setup:    &SetupError{Stage: stage, Err: err},
	}
}
