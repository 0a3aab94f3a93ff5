package expect

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/repro/internal/fixture"
	"github.com/roach88/repro/internal/workload"
)

// Type selects what an expectation checks.
type Type string

const (
	TypeUnitValue      Type = "unit_value"
	TypeUnitFault      Type = "unit_fault"
	TypeState          Type = "state"
	TypeRowCount       Type = "row_count"
	TypeCompletedUnits Type = "completed_units"
	TypeNoFaults       Type = "no_faults"

	// TypeUnexpectedFault is never declared; it reports a fault no
	// unit_fault expectation accounted for.
	TypeUnexpectedFault Type = "unexpected_fault"
)

// Fanout, as an expected value, stands for the number of launched units.
const Fanout = "${fanout}"

// Expectation is one declared outcome.
type Expectation struct {
	Type Type `yaml:"type" json:"type"`

	// Unit names a unit for unit_value and unit_fault. A unit expanded by
	// fan-out is matched through all its copies.
	Unit string `yaml:"unit,omitempty" json:"unit,omitempty"`

	// Value is the expected unit value, field value or whole record.
	Value any `yaml:"value,omitempty" json:"value,omitempty"`

	// Kind and Message are the expected fault.
	Kind    string `yaml:"kind,omitempty" json:"kind,omitempty"`
	Message string `yaml:"message,omitempty" json:"message,omitempty"`

	// Key and Field address fixture state. Absent expects no record.
	Key    any    `yaml:"key,omitempty" json:"key,omitempty"`
	Field  string `yaml:"field,omitempty" json:"field,omitempty"`
	Absent bool   `yaml:"absent,omitempty" json:"absent,omitempty"`

	// Count is an absolute row count, Delta a change from before the
	// workload.
	Count *int64 `yaml:"count,omitempty" json:"count,omitempty"`
	Delta *int64 `yaml:"delta,omitempty" json:"delta,omitempty"`
}

// Validate checks that the fields required by the type are present.
func (e Expectation) Validate() error {
	switch e.Type {
	case TypeUnitValue:
		if e.Unit == "" {
			return errors.New("unit_value requires unit")
		}
	case TypeUnitFault:
		if e.Unit == "" || e.Kind == "" || e.Message == "" {
			return errors.New("unit_fault requires unit, kind and message")
		}
	case TypeState:
		if e.Key == nil {
			return errors.New("state requires key")
		}
		if e.Absent && (e.Field != "" || e.Value != nil) {
			return errors.New("state with absent takes no field or value")
		}
		if !e.Absent && e.Value == nil {
			return errors.New("state requires value or absent")
		}
	case TypeRowCount:
		if (e.Count == nil) == (e.Delta == nil) {
			return errors.New("row_count requires exactly one of count and delta")
		}
	case TypeCompletedUnits, TypeNoFaults:
	default:
		return fmt.Errorf("unknown expectation type %q", e.Type)
	}
	return nil
}

// Observation is everything the run observed.
type Observation struct {
	Results *workload.Results
	State   fixture.State

	// RowsBefore and RowsAfter are fixture record counts around the
	// workload.
	RowsBefore int64
	RowsAfter  int64
}

func (o Observation) fanout() int64 {
	if o.Results == nil {
		return 0
	}
	return int64(o.Results.Launched)
}

// Mismatch is a failed expectation. It is the normal negative outcome of a
// run, not an error in the harness.
type Mismatch struct {
	Type     Type   `json:"type"`
	Subject  string `json:"subject"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Diff     string `json:"diff,omitempty"`
}

func (m *Mismatch) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s", m.Type)
	if m.Subject != "" {
		fmt.Fprintf(&buf, " (%s)", m.Subject)
	}
	buf.WriteString("\n")
	fmt.Fprintf(&buf, "  Expected: %s\n", m.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", m.Actual)
	if m.Diff != "" {
		fmt.Fprintf(&buf, "  Diff (-expected +actual):\n%s", indent(m.Diff, "    "))
	}
	return buf.String()
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n") + "\n"
}

// Assert checks one expectation. It returns nil when the expectation
// holds.
func Assert(exp Expectation, obs Observation) *Mismatch {
	if err := exp.Validate(); err != nil {
		return &Mismatch{Type: exp.Type, Expected: "valid expectation", Actual: err.Error()}
	}

	switch exp.Type {
	case TypeUnitValue:
		return assertUnitValue(exp, obs)
	case TypeUnitFault:
		return assertUnitFault(exp, obs)
	case TypeState:
		return assertState(exp, obs)
	case TypeRowCount:
		return assertRowCount(exp, obs)
	case TypeCompletedUnits:
		return assertCompleted(obs)
	default:
		return assertNoFaults(obs)
	}
}

// AssertAll checks every expectation in order, then reports each fault
// that no unit_fault expectation names.
func AssertAll(exps []Expectation, obs Observation) []*Mismatch {
	var out []*Mismatch
	for _, e := range exps {
		if m := Assert(e, obs); m != nil {
			out = append(out, m)
		}
	}
	out = append(out, unexpectedFaults(exps, obs)...)
	return out
}

func unexpectedFaults(exps []Expectation, obs Observation) []*Mismatch {
	if obs.Results == nil {
		return nil
	}
	var out []*Mismatch
	for _, o := range obs.Results.Faults() {
		anticipated := false
		for _, e := range exps {
			if e.Type == TypeUnitFault && unitMatches(o.UnitID, e.Unit) {
				anticipated = true
				break
			}
		}
		if !anticipated {
			out = append(out, &Mismatch{
				Type:     TypeUnexpectedFault,
				Subject:  "unit " + o.UnitID,
				Expected: "no fault",
				Actual:   formatFault(o.Fault),
			})
		}
	}
	return out
}

// unitMatches reports whether an outcome id is the named unit or one of
// its fan-out copies (name#1, name#2, ...).
func unitMatches(id, name string) bool {
	return id == name || strings.HasPrefix(id, name+"#")
}

func matchOutcomes(obs Observation, name string) []workload.Outcome {
	if obs.Results == nil {
		return nil
	}
	var out []workload.Outcome
	for _, o := range obs.Results.Outcomes {
		if unitMatches(o.UnitID, name) {
			out = append(out, o)
		}
	}
	return out
}

func formatFault(f *workload.Fault) string {
	if f == nil {
		return "no fault"
	}
	return fmt.Sprintf("%s %q", f.Kind, f.Message)
}
