package expect

import (
	"fmt"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/repro/internal/workload"
)

func assertUnitValue(exp Expectation, obs Observation) *Mismatch {
	outcomes := matchOutcomes(obs, exp.Unit)
	subject := "unit " + exp.Unit
	if len(outcomes) == 0 {
		return &Mismatch{Type: exp.Type, Subject: subject, Expected: "unit to run", Actual: "no such unit"}
	}

	want := Normalize(substitute(exp.Value, obs))
	for _, o := range outcomes {
		subject := "unit " + o.UnitID
		switch o.Status {
		case workload.StatusSkipped:
			return &Mismatch{Type: exp.Type, Subject: subject, Expected: Render(want), Actual: "skipped"}
		case workload.StatusFaulted:
			return &Mismatch{Type: exp.Type, Subject: subject, Expected: Render(want), Actual: "fault " + formatFault(o.Fault)}
		}
		got := Normalize(o.Value)
		if !cmp.Equal(want, got) {
			return &Mismatch{
				Type:     exp.Type,
				Subject:  subject,
				Expected: Render(want),
				Actual:   Render(got),
				Diff:     cmp.Diff(want, got),
			}
		}
	}
	return nil
}

func assertUnitFault(exp Expectation, obs Observation) *Mismatch {
	outcomes := matchOutcomes(obs, exp.Unit)
	want := fmt.Sprintf("%s %q", exp.Kind, exp.Message)
	if len(outcomes) == 0 {
		return &Mismatch{Type: exp.Type, Subject: "unit " + exp.Unit, Expected: want, Actual: "no such unit"}
	}

	for _, o := range outcomes {
		subject := "unit " + o.UnitID
		switch {
		case o.Status == workload.StatusSkipped:
			return &Mismatch{Type: exp.Type, Subject: subject, Expected: want, Actual: "skipped"}
		case o.Fault == nil:
			return &Mismatch{Type: exp.Type, Subject: subject, Expected: want, Actual: "completed with " + Render(Normalize(o.Value))}
		case o.Fault.Kind != exp.Kind || o.Fault.Message != exp.Message:
			return &Mismatch{Type: exp.Type, Subject: subject, Expected: want, Actual: formatFault(o.Fault)}
		}
	}
	return nil
}

func assertState(exp Expectation, obs Observation) *Mismatch {
	subject := fmt.Sprintf("%s[%v]", obs.State.Name, exp.Key)
	rec, found := obs.State.Find(exp.Key)

	if exp.Absent {
		if found {
			return &Mismatch{Type: exp.Type, Subject: subject, Expected: "no record", Actual: Render(Normalize(map[string]any(rec)))}
		}
		return nil
	}
	if !found {
		return &Mismatch{Type: exp.Type, Subject: subject, Expected: "record to exist", Actual: "no record"}
	}

	want := Normalize(substitute(exp.Value, obs))
	var got any
	if exp.Field != "" {
		subject += "." + exp.Field
		v, ok := rec[exp.Field]
		if !ok {
			return &Mismatch{Type: exp.Type, Subject: subject, Expected: Render(want), Actual: "no such field"}
		}
		got = Normalize(v)
	} else {
		got = Normalize(map[string]any(rec))
	}

	if !cmp.Equal(want, got) {
		return &Mismatch{Type: exp.Type, Subject: subject, Expected: Render(want), Actual: Render(got), Diff: cmp.Diff(want, got)}
	}
	return nil
}

func assertRowCount(exp Expectation, obs Observation) *Mismatch {
	subject := obs.State.Name
	if exp.Count != nil {
		if obs.RowsAfter != *exp.Count {
			return &Mismatch{
				Type:     exp.Type,
				Subject:  subject,
				Expected: fmt.Sprintf("%d rows", *exp.Count),
				Actual:   fmt.Sprintf("%d rows", obs.RowsAfter),
			}
		}
		return nil
	}

	delta := obs.RowsAfter - obs.RowsBefore
	if delta != *exp.Delta {
		return &Mismatch{
			Type:     exp.Type,
			Subject:  subject,
			Expected: fmt.Sprintf("%+d rows (%d -> %d)", *exp.Delta, obs.RowsBefore, obs.RowsBefore+*exp.Delta),
			Actual:   fmt.Sprintf("%+d rows (%d -> %d)", delta, obs.RowsBefore, obs.RowsAfter),
		}
	}
	return nil
}

func assertCompleted(obs Observation) *Mismatch {
	if obs.Results == nil {
		return &Mismatch{Type: TypeCompletedUnits, Expected: "workload to run", Actual: "no results"}
	}
	total := len(obs.Results.Outcomes)
	if obs.Results.Completed != total {
		return &Mismatch{
			Type:     TypeCompletedUnits,
			Expected: fmt.Sprintf("%d of %d units completed", total, total),
			Actual:   fmt.Sprintf("%d of %d units completed", obs.Results.Completed, total),
		}
	}
	return nil
}

func assertNoFaults(obs Observation) *Mismatch {
	if obs.Results == nil {
		return nil
	}
	faults := obs.Results.Faults()
	if len(faults) == 0 {
		return nil
	}
	first := faults[0]
	return &Mismatch{
		Type:     TypeNoFaults,
		Subject:  "unit " + first.UnitID,
		Expected: "no faults",
		Actual:   fmt.Sprintf("%d faulted, first %s", len(faults), formatFault(first.Fault)),
	}
}

func substitute(v any, obs Observation) any {
	if s, ok := v.(string); ok && s == Fanout {
		return obs.fanout()
	}
	return v
}
