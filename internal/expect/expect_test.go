package expect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/repro/internal/fixture"
	"github.com/roach88/repro/internal/workload"
)

const parseMessage = `unexpected token at '{ "foo": 84e }'`

func int64p(n int64) *int64 { return &n }

func results(outcomes ...workload.Outcome) *workload.Results {
	r := &workload.Results{Mode: workload.Sequential, Outcomes: outcomes}
	for i := range r.Outcomes {
		r.Outcomes[i].Index = i
		if r.Outcomes[i].Status != workload.StatusSkipped {
			r.Launched++
			r.Completed++
		}
	}
	return r
}

func completed(id string, v any) workload.Outcome {
	return workload.Outcome{UnitID: id, Status: workload.StatusCompleted, Value: v}
}

func faulted(id, kind, msg string) workload.Outcome {
	return workload.Outcome{UnitID: id, Status: workload.StatusFaulted, Fault: &workload.Fault{Kind: kind, Message: msg}}
}

func requestLogState() fixture.State {
	return fixture.State{
		Kind: fixture.KindTable,
		Name: "request_logs",
		Key:  "user_id",
		Records: []fixture.Record{
			{"user_id": int64(111), "requests_count": int64(25)},
			{"user_id": int64(123), "requests_count": int64(3)},
		},
	}
}

func TestExpectation_Validate(t *testing.T) {
	tests := []struct {
		name    string
		exp     Expectation
		wantErr string
	}{
		{"unit_value ok", Expectation{Type: TypeUnitValue, Unit: "u"}, ""},
		{"unit_value no unit", Expectation{Type: TypeUnitValue}, "requires unit"},
		{"unit_fault no message", Expectation{Type: TypeUnitFault, Unit: "u", Kind: "K"}, "requires unit, kind and message"},
		{"state no key", Expectation{Type: TypeState, Value: 1}, "requires key"},
		{"state no value", Expectation{Type: TypeState, Key: 1}, "requires value or absent"},
		{"state absent with field", Expectation{Type: TypeState, Key: 1, Absent: true, Field: "f"}, "takes no field"},
		{"row_count both", Expectation{Type: TypeRowCount, Count: int64p(1), Delta: int64p(1)}, "exactly one"},
		{"row_count neither", Expectation{Type: TypeRowCount}, "exactly one"},
		{"completed ok", Expectation{Type: TypeCompletedUnits}, ""},
		{"unknown", Expectation{Type: "eventually"}, "unknown expectation type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.exp.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAssert_FaultExactMatch(t *testing.T) {
	obs := Observation{Results: results(faulted("parse", "ParserError", parseMessage))}

	exact := Expectation{Type: TypeUnitFault, Unit: "parse", Kind: "ParserError", Message: parseMessage}
	assert.Nil(t, Assert(exact, obs))

	substring := exact
	substring.Message = "unexpected token"
	m := Assert(substring, obs)
	require.NotNil(t, m)
	assert.Equal(t, TypeUnitFault, m.Type)
	assert.Equal(t, `ParserError "unexpected token"`, m.Expected)
	assert.Equal(t, `ParserError "unexpected token at '{ \"foo\": 84e }'"`, m.Actual)

	wrongKind := exact
	wrongKind.Kind = "EncodingError"
	assert.NotNil(t, Assert(wrongKind, obs))
}

func TestAssert_FaultExpectedButCompleted(t *testing.T) {
	obs := Observation{Results: results(completed("parse", map[string]any{"foo": 84.0}))}
	m := Assert(Expectation{Type: TypeUnitFault, Unit: "parse", Kind: "ParserError", Message: parseMessage}, obs)
	require.NotNil(t, m)
	assert.Equal(t, `completed with {"foo":84}`, m.Actual)
}

func TestAssert_UnitValue(t *testing.T) {
	obs := Observation{Results: results(
		completed("plus", int64(3)),
		completed("obj", map[string]any{"a": 1.0, "b": []any{int32(2)}}),
	)}

	assert.Nil(t, Assert(Expectation{Type: TypeUnitValue, Unit: "plus", Value: 3}, obs))
	assert.Nil(t, Assert(Expectation{Type: TypeUnitValue, Unit: "plus", Value: 3.0}, obs))
	assert.Nil(t, Assert(Expectation{Type: TypeUnitValue, Unit: "obj", Value: map[string]any{"a": 1, "b": []any{2}}}, obs))

	m := Assert(Expectation{Type: TypeUnitValue, Unit: "plus", Value: 4}, obs)
	require.NotNil(t, m)
	assert.Equal(t, "4", m.Expected)
	assert.Equal(t, "3", m.Actual)
	assert.NotEmpty(t, m.Diff)

	m = Assert(Expectation{Type: TypeUnitValue, Unit: "plus", Value: "3"}, obs)
	require.NotNil(t, m, "string and integer never match")

	m = Assert(Expectation{Type: TypeUnitValue, Unit: "missing", Value: 1}, obs)
	require.NotNil(t, m)
	assert.Equal(t, "no such unit", m.Actual)
}

func TestAssert_UnitValueOverFanout(t *testing.T) {
	obs := Observation{Results: results(
		completed("request#1", int64(1)),
		completed("request#2", int64(1)),
		completed("requester", int64(9)),
	)}
	assert.Nil(t, Assert(Expectation{Type: TypeUnitValue, Unit: "request", Value: 1}, obs))

	obs.Results.Outcomes[1].Value = int64(2)
	m := Assert(Expectation{Type: TypeUnitValue, Unit: "request", Value: 1}, obs)
	require.NotNil(t, m)
	assert.Equal(t, "unit request#2", m.Subject)
}

func TestAssert_UnitValueSkippedOrFaulted(t *testing.T) {
	obs := Observation{Results: results(
		faulted("a", "RuntimeError", "boom"),
		workload.Outcome{UnitID: "b", Status: workload.StatusSkipped},
	)}
	m := Assert(Expectation{Type: TypeUnitValue, Unit: "a", Value: 1}, obs)
	require.NotNil(t, m)
	assert.Equal(t, `fault RuntimeError "boom"`, m.Actual)

	m = Assert(Expectation{Type: TypeUnitValue, Unit: "b", Value: 1}, obs)
	require.NotNil(t, m)
	assert.Equal(t, "skipped", m.Actual)
}

func TestAssert_State(t *testing.T) {
	obs := Observation{
		Results: results(completed("request#1", 1), completed("request#2", 2), completed("request#3", 3)),
		State:   requestLogState(),
	}

	assert.Nil(t, Assert(Expectation{Type: TypeState, Key: 123, Field: "requests_count", Value: Fanout}, obs))
	assert.Nil(t, Assert(Expectation{Type: TypeState, Key: 111, Field: "requests_count", Value: 25}, obs))
	assert.Nil(t, Assert(Expectation{Type: TypeState, Key: 111, Value: map[string]any{"user_id": 111, "requests_count": 25}}, obs))
	assert.Nil(t, Assert(Expectation{Type: TypeState, Key: 999, Absent: true}, obs))

	m := Assert(Expectation{Type: TypeState, Key: 123, Field: "requests_count", Value: 2}, obs)
	require.NotNil(t, m)
	assert.Equal(t, "request_logs[123].requests_count", m.Subject)
	assert.Equal(t, "2", m.Expected)
	assert.Equal(t, "3", m.Actual)

	m = Assert(Expectation{Type: TypeState, Key: 999, Field: "requests_count", Value: 1}, obs)
	require.NotNil(t, m)
	assert.Equal(t, "no record", m.Actual)

	m = Assert(Expectation{Type: TypeState, Key: 111, Absent: true}, obs)
	require.NotNil(t, m)
	assert.Equal(t, `{"requests_count":25,"user_id":111}`, m.Actual)

	m = Assert(Expectation{Type: TypeState, Key: 111, Field: "hits", Value: 1}, obs)
	require.NotNil(t, m)
	assert.Equal(t, "no such field", m.Actual)
}

func TestAssert_RowCount(t *testing.T) {
	obs := Observation{State: requestLogState(), RowsBefore: 1, RowsAfter: 2}

	assert.Nil(t, Assert(Expectation{Type: TypeRowCount, Delta: int64p(1)}, obs))
	assert.Nil(t, Assert(Expectation{Type: TypeRowCount, Count: int64p(2)}, obs))

	m := Assert(Expectation{Type: TypeRowCount, Delta: int64p(0)}, obs)
	require.NotNil(t, m)
	assert.Equal(t, "+0 rows (1 -> 1)", m.Expected)
	assert.Equal(t, "+1 rows (1 -> 2)", m.Actual)

	m = Assert(Expectation{Type: TypeRowCount, Count: int64p(3)}, obs)
	require.NotNil(t, m)
	assert.Equal(t, "3 rows", m.Expected)
}

func TestAssert_CompletedUnits(t *testing.T) {
	obs := Observation{Results: results(completed("a", 1), completed("b", 2))}
	assert.Nil(t, Assert(Expectation{Type: TypeCompletedUnits}, obs))

	obs = Observation{Results: results(faulted("a", "K", "m"), workload.Outcome{UnitID: "b", Status: workload.StatusSkipped})}
	m := Assert(Expectation{Type: TypeCompletedUnits}, obs)
	require.NotNil(t, m)
	assert.Equal(t, "2 of 2 units completed", m.Expected)
	assert.Equal(t, "1 of 2 units completed", m.Actual)
}

func TestAssert_NoFaults(t *testing.T) {
	obs := Observation{Results: results(completed("a", 1))}
	assert.Nil(t, Assert(Expectation{Type: TypeNoFaults}, obs))

	obs = Observation{Results: results(completed("a", 1), faulted("b", "K", "m"))}
	m := Assert(Expectation{Type: TypeNoFaults}, obs)
	require.NotNil(t, m)
	assert.Equal(t, `1 faulted, first K "m"`, m.Actual)
}

func TestAssertAll_UnexpectedFault(t *testing.T) {
	obs := Observation{Results: results(
		faulted("parse", "ParserError", parseMessage),
		faulted("other", "RuntimeError", "boom"),
	)}
	exps := []Expectation{{Type: TypeUnitFault, Unit: "parse", Kind: "ParserError", Message: parseMessage}}

	ms := AssertAll(exps, obs)
	require.Len(t, ms, 1)
	assert.Equal(t, TypeUnexpectedFault, ms[0].Type)
	assert.Equal(t, "unit other", ms[0].Subject)
	assert.Equal(t, `RuntimeError "boom"`, ms[0].Actual)
}

func TestAssert_InvalidExpectationIsMismatch(t *testing.T) {
	m := Assert(Expectation{Type: TypeRowCount}, Observation{})
	require.NotNil(t, m)
	assert.Equal(t, "valid expectation", m.Expected)
}

func TestMismatch_Error(t *testing.T) {
	m := &Mismatch{Type: TypeUnitFault, Subject: "unit parse", Expected: `ParserError "a"`, Actual: `ParserError "b"`}
	assert.Equal(t, "Assertion failed: unit_fault (unit parse)\n  Expected: ParserError \"a\"\n  Actual: ParserError \"b\"\n", m.Error())

	m.Diff = "-a\n+b\n"
	assert.Contains(t, m.Error(), "  Diff (-expected +actual):\n    -a\n    +b\n")
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"int", 5, int64(5)},
		{"uint8", uint8(5), int64(5)},
		{"whole float", 5.0, int64(5)},
		{"fraction", 5.5, 5.5},
		{"record", fixture.Record{"n": 1}, map[string]any{"n": int64(1)}},
		{"typed slice", []int{1, 2}, []any{int64(1), int64(2)}},
		{"nested", map[string]any{"a": []any{1.0, "x"}}, map[string]any{"a": []any{int64(1), "x"}}},
		{"nil", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}
