package ops

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/repro/internal/fixture"
)

func builtins() map[string]Func {
	return map[string]Func{
		"counter.increment":          counterIncrement(true),
		"counter.increment_unlocked": counterIncrement(false),
		"row.count":                  rowCount,
		"row.find":                   rowFind,
		"json.parse":                 jsonParse,
		"object.call":                objectCall,
	}
}

// ParserError is the fault of a failed json.parse.
type ParserError struct {
	Input string
	Err   error
}

func (e *ParserError) Error() string {
	return fmt.Sprintf("unexpected token at '%s'", e.Input)
}

func (e *ParserError) Unwrap() error     { return e.Err }
func (e *ParserError) FaultKind() string { return "ParserError" }

// RecordNotFoundError is the fault of row.find on a missing key.
type RecordNotFoundError struct {
	Fixture string
	Field   string
	Key     any
}

func (e *RecordNotFoundError) Error() string {
	return fmt.Sprintf("Couldn't find %s with %s=%v", e.Fixture, e.Field, e.Key)
}

func (e *RecordNotFoundError) FaultKind() string { return "RecordNotFound" }

// ArgumentError reports a missing or mistyped operation argument.
type ArgumentError struct {
	Op      string
	Message string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *ArgumentError) FaultKind() string { return "ArgumentError" }

func requireFixture(op string, call Call) error {
	if call.Fixture == nil {
		return &ArgumentError{Op: op, Message: "no fixture"}
	}
	return nil
}

func keyArg(op string, call Call) (any, error) {
	v, ok := call.Args["key"]
	if !ok {
		return nil, &ArgumentError{Op: op, Message: "missing argument key"}
	}
	return v, nil
}

func stringArg(op string, args map[string]any, name string) (string, error) {
	v, ok := args[name]
	if !ok {
		return "", &ArgumentError{Op: op, Message: "missing argument " + name}
	}
	s, ok := v.(string)
	if !ok {
		return "", &ArgumentError{Op: op, Message: fmt.Sprintf("argument %s must be a string, got %T", name, v)}
	}
	return s, nil
}

// counterIncrement finds the record for key and increments its counter,
// creating the record with a count of 1 when absent. It returns the new
// count.
func counterIncrement(locked bool) Func {
	op := "counter.increment"
	if !locked {
		op = "counter.increment_unlocked"
	}

	return func(ctx context.Context, call Call) (any, error) {
		if err := requireFixture(op, call); err != nil {
			return nil, err
		}
		counter := call.Fixture.CounterField()
		if counter == "" {
			return nil, &ArgumentError{Op: op, Message: "fixture " + call.Fixture.Name() + " declares no counter"}
		}
		key, err := keyArg(op, call)
		if err != nil {
			return nil, err
		}

		inc := func(cur fixture.Record, found bool) (fixture.Record, error) {
			if !found {
				return fixture.Record{counter: int64(1)}, nil
			}
			n, ok := cur[counter].(int64)
			if !ok {
				return nil, fmt.Errorf("counter %s is %T, not an integer", counter, cur[counter])
			}
			return fixture.Record{counter: n + 1}, nil
		}

		mutate := call.Fixture.Mutate
		if locked {
			mutate = call.Fixture.MutateLocked
		}
		rec, err := mutate(ctx, key, inc)
		if err != nil {
			return nil, err
		}
		if call.Logger != nil {
			call.Logger.Debug("counter incremented", "key", key, counter, rec[counter])
		}
		return rec[counter], nil
	}
}

func rowCount(ctx context.Context, call Call) (any, error) {
	if err := requireFixture("row.count", call); err != nil {
		return nil, err
	}
	return call.Fixture.Count(ctx)
}

func rowFind(ctx context.Context, call Call) (any, error) {
	if err := requireFixture("row.find", call); err != nil {
		return nil, err
	}
	key, err := keyArg("row.find", call)
	if err != nil {
		return nil, err
	}
	rec, ok, err := call.Fixture.Find(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &RecordNotFoundError{Fixture: call.Fixture.Name(), Field: call.Fixture.KeyField(), Key: key}
	}
	return map[string]any(rec), nil
}

// jsonParse decodes input as a single JSON document.
func jsonParse(_ context.Context, call Call) (any, error) {
	input, err := stringArg("json.parse", call.Args, "input")
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal([]byte(input), &v); err != nil {
		return nil, &ParserError{Input: input, Err: err}
	}
	return v, nil
}

func objectCall(ctx context.Context, call Call) (any, error) {
	if err := requireFixture("object.call", call); err != nil {
		return nil, err
	}
	method, err := stringArg("object.call", call.Args, "method")
	if err != nil {
		return nil, err
	}

	var kwargs map[string]any
	if raw, ok := call.Args["args"]; ok && raw != nil {
		kwargs, ok = raw.(map[string]any)
		if !ok {
			return nil, &ArgumentError{Op: "object.call", Message: fmt.Sprintf("argument args must be a mapping, got %T", raw)}
		}
	}

	caller, ok := call.Fixture.(fixture.Caller)
	if !ok {
		return nil, &fixture.NoMethodError{Fixture: call.Fixture.Name(), Method: method}
	}
	return caller.Call(ctx, method, kwargs)
}

