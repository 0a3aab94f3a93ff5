package fixture

import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"

	"github.com/Shopify/go-lua"
)

// luaMethods holds method bodies for an object fixture. Each body runs as
// a chunk with the keyword arguments in the global table kw and returns
// the method's value:
//
//	methods:
//	  plus: "return kw.a + kw.b"
type luaMethods struct {
	fixture string
	bodies  map[string]string
}

// compileMethods loads every body once to surface syntax errors at setup.
func compileMethods(fixture string, bodies map[string]string) (*luaMethods, error) {
	for _, name := range slices.Sorted(maps.Keys(bodies)) {
		l := lua.NewState()
		if err := lua.LoadBuffer(l, bodies[name], "="+name, ""); err != nil {
			return nil, fmt.Errorf("method %s: %w", name, err)
		}
	}
	return &luaMethods{fixture: fixture, bodies: bodies}, nil
}

func (m *luaMethods) has(name string) bool {
	if m == nil {
		return false
	}
	_, ok := m.bodies[name]
	return ok
}

// call runs a method in a fresh interpreter, so concurrent calls share
// nothing.
func (m *luaMethods) call(_ context.Context, name string, args map[string]any) (any, error) {
	l := lua.NewState()
	lua.OpenLibraries(l)

	if err := pushValue(l, map[string]any(args)); err != nil {
		return nil, &ScriptError{Method: name, Err: err}
	}
	l.SetGlobal("kw")

	if err := lua.LoadBuffer(l, m.bodies[name], "="+name, ""); err != nil {
		return nil, &ScriptError{Method: name, Err: err}
	}
	if err := l.ProtectedCall(0, 1, 0); err != nil {
		return nil, &ScriptError{Method: name, Err: err}
	}

	v, err := toValue(l, -1)
	l.Pop(1)
	if err != nil {
		return nil, &ScriptError{Method: name, Err: err}
	}
	return v, nil
}

func pushValue(l *lua.State, v any) error {
	switch x := v.(type) {
	case nil:
		l.PushNil()
	case bool:
		l.PushBoolean(x)
	case string:
		l.PushString(x)
	case float64:
		l.PushNumber(x)
	case float32:
		l.PushNumber(float64(x))
	case []any:
		l.NewTable()
		for i, e := range x {
			if err := pushValue(l, e); err != nil {
				return err
			}
			l.RawSetInt(-2, i+1)
		}
	case map[string]any:
		l.NewTable()
		for _, k := range slices.Sorted(maps.Keys(x)) {
			if err := pushValue(l, x[k]); err != nil {
				return err
			}
			l.SetField(-2, k)
		}
	default:
		n, err := toInt64(v)
		if err != nil {
			return fmt.Errorf("unsupported argument %T", v)
		}
		l.PushInteger(int(n))
	}
	return nil
}

func toValue(l *lua.State, idx int) (any, error) {
	switch l.TypeOf(idx) {
	case lua.TypeNil:
		return nil, nil
	case lua.TypeBoolean:
		return l.ToBoolean(idx), nil
	case lua.TypeNumber:
		n, _ := l.ToNumber(idx)
		if n == math.Trunc(n) && math.Abs(n) <= 1<<53 {
			return int64(n), nil
		}
		return n, nil
	case lua.TypeString:
		s, _ := l.ToString(idx)
		return s, nil
	case lua.TypeTable:
		return tableValue(l, l.AbsIndex(idx))
	}
	return nil, fmt.Errorf("unsupported return type %s", lua.TypeNameOf(l, idx))
}

// tableValue converts a sequence to []any and anything else to a map with
// string keys.
func tableValue(l *lua.State, idx int) (any, error) {
	fields := map[string]any{}
	var ints []int
	allInts := true

	l.PushNil()
	for l.Next(idx) {
		var key string
		switch l.TypeOf(-2) {
		case lua.TypeString:
			key, _ = l.ToString(-2)
			allInts = false
		case lua.TypeNumber:
			n, _ := l.ToNumber(-2)
			key = strconv.FormatFloat(n, 'f', -1, 64)
			if n == math.Trunc(n) && n >= 1 {
				ints = append(ints, int(n))
			} else {
				allInts = false
			}
		default:
			kind := lua.TypeNameOf(l, -2)
			l.Pop(2)
			return nil, fmt.Errorf("unsupported table key type %s", kind)
		}

		v, err := toValue(l, -1)
		if err != nil {
			l.Pop(2)
			return nil, err
		}
		fields[key] = v
		l.Pop(1)
	}

	if allInts && len(ints) > 0 {
		slices.Sort(ints)
		if ints[len(ints)-1] == len(ints) {
			seq := make([]any, len(ints))
			for i := range seq {
				seq[i] = fields[strconv.Itoa(i+1)]
			}
			return seq, nil
		}
	}
	return fields, nil
}
