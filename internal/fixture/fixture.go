package fixture

import (
	"cmp"
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"slices"

	"github.com/roach88/repro/internal/canon"
)

// Kind identifies the fixture variant.
type Kind string

const (
	KindObject Kind = "object"
	KindTable  Kind = "table"
)

// Record is one keyed record. Values are int64, string, bool or nil.
type Record map[string]any

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// MutateFunc computes the next record from the current one. found is false
// when no record exists for the key; returning a nil record leaves the
// fixture unchanged.
type MutateFunc func(cur Record, found bool) (Record, error)

// Fixture is the capability set every kind implements.
type Fixture interface {
	Kind() Kind
	Name() string

	// KeyField names the field records are keyed by.
	KeyField() string

	// CounterField names the integer field counter operations change.
	// Empty when the fixture declares none.
	CounterField() string

	// Reset drops all state, recreates the structure and reseeds.
	Reset(ctx context.Context) error

	// MutateLocked runs fn under the exclusive lock for key and stores the
	// result before releasing it.
	MutateLocked(ctx context.Context, key any, fn MutateFunc) (Record, error)

	// Mutate is MutateLocked without the lock.
	Mutate(ctx context.Context, key any, fn MutateFunc) (Record, error)

	Find(ctx context.Context, key any) (Record, bool, error)
	Count(ctx context.Context) (int64, error)

	// Snapshot returns every record ordered by key.
	Snapshot(ctx context.Context) (State, error)

	Close() error
}

// Caller is implemented by fixtures with invokable methods.
type Caller interface {
	Call(ctx context.Context, method string, args map[string]any) (any, error)
}

// State is a deterministic snapshot of a fixture.
type State struct {
	Kind    Kind     `json:"kind"`
	Name    string   `json:"name"`
	Key     string   `json:"key"`
	Records []Record `json:"records"`
}

// Find returns the record for key.
func (s State) Find(key any) (Record, bool) {
	k, err := NormalizeKey(key)
	if err != nil {
		return nil, false
	}
	for _, r := range s.Records {
		if rk, err := NormalizeKey(r[s.Key]); err == nil && rk == k {
			return r, true
		}
	}
	return nil, false
}

// CanonicalValue implements canon.Canonicaler. Null fields are omitted.
func (s State) CanonicalValue() any {
	records := make([]any, len(s.Records))
	for i, r := range s.Records {
		rec := make(map[string]any, len(r))
		for k, v := range r {
			if v != nil {
				rec[k] = v
			}
		}
		records[i] = rec
	}
	return map[string]any{
		"kind":    string(s.Kind),
		"name":    s.Name,
		"key":     s.Key,
		"records": records,
	}
}

var _ canon.Canonicaler = State{}

// NormalizeKey maps integer-like keys to int64 and leaves strings as they
// are, so 123, int64(123) and 123.0 address the same record.
func NormalizeKey(v any) (any, error) {
	switch k := v.(type) {
	case string:
		return k, nil
	case nil, bool:
		return nil, fmt.Errorf("invalid key %v", v)
	}
	n, err := toInt64(v)
	if err != nil {
		return nil, fmt.Errorf("invalid key: %w", err)
	}
	return n, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", n)
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.Abs(n) > 1<<53 {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int64(n), nil
	}
	return 0, fmt.Errorf("%v (%T) is not an integer", v, v)
}

// compareKeys orders integer keys before string keys.
func compareKeys(a, b any) int {
	ai, aInt := a.(int64)
	bi, bInt := b.(int64)
	switch {
	case aInt && bInt:
		return cmp.Compare(ai, bi)
	case aInt:
		return -1
	case bInt:
		return 1
	}
	as, _ := a.(string)
	bs, _ := b.(string)
	return cmp.Compare(as, bs)
}

func sortRecords(records []Record, key string) {
	slices.SortStableFunc(records, func(a, b Record) int {
		ak, _ := NormalizeKey(a[key])
		bk, _ := NormalizeKey(b[key])
		return compareKeys(ak, bk)
	})
}

// lockID maps a normalized key to the int4 range used by advisory locks.
func lockID(key any) int64 {
	if n, ok := key.(int64); ok && n >= math.MinInt32 && n <= math.MaxInt32 {
		return n
	}
	h := fnv.New32a()
	fmt.Fprint(h, key)
	return int64(int32(h.Sum32()))
}
