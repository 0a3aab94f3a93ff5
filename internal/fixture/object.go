package fixture

import (
	"context"
	"fmt"
	"runtime"
	"sync"
)

// object is the in-memory fixture kind.
//
// mu guards the record map for single reads and writes only. Per-key locks
// serialize MutateLocked; Mutate reads, yields and writes back under
// separate critical sections, so concurrent Mutates can lose updates
// without racing on memory.
type object struct {
	spec    Spec
	methods *luaMethods

	mu      sync.Mutex
	records map[any]Record
	keyMu   map[any]*sync.Mutex

	// afterRead runs between the read and the write of an unlocked
	// mutation. Tests use it to force an interleaving.
	afterRead func()
}

func newObject(spec Spec) (*object, error) {
	methods, err := compileMethods(spec.Name, spec.Methods)
	if err != nil {
		return nil, err
	}
	return &object{spec: spec, methods: methods}, nil
}

func (o *object) Kind() Kind           { return KindObject }
func (o *object) Name() string         { return o.spec.Name }
func (o *object) KeyField() string     { return o.spec.Key }
func (o *object) CounterField() string { return o.spec.Counter }

func (o *object) Reset(context.Context) error {
	records := make(map[any]Record, len(o.spec.Seed))
	for i, seed := range o.spec.Seed {
		rec, key, err := o.normalize(seed)
		if err != nil {
			return fmt.Errorf("seed %d: %w", i, err)
		}
		records[key] = rec
	}

	o.mu.Lock()
	o.records = records
	o.keyMu = make(map[any]*sync.Mutex)
	o.mu.Unlock()
	return nil
}

// normalize checks a record against the declared fields and converts
// integer values to int64.
func (o *object) normalize(rec Record) (Record, any, error) {
	key, err := NormalizeKey(rec[o.spec.Key])
	if err != nil {
		return nil, nil, err
	}
	out := Record{o.spec.Key: key}
	for f, v := range rec {
		if f == o.spec.Key {
			continue
		}
		if !o.hasField(f) {
			return nil, nil, fmt.Errorf("unknown field %q", f)
		}
		if v == nil {
			out[f] = nil
			continue
		}
		n, err := toInt64(v)
		if err != nil {
			return nil, nil, fmt.Errorf("field %s: %w", f, err)
		}
		out[f] = n
	}
	return out, key, nil
}

func (o *object) hasField(name string) bool {
	for _, f := range o.spec.Fields {
		if f == name {
			return true
		}
	}
	return false
}

func (o *object) keyLock(key any) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	m, ok := o.keyMu[key]
	if !ok {
		m = &sync.Mutex{}
		o.keyMu[key] = m
	}
	return m
}

func (o *object) read(key any) (Record, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.records[key]
	return rec.Clone(), ok
}

func (o *object) write(key any, rec Record) error {
	next, nextKey, err := o.normalize(rec)
	if err != nil {
		return err
	}
	if nextKey != key {
		return fmt.Errorf("mutation changed key from %v to %v", key, nextKey)
	}
	o.mu.Lock()
	o.records[key] = next
	o.mu.Unlock()
	return nil
}

func (o *object) MutateLocked(ctx context.Context, key any, fn MutateFunc) (Record, error) {
	k, err := NormalizeKey(key)
	if err != nil {
		return nil, err
	}
	m := o.keyLock(k)
	m.Lock()
	defer m.Unlock()
	return o.mutate(k, fn)
}

func (o *object) Mutate(ctx context.Context, key any, fn MutateFunc) (Record, error) {
	k, err := NormalizeKey(key)
	if err != nil {
		return nil, err
	}
	return o.mutate(k, fn)
}

func (o *object) mutate(key any, fn MutateFunc) (Record, error) {
	cur, found := o.read(key)

	// Widen the window between read and write.
	runtime.Gosched()
	if o.afterRead != nil {
		o.afterRead()
	}

	next, err := fn(cur, found)
	if err != nil || next == nil {
		return cur, err
	}
	next = next.Clone()
	next[o.spec.Key] = key
	if err := o.write(key, next); err != nil {
		return nil, err
	}
	out, _ := o.read(key)
	return out, nil
}

func (o *object) Find(_ context.Context, key any) (Record, bool, error) {
	k, err := NormalizeKey(key)
	if err != nil {
		return nil, false, err
	}
	rec, ok := o.read(k)
	return rec, ok, nil
}

func (o *object) Count(context.Context) (int64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return int64(len(o.records)), nil
}

func (o *object) Snapshot(context.Context) (State, error) {
	o.mu.Lock()
	records := make([]Record, 0, len(o.records))
	for _, r := range o.records {
		records = append(records, r.Clone())
	}
	o.mu.Unlock()

	sortRecords(records, o.spec.Key)
	return State{Kind: KindObject, Name: o.spec.Name, Key: o.spec.Key, Records: records}, nil
}

// Call invokes a Lua method with keyword arguments.
func (o *object) Call(ctx context.Context, method string, args map[string]any) (any, error) {
	if !o.methods.has(method) {
		return nil, &NoMethodError{Fixture: o.spec.Name, Method: method}
	}
	return o.methods.call(ctx, method, args)
}

func (o *object) Close() error { return nil }

var (
	_ Fixture = (*object)(nil)
	_ Caller  = (*object)(nil)
)
