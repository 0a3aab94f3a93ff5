package ops

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/roach88/repro/internal/fixture"
)

// Call is the input to an operation.
type Call struct {
	Fixture fixture.Fixture
	Args    map[string]any
	Logger  *slog.Logger
}

// Func runs one operation. A returned error becomes the unit's fault.
type Func func(ctx context.Context, call Call) (any, error)

// Registry maps operation names to functions.
//
// Thread-safety: safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]Func
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]Func)}
}

// Builtins returns a registry holding the built-in operations.
func Builtins() *Registry {
	r := NewRegistry()
	for name, fn := range builtins() {
		if err := r.Register(name, fn); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds an operation. Names are unique.
func (r *Registry) Register(name string, fn Func) error {
	if name == "" || fn == nil {
		return fmt.Errorf("register %q: name and function are required", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ops[name]; ok {
		return fmt.Errorf("operation %q already registered", name)
	}
	r.ops[name] = fn
	return nil
}

// Lookup returns the operation registered under name.
func (r *Registry) Lookup(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.ops[name]
	return fn, ok
}

// Names lists registered operations in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.ops))
}
