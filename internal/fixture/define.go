package fixture

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/roach88/repro/internal/relstore"
	"github.com/roach88/repro/internal/runenv"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Spec declares a fixture.
type Spec struct {
	Kind    Kind   `yaml:"kind" json:"kind"`
	Name    string `yaml:"name" json:"name"`
	Key     string `yaml:"key" json:"key"`
	Counter string `yaml:"counter,omitempty" json:"counter,omitempty"`

	// Table fixtures.
	Columns []relstore.Column `yaml:"columns,omitempty" json:"columns,omitempty"`
	Indexes []relstore.Index  `yaml:"indexes,omitempty" json:"indexes,omitempty"`

	// Store overrides the configured adapter for this fixture.
	Store string `yaml:"store,omitempty" json:"store,omitempty"`

	// Object fixtures: integer fields besides the key, and Lua method
	// bodies by name.
	Fields  []string          `yaml:"fields,omitempty" json:"fields,omitempty"`
	Methods map[string]string `yaml:"methods,omitempty" json:"methods,omitempty"`

	Seed []Record `yaml:"seed,omitempty" json:"seed,omitempty"`
}

// Validate checks the spec without touching any store.
func (s Spec) Validate() error {
	if !identPattern.MatchString(s.Name) {
		return fmt.Errorf("invalid fixture name %q", s.Name)
	}
	if !identPattern.MatchString(s.Key) {
		return fmt.Errorf("invalid key field %q", s.Key)
	}

	switch s.Kind {
	case KindObject:
		return s.validateObject()
	case KindTable:
		return s.validateTable()
	default:
		return fmt.Errorf("unknown fixture kind %q", s.Kind)
	}
}

func (s Spec) validateObject() error {
	if len(s.Columns) > 0 || len(s.Indexes) > 0 || s.Store != "" {
		return errors.New("object fixtures take fields, not columns, indexes or store")
	}
	known := map[string]bool{s.Key: true}
	for _, f := range s.Fields {
		if !identPattern.MatchString(f) {
			return fmt.Errorf("invalid field %q", f)
		}
		if known[f] {
			return fmt.Errorf("duplicate field %q", f)
		}
		known[f] = true
	}
	if s.Counter != "" && (!known[s.Counter] || s.Counter == s.Key) {
		return fmt.Errorf("counter %q is not a declared field", s.Counter)
	}
	for name := range s.Methods {
		if !identPattern.MatchString(name) {
			return fmt.Errorf("invalid method name %q", name)
		}
	}
	return s.validateSeed(known)
}

func (s Spec) validateTable() error {
	if len(s.Fields) > 0 || len(s.Methods) > 0 {
		return errors.New("table fixtures take columns, not fields or methods")
	}
	def := s.tableDef()
	if err := def.Validate(); err != nil {
		return err
	}
	known := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		known[c.Name] = true
	}
	if !known[s.Key] {
		return fmt.Errorf("key %q is not a declared column", s.Key)
	}
	if s.Counter != "" {
		c, ok := def.Column(s.Counter)
		if !ok || c.Type != relstore.TypeInteger {
			return fmt.Errorf("counter %q is not an integer column", s.Counter)
		}
	}
	return s.validateSeed(known)
}

func (s Spec) validateSeed(known map[string]bool) error {
	seen := make(map[any]bool, len(s.Seed))
	for i, rec := range s.Seed {
		for f := range rec {
			if !known[f] {
				return fmt.Errorf("seed %d: unknown field %q", i, f)
			}
		}
		k, err := NormalizeKey(rec[s.Key])
		if err != nil {
			return fmt.Errorf("seed %d: %w", i, err)
		}
		if seen[k] {
			return fmt.Errorf("seed %d: duplicate key %v", i, k)
		}
		seen[k] = true
	}
	return nil
}

func (s Spec) tableDef() relstore.TableDef {
	return relstore.TableDef{Name: s.Name, Columns: s.Columns, Indexes: s.Indexes}
}

// Define builds the fixture declared by spec and resets it. Every failure
// is a *SetupError; on failure nothing is left open.
func Define(ctx context.Context, env *runenv.Env, spec Spec) (Fixture, error) {
	if err := spec.Validate(); err != nil {
		return nil, &SetupError{Fixture: spec.Name, Op: "validate", Err: err}
	}

	var f Fixture
	switch spec.Kind {
	case KindObject:
		obj, err := newObject(spec)
		if err != nil {
			return nil, &SetupError{Fixture: spec.Name, Op: "build", Err: err}
		}
		f = obj
	case KindTable:
		tbl := newTable(spec, storeConfig(env, spec), env.Logger)
		if env.Config.DataDir == "" && tbl.cfg.Adapter != relstore.AdapterPostgres {
			tbl.scratch = tbl.cfg.DataDir
		}
		f = tbl
	}

	if err := f.Reset(ctx); err != nil {
		_ = f.Close()
		return nil, &SetupError{Fixture: spec.Name, Op: "reset", Err: err}
	}

	env.Logger.Info("fixture ready", "fixture", spec.Name, "kind", spec.Kind, "seed", len(spec.Seed))
	return f, nil
}

func storeConfig(env *runenv.Env, spec Spec) relstore.Config {
	adapter := env.Config.Adapter
	if spec.Store != "" {
		adapter = spec.Store
	}
	return relstore.Config{
		Adapter:  relstore.Adapter(adapter),
		Database: env.Config.Database,
		URL:      env.Config.DatabaseURL,
		DataDir:  env.Config.RunDataDir(env.RunID),
		Pool:     env.Config.Pool,
	}
}
