package harness

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/repro/internal/expect"
	"github.com/roach88/repro/internal/fixture"
	"github.com/roach88/repro/internal/pin"
	"github.com/roach88/repro/internal/workload"
)

//go:embed scenario.cue
var scenarioSchema string

// Intent states what a passing run means.
type Intent string

const (
	// IntentExpectedBehavior asserts correct behavior.
	IntentExpectedBehavior Intent = "expected_behavior"

	// IntentDefectSignature asserts that a known defect is present.
	IntentDefectSignature Intent = "defect_signature"
)

// Scenario is one reproduction.
type Scenario struct {
	Name         string               `yaml:"name"`
	Description  string               `yaml:"description,omitempty"`
	Intent       Intent               `yaml:"intent,omitempty"`
	Dependencies Dependencies         `yaml:"dependencies,omitempty"`
	Fixture      fixture.Spec         `yaml:"fixture"`
	Workload     Workload             `yaml:"workload"`
	Expectations []expect.Expectation `yaml:"expectations"`

	// Dir is the directory relative index and lockfile paths resolve
	// against. Set by LoadScenario.
	Dir string `yaml:"-"`
}

// Dependencies declares the exact pins a scenario runs against.
type Dependencies struct {
	// Index is a static index file (relative to the scenario) or a module
	// proxy URL.
	Index    string   `yaml:"index,omitempty"`
	Lockfile string   `yaml:"lockfile,omitempty"`
	Pins     pin.Spec `yaml:"pins,omitempty"`
}

// Workload declares the units and how they run.
type Workload struct {
	Mode string `yaml:"mode,omitempty"`

	// Fanout launches every unit this many times. Zero means the
	// configured parallel quantity in parallel mode and 1 otherwise.
	Fanout int        `yaml:"fanout,omitempty"`
	Units  []UnitSpec `yaml:"units"`
}

// UnitSpec declares one unit by operation name.
type UnitSpec struct {
	ID         string         `yaml:"id"`
	Op         string         `yaml:"op"`
	Args       map[string]any `yaml:"args,omitempty"`
	AllowFault bool           `yaml:"allow_fault,omitempty"`
}

// LoadScenario reads, schema-checks and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve scenario path: %w", err)
	}
	return ParseScenario(data, filepath.Dir(abs))
}

// ParseScenario parses scenario YAML. dir is recorded as the scenario's
// base directory.
func ParseScenario(data []byte, dir string) (*Scenario, error) {
	// Strict decode catches typos like "expectation:" for "expectations:".
	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := checkSchema(doc); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	sc.Dir = dir
	return &sc, nil
}

// checkSchema validates the decoded document against the embedded CUE
// schema.
func checkSchema(doc any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(scenarioSchema, cue.Filename("scenario.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Scenario"))
	v := def.Unify(ctx.Encode(doc))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return schemaError(err)
	}
	return nil
}

// schemaError flattens CUE's error list into one message per violation.
func schemaError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		path := strings.Join(e.Path(), ".")
		format, args := e.Msg()
		msg := fmt.Sprintf(format, args...)
		if path != "" {
			msg = path + ": " + msg
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("schema: %s", strings.Join(msgs, "; "))
}

// Validate checks cross-field rules the schema cannot express.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	switch s.Intent {
	case "", IntentExpectedBehavior, IntentDefectSignature:
	default:
		return fmt.Errorf("unknown intent %q", s.Intent)
	}

	if _, err := s.Dependencies.Pins.Validate(); err != nil {
		return fmt.Errorf("dependencies: %w", err)
	}

	if err := s.Fixture.Validate(); err != nil {
		return fmt.Errorf("fixture: %w", err)
	}

	if _, err := workload.ParseMode(s.Workload.Mode); err != nil {
		return fmt.Errorf("workload: %w", err)
	}
	if s.Workload.Fanout < 0 {
		return fmt.Errorf("workload: fanout must be non-negative")
	}
	if len(s.Workload.Units) == 0 {
		return fmt.Errorf("workload: units list is required and must be non-empty")
	}
	seen := make(map[string]bool, len(s.Workload.Units))
	for i, u := range s.Workload.Units {
		if u.ID == "" || strings.Contains(u.ID, "#") {
			return fmt.Errorf("workload.units[%d]: invalid id %q", i, u.ID)
		}
		if seen[u.ID] {
			return fmt.Errorf("workload.units[%d]: duplicate id %q", i, u.ID)
		}
		seen[u.ID] = true
		if u.Op == "" {
			return fmt.Errorf("workload.units[%d]: op is required", i)
		}
	}

	if len(s.Expectations) == 0 {
		return fmt.Errorf("expectations list is required and must be non-empty")
	}
	for i, e := range s.Expectations {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("expectations[%d]: %w", i, err)
		}
		if (e.Type == expect.TypeUnitValue || e.Type == expect.TypeUnitFault) && !seen[e.Unit] {
			return fmt.Errorf("expectations[%d]: unknown unit %q", i, e.Unit)
		}
	}
	return nil
}

// EffectiveIntent returns the declared intent or the default.
func (s *Scenario) EffectiveIntent() Intent {
	if s.Intent == "" {
		return IntentExpectedBehavior
	}
	return s.Intent
}

// IndexLocation returns the package index the scenario resolves against:
// its own index (relative to the scenario file) or fallback.
func (s *Scenario) IndexLocation(fallback string) string {
	if loc := s.resolvePath(s.Dependencies.Index); loc != "" {
		return loc
	}
	return fallback
}

// LockfilePath returns the scenario's lockfile path, or "" if it declares
// none.
func (s *Scenario) LockfilePath() string {
	return s.resolvePath(s.Dependencies.Lockfile)
}

// resolvePath makes p relative to the scenario directory unless it is
// absolute or a URL.
func (s *Scenario) resolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || strings.Contains(p, "://") || s.Dir == "" {
		return p
	}
	return filepath.Join(s.Dir, p)
}
