package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/roach88/repro/internal/config"
	"github.com/roach88/repro/internal/expect"
	"github.com/roach88/repro/internal/fixture"
	"github.com/roach88/repro/internal/ops"
	"github.com/roach88/repro/internal/pin"
	"github.com/roach88/repro/internal/runenv"
	"github.com/roach88/repro/internal/workload"
)

// Stage names a pipeline step.
type Stage string

const (
	StageLoad      Stage = "load"
	StageBootstrap Stage = "bootstrap"
	StageFixture   Stage = "fixture"
	StageWorkload  Stage = "workload"
	StageObserve   Stage = "observe"
)

// SetupError is returned when a run fails before its outcome can be
// judged. The run's report carries VerdictSetupFailed.
type SetupError struct {
	Stage Stage
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup failed at %s: %v", e.Stage, e.Err)
}

// MarshalJSON renders the stage and cause.
func (e *SetupError) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"stage": string(e.Stage), "error": e.Err.Error()})
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// IsSetupError reports whether err is a *SetupError.
func IsSetupError(err error) bool {
	var se *SetupError
	return errors.As(err, &se)
}

// options holds Run configuration.
type options struct {
	cfg    *config.Config
	logger *slog.Logger
	tp     trace.TracerProvider
	runIDs runenv.RunIDGenerator
	clock  runenv.Clock
	reg    *ops.Registry
	index  pin.Index
}

// Option configures Run.
type Option func(*options)

// WithConfig sets the run configuration. Defaults to config.Default.
func WithConfig(cfg config.Config) Option {
	return func(o *options) { o.cfg = &cfg }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTracerProvider sets the tracer provider spans are recorded to.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tp = tp }
}

// WithRunIDs sets the run id generator. Tests pass a fixed generator.
func WithRunIDs(g runenv.RunIDGenerator) Option {
	return func(o *options) { o.runIDs = g }
}

// WithClock sets the logical clock.
func WithClock(c runenv.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithRegistry sets the operation registry. Defaults to ops.Builtins.
func WithRegistry(r *ops.Registry) Option {
	return func(o *options) { o.reg = r }
}

// WithIndex overrides the package index the scenario names.
func WithIndex(idx pin.Index) Option {
	return func(o *options) { o.index = idx }
}

// Run executes sc and judges its outcome.
//
// The returned report is never nil. err is non-nil only for a setup
// failure (*SetupError, with the report's verdict setup_failed); a failed
// expectation is reported through the verdict.
func Run(ctx context.Context, sc *Scenario, opts ...Option) (*Report, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.reg == nil {
		o.reg = ops.Builtins()
	}
	cfg := config.Default()
	if o.cfg != nil {
		cfg = *o.cfg
	}

	report := newReport(sc)

	tp := o.tp
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	ctx, span := tp.Tracer(runenv.TracerName).Start(ctx, "run",
		trace.WithAttributes(attribute.String("repro.scenario", sc.Name)))
	defer span.End()

	fail := func(stage Stage, err error) (*Report, error) {
		se := &SetupError{Stage: stage, Err: err}
		report.setupFailed(se)
		span.RecordError(se)
		span.SetStatus(codes.Error, string(stage))
		return report, se
	}

	if err := sc.Validate(); err != nil {
		return fail(StageLoad, err)
	}
	mode, _ := workload.ParseMode(sc.Workload.Mode)

	// Bootstrap.
	envOpts := runenv.Options{
		Config:         &cfg,
		Spec:           sc.Dependencies.Pins,
		Lockfile:       sc.LockfilePath(),
		Logger:         o.logger,
		TracerProvider: tp,
		RunIDs:         o.runIDs,
		Clock:          o.clock,
	}
	var env *runenv.Env
	if len(sc.Dependencies.Pins) == 0 {
		env = runenv.New(envOpts)
	} else {
		idx, err := o.resolveIndex(sc, cfg)
		if err != nil {
			return fail(StageBootstrap, &pin.ResolutionError{Reason: pin.ReasonIndex, Err: err})
		}
		envOpts.Index = idx
		env, err = runenv.Bootstrap(ctx, envOpts)
		if err != nil {
			return fail(StageBootstrap, err)
		}
	}
	report.RunID = env.RunID
	report.Resolution = env.Resolution
	span.SetAttributes(attribute.String("repro.run_id", env.RunID))
	env.Logger.Info("scenario started", "scenario", sc.Name, "intent", sc.EffectiveIntent())

	// Fixture.
	fx, err := fixture.Define(ctx, env, sc.Fixture)
	if err != nil {
		return fail(StageFixture, err)
	}
	defer func() {
		if cerr := fx.Close(); cerr != nil {
			env.Logger.Warn("fixture close failed", "error", cerr)
		}
	}()

	units, err := buildUnits(sc, mode, cfg, o.reg, fx)
	if err != nil {
		return fail(StageWorkload, err)
	}

	before, err := fx.Count(ctx)
	if err != nil {
		return fail(StageObserve, err)
	}

	// Workload.
	results, err := workload.Run(ctx, env, units, mode)
	if err != nil {
		return fail(StageWorkload, err)
	}
	report.Results = results

	// Observe.
	state, err := fx.Snapshot(ctx)
	if err != nil {
		return fail(StageObserve, err)
	}
	after, err := fx.Count(ctx)
	if err != nil {
		return fail(StageObserve, err)
	}
	report.State = state
	report.RowsBefore = before
	report.RowsAfter = after

	// Assert.
	obs := expect.Observation{Results: results, State: state, RowsBefore: before, RowsAfter: after}
	report.Mismatches = expect.AssertAll(sc.Expectations, obs)
	report.judge(sc.EffectiveIntent())

	span.SetAttributes(attribute.String("repro.verdict", string(report.Verdict)))
	env.Logger.Info("scenario finished",
		"scenario", sc.Name,
		"verdict", report.Verdict,
		"mismatches", len(report.Mismatches),
		"completed", results.Completed,
		"launched", results.Launched,
	)
	return report, nil
}

func (o options) resolveIndex(sc *Scenario, cfg config.Config) (pin.Index, error) {
	if o.index != nil {
		return o.index, nil
	}
	loc := sc.IndexLocation(cfg.Index)
	if loc == "" {
		return nil, fmt.Errorf("scenario declares pins but no package index is configured")
	}
	return pin.OpenIndex(loc)
}

// fanout returns how many copies of each unit run.
func fanout(w Workload, mode workload.Mode, cfg config.Config) int {
	if w.Fanout > 0 {
		return w.Fanout
	}
	if mode == workload.Parallel && cfg.Fanout > 0 {
		return cfg.Fanout
	}
	return 1
}

// buildUnits binds every unit spec to its operation. With a fanout above
// one each unit is launched that many times as "id#1".."id#n".
func buildUnits(sc *Scenario, mode workload.Mode, cfg config.Config, reg *ops.Registry, fx fixture.Fixture) ([]workload.Unit, error) {
	n := fanout(sc.Workload, mode, cfg)
	units := make([]workload.Unit, 0, len(sc.Workload.Units)*n)
	for _, us := range sc.Workload.Units {
		fn, ok := reg.Lookup(us.Op)
		if !ok {
			return nil, fmt.Errorf("unit %q: unknown operation %q", us.ID, us.Op)
		}
		for k := 1; k <= n; k++ {
			id := us.ID
			if n > 1 {
				id = fmt.Sprintf("%s#%d", us.ID, k)
			}
			args := maps.Clone(us.Args)
			units = append(units, workload.Unit{
				ID:         id,
				AllowFault: us.AllowFault || targetsFault(sc.Expectations, us.ID),
				Run: func(ctx context.Context, logger *slog.Logger) (any, error) {
					return fn(ctx, ops.Call{Fixture: fx, Args: args, Logger: logger})
				},
			})
		}
	}
	return units, nil
}

// targetsFault reports whether a unit_fault expectation names the unit. A
// fault the scenario expects does not stop a sequential workload.
func targetsFault(exps []expect.Expectation, unitID string) bool {
	for _, e := range exps {
		if e.Type == expect.TypeUnitFault && e.Unit == unitID {
			return true
		}
	}
	return false
}

// Lock resolves the scenario's pins and rewrites its lockfile at path
// (the scenario's own lockfile when path is empty). No fixture is built.
func Lock(ctx context.Context, sc *Scenario, path string, opts ...Option) (*pin.Resolution, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	cfg := config.Default()
	if o.cfg != nil {
		cfg = *o.cfg
	}
	cfg.LockMode = string(pin.LockWrite)

	if path == "" {
		path = sc.LockfilePath()
	}
	if path == "" {
		return nil, fmt.Errorf("scenario %s declares no lockfile", sc.Name)
	}
	if len(sc.Dependencies.Pins) == 0 {
		return nil, fmt.Errorf("scenario %s declares no pins", sc.Name)
	}

	idx, err := o.resolveIndex(sc, cfg)
	if err != nil {
		return nil, &pin.ResolutionError{Reason: pin.ReasonIndex, Err: err}
	}
	env, err := runenv.Bootstrap(ctx, runenv.Options{
		Config:         &cfg,
		Spec:           sc.Dependencies.Pins,
		Index:          idx,
		Lockfile:       path,
		Logger:         o.logger,
		TracerProvider: o.tp,
		RunIDs:         o.runIDs,
	})
	if err != nil {
		return nil, err
	}
	return env.Resolution, nil
}
