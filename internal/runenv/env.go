package runenv

import (
	"context"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/roach88/repro/internal/config"
	"github.com/roach88/repro/internal/pin"
)

// TracerName is the instrumentation scope for harness spans.
const TracerName = "github.com/roach88/repro"

// Env is the bootstrapped environment of one run.
type Env struct {
	RunID      string
	Config     config.Config
	Logger     *slog.Logger
	Tracer     trace.Tracer
	Clock      Clock
	Resolution *pin.Resolution

	// LockWritten reports whether bootstrap wrote the lockfile.
	LockWritten bool
}

// Options configures Bootstrap. Zero values pick defaults: config from
// config.Default, a discarding logger, a no-op tracer, UUIDv7 run ids and a
// fresh clock.
type Options struct {
	Config         *config.Config
	Spec           pin.Spec
	Index          pin.Index
	Lockfile       string
	Logger         *slog.Logger
	TracerProvider trace.TracerProvider
	RunIDs         RunIDGenerator
	Clock          Clock
}

// Bootstrap resolves opts.Spec against opts.Index, enforces the lockfile
// and returns the run environment. Any failure is a *pin.ResolutionError.
func Bootstrap(ctx context.Context, opts Options) (*Env, error) {
	env := newEnv(opts)

	ctx, span := env.Tracer.Start(ctx, "bootstrap",
		trace.WithAttributes(
			attribute.String("repro.run_id", env.RunID),
			attribute.Int("repro.pins", len(opts.Spec)),
		))
	defer span.End()

	res, err := pin.Resolve(ctx, opts.Index, opts.Spec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolution failed")
		env.Logger.Error("dependency resolution failed", "error", err)
		return nil, err
	}
	env.Resolution = res

	mode, err := pin.ParseLockMode(env.Config.LockMode)
	if err != nil {
		return nil, &pin.ResolutionError{Reason: pin.ReasonInvalid, Err: err}
	}
	written, err := pin.ApplyLock(opts.Lockfile, mode, res)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lockfile")
		env.Logger.Error("lockfile check failed", "path", opts.Lockfile, "error", err)
		return nil, err
	}
	env.LockWritten = written

	for _, p := range res.Pins {
		env.Logger.Info("dependency resolved", "name", p.Name, "version", p.Version)
	}
	env.Logger.Debug("bootstrap complete",
		"source", res.Source,
		"digest", res.Digest,
		"lock_written", written,
	)
	return env, nil
}

// New builds an environment without resolving dependencies. Used for
// in-process runs that declare no pins.
func New(opts Options) *Env {
	env := newEnv(opts)
	env.Resolution = &pin.Resolution{Pins: []pin.ResolvedPin{}}
	return env
}

func newEnv(opts Options) *Env {
	cfg := config.Default()
	if opts.Config != nil {
		cfg = *opts.Config
	}

	ids := opts.RunIDs
	if ids == nil {
		ids = UUIDv7Generator{}
	}
	runID := ids.Generate()

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	tp := opts.TracerProvider
	if tp == nil {
		tp = noop.NewTracerProvider()
	}

	clock := opts.Clock
	if clock == nil {
		clock = NewClock()
	}

	return &Env{
		RunID:  runID,
		Config: cfg,
		Logger: logger.With("run_id", runID),
		Tracer: tp.Tracer(TracerName),
		Clock:  clock,
	}
}

// UnitLogger returns a logger tagged with a workload unit id, so
// interleaved log lines from concurrent units stay attributable.
func (e *Env) UnitLogger(unitID string) *slog.Logger {
	return e.Logger.With("unit", unitID)
}
