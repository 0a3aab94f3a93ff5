package workload

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/repro/internal/runenv"
)

// Mode selects how units execute.
type Mode string

const (
	Sequential Mode = "sequential"
	Parallel   Mode = "parallel"
)

// ParseMode validates a mode name. Empty means sequential.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", Sequential:
		return Sequential, nil
	case Parallel:
		return Parallel, nil
	}
	return "", fmt.Errorf("unknown workload mode %q", s)
}

// Unit is one attributable piece of work.
type Unit struct {
	ID string

	// AllowFault marks a fault from this unit as anticipated: a sequential
	// run continues past it.
	AllowFault bool

	Run func(ctx context.Context, logger *slog.Logger) (any, error)
}

// Status is a unit's terminal state.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFaulted   Status = "faulted"
	StatusSkipped   Status = "skipped"
)

// Outcome is what one unit did.
type Outcome struct {
	UnitID string `json:"unit_id"`
	Index  int    `json:"index"`
	Status Status `json:"status"`
	Value  any    `json:"value,omitempty"`
	Fault  *Fault `json:"fault,omitempty"`

	// StartSeq and EndSeq are logical clock stamps. Zero for skipped units.
	StartSeq int64 `json:"start_seq,omitempty"`
	EndSeq   int64 `json:"end_seq,omitempty"`
}

// Results holds every unit's outcome in launch order.
type Results struct {
	Mode      Mode      `json:"mode"`
	Launched  int       `json:"launched"`
	Completed int       `json:"completed"`
	Outcomes  []Outcome `json:"outcomes"`
}

// Faults returns the outcomes that faulted.
func (r *Results) Faults() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status == StatusFaulted {
			out = append(out, o)
		}
	}
	return out
}

// Outcome returns the first outcome for unitID.
func (r *Results) Outcome(unitID string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.UnitID == unitID {
			return o, true
		}
	}
	return Outcome{}, false
}

// Run executes units in mode. Completed counts units that ran to the end,
// whether they returned a value or faulted.
func Run(ctx context.Context, env *runenv.Env, units []Unit, mode Mode) (*Results, error) {
	if err := validate(units); err != nil {
		return nil, err
	}

	ctx, span := env.Tracer.Start(ctx, "workload",
		trace.WithAttributes(
			attribute.String("repro.mode", string(mode)),
			attribute.Int("repro.units", len(units)),
		))
	defer span.End()

	res := &Results{Mode: mode, Outcomes: make([]Outcome, len(units))}

	switch mode {
	case Sequential:
		runSequential(ctx, env, units, res)
	case Parallel:
		runParallel(ctx, env, units, res)
	default:
		return nil, fmt.Errorf("unknown workload mode %q", mode)
	}

	for _, o := range res.Outcomes {
		if o.Status != StatusSkipped {
			res.Completed++
		}
	}
	span.SetAttributes(
		attribute.Int("repro.launched", res.Launched),
		attribute.Int("repro.completed", res.Completed),
	)
	env.Logger.Info("workload finished",
		"mode", mode,
		"launched", res.Launched,
		"completed", res.Completed,
		"faults", len(res.Faults()),
	)
	return res, nil
}

func validate(units []Unit) error {
	seen := make(map[string]bool, len(units))
	for i, u := range units {
		if u.ID == "" {
			return fmt.Errorf("unit %d has no id", i)
		}
		if seen[u.ID] {
			return fmt.Errorf("duplicate unit id %q", u.ID)
		}
		seen[u.ID] = true
		if u.Run == nil {
			return fmt.Errorf("unit %s has no function", u.ID)
		}
	}
	return nil
}

func runSequential(ctx context.Context, env *runenv.Env, units []Unit, res *Results) {
	stopped := false
	for i, u := range units {
		if stopped {
			res.Outcomes[i] = Outcome{UnitID: u.ID, Index: i, Status: StatusSkipped}
			continue
		}
		res.Launched++
		res.Outcomes[i] = execute(ctx, env, i, u)
		if res.Outcomes[i].Status == StatusFaulted && !u.AllowFault {
			env.Logger.Warn("unanticipated fault, stopping", "unit", u.ID)
			stopped = true
		}
	}
}

// runParallel launches every unit and waits for all of them. Each
// goroutine writes only its own slot and always returns nil, so the group
// never cancels anything.
func runParallel(ctx context.Context, env *runenv.Env, units []Unit, res *Results) {
	var g errgroup.Group
	for i, u := range units {
		g.Go(func() error {
			res.Outcomes[i] = execute(ctx, env, i, u)
			return nil
		})
	}
	res.Launched = len(units)
	_ = g.Wait()
}

func execute(ctx context.Context, env *runenv.Env, index int, u Unit) (out Outcome) {
	logger := env.UnitLogger(u.ID)
	ctx, span := env.Tracer.Start(ctx, "unit "+u.ID,
		trace.WithAttributes(
			attribute.String("repro.unit", u.ID),
			attribute.Int("repro.index", index),
		))

	out = Outcome{UnitID: u.ID, Index: index, StartSeq: env.Clock.Next()}
	logger.Debug("unit started", "seq", out.StartSeq)

	defer func() {
		if r := recover(); r != nil {
			out.Status = StatusFaulted
			out.Value = nil
			out.Fault = &Fault{Kind: PanicKind, Message: fmt.Sprint(r), Stack: strings.TrimSpace(string(debug.Stack()))}
		}
		out.EndSeq = env.Clock.Next()

		if out.Fault != nil {
			span.SetStatus(codes.Error, out.Fault.Kind)
			span.SetAttributes(attribute.String("repro.fault", out.Fault.Kind))
			logger.Info("unit faulted", "kind", out.Fault.Kind, "message", out.Fault.Message, "seq", out.EndSeq)
		} else {
			logger.Debug("unit completed", "seq", out.EndSeq)
		}
		span.End()
	}()

	v, err := u.Run(ctx, logger)
	if err != nil {
		out.Status = StatusFaulted
		out.Fault = NewFault(err)
		return out
	}
	out.Status = StatusCompleted
	out.Value = v
	return out
}
