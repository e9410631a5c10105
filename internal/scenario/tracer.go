package scenario

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kuitang/lpcheck/internal/errs"
	"github.com/kuitang/lpcheck/internal/obs"
)

// EventKind identifies what a reported Event describes.
type EventKind int

const (
	StepStarted EventKind = iota
	StepPassed
	StepFailed
	ScenarioFinished
)

func (k EventKind) String() string {
	switch k {
	case StepStarted:
		return "step_started"
	case StepPassed:
		return "step_passed"
	case StepFailed:
		return "step_failed"
	case ScenarioFinished:
		return "scenario_finished"
	default:
		return "unknown"
	}
}

// Event is one observable outcome sent to a Reporter.
type Event struct {
	Kind     EventKind
	RunID    string
	Scenario string
	Step     string
	Time     time.Time
	Duration time.Duration
	// Status is set on ScenarioFinished.
	Status Status
	// Err is set on StepFailed and on a failed ScenarioFinished.
	Err error
}

// Reporter receives step and scenario events. Implementations must be safe
// for concurrent use when scenarios run in parallel.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Event)

func (f ReporterFunc) Report(e Event) { f(e) }

// Reporters fans events out to every non-nil reporter in order.
type Reporters []Reporter

func (rs Reporters) Report(e Event) {
	for _, r := range rs {
		if r != nil {
			r.Report(e)
		}
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Report(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Tracer runs named steps and reports how each one ended.
type Tracer struct {
	Reporter Reporter
	Now      func() time.Time
}

// RunStep runs action as the step called name. It reports the start, then
// either success or failure, and returns action's error unchanged. A panic
// in action is reported as a failure before it continues unwinding.
func (t *Tracer) RunStep(ctx context.Context, name string, action func(context.Context) error) (err error) {
	if strings.TrimSpace(name) == "" {
		return errs.New(errs.InvalidArgument, "step name must not be empty")
	}
	if action == nil {
		return errs.New(errs.InvalidArgument, fmt.Sprintf("step %q has no action", name))
	}

	ctx = obs.WithStep(ctx, name)
	corr := obs.CorrelationFromContext(ctx)
	log := obs.From(ctx)

	ctx, span := obs.Tracer().Start(ctx, name, trace.WithAttributes(
		obs.AttrRunID.String(corr.RunID),
		obs.AttrScenario.String(corr.Scenario),
		obs.AttrStep.String(name),
	))

	start := t.now()
	log.Info("STEP START")
	t.emit(Event{Kind: StepStarted, RunID: corr.RunID, Scenario: corr.Scenario, Step: name, Time: start})

	returned := false
	defer func() {
		if returned {
			span.End()
			return
		}
		r := recover()
		if r == nil {
			// runtime.Goexit, e.g. t.FailNow inside a step.
			t.fail(ctx, span, corr, name, start, errs.New(errs.Internal, "step exited without returning"))
			span.End()
			return
		}
		t.fail(ctx, span, corr, name, start, fmt.Errorf("panic: %v", r))
		span.End()
		panic(r)
	}()

	err = action(ctx)
	returned = true

	if err != nil {
		t.fail(ctx, span, corr, name, start, err)
		return err
	}

	elapsed := t.now().Sub(start)
	span.SetStatus(codes.Ok, "")
	log.Info("STEP OK", "duration_ms", elapsed.Milliseconds())
	t.emit(Event{Kind: StepPassed, RunID: corr.RunID, Scenario: corr.Scenario, Step: name, Time: t.now(), Duration: elapsed})
	return nil
}

func (t *Tracer) fail(ctx context.Context, span trace.Span, corr obs.Correlation, name string, start time.Time, err error) {
	elapsed := t.now().Sub(start)
	code := errs.CodeOf(err)
	span.RecordError(err)
	span.SetAttributes(obs.AttrErrCode.String(string(code)))
	span.SetStatus(codes.Error, err.Error())
	obs.From(ctx).Error("STEP FAIL", "error", err.Error(), "code", string(code), "duration_ms", elapsed.Milliseconds())
	t.emit(Event{Kind: StepFailed, RunID: corr.RunID, Scenario: corr.Scenario, Step: name, Time: t.now(), Duration: elapsed, Err: err})
}

func (t *Tracer) emit(e Event) {
	if t.Reporter != nil {
		t.Reporter.Report(e)
	}
}

func (t *Tracer) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}
