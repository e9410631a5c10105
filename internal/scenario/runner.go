package scenario

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kuitang/lpcheck/internal/errs"
	"github.com/kuitang/lpcheck/internal/logutil"
	"github.com/kuitang/lpcheck/internal/obs"
)

// Status is where a scenario or step is in its lifecycle.
type Status int

const (
	NotStarted Status = iota
	Running
	Passed
	Failed
)

func (s Status) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Running:
		return "running"
	case Passed:
		return "passed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether s is a final state.
func (s Status) IsTerminal() bool {
	return s == Passed || s == Failed
}

// Step is one named unit of work.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Scenario is one independent flow. Steps builds the step list against the
// page of the session the scenario runs in.
type Scenario struct {
	Name  string
	Steps func(p Page) []Step
}

// StepResult is the outcome of one step. Steps after a failure keep
// NotStarted.
type StepResult struct {
	Name     string
	Status   Status
	Duration time.Duration
	Err      error
}

// Result is the outcome of one scenario.
type Result struct {
	Scenario   string
	Status     Status
	FailedStep string
	// Err is a *StepError naming FailedStep.
	Err      error
	Steps    []StepResult
	Started  time.Time
	Duration time.Duration
}

// Session is an isolated browser session owned by one scenario.
type Session interface {
	Page
	Close() error
}

// SessionSource opens a fresh session per scenario.
type SessionSource interface {
	NewSession(ctx context.Context) (Session, error)
}

// Snapshot is page state captured for diagnostics after a failed step.
type Snapshot struct {
	URL   string
	Title string
	Text  string
}

// Snapshotter is implemented by pages that can describe themselves.
type Snapshotter interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

const openSessionStep = "open browser session"

// Runner executes scenarios step by step, failing fast within a scenario and
// isolating scenarios from each other.
type Runner struct {
	Tracer   *Tracer
	Sessions SessionSource
	// Before returns steps run at the start of every scenario, after the
	// session is open.
	Before func(p Page) []Step
	// Parallel bounds how many scenarios RunAll runs at once. Values below
	// one mean one.
	Parallel int
}

// RunSteps runs steps in order under the scenario name, stopping at the
// first failure.
func (r *Runner) RunSteps(ctx context.Context, name string, steps []Step) Result {
	ctx = obs.WithScenario(ctx, name)
	run := r.begin(ctx, name)
	for i, step := range steps {
		if !run.exec(ctx, step) {
			run.skip(steps[i+1:])
			break
		}
	}
	return run.finish(ctx)
}

// Run opens a session from r.Sessions, runs the Before steps and then the
// scenario's own steps, and closes the session whatever the outcome.
func (r *Runner) Run(ctx context.Context, sc Scenario) Result {
	ctx = obs.WithScenario(ctx, sc.Name)
	run := r.begin(ctx, sc.Name)

	var sess Session
	defer func() {
		if sess == nil {
			return
		}
		if err := sess.Close(); err != nil {
			obs.From(ctx).Warn("failed to close browser session", "error", err)
		}
	}()

	opened := run.exec(ctx, Step{Name: openSessionStep, Run: func(ctx context.Context) error {
		if r.Sessions == nil {
			return errs.New(errs.InvalidArgument, "runner has no session source")
		}
		s, err := r.Sessions.NewSession(ctx)
		if err != nil {
			return err
		}
		sess = s
		return nil
	}})
	if !opened {
		return run.finish(ctx)
	}
	run.page = sess

	var steps []Step
	if r.Before != nil {
		steps = append(steps, r.Before(sess)...)
	}
	if sc.Steps != nil {
		steps = append(steps, sc.Steps(sess)...)
	}
	for i, step := range steps {
		if !run.exec(ctx, step) {
			run.skip(steps[i+1:])
			break
		}
	}
	return run.finish(ctx)
}

// RunAll runs every scenario with Run, at most Parallel at a time, and
// returns results in input order. A failing scenario does not stop the rest.
func (r *Runner) RunAll(ctx context.Context, scenarios []Scenario) []Result {
	results := make([]Result, len(scenarios))

	var g errgroup.Group
	g.SetLimit(max(r.Parallel, 1))
	for i, sc := range scenarios {
		g.Go(func() error {
			results[i] = r.Run(ctx, sc)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, res := range results {
		if res.Status != Passed {
			return false
		}
	}
	return true
}

type scenarioRun struct {
	tracer *Tracer
	page   Page
	res    Result
}

func (r *Runner) begin(ctx context.Context, name string) *scenarioRun {
	tracer := r.Tracer
	if tracer == nil {
		tracer = &Tracer{}
	}
	run := &scenarioRun{
		tracer: tracer,
		res:    Result{Scenario: name, Status: NotStarted},
	}
	run.res.Started = tracer.now()
	run.res.Status = Running
	obs.From(ctx).Info("scenario started")
	return run
}

// exec runs one step and records it. It returns false once the scenario has
// failed.
func (run *scenarioRun) exec(ctx context.Context, step Step) bool {
	start := run.tracer.now()
	err := run.call(ctx, step)
	sr := StepResult{Name: step.Name, Status: Passed, Duration: run.tracer.now().Sub(start)}
	if err != nil {
		sr.Status = Failed
		sr.Err = err
	}
	run.res.Steps = append(run.res.Steps, sr)
	if err == nil {
		return true
	}

	run.res.Status = Failed
	run.res.FailedStep = step.Name
	run.res.Err = &StepError{Step: step.Name, Err: err}
	run.logSnapshot(ctx)
	return false
}

// call converts a panicking step into a failure of that step. The tracer has
// already reported it by the time the panic reaches here.
func (run *scenarioRun) call(ctx context.Context, step Step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.New(errs.Internal, fmt.Sprintf("step panicked: %v", r))
		}
	}()
	return run.tracer.RunStep(ctx, step.Name, step.Run)
}

func (run *scenarioRun) skip(rest []Step) {
	for _, step := range rest {
		run.res.Steps = append(run.res.Steps, StepResult{Name: step.Name, Status: NotStarted})
	}
}

func (run *scenarioRun) finish(ctx context.Context) Result {
	if run.res.Status == Running {
		run.res.Status = Passed
	}
	run.res.Duration = run.tracer.now().Sub(run.res.Started)

	log := obs.From(ctx)
	if run.res.Status == Passed {
		log.Info("scenario passed", "duration_ms", run.res.Duration.Milliseconds())
	} else {
		log.Error("scenario failed", "failed_step", run.res.FailedStep, "error", run.res.Err.Error())
	}
	corr := obs.CorrelationFromContext(ctx)
	run.tracer.emit(Event{
		Kind:     ScenarioFinished,
		RunID:    corr.RunID,
		Scenario: run.res.Scenario,
		Step:     run.res.FailedStep,
		Time:     run.tracer.now(),
		Duration: run.res.Duration,
		Status:   run.res.Status,
		Err:      run.res.Err,
	})
	return run.res
}

func (run *scenarioRun) logSnapshot(ctx context.Context) {
	snapper, ok := run.page.(Snapshotter)
	if !ok {
		return
	}
	snap, err := snapper.Snapshot(context.WithoutCancel(ctx))
	if err != nil {
		obs.From(ctx).Warn("page snapshot failed", "error", err)
		return
	}
	obs.From(ctx).Info("page snapshot",
		"url", logutil.RedactURLForLog(snap.URL),
		"title", snap.Title,
		"text", logutil.TruncateForLog(snap.Text, 500),
	)
}
