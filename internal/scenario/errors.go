package scenario

import (
	"fmt"
	"strings"

	"github.com/kuitang/lpcheck/internal/errs"
)

// NotFoundError reports that no descriptor resolved to a visible element.
type NotFoundError struct {
	Tried []Descriptor
	// Observed is the last driver error seen while resolving, if any.
	Observed string
}

func (e *NotFoundError) Error() string {
	tried := make([]string, len(e.Tried))
	for i, d := range e.Tried {
		tried[i] = d.String()
	}
	msg := fmt.Sprintf("no visible element for %s", strings.Join(tried, " or "))
	if e.Observed != "" {
		msg += " (last error: " + e.Observed + ")"
	}
	return msg
}

// TimeoutError reports a predicate that never held within its wait window.
type TimeoutError struct {
	Check    string
	Expected string
	Observed string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: expected %s, last observed %q", e.Check, e.Expected, e.Observed)
}

// StepError attributes a scenario failure to the step that raised it.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func notFound(tried []Descriptor, observed string) error {
	e := &NotFoundError{Tried: tried, Observed: observed}
	return errs.Wrap(errs.ElementNotFound, e.Error(), e)
}

func timedOut(check, expected, observed string) error {
	e := &TimeoutError{Check: check, Expected: expected, Observed: observed}
	return errs.Wrap(errs.AssertionTimeout, e.Error(), e)
}
