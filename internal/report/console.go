package report

import (
	"fmt"
	"io"
	"sync"

	"github.com/kuitang/lpcheck/internal/errs"
	"github.com/kuitang/lpcheck/internal/scenario"
)

// Console prints step and scenario outcomes as they happen. It is safe for
// concurrent use; lines from parallel scenarios interleave but never tear.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole returns a Console writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Report(e scenario.Event) {
	var line string
	switch e.Kind {
	case scenario.StepPassed:
		line = fmt.Sprintf("  ok    %s > %s (%d ms)", e.Scenario, e.Step, e.Duration.Milliseconds())
	case scenario.StepFailed:
		line = fmt.Sprintf("  FAIL  %s > %s: %s", e.Scenario, e.Step, errs.MessageOf(e.Err))
	case scenario.ScenarioFinished:
		if e.Status == scenario.Passed {
			line = fmt.Sprintf("PASS  %s (%d ms)", e.Scenario, e.Duration.Milliseconds())
		} else {
			line = fmt.Sprintf("FAIL  %s at %q", e.Scenario, e.Step)
		}
	default:
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, line)
}

// PrintSummary writes the final tally.
func PrintSummary(w io.Writer, s Summary) {
	fmt.Fprintf(w, "\n%d passed, %d failed (run %s)\n", s.Passed, s.Failed, s.RunID)
	for _, sc := range s.Scenarios {
		if sc.Status != "passed" {
			fmt.Fprintf(w, "  - %s: step %q: %s\n", sc.Name, sc.FailedStep, sc.Error)
		}
	}
}
