// Package report turns scenario results into report artifacts (JSON,
// Markdown and HTML), writes them to disk and optionally uploads them.
package report

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kuitang/lpcheck/internal/errs"
	"github.com/kuitang/lpcheck/internal/scenario"
)

// Summary is the serialized form of one run.
type Summary struct {
	RunID      string     `json:"run_id"`
	BaseURL    string     `json:"base_url"`
	Browser    string     `json:"browser"`
	Started    time.Time  `json:"started"`
	DurationMS int64      `json:"duration_ms"`
	Passed     int        `json:"passed"`
	Failed     int        `json:"failed"`
	Scenarios  []Scenario `json:"scenarios"`
}

// Scenario is one scenario's outcome.
type Scenario struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	FailedStep string `json:"failed_step,omitempty"`
	ErrorCode  string `json:"error_code,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Steps      []Step `json:"steps"`
}

// Step is one step's outcome.
type Step struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// Run identifies the run a Summary describes.
type Run struct {
	ID      string
	BaseURL string
	Browser string
	Started time.Time
	Ended   time.Time
}

// Build summarizes results in the order given.
func Build(run Run, results []scenario.Result) Summary {
	s := Summary{
		RunID:      run.ID,
		BaseURL:    run.BaseURL,
		Browser:    run.Browser,
		Started:    run.Started.UTC(),
		DurationMS: run.Ended.Sub(run.Started).Milliseconds(),
		Scenarios:  make([]Scenario, 0, len(results)),
	}
	if s.DurationMS < 0 {
		s.DurationMS = 0
	}

	for _, res := range results {
		sc := Scenario{
			Name:       res.Scenario,
			Status:     res.Status.String(),
			FailedStep: res.FailedStep,
			DurationMS: res.Duration.Milliseconds(),
			Steps:      make([]Step, 0, len(res.Steps)),
		}
		if res.Err != nil {
			sc.ErrorCode = string(errs.CodeOf(res.Err))
			sc.Error = res.Err.Error()
		}
		for _, st := range res.Steps {
			step := Step{
				Name:       st.Name,
				Status:     st.Status.String(),
				DurationMS: st.Duration.Milliseconds(),
			}
			if st.Err != nil {
				step.Error = errs.MessageOf(st.Err)
			}
			sc.Steps = append(sc.Steps, step)
		}

		if res.Status == scenario.Passed {
			s.Passed++
		} else {
			s.Failed++
		}
		s.Scenarios = append(s.Scenarios, sc)
	}
	return s
}

// OK reports whether every scenario passed.
func (s Summary) OK() bool {
	return s.Failed == 0
}

// JSON encodes the summary for machines.
func JSON(s Summary) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, errs.Wrap(errs.Internal, fmt.Sprintf("encode report: %v", err), err)
	}
	return append(data, '\n'), nil
}

// Artifact is one report file.
type Artifact struct {
	Name        string
	ContentType string
	Body        []byte
}

// Artifacts renders every report format.
func Artifacts(s Summary) ([]Artifact, error) {
	data, err := JSON(s)
	if err != nil {
		return nil, err
	}
	return []Artifact{
		{Name: "report.json", ContentType: "application/json", Body: data},
		{Name: "report.md", ContentType: "text/markdown; charset=utf-8", Body: Markdown(s)},
		{Name: "report.html", ContentType: "text/html; charset=utf-8", Body: HTML(s)},
	}, nil
}
