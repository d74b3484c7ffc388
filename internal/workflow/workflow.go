// Package workflow runs declarative step lists in strict order. Each step is
// either Required, whose failure ends the run, or BestEffort, whose failure
// is handed to a fallback and logged.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bang0930/mcp-web/internal/apiclient"
)

// Policy decides what a step failure means for the run.
type Policy int

const (
	Required Policy = iota
	BestEffort
)

func (p Policy) String() string {
	if p == BestEffort {
		return "best-effort"
	}
	return "required"
}

// Outcome is what happened to one step.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeDegraded  Outcome = "degraded"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// Step is one unit of a workflow.
type Step struct {
	Name   string
	Policy Policy
	// Kind is the sentinel a Required failure is reported as.
	Kind error
	// When, if set, gates the step; false skips it.
	When func() bool
	Run  func(ctx context.Context) error
	// Fallback runs after a BestEffort failure. Its own error is only logged.
	Fallback func(ctx context.Context, err error) error
}

// StepResult records a finished step.
type StepResult struct {
	Name    string        `json:"name" yaml:"name"`
	Policy  string        `json:"policy" yaml:"policy"`
	Outcome Outcome       `json:"outcome" yaml:"outcome"`
	Error   string        `json:"error,omitempty" yaml:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`
}

// Report lists every step that was reached, in order.
type Report struct {
	Steps []StepResult `json:"steps" yaml:"steps"`
}

// Degraded returns the names of best-effort steps that failed.
func (r Report) Degraded() []string {
	var names []string
	for _, s := range r.Steps {
		if s.Outcome == OutcomeDegraded {
			names = append(names, s.Name)
		}
	}
	return names
}

// Outcome returns the recorded outcome of the named step, or "" if it never ran.
func (r Report) Outcome(name string) Outcome {
	for _, s := range r.Steps {
		if s.Name == name {
			return s.Outcome
		}
	}
	return ""
}

// StepError is the terminal error of a run. errors.Is matches both Kind and
// anything in the upstream chain.
type StepError struct {
	Step string
	Kind error
	Err  error
}

func (e *StepError) Error() string {
	msg := apiclient.Message(e.Err)
	if e.Kind == nil {
		return fmt.Sprintf("%s: %s", e.Step, msg)
	}
	return fmt.Sprintf("%v: %s", e.Kind, msg)
}

// Unwrap returns both the kind and the cause.
func (e *StepError) Unwrap() []error {
	if e.Kind == nil {
		return []error{e.Err}
	}
	return []error{e.Kind, e.Err}
}

// Runner executes step lists.
type Runner struct {
	logger *zap.Logger
}

// NewRunner creates a runner logging under the given logger.
func NewRunner(logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{logger: logger}
}

// Run executes steps sequentially. It returns the report of every reached
// step and, when a Required step failed, a *StepError.
func (r *Runner) Run(ctx context.Context, steps []Step) (Report, error) {
	var report Report
	for _, step := range steps {
		if step.When != nil && !step.When() {
			report.Steps = append(report.Steps, StepResult{Name: step.Name, Policy: step.Policy.String(), Outcome: OutcomeSkipped})
			r.logger.Debug("step skipped", zap.String("step", step.Name))
			continue
		}

		start := time.Now()
		err := step.Run(ctx)
		res := StepResult{Name: step.Name, Policy: step.Policy.String(), Elapsed: time.Since(start)}

		if err == nil {
			res.Outcome = OutcomeSucceeded
			report.Steps = append(report.Steps, res)
			r.logger.Debug("step succeeded", zap.String("step", step.Name), zap.Duration("elapsed", res.Elapsed))
			continue
		}

		res.Error = apiclient.Message(err)
		if step.Policy == BestEffort {
			res.Outcome = OutcomeDegraded
			report.Steps = append(report.Steps, res)
			r.logger.Warn("best-effort step failed", append(errorFields(err), zap.String("step", step.Name))...)
			if step.Fallback != nil {
				if ferr := step.Fallback(ctx, err); ferr != nil {
					r.logger.Warn("fallback failed", zap.String("step", step.Name), zap.Error(ferr))
				}
			}
			continue
		}

		res.Outcome = OutcomeFailed
		report.Steps = append(report.Steps, res)
		r.logger.Error("required step failed", append(errorFields(err), zap.String("step", step.Name))...)
		return report, &StepError{Step: step.Name, Kind: step.Kind, Err: err}
	}
	return report, nil
}

func errorFields(err error) []zap.Field {
	fields := []zap.Field{zap.Error(err)}
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		fields = append(fields, zap.String("service", apiErr.Service), zap.Int("status", apiErr.Status))
	}
	var transportErr *apiclient.TransportError
	if errors.As(err, &transportErr) {
		fields = append(fields, zap.String("service", transportErr.Service))
	}
	return fields
}
