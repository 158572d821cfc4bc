package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/lacquerai/laqcore/internal/ast"
	"github.com/lacquerai/laqcore/internal/checkpoint"
	"github.com/lacquerai/laqcore/internal/execcontext"
	"github.com/lacquerai/laqcore/internal/metrics"
	"github.com/lacquerai/laqcore/internal/registry"
	"github.com/lacquerai/laqcore/pkg/events"
	"github.com/rs/zerolog"
)

// WorkflowResult is the outcome of a top-level workflow run (§4.11): the
// ordered result of every top-level step, the final output (the last
// executed step's output), and the aggregate outcome.
type WorkflowResult struct {
	Success     bool
	Output      interface{}
	StepResults []*execcontext.StepResult
	DurationMS  int64
}

// Runner drives a whole workflow run: preflight validation, input
// binding, sequential step execution with fail-stop-on-failure, and
// rollback on failure (C8, §4.11).
type Runner struct {
	executor *Executor
	registry *registry.Registry
	metrics  *metrics.Recorder
}

// NewRunner builds a Runner bound to a component registry and (optional)
// metrics recorder.
func NewRunner(reg *registry.Registry, rec *metrics.Recorder) *Runner {
	return &Runner{executor: NewExecutor(reg, rec), registry: reg, metrics: rec}
}

// Run executes wf end to end against rawInputs, emitting the full
// lifecycle event sequence to sink (which may be nil). resume, when
// non-nil, resumes a prior failed run from its saved checkpoint
// (already-completed steps are restored rather than re-executed, and a
// loop step in progress at the time of failure resumes mid-iteration) in
// place of rawInputs.
func (r *Runner) Run(ctx context.Context, wf *ast.Workflow, rawInputs map[string]interface{}, cfg execcontext.Config, logger zerolog.Logger, sink events.Sink, resume *checkpoint.Checkpoint) (*WorkflowResult, error) {
	start := time.Now()

	if resume != nil {
		rawInputs = resume.Inputs
	}

	emit(sink, events.ExecutionEvent{Type: events.EventPreflightStarted, WorkflowName: wf.Name, Timestamp: time.Now(), TotalSteps: len(wf.Steps)})
	validator := NewValidator(r.registry)
	if err := validator.Validate(wf); err != nil {
		emit(sink, events.ExecutionEvent{Type: events.EventPreflightCompleted, WorkflowName: wf.Name, Timestamp: time.Now(), Success: false, Error: err.Error()})
		return nil, err
	}
	emit(sink, events.ExecutionEvent{Type: events.EventPreflightCompleted, WorkflowName: wf.Name, Timestamp: time.Now(), Success: true})

	emit(sink, events.ExecutionEvent{Type: events.EventValidationStarted, WorkflowName: wf.Name, Timestamp: time.Now()})
	inputs, err := bindInputs(wf, rawInputs)
	if err != nil {
		emit(sink, events.ExecutionEvent{Type: events.EventValidationCompleted, WorkflowName: wf.Name, Timestamp: time.Now(), Success: false, Error: err.Error()})
		return nil, err
	}
	emit(sink, events.ExecutionEvent{Type: events.EventValidationCompleted, WorkflowName: wf.Name, Timestamp: time.Now(), Success: true})

	wctx := execcontext.New(inputs, cfg, logger)

	emit(sink, events.ExecutionEvent{Type: events.EventWorkflowStarted, WorkflowName: wf.Name, Timestamp: time.Now(), TotalSteps: len(wf.Steps)})

	result, runErr := r.runSteps(ctx, wf, wctx, sink, resume)
	result.DurationMS = execcontext.Elapsed(start)

	if runErr != nil {
		wctx.RunRollbacks(func(rollbackErr error) {
			logger.Error().Err(rollbackErr).Msg("rollback failed; continuing with remaining rollbacks")
		})
	}

	emit(sink, events.ExecutionEvent{
		Type:         events.EventWorkflowCompleted,
		WorkflowName: wf.Name,
		Timestamp:    time.Now(),
		Success:      result.Success,
		DurationMS:   result.DurationMS,
	})

	if r.metrics != nil {
		r.metrics.ObserveWorkflow(result.Success, time.Duration(result.DurationMS)*time.Millisecond)
	}

	return result, runErr
}

// runSteps executes wf's top-level steps in declaration order against an
// already-constructed context, stopping at the first failure (§5
// fail-fast, sequential top level). When resume is non-nil, steps before
// resume.NextStepIndex are restored from resume.Results into wctx rather
// than re-executed, and the step at resume.NextStepIndex is resumed
// mid-loop if resume.LoopPositions names it.
func (r *Runner) runSteps(ctx context.Context, wf *ast.Workflow, wctx *execcontext.WorkflowContext, sink events.Sink, resume *checkpoint.Checkpoint) (*WorkflowResult, error) {
	result := &WorkflowResult{StepResults: make([]*execcontext.StepResult, 0, len(wf.Steps))}

	startIndex := 0
	var lastOutput interface{}
	if resume != nil {
		startIndex = resume.NextStepIndex
		for i := 0; i < startIndex && i < len(wf.Steps); i++ {
			step := wf.Steps[i]
			stepResult, ok := resume.Results[step.Name]
			if !ok {
				break
			}
			wctx.SetResult(step.Name, stepResult)
			result.StepResults = append(result.StepResults, stepResult)
			lastOutput = stepResult.Output
		}
	}

	for i := startIndex; i < len(wf.Steps); i++ {
		step := wf.Steps[i]

		var loopResume *LoopResume
		if resume != nil && i == startIndex {
			if pos, ok := resume.LoopPositions[step.Name]; ok {
				loopResume = &LoopResume{IterationIndex: pos.IterationIndex, AfterNestedStepIndex: pos.AfterNestedStepIndex}
			}
		}

		stepResult, err := r.executor.ExecuteResumable(ctx, step, wctx, sink, "", loopResume)
		if stepResult != nil {
			result.StepResults = append(result.StepResults, stepResult)
			lastOutput = stepResult.Output
		}
		if err != nil {
			result.Success = false
			result.Output = lastOutput
			return result, err
		}
	}

	result.Success = true
	result.Output = lastOutput
	return result, nil
}

// bindInputs resolves the caller's raw inputs against the workflow's
// declarations: required inputs must be present, declared defaults fill
// in absent optional inputs, and every bound value is checked against its
// declared type (§4.11 step 2).
func bindInputs(wf *ast.Workflow, raw map[string]interface{}) (map[string]interface{}, error) {
	bound := make(map[string]interface{}, wf.Inputs.Len())

	for _, name := range wf.Inputs.Order {
		decl := wf.Inputs.Items[name]
		val, provided := raw[name]

		if !provided {
			if decl.HasDefault {
				bound[name] = decl.Default
				continue
			}
			if decl.Required {
				return nil, &InputBindingError{Input: name, Message: "required input was not provided"}
			}
			continue
		}

		if err := checkInputType(decl.Type, val); err != nil {
			return nil, &InputBindingError{Input: name, Message: err.Error()}
		}
		bound[name] = val
	}

	return bound, nil
}

func checkInputType(declared ast.InputType, val interface{}) error {
	switch declared {
	case ast.InputTypeString:
		if _, ok := val.(string); !ok {
			return fmt.Errorf("expected string, got %T", val)
		}
	case ast.InputTypeInteger:
		switch val.(type) {
		case int, int64, float64, float32:
		default:
			return fmt.Errorf("expected integer, got %T", val)
		}
	case ast.InputTypeBoolean:
		if _, ok := val.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", val)
		}
	case ast.InputTypeArray:
		if _, ok := val.([]interface{}); !ok {
			return fmt.Errorf("expected array, got %T", val)
		}
	case ast.InputTypeObject:
		if _, ok := val.(map[string]interface{}); !ok {
			return fmt.Errorf("expected object, got %T", val)
		}
	}
	return nil
}
