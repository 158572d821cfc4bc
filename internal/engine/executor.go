// Package engine implements the step executor, the control-flow handlers,
// the top-level workflow runner, and the semantic validator.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/lacquerai/laqcore/internal/ast"
	"github.com/lacquerai/laqcore/internal/execcontext"
	"github.com/lacquerai/laqcore/internal/expression"
	"github.com/lacquerai/laqcore/internal/metrics"
	"github.com/lacquerai/laqcore/internal/registry"
	"github.com/lacquerai/laqcore/pkg/events"
	"github.com/rs/zerolog/log"
)

// SkipMarker is the output value of a step whose `when` condition was
// falsy, or a Branch step with no matching option (§4.3 step 1, §4.8).
type SkipMarker struct{}

// Executor dispatches a step record to its concrete execution and
// measures its duration (§4.3, C6).
type Executor struct {
	registry *registry.Registry
	metrics  *metrics.Recorder
}

// NewExecutor builds an executor bound to a component registry.
func NewExecutor(reg *registry.Registry, rec *metrics.Recorder) *Executor {
	return &Executor{registry: reg, metrics: rec}
}

// Execute runs a single step record against wctx, composing its
// hierarchical step path from parentPath (§4.3 "Step path"). sink may be
// nil, in which case events are dropped.
func (e *Executor) Execute(ctx context.Context, step *ast.Step, wctx *execcontext.WorkflowContext, sink events.Sink, parentPath string) (*execcontext.StepResult, error) {
	return e.ExecuteResumable(ctx, step, wctx, sink, parentPath, nil)
}

// ExecuteResumable is Execute plus an optional checkpoint-resume position
// for a Loop step: when step is the checkpointed step itself, loopResume
// carries the iteration/nested-step position to resume from instead of
// starting the loop from scratch. Every other caller (branch options,
// loop bodies, a Validate step's on_failure) has no resume position of
// its own and passes nil via Execute.
func (e *Executor) ExecuteResumable(ctx context.Context, step *ast.Step, wctx *execcontext.WorkflowContext, sink events.Sink, parentPath string, loopResume *LoopResume) (*execcontext.StepResult, error) {
	path := joinPath(parentPath, step.Name)

	runnable, err := e.evaluateWhen(step, wctx)
	if err != nil {
		return nil, fmt.Errorf("step %q: when: %w", step.Name, err)
	}
	if !runnable {
		result := &execcontext.StepResult{Name: step.Name, Type: step.Type, Success: true, Output: SkipMarker{}}
		wctx.SetResult(step.Name, result)
		return result, nil
	}

	start := time.Now()
	emit(sink, events.ExecutionEvent{
		Type:      events.EventStepStarted,
		StepName:  step.Name,
		StepType:  string(step.Type),
		StepPath:  path,
		Timestamp: start,
	})

	output, nested, execErr := e.dispatch(ctx, step, wctx, sink, path, loopResume)
	duration := execcontext.Elapsed(start)

	result := &execcontext.StepResult{
		Name:       step.Name,
		Type:       step.Type,
		Success:    execErr == nil,
		Output:     output,
		DurationMS: duration,
		Nested:     nested,
	}
	if execErr != nil {
		result.Error = execErr.Error()
		log.Error().Str("step", step.Name).Err(execErr).Msg("step failed")
	}

	emit(sink, events.ExecutionEvent{
		Type:       events.EventStepCompleted,
		StepName:   step.Name,
		StepType:   string(step.Type),
		StepPath:   path,
		Timestamp:  time.Now(),
		Success:    result.Success,
		DurationMS: duration,
		Error:      result.Error,
	})

	if e.metrics != nil {
		e.metrics.ObserveStep(string(step.Type), result.Success, time.Duration(duration)*time.Millisecond)
	}

	wctx.SetResult(step.Name, result)
	return result, execErr
}

// dispatch executes a step's variant-specific body. The second return
// value carries sub-results for control-flow steps (branch's chosen
// option, loop's iterations, subworkflow's inner run); leaf steps always
// return nil.
func (e *Executor) dispatch(ctx context.Context, step *ast.Step, wctx *execcontext.WorkflowContext, sink events.Sink, path string, loopResume *LoopResume) (out interface{}, nested []*execcontext.StepResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, nested, err = nil, nil, &StepExecutionError{StepName: step.Name, Cause: fmt.Errorf("panic: %v", r)}
		}
	}()

	switch step.Type {
	case ast.StepTypeAction:
		out, err := e.runAction(ctx, step, wctx)
		return out, nil, err
	case ast.StepTypeAgent:
		out, err := e.runAgent(ctx, step, wctx)
		return out, nil, err
	case ast.StepTypeGenerate:
		out, err := e.runGenerate(ctx, step, wctx)
		return out, nil, err
	case ast.StepTypeValidate:
		out, err := e.runValidate(ctx, step, wctx, sink, path)
		return out, nil, err
	case ast.StepTypeBranch:
		return e.runBranch(ctx, step, wctx, sink, path)
	case ast.StepTypeLoop:
		return e.runLoop(ctx, step, wctx, sink, path, loopResume)
	case ast.StepTypeSubworkflow:
		return e.runSubworkflow(ctx, step, wctx, sink, path)
	default:
		return nil, nil, fmt.Errorf("unknown step type %q", step.Type)
	}
}

func (e *Executor) evaluateWhen(step *ast.Step, wctx *execcontext.WorkflowContext) (bool, error) {
	if step.When == "" {
		return true, nil
	}
	val, err := expression.ResolveString(step.When, wctx)
	if err != nil {
		return false, err
	}
	return expression.FromGo(val).Truthy(), nil
}

// joinPath composes a "/"-joined hierarchical step path (§4.3 "Step
// path").
func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

func emit(sink events.Sink, e events.ExecutionEvent) {
	if sink == nil {
		return
	}
	sink(e)
}
