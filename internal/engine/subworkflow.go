package engine

import (
	"context"
	"fmt"

	"github.com/lacquerai/laqcore/internal/ast"
	"github.com/lacquerai/laqcore/internal/execcontext"
	"github.com/lacquerai/laqcore/internal/expression"
	"github.com/lacquerai/laqcore/pkg/events"
)

// runSubworkflow resolves the target workflow (by registry name, or
// inline), binds its inputs from the calling context, and runs it as a
// nested workflow whose events are attributed under this step's path
// (§4.10).
func (e *Executor) runSubworkflow(ctx context.Context, step *ast.Step, wctx *execcontext.WorkflowContext, sink events.Sink, path string) (interface{}, []*execcontext.StepResult, error) {
	spec := step.Subworkflow

	var target *ast.Workflow
	if spec.Inline != nil {
		target = spec.Inline
	} else {
		wf, ok := e.registry.Subworkflow(spec.Name)
		if !ok {
			return nil, nil, &StepExecutionError{StepName: step.Name, Cause: fmt.Errorf("subworkflow %q is not registered", spec.Name)}
		}
		target = wf
	}

	inputs, err := e.bindSubworkflowInputs(spec.With, wctx)
	if err != nil {
		return nil, nil, &StepExecutionError{StepName: step.Name, Cause: err}
	}

	childSink := events.Prefixed(sink, path)

	// Route through Run(), not runSteps(), so the target workflow gets the
	// same preflight validation, input binding (defaults/required/type
	// checks against its own Inputs declarations), and
	// WorkflowStarted/WorkflowCompleted events a top-level run gets (§4.10).
	runner := NewRunner(e.registry, e.metrics)
	result, err := runner.Run(ctx, target, inputs, wctx.Config, wctx.Logger, childSink, nil)
	if err != nil {
		return nil, nil, &StepExecutionError{StepName: step.Name, Cause: err}
	}

	return result.Output, result.StepResults, nil
}

// bindSubworkflowInputs evaluates each `with` binding expression against
// the calling context to produce the child workflow's input map.
func (e *Executor) bindSubworkflowInputs(with map[string]string, ctx expression.Context) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(with))
	for name, expr := range with {
		val, err := expression.ResolveString(expr, ctx)
		if err != nil {
			return nil, fmt.Errorf("inputs.%s: %w", name, err)
		}
		out[name] = val
	}
	return out, nil
}
