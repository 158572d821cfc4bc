package engine

import (
	"context"
	"fmt"

	"github.com/lacquerai/laqcore/internal/ast"
	"github.com/lacquerai/laqcore/internal/execcontext"
	"github.com/lacquerai/laqcore/internal/expression"
)

// runAction resolves an Action step's keyword arguments and invokes the
// registered callable (§4.4).
func (e *Executor) runAction(ctx context.Context, step *ast.Step, wctx *execcontext.WorkflowContext) (interface{}, error) {
	spec := step.Action

	fn, ok := e.registry.Action(spec.Key)
	if !ok {
		return nil, &StepExecutionError{StepName: step.Name, Cause: fmt.Errorf("action %q is not registered", spec.Key)}
	}

	kwargs, err := resolveKwargs(spec.With, wctx)
	if err != nil {
		return nil, &StepExecutionError{StepName: step.Name, Cause: err}
	}

	out, err := fn(ctx, kwargs)
	if err != nil {
		return nil, &StepExecutionError{StepName: step.Name, Cause: err}
	}
	return out, nil
}

// resolveKwargs evaluates every `${{ ... }}` expression nested within a
// keyword-argument map, per §4.4 "With" binding.
func resolveKwargs(with map[string]interface{}, ctx expression.Context) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(with))
	for k, v := range with {
		resolved, err := expression.Resolve(v, ctx)
		if err != nil {
			return nil, fmt.Errorf("with.%s: %w", k, err)
		}
		out[k] = resolved
	}
	return out, nil
}
