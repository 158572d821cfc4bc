package engine

import (
	"context"

	"github.com/lacquerai/laqcore/internal/ast"
	"github.com/lacquerai/laqcore/internal/execcontext"
	"github.com/lacquerai/laqcore/internal/expression"
	"github.com/lacquerai/laqcore/pkg/events"
)

// runBranch evaluates each option's `when` in order and executes the
// first match's inner step, short-circuiting remaining options. A Branch
// with no matching option resolves to SkipMarker (§4.8).
func (e *Executor) runBranch(ctx context.Context, step *ast.Step, wctx *execcontext.WorkflowContext, sink events.Sink, path string) (interface{}, []*execcontext.StepResult, error) {
	for _, opt := range step.Branch.Options {
		matched, err := evaluateCondition(opt.When, wctx)
		if err != nil {
			return nil, nil, &StepExecutionError{StepName: step.Name, Cause: err}
		}
		if !matched {
			continue
		}

		result, err := e.Execute(ctx, opt.Step, wctx, sink, path)
		if err != nil {
			return nil, nil, err
		}
		return result.Output, []*execcontext.StepResult{result}, nil
	}

	return SkipMarker{}, nil, nil
}

// evaluateCondition evaluates a `when`-shaped condition string. An empty
// condition (the branch's default/else option) always matches.
func evaluateCondition(when string, ctx expression.Context) (bool, error) {
	if when == "" {
		return true, nil
	}
	val, err := expression.ResolveString(when, ctx)
	if err != nil {
		return false, err
	}
	return expression.FromGo(val).Truthy(), nil
}
