package engine

import (
	"context"
	"fmt"

	"github.com/lacquerai/laqcore/internal/ast"
	"github.com/lacquerai/laqcore/internal/execcontext"
	"github.com/lacquerai/laqcore/internal/expression"
)

// runAgent resolves an Agent step's context and invokes the registered
// agent (§4.5).
func (e *Executor) runAgent(ctx context.Context, step *ast.Step, wctx *execcontext.WorkflowContext) (interface{}, error) {
	spec := step.Agent

	agent, ok := e.registry.Agent(spec.Key)
	if !ok {
		return nil, &StepExecutionError{StepName: step.Name, Cause: fmt.Errorf("agent %q is not registered", spec.Key)}
	}

	agentCtx, err := e.resolveContext(spec.Context, wctx)
	if err != nil {
		return nil, &StepExecutionError{StepName: step.Name, Cause: err}
	}

	out, err := agent.Execute(ctx, agentCtx)
	if err != nil {
		return nil, &StepExecutionError{StepName: step.Name, Cause: err}
	}
	return out, nil
}

// resolveContext builds the map an Agent or Generate step passes to its
// component: a static, expression-resolved map, or the result of invoking
// a named context-builder with the bound inputs and completed step
// results (§4.5/§4.6).
func (e *Executor) resolveContext(spec *ast.ContextSpec, wctx *execcontext.WorkflowContext) (map[string]interface{}, error) {
	if spec == nil {
		return map[string]interface{}{}, nil
	}
	if spec.Builder != "" {
		builder, ok := e.registry.ContextBuilder(spec.Builder)
		if !ok {
			return nil, fmt.Errorf("context builder %q is not registered", spec.Builder)
		}
		return builder(wctx.Inputs, wctx.StepResultsAsGo())
	}

	resolved, err := expression.Resolve(map[string]interface{}(spec.Static), wctx)
	if err != nil {
		return nil, fmt.Errorf("context: %w", err)
	}
	out, ok := resolved.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("context: expected a map after resolution, got %T", resolved)
	}
	return out, nil
}
