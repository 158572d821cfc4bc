package engine

import (
	"context"
	"fmt"

	"github.com/lacquerai/laqcore/internal/ast"
	"github.com/lacquerai/laqcore/internal/execcontext"
)

// runGenerate resolves a Generate step's context and invokes the
// registered generator (§4.6).
func (e *Executor) runGenerate(ctx context.Context, step *ast.Step, wctx *execcontext.WorkflowContext) (interface{}, error) {
	spec := step.Generate

	gen, ok := e.registry.Generator(spec.Key)
	if !ok {
		return nil, &StepExecutionError{StepName: step.Name, Cause: fmt.Errorf("generator %q is not registered", spec.Key)}
	}

	genCtx, err := e.resolveContext(spec.Context, wctx)
	if err != nil {
		return nil, &StepExecutionError{StepName: step.Name, Cause: err}
	}

	out, err := gen.Generate(ctx, genCtx)
	if err != nil {
		return nil, &StepExecutionError{StepName: step.Name, Cause: err}
	}
	return out, nil
}
