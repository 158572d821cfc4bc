package engine

import (
	"context"

	"github.com/lacquerai/laqcore/internal/ast"
	"github.com/lacquerai/laqcore/internal/execcontext"
	"github.com/lacquerai/laqcore/pkg/events"
)

// runValidate resolves the stage list, runs it, and retries on failure up
// to spec.Retry times, executing on_failure between attempts (§4.7).
func (e *Executor) runValidate(ctx context.Context, step *ast.Step, wctx *execcontext.WorkflowContext, sink events.Sink, path string) (interface{}, error) {
	spec := step.Validate

	if wctx.Config == nil {
		// No config: the stage list is empty, which counts as success.
		return execcontext.StageResult{Success: true}, nil
	}

	stages, err := e.resolveStages(spec, wctx)
	if err != nil {
		return nil, err
	}

	attempts := spec.Retry + 1
	var last execcontext.StageResult

	for attempt := 0; attempt < attempts; attempt++ {
		result, err := wctx.Config.RunValidationStages(stages)
		if err != nil {
			return nil, &StepExecutionError{StepName: step.Name, Cause: err}
		}
		last = result
		if result.Success {
			return result, nil
		}

		if attempt < attempts-1 && spec.OnFailure != nil {
			if _, err := e.Execute(ctx, spec.OnFailure, wctx, sink, path); err != nil {
				wctx.Logger.Error().Err(err).Str("step", step.Name).Msg("on_failure step errored; swallowed per retry policy")
			}
		}
	}

	return nil, &ValidationExhaustedError{
		Retries: spec.Retry,
		Last:    StageFailure{Errors: last.Errors},
	}
}

// resolveStages implements §4.7 step 1's resolution order: an explicit
// stage list, a named key looked up in the workflow config, the config's
// default stages, or an empty list if none apply.
func (e *Executor) resolveStages(spec *ast.ValidateSpec, wctx *execcontext.WorkflowContext) ([]string, error) {
	if spec.Stages == nil {
		if wctx.Config == nil {
			return nil, nil
		}
		return wctx.Config.DefaultStages(), nil
	}
	if spec.Stages.List != nil {
		return spec.Stages.List, nil
	}
	if spec.Stages.Key != "" {
		stages, ok := wctx.Config.NamedStages(spec.Stages.Key)
		if !ok {
			return nil, &StageKeyNotFoundError{Key: spec.Stages.Key}
		}
		return stages, nil
	}
	if wctx.Config == nil {
		return nil, nil
	}
	return wctx.Config.DefaultStages(), nil
}
