package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/lacquerai/laqcore/internal/ast"
	"github.com/lacquerai/laqcore/internal/execcontext"
	"github.com/lacquerai/laqcore/pkg/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func actionStep(name, action string, with map[string]interface{}) *ast.Step {
	return &ast.Step{Name: name, Type: ast.StepTypeAction, Action: &ast.ActionSpec{Key: action, With: with}}
}

func echoAction(out interface{}, err error) registryActionFunc {
	return func(ctx context.Context, kwargs map[string]interface{}) (interface{}, error) {
		return out, err
	}
}

// registryActionFunc mirrors registry.ActionFunc's signature locally so
// this file does not need to import internal/registry just for the type.
type registryActionFunc = func(ctx context.Context, kwargs map[string]interface{}) (interface{}, error)

func newRunner(t *testing.T, actions map[string]registryActionFunc) *Runner {
	t.Helper()
	reg := newTestRegistry(t, actions)
	return NewRunner(reg, nil)
}

func TestRunner_TrivialActionFlow(t *testing.T) {
	wf := &ast.Workflow{
		Version: "1.0.0",
		Name:    "trivial",
		Steps: []*ast.Step{
			actionStep("say_hello", "greet", map[string]interface{}{"who": "ada"}),
		},
	}

	runner := newRunner(t, map[string]registryActionFunc{
		"greet": echoAction("hello ada", nil),
	})

	result, err := runner.Run(context.Background(), wf, nil, nil, zerolog.Nop(), nil, nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "hello ada", result.Output)
	require.Len(t, result.StepResults, 1)
	assert.True(t, result.StepResults[0].Success)
}

func TestRunner_SequentialFailFast(t *testing.T) {
	var secondCalls int32

	wf := &ast.Workflow{
		Version: "1.0.0",
		Name:    "fail_fast",
		Steps: []*ast.Step{
			actionStep("will_fail", "boom", nil),
			actionStep("never_runs", "count", nil),
		},
	}

	runner := newRunner(t, map[string]registryActionFunc{
		"boom": echoAction(nil, fmt.Errorf("deliberate failure")),
		"count": func(ctx context.Context, kwargs map[string]interface{}) (interface{}, error) {
			atomic.AddInt32(&secondCalls, 1)
			return nil, nil
		},
	})

	result, err := runner.Run(context.Background(), wf, nil, nil, zerolog.Nop(), nil, nil)
	require.Error(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, int32(0), atomic.LoadInt32(&secondCalls), "sibling step must not run after a failure")
	require.Len(t, result.StepResults, 1, "only the failed step's result is recorded")
}

func TestRunner_BranchFallthrough(t *testing.T) {
	wf := &ast.Workflow{
		Version: "1.0.0",
		Name:    "branching",
		Inputs: ast.InputParams{
			Order: []string{"is_prod"},
			Items: map[string]*ast.InputParam{"is_prod": {Name: "is_prod", Type: ast.InputTypeBoolean}},
		},
		Steps: []*ast.Step{
			{
				Name: "pick_env",
				Type: ast.StepTypeBranch,
				Branch: &ast.BranchSpec{Options: []ast.BranchOption{
					{When: "${{ inputs.is_prod }}", Step: actionStep("deploy_prod", "deploy", map[string]interface{}{"env": "prod"})},
					{When: "", Step: actionStep("deploy_dev", "deploy", map[string]interface{}{"env": "dev"})},
				}},
			},
		},
	}

	var envsSeen []string
	runner := newRunner(t, map[string]registryActionFunc{
		"deploy": func(ctx context.Context, kwargs map[string]interface{}) (interface{}, error) {
			envsSeen = append(envsSeen, kwargs["env"].(string))
			return kwargs["env"], nil
		},
	})

	result, err := runner.Run(context.Background(), wf, map[string]interface{}{"is_prod": false}, nil, zerolog.Nop(), nil, nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"dev"}, envsSeen, "falsy branch condition falls through to the else option")
	assert.Equal(t, "dev", result.Output)
}

func TestRunner_BranchNoMatchSkips(t *testing.T) {
	wf := &ast.Workflow{
		Version: "1.0.0",
		Name:    "branching_skip",
		Inputs: ast.InputParams{
			Order: []string{"never"},
			Items: map[string]*ast.InputParam{"never": {Name: "never", Type: ast.InputTypeBoolean}},
		},
		Steps: []*ast.Step{
			{
				Name: "pick",
				Type: ast.StepTypeBranch,
				Branch: &ast.BranchSpec{Options: []ast.BranchOption{
					{When: "${{ inputs.never }}", Step: actionStep("only_if_never", "noop", nil)},
				}},
			},
		},
	}

	runner := newRunner(t, map[string]registryActionFunc{
		"noop": echoAction("ran", nil),
	})

	result, err := runner.Run(context.Background(), wf, map[string]interface{}{"never": false}, nil, zerolog.Nop(), nil, nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	_, ok := result.Output.(SkipMarker)
	assert.True(t, ok, "a branch with no matching option resolves to a skip marker")
}

func TestRunner_LoopSequentialStopsAfterFailure(t *testing.T) {
	var calls []interface{}
	var mu sync.Mutex

	wf := &ast.Workflow{
		Version: "1.0.0",
		Name:    "loop_fail_fast",
		Inputs: ast.InputParams{
			Order: []string{"items"},
			Items: map[string]*ast.InputParam{"items": {Name: "items", Type: ast.InputTypeArray}},
		},
		Steps: []*ast.Step{
			{
				Name: "process_all",
				Type: ast.StepTypeLoop,
				Loop: &ast.LoopSpec{
					ForEach: "${{ inputs.items }}",
					Steps:   []*ast.Step{actionStep("process", "process", map[string]interface{}{"item": "${{ item }}"})},
				},
			},
		},
	}

	runner := newRunner(t, map[string]registryActionFunc{
		"process": func(ctx context.Context, kwargs map[string]interface{}) (interface{}, error) {
			mu.Lock()
			calls = append(calls, kwargs["item"])
			mu.Unlock()
			if kwargs["item"] == "b" {
				return nil, fmt.Errorf("item b is bad")
			}
			return kwargs["item"], nil
		},
	})

	inputs := map[string]interface{}{"items": []interface{}{"a", "b", "c"}}
	result, err := runner.Run(context.Background(), wf, inputs, nil, zerolog.Nop(), nil, nil)
	require.Error(t, err)
	assert.False(t, result.Success)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []interface{}{"a", "b"}, calls, "concurrency 1 must stop before starting the iteration after a failure")
}

func TestRunner_LoopParallelPreservesResultOrder(t *testing.T) {
	parallel := true
	wf := &ast.Workflow{
		Version: "1.0.0",
		Name:    "loop_parallel",
		Inputs: ast.InputParams{
			Order: []string{"items"},
			Items: map[string]*ast.InputParam{"items": {Name: "items", Type: ast.InputTypeArray}},
		},
		Steps: []*ast.Step{
			{
				Name: "process_all",
				Type: ast.StepTypeLoop,
				Loop: &ast.LoopSpec{
					ForEach:  "${{ inputs.items }}",
					Parallel: &parallel,
					Steps:    []*ast.Step{actionStep("square", "square", map[string]interface{}{"n": "${{ item }}"})},
				},
			},
		},
	}

	runner := newRunner(t, map[string]registryActionFunc{
		"square": func(ctx context.Context, kwargs map[string]interface{}) (interface{}, error) {
			n := kwargs["n"].(float64)
			return n * n, nil
		},
	})

	inputs := map[string]interface{}{"items": []interface{}{1, 2, 3, 4}}
	result, err := runner.Run(context.Background(), wf, inputs, nil, zerolog.Nop(), nil, nil)
	require.NoError(t, err)
	assert.True(t, result.Success)

	out, ok := result.Output.(loopOutput)
	require.True(t, ok)
	assert.Equal(t, []interface{}{1.0, 4.0, 9.0, 16.0}, out.Results, "results stay in item order regardless of completion order")
}

func TestRunner_TemplateResolutionFromInputsAndSteps(t *testing.T) {
	wf := &ast.Workflow{
		Version: "1.0.0",
		Name:    "templating",
		Inputs: ast.InputParams{
			Order: []string{"name"},
			Items: map[string]*ast.InputParam{"name": {Name: "name", Type: ast.InputTypeString}},
		},
		Steps: []*ast.Step{
			actionStep("build_greeting", "format", map[string]interface{}{"text": "hello ${{ inputs.name }}"}),
			actionStep("shout", "format", map[string]interface{}{"text": "${{ steps.build_greeting.output }}!"}),
		},
	}

	runner := newRunner(t, map[string]registryActionFunc{
		"format": func(ctx context.Context, kwargs map[string]interface{}) (interface{}, error) {
			return kwargs["text"], nil
		},
	})

	result, err := runner.Run(context.Background(), wf, map[string]interface{}{"name": "ada"}, nil, zerolog.Nop(), nil, nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "hello ada!", result.Output)
}

func TestRunner_PreflightPreemptsExecution(t *testing.T) {
	wf := &ast.Workflow{
		Version: "1.0.0",
		Name:    "bad_reference",
		Steps: []*ast.Step{
			actionStep("use_unregistered", "does_not_exist", nil),
		},
	}

	runner := newRunner(t, map[string]registryActionFunc{})

	result, err := runner.Run(context.Background(), wf, nil, nil, zerolog.Nop(), nil, nil)
	require.Error(t, err)
	assert.Nil(t, result, "a preflight failure never produces a workflow result")
	assert.Contains(t, err.Error(), "does_not_exist")
}

func TestRunner_RequiredInputMissingFailsBeforeWorkflowStarted(t *testing.T) {
	wf := &ast.Workflow{
		Version: "1.0.0",
		Name:    "requires_input",
		Inputs: ast.InputParams{
			Order: []string{"name"},
			Items: map[string]*ast.InputParam{"name": {Name: "name", Type: ast.InputTypeString, Required: true}},
		},
		Steps: []*ast.Step{
			actionStep("greet", "greet", nil),
		},
	}

	var started bool
	sink := events.Sink(func(e events.ExecutionEvent) {
		if e.Type == events.EventWorkflowStarted {
			started = true
		}
	})

	runner := newRunner(t, map[string]registryActionFunc{
		"greet": echoAction("hi", nil),
	})

	result, err := runner.Run(context.Background(), wf, nil, nil, zerolog.Nop(), sink, nil)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.False(t, started, "input binding failures must pre-empt workflow_started")

	var bindErr *InputBindingError
	require.ErrorAs(t, err, &bindErr)
	assert.Equal(t, "name", bindErr.Input)
}

func TestRunner_EventsPairStartAndCompleteByStepPath(t *testing.T) {
	wf := &ast.Workflow{
		Version: "1.0.0",
		Name:    "events",
		Steps: []*ast.Step{
			actionStep("one", "noop", nil),
			actionStep("two", "noop", nil),
		},
	}

	runner := newRunner(t, map[string]registryActionFunc{
		"noop": echoAction("ok", nil),
	})

	var mu sync.Mutex
	var collected []events.ExecutionEvent
	sink := events.Sink(func(e events.ExecutionEvent) {
		mu.Lock()
		collected = append(collected, e)
		mu.Unlock()
	})

	result, err := runner.Run(context.Background(), wf, nil, nil, zerolog.Nop(), sink, nil)
	require.NoError(t, err)
	assert.True(t, result.Success)

	started := map[string]bool{}
	completed := map[string]bool{}
	for _, e := range collected {
		switch e.Type {
		case events.EventStepStarted:
			started[e.StepPath] = true
		case events.EventStepCompleted:
			completed[e.StepPath] = true
		}
	}
	assert.Equal(t, started, completed, "every started step path must have a matching completed event")
	assert.True(t, started["one"])
	assert.True(t, started["two"])
}

func TestRunner_ValidateRetriesThenSucceeds(t *testing.T) {
	var onFailureCalls int32

	wf := &ast.Workflow{
		Version: "1.0.0",
		Name:    "validate_retry",
		Steps: []*ast.Step{
			{
				Name: "check_output",
				Type: ast.StepTypeValidate,
				Validate: &ast.ValidateSpec{
					Retry:     2,
					OnFailure: actionStep("log_retry", "bump", nil),
				},
			},
		},
	}

	cfg := &fakeConfig{
		run: func(attempt int, stages []string) (execcontext.StageResult, error) {
			if attempt < 2 {
				return execcontext.StageResult{Success: false, Errors: []string{"not ready yet"}}, nil
			}
			return execcontext.StageResult{Success: true}, nil
		},
	}

	runner := newRunner(t, map[string]registryActionFunc{
		"bump": func(ctx context.Context, kwargs map[string]interface{}) (interface{}, error) {
			atomic.AddInt32(&onFailureCalls, 1)
			return nil, nil
		},
	})

	result, err := runner.Run(context.Background(), wf, nil, cfg, zerolog.Nop(), nil, nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int32(2), atomic.LoadInt32(&onFailureCalls), "on_failure runs between failed attempts, not after the final success")
}

func TestRunner_ValidateExhaustsRetries(t *testing.T) {
	wf := &ast.Workflow{
		Version: "1.0.0",
		Name:    "validate_exhausted",
		Steps: []*ast.Step{
			{
				Name:     "check_output",
				Type:     ast.StepTypeValidate,
				Validate: &ast.ValidateSpec{Retry: 1},
			},
		},
	}

	cfg := &fakeConfig{
		run: func(attempt int, stages []string) (execcontext.StageResult, error) {
			return execcontext.StageResult{Success: false, Errors: []string{"still broken"}}, nil
		},
	}

	runner := newRunner(t, map[string]registryActionFunc{})

	result, err := runner.Run(context.Background(), wf, nil, cfg, zerolog.Nop(), nil, nil)
	require.Error(t, err)
	assert.False(t, result.Success)

	var exhausted *ValidationExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 1, exhausted.Retries)
}

func TestBindInputs_DefaultsAndTypeChecking(t *testing.T) {
	wf := &ast.Workflow{
		Inputs: ast.InputParams{
			Order: []string{"retries", "label"},
			Items: map[string]*ast.InputParam{
				"retries": {Name: "retries", Type: ast.InputTypeInteger, Default: 3, HasDefault: true},
				"label":   {Name: "label", Type: ast.InputTypeString, Required: true},
			},
		},
	}

	bound, err := bindInputs(wf, map[string]interface{}{"label": "release"})
	require.NoError(t, err)
	assert.Equal(t, 3, bound["retries"])
	assert.Equal(t, "release", bound["label"])

	_, err = bindInputs(wf, map[string]interface{}{"label": 42})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected string")

	_, err = bindInputs(wf, map[string]interface{}{})
	require.Error(t, err)
	var bindErr *InputBindingError
	require.ErrorAs(t, err, &bindErr)
	assert.Equal(t, "label", bindErr.Input)
}
