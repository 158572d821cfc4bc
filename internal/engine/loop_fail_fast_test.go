package engine

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/lacquerai/laqcore/internal/ast"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A unit dispatched before a sibling's failure was observed must still
// short-circuit to a skipped state once it reaches the front of the
// semaphore, rather than run its body — fail-fast must hold for
// max_concurrency>1, not just the concurrency==1 case covered by
// TestRunner_LoopSequentialStopsAfterFailure.
//
// GOMAXPROCS(1) makes this deterministic: "fail" is spawned last, lands
// in the current P's runnext slot, and runs to completion (a pure,
// non-blocking failure) before the scheduler gives "a" or "b" any CPU
// time at all, so both see failed already set when they finally run.
func TestRunner_LoopParallelFailFastSkipsAlreadyDispatchedIterations(t *testing.T) {
	prevProcs := runtime.GOMAXPROCS(1)
	defer runtime.GOMAXPROCS(prevProcs)

	var otherCalls int32

	wf := &ast.Workflow{
		Version: "1.0.0",
		Name:    "loop_parallel_fail_fast",
		Inputs: ast.InputParams{
			Order: []string{"items"},
			Items: map[string]*ast.InputParam{"items": {Name: "items", Type: ast.InputTypeArray}},
		},
		Steps: []*ast.Step{
			{
				Name: "process_all",
				Type: ast.StepTypeLoop,
				Loop: &ast.LoopSpec{
					ForEach:        "${{ inputs.items }}",
					MaxConcurrency: 2,
					Steps:          []*ast.Step{actionStep("process", "process", map[string]interface{}{"item": "${{ item }}"})},
				},
			},
		},
	}

	runner := newRunner(t, map[string]registryActionFunc{
		"process": func(ctx context.Context, kwargs map[string]interface{}) (interface{}, error) {
			if kwargs["item"] == "fail" {
				return nil, fmt.Errorf("item fail is bad")
			}
			atomic.AddInt32(&otherCalls, 1)
			return kwargs["item"], nil
		},
	})

	inputs := map[string]interface{}{"items": []interface{}{"a", "b", "fail"}}
	result, err := runner.Run(context.Background(), wf, inputs, nil, zerolog.Nop(), nil, nil)

	require.Error(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, int32(0), atomic.LoadInt32(&otherCalls),
		"iterations already dispatched when a sibling fails must be skipped once they reach the semaphore, not executed")
}
