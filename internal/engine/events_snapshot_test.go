package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/gkampitakis/go-snaps/snaps"
	"github.com/lacquerai/laqcore/internal/ast"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/lacquerai/laqcore/pkg/events"
)

// Pins the shape and ordering of the lifecycle event stream (§4.3) for a
// workflow that exercises a branch and a sequential loop, so a change to
// event emission order or step-path composition shows up as a snapshot
// diff. Timestamp/duration fields are non-deterministic and projected out.
func TestRunner_EventStreamSnapshot(t *testing.T) {
	sequential := false
	wf := &ast.Workflow{
		Version: "1.0.0",
		Name:    "event_fixture",
		Steps: []*ast.Step{
			actionStep("seed", "noop", nil),
			{
				Name: "pick",
				Type: ast.StepTypeBranch,
				Branch: &ast.BranchSpec{
					Options: []ast.BranchOption{
						{When: "${{ steps.seed.output }}", Step: actionStep("on_match", "noop", nil)},
						{When: "", Step: actionStep("on_default", "noop", nil)},
					},
				},
			},
			{
				Name: "iterate",
				Type: ast.StepTypeLoop,
				Loop: &ast.LoopSpec{
					ForEach:  "${{ inputs.items }}",
					Parallel: &sequential,
					Steps: []*ast.Step{
						actionStep("process", "noop", nil),
					},
				},
			},
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

	inputs := map[string]interface{}{"items": []interface{}{"a", "b"}}
	result, err := runner.Run(context.Background(), wf, inputs, nil, zerolog.Nop(), sink, nil)
	require.NoError(t, err)
	require.True(t, result.Success)

	var lines []string
	for _, e := range collected {
		lines = append(lines, fmt.Sprintf("%s path=%q success=%v", e.Type, e.StepPath, e.Success))
	}

	snaps.MatchSnapshot(t, lines)
}
