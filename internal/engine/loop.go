package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/lacquerai/laqcore/internal/ast"
	"github.com/lacquerai/laqcore/internal/execcontext"
	"github.com/lacquerai/laqcore/internal/expression"
	"github.com/lacquerai/laqcore/pkg/events"
)

// LoopResume carries the checkpoint-resume position for a Loop step: the
// first iteration to (re-)run, and, within that iteration, the index of the
// last nested body step already completed (the iteration resumes at the
// body step after it). A nil resume means "start from scratch".
type LoopResume struct {
	IterationIndex      int
	AfterNestedStepIndex int
}

// loopOutput is the consolidated shape a Loop step returns: every
// iteration's result in original order, plus the flat event log recorded
// locally for every iteration, whether or not an external sink is attached
// (§4.9).
type loopOutput struct {
	Results []interface{}            `json:"results"`
	Events  []events.ExecutionEvent  `json:"events"`
}

// runLoop executes a Loop step's body either once per for_each item, or
// once per declared inner step when for_each is absent ("task-set" mode),
// per §4.9.
func (e *Executor) runLoop(ctx context.Context, step *ast.Step, wctx *execcontext.WorkflowContext, sink events.Sink, path string, resume *LoopResume) (interface{}, []*execcontext.StepResult, error) {
	spec := step.Loop

	recorder := events.NewRecorder()
	effectiveSink := sink
	if effectiveSink == nil {
		effectiveSink = events.RecorderSink(recorder)
	} else {
		// Every iteration's events are both forwarded to the caller's sink
		// and captured locally, so the loop's own consolidated output
		// always has an events log regardless of whether an external
		// listener is attached (§4.9).
		original := effectiveSink
		effectiveSink = func(ev events.ExecutionEvent) {
			recorder.Record(ev)
			original(ev)
		}
	}

	type unit struct {
		index int
		item  interface{}
		hasItem bool
	}

	var units []unit
	if spec.ForEach != "" {
		items, err := e.resolveForEachItems(spec.ForEach, wctx)
		if err != nil {
			return nil, nil, &StepExecutionError{StepName: step.Name, Cause: err}
		}
		units = make([]unit, len(items))
		for i, it := range items {
			units[i] = unit{index: i, item: it, hasItem: true}
		}
	} else {
		units = make([]unit, len(spec.Steps))
		for i := range spec.Steps {
			units[i] = unit{index: i, hasItem: false}
		}
	}

	startAt := 0
	if resume != nil {
		startAt = resume.IterationIndex
	}

	results := make([]interface{}, len(units))
	resultSet := make([]bool, len(units))

	concurrency := spec.EffectiveConcurrency()
	var sem chan struct{}
	if concurrency > 0 {
		sem = make(chan struct{}, concurrency)
	}

	var failed atomic.Bool
	var mu sync.Mutex
	var failures []IterationFailure
	var wg sync.WaitGroup

	runOne := func(u unit) {
		if sem != nil {
			sem <- struct{}{}
			defer func() { <-sem }()
		}

		// Fail-fast: a unit that was spawned before a sibling failed but
		// only reaches the front of the semaphore queue afterward must
		// still short-circuit to a skipped state rather than run (§5,
		// §4.9) — the pre-spawn check in the dispatch loop below only
		// stops new units from being *queued*, it cannot stop a queued
		// one from running once a slot frees.
		if failed.Load() {
			mu.Lock()
			results[u.index] = SkipMarker{}
			resultSet[u.index] = true
			mu.Unlock()
			return
		}

		label := extractLabel(u.item, u.index, u.hasItem)

		emit(effectiveSink, events.ExecutionEvent{
			Type:            events.EventLoopIterationStarted,
			StepName:        step.Name,
			StepPath:        path,
			IterationIndex:  u.index,
			TotalIterations: len(units),
			ItemLabel:       label,
			ParentStepName:  step.Name,
		})

		iterCtx := wctx
		if u.hasItem {
			iterCtx = wctx.DeriveIteration(u.item, u.index, step.Name)
		} else {
			iterCtx = wctx.DeriveIteration(nil, u.index, step.Name)
			iterCtx.Iteration.HasItem = false
		}

		bodySteps := spec.Steps
		if spec.ForEach == "" {
			bodySteps = []*ast.Step{spec.Steps[u.index]}
		}

		var out interface{}
		var iterErr error
		iterPath := fmt.Sprintf("%s/[%d]", path, u.index)

		for bi := startBodyIndex(u.index, startAt, resume); bi < len(bodySteps); bi++ {
			bodyStep := bodySteps[bi]
			var stepResult *execcontext.StepResult
			stepResult, iterErr = e.Execute(ctx, bodyStep, iterCtx, effectiveSink, iterPath)
			if iterErr != nil {
				break
			}
			out = stepResult.Output
		}

		emit(effectiveSink, events.ExecutionEvent{
			Type:            events.EventLoopIterationCompleted,
			StepName:        step.Name,
			StepPath:        path,
			IterationIndex:  u.index,
			TotalIterations: len(units),
			ItemLabel:       label,
			ParentStepName:  step.Name,
			Success:         iterErr == nil,
		})

		mu.Lock()
		results[u.index] = out
		resultSet[u.index] = true
		if iterErr != nil {
			failures = append(failures, IterationFailure{Index: u.index, Error: iterErr.Error()})
			failed.Store(true)
		}
		mu.Unlock()
	}

	for _, u := range units {
		if u.index < startAt {
			continue
		}
		// Fail-fast: do not start iterations begun after a failure has
		// already been observed, but let in-flight work finish rather
		// than forcing cancellation (§5).
		if failed.Load() {
			break
		}
		u := u
		wg.Add(1)
		go func() {
			defer wg.Done()
			runOne(u)
		}()
		if concurrency == 1 {
			wg.Wait()
		}
	}
	wg.Wait()

	out := loopOutput{Results: results, Events: recorder.Events()}

	if len(failures) > 0 {
		return out, nil, &LoopStepExecutionError{TotalIterations: len(units), Failures: failures}
	}
	return out, nil, nil
}

// startBodyIndex resolves the first body step index to run within one
// iteration, honoring a checkpoint resume position for exactly the
// iteration it targets.
func startBodyIndex(unitIndex, startAt int, resume *LoopResume) int {
	if resume != nil && unitIndex == resume.IterationIndex {
		return resume.AfterNestedStepIndex + 1
	}
	return 0
}

// resolveForEachItems evaluates the for_each expression and normalizes
// its result into an ordered item slice.
func (e *Executor) resolveForEachItems(forEach string, ctx expression.Context) ([]interface{}, error) {
	val, err := expression.ResolveString(forEach, ctx)
	if err != nil {
		return nil, err
	}
	switch v := val.(type) {
	case []interface{}:
		return v, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("for_each: expected an array, got %T", val)
	}
}

// extractLabel derives a human-readable label for a loop iteration
// (§4.9): the first present of a map item's label/name/title/phase/id
// keys, else the item's string form, else "Item <index+1>".
func extractLabel(item interface{}, index int, hasItem bool) string {
	if hasItem {
		if m, ok := item.(map[string]interface{}); ok {
			for _, key := range []string{"label", "name", "title", "phase", "id"} {
				if v, ok := m[key]; ok {
					return fmt.Sprintf("%v", v)
				}
			}
		}
		if s, ok := item.(string); ok && s != "" {
			return s
		}
	}
	return fmt.Sprintf("Item %d", index+1)
}
