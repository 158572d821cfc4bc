// Package execcontext implements the mutable per-run workflow context
// (§3/§4/§5): bound inputs, completed step results, iteration-local
// variables, the config handle, and the rollback log.
package execcontext

import (
	"sync"
	"time"

	"github.com/lacquerai/laqcore/internal/ast"
	"github.com/rs/zerolog"
)

// StepResult is the immutable record of a single step's execution, §3.
type StepResult struct {
	Name       string
	Type       ast.StepType
	Success    bool
	Output     interface{}
	Error      string
	DurationMS int64
	// Nested holds sub-results for control-flow steps (branch's chosen
	// inner step, loop's per-iteration steps, subworkflow's inner run).
	Nested []*StepResult
}

// Config is the opaque handle the Validate step uses to resolve and run
// validation stages (§3/§6). Concrete implementations live in
// internal/config; this interface is all the engine depends on.
type Config interface {
	// DefaultStages returns the stage list to use when a Validate step
	// names no stages at all.
	DefaultStages() []string
	// NamedStages looks up a stage list by key.
	NamedStages(key string) ([]string, bool)
	// RunValidationStages executes the given stages and reports success.
	RunValidationStages(stages []string) (StageResult, error)
}

// StageResult is the result of running a set of validation stages.
type StageResult struct {
	Success bool
	Errors  []string
}

// Rollback is a no-argument compensating callable registered by an action
// that needs to undo its effect on workflow failure.
type Rollback func()

// IterationContext holds the per-iteration variables a loop handler binds:
// the current item, its index, and the name of the loop step currently
// attributing nested events (for nested-loop attribution, §4.9).
type IterationContext struct {
	Item             interface{}
	HasItem          bool
	Index            int
	HasIndex         bool
	CurrentLoopStep  string
}

// WorkflowContext is the mutable state threaded through a single
// workflow run. The zero value is not usable; construct with New.
type WorkflowContext struct {
	Inputs map[string]interface{}

	mu      sync.RWMutex
	results map[string]*StepResult

	Iteration IterationContext

	Config Config

	rollbackMu sync.Mutex
	rollbacks  []Rollback

	Logger zerolog.Logger
}

// New creates a fresh top-level workflow context.
func New(inputs map[string]interface{}, cfg Config, logger zerolog.Logger) *WorkflowContext {
	return &WorkflowContext{
		Inputs:  inputs,
		results: make(map[string]*StepResult),
		Config:  cfg,
		Logger:  logger,
	}
}

// SetResult records a completed step's result, making it visible to
// subsequent sibling steps (§3 ownership/lifecycle, §5 ordering
// guarantees).
func (c *WorkflowContext) SetResult(name string, result *StepResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[name] = result
}

// Result returns a step's result and whether it has run.
func (c *WorkflowContext) Result(name string) (*StepResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.results[name]
	return r, ok
}

// AllResults returns a snapshot of every completed step result, in no
// particular order; callers needing declaration order should consult the
// workflow's step list.
func (c *WorkflowContext) AllResults() map[string]*StepResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*StepResult, len(c.results))
	for k, v := range c.results {
		out[k] = v
	}
	return out
}

// DeriveIteration builds a derived context for a single loop iteration:
// inputs are shared, results start as a private copy seeded from the
// parent at iteration start, and item/index are freshly bound. Writes
// made inside the iteration are invisible to peer iterations and to the
// parent until the loop handler consolidates its own output (§3
// ownership, §5 shared-resource policy).
func (c *WorkflowContext) DeriveIteration(item interface{}, index int, loopStepName string) *WorkflowContext {
	c.mu.RLock()
	resultsCopy := make(map[string]*StepResult, len(c.results))
	for k, v := range c.results {
		resultsCopy[k] = v
	}
	c.mu.RUnlock()

	return &WorkflowContext{
		Inputs:  c.Inputs,
		results: resultsCopy,
		Iteration: IterationContext{
			Item:            item,
			HasItem:         true,
			Index:           index,
			HasIndex:        true,
			CurrentLoopStep: loopStepName,
		},
		Config: c.Config,
		Logger: c.Logger,
	}
}

// RegisterRollback appends a compensating callable to the rollback log.
// The log is append-only during normal execution (§5).
func (c *WorkflowContext) RegisterRollback(fn Rollback) {
	c.rollbackMu.Lock()
	defer c.rollbackMu.Unlock()
	c.rollbacks = append(c.rollbacks, fn)
}

// RunRollbacks executes every registered rollback in reverse registration
// order. A panic from an individual rollback is recovered here and passed
// to onError (the runner logs and suppresses it, §7); the remaining
// rollbacks still run.
func (c *WorkflowContext) RunRollbacks(onError func(err error)) {
	c.rollbackMu.Lock()
	rollbacks := make([]Rollback, len(c.rollbacks))
	copy(rollbacks, c.rollbacks)
	c.rollbackMu.Unlock()

	for i := len(rollbacks) - 1; i >= 0; i-- {
		func() {
			defer func() {
				if r := recover(); r != nil && onError != nil {
					onError(toError(r))
				}
			}()
			rollbacks[i]()
		}()
	}
}

func toError(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return &panicError{val: r}
}

type panicError struct{ val interface{} }

func (e *panicError) Error() string { return "panic: " + toString(e.val) }

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return "non-string panic value"
}

// --- expression.Context implementation ---

// Input implements expression.Context: descends context.inputs along
// path, reporting whether every segment resolved.
func (c *WorkflowContext) Input(path []string) (interface{}, bool) {
	var cur interface{} = c.Inputs
	for _, seg := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// StepOutput implements expression.Context: looks up
// context.results[name].output, reporting whether the step has run.
func (c *WorkflowContext) StepOutput(name string) (interface{}, bool) {
	result, ok := c.Result(name)
	if !ok {
		return nil, false
	}
	return result.Output, true
}

// Item implements expression.Context.
func (c *WorkflowContext) Item() (interface{}, bool) {
	return c.Iteration.Item, c.Iteration.HasItem
}

// Index implements expression.Context.
func (c *WorkflowContext) Index() (int, bool) {
	return c.Iteration.Index, c.Iteration.HasIndex
}

// StepResultsAsGo renders the completed results map into plain
// interface{} values (for context-builders, which receive
// map[string]interface{}).
func (c *WorkflowContext) StepResultsAsGo() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]interface{}, len(c.results))
	for k, v := range c.results {
		out[k] = v.Output
	}
	return out
}

// Elapsed is a small helper handlers use to compute a StepResult's
// DurationMS from a recorded start time.
func Elapsed(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
