package engine

import (
	"fmt"
	"strings"
)

// SemanticError is raised by the preflight semantic validator (§4.12):
// unknown registry references, subworkflow cycles, bad expression syntax.
type SemanticError struct {
	Path    string
	Message string
}

func (e *SemanticError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// InputBindingError is raised while binding the caller's inputs against
// the workflow's declarations (§4.11 step 2).
type InputBindingError struct {
	Input   string
	Message string
}

func (e *InputBindingError) Error() string {
	return fmt.Sprintf("input %q: %s", e.Input, e.Message)
}

// StageKeyNotFoundError is raised when a Validate step names a stage key
// absent from the workflow's config (§4.7 step 1).
type StageKeyNotFoundError struct {
	Key string
}

func (e *StageKeyNotFoundError) Error() string {
	return fmt.Sprintf("stage key %q not found in config", e.Key)
}

// ValidationExhaustedError is raised when a Validate step fails every
// attempt (§4.7 step 4).
type ValidationExhaustedError struct {
	Retries int
	Last    StageFailure
}

type StageFailure struct {
	Errors []string
}

func (e *ValidationExhaustedError) Error() string {
	return fmt.Sprintf("validation failed after %d retries: %s", e.Retries, strings.Join(e.Last.Errors, "; "))
}

// IterationFailure is one failed loop iteration, part of a
// LoopStepExecutionError (§4.9, §7).
type IterationFailure struct {
	Index int
	Error string
}

// LoopStepExecutionError aggregates every failed iteration of a Loop step
// (§4.9).
type LoopStepExecutionError struct {
	TotalIterations int
	Failures        []IterationFailure
}

func (e *LoopStepExecutionError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("iteration %d: %s", f.Index, f.Error)
	}
	return fmt.Sprintf("%d/%d iterations failed: %s", len(e.Failures), e.TotalIterations, strings.Join(parts, "; "))
}

// StepExecutionError wraps an exception (panic or returned error) that
// escaped an action/agent/generator call (§4.4-4.6, §7); panics are
// recovered in Executor.dispatch.
type StepExecutionError struct {
	StepName string
	Cause    error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.StepName, e.Cause)
}

func (e *StepExecutionError) Unwrap() error { return e.Cause }
