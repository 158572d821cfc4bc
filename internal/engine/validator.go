package engine

import (
	"fmt"
	"strings"

	"github.com/lacquerai/laqcore/internal/ast"
	"github.com/lacquerai/laqcore/internal/expression"
	"github.com/lacquerai/laqcore/internal/registry"
)

// Validator runs the preflight semantic checks (§4.12): every registry
// reference a workflow names must resolve, every template must parse,
// and no subworkflow may recurse into itself.
type Validator struct {
	registry *registry.Registry
}

// NewValidator binds a Validator to the registry its semantic checks
// resolve references against.
func NewValidator(reg *registry.Registry) *Validator {
	return &Validator{registry: reg}
}

// SemanticErrors aggregates every SemanticError found during a Validate
// call, so a run reports every problem at once rather than stopping at
// the first.
type SemanticErrors struct {
	Errors []*SemanticError
}

func (e *SemanticErrors) Error() string {
	parts := make([]string, len(e.Errors))
	for i, se := range e.Errors {
		parts[i] = se.Error()
	}
	return strings.Join(parts, "; ")
}

// Validate runs every semantic check against wf and returns a
// *SemanticErrors aggregating all findings, or nil if the workflow is
// clean.
func (v *Validator) Validate(wf *ast.Workflow) error {
	var errs []*SemanticError

	wf.WalkSteps(func(step *ast.Step) {
		errs = append(errs, v.checkReferences(step)...)
		errs = append(errs, v.checkSyntax(step)...)
	})

	errs = append(errs, v.checkSubworkflowCycles(wf)...)

	if len(errs) == 0 {
		return nil
	}
	return &SemanticErrors{Errors: errs}
}

func (v *Validator) checkReferences(step *ast.Step) []*SemanticError {
	var errs []*SemanticError
	path := step.Name

	switch step.Type {
	case ast.StepTypeAction:
		if _, ok := v.registry.Action(step.Action.Key); !ok {
			errs = append(errs, &SemanticError{Path: path, Message: fmt.Sprintf("action %q is not registered", step.Action.Key)})
		}
	case ast.StepTypeAgent:
		if _, ok := v.registry.Agent(step.Agent.Key); !ok {
			errs = append(errs, &SemanticError{Path: path, Message: fmt.Sprintf("agent %q is not registered", step.Agent.Key)})
		}
		if step.Agent.Context != nil && step.Agent.Context.Builder != "" {
			if _, ok := v.registry.ContextBuilder(step.Agent.Context.Builder); !ok {
				errs = append(errs, &SemanticError{Path: path, Message: fmt.Sprintf("context builder %q is not registered", step.Agent.Context.Builder)})
			}
		}
	case ast.StepTypeGenerate:
		if _, ok := v.registry.Generator(step.Generate.Key); !ok {
			errs = append(errs, &SemanticError{Path: path, Message: fmt.Sprintf("generator %q is not registered", step.Generate.Key)})
		}
		if step.Generate.Context != nil && step.Generate.Context.Builder != "" {
			if _, ok := v.registry.ContextBuilder(step.Generate.Context.Builder); !ok {
				errs = append(errs, &SemanticError{Path: path, Message: fmt.Sprintf("context builder %q is not registered", step.Generate.Context.Builder)})
			}
		}
	case ast.StepTypeSubworkflow:
		if step.Subworkflow.Name != "" {
			if _, ok := v.registry.Subworkflow(step.Subworkflow.Name); !ok {
				errs = append(errs, &SemanticError{Path: path, Message: fmt.Sprintf("subworkflow %q is not registered", step.Subworkflow.Name)})
			}
		}
	}

	return errs
}

func (v *Validator) checkSyntax(step *ast.Step) []*SemanticError {
	var errs []*SemanticError
	path := step.Name

	check := func(raw string) {
		if raw == "" {
			return
		}
		if err := expression.CheckSyntax(raw); err != nil {
			errs = append(errs, &SemanticError{Path: path, Message: err.Error()})
		}
	}

	check(step.When)

	switch step.Type {
	case ast.StepTypeAction:
		if err := expression.CheckSyntax(step.Action.With); err != nil {
			errs = append(errs, &SemanticError{Path: path, Message: err.Error()})
		}
	case ast.StepTypeAgent:
		if step.Agent.Context != nil {
			if err := expression.CheckSyntax(map[string]interface{}(step.Agent.Context.Static)); err != nil {
				errs = append(errs, &SemanticError{Path: path, Message: err.Error()})
			}
		}
	case ast.StepTypeGenerate:
		if step.Generate.Context != nil {
			if err := expression.CheckSyntax(map[string]interface{}(step.Generate.Context.Static)); err != nil {
				errs = append(errs, &SemanticError{Path: path, Message: err.Error()})
			}
		}
	case ast.StepTypeBranch:
		for _, opt := range step.Branch.Options {
			check(opt.When)
		}
	case ast.StepTypeLoop:
		check(step.Loop.ForEach)
	case ast.StepTypeSubworkflow:
		for _, expr := range step.Subworkflow.With {
			check(expr)
		}
	}

	return errs
}

// checkSubworkflowCycles walks every subworkflow reference reachable from
// wf and reports a SemanticError for any cycle, via depth-first search
// with an in-progress set (§4.12).
func (v *Validator) checkSubworkflowCycles(wf *ast.Workflow) []*SemanticError {
	var errs []*SemanticError
	visiting := map[string]bool{}
	visited := map[string]bool{}

	var walk func(name string, w *ast.Workflow) bool
	walk = func(name string, w *ast.Workflow) bool {
		if visiting[name] {
			errs = append(errs, &SemanticError{Path: name, Message: "subworkflow cycle detected"})
			return false
		}
		if visited[name] {
			return true
		}
		visiting[name] = true
		defer func() { visiting[name] = false; visited[name] = true }()

		ok := true
		w.WalkSteps(func(step *ast.Step) {
			if step.Type != ast.StepTypeSubworkflow {
				return
			}
			var child *ast.Workflow
			var childName string
			if step.Subworkflow.Inline != nil {
				child = step.Subworkflow.Inline
				childName = name + "/" + step.Name
			} else {
				wfChild, found := v.registry.Subworkflow(step.Subworkflow.Name)
				if !found {
					return
				}
				child = wfChild
				childName = step.Subworkflow.Name
			}
			if !walk(childName, child) {
				ok = false
			}
		})
		return ok
	}

	walk(wf.Name, wf)
	return errs
}
