package ast

import (
	"fmt"
)

// ValidationError is a single structural problem found in a workflow
// document, independent of any registry lookups (those live in the
// semantic validator, internal/engine).
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationResult accumulates structural errors found while walking a
// workflow document.
type ValidationResult struct {
	Errors []*ValidationError
}

func (r *ValidationResult) add(path, format string, args ...interface{}) {
	r.Errors = append(r.Errors, &ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (r *ValidationResult) Valid() bool { return len(r.Errors) == 0 }

func (r *ValidationResult) Error() string {
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Error()
	}
	return joinNames(msgs)
}

// Validate checks structural invariants: unique step names, well-formed
// concurrency specifiers, and identifier-like names. Input-name uniqueness
// is enforced earlier, while decoding (InputParams.UnmarshalYAML).
// It does not touch the component registry — that is the semantic
// validator's job (internal/engine).
func Validate(w *Workflow) *ValidationResult {
	result := &ValidationResult{}

	if w.Version == "" {
		result.add("version", "version is required")
	}
	if w.Name == "" {
		result.add("name", "name is required")
	} else if !isIdentifierLike(w.Name) {
		result.add("name", "must be identifier-like, got %q", w.Name)
	}

	if len(w.Steps) == 0 {
		result.add("steps", "a workflow must declare at least one step")
	}

	for name, param := range w.Inputs.Items {
		if !validInputTypes[param.Type] {
			result.add(fmt.Sprintf("inputs.%s", name), "unknown input type %q", param.Type)
		}
		if !param.Required && !param.HasDefault {
			// absent-by-default is a valid, intentional state per §3.
			continue
		}
	}

	w.WalkSteps(func(s *Step) {
		validateStep(s, result)
	})
	checkDuplicateNames(w.Steps, result)

	return result
}

// checkDuplicateNames enforces step-name uniqueness within a step
// sequence, recursively: w.Steps is one sequence, each loop's Steps is
// its own sequence, and a branch's options together form one sequence
// (only one option runs, but they still share the branch step's name
// scope). A name repeated across two unrelated sequences — say a loop
// body and the top level — is not a collision, since each sequence's
// results are addressed independently.
func checkDuplicateNames(steps []*Step, result *ValidationResult) {
	seen := make(map[string]bool)
	for _, s := range steps {
		if seen[s.Name] {
			result.add("steps", "duplicate step name %q", s.Name)
		}
		seen[s.Name] = true
	}

	for _, s := range steps {
		switch s.Type {
		case StepTypeBranch:
			branchSteps := make([]*Step, 0, len(s.Branch.Options))
			for _, opt := range s.Branch.Options {
				branchSteps = append(branchSteps, opt.Step)
			}
			checkDuplicateNames(branchSteps, result)
		case StepTypeLoop:
			checkDuplicateNames(s.Loop.Steps, result)
		case StepTypeValidate:
			if s.Validate.OnFailure != nil {
				checkDuplicateNames([]*Step{s.Validate.OnFailure}, result)
			}
		}
	}
}

func validateStep(s *Step, result *ValidationResult) {
	path := fmt.Sprintf("steps.%s", s.Name)
	if !isIdentifierLike(s.Name) {
		result.add(path, "step name must be identifier-like, got %q", s.Name)
	}

	switch s.Type {
	case StepTypeAction:
		if s.Action == nil || s.Action.Key == "" {
			result.add(path, "action step requires an action key")
		}
	case StepTypeAgent:
		if s.Agent == nil || s.Agent.Key == "" {
			result.add(path, "agent step requires an agent key")
		}
	case StepTypeGenerate:
		if s.Generate == nil || s.Generate.Key == "" {
			result.add(path, "generate step requires a generator key")
		}
	case StepTypeValidate:
		if s.Validate == nil {
			result.add(path, "validate step is missing its body")
		} else if s.Validate.Retry < 0 {
			result.add(path, "retry must be >= 0")
		}
	case StepTypeBranch:
		if s.Branch == nil || len(s.Branch.Options) == 0 {
			result.add(path, "branch step requires at least one option")
		}
	case StepTypeLoop:
		if s.Loop == nil || len(s.Loop.Steps) == 0 {
			result.add(path, "loop step requires at least one inner step")
		} else {
			if s.Loop.MaxConcurrency < 0 {
				result.add(path, "max_concurrency must be >= 0")
			}
			if s.Loop.Parallel != nil && !*s.Loop.Parallel && s.Loop.MaxConcurrency > 1 {
				result.add(path, "parallel=false conflicts with max_concurrency=%d", s.Loop.MaxConcurrency)
			}
		}
	case StepTypeSubworkflow:
		if s.Subworkflow == nil || (s.Subworkflow.Name == "" && s.Subworkflow.Inline == nil) {
			result.add(path, "subworkflow step requires 'workflow' or 'inline_workflow'")
		}
	default:
		result.add(path, "unknown step type %q", s.Type)
	}
}
