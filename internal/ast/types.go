// Package ast defines the data model for a Lacquer workflow document: the
// typed step variants, input declarations, and the workflow document itself.
// Values in this package are immutable once parsed.
package ast

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Position identifies a location in a source document for error reporting.
type Position struct {
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Offset int    `json:"offset"`
	File   string `json:"file,omitempty"`
}

func (p Position) String() string {
	if p.File != "" {
		return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// InputType enumerates the supported input declaration types.
type InputType string

const (
	InputTypeString  InputType = "string"
	InputTypeInteger InputType = "integer"
	InputTypeBoolean InputType = "boolean"
	InputTypeArray   InputType = "array"
	InputTypeObject  InputType = "object"
)

var validInputTypes = map[InputType]bool{
	InputTypeString:  true,
	InputTypeInteger: true,
	InputTypeBoolean: true,
	InputTypeArray:   true,
	InputTypeObject:  true,
}

// InputParam declares a single workflow input.
type InputParam struct {
	// Name is the input's key within the workflow's inputs map.
	Name string `yaml:"-" json:"name"`
	// Type is the declared input type.
	Type InputType `yaml:"type,omitempty" json:"type,omitempty"`
	// Description documents what the input is used for.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	// Required indicates the workflow cannot be run without this input.
	Required bool `yaml:"required,omitempty" json:"required,omitempty"`
	// Default supplies a value to use when the caller does not provide one.
	// A nil Default with Required=false means the resolved value is absent.
	Default  interface{} `yaml:"default,omitempty" json:"default,omitempty"`
	HasDefault bool `yaml:"-" json:"-"`

	Position Position `yaml:"-" json:"-"`
}

// UnmarshalYAML supports the shorthand `name: <type>` form in addition to
// the full object form, the same convenience teacher documents support for
// single-field declarations.
func (ip *InputParam) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		ip.Type = InputType(value.Value)
		ip.Required = true
		ip.Position = Position{Line: value.Line, Column: value.Column}
		return nil
	}

	type inputParamAlias InputParam
	var temp inputParamAlias
	if err := value.Decode(&temp); err != nil {
		return err
	}

	*ip = InputParam(temp)
	for i := 0; i+1 < len(value.Content); i += 2 {
		if value.Content[i].Value == "default" {
			ip.HasDefault = true
			break
		}
	}
	ip.Position = Position{Line: value.Line, Column: value.Column}
	return nil
}

// InputParams is an order-preserving map of input name to declaration,
// satisfying the "ordered map of input declarations" invariant from the
// data model: iteration and re-serialization preserve declaration order.
type InputParams struct {
	Order []string
	Items map[string]*InputParam
}

func (ips *InputParams) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("inputs must be a mapping, got %v", value.Kind)
	}

	ips.Items = make(map[string]*InputParam, len(value.Content)/2)
	ips.Order = make([]string, 0, len(value.Content)/2)

	for i := 0; i < len(value.Content); i += 2 {
		keyNode := value.Content[i]
		valNode := value.Content[i+1]

		if _, dup := ips.Items[keyNode.Value]; dup {
			return fmt.Errorf("duplicate input name %q", keyNode.Value)
		}

		var param InputParam
		if err := valNode.Decode(&param); err != nil {
			return fmt.Errorf("input %q: %w", keyNode.Value, err)
		}
		param.Name = keyNode.Value
		ips.Items[keyNode.Value] = &param
		ips.Order = append(ips.Order, keyNode.Value)
	}
	return nil
}

func (ips InputParams) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, name := range ips.Order {
		param := ips.Items[name]
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: name}
		var valNode yaml.Node
		out, err := yaml.Marshal(param)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(out, &valNode); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, keyNode, valNode.Content[0])
	}
	return node, nil
}

func (ips InputParams) Len() int { return len(ips.Order) }

// StepType enumerates the step-record variants a workflow document can use.
type StepType string

const (
	StepTypeAction      StepType = "python"
	StepTypeAgent       StepType = "agent"
	StepTypeGenerate    StepType = "generate"
	StepTypeValidate    StepType = "validate"
	StepTypeBranch      StepType = "branch"
	StepTypeLoop        StepType = "loop"
	StepTypeSubworkflow StepType = "subworkflow"
)

var validStepTypes = map[StepType]bool{
	StepTypeAction:      true,
	StepTypeAgent:       true,
	StepTypeGenerate:    true,
	StepTypeValidate:    true,
	StepTypeBranch:      true,
	StepTypeLoop:        true,
	StepTypeSubworkflow: true,
}

// ContextSpec is the shape shared by Agent and Generate steps: either a
// static, expression-bearing map or a named context-builder lookup.
type ContextSpec struct {
	// Static is used when the step provides a literal (expression-bearing)
	// context map.
	Static map[string]interface{}
	// Builder names a registered context-builder to invoke instead.
	Builder string
}

func (cs *ContextSpec) isZero() bool {
	return cs == nil || (cs.Static == nil && cs.Builder == "")
}

// ActionSpec is the body of an Action ("python") step.
type ActionSpec struct {
	// Key looks up the callable in the component registry's actions table.
	Key string
	// With carries the keyword arguments; values may contain expressions.
	With map[string]interface{}
}

// AgentSpec is the body of an Agent step.
type AgentSpec struct {
	Key     string
	Context *ContextSpec
}

// GenerateSpec is the body of a Generate step.
type GenerateSpec struct {
	Key     string
	Context *ContextSpec
}

// StagesSpec resolves which validation stages a Validate step runs.
type StagesSpec struct {
	// List is an explicit stage name list.
	List []string
	// Key looks up a named stage list in the workflow's config.
	Key string
}

func (s *StagesSpec) isZero() bool {
	return s == nil || (s.List == nil && s.Key == "")
}

// ValidateSpec is the body of a Validate step.
type ValidateSpec struct {
	Stages    *StagesSpec
	Retry     int
	OnFailure *Step
}

// BranchOption is a single (condition, inner step) pair within a Branch step.
type BranchOption struct {
	When string
	Step *Step
}

// BranchSpec is the body of a Branch step.
type BranchSpec struct {
	Options []BranchOption
}

// LoopSpec is the body of a Loop step.
type LoopSpec struct {
	Steps          []*Step
	ForEach        string
	MaxConcurrency int
	Parallel       *bool
}

// EffectiveConcurrency resolves the concurrency specifier per the
// resolution rule in §3: explicit parallel wins, then max_concurrency,
// defaulting to 1. 0 is the sentinel for "unbounded".
func (ls *LoopSpec) EffectiveConcurrency() int {
	if ls.Parallel != nil && *ls.Parallel {
		return 0
	}
	if ls.Parallel != nil && !*ls.Parallel {
		return 1
	}
	if ls.MaxConcurrency > 0 {
		return ls.MaxConcurrency
	}
	return 1
}

// SubworkflowSpec is the body of a Subworkflow step.
type SubworkflowSpec struct {
	// Name looks up a registered subworkflow. Mutually exclusive with Inline.
	Name string
	// Inline is an inline workflow document. Mutually exclusive with Name.
	Inline *Workflow
	// With maps input names to binding expressions.
	With map[string]string
}

// Step is a tagged-union step record. Exactly one of the variant fields
// matching Type is populated; the rest are nil. Steps are immutable once
// constructed by UnmarshalYAML / the builders below.
type Step struct {
	Name string
	Type StepType
	When string

	Action      *ActionSpec
	Agent       *AgentSpec
	Generate    *GenerateSpec
	Validate    *ValidateSpec
	Branch      *BranchSpec
	Loop        *LoopSpec
	Subworkflow *SubworkflowSpec

	Position Position
}

// rawStep mirrors the on-the-wire document shape before dispatch by Type.
type rawStep struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	When string `yaml:"when,omitempty"`

	// action
	Action string                 `yaml:"action,omitempty"`
	With   map[string]interface{} `yaml:"with,omitempty"`

	// agent / generate
	Agent     string                 `yaml:"agent,omitempty"`
	Generator string                 `yaml:"generator,omitempty"`
	Context   map[string]interface{} `yaml:"context,omitempty"`
	ContextBuilder string            `yaml:"context_builder,omitempty"`

	// validate
	Stages    yaml.Node `yaml:"stages,omitempty"`
	Retry     int       `yaml:"retry,omitempty"`
	OnFailure *rawStep  `yaml:"on_failure,omitempty"`

	// branch
	Branches []struct {
		When string   `yaml:"when"`
		Step *rawStep `yaml:"step"`
	} `yaml:"branches,omitempty"`

	// loop
	Steps          []*rawStep `yaml:"steps,omitempty"`
	ForEach        string     `yaml:"for_each,omitempty"`
	MaxConcurrency int        `yaml:"max_concurrency,omitempty"`
	Parallel       *bool      `yaml:"parallel,omitempty"`

	// subworkflow
	Workflow      string            `yaml:"workflow,omitempty"`
	InlineWorkflow *Workflow        `yaml:"inline_workflow,omitempty"`
	Inputs        map[string]string `yaml:"inputs,omitempty"`
}

// UnmarshalYAML parses a step record and dispatches to its variant based on
// the `type` discriminator, rejecting unknown types per §6.
func (s *Step) UnmarshalYAML(value *yaml.Node) error {
	var raw rawStep
	if err := value.Decode(&raw); err != nil {
		return err
	}
	step, err := raw.toStep()
	if err != nil {
		return err
	}
	step.Position = Position{Line: value.Line, Column: value.Column}
	*s = *step
	return nil
}

func (r *rawStep) toStep() (*Step, error) {
	if r.Name == "" {
		return nil, fmt.Errorf("step is missing a name")
	}
	st := StepType(r.Type)
	if !validStepTypes[st] {
		return nil, fmt.Errorf("step %q: unknown type %q", r.Name, r.Type)
	}

	step := &Step{Name: r.Name, Type: st, When: r.When}

	switch st {
	case StepTypeAction:
		if r.Action == "" {
			return nil, fmt.Errorf("step %q: action steps require 'action'", r.Name)
		}
		step.Action = &ActionSpec{Key: r.Action, With: r.With}

	case StepTypeAgent:
		if r.Agent == "" {
			return nil, fmt.Errorf("step %q: agent steps require 'agent'", r.Name)
		}
		ctx, err := r.contextSpec()
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", r.Name, err)
		}
		step.Agent = &AgentSpec{Key: r.Agent, Context: ctx}

	case StepTypeGenerate:
		if r.Generator == "" {
			return nil, fmt.Errorf("step %q: generate steps require 'generator'", r.Name)
		}
		ctx, err := r.contextSpec()
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", r.Name, err)
		}
		step.Generate = &GenerateSpec{Key: r.Generator, Context: ctx}

	case StepTypeValidate:
		stages, err := r.stagesSpec()
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", r.Name, err)
		}
		if r.Retry < 0 {
			return nil, fmt.Errorf("step %q: retry must be >= 0", r.Name)
		}
		var onFailure *Step
		if r.OnFailure != nil {
			onFailure, err = r.OnFailure.toStep()
			if err != nil {
				return nil, fmt.Errorf("step %q: on_failure: %w", r.Name, err)
			}
		}
		step.Validate = &ValidateSpec{Stages: stages, Retry: r.Retry, OnFailure: onFailure}

	case StepTypeBranch:
		if len(r.Branches) == 0 {
			return nil, fmt.Errorf("step %q: branch steps require at least one branch", r.Name)
		}
		opts := make([]BranchOption, 0, len(r.Branches))
		for i, b := range r.Branches {
			if b.Step == nil {
				return nil, fmt.Errorf("step %q: branch option %d missing 'step'", r.Name, i)
			}
			inner, err := b.Step.toStep()
			if err != nil {
				return nil, fmt.Errorf("step %q: branch option %d: %w", r.Name, i, err)
			}
			opts = append(opts, BranchOption{When: b.When, Step: inner})
		}
		step.Branch = &BranchSpec{Options: opts}

	case StepTypeLoop:
		if len(r.Steps) == 0 {
			return nil, fmt.Errorf("step %q: loop steps require at least one inner step", r.Name)
		}
		if r.MaxConcurrency < 0 {
			return nil, fmt.Errorf("step %q: max_concurrency must be >= 0", r.Name)
		}
		if r.Parallel != nil && !*r.Parallel && r.MaxConcurrency > 1 {
			return nil, fmt.Errorf("step %q: parallel=false conflicts with max_concurrency=%d", r.Name, r.MaxConcurrency)
		}
		inner := make([]*Step, 0, len(r.Steps))
		for i, s := range r.Steps {
			is, err := s.toStep()
			if err != nil {
				return nil, fmt.Errorf("step %q: inner step %d: %w", r.Name, i, err)
			}
			inner = append(inner, is)
		}
		step.Loop = &LoopSpec{
			Steps:          inner,
			ForEach:        r.ForEach,
			MaxConcurrency: r.MaxConcurrency,
			Parallel:       r.Parallel,
		}

	case StepTypeSubworkflow:
		if r.Workflow == "" && r.InlineWorkflow == nil {
			return nil, fmt.Errorf("step %q: subworkflow steps require 'workflow' or 'inline_workflow'", r.Name)
		}
		if r.Workflow != "" && r.InlineWorkflow != nil {
			return nil, fmt.Errorf("step %q: specify only one of 'workflow' or 'inline_workflow'", r.Name)
		}
		step.Subworkflow = &SubworkflowSpec{Name: r.Workflow, Inline: r.InlineWorkflow, With: r.Inputs}
	}

	return step, nil
}

func (r *rawStep) contextSpec() (*ContextSpec, error) {
	if r.Context != nil && r.ContextBuilder != "" {
		return nil, fmt.Errorf("specify only one of 'context' or 'context_builder'")
	}
	if r.Context == nil && r.ContextBuilder == "" {
		return nil, nil
	}
	return &ContextSpec{Static: r.Context, Builder: r.ContextBuilder}, nil
}

func (r *rawStep) stagesSpec() (*StagesSpec, error) {
	if r.Stages.Kind == 0 {
		return nil, nil
	}
	switch r.Stages.Kind {
	case yaml.ScalarNode:
		return &StagesSpec{Key: r.Stages.Value}, nil
	case yaml.SequenceNode:
		var list []string
		if err := r.Stages.Decode(&list); err != nil {
			return nil, fmt.Errorf("stages: %w", err)
		}
		return &StagesSpec{List: list}, nil
	default:
		return nil, fmt.Errorf("stages must be a string key or a list of strings")
	}
}

// MarshalYAML renders a Step back to its wire shape, the inverse of
// UnmarshalYAML, required for the round-trip guarantee in §6.
func (s *Step) MarshalYAML() (interface{}, error) {
	raw := &rawStep{Name: s.Name, Type: string(s.Type), When: s.When}

	switch s.Type {
	case StepTypeAction:
		raw.Action = s.Action.Key
		raw.With = s.Action.With
	case StepTypeAgent:
		raw.Agent = s.Agent.Key
		if s.Agent.Context != nil {
			raw.Context = s.Agent.Context.Static
			raw.ContextBuilder = s.Agent.Context.Builder
		}
	case StepTypeGenerate:
		raw.Generator = s.Generate.Key
		if s.Generate.Context != nil {
			raw.Context = s.Generate.Context.Static
			raw.ContextBuilder = s.Generate.Context.Builder
		}
	case StepTypeValidate:
		raw.Retry = s.Validate.Retry
		if s.Validate.Stages != nil {
			if s.Validate.Stages.Key != "" {
				raw.Stages = *scalarNode(s.Validate.Stages.Key)
			} else if s.Validate.Stages.List != nil {
				raw.Stages = *sequenceNode(s.Validate.Stages.List)
			}
		}
		if s.Validate.OnFailure != nil {
			child, err := s.Validate.OnFailure.MarshalYAML()
			if err != nil {
				return nil, err
			}
			var rs rawStep
			out, _ := yaml.Marshal(child)
			_ = yaml.Unmarshal(out, &rs)
			raw.OnFailure = &rs
		}
	case StepTypeBranch:
		for _, opt := range s.Branch.Options {
			child, err := opt.Step.MarshalYAML()
			if err != nil {
				return nil, err
			}
			var rs rawStep
			out, _ := yaml.Marshal(child)
			_ = yaml.Unmarshal(out, &rs)
			raw.Branches = append(raw.Branches, struct {
				When string   `yaml:"when"`
				Step *rawStep `yaml:"step"`
			}{When: opt.When, Step: &rs})
		}
	case StepTypeLoop:
		raw.ForEach = s.Loop.ForEach
		raw.MaxConcurrency = s.Loop.MaxConcurrency
		raw.Parallel = s.Loop.Parallel
		for _, inner := range s.Loop.Steps {
			child, err := inner.MarshalYAML()
			if err != nil {
				return nil, err
			}
			var rs rawStep
			out, _ := yaml.Marshal(child)
			_ = yaml.Unmarshal(out, &rs)
			raw.Steps = append(raw.Steps, &rs)
		}
	case StepTypeSubworkflow:
		raw.Workflow = s.Subworkflow.Name
		raw.InlineWorkflow = s.Subworkflow.Inline
		raw.Inputs = s.Subworkflow.With
	}

	return raw, nil
}

func scalarNode(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: v}
}

func sequenceNode(items []string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.SequenceNode}
	for _, it := range items {
		n.Content = append(n.Content, scalarNode(it))
	}
	return n
}

// Workflow is the root document: name, version, inputs, and the ordered
// step sequence.
type Workflow struct {
	Version     string       `yaml:"version" json:"version"`
	Name        string       `yaml:"name" json:"name"`
	Description string       `yaml:"description,omitempty" json:"description,omitempty"`
	Inputs      InputParams  `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Config      *WorkflowConfig `yaml:"config,omitempty" json:"config,omitempty"`
	Steps       []*Step      `yaml:"steps" json:"steps"`

	SourceFile string   `yaml:"-" json:"-"`
	Position   Position `yaml:"-" json:"-"`
}

// WorkflowConfig holds the named validation-stage lists a Validate step
// may reference by key, plus the default stage list used when a Validate
// step names no stages at all.
type WorkflowConfig struct {
	DefaultStages  []string            `yaml:"default_stages,omitempty" json:"default_stages,omitempty"`
	NamedStages    map[string][]string `yaml:"stages,omitempty" json:"stages,omitempty"`
}

// WalkSteps calls visit for every step reachable from the workflow's top
// level, recursing into nested step structures (branch options, loop
// bodies, validate on_failure). Used for per-step structural checks.
func (w *Workflow) WalkSteps(visit func(s *Step)) {
	var walk func(steps []*Step)
	walk = func(steps []*Step) {
		for _, s := range steps {
			visit(s)
			switch s.Type {
			case StepTypeBranch:
				for _, opt := range s.Branch.Options {
					walk([]*Step{opt.Step})
				}
			case StepTypeLoop:
				walk(s.Loop.Steps)
			case StepTypeValidate:
				if s.Validate.OnFailure != nil {
					walk([]*Step{s.Validate.OnFailure})
				}
			}
		}
	}
	walk(w.Steps)
}

// TopLevelStepNames returns the names of the workflow's direct steps, in
// declared order.
func (w *Workflow) TopLevelStepNames() []string {
	names := make([]string, len(w.Steps))
	for i, s := range w.Steps {
		names[i] = s.Name
	}
	return names
}

func isIdentifierLike(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
		isDigit := r >= '0' && r <= '9'
		if i == 0 && !isLetter {
			return false
		}
		if !isLetter && !isDigit && r != '-' {
			return false
		}
	}
	return true
}

func joinNames(names []string) string {
	return strings.Join(names, ", ")
}
