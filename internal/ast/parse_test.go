package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParse_ActionStep(t *testing.T) {
	doc := []byte(`
version: "1.0.0"
name: simple_flow
inputs:
  message:
    type: string
    required: true
steps:
  - name: say_hello
    type: python
    action: shell
    with:
      command: echo ${{ inputs.message }}
`)

	wf, err := Parse(doc)
	require.NoError(t, err)
	require.Len(t, wf.Steps, 1)

	step := wf.Steps[0]
	assert.Equal(t, "say_hello", step.Name)
	assert.Equal(t, StepTypeAction, step.Type)
	require.NotNil(t, step.Action)
	assert.Equal(t, "shell", step.Action.Key)
	assert.Equal(t, "echo ${{ inputs.message }}", step.Action.With["command"])

	param, ok := wf.Inputs.Items["message"]
	require.True(t, ok)
	assert.True(t, param.Required)
	assert.Equal(t, InputTypeString, param.Type)
}

func TestParse_InputShorthand(t *testing.T) {
	doc := []byte(`
version: "1.0.0"
name: shorthand
inputs:
  count: integer
steps:
  - name: noop
    type: python
    action: shell
    with: {}
`)

	wf, err := Parse(doc)
	require.NoError(t, err)

	param := wf.Inputs.Items["count"]
	require.NotNil(t, param)
	assert.Equal(t, InputTypeInteger, param.Type)
	assert.True(t, param.Required)
}

func TestParse_UnknownStepType(t *testing.T) {
	doc := []byte(`
version: "1.0.0"
name: bad
steps:
  - name: mystery
    type: teleport
`)

	_, err := Parse(doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type")
}

func TestParse_DuplicateStepNames(t *testing.T) {
	doc := []byte(`
version: "1.0.0"
name: dup
steps:
  - name: a
    type: python
    action: shell
    with: {}
  - name: a
    type: python
    action: shell
    with: {}
`)

	_, err := Parse(doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate step name")
}

func TestParse_BranchLoopSubworkflow(t *testing.T) {
	doc := []byte(`
version: "1.0.0"
name: control_flow
steps:
  - name: pick
    type: branch
    branches:
      - when: ${{ inputs.flag }}
        step:
          name: on_true
          type: python
          action: shell
          with: {}
      - when: ""
        step:
          name: on_false
          type: python
          action: shell
          with: {}
  - name: iterate
    type: loop
    for_each: ${{ inputs.items }}
    max_concurrency: 2
    steps:
      - name: process
        type: python
        action: shell
        with:
          item: ${{ item }}
  - name: delegate
    type: subworkflow
    workflow: child_flow
    inputs:
      x: ${{ inputs.flag }}
`)

	wf, err := Parse(doc)
	require.NoError(t, err)
	require.Len(t, wf.Steps, 3)

	branch := wf.Steps[0]
	require.NotNil(t, branch.Branch)
	assert.Len(t, branch.Branch.Options, 2)
	assert.Equal(t, "on_true", branch.Branch.Options[0].Step.Name)

	loop := wf.Steps[1]
	require.NotNil(t, loop.Loop)
	assert.Equal(t, 2, loop.Loop.MaxConcurrency)
	assert.Equal(t, 2, loop.Loop.EffectiveConcurrency())

	sub := wf.Steps[2]
	require.NotNil(t, sub.Subworkflow)
	assert.Equal(t, "child_flow", sub.Subworkflow.Name)
	assert.Equal(t, "${{ inputs.flag }}", sub.Subworkflow.With["x"])
}

func TestStep_MarshalRoundTrip(t *testing.T) {
	doc := []byte(`
version: "1.0.0"
name: roundtrip
steps:
  - name: validate_output
    type: validate
    retry: 2
    stages: strict
    on_failure:
      name: log_failure
      type: python
      action: shell
      with:
        command: echo failed
`)

	wf, err := Parse(doc)
	require.NoError(t, err)

	out, err := Serialize(wf)
	require.NoError(t, err)

	var roundTripped Workflow
	require.NoError(t, yaml.Unmarshal(out, &roundTripped))

	step := roundTripped.Steps[0]
	require.NotNil(t, step.Validate)
	assert.Equal(t, 2, step.Validate.Retry)
	require.NotNil(t, step.Validate.Stages)
	assert.Equal(t, "strict", step.Validate.Stages.Key)
	require.NotNil(t, step.Validate.OnFailure)
	assert.Equal(t, "log_failure", step.Validate.OnFailure.Name)
}

func TestWorkflow_WalkSteps(t *testing.T) {
	doc := []byte(`
version: "1.0.0"
name: nested
steps:
  - name: outer_loop
    type: loop
    steps:
      - name: inner
        type: python
        action: shell
        with: {}
`)

	wf, err := Parse(doc)
	require.NoError(t, err)

	var visited []string
	wf.WalkSteps(func(s *Step) { visited = append(visited, s.Name) })
	assert.Equal(t, []string{"outer_loop", "inner"}, visited)
}
