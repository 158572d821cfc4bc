package ast

import (
	"testing"

	"github.com/gkampitakis/go-snaps/snaps"
	"github.com/stretchr/testify/require"
)

// Pins the YAML round-trip shape for a workflow document that exercises
// the action, branch, loop, validate and subworkflow step types (agent and
// generate steps are not included), so an accidental field rename or tag
// change in types.go
// shows up as a snapshot diff instead of a silent format drift (§6).
func TestSerialize_Snapshot(t *testing.T) {
	doc := []byte(`
version: "1.0.0"
name: snapshot_flow
description: exercises the action, branch, loop, validate and subworkflow step types for the serializer
inputs:
  name:
    type: string
    required: true
    default: world
steps:
  - name: greet
    type: python
    action: shell
    with:
      command: echo hello ${{ inputs.name }}
  - name: pick
    type: branch
    branches:
      - when: ${{ steps.greet.output }}
        step:
          name: on_match
          type: python
          action: shell
          with: {}
      - when: ""
        step:
          name: on_default
          type: python
          action: shell
          with: {}
  - name: iterate
    type: loop
    for_each: ${{ inputs.name }}
    max_concurrency: 2
    steps:
      - name: process
        type: python
        action: shell
        with:
          item: ${{ item }}
  - name: check
    type: validate
    retry: 1
    stages: strict
  - name: delegate
    type: subworkflow
    workflow: child_flow
    inputs:
      x: ${{ inputs.name }}
`)

	wf, err := Parse(doc)
	require.NoError(t, err)

	out, err := Serialize(wf)
	require.NoError(t, err)

	snaps.MatchSnapshot(t, string(out))
}
