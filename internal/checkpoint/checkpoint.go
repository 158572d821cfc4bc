// Package checkpoint implements save/resume support for long-running
// workflow runs: a serializable snapshot of a run's progress, and two
// interchangeable stores to persist it — a local JSON file and an S3
// object.
package checkpoint

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lacquerai/laqcore/internal/execcontext"
)

// Checkpoint is a serializable snapshot of a workflow run's progress:
// enough to resume execution without re-running completed steps.
type Checkpoint struct {
	WorkflowName string                          `json:"workflow_name"`
	RunID        string                           `json:"run_id"`
	Inputs       map[string]interface{}          `json:"inputs"`
	Results      map[string]*execcontext.StepResult `json:"results"`
	// NextStepIndex is the index into the workflow's top-level step list
	// to resume from.
	NextStepIndex int `json:"next_step_index"`
	// LoopPositions maps a loop step's name to its own resume position,
	// for a checkpoint taken mid-loop.
	LoopPositions map[string]LoopPosition `json:"loop_positions,omitempty"`
	SavedAt       time.Time               `json:"saved_at"`
}

// LoopPosition records where inside a Loop step a checkpoint was taken.
type LoopPosition struct {
	IterationIndex       int `json:"iteration_index"`
	AfterNestedStepIndex int `json:"after_nested_step_index"`
}

// Store persists and retrieves checkpoints by run ID.
type Store interface {
	Save(ctx context.Context, cp *Checkpoint) error
	Load(ctx context.Context, runID string) (*Checkpoint, error)
	Delete(ctx context.Context, runID string) error
}

func marshal(cp *Checkpoint) ([]byte, error) {
	return json.MarshalIndent(cp, "", "  ")
}

func unmarshal(data []byte) (*Checkpoint, error) {
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}
