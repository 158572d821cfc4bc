// Package engine provides a public API for executing workflow documents
// programmatically. It lets a host application load a workflow file, wire
// its own actions/agents/generators into the registry, and run it without
// reaching into internal/engine directly. WithRegistry, WithConfig,
// WithMetrics and WithResume take types from this module's internal
// packages, so only code inside this module can construct their arguments;
// the example below is written from that position.
//
// Example usage:
//
//	reg := registry.New()
//	reg.RegisterAction("shell", actions.Shell)
//
//	result, err := engine.RunWorkflow("workflow.laq.yaml", map[string]interface{}{
//		"message": "hello",
//	}, engine.WithRegistry(reg))
package engine

import (
	"context"
	"time"

	"github.com/lacquerai/laqcore/internal/ast"
	"github.com/lacquerai/laqcore/internal/checkpoint"
	"github.com/lacquerai/laqcore/internal/config"
	"github.com/lacquerai/laqcore/internal/engine"
	"github.com/lacquerai/laqcore/internal/execcontext"
	"github.com/lacquerai/laqcore/internal/metrics"
	"github.com/lacquerai/laqcore/internal/registry"
	"github.com/lacquerai/laqcore/pkg/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

type runOptions struct {
	registry *registry.Registry
	cfg      execcontext.Config
	logger   zerolog.Logger
	listener events.Listener
	recorder *metrics.Recorder
	ctx      context.Context
	resume   *checkpoint.Checkpoint
}

// Option configures a RunWorkflow call via the functional options pattern.
type Option func(*runOptions)

// WithRegistry supplies the action/agent/generator/subworkflow registry the
// workflow's steps resolve against. Without this option, the workflow runs
// against an empty registry and any action/agent/generator step fails.
func WithRegistry(reg *registry.Registry) Option {
	return func(o *runOptions) { o.registry = reg }
}

// WithConfig supplies the validation-stage configuration Validate steps
// resolve against.
func WithConfig(cfg execcontext.Config) Option {
	return func(o *runOptions) { o.cfg = cfg }
}

// WithLogger supplies the structured logger passed down to every step.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *runOptions) { o.logger = logger }
}

// WithMetrics supplies a metrics.Recorder the runner reports step and
// workflow outcomes into.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(o *runOptions) { o.recorder = rec }
}

// WithContext supplies the context.Context execution runs under, enabling
// caller-controlled cancellation and timeouts.
func WithContext(ctx context.Context) Option {
	return func(o *runOptions) { o.ctx = ctx }
}

// WithProgressListener attaches a listener that receives every lifecycle
// event emitted during execution, for real-time progress reporting.
func WithProgressListener(listener events.Listener) Option {
	return func(o *runOptions) { o.listener = listener }
}

// WithResume resumes a previously saved checkpoint instead of starting the
// workflow from scratch: already-completed steps are restored rather than
// re-executed, and a loop step in progress when the checkpoint was saved
// resumes mid-iteration. The inputs passed to RunWorkflowDocument are
// ignored in favor of the checkpoint's own saved inputs.
func WithResume(cp *checkpoint.Checkpoint) Option {
	return func(o *runOptions) { o.resume = cp }
}

// Result is the outcome of a RunWorkflow call.
type Result struct {
	Success    bool
	Output     interface{}
	Steps      map[string]*execcontext.StepResult
	DurationMS int64
}

// RunWorkflow loads, validates, and executes the workflow document at
// workflowFile with the given inputs.
func RunWorkflow(workflowFile string, inputs map[string]interface{}, options ...Option) (*Result, error) {
	wf, err := ast.LoadFile(workflowFile)
	if err != nil {
		return nil, err
	}
	return RunWorkflowDocument(wf, inputs, options...)
}

// RunWorkflowDocument executes an already-parsed workflow document, for
// callers that construct or generate documents in-process rather than
// reading them from disk.
func RunWorkflowDocument(wf *ast.Workflow, inputs map[string]interface{}, options ...Option) (*Result, error) {
	opts := &runOptions{
		registry: registry.New(),
		logger:   zerolog.Nop(),
		ctx:      context.Background(),
	}
	for _, o := range options {
		o(opts)
	}

	if opts.cfg == nil {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		opts.cfg = cfg
	}
	if opts.recorder == nil {
		opts.recorder = metrics.NewRecorder(prometheus.NewRegistry())
	}

	var sink events.Sink
	if opts.listener != nil {
		ch := make(chan events.ExecutionEvent, 64)
		sink = events.Chan(ch)
		opts.listener.StartListening(ch)
		defer func() {
			close(ch)
			opts.listener.StopListening()
		}()
	}

	runner := engine.NewRunner(opts.registry, opts.recorder)
	start := time.Now()
	wfResult, err := runner.Run(opts.ctx, wf, inputs, opts.cfg, opts.logger, sink, opts.resume)
	if wfResult == nil {
		return nil, err
	}

	result := &Result{
		Success:    wfResult.Success,
		Output:     wfResult.Output,
		DurationMS: execcontext.Elapsed(start),
		Steps:      make(map[string]*execcontext.StepResult, len(wfResult.StepResults)),
	}
	for _, r := range wfResult.StepResults {
		result.Steps[r.Name] = r
	}

	return result, err
}
