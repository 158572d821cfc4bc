// Package registry implements the component registry (§4.2): five
// name-indexed sub-registries the engine consults by string key —
// actions, agents, generators, context-builders, and subworkflows.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/lacquerai/laqcore/internal/ast"
)

// Action is a registered native callable a step invokes with keyword
// arguments. It may be synchronous in the source; ActionFunc is always
// called from a goroutine so a blocking implementation is harmless.
type ActionFunc func(ctx context.Context, kwargs map[string]interface{}) (interface{}, error)

// Agent wraps an external reasoning system behind a single canonical
// async method, per §4.2/§6.
type Agent interface {
	Execute(ctx context.Context, agentContext map[string]interface{}) (interface{}, error)
}

// Generator produces text from a resolved context, per §4.2/§6.
type Generator interface {
	Generate(ctx context.Context, generatorContext map[string]interface{}) (string, error)
}

// ContextBuilder assembles a context map for an Agent or Generate step
// from the bound inputs and completed step results.
type ContextBuilder func(inputs map[string]interface{}, stepResults map[string]interface{}) (map[string]interface{}, error)

// Registry is the single container for all component sub-registries.
// Registration is safe for concurrent use; lookups never mutate.
type Registry struct {
	mu              sync.RWMutex
	actions         map[string]ActionFunc
	agents          map[string]Agent
	generators      map[string]Generator
	contextBuilders map[string]ContextBuilder
	subworkflows    map[string]*ast.Workflow
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		actions:         make(map[string]ActionFunc),
		agents:          make(map[string]Agent),
		generators:      make(map[string]Generator),
		contextBuilders: make(map[string]ContextBuilder),
		subworkflows:    make(map[string]*ast.Workflow),
	}
}

// RegisterAction adds a named action. It returns an error if the key is
// already registered, preserving the "names unique per sub-registry"
// invariant from §4.2.
func (r *Registry) RegisterAction(key string, fn ActionFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.actions[key]; exists {
		return fmt.Errorf("action %q already registered", key)
	}
	r.actions[key] = fn
	return nil
}

func (r *Registry) RegisterAgent(key string, agent Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[key]; exists {
		return fmt.Errorf("agent %q already registered", key)
	}
	r.agents[key] = agent
	return nil
}

func (r *Registry) RegisterGenerator(key string, gen Generator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.generators[key]; exists {
		return fmt.Errorf("generator %q already registered", key)
	}
	r.generators[key] = gen
	return nil
}

func (r *Registry) RegisterContextBuilder(key string, builder ContextBuilder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.contextBuilders[key]; exists {
		return fmt.Errorf("context builder %q already registered", key)
	}
	r.contextBuilders[key] = builder
	return nil
}

func (r *Registry) RegisterSubworkflow(name string, wf *ast.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.subworkflows[name]; exists {
		return fmt.Errorf("subworkflow %q already registered", name)
	}
	r.subworkflows[name] = wf
	return nil
}

func (r *Registry) Action(key string) (ActionFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.actions[key]
	return fn, ok
}

func (r *Registry) Agent(key string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[key]
	return a, ok
}

func (r *Registry) Generator(key string) (Generator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.generators[key]
	return g, ok
}

func (r *Registry) ContextBuilder(key string) (ContextBuilder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.contextBuilders[key]
	return b, ok
}

func (r *Registry) Subworkflow(name string) (*ast.Workflow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wf, ok := r.subworkflows[name]
	return wf, ok
}
