package engine

import (
	"sync"
	"testing"

	"github.com/lacquerai/laqcore/internal/execcontext"
	"github.com/lacquerai/laqcore/internal/registry"
	"github.com/stretchr/testify/require"
)

// newTestRegistry builds a registry pre-populated with the given named
// actions, for tests that only need the action sub-registry.
func newTestRegistry(t *testing.T, actions map[string]registryActionFunc) *registry.Registry {
	t.Helper()
	reg := registry.New()
	for name, fn := range actions {
		require.NoError(t, reg.RegisterAction(name, fn))
	}
	return reg
}

// fakeConfig is a minimal execcontext.Config for exercising Validate steps:
// it runs a caller-supplied stage function instead of any real stage
// machinery.
type fakeConfig struct {
	defaultStages []string
	named         map[string][]string

	mu       sync.Mutex
	attempts int
	run      func(attempt int, stages []string) (execcontext.StageResult, error)
}

func (c *fakeConfig) DefaultStages() []string { return c.defaultStages }

func (c *fakeConfig) NamedStages(key string) ([]string, bool) {
	stages, ok := c.named[key]
	return stages, ok
}

func (c *fakeConfig) RunValidationStages(stages []string) (execcontext.StageResult, error) {
	c.mu.Lock()
	attempt := c.attempts
	c.attempts++
	c.mu.Unlock()
	return c.run(attempt, stages)
}
