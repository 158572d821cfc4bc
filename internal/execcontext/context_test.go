package execcontext

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowContext_SetAndGetResult(t *testing.T) {
	ctx := New(map[string]interface{}{"name": "ada"}, nil, zerolog.Nop())

	_, ok := ctx.Result("greet")
	assert.False(t, ok)

	ctx.SetResult("greet", &StepResult{Name: "greet", Success: true, Output: "hello ada"})

	r, ok := ctx.Result("greet")
	require.True(t, ok)
	assert.Equal(t, "hello ada", r.Output)

	all := ctx.AllResults()
	require.Len(t, all, 1)
	assert.Same(t, r, all["greet"])
}

func TestWorkflowContext_Input(t *testing.T) {
	ctx := New(map[string]interface{}{
		"name": "ada",
		"nested": map[string]interface{}{
			"city": "london",
		},
	}, nil, zerolog.Nop())

	v, ok := ctx.Input([]string{"name"})
	require.True(t, ok)
	assert.Equal(t, "ada", v)

	v, ok = ctx.Input([]string{"nested", "city"})
	require.True(t, ok)
	assert.Equal(t, "london", v)

	_, ok = ctx.Input([]string{"nested", "country"})
	assert.False(t, ok)

	_, ok = ctx.Input([]string{"missing"})
	assert.False(t, ok)
}

func TestWorkflowContext_StepOutput(t *testing.T) {
	ctx := New(nil, nil, zerolog.Nop())

	_, ok := ctx.StepOutput("build")
	assert.False(t, ok)

	ctx.SetResult("build", &StepResult{Name: "build", Output: map[string]interface{}{"artifact": "app.bin"}})

	out, ok := ctx.StepOutput("build")
	require.True(t, ok)
	assert.Equal(t, map[string]interface{}{"artifact": "app.bin"}, out)
}

func TestWorkflowContext_DeriveIteration(t *testing.T) {
	parent := New(map[string]interface{}{"x": 1}, nil, zerolog.Nop())
	parent.SetResult("seed", &StepResult{Name: "seed", Output: "seeded"})

	child := parent.DeriveIteration("item-a", 3, "process_all")

	item, ok := child.Item()
	require.True(t, ok)
	assert.Equal(t, "item-a", item)

	idx, ok := child.Index()
	require.True(t, ok)
	assert.Equal(t, 3, idx)

	assert.Equal(t, "process_all", child.Iteration.CurrentLoopStep)

	out, ok := child.StepOutput("seed")
	require.True(t, ok)
	assert.Equal(t, "seeded", out)

	child.SetResult("inner", &StepResult{Name: "inner", Output: "child-only"})
	_, ok = parent.Result("inner")
	assert.False(t, ok, "writes inside an iteration must not leak back to the parent")

	_, ok = parent.Item()
	assert.False(t, ok, "parent has no bound item")
}

func TestWorkflowContext_StepResultsAsGo(t *testing.T) {
	ctx := New(nil, nil, zerolog.Nop())
	ctx.SetResult("a", &StepResult{Name: "a", Output: 1})
	ctx.SetResult("b", &StepResult{Name: "b", Output: "two"})

	out := ctx.StepResultsAsGo()
	assert.Equal(t, map[string]interface{}{"a": 1, "b": "two"}, out)
}

func TestWorkflowContext_RunRollbacks(t *testing.T) {
	ctx := New(nil, nil, zerolog.Nop())

	var order []string
	ctx.RegisterRollback(func() { order = append(order, "first") })
	ctx.RegisterRollback(func() { order = append(order, "second") })
	ctx.RegisterRollback(func() { panic(errors.New("boom")) })

	var caught []error
	ctx.RunRollbacks(func(err error) { caught = append(caught, err) })

	assert.Equal(t, []string{"second", "first"}, order, "rollbacks run in reverse registration order")
	require.Len(t, caught, 1)
	assert.EqualError(t, caught[0], "boom")
}

func TestWorkflowContext_RunRollbacks_StringPanic(t *testing.T) {
	ctx := New(nil, nil, zerolog.Nop())
	ctx.RegisterRollback(func() { panic("not an error value") })

	var caught []error
	ctx.RunRollbacks(func(err error) { caught = append(caught, err) })

	require.Len(t, caught, 1)
	assert.Equal(t, "panic: not an error value", caught[0].Error())
}

func TestWorkflowContext_RunRollbacks_NonStringPanic(t *testing.T) {
	ctx := New(nil, nil, zerolog.Nop())
	ctx.RegisterRollback(func() { panic(42) })

	var caught []error
	ctx.RunRollbacks(func(err error) { caught = append(caught, err) })

	require.Len(t, caught, 1)
	assert.Equal(t, "panic: non-string panic value", caught[0].Error())
}
