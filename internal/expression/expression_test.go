package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeContext struct {
	inputs map[string]interface{}
	steps  map[string]interface{}
	item   interface{}
	hasItem bool
	index   int
	hasIndex bool

	sideEffects []string
}

func (f *fakeContext) Input(path []string) (interface{}, bool) {
	var cur interface{} = f.inputs
	for _, seg := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func (f *fakeContext) StepOutput(name string) (interface{}, bool) {
	f.sideEffects = append(f.sideEffects, "step:"+name)
	v, ok := f.steps[name]
	return v, ok
}

func (f *fakeContext) Item() (interface{}, bool)  { return f.item, f.hasItem }
func (f *fakeContext) Index() (int, bool)         { return f.index, f.hasIndex }

func mustEval(t *testing.T, src string, ctx Context) Value {
	t.Helper()
	expr, err := Parse(src)
	require.NoError(t, err)
	val, err := Evaluate(expr, ctx)
	require.NoError(t, err)
	return val
}

func TestParse_RejectsInvalidExpressions(t *testing.T) {
	cases := []string{
		"",
		"   ",
		".inputs.foo",
		"and inputs.foo",
		"inputs",
		"steps.foo",
		"steps.foo.bar",
		"index.foo",
		"not not inputs.foo",
		"inputs.foo[",
		"inputs.foo['unterminated",
	}
	for _, c := range cases {
		_, err := Parse(c)
		assert.Errorf(t, err, "expected error for %q", c)
	}
}

func TestEvaluate_InputReference(t *testing.T) {
	ctx := &fakeContext{inputs: map[string]interface{}{"title": "hello"}}
	val := mustEval(t, "inputs.title", ctx)
	assert.Equal(t, "hello", val.Go())
}

func TestEvaluate_MissingInputIsHardError(t *testing.T) {
	ctx := &fakeContext{inputs: map[string]interface{}{}}
	expr, err := Parse("inputs.missing")
	require.NoError(t, err)
	_, err = Evaluate(expr, ctx)
	require.Error(t, err)
	var notFound *ReferenceNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestEvaluate_MissingStepResolvesToNone(t *testing.T) {
	ctx := &fakeContext{steps: map[string]interface{}{}}
	val := mustEval(t, "steps.gen.output", ctx)
	assert.Equal(t, TypeNil, val.Type())
}

func TestEvaluate_StepOutputPath(t *testing.T) {
	ctx := &fakeContext{steps: map[string]interface{}{
		"gen": map[string]interface{}{"text": "auto"},
	}}
	val := mustEval(t, "steps.gen.output.text", ctx)
	assert.Equal(t, "auto", val.Go())
}

func TestEvaluate_ItemAndIndex(t *testing.T) {
	ctx := &fakeContext{item: map[string]interface{}{"name": "apple"}, hasItem: true, index: 2, hasIndex: true}
	assert.Equal(t, "apple", mustEval(t, "item.name", ctx).Go())
	assert.Equal(t, float64(2), mustEval(t, "index", ctx).Go())
}

func TestEvaluate_ItemOutsideLoopErrors(t *testing.T) {
	ctx := &fakeContext{}
	expr, err := Parse("item")
	require.NoError(t, err)
	_, err = Evaluate(expr, ctx)
	require.Error(t, err)
	var outside *UndefinedOutsideLoopError
	require.ErrorAs(t, err, &outside)
}

func TestEvaluate_NotNegatesTruthiness(t *testing.T) {
	ctx := &fakeContext{inputs: map[string]interface{}{"flag": false}}
	assert.True(t, mustEval(t, "not inputs.flag", ctx).Truthy())
}

func TestEvaluate_TernaryEvaluatesExactlyOneBranch(t *testing.T) {
	ctx := &fakeContext{
		inputs: map[string]interface{}{"title": ""},
		steps:  map[string]interface{}{"gen": "auto"},
	}
	val := mustEval(t, "inputs.title if inputs.title else steps.gen.output", ctx)
	assert.Equal(t, "auto", val.Go())
}

func TestEvaluate_BooleanShortCircuit(t *testing.T) {
	ctx := &fakeContext{inputs: map[string]interface{}{"flag": false}}
	expr, err := Parse("inputs.flag and steps.expensive.output")
	require.NoError(t, err)
	val, err := Evaluate(expr, ctx)
	require.NoError(t, err)
	assert.False(t, val.Truthy())
	for _, effect := range ctx.sideEffects {
		assert.NotEqual(t, "step:expensive", effect, "right operand must not be evaluated when left is falsy")
	}
}

func TestEvaluate_Idempotence(t *testing.T) {
	ctx := &fakeContext{inputs: map[string]interface{}{"title": "hello"}}
	expr, err := Parse("inputs.title")
	require.NoError(t, err)
	v1, err := Evaluate(expr, ctx)
	require.NoError(t, err)
	v2, err := Evaluate(expr, ctx)
	require.NoError(t, err)
	assert.Equal(t, v1.Go(), v2.Go())
}

func TestResolveString_FullExpressionPreservesType(t *testing.T) {
	ctx := &fakeContext{inputs: map[string]interface{}{"count": 3}}
	v, err := ResolveString("${{ inputs.count }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, float64(3), v)
}

func TestResolveString_MixedStringInterpolates(t *testing.T) {
	ctx := &fakeContext{inputs: map[string]interface{}{"name": "world", "flag": true}}
	v, err := ResolveString("hello ${{ inputs.name }}, flag=${{ inputs.flag }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello world, flag=True", v)
}

func TestResolveString_NoTemplateUnchanged(t *testing.T) {
	ctx := &fakeContext{}
	v, err := ResolveString("plain text", ctx)
	require.NoError(t, err)
	assert.Equal(t, "plain text", v)
}

func TestResolve_WalksNestedStructures(t *testing.T) {
	ctx := &fakeContext{inputs: map[string]interface{}{"name": "world"}}
	input := map[string]interface{}{
		"greeting": "hello ${{ inputs.name }}",
		"list":     []interface{}{"${{ inputs.name }}"},
	}
	out, err := Resolve(input, ctx)
	require.NoError(t, err)
	m := out.(map[string]interface{})
	assert.Equal(t, "hello world", m["greeting"])
	assert.Equal(t, []interface{}{"world"}, m["list"])
}
