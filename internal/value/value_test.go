package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeRightBiasOnPrimitives(t *testing.T) {
	got := Merge(String("left"), String("right"))
	assert.Equal(t, String("right"), got)
}

func TestMergeUndefinedRightKeepsLeft(t *testing.T) {
	got := Merge(String("left"), nil)
	assert.Equal(t, String("left"), got)
}

func TestMergeUndefinedLeftTakesRight(t *testing.T) {
	got := Merge(nil, String("right"))
	assert.Equal(t, String("right"), got)
}

func TestMergeObjectsRecurse(t *testing.T) {
	left := Object{
		"a": String("left-a"),
		"b": Object{"nested": String("left-nested")},
		"c": String("left-only"),
	}
	right := Object{
		"a": String("right-a"),
		"b": Object{"nested": String("right-nested"), "extra": Bool(true)},
		"d": String("right-only"),
	}

	got := Merge(left, right)
	obj, ok := got.(Object)
	require.True(t, ok)

	assert.Equal(t, String("right-a"), obj["a"])
	assert.Equal(t, String("left-only"), obj["c"])
	assert.Equal(t, String("right-only"), obj["d"])

	nested, ok := obj["b"].(Object)
	require.True(t, ok)
	assert.Equal(t, String("right-nested"), nested["nested"])
	assert.Equal(t, Bool(true), nested["extra"])
}

func TestMergeSequenceNeverMerges(t *testing.T) {
	left := Sequence{String("a"), String("b")}
	right := Sequence{String("x")}
	got := Merge(left, right)
	assert.Equal(t, right, got)
}

// Merge must be associative over undefined identity: merging three
// layers left-to-right or with different groupings yields the same
// result, since every pairing either recurses structurally or takes
// the rightmost defined value.
func TestMergeAssociative(t *testing.T) {
	a := Object{"k": String("a"), "shared": String("from-a")}
	b := Object{"k": String("b")}
	c := Object{"k": String("c"), "shared": String("from-c")}

	left := Merge(Merge(a, b), c)
	right := Merge(a, Merge(b, c))

	assert.Equal(t, left, right)
	assert.Equal(t, String("c"), left.(Object)["k"])
	assert.Equal(t, String("from-c"), left.(Object)["shared"])
}

func TestCloneDeepCopiesObjectsAndSequences(t *testing.T) {
	orig := Object{
		"list": Sequence{String("x")},
	}
	cloned := Clone(orig).(Object)

	seq := cloned["list"].(Sequence)
	seq[0] = String("mutated")

	origSeq := orig["list"].(Sequence)
	assert.Equal(t, String("x"), origSeq[0])
}

func TestCastToVariablesRejectsFunctions(t *testing.T) {
	_, err := CastToVariables(func() {})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnexpected)
}

func TestCastToVariablesNestedMaps(t *testing.T) {
	v, err := CastToVariables(map[string]interface{}{
		"name": "widget",
		"tags": []interface{}{"a", "b"},
		"meta": map[string]interface{}{"count": float64(2)},
	})
	require.NoError(t, err)

	obj := v.(Object)
	assert.Equal(t, String("widget"), obj["name"])
	assert.Equal(t, Sequence{String("a"), String("b")}, obj["tags"])
	assert.Equal(t, Number(2), obj["meta"].(Object)["count"])
}

func TestGetValueMissingIntermediateYieldsUndefined(t *testing.T) {
	root := Object{"a": Object{"b": String("c")}}
	assert.Nil(t, GetValue(root, []string{"a", "missing", "c"}))
	assert.Equal(t, String("c"), GetValue(root, []string{"a", "b"}))
}

func TestSetValueCreatesIntermediates(t *testing.T) {
	root := SetValue(nil, []string{"a", "b", "c"}, String("v"))
	assert.Equal(t, String("v"), GetValue(root, []string{"a", "b", "c"}))
}

func TestVariablesToStringsDropsUndefined(t *testing.T) {
	out, err := VariablesToStrings(Object{
		"present": String("x"),
		"missing": nil,
		"num":     Number(3),
	})
	require.NoError(t, err)
	assert.Equal(t, "x", out["present"])
	assert.Equal(t, "3", out["num"])
	_, ok := out["missing"]
	assert.False(t, ok)
}

func TestTruthy(t *testing.T) {
	assert.False(t, Truthy(nil))
	assert.False(t, Truthy(Bool(false)))
	assert.False(t, Truthy(String("")))
	assert.False(t, Truthy(Number(0)))
	assert.False(t, Truthy(Sequence{}))
	assert.True(t, Truthy(String("x")))
	assert.True(t, Truthy(Number(1)))
	assert.True(t, Truthy(Bool(true)))
}
