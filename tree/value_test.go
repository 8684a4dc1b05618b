package tree_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davewd/firebase-data-gui/tree"
)

func TestInterpretScalars(t *testing.T) {
	require.Equal(t, tree.KindNull, tree.Interpret(nil, 5).Kind)

	v := tree.Interpret("hello", 5)
	require.Equal(t, tree.KindString, v.Kind)
	require.Equal(t, "hello", v.Str)

	v = tree.Interpret(float64(42.5), 5)
	require.Equal(t, tree.KindNumber, v.Kind)
	require.Equal(t, 42.5, v.Num)

	v = tree.Interpret(true, 5)
	require.Equal(t, tree.KindBool, v.Kind)
	require.True(t, v.Bool)
}

func TestInterpretObjectSortedAndBounded(t *testing.T) {
	raw := map[string]any{
		"g": 7.0, "c": 3.0, "a": 1.0, "e": 5.0, "b": 2.0, "f": 6.0, "d": 4.0,
	}
	v := tree.Interpret(raw, 5)
	require.Equal(t, tree.KindObject, v.Kind)
	require.Equal(t, []string{"a", "b", "c", "d", "e"}, v.Keys)
	require.Len(t, v.Children, 5)
	require.Equal(t, 3.0, v.Children["c"].Num)
}

func TestInterpretBoundsNestedLevels(t *testing.T) {
	inner := map[string]any{}
	for _, k := range []string{"p", "q", "r", "s", "t", "u", "v"} {
		inner[k] = k
	}
	raw := map[string]any{"outer": map[string]any{"inner": inner}}

	v := tree.Interpret(raw, 5)
	nested := v.Children["outer"].Children["inner"]
	require.Equal(t, []string{"p", "q", "r", "s", "t"}, nested.Keys)
}

func TestInterpretArrayBounded(t *testing.T) {
	raw := []any{"a", "b", "c", "d", "e", "f", "g"}
	v := tree.Interpret(raw, 5)
	require.Equal(t, tree.KindArray, v.Kind)
	require.Len(t, v.Elems, 5)
	require.Equal(t, "e", v.Elems[4].Str)
}

func TestInterpretUnbounded(t *testing.T) {
	raw := map[string]any{"a": 1.0, "b": 2.0, "c": 3.0}
	v := tree.Interpret(raw, 0)
	require.Len(t, v.Keys, 3)
}
