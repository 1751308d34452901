package merge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree() FrozenMap {
	return FrozenMap{
		"hub": FrozenMap{
			"parent_dns_domain": "example.com",
			"allowed":           FrozenList{"prod", "staging"},
			"env":               map[string]string{"TZ": "UTC"},
		},
		"version": 1.2,
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		in   any
		want Kind
	}{
		{nil, KindScalar},
		{"x", KindScalar},
		{[]byte("x"), KindScalar},
		{42, KindScalar},
		{map[string]any{}, KindMapping},
		{FrozenMap{}, KindMapping},
		{map[string]string{}, KindMapping},
		{map[int]string{}, KindScalar},
		{[]any{}, KindSequence},
		{FrozenList{}, KindSequence},
		{[]string{"a"}, KindSequence},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, KindOf(c.in), "%#v", c.in)
	}
}

func TestDeepMakeMutable(t *testing.T) {
	t.Run("Should convert every read-only container", func(t *testing.T) {
		got := DeepMakeMutable(sampleTree())
		hub := got.(map[string]any)["hub"].(map[string]any)
		assert.Equal(t, []any{"prod", "staging"}, hub["allowed"])
		assert.Equal(t, map[string]any{"TZ": "UTC"}, hub["env"])
	})

	t.Run("Should be idempotent and keep identity on the second pass", func(t *testing.T) {
		once := DeepMakeMutable(sampleTree())
		twice := DeepMakeMutable(once)
		require.Equal(t, once, twice)
		assert.True(t, sameRef(once, twice))
		hub1 := once.(map[string]any)["hub"]
		hub2 := twice.(map[string]any)["hub"]
		assert.True(t, sameRef(hub1, hub2))
	})

	t.Run("Should pass scalars through", func(t *testing.T) {
		assert.Equal(t, 7, DeepMakeMutable(7))
		assert.Nil(t, DeepMakeMutable(nil))
	})
}

func TestShallowCopyMutable(t *testing.T) {
	src := map[string]any{"a": map[string]any{"b": 1}}
	cp := ShallowCopyMutable(src).(map[string]any)
	cp["c"] = 2
	assert.NotContains(t, src, "c")
	assert.True(t, sameRef(src["a"], cp["a"]), "nested containers are shared by a shallow copy")
}

func TestDeepCopyMutable(t *testing.T) {
	src := map[string]any{"a": map[string]any{"b": []any{1, 2}}}
	cp := DeepCopyMutable(src).(map[string]any)
	require.Equal(t, src, cp)
	cp["a"].(map[string]any)["b"].([]any)[0] = 99
	assert.Equal(t, 1, src["a"].(map[string]any)["b"].([]any)[0])
}

func TestDeepMerge(t *testing.T) {
	t.Run("Should merge nested mappings key by key", func(t *testing.T) {
		dest := map[string]any{
			"hub": map[string]any{"parent_dns_domain": "old.com", "keep": true},
		}
		src := map[string]any{
			"hub": map[string]any{"parent_dns_domain": "new.com", "added": "x"},
		}
		got, err := DeepMerge(dest, src)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			"hub": map[string]any{"parent_dns_domain": "new.com", "keep": true, "added": "x"},
		}, got)
		assert.True(t, sameRef(got, dest), "owned dest is merged in place")
	})

	t.Run("Should never modify the source", func(t *testing.T) {
		src := map[string]any{"a": map[string]any{"b": []any{1, map[string]any{"c": 2}}}}
		before := DeepCopyMutable(src)
		got, err := DeepMerge(map[string]any{}, src)
		require.NoError(t, err)
		got.(map[string]any)["a"].(map[string]any)["b"].([]any)[1].(map[string]any)["c"] = 3
		assert.Equal(t, before, src)
	})

	t.Run("Should copy a read-only dest before merging", func(t *testing.T) {
		dest := FrozenMap{"x": 1}
		got, err := DeepMerge(dest, map[string]any{"y": 2})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"x": 1, "y": 2}, got)
		assert.Len(t, dest, 1)
	})

	t.Run("Should replace sequences wholesale", func(t *testing.T) {
		dest := map[string]any{"l": []any{1, 2, 3}}
		got, err := DeepMerge(dest, map[string]any{"l": []any{9}})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"l": []any{9}}, got)
	})

	t.Run("Should reject a mapping over a scalar", func(t *testing.T) {
		_, err := DeepMerge(map[string]any{"a": 1}, map[string]any{"a": map[string]any{"b": 2}})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrTypeMismatch))
		var mte *MergeTypeError
		require.True(t, errors.As(err, &mte))
		assert.Equal(t, "a", mte.Path)
		assert.Equal(t, KindScalar, mte.Dest)
		assert.Equal(t, KindMapping, mte.Src)
	})

	t.Run("Should reject a sequence over a mapping", func(t *testing.T) {
		_, err := DeepMerge(map[string]any{"a": map[string]any{}}, map[string]any{"a": []any{1}})
		assert.ErrorIs(t, err, ErrTypeMismatch)
	})

	t.Run("Should retype when allowed", func(t *testing.T) {
		got, err := DeepMerge(map[string]any{"a": 1}, map[string]any{"a": map[string]any{"b": 2}}, AllowRetypeMapping())
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"a": map[string]any{"b": 2}}, got)
	})

	t.Run("Should treat a nil dest as absent", func(t *testing.T) {
		got, err := DeepMerge(map[string]any{"a": nil}, map[string]any{"a": map[string]any{"b": 2}})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"a": map[string]any{"b": 2}}, got)
	})

	t.Run("Should satisfy per-key precedence recursively", func(t *testing.T) {
		dest := map[string]any{"k": map[string]any{"x": 1, "l": []any{1}}, "s": "a"}
		src := map[string]any{"k": map[string]any{"x": 2, "l": []any{2, 3}}, "s": "b"}
		want, err := DeepMerge(DeepCopyMutable(dest["k"]), src["k"])
		require.NoError(t, err)
		got, err := DeepMerge(dest, src)
		require.NoError(t, err)
		assert.Equal(t, want, got.(map[string]any)["k"])
		assert.Equal(t, "b", got.(map[string]any)["s"])
	})
}

func TestDeepUpdate(t *testing.T) {
	dest := map[string]any{"a": map[string]any{"b": 1}}
	got, err := DeepUpdate(dest,
		map[string]string{"c": "x"},
		Pair{Key: "a", Value: map[string]any{"d": 2}},
		Pair{Key: "c", Value: "y"},
	)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"a": map[string]any{"b": 1, "d": 2},
		"c": "y",
	}, got)

	_, err = DeepUpdate(dest, 42)
	assert.Error(t, err)
}

func TestNormalizeUpdateArgs(t *testing.T) {
	pairs, err := NormalizeUpdateArgs(map[string]any{"b": 2, "a": 1}, Pair{Key: "z", Value: 0})
	require.NoError(t, err)
	assert.Equal(t, []Pair{{"a", 1}, {"b", 2}, {"z", 0}}, pairs)

	pairs, err = NormalizeUpdateArgs(nil)
	require.NoError(t, err)
	assert.Empty(t, pairs)
}

func TestExpandAndLookup(t *testing.T) {
	tree := Expand("hub.parent_dns_domain", "example.com")
	assert.Equal(t, map[string]any{"hub": map[string]any{"parent_dns_domain": "example.com"}}, tree)

	v, ok := Lookup(tree, "hub.parent_dns_domain")
	require.True(t, ok)
	assert.Equal(t, "example.com", v)

	_, ok = Lookup(tree, "hub.missing")
	assert.False(t, ok)
	_, ok = Lookup(tree, "hub.parent_dns_domain.deeper")
	assert.False(t, ok)
}

func TestFreeze(t *testing.T) {
	src := map[string]any{"a": []any{map[string]any{"b": 1}}}
	frozen := Freeze(src).(FrozenMap)
	list := frozen["a"].(FrozenList)
	assert.Equal(t, FrozenMap{"b": 1}, list[0])
	src["a"].([]any)[0].(map[string]any)["b"] = 2
	assert.Equal(t, 1, list[0].(FrozenMap)["b"])
}
