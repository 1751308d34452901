// internal/merge/merge.go
//
// Recursive merge of semi-structured trees.
//
// Context
// -------
// Configuration trees mix hand edits with generated defaults.  `DeepMerge`
// folds a source tree into a destination tree:
//
//   - mapping into mapping   → per-key recursion, absent keys deep-copied,
//   - mapping vs non-mapping → `*MergeTypeError` unless retyping is allowed,
//   - everything else        → source wins via deep copy (sequences are
//     replaced wholesale, never merged element-wise).
//
// `source` is never modified.  `dest` is modified in place when it is
// already owned-mutable; otherwise a mutable copy is made first.  Callers
// must always use the returned value.
package merge

import (
	"errors"
	"fmt"
	"sort"
)

// ErrTypeMismatch is matched by every *MergeTypeError via errors.Is.
var ErrTypeMismatch = errors.New("merge type mismatch")

// MergeTypeError reports an attempt to replace a mapping with a
// non-mapping (or the reverse) without AllowRetypeMapping.
type MergeTypeError struct {
	Path string // dotted path of the offending key, "" for the root
	Dest Kind
	Src  Kind
}

func (e *MergeTypeError) Error() string {
	where := e.Path
	if where == "" {
		where = "<root>"
	}
	return fmt.Sprintf("merge %s: cannot replace %s with %s", where, e.Dest, e.Src)
}

func (e *MergeTypeError) Is(target error) bool { return target == ErrTypeMismatch }

// Option tunes DeepMerge.
type Option func(*options)

type options struct {
	allowRetype bool
}

// AllowRetypeMapping lets a mapping replace a non-mapping and vice versa;
// the source value wins via deep copy.
func AllowRetypeMapping() Option {
	return func(o *options) { o.allowRetype = true }
}

// DeepMerge merges source into dest and returns the merged tree.
func DeepMerge(dest, source any, opts ...Option) (any, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	return deepMerge(dest, source, "", &o)
}

func deepMerge(dest, source any, path string, o *options) (any, error) {
	dk, sk := KindOf(dest), KindOf(source)
	if dk == KindMapping && sk == KindMapping {
		out := ShallowMakeMutable(dest).(map[string]any)
		src := mapEntries(source)
		for _, k := range sortedKeys(src) {
			v := src[k]
			cur, ok := out[k]
			if !ok {
				out[k] = DeepCopyMutable(v)
				continue
			}
			merged, err := deepMerge(cur, v, join(path, k), o)
			if err != nil {
				return nil, err
			}
			if !sameRef(merged, cur) {
				out[k] = merged
			}
		}
		return out, nil
	}
	if (dk == KindMapping) != (sk == KindMapping) && dest != nil && !o.allowRetype {
		return nil, &MergeTypeError{Path: path, Dest: dk, Src: sk}
	}
	return DeepCopyMutable(source), nil
}

// NormalizeUpdateArgs flattens an update argument plus explicit overrides
// into one ordered list of pairs.  other may be nil, []Pair, or any
// string-keyed mapping (Go maps are taken in sorted key order).
func NormalizeUpdateArgs(other any, overrides ...Pair) ([]Pair, error) {
	var out []Pair
	switch o := other.(type) {
	case nil:
	case []Pair:
		out = append(out, o...)
	default:
		if KindOf(other) != KindMapping {
			return nil, fmt.Errorf("merge: cannot update from %T", other)
		}
		m := mapEntries(other)
		for _, k := range sortedKeys(m) {
			out = append(out, Pair{Key: k, Value: m[k]})
		}
	}
	return append(out, overrides...), nil
}

// DeepUpdate merges other plus overrides into dest, like a recursive
// map update.  Later pairs win over earlier pairs with the same key.
func DeepUpdate(dest any, other any, overrides ...Pair) (any, error) {
	pairs, err := NormalizeUpdateArgs(other, overrides...)
	if err != nil {
		return nil, err
	}
	update := make(map[string]any, len(pairs))
	for _, p := range pairs {
		update[p.Key] = p.Value
	}
	return DeepMerge(dest, update)
}

// Expand turns a dotted path and a leaf value into a nested mapping.
func Expand(dotted string, value any) map[string]any {
	segs := SplitPath(dotted)
	out := map[string]any{segs[len(segs)-1]: value}
	for i := len(segs) - 2; i >= 0; i-- {
		out = map[string]any{segs[i]: out}
	}
	return out
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RetypeAllowed reports whether opts include AllowRetypeMapping.  Other
// tree representations (such as YAML node trees) use it to apply the same
// rules as DeepMerge.
func RetypeAllowed(opts ...Option) bool {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	return o.allowRetype
}
