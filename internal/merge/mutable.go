package merge

import "github.com/mohae/deepcopy"

// ShallowMakeMutable returns v as an owned-mutable container of the same
// kind.  Owned containers and scalars are returned unchanged; read-only
// containers are copied one level deep.
func ShallowMakeMutable(v any) any {
	if IsOwnedMutable(v) {
		return v
	}
	switch KindOf(v) {
	case KindMapping:
		src := mapEntries(v)
		out := make(map[string]any, len(src))
		for k, x := range src {
			out[k] = x
		}
		return out
	case KindSequence:
		src := seqItems(v)
		out := make([]any, len(src))
		copy(out, src)
		return out
	}
	return v
}

// ShallowCopyMutable copies v one level deep and makes the copy mutable.
func ShallowCopyMutable(v any) any {
	switch c := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(c))
		for k, x := range c {
			out[k] = x
		}
		return out
	case []any:
		out := make([]any, len(c))
		copy(out, c)
		return out
	}
	return ShallowMakeMutable(v)
}

// DeepMakeMutable makes every container in the tree owned-mutable.
// Containers that are already owned are kept (and fixed up in place), so
// calling it on an already-mutable tree allocates nothing.
func DeepMakeMutable(v any) any {
	switch m := ShallowMakeMutable(v).(type) {
	case map[string]any:
		for k, child := range m {
			if KindOf(child) == KindScalar {
				continue
			}
			if nc := DeepMakeMutable(child); !sameRef(nc, child) {
				m[k] = nc
			}
		}
		return m
	case []any:
		for i, child := range m {
			if KindOf(child) == KindScalar {
				continue
			}
			if nc := DeepMakeMutable(child); !sameRef(nc, child) {
				m[i] = nc
			}
		}
		return m
	default:
		return m
	}
}

// DeepCopyMutable returns a deep copy of v in which every container is
// owned-mutable.  The result shares no containers with v.
func DeepCopyMutable(v any) any {
	if v == nil {
		return nil
	}
	return DeepMakeMutable(deepcopy.Copy(v))
}

// Freeze returns a deep read-only view of v built from copies.
func Freeze(v any) any {
	switch KindOf(v) {
	case KindMapping:
		src := mapEntries(v)
		out := make(FrozenMap, len(src))
		for k, x := range src {
			out[k] = Freeze(x)
		}
		return out
	case KindSequence:
		src := seqItems(v)
		out := make(FrozenList, len(src))
		for i, x := range src {
			out[i] = Freeze(x)
		}
		return out
	}
	return v
}
