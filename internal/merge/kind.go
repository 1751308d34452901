// internal/merge/kind.go
//
// Node kinds and container ownership for semi-structured trees.
//
// Context
// -------
// Configuration documents arrive as trees of mappings, sequences, and
// scalars.  Decoders hand us `map[string]any` and `[]any`, builders hand us
// typed maps such as `map[string]string`, and the settings layer hands out
// read-only `FrozenMap` / `FrozenList` views.  Every operation in this
// package dispatches on `KindOf`, never on ad-hoc type switches, so the
// container kind is explicit.
//
// Ownership rule: only `map[string]any` and `[]any` are owned-mutable.
// Anything else that is a mapping or a sequence is treated as read-only
// and is copied before it is modified.
//
// Notes
// -----
//   - `[]byte` is a scalar, not a sequence.
//   - Mapping keys must be strings; other key types are scalars to us.
package merge

import "reflect"

// Kind tags a tree node.
type Kind int

const (
	KindScalar Kind = iota
	KindMapping
	KindSequence
)

func (k Kind) String() string {
	switch k {
	case KindMapping:
		return "mapping"
	case KindSequence:
		return "sequence"
	default:
		return "scalar"
	}
}

// FrozenMap is a read-only mapping marker.  Values of this type are never
// modified in place by this package.
type FrozenMap map[string]any

// FrozenList is a read-only sequence marker.
type FrozenList []any

// Pair is one key/value update.
type Pair struct {
	Key   string
	Value any
}

// KindOf classifies v.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil, string, []byte:
		return KindScalar
	case map[string]any, FrozenMap:
		return KindMapping
	case []any, FrozenList:
		return KindSequence
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			return KindMapping
		}
	case reflect.Slice, reflect.Array:
		return KindSequence
	}
	return KindScalar
}

// IsOwnedMutable reports whether v is a container this package may modify
// in place.
func IsOwnedMutable(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

// sameRef reports whether a and b are the same container object.  Scalars
// never compare as the same reference.
func sameRef(a, b any) bool {
	if KindOf(a) == KindScalar || KindOf(b) == KindScalar {
		return false
	}
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Type() != rb.Type() {
		return false
	}
	switch ra.Kind() {
	case reflect.Map:
		return ra.UnsafePointer() == rb.UnsafePointer()
	case reflect.Slice:
		return ra.Len() == rb.Len() && ra.UnsafePointer() == rb.UnsafePointer()
	}
	return false
}

// mapEntries returns the entries of any string-keyed mapping.
func mapEntries(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case FrozenMap:
		return m
	}
	rv := reflect.ValueOf(v)
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out
}

// seqItems returns the items of any sequence.
func seqItems(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case FrozenList:
		return s
	}
	rv := reflect.ValueOf(v)
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}
