package merge

import "strings"

// SplitPath splits a dotted path into its segments.
func SplitPath(dotted string) []string {
	return strings.Split(dotted, ".")
}

// Lookup walks a dotted path through nested mappings.
func Lookup(tree any, dotted string) (any, bool) {
	cur := tree
	for _, seg := range SplitPath(dotted) {
		if KindOf(cur) != KindMapping {
			return nil, false
		}
		next, ok := mapEntries(cur)[seg]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}
