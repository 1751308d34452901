package configyml

import (
	"github.com/yanizio/tphub/internal/merge"

	"gopkg.in/yaml.v3"
)

func newMapping() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}

// copyNode deep-copies a node tree.  Aliases are re-pointed at the copied
// anchors so the copy never references the original.
func copyNode(n *yaml.Node) *yaml.Node {
	return copyNodeMemo(n, map[*yaml.Node]*yaml.Node{})
}

func copyNodeMemo(n *yaml.Node, seen map[*yaml.Node]*yaml.Node) *yaml.Node {
	if n == nil {
		return nil
	}
	if c, ok := seen[n]; ok {
		return c
	}
	c := *n
	seen[n] = &c
	if n.Content != nil {
		c.Content = make([]*yaml.Node, len(n.Content))
		for i, child := range n.Content {
			c.Content[i] = copyNodeMemo(child, seen)
		}
	}
	c.Alias = copyNodeMemo(n.Alias, seen)
	return &c
}

func nodeKind(n *yaml.Node) merge.Kind {
	if n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	switch n.Kind {
	case yaml.MappingNode:
		return merge.KindMapping
	case yaml.SequenceNode:
		return merge.KindSequence
	}
	return merge.KindScalar
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.Tag == "!!null"
}

// mergeNode applies merge.DeepMerge rules to YAML node trees.  Existing
// keys keep their position and comments; new keys are appended.
func mergeNode(dst, src *yaml.Node, path string, allowRetype bool) error {
	for i := 0; i+1 < len(src.Content); i += 2 {
		key, val := src.Content[i], src.Content[i+1]
		sub := key.Value
		if path != "" {
			sub = path + "." + key.Value
		}

		j := findKey(dst, key.Value)
		if j < 0 {
			dst.Content = append(dst.Content, copyNode(key), copyNode(val))
			continue
		}
		cur := dst.Content[j+1]
		dk, sk := nodeKind(cur), nodeKind(val)
		if dk == merge.KindMapping && sk == merge.KindMapping && cur.Kind == yaml.MappingNode {
			if err := mergeNode(cur, val, sub, allowRetype); err != nil {
				return err
			}
			continue
		}
		if (dk == merge.KindMapping) != (sk == merge.KindMapping) && !isNull(cur) && !allowRetype {
			return &merge.MergeTypeError{Path: sub, Dest: dk, Src: sk}
		}
		replaceValue(cur, val)
	}
	return nil
}

func findKey(m *yaml.Node, key string) int {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return i
		}
	}
	return -1
}

// replaceValue overwrites dst with a copy of src in place, keeping any
// comments already attached to dst.
func replaceValue(dst, src *yaml.Node) {
	head, line, foot := dst.HeadComment, dst.LineComment, dst.FootComment
	*dst = *copyNode(src)
	if dst.HeadComment == "" {
		dst.HeadComment = head
	}
	if dst.LineComment == "" {
		dst.LineComment = line
	}
	if dst.FootComment == "" {
		dst.FootComment = foot
	}
}

// setNode assigns val at segs below the mapping m.  Missing or non-mapping
// intermediates become empty mappings; the leaf is replaced whole, keeping
// its comments.
func setNode(m *yaml.Node, segs []string, val *yaml.Node) {
	for _, seg := range segs[:len(segs)-1] {
		j := findKey(m, seg)
		if j < 0 {
			child := newMapping()
			m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: seg}, child)
			m = child
			continue
		}
		if cur := m.Content[j+1]; cur.Kind != yaml.MappingNode {
			replaceValue(cur, newMapping())
		}
		m = m.Content[j+1]
	}

	leaf := segs[len(segs)-1]
	if j := findKey(m, leaf); j >= 0 {
		replaceValue(m.Content[j+1], val)
		return
	}
	m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: leaf}, copyNode(val))
}
