// Package settings implements the nested settings document and its
// addressing primitives. A document is a schema-less tree: string keys
// mapping to scalars, lists, or further trees, with depth and leaf types
// varying by key-path.
package settings

import (
	"fmt"
	"strings"
)

// Tree is one level of a settings document. It is an alias so values
// produced by encoding/json satisfy it directly.
type Tree = map[string]any

// ConflictError reports a Set that would have to destroy an existing
// non-tree value to materialize an intermediate segment.
type ConflictError struct {
	Path   string // the full requested path
	Prefix string // the prefix holding the conflicting value
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("settings: %q holds a non-tree value, cannot descend for %q", e.Prefix, e.Path)
}

// SplitPath splits a dotted key-path into its segments.
func SplitPath(path string) []string {
	return strings.Split(path, ".")
}

// Get returns the value at path, or false for any absent segment or a
// non-tree intermediate. It never panics.
func Get(tree Tree, path string) (any, bool) {
	segments := SplitPath(path)
	node := tree
	for _, seg := range segments[:len(segments)-1] {
		next, ok := node[seg].(Tree)
		if !ok {
			return nil, false
		}
		node = next
	}
	v, ok := node[segments[len(segments)-1]]
	return v, ok
}

// Set assigns value at path, materializing empty subtrees for absent
// intermediate segments and mutating tree in place. If an existing
// intermediate holds a non-tree value, Set refuses and returns a
// *ConflictError; nothing is modified in that case.
func Set(tree Tree, path string, value any) error {
	segments := SplitPath(path)
	node := tree
	for i, seg := range segments[:len(segments)-1] {
		switch next := node[seg].(type) {
		case Tree:
			node = next
		case nil:
			child := Tree{}
			node[seg] = child
			node = child
		default:
			return &ConflictError{Path: path, Prefix: strings.Join(segments[:i+1], ".")}
		}
	}
	node[segments[len(segments)-1]] = value
	return nil
}

// ForceSet is Set with the original overwrite semantics: a conflicting
// intermediate is replaced by an empty subtree. Callers own the risk of
// destroying whatever was there.
func ForceSet(tree Tree, path string, value any) {
	segments := SplitPath(path)
	node := tree
	for _, seg := range segments[:len(segments)-1] {
		next, ok := node[seg].(Tree)
		if !ok {
			next = Tree{}
			node[seg] = next
		}
		node = next
	}
	node[segments[len(segments)-1]] = value
}

// Merge folds src into dst recursively: where both sides hold a tree the
// trees merge, everywhere else src's value replaces dst's (lists are
// replaced wholesale, never concatenated). dst is mutated and returned.
// Merging the same src twice yields the same result as merging it once.
func Merge(dst, src Tree) Tree {
	for key, sv := range src {
		st, sok := sv.(Tree)
		dt, dok := dst[key].(Tree)
		if sok && dok {
			Merge(dt, st)
			continue
		}
		dst[key] = sv
	}
	return dst
}

// Clone returns a deep copy of tree. Scalars are shared (they are
// immutable); trees and lists are copied recursively.
func Clone(tree Tree) Tree {
	out := make(Tree, len(tree))
	for k, v := range tree {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies a single tree value of any shape.
func CloneValue(v any) any {
	switch tv := v.(type) {
	case Tree:
		return Clone(tv)
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = CloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Delete removes the value at path. Absent segments make it a no-op.
func Delete(tree Tree, path string) {
	segments := SplitPath(path)
	node := tree
	for _, seg := range segments[:len(segments)-1] {
		next, ok := node[seg].(Tree)
		if !ok {
			return
		}
		node = next
	}
	delete(node, segments[len(segments)-1])
}

// StringList reads the list at path and returns its string elements.
// A missing or non-list value yields an empty slice.
func StringList(tree Tree, path string) []string {
	v, ok := Get(tree, path)
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
