// Package listing reconstructs directory trees from flat key enumerations.
//
// Object stores with no native directory objects (S3-style buckets, the dx
// platform's folder strings) expose only a set of keys sharing a prefix.
// This package partitions such an enumeration into an explicit tree:
// shallow (immediate children only) or recursive (the complete subtree in
// one pass, with every intermediate folder materialized and parent links
// wired to the already-constructed ancestor node).
//
// The synthesis is pure in-memory computation; backends wrap the resulting
// nodes in their own source types and attach cached child listings so a
// later visit of a nested folder does not re-enumerate the backend.
package listing

import (
	"sort"
	"strings"
)

// Entry is one enumerated key under a prefix.
type Entry struct {
	// Key is the full backend key (e.g. "data/runs/a/b.txt").
	Key string

	// Size is the object size in bytes.
	Size int64
}

// Node is one file or folder in a synthesized tree.
type Node struct {
	// Name is the final path segment.
	Name string

	// Path is the prefix-relative path ("" for the root node,
	// "a/b.txt" for a nested file).
	Path string

	// Key is the original backend key. Empty for synthesized folders,
	// which have no backing object.
	Key string

	// Size is the object size for files, 0 for folders.
	Size int64

	// IsDir reports whether the node is a folder.
	IsDir bool

	// Parent is the already-constructed ancestor node, nil for the root.
	Parent *Node

	// Children holds the node's immediate children, sorted by name.
	// Populated for every folder reached by a recursive synthesis.
	Children []*Node
}

// normalizePrefix ensures a non-empty prefix ends with "/" so relative
// paths can be computed by trimming.
func normalizePrefix(prefix string) string {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		return prefix + "/"
	}
	return prefix
}

// relative returns the prefix-relative path of key, and whether key is a
// proper descendant of the prefix. The prefix marker object itself (a key
// equal to the prefix) is not a descendant.
func relative(prefix, key string) (string, bool) {
	if !strings.HasPrefix(key, prefix) {
		return "", false
	}
	rel := strings.TrimPrefix(key, prefix)
	if rel == "" {
		return "", false
	}
	return rel, true
}

// Shallow partitions the entries under prefix into immediate-child files
// and deduplicated immediate-child folders, without exploring
// grandchildren. A key at depth 1 below the prefix becomes a file node; a
// key at depth >= 2 contributes only its first segment, as a folder node.
func Shallow(prefix string, entries []Entry) []*Node {
	prefix = normalizePrefix(prefix)

	var files []*Node
	folders := make(map[string]*Node)

	for _, e := range entries {
		rel, ok := relative(prefix, e.Key)
		if !ok {
			continue
		}
		if idx := strings.IndexByte(rel, '/'); idx >= 0 {
			seg := rel[:idx]
			if seg == "" {
				continue
			}
			if _, seen := folders[seg]; !seen {
				folders[seg] = &Node{Name: seg, Path: seg, IsDir: true}
			}
			continue
		}
		files = append(files, &Node{Name: rel, Path: rel, Key: e.Key, Size: e.Size})
	}

	nodes := make([]*Node, 0, len(files)+len(folders))
	for _, n := range folders {
		nodes = append(nodes, n)
	}
	nodes = append(nodes, files...)
	sortNodes(nodes)
	return nodes
}

// Tree builds the complete subtree under prefix in one pass. The returned
// root node represents the prefix itself; every enumerated key becomes a
// file node and every distinct intermediate path becomes a folder node.
// Each node's Parent is the instance constructed for its immediate
// ancestor, and every folder's Children slice is populated eagerly.
func Tree(prefix string, entries []Entry) *Node {
	prefix = normalizePrefix(prefix)

	root := &Node{IsDir: true}
	dirs := map[string]*Node{"": root}

	for _, e := range entries {
		rel, ok := relative(prefix, e.Key)
		if !ok {
			continue
		}
		segments := strings.Split(rel, "/")

		parent := root
		for i := 0; i < len(segments)-1; i++ {
			seg := segments[i]
			if seg == "" {
				continue
			}
			dirPath := strings.Join(segments[:i+1], "/")
			dir, exists := dirs[dirPath]
			if !exists {
				dir = &Node{Name: seg, Path: dirPath, IsDir: true, Parent: parent}
				dirs[dirPath] = dir
				parent.Children = append(parent.Children, dir)
			}
			parent = dir
		}

		leaf := segments[len(segments)-1]
		if leaf == "" {
			// Key ends with "/": a folder marker object. The folder node
			// has already been created above.
			continue
		}
		file := &Node{Name: leaf, Path: rel, Key: e.Key, Size: e.Size, Parent: parent}
		parent.Children = append(parent.Children, file)
	}

	for _, dir := range dirs {
		sortNodes(dir.Children)
	}
	return root
}

// Walk visits every node in the subtree rooted at n in depth-first,
// child-order traversal, excluding n itself.
func Walk(n *Node, visit func(*Node)) {
	for _, child := range n.Children {
		visit(child)
		if child.IsDir {
			Walk(child, visit)
		}
	}
}

// sortNodes orders folders before files, each group by name, so listings
// are deterministic regardless of enumeration order.
func sortNodes(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].IsDir != nodes[j].IsDir {
			return nodes[i].IsDir
		}
		return nodes[i].Name < nodes[j].Name
	})
}
