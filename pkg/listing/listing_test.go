package listing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShallow_PartitionsFilesAndFolders(t *testing.T) {
	entries := []Entry{
		{Key: "a/b.txt", Size: 3},
		{Key: "a/c/d.txt", Size: 5},
		{Key: "a/c/e/f.txt", Size: 7},
	}

	nodes := Shallow("a", entries)
	require.Len(t, nodes, 2)

	// Folders sort before files.
	assert.Equal(t, "c", nodes[0].Name)
	assert.True(t, nodes[0].IsDir)
	assert.Equal(t, "b.txt", nodes[1].Name)
	assert.False(t, nodes[1].IsDir)
	assert.Equal(t, int64(3), nodes[1].Size)
	assert.Equal(t, "a/b.txt", nodes[1].Key)
}

func TestShallow_DeduplicatesFolders(t *testing.T) {
	entries := []Entry{
		{Key: "p/sub/one.txt"},
		{Key: "p/sub/two.txt"},
		{Key: "p/sub/deep/three.txt"},
	}

	nodes := Shallow("p/", entries)
	require.Len(t, nodes, 1)
	assert.Equal(t, "sub", nodes[0].Name)
	assert.True(t, nodes[0].IsDir)
}

func TestShallow_IgnoresPrefixMarkerAndForeignKeys(t *testing.T) {
	entries := []Entry{
		{Key: "a/"},
		{Key: "other/x.txt"},
		{Key: "a/file.txt"},
	}

	nodes := Shallow("a", entries)
	require.Len(t, nodes, 1)
	assert.Equal(t, "file.txt", nodes[0].Name)
}

func TestTree_BuildsCompleteSubtree(t *testing.T) {
	entries := []Entry{
		{Key: "a/b.txt", Size: 1},
		{Key: "a/c/d.txt", Size: 2},
	}

	root := Tree("a", entries)
	require.Len(t, root.Children, 2)

	c := root.Children[0]
	require.True(t, c.IsDir)
	assert.Equal(t, "c", c.Name)
	assert.Same(t, root, c.Parent)

	b := root.Children[1]
	assert.Equal(t, "b.txt", b.Name)
	assert.Same(t, root, b.Parent)

	require.Len(t, c.Children, 1)
	d := c.Children[0]
	assert.Equal(t, "d.txt", d.Name)
	assert.Equal(t, "c/d.txt", d.Path)
	assert.Equal(t, "a/c/d.txt", d.Key)

	// Parent of a nested file is the instance constructed for its
	// immediate ancestor, not a fresh node.
	assert.Same(t, c, d.Parent)
}

func TestTree_SharedIntermediateFolders(t *testing.T) {
	entries := []Entry{
		{Key: "r/x/y/one.txt"},
		{Key: "r/x/y/two.txt"},
		{Key: "r/x/three.txt"},
	}

	root := Tree("r/", entries)
	require.Len(t, root.Children, 1)

	x := root.Children[0]
	require.True(t, x.IsDir)
	require.Len(t, x.Children, 2) // y folder + three.txt

	y := x.Children[0]
	require.True(t, y.IsDir)
	require.Len(t, y.Children, 2)
	assert.Same(t, y, y.Children[0].Parent)
	assert.Same(t, y, y.Children[1].Parent)
}

func TestTree_FolderMarkerObjects(t *testing.T) {
	entries := []Entry{
		{Key: "a/empty/"},
		{Key: "a/b.txt"},
	}

	root := Tree("a", entries)
	require.Len(t, root.Children, 2)
	assert.True(t, root.Children[0].IsDir)
	assert.Equal(t, "empty", root.Children[0].Name)
	assert.Equal(t, "b.txt", root.Children[1].Name)
}

func TestWalk_VisitsEveryDescendant(t *testing.T) {
	entries := []Entry{
		{Key: "a/b.txt"},
		{Key: "a/c/d.txt"},
		{Key: "a/c/e/f.txt"},
	}

	root := Tree("a", entries)
	var paths []string
	Walk(root, func(n *Node) { paths = append(paths, n.Path) })

	assert.Equal(t, []string{"c", "c/e", "c/e/f.txt", "c/d.txt", "b.txt"}, paths)
}
