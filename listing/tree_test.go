package listing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counts = struct{ Covered, Missed int }

func TestDirTreeAggregatesBottomUp(t *testing.T) {
	files := map[string]counts{
		"src/a.cpp":     {Covered: 2, Missed: 0},
		"src/b.cpp":     {Covered: 1, Missed: 1},
		"src/lib/c.cpp": {Covered: 3, Missed: 0},
		"README.md":     {Covered: 0, Missed: 0},
	}
	tree := NewDirTree(files)

	root, ok := tree.Children("")
	require.True(t, ok)
	var src DirEntry
	for _, e := range root {
		if e.Name == "src" {
			src = e
		}
	}
	assert.Equal(t, 6, src.Covered) // 2 + 1 + 3
	assert.Equal(t, 1, src.Missed)
	assert.False(t, src.IsFile)

	srcChildren, ok := tree.Children("src")
	require.True(t, ok)
	var lib DirEntry
	for _, e := range srcChildren {
		if e.Name == "lib" {
			lib = e
		}
	}
	assert.Equal(t, 3, lib.Covered)
	assert.False(t, lib.IsFile)
}

func TestDirTreeChildrenMissingPath(t *testing.T) {
	tree := NewDirTree(map[string]counts{"a.cpp": {Covered: 1}})
	_, ok := tree.Children("nosuchdir")
	assert.False(t, ok)
}

func TestDirRowsShapesEntries(t *testing.T) {
	tree := NewDirTree(map[string]counts{"a.cpp": {Covered: 1, Missed: 1}})
	rows, ok := DirRows(tree, "")
	require.True(t, ok)
	require.Len(t, rows, 1)
	assert.Equal(t, "a.cpp", rows[0].Name)
	assert.True(t, rows[0].IsFile)
	assert.Equal(t, 50.0, rows[0].Coverage)
}
