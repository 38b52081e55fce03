package loader

import (
	"testing"

	"github.com/quakeview/server/pkg/bsp"
	"github.com/quakeview/server/pkg/qdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leafRef(i int) int { return ^i & 0xFFFF }

func planes(n int) []bsp.Plane {
	out := make([]bsp.Plane, n)
	for i := range out {
		out[i] = bsp.Plane{Normal: qdata.Vec3{1, 0, 0}, Dist: float32(i)}
	}
	return out
}

// checkCompacted asserts the properties every compacted tree has.
func checkCompacted(t *testing.T, tree Tree) {
	t.Helper()
	type key struct {
		typ    int
		sounds string
	}
	seen := map[key]bool{}
	for _, l := range tree.Leafs {
		k := key{l.Type, ""}
		for _, s := range l.Sounds {
			k.sounds += string(rune('a' + s))
		}
		assert.False(t, seen[k], "duplicate leaf %+v", l)
		seen[k] = true
	}
	for i, n := range tree.Nodes {
		assert.NotEqual(t, n.Front, n.Back, "node %d has equal children", i)
		for _, ref := range []int{n.Front, n.Back} {
			if ref < 0 {
				assert.Less(t, ^ref, i, "node %d child must be emitted first", i)
			} else {
				assert.Less(t, ref, len(tree.Leafs))
			}
		}
	}
}

func TestCompactTree(t *testing.T) {
	leafs := []bsp.Leaf{
		{Type: bsp.ContentsSolid},
		{Type: bsp.ContentsEmpty},
		{Type: bsp.ContentsWater, Ambients: [4]uint8{40, 0, 0, 0}},
		{Type: bsp.ContentsEmpty},
		{Type: bsp.ContentsWater, Ambients: [4]uint8{40, 0, 0, 0}},
	}
	nodes := []bsp.Node{
		{PlaneID: 0, Front: 1, Back: 2},
		{PlaneID: 1, Front: leafRef(1), Back: leafRef(2)},
		{PlaneID: 1, Front: leafRef(3), Back: leafRef(4)}, // same as node 1
		{PlaneID: 2, Front: leafRef(0), Back: leafRef(0)},
	}

	tree, err := CompactTree(nodes, leafs, planes(3), 0)
	require.NoError(t, err)
	checkCompacted(t, tree)

	require.Len(t, tree.Leafs, 3)
	assert.Equal(t, []int{40, 0, 0, 0}, tree.Leafs[2].Sounds)
	assert.Nil(t, tree.Leafs[1].Sounds)

	// node 0 has identical subtrees and collapses into the shared node 1
	require.Len(t, tree.Nodes, 1)
	assert.Equal(t, -1, tree.Root)
	assert.Equal(t, 1, tree.Nodes[0].Front)
	assert.Equal(t, 2, tree.Nodes[0].Back)
}

func TestCompactTree_LeafRoot(t *testing.T) {
	tree, err := CompactTree(nil, []bsp.Leaf{{Type: bsp.ContentsSolid}, {Type: bsp.ContentsSky}}, nil, ^1)
	require.NoError(t, err)
	assert.Equal(t, 1, tree.Root)
	assert.Empty(t, tree.Nodes)
}

func TestCompactTree_Chain(t *testing.T) {
	// a chain where every level splits off a distinct leaf
	var nodes []bsp.Node
	var leafs []bsp.Leaf
	for i := 0; i < 8; i++ {
		leafs = append(leafs, bsp.Leaf{Type: -10 - i})
	}
	for i := 0; i < 7; i++ {
		back := i + 1
		if i == 6 {
			back = leafRef(7)
		}
		nodes = append(nodes, bsp.Node{PlaneID: i, Front: leafRef(i), Back: back})
	}

	tree, err := CompactTree(nodes, leafs, planes(7), 0)
	require.NoError(t, err)
	checkCompacted(t, tree)
	assert.Len(t, tree.Nodes, 7)
	assert.Len(t, tree.Leafs, 9)
	assert.Equal(t, ^6, tree.Root)
}

func TestCompactTree_SharedChildren(t *testing.T) {
	// node i splits into nodes i+1 and i+2, so every node is reachable
	// along exponentially many paths
	const n = 60
	ref := func(j int) int {
		if j < n {
			return j
		}
		return leafRef(j - n + 1)
	}
	leafs := []bsp.Leaf{{Type: bsp.ContentsSolid}, {Type: bsp.ContentsEmpty}, {Type: bsp.ContentsWater}}
	nodes := make([]bsp.Node, n)
	for i := range nodes {
		nodes[i] = bsp.Node{PlaneID: i, Front: ref(i + 1), Back: ref(i + 2)}
	}

	tree, err := CompactTree(nodes, leafs, planes(n), 0)
	require.NoError(t, err)
	checkCompacted(t, tree)
	assert.Len(t, tree.Nodes, n)
	assert.Equal(t, ^(n - 1), tree.Root)

	// a ladder whose children all collapse ends at one node
	ladder := make([]bsp.Node, n)
	for i := range ladder {
		ladder[i] = bsp.Node{PlaneID: i, Front: i + 1, Back: i + 1}
	}
	ladder[n-1] = bsp.Node{PlaneID: n - 1, Front: leafRef(1), Back: leafRef(2)}
	tree, err = CompactTree(ladder, leafs, planes(n), 0)
	require.NoError(t, err)
	assert.Len(t, tree.Nodes, 1)
	assert.Equal(t, -1, tree.Root)
}

func TestCompactTree_Errors(t *testing.T) {
	leafs := []bsp.Leaf{{Type: bsp.ContentsSolid}, {Type: bsp.ContentsEmpty}}
	tests := []struct {
		name  string
		nodes []bsp.Node
		root  int
	}{
		{"leaf out of range", []bsp.Node{{Front: leafRef(5), Back: leafRef(0)}}, 0},
		{"node out of range", []bsp.Node{{Front: 3, Back: leafRef(0)}}, 0},
		{"root out of range", []bsp.Node{{Front: leafRef(1), Back: leafRef(0)}}, 4},
		{"cycle", []bsp.Node{{Front: 1, Back: leafRef(0)}, {Front: 0, Back: leafRef(1)}}, 0},
		{"plane out of range", []bsp.Node{{PlaneID: 9, Front: leafRef(1), Back: leafRef(0)}}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompactTree(tt.nodes, leafs, planes(1), tt.root)
			assert.ErrorIs(t, err, qdata.ErrInvariant)
		})
	}
}
