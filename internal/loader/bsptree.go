package loader

import (
	"github.com/quakeview/server/pkg/bsp"
	"github.com/quakeview/server/pkg/core"
	"github.com/quakeview/server/pkg/qdata"
)

const leafBit = 0x8000

// leafKey is the identity of a leaf in the compacted table.
type leafKey struct {
	Type int
	Snd  [4]uint8
}

// outsideLeaf is entry 0 of every leaf table.
var outsideLeaf = leafKey{Type: bsp.ContentsSolid}

type nodeKey struct {
	plane       int
	front, back int
}

// Tree is a compacted BSP tree. References r >= 0 are leaf table indexes
// and r < 0 is the node at ^r.
type Tree struct {
	Nodes []core.BSPNode
	Leafs []core.BSPLeaf
	Root  int
}

type compactor struct {
	nodes  []bsp.Node
	leafs  []bsp.Leaf
	planes []bsp.Plane

	leafIndex map[leafKey]int
	nodeIndex map[nodeKey]int
	// done maps an input node to its compacted reference, so shared
	// subtrees are walked once.
	done     map[int]int
	visiting map[int]bool
	tree     Tree
}

// CompactTree walks the node graph from root and rebuilds it with leaves
// deduplicated by (type, ambient sounds) and every node whose children
// compact to the same reference replaced by that reference. Identical
// subtrees share one node.
func CompactTree(nodes []bsp.Node, leafs []bsp.Leaf, planes []bsp.Plane, root int) (Tree, error) {
	c := &compactor{
		nodes:     nodes,
		leafs:     leafs,
		planes:    planes,
		leafIndex: map[leafKey]int{outsideLeaf: 0},
		nodeIndex: make(map[nodeKey]int),
		done:      make(map[int]int),
		visiting:  make(map[int]bool),
	}
	c.tree.Nodes = []core.BSPNode{}
	c.tree.Leafs = []core.BSPLeaf{{Type: outsideLeaf.Type}}

	var err error
	if root < 0 {
		c.tree.Root, err = c.leaf(^root)
	} else {
		c.tree.Root, err = c.node(root)
	}
	if err != nil {
		return Tree{}, err
	}
	return c.tree, nil
}

func (c *compactor) leaf(i int) (int, error) {
	if i < 0 || i >= len(c.leafs) {
		return 0, qdata.InvariantErrorf("leaf index %d out of range (%d leafs)", i, len(c.leafs))
	}
	l := c.leafs[i]
	key := leafKey{Type: l.Type, Snd: l.Ambients}
	if ref, ok := c.leafIndex[key]; ok {
		return ref, nil
	}
	ref := len(c.tree.Leafs)
	out := core.BSPLeaf{Type: l.Type}
	if key.Snd != ([4]uint8{}) {
		out.Sounds = []int{int(l.Ambients[0]), int(l.Ambients[1]), int(l.Ambients[2]), int(l.Ambients[3])}
	}
	c.tree.Leafs = append(c.tree.Leafs, out)
	c.leafIndex[key] = ref
	return ref, nil
}

func (c *compactor) child(ref int) (int, error) {
	if ref&leafBit != 0 {
		return c.leaf(^ref & 0xFFFF)
	}
	return c.node(ref)
}

func (c *compactor) node(i int) (int, error) {
	if i < 0 || i >= len(c.nodes) {
		return 0, qdata.InvariantErrorf("node index %d out of range (%d nodes)", i, len(c.nodes))
	}
	if ref, ok := c.done[i]; ok {
		return ref, nil
	}
	if c.visiting[i] {
		return 0, qdata.InvariantErrorf("node graph has a cycle through node %d", i)
	}
	c.visiting[i] = true
	defer delete(c.visiting, i)

	ref, err := c.compact(i, c.nodes[i])
	if err != nil {
		return 0, err
	}
	c.done[i] = ref
	return ref, nil
}

func (c *compactor) compact(i int, n bsp.Node) (int, error) {
	front, err := c.child(n.Front)
	if err != nil {
		return 0, err
	}
	back, err := c.child(n.Back)
	if err != nil {
		return 0, err
	}
	if front == back {
		return front, nil
	}

	key := nodeKey{plane: n.PlaneID, front: front, back: back}
	if pos, ok := c.nodeIndex[key]; ok {
		return ^pos, nil
	}
	if n.PlaneID < 0 || n.PlaneID >= len(c.planes) {
		return 0, qdata.InvariantErrorf("node %d references plane %d of %d", i, n.PlaneID, len(c.planes))
	}
	p := c.planes[n.PlaneID]
	pos := len(c.tree.Nodes)
	c.tree.Nodes = append(c.tree.Nodes, core.BSPNode{
		Plane: core.Plane{Normal: core.MapVertex(p.Normal), Dist: p.Dist},
		Front: front,
		Back:  back,
	})
	c.nodeIndex[key] = pos
	return ^pos, nil
}
