package wide

import "github.com/Herdi2/GPU-Raytracer/pkg/core"

const maxWideSlots4 = 4

// ToBVH4 collapses a BVH2 into a 4-wide tree. Slot order within a node is
// unspecified; GPU traversal handles any order.
func ToBVH4(bvh *core.BVH2) *core.BVH4 {
	if len(bvh.Nodes) == 0 {
		return &core.BVH4{}
	}
	nodes := make([]core.BVH4Node, 0, len(bvh.Nodes))
	buildBVH4Node(bvh, 0, &nodes)
	return &core.BVH4{Nodes: nodes}
}

func buildBVH4Node(bvh *core.BVH2, rootIdx int32, nodes *[]core.BVH4Node) int32 {
	myIdx := int32(len(*nodes))
	*nodes = append(*nodes, core.BVH4Node{})

	n := bvh.Nodes[rootIdx]
	var candidates []candidate
	if n.IsLeaf() {
		candidates = []candidate{{rootIdx, n}}
	} else {
		candidates = expandCandidates(bvh, n, maxWideSlots4)
	}

	wideNode := core.BVH4Node{Box: n.Box}
	for slot, c := range candidates {
		wideNode.ChildBox[slot] = c.node.Box
		if c.node.IsLeaf() {
			wideNode.ChildIndex[slot] = c.node.Left
			wideNode.ChildCount[slot] = c.node.Count
		} else {
			wideNode.ChildIndex[slot] = buildBVH4Node(bvh, c.idx, nodes)
			wideNode.ChildCount[slot] = 0
		}
	}
	(*nodes)[myIdx] = wideNode
	return myIdx
}
