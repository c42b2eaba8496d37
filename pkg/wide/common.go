// Package wide implements the BVH4 and BVH8/CWBVH converters: both collapse
// a BVH2 by greedily inlining the largest child subtree into a parent's
// slot list until the slot budget (4 or 8) is reached or no internal child
// remains to inline, then lift leaves directly and recurse into whatever
// internal children remain.
package wide

import "github.com/Herdi2/GPU-Raytracer/pkg/core"

// candidate is a BVH2 subtree under consideration for a wide node's slot
// list: either already a leaf (terminal) or an internal node that can still
// be expanded into its two children.
type candidate struct {
	idx  int32
	node core.BVH2Node
}

// expandCandidates starts from a BVH2 node's two children and repeatedly
// inlines the largest-surface-area internal candidate into its own two
// children, until maxSlots is reached or every remaining candidate is a
// leaf. Inlining is worthwhile whenever SA(child)*C_trav exceeds the
// collapsed node's own traversal cost; greedily inlining the biggest
// subtree first maximizes the depth reduction per slot spent, which is
// what that inequality favors in practice.
func expandCandidates(bvh *core.BVH2, root core.BVH2Node, maxSlots int) []candidate {
	candidates := []candidate{
		{root.Left, bvh.Nodes[root.Left]},
		{root.Left + 1, bvh.Nodes[root.Left+1]},
	}
	for len(candidates) < maxSlots {
		bestI := -1
		bestSA := -1.0
		for i, c := range candidates {
			if c.node.IsLeaf() {
				continue
			}
			sa := c.node.Box.SurfaceArea()
			if sa > bestSA {
				bestSA = sa
				bestI = i
			}
		}
		if bestI < 0 {
			break
		}
		expand := candidates[bestI]
		candidates = append(candidates[:bestI], candidates[bestI+1:]...)
		candidates = append(candidates,
			candidate{expand.node.Left, bvh.Nodes[expand.node.Left]},
			candidate{expand.node.Left + 1, bvh.Nodes[expand.node.Left+1]},
		)
	}
	return candidates
}
