// Package builder implements the SAH and SBVH builders, sharing a common
// recursive skeleton and sibling-adjacent node-pool allocation.
package builder

import (
	"go.uber.org/zap"

	"github.com/Herdi2/GPU-Raytracer/pkg/core"
)

// nodePool allocates BVH2Node slots in sibling-adjacent pairs: every internal
// node's right child index is always left+1 (invariant 5). Index 0 is always
// the root and is reserved by newNodePool; every subsequent internal split
// consumes the next (odd, even) pair: (1,2), (3,4), ...
type nodePool struct {
	nodes    []core.BVH2Node
	nextPair int32
}

func newNodePool(capacity int) *nodePool {
	if capacity < 1 {
		capacity = 1
	}
	return &nodePool{nodes: make([]core.BVH2Node, capacity), nextPair: 1}
}

// allocPair returns two adjacent indices for a new internal node's children.
func (p *nodePool) allocPair() (left, right int32) {
	left, right = p.nextPair, p.nextPair+1
	p.nextPair += 2
	if int(p.nextPair) > len(p.nodes) {
		grown := make([]core.BVH2Node, p.nextPair*2)
		copy(grown, p.nodes)
		p.nodes = grown
	}
	return left, right
}

// finish returns the node slice truncated to the slots actually used.
func (p *nodePool) finish() []core.BVH2Node {
	return p.nodes[:p.nextPair]
}

// diagnostics accumulates the BuildStats fields gathered during recursion:
// the object/spatial split-ratio counters and the degenerate triangles.
// computeStats adds the node/leaf counts from the finished node array.
type diagnostics struct {
	objectSplits  int
	spatialSplits int
	degenerate    []core.DegenerateTriangleWarning
}

func computeStats(nodes []core.BVH2Node, d diagnostics) core.BuildStats {
	leafCount := 0
	childSum := 0
	internalCount := 0
	for _, n := range nodes {
		if n.IsLeaf() {
			leafCount++
		} else {
			internalCount++
			childSum += 2
		}
	}
	avgBranching := 0.0
	if internalCount > 0 {
		avgBranching = float64(childSum) / float64(internalCount)
	}
	return core.BuildStats{
		NodeCount:           len(nodes),
		LeafCount:           leafCount,
		AvgBranchingFactor:  avgBranching,
		ObjectSplits:        d.objectSplits,
		SpatialSplits:       d.spatialSplits,
		DegenerateTriangles: d.degenerate,
	}
}

func loggerOrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func collectDegenerate(triangles []core.Triangle, ids []uint32) []core.DegenerateTriangleWarning {
	var out []core.DegenerateTriangleWarning
	for _, id := range ids {
		if triangles[id].IsDegenerate() {
			out = append(out, core.DegenerateTriangleWarning{TriangleID: id})
		}
	}
	return out
}
