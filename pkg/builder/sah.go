package builder

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Herdi2/GPU-Raytracer/pkg/core"
	"github.com/Herdi2/GPU-Raytracer/pkg/partition"
)

// sahBuilder holds the scratch state of one SAH build: a dense side bitset
// keyed by triangle ID, the output node pool, and the accumulating
// triangle-index permutation.
type sahBuilder struct {
	cfg             core.Config
	pool            *nodePool
	side            []bool
	triangles       []core.Triangle
	triangleIndices []uint32
	diag            diagnostics
}

// BuildSAH runs recursive top-down construction over three centroid-sorted
// ref arrays, stably partitioned into per-side arrays at each split rather
// than re-sorted.
func BuildSAH(triangles []core.Triangle, cfg core.Config, logger *zap.Logger) (*core.BVH2, []uint32, core.BuildStats, error) {
	logger = loggerOrNop(logger)
	n := len(triangles)
	if n == 0 {
		return nil, nil, core.BuildStats{}, errors.WithStack(core.ErrEmptyInput)
	}

	refs := make([]core.PrimitiveRef, n)
	rootBox := core.EmptyAABB()
	for i, t := range triangles {
		box := t.BoundingBox()
		refs[i] = core.PrimitiveRef{TriangleID: uint32(i), Box: box}
		rootBox = rootBox.Union(box)
	}

	var sortedByAxis [3][]core.PrimitiveRef
	for axis := 0; axis < 3; axis++ {
		sortedByAxis[axis] = partition.SortedByCentroid(refs, axis)
	}

	b := &sahBuilder{
		cfg:             cfg,
		pool:            newNodePool(2*n - 1),
		side:            make([]bool, n),
		triangles:       triangles,
		triangleIndices: make([]uint32, 0, n),
	}
	b.build(0, sortedByAxis, rootBox)

	nodes := b.pool.finish()
	stats := computeStats(nodes, b.diag)
	logger.Debug("sah build complete", zap.Int("node_count", stats.NodeCount), zap.Int("leaf_count", stats.LeafCount))

	return &core.BVH2{Nodes: nodes}, b.triangleIndices, stats, nil
}

// chooseSAHSplit evaluates the best object split across all three axes,
// each already sorted by centroid, without re-sorting (unlike
// partition.Choose and partition.ChooseObjectSplit, which sort each node's
// refs afresh).
func chooseSAHSplit(sortedByAxis [3][]core.PrimitiveRef, box core.AABB, cfg core.Config) (axis, k int, cost float64, leftBox, rightBox core.AABB, ok bool) {
	bestAxis := -1
	var bestCost float64
	var bestK int
	var bestLeft, bestRight core.AABB

	for a := 0; a < 3; a++ {
		kk, c, lb, rb := partition.BestObjectSplitAlongAxis(sortedByAxis[a], box, cfg)
		if kk < 0 {
			continue
		}
		if bestAxis < 0 || c < bestCost {
			bestAxis, bestK, bestCost, bestLeft, bestRight = a, kk, c, lb, rb
		}
	}
	if bestAxis < 0 {
		return 0, 0, 0, core.AABB{}, core.AABB{}, false
	}
	return bestAxis, bestK, bestCost, bestLeft, bestRight, true
}

func (b *sahBuilder) build(idx int32, sortedByAxis [3][]core.PrimitiveRef, box core.AABB) {
	n := len(sortedByAxis[0])
	axis, k, cost, leftBox, rightBox, ok := chooseSAHSplit(sortedByAxis, box, b.cfg)
	leafCost := partition.LeafCost(n, b.cfg.SAHCostLeaf)

	if !ok || (cost >= leafCost && n <= b.cfg.LeafMaxPrimitives) {
		b.emitLeaf(idx, sortedByAxis[0], box)
		return
	}
	b.diag.objectSplits++

	// Mark the winning axis's split as a side bitset, then stably partition
	// the other two axis arrays against it — no re-sort.
	for _, ref := range sortedByAxis[axis][:k] {
		b.side[ref.TriangleID] = true
	}
	for _, ref := range sortedByAxis[axis][k:] {
		b.side[ref.TriangleID] = false
	}

	var leftByAxis, rightByAxis [3][]core.PrimitiveRef
	for a := 0; a < 3; a++ {
		leftByAxis[a], rightByAxis[a] = partitionBySide(sortedByAxis[a], b.side)
	}

	leftIdx, rightIdx := b.pool.allocPair()
	b.pool.nodes[idx] = core.BVH2Node{Box: box, Left: leftIdx, Count: 0}
	b.build(leftIdx, leftByAxis, leftBox)
	b.build(rightIdx, rightByAxis, rightBox)
}

func (b *sahBuilder) emitLeaf(idx int32, refs []core.PrimitiveRef, box core.AABB) {
	start := len(b.triangleIndices)
	for _, ref := range refs {
		b.triangleIndices = append(b.triangleIndices, ref.TriangleID)
	}
	b.diag.degenerate = append(b.diag.degenerate, collectDegenerate(b.triangles, b.triangleIndices[start:])...)
	b.pool.nodes[idx] = core.BVH2Node{Box: box, Left: int32(start), Count: uint32(len(refs))}
}

// partitionBySide stably splits items into the two sides marked in side,
// preserving each side's existing centroid order: a two-pass stable
// partition over each axis array, never a re-sort.
func partitionBySide(items []core.PrimitiveRef, side []bool) (left, right []core.PrimitiveRef) {
	left = make([]core.PrimitiveRef, 0, len(items))
	right = make([]core.PrimitiveRef, 0, len(items))
	for _, it := range items {
		if side[it.TriangleID] {
			left = append(left, it)
		} else {
			right = append(right, it)
		}
	}
	return left, right
}
