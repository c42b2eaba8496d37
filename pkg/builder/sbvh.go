package builder

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Herdi2/GPU-Raytracer/pkg/core"
	"github.com/Herdi2/GPU-Raytracer/pkg/partition"
)

// sbvhRefBudgetFactor over-allocates node and ref scratch by ~4x the
// triangle count, since spatial splits can duplicate refs.
const sbvhRefBudgetFactor = 4

// sbvhBuilder holds the scratch state of one SBVH build. Unlike the SAH
// builder it does not maintain persistent per-axis sorted arrays: a Spatial
// outcome can duplicate refs across the split, so each node re-derives its
// own sorted arrays from its current ref set via partition.Choose.
type sbvhBuilder struct {
	cfg             core.Config
	pool            *nodePool
	triangles       []core.Triangle
	rootSA          float64
	triangleIndices []uint32
	diag            diagnostics
}

// BuildSBVH runs the SAH builder's recursive skeleton, but over
// PrimitiveRefs that may carry clipped sub-boxes, with the spatial split and
// unsplit test from pkg/partition available at every node.
func BuildSBVH(triangles []core.Triangle, cfg core.Config, logger *zap.Logger) (*core.BVH2, []uint32, core.BuildStats, error) {
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
	rootSA := rootBox.SurfaceArea()

	b := &sbvhBuilder{
		cfg:             cfg,
		pool:            newNodePool(2*sbvhRefBudgetFactor*n - 1),
		triangles:       triangles,
		rootSA:          rootSA,
		triangleIndices: make([]uint32, 0, sbvhRefBudgetFactor*n),
	}
	b.build(0, refs, rootBox)

	nodes := b.pool.finish()
	stats := computeStats(nodes, b.diag)
	logger.Debug("sbvh build complete",
		zap.Int("node_count", stats.NodeCount),
		zap.Int("object_splits", stats.ObjectSplits),
		zap.Int("spatial_splits", stats.SpatialSplits))

	return &core.BVH2{Nodes: nodes}, b.triangleIndices, stats, nil
}

func (b *sbvhBuilder) build(idx int32, refs []core.PrimitiveRef, box core.AABB) {
	out := partition.Choose(refs, box, b.cfg, b.rootSA, b.triangles, true)

	if out.IsLeaf {
		b.emitLeaf(idx, out.Refs, box)
		return
	}
	if out.Kind == partition.Spatial {
		b.diag.spatialSplits++
	} else {
		b.diag.objectSplits++
	}

	leftIdx, rightIdx := b.pool.allocPair()
	b.pool.nodes[idx] = core.BVH2Node{Box: box, Left: leftIdx, Count: 0}
	b.build(leftIdx, out.Left, out.LeftBox)
	b.build(rightIdx, out.Right, out.RightBox)
}

func (b *sbvhBuilder) emitLeaf(idx int32, refs []core.PrimitiveRef, box core.AABB) {
	start := len(b.triangleIndices)
	for _, ref := range refs {
		b.triangleIndices = append(b.triangleIndices, ref.TriangleID)
	}
	b.diag.degenerate = append(b.diag.degenerate, collectDegenerate(b.triangles, b.triangleIndices[start:])...)
	b.pool.nodes[idx] = core.BVH2Node{Box: box, Left: int32(start), Count: uint32(len(refs))}
}
