package builder

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Herdi2/GPU-Raytracer/pkg/core"
)

func vertexTriangle(ox, oy, oz float64) core.Triangle {
	return core.NewTriangle(
		core.NewVec3(ox, oy, oz),
		core.NewVec3(ox+1, oy, oz),
		core.NewVec3(ox, oy+1, oz),
	)
}

// TestBuildSAH_SingleTriangle checks that a single-triangle input builds a
// single leaf node spanning that triangle's own bounding box.
func TestBuildSAH_SingleTriangle(t *testing.T) {
	tri := vertexTriangle(0, 0, 0)
	bvh, indices, stats, err := BuildSAH([]core.Triangle{tri}, core.DefaultConfig(), nil)
	require.NoError(t, err)
	require.Len(t, bvh.Nodes, 1)
	assert.True(t, bvh.Nodes[0].IsLeaf())
	assert.Equal(t, uint32(1), bvh.Nodes[0].Count)
	assert.Equal(t, tri.BoundingBox(), bvh.Nodes[0].Box)
	assert.Equal(t, []uint32{0}, indices)
	assert.Equal(t, 1, stats.NodeCount)
	assert.Equal(t, 1, stats.LeafCount)
}

// TestBuildSAH_TwoSeparatedTriangles checks that two well-separated
// triangles split into a root with two leaf children, one per triangle.
func TestBuildSAH_TwoSeparatedTriangles(t *testing.T) {
	t1 := vertexTriangle(0, 0, 0)
	t2 := vertexTriangle(10, 0, 0)
	bvh, indices, _, err := BuildSAH([]core.Triangle{t1, t2}, core.DefaultConfig(), nil)
	require.NoError(t, err)
	require.Len(t, bvh.Nodes, 3)

	root := bvh.Nodes[0]
	require.False(t, root.IsLeaf())
	assert.Equal(t, int32(1), root.Left)
	assert.Equal(t, core.NewVec3(0, 0, 0), root.Box.Min)
	assert.Equal(t, core.NewVec3(11, 1, 0), root.Box.Max)

	left, right := bvh.Nodes[1], bvh.Nodes[2]
	assert.True(t, left.IsLeaf())
	assert.True(t, right.IsLeaf())
	assert.ElementsMatch(t, []uint32{0, 1}, indices)
}

// TestBuildSAH_SiblingAdjacency checks the sibling-adjacency invariant:
// every internal node's right child is left+1.
func TestBuildSAH_SiblingAdjacency(t *testing.T) {
	triangles := randomTriangleSoup(500, 7)
	bvh, _, _, err := BuildSAH(triangles, core.DefaultConfig(), nil)
	require.NoError(t, err)
	for _, n := range bvh.Nodes {
		if !n.IsLeaf() {
			// nothing to assert on the right index itself (implicit), but
			// the left index must address a node one before its sibling.
			require.Less(t, int(n.Left)+1, len(bvh.Nodes))
		}
	}
}

// TestBuildSAH_PrimitiveConservation checks the primitive-conservation
// invariant for the plain SAH builder: the multiset of triangle ids across
// all leaves equals the input set exactly once each.
func TestBuildSAH_PrimitiveConservation(t *testing.T) {
	triangles := randomTriangleSoup(1000, 11)
	bvh, indices, _, err := BuildSAH(triangles, core.DefaultConfig(), nil)
	require.NoError(t, err)

	seen := make(map[uint32]int)
	for _, n := range bvh.Nodes {
		if n.IsLeaf() {
			for i := 0; i < int(n.Count); i++ {
				seen[indices[int(n.Left)+i]]++
			}
		}
	}
	assert.Len(t, seen, len(triangles))
	for id, count := range seen {
		assert.Equalf(t, 1, count, "triangle %d referenced %d times, want exactly 1", id, count)
	}
}

// TestBuildSAH_AABBTightness checks the AABB-tightness invariant: every
// node's box is exactly the union of its children's (or leaf triangles').
func TestBuildSAH_AABBTightness(t *testing.T) {
	triangles := randomTriangleSoup(300, 13)
	bvh, indices, _, err := BuildSAH(triangles, core.DefaultConfig(), nil)
	require.NoError(t, err)

	var check func(idx int32)
	check = func(idx int32) {
		n := bvh.Nodes[idx]
		if n.IsLeaf() {
			for i := 0; i < int(n.Count); i++ {
				tri := triangles[indices[int(n.Left)+i]]
				box := tri.BoundingBox()
				assert.True(t, n.Box.Contains(box.Min))
				assert.True(t, n.Box.Contains(box.Max))
			}
			return
		}
		left := bvh.Nodes[n.Left]
		right := bvh.Nodes[n.Left+1]
		union := left.Box.Union(right.Box)
		assert.InDelta(t, union.SurfaceArea(), n.Box.SurfaceArea(), 1e-9)
		check(n.Left)
		check(n.Left + 1)
	}
	check(0)
}

// TestBuildSAH_Determinism checks the determinism invariant: the same
// (triangles, config) must produce byte-identical output (the SAH builder
// has no randomness, so any seed).
func TestBuildSAH_Determinism(t *testing.T) {
	triangles := randomTriangleSoup(200, 42)
	cfg := core.DefaultConfig()
	bvh1, idx1, _, err1 := BuildSAH(triangles, cfg, nil)
	bvh2, idx2, _, err2 := BuildSAH(triangles, cfg, nil)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, bvh1.Nodes, bvh2.Nodes)
	assert.Equal(t, idx1, idx2)
}

func TestBuildSAH_EmptyInput(t *testing.T) {
	_, _, _, err := BuildSAH(nil, core.DefaultConfig(), nil)
	assert.ErrorIs(t, err, core.ErrEmptyInput)
}

// TestBuildSBVH_LongThinTriangleSpatialSplit checks that a long thin
// triangle straddling the split plane gets clipped and duplicated across
// both children rather than forced entirely to one side.
func TestBuildSBVH_LongThinTriangleSpatialSplit(t *testing.T) {
	tri := core.NewTriangle(
		core.NewVec3(-10, 0, 0),
		core.NewVec3(10, 0, 0),
		core.NewVec3(10, 1, 0),
	)
	cfg := core.DefaultConfig()
	cfg.SpatialSplitBins = 32
	bvh, indices, stats, err := BuildSBVH([]core.Triangle{tri}, cfg, nil)
	require.NoError(t, err)

	total := 0
	for _, n := range bvh.Nodes {
		if n.IsLeaf() {
			total += int(n.Count)
		}
	}
	assert.Equal(t, 2, total, "the straddling triangle must be duplicated across both children")
	assert.Equal(t, 1, stats.SpatialSplits)
	for _, id := range indices {
		assert.Equal(t, uint32(0), id)
	}
}

// TestBuildSBVH_PrimitiveConservation checks the primitive-conservation
// invariant for SBVH: the *set* equals the input set, every id appears at
// least once, and duplication stays within the 4x budget.
func TestBuildSBVH_PrimitiveConservation(t *testing.T) {
	triangles := randomTriangleSoup(400, 5)
	cfg := core.DefaultConfig()
	cfg.BVHType = core.SBVH
	bvh, indices, _, err := BuildSBVH(triangles, cfg, nil)
	require.NoError(t, err)

	counts := make(map[uint32]int)
	for _, n := range bvh.Nodes {
		if n.IsLeaf() {
			for i := 0; i < int(n.Count); i++ {
				counts[indices[int(n.Left)+i]]++
			}
		}
	}
	assert.Len(t, counts, len(triangles))
	for id, count := range counts {
		assert.GreaterOrEqualf(t, count, 1, "triangle %d missing", id)
		assert.LessOrEqualf(t, count, 4, "triangle %d duplicated %d times, over the 4x budget", id, count)
	}
}

func randomTriangleSoup(n int, seed int64) []core.Triangle {
	r := rand.New(rand.NewSource(seed))
	triangles := make([]core.Triangle, n)
	for i := range triangles {
		ox, oy, oz := r.Float64()*100, r.Float64()*100, r.Float64()*100
		triangles[i] = core.NewTriangle(
			core.NewVec3(ox, oy, oz),
			core.NewVec3(ox+r.Float64(), oy, oz),
			core.NewVec3(ox, oy+r.Float64(), oz),
		)
	}
	return triangles
}
