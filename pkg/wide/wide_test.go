package wide

import (
	"math/bits"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Herdi2/GPU-Raytracer/pkg/builder"
	"github.com/Herdi2/GPU-Raytracer/pkg/core"
)

func cubeTriangle(cx, cy, cz float64) core.Triangle {
	return core.NewTriangle(
		core.NewVec3(cx, cy, cz),
		core.NewVec3(cx+0.1, cy, cz),
		core.NewVec3(cx, cy+0.1, cz),
	)
}

func gridOf8() []core.Triangle {
	var triangles []core.Triangle
	for dx := 0.0; dx <= 10; dx += 10 {
		for dy := 0.0; dy <= 10; dy += 10 {
			for dz := 0.0; dz <= 10; dz += 10 {
				triangles = append(triangles, cubeTriangle(dx, dy, dz))
			}
		}
	}
	return triangles
}

func TestToBVH4_TwoSeparatedTrianglesBothSlotsFilled(t *testing.T) {
	t1 := cubeTriangle(0, 0, 0)
	t2 := cubeTriangle(10, 0, 0)
	bvh, indices, _, err := builder.BuildSAH([]core.Triangle{t1, t2}, core.DefaultConfig(), nil)
	require.NoError(t, err)

	wide4 := ToBVH4(bvh)
	require.Len(t, wide4.Nodes, 1)
	root := wide4.Nodes[0]
	assert.Equal(t, 2, root.ChildCountFilled())

	seen := make(map[uint32]bool)
	for slot := 0; slot < 4; slot++ {
		if root.ChildCount[slot] > 0 {
			for i := 0; i < int(root.ChildCount[slot]); i++ {
				seen[indices[int(root.ChildIndex[slot])+i]] = true
			}
		}
	}
	assert.Equal(t, map[uint32]bool{0: true, 1: true}, seen)
}

// TestToCWBVH_GridOf8CollapsesAndAccountsForEveryTriangle checks that a
// perfectly balanced 2x2x2 grid of triangles collapses into a CWBVH whose
// leaf slots together account for every input triangle exactly once.
func TestToCWBVH_GridOf8CollapsesAndAccountsForEveryTriangle(t *testing.T) {
	triangles := gridOf8()
	cfg := core.DefaultConfig()
	bvh, indices, _, err := builder.BuildSAH(triangles, cfg, nil)
	require.NoError(t, err)

	cwbvh, outIndices := ToCWBVH(bvh, indices)
	require.GreaterOrEqual(t, len(cwbvh.Nodes), 1)

	root := cwbvh.Nodes[0]
	filled := 0
	for slot := 0; slot < 8; slot++ {
		if root.Meta[slot] != 0 {
			filled++
		}
	}
	// A perfectly balanced 2x2x2 grid collapses to one root with all 8
	// slots filled directly (every leaf is a direct child of the root).
	if len(cwbvh.Nodes) == 1 {
		assert.Equal(t, 8, filled)
		for slot := 0; slot < 8; slot++ {
			assert.NotZero(t, root.Meta[slot])
		}
	}

	totalTriangles := 0
	for _, n := range cwbvh.Nodes {
		for slot := 0; slot < 8; slot++ {
			if n.Meta[slot] != 0 && !n.ChildIsInternal(slot) {
				totalTriangles += bits.OnesCount8((n.Meta[slot] >> 5) & 0x07)
			}
		}
	}
	_ = outIndices
	assert.Equal(t, 8, totalTriangles)
}

// TestDequantizeChildBox_Conservativeness checks the CWBVH conservativeness
// invariant: dequantizing must produce an AABB containing the
// exact child AABB for every filled slot. Using the 2x2x2 grid, the root
// collapses to one node whose 8 slots are exactly the 8 input triangles, so
// each slot's true box is independently known (the triangle's own AABB) and
// can be checked against what DequantizeChildBox reconstructs.
func TestDequantizeChildBox_Conservativeness(t *testing.T) {
	triangles := gridOf8()
	bvh, indices, _, err := builder.BuildSAH(triangles, core.DefaultConfig(), nil)
	require.NoError(t, err)

	cwbvh, outIndices := ToCWBVH(bvh, indices)
	require.Len(t, cwbvh.Nodes, 1)
	root := cwbvh.Nodes[0]

	for slot := 0; slot < 8; slot++ {
		require.NotZero(t, root.Meta[slot])
		require.False(t, root.ChildIsInternal(slot))
		offset := root.Meta[slot] & 0x1F
		triID := outIndices[int(root.BaseIndexTriangle)+int(offset)]
		exact := triangles[triID].BoundingBox()
		dequantized := DequantizeChildBox(root, slot)
		assert.LessOrEqual(t, dequantized.Min.X, exact.Min.X+1e-6)
		assert.LessOrEqual(t, dequantized.Min.Y, exact.Min.Y+1e-6)
		assert.LessOrEqual(t, dequantized.Min.Z, exact.Min.Z+1e-6)
		assert.GreaterOrEqual(t, dequantized.Max.X, exact.Max.X-1e-6)
		assert.GreaterOrEqual(t, dequantized.Max.Y, exact.Max.Y-1e-6)
		assert.GreaterOrEqual(t, dequantized.Max.Z, exact.Max.Z-1e-6)
	}
}

func TestToBVH4_EmptySlotsEncoding(t *testing.T) {
	tri := cubeTriangle(0, 0, 0)
	bvh, _, _, err := builder.BuildSAH([]core.Triangle{tri}, core.DefaultConfig(), nil)
	require.NoError(t, err)

	wide4 := ToBVH4(bvh)
	root := wide4.Nodes[0]
	assert.Equal(t, 1, root.ChildCountFilled())
}
