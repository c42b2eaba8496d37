package bvhio

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Herdi2/GPU-Raytracer/pkg/builder"
	"github.com/Herdi2/GPU-Raytracer/pkg/core"
	"github.com/Herdi2/GPU-Raytracer/pkg/wide"
)

func triangleGrid(n int) []core.Triangle {
	triangles := make([]core.Triangle, 0, n)
	for i := 0; i < n; i++ {
		x := float64(i)
		triangles = append(triangles, core.NewTriangle(
			core.NewVec3(x, 0, 0),
			core.NewVec3(x+0.5, 0, 0),
			core.NewVec3(x, 0.5, 0),
		))
	}
	return triangles
}

func TestRoundTrip_Binary(t *testing.T) {
	bvh, indices, _, err := builder.BuildSAH(triangleGrid(12), core.DefaultConfig(), nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, core.Hierarchy{Binary: bvh}, indices))

	got, gotIndices, err := Decode(&buf)
	require.NoError(t, err)
	require.NotNil(t, got.Binary)
	assert.Nil(t, got.Wide4)
	assert.Nil(t, got.Wide8)
	assert.Equal(t, indices, gotIndices)
	require.Len(t, got.Binary.Nodes, len(bvh.Nodes))
	for i, n := range bvh.Nodes {
		assert.Equal(t, n.Left, got.Binary.Nodes[i].Left)
		assert.Equal(t, n.Count, got.Binary.Nodes[i].Count)
		assert.InDelta(t, n.Box.Min.X, got.Binary.Nodes[i].Box.Min.X, 1e-4)
		assert.InDelta(t, n.Box.Max.Z, got.Binary.Nodes[i].Box.Max.Z, 1e-4)
	}
}

func TestRoundTrip_Wide4(t *testing.T) {
	bvh, indices, _, err := builder.BuildSAH(triangleGrid(20), core.DefaultConfig(), nil)
	require.NoError(t, err)
	wide4 := wide.ToBVH4(bvh)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, core.Hierarchy{Wide4: wide4}, indices))

	got, gotIndices, err := Decode(&buf)
	require.NoError(t, err)
	require.NotNil(t, got.Wide4)
	assert.Equal(t, indices, gotIndices)
	require.Len(t, got.Wide4.Nodes, len(wide4.Nodes))
	for i, n := range wide4.Nodes {
		assert.Equal(t, n.ChildIndex, got.Wide4.Nodes[i].ChildIndex)
		assert.Equal(t, n.ChildCount, got.Wide4.Nodes[i].ChildCount)
	}
}

func TestRoundTrip_Wide8(t *testing.T) {
	bvh, indices, _, err := builder.BuildSAH(triangleGrid(20), core.DefaultConfig(), nil)
	require.NoError(t, err)
	cwbvh, outIndices := wide.ToCWBVH(bvh, indices)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, core.Hierarchy{Wide8: cwbvh}, outIndices))

	got, gotIndices, err := Decode(&buf)
	require.NoError(t, err)
	require.NotNil(t, got.Wide8)
	assert.Equal(t, outIndices, gotIndices)
	require.Len(t, got.Wide8.Nodes, len(cwbvh.Nodes))
	for i, n := range cwbvh.Nodes {
		assert.Equal(t, n.Meta, got.Wide8.Nodes[i].Meta)
		assert.Equal(t, n.IMask, got.Wide8.Nodes[i].IMask)
		assert.Equal(t, n.BaseIndexChild, got.Wide8.Nodes[i].BaseIndexChild)
		assert.Equal(t, n.BaseIndexTriangle, got.Wide8.Nodes[i].BaseIndexTriangle)
		assert.Equal(t, n.QLo, got.Wide8.Nodes[i].QLo)
		assert.Equal(t, n.QHi, got.Wide8.Nodes[i].QHi)
	}
}

func TestDecode_RejectsBadMagic(t *testing.T) {
	_, _, err := Decode(bytes.NewReader([]byte("nope-not-a-bvh-blob")))
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestDecode_RejectsFutureVersion(t *testing.T) {
	bvh, indices, _, err := builder.BuildSAH(triangleGrid(4), core.DefaultConfig(), nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, core.Hierarchy{Binary: bvh}, indices))
	raw := buf.Bytes()
	raw[len(magic)] = 99 // corrupt the version byte

	_, _, err = Decode(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestEncode_RejectsEmptyHierarchy(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, core.Hierarchy{}, nil)
	assert.Error(t, err)
}

// TestCWBVHNodeByteSize_Is80Bytes checks the "80 bytes per CWBVH node"
// invariant against the packed layout this package actually writes, not
// Go's in-memory struct size (which differs because the in-memory P field
// is a float64 Vec3).
func TestCWBVHNodeByteSize_Is80Bytes(t *testing.T) {
	bvh, indices, _, err := builder.BuildSAH(triangleGrid(1), core.DefaultConfig(), nil)
	require.NoError(t, err)
	cwbvh, outIndices := wide.ToCWBVH(bvh, indices)
	require.Len(t, cwbvh.Nodes, 1)

	var buf bytes.Buffer
	require.NoError(t, encodeWide8(&buf, cwbvh))
	assert.Equal(t, CWBVHNodeByteSize, buf.Len())
	_ = outIndices
}
