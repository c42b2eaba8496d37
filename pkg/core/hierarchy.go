package core

// PrimitiveRef is a reference to (a possibly clipped sub-box of) a triangle,
// as consumed and produced by the partition kernel. For the SAH builder the
// box is always the triangle's own AABB; for SBVH it may be a tighter box
// produced by a spatial split, and multiple refs may share a TriangleID.
type PrimitiveRef struct {
	TriangleID uint32
	Box        AABB
}

// Centroid is the centroid of the ref's box, used to sort/bin along an axis.
func (p PrimitiveRef) Centroid() Vec3 {
	return p.Box.Center()
}

// BVH2Node is one node of the binary tree. Count == 0 marks an internal
// node, whose right child is always Left+1 (sibling adjacency); otherwise
// it is a leaf and [Left, Left+Count) indexes TriangleIndices.
type BVH2Node struct {
	Box   AABB
	Left  int32
	Count uint32
}

// IsLeaf reports whether this node is a leaf.
func (n BVH2Node) IsLeaf() bool { return n.Count > 0 }

// BVH2 is the binary hierarchy produced by the SAH or SBVH builder, the
// optional input to the optimizer, and the input to the wide converters.
type BVH2 struct {
	Nodes []BVH2Node
}

// BVH4Node is one node of the 4-wide collapsed tree. Each slot independently
// encodes an empty slot (Count=0, Index=0), a leaf (Count>0, Index/Count
// index TriangleIndices), or an internal child (Count=0, Index is a node
// index into BVH4.Nodes). Slot order is unspecified — GPU traversal handles
// any order.
type BVH4Node struct {
	Box        AABB
	ChildBox   [4]AABB
	ChildIndex [4]int32
	ChildCount [4]uint32
}

// ChildCountFilled reports how many of the 4 slots are occupied.
func (n BVH4Node) ChildCountFilled() int {
	count := 0
	for i := 0; i < 4; i++ {
		if n.ChildCount[i] > 0 || n.ChildIndex[i] != 0 {
			count++
		}
	}
	return count
}

// BVH4 is the 4-wide hierarchy produced by the wide converter.
type BVH4 struct {
	Nodes []BVH4Node
}

// CWBVHNode is the 8-way compressed-wide node: quantized per-child AABBs
// relative to a base point and per-axis power-of-two scale. Its packed form
// (P as float32, see bvhio.CWBVHNodeByteSize) is 80 bytes; in memory P is a
// float64 Vec3, so the Go struct is larger. Children
// are stored in octant traversal order (assigned by the converter, not by
// slot index in input order).
type CWBVHNode struct {
	P                 Vec3    // base point (child AABB origin for dequantization)
	E                 [3]byte // per-axis exponent, stored as (exponent+127)
	IMask             byte    // bit i set => child i is internal
	BaseIndexChild    uint32
	BaseIndexTriangle uint32
	Meta              [8]byte
	QLo, QHi          [3][8]byte // quantized child bounds per axis
}

// ChildIsInternal reports whether slot i (0..7) holds an internal child.
func (n CWBVHNode) ChildIsInternal(slot int) bool {
	return n.IMask&(1<<uint(slot)) != 0
}

// CWBVH is the output of the 8-wide converter.
type CWBVH struct {
	Nodes []CWBVHNode
}

// Hierarchy is the tagged union the core exposes as its output: exactly one
// of Binary, Wide4, Wide8 is non-nil.
type Hierarchy struct {
	Binary *BVH2
	Wide4  *BVH4
	Wide8  *CWBVH
}

// TriangleCount returns the length of the global triangle-index permutation
// the leaves of this hierarchy index into, or -1 if indices is nil.
func TriangleCount(indices []uint32) int {
	if indices == nil {
		return -1
	}
	return len(indices)
}

// BuildStats carries build diagnostics: degenerate triangles are flagged
// here rather than rejected, plus node/leaf/branching reporting in the style
// of a builder's own print_node_info summary. NodeCount, LeafCount and
// AvgBranchingFactor describe the BVH2 the builder produced; they are not
// recomputed for a 4- or 8-wide output.
type BuildStats struct {
	NodeCount          int
	LeafCount          int
	AvgBranchingFactor float64

	// ObjectSplits and SpatialSplits count how many of the builder's splits
	// were plain object splits versus spatial (straddling-triangle) splits.
	ObjectSplits  int
	SpatialSplits int

	DegenerateTriangles []DegenerateTriangleWarning
	BudgetExceeded      *BudgetExceededWarning
}
