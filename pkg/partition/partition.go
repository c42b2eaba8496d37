// Package partition implements the partition kernel: choosing an object
// split along each axis, and — for SBVH — a spatial split, with the Stich
// et al. unsplit test to bound duplication.
package partition

import (
	"sort"

	"github.com/Herdi2/GPU-Raytracer/pkg/core"
)

// Kind distinguishes how a Split outcome partitioned its input.
type Kind int

const (
	// Object assigns every primitive wholly to one child by centroid.
	Object Kind = iota
	// Spatial may clip a primitive, producing two refs that share a TriangleID.
	Spatial
)

func (k Kind) String() string {
	if k == Spatial {
		return "Spatial"
	}
	return "Object"
}

// Outcome is the partition kernel's decision for one node: either a leaf, or
// a two-way split with the axis, resulting ref sets, and tight boxes for
// each side.
type Outcome struct {
	IsLeaf bool
	Refs   []core.PrimitiveRef // only set when IsLeaf

	Axis      int
	Left      []core.PrimitiveRef
	Right     []core.PrimitiveRef
	LeftBox   core.AABB
	RightBox  core.AABB
	Kind      Kind
	Cost      float64
}

// tieBreakEpsilon is the relative tolerance for preferring an object split
// over a spatial split of near-equal cost.
const tieBreakEpsilon = 1e-6

// LeafCost is the SAH cost of making a leaf out of n primitives.
func LeafCost(n int, costLeaf float64) float64 {
	return float64(n) * costLeaf
}

// ObjectSplitCost evaluates the SAH cost formula for one candidate cut:
//
//	cost(k) = C_trav + (SA(B_L)*k + SA(B_R)*(|S|-k)) * C_leaf / SA(B)
func ObjectSplitCost(leftSA float64, leftCount int, rightSA float64, rightCount int, parentSA float64, cfg core.Config) float64 {
	if parentSA <= 0 {
		return cfg.SAHCostNode
	}
	return cfg.SAHCostNode + (leftSA*float64(leftCount)+rightSA*float64(rightCount))*cfg.SAHCostLeaf/parentSA
}

// SortedByCentroid returns a copy of refs sorted by centroid along axis.
func SortedByCentroid(refs []core.PrimitiveRef, axis int) []core.PrimitiveRef {
	sorted := make([]core.PrimitiveRef, len(refs))
	copy(sorted, refs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Centroid().Component(axis) < sorted[j].Centroid().Component(axis)
	})
	return sorted
}

// BestObjectSplitAlongAxis sweeps a slice already sorted by centroid along
// axis and returns the cut k in [1, n) minimizing ObjectSplitCost, along with
// the tight boxes of each side. It does not decide leaf-vs-split; the caller
// compares the returned cost against LeafCost.
func BestObjectSplitAlongAxis(sorted []core.PrimitiveRef, parentBox core.AABB, cfg core.Config) (k int, cost float64, leftBox, rightBox core.AABB) {
	n := len(sorted)
	if n < 2 {
		return -1, LeafCost(n, cfg.SAHCostLeaf), core.EmptyAABB(), core.EmptyAABB()
	}
	// Every centroid coincides: there is no extent to cut along.
	coincident := true
	for _, ref := range sorted[1:] {
		if ref.Centroid() != sorted[0].Centroid() {
			coincident = false
			break
		}
	}
	if coincident {
		return -1, LeafCost(n, cfg.SAHCostLeaf), core.EmptyAABB(), core.EmptyAABB()
	}

	parentSA := parentBox.SurfaceArea()

	// Suffix surface areas: rightSA[i] = SA of union(sorted[i:]).
	rightSA := make([]float64, n+1)
	rightBoxes := make([]core.AABB, n+1)
	rightBoxes[n] = core.EmptyAABB()
	for i := n - 1; i >= 0; i-- {
		rightBoxes[i] = rightBoxes[i+1].Union(sorted[i].Box)
		rightSA[i] = rightBoxes[i].SurfaceArea()
	}

	bestK := -1
	var bestCost float64
	var bestLeftBox, bestRightBox core.AABB

	leftBoxAcc := core.EmptyAABB()
	for cut := 1; cut < n; cut++ {
		leftBoxAcc = leftBoxAcc.Union(sorted[cut-1].Box)
		c := ObjectSplitCost(leftBoxAcc.SurfaceArea(), cut, rightSA[cut], n-cut, parentSA, cfg)
		if bestK < 0 || c < bestCost {
			bestCost = c
			bestK = cut
			bestLeftBox = leftBoxAcc
			bestRightBox = rightBoxes[cut]
		}
	}

	return bestK, bestCost, bestLeftBox, bestRightBox
}

// ChooseObjectSplit evaluates all three axes from scratch (re-sorting each
// time) and returns the cheapest object split, or a leaf if none beats the
// leaf cost within leaf_max_primitives. It is a standalone entry point; the
// SBVH builder runs the same re-sorting three-axis sweep through Choose, and
// the SAH builder instead keeps persistent sorted arrays across recursion
// via the stable 3-axis partition in pkg/builder.
func ChooseObjectSplit(refs []core.PrimitiveRef, box core.AABB, cfg core.Config) Outcome {
	n := len(refs)
	best, ok := bestOf3Axes(refs, box, cfg)

	// No axis has any extent to split on: leaf is the only option regardless
	// of the primitive budget (there is no way to make progress otherwise).
	if !ok {
		return Outcome{IsLeaf: true, Refs: refs}
	}
	// A split beats the leaf cost, or the set exceeds the primitive budget
	// and must be divided even if the SAH cost says otherwise.
	if best.Cost < LeafCost(n, cfg.SAHCostLeaf) || n > cfg.LeafMaxPrimitives {
		return best
	}
	return Outcome{IsLeaf: true, Refs: refs}
}

func bestOf3Axes(refs []core.PrimitiveRef, box core.AABB, cfg core.Config) (Outcome, bool) {
	n := len(refs)
	bestCost := LeafCost(n, cfg.SAHCostLeaf) + 1 // sentinel: worse than any real leaf comparison basis
	found := false
	var best Outcome

	for axis := 0; axis < 3; axis++ {
		sorted := SortedByCentroid(refs, axis)
		k, cost, leftBox, rightBox := BestObjectSplitAlongAxis(sorted, box, cfg)
		if k < 0 {
			continue
		}
		if !found || cost < bestCost {
			found = true
			bestCost = cost
			left := make([]core.PrimitiveRef, k)
			right := make([]core.PrimitiveRef, n-k)
			copy(left, sorted[:k])
			copy(right, sorted[k:])
			best = Outcome{
				IsLeaf:   false,
				Axis:     axis,
				Left:     left,
				Right:    right,
				LeftBox:  leftBox,
				RightBox: rightBox,
				Kind:     Object,
				Cost:     cost,
			}
		}
	}
	return best, found
}

// PreferObjectOnTie applies the tie-break rule: when object and spatial
// costs are within tieBreakEpsilon*cost of each other, the object split
// wins (fewer refs, simpler leaves).
func PreferObjectOnTie(objectCost, spatialCost float64) bool {
	tol := tieBreakEpsilon * objectCost
	return objectCost-spatialCost <= tol
}
