package partition

import "github.com/Herdi2/GPU-Raytracer/pkg/core"

// spatialBins accumulates, along one axis, the per-bin union box and the
// entry/exit counters swept to find a spatial split: for each ref, its
// clipped AABB is assigned to every bin it overlaps, incrementing
// entry[bin] where the ref's min lies and exit[bin] where its max lies.
type spatialBins struct {
	axis      int
	lo, width float64
	box       []core.AABB
	entry     []int
	exit      []int
}

func newSpatialBins(axis int, lo, width float64, n int) *spatialBins {
	b := &spatialBins{axis: axis, lo: lo, width: width,
		box: make([]core.AABB, n), entry: make([]int, n), exit: make([]int, n)}
	for i := range b.box {
		b.box[i] = core.EmptyAABB()
	}
	return b
}

func (b *spatialBins) indexOf(v float64) int {
	idx := int((v - b.lo) / b.width)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(b.box) {
		idx = len(b.box) - 1
	}
	return idx
}

// ClipTriangleToBin clips tri to the slab [lo, hi) of axis, intersected with
// ref to stay tight on the other two axes.
func ClipTriangleToBin(tri core.Triangle, ref core.AABB, axis int, lo, hi float64) core.AABB {
	slab := ref
	slab.Min = slab.Min.WithComponent(axis, lo)
	slab.Max = slab.Max.WithComponent(axis, hi)
	return tri.ClipToAABB(ref.Intersect(slab))
}

func (b *spatialBins) add(ref core.PrimitiveRef, tri core.Triangle) {
	eBin := b.indexOf(ref.Box.Min.Component(b.axis))
	xBin := b.indexOf(ref.Box.Max.Component(b.axis))
	b.entry[eBin]++
	b.exit[xBin]++
	for i := eBin; i <= xBin; i++ {
		binLo := b.lo + float64(i)*b.width
		binHi := b.lo + float64(i+1)*b.width
		clipped := ClipTriangleToBin(tri, ref.Box, b.axis, binLo, binHi)
		b.box[i] = b.box[i].Union(clipped)
	}
}

// sweepBestCut returns the cut index k in [1, bins) minimizing the SAH cost
// of splitting before bin k, i.e. the plane at lo + k*width.
func (b *spatialBins) sweepBestCut(parentSA float64, cfg core.Config) (k int, cost float64, ok bool) {
	n := len(b.box)

	rightBox := make([]core.AABB, n+1)
	rightCount := make([]int, n+1)
	rightBox[n] = core.EmptyAABB()
	for i := n - 1; i >= 0; i-- {
		rightBox[i] = rightBox[i+1].Union(b.box[i])
		rightCount[i] = rightCount[i+1] + b.exit[i]
	}

	leftBox := core.EmptyAABB()
	leftCount := 0
	bestCost := 0.0
	bestK := -1
	for cut := 1; cut < n; cut++ {
		leftBox = leftBox.Union(b.box[cut-1])
		leftCount += b.entry[cut-1]
		c := ObjectSplitCost(leftBox.SurfaceArea(), leftCount, rightBox[cut].SurfaceArea(), rightCount[cut], parentSA, cfg)
		if bestK < 0 || c < bestCost {
			bestK = cut
			bestCost = c
		}
	}
	if bestK < 0 {
		return -1, 0, false
	}
	return bestK, bestCost, true
}

// chooseSpatialSplit bins each axis, sweeps for the cheapest cut, then
// partitions refs across the winning plane applying the Stich et al.
// unsplit test to straddling refs (assign wholly left, wholly right, or
// split in two, whichever is cheapest).
func chooseSpatialSplit(refs []core.PrimitiveRef, box core.AABB, cfg core.Config, triangles []core.Triangle) (Outcome, bool) {
	parentSA := box.SurfaceArea()
	if parentSA <= 0 {
		return Outcome{}, false
	}

	bestAxis := -1
	var bestPlane float64
	bestCost := 0.0

	for axis := 0; axis < 3; axis++ {
		lo := box.Min.Component(axis)
		hi := box.Max.Component(axis)
		extent := hi - lo
		if extent <= 0 {
			continue
		}
		bins := cfg.SpatialSplitBins
		width := extent / float64(bins)
		sb := newSpatialBins(axis, lo, width, bins)
		for _, ref := range refs {
			sb.add(ref, triangles[ref.TriangleID])
		}
		k, cost, ok := sb.sweepBestCut(parentSA, cfg)
		if !ok {
			continue
		}
		if bestAxis < 0 || cost < bestCost {
			bestAxis = axis
			bestPlane = lo + float64(k)*width
			bestCost = cost
		}
	}

	if bestAxis < 0 {
		return Outcome{}, false
	}

	return partitionAcrossPlane(refs, box, triangles, bestAxis, bestPlane, cfg), true
}

// partitionAcrossPlane assigns every ref to the left child, the right child,
// or both (split), given the winning spatial-split plane. Refs wholly on one
// side of the plane are assigned directly; straddling refs go through the
// unsplit test, comparing the cost of splitting against forcing the whole
// ref to one side: whichever choice yields the lower total cost wins.
func partitionAcrossPlane(refs []core.PrimitiveRef, box core.AABB, triangles []core.Triangle, axis int, plane float64, cfg core.Config) Outcome {
	var left, right []core.PrimitiveRef
	leftBox, rightBox := core.EmptyAABB(), core.EmptyAABB()

	var straddling []core.PrimitiveRef
	for _, ref := range refs {
		min, max := ref.Box.Min.Component(axis), ref.Box.Max.Component(axis)
		switch {
		case max <= plane:
			left = append(left, ref)
			leftBox = leftBox.Union(ref.Box)
		case min >= plane:
			right = append(right, ref)
			rightBox = rightBox.Union(ref.Box)
		default:
			straddling = append(straddling, ref)
		}
	}
	leftCount, rightCount := len(left), len(right)
	parentSA := box.SurfaceArea()

	for _, ref := range straddling {
		tri := triangles[ref.TriangleID]
		leftPart := ClipTriangleToBin(tri, ref.Box, axis, box.Min.Component(axis), plane)
		rightPart := ClipTriangleToBin(tri, ref.Box, axis, plane, box.Max.Component(axis))

		costSplit := ObjectSplitCost(leftBox.Union(leftPart).SurfaceArea(), leftCount+1,
			rightBox.Union(rightPart).SurfaceArea(), rightCount+1, parentSA, cfg)
		costLeft := ObjectSplitCost(leftBox.Union(ref.Box).SurfaceArea(), leftCount+1,
			rightBox.SurfaceArea(), rightCount, parentSA, cfg)
		costRight := ObjectSplitCost(leftBox.SurfaceArea(), leftCount,
			rightBox.Union(ref.Box).SurfaceArea(), rightCount+1, parentSA, cfg)

		switch {
		case costLeft <= costSplit && costLeft <= costRight:
			left = append(left, ref)
			leftBox = leftBox.Union(ref.Box)
			leftCount++
		case costRight <= costSplit:
			right = append(right, ref)
			rightBox = rightBox.Union(ref.Box)
			rightCount++
		default:
			left = append(left, core.PrimitiveRef{TriangleID: ref.TriangleID, Box: leftPart})
			right = append(right, core.PrimitiveRef{TriangleID: ref.TriangleID, Box: rightPart})
			leftBox = leftBox.Union(leftPart)
			rightBox = rightBox.Union(rightPart)
			leftCount++
			rightCount++
		}
	}

	cost := ObjectSplitCost(leftBox.SurfaceArea(), leftCount, rightBox.SurfaceArea(), rightCount, parentSA, cfg)
	return Outcome{
		Axis:     axis,
		Left:     left,
		Right:    right,
		LeftBox:  leftBox,
		RightBox: rightBox,
		Kind:     Spatial,
		Cost:     cost,
	}
}

// overlapSurfaceArea is the SA(overlap(l, r)) term of the restricted
// spatial split area test.
func overlapSurfaceArea(l, r core.AABB) float64 {
	o := l.Intersect(r)
	if !o.IsValid() {
		return 0
	}
	return o.SurfaceArea()
}
