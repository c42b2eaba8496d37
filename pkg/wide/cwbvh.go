package wide

import (
	"math"

	"github.com/Herdi2/GPU-Raytracer/pkg/core"
)

const maxWideSlots8 = 8

// ToCWBVH collapses a BVH2 into an 8-wide quantized tree, assigning each
// node's filled slots to octants and quantizing child bounds relative to a
// per-node base point and per-axis power-of-two scale. indices is the BVH2's
// triangle-index permutation; the returned permutation is repacked so each
// node's leaf triangles are contiguous, as BaseIndexTriangle requires. Every
// leaf's Count must be <= 3: the unary triangle-count mask packed into a
// meta byte's high 3 bits only has room for that; Config.Validate rejects
// an 8-wide BVHType paired with a larger LeafMaxPrimitives before any
// builder runs, so a tree reaching this function already satisfies it.
func ToCWBVH(bvh *core.BVH2, indices []uint32) (*core.CWBVH, []uint32) {
	if len(bvh.Nodes) == 0 {
		return &core.CWBVH{}, nil
	}
	pool := make([]core.CWBVHNode, 1) // root reserved at index 0
	outIndices := make([]uint32, 0, len(indices))
	buildCWBVHNode(bvh, 0, indices, &pool, &outIndices, 0)
	return &core.CWBVH{Nodes: pool}, outIndices
}

func buildCWBVHNode(bvh *core.BVH2, rootIdx int32, srcIndices []uint32, pool *[]core.CWBVHNode, outIndices *[]uint32, myIdx int32) {
	n := bvh.Nodes[rootIdx]

	var candidates []candidate
	if n.IsLeaf() {
		candidates = []candidate{{rootIdx, n}}
	} else {
		candidates = expandCandidates(bvh, n, maxWideSlots8)
	}

	slots := assignOctants(n.Box.Center(), candidates)

	box := n.Box
	p := box.Min
	var e [3]byte
	var scale [3]float64
	for axis := 0; axis < 3; axis++ {
		extent := box.Max.Component(axis) - box.Min.Component(axis)
		expo := 0
		if extent > 0 {
			expo = int(math.Ceil(math.Log2(extent / 255.0)))
		}
		scale[axis] = math.Exp2(float64(expo))
		e[axis] = byte(expo + 127)
	}

	// Reserve contiguous wide-node slots for every internal candidate, in
	// slot order, so BaseIndexChild + relative-slot-count addresses them.
	var internalSlots []int
	for i, c := range slots {
		if c != nil && !c.node.IsLeaf() {
			internalSlots = append(internalSlots, i)
		}
	}
	var baseIndexChild uint32
	childNodeIdx := make(map[int]int32, len(internalSlots))
	slotRank := make(map[int]int, len(internalSlots))
	if len(internalSlots) > 0 {
		baseIndexChild = uint32(len(*pool))
		for k, slotI := range internalSlots {
			childNodeIdx[slotI] = int32(baseIndexChild) + int32(k)
			slotRank[slotI] = k
		}
		*pool = append(*pool, make([]core.CWBVHNode, len(internalSlots))...)
	}

	// Reserve a contiguous triangle block for every leaf candidate, in slot
	// order, so BaseIndexTriangle addresses them the same way.
	baseIndexTriangle := uint32(len(*outIndices))
	leafOffset := make(map[int]uint32)
	leafCount := make(map[int]uint32)
	for i, c := range slots {
		if c != nil && c.node.IsLeaf() {
			leafOffset[i] = uint32(len(*outIndices)) - baseIndexTriangle
			leafCount[i] = c.node.Count
			*outIndices = append(*outIndices, srcIndices[c.node.Left:int32(c.node.Left)+int32(c.node.Count)]...)
		}
	}

	var imask byte
	var meta [8]byte
	var qlo, qhi [3][8]byte
	for i, c := range slots {
		if c == nil {
			continue
		}
		for axis := 0; axis < 3; axis++ {
			lo := (c.node.Box.Min.Component(axis) - p.Component(axis)) / scale[axis]
			hi := (c.node.Box.Max.Component(axis) - p.Component(axis)) / scale[axis]
			qlo[axis][i] = clampByte(math.Floor(lo))
			qhi[axis][i] = clampByte(math.Ceil(hi))
		}
		if c.node.IsLeaf() {
			meta[i] = byte(leafOffset[i]&0x1F) | byte(((uint32(1)<<leafCount[i])-1)<<5)
		} else {
			imask |= 1 << uint(i)
			// Low 5 bits encode BaseIndexChild's relative offset: 24 plus
			// this slot's rank among the node's internal children (not its
			// raw slot index), so BaseIndexChild+offset addresses the
			// contiguous child block reserved above.
			meta[i] = byte(24+slotRank[i]) | 0xE0
		}
	}

	(*pool)[myIdx] = core.CWBVHNode{
		P:                 p,
		E:                 e,
		IMask:             imask,
		BaseIndexChild:    baseIndexChild,
		BaseIndexTriangle: baseIndexTriangle,
		Meta:              meta,
		QLo:               qlo,
		QHi:               qhi,
	}

	for i, c := range slots {
		if c != nil && !c.node.IsLeaf() {
			buildCWBVHNode(bvh, c.idx, srcIndices, pool, outIndices, childNodeIdx[i])
		}
	}
}

// assignOctants places each candidate into the octant (0..7, bit0=+X,
// bit1=+Y, bit2=+Z relative to center) matching its centroid's sign
// pattern, resolving collisions by greedily assigning the colliding
// candidate to whichever unoccupied octant its centroid projects onto most
// strongly.
func assignOctants(center core.Vec3, candidates []candidate) [8]*candidate {
	var slots [8]*candidate
	var pending []candidate
	for _, c := range candidates {
		oct := octantOf(center, c.node.Box.Center())
		if slots[oct] == nil {
			cc := c
			slots[oct] = &cc
		} else {
			pending = append(pending, c)
		}
	}
	for _, c := range pending {
		rel := c.node.Box.Center().Subtract(center)
		best := -1
		bestScore := math.Inf(-1)
		for o := 0; o < 8; o++ {
			if slots[o] != nil {
				continue
			}
			score := projectOntoOctant(rel, o)
			if score > bestScore {
				bestScore = score
				best = o
			}
		}
		if best >= 0 {
			cc := c
			slots[best] = &cc
		}
	}
	return slots
}

func octantOf(center, p core.Vec3) int {
	oct := 0
	if p.X >= center.X {
		oct |= 1
	}
	if p.Y >= center.Y {
		oct |= 2
	}
	if p.Z >= center.Z {
		oct |= 4
	}
	return oct
}

func projectOntoOctant(rel core.Vec3, octant int) float64 {
	sx, sy, sz := -1.0, -1.0, -1.0
	if octant&1 != 0 {
		sx = 1
	}
	if octant&2 != 0 {
		sy = 1
	}
	if octant&4 != 0 {
		sz = 1
	}
	return rel.X*sx + rel.Y*sy + rel.Z*sz
}

func clampByte(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// DequantizeChildBox reconstructs the conservative AABB a CWBVH node's slot
// encodes, for tests checking that it contains the exact child AABB that
// produced it.
func DequantizeChildBox(n core.CWBVHNode, slot int) core.AABB {
	min, max := core.Vec3{}, core.Vec3{}
	for axis := 0; axis < 3; axis++ {
		expo := int(n.E[axis]) - 127
		scale := math.Exp2(float64(expo))
		base := n.P.Component(axis)
		min = min.WithComponent(axis, base+float64(n.QLo[axis][slot])*scale)
		max = max.WithComponent(axis, base+float64(n.QHi[axis][slot])*scale)
	}
	return core.AABB{Min: min, Max: max}
}
