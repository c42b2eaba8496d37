package partition

import "github.com/Herdi2/GPU-Raytracer/pkg/core"

// Choose is the partition kernel's single entry point for the SBVH builder:
// it runs the object split, and — when allowSpatial is set and the
// restricted spatial split area test passes (SA(overlap(B_L_object,
// B_R_object)) / SA(B_root) > alpha) — the spatial split, applying
// PreferObjectOnTie between the two candidates. The cheaper split is
// returned when it beats the leaf cost, or when refs exceed
// LeafMaxPrimitives; otherwise the node is a leaf. rootSA is SA(B_root) of
// the whole build, not of this node's box.
func Choose(refs []core.PrimitiveRef, box core.AABB, cfg core.Config, rootSA float64, triangles []core.Triangle, allowSpatial bool) Outcome {
	n := len(refs)
	leafCost := LeafCost(n, cfg.SAHCostLeaf)

	objBest, objOK := bestOf3Axes(refs, box, cfg)

	best := Outcome{IsLeaf: true, Refs: refs}
	bestCost := leafCost
	haveSplit := false
	if objOK {
		best, bestCost, haveSplit = objBest, objBest.Cost, true
	}

	if allowSpatial && objOK && rootSA > 0 {
		overlap := overlapSurfaceArea(objBest.LeftBox, objBest.RightBox)
		if overlap/rootSA > cfg.SBVHAlpha {
			if spatialOut, ok := chooseSpatialSplit(refs, box, cfg, triangles); ok {
				if !haveSplit || (spatialOut.Cost < bestCost && !PreferObjectOnTie(bestCost, spatialOut.Cost)) {
					best, bestCost, haveSplit = spatialOut, spatialOut.Cost, true
				}
			}
		}
	}

	if !haveSplit || (bestCost >= leafCost && n <= cfg.LeafMaxPrimitives) {
		return Outcome{IsLeaf: true, Refs: refs}
	}
	return best
}
