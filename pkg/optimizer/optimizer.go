// Package optimizer implements the batched-reinsertion BVH optimizer: it
// rebuilds a BVH2 to reduce total SAH cost, preserving the node-pool sizing
// and sibling-adjacency invariants on output.
//
// Internally it works over an explicit parent/left/right pointer tree rather
// than a compact array with a free list, because the compact representation
// only ever exposes children as (Left, Left+1) — there is no slot to rewire
// a single child pointer without relabeling an entire subtree. The pointer
// tree lets Bittner-style reinsertion rewire a single edge in O(1); flatten
// re-derives a fresh, adjacency-correct array at the end, which is where the
// sibling-adjacency pairing is actually enforced (see flatten). Reinsertion
// reuses the exact *treeNode freed by a detach as the new internal node it
// creates, so no extra allocation tracking is needed.
package optimizer

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/Herdi2/GPU-Raytracer/pkg/core"
)

type treeNode struct {
	box    core.AABB
	isLeaf bool

	leafStart uint32
	leafCount uint32

	left, right *treeNode
	parent      *treeNode
}

// Optimize runs batched randomized reinsertion until cfg.BVHOptimizerMaxTime
// or cfg.BVHOptimizerMaxNumBatches is exhausted, or ctx is cancelled, and
// returns the (possibly improved) tree. A non-nil warning is returned only
// when the deadline (ctx or BVHOptimizerMaxTime) fired before a single batch
// was attempted — the optimizer returns the unoptimized tree with a
// warning, never an error, even when every attempted batch failed to
// improve cost.
func Optimize(ctx context.Context, bvh *core.BVH2, indices []uint32, cfg core.Config, logger *zap.Logger) (*core.BVH2, []uint32, *core.BudgetExceededWarning) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(bvh.Nodes) <= 1 {
		return bvh, indices, nil
	}

	root := buildTree(bvh, indices)
	rng := rand.New(rand.NewSource(cfg.Seed))

	start := time.Now()
	deadline := start.Add(cfg.BVHOptimizerMaxTime)
	batchesAttempted := 0
	batchesAccepted := 0
	deadlineFired := false

batchLoop:
	for batch := 0; batch < cfg.BVHOptimizerMaxNumBatches; batch++ {
		select {
		case <-ctx.Done():
			deadlineFired = true
			break batchLoop
		default:
		}
		if time.Now().After(deadline) {
			deadlineFired = true
			break batchLoop
		}

		candidates := collectNonRoot(root)
		if len(candidates) == 0 {
			break batchLoop
		}
		frac := 0.01 * (1 - float64(batch)/float64(cfg.BVHOptimizerMaxNumBatches))
		if frac < 0 {
			frac = 0
		}
		k := int(math.Ceil(frac * float64(len(candidates))))
		if k < 1 {
			k = 1
		}
		if k > len(candidates) {
			k = len(candidates)
		}
		batchTargets := weightedSample(candidates, k, rng)

		before := cloneTree(root)
		beforeCost := totalCost(root, cfg)

		for _, v := range batchTargets {
			reinsert(&root, v, cfg)
		}
		batchesAttempted++

		afterCost := totalCost(root, cfg)
		if afterCost <= beforeCost {
			batchesAccepted++
		} else {
			root = before
		}
	}

	if deadlineFired && batchesAttempted == 0 {
		logger.Warn("bvh optimizer budget exceeded before any batch completed",
			zap.Duration("elapsed", time.Since(start)))
		newBVH, newIndices := flatten(root, indices)
		return newBVH, newIndices, &core.BudgetExceededWarning{BatchesAttempted: 0, Elapsed: time.Since(start)}
	}

	logger.Debug("bvh optimizer complete", zap.Int("batches_attempted", batchesAttempted), zap.Int("batches_accepted", batchesAccepted))
	newBVH, newIndices := flatten(root, indices)
	return newBVH, newIndices, nil
}

// totalCost is T = Σ_leaves SA(leaf)*count*C_leaf + Σ_internal
// SA(node)*C_trav, normalized by the root surface area.
func totalCost(root *treeNode, cfg core.Config) float64 {
	rootSA := root.box.SurfaceArea()
	if rootSA <= 0 {
		return 0
	}
	var sum float64
	var visit func(n *treeNode)
	visit = func(n *treeNode) {
		if n.isLeaf {
			sum += n.box.SurfaceArea() * float64(n.leafCount) * cfg.SAHCostLeaf
			return
		}
		sum += n.box.SurfaceArea() * cfg.SAHCostNode
		visit(n.left)
		visit(n.right)
	}
	visit(root)
	return sum / rootSA
}

// reinsert detaches v from its parent (promoting v's sibling into the
// parent's old slot) and reinserts v as a new sibling of the cheapest
// candidate u found by bestInsertion.
func reinsert(rootPtr **treeNode, v *treeNode, cfg core.Config) {
	if v == *rootPtr || v.parent == nil {
		return
	}
	parentNode := v.parent
	if parentNode.left != v && parentNode.right != v {
		// Stale target: an earlier reinsertion in this batch already
		// dissolved parentNode (e.g. v's former parent was itself
		// detached and its struct reused as someone else's new parent).
		return
	}

	var sibling *treeNode
	if parentNode.left == v {
		sibling = parentNode.right
	} else {
		sibling = parentNode.left
	}

	grandparent := parentNode.parent
	sibling.parent = grandparent
	if grandparent == nil {
		*rootPtr = sibling
	} else {
		if grandparent.left == parentNode {
			grandparent.left = sibling
		} else {
			grandparent.right = sibling
		}
		updateAncestorBoxes(grandparent)
	}
	v.parent = nil
	parentNode.left, parentNode.right, parentNode.parent = nil, nil, nil

	u, _ := bestInsertion(*rootPtr, v)
	if u == nil {
		u = *rootPtr
	}

	// Reuse the just-freed parentNode struct as the new internal node
	// instead of allocating one.
	newNode := parentNode
	uParent := u.parent
	newNode.isLeaf = false
	newNode.left, newNode.right = u, v
	newNode.box = u.box.Union(v.box)
	u.parent, v.parent = newNode, newNode

	if uParent == nil {
		newNode.parent = nil
		*rootPtr = newNode
	} else {
		newNode.parent = uParent
		if uParent.left == u {
			uParent.left = newNode
		} else {
			uParent.right = newNode
		}
		updateAncestorBoxes(uParent)
	}
}

// bestInsertion searches for the node u (anywhere outside v's own subtree)
// minimizing SA(union(B_u, B_v)) + inherited_cost(u), pruning descent
// wherever the optimistic inherited cost already exceeds the best found.
func bestInsertion(root, v *treeNode) (*treeNode, float64) {
	var best *treeNode
	bestCost := math.Inf(1)

	var visit func(n *treeNode, inherited float64)
	visit = func(n *treeNode, inherited float64) {
		if isInSubtree(n, v) {
			return
		}
		candidate := n.box.Union(v.box).SurfaceArea() + inherited
		if candidate < bestCost {
			bestCost = candidate
			best = n
		}
		if n.isLeaf {
			return
		}
		grown := n.box.Union(v.box)
		childInherited := inherited + (grown.SurfaceArea() - n.box.SurfaceArea())
		if childInherited < bestCost {
			visit(n.left, childInherited)
			visit(n.right, childInherited)
		}
	}
	visit(root, 0)
	return best, bestCost
}

func isInSubtree(n, v *treeNode) bool {
	for n != nil {
		if n == v {
			return true
		}
		n = n.parent
	}
	return false
}

func updateAncestorBoxes(n *treeNode) {
	for n != nil {
		if !n.isLeaf {
			n.box = n.left.box.Union(n.right.box)
		}
		n = n.parent
	}
}

func collectNonRoot(root *treeNode) []*treeNode {
	var out []*treeNode
	var visit func(n *treeNode)
	visit = func(n *treeNode) {
		if n != root {
			out = append(out, n)
		}
		if !n.isLeaf {
			visit(n.left)
			visit(n.right)
		}
	}
	visit(root)
	return out
}

// localInefficiency approximates the batch-selection weight
// SA(parent)*count − SA(children); count is approximated as 1 since the
// pointer tree does not cheaply track subtree primitive counts.
func localInefficiency(n *treeNode) float64 {
	p := n.parent
	if p == nil {
		return 0
	}
	sibling := p.right
	if p.left != n {
		sibling = p.left
	}
	childSA := n.box.SurfaceArea()
	if sibling != nil {
		childSA += sibling.box.SurfaceArea()
	}
	v := p.box.SurfaceArea() - childSA
	if v < 0 {
		return 0
	}
	return v
}

// weightedSample draws k distinct nodes from candidates via roulette-wheel
// selection weighted by localInefficiency, biasing the batch toward the
// most promising reinsertion candidates.
func weightedSample(candidates []*treeNode, k int, rng *rand.Rand) []*treeNode {
	remaining := make([]*treeNode, len(candidates))
	copy(remaining, candidates)
	weights := make([]float64, len(remaining))
	for i, n := range remaining {
		weights[i] = localInefficiency(n) + 1e-6
	}

	out := make([]*treeNode, 0, k)
	for len(out) < k && len(remaining) > 0 {
		total := 0.0
		for _, w := range weights {
			total += w
		}
		r := rng.Float64() * total
		acc := 0.0
		pick := len(remaining) - 1
		for i, w := range weights {
			acc += w
			if r <= acc {
				pick = i
				break
			}
		}
		out = append(out, remaining[pick])
		last := len(remaining) - 1
		remaining[pick] = remaining[last]
		remaining = remaining[:last]
		weights[pick] = weights[last]
		weights = weights[:last]
	}
	return out
}

func buildTree(bvh *core.BVH2, indices []uint32) *treeNode {
	nodes := make([]*treeNode, len(bvh.Nodes))
	var build func(i int32) *treeNode
	build = func(i int32) *treeNode {
		if nodes[i] != nil {
			return nodes[i]
		}
		n := bvh.Nodes[i]
		t := &treeNode{box: n.Box}
		nodes[i] = t
		if n.IsLeaf() {
			t.isLeaf = true
			t.leafStart = uint32(n.Left)
			t.leafCount = n.Count
		} else {
			t.left = build(n.Left)
			t.left.parent = t
			t.right = build(n.Left + 1)
			t.right.parent = t
		}
		return t
	}
	_ = indices
	return build(0)
}

func cloneTree(n *treeNode) *treeNode {
	return cloneWithParent(n, nil)
}

func cloneWithParent(n, parent *treeNode) *treeNode {
	if n == nil {
		return nil
	}
	c := &treeNode{box: n.box, isLeaf: n.isLeaf, leafStart: n.leafStart, leafCount: n.leafCount, parent: parent}
	if !n.isLeaf {
		c.left = cloneWithParent(n.left, c)
		c.right = cloneWithParent(n.right, c)
	}
	return c
}

// flatten re-derives a compact BVH2 node array from the pointer tree,
// allocating every internal node's children as an adjacent pair (the
// sibling-adjacency discipline, enforced here rather than during mutation)
// and copying each leaf's triangle ids into a freshly packed index array.
func flatten(root *treeNode, originalIndices []uint32) (*core.BVH2, []uint32) {
	var count func(n *treeNode) int
	count = func(n *treeNode) int {
		if n.isLeaf {
			return 1
		}
		return 1 + count(n.left) + count(n.right)
	}
	nodes := make([]core.BVH2Node, count(root))
	outIndices := make([]uint32, 0, len(originalIndices))

	next := int32(1)
	var place func(n *treeNode, idx int32)
	place = func(n *treeNode, idx int32) {
		if n.isLeaf {
			start := len(outIndices)
			outIndices = append(outIndices, originalIndices[n.leafStart:n.leafStart+n.leafCount]...)
			nodes[idx] = core.BVH2Node{Box: n.box, Left: int32(start), Count: n.leafCount}
			return
		}
		leftIdx, rightIdx := next, next+1
		next += 2
		nodes[idx] = core.BVH2Node{Box: n.box, Left: leftIdx, Count: 0}
		place(n.left, leftIdx)
		place(n.right, rightIdx)
	}
	place(root, 0)
	return &core.BVH2{Nodes: nodes}, outIndices
}
