// Package bvh implements the top-level build orchestration: given triangles
// and a Config, it runs the appropriate builder, optionally the optimizer,
// and the requested wide conversion, producing a single typed Hierarchy.
package bvh

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Herdi2/GPU-Raytracer/pkg/builder"
	"github.com/Herdi2/GPU-Raytracer/pkg/core"
	"github.com/Herdi2/GPU-Raytracer/pkg/optimizer"
	"github.com/Herdi2/GPU-Raytracer/pkg/wide"
)

// Build produces a Hierarchy whose concrete shape (Binary, Wide4, or Wide8)
// is driven by cfg.BVHType: BVH/SBVH stay binary, BVH4/SBVH4 collapse to
// 4-wide, BVH8/SBVH8 collapse to 8-wide CWBVH. Optimization, when enabled,
// always runs on the BVH2 stage before any wide conversion. ctx governs the
// optimizer's wall-clock budget in addition to cfg's own MaxTime.
func Build(ctx context.Context, triangles []core.Triangle, cfg core.Config, logger *zap.Logger) (core.Hierarchy, []uint32, core.BuildStats, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return core.Hierarchy{}, nil, core.BuildStats{}, errors.Wrap(err, "bvh: invalid config")
	}

	var (
		bvh2    *core.BVH2
		indices []uint32
		stats   core.BuildStats
		err     error
	)
	if cfg.BVHType.UsesSpatialSplits() {
		bvh2, indices, stats, err = builder.BuildSBVH(triangles, cfg, logger)
	} else {
		bvh2, indices, stats, err = builder.BuildSAH(triangles, cfg, logger)
	}
	if err != nil {
		return core.Hierarchy{}, nil, core.BuildStats{}, err
	}

	if err := validateBVH2(bvh2, indices, len(triangles), cfg.BVHType.UsesSpatialSplits()); err != nil {
		return core.Hierarchy{}, nil, core.BuildStats{}, errors.Wrap(err, "bvh: built tree failed invariant check")
	}

	if cfg.EnableBVHOptimization {
		optimized, optIndices, warning := optimizer.Optimize(ctx, bvh2, indices, cfg, logger)
		bvh2, indices = optimized, optIndices
		stats.BudgetExceeded = warning
		if warning != nil {
			logger.Warn("bvh build: optimizer budget exceeded", zap.Error(warning))
		}
	}

	switch cfg.BVHType.TargetWidth() {
	case 4:
		wide4 := wide.ToBVH4(bvh2)
		logger.Info("bvh build complete", zap.String("type", cfg.BVHType.String()), zap.Int("node_count", stats.NodeCount))
		return core.Hierarchy{Wide4: wide4}, indices, stats, nil
	case 8:
		cwbvh, outIndices := wide.ToCWBVH(bvh2, indices)
		logger.Info("bvh build complete", zap.String("type", cfg.BVHType.String()), zap.Int("node_count", stats.NodeCount))
		return core.Hierarchy{Wide8: cwbvh}, outIndices, stats, nil
	default:
		logger.Info("bvh build complete", zap.String("type", cfg.BVHType.String()), zap.Int("node_count", stats.NodeCount))
		return core.Hierarchy{Binary: bvh2}, indices, stats, nil
	}
}

// validateBVH2 checks the sibling-adjacency and leaf-addressing invariants
// before any further processing runs on the tree; a violation is always a
// programmer error in the builder, never a bad input.
func validateBVH2(bvh2 *core.BVH2, indices []uint32, triangleCount int, allowDuplicates bool) error {
	seen := make([]int, triangleCount)
	for _, n := range bvh2.Nodes {
		if n.IsLeaf() {
			end := int(n.Left) + int(n.Count)
			if int(n.Left) < 0 || end > len(indices) {
				return errors.Wrapf(core.ErrInvariantViolation, "leaf range [%d,%d) out of bounds (indices len %d)", n.Left, end, len(indices))
			}
			for i := int(n.Left); i < end; i++ {
				id := indices[i]
				if int(id) >= triangleCount {
					return errors.Wrapf(core.ErrInvariantViolation, "triangle id %d out of range", id)
				}
				seen[id]++
			}
			continue
		}
		if int(n.Left)+1 >= len(bvh2.Nodes) {
			return errors.Wrapf(core.ErrInvariantViolation, "internal node's right child index %d out of bounds", n.Left+1)
		}
	}
	for id, count := range seen {
		if count == 0 {
			return errors.Wrapf(core.ErrInvariantViolation, "triangle id %d missing from every leaf", id)
		}
		if !allowDuplicates && count > 1 {
			return errors.Wrapf(core.ErrInvariantViolation, "triangle id %d referenced %d times by a non-spatial build", id, count)
		}
	}
	return nil
}
