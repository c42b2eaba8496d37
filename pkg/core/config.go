package core

import (
	"time"

	"github.com/pkg/errors"
)

// BVHType selects the starting builder and the target branching factor. It
// is a plain field on an explicit Config value threaded through every
// builder call, rather than a process-wide global.
type BVHType int

const (
	BVH BVHType = iota
	SBVH
	BVH4
	SBVH4
	BVH8
	SBVH8
)

func (t BVHType) String() string {
	switch t {
	case BVH:
		return "BVH"
	case SBVH:
		return "SBVH"
	case BVH4:
		return "BVH4"
	case SBVH4:
		return "SBVH4"
	case BVH8:
		return "BVH8"
	case SBVH8:
		return "SBVH8"
	default:
		return "BVHType(unknown)"
	}
}

// UsesSpatialSplits reports whether this type's starting builder is the SBVH
// spatial-split builder rather than the plain SAH builder.
func (t BVHType) UsesSpatialSplits() bool {
	return t == SBVH || t == SBVH4 || t == SBVH8
}

// TargetWidth reports the wide-converter this type collapses into after the
// BVH2 stage, or 2 if the binary tree itself is the output.
func (t BVHType) TargetWidth() int {
	switch t {
	case BVH4, SBVH4:
		return 4
	case BVH8, SBVH8:
		return 8
	default:
		return 2
	}
}

// Config is the full set of build parameters. It is always passed
// explicitly; there is no global/default instance a builder reads from
// behind the caller's back.
type Config struct {
	BVHType BVHType

	EnableBVHOptimization bool

	SAHCostNode float64
	SAHCostLeaf float64

	SBVHAlpha float64

	BVHOptimizerMaxTime       time.Duration
	BVHOptimizerMaxNumBatches int

	LeafMaxPrimitives int

	// Seed makes the optimizer's randomized reinsertion batches reproducible:
	// identical (triangles, config, seed) must produce byte-identical output.
	Seed int64

	// SpatialSplitBins is the bin count used by the spatial-split sweep.
	// 256 is the commonly cited default and is what this core uses.
	SpatialSplitBins int
}

// DefaultConfig returns reasonable defaults for every tuning constant.
func DefaultConfig() Config {
	return Config{
		BVHType:                   BVH,
		EnableBVHOptimization:     false,
		SAHCostNode:               4.0,
		SAHCostLeaf:               1.0,
		SBVHAlpha:                 1e-5,
		BVHOptimizerMaxTime:       60000 * time.Millisecond,
		BVHOptimizerMaxNumBatches: 1000,
		LeafMaxPrimitives:         1,
		SpatialSplitBins:          256,
	}
}

// Validate reports the first structurally invalid field. It does not catch
// every bad choice of tuning constant (e.g. a SAHCostLeaf of 0 is legal, if
// unwise), only values that would make the pipeline misbehave.
func (c Config) Validate() error {
	if c.BVHType < BVH || c.BVHType > SBVH8 {
		return errors.Errorf("bvh: invalid BVHType %d", c.BVHType)
	}
	if c.LeafMaxPrimitives < 1 {
		return errors.New("bvh: LeafMaxPrimitives must be >= 1")
	}
	if c.BVHType.TargetWidth() == 8 && c.LeafMaxPrimitives > 3 {
		return errors.New("bvh: LeafMaxPrimitives must be <= 3 for an 8-wide BVHType (a CWBVH leaf slot's unary triangle-count mask only has 3 bits)")
	}
	if c.SpatialSplitBins < 2 {
		return errors.New("bvh: SpatialSplitBins must be >= 2")
	}
	if c.SBVHAlpha < 0 {
		return errors.New("bvh: SBVHAlpha must be >= 0")
	}
	if c.BVHOptimizerMaxNumBatches < 0 {
		return errors.New("bvh: BVHOptimizerMaxNumBatches must be >= 0")
	}
	return nil
}
