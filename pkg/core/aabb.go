package core

import "math"

// AABB represents an axis-aligned bounding box
type AABB struct {
	Min Vec3 // Minimum corner
	Max Vec3 // Maximum corner
}

// NewAABB creates a new AABB from min and max points
func NewAABB(min, max Vec3) AABB {
	return AABB{Min: min, Max: max}
}

// NewAABBFromPoints creates an AABB that bounds all given points
func NewAABBFromPoints(points ...Vec3) AABB {
	if len(points) == 0 {
		return AABB{}
	}

	min := points[0]
	max := points[0]

	for _, point := range points[1:] {
		min.X = math.Min(min.X, point.X)
		min.Y = math.Min(min.Y, point.Y)
		min.Z = math.Min(min.Z, point.Z)

		max.X = math.Max(max.X, point.X)
		max.Y = math.Max(max.Y, point.Y)
		max.Z = math.Max(max.Z, point.Z)
	}

	return AABB{Min: min, Max: max}
}

// EmptyAABB returns the additive identity of Union: +inf min, -inf max, zero
// surface area. Accumulating Union over a non-empty set of boxes starting
// from EmptyAABB() always yields a valid, tight bound.
func EmptyAABB() AABB {
	return AABB{
		Min: NewVec3(math.Inf(1), math.Inf(1), math.Inf(1)),
		Max: NewVec3(math.Inf(-1), math.Inf(-1), math.Inf(-1)),
	}
}

// Union returns an AABB that bounds both this AABB and another
func (aabb AABB) Union(other AABB) AABB {
	min := Vec3{
		X: math.Min(aabb.Min.X, other.Min.X),
		Y: math.Min(aabb.Min.Y, other.Min.Y),
		Z: math.Min(aabb.Min.Z, other.Min.Z),
	}
	max := Vec3{
		X: math.Max(aabb.Max.X, other.Max.X),
		Y: math.Max(aabb.Max.Y, other.Max.Y),
		Z: math.Max(aabb.Max.Z, other.Max.Z),
	}
	return AABB{Min: min, Max: max}
}

// Center returns the center point of the AABB
func (aabb AABB) Center() Vec3 {
	return aabb.Min.Add(aabb.Max).Multiply(0.5)
}

// Size returns the size (extent) of the AABB along each axis
func (aabb AABB) Size() Vec3 {
	return aabb.Max.Subtract(aabb.Min)
}

// SurfaceArea returns the surface area of the AABB. An empty/invalid box
// (as produced by EmptyAABB, or by ClampedTo on a non-straddling plane before
// its degenerate-slab correction) has surface area 0, not +Inf or NaN.
func (aabb AABB) SurfaceArea() float64 {
	if !aabb.IsValid() {
		return 0
	}
	size := aabb.Size()
	return 2.0 * (size.X*size.Y + size.Y*size.Z + size.Z*size.X)
}

// LongestAxis returns the axis (0=X, 1=Y, 2=Z) with the longest extent
func (aabb AABB) LongestAxis() int {
	size := aabb.Size()
	if size.X > size.Y && size.X > size.Z {
		return 0 // X axis
	}
	if size.Y > size.Z {
		return 1 // Y axis
	}
	return 2 // Z axis
}

// IsValid returns true if this is a valid AABB (min <= max for all axes)
func (aabb AABB) IsValid() bool {
	return aabb.Min.X <= aabb.Max.X &&
		aabb.Min.Y <= aabb.Max.Y &&
		aabb.Min.Z <= aabb.Max.Z
}

// Expand returns an AABB expanded by the given amount in all directions
func (aabb AABB) Expand(amount float64) AABB {
	expansion := NewVec3(amount, amount, amount)
	return AABB{
		Min: aabb.Min.Subtract(expansion),
		Max: aabb.Max.Add(expansion),
	}
}

// Intersect returns the overlap of aabb and other. The result is an invalid
// (min > max on some axis) box, with SurfaceArea() reporting 0, when the two
// boxes do not overlap — callers that need the overlap volume itself should
// check IsValid() first.
func (aabb AABB) Intersect(other AABB) AABB {
	return AABB{
		Min: Vec3{
			X: math.Max(aabb.Min.X, other.Min.X),
			Y: math.Max(aabb.Min.Y, other.Min.Y),
			Z: math.Max(aabb.Min.Z, other.Min.Z),
		},
		Max: Vec3{
			X: math.Min(aabb.Max.X, other.Max.X),
			Y: math.Min(aabb.Max.Y, other.Max.Y),
			Z: math.Min(aabb.Max.Z, other.Max.Z),
		},
	}
}

// Contains returns true if the box encloses a point (min <= p <= max on every axis).
func (aabb AABB) Contains(p Vec3) bool {
	return p.X >= aabb.Min.X && p.X <= aabb.Max.X &&
		p.Y >= aabb.Min.Y && p.Y <= aabb.Max.Y &&
		p.Z >= aabb.Min.Z && p.Z <= aabb.Max.Z
}

// ClampedTo intersects aabb with a half-space in the style spatial splits need:
// side < 0 keeps everything below plane on axis, side > 0 keeps everything above.
// A sliver triangle lying exactly on the plane produces a zero-thickness but
// still-valid box on both sides.
func (aabb AABB) ClampedTo(axis int, plane float64, side int) AABB {
	result := aabb
	if side < 0 {
		hi := math.Min(result.Max.Component(axis), plane)
		result.Max = result.Max.WithComponent(axis, hi)
	} else {
		lo := math.Max(result.Min.Component(axis), plane)
		result.Min = result.Min.WithComponent(axis, lo)
	}
	// Degenerate overlap (parent box does not actually straddle the plane)
	// collapses to a zero-width slab rather than an invalid (min > max) box.
	if result.Min.Component(axis) > result.Max.Component(axis) {
		if side < 0 {
			result.Min = result.Min.WithComponent(axis, result.Max.Component(axis))
		} else {
			result.Max = result.Max.WithComponent(axis, result.Min.Component(axis))
		}
	}
	return result
}
