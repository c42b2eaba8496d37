package core

// Triangle is the raw input primitive: three vertices in object/world space.
// Shading data (normals, UVs, material) is a downstream concern and is not
// part of the acceleration-structure core.
type Triangle struct {
	V0, V1, V2 Vec3
}

// NewTriangle creates a triangle from three vertices.
func NewTriangle(v0, v1, v2 Vec3) Triangle {
	return Triangle{V0: v0, V1: v1, V2: v2}
}

// BoundingBox returns the componentwise min/max AABB of the triangle's vertices.
func (t Triangle) BoundingBox() AABB {
	return AABB{
		Min: MinVec3(MinVec3(t.V0, t.V1), t.V2),
		Max: MaxVec3(MaxVec3(t.V0, t.V1), t.V2),
	}
}

// Vertex returns the i-th vertex (0, 1, 2).
func (t Triangle) Vertex(i int) Vec3 {
	switch i {
	case 0:
		return t.V0
	case 1:
		return t.V1
	default:
		return t.V2
	}
}

// IsDegenerate reports whether the triangle's AABB has zero area on every
// axis pair, i.e. the triangle collapses to a point or to a segment parallel
// to a coordinate axis. Such triangles are admitted and become point-like
// leaves rather than being rejected.
func (t Triangle) IsDegenerate() bool {
	return t.BoundingBox().SurfaceArea() == 0
}

// ClipToAABB clips the triangle's convex hull (via Sutherland-Hodgman against
// the six AABB planes) and returns the tight AABB of the clipped polygon,
// intersected with clipBox itself for numerical safety. A straddling
// triangle is clipped against one plane at a time by clipping into the
// left/right half-space of clipBox; see partition.ClipTriangleToBin for the
// bin-sweep caller.
func (t Triangle) ClipToAABB(clipBox AABB) AABB {
	polygon := []Vec3{t.V0, t.V1, t.V2}

	for axis := 0; axis < 3; axis++ {
		polygon = clipPolygonAxis(polygon, axis, clipBox.Min.Component(axis), true)
		polygon = clipPolygonAxis(polygon, axis, clipBox.Max.Component(axis), false)
		if len(polygon) == 0 {
			return EmptyAABB()
		}
	}

	box := EmptyAABB()
	for _, p := range polygon {
		box = box.Union(AABB{Min: p, Max: p})
	}
	return box
}

// clipPolygonAxis runs one Sutherland-Hodgman pass against a single axis-aligned
// plane. keepAbove selects whether points with component >= plane (min planes)
// or <= plane (max planes) survive. Edges that lie exactly on the plane are
// kept on both sides by the >=/<= (not >/<) comparison, so a zero-thickness
// sliver aligned with the split plane still yields a valid non-empty polygon
// on the side it belongs to.
func clipPolygonAxis(polygon []Vec3, axis int, plane float64, keepAbove bool) []Vec3 {
	if len(polygon) == 0 {
		return nil
	}

	inside := func(p Vec3) bool {
		v := p.Component(axis)
		if keepAbove {
			return v >= plane
		}
		return v <= plane
	}

	intersect := func(a, b Vec3) Vec3 {
		va, vb := a.Component(axis), b.Component(axis)
		if va == vb {
			return a
		}
		t := (plane - va) / (vb - va)
		return Lerp(a, b, t)
	}

	var out []Vec3
	n := len(polygon)
	for i := 0; i < n; i++ {
		curr := polygon[i]
		prev := polygon[(i+n-1)%n]
		currIn := inside(curr)
		prevIn := inside(prev)

		if currIn {
			if !prevIn {
				out = append(out, intersect(prev, curr))
			}
			out = append(out, curr)
		} else if prevIn {
			out = append(out, intersect(prev, curr))
		}
	}
	return out
}
