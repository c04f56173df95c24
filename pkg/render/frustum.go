package render

import (
	"github.com/taigrr/brickview/pkg/math3d"
)

// Plane represents a plane in 3D space using the equation: Ax + By + Cz + D = 0
// where (A, B, C) is the normal and D is the distance from origin.
type Plane struct {
	Normal math3d.Vec3
	D      float64
}

// Normalize normalizes the plane equation so the normal has unit length.
func (p *Plane) Normalize() {
	l := p.Normal.Len()
	if l == 0 {
		return
	}
	p.Normal = p.Normal.Scale(1.0 / l)
	p.D /= l
}

// DistanceToPoint returns the signed distance from the plane to a point.
// Positive = in front (same side as normal), negative = behind.
func (p Plane) DistanceToPoint(point math3d.Vec3) float64 {
	return p.Normal.Dot(point) + p.D
}

// Frustum represents the 6 planes of a view frustum.
// Planes are ordered: Left, Right, Bottom, Top, Near, Far.
// Each plane's normal points inward.
type Frustum struct {
	Planes [6]Plane
}

// FrustumPlane indices.
const (
	FrustumLeft = iota
	FrustumRight
	FrustumBottom
	FrustumTop
	FrustumNear
	FrustumFar
)

// NewFrustumFromMatrix extracts frustum planes from a view-projection matrix
// with the Gribb/Hartmann method.
func NewFrustumFromMatrix(m math3d.Mat4) Frustum {
	var f Frustum

	// Row i, column j of the column-major matrix is m[i + j*4].
	row := func(i int) (math3d.Vec3, float64) {
		return math3d.V3(m[i], m[i+4], m[i+8]), m[i+12]
	}
	r0, d0 := row(0)
	r1, d1 := row(1)
	r2, d2 := row(2)
	r3, d3 := row(3)

	f.Planes[FrustumLeft] = Plane{Normal: r3.Add(r0), D: d3 + d0}
	f.Planes[FrustumRight] = Plane{Normal: r3.Sub(r0), D: d3 - d0}
	f.Planes[FrustumBottom] = Plane{Normal: r3.Add(r1), D: d3 + d1}
	f.Planes[FrustumTop] = Plane{Normal: r3.Sub(r1), D: d3 - d1}
	f.Planes[FrustumNear] = Plane{Normal: r3.Add(r2), D: d3 + d2}
	f.Planes[FrustumFar] = Plane{Normal: r3.Sub(r2), D: d3 - d2}

	for i := range f.Planes {
		f.Planes[i].Normalize()
	}
	return f
}

// IntersectsAABB reports whether any part of box may be inside the
// frustum. It tests the corner furthest along each plane normal, so it
// can report boxes near frustum corners as visible. Empty boxes are never
// visible.
func (f Frustum) IntersectsAABB(box math3d.AABB) bool {
	if box.IsEmpty() {
		return false
	}
	for i := range f.Planes {
		plane := f.Planes[i]
		pVertex := math3d.V3(
			selectComponent(plane.Normal.X >= 0, box.Max.X, box.Min.X),
			selectComponent(plane.Normal.Y >= 0, box.Max.Y, box.Min.Y),
			selectComponent(plane.Normal.Z >= 0, box.Max.Z, box.Min.Z),
		)
		if plane.DistanceToPoint(pVertex) < 0 {
			return false
		}
	}
	return true
}

// ContainsPoint tests if a point is inside the frustum.
func (f Frustum) ContainsPoint(p math3d.Vec3) bool {
	for i := range f.Planes {
		if f.Planes[i].DistanceToPoint(p) < 0 {
			return false
		}
	}
	return true
}

func selectComponent(cond bool, a, b float64) float64 {
	if cond {
		return a
	}
	return b
}
