package scene

import (
	"sync/atomic"

	"github.com/taigrr/brickview/pkg/math3d"
)

// GeometryKind selects how positions are interpreted.
type GeometryKind int

// Geometry kinds.
const (
	GeometryTriangles        GeometryKind = iota // 3 positions per triangle
	GeometryLines                                // 2 positions per segment
	GeometryConditionalLines                     // 2 positions + 2 controls per segment
)

func (k GeometryKind) String() string {
	switch k {
	case GeometryTriangles:
		return "triangles"
	case GeometryLines:
		return "lines"
	case GeometryConditionalLines:
		return "conditional-lines"
	default:
		return "unknown"
	}
}

var (
	liveGeometries atomic.Int64
	liveMaterials  atomic.Int64
)

// Stats reports how many geometries and materials have been created and
// not yet disposed. A scene dropped without Dispose shows up here.
func Stats() (geometries, materials int64) {
	return liveGeometries.Load(), liveMaterials.Load()
}

// Geometry holds vertex data for one draw call.
type Geometry struct {
	Kind      GeometryKind
	Positions []math3d.Vec3
	Normals   []math3d.Vec3 // Per position, triangles only
	Controls  []math3d.Vec3 // Conditional lines only

	bounds   math3d.AABB
	disposed atomic.Bool
}

// NewGeometry creates geometry and computes its bounds. Triangle normals
// are computed flat.
func NewGeometry(kind GeometryKind, positions, controls []math3d.Vec3) *Geometry {
	g := &Geometry{
		Kind:      kind,
		Positions: positions,
		Controls:  controls,
		bounds:    math3d.EmptyAABB(),
	}
	for _, p := range positions {
		g.bounds = g.bounds.Extend(p)
	}
	if kind == GeometryTriangles {
		g.calculateNormals()
	}
	liveGeometries.Add(1)
	return g
}

// calculateNormals assigns each triangle's face normal to its vertices.
func (g *Geometry) calculateNormals() {
	g.Normals = make([]math3d.Vec3, len(g.Positions))
	for i := 0; i+2 < len(g.Positions); i += 3 {
		v0, v1, v2 := g.Positions[i], g.Positions[i+1], g.Positions[i+2]
		n := v1.Sub(v0).Cross(v2.Sub(v0)).Normalize()
		g.Normals[i], g.Normals[i+1], g.Normals[i+2] = n, n, n
	}
}

// Bounds returns the local-space bounding box.
func (g *Geometry) Bounds() math3d.AABB {
	return g.bounds
}

// BoundsIn returns the bounding box of the positions transformed by m.
// Transforming every point is tighter than transforming the local box.
func (g *Geometry) BoundsIn(m math3d.Mat4) math3d.AABB {
	box := math3d.EmptyAABB()
	for _, p := range g.Positions {
		box = box.Extend(m.MulVec3(p))
	}
	return box
}

// PrimitiveCount returns the number of triangles or line segments.
func (g *Geometry) PrimitiveCount() int {
	if g.Kind == GeometryTriangles {
		return len(g.Positions) / 3
	}
	return len(g.Positions) / 2
}

// Dispose releases the vertex data. Safe to call more than once.
func (g *Geometry) Dispose() {
	if g == nil || !g.disposed.CompareAndSwap(false, true) {
		return
	}
	g.Positions = nil
	g.Normals = nil
	g.Controls = nil
	g.bounds = math3d.EmptyAABB()
	liveGeometries.Add(-1)
}

// Disposed reports whether Dispose has been called.
func (g *Geometry) Disposed() bool {
	return g == nil || g.disposed.Load()
}
