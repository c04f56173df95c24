package scene

import (
	"image/color"
	"math"
	"testing"

	"github.com/taigrr/brickview/pkg/math3d"
)

// box returns a triangle geometry spanning min..max (two triangles are
// enough to give it the right bounds).
func box(min, max math3d.Vec3) *Geometry {
	return NewGeometry(GeometryTriangles, []math3d.Vec3{
		min, math3d.V3(max.X, min.Y, min.Z), math3d.V3(max.X, max.Y, min.Z),
		min, math3d.V3(max.X, max.Y, max.Z), max,
	}, nil)
}

func brick(name string, pos math3d.Vec3) *Node {
	part := NewNode(name)
	part.Transform.Position = pos
	part.Add(NewMesh(name+"/surface", box(math3d.V3(-20, -24, -10), math3d.V3(20, 0, 10)),
		NewMaterial(MaterialSurface, "red", color.RGBA{R: 180, A: 255}, 4)))
	return part
}

func TestDispose(t *testing.T) {
	g0, m0 := Stats()

	root := NewNode("root")
	root.Add(brick("a", math3d.Zero3()), brick("b", math3d.V3(0, -24, 0)))
	// Partially initialized nodes
	root.Add(&Node{Name: "empty"}, nil)
	root.Children[0].Add(&Node{Name: "geometry only", Geometry: box(math3d.Zero3(), math3d.One3())})

	g1, m1 := Stats()
	if g1-g0 != 3 || m1-m0 != 2 {
		t.Fatalf("expected 3 geometries and 2 materials live, got %d/%d", g1-g0, m1-m0)
	}

	Dispose(root)
	Dispose(root)
	Dispose(nil)

	g2, m2 := Stats()
	if g2 != g0 || m2 != m0 {
		t.Errorf("expected all resources released, got %d/%d live", g2-g0, m2-m0)
	}
	if !root.Children[0].Children[0].Geometry.Disposed() {
		t.Error("geometry should report disposed")
	}
}

func TestDispose_SharedMaterial(t *testing.T) {
	_, m0 := Stats()
	mat := NewMaterial(MaterialEdge, "edge", color.RGBA{A: 255}, 24)
	root := NewNode("root")
	root.Add(NewMesh("a", nil, mat), NewMesh("b", nil, mat))

	Dispose(root)
	if _, m := Stats(); m != m0 {
		t.Errorf("shared material must be released exactly once, got %d live", m-m0)
	}
}

func TestNormalize(t *testing.T) {
	root := NewNode("root")
	// LDraw: Y down, so the upper brick has negative Y.
	root.Add(brick("lower", math3d.V3(100, 0, 50)), brick("upper", math3d.V3(100, -24, 50)))

	metrics := Normalize(root)

	if !metrics.Size.ApproxEqual(math3d.V3(40, 48, 20), 1e-9) {
		t.Errorf("unexpected size %v", metrics.Size)
	}
	want := math.Sqrt(40*40 + 48*48 + 20*20)
	if math.Abs(metrics.Diagonal-want) > 1e-9 {
		t.Errorf("diagonal = %v, want %v", metrics.Diagonal, want)
	}

	after := root.Bounds()
	if !after.Center().ApproxEqual(math3d.Zero3(), 1e-9) {
		t.Errorf("expected centered bounds, got center %v", after.Center())
	}

	// After the flip the upper brick sits above the lower one.
	upper := root.Children[1].BoundsIn(root.LocalMatrix())
	lower := root.Children[0].BoundsIn(root.LocalMatrix())
	if upper.Center().Y <= lower.Center().Y {
		t.Errorf("upper brick should be above lower: %v vs %v", upper.Center().Y, lower.Center().Y)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	root := NewNode("root")
	root.Add(brick("a", math3d.V3(10, -8, 3)))

	first := Normalize(root)
	second := Normalize(root)

	if !first.Size.ApproxEqual(second.Size, 1e-9) || first.Diagonal != second.Diagonal {
		t.Errorf("metrics changed between runs: %+v vs %+v", first, second)
	}
	if !root.Bounds().Center().ApproxEqual(math3d.Zero3(), 1e-9) {
		t.Error("root should stay centered")
	}
}

func TestNormalize_Empty(t *testing.T) {
	root := NewNode("root")
	root.Add(NewNode("no geometry"))

	metrics := Normalize(root)
	if metrics != (BoundingMetrics{}) {
		t.Errorf("expected zero metrics, got %+v", metrics)
	}
	if !metrics.Degenerate() {
		t.Error("zero metrics should be degenerate")
	}
	if !root.Transform.Position.IsFinite() {
		t.Error("position must stay finite")
	}
	if (Normalize(nil) != BoundingMetrics{}) {
		t.Error("nil root should give zero metrics")
	}
}

func TestNormalize_NonFinite(t *testing.T) {
	root := NewNode("root")
	nan := math.NaN()
	root.Add(NewMesh("bad", NewGeometry(GeometryLines, []math3d.Vec3{
		math3d.V3(0, 0, 0), math3d.V3(math.Inf(1), nan, 0),
	}, nil), nil))

	Normalize(root)
	if !root.Transform.Position.IsFinite() {
		t.Errorf("non-finite center must not be applied, got %v", root.Transform.Position)
	}
	Dispose(root)
}

func TestWalk_SkipChildren(t *testing.T) {
	root := NewNode("root")
	a := NewNode("a")
	a.Add(NewNode("a1"))
	root.Add(a, NewNode("b"))

	var visited []string
	root.Walk(math3d.Identity(), func(n *Node, _ math3d.Mat4) bool {
		visited = append(visited, n.Name)
		return n.Name != "a"
	})
	if len(visited) != 3 {
		t.Errorf("expected a1 to be skipped, visited %v", visited)
	}
	if root.Count() != 4 {
		t.Errorf("expected 4 nodes, got %d", root.Count())
	}
	if root.Find("a1") == nil {
		t.Error("Find should locate nested node")
	}
}

func TestLocalMatrix_LDrawPlacement(t *testing.T) {
	n := NewNode("placed")
	m := math3d.FromLDraw(10, 0, 0, 0, 0, 1, 0, 1, 0, -1, 0, 0)
	n.Matrix = &m

	got := n.LocalMatrix().MulVec3(math3d.V3(1, 0, 0))
	if !got.ApproxEqual(math3d.V3(10, 0, -1), 1e-9) {
		t.Errorf("unexpected placement %v", got)
	}
}

func TestGeometryNormals(t *testing.T) {
	g := NewGeometry(GeometryTriangles, []math3d.Vec3{
		math3d.V3(0, 0, 0), math3d.V3(1, 0, 0), math3d.V3(0, 1, 0),
	}, nil)
	defer g.Dispose()

	if !g.Normals[0].ApproxEqual(math3d.V3(0, 0, 1), 1e-9) {
		t.Errorf("expected +Z normal, got %v", g.Normals[0])
	}
	if g.PrimitiveCount() != 1 {
		t.Errorf("expected 1 triangle, got %d", g.PrimitiveCount())
	}
}
