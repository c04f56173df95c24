package loader

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/taigrr/brickview/pkg/math3d"
	"github.com/taigrr/brickview/pkg/parts"
	"github.com/taigrr/brickview/pkg/scene"
)

// encodeTriangleGLB returns a GLB holding one red triangle in the XY
// plane, translated by offset.
func encodeTriangleGLB(t *testing.T, offset [3]float64) []byte {
	t.Helper()
	doc := gltf.NewDocument()
	pos := modeler.WritePosition(doc, [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}})
	idx := modeler.WriteIndices(doc, []uint16{0, 1, 2})
	doc.Materials = []*gltf.Material{{
		Name: "red",
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &[4]float64{1, 0, 0, 1},
			MetallicFactor:  gltf.Float(0),
		},
	}}
	doc.Meshes = []*gltf.Mesh{{
		Name: "tri",
		Primitives: []*gltf.Primitive{{
			Indices:    gltf.Index(idx),
			Attributes: gltf.PrimitiveAttributes{gltf.POSITION: pos},
			Material:   gltf.Index(0),
		}},
	}}
	doc.Nodes = []*gltf.Node{{
		Name:        "brick",
		Mesh:        gltf.Index(0),
		Translation: offset,
		Rotation:    [4]float64{0, 0, 0, 1},
		Scale:       [3]float64{1, 1, 1},
	}}
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, 0)

	var buf bytes.Buffer
	enc := gltf.NewEncoder(&buf)
	enc.AsBinary = true
	if err := enc.Encode(doc); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestGLBBackend(t *testing.T) {
	data := encodeTriangleGLB(t, [3]float64{10, 0, 0})
	if !bytes.HasPrefix(data, glbMagic) {
		t.Fatal("encoded data lacks GLB magic")
	}

	root, err := settle(context.Background(), GLBBackend{}, Request{Name: "tri.glb", Data: data})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	defer scene.Dispose(root)

	if len(root.Children) != 1 {
		t.Fatalf("children = %d, want 1", len(root.Children))
	}
	part := root.Children[0]
	if part.Name != "brick" || len(part.Children) != 1 {
		t.Fatalf("unexpected part %q with %d meshes", part.Name, len(part.Children))
	}
	mesh := part.Children[0]
	if mesh.Geometry.PrimitiveCount() != 1 {
		t.Errorf("triangles = %d, want 1", mesh.Geometry.PrimitiveCount())
	}
	if c := mesh.Material.Colour; c.R != 255 || c.G != 0 || c.B != 0 {
		t.Errorf("colour = %v, want red", c)
	}

	// After the upright flip the model is back in glTF orientation.
	scene.Normalize(root)
	box := root.Bounds()
	if size := box.Size(); !size.ApproxEqual(math3d.V3(1, 1, 0), 1e-9) {
		t.Errorf("size = %v, want (1, 1, 0)", size)
	}
	var top, bottom math3d.Vec3
	root.Walk(math3d.Identity(), func(n *scene.Node, world math3d.Mat4) bool {
		if n.Geometry != nil {
			bottom = world.MulVec3(n.Geometry.Positions[0])
			top = world.MulVec3(n.Geometry.Positions[2])
		}
		return true
	})
	if top.Y <= bottom.Y {
		t.Errorf("model upside down: top %v, bottom %v", top, bottom)
	}
}

func TestGLBSniffedByContent(t *testing.T) {
	l := New(parts.Mapper{}, nil)
	data := encodeTriangleGLB(t, [3]float64{})
	if _, ok := l.backendFor(Request{Name: "model", Data: data}).(GLBBackend); !ok {
		t.Error("GLB content without extension not detected")
	}
	if l.backendFor(Request{Name: "model.ldr", Data: []byte("0 x")}) != nil {
		t.Error("LDraw text should use the LDraw build")
	}
}

func TestQuatMatrix(t *testing.T) {
	// 90 degrees about Y.
	s := math.Sqrt(0.5)
	m := quatMatrix([4]float64{0, s, 0, s})
	if !m.ApproxEqual(math3d.RotateY(math.Pi/2), 1e-9) {
		t.Errorf("quatMatrix = %v", m)
	}
	if quatMatrix([4]float64{}) != math3d.Identity() {
		t.Error("zero quaternion should give identity")
	}
}
