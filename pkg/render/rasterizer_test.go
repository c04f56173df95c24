package render

import (
	"bytes"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/taigrr/brickview/pkg/math3d"
	"github.com/taigrr/brickview/pkg/scene"
)

var (
	testRed  = color.RGBA{255, 0, 0, 255}
	testBlue = color.RGBA{0, 0, 255, 255}
)

// createTestRasterizer creates a rasterizer looking at the origin from +Z.
func createTestRasterizer(width, height int) (*Rasterizer, *Framebuffer) {
	fb := NewFramebuffer(width, height)
	camera := NewCamera()
	camera.SetPosition(math3d.V3(0, 0, 10))
	camera.SetTarget(math3d.Zero3())
	camera.SetAspectRatio(float64(width) / float64(height))
	return NewRasterizer(camera, fb), fb
}

// triangleAt returns a mesh node with one triangle covering the origin
// in the plane z.
func triangleAt(name string, z float64, c color.RGBA) *scene.Node {
	g := scene.NewGeometry(scene.GeometryTriangles, []math3d.Vec3{
		math3d.V3(-5, -5, z), math3d.V3(5, -5, z), math3d.V3(0, 5, z),
	}, nil)
	return scene.NewMesh(name, g, scene.NewMaterial(scene.MaterialSurface, name, c, -1))
}

func renderScene(r *Rasterizer, fb *Framebuffer, root *scene.Node) {
	fb.Clear(ColorBackground)
	r.ClearDepth()
	r.DrawScene(root)
}

func TestDrawSceneTriangle(t *testing.T) {
	r, fb := createTestRasterizer(64, 64)
	root := scene.NewNode("root")
	root.Add(triangleAt("red", 0, testRed))

	renderScene(r, fb, root)

	center := fb.GetPixel(32, 32)
	if center == ColorBackground {
		t.Fatal("triangle not drawn at screen center")
	}
	if center.R == 0 || center.G != 0 || center.B != 0 {
		t.Errorf("center pixel = %v, want shaded red", center)
	}
	if fb.GetPixel(0, 0) != ColorBackground {
		t.Error("corner pixel should remain background")
	}
	if r.Stats.Triangles != 1 {
		t.Errorf("Stats.Triangles = %d, want 1", r.Stats.Triangles)
	}
}

func TestDrawSceneDepth(t *testing.T) {
	tests := []struct {
		name  string
		order []*scene.Node
	}{
		{"near first", []*scene.Node{triangleAt("blue", 2, testBlue), triangleAt("red", 0, testRed)}},
		{"far first", []*scene.Node{triangleAt("red", 0, testRed), triangleAt("blue", 2, testBlue)}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, fb := createTestRasterizer(64, 64)
			root := scene.NewNode("root")
			root.Add(tc.order...)

			renderScene(r, fb, root)

			if px := fb.GetPixel(32, 32); px.B == 0 || px.R != 0 {
				t.Errorf("center pixel = %v, want the nearer blue triangle", px)
			}
		})
	}
}

func TestDrawSceneHiddenSubtree(t *testing.T) {
	r, fb := createTestRasterizer(64, 64)
	root := scene.NewNode("root")
	group := scene.NewNode("group")
	group.Add(triangleAt("red", 0, testRed))
	group.Visible = false
	root.Add(group)

	renderScene(r, fb, root)

	if px := fb.GetPixel(32, 32); px != ColorBackground {
		t.Errorf("hidden subtree drawn: center pixel = %v", px)
	}
	if r.Stats.NodesTested != 0 {
		t.Errorf("Stats.NodesTested = %d, want 0", r.Stats.NodesTested)
	}
}

func TestDrawSceneFrustumCulling(t *testing.T) {
	r, fb := createTestRasterizer(64, 64)
	root := scene.NewNode("root")
	behind := triangleAt("behind", 0, testRed)
	behind.Transform.Position = math3d.V3(0, 0, 50)
	root.Add(behind, triangleAt("front", 0, testBlue))

	renderScene(r, fb, root)

	if r.Stats.NodesTested != 2 || r.Stats.NodesCulled != 1 {
		t.Errorf("Stats = %+v, want 2 tested and 1 culled", r.Stats)
	}
}

func TestDrawSceneSkipsDisposedGeometry(t *testing.T) {
	r, fb := createTestRasterizer(64, 64)
	root := scene.NewNode("root")
	root.Add(triangleAt("red", 0, testRed))
	scene.Dispose(root)

	renderScene(r, fb, root)

	if px := fb.GetPixel(32, 32); px != ColorBackground {
		t.Errorf("disposed geometry drawn: %v", px)
	}
}

func TestDrawSceneEdgesOverFaces(t *testing.T) {
	r, fb := createTestRasterizer(64, 64)
	root := scene.NewNode("root")
	edge := scene.NewGeometry(scene.GeometryLines, []math3d.Vec3{
		math3d.V3(-3, 0, 0), math3d.V3(3, 0, 0),
	}, nil)
	black := color.RGBA{0, 0, 0, 255}
	root.Add(
		triangleAt("red", 0, testRed),
		scene.NewMesh("edge", edge, scene.NewMaterial(scene.MaterialEdge, "edge", black, -1)),
	)

	renderScene(r, fb, root)

	if px := fb.GetPixel(32, 32); px != black {
		t.Errorf("edge pixel = %v, want %v", px, black)
	}
}

func TestDrawSceneConditionalLines(t *testing.T) {
	a, b := math3d.V3(-5, 0, 0), math3d.V3(5, 0, 0)

	tests := []struct {
		name     string
		controls []math3d.Vec3
		drawn    bool
	}{
		{"same side", []math3d.Vec3{math3d.V3(0, 3, 0), math3d.V3(1, 4, 0)}, true},
		{"opposite sides", []math3d.Vec3{math3d.V3(0, 3, 0), math3d.V3(0, -3, 0)}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, fb := createTestRasterizer(64, 64)
			root := scene.NewNode("root")
			g := scene.NewGeometry(scene.GeometryConditionalLines, []math3d.Vec3{a, b}, tc.controls)
			root.Add(scene.NewMesh("cond", g, scene.NewMaterial(scene.MaterialConditionalLine, "cond", testBlue, -1)))

			renderScene(r, fb, root)

			if drawn := r.Stats.Lines == 1; drawn != tc.drawn {
				t.Errorf("drawn = %v, want %v", drawn, tc.drawn)
			}
		})
	}
}

func TestDrawSceneWireframe(t *testing.T) {
	r, fb := createTestRasterizer(64, 64)
	root := scene.NewNode("root")
	node := triangleAt("box", 0, ColorNeutral)
	node.Material.Kind = scene.MaterialWireframe
	root.Add(node)

	renderScene(r, fb, root)

	if r.Stats.Triangles != 0 || r.Stats.Lines != 3 {
		t.Errorf("Stats = %+v, want 3 lines and no filled triangles", r.Stats)
	}
	if px := fb.GetPixel(32, 32); px != ColorBackground {
		t.Errorf("wireframe interior filled: %v", px)
	}
}

func TestDrawSceneTransparent(t *testing.T) {
	r, fb := createTestRasterizer(64, 64)
	root := scene.NewNode("root")
	root.Add(triangleAt("glass", 0, color.RGBA{255, 0, 0, 128}))

	renderScene(r, fb, root)

	px := fb.GetPixel(32, 32)
	if px == ColorBackground || px.B == 0 {
		t.Errorf("center pixel = %v, want a blend of red and background", px)
	}
}

func TestFramebufferPNG(t *testing.T) {
	fb := NewFramebuffer(8, 4)
	fb.Clear(ColorBackground)
	fb.SetPixel(1, 1, testRed)

	var buf bytes.Buffer
	if err := fb.WritePNG(&buf); err != nil {
		t.Fatalf("WritePNG: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 4 {
		t.Errorf("bounds = %v, want 8x4", b)
	}
	if got := color.RGBAModel.Convert(img.At(1, 1)); got != testRed {
		t.Errorf("pixel = %v, want %v", got, testRed)
	}

	path := filepath.Join(t.TempDir(), "frame.png")
	if err := fb.SavePNG(path); err != nil {
		t.Fatalf("SavePNG: %v", err)
	}
}

func BenchmarkDrawScene(b *testing.B) {
	r, fb := createTestRasterizer(160, 90)
	root := scene.NewNode("root")
	for i := range 20 {
		n := triangleAt("tri", float64(i)*0.1, testRed)
		n.Transform.Position = math3d.V3(float64(i%5)-2, float64(i/5)-2, 0)
		root.Add(n)
	}

	for b.Loop() {
		renderScene(r, fb, root)
	}
}
