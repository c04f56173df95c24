package steps

import (
	"image/color"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/taigrr/brickview/pkg/math3d"
	"github.com/taigrr/brickview/pkg/scene"
)

// part returns a top-level node whose geometry is a unit segment centered
// at height y (world Y-up, identity root).
func part(y float64) *scene.Node {
	n := scene.NewNode("part")
	n.Add(scene.NewMesh("lines", scene.NewGeometry(scene.GeometryLines, []math3d.Vec3{
		math3d.V3(0, y-1, 0), math3d.V3(0, y+1, 0),
	}, nil), scene.NewMaterial(scene.MaterialEdge, "edge", color.RGBA{A: 255}, 24)))
	return n
}

func rootWith(heights ...float64) *scene.Node {
	root := scene.NewNode("root")
	for _, h := range heights {
		root.Add(part(h))
	}
	return root
}

func TestPartition(t *testing.T) {
	tests := []struct {
		name    string
		heights []float64
		want    [][]int
	}{
		{"no parts", nil, nil},
		{"single part", []float64{5}, [][]int{{0}}},
		{"same height", []float64{0, 0, 0}, [][]int{{0, 1, 2}}},
		{"stacked bricks", []float64{48, 0, 24}, [][]int{{1}, {2}, {0}}},
		{"within tolerance", []float64{0, 5, 24, 30}, [][]int{{0, 1}, {2, 3}}},
		{"stable order for ties", []float64{10, 0, 10, 0}, [][]int{{1, 3}, {0, 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := rootWith(tt.heights...)
			defer scene.Dispose(root)

			layers := Partition(root, DefaultTolerance)
			if len(layers) != len(tt.want) {
				t.Fatalf("got %d layers, want %d: %+v", len(layers), len(tt.want), layers)
			}
			for i, l := range layers {
				if !slices.Equal(l.Indices, tt.want[i]) {
					t.Errorf("layer %d = %v, want %v", i, l.Indices, tt.want[i])
				}
			}
		})
	}
}

func TestPartition_RunningMean(t *testing.T) {
	// 0 and 8 join (mean 4); 12 is within 8 of the mean and joins; 20 is
	// more than 8 above the new mean of about 6.7 and starts a new layer.
	root := rootWith(0, 8, 12, 20)
	defer scene.Dispose(root)

	layers := Partition(root, 8)
	if len(layers) != 2 {
		t.Fatalf("expected 2 layers, got %+v", layers)
	}
	if !slices.Equal(layers[0].Indices, []int{0, 1, 2}) {
		t.Errorf("unexpected first layer %v", layers[0].Indices)
	}
	if h := layers[0].Height; h < 6.6 || h > 6.7 {
		t.Errorf("expected running mean ~6.67, got %v", h)
	}
}

func TestPartition_Properties(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for trial := range 50 {
		n := r.IntN(40)
		heights := make([]float64, n)
		for i := range heights {
			heights[i] = float64(r.IntN(10)) * 8 * r.Float64() * 3
		}
		root := rootWith(heights...)
		layers := Partition(root, DefaultTolerance)

		seen := make([]int, n)
		for _, l := range layers {
			for _, idx := range l.Indices {
				seen[idx]++
			}
		}
		for i, c := range seen {
			if c != 1 {
				t.Fatalf("trial %d: index %d appears %d times", trial, i, c)
			}
		}
		for i := 1; i < len(layers); i++ {
			if layers[i-1].Height > layers[i].Height {
				t.Fatalf("trial %d: layer %d height %v above layer %d height %v",
					trial, i-1, layers[i-1].Height, i, layers[i].Height)
			}
		}
		scene.Dispose(root)
	}
}

func TestPartition_UsesRootTransform(t *testing.T) {
	// Two LDraw bricks (Y down) flipped upright by Normalize.
	root := rootWith(0, -24)
	defer scene.Dispose(root)
	scene.Normalize(root)

	layers := Partition(root, DefaultTolerance)
	if len(layers) != 2 {
		t.Fatalf("expected 2 layers, got %d", len(layers))
	}
	if layers[0].Indices[0] != 0 {
		t.Errorf("the brick at LDraw y=0 should be built first, got %v", layers[0].Indices)
	}
}

func TestPartition_NodeWithoutGeometry(t *testing.T) {
	root := scene.NewNode("root")
	empty := scene.NewNode("empty")
	empty.Transform.Position = math3d.V3(0, 100, 0)
	root.Add(part(0), empty)
	defer scene.Dispose(root)

	layers := Partition(root, DefaultTolerance)
	if len(layers) != 2 || layers[1].Indices[0] != 1 {
		t.Errorf("empty node should be placed by its origin, got %+v", layers)
	}
}

func TestVisible(t *testing.T) {
	layers := []Layer{{Indices: []int{1}}, {Indices: []int{0, 3}}, {Indices: []int{2}}}

	tests := []struct {
		name     string
		layers   []Layer
		stepMode bool
		step     int
		want     []bool
	}{
		{"step mode off", layers, false, 1, []bool{true, true, true, true}},
		{"step 1", layers, true, 1, []bool{false, true, false, false}},
		{"step 2", layers, true, 2, []bool{true, true, false, true}},
		{"last step shows all", layers, true, 3, []bool{true, true, true, true}},
		{"step above count clamps", layers, true, 99, []bool{true, true, true, true}},
		{"step 0 hides all", layers, true, 0, []bool{false, false, false, false}},
		{"negative step clamps", layers, true, -3, []bool{false, false, false, false}},
		{"no layers shows all", nil, true, 1, []bool{true, true, true, true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Visible(tt.layers, 4, tt.stepMode, tt.step); !slices.Equal(got, tt.want) {
				t.Errorf("Visible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApply_StepModeOff(t *testing.T) {
	root := rootWith(0, 24, 48)
	defer scene.Dispose(root)
	layers := Partition(root, DefaultTolerance)

	Apply(root, layers, true, 1)
	if root.Children[2].Visible {
		t.Fatal("top brick should be hidden at step 1")
	}

	Apply(root, layers, false, 1)
	for i, c := range root.Children {
		if !c.Visible {
			t.Errorf("child %d hidden with step mode off", i)
		}
	}
}

func BenchmarkPartition(b *testing.B) {
	heights := make([]float64, 500)
	for i := range heights {
		heights[i] = float64(i%20) * 24
	}
	root := rootWith(heights...)
	defer scene.Dispose(root)

	for b.Loop() {
		_ = Partition(root, DefaultTolerance)
	}
}
