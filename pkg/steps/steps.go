// Package steps derives assembly steps from a model's geometry.
//
// Parts are grouped into horizontal layers by the height of their bounding
// box center, giving a bottom-to-top build order that works even for
// models without STEP meta commands.
package steps

import (
	"sort"

	"github.com/taigrr/brickview/pkg/math3d"
	"github.com/taigrr/brickview/pkg/scene"
)

// DefaultTolerance is the height difference, in LDraw units, within which
// parts share a layer: one third of a 24 LDU brick.
const DefaultTolerance = 8.0

// Layer is a group of top-level parts at a similar height.
type Layer struct {
	Indices []int   // Indices into the root's Children
	Height  float64 // Running mean of member heights
}

// Partition groups the root's top-level children into layers ordered from
// bottom to top. Every child index appears in exactly one layer. Heights
// are measured in world space, so call it after scene.Normalize. A
// non-positive tolerance uses DefaultTolerance.
func Partition(root *scene.Node, tolerance float64) []Layer {
	if root == nil || len(root.Children) == 0 {
		return nil
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	type item struct {
		index  int
		height float64
	}
	rootMatrix := root.LocalMatrix()
	items := make([]item, len(root.Children))
	for i, child := range root.Children {
		items[i] = item{index: i, height: centerHeight(child, rootMatrix)}
	}
	sort.SliceStable(items, func(a, b int) bool {
		return items[a].height < items[b].height
	})

	var layers []Layer
	cur := Layer{Indices: []int{items[0].index}, Height: items[0].height}
	for _, it := range items[1:] {
		if abs(it.height-cur.Height) <= tolerance {
			n := float64(len(cur.Indices))
			cur.Height = (cur.Height*n + it.height) / (n + 1)
			cur.Indices = append(cur.Indices, it.index)
			continue
		}
		layers = append(layers, cur)
		cur = Layer{Indices: []int{it.index}, Height: it.height}
	}
	return append(layers, cur)
}

// centerHeight returns the world Y of the child's bounding box center, or
// of its origin when it has no geometry.
func centerHeight(child *scene.Node, parent math3d.Mat4) float64 {
	if child == nil {
		return 0
	}
	box := child.BoundsIn(parent)
	if box.IsEmpty() {
		return parent.Mul(child.LocalMatrix()).Translation().Y
	}
	c := box.Center()
	if !c.IsFinite() {
		return 0
	}
	return c.Y
}

// Visible returns the visibility of n top-level children. With step mode
// off, or with no layers, everything is visible. Otherwise a child is
// visible when it belongs to one of the first step layers, with step
// clamped to [0, len(layers)].
func Visible(layers []Layer, n int, stepMode bool, step int) []bool {
	vis := make([]bool, n)
	if !stepMode || len(layers) == 0 {
		for i := range vis {
			vis[i] = true
		}
		return vis
	}
	step = max(0, min(step, len(layers)))
	for _, l := range layers[:step] {
		for _, idx := range l.Indices {
			if idx >= 0 && idx < n {
				vis[idx] = true
			}
		}
	}
	return vis
}

// Apply sets Visible on each of root's children according to Visible.
func Apply(root *scene.Node, layers []Layer, stepMode bool, step int) {
	if root == nil {
		return
	}
	vis := Visible(layers, len(root.Children), stepMode, step)
	for i, c := range root.Children {
		if c != nil {
			c.Visible = vis[i]
		}
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
