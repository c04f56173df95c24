package scene

import (
	"math"

	"github.com/taigrr/brickview/pkg/math3d"
)

// BoundingMetrics describes a normalized model's extent.
type BoundingMetrics struct {
	Center   math3d.Vec3 // World center before recentering
	Size     math3d.Vec3
	Diagonal float64 // Length of Size
}

// Degenerate reports whether the metrics cannot be used to place a camera.
func (b BoundingMetrics) Degenerate() bool {
	return b.Diagonal <= 0 || math.IsNaN(b.Diagonal) || math.IsInf(b.Diagonal, 0)
}

// Normalize turns an LDraw-authored graph (Y pointing down) upright by
// rotating the root 180 degrees about X, then translates the root so the
// bounding box center sits at the origin. An empty or non-finite box
// leaves the position untouched. Calling Normalize again on the same root
// gives the same result.
func Normalize(root *Node) BoundingMetrics {
	if root == nil {
		return BoundingMetrics{}
	}
	root.Transform.Rotation = math3d.RotateX(math.Pi)
	root.Transform.Position = math3d.Zero3()

	box := root.Bounds()
	if box.IsEmpty() {
		return BoundingMetrics{}
	}
	center, size := box.Center(), box.Size()
	if !center.IsFinite() || !size.IsFinite() {
		return BoundingMetrics{}
	}

	root.Transform.Position = center.Negate()
	return BoundingMetrics{
		Center:   center,
		Size:     size,
		Diagonal: size.Len(),
	}
}
