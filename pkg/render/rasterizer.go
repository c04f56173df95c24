package render

import (
	"image/color"
	"math"

	"github.com/taigrr/brickview/pkg/math3d"
	"github.com/taigrr/brickview/pkg/scene"
)

// lineBias lets lines win depth ties against the faces they outline.
const lineBias = 1.002

// Rasterizer draws scene graphs into a framebuffer. Faces are drawn from
// both sides with flat lighting; the depth buffer holds 1/w, so larger
// values are closer.
type Rasterizer struct {
	camera       *Camera
	fb           *Framebuffer
	zbuffer      []float64
	frustum      Frustum
	frustumDirty bool

	// LightDir points from the scene towards the light.
	LightDir math3d.Vec3
	Stats    Stats
}

// Stats counts the work done by the last DrawScene call.
type Stats struct {
	NodesTested int // Geometry nodes tested against the frustum
	NodesCulled int // Geometry nodes outside the frustum
	Triangles   int
	Lines       int
}

type drawItem struct {
	geometry *scene.Geometry
	material *scene.Material
	world    math3d.Mat4
}

// NewRasterizer creates a new rasterizer.
func NewRasterizer(camera *Camera, fb *Framebuffer) *Rasterizer {
	r := &Rasterizer{
		camera:       camera,
		fb:           fb,
		frustumDirty: true,
		LightDir:     math3d.V3(200, 300, 200).Normalize(),
	}
	r.Resize()
	return r
}

// Resize resizes the depth buffer to match the framebuffer.
func (r *Rasterizer) Resize() {
	if r.fb == nil {
		r.zbuffer = nil
		return
	}
	r.zbuffer = make([]float64, r.fb.Width*r.fb.Height)
}

// Width returns the framebuffer width.
func (r *Rasterizer) Width() int {
	if r.fb == nil {
		return 0
	}
	return r.fb.Width
}

// Height returns the framebuffer height.
func (r *Rasterizer) Height() int {
	if r.fb == nil {
		return 0
	}
	return r.fb.Height
}

// ClearDepth clears the depth buffer (call before each frame).
func (r *Rasterizer) ClearDepth() {
	clear(r.zbuffer)
}

// InvalidateFrustum marks the frustum as needing recalculation.
// Call this when the camera moves.
func (r *Rasterizer) InvalidateFrustum() {
	r.frustumDirty = true
}

// IsVisible tests if a world-space box is inside the view frustum.
func (r *Rasterizer) IsVisible(worldBounds math3d.AABB) bool {
	if r.frustumDirty {
		r.frustum = r.camera.Frustum()
		r.frustumDirty = false
	}
	return r.frustum.IntersectsAABB(worldBounds)
}

// DrawScene draws every visible node under root. A hidden node hides its
// whole subtree. Opaque faces are drawn first, then lines, then
// transparent faces blended over the result.
func (r *Rasterizer) DrawScene(root *scene.Node) {
	r.Stats = Stats{}
	r.InvalidateFrustum()

	var lines, transparent []drawItem
	root.Walk(math3d.Identity(), func(n *scene.Node, world math3d.Mat4) bool {
		if !n.Visible {
			return false
		}
		g := n.Geometry
		if g == nil || g.Disposed() || n.Material == nil {
			return true
		}
		r.Stats.NodesTested++
		if !r.IsVisible(g.Bounds().Transform(world)) {
			r.Stats.NodesCulled++
			return true
		}

		item := drawItem{geometry: g, material: n.Material, world: world}
		switch {
		case g.Kind != scene.GeometryTriangles || n.Material.Kind == scene.MaterialWireframe:
			lines = append(lines, item)
		case n.Material.Transparent():
			transparent = append(transparent, item)
		default:
			r.drawSurface(item, false)
		}
		return true
	})

	for _, item := range lines {
		r.drawLines(item)
	}
	for _, item := range transparent {
		r.drawSurface(item, true)
	}
}

// drawSurface draws filled, flat-lit triangles.
func (r *Rasterizer) drawSurface(item drawItem, blend bool) {
	pos := item.geometry.Positions
	base := item.material.Colour
	for i := 0; i+2 < len(pos); i += 3 {
		v0 := item.world.MulVec3(pos[i])
		v1 := item.world.MulVec3(pos[i+1])
		v2 := item.world.MulVec3(pos[i+2])

		normal := v1.Sub(v0).Cross(v2.Sub(v0)).Normalize()
		intensity := 0.35 + 0.65*math.Abs(normal.Dot(r.LightDir))
		r.rasterTriangle([3]math3d.Vec3{v0, v1, v2}, shade(base, intensity), blend)
	}
}

// drawLines draws edges, conditional lines and wireframe outlines.
func (r *Rasterizer) drawLines(item drawItem) {
	g := item.geometry
	c := item.material.Colour
	w := item.world

	switch g.Kind {
	case scene.GeometryTriangles:
		for i := 0; i+2 < len(g.Positions); i += 3 {
			v0, v1, v2 := w.MulVec3(g.Positions[i]), w.MulVec3(g.Positions[i+1]), w.MulVec3(g.Positions[i+2])
			r.drawLine3D(v0, v1, c)
			r.drawLine3D(v1, v2, c)
			r.drawLine3D(v2, v0, c)
		}
	case scene.GeometryLines:
		for i := 0; i+1 < len(g.Positions); i += 2 {
			r.drawLine3D(w.MulVec3(g.Positions[i]), w.MulVec3(g.Positions[i+1]), c)
		}
	case scene.GeometryConditionalLines:
		for i := 0; i+1 < len(g.Positions) && i+1 < len(g.Controls); i += 2 {
			a, b := w.MulVec3(g.Positions[i]), w.MulVec3(g.Positions[i+1])
			if r.silhouette(a, b, w.MulVec3(g.Controls[i]), w.MulVec3(g.Controls[i+1])) {
				r.drawLine3D(a, b, c)
			}
		}
	}
}

// silhouette reports whether a conditional line a-b should be drawn: its
// two control points must project to the same side of it.
func (r *Rasterizer) silhouette(a, b, c0, c1 math3d.Vec3) bool {
	sa, okA := r.project(a)
	sb, okB := r.project(b)
	s0, ok0 := r.project(c0)
	s1, ok1 := r.project(c1)
	if !okA || !okB || !ok0 || !ok1 {
		return false
	}
	edge := math3d.V2(sb.X-sa.X, sb.Y-sa.Y)
	d0 := edge.Cross(math3d.V2(s0.X-sa.X, s0.Y-sa.Y))
	d1 := edge.Cross(math3d.V2(s1.X-sa.X, s1.Y-sa.Y))
	return d0*d1 > 0
}

// screenVertex holds a vertex transformed to screen space.
type screenVertex struct {
	X, Y float64 // Screen coordinates
	InvW float64 // 1/w, linear in screen space
}

// project maps a world point to the screen. Points closer than the near
// plane are rejected.
func (r *Rasterizer) project(p math3d.Vec3) (screenVertex, bool) {
	clip := r.camera.ViewProjectionMatrix().MulVec4(math3d.V4FromV3(p, 1))
	if clip.W < r.camera.Near {
		return screenVertex{}, false
	}
	inv := 1 / clip.W
	return screenVertex{
		X:    (clip.X*inv + 1) * 0.5 * float64(r.Width()),
		Y:    (1 - clip.Y*inv) * 0.5 * float64(r.Height()), // Y flipped
		InvW: inv,
	}, true
}

// rasterTriangle fills a triangle. Blended triangles are mixed with the
// existing pixels and do not write depth.
func (r *Rasterizer) rasterTriangle(p [3]math3d.Vec3, c color.RGBA, blend bool) {
	var sv [3]screenVertex
	for i := range 3 {
		v, ok := r.project(p[i])
		if !ok {
			return
		}
		sv[i] = v
	}

	area := math3d.V2(sv[1].X-sv[0].X, sv[1].Y-sv[0].Y).Cross(math3d.V2(sv[2].X-sv[0].X, sv[2].Y-sv[0].Y))
	if area == 0 {
		return
	}
	r.Stats.Triangles++

	minX := int(math.Max(0, math.Floor(min3(sv[0].X, sv[1].X, sv[2].X))))
	maxX := int(math.Min(float64(r.Width()-1), math.Ceil(max3(sv[0].X, sv[1].X, sv[2].X))))
	minY := int(math.Max(0, math.Floor(min3(sv[0].Y, sv[1].Y, sv[2].Y))))
	maxY := int(math.Min(float64(r.Height()-1), math.Ceil(max3(sv[0].Y, sv[1].Y, sv[2].Y))))

	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			px, py := float64(x)+0.5, float64(y)+0.5
			bc := barycentric(sv[0].X, sv[0].Y, sv[1].X, sv[1].Y, sv[2].X, sv[2].Y, px, py)
			if bc.X < 0 || bc.Y < 0 || bc.Z < 0 {
				continue
			}

			depth := bc.X*sv[0].InvW + bc.Y*sv[1].InvW + bc.Z*sv[2].InvW
			idx := y*r.fb.Width + x
			if depth <= r.zbuffer[idx] {
				continue
			}
			if blend {
				r.fb.Pixels[idx] = mix(r.fb.Pixels[idx], c)
				continue
			}
			r.zbuffer[idx] = depth
			r.fb.Pixels[idx] = c
		}
	}
}

// drawLine3D draws a depth-tested line. Lines do not write depth.
func (r *Rasterizer) drawLine3D(a, b math3d.Vec3, c color.RGBA) {
	sa, okA := r.project(a)
	sb, okB := r.project(b)
	if !okA || !okB {
		return
	}
	r.Stats.Lines++

	dx, dy := sb.X-sa.X, sb.Y-sa.Y
	steps := int(math.Ceil(math.Max(math.Abs(dx), math.Abs(dy))))
	if steps == 0 {
		steps = 1
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := int(sa.X + dx*t)
		y := int(sa.Y + dy*t)
		if x < 0 || x >= r.Width() || y < 0 || y >= r.Height() {
			continue
		}
		depth := sa.InvW + (sb.InvW-sa.InvW)*t
		idx := y*r.fb.Width + x
		if depth*lineBias < r.zbuffer[idx] {
			continue
		}
		r.fb.Pixels[idx] = c
	}
}

// barycentric calculates barycentric coordinates for point (px, py) in triangle.
func barycentric(x0, y0, x1, y1, x2, y2, px, py float64) math3d.Vec3 {
	v0x, v0y := x2-x0, y2-y0
	v1x, v1y := x1-x0, y1-y0
	v2x, v2y := px-x0, py-y0

	dot00 := v0x*v0x + v0y*v0y
	dot01 := v0x*v1x + v0y*v1y
	dot02 := v0x*v2x + v0y*v2y
	dot11 := v1x*v1x + v1y*v1y
	dot12 := v1x*v2x + v1y*v2y

	invDenom := 1.0 / (dot00*dot11 - dot01*dot01)
	u := (dot11*dot02 - dot01*dot12) * invDenom
	v := (dot00*dot12 - dot01*dot02) * invDenom

	return math3d.V3(1-u-v, v, u)
}

func shade(c color.RGBA, intensity float64) color.RGBA {
	return color.RGBA{
		R: uint8(math.Min(255, float64(c.R)*intensity)),
		G: uint8(math.Min(255, float64(c.G)*intensity)),
		B: uint8(math.Min(255, float64(c.B)*intensity)),
		A: c.A,
	}
}

// mix blends src over dst by src's alpha.
func mix(dst, src color.RGBA) color.RGBA {
	a := float64(src.A) / 255
	blend := func(d, s uint8) uint8 {
		return uint8(float64(s)*a + float64(d)*(1-a))
	}
	return color.RGBA{R: blend(dst.R, src.R), G: blend(dst.G, src.G), B: blend(dst.B, src.B), A: 255}
}

func min3(a, b, c float64) float64 {
	return math.Min(a, math.Min(b, c))
}

func max3(a, b, c float64) float64 {
	return math.Max(a, math.Max(b, c))
}
