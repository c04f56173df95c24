// Package viewport places the camera over a model, applies assembly step
// visibility, and drives the render loop.
package viewport

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/harmonica"
	"go.uber.org/zap"

	"github.com/taigrr/brickview/pkg/math3d"
	"github.com/taigrr/brickview/pkg/render"
	"github.com/taigrr/brickview/pkg/scene"
	"github.com/taigrr/brickview/pkg/steps"
)

// Defaults used when Options leaves a field unset.
const (
	DefaultBaseMultiplier = 1.5
	DefaultFPS            = 30
	DefaultFOV            = 45.0 // Degrees
)

// Far clip distance for every model size.
const farPlane = 100000

// Options configures a Controller.
type Options struct {
	BaseMultiplier float64 // Camera distance per unit of model diagonal
	MinZoom        float64
	MaxZoom        float64
	FPS            int
	FOV            float64 // Vertical field of view in degrees
	Logger         *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.BaseMultiplier <= 0 {
		o.BaseMultiplier = DefaultBaseMultiplier
	}
	if o.FPS <= 0 {
		o.FPS = DefaultFPS
	}
	if o.FOV <= 0 || o.FOV >= 180 {
		o.FOV = DefaultFOV
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Controller owns the camera and the displayed scene. The model root and
// its layers belong to the controller while they are displayed; callers
// get the previous root back from SetModel and are responsible for
// disposing it.
type Controller struct {
	opts Options
	log  *zap.Logger
	zoom *Zoom

	pinching atomic.Bool

	mu       sync.Mutex
	camera   *render.Camera
	orbit    *Orbit
	spring   harmonica.Spring
	distance float64
	distVel  float64
	placed   bool

	root     *scene.Node
	metrics  scene.BoundingMetrics
	layers   []steps.Layer
	stepMode bool
	step     int
	failed   bool

	neutral, broken *scene.Node
	placeholderSize scene.BoundingMetrics
}

// New creates a controller showing the neutral placeholder.
func New(opts Options) *Controller {
	opts = opts.withDefaults()
	c := &Controller{
		opts:   opts,
		log:    opts.Logger,
		zoom:   NewZoom(opts.MinZoom, opts.MaxZoom),
		camera: render.NewCamera(),
		orbit:  NewOrbit(opts.FPS),
		spring: harmonica.NewSpring(harmonica.FPS(opts.FPS), 6.0, 1.0),
	}
	c.camera.SetFOV(opts.FOV * math.Pi / 180)
	c.neutral = newPlaceholder("placeholder", render.ColorNeutral)
	c.broken = newPlaceholder("could not load", render.ColorError)
	c.placeholderSize = scene.Normalize(c.neutral)
	scene.Normalize(c.broken)
	return c
}

// Zoom returns the zoom state fed by pinch gestures.
func (c *Controller) Zoom() *Zoom {
	return c.zoom
}

// SetModel displays root with its metrics and step layers and returns the
// previously displayed root, if any. A nil root returns to the
// placeholder. The camera jumps to the new model's distance.
func (c *Controller) SetModel(root *scene.Node, metrics scene.BoundingMetrics, layers []steps.Layer) *scene.Node {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.root
	c.root = root
	c.metrics = metrics
	c.layers = layers
	c.failed = false
	c.placed = false
	c.applySteps()

	if root != nil {
		c.log.Debug("model displayed",
			zap.String("name", root.Name),
			zap.Int("parts", len(root.Children)),
			zap.Int("layers", len(layers)),
			zap.Float64("diagonal", metrics.Diagonal))
	}
	return prev
}

// ShowError reports a failed load. A displayed model stays in place;
// without one the error placeholder is shown.
func (c *Controller) ShowError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.root != nil {
		return
	}
	c.failed = true
	c.placed = false
}

// Model returns the displayed root, or nil while a placeholder is shown.
func (c *Controller) Model() *scene.Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.root
}

// Subject returns the node currently rendered: the model or a
// placeholder. It is never nil.
func (c *Controller) Subject() *scene.Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subject()
}

func (c *Controller) subject() *scene.Node {
	switch {
	case c.root != nil:
		return c.root
	case c.failed:
		return c.broken
	default:
		return c.neutral
	}
}

func (c *Controller) subjectMetrics() scene.BoundingMetrics {
	if c.root != nil {
		return c.metrics
	}
	return c.placeholderSize
}

// SetStepMode turns assembly step mode on or off.
func (c *Controller) SetStepMode(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stepMode = on
	c.applySteps()
}

// SetStep sets the 1-based step to show. Values outside
// [0, StepCount] are clamped when visibility is applied.
func (c *Controller) SetStep(step int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = step
	c.applySteps()
}

// StepCount returns the number of layers of the displayed model.
func (c *Controller) StepCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.layers)
}

func (c *Controller) applySteps() {
	steps.Apply(c.root, c.layers, c.stepMode, c.step)
}

// Pinch feeds the cumulative scale of the current pinch gesture. The
// first call after PinchEnd starts a new gesture. It never blocks on the
// render loop.
func (c *Controller) Pinch(scale float64) {
	if c.pinching.CompareAndSwap(false, true) {
		c.zoom.Begin()
	}
	c.zoom.Scale(scale)
}

// PinchEnd ends the current pinch gesture.
func (c *Controller) PinchEnd() {
	c.pinching.Store(false)
}

// Drag rotates the view around the origin. Deltas are in radians and keep
// turning with decaying speed after the drag stops.
func (c *Controller) Drag(dYaw, dPitch float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orbit.Impulse(dYaw, dPitch)
}

// ResetView clears the orbit rotation and the zoom.
func (c *Controller) ResetView() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orbit.Reset()
	c.zoom.Set(1)
}

// TargetDistance returns the camera distance for the current subject and
// zoom: diagonal * BaseMultiplier / zoom. It reports false when the
// subject's size cannot place a camera.
func (c *Controller) TargetDistance() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.targetDistance()
}

func (c *Controller) targetDistance() (float64, bool) {
	m := c.subjectMetrics()
	if m.Degenerate() {
		return 0, false
	}
	return m.Diagonal * c.opts.BaseMultiplier / c.zoom.Value(), true
}

// Frame advances orbit inertia and distance easing by one frame and
// places the camera.
func (c *Controller) Frame() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frame()
}

func (c *Controller) frame() {
	c.orbit.Update()

	target, ok := c.targetDistance()
	if !ok {
		return
	}
	if !c.placed {
		c.distance, c.distVel, c.placed = target, 0, true
	} else {
		c.distance, c.distVel = c.spring.Update(c.distance, c.distVel, target)
	}

	x, y, z := c.orbit.Direction()
	c.camera.SetTarget(math3d.Zero3())
	c.camera.SetPosition(math3d.V3(x, y, z).Scale(c.distance))
	c.camera.SetClipPlanes(math.Min(1, c.distance/10), farPlane)
}

// CameraState returns a copy of the camera as last placed.
func (c *Controller) CameraState() render.Camera {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.camera
}

// NewRasterizer returns a rasterizer that draws through the controller's
// camera into fb.
func (c *Controller) NewRasterizer(fb *render.Framebuffer) *render.Rasterizer {
	return render.NewRasterizer(c.camera, fb)
}

// Draw advances one frame and renders the subject into fb with r, which
// must come from NewRasterizer.
func (c *Controller) Draw(r *render.Rasterizer, fb *render.Framebuffer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if fb.Height > 0 {
		c.camera.SetAspectRatio(float64(fb.Width) / float64(fb.Height))
	}
	c.frame()

	fb.Clear(render.ColorBackground)
	r.ClearDepth()
	r.DrawScene(c.subject())
}

// Close releases the placeholder resources. The displayed model is left
// to its owner.
func (c *Controller) Close() {
	scene.Dispose(c.neutral)
	scene.Dispose(c.broken)
}

// newPlaceholder returns a 20 LDU wireframe cube centered on the origin.
func newPlaceholder(name string, c render.Color) *scene.Node {
	const h = 10
	corner := func(i int) math3d.Vec3 {
		v := math3d.V3(-h, -h, -h)
		if i&1 != 0 {
			v.X = h
		}
		if i&2 != 0 {
			v.Y = h
		}
		if i&4 != 0 {
			v.Z = h
		}
		return v
	}
	var edges []math3d.Vec3
	for i := range 8 {
		for _, bit := range []int{1, 2, 4} {
			if i&bit == 0 {
				edges = append(edges, corner(i), corner(i|bit))
			}
		}
	}

	root := scene.NewNode(name)
	g := scene.NewGeometry(scene.GeometryLines, edges, nil)
	root.Add(scene.NewMesh(name+" box", g, scene.NewMaterial(scene.MaterialWireframe, name, c, -1)))
	return root
}
