package viewport

import (
	"math"

	"github.com/charmbracelet/harmonica"
)

// maxElevation keeps the camera off the poles, where the up vector would
// be parallel to the view direction.
const maxElevation = 85 * math.Pi / 180

// Axis tracks position and velocity for one orbit axis. Velocity decays
// to zero through a critically damped spring, so a drag keeps turning the
// model briefly after release.
type Axis struct {
	Position  float64
	Velocity  float64
	velSpring harmonica.Spring
	velAccel  float64
}

// NewAxis creates an axis stepped fps times per second.
func NewAxis(fps int) Axis {
	return Axis{
		velSpring: harmonica.NewSpring(harmonica.FPS(fps), 4.0, 1.0),
	}
}

// Update applies velocity to position and decays velocity toward 0.
func (a *Axis) Update() {
	a.Position += a.Velocity
	a.Velocity, a.velAccel = a.velSpring.Update(a.Velocity, a.velAccel, 0)
}

// Orbit is the rotation of the camera around the origin, relative to the
// default diagonal view.
type Orbit struct {
	Yaw, Pitch Axis
	fps        int
}

// NewOrbit creates an orbit at rest.
func NewOrbit(fps int) *Orbit {
	return &Orbit{
		Yaw:   NewAxis(fps),
		Pitch: NewAxis(fps),
		fps:   fps,
	}
}

// Impulse adds angular velocity in radians per frame.
func (o *Orbit) Impulse(yaw, pitch float64) {
	o.Yaw.Velocity += yaw
	o.Pitch.Velocity += pitch
}

// Update advances one frame and keeps the elevation within range.
func (o *Orbit) Update() {
	o.Yaw.Update()
	o.Pitch.Update()

	lo, hi := -maxElevation-baseElevation, maxElevation-baseElevation
	if o.Pitch.Position < lo || o.Pitch.Position > hi {
		o.Pitch.Position = math.Max(lo, math.Min(hi, o.Pitch.Position))
		o.Pitch.Velocity, o.Pitch.velAccel = 0, 0
	}
}

// Reset returns to the default view.
func (o *Orbit) Reset() {
	o.Yaw = NewAxis(o.fps)
	o.Pitch = NewAxis(o.fps)
}

// Default view direction (1, 1, 1) in spherical form.
var (
	baseYaw       = math.Pi / 4
	baseElevation = math.Asin(1 / math.Sqrt(3))
)

// Direction returns the unit vector from the origin towards the camera.
// At rest it is (1, 1, 1) normalized.
func (o *Orbit) Direction() (x, y, z float64) {
	yaw := baseYaw + o.Yaw.Position
	el := baseElevation + o.Pitch.Position
	return math.Cos(el) * math.Sin(yaw), math.Sin(el), math.Cos(el) * math.Cos(yaw)
}
