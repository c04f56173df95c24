package viewport

import (
	"math"
	"sync/atomic"
)

// Zoom limits used when Options leaves them unset.
const (
	DefaultMinZoom = 0.3
	DefaultMaxZoom = 5.0
)

// Zoom is the camera zoom factor. The gesture path writes it and the
// render loop reads it, possibly from different goroutines, so the value
// is stored atomically and neither side blocks the other.
type Zoom struct {
	min, max float64
	value    atomic.Uint64 // float64 bits
	start    atomic.Uint64 // value when the current gesture began
}

// NewZoom returns a zoom of 1 clamped to [lo, hi]. Invalid limits fall
// back to the defaults.
func NewZoom(lo, hi float64) *Zoom {
	if !(lo > 0) || math.IsInf(lo, 0) {
		lo = DefaultMinZoom
	}
	if !(hi >= lo) || math.IsInf(hi, 0) {
		hi = math.Max(DefaultMaxZoom, lo)
	}
	z := &Zoom{min: lo, max: hi}
	z.Set(1)
	z.Begin()
	return z
}

// Value returns the current zoom.
func (z *Zoom) Value() float64 {
	return math.Float64frombits(z.value.Load())
}

// Set stores v clamped to the zoom range.
func (z *Zoom) Set(v float64) {
	if math.IsNaN(v) {
		return
	}
	z.value.Store(math.Float64bits(z.clamp(v)))
}

// Begin marks the start of a pinch gesture.
func (z *Zoom) Begin() {
	z.start.Store(z.value.Load())
}

// Scale sets the zoom to the gesture's start value times factor, where
// factor is the cumulative pinch scale. Non-positive or non-finite
// factors are ignored.
func (z *Zoom) Scale(factor float64) float64 {
	if !validFactor(factor) {
		return z.Value()
	}
	start := math.Float64frombits(z.start.Load())
	z.Set(start * factor)
	return z.Value()
}

// Apply multiplies the current zoom by factor.
func (z *Zoom) Apply(factor float64) float64 {
	if !validFactor(factor) {
		return z.Value()
	}
	for {
		old := z.value.Load()
		next := z.clamp(math.Float64frombits(old) * factor)
		if z.value.CompareAndSwap(old, math.Float64bits(next)) {
			return next
		}
	}
}

// Range returns the zoom limits.
func (z *Zoom) Range() (lo, hi float64) {
	return z.min, z.max
}

func (z *Zoom) clamp(v float64) float64 {
	return math.Max(z.min, math.Min(z.max, v))
}

func validFactor(f float64) bool {
	return f > 0 && !math.IsInf(f, 0)
}
