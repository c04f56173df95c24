package scene

import (
	"image/color"
	"sync/atomic"
)

// MaterialKind selects how a material is drawn.
type MaterialKind int

// Material kinds.
const (
	MaterialSurface         MaterialKind = iota
	MaterialEdge                         // Outline lines
	MaterialConditionalLine              // Lines drawn only at silhouettes
	MaterialWireframe                    // Placeholder volumes
)

// Material describes the appearance of a geometry.
type Material struct {
	Kind   MaterialKind
	Name   string
	Colour color.RGBA
	Code   int // LDraw colour code, -1 when not from LDraw

	disposed atomic.Bool
}

// NewMaterial creates a material.
func NewMaterial(kind MaterialKind, name string, c color.RGBA, code int) *Material {
	liveMaterials.Add(1)
	return &Material{Kind: kind, Name: name, Colour: c, Code: code}
}

// Transparent reports whether the colour is not fully opaque.
func (m *Material) Transparent() bool {
	return m.Colour.A < 255
}

// Dispose releases the material. Safe to call more than once.
func (m *Material) Dispose() {
	if m == nil || !m.disposed.CompareAndSwap(false, true) {
		return
	}
	liveMaterials.Add(-1)
}

// Disposed reports whether Dispose has been called.
func (m *Material) Disposed() bool {
	return m == nil || m.disposed.Load()
}
