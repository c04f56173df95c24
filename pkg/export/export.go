// Package export writes displayed scenes to GLB for sharing.
package export

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/taigrr/brickview/pkg/math3d"
	"github.com/taigrr/brickview/pkg/scene"
)

// ErrEmptyScene is returned when nothing visible can be exported.
var ErrEmptyScene = errors.New("no visible geometry to export")

// Generator is written to the asset metadata of exported files.
const Generator = "brickview"

// WriteGLB writes the visible geometry under root to w as binary glTF.
// Each top-level child becomes one glTF node whose mesh has a primitive
// per material, with world transforms baked into the vertices. Lines are
// written as line primitives; conditional lines depend on the view and
// are left out.
func WriteGLB(w io.Writer, root *scene.Node) error {
	doc, err := Document(root)
	if err != nil {
		return err
	}
	enc := gltf.NewEncoder(w)
	enc.AsBinary = true
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode glb: %w", err)
	}
	return nil
}

// SaveGLB writes root to a GLB file at path.
func SaveGLB(path string, root *scene.Node) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteGLB(f, root); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Document builds the glTF document WriteGLB encodes.
func Document(root *scene.Node) (*gltf.Document, error) {
	if root == nil || !root.Visible {
		return nil, ErrEmptyScene
	}
	doc := gltf.NewDocument()
	doc.Asset.Generator = Generator

	w := &writer{doc: doc, materials: make(map[*scene.Material]int)}
	rootMatrix := root.LocalMatrix()
	for _, child := range root.Children {
		w.addPart(child, rootMatrix)
	}
	if len(doc.Meshes) == 0 {
		return nil, ErrEmptyScene
	}
	return doc, nil
}

type writer struct {
	doc       *gltf.Document
	materials map[*scene.Material]int
}

// batch collects the world-space vertices of one material.
type batch struct {
	material  *scene.Material
	mode      gltf.PrimitiveMode
	positions [][3]float32
}

func (w *writer) addPart(part *scene.Node, parent math3d.Mat4) {
	if part == nil {
		return
	}
	var batches []*batch
	byKey := make(map[batchKey]*batch)

	part.Walk(parent, func(n *scene.Node, world math3d.Mat4) bool {
		if !n.Visible {
			return false
		}
		g, m := n.Geometry, n.Material
		if g == nil || m == nil || g.Disposed() {
			return true
		}
		var mode gltf.PrimitiveMode
		switch g.Kind {
		case scene.GeometryTriangles:
			mode = gltf.PrimitiveTriangles
		case scene.GeometryLines:
			mode = gltf.PrimitiveLines
		default:
			return true
		}

		key := batchKey{m, mode}
		b := byKey[key]
		if b == nil {
			b = &batch{material: m, mode: mode}
			byKey[key] = b
			batches = append(batches, b)
		}
		flip := mode == gltf.PrimitiveTriangles && world.Det3() < 0
		b.positions = appendWorld(b.positions, g.Positions, world, flip)
		return true
	})

	var prims []*gltf.Primitive
	for _, b := range batches {
		if len(b.positions) == 0 {
			continue
		}
		prims = append(prims, &gltf.Primitive{
			Mode:       b.mode,
			Attributes: gltf.PrimitiveAttributes{gltf.POSITION: modeler.WritePosition(w.doc, b.positions)},
			Material:   gltf.Index(w.material(b.material)),
		})
	}
	if len(prims) == 0 {
		return
	}

	w.doc.Meshes = append(w.doc.Meshes, &gltf.Mesh{Name: part.Name, Primitives: prims})
	w.doc.Nodes = append(w.doc.Nodes, &gltf.Node{
		Name:     part.Name,
		Mesh:     gltf.Index(len(w.doc.Meshes) - 1),
		Rotation: [4]float64{0, 0, 0, 1},
		Scale:    [3]float64{1, 1, 1},
	})
	w.doc.Scenes[0].Nodes = append(w.doc.Scenes[0].Nodes, len(w.doc.Nodes)-1)
}

type batchKey struct {
	material *scene.Material
	mode     gltf.PrimitiveMode
}

// appendWorld transforms positions into world space. Mirrored triangles
// get their winding swapped so faces keep pointing outward.
func appendWorld(dst [][3]float32, positions []math3d.Vec3, world math3d.Mat4, flip bool) [][3]float32 {
	for i, p := range positions {
		if flip && i%3 == 1 && i+1 < len(positions) {
			p = positions[i+1]
		} else if flip && i%3 == 2 {
			p = positions[i-1]
		}
		v := world.MulVec3(p)
		dst = append(dst, [3]float32{float32(v.X), float32(v.Y), float32(v.Z)})
	}
	return dst
}

func (w *writer) material(m *scene.Material) int {
	if idx, ok := w.materials[m]; ok {
		return idx
	}
	c := m.Colour
	gm := &gltf.Material{
		Name: m.Name,
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &[4]float64{
				float64(c.R) / 255, float64(c.G) / 255, float64(c.B) / 255, float64(c.A) / 255,
			},
			MetallicFactor:  gltf.Float(0),
			RoughnessFactor: gltf.Float(0.6),
		},
	}
	if m.Transparent() {
		gm.AlphaMode = gltf.AlphaBlend
	}
	w.doc.Materials = append(w.doc.Materials, gm)
	idx := len(w.doc.Materials) - 1
	w.materials[m] = idx
	return idx
}
