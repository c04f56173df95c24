package loader

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"image/color"
	"math"

	"github.com/qmuntal/gltf"

	"github.com/taigrr/brickview/pkg/math3d"
	"github.com/taigrr/brickview/pkg/scene"
)

// glbMagic starts every binary glTF file.
var glbMagic = []byte("glTF")

// GLBBackend decodes binary glTF. Each mesh node becomes a top-level
// child of the root, placed by its world matrix. The placement includes a
// half turn about X so that the upright flip applied during normalization
// leaves glTF's Y-up content upright.
type GLBBackend struct{}

// Decode implements Backend.
func (GLBBackend) Decode(ctx context.Context, req Request, onLoad func(any), onError func(error)) {
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(bytes.NewReader(req.Data)).Decode(doc); err != nil {
		onError(fmt.Errorf("decode glb %s: %w", req.Name, err))
		return
	}
	if err := ctx.Err(); err != nil {
		onError(err)
		return
	}

	root, err := newGLBScene(doc, req.Name)
	if err != nil {
		onError(err)
		return
	}
	onLoad(root)
}

type glbScene struct {
	doc       *gltf.Document
	root      *scene.Node
	materials map[int]*scene.Material
	edges     map[*scene.Material]*scene.Material
	fallback  *scene.Material
}

func newGLBScene(doc *gltf.Document, name string) (*scene.Node, error) {
	s := &glbScene{
		doc:       doc,
		root:      scene.NewNode(name),
		materials: make(map[int]*scene.Material),
		edges:     make(map[*scene.Material]*scene.Material),
	}

	var roots []int
	switch {
	case doc.Scene != nil && *doc.Scene < len(doc.Scenes):
		roots = doc.Scenes[*doc.Scene].Nodes
	case len(doc.Scenes) > 0:
		roots = doc.Scenes[0].Nodes
	default:
		for i := range doc.Nodes {
			roots = append(roots, i)
		}
	}

	flip := math3d.RotateX(math.Pi)
	for _, idx := range roots {
		if err := s.addNode(idx, flip, 0); err != nil {
			scene.Dispose(s.root)
			return nil, err
		}
	}
	return s.root, nil
}

func (s *glbScene) addNode(idx int, parent math3d.Mat4, depth int) error {
	if idx < 0 || idx >= len(s.doc.Nodes) {
		return fmt.Errorf("node %d out of range", idx)
	}
	if depth > maxDepth {
		return fmt.Errorf("node hierarchy deeper than %d", maxDepth)
	}
	n := s.doc.Nodes[idx]
	world := parent.Mul(nodeMatrix(n))

	if n.Mesh != nil && *n.Mesh < len(s.doc.Meshes) {
		mesh := s.doc.Meshes[*n.Mesh]
		part := scene.NewNode(n.Name)
		if part.Name == "" {
			part.Name = mesh.Name
		}
		m := world
		part.Matrix = &m
		if err := s.addMesh(part, mesh); err != nil {
			scene.Dispose(part)
			return fmt.Errorf("process mesh %q: %w", mesh.Name, err)
		}
		s.root.Add(part)
	}

	for _, c := range n.Children {
		if err := s.addNode(c, world, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// addMesh adds one leaf per supported primitive.
func (s *glbScene) addMesh(part *scene.Node, m *gltf.Mesh) error {
	for i, prim := range m.Primitives {
		var kind scene.GeometryKind
		switch prim.Mode {
		case gltf.PrimitiveTriangles:
			kind = scene.GeometryTriangles
		case gltf.PrimitiveLines:
			kind = scene.GeometryLines
		default:
			continue
		}

		posIdx, ok := prim.Attributes[gltf.POSITION]
		if !ok {
			continue
		}
		positions, err := readVec3Accessor(s.doc, posIdx)
		if err != nil {
			return fmt.Errorf("read positions: %w", err)
		}
		if prim.Indices != nil {
			indices, err := readIndices(s.doc, *prim.Indices)
			if err != nil {
				return fmt.Errorf("read indices: %w", err)
			}
			expanded := make([]math3d.Vec3, 0, len(indices))
			for _, ix := range indices {
				if ix >= len(positions) {
					return fmt.Errorf("index %d out of range", ix)
				}
				expanded = append(expanded, positions[ix])
			}
			positions = expanded
		}

		per := 3
		if kind == scene.GeometryLines {
			per = 2
		}
		positions = positions[:len(positions)/per*per]

		mat := s.material(prim.Material)
		if kind == scene.GeometryLines {
			mat = s.edgeMaterial(mat)
		}
		part.Add(scene.NewMesh(fmt.Sprintf("%s/%d", m.Name, i), scene.NewGeometry(kind, positions, nil), mat))
	}
	return nil
}

func (s *glbScene) material(idx *int) *scene.Material {
	if idx == nil || *idx < 0 || *idx >= len(s.doc.Materials) {
		if s.fallback == nil {
			s.fallback = scene.NewMaterial(scene.MaterialSurface, "default", color.RGBA{R: 160, G: 160, B: 160, A: 255}, -1)
		}
		return s.fallback
	}
	if m, ok := s.materials[*idx]; ok {
		return m
	}

	gm := s.doc.Materials[*idx]
	c := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	if pbr := gm.PBRMetallicRoughness; pbr != nil && pbr.BaseColorFactor != nil {
		f := *pbr.BaseColorFactor
		c = color.RGBA{R: unit8(f[0]), G: unit8(f[1]), B: unit8(f[2]), A: unit8(f[3])}
	}
	m := scene.NewMaterial(scene.MaterialSurface, gm.Name, c, -1)
	s.materials[*idx] = m
	return m
}

// edgeMaterial returns a line material with the colour of surface.
func (s *glbScene) edgeMaterial(surface *scene.Material) *scene.Material {
	if m, ok := s.edges[surface]; ok {
		return m
	}
	m := scene.NewMaterial(scene.MaterialEdge, surface.Name+"_Edge", surface.Colour, -1)
	s.edges[surface] = m
	return m
}

func unit8(f float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, f)) * 255))
}

// nodeMatrix returns a node's local matrix from its matrix or its TRS
// properties, whichever is set.
func nodeMatrix(n *gltf.Node) math3d.Mat4 {
	var zero [16]float64
	if n.Matrix != zero && math3d.Mat4(n.Matrix) != math3d.Identity() {
		return math3d.Mat4(n.Matrix)
	}

	scale := math3d.V3(n.Scale[0], n.Scale[1], n.Scale[2])
	if scale == math3d.Zero3() {
		scale = math3d.One3()
	}
	t := math3d.V3(n.Translation[0], n.Translation[1], n.Translation[2])
	return math3d.Compose(t, quatMatrix(n.Rotation), scale)
}

// quatMatrix converts an (x, y, z, w) unit quaternion to a rotation.
func quatMatrix(q [4]float64) math3d.Mat4 {
	x, y, z, w := q[0], q[1], q[2], q[3]
	l := math.Sqrt(x*x + y*y + z*z + w*w)
	if l == 0 {
		return math3d.Identity()
	}
	x, y, z, w = x/l, y/l, z/l, w/l
	return math3d.Mat4{
		1 - 2*(y*y+z*z), 2 * (x*y + z*w), 2 * (x*z - y*w), 0,
		2 * (x*y - z*w), 1 - 2*(x*x+z*z), 2 * (y*z + x*w), 0,
		2 * (x*z + y*w), 2 * (y*z - x*w), 1 - 2*(x*x+y*y), 0,
		0, 0, 0, 1,
	}
}

// readVec3Accessor reads float VEC3 data from an accessor.
func readVec3Accessor(doc *gltf.Document, accessorIdx int) ([]math3d.Vec3, error) {
	if accessorIdx < 0 || accessorIdx >= len(doc.Accessors) {
		return nil, fmt.Errorf("accessor %d out of range", accessorIdx)
	}
	accessor := doc.Accessors[accessorIdx]
	if accessor.Type != gltf.AccessorVec3 || accessor.ComponentType != gltf.ComponentFloat {
		return nil, fmt.Errorf("expected float VEC3, got %v/%v", accessor.Type, accessor.ComponentType)
	}

	buf, start, stride, err := accessorView(doc, accessor, 12)
	if err != nil {
		return nil, err
	}
	result := make([]math3d.Vec3, accessor.Count)
	for i := range accessor.Count {
		off := start + i*stride
		result[i] = math3d.V3(
			float64(readFloat32(buf[off:])),
			float64(readFloat32(buf[off+4:])),
			float64(readFloat32(buf[off+8:])),
		)
	}
	return result, nil
}

// readIndices reads scalar index data from an accessor.
func readIndices(doc *gltf.Document, accessorIdx int) ([]int, error) {
	if accessorIdx < 0 || accessorIdx >= len(doc.Accessors) {
		return nil, fmt.Errorf("accessor %d out of range", accessorIdx)
	}
	accessor := doc.Accessors[accessorIdx]
	if accessor.Type != gltf.AccessorScalar {
		return nil, fmt.Errorf("expected SCALAR, got %v", accessor.Type)
	}

	var size int
	switch accessor.ComponentType {
	case gltf.ComponentUbyte:
		size = 1
	case gltf.ComponentUshort:
		size = 2
	case gltf.ComponentUint:
		size = 4
	default:
		return nil, fmt.Errorf("unexpected index type: %v", accessor.ComponentType)
	}

	buf, start, stride, err := accessorView(doc, accessor, size)
	if err != nil {
		return nil, err
	}
	result := make([]int, accessor.Count)
	for i := range accessor.Count {
		off := start + i*stride
		switch size {
		case 1:
			result[i] = int(buf[off])
		case 2:
			result[i] = int(binary.LittleEndian.Uint16(buf[off:]))
		case 4:
			result[i] = int(binary.LittleEndian.Uint32(buf[off:]))
		}
	}
	return result, nil
}

// accessorView returns the embedded buffer behind an accessor with the
// first element's offset and the element stride, after checking that
// every element lies inside the buffer.
func accessorView(doc *gltf.Document, accessor *gltf.Accessor, elemSize int) ([]byte, int, int, error) {
	if accessor.BufferView == nil || *accessor.BufferView >= len(doc.BufferViews) {
		return nil, 0, 0, fmt.Errorf("accessor has no buffer view")
	}
	view := doc.BufferViews[*accessor.BufferView]
	if view.Buffer >= len(doc.Buffers) {
		return nil, 0, 0, fmt.Errorf("buffer %d out of range", view.Buffer)
	}
	buffer := doc.Buffers[view.Buffer]
	if buffer.URI != "" && len(buffer.Data) == 0 {
		return nil, 0, 0, fmt.Errorf("external buffers not supported")
	}
	if buffer.Data == nil {
		return nil, 0, 0, fmt.Errorf("buffer has no data")
	}

	start := view.ByteOffset + accessor.ByteOffset
	stride := view.ByteStride
	if stride == 0 {
		stride = elemSize
	}
	if accessor.Count > 0 {
		if end := start + (accessor.Count-1)*stride + elemSize; end > len(buffer.Data) {
			return nil, 0, 0, fmt.Errorf("accessor reads past end of buffer")
		}
	}
	return buffer.Data, start, stride, nil
}

func readFloat32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}
