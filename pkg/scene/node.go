// Package scene provides the scene graph built from a loaded model: nodes
// with transforms and visibility, and the geometry and material resources
// they own.
package scene

import "github.com/taigrr/brickview/pkg/math3d"

// Transform is a node's local position, rotation and scale.
type Transform struct {
	Position math3d.Vec3
	Rotation math3d.Mat4 // Pure rotation (may include a mirror)
	Scale    math3d.Vec3
}

// IdentityTransform returns a transform that leaves points unchanged.
func IdentityTransform() Transform {
	return Transform{
		Rotation: math3d.Identity(),
		Scale:    math3d.One3(),
	}
}

// Matrix returns the local matrix T * R * S.
func (t Transform) Matrix() math3d.Mat4 {
	return math3d.Compose(t.Position, t.Rotation, t.Scale)
}

// Node is an element of the scene graph. The root's direct children are
// the model's top-level parts; their index in Children is the part index
// used by assembly steps.
type Node struct {
	Name      string
	Transform Transform
	Visible   bool
	Geometry  *Geometry // Optional
	Material  *Material // Optional
	Children  []*Node

	// Matrix, when set, is used as the local matrix instead of Transform.
	// LDraw placements carry arbitrary 3x4 matrices.
	Matrix *math3d.Mat4
}

// NewNode creates a visible node with an identity transform.
func NewNode(name string) *Node {
	return &Node{
		Name:      name,
		Transform: IdentityTransform(),
		Visible:   true,
	}
}

// NewMesh creates a visible leaf node holding geometry and material.
func NewMesh(name string, g *Geometry, m *Material) *Node {
	n := NewNode(name)
	n.Geometry = g
	n.Material = m
	return n
}

// Add appends children to the node.
func (n *Node) Add(children ...*Node) {
	n.Children = append(n.Children, children...)
}

// LocalMatrix returns the node's transform relative to its parent.
func (n *Node) LocalMatrix() math3d.Mat4 {
	if n.Matrix != nil {
		return n.Matrix.Mul(n.Transform.Matrix())
	}
	return n.Transform.Matrix()
}

// Walk visits n and its descendants depth first with each node's world
// matrix. Returning false from fn skips the node's children.
func (n *Node) Walk(parent math3d.Mat4, fn func(node *Node, world math3d.Mat4) bool) {
	if n == nil {
		return
	}
	world := parent.Mul(n.LocalMatrix())
	if !fn(n, world) {
		return
	}
	for _, c := range n.Children {
		c.Walk(world, fn)
	}
}

// Bounds returns the world-space box over all geometry under n, including
// n's own transform. Hidden nodes are included.
func (n *Node) Bounds() math3d.AABB {
	return n.BoundsIn(math3d.Identity())
}

// BoundsIn is Bounds with n placed under the given parent matrix.
func (n *Node) BoundsIn(parent math3d.Mat4) math3d.AABB {
	box := math3d.EmptyAABB()
	n.Walk(parent, func(node *Node, world math3d.Mat4) bool {
		if node.Geometry != nil && !node.Geometry.Disposed() {
			box = box.Union(node.Geometry.BoundsIn(world))
		}
		return true
	})
	return box
}

// Count returns the number of nodes under and including n.
func (n *Node) Count() int {
	if n == nil {
		return 0
	}
	c := 1
	for _, ch := range n.Children {
		c += ch.Count()
	}
	return c
}

// Find returns the first node named name, depth first.
func (n *Node) Find(name string) *Node {
	if n == nil {
		return nil
	}
	if n.Name == name {
		return n
	}
	for _, c := range n.Children {
		if f := c.Find(name); f != nil {
			return f
		}
	}
	return nil
}
