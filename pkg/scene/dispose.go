package scene

// Dispose releases the geometry and material of every node under root.
// Nil nodes, nodes without resources, shared resources and repeated calls
// are all safe.
func Dispose(root *Node) {
	if root == nil {
		return
	}
	root.Geometry.Dispose()
	root.Material.Dispose()
	for _, c := range root.Children {
		Dispose(c)
	}
}
