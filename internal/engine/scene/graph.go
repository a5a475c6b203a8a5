// Package scene builds and holds the renderable body hierarchy of a model.
//
// A Graph is an arena of nodes addressed by Handle. A node's parent always has
// a lower handle than the node itself, so world matrices are recomputed in one
// forward pass over the arena.
package scene

import (
	"github.com/Faultbox/mjtraj/pkg/math"
)

// Handle addresses a node inside a Graph.
type Handle int32

// NoHandle marks an absent node (the root's parent, an unmapped body).
const NoHandle Handle = -1

// Node is a transform group, optionally carrying drawable geometry.
type Node struct {
	Name string

	// Local transform relative to the parent.
	Position math.Vec3
	Rotation math.Quat
	Scale    math.Vec3

	Visible bool

	// Geometry is shared read-only between clones; nil for pure groups.
	Geometry *Geometry
	Material *Material

	// RenderOrder sorts drawables; lower values draw first.
	RenderOrder int

	// BodyID is the model body this group represents, -1 otherwise.
	BodyID int
	// GeomID is the model geom this node draws, -1 otherwise.
	GeomID int

	parent   Handle
	children []Handle
	world    math.Mat4
	dirty    bool
}

// Graph is an arena-backed node tree.
type Graph struct {
	nodes   []Node
	changed []bool
}

// NewGraph creates a graph holding a single root group.
func NewGraph(rootName string) *Graph {
	g := &Graph{}
	g.nodes = append(g.nodes, newNode(rootName, NoHandle))
	return g
}

func newNode(name string, parent Handle) Node {
	return Node{
		Name:     name,
		Rotation: math.QuatIdentity(),
		Scale:    math.Vec3{X: 1, Y: 1, Z: 1},
		Visible:  true,
		BodyID:   -1,
		GeomID:   -1,
		parent:   parent,
		world:    math.Identity(),
		dirty:    true,
	}
}

// Root returns the root handle.
func (g *Graph) Root() Handle {
	return 0
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Valid reports whether h addresses a node of g.
func (g *Graph) Valid(h Handle) bool {
	return h >= 0 && int(h) < len(g.nodes)
}

// AddGroup appends an empty named group under parent.
func (g *Graph) AddGroup(parent Handle, name string) Handle {
	return g.Add(parent, newNode(name, parent))
}

// Add appends n under parent and returns its handle. Returns NoHandle if the
// parent is invalid.
func (g *Graph) Add(parent Handle, n Node) Handle {
	if !g.Valid(parent) {
		return NoHandle
	}
	n.parent = parent
	n.children = nil
	n.dirty = true
	h := Handle(len(g.nodes))
	g.nodes = append(g.nodes, n)
	g.nodes[parent].children = append(g.nodes[parent].children, h)
	return h
}

// Node returns a pointer to the node at h, or nil. Callers that change the
// transform through the pointer must call MarkDirty.
func (g *Graph) Node(h Handle) *Node {
	if !g.Valid(h) {
		return nil
	}
	return &g.nodes[h]
}

// Parent returns the parent handle of h.
func (g *Graph) Parent(h Handle) Handle {
	if !g.Valid(h) {
		return NoHandle
	}
	return g.nodes[h].parent
}

// Children returns the child handles of h. The slice must not be modified.
func (g *Graph) Children(h Handle) []Handle {
	if !g.Valid(h) {
		return nil
	}
	return g.nodes[h].children
}

// Find returns the first node with the given name.
func (g *Graph) Find(name string) Handle {
	for i := range g.nodes {
		if g.nodes[i].Name == name {
			return Handle(i)
		}
	}
	return NoHandle
}

// SetTransform replaces the local position and rotation of h.
func (g *Graph) SetTransform(h Handle, pos math.Vec3, rot math.Quat) {
	if !g.Valid(h) {
		return
	}
	n := &g.nodes[h]
	n.Position = pos
	n.Rotation = rot
	n.dirty = true
}

// SetScale replaces the local scale of h.
func (g *Graph) SetScale(h Handle, scale math.Vec3) {
	if !g.Valid(h) {
		return
	}
	g.nodes[h].Scale = scale
	g.nodes[h].dirty = true
}

// MarkDirty flags h for a world matrix update.
func (g *Graph) MarkDirty(h Handle) {
	if g.Valid(h) {
		g.nodes[h].dirty = true
	}
}

// Dirty reports whether h waits for a world matrix update.
func (g *Graph) Dirty(h Handle) bool {
	return g.Valid(h) && g.nodes[h].dirty
}

// SetVisible shows or hides h and its subtree.
func (g *Graph) SetVisible(h Handle, visible bool) {
	if g.Valid(h) {
		g.nodes[h].Visible = visible
	}
}

// Visible reports whether h and all of its ancestors are visible.
func (g *Graph) Visible(h Handle) bool {
	for g.Valid(h) {
		if !g.nodes[h].Visible {
			return false
		}
		h = g.nodes[h].parent
	}
	return true
}

// World returns the world matrix of h as of the last UpdateWorld.
func (g *Graph) World(h Handle) math.Mat4 {
	if !g.Valid(h) {
		return math.Identity()
	}
	return g.nodes[h].world
}

// UpdateWorld recomputes world matrices of dirty nodes and their
// descendants; clean subtrees are left untouched. Returns the number of
// nodes recomputed.
func (g *Graph) UpdateWorld() int {
	if cap(g.changed) < len(g.nodes) {
		g.changed = make([]bool, len(g.nodes))
	}
	changed := g.changed[:len(g.nodes)]

	updated := 0
	for i := range g.nodes {
		n := &g.nodes[i]
		parentChanged := n.parent != NoHandle && changed[n.parent]
		if !n.dirty && !parentChanged {
			changed[i] = false
			continue
		}
		local := math.Compose(n.Position, n.Rotation, n.Scale)
		if n.parent == NoHandle {
			n.world = local
		} else {
			n.world = g.nodes[n.parent].world.Mul(local)
		}
		n.dirty = false
		changed[i] = true
		updated++
	}
	return updated
}

// Walk visits h and its descendants depth first. Returning false from fn
// skips the node's children.
func (g *Graph) Walk(h Handle, fn func(h Handle, n *Node) bool) {
	if !g.Valid(h) {
		return
	}
	if !fn(h, &g.nodes[h]) {
		return
	}
	for _, c := range g.nodes[h].children {
		g.Walk(c, fn)
	}
}

// Drawables visits every visible node carrying geometry, with its world
// matrix.
func (g *Graph) Drawables(fn func(h Handle, n *Node, world math.Mat4)) {
	g.Walk(g.Root(), func(h Handle, n *Node) bool {
		if !n.Visible {
			return false
		}
		if n.Geometry != nil {
			fn(h, n, n.world)
		}
		return true
	})
}

// Clone returns an independent copy of the graph. Handles are preserved.
// Geometry and materials are shared by pointer; materials must be copied
// before they are mutated.
func (g *Graph) Clone() *Graph {
	out := &Graph{nodes: make([]Node, len(g.nodes))}
	copy(out.nodes, g.nodes)
	for i := range out.nodes {
		if kids := g.nodes[i].children; kids != nil {
			out.nodes[i].children = append([]Handle(nil), kids...)
		}
		out.nodes[i].dirty = true
	}
	return out
}
