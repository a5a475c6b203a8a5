package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/mjtraj/internal/engine/coords"
	"github.com/Faultbox/mjtraj/pkg/math"
)

func TestUpdateWorldPropagatesToChildren(t *testing.T) {
	g := NewGraph("root")
	a := g.AddGroup(g.Root(), "a")
	child := g.AddGroup(a, "child")
	sibling := g.AddGroup(g.Root(), "sibling")

	assert.Equal(t, 4, g.UpdateWorld())
	assert.Equal(t, 0, g.UpdateWorld(), "clean graph recomputes nothing")

	g.SetTransform(a, math.Vec3{X: 1}, math.QuatIdentity())
	g.SetTransform(sibling, math.Vec3{Y: 5}, math.QuatIdentity())
	g.Node(child).Position = math.Vec3{Z: 2}
	g.MarkDirty(child)

	assert.Equal(t, 3, g.UpdateWorld())
	assert.Equal(t, math.Vec3{X: 1, Z: 2}, g.World(child).Translation())

	// Moving only a leaves its sibling untouched.
	g.SetTransform(a, math.Vec3{X: 2}, math.QuatIdentity())
	assert.Equal(t, 2, g.UpdateWorld())
	assert.Equal(t, math.Vec3{X: 2, Z: 2}, g.World(child).Translation())
	assert.Equal(t, math.Vec3{Y: 5}, g.World(sibling).Translation())
	assert.False(t, g.Dirty(sibling))
}

func TestSetScaleReachesWorld(t *testing.T) {
	g := NewGraph("root")
	a := g.AddGroup(g.Root(), "a")
	leaf := g.Add(a, Node{Name: "leaf", Visible: true, Geometry: &Geometry{}, Scale: math.Vec3{X: 1, Y: 1, Z: 1}})
	g.UpdateWorld()

	g.SetScale(leaf, math.Vec3{X: 2, Y: 3, Z: 4})
	assert.True(t, g.Dirty(leaf))
	assert.False(t, g.Dirty(a))
	assert.Equal(t, 1, g.UpdateWorld())
	p := g.World(leaf).TransformPoint(math.Vec3{X: 1, Y: 1, Z: 1})
	assert.InDelta(t, 2, p.X, 1e-6)
	assert.InDelta(t, 3, p.Y, 1e-6)
	assert.InDelta(t, 4, p.Z, 1e-6)

	g.SetScale(Handle(99), math.Vec3{X: 5})
	assert.Equal(t, 0, g.UpdateWorld(), "invalid handle is ignored")
}

func TestVisibilityIsInherited(t *testing.T) {
	g := NewGraph("root")
	a := g.AddGroup(g.Root(), "a")
	leaf := g.Add(a, Node{Name: "leaf", Visible: true, Geometry: &Geometry{}, Scale: math.Vec3{X: 1, Y: 1, Z: 1}})

	assert.True(t, g.Visible(leaf))
	count := 0
	g.Drawables(func(Handle, *Node, math.Mat4) { count++ })
	assert.Equal(t, 1, count)

	g.SetVisible(a, false)
	assert.False(t, g.Visible(leaf))
	count = 0
	g.Drawables(func(Handle, *Node, math.Mat4) { count++ })
	assert.Equal(t, 0, count)
}

func TestCloneIsIndependent(t *testing.T) {
	g := NewGraph("root")
	a := g.AddGroup(g.Root(), "a")
	mat := NewMaterial([4]float32{1, 0, 0, 1})
	geom := &Geometry{Shape: ShapeBox}
	leaf := g.Add(a, Node{Name: "leaf", Visible: true, Geometry: geom, Material: mat, Scale: math.Vec3{X: 1, Y: 1, Z: 1}})
	g.UpdateWorld()

	c := g.Clone()
	require.Equal(t, g.Len(), c.Len())

	c.SetTransform(a, math.Vec3{X: 3}, math.QuatIdentity())
	c.AddGroup(a, "extra")
	c.Node(c.Root()).Name = "clone"
	c.UpdateWorld()

	assert.Equal(t, math.Vec3{}, g.World(leaf).Translation())
	assert.Equal(t, math.Vec3{X: 3}, c.World(leaf).Translation())
	assert.Len(t, g.Children(a), 1)
	assert.Len(t, c.Children(a), 2)
	assert.Equal(t, "root", g.Node(g.Root()).Name)

	// Geometry and materials are shared until copied.
	assert.Same(t, geom, c.Node(leaf).Geometry)
	assert.Same(t, mat, c.Node(leaf).Material)
}

func TestAddRejectsInvalidParent(t *testing.T) {
	g := NewGraph("root")
	assert.Equal(t, NoHandle, g.AddGroup(Handle(7), "orphan"))
	assert.Nil(t, g.Node(NoHandle))
	assert.Equal(t, NoHandle, g.Find("missing"))
}

func TestMaterialClone(t *testing.T) {
	m := NewMaterial([4]float32{1, 1, 1, 1})
	c := m.Clone()
	c.Color[3] = 0.35
	c.DepthWrite = false

	assert.Equal(t, float32(1), m.Opacity())
	assert.True(t, m.DepthWrite)
	assert.Equal(t, float32(0.35), c.Opacity())
}

func TestDecodeTexture(t *testing.T) {
	tex, err := DecodeTexture(0, 2, 2, 1, []byte{0, 64, 128, 255})
	require.NoError(t, err)
	assert.Equal(t, uint8(128), tex.Image.RGBAAt(0, 1).G)
	assert.Equal(t, uint8(255), tex.Image.RGBAAt(1, 1).A)

	_, err = DecodeTexture(1, 4, 4, 3, make([]byte, 10))
	assert.ErrorIs(t, err, ErrTextureData)

	_, err = DecodeTexture(2, 1, 1, 2, make([]byte, 2))
	assert.ErrorIs(t, err, ErrTextureData)
}

func TestPrimitiveBounds(t *testing.T) {
	box := NewBox([3]float32{1, 2, 3}, coordsSwizzle)
	assert.Equal(t, [3]float32{-1, -3, -2}, box.Bounds.Min)
	assert.Equal(t, [3]float32{1, 3, 2}, box.Bounds.Max)

	capsule := NewCapsule(0.5, 1, coordsSwizzle)
	// Engine Z axis becomes render Y.
	assert.InDelta(t, 1.5, capsule.Bounds.Max[1], 1e-5)
	assert.InDelta(t, -1.5, capsule.Bounds.Min[1], 1e-5)

	plane := NewPlane(0, 0, coordsSwizzle)
	assert.InDelta(t, infinitePlaneExtent, plane.Bounds.Max[0], 1e-5)
	assert.Equal(t, 2, plane.TriangleCount())
}

var coordsSwizzle = coords.New(coords.Swizzle)

func TestWorldBounds(t *testing.T) {
	g := NewGraph("root")
	a := g.AddGroup(g.Root(), "a")
	g.SetTransform(a, math.Vec3{X: 10}, math.QuatIdentity())
	g.Add(a, Node{Name: "box", Visible: true, Geometry: NewBox([3]float32{1, 1, 1}, coordsSwizzle), Scale: math.Vec3{X: 1, Y: 1, Z: 1}})

	b, ok := WorldBounds([]*Scene{{Graph: g}})
	require.True(t, ok)
	assert.InDelta(t, 9, b.Min[0], 1e-5)
	assert.InDelta(t, 11, b.Max[0], 1e-5)
	assert.InDelta(t, -1, b.Min[1], 1e-5)

	g.SetVisible(a, false)
	_, ok = WorldBounds([]*Scene{{Graph: g}})
	assert.False(t, ok)
}
