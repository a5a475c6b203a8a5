package scene

import (
	gomath "math"

	"github.com/Faultbox/mjtraj/internal/engine/coords"
	"github.com/Faultbox/mjtraj/pkg/math"
)

// Vertex is a mesh vertex with position, normal, and texture coordinates.
type Vertex struct {
	Position [3]float32
	Normal   [3]float32
	TexCoord [2]float32
}

// Bounds is an axis-aligned bounding box.
type Bounds struct {
	Min [3]float32
	Max [3]float32
}

// Center returns the midpoint of the box.
func (b Bounds) Center() math.Vec3 {
	return math.Vec3{
		X: (b.Min[0] + b.Max[0]) / 2,
		Y: (b.Min[1] + b.Max[1]) / 2,
		Z: (b.Min[2] + b.Max[2]) / 2,
	}
}

// Shape identifies how a geometry was generated.
type Shape int

const (
	ShapeSphere Shape = iota
	ShapePlane
	ShapeBox
	ShapeCapsule
	ShapeCylinder
	ShapeEllipsoid
	ShapeMesh
)

// String returns the shape name.
func (s Shape) String() string {
	switch s {
	case ShapeSphere:
		return "sphere"
	case ShapePlane:
		return "plane"
	case ShapeBox:
		return "box"
	case ShapeCapsule:
		return "capsule"
	case ShapeCylinder:
		return "cylinder"
	case ShapeEllipsoid:
		return "ellipsoid"
	case ShapeMesh:
		return "mesh"
	default:
		return "unknown"
	}
}

// Geometry is an indexed triangle list in render space, ready for upload.
type Geometry struct {
	Shape    Shape
	Vertices []Vertex
	Indices  []uint32
	Bounds   Bounds
}

// TriangleCount returns the number of triangles.
func (g *Geometry) TriangleCount() int {
	return len(g.Indices) / 3
}

const (
	sphereSegments = 24
	sphereRings    = 16
	radialSegments = 24

	// Half extent used for planes declared with zero size (infinite).
	infinitePlaneExtent = 50
	// Radius used when a geom declares no usable size.
	fallbackRadius = 0.01
)

// builder accumulates engine-space triangles.
type builder struct {
	vertices []Vertex
	indices  []uint32
}

func (b *builder) vertex(p, n [3]float32, uv [2]float32) uint32 {
	b.vertices = append(b.vertices, Vertex{Position: p, Normal: n, TexCoord: uv})
	return uint32(len(b.vertices) - 1)
}

// grid connects a (rows+1) x (cols+1) vertex lattice starting at base.
func (b *builder) grid(base uint32, rows, cols int) {
	stride := uint32(cols + 1)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			a := base + uint32(r)*stride + uint32(c)
			bb := a + stride
			b.indices = append(b.indices, a, bb, a+1, a+1, bb, bb+1)
		}
	}
}

// finish converts engine-space vertices to render space.
func (b *builder) finish(shape Shape, tr coords.Transform) *Geometry {
	g := &Geometry{Shape: shape, Vertices: b.vertices, Indices: b.indices}
	for i := range g.Vertices {
		v := &g.Vertices[i]
		v.Position = tr.ToRenderVec(v.Position[0], v.Position[1], v.Position[2]).Array()
		v.Normal = tr.ToRenderVec(v.Normal[0], v.Normal[1], v.Normal[2]).Array()
	}
	g.Bounds = computeBounds(g.Vertices)
	return g
}

// NewSphere generates a UV sphere of the given radius.
func NewSphere(radius float32, tr coords.Transform) *Geometry {
	b := &builder{}
	b.hemisphereBand(radius, 0, 0, sphereRings)
	return b.finish(ShapeSphere, tr)
}

// hemisphereBand emits sphere rings r0..r1 (of sphereRings) around engine Z,
// shifted by zOffset. Rings run from the +Z pole to the -Z pole.
func (b *builder) hemisphereBand(radius, zOffset float32, r0, r1 int) {
	base := uint32(len(b.vertices))
	for r := r0; r <= r1; r++ {
		phi := float64(r) / sphereRings * gomath.Pi
		z := float32(gomath.Cos(phi))
		ring := float32(gomath.Sin(phi))
		for s := 0; s <= sphereSegments; s++ {
			theta := float64(s) / sphereSegments * 2 * gomath.Pi
			n := [3]float32{ring * float32(gomath.Cos(theta)), ring * float32(gomath.Sin(theta)), z}
			p := [3]float32{n[0] * radius, n[1] * radius, n[2]*radius + zOffset}
			b.vertex(p, n, [2]float32{float32(s) / sphereSegments, float32(r) / sphereRings})
		}
	}
	b.grid(base, r1-r0, sphereSegments)
}

// NewBox generates a box with the given half extents.
func NewBox(half [3]float32, tr coords.Transform) *Geometry {
	b := &builder{}
	faces := []struct {
		n, u, v [3]float32
	}{
		{[3]float32{1, 0, 0}, [3]float32{0, 1, 0}, [3]float32{0, 0, 1}},
		{[3]float32{-1, 0, 0}, [3]float32{0, 0, 1}, [3]float32{0, 1, 0}},
		{[3]float32{0, 1, 0}, [3]float32{0, 0, 1}, [3]float32{1, 0, 0}},
		{[3]float32{0, -1, 0}, [3]float32{1, 0, 0}, [3]float32{0, 0, 1}},
		{[3]float32{0, 0, 1}, [3]float32{1, 0, 0}, [3]float32{0, 1, 0}},
		{[3]float32{0, 0, -1}, [3]float32{0, 1, 0}, [3]float32{1, 0, 0}},
	}
	for _, f := range faces {
		base := uint32(len(b.vertices))
		for _, c := range [4][2]float32{{-1, -1}, {1, -1}, {-1, 1}, {1, 1}} {
			var p [3]float32
			for k := 0; k < 3; k++ {
				p[k] = (f.n[k] + f.u[k]*c[0] + f.v[k]*c[1]) * half[k]
			}
			b.vertex(p, f.n, [2]float32{(c[0] + 1) / 2, (c[1] + 1) / 2})
		}
		b.indices = append(b.indices, base, base+1, base+2, base+2, base+1, base+3)
	}
	return b.finish(ShapeBox, tr)
}

// NewCylinder generates a capped cylinder along engine Z.
func NewCylinder(radius, halfLength float32, tr coords.Transform) *Geometry {
	b := &builder{}
	b.tube(radius, halfLength)
	for _, side := range []float32{1, -1} {
		center := b.vertex([3]float32{0, 0, side * halfLength}, [3]float32{0, 0, side}, [2]float32{0.5, 0.5})
		for s := 0; s < radialSegments; s++ {
			t0 := float64(s) / radialSegments * 2 * gomath.Pi
			t1 := float64(s+1) / radialSegments * 2 * gomath.Pi
			p0 := [3]float32{radius * float32(gomath.Cos(t0)), radius * float32(gomath.Sin(t0)), side * halfLength}
			p1 := [3]float32{radius * float32(gomath.Cos(t1)), radius * float32(gomath.Sin(t1)), side * halfLength}
			i0 := b.vertex(p0, [3]float32{0, 0, side}, [2]float32{})
			i1 := b.vertex(p1, [3]float32{0, 0, side}, [2]float32{})
			if side > 0 {
				b.indices = append(b.indices, center, i0, i1)
			} else {
				b.indices = append(b.indices, center, i1, i0)
			}
		}
	}
	return b.finish(ShapeCylinder, tr)
}

// tube emits the open side wall of a cylinder along engine Z.
func (b *builder) tube(radius, halfLength float32) {
	base := uint32(len(b.vertices))
	for r, z := range []float32{halfLength, -halfLength} {
		for s := 0; s <= radialSegments; s++ {
			theta := float64(s) / radialSegments * 2 * gomath.Pi
			n := [3]float32{float32(gomath.Cos(theta)), float32(gomath.Sin(theta)), 0}
			b.vertex([3]float32{n[0] * radius, n[1] * radius, z}, n, [2]float32{float32(s) / radialSegments, float32(r)})
		}
	}
	b.grid(base, 1, radialSegments)
}

// NewCapsule generates a cylinder with hemispherical caps along engine Z.
func NewCapsule(radius, halfLength float32, tr coords.Transform) *Geometry {
	b := &builder{}
	b.hemisphereBand(radius, halfLength, 0, sphereRings/2)
	b.tube(radius, halfLength)
	b.hemisphereBand(radius, -halfLength, sphereRings/2, sphereRings)
	return b.finish(ShapeCapsule, tr)
}

// NewPlane generates a plane in the engine XY plane facing +Z. Zero half
// extents produce a large ground plane.
func NewPlane(halfX, halfY float32, tr coords.Transform) *Geometry {
	if halfX <= 0 {
		halfX = infinitePlaneExtent
	}
	if halfY <= 0 {
		halfY = infinitePlaneExtent
	}
	b := &builder{}
	n := [3]float32{0, 0, 1}
	b.vertex([3]float32{-halfX, -halfY, 0}, n, [2]float32{0, 0})
	b.vertex([3]float32{halfX, -halfY, 0}, n, [2]float32{halfX, 0})
	b.vertex([3]float32{-halfX, halfY, 0}, n, [2]float32{0, halfY})
	b.vertex([3]float32{halfX, halfY, 0}, n, [2]float32{halfX, halfY})
	b.indices = append(b.indices, 0, 1, 2, 2, 1, 3)
	return b.finish(ShapePlane, tr)
}

// NewMesh converts engine-space mesh buffers to render space. Faces with
// out-of-range indices are dropped. Normals are recomputed after the
// conversion.
func NewMesh(verts []float32, uvs []float32, faces []int32, tr coords.Transform) *Geometry {
	count := len(verts) / 3
	g := &Geometry{Shape: ShapeMesh, Vertices: make([]Vertex, count)}
	for i := 0; i < count; i++ {
		v := &g.Vertices[i]
		v.Position = tr.ToRenderVec(verts[3*i], verts[3*i+1], verts[3*i+2]).Array()
		if 2*i+1 < len(uvs) {
			v.TexCoord = [2]float32{uvs[2*i], uvs[2*i+1]}
		}
	}

	g.Indices = make([]uint32, 0, len(faces))
	for f := 0; f+2 < len(faces); f += 3 {
		a, b, c := faces[f], faces[f+1], faces[f+2]
		if a < 0 || b < 0 || c < 0 || int(a) >= count || int(b) >= count || int(c) >= count {
			continue
		}
		g.Indices = append(g.Indices, uint32(a), uint32(b), uint32(c))
	}

	computeNormals(g.Vertices, g.Indices)
	g.Bounds = computeBounds(g.Vertices)
	return g
}

// computeNormals sets area-weighted smooth vertex normals.
func computeNormals(vertices []Vertex, indices []uint32) {
	acc := make([]math.Vec3, len(vertices))
	for i := 0; i+2 < len(indices); i += 3 {
		a, b, c := indices[i], indices[i+1], indices[i+2]
		p0 := vec(vertices[a].Position)
		e1 := vec(vertices[b].Position).Sub(p0)
		e2 := vec(vertices[c].Position).Sub(p0)
		n := e1.Cross(e2)
		acc[a] = acc[a].Add(n)
		acc[b] = acc[b].Add(n)
		acc[c] = acc[c].Add(n)
	}
	for i := range vertices {
		if acc[i].Length() < 1e-12 {
			vertices[i].Normal = [3]float32{0, 1, 0}
			continue
		}
		vertices[i].Normal = acc[i].Normalize().Array()
	}
}

func vec(a [3]float32) math.Vec3 {
	return math.Vec3{X: a[0], Y: a[1], Z: a[2]}
}

func computeBounds(vertices []Vertex) Bounds {
	if len(vertices) == 0 {
		return Bounds{}
	}
	b := Bounds{
		Min: [3]float32{1e10, 1e10, 1e10},
		Max: [3]float32{-1e10, -1e10, -1e10},
	}
	for _, v := range vertices {
		for k := 0; k < 3; k++ {
			if v.Position[k] < b.Min[k] {
				b.Min[k] = v.Position[k]
			}
			if v.Position[k] > b.Max[k] {
				b.Max[k] = v.Position[k]
			}
		}
	}
	return b
}
