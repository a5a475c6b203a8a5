package scene

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/mjtraj/internal/engine/coords"
	"github.com/Faultbox/mjtraj/internal/logger"
	"github.com/Faultbox/mjtraj/internal/physics"
	"github.com/Faultbox/mjtraj/pkg/math"
)

// ErrNilModel is returned by Build when no model is given.
var ErrNilModel = errors.New("scene: nil model")

// MaxVisibleGroup is the first geom group hidden by default.
const MaxVisibleGroup = 3

// Scene is the renderable hierarchy built from a model.
type Scene struct {
	Graph *Graph

	// Bodies maps model body id to its group handle.
	Bodies []Handle
	// Meshes maps model mesh id to its converted geometry.
	Meshes map[int]*Geometry
	// Cameras lists the named model cameras in render space.
	Cameras []Camera

	Transform coords.Transform
}

// Camera is a model camera converted to render space. Position and
// Orientation are relative to the owning body.
type Camera struct {
	Name        string
	BodyID      int
	Position    math.Vec3
	Orientation math.Quat
	Fovy        float32
}

// Clone returns a scene with an independent graph. Geometry is shared.
func (s *Scene) Clone() *Scene {
	return &Scene{
		Graph:     s.Graph.Clone(),
		Bodies:    append([]Handle(nil), s.Bodies...),
		Meshes:    s.Meshes,
		Cameras:   append([]Camera(nil), s.Cameras...),
		Transform: s.Transform,
	}
}

// BodyHandle returns the group of body id, or NoHandle.
func (s *Scene) BodyHandle(id int) Handle {
	if id < 0 || id >= len(s.Bodies) {
		return NoHandle
	}
	return s.Bodies[id]
}

// sceneBuilder carries caches for one Build call.
type sceneBuilder struct {
	m   *physics.Model
	tr  coords.Transform
	log *zap.Logger

	out       *Scene
	materials map[int]*Material
	textures  map[int]*Texture
	unitBall  *Geometry
}

// Build converts a model into a scene graph. Body 0 (the world body) hangs
// under the root and every other body nests under it.
func Build(m *physics.Model, tr coords.Transform) (*Scene, error) {
	if m == nil {
		return nil, ErrNilModel
	}

	b := &sceneBuilder{
		m:   m,
		tr:  tr,
		log: logger.Named("scene"),
		out: &Scene{
			Graph:     NewGraph("scene"),
			Bodies:    make([]Handle, m.NBody),
			Meshes:    make(map[int]*Geometry),
			Transform: tr,
		},
		materials: make(map[int]*Material),
		textures:  make(map[int]*Texture),
	}
	for i := range b.out.Bodies {
		b.out.Bodies[i] = NoHandle
	}
	if m.NBody > 0 {
		b.bodyGroup(0)
	}

	for i := 0; i < m.NGeom; i++ {
		if at(m.GeomGroup, i) >= MaxVisibleGroup {
			continue
		}
		body := at(m.GeomBodyID, i)
		if body < 0 || body >= m.NBody {
			b.log.Warn("geom references unknown body", zap.Int("geom", i), zap.Int("body", body))
			continue
		}
		b.addGeom(i, b.bodyGroup(body))
	}

	for id := 1; id < m.NBody; id++ {
		b.bodyGroup(id)
	}
	b.cameras()

	b.out.Graph.UpdateWorld()
	return b.out, nil
}

// bodyGroup returns the group of body id, creating it on first use.
func (b *sceneBuilder) bodyGroup(id int) Handle {
	if h := b.out.Bodies[id]; h != NoHandle {
		return h
	}
	parent := b.out.Graph.Root()
	if id != 0 {
		parent = b.bodyGroup(0)
	}
	name := b.m.BodyName(id)
	if name == "" {
		name = fmt.Sprintf("body%d", id)
	}
	h := b.out.Graph.AddGroup(parent, name)
	b.out.Graph.Node(h).BodyID = id
	b.out.Bodies[id] = h
	return h
}

func (b *sceneBuilder) addGeom(i int, parent Handle) {
	m := b.m
	size := [3]float64{at3(m.GeomSize, i, 0), at3(m.GeomSize, i, 1), at3(m.GeomSize, i, 2)}

	n := newNode(fmt.Sprintf("geom%d", i), parent)
	n.GeomID = i
	n.Geometry = b.geometry(i, size)
	n.Material = b.material(i)
	if m.GeomType[i] == physics.GeomPlane {
		n.Material = n.Material.Clone()
		n.Material.Reflective = true
		if n.Material.Reflectance == 0 {
			n.Material.Reflectance = 0.2
		}
	}

	pos := [3]float64{at3(m.GeomPos, i, 0), at3(m.GeomPos, i, 1), at3(m.GeomPos, i, 2)}
	quat := [4]float64{1, 0, 0, 0}
	if 4*i+3 < len(m.GeomQuat) {
		copy(quat[:], m.GeomQuat[4*i:4*i+4])
	}
	n.Position = b.tr.ToRenderPosition(pos)
	n.Rotation = b.tr.ToRenderQuat(quat)

	h := b.out.Graph.Add(parent, n)
	if n.Geometry.Shape == ShapeEllipsoid {
		b.out.Graph.SetScale(h, b.tr.ToRenderScale(size))
	}
}

// geometry selects the primitive for geom i. Ellipsoids share one unit
// sphere scaled per node.
func (b *sceneBuilder) geometry(i int, size [3]float64) *Geometry {
	m := b.m
	r := float32(size[0])
	switch m.GeomType[i] {
	case physics.GeomPlane:
		return NewPlane(float32(size[0]), float32(size[1]), b.tr)
	case physics.GeomBox:
		if size[0] > 0 && size[1] > 0 && size[2] > 0 {
			return NewBox([3]float32{float32(size[0]), float32(size[1]), float32(size[2])}, b.tr)
		}
	case physics.GeomCapsule:
		if r > 0 {
			return NewCapsule(r, float32(size[1]), b.tr)
		}
	case physics.GeomCylinder:
		if r > 0 {
			return NewCylinder(r, float32(size[1]), b.tr)
		}
	case physics.GeomEllipsoid:
		if size[0] > 0 && size[1] > 0 && size[2] > 0 {
			if b.unitBall == nil {
				b.unitBall = NewSphere(1, b.tr)
				b.unitBall.Shape = ShapeEllipsoid
			}
			return b.unitBall
		}
	case physics.GeomMesh:
		if g := b.mesh(at(m.GeomDataID, i)); g != nil {
			return g
		}
	case physics.GeomSphere:
		if r > 0 {
			return NewSphere(r, b.tr)
		}
	}
	if r <= 0 {
		r = fallbackRadius
	}
	return NewSphere(r, b.tr)
}

// mesh converts mesh id once and caches it.
func (b *sceneBuilder) mesh(id int) *Geometry {
	m := b.m
	if id < 0 || id >= m.NMesh {
		return nil
	}
	if g, ok := b.out.Meshes[id]; ok {
		return g
	}

	vadr, vnum := m.MeshVertAdr[id], m.MeshVertNum[id]
	fadr, fnum := m.MeshFaceAdr[id], m.MeshFaceNum[id]
	verts := slice(m.MeshVert, 3*vadr, 3*(vadr+vnum))
	faces := slice32(m.MeshFace, 3*fadr, 3*(fadr+fnum))
	var uvs []float32
	if tadr := at(m.MeshTexcoordAdr, id); tadr >= 0 {
		uvs = slice(m.MeshTexcoord, 2*tadr, 2*(tadr+vnum))
	}

	g := NewMesh(verts, uvs, faces, b.tr)
	b.out.Meshes[id] = g
	return g
}

// material returns the shared material for geom i.
func (b *sceneBuilder) material(i int) *Material {
	m := b.m
	id := at(m.GeomMatID, i)
	if id < 0 || id >= m.NMat {
		return NewMaterial(rgbaAt(m.GeomRGBA, i))
	}
	if mat, ok := b.materials[id]; ok {
		return mat
	}

	mat := NewMaterial(rgbaAt(m.MatRGBA, id))
	mat.Name = fmt.Sprintf("material%d", id)
	mat.Shininess = atf(m.MatShininess, id)
	mat.Specular = atf(m.MatSpecular, id)
	mat.Emission = atf(m.MatEmission, id)
	mat.Reflectance = atf(m.MatReflectance, id)
	if tex := at(m.MatTexID, id); tex >= 0 {
		mat.Texture = b.texture(tex)
	}
	b.materials[id] = mat
	return mat
}

// texture decodes texture id on first reference.
func (b *sceneBuilder) texture(id int) *Texture {
	m := b.m
	if id >= m.NTex {
		return nil
	}
	if t, ok := b.textures[id]; ok {
		return t
	}
	adr := m.TexAdr[id]
	w, h, c := m.TexWidth[id], m.TexHeight[id], m.TexNChannel[id]
	var data []byte
	if adr >= 0 && adr <= len(m.TexData) {
		data = m.TexData[adr:]
	}
	t, err := DecodeTexture(id, w, h, c, data)
	if err != nil {
		b.log.Warn("texture skipped", zap.Int("texture", id), zap.Error(err))
	}
	b.textures[id] = t
	return t
}

func (b *sceneBuilder) cameras() {
	m := b.m
	for i := 0; i < m.NCam; i++ {
		pos := [3]float64{at3(m.CamPos, i, 0), at3(m.CamPos, i, 1), at3(m.CamPos, i, 2)}
		quat := [4]float64{1, 0, 0, 0}
		if 4*i+3 < len(m.CamQuat) {
			copy(quat[:], m.CamQuat[4*i:4*i+4])
		}
		name := m.CameraName(i)
		if name == "" {
			name = fmt.Sprintf("camera%d", i)
		}
		b.out.Cameras = append(b.out.Cameras, Camera{
			Name:        name,
			BodyID:      at(m.CamBodyID, i),
			Position:    b.tr.ToRenderPosition(pos),
			Orientation: b.tr.ToRenderQuat(quat),
			Fovy:        float32(atf64(m.CamFovy, i)),
		})
	}
}

func at(s []int, i int) int {
	if i < 0 || i >= len(s) {
		return -1
	}
	return s[i]
}

func atf(s []float32, i int) float32 {
	if i < 0 || i >= len(s) {
		return 0
	}
	return s[i]
}

func atf64(s []float64, i int) float64 {
	if i < 0 || i >= len(s) {
		return 0
	}
	return s[i]
}

func at3(s []float64, i, k int) float64 {
	return atf64(s, 3*i+k)
}

func rgbaAt(s []float32, i int) [4]float32 {
	if 4*i+3 >= len(s) {
		return [4]float32{0.5, 0.5, 0.5, 1}
	}
	return [4]float32{s[4*i], s[4*i+1], s[4*i+2], s[4*i+3]}
}

func slice(s []float32, from, to int) []float32 {
	if from < 0 || from > len(s) {
		return nil
	}
	if to > len(s) {
		to = len(s)
	}
	if to < from {
		return nil
	}
	return s[from:to]
}

func slice32(s []int32, from, to int) []int32 {
	if from < 0 || from > len(s) {
		return nil
	}
	if to > len(s) {
		to = len(s)
	}
	if to < from {
		return nil
	}
	return s[from:to]
}
