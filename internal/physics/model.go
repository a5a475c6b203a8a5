// Package physics defines the articulated-body model and kinematic state
// consumed by the playback engine, plus the engine interface used to load
// models and run forward kinematics.
//
// Arrays follow the flat layout physics engines expose: per-entity values are
// stored back to back (3 floats per position, 4 per quaternion in w,x,y,z
// order) and addressed by entity index.
package physics

// GeomType is the primitive shape of a geom.
type GeomType int

// Geom types, numbered as the engine numbers them.
const (
	GeomPlane GeomType = iota
	GeomHField
	GeomSphere
	GeomCapsule
	GeomEllipsoid
	GeomCylinder
	GeomBox
	GeomMesh
)

// String returns a human-readable geom type name.
func (g GeomType) String() string {
	switch g {
	case GeomPlane:
		return "plane"
	case GeomHField:
		return "hfield"
	case GeomSphere:
		return "sphere"
	case GeomCapsule:
		return "capsule"
	case GeomEllipsoid:
		return "ellipsoid"
	case GeomCylinder:
		return "cylinder"
	case GeomBox:
		return "box"
	case GeomMesh:
		return "mesh"
	default:
		return "unknown"
	}
}

// JointType is the kind of degree of freedom a joint contributes.
type JointType int

// Joint types and their configuration widths.
const (
	JointFree  JointType = iota // 7 values: position + quaternion
	JointBall                   // 4 values: quaternion
	JointSlide                  // 1 value: translation along axis
	JointHinge                  // 1 value: rotation around axis
)

// QposWidth returns how many configuration values the joint consumes.
func (j JointType) QposWidth() int {
	switch j {
	case JointFree:
		return 7
	case JointBall:
		return 4
	default:
		return 1
	}
}

// Model is an immutable articulated-body description.
type Model struct {
	// NQ is the configuration (pose vector) dimension.
	NQ    int
	Qpos0 []float64

	NBody        int
	BodyParentID []int
	BodyNameAdr  []int
	BodyPos      []float64
	BodyQuat     []float64
	BodyJntAdr   []int
	BodyJntNum   []int

	NJnt       int
	JntType    []JointType
	JntQposAdr []int
	JntPos     []float64
	JntAxis    []float64

	NGeom      int
	GeomType   []GeomType
	GeomBodyID []int
	GeomGroup  []int
	GeomMatID  []int // -1 when the geom uses its own rgba
	GeomDataID []int // mesh id for mesh geoms, -1 otherwise
	GeomSize   []float64
	GeomRGBA   []float32
	GeomPos    []float64
	GeomQuat   []float64

	NMesh           int
	MeshVertAdr     []int
	MeshVertNum     []int
	MeshVert        []float32
	MeshNormal      []float32 // per vertex, may be empty
	MeshTexcoordAdr []int     // -1 when the mesh has no uv
	MeshTexcoord    []float32
	MeshFaceAdr     []int
	MeshFaceNum     []int
	MeshFace        []int32

	NMat           int
	MatRGBA        []float32
	MatShininess   []float32
	MatSpecular    []float32
	MatEmission    []float32
	MatReflectance []float32
	MatTexID       []int // -1 when untextured

	NTex        int
	TexWidth    []int
	TexHeight   []int
	TexNChannel []int
	TexAdr      []int
	TexData     []byte

	NCam       int
	CamNameAdr []int
	CamBodyID  []int
	CamPos     []float64
	CamQuat    []float64
	CamFovy    []float64

	NSite      int
	SiteBodyID []int
	SitePos    []float64

	NTendon       int
	TendonWidth   []float64
	TendonRGBA    []float32
	TendonSiteAdr []int
	TendonSiteNum []int
	TendonSite    []int

	NFlex          int
	FlexVertAdr    []int
	FlexVertNum    []int
	FlexRadius     []float64
	FlexVertBodyID []int
	FlexVertPos    []float64

	// Names is the null-terminated name table addressed by *NameAdr fields.
	Names []byte
}

// Name reads the null-terminated string starting at adr. The scan is bounded
// by the table length, so a missing terminator yields the remaining bytes and
// an out-of-range address yields "".
func (m *Model) Name(adr int) string {
	if adr < 0 || adr >= len(m.Names) {
		return ""
	}
	end := adr
	for end < len(m.Names) && m.Names[end] != 0 {
		end++
	}
	return string(m.Names[adr:end])
}

// BodyName returns the name of body i.
func (m *Model) BodyName(i int) string {
	if i < 0 || i >= len(m.BodyNameAdr) {
		return ""
	}
	return m.Name(m.BodyNameAdr[i])
}

// CameraName returns the name of camera i.
func (m *Model) CameraName(i int) string {
	if i < 0 || i >= len(m.CamNameAdr) {
		return ""
	}
	return m.Name(m.CamNameAdr[i])
}

// FlexVertexCount returns the total number of flex vertices.
func (m *Model) FlexVertexCount() int {
	n := 0
	for _, c := range m.FlexVertNum {
		n += c
	}
	return n
}
