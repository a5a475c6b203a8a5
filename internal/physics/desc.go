package physics

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Description is the YAML form of a model understood by TreeEngine.
type Description struct {
	Name      string                `yaml:"name"`
	Bodies    []BodyDescription     `yaml:"bodies"`
	Materials []MaterialDescription `yaml:"materials"`
	Textures  []TextureDescription  `yaml:"textures"`
	Meshes    []MeshDescription     `yaml:"meshes"`
	Cameras   []CameraDescription   `yaml:"cameras"`
	Tendons   []TendonDescription   `yaml:"tendons"`
	Flexes    []FlexDescription     `yaml:"flexes"`
}

// BodyDescription describes one body. Parent defaults to the world body.
type BodyDescription struct {
	Name   string             `yaml:"name"`
	Parent string             `yaml:"parent"`
	Pos    [3]float64         `yaml:"pos"`
	Quat   *[4]float64        `yaml:"quat"`
	Joints []JointDescription `yaml:"joints"`
	Geoms  []GeomDescription  `yaml:"geoms"`
	Sites  []SiteDescription  `yaml:"sites"`
}

// JointDescription describes one joint of a body.
type JointDescription struct {
	Type string     `yaml:"type"`
	Pos  [3]float64 `yaml:"pos"`
	Axis [3]float64 `yaml:"axis"`
	Ref  []float64  `yaml:"ref"`
}

// GeomDescription describes one geom of a body.
type GeomDescription struct {
	Type     string      `yaml:"type"`
	Size     []float64   `yaml:"size"`
	Pos      [3]float64  `yaml:"pos"`
	Quat     *[4]float64 `yaml:"quat"`
	RGBA     *[4]float32 `yaml:"rgba"`
	Material string      `yaml:"material"`
	Mesh     string      `yaml:"mesh"`
	Group    int         `yaml:"group"`
}

// SiteDescription is a named body-local point used by tendons.
type SiteDescription struct {
	Name string     `yaml:"name"`
	Pos  [3]float64 `yaml:"pos"`
}

// MaterialDescription describes a material.
type MaterialDescription struct {
	Name        string     `yaml:"name"`
	RGBA        [4]float32 `yaml:"rgba"`
	Shininess   float32    `yaml:"shininess"`
	Specular    float32    `yaml:"specular"`
	Emission    float32    `yaml:"emission"`
	Reflectance float32    `yaml:"reflectance"`
	Texture     string     `yaml:"texture"`
}

// TextureDescription describes a texture, either procedural (builtin: checker
// or flat) or given as packed channel bytes in Data.
type TextureDescription struct {
	Name     string     `yaml:"name"`
	Builtin  string     `yaml:"builtin"`
	Width    int        `yaml:"width"`
	Height   int        `yaml:"height"`
	Channels int        `yaml:"channels"`
	RGB1     [3]float32 `yaml:"rgb1"`
	RGB2     [3]float32 `yaml:"rgb2"`
	Data     []byte     `yaml:"data"`
}

// MeshDescription describes an indexed triangle mesh.
type MeshDescription struct {
	Name      string       `yaml:"name"`
	Vertices  [][3]float32 `yaml:"vertices"`
	Normals   [][3]float32 `yaml:"normals"`
	Texcoords [][2]float32 `yaml:"texcoords"`
	Faces     [][3]int32   `yaml:"faces"`
}

// CameraDescription describes a named camera attached to a body.
type CameraDescription struct {
	Name string      `yaml:"name"`
	Body string      `yaml:"body"`
	Pos  [3]float64  `yaml:"pos"`
	Quat *[4]float64 `yaml:"quat"`
	Fovy float64     `yaml:"fovy"`
}

// TendonDescription describes a tendon routed through sites.
type TendonDescription struct {
	Name  string      `yaml:"name"`
	Width float64     `yaml:"width"`
	RGBA  *[4]float32 `yaml:"rgba"`
	Sites []string    `yaml:"sites"`
}

// FlexDescription describes a flex element made of body-attached vertices.
type FlexDescription struct {
	Name     string                  `yaml:"name"`
	Radius   float64                 `yaml:"radius"`
	Vertices []FlexVertexDescription `yaml:"vertices"`
}

// FlexVertexDescription is one flex vertex.
type FlexVertexDescription struct {
	Body string     `yaml:"body"`
	Pos  [3]float64 `yaml:"pos"`
}

var geomTypeNames = map[string]GeomType{
	"plane":     GeomPlane,
	"hfield":    GeomHField,
	"sphere":    GeomSphere,
	"capsule":   GeomCapsule,
	"ellipsoid": GeomEllipsoid,
	"cylinder":  GeomCylinder,
	"box":       GeomBox,
	"mesh":      GeomMesh,
}

var jointTypeNames = map[string]JointType{
	"free":  JointFree,
	"ball":  JointBall,
	"slide": JointSlide,
	"hinge": JointHinge,
}

var (
	defaultGeomRGBA   = [4]float32{0.5, 0.5, 0.5, 1}
	defaultTendonRGBA = [4]float32{0.95, 0.3, 0.3, 1}
	identityQuat      = [4]float64{1, 0, 0, 0}
)

// LoadDescription parses and compiles a YAML model description.
func LoadDescription(data []byte) (*Model, error) {
	var desc Description
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	return Compile(&desc)
}

// compiler accumulates model arrays while resolving names.
type compiler struct {
	m         *Model
	bodies    map[string]int
	sites     map[string]int
	materials map[string]int
	textures  map[string]int
	meshes    map[string]int
}

// Compile converts a description into a Model.
func Compile(desc *Description) (*Model, error) {
	c := &compiler{
		m:         &Model{},
		bodies:    map[string]int{"world": 0},
		sites:     make(map[string]int),
		materials: make(map[string]int),
		textures:  make(map[string]int),
		meshes:    make(map[string]int),
	}

	c.addBody("world", -1, [3]float64{}, identityQuat)

	for i := range desc.Textures {
		if err := c.addTexture(&desc.Textures[i]); err != nil {
			return nil, err
		}
	}
	for i := range desc.Materials {
		if err := c.addMaterial(&desc.Materials[i]); err != nil {
			return nil, err
		}
	}
	for i := range desc.Meshes {
		if err := c.addMesh(&desc.Meshes[i]); err != nil {
			return nil, err
		}
	}
	for i := range desc.Bodies {
		if err := c.addBodyDescription(&desc.Bodies[i]); err != nil {
			return nil, err
		}
	}
	for i := range desc.Cameras {
		if err := c.addCamera(&desc.Cameras[i]); err != nil {
			return nil, err
		}
	}
	for i := range desc.Tendons {
		if err := c.addTendon(&desc.Tendons[i]); err != nil {
			return nil, err
		}
	}
	for i := range desc.Flexes {
		if err := c.addFlex(&desc.Flexes[i]); err != nil {
			return nil, err
		}
	}
	return c.m, nil
}

func (c *compiler) name(s string) int {
	adr := len(c.m.Names)
	c.m.Names = append(c.m.Names, s...)
	c.m.Names = append(c.m.Names, 0)
	return adr
}

func (c *compiler) addBody(name string, parent int, pos [3]float64, quat [4]float64) int {
	m := c.m
	id := m.NBody
	m.NBody++
	m.BodyParentID = append(m.BodyParentID, parent)
	m.BodyNameAdr = append(m.BodyNameAdr, c.name(name))
	m.BodyPos = append(m.BodyPos, pos[:]...)
	m.BodyQuat = append(m.BodyQuat, quat[:]...)
	m.BodyJntAdr = append(m.BodyJntAdr, m.NJnt)
	m.BodyJntNum = append(m.BodyJntNum, 0)
	c.bodies[name] = id
	return id
}

func (c *compiler) addBodyDescription(bd *BodyDescription) error {
	if bd.Name == "" {
		return fmt.Errorf("%w: body without name", ErrInvalidModel)
	}
	if _, dup := c.bodies[bd.Name]; dup {
		return fmt.Errorf("%w: duplicate body %q", ErrInvalidModel, bd.Name)
	}
	parentName := bd.Parent
	if parentName == "" {
		parentName = "world"
	}
	parent, ok := c.bodies[parentName]
	if !ok {
		return fmt.Errorf("%w: body %q: parent %q must be declared before it", ErrInvalidModel, bd.Name, parentName)
	}

	quat := identityQuat
	if bd.Quat != nil {
		quat = qnormalize(*bd.Quat)
	}
	id := c.addBody(bd.Name, parent, bd.Pos, quat)

	m := c.m
	for _, jd := range bd.Joints {
		jt, ok := jointTypeNames[jd.Type]
		if !ok {
			return fmt.Errorf("%w: body %q: unknown joint type %q", ErrInvalidModel, bd.Name, jd.Type)
		}
		m.JntType = append(m.JntType, jt)
		m.JntQposAdr = append(m.JntQposAdr, m.NQ)
		m.JntPos = append(m.JntPos, jd.Pos[:]...)
		axis := jd.Axis
		if axis == [3]float64{} {
			axis = [3]float64{0, 0, 1}
		}
		m.JntAxis = append(m.JntAxis, axis[:]...)

		ref := make([]float64, jt.QposWidth())
		switch jt {
		case JointFree:
			copy(ref, bd.Pos[:])
			copy(ref[3:], quat[:])
		case JointBall:
			copy(ref, identityQuat[:])
		}
		if len(jd.Ref) == len(ref) {
			copy(ref, jd.Ref)
		}
		m.Qpos0 = append(m.Qpos0, ref...)
		m.NQ += jt.QposWidth()
		m.NJnt++
		m.BodyJntNum[id]++
	}

	for i := range bd.Geoms {
		if err := c.addGeom(id, bd.Name, &bd.Geoms[i]); err != nil {
			return err
		}
	}
	for _, sd := range bd.Sites {
		c.sites[sd.Name] = m.NSite
		m.SiteBodyID = append(m.SiteBodyID, id)
		m.SitePos = append(m.SitePos, sd.Pos[:]...)
		m.NSite++
	}
	return nil
}

func (c *compiler) addGeom(body int, bodyName string, gd *GeomDescription) error {
	m := c.m
	gt, ok := geomTypeNames[gd.Type]
	if !ok {
		gt = GeomSphere
	}
	matID, dataID := -1, -1
	if gd.Material != "" {
		id, ok := c.materials[gd.Material]
		if !ok {
			return fmt.Errorf("%w: body %q: unknown material %q", ErrInvalidModel, bodyName, gd.Material)
		}
		matID = id
	}
	if gt == GeomMesh {
		id, ok := c.meshes[gd.Mesh]
		if !ok {
			return fmt.Errorf("%w: body %q: unknown mesh %q", ErrInvalidModel, bodyName, gd.Mesh)
		}
		dataID = id
	}
	rgba := defaultGeomRGBA
	if gd.RGBA != nil {
		rgba = *gd.RGBA
	}
	quat := identityQuat
	if gd.Quat != nil {
		quat = qnormalize(*gd.Quat)
	}

	m.GeomType = append(m.GeomType, gt)
	m.GeomBodyID = append(m.GeomBodyID, body)
	m.GeomGroup = append(m.GeomGroup, gd.Group)
	m.GeomMatID = append(m.GeomMatID, matID)
	m.GeomDataID = append(m.GeomDataID, dataID)
	var size [3]float64
	copy(size[:], gd.Size)
	m.GeomSize = append(m.GeomSize, size[:]...)
	m.GeomRGBA = append(m.GeomRGBA, rgba[:]...)
	m.GeomPos = append(m.GeomPos, gd.Pos[:]...)
	m.GeomQuat = append(m.GeomQuat, quat[:]...)
	m.NGeom++
	return nil
}

func (c *compiler) addMaterial(md *MaterialDescription) error {
	m := c.m
	texID := -1
	if md.Texture != "" {
		id, ok := c.textures[md.Texture]
		if !ok {
			return fmt.Errorf("%w: material %q: unknown texture %q", ErrInvalidModel, md.Name, md.Texture)
		}
		texID = id
	}
	c.materials[md.Name] = m.NMat
	m.MatRGBA = append(m.MatRGBA, md.RGBA[:]...)
	m.MatShininess = append(m.MatShininess, md.Shininess)
	m.MatSpecular = append(m.MatSpecular, md.Specular)
	m.MatEmission = append(m.MatEmission, md.Emission)
	m.MatReflectance = append(m.MatReflectance, md.Reflectance)
	m.MatTexID = append(m.MatTexID, texID)
	m.NMat++
	return nil
}

func (c *compiler) addTexture(td *TextureDescription) error {
	m := c.m
	w, h, ch := td.Width, td.Height, td.Channels
	if ch == 0 {
		ch = 3
	}
	if w <= 0 || h <= 0 || (ch != 3 && ch != 4) {
		return fmt.Errorf("%w: texture %q: bad dimensions %dx%dx%d", ErrInvalidModel, td.Name, w, h, ch)
	}

	data := td.Data
	switch td.Builtin {
	case "checker":
		data = checker(w, h, ch, td.RGB1, td.RGB2)
	case "flat":
		data = checker(w, h, ch, td.RGB1, td.RGB1)
	case "":
		if len(data) != w*h*ch {
			return fmt.Errorf("%w: texture %q: expected %d bytes, got %d", ErrInvalidModel, td.Name, w*h*ch, len(data))
		}
	default:
		return fmt.Errorf("%w: texture %q: unknown builtin %q", ErrInvalidModel, td.Name, td.Builtin)
	}

	c.textures[td.Name] = m.NTex
	m.TexWidth = append(m.TexWidth, w)
	m.TexHeight = append(m.TexHeight, h)
	m.TexNChannel = append(m.TexNChannel, ch)
	m.TexAdr = append(m.TexAdr, len(m.TexData))
	m.TexData = append(m.TexData, data...)
	m.NTex++
	return nil
}

// checker fills a 2x2 checkerboard of rgb1/rgb2 over the texture.
func checker(w, h, ch int, rgb1, rgb2 [3]float32) []byte {
	data := make([]byte, w*h*ch)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := rgb1
			if (x < w/2) != (y < h/2) {
				c = rgb2
			}
			o := (y*w + x) * ch
			data[o] = toByte(c[0])
			data[o+1] = toByte(c[1])
			data[o+2] = toByte(c[2])
			if ch == 4 {
				data[o+3] = 255
			}
		}
	}
	return data
}

func toByte(f float32) byte {
	switch {
	case f <= 0:
		return 0
	case f >= 1:
		return 255
	default:
		return byte(f*255 + 0.5)
	}
}

func (c *compiler) addMesh(md *MeshDescription) error {
	m := c.m
	nv := len(md.Vertices)
	if nv == 0 {
		return fmt.Errorf("%w: mesh %q has no vertices", ErrInvalidModel, md.Name)
	}
	for _, f := range md.Faces {
		for _, idx := range f {
			if idx < 0 || int(idx) >= nv {
				return fmt.Errorf("%w: mesh %q: face index %d out of range", ErrInvalidModel, md.Name, idx)
			}
		}
	}

	c.meshes[md.Name] = m.NMesh
	m.MeshVertAdr = append(m.MeshVertAdr, len(m.MeshVert)/3)
	m.MeshVertNum = append(m.MeshVertNum, nv)
	for i, v := range md.Vertices {
		m.MeshVert = append(m.MeshVert, v[:]...)
		var n [3]float32
		if i < len(md.Normals) {
			n = md.Normals[i]
		}
		m.MeshNormal = append(m.MeshNormal, n[:]...)
	}
	if len(md.Texcoords) == nv {
		m.MeshTexcoordAdr = append(m.MeshTexcoordAdr, len(m.MeshTexcoord)/2)
		for _, uv := range md.Texcoords {
			m.MeshTexcoord = append(m.MeshTexcoord, uv[:]...)
		}
	} else {
		m.MeshTexcoordAdr = append(m.MeshTexcoordAdr, -1)
	}
	m.MeshFaceAdr = append(m.MeshFaceAdr, len(m.MeshFace)/3)
	m.MeshFaceNum = append(m.MeshFaceNum, len(md.Faces))
	for _, f := range md.Faces {
		m.MeshFace = append(m.MeshFace, f[:]...)
	}
	m.NMesh++
	return nil
}

func (c *compiler) addCamera(cd *CameraDescription) error {
	m := c.m
	body := 0
	if cd.Body != "" {
		id, ok := c.bodies[cd.Body]
		if !ok {
			return fmt.Errorf("%w: camera %q: unknown body %q", ErrInvalidModel, cd.Name, cd.Body)
		}
		body = id
	}
	quat := identityQuat
	if cd.Quat != nil {
		quat = qnormalize(*cd.Quat)
	}
	fovy := cd.Fovy
	if fovy <= 0 {
		fovy = 45
	}
	m.CamNameAdr = append(m.CamNameAdr, c.name(cd.Name))
	m.CamBodyID = append(m.CamBodyID, body)
	m.CamPos = append(m.CamPos, cd.Pos[:]...)
	m.CamQuat = append(m.CamQuat, quat[:]...)
	m.CamFovy = append(m.CamFovy, fovy)
	m.NCam++
	return nil
}

func (c *compiler) addTendon(td *TendonDescription) error {
	m := c.m
	rgba := defaultTendonRGBA
	if td.RGBA != nil {
		rgba = *td.RGBA
	}
	width := td.Width
	if width <= 0 {
		width = 0.003
	}
	m.TendonSiteAdr = append(m.TendonSiteAdr, len(m.TendonSite))
	for _, name := range td.Sites {
		id, ok := c.sites[name]
		if !ok {
			return fmt.Errorf("%w: tendon %q: unknown site %q", ErrInvalidModel, td.Name, name)
		}
		m.TendonSite = append(m.TendonSite, id)
	}
	m.TendonSiteNum = append(m.TendonSiteNum, len(td.Sites))
	m.TendonWidth = append(m.TendonWidth, width)
	m.TendonRGBA = append(m.TendonRGBA, rgba[:]...)
	m.NTendon++
	return nil
}

func (c *compiler) addFlex(fd *FlexDescription) error {
	m := c.m
	radius := fd.Radius
	if radius <= 0 {
		radius = 0.005
	}
	m.FlexVertAdr = append(m.FlexVertAdr, len(m.FlexVertBodyID))
	for _, v := range fd.Vertices {
		id, ok := c.bodies[v.Body]
		if !ok {
			return fmt.Errorf("%w: flex %q: unknown body %q", ErrInvalidModel, fd.Name, v.Body)
		}
		m.FlexVertBodyID = append(m.FlexVertBodyID, id)
		m.FlexVertPos = append(m.FlexVertPos, v.Pos[:]...)
	}
	m.FlexVertNum = append(m.FlexVertNum, len(fd.Vertices))
	m.FlexRadius = append(m.FlexRadius, radius)
	m.NFlex++
	return nil
}
