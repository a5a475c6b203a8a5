// Package gltfexport writes the current pose of viewer scenes as a binary
// glTF snapshot.
package gltfexport

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/Faultbox/mjtraj/internal/engine/instancing"
	"github.com/Faultbox/mjtraj/internal/engine/scene"
)

// ErrNoScenes is returned when there is nothing to export.
var ErrNoScenes = errors.New("gltfexport: no scenes")

type builder struct {
	doc       *gltf.Document
	meshes    map[*scene.Geometry]uint32
	materials map[*scene.Material]uint32
	aux       map[*scene.Geometry]uint32
}

// Build converts the visible nodes of scenes and the active instances of aux
// into a glTF document. Each scene becomes a top-level node that keeps the
// graph hierarchy and local transforms. Render space is Y-up, as in glTF.
func Build(scenes []*scene.Scene, aux *instancing.Manager) (*gltf.Document, error) {
	if len(scenes) == 0 {
		return nil, ErrNoScenes
	}
	b := &builder{
		doc:       gltf.NewDocument(),
		meshes:    make(map[*scene.Geometry]uint32),
		materials: make(map[*scene.Material]uint32),
		aux:       make(map[*scene.Geometry]uint32),
	}
	for _, sc := range scenes {
		if sc == nil {
			continue
		}
		if idx, ok := b.node(sc.Graph, sc.Graph.Root()); ok {
			b.doc.Scenes[0].Nodes = append(b.doc.Scenes[0].Nodes, idx)
		}
	}
	if aux != nil {
		b.instances("cylinders", aux.Cylinders)
		b.instances("spheres", aux.Spheres)
	}
	return b.doc, nil
}

// Write encodes the snapshot as GLB.
func Write(w io.Writer, scenes []*scene.Scene, aux *instancing.Manager) error {
	doc, err := Build(scenes, aux)
	if err != nil {
		return err
	}
	enc := gltf.NewEncoder(w)
	enc.AsBinary = true
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding glb: %w", err)
	}
	return nil
}

// WriteFile writes the snapshot to path.
func WriteFile(path string, scenes []*scene.Scene, aux *instancing.Manager) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, scenes, aux); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// node appends h and its visible descendants. Hidden subtrees are skipped.
func (b *builder) node(g *scene.Graph, h scene.Handle) (uint32, bool) {
	n := g.Node(h)
	if n == nil || !n.Visible {
		return 0, false
	}
	gn := &gltf.Node{
		Name:        n.Name,
		Translation: [3]float32{n.Position.X, n.Position.Y, n.Position.Z},
		Rotation:    [4]float32{n.Rotation.X, n.Rotation.Y, n.Rotation.Z, n.Rotation.W},
		Scale:       [3]float32{n.Scale.X, n.Scale.Y, n.Scale.Z},
	}
	if n.Geometry != nil && len(n.Geometry.Indices) > 0 {
		gn.Mesh = gltf.Index(b.mesh(n.Geometry, n.Material))
	}
	idx := uint32(len(b.doc.Nodes))
	b.doc.Nodes = append(b.doc.Nodes, gn)

	for _, c := range g.Children(h) {
		if ci, ok := b.node(g, c); ok {
			gn.Children = append(gn.Children, ci)
		}
	}
	return idx, true
}

// mesh returns a glTF mesh for geometry drawn with mat. Geometry buffers are
// written once and shared between meshes.
func (b *builder) mesh(geom *scene.Geometry, mat *scene.Material) uint32 {
	attrs, indices := b.geometry(geom)
	prim := &gltf.Primitive{
		Indices:    gltf.Index(indices),
		Attributes: attrs,
	}
	if mat != nil {
		prim.Material = gltf.Index(b.material(mat))
	}
	b.doc.Meshes = append(b.doc.Meshes, &gltf.Mesh{
		Name:       geom.Shape.String(),
		Primitives: []*gltf.Primitive{prim},
	})
	return uint32(len(b.doc.Meshes) - 1)
}

func (b *builder) geometry(geom *scene.Geometry) (map[string]uint32, uint32) {
	if idx, ok := b.meshes[geom]; ok {
		prim := b.doc.Meshes[idx].Primitives[0]
		return prim.Attributes, *prim.Indices
	}
	positions := make([][3]float32, len(geom.Vertices))
	normals := make([][3]float32, len(geom.Vertices))
	uvs := make([][2]float32, len(geom.Vertices))
	for i, v := range geom.Vertices {
		positions[i] = v.Position
		normals[i] = v.Normal
		uvs[i] = v.TexCoord
	}
	attrs := map[string]uint32{
		"POSITION":   modeler.WritePosition(b.doc, positions),
		"NORMAL":     modeler.WriteNormal(b.doc, normals),
		"TEXCOORD_0": modeler.WriteTextureCoord(b.doc, uvs),
	}
	indices := modeler.WriteIndices(b.doc, geom.Indices)
	// The mesh about to be appended owns these accessors.
	b.meshes[geom] = uint32(len(b.doc.Meshes))
	return attrs, indices
}

func (b *builder) material(m *scene.Material) uint32 {
	if idx, ok := b.materials[m]; ok {
		return idx
	}
	color := m.Color
	gm := &gltf.Material{
		Name:        m.Name,
		DoubleSided: true,
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &color,
			MetallicFactor:  float(clamp01(m.Reflectance)),
			RoughnessFactor: float(clamp01(1 - m.Shininess)),
		},
	}
	if m.Transparent || m.Opacity() < 1 {
		gm.AlphaMode = gltf.AlphaBlend
	}
	if m.Emission > 0 {
		gm.EmissiveFactor = [3]float32{color[0] * m.Emission, color[1] * m.Emission, color[2] * m.Emission}
	}
	idx := uint32(len(b.doc.Materials))
	b.doc.Materials = append(b.doc.Materials, gm)
	b.materials[m] = idx
	return idx
}

// instances adds one node per active instance, carrying the instance matrix
// and a per-color material.
func (b *builder) instances(name string, buf *instancing.Buffer) {
	items := buf.Visible()
	if len(items) == 0 || buf.Template == nil {
		return
	}
	group := &gltf.Node{Name: name}
	groupIdx := uint32(len(b.doc.Nodes))
	b.doc.Nodes = append(b.doc.Nodes, group)
	b.doc.Scenes[0].Nodes = append(b.doc.Scenes[0].Nodes, groupIdx)

	byColor := make(map[[4]float32]*scene.Material)
	for i, it := range items {
		mat, ok := byColor[it.Color]
		if !ok {
			mat = scene.NewMaterial(it.Color)
			mat.Name = name
			byColor[it.Color] = mat
		}
		group.Children = append(group.Children, uint32(len(b.doc.Nodes)))
		b.doc.Nodes = append(b.doc.Nodes, &gltf.Node{
			Name:   fmt.Sprintf("%s%d", name, i),
			Matrix: [16]float32(it.Matrix),
			Mesh:   gltf.Index(b.mesh(buf.Template, mat)),
		})
	}
}

func float(v float32) *float32 { return &v }

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
