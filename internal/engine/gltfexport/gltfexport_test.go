package gltfexport

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/mjtraj/internal/engine/coords"
	"github.com/Faultbox/mjtraj/internal/engine/instancing"
	"github.com/Faultbox/mjtraj/internal/engine/pose"
	"github.com/Faultbox/mjtraj/internal/engine/scene"
	"github.com/Faultbox/mjtraj/internal/physics"
)

func posedScene(t *testing.T) (*scene.Scene, *instancing.Manager) {
	t.Helper()
	tr := coords.New(coords.Swizzle)
	m := physics.DefaultModel()
	eng := physics.NewTreeEngine()
	sc, err := scene.Build(m, tr)
	require.NoError(t, err)

	st := eng.NewState(m)
	ap := pose.NewApplier(eng, m, tr)
	require.NoError(t, ap.ApplyScene(context.Background(), make([]float64, m.NQ), sc, st))

	mg := instancing.NewManager(m, tr)
	mg.Update(m, st)
	return sc, mg
}

func TestBuildMirrorsGraph(t *testing.T) {
	sc, mg := posedScene(t)

	doc, err := Build([]*scene.Scene{sc}, mg)
	require.NoError(t, err)

	require.NotEmpty(t, doc.Scenes[0].Nodes)
	root := doc.Nodes[doc.Scenes[0].Nodes[0]]
	assert.Equal(t, "scene", root.Name)

	var names []string
	for _, n := range doc.Nodes {
		names = append(names, n.Name)
	}
	assert.Contains(t, names, "lower")
	assert.NotEmpty(t, doc.Meshes)
	assert.NotEmpty(t, doc.Materials)
}

func TestBuildSkipsHiddenSubtrees(t *testing.T) {
	sc, _ := posedScene(t)
	all, err := Build([]*scene.Scene{sc}, nil)
	require.NoError(t, err)

	sc.Graph.SetVisible(sc.Graph.Find("lower"), false)
	some, err := Build([]*scene.Scene{sc}, nil)
	require.NoError(t, err)
	assert.Less(t, len(some.Nodes), len(all.Nodes))

	sc.Graph.SetVisible(sc.Graph.Root(), false)
	none, err := Build([]*scene.Scene{sc}, nil)
	require.NoError(t, err)
	assert.Empty(t, none.Nodes)
}

func TestSharedGeometryIsWrittenOnce(t *testing.T) {
	g := scene.NewGraph("root")
	geom := scene.NewBox([3]float32{1, 1, 1}, coords.New(coords.Swizzle))
	mat := scene.NewMaterial([4]float32{1, 0, 0, 1})
	for _, name := range []string{"a", "b"} {
		g.Add(g.Root(), scene.Node{Name: name, Visible: true, Geometry: geom, Material: mat, BodyID: -1, GeomID: -1})
	}
	doc, err := Build([]*scene.Scene{{Graph: g}}, nil)
	require.NoError(t, err)

	require.Len(t, doc.Meshes, 2)
	assert.Equal(t, *doc.Meshes[0].Primitives[0].Indices, *doc.Meshes[1].Primitives[0].Indices)
	assert.Len(t, doc.Materials, 1)
}

func TestWriteRoundTrip(t *testing.T) {
	sc, mg := posedScene(t)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, []*scene.Scene{sc}, mg))
	assert.Equal(t, "glTF", buf.String()[:4])

	var doc gltf.Document
	require.NoError(t, gltf.NewDecoder(bytes.NewReader(buf.Bytes())).Decode(&doc))
	assert.NotEmpty(t, doc.Nodes)

	path := filepath.Join(t.TempDir(), "pose.glb")
	require.NoError(t, WriteFile(path, []*scene.Scene{sc}, mg))
	assert.FileExists(t, path)
}

func TestBuildRequiresScenes(t *testing.T) {
	_, err := Build(nil, nil)
	assert.ErrorIs(t, err, ErrNoScenes)
}
