package physics

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pendulumYAML = `
bodies:
  - name: arm
    pos: [0, 0, 1]
    joints:
      - {type: hinge, axis: [0, 1, 0]}
    geoms:
      - {type: capsule, size: [0.05, 0.5], pos: [0, 0, -0.5]}
    sites:
      - {name: tip, pos: [0, 0, -1]}
  - name: slider
    joints:
      - {type: slide, axis: [1, 0, 0]}
  - name: floater
    joints:
      - {type: free}
tendons:
  - name: t
    sites: [tip, tip]
flexes:
  - name: f
    vertices:
      - {body: arm, pos: [0, 0, -1]}
`

func loadPendulum(t *testing.T) (*TreeEngine, *Model) {
	t.Helper()
	e := NewTreeEngine()
	m, err := e.LoadModel(context.Background(), []byte(pendulumYAML))
	require.NoError(t, err)
	return e, m
}

func TestCompileLayout(t *testing.T) {
	_, m := loadPendulum(t)

	assert.Equal(t, 4, m.NBody)
	assert.Equal(t, 1+1+7, m.NQ)
	assert.Equal(t, []int{0, 1, 2}, m.JntQposAdr)
	assert.Equal(t, "arm", m.BodyName(1))
	assert.Equal(t, GeomCapsule, m.GeomType[0])
	assert.Equal(t, 1, m.FlexVertexCount())
	// free joint rests at the body's declared pose
	assert.Equal(t, []float64{0, 0, 0, 1, 0, 0, 0}, m.Qpos0[2:])
}

func TestForwardHinge(t *testing.T) {
	e, m := loadPendulum(t)
	s := e.NewState(m)

	s.Qpos[0] = math.Pi / 2
	require.NoError(t, e.Forward(context.Background(), m, s))

	pos, _ := s.BodyPose(1)
	assert.InDeltaSlice(t, []float64{0, 0, 1}, pos[:], 1e-9)

	// rotating +90 deg around Y swings the tip from -Z to -X
	tip := s.WrapPoint(0)
	assert.InDeltaSlice(t, []float64{-1, 0, 1}, tip[:], 1e-9)
	assert.InDeltaSlice(t, tip[:], s.FlexVertXpos[0:3], 1e-9)
}

func TestForwardSlideAndFree(t *testing.T) {
	e, m := loadPendulum(t)
	s := e.NewState(m)

	s.Qpos[1] = 0.25
	copy(s.Qpos[2:], []float64{1, 2, 3, 2, 0, 0, 0})
	require.NoError(t, e.Forward(context.Background(), m, s))

	pos, _ := s.BodyPose(2)
	assert.InDeltaSlice(t, []float64{0.25, 0, 0}, pos[:], 1e-12)

	pos, quat := s.BodyPose(3)
	assert.Equal(t, [3]float64{1, 2, 3}, pos)
	assert.InDeltaSlice(t, []float64{1, 0, 0, 0}, quat[:], 1e-12)
}

func TestForwardRejectsWrongState(t *testing.T) {
	e, m := loadPendulum(t)
	err := e.Forward(context.Background(), m, &State{Qpos: make([]float64, 1)})
	assert.Error(t, err)
	assert.ErrorIs(t, e.Forward(context.Background(), nil, nil), ErrNilModel)
}

func TestNameBoundedScan(t *testing.T) {
	m := &Model{Names: []byte("world\x00arm")}
	assert.Equal(t, "world", m.Name(0))
	assert.Equal(t, "arm", m.Name(6))
	assert.Equal(t, "", m.Name(42))
	assert.Equal(t, "", m.Name(-1))
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown parent", "bodies: [{name: a, parent: nope}]"},
		{"duplicate body", "bodies: [{name: a}, {name: a}]"},
		{"unknown joint", "bodies: [{name: a, joints: [{type: screw}]}]"},
		{"unknown material", "bodies: [{name: a, geoms: [{type: box, material: m}]}]"},
		{"unknown site", "tendons: [{name: t, sites: [s]}]"},
		{"bad yaml", "bodies: ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadDescription([]byte(tt.yaml))
			assert.ErrorIs(t, err, ErrInvalidModel)
		})
	}
}

func TestDefaultModel(t *testing.T) {
	m := DefaultModel()
	assert.Equal(t, 2, m.NQ)
	assert.Equal(t, 1, m.NTendon)
	assert.Equal(t, 1, m.NTex)
	assert.Equal(t, "side", m.CameraName(0))
	assert.Len(t, m.TexData, 64*64*3)
}
