package playback

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/mjtraj/internal/engine/scene"
	"github.com/Faultbox/mjtraj/internal/physics"
	"github.com/Faultbox/mjtraj/pkg/formats"
)

// trackingEngine records allocated and freed states.
type trackingEngine struct {
	*physics.TreeEngine
	allocated int
	freed     int
}

func (e *trackingEngine) NewState(m *physics.Model) *physics.State {
	e.allocated++
	return e.TreeEngine.NewState(m)
}

func (e *trackingEngine) FreeState(s *physics.State) {
	e.freed++
	e.TreeEngine.FreeState(s)
}

func newTestViewer(t *testing.T) (*Viewer, *trackingEngine) {
	t.Helper()
	eng := &trackingEngine{TreeEngine: physics.NewTreeEngine()}
	v, err := NewViewer(context.Background(), eng, physics.DefaultModel(), DefaultOptions())
	require.NoError(t, err)
	return v, eng
}

// ramp returns a trajectory whose first joint angle equals frame*step.
func ramp(frames, width int, rate, step float64) *formats.Trajectory {
	tr := &formats.Trajectory{FrameRate: rate, Source: formats.SourceLocal}
	for i := 0; i < frames; i++ {
		f := make([]float64, width)
		f[0] = float64(i) * step
		tr.Frames = append(tr.Frames, f)
	}
	return tr
}

func TestTwoTrajectoriesEndToEnd(t *testing.T) {
	v, _ := newTestViewer(t)
	a, err := v.AddTrajectory("a", "walk", ramp(50, 2, 25, 0.01))
	require.NoError(t, err)
	b, err := v.AddTrajectory("b", "run", ramp(100, 2, 25, 0.01))
	require.NoError(t, err)
	require.NoError(t, v.SetStartFrame("b", 10))

	assert.Equal(t, 25.0, v.PrimaryRate())

	r := v.Update(FrameContext{Ctx: context.Background(), GlobalFrame: 40, PrimaryRate: v.PrimaryRate()})

	assert.Empty(t, r.Mismatches)
	assert.Empty(t, r.Errors)
	assert.Equal(t, 40, r.Frames["a"])
	assert.Equal(t, 50, r.Frames["b"])
	assert.Equal(t, 40, a.LastFrame())
	assert.Equal(t, 50, b.LastFrame())
	assert.InDelta(t, 0.40, a.State.Qpos[0], 1e-12)
	assert.InDelta(t, 0.50, b.State.Qpos[0], 1e-12)

	// Each instance is posed in its own arena.
	lowerA := a.Scene.Graph.Find("lower")
	lowerB := b.Scene.Graph.Find("lower")
	assert.NotEqual(t, a.Scene.Graph.World(lowerA), b.Scene.Graph.World(lowerB))
}

func TestAtRestShowsStartFrames(t *testing.T) {
	v, _ := newTestViewer(t)
	_, err := v.AddTrajectory("a", "a", ramp(30, 2, 30, 0.1))
	require.NoError(t, err)
	_, err = v.AddTrajectory("b", "b", ramp(30, 2, 60, 0.1))
	require.NoError(t, err)
	require.NoError(t, v.SetStartFrame("a", 7))
	require.NoError(t, v.SetStartFrame("b", 45))

	r := v.Update(FrameContext{GlobalFrame: 0, PrimaryRate: v.PrimaryRate()})
	assert.Equal(t, 7, r.Frames["a"])
	assert.Equal(t, 29, r.Frames["b"], "start beyond the end clamps to the last frame")
}

func TestBaseHiddenWhileInstancesLoaded(t *testing.T) {
	v, eng := newTestViewer(t)
	root := v.Base().Graph.Root()
	assert.True(t, v.Base().Graph.Visible(root))

	inst, err := v.AddTrajectory("", "walk", ramp(10, 2, 30, 0))
	require.NoError(t, err)
	assert.Equal(t, "1", inst.ID)
	assert.Equal(t, "traj-1-walk", inst.Scene.Graph.Node(inst.Scene.Graph.Root()).Name)
	assert.False(t, v.Base().Graph.Visible(root))
	assert.Len(t, v.Scenes(), 2)

	freedBefore := eng.freed
	require.NoError(t, v.RemoveTrajectory(inst.ID))
	assert.Equal(t, freedBefore+1, eng.freed)
	assert.True(t, v.Base().Graph.Visible(root))
	assert.Len(t, v.Scenes(), 1)

	assert.ErrorIs(t, v.RemoveTrajectory(inst.ID), ErrUnknownInstance)
}

func TestAddTrajectoryErrors(t *testing.T) {
	v, _ := newTestViewer(t)
	_, err := v.AddTrajectory("x", "x", &formats.Trajectory{})
	assert.ErrorIs(t, err, ErrEmptyTrajectory)

	_, err = v.AddTrajectory("x", "x", ramp(2, 2, 30, 0))
	require.NoError(t, err)
	_, err = v.AddTrajectory("x", "again", ramp(2, 2, 30, 0))
	assert.ErrorIs(t, err, ErrDuplicateID)

	assert.ErrorIs(t, v.SetGhost("missing", true), ErrUnknownInstance)
}

func TestGhostCopiesMaterials(t *testing.T) {
	v, _ := newTestViewer(t)
	inst, err := v.AddTrajectory("g", "ghost", ramp(5, 2, 30, 0))
	require.NoError(t, err)

	shared := map[scene.Handle]*scene.Material{}
	inst.Scene.Graph.Walk(inst.Scene.Graph.Root(), func(h scene.Handle, n *scene.Node) bool {
		if n.Material != nil {
			shared[h] = n.Material
		}
		return true
	})
	require.NotEmpty(t, shared)

	require.NoError(t, v.SetGhost("g", true))
	assert.True(t, inst.Ghost())
	for h, base := range shared {
		n := inst.Scene.Graph.Node(h)
		assert.NotSame(t, base, n.Material)
		assert.Equal(t, float32(0.35), n.Material.Opacity())
		assert.True(t, n.Material.Transparent)
		assert.False(t, n.Material.DepthWrite)
		assert.Equal(t, -1, n.RenderOrder)
		// The shared material is untouched.
		assert.True(t, base.DepthWrite)
		assert.NotEqual(t, float32(0.35), base.Opacity())
	}

	// Base scene nodes keep the shared materials too.
	for h, base := range shared {
		assert.Same(t, base, v.Base().Graph.Node(h).Material)
	}

	require.NoError(t, v.SetGhost("g", false))
	for h, base := range shared {
		n := inst.Scene.Graph.Node(h)
		assert.Same(t, base, n.Material)
		assert.Equal(t, 0, n.RenderOrder)
	}
}

func TestGhostNeverRaisesOpacity(t *testing.T) {
	v, _ := newTestViewer(t)
	inst, err := v.AddTrajectory("g", "ghost", ramp(5, 2, 30, 0))
	require.NoError(t, err)

	g := inst.Scene.Graph
	faint := scene.NoHandle
	g.Walk(g.Root(), func(h scene.Handle, n *scene.Node) bool {
		if n.Material != nil && faint == scene.NoHandle {
			faint = h
		}
		return true
	})
	require.NotEqual(t, scene.NoHandle, faint)
	m := g.Node(faint).Material.Clone()
	m.Color[3] = 0.2
	m.Transparent = true
	g.Node(faint).Material = m

	require.NoError(t, v.SetGhost("g", true))
	assert.Equal(t, float32(0.2), g.Node(faint).Material.Opacity())
	assert.Equal(t, float32(0.2), m.Opacity(), "original material is untouched")

	require.NoError(t, v.SetGhost("g", false))
	assert.Same(t, m, g.Node(faint).Material)
}

func TestDimensionMismatchSkipsFrame(t *testing.T) {
	v, _ := newTestViewer(t)
	good, err := v.AddTrajectory("good", "good", ramp(10, 2, 30, 0.1))
	require.NoError(t, err)
	bad, err := v.AddTrajectory("bad", "bad", ramp(10, 5, 30, 0.1))
	require.NoError(t, err)

	lower := bad.Scene.Graph.Find("lower")
	before := bad.Scene.Graph.World(lower)

	r := v.Update(FrameContext{GlobalFrame: 5, PrimaryRate: 30})

	require.Contains(t, r.Mismatches, "bad")
	assert.Equal(t, 5, r.Mismatches["bad"].Got)
	assert.Equal(t, 2, r.Mismatches["bad"].Want)
	assert.NotContains(t, r.Frames, "bad")
	assert.Equal(t, 5, r.Frames["good"])
	assert.Equal(t, 5, good.LastFrame())
	assert.Equal(t, before, bad.Scene.Graph.World(lower))
}

func TestHiddenInstancesAreNotPosed(t *testing.T) {
	v, _ := newTestViewer(t)
	_, err := v.AddTrajectory("a", "a", ramp(10, 2, 30, 0.1))
	require.NoError(t, err)
	require.NoError(t, v.SetVisible("a", false))

	r := v.Update(FrameContext{GlobalFrame: 3, PrimaryRate: 30})
	assert.Empty(t, r.Frames)
	inst, _ := v.Instance("a")
	assert.False(t, inst.Scene.Graph.Visible(inst.Scene.Graph.Root()))
}

func TestFrameRateOverride(t *testing.T) {
	v, _ := newTestViewer(t)
	_, err := v.AddTrajectory("a", "a", ramp(100, 2, 30, 0))
	require.NoError(t, err)
	_, err = v.AddTrajectory("b", "b", ramp(100, 2, 30, 0))
	require.NoError(t, err)

	require.NoError(t, v.SetFrameRate("b", 60))
	r := v.Update(FrameContext{GlobalFrame: 10, PrimaryRate: v.PrimaryRate()})
	assert.Equal(t, 10, r.Frames["a"], "other instances keep their timing")
	assert.Equal(t, 20, r.Frames["b"])

	require.NoError(t, v.SetFrameRate("b", 0))
	r = v.Update(FrameContext{GlobalFrame: 10, PrimaryRate: v.PrimaryRate()})
	assert.Equal(t, 10, r.Frames["b"])
}

func TestTickAdvancesClock(t *testing.T) {
	v, _ := newTestViewer(t)
	_, err := v.AddTrajectory("a", "a", ramp(90, 2, 30, 0.01))
	require.NoError(t, err)

	v.Clock().Play()
	r := v.Tick(context.Background(), time.Second)
	assert.Equal(t, 30, r.Frames["a"])
	assert.InDelta(t, 89, v.LastFrame(), 1e-9)
	assert.InDelta(t, 3.0, v.Duration(), 1e-9)
}

func TestReplaceModelTearsDownInstances(t *testing.T) {
	v, eng := newTestViewer(t)
	_, err := v.AddTrajectory("a", "a", ramp(10, 2, 30, 0))
	require.NoError(t, err)
	_, err = v.AddTrajectory("b", "b", ramp(10, 2, 30, 0))
	require.NoError(t, err)
	oldBase := v.Base()

	m, err := physics.LoadDescription([]byte("name: empty\nbodies:\n  - name: only\n"))
	require.NoError(t, err)
	require.NoError(t, v.ReplaceModel(context.Background(), m))

	assert.Empty(t, v.Instances())
	assert.NotSame(t, oldBase, v.Base())
	assert.Same(t, m, v.Model())
	assert.Equal(t, eng.allocated, eng.freed+1, "only the new base state stays allocated")
	assert.True(t, v.Base().Graph.Visible(v.Base().Graph.Root()))
}

func TestInstancingFollowsFirstVisibleInstance(t *testing.T) {
	v, _ := newTestViewer(t)
	// Tendon sites sit off the hinge axis, so the segment exists at rest.
	r := v.Update(FrameContext{GlobalFrame: 0, PrimaryRate: 30})
	assert.Equal(t, 1, r.Instancing.Cylinders)
	assert.Equal(t, 2, r.Instancing.Spheres)
	assert.False(t, r.Instancing.Overflow())
}

func TestSnapshot(t *testing.T) {
	v, _ := newTestViewer(t)
	_, err := v.AddTrajectory("a", "walk", ramp(60, 2, 30, 0))
	require.NoError(t, err)
	require.NoError(t, v.SetGhost("a", true))

	s := v.Snapshot()
	require.Len(t, s.Instances, 1)
	assert.Equal(t, "walk", s.Instances[0].Name)
	assert.True(t, s.Instances[0].Ghost)
	assert.Equal(t, 60, s.Instances[0].FrameCount)
	assert.Equal(t, 30.0, s.PrimaryRate)
	assert.True(t, s.Loop)
}

func TestLoadModelFileFallsBack(t *testing.T) {
	eng := physics.NewTreeEngine()
	m, err := LoadModelFile(context.Background(), eng, filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, physics.DefaultModel().NQ, m.NQ)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("bodies: [{name: a, parent: nowhere}]"), 0o644))
	_, err = LoadModelFile(context.Background(), eng, bad)
	assert.ErrorIs(t, err, physics.ErrInvalidModel)
}
