// Package playback synchronizes loaded trajectories on one global clock and
// poses a copy of the model's body hierarchy for each of them.
//
// A Viewer is not safe for concurrent use. It is owned by a single loop (the
// render loop or a server session) and other goroutines hand it work through
// channels.
package playback

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/mjtraj/internal/engine/coords"
	"github.com/Faultbox/mjtraj/internal/engine/instancing"
	"github.com/Faultbox/mjtraj/internal/engine/pose"
	"github.com/Faultbox/mjtraj/internal/engine/scene"
	"github.com/Faultbox/mjtraj/internal/logger"
	"github.com/Faultbox/mjtraj/internal/physics"
	"github.com/Faultbox/mjtraj/pkg/formats"
)

// Viewer errors.
var (
	ErrUnknownInstance = errors.New("playback: unknown instance")
	ErrDuplicateID     = errors.New("playback: instance id already loaded")
	ErrNoModel         = errors.New("playback: no model loaded")
	ErrEmptyTrajectory = errors.New("playback: trajectory has no frames")
)

// Options configures a Viewer.
type Options struct {
	Transform coords.Transform
	Ghost     GhostStyle
}

// DefaultOptions returns swizzled coordinates and the default ghost style.
func DefaultOptions() Options {
	return Options{
		Transform: coords.New(coords.Swizzle),
		Ghost:     DefaultGhostStyle,
	}
}

// FrameContext carries everything one update needs.
type FrameContext struct {
	Ctx         context.Context
	GlobalFrame float64
	PrimaryRate float64
	Delta       time.Duration
}

// Report describes what one update did.
type Report struct {
	GlobalFrame float64
	// Frames maps instance id to the local frame applied.
	Frames map[string]int
	// Mismatches lists instances whose pose did not fit the model; their
	// previous pose stays on screen.
	Mismatches map[string]*pose.DimensionMismatchError
	Errors     []error
	Instancing instancing.Stats
}

// Viewer owns the base scene and every loaded trajectory instance.
type Viewer struct {
	engine physics.Engine
	model  *physics.Model
	opts   Options

	base      *scene.Scene
	baseState *physics.State
	applier   *pose.Applier
	aux       *instancing.Manager

	instances []*Instance
	nextID    int
	clock     *Clock

	log *zap.Logger
}

// NewViewer builds the base scene for m and poses it at rest.
func NewViewer(ctx context.Context, eng physics.Engine, m *physics.Model, opts Options) (*Viewer, error) {
	v := &Viewer{
		engine: eng,
		opts:   opts,
		clock:  NewClock(),
		log:    logger.Named("viewer"),
	}
	if err := v.load(ctx, m); err != nil {
		return nil, err
	}
	return v, nil
}

// load builds the base scene, applier and instance buffers for m.
func (v *Viewer) load(ctx context.Context, m *physics.Model) error {
	if m == nil {
		return ErrNoModel
	}
	base, err := scene.Build(m, v.opts.Transform)
	if err != nil {
		return fmt.Errorf("building scene: %w", err)
	}

	v.model = m
	v.base = base
	v.baseState = v.engine.NewState(m)
	v.applier = pose.NewApplier(v.engine, m, v.opts.Transform)
	v.aux = instancing.NewManager(m, v.opts.Transform)

	rest := append([]float64(nil), v.baseState.Qpos...)
	if err := v.applier.ApplyScene(ctx, rest, v.base, v.baseState); err != nil {
		return fmt.Errorf("posing base scene: %w", err)
	}
	v.aux.Update(m, v.baseState)

	v.log.Info("model loaded",
		zap.Int("bodies", m.NBody),
		zap.Int("geoms", m.NGeom),
		zap.Int("nq", m.NQ),
		zap.Int("tendons", m.NTendon))
	return nil
}

// Model returns the loaded model.
func (v *Viewer) Model() *physics.Model { return v.model }

// Base returns the static base scene.
func (v *Viewer) Base() *scene.Scene { return v.base }

// Instancing returns the tendon/flex instance buffers of the main scene.
func (v *Viewer) Instancing() *instancing.Manager { return v.aux }

// Clock returns the global playback clock.
func (v *Viewer) Clock() *Clock { return v.clock }

// Transform returns the coordinate transform in use.
func (v *Viewer) Transform() coords.Transform { return v.opts.Transform }

// Ready reports whether a model and base scene are loaded.
func (v *Viewer) Ready() bool {
	return v != nil && v.model != nil && v.base != nil
}

// Instances returns the loaded instances in load order.
func (v *Viewer) Instances() []*Instance {
	return v.instances
}

// Instance returns the instance with the given id.
func (v *Viewer) Instance(id string) (*Instance, error) {
	for _, inst := range v.instances {
		if inst.ID == id {
			return inst, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownInstance, id)
}

// Scenes returns the base scene followed by every instance scene. Hidden
// scenes have an invisible root.
func (v *Viewer) Scenes() []*scene.Scene {
	out := make([]*scene.Scene, 0, len(v.instances)+1)
	if v.base != nil {
		out = append(out, v.base)
	}
	for _, inst := range v.instances {
		out = append(out, inst.Scene)
	}
	return out
}

// AddTrajectory clones the base hierarchy for traj and allocates its own
// kinematic state. An empty id is replaced by a generated one.
func (v *Viewer) AddTrajectory(id, name string, traj *formats.Trajectory) (*Instance, error) {
	if !v.Ready() {
		return nil, ErrNoModel
	}
	if traj == nil || traj.FrameCount() == 0 {
		return nil, ErrEmptyTrajectory
	}
	if id == "" {
		v.nextID++
		id = strconv.Itoa(v.nextID)
	}
	if _, err := v.Instance(id); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	if name == "" {
		name = "trajectory"
	}

	inst := &Instance{
		ID:         id,
		Name:       name,
		Trajectory: traj,
		Scene:      v.base.Clone(),
		State:      v.engine.NewState(v.model),
		visible:    true,
	}
	root := inst.Scene.Graph.Root()
	inst.Scene.Graph.Node(root).Name = inst.SubtreeName()
	inst.Scene.Graph.SetVisible(root, true)

	if w := traj.Width(); w != v.model.NQ {
		v.log.Warn("trajectory width differs from model",
			zap.String("instance", id), zap.Int("width", w), zap.Int("nq", v.model.NQ))
	}

	v.instances = append(v.instances, inst)
	v.syncBaseVisibility()
	v.log.Info("trajectory added",
		zap.String("instance", id),
		zap.String("name", name),
		zap.Int("frames", traj.FrameCount()),
		zap.Float64("frame_rate", inst.FrameRate()))
	return inst, nil
}

// RemoveTrajectory drops an instance and releases its state.
func (v *Viewer) RemoveTrajectory(id string) error {
	for i, inst := range v.instances {
		if inst.ID != id {
			continue
		}
		v.engine.FreeState(inst.State)
		inst.State = nil
		inst.Scene = nil
		v.instances = append(v.instances[:i], v.instances[i+1:]...)
		v.syncBaseVisibility()
		v.log.Info("trajectory removed", zap.String("instance", id))
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownInstance, id)
}

// syncBaseVisibility hides the base scene while any instance is loaded.
func (v *Viewer) syncBaseVisibility() {
	v.base.Graph.SetVisible(v.base.Graph.Root(), len(v.instances) == 0)
}

// SetGhost toggles the translucent overlay style of an instance.
func (v *Viewer) SetGhost(id string, ghost bool) error {
	inst, err := v.Instance(id)
	if err != nil {
		return err
	}
	inst.setGhost(ghost, v.opts.Ghost)
	return nil
}

// SetVisible shows or hides an instance. Hidden instances are not posed.
func (v *Viewer) SetVisible(id string, visible bool) error {
	inst, err := v.Instance(id)
	if err != nil {
		return err
	}
	inst.visible = visible
	inst.Scene.Graph.SetVisible(inst.Scene.Graph.Root(), visible)
	return nil
}

// SetStartFrame sets the local frame an instance shows at global frame 0.
func (v *Viewer) SetStartFrame(id string, frame int) error {
	inst, err := v.Instance(id)
	if err != nil {
		return err
	}
	inst.StartFrame = frame
	return nil
}

// SetFrameRate overrides an instance's frame rate; rate <= 0 clears it.
func (v *Viewer) SetFrameRate(id string, rate float64) error {
	inst, err := v.Instance(id)
	if err != nil {
		return err
	}
	if rate <= 0 {
		rate = 0
	}
	inst.FrameRateOverride = rate
	return nil
}

// ReplaceModel tears down every instance and rebuilds the base scene.
func (v *Viewer) ReplaceModel(ctx context.Context, m *physics.Model) error {
	if m == nil {
		return ErrNoModel
	}
	for _, inst := range v.instances {
		v.engine.FreeState(inst.State)
	}
	v.instances = nil
	if v.baseState != nil {
		v.engine.FreeState(v.baseState)
	}
	v.clock.Seek(0)
	return v.load(ctx, m)
}

// PrimaryRate is the rate the global clock runs at: the first instance's
// effective rate, or DefaultFrameRate.
func (v *Viewer) PrimaryRate() float64 {
	if len(v.instances) == 0 {
		return DefaultFrameRate
	}
	return v.instances[0].FrameRate()
}

// LastFrame returns the last global frame at which any instance still
// advances.
func (v *Viewer) LastFrame() float64 {
	primary := v.PrimaryRate()
	last := 0.0
	for _, inst := range v.instances {
		if e := EndFrame(primary, inst.Timeline()); e > last {
			last = e
		}
	}
	return last
}

// Duration returns the longest loaded trajectory length in seconds.
func (v *Viewer) Duration() float64 {
	d := 0.0
	for _, inst := range v.instances {
		if id := inst.Duration(); id > d {
			d = id
		}
	}
	return d
}

// Tick advances the clock by dt and updates every instance.
func (v *Viewer) Tick(ctx context.Context, dt time.Duration) Report {
	v.clock.Advance(dt, v.PrimaryRate(), v.LastFrame())
	return v.Update(FrameContext{
		Ctx:         ctx,
		GlobalFrame: v.clock.Frame(),
		PrimaryRate: v.PrimaryRate(),
		Delta:       dt,
	})
}

// Update poses every visible instance for fc.GlobalFrame, then refreshes the
// instance buffers. All poses are applied before the instancing pass.
func (v *Viewer) Update(fc FrameContext) Report {
	if fc.Ctx == nil {
		fc.Ctx = context.Background()
	}
	r := newReport(fc.GlobalFrame)
	for _, inst := range v.instances {
		if !inst.visible {
			continue
		}
		v.apply(fc.Ctx, inst, LocalFrame(fc.GlobalFrame, fc.PrimaryRate, inst.Timeline()), &r)
	}
	v.updateInstancing(&r)
	return r
}

// ApplyExportFrame poses every visible instance for export time t seconds.
func (v *Viewer) ApplyExportFrame(ctx context.Context, t float64) Report {
	r := newReport(t)
	for _, inst := range v.instances {
		if !inst.visible {
			continue
		}
		v.apply(ctx, inst, ExportFrame(t, inst.FrameRate(), inst.Trajectory.FrameCount()), &r)
	}
	v.updateInstancing(&r)
	return r
}

func newReport(frame float64) Report {
	return Report{
		GlobalFrame: frame,
		Frames:      make(map[string]int),
		Mismatches:  make(map[string]*pose.DimensionMismatchError),
	}
}

func (v *Viewer) apply(ctx context.Context, inst *Instance, local int, r *Report) {
	err := v.applier.ApplyScene(ctx, inst.Trajectory.Frames[local], inst.Scene, inst.State)
	var dm *pose.DimensionMismatchError
	switch {
	case err == nil:
		inst.mismatch = false
		inst.lastFrame = local
		r.Frames[inst.ID] = local
	case errors.As(err, &dm):
		if !inst.mismatch {
			v.log.Warn("pose skipped: dimension mismatch",
				zap.String("instance", inst.ID),
				zap.Int("frame", local),
				zap.Int("got", dm.Got),
				zap.Int("want", dm.Want))
		}
		inst.mismatch = true
		r.Mismatches[inst.ID] = dm
	default:
		v.log.Warn("pose failed", zap.String("instance", inst.ID), zap.Error(err))
		r.Errors = append(r.Errors, fmt.Errorf("instance %s: %w", inst.ID, err))
	}
}

// updateInstancing fills the tendon/flex buffers from the first visible
// instance, or from the base scene when none is shown.
func (v *Viewer) updateInstancing(r *Report) {
	state := v.baseState
	for _, inst := range v.instances {
		if inst.visible {
			state = inst.State
			break
		}
	}
	r.Instancing = v.aux.Update(v.model, state)
}
